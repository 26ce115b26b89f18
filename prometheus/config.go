package prometheus

import (
	"time"

	"github.com/cloudhut/klag/kafka"
)

type Config struct {
	Host        string `koanf:"host"`
	Port        int    `koanf:"port"`
	Namespace   string `koanf:"namespace"`
	TLSCertFile string `koanf:"tlsCertificate"`
	TLSKeyFile  string `koanf:"tlsKey"`

	// PassTimeout bounds a single reconciliation pass that is triggered by a scrape.
	PassTimeout time.Duration `koanf:"passTimeout"`
}

func (c *Config) SetDefaults() {
	c.Port = 8080
	c.Namespace = "klag"
	c.PassTimeout = 30 * time.Second
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return kafka.NewConfigurationError("exporter port must be between 1 and 65535, given: '%v'", c.Port)
	}
	if c.PassTimeout <= 0 {
		return kafka.NewConfigurationError("exporter passTimeout must be positive, given: '%v'", c.PassTimeout)
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return kafka.NewConfigurationError("exporter tlsCertificate and tlsKey must be set together")
	}
	return nil
}
