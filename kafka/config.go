package kafka

import (
	"fmt"
	"time"
)

type Config struct {
	// General
	Brokers  []string `koanf:"brokers"`
	ClientID string   `koanf:"clientId"`
	RackID   string   `koanf:"rackId"`

	// RequestTimeout bounds every single request sent to the cluster. A timed out request only drops the data of
	// the affected consumer group or partition.
	RequestTimeout time.Duration `koanf:"requestTimeout"`

	TLS  TLSConfig  `koanf:"tls"`
	SASL SASLConfig `koanf:"sasl"`
}

func (c *Config) SetDefaults() {
	c.ClientID = "klag"
	c.RequestTimeout = 5 * time.Second

	c.TLS.SetDefaults()
	c.SASL.SetDefaults()
}

func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return NewConfigurationError("no seed brokers specified, at least one must be configured")
	}

	if c.RequestTimeout <= 0 {
		return NewConfigurationError("request timeout must be positive, given: '%v'", c.RequestTimeout)
	}

	err := c.TLS.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate TLS config: %w", err)
	}

	err = c.SASL.Validate()
	if err != nil {
		return fmt.Errorf("failed to validate SASL config: %w", err)
	}

	return nil
}
