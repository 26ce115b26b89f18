package kafka

// SASLGSSAPIConfig represents the Kafka Kerberos config. Authentication always happens with a keytab.
type SASLGSSAPIConfig struct {
	KeyTabPath         string `koanf:"keyTabPath"`
	KerberosConfigPath string `koanf:"kerberosConfigPath"`
	ServiceName        string `koanf:"serviceName"`
	Username           string `koanf:"username"`
	Realm              string `koanf:"realm"`

	// EnableFast enables FAST, which is a pre-authentication framework for Kerberos.
	EnableFast bool `koanf:"enableFast"`
}

func (c *SASLGSSAPIConfig) SetDefaults() {
	c.KerberosConfigPath = "/etc/krb5.conf"
	c.EnableFast = true
}

func (c *SASLGSSAPIConfig) Validate() error {
	if c.ServiceName == "" {
		return NewConfigurationError("the `serviceName` setting is required for GSSAPI")
	}
	if c.KeyTabPath == "" {
		return NewConfigurationError("the `keyTabPath` setting is required for GSSAPI")
	}
	if c.KerberosConfigPath == "" {
		return NewConfigurationError("the `kerberosConfigPath` setting is required for GSSAPI")
	}
	if c.Username == "" || c.Realm == "" {
		return NewConfigurationError("the `username` and `realm` settings are required for GSSAPI")
	}
	return nil
}
