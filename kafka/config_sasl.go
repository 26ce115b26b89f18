package kafka

const (
	SASLMechanismPlain       = "PLAIN"
	SASLMechanismScramSHA256 = "SCRAM-SHA-256"
	SASLMechanismScramSHA512 = "SCRAM-SHA-512"
	SASLMechanismGSSAPI      = "GSSAPI"
	SASLMechanismOAuthBearer = "OAUTHBEARER"
)

// SASLConfig for Kafka Client
type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
	Mechanism string `koanf:"mechanism"`

	// SASL Mechanisms that require more configuration than username & password
	GSSAPI      SASLGSSAPIConfig  `koanf:"gssapi"`
	OAuthBearer OAuthBearerConfig `koanf:"oauth"`
}

// SetDefaults for SASL Config
func (c *SASLConfig) SetDefaults() {
	c.Enabled = false
	c.Mechanism = SASLMechanismPlain
	c.GSSAPI.SetDefaults()
	c.OAuthBearer.SetDefaults()
}

// Validate SASL config input. Mechanisms with mandatory sub fields fail with a ConfigurationError naming the first
// missing field.
func (c *SASLConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	switch c.Mechanism {
	case SASLMechanismPlain, SASLMechanismScramSHA256, SASLMechanismScramSHA512:
		if c.Username == "" {
			return NewConfigurationError("sasl mechanism '%v' requires a username", c.Mechanism)
		}
	case SASLMechanismGSSAPI:
		return c.GSSAPI.Validate()
	case SASLMechanismOAuthBearer:
		return c.OAuthBearer.Validate()
	default:
		return NewConfigurationError("given sasl mechanism '%v' is invalid", c.Mechanism)
	}

	return nil
}
