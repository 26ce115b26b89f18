package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func validConfig() Config {
	var cfg Config
	cfg.SetDefaults()
	cfg.Brokers = []string{"127.0.0.1:9092"}
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr bool
	}{
		{
			name:    "defaults with brokers",
			mutate:  func(cfg *Config) {},
			wantErr: false,
		},
		{
			name:    "no brokers",
			mutate:  func(cfg *Config) { cfg.Brokers = nil },
			wantErr: true,
		},
		{
			name:    "zero request timeout",
			mutate:  func(cfg *Config) { cfg.RequestTimeout = 0 },
			wantErr: true,
		},
		{
			name: "unknown sasl mechanism",
			mutate: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = "NTLM"
			},
			wantErr: true,
		},
		{
			name: "plain without username",
			mutate: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = SASLMechanismPlain
			},
			wantErr: true,
		},
		{
			name: "scram with username",
			mutate: func(cfg *Config) {
				cfg.SASL.Enabled = true
				cfg.SASL.Mechanism = SASLMechanismScramSHA512
				cfg.SASL.Username = "user"
				cfg.SASL.Password = "secret"
			},
			wantErr: false,
		},
		{
			name: "sasl sub fields are ignored when sasl is disabled",
			mutate: func(cfg *Config) {
				cfg.SASL.Mechanism = SASLMechanismOAuthBearer
			},
			wantErr: false,
		},
		{
			name: "tls cert without key",
			mutate: func(cfg *Config) {
				cfg.TLS.Enabled = true
				cfg.TLS.Cert = "-----BEGIN CERTIFICATE-----"
			},
			wantErr: true,
		},
		{
			name: "tls ca set twice",
			mutate: func(cfg *Config) {
				cfg.TLS.CaFilepath = "/etc/ca.pem"
				cfg.TLS.Ca = "-----BEGIN CERTIFICATE-----"
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err), "expected a ConfigurationError, got %T", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestOAuthBearerConfig_Validate(t *testing.T) {
	complete := OAuthBearerConfig{
		TokenEndpoint: "https://idp.example.com/token",
		ClientID:      "klag",
		ClientSecret:  "secret",
	}
	require.NoError(t, complete.Validate())

	tests := []struct {
		name         string
		mutate       func(cfg *OAuthBearerConfig)
		missingField string
	}{
		{"missing url", func(cfg *OAuthBearerConfig) { cfg.TokenEndpoint = "" }, "tokenEndpoint"},
		{"missing client id", func(cfg *OAuthBearerConfig) { cfg.ClientID = "" }, "clientId"},
		{"missing client secret", func(cfg *OAuthBearerConfig) { cfg.ClientSecret = "" }, "clientSecret"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := complete
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.missingField)
		})
	}
}

func TestSASLGSSAPIConfig_Validate(t *testing.T) {
	var cfg SASLGSSAPIConfig
	cfg.SetDefaults()
	cfg.ServiceName = "kafka"
	cfg.Username = "klag"
	cfg.Realm = "EXAMPLE.COM"

	err := cfg.Validate()
	require.Error(t, err, "keytab must be required")
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "keyTabPath")

	cfg.KeyTabPath = "/etc/klag.keytab"
	require.NoError(t, cfg.Validate())

	cfg.ServiceName = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serviceName")
}

func TestNewService_OAuthMissingClientSecret(t *testing.T) {
	cfg := validConfig()
	cfg.SASL.Enabled = true
	cfg.SASL.Mechanism = SASLMechanismOAuthBearer
	cfg.SASL.OAuthBearer.TokenEndpoint = "http://127.0.0.1:1/token"
	cfg.SASL.OAuthBearer.ClientID = "klag"

	svc, err := NewService(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, svc)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "clientSecret")
}

func TestService_AdminIsMemoized(t *testing.T) {
	cfg := validConfig()
	// Nothing listens on this port, creating the handle must not dial.
	cfg.Brokers = []string{"127.0.0.1:1"}

	svc, err := NewService(cfg, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	first, err := svc.Admin()
	require.NoError(t, err)
	second, err := svc.Admin()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestService_AdminRevalidatesSASL(t *testing.T) {
	svc, err := NewService(validConfig(), zap.NewNop())
	require.NoError(t, err)

	// Config mutated after construction, e.g. by a library user.
	svc.cfg.SASL.Enabled = true
	svc.cfg.SASL.Mechanism = SASLMechanismOAuthBearer
	svc.cfg.SASL.OAuthBearer = OAuthBearerConfig{TokenEndpoint: "http://127.0.0.1:1/token", ClientID: "klag"}

	adm, err := svc.Admin()
	require.Error(t, err)
	assert.Nil(t, adm)
	assert.True(t, IsConfigurationError(err))
	assert.Nil(t, svc.client, "no client must be constructed")
}

func TestService_GSSAPIMissingKeytabFile(t *testing.T) {
	cfg := validConfig()
	cfg.SASL.Enabled = true
	cfg.SASL.Mechanism = SASLMechanismGSSAPI
	cfg.SASL.GSSAPI.ServiceName = "kafka"
	cfg.SASL.GSSAPI.Username = "klag"
	cfg.SASL.GSSAPI.Realm = "EXAMPLE.COM"
	cfg.SASL.GSSAPI.KeyTabPath = "/nonexistent/klag.keytab"
	cfg.SASL.GSSAPI.KerberosConfigPath = "/nonexistent/krb5.conf"

	svc, err := NewService(cfg, zap.NewNop())
	require.NoError(t, err)

	_, err = svc.Admin()
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
