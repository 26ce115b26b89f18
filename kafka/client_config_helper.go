package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jcmturner/gokrb5/v8/client"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/kerberos"
	"github.com/twmb/franz-go/pkg/sasl/oauth"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"
	"go.uber.org/zap"

	krbconfig "github.com/jcmturner/gokrb5/v8/config"
)

// NewKgoConfig creates the options for the franz-go client. It only reads local files (certificates, keytab,
// kerberos config) and never talks to the cluster. tokens is required if the OAUTHBEARER mechanism is configured.
func NewKgoConfig(cfg Config, logger *zap.Logger, hooks kgo.Hook, tokens *oauthTokenSource) ([]kgo.Opt, error) {
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DialTimeout(cfg.RequestTimeout),
		kgo.RetryTimeout(cfg.RequestTimeout),
		// Allow metadata to be refreshed more often than 5s (default) if needed.
		kgo.MetadataMinAge(time.Second),
		kgo.WithLogger(newKgoZapLogger(logger)),
	}

	if hooks != nil {
		opts = append(opts, kgo.WithHooks(hooks))
	}

	// Add Rack Awareness if configured
	if cfg.RackID != "" {
		opts = append(opts, kgo.Rack(cfg.RackID))
	}

	if cfg.SASL.Enabled {
		mechanism, err := newSASLMechanism(cfg.SASL, tokens)
		if err != nil {
			return nil, err
		}
		opts = append(opts, kgo.SASL(mechanism))
	}

	if cfg.TLS.Enabled {
		tlsCfg, err := newTLSConfig(cfg.TLS, logger)
		if err != nil {
			return nil, err
		}
		tlsDialer := &tls.Dialer{
			NetDialer: &net.Dialer{Timeout: cfg.RequestTimeout},
			Config:    tlsCfg,
		}
		opts = append(opts, kgo.Dialer(tlsDialer.DialContext))
	}

	return opts, nil
}

func newSASLMechanism(cfg SASLConfig, tokens *oauthTokenSource) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case SASLMechanismPlain:
		return plain.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}.AsMechanism(), nil

	case SASLMechanismScramSHA256, SASLMechanismScramSHA512:
		scramAuth := scram.Auth{
			User: cfg.Username,
			Pass: cfg.Password,
		}
		if cfg.Mechanism == SASLMechanismScramSHA256 {
			return scramAuth.AsSha256Mechanism(), nil
		}
		return scramAuth.AsSha512Mechanism(), nil

	case SASLMechanismGSSAPI:
		kerbCfg, err := krbconfig.Load(cfg.GSSAPI.KerberosConfigPath)
		if err != nil {
			return nil, NewConfigurationError("failed to create kerberos config from specified config filepath: %v", err)
		}
		ktb, err := keytab.Load(cfg.GSSAPI.KeyTabPath)
		if err != nil {
			return nil, NewConfigurationError("failed to load keytab: %v", err)
		}
		krbClient := client.NewWithKeytab(
			cfg.GSSAPI.Username,
			cfg.GSSAPI.Realm,
			ktb,
			kerbCfg,
			client.DisablePAFXFAST(!cfg.GSSAPI.EnableFast))
		return kerberos.Auth{
			Client:           krbClient,
			Service:          cfg.GSSAPI.ServiceName,
			PersistAfterAuth: true,
		}.AsMechanism(), nil

	case SASLMechanismOAuthBearer:
		if tokens == nil {
			return nil, NewConfigurationError("no token source available for OAUTHBEARER")
		}
		return oauth.Oauth(func(ctx context.Context) (oauth.Auth, error) {
			token, err := tokens.Token(ctx)
			return oauth.Auth{
				Zid:   cfg.OAuthBearer.ClientID,
				Token: token,
			}, err
		}), nil
	}

	return nil, NewConfigurationError("given sasl mechanism '%v' is invalid", cfg.Mechanism)
}

func newTLSConfig(cfg TLSConfig, logger *zap.Logger) (*tls.Config, error) {
	// Root CA
	var caCertPool *x509.CertPool
	if cfg.CaFilepath != "" || len(cfg.Ca) > 0 {
		ca := []byte(cfg.Ca)
		if cfg.CaFilepath != "" {
			caBytes, err := os.ReadFile(cfg.CaFilepath)
			if err != nil {
				return nil, NewConfigurationError("failed to load ca cert: %v", err)
			}
			ca = caBytes
		}
		caCertPool = x509.NewCertPool()
		isSuccessful := caCertPool.AppendCertsFromPEM(ca)
		if !isSuccessful {
			logger.Warn("failed to append ca file to cert pool, is this a valid PEM format?")
		}
	}

	// If configured load TLS cert & key - Mutual TLS
	var certificates []tls.Certificate
	hasCertFile := cfg.CertFilepath != "" || len(cfg.Cert) > 0
	hasKeyFile := cfg.KeyFilepath != "" || len(cfg.Key) > 0
	if hasCertFile || hasKeyFile {
		cert := []byte(cfg.Cert)
		privateKey := []byte(cfg.Key)
		if cfg.CertFilepath != "" {
			certBytes, err := os.ReadFile(cfg.CertFilepath)
			if err != nil {
				return nil, NewConfigurationError("failed to read TLS certificate: %v", err)
			}
			cert = certBytes
		}
		if cfg.KeyFilepath != "" {
			keyBytes, err := os.ReadFile(cfg.KeyFilepath)
			if err != nil {
				return nil, NewConfigurationError("failed to read TLS key: %v", err)
			}
			privateKey = keyBytes
		}

		if cfg.Passphrase != "" {
			var err error
			privateKey, err = decryptPrivateKey(privateKey, cfg.Passphrase, logger)
			if err != nil {
				return nil, NewConfigurationError("failed to decrypt private key: %v", err)
			}
		}

		tlsCert, err := tls.X509KeyPair(cert, privateKey)
		if err != nil {
			return nil, NewConfigurationError("cannot parse pem: %v", err)
		}
		certificates = []tls.Certificate{tlsCert}
	}

	return &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipTLSVerify,
		Certificates:       certificates,
		RootCAs:            caCertPool,
	}, nil
}

// decryptPrivateKey decrypts an encrypted PEM-encoded private key. Unencrypted keys are returned as-is.
func decryptPrivateKey(keyPEM []byte, passphrase string, logger *zap.Logger) ([]byte, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block containing private key")
	}

	if !x509.IsEncryptedPEMBlock(block) { //nolint:staticcheck // Supporting legacy keys
		return keyPEM, nil
	}

	logger.Warn("using legacy PEM encryption for private key, please migrate to PKCS#8 encrypted keys")
	decrypted, err := x509.DecryptPEMBlock(block, []byte(passphrase)) //nolint:staticcheck // Supporting legacy keys
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt legacy PEM private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: decrypted}), nil
}
