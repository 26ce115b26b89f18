package kafka

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/kmsg"
	"github.com/twmb/franz-go/pkg/kversion"
	"go.uber.org/zap"
)

// Service provides the single administrative connection to the Kafka cluster of a check instance. The connection
// is created on first use and then reused for all subsequent passes.
//
// The handle is shared by all requests of a pass, which may run concurrently.
type Service struct {
	cfg    Config
	logger *zap.Logger
	opts   []kgo.Opt

	mu        sync.Mutex
	client    *kgo.Client
	admClient *kadm.Client
	tokens    *oauthTokenSource
}

// NewService validates the given config. No connection is opened until the first request is issued.
func NewService(cfg Config, logger *zap.Logger, opts ...kgo.Opt) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		cfg:    cfg,
		logger: logger,
		opts:   opts,
	}, nil
}

// Admin returns the administrative connection handle, constructing it on the first call. Construction re-validates
// the SASL sub fields for the configured mechanism and fails with a ConfigurationError before any network I/O
// happens.
func (s *Service) Admin() (*kadm.Client, error) {
	_, adm, err := s.connect()
	return adm, err
}

func (s *Service) connect() (*kgo.Client, *kadm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.admClient != nil {
		return s.client, s.admClient, nil
	}

	if err := s.cfg.SASL.Validate(); err != nil {
		return nil, nil, err
	}

	var tokens *oauthTokenSource
	if s.cfg.SASL.Enabled && s.cfg.SASL.Mechanism == SASLMechanismOAuthBearer {
		tokens = newOAuthTokenSource(s.cfg.SASL.OAuthBearer, s.cfg.RequestTimeout)
	}

	kgoOpts, err := NewKgoConfig(s.cfg, s.logger, newClientHooks(s.logger), tokens)
	if err != nil {
		if tokens != nil {
			tokens.Close()
		}
		return nil, nil, fmt.Errorf("failed to create a valid kafka client config: %w", err)
	}
	kgoOpts = append(kgoOpts, s.opts...)

	// kgo.NewClient only validates options, connections are opened lazily on the first request.
	client, err := kgo.NewClient(kgoOpts...)
	if err != nil {
		if tokens != nil {
			tokens.Close()
		}
		return nil, nil, NewConfigurationError("failed to create kafka client: %v", err)
	}

	s.client = client
	s.admClient = kadm.NewClient(client)
	s.tokens = tokens

	return s.client, s.admClient, nil
}

// Close releases the connection if it has been created.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.admClient != nil {
		s.admClient.Close()
		s.admClient = nil
		s.client = nil
	}
	if s.tokens != nil {
		s.tokens.Close()
		s.tokens = nil
	}
}

// TestConnection tries to fetch Broker metadata and prints some information if connection succeeds. An error will be
// returned if connecting fails.
func (s *Service) TestConnection(ctx context.Context) error {
	client, _, err := s.connect()
	if err != nil {
		return err
	}

	s.logger.Info("connecting to Kafka seed brokers, trying to fetch cluster metadata",
		zap.String("seed_brokers", strings.Join(s.cfg.Brokers, ",")))

	req := kmsg.NewMetadataRequest()
	req.Topics = nil
	res, err := req.RequestWith(ctx, client)
	if err != nil {
		return ConnectivityError{Message: "failed to request metadata", Err: err}
	}

	// Request versions in order to guess Kafka Cluster version
	versionsReq := kmsg.NewApiVersionsRequest()
	versionsRes, err := versionsReq.RequestWith(ctx, client)
	if err != nil {
		return ConnectivityError{Message: "failed to request api versions", Err: err}
	}
	err = kerr.ErrorForCode(versionsRes.ErrorCode)
	if err != nil {
		return fmt.Errorf("failed to request api versions. Inner kafka error: %w", err)
	}
	versions := kversion.FromApiVersionsResponse(versionsRes)

	s.logger.Info("successfully connected to kafka cluster",
		zap.Int("advertised_broker_count", len(res.Brokers)),
		zap.Int("topic_count", len(res.Topics)),
		zap.Int32("controller_id", res.ControllerID),
		zap.String("kafka_version", versions.VersionGuess()))

	return nil
}

func (s *Service) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.RequestTimeout)
}
