package check

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/kafka"
)

// Cluster is the part of the broker API a check pass needs. It is implemented by *kafka.Service.
type Cluster interface {
	Metadata(ctx context.Context) (kadm.Metadata, error)
	ListBrokers(ctx context.Context) (kadm.BrokerDetails, error)
	ListGroups(ctx context.Context) (kadm.ListedGroups, error)
	FetchGroupOffsets(ctx context.Context, group string, partitionsByTopic map[string][]int32) (kadm.OffsetResponses, error)
	ListEndOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error)
	ListPartitionEndOffsets(ctx context.Context, partitionsByTopic map[string][]int32) (kadm.ListedOffsets, error)
}

// Check reconciles committed consumer group offsets with the high water marks of the partitions they consume.
//
// Passes must not overlap: Run must not be called again before the previous call returned.
type Check struct {
	cfg     Config
	logger  *zap.Logger
	cluster Cluster

	scope       ConsumerGroupScope
	groupFilter nameFilter
	topicFilter nameFilter
}

// New validates the config and creates a check that runs its passes against the given cluster.
func New(cfg Config, logger *zap.Logger, cluster Cluster) (*Check, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	// Compile regexes. We can ignore the errors because valid compilation has been validated already
	groupFilter, _ := newNameFilter(cfg.AllowedGroupIDs, cfg.IgnoredGroupIDs)
	topicFilter, _ := newNameFilter(nil, cfg.IgnoredTopics)

	return &Check{
		cfg:         cfg,
		logger:      logger.Named("check"),
		cluster:     cluster,
		scope:       cfg.Scope(),
		groupFilter: groupFilter,
		topicFilter: topicFilter,
	}, nil
}

// Result is the reconciled data of a single pass.
type Result struct {
	PassID string

	Catalog         Catalog
	Groups          []string
	ConsumerOffsets OffsetRecords
	HighWaterMarks  HighWaterMarks

	// PartialErrors are the failures of single groups or partitions whose data is missing in this result.
	PartialErrors []kafka.PartialFetchError
}

// PartitionLag is the lag of a consumer group on a single partition.
type PartitionLag struct {
	Group          string
	Topic          string
	Partition      int32
	ConsumerOffset int64
	HighWaterMark  int64
	Lag            int64
}

// Lags returns the lag of each group partition that has both a committed offset and a high water mark, ordered by
// group, topic and partition. Negative lags, caused by fetching the high water mark before the group committed, are
// reported as zero.
func (r *Result) Lags() []PartitionLag {
	lags := make([]PartitionLag, 0, len(r.ConsumerOffsets))
	for _, key := range r.ConsumerOffsets.Keys() {
		hwm, exists := r.HighWaterMarks[TopicPartition{Topic: key.Topic, Partition: key.Partition}]
		if !exists {
			continue
		}
		offset := r.ConsumerOffsets[key]
		lag := hwm - offset
		if lag < 0 {
			lag = 0
		}
		lags = append(lags, PartitionLag{
			Group:          key.Group,
			Topic:          key.Topic,
			Partition:      key.Partition,
			ConsumerOffset: offset,
			HighWaterMark:  hwm,
			Lag:            lag,
		})
	}
	return lags
}

// Run executes a single reconciliation pass. Only configuration errors and an unreachable cluster fail the pass, in
// which case no partial data is returned. Failures of single groups or partitions are logged and returned as part
// of the result.
func (c *Check) Run(ctx context.Context) (*Result, error) {
	passID := uuid.NewString()
	logger := c.logger.With(zap.String("pass_id", passID))
	logger.Debug("starting consumer offset reconciliation pass")

	catalog, err := c.fetchCatalog(ctx, logger)
	if err != nil {
		logger.Error("failed to fetch topic catalog", zap.Error(err))
		return nil, err
	}

	groups, groupErrs, err := c.resolveGroups(ctx, logger)
	if err != nil {
		logger.Error("failed to resolve consumer groups", zap.Error(err))
		return nil, err
	}

	offsets, offsetErrs := c.fetchConsumerOffsets(ctx, logger, catalog, groups)

	highWaterMarks, highWaterMarkErrs, err := c.fetchHighWaterMarks(ctx, logger, catalog, offsets)
	if err != nil {
		logger.Error("failed to fetch high water marks", zap.Error(err))
		return nil, err
	}

	partialErrs := make([]kafka.PartialFetchError, 0, len(groupErrs)+len(offsetErrs)+len(highWaterMarkErrs))
	partialErrs = append(partialErrs, groupErrs...)
	partialErrs = append(partialErrs, offsetErrs...)
	partialErrs = append(partialErrs, highWaterMarkErrs...)

	logger.Debug("finished consumer offset reconciliation pass",
		zap.Int("consumer_group_count", len(groups)),
		zap.Int("consumer_offset_count", len(offsets)),
		zap.Int("high_water_mark_count", len(highWaterMarks)),
		zap.Int("partial_error_count", len(partialErrs)))

	return &Result{
		PassID:          passID,
		Catalog:         catalog,
		Groups:          groups,
		ConsumerOffsets: offsets,
		HighWaterMarks:  highWaterMarks,
		PartialErrors:   partialErrs,
	}, nil
}

// FetchCatalog returns the current topic catalog of the cluster.
func (c *Check) FetchCatalog(ctx context.Context) (Catalog, error) {
	return c.fetchCatalog(ctx, c.logger)
}

func (c *Check) fetchCatalog(ctx context.Context, logger *zap.Logger) (Catalog, error) {
	metadata, err := c.cluster.Metadata(ctx)
	if err != nil {
		if kafka.IsConfigurationError(err) || kafka.IsConnectivityError(err) {
			return Catalog{}, err
		}
		return Catalog{}, kafka.ConnectivityError{Message: "failed to fetch topic catalog", Err: err}
	}
	return catalogFromMetadata(metadata, logger), nil
}

// PartitionsForTopic returns the partition ids of a single topic or nil if they couldn't be fetched.
func (c *Check) PartitionsForTopic(ctx context.Context, topic string) []int32 {
	catalog, err := c.fetchCatalog(ctx, c.logger)
	if err != nil {
		c.logger.Error("failed to fetch partitions for topic", zap.String("topic_name", topic), zap.Error(err))
		return nil
	}
	return catalog.Partitions(topic)
}

// scopePartitions applies ScopePartitions and the configured topic ignore list.
func (c *Check) scopePartitions(catalog Catalog, group string) []TopicPartition {
	scoped := ScopePartitions(catalog, c.scope, group)
	filtered := scoped[:0]
	for _, tp := range scoped {
		if !c.topicFilter.IsAllowed(tp.Topic) {
			continue
		}
		filtered = append(filtered, tp)
	}
	return filtered
}

func (c *Check) String() string {
	if c.scope.IsUnrestricted() {
		return "consumer offsets check (all consumer groups)"
	}
	return fmt.Sprintf("consumer offsets check (%d consumer groups)", len(c.scope.GroupNames()))
}
