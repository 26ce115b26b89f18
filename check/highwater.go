package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/kafka"
)

var errEndOffsetNotListed = errors.New("partition is missing in the end offsets response")

// FetchHighWaterMarks lists the high water marks of all partitions with a committed offset, or of every monitored
// partition of the catalog if MonitorAllBrokerHighwatermarks is enabled. The pass fails with a ConnectivityError if
// the brokers can't be enumerated. Partitions whose high water mark couldn't be listed are logged and omitted.
func (c *Check) FetchHighWaterMarks(ctx context.Context, catalog Catalog, offsets OffsetRecords) (HighWaterMarks, []kafka.PartialFetchError, error) {
	return c.fetchHighWaterMarks(ctx, c.logger, catalog, offsets)
}

func (c *Check) fetchHighWaterMarks(ctx context.Context, logger *zap.Logger, catalog Catalog, offsets OffsetRecords) (HighWaterMarks, []kafka.PartialFetchError, error) {
	brokers, err := c.cluster.ListBrokers(ctx)
	if err != nil {
		if kafka.IsConfigurationError(err) || kafka.IsConnectivityError(err) {
			return nil, nil, err
		}
		return nil, nil, kafka.ConnectivityError{Message: "failed to enumerate brokers", Err: err}
	}
	if len(brokers) == 0 {
		return nil, nil, kafka.ConnectivityError{Message: "cluster did not report any brokers"}
	}

	required := c.highWaterMarkPartitions(catalog, offsets)
	highWaterMarks := make(HighWaterMarks, len(required))
	if len(required) == 0 {
		return highWaterMarks, nil, nil
	}

	listedOffsets, listErr := c.listEndOffsets(ctx, required)
	if listErr != nil {
		var se *kadm.ShardErrors
		if errors.As(listErr, &se) && !se.AllFailed {
			logger.Info("failed to list end offsets from some shards", zap.Int("failed_shards", len(se.Errs)))
			for _, shardErr := range se.Errs {
				logger.Warn("shard error for listing end offsets",
					zap.Int32("broker_id", shardErr.Broker.NodeID),
					zap.Error(shardErr.Err))
			}
		} else {
			logger.Warn("failed to list end offsets, no high water marks are available in this pass", zap.Error(listErr))
		}
	}

	// Aggregate partition errors in few log messages. Logging one message per partition error is too much, typical
	// errors are LEADER_NOT_AVAILABLE etc.
	errorCountByErrCode := make(map[string]int)
	errorCountByTopic := make(map[string]int)

	var partialErrs []kafka.PartialFetchError
	for _, tp := range required {
		listed, exists := listedOffsets[tp.Topic][tp.Partition]
		if !exists {
			err := errEndOffsetNotListed
			if listErr != nil {
				err = fmt.Errorf("%v: %w", errEndOffsetNotListed, listErr)
			}
			partialErrs = append(partialErrs, kafka.PartialFetchError{Topic: tp.Topic, Partition: tp.Partition, Err: err})
			errorCountByErrCode[errEndOffsetNotListed.Error()]++
			errorCountByTopic[tp.Topic]++
			continue
		}
		if listed.Err != nil {
			partialErrs = append(partialErrs, kafka.PartialFetchError{Topic: tp.Topic, Partition: tp.Partition, Err: listed.Err})
			errorCountByErrCode[listed.Err.Error()]++
			errorCountByTopic[tp.Topic]++
			continue
		}
		highWaterMarks[tp] = listed.Offset
	}

	for errMessage, count := range errorCountByErrCode {
		logger.Warn("failed to list some partition high water marks",
			zap.String("error", errMessage),
			zap.Int("error_count", count))
	}
	if len(errorCountByTopic) > 0 {
		logger.Warn("some topics had one or more partitions whose high water marks could not be fetched from Kafka",
			zap.Int("topics_with_errors", len(errorCountByTopic)))
	}

	return highWaterMarks, partialErrs, nil
}

// listEndOffsets requests whole topics when every partition of the catalog is monitored, and exactly the required
// partitions otherwise.
func (c *Check) listEndOffsets(ctx context.Context, required []TopicPartition) (kadm.ListedOffsets, error) {
	if !c.cfg.MonitorAllBrokerHighwatermarks {
		return c.cluster.ListPartitionEndOffsets(ctx, partitionsByTopic(required))
	}

	topics := make([]string, 0)
	seenTopics := make(map[string]struct{})
	for _, tp := range required {
		if _, exists := seenTopics[tp.Topic]; exists {
			continue
		}
		seenTopics[tp.Topic] = struct{}{}
		topics = append(topics, tp.Topic)
	}
	return c.cluster.ListEndOffsets(ctx, topics...)
}

// highWaterMarkPartitions returns the partitions that need a high water mark in this pass.
func (c *Check) highWaterMarkPartitions(catalog Catalog, offsets OffsetRecords) []TopicPartition {
	if !c.cfg.MonitorAllBrokerHighwatermarks {
		return offsets.TopicPartitions()
	}

	var tps []TopicPartition
	for _, topic := range catalog.TopicNames() {
		if catalog.IsInternal(topic) || !c.topicFilter.IsAllowed(topic) {
			continue
		}
		for _, partition := range catalog.Partitions(topic) {
			tps = append(tps, TopicPartition{Topic: topic, Partition: partition})
		}
	}
	return tps
}
