package check

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cloudhut/klag/kafka"
)

// FetchConsumerOffsets requests the committed offsets of every group with one batched request per group and collects
// the responses as they arrive. A failed group request omits all offsets of that group, a partition level error
// omits only that partition. Partitions on which a group has never committed are not part of the result.
func (c *Check) FetchConsumerOffsets(ctx context.Context, catalog Catalog, groups []string) (OffsetRecords, []kafka.PartialFetchError) {
	return c.fetchConsumerOffsets(ctx, c.logger, catalog, groups)
}

func (c *Check) fetchConsumerOffsets(ctx context.Context, logger *zap.Logger, catalog Catalog, groups []string) (OffsetRecords, []kafka.PartialFetchError) {
	store := newOffsetStore()

	mutex := sync.Mutex{}
	var partialErrs []kafka.PartialFetchError
	addErr := func(err kafka.PartialFetchError) {
		mutex.Lock()
		partialErrs = append(partialErrs, err)
		mutex.Unlock()
	}

	eg := errgroup.Group{}
	eg.SetLimit(c.cfg.OffsetFetchConcurrency)

	f := func(group string) func() error {
		return func() error {
			scoped := c.scopePartitions(catalog, group)
			if len(scoped) == 0 {
				logger.Debug("consumer group has no partitions in scope, skipping offset request",
					zap.String("group_id", group))
				return nil
			}

			// Groups without topic restriction request all their committed offsets, which is much smaller than
			// asking for every partition of the cluster.
			var requested map[string][]int32
			if topics, _ := c.scope.Topics(group); !c.scope.IsUnrestricted() && len(topics) > 0 {
				requested = partitionsByTopic(scoped)
			}

			offsets, err := c.cluster.FetchGroupOffsets(ctx, group, requested)
			if err != nil {
				logger.Warn("failed to fetch consumer group offsets, group will be skipped in this pass",
					zap.String("group_id", group),
					zap.Error(err))
				addErr(kafka.PartialFetchError{Group: group, Err: err})
				return nil
			}

			inScope := make(map[TopicPartition]struct{}, len(scoped))
			for _, tp := range scoped {
				inScope[tp] = struct{}{}
			}

			for topic, partitions := range offsets {
				for partitionID, offset := range partitions {
					if _, ok := inScope[TopicPartition{Topic: topic, Partition: partitionID}]; !ok {
						continue
					}
					if offset.Err != nil {
						logger.Warn("failed to fetch consumer group offset for partition",
							zap.String("group_id", group),
							zap.String("topic_name", topic),
							zap.Int32("partition_id", partitionID),
							zap.Error(offset.Err))
						addErr(kafka.PartialFetchError{Group: group, Topic: topic, Partition: partitionID, Err: offset.Err})
						continue
					}
					if offset.At < 0 {
						// No committed offset for this partition
						continue
					}
					store.add(GroupTopicPartition{Group: group, Topic: topic, Partition: partitionID}, offset.At)
				}
			}
			return nil
		}
	}

	for _, group := range groups {
		eg.Go(f(group))
	}
	_ = eg.Wait()

	return store.records(), partialErrs
}
