package kafka

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kmsg"
)

// Metadata fetches the topic and broker metadata of the whole cluster. Any failure is reported as
// ConnectivityError, because without metadata no pass can be reconciled.
func (s *Service) Metadata(ctx context.Context) (kadm.Metadata, error) {
	adm, err := s.Admin()
	if err != nil {
		return kadm.Metadata{}, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	metadata, err := adm.Metadata(ctx)
	if err != nil {
		return kadm.Metadata{}, ConnectivityError{Message: "failed to fetch cluster metadata", Err: err}
	}
	return metadata, nil
}

// ListBrokers enumerates the brokers of the cluster. An unreachable cluster or an empty broker list are both
// reported as ConnectivityError.
func (s *Service) ListBrokers(ctx context.Context) (kadm.BrokerDetails, error) {
	adm, err := s.Admin()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	brokers, err := adm.ListBrokers(ctx)
	if err != nil {
		return nil, ConnectivityError{Message: "failed to list brokers", Err: err}
	}
	if len(brokers) == 0 {
		return nil, ConnectivityError{Message: "cluster did not report any brokers"}
	}
	return brokers, nil
}

// ListGroups lists all consumer groups of the cluster. If only some brokers failed to respond the returned groups
// are still valid and the error is a *kadm.ShardErrors.
func (s *Service) ListGroups(ctx context.Context) (kadm.ListedGroups, error) {
	adm, err := s.Admin()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	return adm.ListGroups(ctx)
}

// FetchGroupOffsets requests the committed offsets of a single group for exactly the given partitions in one
// batched request. A nil map requests all committed offsets of the group. Partition level error codes are returned
// in the Err field of each response entry, partitions without a commit have an offset of -1.
func (s *Service) FetchGroupOffsets(ctx context.Context, group string, partitionsByTopic map[string][]int32) (kadm.OffsetResponses, error) {
	client, _, err := s.connect()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	req := kmsg.NewPtrOffsetFetchRequest()
	req.Group = group
	topicNames := make([]string, 0, len(partitionsByTopic))
	for topic := range partitionsByTopic {
		topicNames = append(topicNames, topic)
	}
	sort.Strings(topicNames)
	for _, topic := range topicNames {
		reqTopic := kmsg.NewOffsetFetchRequestTopic()
		reqTopic.Topic = topic
		reqTopic.Partitions = partitionsByTopic[topic]
		req.Topics = append(req.Topics, reqTopic)
	}

	res, err := req.RequestWith(ctx, client)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to request group offsets for group '%v'", group)
	}
	if err := kerr.ErrorForCode(res.ErrorCode); err != nil {
		return nil, errors.Wrapf(err, "failed to request group offsets for group '%v', inner kafka error", group)
	}

	offsets := make(kadm.OffsetResponses)
	for _, topic := range res.Topics {
		partitions := make(map[int32]kadm.OffsetResponse, len(topic.Partitions))
		for _, partition := range topic.Partitions {
			partitions[partition.Partition] = kadm.OffsetResponse{
				Offset: kadm.Offset{
					Topic:       topic.Topic,
					Partition:   partition.Partition,
					At:          partition.Offset,
					LeaderEpoch: partition.LeaderEpoch,
				},
				Err: kerr.ErrorForCode(partition.ErrorCode),
			}
		}
		offsets[topic.Topic] = partitions
	}
	return offsets, nil
}

// ListEndOffsets lists the high water marks of all partitions of the given topics. The result may be partial; in that
// case the error is a *kadm.ShardErrors. Use ListPartitionEndOffsets if only some partitions are of interest.
func (s *Service) ListEndOffsets(ctx context.Context, topics ...string) (kadm.ListedOffsets, error) {
	adm, err := s.Admin()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	return adm.ListEndOffsets(ctx, topics...)
}

// ListPartitionEndOffsets lists the high water marks of exactly the given partitions. The request is split by
// partition leader; if only some leaders failed to respond the result is still valid for the others and the error
// is a *kadm.ShardErrors.
func (s *Service) ListPartitionEndOffsets(ctx context.Context, partitionsByTopic map[string][]int32) (kadm.ListedOffsets, error) {
	client, _, err := s.connect()
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	req := kmsg.NewPtrListOffsetsRequest()
	req.ReplicaID = -1
	topicNames := make([]string, 0, len(partitionsByTopic))
	for topic := range partitionsByTopic {
		topicNames = append(topicNames, topic)
	}
	sort.Strings(topicNames)
	for _, topic := range topicNames {
		reqTopic := kmsg.NewListOffsetsRequestTopic()
		reqTopic.Topic = topic
		for _, partition := range partitionsByTopic[topic] {
			reqPartition := kmsg.NewListOffsetsRequestTopicPartition()
			reqPartition.Partition = partition
			reqPartition.CurrentLeaderEpoch = -1
			reqPartition.Timestamp = -1 // -1 = latest offset
			reqTopic.Partitions = append(reqTopic.Partitions, reqPartition)
		}
		req.Topics = append(req.Topics, reqTopic)
	}

	shards := client.RequestSharded(ctx, req)
	listed := make(kadm.ListedOffsets)
	var shardErrs []kadm.ShardError
	for _, shard := range shards {
		if shard.Err != nil {
			shardErrs = append(shardErrs, kadm.ShardError{Req: shard.Req, Broker: shard.Meta, Err: shard.Err})
			continue
		}
		res, ok := shard.Resp.(*kmsg.ListOffsetsResponse)
		if !ok {
			continue
		}
		for _, topic := range res.Topics {
			if _, exists := listed[topic.Topic]; !exists {
				listed[topic.Topic] = make(map[int32]kadm.ListedOffset, len(topic.Partitions))
			}
			for _, partition := range topic.Partitions {
				listed[topic.Topic][partition.Partition] = kadm.ListedOffset{
					Topic:       topic.Topic,
					Partition:   partition.Partition,
					Timestamp:   partition.Timestamp,
					Offset:      partition.Offset,
					LeaderEpoch: partition.LeaderEpoch,
					Err:         kerr.ErrorForCode(partition.ErrorCode),
				}
			}
		}
	}

	if len(shardErrs) > 0 {
		return listed, &kadm.ShardErrors{
			Name:      "ListOffsets",
			AllFailed: len(shardErrs) == len(shards),
			Errs:      shardErrs,
		}
	}
	return listed, nil
}
