package check

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
)

// fakeCluster is an in memory Cluster. Committed offsets are keyed by group, topic and partition.
type fakeCluster struct {
	mu sync.Mutex

	partitionsByTopic map[string][]int32
	internalTopics    []string
	metadataErr       error

	brokers       kadm.BrokerDetails
	listBrokerErr error

	groups       []string
	listGroupErr error

	committed          map[string]map[string]map[int32]int64
	groupErrs          map[string]error
	partitionErrs      map[GroupTopicPartition]error
	offsetRequests     map[string]map[string][]int32
	offsetRequestCount int

	highWaterMarks     map[TopicPartition]int64
	endOffsetErrs      map[TopicPartition]error
	listEndOffsetsErr  error
	endOffsetRequests  [][]string
	listBrokersCalls   int
	listGroupsRequests int

	partitionEndOffsetRequests []map[string][]int32
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		partitionsByTopic: map[string][]int32{
			"t1": {0, 1, 2},
			"t2": {0, 1, 2},
		},
		brokers:        kadm.BrokerDetails{{NodeID: 1, Host: "localhost", Port: 9092}},
		committed:      make(map[string]map[string]map[int32]int64),
		groupErrs:      make(map[string]error),
		partitionErrs:  make(map[GroupTopicPartition]error),
		offsetRequests: make(map[string]map[string][]int32),
		highWaterMarks: make(map[TopicPartition]int64),
		endOffsetErrs:  make(map[TopicPartition]error),
	}
}

func (f *fakeCluster) commit(group string, topic string, partition int32, offset int64) {
	if _, exists := f.committed[group]; !exists {
		f.committed[group] = make(map[string]map[int32]int64)
	}
	if _, exists := f.committed[group][topic]; !exists {
		f.committed[group][topic] = make(map[int32]int64)
	}
	f.committed[group][topic][partition] = offset
}

func (f *fakeCluster) Metadata(_ context.Context) (kadm.Metadata, error) {
	if f.metadataErr != nil {
		return kadm.Metadata{}, f.metadataErr
	}

	internal := make(map[string]struct{})
	for _, topic := range f.internalTopics {
		internal[topic] = struct{}{}
	}

	topics := make(kadm.TopicDetails)
	for topic, partitionIDs := range f.partitionsByTopic {
		partitions := make(kadm.PartitionDetails)
		for _, id := range partitionIDs {
			partitions[id] = kadm.PartitionDetail{Topic: topic, Partition: id, Leader: 1}
		}
		_, isInternal := internal[topic]
		topics[topic] = kadm.TopicDetail{Topic: topic, IsInternal: isInternal, Partitions: partitions}
	}
	return kadm.Metadata{Brokers: f.brokers, Topics: topics}, nil
}

func (f *fakeCluster) ListBrokers(_ context.Context) (kadm.BrokerDetails, error) {
	f.mu.Lock()
	f.listBrokersCalls++
	f.mu.Unlock()
	return f.brokers, f.listBrokerErr
}

func (f *fakeCluster) ListGroups(_ context.Context) (kadm.ListedGroups, error) {
	f.mu.Lock()
	f.listGroupsRequests++
	f.mu.Unlock()

	groups := make(kadm.ListedGroups)
	for _, group := range f.groups {
		groups[group] = kadm.ListedGroup{Coordinator: 1, Group: group, ProtocolType: "consumer", State: "Stable"}
	}
	return groups, f.listGroupErr
}

func (f *fakeCluster) FetchGroupOffsets(_ context.Context, group string, partitionsByTopic map[string][]int32) (kadm.OffsetResponses, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsetRequestCount++
	f.offsetRequests[group] = partitionsByTopic

	if err := f.groupErrs[group]; err != nil {
		return nil, err
	}

	responses := make(kadm.OffsetResponses)
	add := func(topic string, partition int32, offset int64) {
		if _, exists := responses[topic]; !exists {
			responses[topic] = make(map[int32]kadm.OffsetResponse)
		}
		responses[topic][partition] = kadm.OffsetResponse{
			Offset: kadm.Offset{Topic: topic, Partition: partition, At: offset, LeaderEpoch: -1},
			Err:    f.partitionErrs[GroupTopicPartition{Group: group, Topic: topic, Partition: partition}],
		}
	}

	if partitionsByTopic == nil {
		for topic, partitions := range f.committed[group] {
			for partition, offset := range partitions {
				add(topic, partition, offset)
			}
		}
		return responses, nil
	}

	for topic, partitions := range partitionsByTopic {
		for _, partition := range partitions {
			offset, exists := f.committed[group][topic][partition]
			if !exists {
				offset = -1
			}
			add(topic, partition, offset)
		}
	}
	return responses, nil
}

func (f *fakeCluster) ListEndOffsets(_ context.Context, topics ...string) (kadm.ListedOffsets, error) {
	f.mu.Lock()
	requested := make([]string, len(topics))
	copy(requested, topics)
	sort.Strings(requested)
	f.endOffsetRequests = append(f.endOffsetRequests, requested)
	f.mu.Unlock()

	partitionsByTopic := make(map[string][]int32, len(topics))
	for _, topic := range topics {
		partitionsByTopic[topic] = f.partitionsByTopic[topic]
	}
	return f.listEndOffsets(partitionsByTopic)
}

func (f *fakeCluster) ListPartitionEndOffsets(_ context.Context, partitionsByTopic map[string][]int32) (kadm.ListedOffsets, error) {
	f.mu.Lock()
	f.partitionEndOffsetRequests = append(f.partitionEndOffsetRequests, partitionsByTopic)
	f.mu.Unlock()

	return f.listEndOffsets(partitionsByTopic)
}

func (f *fakeCluster) listEndOffsets(partitionsByTopic map[string][]int32) (kadm.ListedOffsets, error) {
	if f.listEndOffsetsErr != nil {
		var se *kadm.ShardErrors
		if !errors.As(f.listEndOffsetsErr, &se) || se.AllFailed {
			return nil, f.listEndOffsetsErr
		}
	}

	listed := make(kadm.ListedOffsets)
	for topic, partitions := range partitionsByTopic {
		listed[topic] = make(map[int32]kadm.ListedOffset)
		for _, partition := range partitions {
			tp := TopicPartition{Topic: topic, Partition: partition}
			hwm, exists := f.highWaterMarks[tp]
			if !exists && f.endOffsetErrs[tp] == nil {
				continue
			}
			listed[topic][partition] = kadm.ListedOffset{
				Topic:       topic,
				Partition:   partition,
				Offset:      hwm,
				LeaderEpoch: -1,
				Err:         f.endOffsetErrs[tp],
			}
		}
	}
	return listed, f.listEndOffsetsErr
}

var errLeaderNotAvailable = kerr.LeaderNotAvailable
