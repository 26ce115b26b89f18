package check

import (
	"sort"

	"github.com/twmb/franz-go/pkg/kadm"
	"go.uber.org/zap"
)

// internalTopics are reserved by the brokers and never monitored, regardless of configuration.
var internalTopics = map[string]struct{}{
	"__consumer_offsets":  {},
	"__transaction_state": {},
}

// TopicPartition identifies a partition of a topic.
type TopicPartition struct {
	Topic     string
	Partition int32
}

// Catalog is the set of topics and their partition ids known to the cluster at the time of a pass. A catalog is
// never modified after creation, every pass builds a new one.
type Catalog struct {
	partitionsByTopic map[string][]int32
	internal          map[string]struct{}
}

// NewCatalog creates a catalog from topic names and partition ids.
func NewCatalog(partitionsByTopic map[string][]int32) Catalog {
	catalog := Catalog{
		partitionsByTopic: make(map[string][]int32, len(partitionsByTopic)),
		internal:          make(map[string]struct{}),
	}
	for topic, partitions := range partitionsByTopic {
		ids := make([]int32, len(partitions))
		copy(ids, partitions)
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		catalog.partitionsByTopic[topic] = ids
	}
	return catalog
}

// catalogFromMetadata builds the catalog of a metadata response. Topics with an error are left out, as we can't tell
// which partitions they have. Topics the broker flags as internal are remembered as such.
func catalogFromMetadata(metadata kadm.Metadata, logger *zap.Logger) Catalog {
	partitionsByTopic := make(map[string][]int32, len(metadata.Topics))
	internal := make(map[string]struct{})
	for topicName, topic := range metadata.Topics {
		if topic.Err != nil {
			logger.Warn("failed to describe topic, topic will be skipped in this pass",
				zap.String("topic_name", topicName),
				zap.Error(topic.Err))
			continue
		}
		if topic.IsInternal {
			internal[topicName] = struct{}{}
		}
		partitionIDs := make([]int32, 0, len(topic.Partitions))
		for partitionID := range topic.Partitions {
			partitionIDs = append(partitionIDs, partitionID)
		}
		partitionsByTopic[topicName] = partitionIDs
	}

	catalog := NewCatalog(partitionsByTopic)
	catalog.internal = internal
	return catalog
}

// TopicNames returns all topic names in lexical order, including internal topics.
func (c Catalog) TopicNames() []string {
	names := make([]string, 0, len(c.partitionsByTopic))
	for name := range c.partitionsByTopic {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Partitions returns the sorted partition ids of a topic, nil if the topic is unknown.
func (c Catalog) Partitions(topic string) []int32 {
	partitions, ok := c.partitionsByTopic[topic]
	if !ok {
		return nil
	}
	ids := make([]int32, len(partitions))
	copy(ids, partitions)
	return ids
}

// Contains reports whether the partition is part of the catalog.
func (c Catalog) Contains(tp TopicPartition) bool {
	for _, id := range c.partitionsByTopic[tp.Topic] {
		if id == tp.Partition {
			return true
		}
	}
	return false
}

// IsInternal reports whether a topic is reserved by the brokers.
func (c Catalog) IsInternal(topic string) bool {
	if _, ok := internalTopics[topic]; ok {
		return true
	}
	_, ok := c.internal[topic]
	return ok
}

// PartitionCount returns the number of partitions across all topics.
func (c Catalog) PartitionCount() int {
	count := 0
	for _, partitions := range c.partitionsByTopic {
		count += len(partitions)
	}
	return count
}
