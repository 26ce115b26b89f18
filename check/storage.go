package check

import (
	"fmt"
	"sort"

	cmap "github.com/orcaman/concurrent-map"
)

// GroupTopicPartition identifies the committed offset of a consumer group on a single partition.
type GroupTopicPartition struct {
	Group     string
	Topic     string
	Partition int32
}

// OffsetRecords maps each consumer group partition to its committed offset.
type OffsetRecords map[GroupTopicPartition]int64

// Keys returns all record keys ordered by group, topic and partition.
func (r OffsetRecords) Keys() []GroupTopicPartition {
	keys := make([]GroupTopicPartition, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Group != keys[j].Group {
			return keys[i].Group < keys[j].Group
		}
		if keys[i].Topic != keys[j].Topic {
			return keys[i].Topic < keys[j].Topic
		}
		return keys[i].Partition < keys[j].Partition
	})
	return keys
}

// TopicPartitions returns the distinct partitions that have at least one committed offset, ordered by topic and
// partition.
func (r OffsetRecords) TopicPartitions() []TopicPartition {
	seen := make(map[TopicPartition]struct{})
	for key := range r {
		seen[TopicPartition{Topic: key.Topic, Partition: key.Partition}] = struct{}{}
	}
	tps := make([]TopicPartition, 0, len(seen))
	for tp := range seen {
		tps = append(tps, tp)
	}
	sortTopicPartitions(tps)
	return tps
}

// HighWaterMarks maps each partition to its high water mark.
type HighWaterMarks map[TopicPartition]int64

func sortTopicPartitions(tps []TopicPartition) {
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})
}

// offsetStore accumulates the committed offsets of all groups while their responses arrive concurrently. Every pass
// uses a new store.
type offsetStore struct {
	// offsets uses a unique key in the format "group:topic:partition", the value is of type offsetRecord
	offsets cmap.ConcurrentMap
}

type offsetRecord struct {
	Key    GroupTopicPartition
	Offset int64
}

func newOffsetStore() *offsetStore {
	return &offsetStore{offsets: cmap.New()}
}

func (s *offsetStore) add(key GroupTopicPartition, offset int64) {
	s.offsets.Set(encodeOffsetKey(key), offsetRecord{Key: key, Offset: offset})
}

func (s *offsetStore) records() OffsetRecords {
	items := s.offsets.Items()
	records := make(OffsetRecords, len(items))
	for _, item := range items {
		record := item.(offsetRecord)
		records[record.Key] = record.Offset
	}
	return records
}

func encodeOffsetKey(key GroupTopicPartition) string {
	return fmt.Sprintf("%v:%v:%v", key.Group, key.Topic, key.Partition)
}
