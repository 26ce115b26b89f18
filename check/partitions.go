package check

// ScopePartitions returns the topic partitions of the catalog that may be monitored for a consumer group. Internal
// topics are never part of the result. A partition is in scope if
//   - the scope is unrestricted, or
//   - the group has no topic restriction, or
//   - the topic is listed for the group and either all its partitions or this partition are selected.
//
// A topic that is listed with an empty partition list contributes no partitions at all. The result is ordered by
// topic name and partition id.
func ScopePartitions(catalog Catalog, scope ConsumerGroupScope, group string) []TopicPartition {
	var topics GroupTopics
	restricted := false
	if !scope.IsUnrestricted() {
		topics, _ = scope.Topics(group)
		restricted = len(topics) > 0
	}

	var scoped []TopicPartition
	for _, topic := range catalog.TopicNames() {
		if catalog.IsInternal(topic) {
			continue
		}

		partitions := AllPartitions()
		if restricted {
			var listed bool
			partitions, listed = topics[topic]
			if !listed {
				continue
			}
		}

		for _, partition := range catalog.Partitions(topic) {
			if !partitions.Contains(partition) {
				continue
			}
			scoped = append(scoped, TopicPartition{Topic: topic, Partition: partition})
		}
	}

	return scoped
}

// partitionsByTopic groups topic partitions by topic name.
func partitionsByTopic(tps []TopicPartition) map[string][]int32 {
	grouped := make(map[string][]int32)
	for _, tp := range tps {
		grouped[tp.Topic] = append(grouped[tp.Topic], tp.Partition)
	}
	return grouped
}
