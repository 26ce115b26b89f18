package check

import (
	"sort"

	"github.com/cloudhut/klag/kafka"
)

// Partitions selects partitions of a single topic. The zero value selects every partition, a value created with
// OnlyPartitions selects exactly the listed ids, which may be none at all.
type Partitions struct {
	restricted bool
	ids        map[int32]struct{}
}

// AllPartitions selects every partition of a topic.
func AllPartitions() Partitions {
	return Partitions{}
}

// OnlyPartitions selects the given partition ids. Calling it without ids selects no partition.
func OnlyPartitions(ids ...int32) Partitions {
	set := make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return Partitions{restricted: true, ids: set}
}

// IsRestricted returns false if every partition is selected.
func (p Partitions) IsRestricted() bool {
	return p.restricted
}

// Contains reports whether the partition is selected.
func (p Partitions) Contains(id int32) bool {
	if !p.restricted {
		return true
	}
	_, ok := p.ids[id]
	return ok
}

// IDs returns the sorted selected ids, nil if all partitions are selected.
func (p Partitions) IDs() []int32 {
	if !p.restricted {
		return nil
	}
	ids := make([]int32, 0, len(p.ids))
	for id := range p.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// GroupTopics restricts a consumer group to the listed topics. A nil or empty GroupTopics means the group is
// monitored on all topics.
type GroupTopics map[string]Partitions

// ConsumerGroupScope is the set of consumer groups and their topic partitions to monitor. The zero value is
// neither unrestricted nor explicit and is rejected by the resolver.
type ConsumerGroupScope struct {
	unrestricted bool
	groupNames   []string
	groups       map[string]GroupTopics
}

// ExplicitGroup is one configured consumer group of an explicit scope.
type ExplicitGroup struct {
	Name string
	// Topics is nil if all topics shall be monitored for this group.
	Topics GroupTopics
}

// Unrestricted returns a scope that monitors every consumer group found on the cluster on all topics and partitions.
func Unrestricted() ConsumerGroupScope {
	return ConsumerGroupScope{unrestricted: true}
}

// Explicit returns a scope restricted to the given groups. The order of the groups is kept.
func Explicit(groups ...ExplicitGroup) ConsumerGroupScope {
	scope := ConsumerGroupScope{
		groupNames: make([]string, 0, len(groups)),
		groups:     make(map[string]GroupTopics, len(groups)),
	}
	for _, group := range groups {
		if _, exists := scope.groups[group.Name]; !exists {
			scope.groupNames = append(scope.groupNames, group.Name)
		}
		scope.groups[group.Name] = group.Topics
	}
	return scope
}

// IsUnrestricted reports whether every consumer group of the cluster is in scope.
func (s ConsumerGroupScope) IsUnrestricted() bool {
	return s.unrestricted
}

// IsExplicit returns true if at least one group has been configured.
func (s ConsumerGroupScope) IsExplicit() bool {
	return !s.unrestricted && len(s.groupNames) > 0
}

// GroupNames returns the configured group names in configuration order.
func (s ConsumerGroupScope) GroupNames() []string {
	names := make([]string, len(s.groupNames))
	copy(names, s.groupNames)
	return names
}

// Topics returns the topic restriction of a group. ok is false if the group isn't part of an explicit scope.
func (s ConsumerGroupScope) Topics(group string) (GroupTopics, bool) {
	topics, ok := s.groups[group]
	return topics, ok
}

// Validate checks that the scope is either unrestricted or explicit and well-formed: group and topic names must not
// be empty and partition ids must not be negative.
func (s ConsumerGroupScope) Validate() error {
	if s.unrestricted {
		return nil
	}
	if len(s.groupNames) == 0 {
		return kafka.NewConfigurationError(
			"cannot fetch consumer offsets because no consumer groups are specified and monitoring of unlisted consumer groups is disabled")
	}

	for _, group := range s.groupNames {
		if group == "" {
			return kafka.NewConfigurationError("consumer group names must not be empty")
		}
		for topic, partitions := range s.groups[group] {
			if topic == "" {
				return kafka.NewConfigurationError("topic names of consumer group '%v' must not be empty", group)
			}
			for id := range partitions.ids {
				if id < 0 {
					return kafka.NewConfigurationError("consumer group '%v' lists negative partition id '%v' for topic '%v'",
						group, id, topic)
				}
			}
		}
	}
	return nil
}
