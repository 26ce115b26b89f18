package check

import (
	"github.com/cloudhut/klag/kafka"
)

type Config struct {
	// MonitorUnlistedConsumerGroups monitors every consumer group that exists on the cluster. If set, ConsumerGroups
	// is ignored.
	MonitorUnlistedConsumerGroups bool `koanf:"monitorUnlistedConsumerGroups"`

	// ConsumerGroups is the explicit list of monitored groups.
	ConsumerGroups []ConsumerGroupConfig `koanf:"consumerGroups"`

	// MonitorAllBrokerHighwatermarks fetches high water marks for every partition of the cluster instead of only the
	// partitions that have a committed consumer offset.
	MonitorAllBrokerHighwatermarks bool `koanf:"monitorAllBrokerHighwatermarks"`

	// AllowedGroups are regex strings of group ids that shall be monitored when unlisted consumer groups are monitored
	AllowedGroupIDs []string `koanf:"allowedGroups"`

	// IgnoredGroups are regex strings of group ids that shall be skipped when unlisted consumer groups are monitored.
	// Ignored groups take precedence over allowed groups.
	IgnoredGroupIDs []string `koanf:"ignoredGroups"`

	// IgnoredTopics are regex strings of topic names that are never monitored, in addition to the internal topics.
	IgnoredTopics []string `koanf:"ignoredTopics"`

	// OffsetFetchConcurrency limits the number of consumer groups whose offsets are requested at the same time.
	OffsetFetchConcurrency int `koanf:"offsetFetchConcurrency"`
}

// ConsumerGroupConfig is a consumer group of the explicit scope. Omitting topics monitors all topics.
type ConsumerGroupConfig struct {
	Name   string        `koanf:"name"`
	Topics []TopicConfig `koanf:"topics"`
}

// TopicConfig restricts a consumer group to a topic. Omitting partitions monitors all partitions of the topic, an
// empty list monitors none of them.
type TopicConfig struct {
	Name       string  `koanf:"name"`
	Partitions []int32 `koanf:"partitions"`
}

func (c *Config) SetDefaults() {
	c.MonitorUnlistedConsumerGroups = false
	c.MonitorAllBrokerHighwatermarks = false
	c.AllowedGroupIDs = []string{"/.*/"}
	c.OffsetFetchConcurrency = 10
}

func (c *Config) Validate() error {
	err := c.Scope().Validate()
	if err != nil {
		return err
	}

	if !c.MonitorUnlistedConsumerGroups {
		seen := make(map[string]struct{}, len(c.ConsumerGroups))
		for _, group := range c.ConsumerGroups {
			if _, exists := seen[group.Name]; exists {
				return kafka.NewConfigurationError("consumer group '%v' is configured more than once", group.Name)
			}
			seen[group.Name] = struct{}{}

			seenTopics := make(map[string]struct{}, len(group.Topics))
			for _, topic := range group.Topics {
				if _, exists := seenTopics[topic.Name]; exists {
					return kafka.NewConfigurationError("topic '%v' is configured more than once for consumer group '%v'",
						topic.Name, group.Name)
				}
				seenTopics[topic.Name] = struct{}{}
			}
		}
	}

	if c.OffsetFetchConcurrency <= 0 {
		return kafka.NewConfigurationError("offsetFetchConcurrency must be positive, given: '%v'", c.OffsetFetchConcurrency)
	}

	// Check if all group and topic strings are valid regex or literals
	for _, groupID := range c.AllowedGroupIDs {
		if _, err := compileRegex(groupID); err != nil {
			return kafka.NewConfigurationError("allowed group string '%v' is not valid regex", groupID)
		}
	}
	for _, groupID := range c.IgnoredGroupIDs {
		if _, err := compileRegex(groupID); err != nil {
			return kafka.NewConfigurationError("ignored group string '%v' is not valid regex", groupID)
		}
	}
	for _, topic := range c.IgnoredTopics {
		if _, err := compileRegex(topic); err != nil {
			return kafka.NewConfigurationError("ignored topic string '%v' is not valid regex", topic)
		}
	}

	return nil
}

// Scope converts the configured groups into a ConsumerGroupScope.
func (c *Config) Scope() ConsumerGroupScope {
	if c.MonitorUnlistedConsumerGroups {
		return Unrestricted()
	}

	groups := make([]ExplicitGroup, 0, len(c.ConsumerGroups))
	for _, group := range c.ConsumerGroups {
		explicit := ExplicitGroup{Name: group.Name}
		if len(group.Topics) > 0 {
			explicit.Topics = make(GroupTopics, len(group.Topics))
			for _, topic := range group.Topics {
				// A nil list was omitted in the config, whereas an empty list was given explicitly
				if topic.Partitions == nil {
					explicit.Topics[topic.Name] = AllPartitions()
				} else {
					explicit.Topics[topic.Name] = OnlyPartitions(topic.Partitions...)
				}
			}
		}
		groups = append(groups, explicit)
	}
	return Explicit(groups...)
}
