package check

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/kafka"
)

func TestScopePartitions(t *testing.T) {
	catalog := NewCatalog(map[string][]int32{
		"t1":                 {2, 0, 1},
		"t2":                 {0, 1, 2},
		"__consumer_offsets": {0, 1},
	})

	tt := []struct {
		name     string
		scope    ConsumerGroupScope
		group    string
		expected []TopicPartition
	}{
		{
			name:  "restricted topic and partitions",
			scope: Explicit(ExplicitGroup{Name: "g1", Topics: GroupTopics{"t1": OnlyPartitions(0, 1)}}),
			group: "g1",
			expected: []TopicPartition{
				{Topic: "t1", Partition: 0},
				{Topic: "t1", Partition: 1},
			},
		},
		{
			name:  "all partitions of a listed topic",
			scope: Explicit(ExplicitGroup{Name: "g1", Topics: GroupTopics{"t2": AllPartitions()}}),
			group: "g1",
			expected: []TopicPartition{
				{Topic: "t2", Partition: 0},
				{Topic: "t2", Partition: 1},
				{Topic: "t2", Partition: 2},
			},
		},
		{
			name:     "empty partition list selects nothing",
			scope:    Explicit(ExplicitGroup{Name: "g1", Topics: GroupTopics{"t1": OnlyPartitions()}}),
			group:    "g1",
			expected: nil,
		},
		{
			name:     "unknown partitions and topics are ignored",
			scope:    Explicit(ExplicitGroup{Name: "g1", Topics: GroupTopics{"t1": OnlyPartitions(7), "t9": AllPartitions()}}),
			group:    "g1",
			expected: nil,
		},
		{
			name:  "group without topics monitors everything but internal topics",
			scope: Explicit(ExplicitGroup{Name: "g1"}),
			group: "g1",
			expected: []TopicPartition{
				{Topic: "t1", Partition: 0},
				{Topic: "t1", Partition: 1},
				{Topic: "t1", Partition: 2},
				{Topic: "t2", Partition: 0},
				{Topic: "t2", Partition: 1},
				{Topic: "t2", Partition: 2},
			},
		},
		{
			name:  "unrestricted scope excludes internal topics",
			scope: Unrestricted(),
			group: "any",
			expected: []TopicPartition{
				{Topic: "t1", Partition: 0},
				{Topic: "t1", Partition: 1},
				{Topic: "t1", Partition: 2},
				{Topic: "t2", Partition: 0},
				{Topic: "t2", Partition: 1},
				{Topic: "t2", Partition: 2},
			},
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, ScopePartitions(catalog, test.scope, test.group))
		})
	}
}

func TestScopePartitions_InternalFlagFromMetadata(t *testing.T) {
	metadata := kadm.Metadata{
		Topics: kadm.TopicDetails{
			"_schemas": {
				Topic:      "_schemas",
				IsInternal: true,
				Partitions: kadm.PartitionDetails{0: {Topic: "_schemas", Partition: 0}},
			},
			"orders": {
				Topic:      "orders",
				Partitions: kadm.PartitionDetails{0: {Topic: "orders", Partition: 0}},
			},
			"broken": {
				Topic: "broken",
				Err:   errLeaderNotAvailable,
			},
		},
	}
	catalog := catalogFromMetadata(metadata, zap.NewNop())

	assert.Equal(t, []string{"_schemas", "orders"}, catalog.TopicNames())
	assert.True(t, catalog.IsInternal("_schemas"))
	assert.Equal(t, 2, catalog.PartitionCount())
	assert.Equal(t, []TopicPartition{{Topic: "orders", Partition: 0}}, ScopePartitions(catalog, Unrestricted(), "g1"))
}

func TestConfig_Scope(t *testing.T) {
	cfg := newTestConfig()
	cfg.ConsumerGroups = []ConsumerGroupConfig{
		{
			Name: "g1",
			Topics: []TopicConfig{
				{Name: "omitted"},
				{Name: "empty", Partitions: []int32{}},
				{Name: "listed", Partitions: []int32{3, 1}},
			},
		},
		{Name: "g2"},
	}
	require.NoError(t, cfg.Validate())

	scope := cfg.Scope()
	assert.True(t, scope.IsExplicit())
	assert.Equal(t, []string{"g1", "g2"}, scope.GroupNames())

	topics, ok := scope.Topics("g1")
	require.True(t, ok)
	assert.False(t, topics["omitted"].IsRestricted())
	assert.True(t, topics["empty"].IsRestricted())
	assert.Empty(t, topics["empty"].IDs())
	assert.Equal(t, []int32{1, 3}, topics["listed"].IDs())

	topics, ok = scope.Topics("g2")
	require.True(t, ok)
	assert.Nil(t, topics)

	_, ok = scope.Topics("g3")
	assert.False(t, ok)
}

func TestConfig_Validate(t *testing.T) {
	tt := []struct {
		name  string
		cfg   func(cfg *Config)
		valid bool
	}{
		{
			name:  "neither explicit nor unrestricted",
			cfg:   func(cfg *Config) {},
			valid: false,
		},
		{
			name:  "unrestricted",
			cfg:   func(cfg *Config) { cfg.MonitorUnlistedConsumerGroups = true },
			valid: true,
		},
		{
			name: "unrestricted ignores explicit groups",
			cfg: func(cfg *Config) {
				cfg.MonitorUnlistedConsumerGroups = true
				cfg.ConsumerGroups = []ConsumerGroupConfig{{Name: ""}}
			},
			valid: true,
		},
		{
			name:  "empty group name",
			cfg:   func(cfg *Config) { cfg.ConsumerGroups = []ConsumerGroupConfig{{Name: ""}} },
			valid: false,
		},
		{
			name: "empty topic name",
			cfg: func(cfg *Config) {
				cfg.ConsumerGroups = []ConsumerGroupConfig{{Name: "g1", Topics: []TopicConfig{{Name: ""}}}}
			},
			valid: false,
		},
		{
			name: "negative partition",
			cfg: func(cfg *Config) {
				cfg.ConsumerGroups = []ConsumerGroupConfig{
					{Name: "g1", Topics: []TopicConfig{{Name: "t1", Partitions: []int32{0, -1}}}},
				}
			},
			valid: false,
		},
		{
			name: "duplicate group",
			cfg: func(cfg *Config) {
				cfg.ConsumerGroups = []ConsumerGroupConfig{{Name: "g1"}, {Name: "g1"}}
			},
			valid: false,
		},
		{
			name: "duplicate topic",
			cfg: func(cfg *Config) {
				cfg.ConsumerGroups = []ConsumerGroupConfig{
					{Name: "g1", Topics: []TopicConfig{{Name: "t1"}, {Name: "t1", Partitions: []int32{0}}}},
				}
			},
			valid: false,
		},
		{
			name: "invalid regex",
			cfg: func(cfg *Config) {
				cfg.MonitorUnlistedConsumerGroups = true
				cfg.IgnoredGroupIDs = []string{"/(unclosed/"}
			},
			valid: false,
		},
		{
			name: "zero concurrency",
			cfg: func(cfg *Config) {
				cfg.MonitorUnlistedConsumerGroups = true
				cfg.OffsetFetchConcurrency = 0
			},
			valid: false,
		},
	}

	for _, test := range tt {
		t.Run(test.name, func(t *testing.T) {
			cfg := newTestConfig()
			test.cfg(&cfg)
			err := cfg.Validate()
			if test.valid {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, kafka.IsConfigurationError(err))
		})
	}
}

func TestScope_ZeroValueIsInvalid(t *testing.T) {
	err := ConsumerGroupScope{}.Validate()
	require.Error(t, err)
	assert.True(t, kafka.IsConfigurationError(err))
	assert.NoError(t, Unrestricted().Validate())
}

func TestNameFilter(t *testing.T) {
	filter, err := newNameFilter([]string{"/^orders-.*/", "payments"}, []string{"/.*-dlq$/"})
	require.NoError(t, err)

	assert.True(t, filter.IsAllowed("orders-v1"))
	assert.True(t, filter.IsAllowed("payments"))
	assert.False(t, filter.IsAllowed("payments-v2"))
	assert.False(t, filter.IsAllowed("orders-v1-dlq"))
	assert.False(t, filter.IsAllowed("users"))

	ignoreOnly, err := newNameFilter(nil, []string{"audit"})
	require.NoError(t, err)
	assert.True(t, ignoreOnly.IsAllowed("users"))
	assert.False(t, ignoreOnly.IsAllowed("audit"))

	_, err = newNameFilter([]string{"/[/"}, nil)
	assert.Error(t, err)
}
