package check

import (
	"context"
	"errors"
	"sort"

	"github.com/twmb/franz-go/pkg/kadm"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/kafka"
)

// ResolveGroups returns the consumer groups to monitor in this pass. An explicit scope returns the configured groups
// in configuration order without querying the cluster. An unrestricted scope lists all groups on the cluster and
// applies the allowed and ignored group filters. A failed group listing is not fatal, the groups of all brokers that
// responded are returned alongside the listing errors.
func (c *Check) ResolveGroups(ctx context.Context) ([]string, []kafka.PartialFetchError, error) {
	return c.resolveGroups(ctx, c.logger)
}

func (c *Check) resolveGroups(ctx context.Context, logger *zap.Logger) ([]string, []kafka.PartialFetchError, error) {
	if err := c.scope.Validate(); err != nil {
		return nil, nil, err
	}

	if c.scope.IsExplicit() {
		return c.scope.GroupNames(), nil, nil
	}

	var partialErrs []kafka.PartialFetchError
	listedGroups, err := c.cluster.ListGroups(ctx)
	if err != nil {
		if kafka.IsConfigurationError(err) {
			return nil, nil, err
		}

		var se *kadm.ShardErrors
		if errors.As(err, &se) && !se.AllFailed {
			logger.Info("failed to list consumer groups from some brokers", zap.Int("failed_shards", len(se.Errs)))
			for _, shardErr := range se.Errs {
				logger.Warn("shard error for listing consumer groups",
					zap.Int32("broker_id", shardErr.Broker.NodeID),
					zap.Error(shardErr.Err))
				partialErrs = append(partialErrs, kafka.PartialFetchError{Err: shardErr.Err})
			}
		} else {
			logger.Warn("failed to list consumer groups, no consumer group will be monitored in this pass", zap.Error(err))
			return nil, []kafka.PartialFetchError{{Err: err}}, nil
		}
	}

	groups := make([]string, 0, len(listedGroups))
	for _, group := range listedGroups.Groups() {
		if !c.groupFilter.IsAllowed(group) {
			logger.Debug("skipping consumer group due to group filters", zap.String("group_id", group))
			continue
		}
		groups = append(groups, group)
	}
	sort.Strings(groups)

	return groups, partialErrs, nil
}
