package prometheus

import (
	"context"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudhut/klag/check"
)

type groupTopic struct {
	Group string
	Topic string
}

// collectConsumerGroupLags emits the lag of each group partition that has both a committed offset and a high water
// mark. It returns false if the pass couldn't fetch all offsets.
func (e *Exporter) collectConsumerGroupLags(_ context.Context, ch chan<- prometheus.Metric, res *check.Result) bool {
	// Sums are only reported for topics on which the group has no missing partition lag, a partial sum is misleading
	incomplete := make(map[groupTopic]struct{})

	isOk := true
	for _, partialErr := range res.PartialErrors {
		if partialErr.Group != "" || partialErr.Topic == "" {
			isOk = false
		}
		if partialErr.Group != "" && partialErr.Topic != "" {
			incomplete[groupTopic{Group: partialErr.Group, Topic: partialErr.Topic}] = struct{}{}
		}
	}

	for _, key := range res.ConsumerOffsets.Keys() {
		partitionID := strconv.Itoa(int(key.Partition))
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupCommittedOffset,
			prometheus.GaugeValue,
			float64(res.ConsumerOffsets[key]),
			key.Group,
			key.Topic,
			partitionID,
		)

		_, exists := res.HighWaterMarks[check.TopicPartition{Topic: key.Topic, Partition: key.Partition}]
		if !exists {
			incomplete[groupTopic{Group: key.Group, Topic: key.Topic}] = struct{}{}
		}
	}

	topicLag := make(map[groupTopic]float64)
	topicOffsetSum := make(map[groupTopic]float64)
	var order []groupTopic
	for _, lag := range res.Lags() {
		key := groupTopic{Group: lag.Group, Topic: lag.Topic}
		if _, exists := topicLag[key]; !exists {
			order = append(order, key)
		}
		topicLag[key] += float64(lag.Lag)
		topicOffsetSum[key] += float64(lag.ConsumerOffset)

		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicPartitionLag,
			prometheus.GaugeValue,
			float64(lag.Lag),
			lag.Group,
			lag.Topic,
			strconv.Itoa(int(lag.Partition)),
		)
	}

	for _, key := range order {
		if _, exists := incomplete[key]; exists {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicLag,
			prometheus.GaugeValue,
			topicLag[key],
			key.Group,
			key.Topic,
		)
		ch <- prometheus.MustNewConstMetric(
			e.consumerGroupTopicOffsetSum,
			prometheus.GaugeValue,
			topicOffsetSum[key],
			key.Group,
			key.Topic,
		)
	}

	return isOk
}
