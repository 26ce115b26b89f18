package prometheus

import (
	"context"
	"sort"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudhut/klag/check"
)

// collectTopicPartitionOffsets emits the high water marks of the pass. It returns false if some high water marks
// couldn't be fetched.
func (e *Exporter) collectTopicPartitionOffsets(_ context.Context, ch chan<- prometheus.Metric, res *check.Result) bool {
	isOk := true

	topicsWithErrors := make(map[string]struct{})
	for _, partialErr := range res.PartialErrors {
		if partialErr.Group == "" && partialErr.Topic != "" {
			topicsWithErrors[partialErr.Topic] = struct{}{}
			isOk = false
		}
	}

	tps := make([]check.TopicPartition, 0, len(res.HighWaterMarks))
	for tp := range res.HighWaterMarks {
		tps = append(tps, tp)
	}
	sort.Slice(tps, func(i, j int) bool {
		if tps[i].Topic != tps[j].Topic {
			return tps[i].Topic < tps[j].Topic
		}
		return tps[i].Partition < tps[j].Partition
	})

	waterMarkSumByTopic := make(map[string]int64)
	for _, tp := range tps {
		waterMark := res.HighWaterMarks[tp]
		waterMarkSumByTopic[tp.Topic] += waterMark
		ch <- prometheus.MustNewConstMetric(
			e.partitionHighWaterMark,
			prometheus.GaugeValue,
			float64(waterMark),
			tp.Topic,
			strconv.Itoa(int(tp.Partition)),
		)
	}

	for topic, waterMarkSum := range waterMarkSumByTopic {
		// We only want to report the sum of all partition marks if we receive watermarks from all partitions
		if _, hasErrors := topicsWithErrors[topic]; hasErrors {
			continue
		}
		ch <- prometheus.MustNewConstMetric(
			e.topicHighWaterMarkSum,
			prometheus.GaugeValue,
			float64(waterMarkSum),
			topic,
		)
	}

	return isOk
}
