package prometheus

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cloudhut/klag/check"
)

// collectExporterMetrics emits the pass bookkeeping. res is nil if the pass failed.
func (e *Exporter) collectExporterMetrics(_ context.Context, ch chan<- prometheus.Metric, res *check.Result) {
	e.failedPassesCounter.Collect(ch)
	ch <- prometheus.MustNewConstMetric(
		e.passesTotalDesc,
		prometheus.CounterValue,
		float64(e.passesTotal.Load()),
	)
	ch <- prometheus.MustNewConstMetric(
		e.passDuration,
		prometheus.GaugeValue,
		e.lastPassDuration.Load().Seconds(),
	)
	if lastSuccess := e.lastSuccessfulPassAt.Load(); !lastSuccess.IsZero() {
		ch <- prometheus.MustNewConstMetric(
			e.lastSuccessfulPass,
			prometheus.GaugeValue,
			float64(lastSuccess.Unix()),
		)
	}

	if res == nil {
		return
	}

	groupErrors, partitionErrors := 0, 0
	for _, partialErr := range res.PartialErrors {
		if partialErr.Topic == "" {
			groupErrors++
		} else {
			partitionErrors++
		}
	}
	ch <- prometheus.MustNewConstMetric(e.partialFetchErrors, prometheus.GaugeValue, float64(groupErrors), "group")
	ch <- prometheus.MustNewConstMetric(e.partialFetchErrors, prometheus.GaugeValue, float64(partitionErrors), "partition")

	ch <- prometheus.MustNewConstMetric(e.monitoredGroupsCount, prometheus.GaugeValue, float64(len(res.Groups)))
	ch <- prometheus.MustNewConstMetric(e.monitoredTopicsCount, prometheus.GaugeValue, float64(len(res.Catalog.TopicNames())))
	ch <- prometheus.MustNewConstMetric(e.catalogPartitionsCount, prometheus.GaugeValue, float64(res.Catalog.PartitionCount()))
}
