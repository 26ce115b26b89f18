package prometheus

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/cloudhut/klag/check"
	"github.com/cloudhut/klag/kafka"
)

// PassRunner runs a single consumer offset reconciliation pass.
type PassRunner interface {
	Run(ctx context.Context) (*check.Result, error)
}

// Exporter is the Prometheus exporter that implements the prometheus.Collector interface. Every collect runs one
// reconciliation pass, concurrent scrapes are serialized so that passes never overlap.
type Exporter struct {
	cfg    Config
	logger *zap.Logger
	runner PassRunner

	passLock sync.Mutex

	// Exporter bookkeeping
	passesTotal          *atomic.Int64
	lastPassDuration     *atomic.Duration
	lastSuccessfulPassAt *atomic.Time

	// Exporter metrics
	exporterUp             *prometheus.Desc
	failedPassesCounter    *prometheus.CounterVec
	passesTotalDesc        *prometheus.Desc
	passDuration           *prometheus.Desc
	lastSuccessfulPass     *prometheus.Desc
	partialFetchErrors     *prometheus.Desc
	monitoredGroupsCount   *prometheus.Desc
	monitoredTopicsCount   *prometheus.Desc
	catalogPartitionsCount *prometheus.Desc

	// Consumer group metrics
	consumerGroupTopicPartitionLag *prometheus.Desc
	consumerGroupTopicLag          *prometheus.Desc
	consumerGroupTopicOffsetSum    *prometheus.Desc
	consumerGroupCommittedOffset   *prometheus.Desc

	// Partition metrics
	partitionHighWaterMark *prometheus.Desc
	topicHighWaterMarkSum  *prometheus.Desc
}

func NewExporter(cfg Config, logger *zap.Logger, runner PassRunner) (*Exporter, error) {
	return &Exporter{
		cfg:                  cfg,
		logger:               logger.Named("prometheus"),
		runner:               runner,
		passesTotal:          atomic.NewInt64(0),
		lastPassDuration:     atomic.NewDuration(0),
		lastSuccessfulPassAt: atomic.NewTime(time.Time{}),
	}, nil
}

func (e *Exporter) InitializeMetrics() {
	// Exporter metrics
	e.exporterUp = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "up"),
		"Build info about this Prometheus Exporter. Gauge value is 0 if the last pass failed or could only collect partial data.",
		nil,
		map[string]string{"version": os.Getenv("VERSION")},
	)
	e.failedPassesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: e.cfg.Namespace,
			Subsystem: "exporter",
			Name:      "failed_passes_total",
			Help:      "Number of reconciliation passes that have failed",
		},
		[]string{"reason"},
	)
	for _, reason := range []string{failureReasonConfiguration, failureReasonConnectivity, failureReasonUnknown} {
		e.failedPassesCounter.WithLabelValues(reason)
	}
	e.passesTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "passes_total"),
		"Number of reconciliation passes that have been started",
		nil,
		nil,
	)
	e.passDuration = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "last_pass_duration_seconds"),
		"Duration of the last reconciliation pass in seconds",
		nil,
		nil,
	)
	e.lastSuccessfulPass = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "last_successful_pass_timestamp_seconds"),
		"Unix timestamp of the last reconciliation pass that did not fail",
		nil,
		nil,
	)
	e.partialFetchErrors = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "exporter", "partial_fetch_errors"),
		"Number of consumer groups or partitions whose data could not be fetched in the last pass",
		[]string{"type"},
		nil,
	)
	e.monitoredGroupsCount = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "monitored_consumer_groups"),
		"Number of consumer groups that have been monitored in the last pass",
		nil,
		nil,
	)
	e.monitoredTopicsCount = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "catalog_topics"),
		"Number of topics in the topic catalog of the last pass",
		nil,
		nil,
	)
	e.catalogPartitionsCount = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "catalog_partitions"),
		"Number of partitions in the topic catalog of the last pass",
		nil,
		nil,
	)

	// Consumer group metrics
	e.consumerGroupTopicPartitionLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_partition_lag"),
		"The number of messages a consumer group is lagging behind the latest offset of a partition",
		[]string{"group_id", "topic_name", "partition_id"},
		nil,
	)
	e.consumerGroupTopicLag = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_lag"),
		"The number of messages a consumer group is lagging behind across all partitions in a topic",
		[]string{"group_id", "topic_name"},
		nil,
	)
	e.consumerGroupTopicOffsetSum = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_offset_sum"),
		"The sum of all committed group offsets across all partitions in a topic",
		[]string{"group_id", "topic_name"},
		nil,
	)
	e.consumerGroupCommittedOffset = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "consumer_group_topic_partition_committed_offset"),
		"The committed offset of a consumer group on a partition",
		[]string{"group_id", "topic_name", "partition_id"},
		nil,
	)

	// Partition metrics
	e.partitionHighWaterMark = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "topic_partition_high_water_mark"),
		"Partition High Water Mark",
		[]string{"topic_name", "partition_id"},
		nil,
	)
	e.topicHighWaterMarkSum = prometheus.NewDesc(
		prometheus.BuildFQName(e.cfg.Namespace, "kafka", "topic_high_water_mark_sum"),
		"Sum of all the topic's partition high water marks",
		[]string{"topic_name"},
		nil,
	)
}

// Describe implements the prometheus.Collector interface. It sends the
// super-set of all possible descriptors of metrics collected by this
// Collector to the provided channel and returns once the last descriptor
// has been sent. The sent descriptors fulfill the consistency and uniqueness
// requirements described in the Desc documentation.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	ch <- e.exporterUp
	e.failedPassesCounter.Describe(ch)
	ch <- e.passesTotalDesc
	ch <- e.passDuration
	ch <- e.lastSuccessfulPass
	ch <- e.partialFetchErrors
	ch <- e.monitoredGroupsCount
	ch <- e.monitoredTopicsCount
	ch <- e.catalogPartitionsCount
	ch <- e.consumerGroupTopicPartitionLag
	ch <- e.consumerGroupTopicLag
	ch <- e.consumerGroupTopicOffsetSum
	ch <- e.consumerGroupCommittedOffset
	ch <- e.partitionHighWaterMark
	ch <- e.topicHighWaterMarkSum
}

const (
	failureReasonConfiguration = "configuration"
	failureReasonConnectivity  = "connectivity"
	failureReasonUnknown       = "unknown"
)

func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.passLock.Lock()
	defer e.passLock.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.PassTimeout)
	defer cancel()

	startedAt := time.Now()
	e.passesTotal.Inc()
	res, err := e.runner.Run(ctx)
	e.lastPassDuration.Store(time.Since(startedAt))

	ok := err == nil
	if err != nil {
		reason := failureReasonUnknown
		switch {
		case kafka.IsConfigurationError(err):
			reason = failureReasonConfiguration
		case kafka.IsConnectivityError(err):
			reason = failureReasonConnectivity
		}
		e.failedPassesCounter.WithLabelValues(reason).Inc()
		e.logger.Error("consumer offset reconciliation pass failed", zap.String("reason", reason), zap.Error(err))
	} else {
		e.lastSuccessfulPassAt.Store(time.Now())
		ok = e.collectConsumerGroupLags(ctx, ch, res) && ok
		ok = e.collectTopicPartitionOffsets(ctx, ch, res) && ok
	}
	e.collectExporterMetrics(ctx, ch, res)

	if ok {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 1.0)
	} else {
		ch <- prometheus.MustNewConstMetric(e.exporterUp, prometheus.GaugeValue, 0.0)
	}
}
