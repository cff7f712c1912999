// Package metrics exposes pipeline counters for prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector counts pipeline outcomes. A nil *Collector is valid and records nothing.
type Collector struct {
	outcomes   *prometheus.CounterVec
	rejections *prometheus.CounterVec
	duplicates *prometheus.CounterVec
	faults     prometheus.Counter

	batchDuration prometheus.Histogram
	batchSize     prometheus.Histogram

	cleanupRemoved prometheus.Counter
}

func New() *Collector {
	c := &Collector{}

	c.outcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smsledger",
		Name:      "messages_total",
		Help:      "Messages that reached a terminal state, by outcome",
	}, []string{"outcome"})

	c.rejections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smsledger",
		Name:      "rejections_total",
		Help:      "Rejected messages by reason",
	}, []string{"reason"})

	c.duplicates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "smsledger",
		Name:      "duplicates_total",
		Help:      "Accepted messages discarded as duplicates, by detection path",
	}, []string{"kind"})

	c.faults = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smsledger",
		Name:      "storage_faults_total",
		Help:      "Messages that failed with a storage or validation fault",
	})

	c.batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smsledger",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of reprocessing batches",
		Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
	})

	c.batchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "smsledger",
		Name:      "batch_messages",
		Help:      "Messages per reprocessing batch",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	c.cleanupRemoved = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "smsledger",
		Name:      "cleanup_removed_total",
		Help:      "Transactions deleted by duplicate cleanup",
	})

	return c
}

func (c *Collector) Register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.outcomes,
		c.rejections,
		c.duplicates,
		c.faults,
		c.batchDuration,
		c.batchSize,
		c.cleanupRemoved,
	)
}

func (c *Collector) Inserted() {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues("inserted").Inc()
}

func (c *Collector) Rejected(reason string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues("rejected").Inc()
	c.rejections.WithLabelValues(reason).Inc()
}

func (c *Collector) Duplicate(kind string) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues("duplicate").Inc()
	c.duplicates.WithLabelValues(kind).Inc()
}

func (c *Collector) Fault() {
	if c == nil {
		return
	}
	c.faults.Inc()
}

// Batch records one finished batch of n messages.
func (c *Collector) Batch(n int, took time.Duration) {
	if c == nil {
		return
	}
	c.batchSize.Observe(float64(n))
	c.batchDuration.Observe(took.Seconds())
}

func (c *Collector) CleanupRemoved(n int) {
	if c == nil || n <= 0 {
		return
	}
	c.cleanupRemoved.Add(float64(n))
}
