package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorCounts(t *testing.T) {
	c := New()
	reg := prometheus.NewRegistry()
	c.Register(reg)

	c.Inserted()
	c.Inserted()
	c.Rejected("Promotional")
	c.Duplicate("fuzzy")
	c.Fault()
	c.Batch(10, 50*time.Millisecond)
	c.CleanupRemoved(3)
	c.CleanupRemoved(0)

	require.Equal(t, 2.0, testutil.ToFloat64(c.outcomes.WithLabelValues("inserted")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("rejected")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.outcomes.WithLabelValues("duplicate")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("Promotional")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.duplicates.WithLabelValues("fuzzy")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.faults))
	require.Equal(t, 3.0, testutil.ToFloat64(c.cleanupRemoved))

	n, err := testutil.GatherAndCount(reg, "smsledger_batch_messages")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.Inserted()
		c.Rejected("UnknownSender")
		c.Duplicate("exact")
		c.Fault()
		c.Batch(1, time.Second)
		c.CleanupRemoved(1)
	})
}
