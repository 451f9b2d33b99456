package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	c, err := NewCollector(prometheus.NewRegistry())
	require.NoError(t, err)

	c.RunStarted("urlExpiration")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.inFlight.WithLabelValues("urlExpiration")))

	c.RunFinished("urlExpiration", true, 2*time.Second, 1500)
	c.RunFinished("urlExpiration", false, time.Second, 0)
	c.RunSkipped("urlExpiration", SkipBreaker)
	c.JobHealth("urlExpiration", 5, true)

	assert.Equal(t, 0.0, testutil.ToFloat64(c.inFlight.WithLabelValues("urlExpiration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("urlExpiration", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("urlExpiration", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.skipped.WithLabelValues("urlExpiration", SkipBreaker)))
	assert.Equal(t, 1500.0, testutil.ToFloat64(c.urlsExpired))
	assert.Equal(t, 5.0, testutil.ToFloat64(c.consecutiveFailures.WithLabelValues("urlExpiration")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("urlExpiration")))

	c.JobHealth("urlExpiration", 0, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.breakerOpen.WithLabelValues("urlExpiration")))
}

func TestNewCollector_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewCollector(reg)
	require.NoError(t, err)

	_, err = NewCollector(reg)
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	var r Recorder = Nop{}
	assert.NotPanics(t, func() {
		r.RunStarted("x")
		r.RunFinished("x", true, time.Second, 1)
		r.RunSkipped("x", SkipRunning)
		r.JobHealth("x", 1, false)
	})
}
