// Package metrics exposes scheduler activity as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linkpulse/linkpulse/errors"
)

// Skip reasons
const (
	SkipRunning = "running"
	SkipBreaker = "breaker"
)

// Recorder receives scheduler events. Collector implements it; Nop discards them.
type Recorder interface {
	RunStarted(job string)
	RunFinished(job string, success bool, elapsed time.Duration, expired int)
	RunSkipped(job, reason string)
	JobHealth(job string, consecutiveFailures int, breakerOpen bool)
}

// Collector records scheduler metrics
type Collector struct {
	runs                *prometheus.CounterVec
	skipped             *prometheus.CounterVec
	duration            *prometheus.HistogramVec
	inFlight            *prometheus.GaugeVec
	consecutiveFailures *prometheus.GaugeVec
	breakerOpen         *prometheus.GaugeVec
	urlsExpired         prometheus.Counter
}

// NewCollector creates the collector and registers it with reg
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpulse",
			Name:      "job_runs_total",
			Help:      "Completed job runs by outcome",
		}, []string{"job", "result"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "linkpulse",
			Name:      "job_runs_skipped_total",
			Help:      "Timer fires that did not start a run",
		}, []string{"job", "reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "linkpulse",
			Name:      "job_duration_seconds",
			Help:      "Job run duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"job"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "linkpulse",
			Name:      "job_in_flight",
			Help:      "1 while a run of the job is executing",
		}, []string{"job"}),
		consecutiveFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "linkpulse",
			Name:      "job_consecutive_failures",
			Help:      "Current failure streak per job",
		}, []string{"job"}),
		breakerOpen: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "linkpulse",
			Name:      "job_breaker_open",
			Help:      "1 while scheduled runs of the job are suspended",
		}, []string{"job"}),
		urlsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "linkpulse",
			Name:      "urls_expired_total",
			Help:      "Short URLs flipped to expired",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.runs, c.skipped, c.duration, c.inFlight, c.consecutiveFailures, c.breakerOpen, c.urlsExpired,
	} {
		if err := reg.Register(col); err != nil {
			return nil, errors.Wrap(err, "failed to register scheduler metrics")
		}
	}
	return c, nil
}

// RunStarted marks a run of job as in flight
func (c *Collector) RunStarted(job string) {
	c.inFlight.WithLabelValues(job).Set(1)
}

// RunFinished records the outcome of a run
func (c *Collector) RunFinished(job string, success bool, elapsed time.Duration, expired int) {
	result := "success"
	if !success {
		result = "failure"
	}
	c.inFlight.WithLabelValues(job).Set(0)
	c.runs.WithLabelValues(job, result).Inc()
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if expired > 0 {
		c.urlsExpired.Add(float64(expired))
	}
}

// RunSkipped counts a timer fire that was dropped
func (c *Collector) RunSkipped(job, reason string) {
	c.skipped.WithLabelValues(job, reason).Inc()
}

// JobHealth publishes the failure streak and breaker state
func (c *Collector) JobHealth(job string, consecutiveFailures int, breakerOpen bool) {
	c.consecutiveFailures.WithLabelValues(job).Set(float64(consecutiveFailures))
	open := 0.0
	if breakerOpen {
		open = 1
	}
	c.breakerOpen.WithLabelValues(job).Set(open)
}

// Nop is a Recorder that discards everything
type Nop struct{}

func (Nop) RunStarted(string)                            {}
func (Nop) RunFinished(string, bool, time.Duration, int) {}
func (Nop) RunSkipped(string, string)                    {}
func (Nop) JobHealth(string, int, bool)                  {}
