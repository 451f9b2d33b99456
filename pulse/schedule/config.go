package schedule

import (
	"time"

	"github.com/linkpulse/linkpulse/am"
	"github.com/linkpulse/linkpulse/errors"
	"github.com/linkpulse/linkpulse/pulse/job"
)

// Thresholds applied to every job
const (
	// BreakerThreshold consecutive failures suspend scheduled and retry runs
	BreakerThreshold = 5
	// RetryFailureLimit is the failure streak at which the scheduler stops
	// arming follow-up retries
	RetryFailureLimit = 3
	// HealthWarnFailures is the failure streak the health check warns about
	HealthWarnFailures = 3
	// StaleRunThreshold is how old a job's last execution may get before the
	// health check warns
	StaleRunThreshold = 2 * time.Hour
)

// Config is fixed for the lifetime of one Start
type Config struct {
	Enabled                    bool          `json:"enabled"`
	IntervalMinutes            int           `json:"intervalMinutes"`
	CleanupIntervalMinutes     int           `json:"cleanupIntervalMinutes"`
	HealthCheckIntervalMinutes int           `json:"healthCheckIntervalMinutes"`
	MaxConcurrentJobs          int           `json:"maxConcurrentJobs"`
	RetryOnFailure             bool          `json:"retryOnFailure"`
	RetryDelayMinutes          int           `json:"retryDelayMinutes"`
	InitialDelay               time.Duration `json:"initialDelay"`
	RunTimeout                 time.Duration `json:"runTimeout"`
}

// DefaultConfig returns the scheduler defaults
func DefaultConfig() Config {
	return Config{
		Enabled:                    true,
		IntervalMinutes:            am.DefaultIntervalMinutes,
		CleanupIntervalMinutes:     am.DefaultIntervalMinutes,
		HealthCheckIntervalMinutes: am.DefaultHealthCheckIntervalMinutes,
		MaxConcurrentJobs:          1,
		RetryOnFailure:             true,
		RetryDelayMinutes:          am.DefaultRetryDelayMinutes,
		InitialDelay:               am.DefaultInitialDelaySeconds * time.Second,
		RunTimeout:                 am.DefaultRunTimeoutMinutes * time.Minute,
	}
}

// ConfigFromAm builds the scheduler config from the loaded configuration
func ConfigFromAm(c *am.Config) Config {
	return Config{
		Enabled:                    c.Scheduler.Enabled,
		IntervalMinutes:            c.Scheduler.IntervalMinutes,
		CleanupIntervalMinutes:     c.Cleanup.IntervalMinutes,
		HealthCheckIntervalMinutes: c.Scheduler.HealthCheckIntervalMinutes,
		MaxConcurrentJobs:          c.Scheduler.MaxConcurrentJobs,
		RetryOnFailure:             c.Scheduler.RetryOnFailure,
		RetryDelayMinutes:          c.Scheduler.RetryDelayMinutes,
		InitialDelay:               time.Duration(c.Scheduler.InitialDelaySeconds) * time.Second,
		RunTimeout:                 time.Duration(c.Scheduler.RunTimeoutMinutes) * time.Minute,
	}
}

func (c Config) validate() error {
	if c.IntervalMinutes <= 0 {
		return errors.Newf("interval must be positive, got %d minutes", c.IntervalMinutes)
	}
	if c.CleanupIntervalMinutes <= 0 {
		return errors.Newf("cleanup interval must be positive, got %d minutes", c.CleanupIntervalMinutes)
	}
	if c.HealthCheckIntervalMinutes <= 0 {
		return errors.Newf("health check interval must be positive, got %d minutes", c.HealthCheckIntervalMinutes)
	}
	if c.RetryOnFailure && c.RetryDelayMinutes <= 0 {
		return errors.Newf("retry delay must be positive, got %d minutes", c.RetryDelayMinutes)
	}
	if c.InitialDelay < 0 {
		return errors.Newf("initial delay must not be negative, got %s", c.InitialDelay)
	}
	return nil
}

func (c Config) interval(name job.Name) time.Duration {
	if name == job.PasswordResetCleanup {
		return time.Duration(c.CleanupIntervalMinutes) * time.Minute
	}
	return time.Duration(c.IntervalMinutes) * time.Minute
}

func (c Config) runTimeout() time.Duration {
	if c.RunTimeout > 0 {
		return c.RunTimeout
	}
	return am.DefaultRunTimeoutMinutes * time.Minute
}
