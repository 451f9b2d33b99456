package am

import "github.com/linkpulse/linkpulse/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Intervals drive cron entries; zero would mean "fire continuously"
	if c.Scheduler.IntervalMinutes <= 0 {
		return errors.Newf("scheduler.interval_minutes must be > 0, got %d", c.Scheduler.IntervalMinutes)
	}
	if c.Scheduler.HealthCheckIntervalMinutes <= 0 {
		return errors.Newf("scheduler.health_check_interval_minutes must be > 0, got %d", c.Scheduler.HealthCheckIntervalMinutes)
	}
	if c.Scheduler.RetryDelayMinutes <= 0 {
		return errors.Newf("scheduler.retry_delay_minutes must be > 0, got %d", c.Scheduler.RetryDelayMinutes)
	}
	if c.Scheduler.MaxConcurrentJobs < 0 {
		return errors.Newf("scheduler.max_concurrent_jobs must be >= 0, got %d", c.Scheduler.MaxConcurrentJobs)
	}
	if c.Scheduler.InitialDelaySeconds < 0 {
		return errors.Newf("scheduler.initial_delay_seconds must be >= 0, got %d", c.Scheduler.InitialDelaySeconds)
	}
	if c.Scheduler.RunTimeoutMinutes <= 0 {
		return errors.Newf("scheduler.run_timeout_minutes must be > 0, got %d", c.Scheduler.RunTimeoutMinutes)
	}

	if c.Cleanup.IntervalMinutes <= 0 {
		return errors.Newf("cleanup.interval_minutes must be > 0, got %d", c.Cleanup.IntervalMinutes)
	}

	if c.Expiration.BatchSize <= 0 {
		return errors.Newf("expiration.batch_size must be > 0, got %d", c.Expiration.BatchSize)
	}
	if c.Expiration.MaxRetries <= 0 {
		return errors.Newf("expiration.max_retries must be > 0, got %d", c.Expiration.MaxRetries)
	}
	if c.Expiration.RetryDelayMS < 0 {
		return errors.Newf("expiration.retry_delay_ms must be >= 0, got %d", c.Expiration.RetryDelayMS)
	}
	if c.Expiration.PagesPerSecond < 0 {
		return errors.Newf("expiration.pages_per_second must be >= 0, got %f", c.Expiration.PagesPerSecond)
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return errors.Newf("server.port must be in 1..65535, got %d", c.Server.Port)
	}

	return nil
}
