package am

import (
	"github.com/spf13/viper"
)

// Default values shared with packages that build their own config structs.
const (
	DefaultIntervalMinutes            = 60
	DefaultHealthCheckIntervalMinutes = 30
	DefaultRetryDelayMinutes          = 5
	DefaultInitialDelaySeconds        = 30
	DefaultRunTimeoutMinutes          = 30
	DefaultBatchSize                  = 1000
	DefaultMaxRetries                 = 3
	DefaultRetryDelayMS               = 5000
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "linkpulse.db")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.interval_minutes", DefaultIntervalMinutes)
	v.SetDefault("scheduler.health_check_interval_minutes", DefaultHealthCheckIntervalMinutes)
	v.SetDefault("scheduler.max_concurrent_jobs", 1)
	v.SetDefault("scheduler.retry_on_failure", true)
	v.SetDefault("scheduler.retry_delay_minutes", DefaultRetryDelayMinutes)
	v.SetDefault("scheduler.initial_delay_seconds", DefaultInitialDelaySeconds)
	v.SetDefault("scheduler.run_timeout_minutes", DefaultRunTimeoutMinutes)

	// Expiration engine defaults
	v.SetDefault("expiration.batch_size", DefaultBatchSize)
	v.SetDefault("expiration.max_retries", DefaultMaxRetries)
	v.SetDefault("expiration.retry_delay_ms", DefaultRetryDelayMS)
	v.SetDefault("expiration.pages_per_second", 0)

	// Cleanup job defaults
	v.SetDefault("cleanup.interval_minutes", DefaultIntervalMinutes)

	// Admin server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", DefaultServerPort)

	v.SetDefault("log.json", false)
}

// BindEnvVars binds the operator-facing settings to their short environment
// names in addition to the LINKPULSE_ prefixed forms.
func BindEnvVars(v *viper.Viper) {
	v.BindEnv("scheduler.enabled", "LINKPULSE_SCHEDULER_ENABLED", "SCHEDULER_ENABLED")
	v.BindEnv("scheduler.interval_minutes", "LINKPULSE_SCHEDULER_INTERVAL_MINUTES", "URL_EXPIRATION_INTERVAL_MINUTES")
	v.BindEnv("scheduler.health_check_interval_minutes", "LINKPULSE_SCHEDULER_HEALTH_CHECK_INTERVAL_MINUTES", "HEALTH_CHECK_INTERVAL_MINUTES")
	v.BindEnv("expiration.batch_size", "LINKPULSE_EXPIRATION_BATCH_SIZE", "URL_EXPIRATION_BATCH_SIZE")
	v.BindEnv("database.path", "LINKPULSE_DATABASE_PATH", "DB_PATH")
}
