package am

// Config represents the linkpulse configuration.
// The toml tags let CheckFile report keys that map to nothing.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database" toml:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler" toml:"scheduler"`
	Expiration ExpirationConfig `mapstructure:"expiration" toml:"expiration"`
	Cleanup    CleanupConfig    `mapstructure:"cleanup" toml:"cleanup"`
	Server     ServerConfig     `mapstructure:"server" toml:"server"`
	Log        LogConfig        `mapstructure:"log" toml:"log"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// SchedulerConfig configures the background job scheduler
type SchedulerConfig struct {
	Enabled                    bool `mapstructure:"enabled" toml:"enabled"`
	IntervalMinutes            int  `mapstructure:"interval_minutes" toml:"interval_minutes"`                           // URL expiration cadence (default: 60)
	HealthCheckIntervalMinutes int  `mapstructure:"health_check_interval_minutes" toml:"health_check_interval_minutes"` // default: 30
	MaxConcurrentJobs          int  `mapstructure:"max_concurrent_jobs" toml:"max_concurrent_jobs"`                     // effectively 1 per job type
	RetryOnFailure             bool `mapstructure:"retry_on_failure" toml:"retry_on_failure"`
	RetryDelayMinutes          int  `mapstructure:"retry_delay_minutes" toml:"retry_delay_minutes"`
	InitialDelaySeconds        int  `mapstructure:"initial_delay_seconds" toml:"initial_delay_seconds"` // one-shot run after start (default: 30)
	RunTimeoutMinutes          int  `mapstructure:"run_timeout_minutes" toml:"run_timeout_minutes"`     // bound on a single run (default: 30)
}

// ExpirationConfig configures the batch expiration engine
type ExpirationConfig struct {
	BatchSize      int     `mapstructure:"batch_size" toml:"batch_size"`             // default: 1000
	MaxRetries     int     `mapstructure:"max_retries" toml:"max_retries"`           // attempts per page (default: 3)
	RetryDelayMS   int     `mapstructure:"retry_delay_ms" toml:"retry_delay_ms"`     // default: 5000
	PagesPerSecond float64 `mapstructure:"pages_per_second" toml:"pages_per_second"` // 0 = unlimited
}

// CleanupConfig configures the password reset token cleanup job
type CleanupConfig struct {
	IntervalMinutes int `mapstructure:"interval_minutes" toml:"interval_minutes"` // default: 60
}

// ServerConfig configures the admin HTTP server
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled" toml:"enabled"`
	Port    int  `mapstructure:"port" toml:"port"`
}

// LogConfig configures log output
type LogConfig struct {
	JSON bool `mapstructure:"json" toml:"json"`
}

// Server port constants
const (
	DefaultServerPort = 8090
)

// File system constants
const (
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
