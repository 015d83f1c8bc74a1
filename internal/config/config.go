package config

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// TaskConfig contains the task processor settings.
type TaskConfig struct {
	WorkerCount        int `mapstructure:"worker_count"         validate:"required,gt=0"`
	PollIntervalMS     int `mapstructure:"poll_interval_ms"     validate:"required,gt=0"`
	ClaimBatchSize     int `mapstructure:"claim_batch_size"     validate:"required,gt=0"`
	ExecutionTimeoutS  int `mapstructure:"execution_timeout_s"  validate:"required,gt=0"`
	ShutdownGraceS     int `mapstructure:"shutdown_grace_s"     validate:"required,gt=0"`
	DefaultMaxAttempts int `mapstructure:"default_max_attempts" validate:"required,gt=0"`

	Retry   RetryConfig   `mapstructure:"retry"   validate:"required"`
	Breaker BreakerConfig `mapstructure:"breaker" validate:"required"`

	// StuckTaskAgeMinutes controls recovery of tasks stranded in the
	// running state by a crashed worker. Zero disables the reaper.
	StuckTaskAgeMinutes int `mapstructure:"stuck_task_age_minutes" validate:"gte=0"`
}

// RetryConfig contains the exponential backoff settings applied to
// failed task attempts.
type RetryConfig struct {
	BaseDelayMS int     `mapstructure:"base_delay_ms" validate:"required,gt=0"`
	MaxDelayMS  int     `mapstructure:"max_delay_ms"  validate:"required,gt=0"`
	Multiplier  float64 `mapstructure:"multiplier"    validate:"required,gte=1"`
	Jitter      float64 `mapstructure:"jitter"        validate:"gte=0,lte=1"`
}

// BreakerConfig contains the per-task-type circuit breaker settings.
type BreakerConfig struct {
	FailureThreshold int `mapstructure:"failure_threshold" validate:"required,gt=0"`
	CooldownS        int `mapstructure:"cooldown_s"        validate:"required,gt=0"`
}

// RedisConfig contains settings for the optional read cache.
// An empty address disables caching entirely.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	StatsTTLMS int    `mapstructure:"stats_ttl_ms" validate:"gte=0"`
}

// CleanupConfig contains the scheduled retention cleanup settings.
type CleanupConfig struct {
	// Schedule is a cron expression; empty disables scheduled cleanup.
	Schedule      string `mapstructure:"schedule"`
	OlderThanDays int    `mapstructure:"older_than_days" validate:"gte=0"`
}
