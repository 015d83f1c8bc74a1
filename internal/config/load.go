package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config file. Environment variables take precedence over file values.
// Variables use the DISPATCH_ prefix with underscores separating nested
// keys (e.g. DISPATCH_SERVER_PORT, DISPATCH_TASK_WORKER_COUNT).
// Returns a populated Config struct or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, and
	// these two deliberately have no default.
	_ = v.BindEnv("database.url")
	_ = v.BindEnv("auth.jwt_secret")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment may carry
		// everything. Any other read error is fatal.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers a default for every knob so a bare environment
// only has to provide the database URL and JWT secret.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("task.worker_count", 4)
	v.SetDefault("task.poll_interval_ms", 1000)
	v.SetDefault("task.claim_batch_size", 10)
	v.SetDefault("task.execution_timeout_s", 60)
	v.SetDefault("task.shutdown_grace_s", 30)
	v.SetDefault("task.default_max_attempts", 3)
	v.SetDefault("task.stuck_task_age_minutes", 30)

	v.SetDefault("task.retry.base_delay_ms", 1000)
	v.SetDefault("task.retry.max_delay_ms", 300000)
	v.SetDefault("task.retry.multiplier", 2.0)
	v.SetDefault("task.retry.jitter", 0.1)

	v.SetDefault("task.breaker.failure_threshold", 5)
	v.SetDefault("task.breaker.cooldown_s", 60)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.stats_ttl_ms", 5000)

	v.SetDefault("cleanup.schedule", "")
	v.SetDefault("cleanup.older_than_days", 7)
}
