package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. OWL_SERVER_PORT.
const EnvPrefix = "OWL"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_file", "")
	v.SetDefault("server.shutdown_timeout_seconds", 15)

	v.SetDefault("database.url", "")

	v.SetDefault("auth.token_lifetime_minutes", 60)

	v.SetDefault("resources.capability", "gpu")
	v.SetDefault("resources.count", 4)
	v.SetDefault("resources.inventory_file", "")
	v.SetDefault("resources.refresh_schedule", "@every 1m")

	v.SetDefault("task.single_video_units", 1)
	v.SetDefault("task.account_analysis_units", 2)
	v.SetDefault("task.step_timeout_seconds", 0)
	v.SetDefault("task.retention_hours", 0)
	v.SetDefault("task.sweep_schedule", "@every 10m")

	v.SetDefault("estimate.single_video_seconds", 300)
	v.SetDefault("estimate.per_video_seconds", 30)
	v.SetDefault("estimate.depth_multipliers.basic", 0.5)
	v.SetDefault("estimate.depth_multipliers.standard", 1.0)
	v.SetDefault("estimate.depth_multipliers.comprehensive", 1.5)

	v.SetDefault("pipeline.step_delay_ms", 2000)
	v.SetDefault("pipeline.account_step_delay_ms", 3000)

	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.model_name", "gemini-2.0-flash")
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay_seconds", 2)
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from the file. When
// configFile is empty, config.yaml is looked up in the working directory and
// silently skipped if absent.
// Returns a populated Config struct or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Keys without defaults are invisible to AutomaticEnv during Unmarshal.
	if err := v.BindEnv("auth.jwt_secret"); err != nil {
		return nil, fmt.Errorf("error binding auth.jwt_secret: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}
