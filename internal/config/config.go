package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth" validate:"required"`
	Resources ResourcesConfig `mapstructure:"resources" validate:"required"`
	Task      TaskConfig      `mapstructure:"task" validate:"required"`
	Estimate  EstimateConfig  `mapstructure:"estimate" validate:"required"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// LogFile, when set, receives a copy of every log line in addition to stdout.
	LogFile                string `mapstructure:"log_file"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds" validate:"gt=0"`
}

// ShutdownTimeout is the grace period given to in-flight requests and tasks.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// DatabaseConfig selects the task store. An empty URL keeps tasks in memory.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"omitempty,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"gt=0"`
}

// ResourcesConfig describes the GPU inventory. InventoryFile, when set, takes
// precedence over Capability and Count.
type ResourcesConfig struct {
	Capability      string `mapstructure:"capability" validate:"required"`
	Count           int    `mapstructure:"count" validate:"gte=0"`
	InventoryFile   string `mapstructure:"inventory_file"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

// TaskConfig holds orchestration policy.
type TaskConfig struct {
	SingleVideoUnits     int    `mapstructure:"single_video_units" validate:"gte=1"`
	AccountAnalysisUnits int    `mapstructure:"account_analysis_units" validate:"gte=2"`
	StepTimeoutSeconds   int    `mapstructure:"step_timeout_seconds" validate:"gte=0"`
	RetentionHours       int    `mapstructure:"retention_hours" validate:"gte=0"`
	SweepSchedule        string `mapstructure:"sweep_schedule"`
}

// StepTimeout returns the per-step watchdog duration, zero when disabled.
func (c TaskConfig) StepTimeout() time.Duration {
	return time.Duration(c.StepTimeoutSeconds) * time.Second
}

// Retention returns how long terminal tasks are kept, zero when kept forever.
func (c TaskConfig) Retention() time.Duration {
	return time.Duration(c.RetentionHours) * time.Hour
}

// EstimateConfig holds the ETA heuristics reported to clients.
type EstimateConfig struct {
	SingleVideoSeconds int              `mapstructure:"single_video_seconds" validate:"gt=0"`
	PerVideoSeconds    int              `mapstructure:"per_video_seconds" validate:"gt=0"`
	DepthMultipliers   DepthMultipliers `mapstructure:"depth_multipliers"`
}

// DepthMultipliers scale the account ETA by analysis depth.
type DepthMultipliers struct {
	Basic         float64 `mapstructure:"basic" validate:"gt=0"`
	Standard      float64 `mapstructure:"standard" validate:"gt=0"`
	Comprehensive float64 `mapstructure:"comprehensive" validate:"gt=0"`
}

// PipelineConfig tunes the built-in analysis pipeline.
type PipelineConfig struct {
	StepDelayMS        int `mapstructure:"step_delay_ms" validate:"gte=0"`
	AccountStepDelayMS int `mapstructure:"account_step_delay_ms" validate:"gte=0"`
}

// LLMConfig contains all LLM integration related settings. Summaries are produced
// by Gemini only when an API key is present.
type LLMConfig struct {
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	ModelName         string `mapstructure:"model_name"`
	MaxRetries        int    `mapstructure:"max_retries" validate:"gte=0,lte=10"`
	RetryDelaySeconds int    `mapstructure:"retry_delay_seconds" validate:"gte=0"`
}

// Enabled reports whether an LLM summarizer should be used.
func (c LLMConfig) Enabled() bool { return c.GeminiAPIKey != "" }
