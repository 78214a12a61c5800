// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/northbound/hiverag/internal/errs"
)

// Config is the full set of recognized options from the engine's
// configuration surface. Unknown keys in the bound environment/file are
// ignored (viper's default), but every field below is validated at boot.
// Most fields take effect at the component that reads them; the Chunking
// section, Retrieval.RefreshIntervalSeconds, Deadlines.SlackMS and
// Resource.IngestFailFast are validated but not read by any component (the
// Chunking Judge's fallback plan is fixed at recursive/500/50).
type Config struct {
	Resource ResourceConfig   `mapstructure:"resource" validate:"required"`
	Chunking ChunkingConfig   `mapstructure:"chunking" validate:"required"`
	Judge    JudgeConfig      `mapstructure:"judge" validate:"required"`
	Retrieval RetrievalConfig `mapstructure:"retrieval" validate:"required"`
	Response ResponseConfig   `mapstructure:"response" validate:"required"`
	Deadlines DeadlinesConfig `mapstructure:"deadlines" validate:"required"`
	LLM      LLMConfig        `mapstructure:"llm" validate:"required"`
	Store    StoreConfig      `mapstructure:"store" validate:"required"`
	Blob     BlobConfig       `mapstructure:"blob" validate:"required"`
}

type ResourceConfig struct {
	WorkerPoolSize      int `mapstructure:"worker_pool_size" validate:"required,min=1,max=256"`
	PoolSize            int `mapstructure:"pool_size" validate:"required,min=1,max=1024"`
	AcquireTimeoutMS    int `mapstructure:"acquire_timeout_ms" validate:"required,min=1"`
	IdleTTLSeconds      int `mapstructure:"idle_ttl_seconds" validate:"required,min=1"`
	IngestQueueBound    int `mapstructure:"ingest_queue_bound" validate:"required,min=1"`
	IngestFailFast      bool `mapstructure:"ingest_fail_fast"`
}

type ChunkingConfig struct {
	DefaultStrategy string `mapstructure:"default_strategy" validate:"required,oneof=recursive token markdown semantic"`
	ChunkSize       int    `mapstructure:"chunk_size" validate:"required,min=1"`
	ChunkOverlap    int    `mapstructure:"chunk_overlap" validate:"min=0"`
}

type JudgeConfig struct {
	ChunkingEnabled  bool `mapstructure:"chunking_enabled"`
	RetrievalEnabled bool `mapstructure:"retrieval_enabled"`
}

type RetrievalConfig struct {
	MaxIterations  int     `mapstructure:"max_iterations" validate:"required,min=1,max=10"`
	TopK           int     `mapstructure:"top_k" validate:"required,min=1,max=100"`
	RelevanceFloor float32 `mapstructure:"relevance_floor" validate:"min=0,max=1"`
	RefreshIntervalSeconds int `mapstructure:"refresh_interval_seconds" validate:"min=0"`
}

type ResponseConfig struct {
	RefinementEnabled      bool    `mapstructure:"refinement_enabled"`
	MaxRefinementPasses    int     `mapstructure:"max_refinement_passes" validate:"min=0,max=5"`
	QualityThreshold       float64 `mapstructure:"quality_threshold" validate:"min=0,max=10"`
	HallucinationThreshold float64 `mapstructure:"hallucination_threshold" validate:"min=0,max=10"`
}

type DeadlinesConfig struct {
	QueryMS int `mapstructure:"query_ms" validate:"required,min=1"`
	ToolMS  int `mapstructure:"tool_ms" validate:"required,min=1"`
	SlackMS int `mapstructure:"slack_ms" validate:"min=0"`
}

type LLMConfig struct {
	Provider   string `mapstructure:"provider" validate:"required,oneof=openai ollama mock"`
	Model      string `mapstructure:"model" validate:"required"`
	EmbedModel string `mapstructure:"embed_model" validate:"required"`
	BaseURL    string `mapstructure:"base_url"`
	APIKey     string `mapstructure:"api_key"`
	MaxRetries int    `mapstructure:"max_retries" validate:"min=0,max=10"`
}

type StoreConfig struct {
	DriverPath string `mapstructure:"driver_path" validate:"required"`
}

type BlobConfig struct {
	Backend string `mapstructure:"backend" validate:"required,oneof=memory s3"`
	Bucket  string `mapstructure:"bucket"`
	Region  string `mapstructure:"region"`
	Prefix  string `mapstructure:"prefix"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("resource.worker_pool_size", 4)
	v.SetDefault("resource.pool_size", 16)
	v.SetDefault("resource.acquire_timeout_ms", 5000)
	v.SetDefault("resource.idle_ttl_seconds", 300)
	v.SetDefault("resource.ingest_queue_bound", 1000)
	v.SetDefault("resource.ingest_fail_fast", false)

	v.SetDefault("chunking.default_strategy", "recursive")
	v.SetDefault("chunking.chunk_size", 500)
	v.SetDefault("chunking.chunk_overlap", 50)

	v.SetDefault("judge.chunking_enabled", true)
	v.SetDefault("judge.retrieval_enabled", true)

	v.SetDefault("retrieval.max_iterations", 2)
	v.SetDefault("retrieval.top_k", 5)
	v.SetDefault("retrieval.relevance_floor", 0.4)
	v.SetDefault("retrieval.refresh_interval_seconds", 30)

	v.SetDefault("response.refinement_enabled", true)
	v.SetDefault("response.max_refinement_passes", 1)
	v.SetDefault("response.quality_threshold", 7.0)
	v.SetDefault("response.hallucination_threshold", 8.0)

	v.SetDefault("deadlines.query_ms", 30000)
	v.SetDefault("deadlines.tool_ms", 10000)
	v.SetDefault("deadlines.slack_ms", 2000)

	v.SetDefault("llm.provider", "mock")
	v.SetDefault("llm.model", "local-chat")
	v.SetDefault("llm.embed_model", "local-embed")
	v.SetDefault("llm.base_url", "http://localhost:11434")
	v.SetDefault("llm.max_retries", 3)

	v.SetDefault("store.driver_path", "./hiverag.db")

	v.SetDefault("blob.backend", "memory")
	v.SetDefault("blob.prefix", "documents")
}

// Load reads configuration from (in increasing priority): built-in
// defaults, an optional YAML file, a loaded .env file, and environment
// variables prefixed HIVERAG_ (nested keys use "_", e.g.
// HIVERAG_RETRIEVAL_TOP_K). It fails fast with a Validation error if the
// result does not satisfy every struct tag constraint.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("HIVERAG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrap(errs.Validation, "config.Load", err, "failed to read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrap(errs.Validation, "config.Load", err, "failed to decode config")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	val := validator.New()
	if err := val.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return errs.Validationf("config.Load", fe.Namespace(), "%s", fmt.Sprintf("failed on %q constraint", fe.Tag()))
		}
		return errs.Wrap(errs.Validation, "config.Load", err, "validation failed")
	}
	return nil
}
