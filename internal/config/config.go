// Package config loads the grading core's runtime configuration,
// mirroring pkg/config's YAML-file-plus-environment-fallback shape from
// the agent runtime this module grew out of.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds every recognized option plus the provider credentials
// and cache address needed to construct the clients that implement the
// abstract interfaces the core consumes.
type Config struct {
	DivergenceThreshold        float64 `yaml:"divergence_threshold"`
	MaxRetries                 int     `yaml:"max_retries"`
	RetryBaseDelaySeconds       float64 `yaml:"retry_base_delay_s"`
	RetryMaxDelaySeconds         float64 `yaml:"retry_max_delay_s"`
	RetrievalK                  int     `yaml:"retrieval_k"`
	BatchChunkSize               int     `yaml:"batch_chunk_size"`
	BatchCooldownSeconds          float64 `yaml:"batch_cooldown_s"`
	PipelineDeadlineSeconds        float64 `yaml:"pipeline_deadline_s"`
	GraderTemperature              float64 `yaml:"model_temperature_graders"`

	// DisableScaleHeuristic turns off the "criteria <= 1.0 implies a
	// [0,1] scale" normalization rule. Default false.
	DisableScaleHeuristic bool `yaml:"disable_scale_heuristic"`

	// FailClosedOnEmptyRetrieval fails the pipeline instead of
	// continuing with an empty snippet list. Default false: continue
	// with a warning.
	FailClosedOnEmptyRetrieval bool `yaml:"fail_closed_on_empty_retrieval"`

	// ArbiterProvider selects the chat backend used for the ARBITER
	// role; "openai" (default) or "bedrock".
	ArbiterProvider string `yaml:"arbiter_provider"`
	// GraderProvider selects the chat backend used for GRADER_A/B;
	// "openai" (default) or "bedrock". GRADER_A and GRADER_B always run
	// on the same provider/model but as independent invocations.
	GraderProvider string `yaml:"grader_provider"`

	GraderModel  string `yaml:"grader_model"`
	ArbiterModel string `yaml:"arbiter_model"`

	OpenAIKey      string `yaml:"openai_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	AnthropicKey   string `yaml:"anthropic_key"`
	BedrockRegion  string `yaml:"bedrock_region"`
	GenAIKey       string `yaml:"genai_key"`

	EmbeddingProvider string `yaml:"embedding_provider"` // "openai" or "genai"
	EmbeddingModel    string `yaml:"embedding_model"`

	VectorProvider        string `yaml:"vector_provider"` // "memory" or "firestore"
	RetrievalCacheRedisAddr string `yaml:"retrieval_cache_redis_addr"`
	RetrievalCacheTTLSeconds float64 `yaml:"retrieval_cache_ttl_s"`

	FirestoreProject           string `yaml:"firestore_project"`
	FirestoreVectorCollection  string `yaml:"firestore_vector_collection"`
	FirestoreRubricCollection  string `yaml:"firestore_rubric_collection"`
	FirestoreGradingCollection string `yaml:"firestore_grading_collection"`

	// GradingStoreEnabled turns on the optional Firestore sink for
	// completed Grading Records, used by the external analytics
	// collaborator. Default false: results stay in-memory only.
	GradingStoreEnabled bool `yaml:"grading_store_enabled"`

	TracingEnabled      bool   `yaml:"tracing_enabled"`
	TracingExporterType string `yaml:"tracing_exporter_type"` // "otlp", "stdout", "none"
	TracingOTLPEndpoint string `yaml:"tracing_otlp_endpoint"`

	MetricsAddr string `yaml:"metrics_addr"`
}

// LoadConfig reads a YAML file, applies defaults, then overlays
// environment variables for any credential left unset in the file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvFallback(&cfg)

	return &cfg, nil
}

// Default returns a Config with every field set to its documented
// default, ignoring any file or environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.DivergenceThreshold == 0 {
		cfg.DivergenceThreshold = 1.5
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 10
	}
	if cfg.RetryBaseDelaySeconds == 0 {
		cfg.RetryBaseDelaySeconds = 4
	}
	if cfg.RetryMaxDelaySeconds == 0 {
		cfg.RetryMaxDelaySeconds = 60
	}
	if cfg.RetrievalK == 0 {
		cfg.RetrievalK = 4
	}
	if cfg.BatchChunkSize == 0 {
		cfg.BatchChunkSize = 4
	}
	// BatchCooldownSeconds default 0: zero value is already correct.
	if cfg.PipelineDeadlineSeconds == 0 {
		cfg.PipelineDeadlineSeconds = 120
	}
	// GraderTemperature default 0: zero value is already correct.
	if cfg.ArbiterProvider == "" {
		cfg.ArbiterProvider = "openai"
	}
	if cfg.GraderProvider == "" {
		cfg.GraderProvider = "openai"
	}
	if cfg.GraderModel == "" {
		cfg.GraderModel = "gpt-4o-mini"
	}
	if cfg.ArbiterModel == "" {
		cfg.ArbiterModel = cfg.GraderModel
	}
	if cfg.EmbeddingProvider == "" {
		cfg.EmbeddingProvider = "openai"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.VectorProvider == "" {
		cfg.VectorProvider = "memory"
	}
	if cfg.RetrievalCacheTTLSeconds == 0 {
		cfg.RetrievalCacheTTLSeconds = 300
	}
	if cfg.FirestoreVectorCollection == "" {
		cfg.FirestoreVectorCollection = "exam_snippets"
	}
	if cfg.FirestoreRubricCollection == "" {
		cfg.FirestoreRubricCollection = "exam_questions"
	}
	if cfg.FirestoreGradingCollection == "" {
		cfg.FirestoreGradingCollection = "grading_records"
	}
	if cfg.TracingExporterType == "" {
		cfg.TracingExporterType = "none"
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = ":9090"
	}
}

func applyEnvFallback(cfg *Config) {
	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.AnthropicKey == "" {
		cfg.AnthropicKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.BedrockRegion == "" {
		cfg.BedrockRegion = os.Getenv("AWS_REGION")
	}
	if cfg.RetrievalCacheRedisAddr == "" {
		cfg.RetrievalCacheRedisAddr = os.Getenv("REDIS_ADDR")
	}
	if cfg.FirestoreProject == "" {
		cfg.FirestoreProject = os.Getenv("GCP_PROJECT")
	}
	if cfg.GenAIKey == "" {
		cfg.GenAIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate reports whether the configuration is internally consistent
// and has an OpenAI or Anthropic API key set. It does not check that the
// selected chat providers can use that key.
func (c *Config) Validate() error {
	if c.DivergenceThreshold <= 0 {
		return fmt.Errorf("divergence_threshold must be positive")
	}
	if c.RetrievalK < 1 || c.RetrievalK > 20 {
		return fmt.Errorf("retrieval_k must be in [1,20], got %d", c.RetrievalK)
	}
	if c.BatchChunkSize < 1 || c.BatchChunkSize > 64 {
		return fmt.Errorf("batch_chunk_size must be in [1,64], got %d", c.BatchChunkSize)
	}
	if c.BatchCooldownSeconds < 0 {
		return fmt.Errorf("batch_cooldown_s must be non-negative")
	}
	if c.OpenAIKey == "" && c.AnthropicKey == "" {
		return fmt.Errorf("at least one chat provider credential must be configured")
	}
	return nil
}

// SaveConfig writes cfg back to path as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
