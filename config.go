package ragpipe

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the RAG engine. Zero values fall
// back to the documented defaults; ConfigFromEnv applies RAG_-prefixed
// environment overrides on top.
type Config struct {
	// Redis connection URL for the cache tiers. Empty selects the
	// in-process cache backend.
	RedisAddr     string `json:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `json:"redis_password" yaml:"redis_password"`
	RedisDB       int    `json:"redis_db" yaml:"redis_db"`

	// KafkaBrokers selects the Kafka bus; empty uses the in-process
	// bus.
	KafkaBrokers []string `json:"kafka_brokers" yaml:"kafka_brokers"`

	// VectorBackend is one of "memory", "sqlite", "qdrant".
	VectorBackend string `json:"vector_backend" yaml:"vector_backend"`
	// SQLiteVecPath is the database file for the sqlite backend.
	SQLiteVecPath string `json:"sqlitevec_path" yaml:"sqlitevec_path"`
	QdrantHost    string `json:"qdrant_host" yaml:"qdrant_host"`
	QdrantPort    int    `json:"qdrant_port" yaml:"qdrant_port"`
	QdrantAPIKey  string `json:"qdrant_api_key" yaml:"qdrant_api_key"`

	// Generator selects answer generation: "mock" or "llm".
	Generator string    `json:"generator" yaml:"generator"`
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	// Rewrite optionally points query rewriting and history
	// summarization at a lighter model; defaults to Chat.
	Rewrite LLMConfig `json:"rewrite" yaml:"rewrite"`

	// Embedding dimensions for the dual-resolution vectors.
	DimLight int `json:"dim_light" yaml:"dim_light"`
	DimDense int `json:"dim_dense" yaml:"dim_dense"`

	// Retrieval depths.
	L1TopK int `json:"l1_topk" yaml:"l1_topk"`
	L2TopK int `json:"l2_topk" yaml:"l2_topk"`
	TopK   int `json:"top_k" yaml:"top_k"`
	// DiffThreshold is the rerank cliff-cutoff gap.
	DiffThreshold float64 `json:"diff_threshold" yaml:"diff_threshold"`

	// Cache tiers.
	ExactTTL          time.Duration `json:"exact_ttl" yaml:"exact_ttl"`
	SemanticTTL       time.Duration `json:"semantic_ttl" yaml:"semantic_ttl"`
	SessionTTL        time.Duration `json:"session_ttl" yaml:"session_ttl"`
	SemanticThreshold float64       `json:"semantic_threshold" yaml:"semantic_threshold"`

	// TokenBudget bounds the prompt (system + history + query) and
	// triggers background history compression when a session grows
	// past it.
	TokenBudget int `json:"token_budget" yaml:"token_budget"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // ollama, lmstudio, openrouter, openai, groq, xai, gemini, custom
	Model    string `json:"model" yaml:"model"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	APIKey   string `json:"api_key" yaml:"api_key"`
}

// DefaultConfig returns a Config with the documented defaults: fully
// in-process backends and the mock generator, suitable for the demo
// and for tests.
func DefaultConfig() Config {
	return Config{
		VectorBackend:     "memory",
		Generator:         "mock",
		DimLight:          384,
		DimDense:          768,
		L1TopK:            1500,
		L2TopK:            80,
		TopK:              10,
		DiffThreshold:     0.8,
		ExactTTL:          24 * time.Hour,
		SemanticTTL:       24 * time.Hour,
		SessionTTL:        2 * time.Hour,
		SemanticThreshold: 0.92,
		TokenBudget:       4000,
	}
}

// ConfigFromEnv builds a Config from defaults plus RAG_-prefixed
// environment variables.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	envString(&cfg.RedisAddr, "RAG_REDIS_ADDR")
	envString(&cfg.RedisPassword, "RAG_REDIS_PASSWORD")
	envInt(&cfg.RedisDB, "RAG_REDIS_DB")
	if v := os.Getenv("RAG_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = strings.Split(v, ",")
	}

	envString(&cfg.VectorBackend, "RAG_VECTOR_BACKEND")
	envString(&cfg.SQLiteVecPath, "RAG_SQLITEVEC_PATH")
	envString(&cfg.QdrantHost, "RAG_QDRANT_HOST")
	envInt(&cfg.QdrantPort, "RAG_QDRANT_PORT")
	envString(&cfg.QdrantAPIKey, "RAG_QDRANT_API_KEY")

	envString(&cfg.Generator, "RAG_GENERATOR")
	envString(&cfg.Chat.Provider, "RAG_LLM_PROVIDER")
	envString(&cfg.Chat.Model, "RAG_LLM_MODEL")
	envString(&cfg.Chat.BaseURL, "RAG_LLM_BASE_URL")
	envString(&cfg.Chat.APIKey, "RAG_LLM_API_KEY")
	envString(&cfg.Rewrite.Provider, "RAG_REWRITE_PROVIDER")
	envString(&cfg.Rewrite.Model, "RAG_REWRITE_MODEL")
	envString(&cfg.Rewrite.BaseURL, "RAG_REWRITE_BASE_URL")
	envString(&cfg.Rewrite.APIKey, "RAG_REWRITE_API_KEY")

	envInt(&cfg.DimLight, "RAG_DIM_LIGHT")
	envInt(&cfg.DimDense, "RAG_DIM_DENSE")
	envInt(&cfg.L1TopK, "RAG_L1_TOPK")
	envInt(&cfg.L2TopK, "RAG_L2_TOPK")
	envInt(&cfg.TopK, "RAG_TOP_K")
	envFloat(&cfg.DiffThreshold, "RAG_DIFF_THRESHOLD")

	envDuration(&cfg.ExactTTL, "RAG_EXACT_TTL")
	envDuration(&cfg.SemanticTTL, "RAG_SEMANTIC_TTL")
	envDuration(&cfg.SessionTTL, "RAG_SESSION_TTL")
	envFloat(&cfg.SemanticThreshold, "RAG_SEMANTIC_THRESHOLD")
	envInt(&cfg.TokenBudget, "RAG_TOKEN_BUDGET")

	return cfg
}

// rewriteLLM resolves the rewrite endpoint, defaulting to Chat.
func (c Config) rewriteLLM() LLMConfig {
	if c.Rewrite.Provider != "" {
		return c.Rewrite
	}
	return c.Chat
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
