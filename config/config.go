// Package config loads subsystem configuration from the environment.
//
// Every tunable that the design leaves open (similarity thresholds, success
// bars, fetch timeouts, TTLs) is configuration here, not a hardcoded constant.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all settings for the memory subsystem and the agent loop.
type Config struct {
	// RedisAddr is the address of the key/value store.
	RedisAddr string

	// RedisPassword is the store password, empty for none.
	RedisPassword string

	// RedisDB is the store database index.
	RedisDB int

	// ShortTermTTL is the expiry for conversation logs.
	ShortTermTTL time.Duration

	// ShortTermLimit is the maximum number of turns fetched per retrieval.
	ShortTermLimit int

	// ShortTermMaxTokens is the token budget for the injected conversation
	// context. Oldest turns are dropped first until the context fits.
	ShortTermMaxTokens int

	// EpisodicTTL is the expiry for episodic events. Zero disables expiry.
	EpisodicTTL time.Duration

	// ProceduralTTL is the expiry for learned tool patterns.
	ProceduralTTL time.Duration

	// TopK is the default number of vector hits per retrieval.
	TopK int

	// FetchTimeout bounds each memory fetch in the coordinator fan-out. A
	// fetch that misses the deadline degrades to empty.
	FetchTimeout time.Duration

	// SimilarityThreshold gates the procedural similarity fallback.
	SimilarityThreshold float64

	// MinSuccessScore is the minimum average success score a pattern needs to
	// be suggested via similarity fallback. Exact matches are exempt.
	MinSuccessScore float64

	// MaxIterations caps the tool-calling loop.
	MaxIterations int

	// NumericTolerance is the relative tolerance when matching response
	// numbers against tool output.
	NumericTolerance float64

	// EmbeddingCacheTTL bounds how long cached embeddings are reused.
	EmbeddingCacheTTL time.Duration

	// EmbeddingModel is the embedding model name.
	EmbeddingModel string

	// AnthropicModel is the Claude model driving the loop.
	AnthropicModel string

	// MaxResponseTokens is the per-call response token cap.
	MaxResponseTokens int64
}

// Default returns the configuration used when no environment is set.
func Default() *Config {
	return &Config{
		RedisAddr:           "localhost:6379",
		ShortTermTTL:        24 * time.Hour,
		ShortTermLimit:      20,
		ShortTermMaxTokens:  2000,
		EpisodicTTL:         90 * 24 * time.Hour,
		ProceduralTTL:       30 * 24 * time.Hour,
		TopK:                3,
		FetchTimeout:        300 * time.Millisecond,
		SimilarityThreshold: 0.7,
		MinSuccessScore:     0.5,
		MaxIterations:       8,
		NumericTolerance:    0.10,
		EmbeddingCacheTTL:   time.Hour,
		EmbeddingModel:      "text-embedding-3-small",
		AnthropicModel:      "claude-sonnet-4-20250514",
		MaxResponseTokens:   4096,
	}
}

// Load reads configuration from the environment, consulting a .env file when
// present. Unset variables keep their defaults.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Default()
	cfg.RedisAddr = getEnv("AGENTMEM_REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = getEnv("AGENTMEM_REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisDB = getEnvInt("AGENTMEM_REDIS_DB", cfg.RedisDB)
	cfg.ShortTermTTL = getEnvDuration("AGENTMEM_SHORT_TERM_TTL", cfg.ShortTermTTL)
	cfg.ShortTermLimit = getEnvInt("AGENTMEM_SHORT_TERM_LIMIT", cfg.ShortTermLimit)
	cfg.ShortTermMaxTokens = getEnvInt("AGENTMEM_SHORT_TERM_MAX_TOKENS", cfg.ShortTermMaxTokens)
	cfg.EpisodicTTL = getEnvDuration("AGENTMEM_EPISODIC_TTL", cfg.EpisodicTTL)
	cfg.ProceduralTTL = getEnvDuration("AGENTMEM_PROCEDURAL_TTL", cfg.ProceduralTTL)
	cfg.TopK = getEnvInt("AGENTMEM_TOP_K", cfg.TopK)
	cfg.FetchTimeout = getEnvDuration("AGENTMEM_FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.SimilarityThreshold = getEnvFloat("AGENTMEM_SIMILARITY_THRESHOLD", cfg.SimilarityThreshold)
	cfg.MinSuccessScore = getEnvFloat("AGENTMEM_MIN_SUCCESS_SCORE", cfg.MinSuccessScore)
	cfg.MaxIterations = getEnvInt("AGENTMEM_MAX_ITERATIONS", cfg.MaxIterations)
	cfg.NumericTolerance = getEnvFloat("AGENTMEM_NUMERIC_TOLERANCE", cfg.NumericTolerance)
	cfg.EmbeddingCacheTTL = getEnvDuration("AGENTMEM_EMBEDDING_CACHE_TTL", cfg.EmbeddingCacheTTL)
	cfg.EmbeddingModel = getEnv("AGENTMEM_EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.AnthropicModel = getEnv("AGENTMEM_ANTHROPIC_MODEL", cfg.AnthropicModel)
	if v := getEnvInt("AGENTMEM_MAX_RESPONSE_TOKENS", 0); v > 0 {
		cfg.MaxResponseTokens = int64(v)
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
