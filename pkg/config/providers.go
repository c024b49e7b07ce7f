package config

import "time"

// MetricsProviderConfig describes one upstream keyword-metrics vendor.
type MetricsProviderConfig struct {
	// Name is the provider identifier used in usage accounting and the
	// MetricsRecord source field.
	Name string `yaml:"name"`

	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`

	// QuotaLimit is the request quota per reset window.
	QuotaLimit int64 `yaml:"quota_limit"`

	// QuotaResetInterval is how often the quota window resets.
	QuotaResetInterval time.Duration `yaml:"quota_reset_interval"`

	// CostPerRequest feeds budget enforcement.
	CostPerRequest float64 `yaml:"cost_per_request"`

	// CallTimeout bounds a single metrics call.
	CallTimeout time.Duration `yaml:"call_timeout"`

	Batcher BatcherConfig `yaml:"batcher"`
}

// LLMConfig describes the LLM provider used for expansion, intent
// classification, and cluster labeling.
type LLMConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`

	CostPer1KTokens float64       `yaml:"cost_per_1k_tokens"`
	CallTimeout     time.Duration `yaml:"call_timeout"`

	Batcher BatcherConfig `yaml:"batcher"`
}

// EmbeddingConfig describes the embedding provider and cache.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`

	BatchSize       int           `yaml:"batch_size"`
	CostPer1KTokens float64       `yaml:"cost_per_1k_tokens"`
	CallTimeout     time.Duration `yaml:"call_timeout"`

	// CacheCapacity is the in-process LRU capacity (entries).
	CacheCapacity int `yaml:"cache_capacity"`

	Batcher BatcherConfig `yaml:"batcher"`
}

// BatcherConfig controls the per-provider rate-limited batcher.
type BatcherConfig struct {
	// MaxPerWindow requests are admitted per Window, with bursts up to
	// BurstCapacity.
	MaxPerWindow  int           `yaml:"max_per_window"`
	Window        time.Duration `yaml:"window"`
	BurstCapacity int           `yaml:"burst_capacity"`

	// MaxInFlight bounds concurrent requests to the provider.
	MaxInFlight int `yaml:"max_in_flight"`

	// MaxRetries is the retry budget for retryable failures.
	MaxRetries int `yaml:"max_retries"`

	// InitialBackoff and MaxBackoff bound the exponential retry backoff.
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	// BreakerThreshold consecutive failures open the circuit for
	// BreakerCooldown; a half-open probe follows.
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`
}

// ProvidersConfig groups all external provider configuration.
type ProvidersConfig struct {
	// Metrics lists the configured keyword-metrics vendors in preference
	// order (used to break auto-selection ties deterministically).
	Metrics []MetricsProviderConfig `yaml:"metrics"`

	// MockFallback synthesizes metrics when no healthy provider remains.
	MockFallback bool `yaml:"mock_fallback"`

	// MockOnly short-circuits all providers to mocks (local development
	// and the end-to-end suite).
	MockOnly bool `yaml:"mock_only"`

	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`

	// HealthCheckInterval drives the background provider health monitor.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// DefaultBatcherConfig returns the built-in batcher defaults.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		MaxPerWindow:     60,
		Window:           time.Minute,
		BurstCapacity:    10,
		MaxInFlight:      4,
		MaxRetries:       3,
		InitialBackoff:   1 * time.Second,
		MaxBackoff:       30 * time.Second,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// DefaultProvidersConfig returns the built-in provider defaults: mock-only
// operation until real vendors are configured.
func DefaultProvidersConfig() *ProvidersConfig {
	return &ProvidersConfig{
		MockFallback: true,
		MockOnly:     true,
		LLM: LLMConfig{
			Model:           "gpt-4o-mini",
			CostPer1KTokens: 0.0006,
			CallTimeout:     60 * time.Second,
			Batcher:         DefaultBatcherConfig(),
		},
		Embedding: EmbeddingConfig{
			Model:           "text-embedding-3-small",
			BatchSize:       100,
			CostPer1KTokens: 0.00002,
			CallTimeout:     60 * time.Second,
			CacheCapacity:   50000,
			Batcher:         DefaultBatcherConfig(),
		},
		HealthCheckInterval: 30 * time.Second,
	}
}
