package config

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/seoforge/seoforge/pkg/models"
)

// validate is the shared struct validator. It is stateless and safe for
// concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// WeightSumTolerance is the allowed deviation of a weight profile from 1.0.
const WeightSumTolerance = 0.01

// Validate performs comprehensive validation of the loaded configuration
// (fail-fast, stops at first error).
func Validate(cfg *Config) error {
	if err := ValidateRunSettings(cfg.DefaultSettings.Settings); err != nil {
		return fmt.Errorf("%w: defaults: %v", ErrValidationFailed, err)
	}
	if err := validateQueue(cfg.Queue); err != nil {
		return fmt.Errorf("%w: queue: %v", ErrValidationFailed, err)
	}
	if err := validateProviders(cfg.Providers); err != nil {
		return fmt.Errorf("%w: providers: %v", ErrValidationFailed, err)
	}
	if cfg.Pipeline.ProgressPersistStep <= 0 || cfg.Pipeline.ProgressPersistStep > 100 {
		return NewValidationError("pipeline", "progress_persist_step", fmt.Errorf("must be in (0,100], got %v", cfg.Pipeline.ProgressPersistStep))
	}
	return nil
}

// ValidateRunSettings checks a full run settings record: struct tags plus the
// cross-field rules the tags cannot express.
func ValidateRunSettings(s models.RunSettings) error {
	if err := validate.Struct(s); err != nil {
		return err
	}

	profiles := map[string]models.WeightProfile{
		"dream100": s.ScoringWeights.Dream100,
		"tier2":    s.ScoringWeights.Tier2,
		"tier3":    s.ScoringWeights.Tier3,
	}
	for name, p := range profiles {
		if math.Abs(p.Sum()-1.0) > WeightSumTolerance {
			return NewValidationError("scoring_weights", name,
				fmt.Errorf("weights must sum to 1.0 ± %.2f, got %.4f", WeightSumTolerance, p.Sum()))
		}
	}

	if s.MinClusterSize >= s.MaxTotalKeywords {
		return NewValidationError("settings", "min_cluster_size",
			fmt.Errorf("must be smaller than max_total_keywords"))
	}

	for _, f := range s.Seasonal {
		if !validMonthDay(f.StartDate) || !validMonthDay(f.EndDate) {
			return NewValidationError("seasonal", f.Name,
				fmt.Errorf("dates must be MM-DD, got %q..%q", f.StartDate, f.EndDate))
		}
	}
	return nil
}

func validateQueue(q *QueueConfig) error {
	if q.WorkerCount < 1 {
		return NewValidationError("queue", "worker_count", fmt.Errorf("must be at least 1"))
	}
	if q.MaxConcurrentRuns < 1 {
		return NewValidationError("queue", "max_concurrent_runs", fmt.Errorf("must be at least 1"))
	}
	if q.HeartbeatInterval <= 0 || q.OrphanThreshold <= q.HeartbeatInterval {
		return NewValidationError("queue", "orphan_threshold", fmt.Errorf("must exceed heartbeat_interval"))
	}
	return nil
}

func validateProviders(p *ProvidersConfig) error {
	if !p.MockOnly && len(p.Metrics) == 0 && !p.MockFallback {
		return NewValidationError("providers", "metrics",
			fmt.Errorf("no metrics providers configured and mock fallback disabled"))
	}
	seen := make(map[string]bool)
	for _, m := range p.Metrics {
		if m.Name == "" {
			return NewValidationError("providers", "metrics", fmt.Errorf("provider name required"))
		}
		if seen[m.Name] {
			return NewValidationError("providers", "metrics", fmt.Errorf("duplicate provider %q", m.Name))
		}
		seen[m.Name] = true
		if m.QuotaLimit <= 0 {
			return NewValidationError("providers", m.Name, fmt.Errorf("quota_limit must be positive"))
		}
		if err := validateBatcher(m.Name, m.Batcher); err != nil {
			return err
		}
	}
	if err := validateBatcher("llm", p.LLM.Batcher); err != nil {
		return err
	}
	if err := validateBatcher("embedding", p.Embedding.Batcher); err != nil {
		return err
	}
	if p.Embedding.BatchSize < 1 {
		return NewValidationError("providers", "embedding.batch_size", fmt.Errorf("must be at least 1"))
	}
	return nil
}

func validateBatcher(name string, b BatcherConfig) error {
	if b.MaxPerWindow < 1 || b.Window <= 0 {
		return NewValidationError("batcher", name, fmt.Errorf("max_per_window and window must be positive"))
	}
	if b.MaxInFlight < 1 {
		return NewValidationError("batcher", name, fmt.Errorf("max_in_flight must be at least 1"))
	}
	if b.BreakerThreshold < 1 {
		return NewValidationError("batcher", name, fmt.Errorf("breaker_threshold must be at least 1"))
	}
	return nil
}

func validMonthDay(s string) bool {
	if len(s) != 5 || s[2] != '-' {
		return false
	}
	month := int(s[0]-'0')*10 + int(s[1]-'0')
	day := int(s[3]-'0')*10 + int(s[4]-'0')
	for _, c := range []byte{s[0], s[1], s[3], s[4]} {
		if c < '0' || c > '9' {
			return false
		}
	}
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}
