package config

import "time"

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	configDir string

	// DefaultSettings are the run settings applied when a submitted run
	// omits a knob.
	DefaultSettings *SettingsDefaults

	// Queue and worker pool configuration.
	Queue *QueueConfig

	// Provider registries and per-provider batcher settings.
	Providers *ProvidersConfig

	// Pipeline holds orchestrator-level knobs (stage timeouts, gates).
	Pipeline *PipelineConfig
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string {
	return c.configDir
}

// PipelineConfig holds orchestrator-level knobs.
type PipelineConfig struct {
	// StageTimeouts are soft per-stage deadlines. Exceeding one is a hard
	// failure for the run.
	StageTimeouts map[string]time.Duration `yaml:"stage_timeouts"`

	// ProgressPersistStep is the minimum progress delta (percent) between
	// persisted progress snapshots.
	ProgressPersistStep float64 `yaml:"progress_persist_step"`

	// QualityGates toggles stage-boundary checks.
	QualityGates QualityGatesConfig `yaml:"quality_gates"`

	// MaxJobRetries is the per-job retry budget before the run fails.
	MaxJobRetries int `yaml:"max_job_retries"`
}

// QualityGatesConfig configures the stage-boundary quality gates.
type QualityGatesConfig struct {
	Enabled bool `yaml:"enabled"`

	// Strict promotes gate warnings to run failures.
	Strict bool `yaml:"strict"`

	// MinDream100 is the expansion gate threshold (warn below).
	MinDream100 int `yaml:"min_dream100"`

	// MinClusters is the clustering gate threshold (error below).
	MinClusters int `yaml:"min_clusters"`

	// MaxQuickWinRatio is the scoring gate sanity ceiling (warn above).
	MaxQuickWinRatio float64 `yaml:"max_quick_win_ratio"`
}

// DefaultPipelineConfig returns the built-in orchestrator defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		StageTimeouts: map[string]time.Duration{
			"expansion":  30 * time.Minute,
			"universe":   45 * time.Minute,
			"clustering": 30 * time.Minute,
			"scoring":    20 * time.Minute,
			"roadmap":    15 * time.Minute,
		},
		ProgressPersistStep: 10,
		QualityGates: QualityGatesConfig{
			Enabled:          true,
			Strict:           false,
			MinDream100:      50,
			MinClusters:      5,
			MaxQuickWinRatio: 0.8,
		},
		MaxJobRetries: 2,
	}
}
