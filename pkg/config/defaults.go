package config

import (
	"github.com/seoforge/seoforge/pkg/models"
)

// SettingsDefaults carries the default run settings merged under any
// user-submitted settings.
type SettingsDefaults struct {
	Settings models.RunSettings `yaml:"settings"`
}

// DefaultScoringWeights returns the built-in per-tier weight profiles.
// Each profile sums to 1.0.
func DefaultScoringWeights() models.ScoringWeights {
	return models.ScoringWeights{
		Dream100: models.WeightProfile{
			Volume:    0.30,
			Intent:    0.25,
			Relevance: 0.20,
			Trend:     0.10,
			Ease:      0.15,
		},
		Tier2: models.WeightProfile{
			Volume:    0.25,
			Intent:    0.20,
			Relevance: 0.25,
			Trend:     0.10,
			Ease:      0.20,
		},
		Tier3: models.WeightProfile{
			Volume:    0.15,
			Intent:    0.20,
			Relevance: 0.30,
			Trend:     0.10,
			Ease:      0.25,
		},
	}
}

// DefaultRunSettings returns the built-in run settings. Every knob has an
// explicit default.
func DefaultRunSettings() models.RunSettings {
	return models.RunSettings{
		Market:   "US",
		Language: "en",

		MaxTotalKeywords: 10000,
		MaxDream100:      100,
		MaxTier2PerDream: 10,
		MaxTier3PerTier2: 10,

		EnableCompetitorScraping: false,
		EnableSERPAnalysis:       false,
		EnableSemanticVariations: true,

		SimilarityThreshold: 0.72,
		MinClusterSize:      3,
		MaxClusters:         100,

		QuickWinThreshold: 0.7,
		QualityThreshold:  0.6,
		ScoringWeights:    DefaultScoringWeights(),

		PostsPerMonth:    20,
		DurationMonths:   6,
		PillarRatio:      0.3,
		QuickWinPriority: true,

		BudgetLimit: 100,
	}
}

// DefaultSettingsDefaults wraps DefaultRunSettings for the loader.
func DefaultSettingsDefaults() *SettingsDefaults {
	return &SettingsDefaults{Settings: DefaultRunSettings()}
}
