package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// FileName is the configuration file read from the config directory.
const FileName = "seoforge.yaml"

// fileConfig represents the complete seoforge.yaml structure. Unknown fields
// are rejected during decoding.
type fileConfig struct {
	Defaults  *SettingsDefaults `yaml:"defaults"`
	Queue     *QueueConfig      `yaml:"queue"`
	Providers *ProvidersConfig  `yaml:"providers"`
	Pipeline  *PipelineConfig   `yaml:"pipeline"`
}

// Initialize loads, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Read seoforge.yaml from configDir (optional; defaults apply when absent)
//  2. Parse YAML with unknown fields rejected
//  3. Merge user values over built-in defaults
//  4. Validate the result
func Initialize(configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg := &Config{
		configDir:       configDir,
		DefaultSettings: DefaultSettingsDefaults(),
		Queue:           DefaultQueueConfig(),
		Providers:       DefaultProvidersConfig(),
		Pipeline:        DefaultPipelineConfig(),
	}

	path := filepath.Join(configDir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("No configuration file found, using built-in defaults", "path", path)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConfigNotFound, path, err)
	}

	var file fileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}

	if file.Defaults != nil {
		if err := mergo.Merge(&cfg.DefaultSettings.Settings, file.Defaults.Settings, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging default settings: %w", err)
		}
	}
	if file.Queue != nil {
		if err := mergo.Merge(cfg.Queue, file.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging queue config: %w", err)
		}
	}
	if file.Providers != nil {
		if err := mergo.Merge(cfg.Providers, file.Providers, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging providers config: %w", err)
		}
	}
	if file.Pipeline != nil {
		if err := mergo.Merge(cfg.Pipeline, file.Pipeline, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging pipeline config: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	log.Info("Configuration loaded",
		"metrics_providers", len(cfg.Providers.Metrics),
		"mock_only", cfg.Providers.MockOnly,
		"workers", cfg.Queue.WorkerCount)
	return cfg, nil
}
