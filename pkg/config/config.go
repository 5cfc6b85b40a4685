// Package config provides configuration loading and management for neurosegment.
// It handles loading configuration from YAML files and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"gopkg.in/yaml.v3"

	"neurosegment/pkg/logging"
)

// Config represents the application configuration loaded from YAML
type Config struct {
	// Processing parameters
	Processing struct {
		// NumCores bounds the number of slices labeled or scored concurrently
		NumCores int `yaml:"numCores"`
	} `yaml:"processing"`

	// Geometry-based sieving parameters
	Sieve struct {
		// Descriptors lists the geometric descriptors extracted per region.
		// The set is fixed at training time and stored with the model.
		Descriptors []string `yaml:"descriptors"`

		// Neighbors is the neighbourhood size of the local outlier factor
		Neighbors int `yaml:"neighbors"`

		// Offset is the decision threshold on the negated outlier factor;
		// regions scoring below it are outliers
		Offset float64 `yaml:"offset"`
	} `yaml:"sieve"`

	// Edge map parameters used before symmetry scoring
	Edges struct {
		// Percentile is the percentile of the Sobel response used as threshold
		Percentile float64 `yaml:"percentile"`

		// Invert keeps voxels at or below the threshold instead of above it.
		// FLAIR edges show up in the darkest tail of the Sobel response.
		Invert bool `yaml:"invert"`
	} `yaml:"edges"`

	// Symmetry scoring parameters
	Symmetry struct {
		// Slices restricts scoring to these axial slices; empty means all
		Slices []int `yaml:"slices,omitempty"`
	} `yaml:"symmetry"`

	// Logging output
	Logging logging.Config `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default

	cfg.Sieve.Descriptors = []string{
		"area", "bbox_area", "convex_area", "eccentricity", "equivalent_diameter", "extent",
		"inertia_tensor", "major_axis_length", "minor_axis_length",
		"moments_hu", "perimeter", "solidity",
	}
	cfg.Sieve.Neighbors = 20
	cfg.Sieve.Offset = -1.5

	cfg.Edges.Percentile = 3
	cfg.Edges.Invert = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"
	cfg.Logging.MaxSize = 100
	cfg.Logging.MaxAge = 28

	return cfg
}

// Validate checks that the configuration values are usable
func (c *Config) Validate() error {
	if c.Processing.NumCores < 1 {
		return fmt.Errorf("processing.numCores must be at least 1, got %d", c.Processing.NumCores)
	}
	if len(c.Sieve.Descriptors) == 0 {
		return fmt.Errorf("sieve.descriptors must not be empty")
	}
	if c.Sieve.Neighbors < 1 {
		return fmt.Errorf("sieve.neighbors must be at least 1, got %d", c.Sieve.Neighbors)
	}
	if c.Edges.Percentile < 0 || c.Edges.Percentile > 100 {
		return fmt.Errorf("edges.percentile must be within [0,100], got %g", c.Edges.Percentile)
	}
	for _, z := range c.Symmetry.Slices {
		if z < 0 {
			return fmt.Errorf("symmetry.slices must be non-negative, got %d", z)
		}
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
