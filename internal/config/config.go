// Package config provides unified configuration loading for fission.
// It supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FissionConfig contains all fission configuration settings.
type FissionConfig struct {
	// Simulation contains settings for the driver loop.
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`

	// Output contains settings for the step log, run history and console.
	Output OutputConfig `json:"output" yaml:"output"`

	// Seed contains settings for the initial graph.
	Seed SeedConfig `json:"seed" yaml:"seed"`

	// Logging contains settings for operational and transaction logging.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// SimulationConfig configures the driver.
type SimulationConfig struct {
	// MaxSteps bounds a run. 0 means unbounded.
	MaxSteps int `json:"max_steps" yaml:"max_steps"`

	// StalePolicy is "continue" (default) or "fail".
	StalePolicy string `json:"stale_policy" yaml:"stale_policy"`

	// RulesPath is a YAML reaction table. Empty selects the built-in table.
	RulesPath string `json:"rules_path,omitempty" yaml:"rules_path,omitempty"`
}

// OutputConfig configures what a run writes.
type OutputConfig struct {
	// CSVPath is the per-step log, truncated at run start. Empty disables it.
	CSVPath string `json:"csv_path" yaml:"csv_path"`

	// HistoryDir holds fission.db and transactions.jsonl. Empty means ~/.fission.
	HistoryDir string `json:"history_dir,omitempty" yaml:"history_dir,omitempty"`

	// History enables the SQLite run history.
	History bool `json:"history" yaml:"history"`

	// Redraw overwrites the console frame in place on every step.
	Redraw bool `json:"redraw" yaml:"redraw"`

	// MaxRows limits the particle rows in each console frame. 0 hides them.
	MaxRows int `json:"max_rows" yaml:"max_rows"`

	// Quiet suppresses per-step console frames.
	Quiet bool `json:"quiet" yaml:"quiet"`
}

// SeedConfig configures the initial graph.
type SeedConfig struct {
	// Path is a YAML seed file. Empty selects a random graph.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Vertices is the random graph size.
	Vertices int `json:"vertices" yaml:"vertices"`

	// EdgeProbability is the chance of each ordered pair being linked.
	// Range: 0.0 to 1.0
	EdgeProbability float64 `json:"edge_probability" yaml:"edge_probability"`

	// Species are drawn uniformly for random vertices.
	Species []string `json:"species" yaml:"species"`

	// Energy is the maximum initial energy of a random vertex.
	Energy int `json:"energy" yaml:"energy"`

	// RNGSeed makes random graphs reproducible.
	RNGSeed uint64 `json:"rng_seed" yaml:"rng_seed"`
}

// LoggingConfig configures fission's logging behavior.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", or "trace".
	// "debug" enables transaction logging to <history dir>/transactions.jsonl.
	// "trace" additionally logs every collected transaction to stderr.
	Level string `json:"level" yaml:"level"`
}

// Default returns a FissionConfig with sensible defaults.
func Default() *FissionConfig {
	return &FissionConfig{
		Simulation: SimulationConfig{
			MaxSteps:    10000,
			StalePolicy: "continue",
		},
		Output: OutputConfig{
			CSVPath: "out.csv",
			History: true,
			MaxRows: 8,
		},
		Seed: SeedConfig{
			Vertices:        32,
			EdgeProbability: 0.1,
			Species:         []string{"electron", "positron", "photon", "neutron", "nucleus"},
			Energy:          4,
			RNGSeed:         1,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns ~/.fission/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".fission", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.fission/config.yaml -> environment variables
func Load() (*FissionConfig, error) {
	config := Default()

	// Try to load from default config file
	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	// Apply environment variable overrides
	applyEnvOverrides(config)

	return config, nil
}

// LoadPath loads path when set and falls back to Load otherwise.
// Environment overrides apply in both cases.
func LoadPath(path string) (*FissionConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file.
func LoadFromFile(path string) (*FissionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Expand environment variables in paths
	config.Output.CSVPath = expandEnvVars(config.Output.CSVPath)
	config.Output.HistoryDir = expandEnvVars(config.Output.HistoryDir)
	config.Seed.Path = expandEnvVars(config.Seed.Path)
	config.Simulation.RulesPath = expandEnvVars(config.Simulation.RulesPath)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *FissionConfig) Validate() error {
	if c.Simulation.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative, got %d", c.Simulation.MaxSteps)
	}

	validPolicies := map[string]bool{"": true, "continue": true, "fail": true}
	if !validPolicies[c.Simulation.StalePolicy] {
		return fmt.Errorf("invalid stale_policy: %s (valid: continue, fail)", c.Simulation.StalePolicy)
	}

	if c.Output.MaxRows < 0 {
		return fmt.Errorf("max_rows must be non-negative, got %d", c.Output.MaxRows)
	}

	if c.Seed.Path == "" {
		if c.Seed.Vertices < 0 {
			return fmt.Errorf("seed vertices must be non-negative, got %d", c.Seed.Vertices)
		}
		if c.Seed.EdgeProbability < 0 || c.Seed.EdgeProbability > 1 {
			return fmt.Errorf("edge_probability must be between 0 and 1, got %f", c.Seed.EdgeProbability)
		}
		if c.Seed.Vertices > 0 && len(c.Seed.Species) == 0 {
			return fmt.Errorf("seed species must not be empty for a random graph")
		}
		if c.Seed.Energy < 0 {
			return fmt.Errorf("seed energy must be non-negative, got %d", c.Seed.Energy)
		}
	}

	validLevels := map[string]bool{"info": true, "debug": true, "trace": true}
	if c.Logging.Level != "" && !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: info, debug, trace, or empty for default)", c.Logging.Level)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(config *FissionConfig) {
	if v := os.Getenv("FISSION_MAX_STEPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Simulation.MaxSteps = n
		}
	}

	if v := os.Getenv("FISSION_STALE_POLICY"); v != "" {
		config.Simulation.StalePolicy = v
	}

	if v := os.Getenv("FISSION_RULES"); v != "" {
		config.Simulation.RulesPath = v
	}

	if v, ok := os.LookupEnv("FISSION_CSV"); ok {
		config.Output.CSVPath = v
	}

	if v := os.Getenv("FISSION_HISTORY_DIR"); v != "" {
		config.Output.HistoryDir = v
	}

	if v := os.Getenv("FISSION_HISTORY"); v != "" {
		config.Output.History = v == "true" || v == "1"
	}

	if v := os.Getenv("FISSION_REDRAW"); v != "" {
		config.Output.Redraw = v == "true" || v == "1"
	}

	if v := os.Getenv("FISSION_SEED_VERTICES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			config.Seed.Vertices = n
		}
	}

	if v := os.Getenv("FISSION_EDGE_PROBABILITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Seed.EdgeProbability = f
		}
	}

	if v := os.Getenv("FISSION_RNG_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			config.Seed.RNGSeed = n
		}
	}

	if v := os.Getenv("FISSION_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}
