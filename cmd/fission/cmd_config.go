package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nvandessel/fission/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage fission configuration",
		Long: `View and modify fission configuration settings.

Configuration is stored in ~/.fission/config.yaml unless --config is given.

Examples:
  fission config list                          # Show all settings
  fission config get simulation.max_steps      # Get a specific setting
  fission config set output.redraw true        # Set a setting
  fission config validate                      # Check the effective config`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigGetCmd(),
		newConfigSetCmd(),
		newConfigValidateCmd(),
	)

	return cmd
}

// configKeys lists every key accepted by get and set, in display order.
var configKeys = []string{
	"simulation.max_steps",
	"simulation.stale_policy",
	"simulation.rules_path",
	"output.csv_path",
	"output.history_dir",
	"output.history",
	"output.redraw",
	"output.max_rows",
	"output.quiet",
	"seed.path",
	"seed.vertices",
	"seed.edge_probability",
	"seed.species",
	"seed.energy",
	"seed.rng_seed",
	"logging.level",
}

func loadConfigFlag(cmd *cobra.Command) (*config.FissionConfig, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfigFlag(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOut {
				return json.NewEncoder(out).Encode(cfg)
			}

			section := ""
			for _, key := range configKeys {
				prefix := key[:strings.Index(key, ".")]
				if prefix != section {
					if section != "" {
						fmt.Fprintln(out)
					}
					fmt.Fprintf(out, "%s:\n", prefix)
					section = prefix
				}
				value, _ := getConfigValue(cfg, key)
				fmt.Fprintf(out, "  %-24s %v\n", key+":", displayValue(value))
			}
			return nil
		},
	}
}

func displayValue(v interface{}) interface{} {
	switch s := v.(type) {
	case string:
		return valueOrDefault(s, "(not set)")
	case []string:
		return strings.Join(s, ",")
	default:
		return v
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key := args[0]

			cfg, err := loadConfigFlag(cmd)
			if err != nil {
				return err
			}

			value, found := getConfigValue(cfg, key)
			if !found {
				return fmt.Errorf("unknown configuration key: %s", key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{key: value})
			}
			fmt.Fprintln(cmd.OutOrStdout(), displayValue(value))
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			key, value := args[0], args[1]

			path, err := configFilePath(cmd)
			if err != nil {
				return err
			}

			// Start from the file alone so env overrides are not persisted.
			cfg := config.Default()
			if _, statErr := os.Stat(path); statErr == nil {
				cfg, err = config.LoadFromFile(path)
				if err != nil {
					return err
				}
			}

			if err := setConfigValue(cfg, key, value); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if err := saveConfig(path, cfg); err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]interface{}{
					"status": "ok",
					"key":    key,
					"path":   path,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, path)
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := loadConfigFlag(cmd)
			if err != nil {
				return err
			}
			verr := cfg.Validate()

			if jsonOut {
				result := map[string]interface{}{"valid": verr == nil}
				if verr != nil {
					result["error"] = verr.Error()
				}
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(result); err != nil {
					return err
				}
				return verr
			}
			if verr != nil {
				return fmt.Errorf("invalid config: %w", verr)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
			return nil
		},
	}
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.FissionConfig, key string) (interface{}, bool) {
	switch key {
	case "simulation.max_steps":
		return cfg.Simulation.MaxSteps, true
	case "simulation.stale_policy":
		return cfg.Simulation.StalePolicy, true
	case "simulation.rules_path":
		return cfg.Simulation.RulesPath, true
	case "output.csv_path":
		return cfg.Output.CSVPath, true
	case "output.history_dir":
		return cfg.Output.HistoryDir, true
	case "output.history":
		return cfg.Output.History, true
	case "output.redraw":
		return cfg.Output.Redraw, true
	case "output.max_rows":
		return cfg.Output.MaxRows, true
	case "output.quiet":
		return cfg.Output.Quiet, true
	case "seed.path":
		return cfg.Seed.Path, true
	case "seed.vertices":
		return cfg.Seed.Vertices, true
	case "seed.edge_probability":
		return cfg.Seed.EdgeProbability, true
	case "seed.species":
		return cfg.Seed.Species, true
	case "seed.energy":
		return cfg.Seed.Energy, true
	case "seed.rng_seed":
		return cfg.Seed.RNGSeed, true
	case "logging.level":
		return cfg.Logging.Level, true
	default:
		return nil, false
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.FissionConfig, key, value string) error {
	parseBool := func() bool { return value == "true" || value == "1" }
	parseInt := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %s", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "simulation.max_steps":
		cfg.Simulation.MaxSteps, err = parseInt()
	case "simulation.stale_policy":
		cfg.Simulation.StalePolicy = value
	case "simulation.rules_path":
		cfg.Simulation.RulesPath = value
	case "output.csv_path":
		cfg.Output.CSVPath = value
	case "output.history_dir":
		cfg.Output.HistoryDir = value
	case "output.history":
		cfg.Output.History = parseBool()
	case "output.redraw":
		cfg.Output.Redraw = parseBool()
	case "output.max_rows":
		cfg.Output.MaxRows, err = parseInt()
	case "output.quiet":
		cfg.Output.Quiet = parseBool()
	case "seed.path":
		cfg.Seed.Path = value
	case "seed.vertices":
		cfg.Seed.Vertices, err = parseInt()
	case "seed.edge_probability":
		f, perr := strconv.ParseFloat(value, 64)
		if perr != nil {
			return fmt.Errorf("invalid probability: %s (must be a number between 0 and 1)", value)
		}
		cfg.Seed.EdgeProbability = f
	case "seed.species":
		var species []string
		for _, s := range strings.Split(value, ",") {
			if s = strings.TrimSpace(s); s != "" {
				species = append(species, s)
			}
		}
		cfg.Seed.Species = species
	case "seed.energy":
		cfg.Seed.Energy, err = parseInt()
	case "seed.rng_seed":
		n, perr := strconv.ParseUint(value, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid rng seed: %s", value)
		}
		cfg.Seed.RNGSeed = n
	case "logging.level":
		cfg.Logging.Level = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

// configFilePath returns --config or ~/.fission/config.yaml.
func configFilePath(cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		return path, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return path, nil
}

// saveConfig writes the configuration as YAML to path.
func saveConfig(path string, cfg *config.FissionConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func valueOrDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
