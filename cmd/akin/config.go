package main

import (
	"github.com/spf13/cobra"

	"github.com/akinlab/akin/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change global configuration",
}

// ConfigShowResponse is the response for config show. The credential is
// reported as present/absent, never echoed.
type ConfigShowResponse struct {
	Path      string         `json:"path"`
	HasAPIKey bool           `json:"has_api_key"`
	Config    *config.Config `json:"config"`
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective global configuration",
	RunE:  runConfigShow,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	display := *cfg
	hasKey := cfg.ResolveAPIKey() != ""
	display.APIKey = ""

	if humanOutput {
		outputHuman("Config file: %s\n", config.Path())
		if hasKey {
			outputHuman("API key: set\n")
		} else {
			outputHuman("API key: not set (matches will use local fallback vectors)\n")
		}
		if display.Model != "" {
			outputHuman("Model: %s\n", display.Model)
		}
		if display.DefaultCollection != "" {
			outputHuman("Default collection: %s\n", display.DefaultCollection)
		}
		outputHuman("Data directory: %s\n", cfg.ResolveDataDir())
	} else {
		outputJSON(ConfigShowResponse{Path: config.Path(), HasAPIKey: hasKey, Config: &display})
	}
	return nil
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a global configuration value",
	Long: `Set one configuration key and write the config file.

Valid keys: api_key, api_base, model, dimension, requests_per_minute,
max_batch_size, max_retries, default_collection, data_dir.`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]

	cfg := mustLoadConfig()
	if err := cfg.Set(key, value); err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	if err := cfg.Save(); err != nil {
		exitWithError(ExitConfigError, "saving config: %v", err)
	}

	echo := value
	if key == "api_key" {
		echo = "(hidden)"
	}
	if humanOutput {
		outputHuman("Set %s = %s\n", key, echo)
	} else {
		outputJSON(UpdateResponse{Status: "updated", Key: key, Value: echo})
	}
	return nil
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file path",
	RunE:  runConfigPath,
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	if humanOutput {
		outputHuman("%s\n", config.Path())
	} else {
		outputJSON(StatusResponse{Status: "ok", Path: config.Path()})
	}
	return nil
}
