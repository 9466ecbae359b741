package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/provsync/internal/boot"
	"github.com/memohai/provsync/internal/config"
	"github.com/memohai/provsync/internal/logger"
	"github.com/memohai/provsync/internal/version"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "provsync",
	Short: "Keep AI coding tools pointed at the same providers",
	Long: `provsync keeps one registry of AI API providers and deploys it into the
configuration files of OpenCode, Claude Code, Codex CLI, Gemini CLI and cc-switch.

Commands:
  discover                   List providers already configured in the tools
  import                     Copy discovered providers into the registry
  providers                  Manage the registry
  probe <name>               Measure a provider's endpoints
  apply                      Write registry providers into tool configs
  remove                     Drop providers from tool configs
  serve                      Run the local HTTP API

Every command prints JSON on stdout; logs go to stderr.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "Path to provsync.toml")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(version.Current())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// withApp wires the engine for a one-shot command and closes it afterwards.
func withApp(fn func(app *boot.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	app, err := boot.NewApp(logger.L, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.L.Warn("close registry store", slog.Any("error", err))
		}
	}()
	return fn(app)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
