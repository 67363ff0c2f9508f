package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aretw0/gocare"
	"github.com/aretw0/gocare/internal/cli"
	"github.com/aretw0/gocare/internal/config"
	"github.com/aretw0/gocare/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gocare",
	Short: "gocare runs an authenticated voice support line",
	Long: `gocare orchestrates support calls through greeting, verification, account
help, the specialist helpline and lockout, over HTTP, websocket, MCP or the terminal.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (YAML or JSON); defaults to ./"+config.DefaultPath+" when present")
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Extra .env files to load (default .env)")
	rootCmd.PersistentFlags().String("log-level", "", "Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "Override log format (text, json)")
}

// loadConfig reads .env files, the config file and flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		cfg.Log.Format = format
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format)
}

// buildApp loads the config and wires the application.
func buildApp(ctx context.Context, cmd *cobra.Command, mutate ...func(*config.Config)) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	for _, m := range mutate {
		m(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cli.Build(ctx, cfg, newLogger(cfg), gocare.Version)
}
