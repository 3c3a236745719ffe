package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/trackshift/platform/uplink/internal/config"
)

const (
	FlagConfig   = "config"
	FlagLogLevel = "log-level"
)

// Set with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("uplink exited")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	r := &cobra.Command{
		Use:           "uplink",
		Short:         "uplink hands out single-use upload endpoints on the local network.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	r.PersistentFlags().String(FlagConfig, "", "path to a YAML config file")
	r.PersistentFlags().String(FlagLogLevel, "", "log level override. debug|info|warn|error")

	r.AddCommand(serveCmd(), uploadCmd(), statsCmd(), historyCmd(), configCmd(), versionCmd())
	return r
}

// loadConfig reads the config named by --config and sets up the global logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString(FlagConfig)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if level, _ := cmd.Flags().GetString(FlagLogLevel); level != "" {
		cfg.Log.Level = level
	}
	if err := setupLogging(cfg.Log); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg config.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	switch cfg.Format {
	case "json":
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	case "", "console":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	log.Logger = log.Level(level)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "prints the version of uplink",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Version: %s\nCommit: %s\n", version, commit)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "manage the uplink config file",
	}
	c.AddCommand(&cobra.Command{
		Use:     "init [path]",
		Short:   "write the default config",
		Example: "  uplink config init uplink.yaml",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "uplink.yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			fmt.Printf("✓ Configuration written to %s\n", path)
			return nil
		},
	})
	return c
}
