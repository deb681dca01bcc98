package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pario-ai/sqlactor/pkg/actor"
	"github.com/pario-ai/sqlactor/pkg/config"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	dbPath     string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "sqlactor",
		Short:         "Serialized SQLite access with a prepared statement cache",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "sqlactor.yaml", "path to config file")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "database path (overrides db_path)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newQueryCmd(&g),
		newExecCmd(&g),
		newPrepareCmd(&g),
		newDDLCmd(&g),
		newServeCmd(&g),
		newMCPCmd(&g),
		newStatsCmd(),
	)

	return root
}

// loadConfig reads the config file. A missing file is only an error when
// --config was given explicitly.
func loadConfig(cmd *cobra.Command, g *globalFlags) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) || cmd.Flags().Changed("config") {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = config.Default()
	}
	if g.dbPath != "" {
		cfg.DBPath = g.dbPath
	}
	if g.logLevel != "" {
		cfg.LogLevel = g.logLevel
	}
	return cfg, nil
}

// newLogger writes text logs to stderr so that stdout stays clean for
// results and the MCP stream.
func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

// openDB loads the configuration and starts an actor on the configured
// database. The caller must Close it.
func openDB(ctx context.Context, cmd *cobra.Command, g *globalFlags) (*actor.Conn, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)
	config.SetProcessDefaults(cfg.Options)

	db, err := actor.Open(ctx, cfg.DBPath,
		actor.WithPassword(cfg.DBPassword),
		actor.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	return db, cfg, logger, nil
}
