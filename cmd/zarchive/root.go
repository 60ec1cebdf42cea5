package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BadgerOps/zarchive/internal/archive"
	"github.com/BadgerOps/zarchive/internal/config"
	"github.com/BadgerOps/zarchive/internal/store"
	"github.com/BadgerOps/zarchive/internal/zos"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	noHistory bool
	globalCfg *config.Config
	logger    = slog.Default()

	// Global components
	globalStore    *store.Store
	globalClient   *zos.Client
	globalArchiver *archive.Archiver
)

// initializeComponents builds the utility client, the archiver and, unless
// disabled, the history store
func initializeComponents() error {
	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}

	globalClient = zos.NewClient(zos.NewExecRunner(logger), globalCfg.Binaries(), logger)
	globalArchiver = archive.New(globalClient, archive.Options{TmpHLQ: globalCfg.ZOS.TmpHLQ}, logger)

	if noHistory || !globalCfg.History.Enabled {
		return nil
	}
	dbPath, err := globalCfg.HistoryDBPath()
	if err != nil {
		logger.Warn("run history disabled", "error", err)
		return nil
	}
	st, err := store.New(dbPath, logger)
	if err != nil {
		// History is best effort; the run itself must not depend on it.
		logger.Warn("run history disabled", "path", dbPath, "error", err)
		return nil
	}
	globalStore = st
	return nil
}

// shouldSkipComponentInit checks if a command should skip component initialization
func shouldSkipComponentInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"show":    true,
	}
	return skipInitCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
		globalStore = nil
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zarchive",
		Short: "Archive and unarchive USS files and MVS data sets on z/OS",
		Long: `zarchive packs USS files into tar, pax, gzip, bzip2 or zip archives, and
MVS data sets into AMATERSE or TSO XMIT data sets (optionally wrapped in an
ADRDSSU dump), and unpacks them again. Each invocation runs one request and
prints its result as JSON on stdout.`,
		Example: `  zarchive archive --src /u/user/logs --dest /u/user/logs.tar.gz --format gz
  zarchive archive --src 'USER.DATA.*' --dest USER.DATA.TRS --format terse --use-adrdssu
  zarchive unarchive --src USER.DATA.TRS --format terse --use-adrdssu --list
  zarchive unarchive --params request.yaml
  zarchive history --failed`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(logLevel, logFormat)

			if cfgPath == "" {
				var err error
				cfgPath, err = config.FindConfigFile()
				if err != nil {
					logger.Debug("config file not found, using defaults", "error", err)
				}
			}

			if cfgPath != "" {
				var err error
				globalCfg, err = config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
			} else {
				globalCfg = config.DefaultConfig()
			}

			// Flags win over the config file
			level, format := globalCfg.Log.Level, globalCfg.Log.Format
			if cmd.Flags().Changed("log-level") {
				level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				format = logFormat
			}
			setupLogging(level, format)
			logger.Debug("config loaded", "path", cfgPath)

			if !shouldSkipComponentInit(cmd.Name()) {
				if err := initializeComponents(); err != nil {
					return fmt.Errorf("failed to initialize components: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&noHistory, "no-history", false, "do not record this run in the history database")

	cmd.AddCommand(
		newArchiveCmd(),
		newUnarchiveCmd(),
		newHistoryCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging installs a stderr slog handler; stdout carries the result
func setupLogging(levelName, format string) {
	var level slog.Level
	switch strings.ToLower(levelName) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if strings.ToLower(format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}
