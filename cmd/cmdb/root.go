package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/inventorycmdb/server/internal/api"
	"github.com/inventorycmdb/server/internal/cmdb"
	"github.com/inventorycmdb/server/internal/config"
	"github.com/inventorycmdb/server/internal/doccache"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "cmdb",
	Short:         "Serve a read-only CMDB built from remote Ansible inventories",
	Version:       api.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", os.Getenv("CONFIG_PATH"), "Path to the YAML config file (defaults to $CONFIG_PATH)")
}

// setup loads configuration and installs the JSON logger as the default
func setup() (*config.Config, *slog.Logger, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local overrides for development, a missing .env is normal
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env file", "error", err)
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Error("failed to load config", "path", cfgFile, "error", err)
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level(),
	}))
	slog.SetDefault(logger)

	return cfg, logger, nil
}

// openStore creates the document cache, restoring it from disk, and the
// CMDB store on top of it
func openStore(cfg *config.Config, logger *slog.Logger) (*cmdb.Store, error) {
	if err := os.MkdirAll(cfg.DataPath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data path: %w", err)
	}

	cache, err := doccache.New(doccache.Config{
		Path:     cfg.CachePath(),
		Timeout:  cfg.FetchTimeout,
		RetryMax: cfg.FetchRetries,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document cache: %w", err)
	}

	if cache.Restored() {
		logger.Info("document cache restored from disk",
			"path", cfg.CachePath(),
			"entries", cache.Len(),
		)
	}

	sources := make([]cmdb.Source, 0, len(cfg.Inventories))
	for _, name := range cfg.InventoryNames() {
		inv := cfg.Inventories[name]
		sources = append(sources, cmdb.Source{
			Name:          name,
			URL:           inv.InventoryURL,
			SchemaMapping: inv.SchemaMapping,
		})
	}

	store, err := cmdb.New(cmdb.Config{
		Inventories: sources,
		Cache:       cache,
		DumpPath:    cfg.DumpPath(),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create CMDB store: %w", err)
	}

	return store, nil
}
