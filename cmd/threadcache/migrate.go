package main

import (
	"fmt"

	"github.com/alphabot-ai/threadcache/internal/logging"
	"github.com/alphabot-ai/threadcache/internal/store"
	"github.com/alphabot-ai/threadcache/internal/store/migrations"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations and print the schema version",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, logSink)

	// Opening the store applies pending migrations.
	sqliteStore, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to migrate %s: %w", cfg.DatabasePath, err)
	}
	defer sqliteStore.Close()

	version, dirty, err := migrations.Version(sqliteStore.DB())
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	logger.Info("schema up to date", "database", cfg.DatabasePath, "version", version, "dirty", dirty)
	fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
	return nil
}
