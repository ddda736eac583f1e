// Package cli provides common initialization shared by cmd/debtbook and
// cmd/debtbook-worker.
package cli

import (
	"context"
	"errors"
	"os"

	"github.com/joho/godotenv"

	"debtbook/internal/config"
	"debtbook/internal/core"
	"debtbook/internal/log"
	"debtbook/internal/storage"
)

// SetupLogger builds the process logger from LOG_LEVEL and LOG_FORMAT and
// sets it as the default logger. Logs go to stderr so command output stays
// clean on stdout.
func SetupLogger(level, format string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(level),
		Format:    format,
		Component: log.ComponentCLI,
		Output:    os.Stderr,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg
}

// StoreOptions maps the configuration onto storage options.
func StoreOptions(cfg *config.Config, logger *log.Logger) storage.Options {
	return storage.Options{
		Path:                cfg.SQLiteDBPath,
		BusyTimeout:         cfg.SQLiteBusyTimeout,
		MaxOpenConns:        cfg.SQLiteMaxOpenConns,
		RepairMissingTables: cfg.SchemaRepairMissingTables,
		Logger:              logger.WithComponent(log.ComponentStorage).Slog(),
	}
}

// InitStore opens the ledger database and ensures its schema.
// Returns the repository or exits the process on failure.
func InitStore(ctx context.Context, logger *log.Logger, cfg *config.Config) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(ctx, StoreOptions(cfg, logger))
	if err != nil {
		LogStoreError(ctx, logger, err, cfg.SQLiteDBPath)
		os.Exit(1)
	}
	return repo
}

// LogStoreError logs a failure to open the store, naming the schema object
// when reconciliation failed.
func LogStoreError(ctx context.Context, logger *log.Logger, err error, path string) {
	fields := log.NewFields().With("path", path)

	var schemaErr *core.SchemaError
	if errors.As(err, &schemaErr) {
		fields = fields.With(log.FieldObject, schemaErr.Object)
		logger.LogError(ctx, "Schema reconciliation failed", err, log.OpEnsureSchema, log.ErrorTypeSchema, fields)
		return
	}
	logger.LogError(ctx, "Failed to initialize SQLite repository", err, log.OpStartup, log.ErrorTypeDatabase, fields)
}
