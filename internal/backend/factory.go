package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "debtbook/internal/sheets/google"
	"debtbook/internal/sheets/memory"
	"debtbook/internal/sheets/xlsx"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new sink factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateSink implements Factory.CreateSink
func (f *DefaultFactory) CreateSink(ctx context.Context, config Config) (*SinkResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsSink:
		return f.createSheetsSink(ctx, config)
	case XLSXSink:
		return f.createXLSXSink(config)
	case MemorySink:
		return f.createMemorySink()
	default:
		return nil, fmt.Errorf("unsupported report backend: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsSink(ctx context.Context, config Config) (*SinkResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Options{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetPrefix:     config.GoogleSheetPrefix,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets report sink",
		"spreadsheet_id", config.GoogleSpreadsheetID,
		"sheet_prefix", config.GoogleSheetPrefix)

	return &SinkResult{Writer: cli}, nil
}

func (f *DefaultFactory) createXLSXSink(config Config) (*SinkResult, error) {
	f.logger.Info("Initialized xlsx report sink", "path", config.XLSXPath)
	return &SinkResult{Writer: xlsx.New(config.XLSXPath)}, nil
}

func (f *DefaultFactory) createMemorySink() (*SinkResult, error) {
	f.logger.Info("Initialized memory report sink")
	return &SinkResult{Writer: memory.New()}, nil
}
