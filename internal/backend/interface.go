package backend

import (
	"context"

	"debtbook/internal/sheets"
)

// CleanupFunc releases resources held by a report sink.
type CleanupFunc func() error

// SinkResult contains the sink and an optional cleanup function.
type SinkResult struct {
	Writer  sheets.ReportWriter
	Cleanup CleanupFunc
}

// Factory creates report sinks based on configuration
type Factory interface {
	CreateSink(ctx context.Context, config Config) (*SinkResult, error)
}

// Config holds configuration for sink creation
type Config struct {
	Type SinkType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetPrefix        string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string

	// xlsx specific
	XLSXPath string
}

// SinkType selects where report snapshots are mirrored.
type SinkType string

const (
	MemorySink SinkType = "memory"
	SheetsSink SinkType = "sheets"
	XLSXSink   SinkType = "xlsx"
)

func (t SinkType) String() string {
	return string(t)
}

// IsValid returns true if the sink type is known
func (t SinkType) IsValid() bool {
	switch t {
	case MemorySink, SheetsSink, XLSXSink:
		return true
	default:
		return false
	}
}
