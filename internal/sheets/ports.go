package sheets

import (
	"context"

	"debtbook/internal/core"
)

// Ports for outbound report adapters.
type (
	// ReportWriter mirrors a report snapshot to an external destination,
	// replacing whatever an earlier write left there.
	ReportWriter interface {
		WriteReport(ctx context.Context, rep core.Report) (ref string, err error)
	}

	// ReportSource produces the snapshot that report writers mirror.
	ReportSource interface {
		Snapshot(ctx context.Context) (core.Report, error)
	}
)
