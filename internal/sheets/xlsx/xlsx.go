// Package xlsx writes report snapshots to an Excel workbook.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"debtbook/internal/core"
	ports "debtbook/internal/sheets"
)

// Writer replaces the workbook at path on every write.
type Writer struct {
	path string
}

var _ ports.ReportWriter = (*Writer)(nil)

func New(path string) *Writer {
	return &Writer{path: path}
}

// WriteReport renders rep into a new workbook and moves it over the previous
// one, so readers never see a half-written file.
func (w *Writer) WriteReport(ctx context.Context, rep core.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f, err := Render(rep)
	if err != nil {
		return "", err
	}
	defer f.Close()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create report directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.path)+"-*")
	if err != nil {
		return "", fmt.Errorf("create temp workbook: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return "", fmt.Errorf("save workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("save workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return "", fmt.Errorf("replace workbook: %w", err)
	}

	slog.InfoContext(ctx, "Report written to workbook", "path", w.path)
	return w.path, nil
}

// Render builds the workbook in memory with one sheet per report table.
func Render(rep core.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	for i, t := range ports.Tables(rep) {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Name); err != nil {
				f.Close()
				return nil, fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %s: %w", t.Name, err)
		}

		if err := writeTable(f, t, bold); err != nil {
			f.Close()
			return nil, err
		}
	}

	return f, nil
}

func writeTable(f *excelize.File, t ports.Table, headerStyle int) error {
	if err := f.SetSheetRow(t.Name, "A1", &t.Header); err != nil {
		return fmt.Errorf("write %s header: %w", t.Name, err)
	}
	if err := f.SetRowStyle(t.Name, 1, 1, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", t.Name, err)
	}

	for i, row := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Name, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", t.Name, i+2, err)
		}
	}
	return nil
}
