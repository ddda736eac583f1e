package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"debtbook/internal/core"
	ports "debtbook/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configures the Sheets report mirror.
type Options struct {
	SpreadsheetID string
	// SheetPrefix is prepended to each table name, e.g. "Debts Admins".
	SheetPrefix     string
	CredentialsJSON string
	CredentialsFile string
}

// Client mirrors report snapshots into one tab per report table.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
}

var _ ports.ReportWriter = (*Client)(nil)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options) (*Client, error) {
	spreadsheetID := strings.TrimSpace(opts.SpreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := newSheetsService(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return NewWithService(svc, spreadsheetID, opts.SheetPrefix), nil
}

// NewWithService wraps an existing service, e.g. one pointed at a test
// endpoint.
func NewWithService(svc *gsheet.Service, spreadsheetID, prefix string) *Client {
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		prefix:        strings.TrimSpace(prefix),
	}
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials, falling back to GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, opts Options) (*gsheet.Service, error) {
	credentialsJSON := []byte(strings.TrimSpace(opts.CredentialsJSON))
	credentialsFile := strings.TrimSpace(opts.CredentialsFile)
	if len(credentialsJSON) == 0 && credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	if len(credentialsJSON) == 0 {
		if credentialsFile == "" {
			return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
		}
		var err error
		credentialsJSON, err = os.ReadFile(credentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	}

	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// WriteReport replaces the contents of the report tabs with rep. Missing
// tabs are created first.
func (c *Client) WriteReport(ctx context.Context, rep core.Report) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	tables := ports.Tables(rep)
	titles := make([]string, len(tables))
	for i, t := range tables {
		titles[i] = c.sheetName(t.Name)
	}

	if err := c.ensureSheets(ctx, titles); err != nil {
		return "", err
	}

	ranges := make([]string, len(titles))
	for i, title := range titles {
		ranges[i] = quoteSheet(title)
	}
	_, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, &gsheet.BatchClearValuesRequest{
		Ranges: ranges,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("clear report sheets: %w", err)
	}

	data := make([]*gsheet.ValueRange, len(tables))
	for i, t := range tables {
		values := make([][]any, 0, len(t.Rows)+1)
		values = append(values, t.Header)
		values = append(values, t.Rows...)
		data[i] = &gsheet.ValueRange{
			Range:  quoteSheet(titles[i]) + "!A1",
			Values: values,
		}
	}
	resp, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write report sheets: %w", err)
	}

	slog.InfoContext(ctx, "Report mirrored to Google Sheets",
		"spreadsheet_id", c.spreadsheetID,
		"updated_cells", resp.TotalUpdatedCells)

	return fmt.Sprintf("sheets:%s", c.spreadsheetID), nil
}

func (c *Client) ensureSheets(ctx context.Context, titles []string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}

	existing := make(map[string]bool, len(ss.Sheets))
	for _, sh := range ss.Sheets {
		if sh.Properties != nil {
			existing[sh.Properties.Title] = true
		}
	}

	var reqs []*gsheet.Request
	for _, title := range titles {
		if existing[title] {
			continue
		}
		reqs = append(reqs, &gsheet.Request{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		})
	}
	if len(reqs) == 0 {
		return nil
	}

	_, err = c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("create report sheets: %w", err)
	}
	slog.InfoContext(ctx, "Created report sheets", "count", len(reqs))
	return nil
}

func (c *Client) sheetName(table string) string {
	if c.prefix == "" {
		return table
	}
	return c.prefix + " " + table
}

// quoteSheet quotes a sheet title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}
