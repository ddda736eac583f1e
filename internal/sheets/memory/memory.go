package memory

import (
	"context"
	"fmt"
	"sync"

	"debtbook/internal/core"
	ports "debtbook/internal/sheets"
)

// Store keeps written reports in memory. It backs REPORT_BACKEND=memory and
// tests.
type Store struct {
	mu      sync.Mutex
	reports []core.Report
}

var _ ports.ReportWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// WriteReport stores the report and returns a synthetic reference.
func (s *Store) WriteReport(ctx context.Context, rep core.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, rep)
	return fmt.Sprintf("mem:%d", len(s.reports)), nil
}

// Last returns the most recently written report.
func (s *Store) Last() (core.Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reports) == 0 {
		return core.Report{}, false
	}
	return s.reports[len(s.reports)-1], true
}

// Writes returns how many reports were written.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}
