package memory

import (
	"context"
	"sync"

	"fintrack/internal/core"
	"fintrack/internal/sheets"
)

type key struct {
	userID int64
	period core.Period
}

// Store keeps the last export of every user month in memory. It backs the
// export worker when no spreadsheet is configured, and tests.
type Store struct {
	mu     sync.Mutex
	months map[key][][]any
	writes int
}

// Ensure interface conformance
var _ sheets.MonthWriter = (*Store)(nil)

func New() *Store {
	return &Store{months: make(map[key][][]any)}
}

// WriteMonth renders the export and replaces whatever was stored for the month.
func (s *Store) WriteMonth(ctx context.Context, export sheets.MonthExport) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rows := sheets.Render(export)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.months[key{export.UserID, export.Period}] = rows
	s.writes++
	return nil
}

// Get returns the rows last written for a user month.
func (s *Store) Get(userID int64, p core.Period) ([][]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.months[key{userID, p}]
	return rows, ok
}

// Writes counts WriteMonth calls since creation.
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
