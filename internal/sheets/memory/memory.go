package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fxledger/internal/report"
	ports "fxledger/internal/sheets"
)

// Store keeps exported tables in memory, keyed by sheet name.
type Store struct {
	mu     sync.Mutex
	sheets map[string]report.Table
}

var _ ports.TableStore = (*Store)(nil)

func New() *Store {
	return &Store{sheets: make(map[string]report.Table)}
}

// WriteTable replaces the sheet and returns a synthetic range reference.
func (s *Store) WriteTable(_ context.Context, sheet string, t report.Table) (string, error) {
	if sheet == "" {
		return "", fmt.Errorf("empty sheet name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sheets[sheet] = clone(t)
	return fmt.Sprintf("mem:%s!%d", sheet, len(t.Rows)+1), nil
}

func (s *Store) ReadTable(_ context.Context, sheet string) (report.Table, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.sheets[sheet]
	if !ok {
		return report.Table{}, fmt.Errorf("sheet %q not found", sheet)
	}
	return clone(t), nil
}

func clone(t report.Table) report.Table {
	out := t
	out.Columns = slices.Clone(t.Columns)
	out.Rows = make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		out.Rows[i] = slices.Clone(row)
	}
	return out
}
