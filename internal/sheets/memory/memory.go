// Package memory is an in-process stand-in for the spreadsheet mirror, used
// when no spreadsheet is configured.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fxledger/internal/core"
	ports "fxledger/internal/sheets"
)

type Store struct {
	mu      sync.Mutex
	rows    int
	items   []core.Transaction
	summary *core.Summary
}

var _ ports.Mirror = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores tx and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, tx core.Transaction) (string, error) {
	if err := tx.Date.Validate(); err != nil {
		return "", err
	}
	if tx.ID <= 0 {
		return "", errors.New("transaction id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, tx)
	s.rows++
	return fmt.Sprintf("mem:%d", s.rows), nil
}

func (s *Store) DeleteTransaction(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.items[:0]
	for _, t := range s.items {
		if t.ID != tx.ID {
			out = append(out, t)
		}
	}
	s.items = out
	return nil
}

func (s *Store) ListTransactions(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	out := append([]core.Transaction(nil), s.items...)
	s.mu.Unlock()
	core.SortByDateDesc(out)
	return out, nil
}

func (s *Store) WriteSummary(_ context.Context, sum core.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summary = &sum
	return nil
}

// Summary returns the last written summary.
func (s *Store) Summary() (core.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return core.Summary{}, false
	}
	return *s.summary, true
}
