package memory

import (
	"context"
	"sync"

	"fxledger/internal/core"
	"fxledger/internal/ledger"
)

// Store keeps transactions in a slice for the lifetime of the process.
type Store struct {
	mu    sync.Mutex
	seq   int64
	items []core.Transaction
}

var _ ledger.Store = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// NewWith seeds the store with txs. IDs already present are kept and the
// sequence continues after the highest one.
func NewWith(txs ...core.Transaction) *Store {
	s := New()
	for _, t := range txs {
		_, _ = s.Add(context.Background(), t)
	}
	return s
}

func (s *Store) NextID(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq, nil
}

// Add stores tx without validating it.
func (s *Store) Add(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tx.ID == 0 {
		s.seq++
		tx.ID = s.seq
	} else if tx.ID > s.seq {
		s.seq = tx.ID
	}
	s.items = append(s.items, tx)
	return tx, nil
}

func (s *Store) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.items {
		if t.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return nil
		}
	}
	return &core.NotFoundError{ID: id}
}

func (s *Store) List(_ context.Context) ([]core.Transaction, error) {
	s.mu.Lock()
	out := append([]core.Transaction(nil), s.items...)
	s.mu.Unlock()
	core.SortByDateDesc(out)
	return out, nil
}

// Len returns the number of stored transactions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
