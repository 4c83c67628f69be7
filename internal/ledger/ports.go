// Package ledger defines the storage port for income transactions.
package ledger

import (
	"context"

	"fxledger/internal/core"
)

// Store holds the transactions of the current session.
type Store interface {
	// Add appends tx. A zero ID is replaced with the next free one.
	Add(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	// Remove deletes the transaction with the given ID. It returns a
	// *core.NotFoundError and leaves the store untouched when no record matches.
	Remove(ctx context.Context, id int64) error
	// List returns a snapshot ordered by date, most recent first.
	List(ctx context.Context) ([]core.Transaction, error)
	// NextID reserves a fresh identifier.
	NextID(ctx context.Context) (int64, error)
}
