// Package sheets defines the ports used to mirror the ledger into a
// spreadsheet.
package sheets

import (
	"context"

	"fxledger/internal/core"
)

// Ports for outbound adapters.
type (
	// IncomeWriter appends one row per transaction to the sheet of its year.
	IncomeWriter interface {
		AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
	}

	// IncomeDeleter clears the row of a transaction. A missing row is not an
	// error so redelivered events stay harmless.
	IncomeDeleter interface {
		DeleteTransaction(ctx context.Context, tx core.Transaction) error
	}

	// IncomeLister reads back every mirrored transaction across all years.
	IncomeLister interface {
		ListTransactions(ctx context.Context) ([]core.Transaction, error)
	}

	// SummaryWriter replaces the quarter overview with s.
	SummaryWriter interface {
		WriteSummary(ctx context.Context, s core.Summary) error
	}

	// Mirror is everything the ledger worker needs from a spreadsheet.
	Mirror interface {
		IncomeWriter
		IncomeDeleter
		IncomeLister
		SummaryWriter
	}
)
