// Package worker mirrors ledger events into a spreadsheet.
package worker

import (
	"context"
	"fmt"

	"fxledger/internal/amqp"
	"fxledger/internal/core"
	applog "fxledger/internal/log"
	"fxledger/internal/sheets"
)

// MirrorWorker applies ledger events to a spreadsheet mirror and keeps its
// quarter overview current.
type MirrorWorker struct {
	mirror sheets.Mirror
	logger *applog.Logger
}

func NewMirrorWorker(mirror sheets.Mirror, logger *applog.Logger) *MirrorWorker {
	if logger == nil {
		logger = applog.Default(applog.ComponentWorker)
	}
	return &MirrorWorker{
		mirror: mirror,
		logger: logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleEvent is an amqp.Handler. A returned error makes the broker
// redeliver the event.
func (w *MirrorWorker) HandleEvent(ctx context.Context, e *amqp.Event) error {
	tx, err := e.Transaction()
	if err != nil {
		return fmt.Errorf("decode transaction: %w", err)
	}

	w.logger.InfoContext(ctx, "Processing ledger event",
		"type", string(e.Type),
		applog.FieldTransactionID, e.ID)

	switch e.Type {
	case amqp.EventTransactionCreated:
		err = w.upsert(ctx, tx)
	case amqp.EventTransactionDeleted:
		err = w.mirror.DeleteTransaction(ctx, tx)
	default:
		return fmt.Errorf("unsupported event type %q", e.Type)
	}
	if err != nil {
		return fmt.Errorf("apply %s: %w", e.Type, err)
	}

	return w.RefreshSummary(ctx)
}

// upsert clears any row left by an earlier delivery before appending, so a
// redelivered event never duplicates a row.
func (w *MirrorWorker) upsert(ctx context.Context, tx core.Transaction) error {
	if err := w.mirror.DeleteTransaction(ctx, tx); err != nil {
		return err
	}
	ref, err := w.mirror.AppendTransaction(ctx, tx)
	if err != nil {
		return err
	}
	w.logger.DebugContext(ctx, "Transaction appended",
		applog.FieldTransactionID, tx.ID,
		"sheets_ref", ref)
	return nil
}

// RefreshSummary recomputes the quarter totals from the mirrored rows.
func (w *MirrorWorker) RefreshSummary(ctx context.Context) error {
	txs, err := w.mirror.ListTransactions(ctx)
	if err != nil {
		return fmt.Errorf("read mirrored transactions: %w", err)
	}
	s := core.Summarize(txs)
	if err := w.mirror.WriteSummary(ctx, s); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	w.logger.InfoContext(ctx, "Quarter summary refreshed",
		applog.FieldOperation, applog.OpSummarize,
		"quarters", len(s.Quarters),
		"total", s.AnnualTotal)
	return nil
}
