package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
	"fxledger/internal/services"
)

// handleCreateTransaction adds a transaction from a form post or JSON body.
// htmx callers get an HX-Trigger notification, JSON callers the record.
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asJSON := wantsJSON(r)

	in, err := ParseCreateInput(r)
	if err == nil {
		var tx core.Transaction
		tx, err = s.ledger.CreateTransaction(ctx, in)
		if err == nil {
			s.appMetrics.created.Add(1)
			if asJSON {
				writeJSON(w, http.StatusCreated, toTransactionJSON(tx))
				return
			}
			NewHTMXResponse().
				Status(http.StatusCreated).
				TriggerSuccessNotification(services.SuccessMessage(tx)).
				TriggerTransactionCreated(tx.ID, tx.Quarter().String()).
				TriggerLedgerRefresh().
				TriggerFormReset().
				Write(w)
			return
		}
	}

	s.appMetrics.failed.Add(1)
	status, kind := errorStatus(err)
	if status == http.StatusInternalServerError {
		applog.FromContext(ctx).ErrorContext(ctx, "Create transaction failed",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldError, err)
	}
	if asJSON {
		writeJSONError(w, status, kind, userMessage(err))
		return
	}

	resp := NewHTMXResponse().Status(status)
	if errors.Is(err, core.ErrValidation) {
		resp.TriggerWarningNotification(userMessage(err))
	} else {
		resp.TriggerErrorNotification(userMessage(err))
	}
	resp.Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	asJSON := wantsJSON(r)

	id, err := parseID(chi.URLParam(r, "id"))
	if err == nil {
		err = s.ledger.DeleteTransaction(ctx, id)
	}
	if err != nil {
		status, kind := errorStatus(err)
		if status == http.StatusInternalServerError {
			applog.FromContext(ctx).ErrorContext(ctx, "Delete transaction failed",
				applog.FieldOperation, applog.OpDelete,
				applog.FieldTransactionID, id,
				applog.FieldError, err)
		}
		if asJSON {
			writeJSONError(w, status, kind, userMessage(err))
			return
		}
		NewHTMXResponse().
			Status(status).
			TriggerErrorNotification(userMessage(err)).
			TriggerLedgerRefresh().
			Write(w)
		return
	}

	s.appMetrics.deleted.Add(1)
	if asJSON {
		writeJSON(w, http.StatusOK, map[string]int64{"deleted": id})
		return
	}
	NewHTMXResponse().
		TriggerTransactionDeleted(id).
		TriggerLedgerRefresh().
		Write(w)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.listOrFail(r.Context(), w, true)
	if !ok {
		return
	}
	out := make([]transactionJSON, 0, len(txs))
	for _, tx := range txs {
		out = append(out, toTransactionJSON(tx))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Summary failed",
			applog.FieldOperation, applog.OpSummarize,
			applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, toSummaryJSON(sum))
}

func (s *Server) handleTransactionsPartial(w http.ResponseWriter, r *http.Request) {
	txs, ok := s.listOrFail(r.Context(), w, false)
	if !ok {
		return
	}
	s.render(r.Context(), w, "transactions", txs)
}

func (s *Server) handleSummaryPartial(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sum, err := s.ledger.Summary(ctx)
	if err != nil {
		s.serverError(ctx, w, "Summary failed", applog.OpSummarize, err)
		return
	}
	s.render(ctx, w, "summary", sum)
}

func (s *Server) listOrFail(ctx context.Context, w http.ResponseWriter, asJSON bool) ([]core.Transaction, bool) {
	txs, err := s.ledger.List(ctx)
	if err == nil {
		return txs, true
	}
	if asJSON {
		applog.FromContext(ctx).ErrorContext(ctx, "List transactions failed",
			applog.FieldOperation, applog.OpList,
			applog.FieldError, err)
		writeJSONError(w, http.StatusInternalServerError, "internal", "Internal error")
		return nil, false
	}
	s.serverError(ctx, w, "List transactions failed", applog.OpList, err)
	return nil, false
}
