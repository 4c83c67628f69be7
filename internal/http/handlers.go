package http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	})
}

// handleReady probes the ledger and every configured dependency.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]interface{})

	if s.templates == nil {
		checks["templates"] = "failed: templates not loaded"
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["templates"] = "ok"
	}

	if _, err := s.ledger.List(ctx); err != nil {
		checks["ledger"] = fmt.Sprintf("failed: %v", err)
		status, httpStatus = "not_ready", http.StatusServiceUnavailable
	} else {
		checks["ledger"] = "ok"
	}

	for _, c := range s.checks {
		if err := c.Check(ctx); err != nil {
			checks[c.Name] = fmt.Sprintf("failed: %v", err)
			status, httpStatus = "not_ready", http.StatusServiceUnavailable
			continue
		}
		checks[c.Name] = "ok"
	}

	checks["rate_limiter"] = map[string]interface{}{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	writeJSON(w, httpStatus, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	traceMetrics := s.traceMiddleware.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	securityMetrics := s.securityDetector.GetMetrics()

	w.WriteHeader(http.StatusOK)
	metric := func(name, help, kind string, v any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, v)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("transactions_created_total", "Transactions created", "counter", s.appMetrics.created.Load())
	metric("transactions_deleted_total", "Transactions deleted", "counter", s.appMetrics.deleted.Load())
	metric("transactions_failed_total", "Rejected or failed transaction requests", "counter", s.appMetrics.failed.Load())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("active_rate_limit_clients", "Currently tracked rate limit clients", "gauge", rateLimitMetrics.ClientCount)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", fmt.Sprintf("%.0f", time.Since(s.appMetrics.uptime).Seconds()))
}

type indexData struct {
	Today        string
	Currencies   []string
	Transactions []core.Transaction
	Summary      core.Summary
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	txs, err := s.ledger.List(ctx)
	if err != nil {
		s.serverError(ctx, w, "List transactions failed", applog.OpList, err)
		return
	}

	data := indexData{
		Today:        core.Date{Time: s.now()}.String(),
		Currencies:   s.currencies,
		Transactions: txs,
		Summary:      core.Summarize(txs),
	}
	s.render(ctx, w, "index.html", data)
}

// render executes a template into a buffer so a failure never leaves a
// half-written page.
func (s *Server) render(ctx context.Context, w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		applog.FromContext(ctx).ErrorContext(ctx, "Template render failed",
			applog.FieldOperation, applog.OpRender,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			"template", name,
			applog.FieldError, err)
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) serverError(ctx context.Context, w http.ResponseWriter, msg, op string, err error) {
	applog.FromContext(ctx).ErrorContext(ctx, msg,
		applog.FieldOperation, op,
		applog.FieldErrorType, applog.ErrorTypeInternal,
		applog.FieldError, err)
	http.Error(w, "Internal error", http.StatusInternalServerError)
}
