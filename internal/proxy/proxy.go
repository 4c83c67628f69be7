// Package proxy forwards rate lookups to the upstream API and adds
// permissive CORS headers so a browser can call it directly.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	applog "fxledger/internal/log"
)

const (
	DefaultUpstreamURL = "https://api.privatbank.ua/p24api/exchange_rates"

	allowMethods        = "GET, HEAD, POST, OPTIONS"
	preflightMethods    = "GET,HEAD,POST,OPTIONS"
	preflightMaxAge     = "86400"
	upstreamFailureMsg  = "Failed to fetch from upstream API"
	transportFailureMsg = "Function script failed"
	maxLoggedBody       = 2048
)

type Config struct {
	UpstreamURL string
	Timeout     time.Duration // Default: 15 seconds
	HTTPClient  *http.Client
}

type Handler struct {
	upstream string
	client   *http.Client
	logger   *applog.Logger
}

func New(cfg Config, logger *applog.Logger) *Handler {
	upstream := strings.TrimSpace(cfg.UpstreamURL)
	if upstream == "" {
		upstream = DefaultUpstreamURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentProxy)
	}
	return &Handler{
		upstream: upstream,
		client:   client,
		logger:   logger.WithComponent(applog.ComponentProxy),
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.preflight(w, r)
	case http.MethodGet, http.MethodHead, http.MethodPost:
		h.forward(w, r)
	default:
		w.Header().Set("Allow", allowMethods)
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) preflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	method := r.Header.Get("Access-Control-Request-Method")
	headers := r.Header.Get("Access-Control-Request-Headers")
	if origin == "" || method == "" || headers == "" {
		w.Header().Set("Allow", allowMethods)
		w.WriteHeader(http.StatusOK)
		return
	}
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", preflightMethods)
	hdr.Set("Access-Control-Max-Age", preflightMaxAge)
	hdr.Set("Access-Control-Allow-Headers", headers)
	w.WriteHeader(http.StatusOK)
}

// forward issues a GET to the upstream with the caller's query string and
// relays the response.
func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := h.upstream
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		h.transportFailure(ctx, w, err)
		return
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		h.transportFailure(ctx, w, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoggedBody))
		h.logger.ErrorContext(ctx, "Upstream API returned an error",
			applog.FieldOperation, applog.OpForward,
			applog.FieldStatusCode, resp.StatusCode,
			applog.FieldErrorType, applog.ErrorTypeUpstream,
			"body", strings.TrimSpace(string(body)))
		writeError(w, resp.StatusCode, upstreamFailureMsg)
		return
	}

	hdr := w.Header()
	for k, vs := range resp.Header {
		if isHopByHop(k) {
			continue
		}
		for _, v := range vs {
			hdr.Add(k, v)
		}
	}
	setCORS(hdr)
	w.WriteHeader(resp.StatusCode)
	n, err := io.Copy(w, resp.Body)
	if err != nil && !errors.Is(err, context.Canceled) {
		h.logger.WarnContext(ctx, "Relaying upstream body failed",
			applog.FieldOperation, applog.OpForward,
			applog.FieldError, err)
	}

	h.logger.DebugContext(ctx, "Upstream response relayed",
		applog.FieldOperation, applog.OpForward,
		applog.FieldStatusCode, resp.StatusCode,
		applog.FieldDuration, time.Since(start).Milliseconds(),
		"bytes", n)
}

func (h *Handler) transportFailure(ctx context.Context, w http.ResponseWriter, err error) {
	h.logger.ErrorContext(ctx, "Error fetching from upstream API",
		applog.FieldOperation, applog.OpForward,
		applog.FieldErrorType, applog.ErrorTypeNetwork,
		applog.FieldError, err)
	writeError(w, http.StatusInternalServerError, transportFailureMsg)
}

func setCORS(hdr http.Header) {
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", allowMethods)
	hdr.Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

func isHopByHop(k string) bool {
	return hopByHop[http.CanonicalHeaderKey(k)]
}
