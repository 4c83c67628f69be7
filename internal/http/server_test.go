package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"fxledger/internal/core"
	"fxledger/internal/ledger/memory"
	applog "fxledger/internal/log"
	"fxledger/internal/rates"
	"fxledger/internal/services"
)

type stubRates struct {
	rate float64
	err  error
}

func (s stubRates) FetchRate(ctx context.Context, date core.Date, currency string) (float64, error) {
	return s.rate, s.err
}

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func newTestServer(t *testing.T, rates services.RateFetcher, cfg Config) (*Server, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := services.NewTransactionService(store, rates, services.WithLogger(quietLogger()))
	cfg.Logger = quietLogger()
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }
	}
	srv, err := NewServer(cfg, svc)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	t.Cleanup(srv.rateLimiter.Stop)
	return srv, store
}

func do(t *testing.T, srv *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func formPost(values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	return req
}

func jsonPost(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/transactions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req
}

func triggers(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	raw := rec.Header().Get("HX-Trigger")
	if raw == "" {
		t.Fatal("HX-Trigger header not set")
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	return out
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 41.5}, Config{})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("index status = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"Foreign income ledger", `value="2025-03-15"`, `<option value="USD">`, "No transactions yet."} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("security headers not applied")
	}

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rec := do(t, srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestReadyz_FailingCheck(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 41.5}, Config{
		Checks: []ReadinessCheck{{Name: "amqp", Check: func(context.Context) error { return errors.New("down") }}},
	})
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "failed: down") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCreateTransaction_HTMX(t *testing.T) {
	srv, store := newTestServer(t, stubRates{rate: 41.5}, Config{})

	rec := do(t, srv, formPost(url.Values{"date": {"2025-03-15"}, "amount": {"1000"}, "currency": {"usd"}}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	trig := triggers(t, rec)
	for _, name := range []string{"show-notification", "ledger:refresh", "transaction:created", "form:reset"} {
		if _, ok := trig[name]; !ok {
			t.Errorf("missing trigger %q", name)
		}
	}
	var note struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(trig["show-notification"], &note)
	if note.Type != "success" || !strings.Contains(note.Message, "41.5000") {
		t.Errorf("notification = %+v", note)
	}
	if store.Len() != 1 {
		t.Errorf("store has %d transactions, want 1", store.Len())
	}
}

func TestCreateTransaction_ValidationHTMX(t *testing.T) {
	srv, store := newTestServer(t, stubRates{rate: 41.5}, Config{})

	rec := do(t, srv, formPost(url.Values{"date": {"2025-03-15"}, "amount": {"-5"}, "currency": {"USD"}}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(string(triggers(t, rec)["show-notification"]), `"warning"`) {
		t.Error("validation failures should show a warning")
	}
	if store.Len() != 0 {
		t.Error("invalid input must not be stored")
	}
}

func TestCreateTransaction_JSON(t *testing.T) {
	tests := []struct {
		name    string
		rates   stubRates
		body    string
		status  int
		errKind string
		stored  int
	}{
		{"ok", stubRates{rate: 41.5}, `{"date":"2025-03-15","amount":"100","currency":"USD"}`, http.StatusCreated, "", 1},
		{"numeric amount", stubRates{rate: 2}, `{"date":"2025-03-15","amount":12.5,"currency":"EUR"}`, http.StatusCreated, "", 1},
		{"bad currency", stubRates{rate: 41.5}, `{"date":"2025-03-15","amount":"100","currency":"US"}`, http.StatusUnprocessableEntity, "validation", 0},
		{"bad date", stubRates{rate: 41.5}, `{"date":"15.03.2025","amount":"100","currency":"USD"}`, http.StatusUnprocessableEntity, "validation", 0},
		{"malformed body", stubRates{rate: 41.5}, `{"date":`, http.StatusUnprocessableEntity, "validation", 0},
		{"rate fetch", stubRates{err: &core.RateFetchError{Attempts: 3, Cause: errors.New("timeout")}}, `{"date":"2025-03-15","amount":"100","currency":"USD"}`, http.StatusBadGateway, "rate_fetch", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, store := newTestServer(t, tt.rates, Config{})
			rec := do(t, srv, jsonPost(tt.body))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			if tt.errKind != "" {
				var body errorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Error != tt.errKind {
					t.Errorf("error = %q, want %q", body.Error, tt.errKind)
				}
			}
			if store.Len() != tt.stored {
				t.Errorf("stored = %d, want %d", store.Len(), tt.stored)
			}
		})
	}
}

func TestCreateTransaction_JSONBody(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 41.5}, Config{})
	rec := do(t, srv, jsonPost(`{"date":"2025-03-15","amount":"1000","currency":"USD"}`))

	var tx transactionJSON
	if err := json.NewDecoder(rec.Body).Decode(&tx); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.ID <= 0 || tx.Date != "2025-03-15" || tx.Currency != "USD" || tx.Rate != 41.5 || tx.AmountLocal != 41500 {
		t.Errorf("transaction = %+v", tx)
	}
}

func TestDeleteTransaction(t *testing.T) {
	srv, store := newTestServer(t, stubRates{rate: 41.5}, Config{})
	do(t, srv, jsonPost(`{"date":"2025-03-15","amount":"100","currency":"USD"}`))
	list, _ := store.List(context.Background())
	id := list[0].ID

	req := httptest.NewRequest(http.MethodDelete, "/transactions/"+itoa(id), nil)
	req.Header.Set("HX-Request", "true")
	rec := do(t, srv, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if _, ok := triggers(t, rec)["ledger:refresh"]; !ok {
		t.Error("missing ledger:refresh trigger")
	}
	if store.Len() != 0 {
		t.Error("transaction not removed")
	}

	req = httptest.NewRequest(http.MethodDelete, "/transactions/"+itoa(id), nil)
	req.Header.Set("Accept", "application/json")
	rec = do(t, srv, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodDelete, "/transactions/abc", nil)
	req.Header.Set("Accept", "application/json")
	if rec := do(t, srv, req); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad id status = %d, want 422", rec.Code)
	}
}

func TestListAndSummary(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 40}, Config{})
	for _, body := range []string{
		`{"date":"2025-01-10","amount":"100","currency":"USD"}`,
		`{"date":"2025-05-02","amount":"50","currency":"USD"}`,
		`{"date":"2024-12-31","amount":"10","currency":"USD"}`,
	} {
		if rec := do(t, srv, jsonPost(body)); rec.Code != http.StatusCreated {
			t.Fatalf("create status = %d", rec.Code)
		}
	}

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/transactions", nil))
	var list []transactionJSON
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 3 || list[0].Date != "2025-05-02" || list[2].Date != "2024-12-31" {
		t.Errorf("list order = %+v", list)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/summary", nil))
	var sum summaryJSON
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatalf("decode summary: %v", err)
	}
	if len(sum.Quarters) != 3 || sum.Quarters[0].Quarter != "2025 Q2" {
		t.Errorf("quarters = %+v", sum.Quarters)
	}
	if sum.AnnualTotal != 6400 {
		t.Errorf("annual total = %v, want 6400", sum.AnnualTotal)
	}
	if len(sum.Years) != 2 || sum.Years[0].Total != 6000 {
		t.Errorf("years = %+v", sum.Years)
	}

	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/ui/summary", nil))
	if !strings.Contains(rec.Body.String(), "2025 Q1") {
		t.Errorf("summary partial missing quarter: %s", rec.Body.String())
	}
	rec = do(t, srv, httptest.NewRequest(http.MethodGet, "/ui/transactions", nil))
	if !strings.Contains(rec.Body.String(), "/transactions/") {
		t.Errorf("transactions partial missing delete buttons")
	}
}

func TestProxyMount(t *testing.T) {
	called := false
	proxy := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	srv, _ := newTestServer(t, stubRates{rate: 1}, Config{Proxy: proxy})

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/api/exchange_rates?date=01.01.2025", nil))
	if !called || rec.Code != http.StatusTeapot {
		t.Errorf("proxy called = %v, status = %d", called, rec.Code)
	}
}

func TestRateLimitOnPost(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 41.5}, Config{RateLimitPerMinute: 1})

	do(t, srv, jsonPost(`{"date":"2025-03-15","amount":"1","currency":"USD"}`))
	rec := do(t, srv, jsonPost(`{"date":"2025-03-15","amount":"1","currency":"USD"}`))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	if rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/transactions", nil)); rec.Code != http.StatusOK {
		t.Errorf("GET should not be limited, status = %d", rec.Code)
	}
}

func TestStaticAssets(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 1}, Config{})
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/static/app.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Cache-Control"), "max-age=3600") {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestNewServer_WriteTimeoutCoversRateBudget(t *testing.T) {
	srv, _ := newTestServer(t, stubRates{rate: 41.5}, Config{})
	if srv.WriteTimeout != DefaultWriteTimeout {
		t.Errorf("WriteTimeout = %v, want %v", srv.WriteTimeout, DefaultWriteTimeout)
	}

	budget := rates.WorstCaseDuration(5, 20*time.Second) + 10*time.Second
	srv, _ = newTestServer(t, stubRates{rate: 41.5}, Config{WriteTimeout: budget})
	if srv.WriteTimeout != budget {
		t.Errorf("WriteTimeout = %v, want %v", srv.WriteTimeout, budget)
	}
	if srv.WriteTimeout <= rates.WorstCaseDuration(5, 20*time.Second) {
		t.Error("write deadline would cut off the rate fetch failure reply")
	}
}
