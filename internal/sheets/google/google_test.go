package google

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
)

// fakeSheets implements the handful of Sheets v4 endpoints the client uses.
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]any
	calls  map[string]int
}

func newFakeSheets(titles ...string) *fakeSheets {
	f := &fakeSheets{sheets: map[string][][]any{}, calls: map[string]int{}}
	for _, t := range titles {
		f.sheets[t] = nil
	}
	return f
}

func (f *fakeSheets) rows(sheet string) [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.sheets[sheet]...)
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	rest := strings.TrimPrefix(r.URL.EscapedPath(), "/v4/spreadsheets/")
	slash := strings.Index(rest, "/")
	if slash < 0 {
		if strings.HasSuffix(rest, ":batchUpdate") {
			f.calls["batchUpdate"]++
			var req gsheet.BatchUpdateSpreadsheetRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			for _, rq := range req.Requests {
				if rq.AddSheet != nil {
					f.sheets[rq.AddSheet.Properties.Title] = nil
				}
			}
			writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})
			return
		}
		f.calls["get"]++
		var sheets []map[string]any
		for t := range f.sheets {
			sheets = append(sheets, map[string]any{"properties": map[string]any{"title": t}})
		}
		writeJSON(w, map[string]any{"sheets": sheets})
		return
	}

	rng := strings.TrimPrefix(rest[slash+1:], "values/")
	verb := ""
	for _, v := range []string{":append", ":clear"} {
		if strings.HasSuffix(rng, v) {
			verb = v
			rng = strings.TrimSuffix(rng, v)
		}
	}
	rng, _ = url.PathUnescape(rng)
	sheet, start, end := splitRange(rng)
	data, ok := f.sheets[sheet]
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		writeJSON(w, map[string]any{"error": map[string]any{"code": 400, "message": "Unable to parse range: " + rng}})
		return
	}

	switch {
	case verb == ":append":
		f.calls["append"]++
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		data = append(data, vr.Values...)
		f.sheets[sheet] = data
		n := len(data)
		writeJSON(w, map[string]any{"updates": map[string]any{"updatedRange": sheet + "!A" + strconv.Itoa(n) + ":G" + strconv.Itoa(n)}})
	case verb == ":clear":
		f.calls["clear"]++
		if end == 0 && start <= 1 {
			f.sheets[sheet] = nil
		} else {
			for i := start; i <= end && i <= len(data); i++ {
				data[i-1] = []any{}
			}
		}
		writeJSON(w, map[string]any{})
	case r.Method == http.MethodPut:
		f.calls["update"]++
		var vr gsheet.ValueRange
		_ = json.NewDecoder(r.Body).Decode(&vr)
		for i, row := range vr.Values {
			idx := start - 1 + i
			for len(data) <= idx {
				data = append(data, []any{})
			}
			data[idx] = row
		}
		f.sheets[sheet] = data
		writeJSON(w, map[string]any{})
	default:
		f.calls["values.get"]++
		var out [][]any
		for i := start; i <= len(data) && (end == 0 || i <= end); i++ {
			out = append(out, data[i-1])
		}
		writeJSON(w, map[string]any{"range": rng, "values": out})
	}
}

// splitRange parses "'Sheet'!A2:G5" into the sheet name and a 1-based row
// window. end 0 means open ended.
func splitRange(rng string) (sheet string, start, end int) {
	idx := strings.LastIndex(rng, "!")
	if idx < 0 {
		return strings.Trim(rng, "'"), 1, 0
	}
	sheet = strings.ReplaceAll(strings.Trim(rng[:idx], "'"), "''", "'")
	cells := strings.Split(rng[idx+1:], ":")
	start = rowOf(cells[0])
	if start == 0 {
		start = 1
	}
	if len(cells) > 1 {
		end = rowOf(cells[1])
	}
	return sheet, start, end
}

func rowOf(cell string) int {
	n, _ := strconv.Atoi(strings.TrimLeft(cell, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, fake *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	logger := applog.New(applog.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	return New(svc, "sheet-id", "", "", logger)
}

func tx(id int64, y, m, d int, amount, rate float64) core.Transaction {
	return core.NewTransaction(id, core.NewDate(y, m, d), "USD", amount, rate, core.NewDate(y, m, d).Time)
}

func TestClient_AppendCreatesYearSheet(t *testing.T) {
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	ref, err := c.AppendTransaction(context.Background(), tx(7, 2025, 3, 15, 100, 41.5))
	if err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}
	if ref == "" {
		t.Error("expected a row reference")
	}

	rows := fake.rows("2025 Income")
	if len(rows) != 2 {
		t.Fatalf("rows = %v, want header + 1", rows)
	}
	if rows[0][0] != "ID" {
		t.Errorf("header = %v", rows[0])
	}
	if cellString(rows[1][0]) != "7" || rows[1][1] != "2025-03-15" || rows[1][6] != "2025 Q1" {
		t.Errorf("row = %v", rows[1])
	}
	if fake.calls["batchUpdate"] != 1 {
		t.Errorf("batchUpdate calls = %d, want 1", fake.calls["batchUpdate"])
	}

	// the sheet is remembered
	if _, err := c.AppendTransaction(context.Background(), tx(8, 2025, 4, 1, 1, 1)); err != nil {
		t.Fatalf("AppendTransaction() error = %v", err)
	}
	if fake.calls["batchUpdate"] != 1 {
		t.Errorf("batchUpdate calls = %d, want 1", fake.calls["batchUpdate"])
	}
}

func TestClient_AppendRejectsZeroDate(t *testing.T) {
	c := newTestClient(t, newFakeSheets())
	if _, err := c.AppendTransaction(context.Background(), core.Transaction{ID: 1}); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestClient_ListAcrossYears(t *testing.T) {
	fake := newFakeSheets("Quarters", "Notes")
	c := newTestClient(t, fake)
	ctx := context.Background()

	for _, tr := range []core.Transaction{
		tx(1, 2024, 11, 2, 10, 40),
		tx(2, 2025, 1, 15, 100, 1),
		tx(3, 2025, 4, 1, 200, 1),
	} {
		if _, err := c.AppendTransaction(ctx, tr); err != nil {
			t.Fatalf("AppendTransaction() error = %v", err)
		}
	}

	got, err := c.ListTransactions(ctx)
	if err != nil {
		t.Fatalf("ListTransactions() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	if got[0].ID != 3 || got[2].ID != 1 {
		t.Errorf("order = %d, %d, %d", got[0].ID, got[1].ID, got[2].ID)
	}
	if got[2].AmountLocal != 400 {
		t.Errorf("AmountLocal = %v, want 400", got[2].AmountLocal)
	}
}

func TestClient_DeleteClearsRow(t *testing.T) {
	fake := newFakeSheets()
	c := newTestClient(t, fake)
	ctx := context.Background()

	_, _ = c.AppendTransaction(ctx, tx(1, 2025, 1, 15, 100, 1))
	_, _ = c.AppendTransaction(ctx, tx(2, 2025, 2, 10, 50, 1))

	if err := c.DeleteTransaction(ctx, tx(1, 2025, 1, 15, 0, 0)); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	got, _ := c.ListTransactions(ctx)
	if len(got) != 1 || got[0].ID != 2 {
		t.Errorf("after delete = %+v", got)
	}

	// undated delete searches every income sheet
	if err := c.DeleteTransaction(ctx, core.Transaction{ID: 2}); err != nil {
		t.Fatalf("DeleteTransaction() error = %v", err)
	}
	got, _ = c.ListTransactions(ctx)
	if len(got) != 0 {
		t.Errorf("after undated delete = %+v", got)
	}

	// unknown rows are not an error
	if err := c.DeleteTransaction(ctx, tx(99, 2023, 1, 1, 0, 0)); err != nil {
		t.Errorf("DeleteTransaction() unknown = %v, want nil", err)
	}
}

func TestClient_WriteSummary(t *testing.T) {
	fake := newFakeSheets()
	c := newTestClient(t, fake)

	s := core.Summarize([]core.Transaction{
		{Date: core.NewDate(2025, 1, 15), AmountLocal: 100},
		{Date: core.NewDate(2025, 2, 10), AmountLocal: 50},
		{Date: core.NewDate(2025, 4, 1), AmountLocal: 200},
	})
	if err := c.WriteSummary(context.Background(), s); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}

	rows := fake.rows("Quarters")
	// header, Q2, Q1, 2025 subtotal, total
	if len(rows) != 5 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][0] != "2025 Q2" || cellString(rows[1][1]) != "200" {
		t.Errorf("first quarter row = %v", rows[1])
	}
	if rows[4][0] != "Total" || cellString(rows[4][1]) != "350" {
		t.Errorf("total row = %v", rows[4])
	}

	// a smaller summary replaces the old rows entirely
	if err := c.WriteSummary(context.Background(), core.Summarize(nil)); err != nil {
		t.Fatalf("WriteSummary() error = %v", err)
	}
	if rows := fake.rows("Quarters"); len(rows) != 2 {
		t.Errorf("rows after rewrite = %v", rows)
	}
}

func TestClient_NilService(t *testing.T) {
	c := &Client{spreadsheetID: "test"}
	ctx := context.Background()
	if _, err := c.AppendTransaction(ctx, tx(1, 2025, 1, 1, 1, 1)); err == nil {
		t.Error("AppendTransaction() should fail without a service")
	}
	if _, err := c.ListTransactions(ctx); err == nil {
		t.Error("ListTransactions() should fail without a service")
	}
}

func TestNewFromConfig_MissingSpreadsheetID(t *testing.T) {
	_, err := NewFromConfig(context.Background(), Config{}, nil)
	if err == nil || err.Error() != "missing GOOGLE_SPREADSHEET_ID" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCredentialsJSON(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")

	b, err := credentialsJSON(Config{ServiceAccountJSON: ` {"type":"service_account"} `})
	if err != nil || string(b) != `{"type":"service_account"}` {
		t.Errorf("inline: %q, %v", b, err)
	}

	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"from":"file"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	b, err = credentialsJSON(Config{ServiceAccountFile: path})
	if err != nil || string(b) != `{"from":"file"}` {
		t.Errorf("file: %q, %v", b, err)
	}

	if _, err := credentialsJSON(Config{ServiceAccountFile: filepath.Join(t.TempDir(), "missing.json")}); err == nil {
		t.Error("missing file should fail")
	}

	if _, err := credentialsJSON(Config{}); err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Errorf("no credentials: %v", err)
	}

	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", path)
	if b, err := credentialsJSON(Config{}); err != nil || string(b) != `{"from":"file"}` {
		t.Errorf("ADC fallback: %q, %v", b, err)
	}
}

func TestYearPrefixedName(t *testing.T) {
	tests := []struct {
		base string
		year int
		want string
	}{
		{"Income", 2025, "2025 Income"},
		{"  Income ", 2024, "2024 Income"},
		{"2023 Income", 2025, "2023 Income"},
		{"", 2025, ""},
		{"12345", 2025, "2025 12345"},
	}
	for _, tt := range tests {
		if got := yearPrefixedName(tt.base, tt.year); got != tt.want {
			t.Errorf("yearPrefixedName(%q, %d) = %q, want %q", tt.base, tt.year, got, tt.want)
		}
	}
}

func TestParseRow(t *testing.T) {
	tests := []struct {
		name string
		row  []any
		ok   bool
	}{
		{"numbers", []any{float64(3), "2025-04-01", "EUR", float64(2), 45.5, float64(91), "2025 Q2"}, true},
		{"strings with comma", []any{"3", "2025-04-01", "EUR", "2", "45,5", "91", "2025 Q2"}, true},
		{"header", []any{"ID", "Date", "Currency", "Amount", "Rate", "Amount UAH", "Quarter"}, false},
		{"cleared", []any{}, false},
		{"bad date", []any{"3", "01.04.2025", "EUR", "2", "45", "90"}, false},
		{"bad amount", []any{"3", "2025-04-01", "EUR", "x", "45", "90"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseRow(tt.row)
			if ok != tt.ok {
				t.Fatalf("parseRow() ok = %v, want %v", ok, tt.ok)
			}
			if ok && (got.ID != 3 || got.Rate != 45.5) {
				t.Errorf("parseRow() = %+v", got)
			}
		})
	}
}
