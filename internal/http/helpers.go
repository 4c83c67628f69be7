package http

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"fxledger/internal/core"
)

// DefaultCurrencies are offered in the add form. Any three-letter code is
// accepted by the API.
var DefaultCurrencies = []string{"USD", "EUR", "GBP", "PLN", "CHF", "CAD", "CZK", "JPY"}

// errorBody is the JSON error shape of the API.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// transactionJSON is the wire form of a transaction.
type transactionJSON struct {
	ID          int64   `json:"id"`
	Date        string  `json:"date"`
	Currency    string  `json:"currency"`
	Amount      float64 `json:"amount"`
	Rate        float64 `json:"rate"`
	AmountLocal float64 `json:"amount_local"`
}

type quarterJSON struct {
	Quarter string  `json:"quarter"`
	Year    int     `json:"year"`
	Number  int     `json:"number"`
	Total   float64 `json:"total"`
	Count   int     `json:"count"`
}

type yearJSON struct {
	Year  int     `json:"year"`
	Total float64 `json:"total"`
}

type summaryJSON struct {
	Quarters    []quarterJSON `json:"quarters"`
	Years       []yearJSON    `json:"years"`
	AnnualTotal float64       `json:"annual_total"`
}

func toTransactionJSON(tx core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          tx.ID,
		Date:        tx.Date.String(),
		Currency:    tx.Currency,
		Amount:      tx.Amount,
		Rate:        tx.Rate,
		AmountLocal: tx.AmountLocal,
	}
}

func toSummaryJSON(s core.Summary) summaryJSON {
	out := summaryJSON{
		Quarters:    make([]quarterJSON, 0, len(s.Quarters)),
		Years:       []yearJSON{},
		AnnualTotal: s.AnnualTotal,
	}
	for _, q := range s.Quarters {
		out.Quarters = append(out.Quarters, quarterJSON{
			Quarter: q.Key.String(),
			Year:    q.Key.Year,
			Number:  q.Key.Quarter,
			Total:   q.Total,
			Count:   q.Count,
		})
	}
	for _, y := range s.Years() {
		out.Years = append(out.Years, yearJSON{Year: y.Year, Total: y.Total})
	}
	return out
}

// wantsJSON reports whether the caller asked for a JSON response rather
// than an htmx fragment.
func wantsJSON(r *http.Request) bool {
	if r.Header.Get("HX-Request") == "true" {
		return false
	}
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/json") {
		return true
	}
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: kind, Message: message})
}

// errorStatus maps a ledger error to its HTTP status and error kind.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, "validation"
	case errors.Is(err, core.ErrRateFetch):
		return http.StatusBadGateway, "rate_fetch"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// userMessage returns the text shown to the user for err.
func userMessage(err error) string {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var rfe *core.RateFetchError
	if errors.As(err, &rfe) {
		return "Could not fetch the exchange rate after " + strconv.Itoa(rfe.Attempts) + " attempts. Please try again later."
	}
	if errors.Is(err, core.ErrNotFound) {
		return err.Error()
	}
	return "Internal error"
}

// parseID parses a positive transaction ID from a path segment.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, &core.ValidationError{Field: "id", Message: "must be a positive integer"}
	}
	return id, nil
}

// sanitizeInput drops control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatAmount": core.FormatAmount,
		"formatLocal":  core.FormatLocal,
		"formatRate":   core.FormatRate,
	}
}
