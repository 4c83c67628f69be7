package google

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/api/googleapi"

	"fxledger/internal/core"
)

// parseRow converts an income sheet row back into a transaction. Rows that
// were cleared or hold a header are rejected.
func parseRow(row []any) (core.Transaction, bool) {
	cols := toStrings(row)
	if len(cols) < 6 {
		return core.Transaction{}, false
	}
	id, err := strconv.ParseInt(cols[0], 10, 64)
	if err != nil || id <= 0 {
		return core.Transaction{}, false
	}
	date, err := core.ParseDate(cols[1])
	if err != nil {
		return core.Transaction{}, false
	}
	amount, ok1 := parseNumber(cols[3])
	rate, ok2 := parseNumber(cols[4])
	local, ok3 := parseNumber(cols[5])
	if !ok1 || !ok2 || !ok3 {
		return core.Transaction{}, false
	}
	return core.Transaction{
		ID:          id,
		Date:        date,
		Currency:    cols[2],
		Amount:      amount,
		Rate:        rate,
		AmountLocal: local,
	}, true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

// cellString renders a cell value. Whole floats lose their fraction so IDs
// compare as integers.
func cellString(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return strings.TrimSpace(x)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

// quoteSheet wraps a sheet title for A1 notation.
func quoteSheet(title string) string {
	return "'" + strings.ReplaceAll(title, "'", "''") + "'"
}

func isNotFound(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusNotFound || gerr.Code == http.StatusBadRequest
	}
	return false
}
