// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing user-entered amounts and
// formatting amounts for display.
package core

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount converts a user-entered decimal string to a positive float.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// surrounding whitespace. Signs, exponents, NaN, Inf, zero and negative values
// are rejected with a ValidationError.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("-1")    -> 0, error
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, &ValidationError{Field: "amount", Message: "amount is required"}
	}
	s = strings.ReplaceAll(s, ",", ".")
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' {
			return 0, &ValidationError{Field: "amount", Message: "amount must be a positive number"}
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &ValidationError{Field: "amount", Message: "amount must be a positive number"}
	}
	if err := ValidateAmount(v); err != nil {
		return 0, err
	}
	return v, nil
}

// ValidateAmount checks that v is finite and strictly positive.
func ValidateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return &ValidationError{Field: "amount", Message: "amount must be a positive number"}
	}
	return nil
}

// FormatAmount renders v with two decimals, a space thousands separator and
// a comma decimal separator followed by the currency code (e.g. "1 234,50 USD").
func FormatAmount(v float64, currency string) string {
	neg := v < 0
	if neg {
		v = -v
	}
	cents := int64(math.Round(v * 100))
	whole := strconv.FormatInt(cents/100, 10)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	out := b.String() + "," + pad2(cents%100)
	if neg {
		out = "-" + out
	}
	if currency != "" {
		out += " " + currency
	}
	return out
}

// FormatLocal renders v in local currency.
func FormatLocal(v float64) string {
	return FormatAmount(v, LocalCurrency)
}

// FormatRate renders an exchange rate with four decimals.
func FormatRate(r float64) string {
	return strconv.FormatFloat(r, 'f', 4, 64)
}

func pad2(n int64) string {
	if n < 10 {
		return "0" + strconv.FormatInt(n, 10)
	}
	return strconv.FormatInt(n, 10)
}
