package core

import (
	"strings"
	"time"
)

const (
	// DateLayout is the ISO form used by forms, JSON and storage.
	DateLayout = "2006-01-02"
	// APIDateLayout is the day.month.year form expected by the rates API.
	APIDateLayout = "02.01.2006"
	// LocalCurrency is the currency every transaction is converted into.
	LocalCurrency = "UAH"
)

type (
	Date struct {
		time.Time
	}

	// Transaction is a single foreign-currency income record. Rate and
	// AmountLocal are fixed at creation time and never recomputed.
	Transaction struct {
		ID          int64
		Date        Date
		Currency    string
		Amount      float64
		Rate        float64
		AmountLocal float64
		CreatedAt   time.Time
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, &ValidationError{Field: "date", Message: "date is required"}
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: "invalid date " + s + ": expected YYYY-MM-DD"}
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return &ValidationError{Field: "date", Message: "date cannot be zero"}
	}
	return nil
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// Month returns the month (1-12)
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// APIString formats the date as DD.MM.YYYY.
func (d Date) APIString() string {
	return d.Format(APIDateLayout)
}

// Quarter returns the calendar quarter the date belongs to.
func (d Date) Quarter() QuarterKey {
	return QuarterKey{Year: d.Year(), Quarter: (d.Month()-1)/3 + 1}
}

// NormalizeCurrency trims and upper-cases a currency code.
func NormalizeCurrency(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCurrency checks that code looks like an ISO 4217 code.
func ValidateCurrency(code string) error {
	if code == "" {
		return &ValidationError{Field: "currency", Message: "currency is required"}
	}
	if len(code) != 3 {
		return &ValidationError{Field: "currency", Message: "currency must be a 3-letter code"}
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return &ValidationError{Field: "currency", Message: "currency must be a 3-letter code"}
		}
	}
	return nil
}

func (t Transaction) Quarter() QuarterKey {
	return t.Date.Quarter()
}

// NewTransaction builds a record from a validated amount and a resolved rate.
// The local amount is computed here and stored.
func NewTransaction(id int64, date Date, currency string, amount, rate float64, now time.Time) Transaction {
	return Transaction{
		ID:          id,
		Date:        date,
		Currency:    currency,
		Amount:      amount,
		Rate:        rate,
		AmountLocal: amount * rate,
		CreatedAt:   now,
	}
}
