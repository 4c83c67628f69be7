package amqp

import (
	"errors"
	"testing"
	"time"

	"fxledger/internal/core"
)

func TestNewEvent(t *testing.T) {
	tx := core.NewTransaction(12345, core.NewDate(2025, 3, 15), "USD", 100, 41.5, time.Now())

	e := NewEvent(EventTransactionCreated, tx)

	if e.ID != tx.ID || e.Date != "2025-03-15" || e.Currency != "USD" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if e.AmountLocal != 4150 {
		t.Errorf("AmountLocal = %v, want 4150", e.AmountLocal)
	}
	if time.Since(e.Timestamp) > time.Second {
		t.Error("Timestamp should be recent")
	}
}

func TestEvent_Transaction(t *testing.T) {
	e := &Event{Type: EventTransactionCreated, ID: 3, Date: "2025-04-01", Currency: "EUR", Amount: 2, Rate: 45, AmountLocal: 90}
	tx, err := e.Transaction()
	if err != nil {
		t.Fatalf("Transaction() error = %v", err)
	}
	if tx.Quarter() != (core.QuarterKey{Year: 2025, Quarter: 2}) {
		t.Errorf("Quarter() = %v", tx.Quarter())
	}

	bad := &Event{Type: EventTransactionCreated, ID: 3, Date: "01.04.2025"}
	if _, err := bad.Transaction(); !errors.Is(err, core.ErrValidation) {
		t.Errorf("Transaction() error = %v, want ErrValidation", err)
	}
}

func TestEventFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"created", `{"type":"transaction.created","id":1,"date":"2025-01-01"}`, false},
		{"deleted without date", `{"type":"transaction.deleted","id":1}`, false},
		{"created without date", `{"type":"transaction.created","id":1}`, true},
		{"zero id", `{"type":"transaction.deleted","id":0}`, true},
		{"unknown type", `{"type":"other","id":1}`, true},
		{"id not a number", `{"type":"transaction.deleted","id":"x"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EventFromJSON([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("EventFromJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
