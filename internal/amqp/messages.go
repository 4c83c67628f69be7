package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fxledger/internal/core"
)

type EventType string

const (
	EventTransactionCreated EventType = "transaction.created"
	EventTransactionDeleted EventType = "transaction.deleted"
)

var ErrInvalidEvent = errors.New("invalid ledger event")

// Event is the message published for every ledger change. It carries the full
// transaction so consumers never need to read the ledger back.
type Event struct {
	Type        EventType `json:"type"`
	ID          int64     `json:"id"`
	Date        string    `json:"date"`
	Currency    string    `json:"currency"`
	Amount      float64   `json:"amount"`
	Rate        float64   `json:"rate"`
	AmountLocal float64   `json:"amount_local"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewEvent builds an event of type t from tx.
func NewEvent(t EventType, tx core.Transaction) *Event {
	return &Event{
		Type:        t,
		ID:          tx.ID,
		Date:        tx.Date.String(),
		Currency:    tx.Currency,
		Amount:      tx.Amount,
		Rate:        tx.Rate,
		AmountLocal: tx.AmountLocal,
		Timestamp:   time.Now().UTC(),
	}
}

// Transaction rebuilds the transaction described by the event.
func (e *Event) Transaction() (core.Transaction, error) {
	tx := core.Transaction{
		ID:          e.ID,
		Currency:    e.Currency,
		Amount:      e.Amount,
		Rate:        e.Rate,
		AmountLocal: e.AmountLocal,
		CreatedAt:   e.Timestamp,
	}
	if e.Date != "" {
		d, err := core.ParseDate(e.Date)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.Date = d
	}
	return tx, nil
}

func (e *Event) Validate() error {
	switch e.Type {
	case EventTransactionCreated:
		if e.Date == "" {
			return fmt.Errorf("%w: created event without date", ErrInvalidEvent)
		}
	case EventTransactionDeleted:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	if e.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidEvent)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes and validates an event.
func EventFromJSON(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}
