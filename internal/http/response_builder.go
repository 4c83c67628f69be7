package http

import (
	"encoding/json"
	"net/http"
)

// Client-side events raised through the HX-Trigger header. index.html and
// app.js listen for these names.
const (
	EventLedgerRefresh      = "ledger:refresh"
	EventTransactionCreated = "transaction:created"
	EventTransactionDeleted = "transaction:deleted"
	EventFormReset          = "form:reset"
	EventNotification       = "show-notification"
)

// NotificationType represents the type of notification to display.
type NotificationType string

const (
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
	NotificationWarning NotificationType = "warning"
	NotificationInfo    NotificationType = "info"
)

type notification struct {
	Type     NotificationType `json:"type"`
	Message  string           `json:"message"`
	Duration int              `json:"duration"`
}

type transactionEvent struct {
	ID      int64  `json:"id"`
	Quarter string `json:"quarter,omitempty"`
}

// HTMXResponseBuilder assembles a body-less htmx reply: a status code plus
// the events the page should react to.
type HTMXResponseBuilder struct {
	status   int
	triggers map[string]any
}

// NewHTMXResponse creates a new response builder with default 200 status.
func NewHTMXResponse() *HTMXResponseBuilder {
	return &HTMXResponseBuilder{status: http.StatusOK, triggers: map[string]any{}}
}

func (b *HTMXResponseBuilder) Status(code int) *HTMXResponseBuilder {
	b.status = code
	return b
}

// Trigger registers an event. A later call with the same name wins.
func (b *HTMXResponseBuilder) Trigger(name string, detail any) *HTMXResponseBuilder {
	if detail == nil {
		detail = struct{}{}
	}
	b.triggers[name] = detail
	return b
}

func (b *HTMXResponseBuilder) TriggerLedgerRefresh() *HTMXResponseBuilder {
	return b.Trigger(EventLedgerRefresh, nil)
}

func (b *HTMXResponseBuilder) TriggerTransactionCreated(id int64, quarter string) *HTMXResponseBuilder {
	return b.Trigger(EventTransactionCreated, transactionEvent{ID: id, Quarter: quarter})
}

func (b *HTMXResponseBuilder) TriggerTransactionDeleted(id int64) *HTMXResponseBuilder {
	return b.Trigger(EventTransactionDeleted, transactionEvent{ID: id})
}

func (b *HTMXResponseBuilder) TriggerFormReset() *HTMXResponseBuilder {
	return b.Trigger(EventFormReset, nil)
}

// TriggerNotification shows a toast for durationMs milliseconds.
func (b *HTMXResponseBuilder) TriggerNotification(kind NotificationType, message string, durationMs int) *HTMXResponseBuilder {
	return b.Trigger(EventNotification, notification{Type: kind, Message: message, Duration: durationMs})
}

func (b *HTMXResponseBuilder) TriggerSuccessNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationSuccess, message, 4000)
}

func (b *HTMXResponseBuilder) TriggerWarningNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationWarning, message, 5000)
}

func (b *HTMXResponseBuilder) TriggerErrorNotification(message string) *HTMXResponseBuilder {
	return b.TriggerNotification(NotificationError, message, 6000)
}

// Write sends the status and HX-Trigger header. htmx ignores the body of
// these replies, so none is written.
func (b *HTMXResponseBuilder) Write(w http.ResponseWriter) {
	if len(b.triggers) > 0 {
		if raw, err := json.Marshal(b.triggers); err == nil {
			w.Header().Set("HX-Trigger", string(raw))
		}
	}
	w.WriteHeader(b.status)
}
