package backend

import (
	"context"
	"time"

	"fxledger/internal/services"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// CheckFunc probes one dependency for readiness.
type CheckFunc func(ctx context.Context) error

// BackendResult contains the wired ledger service and what is needed to
// observe and release it.
type BackendResult struct {
	Service *services.TransactionService
	// Checks are readiness probes keyed by dependency name.
	Checks  map[string]CheckFunc
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	RatesAPIURL      string
	RatesTimeout     time.Duration
	RatesMaxAttempts int

	// Events are published only when AMQPURL is set.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// BackendType selects the transaction store.
type BackendType string

const (
	MemoryBackend BackendType = "memory"
	SQLiteBackend BackendType = "sqlite"
)

func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case MemoryBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}
