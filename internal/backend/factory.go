package backend

import (
	"context"
	"fmt"

	"fxledger/internal/amqp"
	"fxledger/internal/ledger"
	"fxledger/internal/ledger/memory"
	applog "fxledger/internal/log"
	"fxledger/internal/rates"
	"fxledger/internal/services"
	"fxledger/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *applog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *applog.Logger) Factory {
	if logger == nil {
		logger = applog.Default(applog.ComponentBackend)
	}
	return &DefaultFactory{
		logger: logger.WithComponent(applog.ComponentBackend),
	}
}

// CreateBackend builds the store, the rate fetcher and, when configured, the
// event publisher, and wires them into a TransactionService.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	checks := make(map[string]CheckFunc)

	store, err := f.createStore(ctx, config, checks)
	if err != nil {
		return nil, err
	}

	fetcher := f.createFetcher(config)
	opts := []services.Option{services.WithLogger(f.logger)}

	if config.AMQPURL != "" {
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue, f.logger)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without events",
				applog.FieldOperation, applog.OpStartup,
				applog.FieldErrorType, applog.ErrorTypeNetwork,
				applog.FieldError, err)
		} else {
			opts = append(opts, services.WithPublisher(client))
			checks["amqp"] = client.Check
			f.logger.Info("Initialized AMQP publisher",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	svc := services.NewTransactionService(store, fetcher, opts...)

	f.logger.Info("Initialized ledger backend",
		"backend", config.Type.String(),
		"amqp_enabled", checks["amqp"] != nil)

	return &BackendResult{
		Service: svc,
		Checks:  checks,
		Cleanup: svc.Close,
	}, nil
}

func (f *DefaultFactory) createStore(ctx context.Context, config Config, checks map[string]CheckFunc) (ledger.Store, error) {
	switch config.Type {
	case MemoryBackend:
		return memory.New(), nil
	case SQLiteBackend:
		s, err := storage.NewSQLiteStore(ctx, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
		checks["sqlite"] = s.Ping
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createFetcher(config Config) *rates.Fetcher {
	client := rates.NewPrivatBankClient(rates.ClientConfig{
		BaseURL: config.RatesAPIURL,
		Timeout: config.RatesTimeout,
	})
	policy := rates.DefaultRetryPolicy()
	if config.RatesMaxAttempts > 0 {
		policy.MaxAttempts = config.RatesMaxAttempts
	}
	return rates.NewFetcher(client, policy, f.logger)
}
