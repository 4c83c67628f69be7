package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"fxledger/internal/core"
	"fxledger/internal/ledger"
	applog "fxledger/internal/log"
)

// RateFetcher resolves the national bank rate of a currency on a date.
type RateFetcher interface {
	FetchRate(ctx context.Context, date core.Date, currency string) (float64, error)
}

// EventPublisher announces ledger changes to downstream consumers.
type EventPublisher interface {
	PublishTransactionCreated(ctx context.Context, tx core.Transaction) error
	PublishTransactionDeleted(ctx context.Context, tx core.Transaction) error
}

// CreateInput is the raw form input for a new transaction.
type CreateInput struct {
	Date     string `json:"date"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// TransactionService validates input, resolves a rate and commits the
// resulting transaction. A transaction is either stored with a valid rate or
// not stored at all.
type TransactionService struct {
	store     ledger.Store
	rates     RateFetcher
	publisher EventPublisher
	logger    *applog.Logger
	events    *applog.StructuredLogger
	now       func() time.Time
}

// Option configures a TransactionService.
type Option func(*TransactionService)

// WithPublisher sets the event publisher. Without one no events are sent.
func WithPublisher(p EventPublisher) Option {
	return func(s *TransactionService) { s.publisher = p }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *TransactionService) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentLedger)
		}
	}
}

// WithClock overrides time.Now for CreatedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *TransactionService) { s.now = now }
}

func NewTransactionService(store ledger.Store, rates RateFetcher, opts ...Option) *TransactionService {
	s := &TransactionService{
		store:  store,
		rates:  rates,
		logger: applog.Default(applog.ComponentLedger),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

// CreateTransaction parses raw input and creates a transaction from it.
func (s *TransactionService) CreateTransaction(ctx context.Context, in CreateInput) (core.Transaction, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return core.Transaction{}, s.rejected(ctx, err)
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.Transaction{}, s.rejected(ctx, err)
	}
	return s.Create(ctx, date, amount, in.Currency)
}

// Create validates typed input, fetches the rate and commits the transaction.
// No rate lookup happens when validation fails.
func (s *TransactionService) Create(ctx context.Context, date core.Date, amount float64, currency string) (core.Transaction, error) {
	currency = core.NormalizeCurrency(currency)
	if err := validate(date, amount, currency); err != nil {
		return core.Transaction{}, s.rejected(ctx, err)
	}

	rate, err := s.rates.FetchRate(ctx, date, currency)
	if err != nil {
		var rfe *core.RateFetchError
		if !errors.As(err, &rfe) {
			err = &core.RateFetchError{Attempts: 1, Cause: err}
		}
		s.logger.ErrorContext(ctx, "Rate fetch failed, transaction not created",
			applog.FieldOperation, applog.OpCreate,
			applog.FieldDate, date.String(),
			applog.FieldCurrency, currency,
			applog.FieldErrorType, applog.ErrorTypeUpstream,
			applog.FieldError, err)
		return core.Transaction{}, err
	}

	id, err := s.store.NextID(ctx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("reserve id: %w", err)
	}

	tx := core.NewTransaction(id, date, currency, amount, rate, s.now().UTC())
	tx, err = s.store.Add(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.events.LogTransactionCreated(ctx, tx.ID, tx.Date.String(), tx.Currency, tx.Amount, tx.Rate, tx.AmountLocal)

	if s.publisher != nil {
		if err := s.publisher.PublishTransactionCreated(ctx, tx); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish transaction event",
				applog.FieldTransactionID, tx.ID,
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
	}

	return tx, nil
}

// DeleteTransaction removes a transaction. The caller is expected to have
// confirmed the deletion with the user. A missing ID yields a
// *core.NotFoundError and nothing changes.
func (s *TransactionService) DeleteTransaction(ctx context.Context, id int64) error {
	var removed core.Transaction
	if s.publisher != nil {
		// keep the record so the event carries its data
		if txs, err := s.store.List(ctx); err == nil {
			for _, t := range txs {
				if t.ID == id {
					removed = t
					break
				}
			}
		}
	}

	if err := s.store.Remove(ctx, id); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			s.logger.WarnContext(ctx, "Delete requested for unknown transaction",
				applog.FieldTransactionID, id,
				applog.FieldErrorType, applog.ErrorTypeNotFound)
			return err
		}
		return fmt.Errorf("delete transaction: %w", err)
	}

	s.events.LogTransactionDeleted(ctx, id)

	if s.publisher != nil {
		removed.ID = id
		if err := s.publisher.PublishTransactionDeleted(ctx, removed); err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish transaction event",
				applog.FieldTransactionID, id,
				applog.FieldOperation, applog.OpPublish,
				applog.FieldError, err)
		}
	}

	return nil
}

// List returns every transaction, most recent first.
func (s *TransactionService) List(ctx context.Context) ([]core.Transaction, error) {
	txs, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Summary aggregates every transaction into quarter totals.
func (s *TransactionService) Summary(ctx context.Context) (core.Summary, error) {
	txs, err := s.List(ctx)
	if err != nil {
		return core.Summary{}, err
	}
	return core.Summarize(txs), nil
}

// SuccessMessage is the confirmation shown after a transaction is created.
func SuccessMessage(tx core.Transaction) string {
	return fmt.Sprintf("Added %s at rate %s %s = %s.",
		core.FormatAmount(tx.Amount, tx.Currency),
		core.FormatRate(tx.Rate),
		core.LocalCurrency,
		core.FormatLocal(tx.AmountLocal))
}

// Close releases the store and publisher when they hold resources.
func (s *TransactionService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}

	return errors.Join(errs...)
}

func validate(date core.Date, amount float64, currency string) error {
	if err := date.Validate(); err != nil {
		return err
	}
	if err := core.ValidateAmount(amount); err != nil {
		return err
	}
	return core.ValidateCurrency(currency)
}

func (s *TransactionService) rejected(ctx context.Context, err error) error {
	var ve *core.ValidationError
	if errors.As(err, &ve) {
		s.logger.WarnContext(ctx, "Transaction input rejected",
			applog.FieldOperation, applog.OpValidate,
			applog.FieldErrorType, applog.ErrorTypeValidation,
			applog.FieldInputField, ve.Field,
			applog.FieldError, ve.Message)
	}
	return err
}
