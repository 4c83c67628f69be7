// Package storage implements the ledger store on an in-memory SQLite
// database. The database lives exactly as long as the store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"fxledger/internal/core"
	"fxledger/internal/ledger"
	applog "fxledger/internal/log"
)

type SQLiteStore struct {
	db      *sql.DB
	keep    *sql.Conn
	queries *Queries
	logger  *applog.Logger
	dsn     string
}

var _ ledger.Store = (*SQLiteStore)(nil)

// MemoryDSN returns a shared-cache in-memory DSN with a unique name.
func MemoryDSN() string {
	return fmt.Sprintf("file:fxledger-%s?mode=memory&cache=shared", uuid.NewString())
}

// NewSQLiteStore opens a private in-memory database and applies the schema.
func NewSQLiteStore(ctx context.Context, logger *applog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = applog.Default(applog.ComponentStorage)
	}
	dsn := MemoryDSN()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// One pinned connection plus one for queries. Shared-cache writers on
	// several connections would fail with SQLITE_LOCKED instead of waiting.
	db.SetMaxOpenConns(2)

	// An in-memory database is dropped when its last connection closes.
	keep, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("acquire keepalive connection: %w", err)
	}

	if err := keep.PingContext(ctx); err != nil {
		keep.Close()
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dsn); err != nil {
		keep.Close()
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.WithComponent(applog.ComponentStorage).Info("SQLite ledger ready", "dsn", dsn)

	return &SQLiteStore{
		db:      db,
		keep:    keep,
		queries: New(db),
		logger:  logger.WithComponent(applog.ComponentStorage),
		dsn:     dsn,
	}, nil
}

// Close releases the database. All stored transactions are discarded.
func (s *SQLiteStore) Close() error {
	if s.keep != nil {
		_ = s.keep.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable and the schema is in place.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return err
	}
	if _, err := s.queries.CountTransactions(ctx); err != nil {
		return fmt.Errorf("query transactions table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) NextID(ctx context.Context) (int64, error) {
	id, err := s.queries.ReserveID(ctx)
	if err != nil {
		return 0, fmt.Errorf("reserve transaction id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) Add(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if tx.ID == 0 {
		id, err := s.NextID(ctx)
		if err != nil {
			return core.Transaction{}, err
		}
		tx.ID = id
	} else if err := s.queries.ClaimID(ctx, tx.ID); err != nil {
		return core.Transaction{}, fmt.Errorf("claim transaction id: %w", err)
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
		tx.CreatedAt = createdAt
	}

	err := s.queries.CreateTransaction(ctx, TransactionRow{
		ID:          tx.ID,
		Date:        tx.Date.String(),
		Currency:    tx.Currency,
		Amount:      tx.Amount,
		Rate:        tx.Rate,
		AmountLocal: tx.AmountLocal,
		CreatedAt:   createdAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	s.logger.DebugContext(ctx, "Transaction saved to SQLite",
		applog.FieldTransactionID, tx.ID,
		applog.FieldDate, tx.Date.String(),
		applog.FieldCurrency, tx.Currency)

	return tx, nil
}

func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	n, err := s.queries.DeleteTransaction(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{ID: id}
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]core.Transaction, error) {
	rows, err := s.queries.ListTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	out := make([]core.Transaction, 0, len(rows))
	for _, r := range rows {
		tx, err := rowToTransaction(r)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

func rowToTransaction(r TransactionRow) (core.Transaction, error) {
	date, err := core.ParseDate(r.Date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: %w", r.ID, err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("transaction %d: parse created_at: %w", r.ID, err)
	}
	return core.Transaction{
		ID:          r.ID,
		Date:        date,
		Currency:    r.Currency,
		Amount:      r.Amount,
		Rate:        r.Rate,
		AmountLocal: r.AmountLocal,
		CreatedAt:   createdAt,
	}, nil
}
