package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// TransactionRow is the persisted form of core.Transaction.
type TransactionRow struct {
	ID          int64
	Date        string
	Currency    string
	Amount      float64
	Rate        float64
	AmountLocal float64
	CreatedAt   string
}

const reserveID = `INSERT INTO transaction_ids DEFAULT VALUES`

func (q *Queries) ReserveID(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx, reserveID)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const claimID = `INSERT OR IGNORE INTO transaction_ids (id) VALUES (?)`

// ClaimID records an externally chosen ID so the sequence moves past it.
func (q *Queries) ClaimID(ctx context.Context, id int64) error {
	_, err := q.db.ExecContext(ctx, claimID, id)
	return err
}

const createTransaction = `INSERT INTO transactions (id, date, currency, amount, rate, amount_local, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateTransaction(ctx context.Context, arg TransactionRow) error {
	_, err := q.db.ExecContext(ctx, createTransaction,
		arg.ID,
		arg.Date,
		arg.Currency,
		arg.Amount,
		arg.Rate,
		arg.AmountLocal,
		arg.CreatedAt,
	)
	return err
}

const deleteTransaction = `DELETE FROM transactions WHERE id = ?`

func (q *Queries) DeleteTransaction(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listTransactions = `SELECT id, date, currency, amount, rate, amount_local, created_at
FROM transactions
ORDER BY date DESC, row_id ASC`

func (q *Queries) ListTransactions(ctx context.Context) ([]TransactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TransactionRow
	for rows.Next() {
		var i TransactionRow
		if err := rows.Scan(
			&i.ID,
			&i.Date,
			&i.Currency,
			&i.Amount,
			&i.Rate,
			&i.AmountLocal,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countTransactions = `SELECT COUNT(*) FROM transactions`

func (q *Queries) CountTransactions(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countTransactions).Scan(&n)
	return n, err
}
