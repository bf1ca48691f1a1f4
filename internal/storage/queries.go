package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// ProfitEntry mirrors a profit_entries row.
type ProfitEntry struct {
	ID                     string
	Date                   string
	RealAccountProfit      float64
	PaperTradingProfit     float64
	RealAccountPercentage  float64
	PaperTradingPercentage float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

const entryColumns = `id, date, real_account_profit, paper_trading_profit, real_account_percentage, paper_trading_percentage, created_at, updated_at`

const listEntries = `SELECT ` + entryColumns + ` FROM profit_entries ORDER BY date ASC`

func (q *Queries) ListEntries(ctx context.Context) ([]ProfitEntry, error) {
	rows, err := q.db.QueryContext(ctx, listEntries)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProfitEntry
	for rows.Next() {
		i, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getEntryByDate = `SELECT ` + entryColumns + ` FROM profit_entries WHERE date = ? LIMIT 1`

func (q *Queries) GetEntryByDate(ctx context.Context, date string) (ProfitEntry, error) {
	row := q.db.QueryRowContext(ctx, getEntryByDate, date)
	return scanEntry(row)
}

// The conflict target is date: id and created_at of an existing row survive.
const upsertEntry = `INSERT INTO profit_entries (` + entryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
    real_account_profit      = excluded.real_account_profit,
    paper_trading_profit     = excluded.paper_trading_profit,
    real_account_percentage  = excluded.real_account_percentage,
    paper_trading_percentage = excluded.paper_trading_percentage,
    updated_at               = excluded.updated_at
RETURNING ` + entryColumns

type UpsertEntryParams struct {
	ID                     string
	Date                   string
	RealAccountProfit      float64
	PaperTradingProfit     float64
	RealAccountPercentage  float64
	PaperTradingPercentage float64
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) (ProfitEntry, error) {
	row := q.db.QueryRowContext(ctx, upsertEntry,
		arg.ID,
		arg.Date,
		arg.RealAccountProfit,
		arg.PaperTradingProfit,
		arg.RealAccountPercentage,
		arg.PaperTradingPercentage,
		formatTimestamp(arg.CreatedAt),
		formatTimestamp(arg.UpdatedAt),
	)
	return scanEntry(row)
}

const deleteEntry = `DELETE FROM profit_entries WHERE id = ?`

func (q *Queries) DeleteEntry(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteEntry, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(s scanner) (ProfitEntry, error) {
	var (
		i                    ProfitEntry
		createdAt, updatedAt string
	)
	err := s.Scan(
		&i.ID,
		&i.Date,
		&i.RealAccountProfit,
		&i.PaperTradingProfit,
		&i.RealAccountPercentage,
		&i.PaperTradingPercentage,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return i, err
	}
	if i.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return i, fmt.Errorf("created_at: %w", err)
	}
	if i.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return i, fmt.Errorf("updated_at: %w", err)
	}
	return i, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
