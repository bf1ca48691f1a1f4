package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"profittracker/internal/store"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Run migrations
	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements store.Backend
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// SelectAll implements store.Reader
func (r *SQLiteRepository) SelectAll(ctx context.Context) ([]store.Record, error) {
	rows, err := r.queries.ListEntries(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]store.Record, len(rows))
	for i, row := range rows {
		out[i] = toRecord(row)
	}
	return out, nil
}

// SelectByDate implements store.Reader
func (r *SQLiteRepository) SelectByDate(ctx context.Context, date string) (store.Record, error) {
	row, err := r.queries.GetEntryByDate(ctx, date)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, store.ErrNoRows
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get entry by date %s: %w", date, err)
	}
	return toRecord(row), nil
}

// Upsert implements store.Writer
func (r *SQLiteRepository) Upsert(ctx context.Context, rec store.Record) (store.Record, error) {
	rec.Touch(r.now())
	row, err := r.queries.UpsertEntry(ctx, UpsertEntryParams{
		ID:                     rec.ID,
		Date:                   rec.Date,
		RealAccountProfit:      rec.RealAccountProfit,
		PaperTradingProfit:     rec.PaperTradingProfit,
		RealAccountPercentage:  rec.RealAccountPercentage,
		PaperTradingPercentage: rec.PaperTradingPercentage,
		CreatedAt:              rec.CreatedAt,
		UpdatedAt:              rec.UpdatedAt,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return store.Record{}, fmt.Errorf("upsert entry %s: no row returned", rec.Date)
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("upsert entry %s: %w", rec.Date, err)
	}

	slog.DebugContext(ctx, "Entry saved to SQLite",
		"id", row.ID,
		"date", row.Date)

	return toRecord(row), nil
}

// DeleteByID implements store.Writer
func (r *SQLiteRepository) DeleteByID(ctx context.Context, id string) error {
	n, err := r.queries.DeleteEntry(ctx, id)
	if err != nil {
		return fmt.Errorf("delete entry %s: %w", id, err)
	}
	slog.DebugContext(ctx, "Entry deleted from SQLite", "id", id, "rows_affected", n)
	return nil
}

func toRecord(row ProfitEntry) store.Record {
	return store.Record{
		ID:                     row.ID,
		Date:                   row.Date,
		RealAccountProfit:      row.RealAccountProfit,
		PaperTradingProfit:     row.PaperTradingProfit,
		RealAccountPercentage:  row.RealAccountPercentage,
		PaperTradingPercentage: row.PaperTradingPercentage,
		CreatedAt:              row.CreatedAt,
		UpdatedAt:              row.UpdatedAt,
	}
}
