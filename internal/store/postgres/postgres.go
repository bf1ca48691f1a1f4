// Package postgres persists profit entries in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"profittracker/internal/store"
)

// entryModel is the gorm mapping of the profit_entries table.
type entryModel struct {
	ID                     string    `gorm:"primaryKey;type:text"`
	Date                   string    `gorm:"type:text;not null;uniqueIndex:idx_profit_entries_date"`
	RealAccountProfit      float64   `gorm:"not null;default:0"`
	PaperTradingProfit     float64   `gorm:"not null;default:0"`
	RealAccountPercentage  float64   `gorm:"not null;default:0"`
	PaperTradingPercentage float64   `gorm:"not null;default:0"`
	CreatedAt              time.Time `gorm:"not null"`
	UpdatedAt              time.Time `gorm:"not null"`
}

func (entryModel) TableName() string { return store.TableName }

// numericColumns are the only columns overwritten when a date already exists.
var numericColumns = []string{
	"real_account_profit",
	"paper_trading_profit",
	"real_account_percentage",
	"paper_trading_percentage",
	"updated_at",
}

type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to dsn and migrates the profit_entries table.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewStore(db)
	if err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, err
	}
	return s, nil
}

// NewStore wraps an existing gorm connection.
func NewStore(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, errors.New("database connection is nil")
	}
	if err := db.AutoMigrate(&entryModel{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", store.TableName, err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) SelectAll(ctx context.Context) ([]store.Record, error) {
	var models []entryModel
	if err := s.db.WithContext(ctx).Order("date ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	out := make([]store.Record, len(models))
	for i, m := range models {
		out[i] = m.toRecord()
	}
	return out, nil
}

func (s *Store) SelectByDate(ctx context.Context, date string) (store.Record, error) {
	var m entryModel
	err := s.db.WithContext(ctx).Where("date = ?", date).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Record{}, store.ErrNoRows
	}
	if err != nil {
		return store.Record{}, fmt.Errorf("get entry by date %s: %w", date, err)
	}
	return m.toRecord(), nil
}

// Upsert issues a single INSERT ... ON CONFLICT (date) DO UPDATE ... RETURNING *,
// so concurrent writers for one date converge on a single row.
func (s *Store) Upsert(ctx context.Context, rec store.Record) (store.Record, error) {
	rec.Touch(s.now())
	m := fromRecord(rec)

	err := s.db.WithContext(ctx).
		Clauses(
			clause.OnConflict{
				Columns:   []clause.Column{{Name: "date"}},
				DoUpdates: clause.AssignmentColumns(numericColumns),
			},
			clause.Returning{},
		).
		Create(&m).Error
	if err != nil {
		return store.Record{}, fmt.Errorf("upsert entry %s: %w", rec.Date, err)
	}

	slog.DebugContext(ctx, "Entry saved to PostgreSQL", "id", m.ID, "date", m.Date)
	return m.toRecord(), nil
}

func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&entryModel{})
	if res.Error != nil {
		return fmt.Errorf("delete entry %s: %w", id, res.Error)
	}
	slog.DebugContext(ctx, "Entry deleted from PostgreSQL", "id", id, "rows_affected", res.RowsAffected)
	return nil
}

func fromRecord(r store.Record) entryModel {
	return entryModel{
		ID:                     r.ID,
		Date:                   r.Date,
		RealAccountProfit:      r.RealAccountProfit,
		PaperTradingProfit:     r.PaperTradingProfit,
		RealAccountPercentage:  r.RealAccountPercentage,
		PaperTradingPercentage: r.PaperTradingPercentage,
		CreatedAt:              r.CreatedAt,
		UpdatedAt:              r.UpdatedAt,
	}
}

func (m entryModel) toRecord() store.Record {
	return store.Record{
		ID:                     m.ID,
		Date:                   m.Date,
		RealAccountProfit:      m.RealAccountProfit,
		PaperTradingProfit:     m.PaperTradingProfit,
		RealAccountPercentage:  m.RealAccountPercentage,
		PaperTradingPercentage: m.PaperTradingPercentage,
		CreatedAt:              m.CreatedAt.UTC(),
		UpdatedAt:              m.UpdatedAt.UTC(),
	}
}
