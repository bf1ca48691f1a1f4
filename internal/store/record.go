package store

import (
	"fmt"
	"time"

	"profittracker/internal/core"
)

// Record is the persisted form of a profit entry.
type Record struct {
	ID                     string    `json:"id" bson:"_id"`
	Date                   string    `json:"date" bson:"date"`
	RealAccountProfit      float64   `json:"real_account_profit" bson:"real_account_profit"`
	PaperTradingProfit     float64   `json:"paper_trading_profit" bson:"paper_trading_profit"`
	RealAccountPercentage  float64   `json:"real_account_percentage" bson:"real_account_percentage"`
	PaperTradingPercentage float64   `json:"paper_trading_percentage" bson:"paper_trading_percentage"`
	CreatedAt              time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt              time.Time `json:"updated_at" bson:"updated_at"`
}

// FromEntry maps an entry onto a record. Timestamps are left for the backend.
func FromEntry(e core.ProfitEntry) Record {
	return Record{
		ID:                     e.ID,
		Date:                   e.Date.String(),
		RealAccountProfit:      e.RealAccountProfit,
		PaperTradingProfit:     e.PaperTradingProfit,
		RealAccountPercentage:  e.RealAccountPercentage,
		PaperTradingPercentage: e.PaperTradingPercentage,
	}
}

// ToEntry maps a record back to an entry.
func (r Record) ToEntry() (core.ProfitEntry, error) {
	d, err := core.ParseDate(r.Date)
	if err != nil {
		return core.ProfitEntry{}, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return core.ProfitEntry{
		ID:                     r.ID,
		Date:                   d,
		RealAccountProfit:      r.RealAccountProfit,
		PaperTradingProfit:     r.PaperTradingProfit,
		RealAccountPercentage:  r.RealAccountPercentage,
		PaperTradingPercentage: r.PaperTradingPercentage,
	}, nil
}

// Touch stamps UpdatedAt and, on first write, CreatedAt.
func (r *Record) Touch(now time.Time) {
	now = now.UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
}
