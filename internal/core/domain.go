package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// DateLayout is the ISO 8601 calendar date layout used on the wire and in storage.
const DateLayout = "2006-01-02"

type (
	// Date is a calendar day without a time component.
	Date struct {
		time.Time
	}

	// ProfitEntry is one day's recorded figures for the real and paper accounts.
	ProfitEntry struct {
		ID                     string  `json:"id"`
		Date                   Date    `json:"date"`
		RealAccountProfit      float64 `json:"realAccountProfit"`
		PaperTradingProfit     float64 `json:"paperTradingProfit"`
		RealAccountPercentage  float64 `json:"realAccountPercentage"`
		PaperTradingPercentage float64 `json:"paperTradingPercentage"`
	}
)

var (
	ErrZeroDate       = errors.New("date cannot be zero")
	ErrNonFiniteValue = errors.New("value must be a finite number")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// MustParseDate is ParseDate for literals; it panics on malformed input.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrZeroDate
	}
	return nil
}

// Before reports whether d is an earlier calendar day than o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// TotalProfit is the combined profit of both accounts for the day.
func (e ProfitEntry) TotalProfit() float64 {
	return e.RealAccountProfit + e.PaperTradingProfit
}

func (e ProfitEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Err: err}
	}
	fields := []struct {
		name  string
		value float64
	}{
		{"realAccountProfit", e.RealAccountProfit},
		{"paperTradingProfit", e.PaperTradingProfit},
		{"realAccountPercentage", e.RealAccountPercentage},
		{"paperTradingPercentage", e.PaperTradingPercentage},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return &ValidationError{Field: f.name, Err: ErrNonFiniteValue}
		}
	}
	return nil
}
