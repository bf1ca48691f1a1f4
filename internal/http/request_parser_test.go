package http

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"profittracker/internal/core"
)

func newBodyRequest(body, contentType string) (*httptest.ResponseRecorder, *http.Request) {
	req := httptest.NewRequest(http.MethodPost, "/entries", strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return httptest.NewRecorder(), req
}

func TestRequestBodyParser_Has(t *testing.T) {
	w, r := newBodyRequest(`{"a":1,"b":null,"c":"","d":"  ","e":0,"f":"x"}`, "application/json")
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tests := map[string]bool{
		"a":       true,
		"b":       false,
		"c":       false,
		"d":       false,
		"e":       true,
		"f":       true,
		"missing": false,
	}
	for key, want := range tests {
		if got := p.Has(key); got != want {
			t.Errorf("Has(%q) = %v, want %v", key, got, want)
		}
	}
}

func TestRequestBodyParser_Float(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    float64
		wantErr error
	}{
		{"integer", `12`, 12, nil},
		{"negative decimal", `-3.25`, -3.25, nil},
		{"numeric string", `"42.5"`, 42.5, nil},
		{"padded string", `" 7 "`, 7, nil},
		{"zero string", `"0"`, 0, nil},
		{"word", `"abc"`, 0, ErrNotANumber},
		{"object", `{"v":1}`, 0, ErrNotANumber},
		{"infinity", `"Inf"`, 0, core.ErrNonFiniteValue},
		{"nan", `"NaN"`, 0, core.ErrNonFiniteValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, r := newBodyRequest(`{"v":`+tt.raw+`}`, "application/json")
			p := NewRequestBodyParser(w, r)
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			got, err := p.Float("v")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Float() error = %v, want %v", err, tt.wantErr)
				}
				if !core.IsValidation(err) {
					t.Fatalf("Float() error should be a ValidationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Float() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Float() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseEntryRequest(t *testing.T) {
	t.Run("json body", func(t *testing.T) {
		w, r := newBodyRequest(`{"date":"2024-03-01","realAccountProfit":1.5,"paperTradingProfit":"-2","realAccountPercentage":0,"paperTradingPercentage":0.25}`, "application/json")
		entry, err := ParseEntryRequest(w, r)
		if err != nil {
			t.Fatalf("ParseEntryRequest() error = %v", err)
		}
		if entry.ID != "" {
			t.Errorf("parsed entry should not carry an id, got %q", entry.ID)
		}
		if entry.Date.String() != "2024-03-01" {
			t.Errorf("Date = %v", entry.Date)
		}
		if entry.RealAccountProfit != 1.5 || entry.PaperTradingProfit != -2 || entry.PaperTradingPercentage != 0.25 {
			t.Errorf("unexpected numbers: %+v", entry)
		}
	})

	t.Run("form body", func(t *testing.T) {
		w, r := newBodyRequest("date=2024-03-02&realAccountProfit=1&paperTradingProfit=2&realAccountPercentage=3&paperTradingPercentage=4",
			"application/x-www-form-urlencoded")
		entry, err := ParseEntryRequest(w, r)
		if err != nil {
			t.Fatalf("ParseEntryRequest() error = %v", err)
		}
		if entry.PaperTradingPercentage != 4 {
			t.Errorf("PaperTradingPercentage = %v, want 4", entry.PaperTradingPercentage)
		}
	})

	t.Run("missing fields are reported together in order", func(t *testing.T) {
		w, r := newBodyRequest(`{"realAccountProfit":1,"realAccountPercentage":3}`, "application/json")
		_, err := ParseEntryRequest(w, r)
		var ve *core.ValidationError
		if !errors.As(err, &ve) || !errors.Is(err, core.ErrMissingFields) {
			t.Fatalf("expected missing fields error, got %v", err)
		}
		if want := "date, paperTradingProfit, paperTradingPercentage"; ve.Field != want {
			t.Errorf("Field = %q, want %q", ve.Field, want)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		w, r := newBodyRequest("", "")
		_, err := ParseEntryRequest(w, r)
		if !errors.Is(err, core.ErrMissingFields) {
			t.Fatalf("expected missing fields error, got %v", err)
		}
	})

	t.Run("invalid calendar date", func(t *testing.T) {
		w, r := newBodyRequest(`{"date":"2024-02-30","realAccountProfit":1,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`, "application/json")
		_, err := ParseEntryRequest(w, r)
		var ve *core.ValidationError
		if !errors.As(err, &ve) || ve.Field != "date" {
			t.Fatalf("expected date validation error, got %v", err)
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		w, r := newBodyRequest(`{"date":"2024-03-01",`, "application/json")
		_, err := ParseEntryRequest(w, r)
		if !errors.Is(err, ErrMalformedBody) {
			t.Fatalf("expected ErrMalformedBody, got %v", err)
		}
	})

	t.Run("oversized body", func(t *testing.T) {
		w, r := newBodyRequest(strings.Repeat(" ", MaxBodyBytes+1), "application/json")
		_, err := ParseEntryRequest(w, r)
		if !errors.Is(err, ErrBodyTooLarge) {
			t.Fatalf("expected ErrBodyTooLarge, got %v", err)
		}
	})
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", 10, false},
		{"limit=3", 3, false},
		{"limit=0", 0, false},
		{"limit=-1", 0, true},
		{"limit=ten", 0, true},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/entries/recent?"+tt.query, nil)
		got, err := parseLimit(r, 10)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseLimit(%q) error = %v, wantErr %v", tt.query, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tt.query, got, tt.want)
		}
	}
}

func TestSanitizeInput(t *testing.T) {
	if got := sanitizeInput("2024-01-05\x00\x07"); got != "2024-01-05" {
		t.Errorf("sanitizeInput() = %q", got)
	}
	if got := sanitizeInput("a\tb\nc"); got != "a\tb\nc" {
		t.Errorf("sanitizeInput() should keep whitespace controls, got %q", got)
	}
}
