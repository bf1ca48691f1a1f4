package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"profittracker/internal/core"
)

// MaxBodyBytes bounds request bodies.
const MaxBodyBytes = 1 << 20

// Field names of the create-or-update body, in reporting order.
const (
	fieldDate                   = "date"
	fieldRealAccountProfit      = "realAccountProfit"
	fieldPaperTradingProfit     = "paperTradingProfit"
	fieldRealAccountPercentage  = "realAccountPercentage"
	fieldPaperTradingPercentage = "paperTradingPercentage"
)

var entryFields = []string{
	fieldDate,
	fieldRealAccountProfit,
	fieldPaperTradingProfit,
	fieldRealAccountPercentage,
	fieldPaperTradingPercentage,
}

var (
	ErrBodyTooLarge  = errors.New("request body too large")
	ErrMalformedBody = errors.New("malformed request body")
	ErrNotANumber    = errors.New("value must be a number")
)

// RequestBodyParser reads a JSON object or a form-encoded body once and
// exposes its fields by name. JSON null and blank strings count as absent.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]json.RawMessage
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads at most MaxBodyBytes from the request.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	var maxErr *http.MaxBytesError
	if errors.As(p.err, &maxErr) {
		p.err = fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, maxErr.Limit)
	}
	return p
}

func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.jsonData = map[string]json.RawMessage{}
		return nil
	}

	if trimmed[0] == '{' || trimmed[0] == '[' {
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
			return p.err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	if p.err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, p.err)
	}
	return p.err
}

// Has reports whether key carries a non-null, non-blank value.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		raw, ok := p.jsonData[key]
		if !ok {
			return false
		}
		v := strings.TrimSpace(string(raw))
		if v == "" || v == "null" {
			return false
		}
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return strings.TrimSpace(s) != ""
		}
		return true
	}
	if p.formData != nil {
		return strings.TrimSpace(p.formData.Get(key)) != ""
	}
	return false
}

// String returns the value of key as text. JSON numbers are returned verbatim.
func (p *RequestBodyParser) String(key string) (string, error) {
	if p.jsonData != nil {
		raw := p.jsonData[key]
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return strings.TrimSpace(sanitizeInput(s)), nil
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String(), nil
		}
		return "", fmt.Errorf("%s: unsupported JSON value %s", key, truncate(string(raw), 32))
	}
	return strings.TrimSpace(sanitizeInput(p.formData.Get(key))), nil
}

// Float parses key as a finite number given either as a JSON number or a
// numeric string.
func (p *RequestBodyParser) Float(key string) (float64, error) {
	s, err := p.String(key)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Err: ErrNotANumber}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &core.ValidationError{Field: key, Err: ErrNotANumber}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &core.ValidationError{Field: key, Err: core.ErrNonFiniteValue}
	}
	return f, nil
}

// ParseEntryRequest turns a create-or-update body into an entry without an id.
// Every field is required; missing ones are reported together.
func ParseEntryRequest(w http.ResponseWriter, r *http.Request) (core.ProfitEntry, error) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		return core.ProfitEntry{}, err
	}

	var missing []string
	for _, f := range entryFields {
		if !p.Has(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return core.ProfitEntry{}, core.MissingFieldsError(missing)
	}

	var entry core.ProfitEntry
	rawDate, err := p.String(fieldDate)
	if err != nil {
		return core.ProfitEntry{}, &core.ValidationError{Field: fieldDate, Err: err}
	}
	if entry.Date, err = core.ParseDate(rawDate); err != nil {
		return core.ProfitEntry{}, &core.ValidationError{Field: fieldDate, Err: fmt.Errorf("must be YYYY-MM-DD")}
	}

	targets := []struct {
		name string
		dst  *float64
	}{
		{fieldRealAccountProfit, &entry.RealAccountProfit},
		{fieldPaperTradingProfit, &entry.PaperTradingProfit},
		{fieldRealAccountPercentage, &entry.RealAccountPercentage},
		{fieldPaperTradingPercentage, &entry.PaperTradingPercentage},
	}
	for _, t := range targets {
		if *t.dst, err = p.Float(t.name); err != nil {
			return core.ProfitEntry{}, err
		}
	}
	return entry, nil
}

// parseLimit reads ?limit=, defaulting to def. Negative or non-numeric
// values are rejected.
func parseLimit(r *http.Request, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

// sanitizeInput strips control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
