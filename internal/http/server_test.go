package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"profittracker/internal/core"
	applog "profittracker/internal/log"
	"profittracker/internal/services"
	"profittracker/internal/store"
	"profittracker/internal/store/memory"
)

func quietLogger() *applog.Logger {
	return applog.New(applog.Config{Output: &bytes.Buffer{}})
}

func newTestServer(t *testing.T, backend store.Backend) *Server {
	t.Helper()
	if backend == nil {
		backend = memory.New()
	}
	entries := services.NewEntryStore(backend, services.WithLogger(quietLogger()))
	return NewServer(":0", entries, quietLogger())
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestEntryLifecycle(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/entries",
		`{"date":"2024-01-05","realAccountProfit":100,"paperTradingProfit":50,"realAccountPercentage":1.2,"paperTradingPercentage":0.8}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("unexpected content type %q", ct)
	}
	created := decode[core.ProfitEntry](t, rr)
	if created.ID == "" || created.Date.String() != "2024-01-05" || created.RealAccountProfit != 100 {
		t.Fatalf("unexpected entry: %+v", created)
	}

	rr = do(t, srv, http.MethodPost, "/entries",
		`{"date":"2024-01-05","realAccountProfit":150,"paperTradingProfit":50,"realAccountPercentage":1.2,"paperTradingPercentage":0.8}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	updated := decode[core.ProfitEntry](t, rr)
	if updated.ID != created.ID || updated.RealAccountProfit != 150 {
		t.Fatalf("expected same id with 150, got %+v", updated)
	}

	rr = do(t, srv, http.MethodGet, "/entries", "")
	list := decode[[]core.ProfitEntry](t, rr)
	if rr.Code != http.StatusOK || len(list) != 1 || list[0].RealAccountProfit != 150 {
		t.Fatalf("unexpected list: status=%d %+v", rr.Code, list)
	}

	rr = do(t, srv, http.MethodDelete, "/entries/"+created.ID, "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != `{"success":true}` {
		t.Fatalf("delete status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/entries", "")
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("expected empty list, got %s", rr.Body.String())
	}
}

func TestCreateEntryValidation(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		wantStatus  int
		wantError   string
		wantDetails string
	}{
		{
			name:        "missing paperTradingPercentage",
			body:        `{"date":"2024-01-06","realAccountProfit":1,"paperTradingProfit":2,"realAccountPercentage":3}`,
			wantStatus:  http.StatusBadRequest,
			wantError:   "Missing required fields",
			wantDetails: "paperTradingPercentage",
		},
		{
			name:        "empty body",
			body:        `{}`,
			wantStatus:  http.StatusBadRequest,
			wantError:   "Missing required fields",
			wantDetails: "date, realAccountProfit, paperTradingProfit, realAccountPercentage, paperTradingPercentage",
		},
		{
			name:        "null counts as missing",
			body:        `{"date":"2024-01-06","realAccountProfit":null,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus:  http.StatusBadRequest,
			wantError:   "Missing required fields",
			wantDetails: "realAccountProfit",
		},
		{
			name:       "empty date",
			body:       `{"date":"","realAccountProfit":1,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing required fields",
		},
		{
			name:       "malformed date",
			body:       `{"date":"05/01/2024","realAccountProfit":1,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid field value",
		},
		{
			name:       "non-numeric value",
			body:       `{"date":"2024-01-06","realAccountProfit":"abc","paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid field value",
		},
		{
			name:       "non-finite value",
			body:       `{"date":"2024-01-06","realAccountProfit":"NaN","paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid field value",
		},
		{
			name:       "boolean value",
			body:       `{"date":"2024-01-06","realAccountProfit":true,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid field value",
		},
		{
			name:       "malformed JSON",
			body:       `{"date":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := memory.New()
			srv := newTestServer(t, backend)

			rr := do(t, srv, http.MethodPost, "/entries", tt.body)
			if rr.Code != tt.wantStatus {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
			got := decode[ErrorBody](t, rr)
			if got.Error != tt.wantError {
				t.Fatalf("error=%q want %q", got.Error, tt.wantError)
			}
			if tt.wantDetails != "" && got.Details != tt.wantDetails {
				t.Fatalf("details=%q want %q", got.Details, tt.wantDetails)
			}
			if all, _ := backend.SelectAll(context.Background()); len(all) != 0 {
				t.Fatalf("store mutated on rejected request")
			}
		})
	}
}

func TestCreateEntryAcceptsZeroAndStrings(t *testing.T) {
	srv := newTestServer(t, nil)

	rr := do(t, srv, http.MethodPost, "/entries",
		`{"date":"2024-02-01","realAccountProfit":"0","paperTradingProfit":0,"realAccountPercentage":"-1.5","paperTradingPercentage":"2e-1"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[core.ProfitEntry](t, rr)
	if got.RealAccountProfit != 0 || got.RealAccountPercentage != -1.5 || got.PaperTradingPercentage != 0.2 {
		t.Fatalf("unexpected entry: %+v", got)
	}
}

func TestCreateEntryFormEncoded(t *testing.T) {
	srv := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/entries",
		strings.NewReader("date=2024-02-02&realAccountProfit=10&paperTradingProfit=5&realAccountPercentage=1&paperTradingPercentage=0.5"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestCreateEntryBodyTooLarge(t *testing.T) {
	srv := newTestServer(t, nil)
	body := `{"date":"2024-01-05","pad":"` + strings.Repeat("x", MaxBodyBytes) + `"}`

	rr := do(t, srv, http.MethodPost, "/entries", body)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr); got.Error != "Request body too large" {
		t.Fatalf("unexpected error body: %+v", got)
	}
}

// brokenBackend fails every call with a fixed message.
type brokenBackend struct{ msg string }

func (b brokenBackend) SelectAll(context.Context) ([]store.Record, error) {
	return nil, errors.New(b.msg)
}
func (b brokenBackend) SelectByDate(context.Context, string) (store.Record, error) {
	return store.Record{}, errors.New(b.msg)
}
func (b brokenBackend) Upsert(context.Context, store.Record) (store.Record, error) {
	return store.Record{}, errors.New(b.msg)
}
func (b brokenBackend) DeleteByID(context.Context, string) error { return errors.New(b.msg) }
func (b brokenBackend) Ping(context.Context) error               { return errors.New(b.msg) }

func TestStoreFailures(t *testing.T) {
	srv := newTestServer(t, brokenBackend{msg: "relation \"profit_entries\" does not exist"})

	rr := do(t, srv, http.MethodPost, "/entries",
		`{"date":"2024-01-05","realAccountProfit":1,"paperTradingProfit":2,"realAccountPercentage":3,"paperTradingPercentage":4}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("save status=%d", rr.Code)
	}
	got := decode[ErrorBody](t, rr)
	if got.Error != "Failed to save entry" || got.Details != `relation "profit_entries" does not exist` {
		t.Fatalf("unexpected save error: %+v", got)
	}

	rr = do(t, srv, http.MethodDelete, "/entries/abc", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("delete status=%d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr); got.Error != "Failed to delete entry" || got.Details == "" {
		t.Fatalf("unexpected delete error: %+v", got)
	}

	// Listing is fail-soft.
	rr = do(t, srv, http.MethodGet, "/entries", "")
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("list status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d", rr.Code)
	}
}

func TestDeleteEntry(t *testing.T) {
	srv := newTestServer(t, nil)

	for _, path := range []string{"/entries/", "/entries", "/entries/%20"} {
		rr := do(t, srv, http.MethodDelete, path, "")
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status=%d", path, rr.Code)
		}
		if got := decode[ErrorBody](t, rr); got.Error != "Entry ID is required" {
			t.Fatalf("%s: unexpected body %+v", path, got)
		}
	}

	rr := do(t, srv, http.MethodDelete, "/entries/never-existed", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("unknown id status=%d", rr.Code)
	}
}

func TestAggregateEndpoints(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, body := range []string{
		`{"date":"2024-01-01","realAccountProfit":10,"paperTradingProfit":20,"realAccountPercentage":0.1,"paperTradingPercentage":0.2}`,
		`{"date":"2024-01-02","realAccountProfit":-5,"paperTradingProfit":5,"realAccountPercentage":-0.05,"paperTradingPercentage":0.05}`,
		`{"date":"2024-01-03","realAccountProfit":30,"paperTradingProfit":-10,"realAccountPercentage":0.3,"paperTradingPercentage":-0.1}`,
	} {
		if rr := do(t, srv, http.MethodPost, "/entries", body); rr.Code != http.StatusCreated {
			t.Fatalf("seed status=%d", rr.Code)
		}
	}

	sum := decode[core.Summary](t, do(t, srv, http.MethodGet, "/entries/summary", ""))
	if sum.TotalDays != 3 || sum.TotalProfit != 50 {
		t.Fatalf("unexpected summary: %+v", sum)
	}

	series := decode[[]core.SeriesPoint](t, do(t, srv, http.MethodGet, "/entries/series", ""))
	if len(series) != 3 || series[1].CumulativeReal != 5 {
		t.Fatalf("unexpected series: %+v", series)
	}

	recent := decode[[]core.ProfitEntry](t, do(t, srv, http.MethodGet, "/entries/recent?limit=1", ""))
	if len(recent) != 1 || recent[0].Date.String() != "2024-01-03" {
		t.Fatalf("unexpected recent: %+v", recent)
	}

	if rr := do(t, srv, http.MethodGet, "/entries/recent?limit=-1", ""); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status=%d", rr.Code)
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Request-ID") == "" {
			t.Fatalf("%s: missing request id header", path)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Fatalf("%s: missing security headers", path)
		}
	}
}

type panickingService struct{ EntryService }

func (panickingService) ListAll(context.Context) []core.ProfitEntry { panic("boom") }

func TestRecovererReturnsJSON500(t *testing.T) {
	srv := NewServer(":0", panickingService{}, quietLogger())
	rr := do(t, srv, http.MethodGet, "/entries", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d", rr.Code)
	}
	if got := decode[ErrorBody](t, rr); got.Error != "Internal server error" {
		t.Fatalf("unexpected body: %+v", got)
	}
}
