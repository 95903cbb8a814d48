package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/finance/memory"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"

	"github.com/shopspring/decimal"
)

type testEnv struct {
	srv   *Server
	svc   *memory.Service
	notes *notify.Recorder
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	logger := log.Discard()
	svc := memory.New()
	notes := notify.NewRecorder(0)
	console := ledger.NewConsole(ledger.Deps{
		Gateway:       finance.Guard(svc, time.Second, logger),
		Cache:         session.New(cache.NewKV(0), logger),
		Notifier:      notes,
		Logger:        logger,
		Bounds:        core.DefaultYearBounds(),
		DefaultBudget: decimal.NewFromInt(120000),
	})
	opts.Recent = notes
	srv := NewServer(":0", console, opts, logger)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, svc: svc, notes: notes}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndHeaders(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := env.do(t, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
		if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
			t.Errorf("%s missing security headers", path)
		}
		if !strings.HasPrefix(rr.Header().Get("X-Request-ID"), "req_") {
			t.Errorf("%s missing request id, got %q", path, rr.Header().Get("X-Request-ID"))
		}
	}
	if env.srv.Metrics().TotalRequests != 2 {
		t.Errorf("expected 2 traced requests, got %+v", env.srv.Metrics())
	}
}

func TestSelectAndEditFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.Seed(2025, decimal.NewFromInt(120000))

	rr := env.do(t, http.MethodPost, "/api/years/2025/select", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("select status=%d body=%s", rr.Code, rr.Body.String())
	}
	snap := decodeBody[ledger.Snapshot](t, rr)
	if snap.Year != 2025 || len(snap.Months) != 12 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	rr = env.do(t, http.MethodPost, "/api/years/2025/months/3/items",
		`{"name":"Lift","description":"Lift service","amount":"450","category":"Maintenance"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	item := decodeBody[core.LineItem](t, rr)
	if item.Provenance != core.ProvenanceNew || !item.Amount.Equal(decimal.NewFromInt(450)) {
		t.Fatalf("unexpected item %+v", item)
	}

	rr = env.do(t, http.MethodPatch, "/api/years/2025/months/3/items/"+item.ID,
		`{"name":"Lift","description":"Lift service","amount":"12,50","category":"Maintenance"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("edit status=%d body=%s", rr.Code, rr.Body.String())
	}
	if edited := decodeBody[core.LineItem](t, rr); !edited.Amount.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("edit not applied: %+v", edited)
	}

	rr = env.do(t, http.MethodGet, "/api/years/2025/months", "")
	months := decodeBody[[]core.MonthRecord](t, rr)
	if len(months) != 12 || len(months[2].Items) != 1 {
		t.Fatalf("march should hold the draft: %+v", months)
	}

	rr = env.do(t, http.MethodPost, "/api/years/2025/months/3/save", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	res := decodeBody[ledger.SaveResult](t, rr)
	if res.Saved != 1 || res.Month.Status != core.StatusUploaded {
		t.Fatalf("unexpected save result %+v", res)
	}
	if b := env.svc.Batches(); len(b) != 1 || b[0].Month != 3 {
		t.Fatalf("expected one batch for month 3, got %+v", b)
	}

	saved := res.Month.Items[0]
	rr = env.do(t, http.MethodDelete, "/api/years/2025/months/3/items/"+saved.ID, "")
	if rr.Code != http.StatusConflict {
		t.Fatalf("removing a saved item: status=%d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/api/years/2025/aggregate", "")
	agg := decodeBody[core.BudgetAggregate](t, rr)
	if !agg.TotalSpent.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	rr = env.do(t, http.MethodGet, "/api/notifications", "")
	notes := decodeBody[[]notify.Notification](t, rr)
	if len(notes) == 0 || notes[len(notes)-1].Level != notify.LevelSuccess {
		t.Fatalf("expected the save confirmation last, got %+v", notes)
	}
}

func TestBudgetEndpoints(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.Seed(2024, decimal.NewFromInt(1000))

	rr := env.do(t, http.MethodGet, "/api/years/2024/budget", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("budget status=%d", rr.Code)
	}
	if b := decodeBody[core.AnnualBudget](t, rr); !b.TotalBudget.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("unexpected budget %+v", b)
	}

	rr = env.do(t, http.MethodPut, "/api/years/2024/budget", `{"amount":"1500"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("update status=%d body=%s", rr.Code, rr.Body.String())
	}
	if agg := decodeBody[core.BudgetAggregate](t, rr); !agg.TotalBudget.Equal(decimal.NewFromInt(1500)) {
		t.Fatalf("aggregate not recomputed: %+v", agg)
	}

	rr = env.do(t, http.MethodPut, "/api/years/2024/budget", `{"amount":"-3"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("negative budget: status=%d", rr.Code)
	}

	env.svc.Fail(memory.OpUpdateBudget, nil)
	rr = env.do(t, http.MethodPut, "/api/years/2024/budget", `{"amount":"1600"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unreachable service: status=%d", rr.Code)
	}
}

func TestErrorMapping(t *testing.T) {
	env := newTestEnv(t, Options{})
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"unknown year needs confirmation", http.MethodPost, "/api/years/2025/select", `{"create":false}`, http.StatusNotFound},
		{"year out of bounds", http.MethodPost, "/api/years/1999/select", "", http.StatusBadRequest},
		{"year not numeric", http.MethodGet, "/api/years/abc/budget", "", http.StatusBadRequest},
		{"month out of range", http.MethodPost, "/api/years/2025/months/13/items", `{"amount":"1"}`, http.StatusBadRequest},
		{"months before select", http.MethodGet, "/api/years/2026/months", "", http.StatusConflict},
		{"add before select", http.MethodPost, "/api/years/2026/months/1/items", `{"name":"x","amount":"1"}`, http.StatusConflict},
		{"bad amount", http.MethodPost, "/api/years/2026/months/1/items", `{"name":"x","amount":"abc"}`, http.StatusBadRequest},
		{"unknown field", http.MethodPut, "/api/years/2026/budget", `{"total":"1"}`, http.StatusBadRequest},
		{"empty body", http.MethodPut, "/api/years/2026/budget", "", http.StatusBadRequest},
		{"no such endpoint", http.MethodGet, "/api/nope", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := env.do(t, tc.method, tc.path, tc.body)
			if rr.Code != tc.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.want, rr.Body.String())
			}
			if p := decodeBody[problem](t, rr); p.Status != tc.want || p.Error == "" {
				t.Fatalf("unexpected problem body %+v", p)
			}
		})
	}
}

func TestSaveWithoutLedgerMapping(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.Fail(memory.OpCreateBudget, nil)

	rr := env.do(t, http.MethodPost, "/api/years/2025/select", `{"create":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("offline select status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/years/2025/months/1/items", `{"name":"Rent","amount":"800"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status=%d body=%s", rr.Code, rr.Body.String())
	}
	rr = env.do(t, http.MethodPost, "/api/years/2025/months/1/save", "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("save status=%d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "missing ledger mapping") {
		t.Fatalf("unexpected body %s", rr.Body.String())
	}
	if len(env.svc.Batches()) != 0 {
		t.Fatalf("no batch may be sent without a ledger id")
	}
}

func TestListYears(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.svc.Seed(2023, decimal.NewFromInt(1))
	env.svc.Seed(2024, decimal.NewFromInt(1))

	rr := env.do(t, http.MethodGet, "/api/years", "")
	got := decodeBody[yearsResponse](t, rr)
	if len(got.Years) != 2 || got.Selected != 0 {
		t.Fatalf("unexpected years %+v", got)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, Options{RateLimitPerMinute: 2})
	for i := 0; i < 2; i++ {
		if rr := env.do(t, http.MethodGet, "/api/years", ""); rr.Code != http.StatusOK {
			t.Fatalf("request %d: status=%d", i, rr.Code)
		}
	}
	rr := env.do(t, http.MethodGet, "/api/years", "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
	if rr := env.do(t, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("health checks are not rate limited, got %d", rr.Code)
	}
}

func TestExtractClientIP(t *testing.T) {
	cases := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.7:5555", "", "203.0.113.7"},
		{"untrusted peer cannot spoof", "203.0.113.7:5555", "1.2.3.4", "203.0.113.7"},
		{"trusted proxy forwards", "10.0.0.2:5555", "198.51.100.9, 10.0.0.2", "198.51.100.9"},
		{"trusted proxy garbage header", "10.0.0.2:5555", "not-an-ip", "10.0.0.2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			if got := extractClientIP(req); got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}
