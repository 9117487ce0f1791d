package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/fitcoach/internal/tool"
)

func TestHealthz_AlwaysReturns200(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestHealthz_ContentType(t *testing.T) {
	h := New()
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	ct := rec.Header().Get("Content-Type")
	if ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestReadyz_AllCheckersPass(t *testing.T) {
	h := New(
		Checker{Name: "interactions", Check: func(_ context.Context) error { return nil }},
		Checker{Name: "mcp", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
	if body.Checks["interactions"] != "ok" {
		t.Errorf("interactions check = %q, want %q", body.Checks["interactions"], "ok")
	}
	if body.Checks["mcp"] != "ok" {
		t.Errorf("mcp check = %q, want %q", body.Checks["mcp"], "ok")
	}
}

func TestReadyz_CheckerFails(t *testing.T) {
	h := New(
		Checker{Name: "interactions", Check: func(_ context.Context) error {
			return errors.New("connection refused")
		}},
		Checker{Name: "mcp", Check: func(_ context.Context) error { return nil }},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["interactions"] != "fail: connection refused" {
		t.Errorf("interactions check = %q, want %q", body.Checks["interactions"], "fail: connection refused")
	}
	if body.Checks["mcp"] != "ok" {
		t.Errorf("mcp check = %q, want %q", body.Checks["mcp"], "ok")
	}
}

func TestReadyz_NoCheckers(t *testing.T) {
	h := New()

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want %q", body.Status, "ok")
	}
}

func TestReadyz_AllCheckersFail(t *testing.T) {
	h := New(
		Checker{Name: "interactions", Check: func(_ context.Context) error {
			return errors.New("timeout")
		}},
		Checker{Name: "mcp", Check: func(_ context.Context) error {
			return errors.New("session closed")
		}},
	)

	req := httptest.NewRequest("GET", "/readyz", nil)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if body.Status != "fail" {
		t.Errorf("status = %q, want %q", body.Status, "fail")
	}
	if body.Checks["interactions"] != "fail: timeout" {
		t.Errorf("interactions check = %q", body.Checks["interactions"])
	}
	if body.Checks["mcp"] != "fail: session closed" {
		t.Errorf("mcp check = %q", body.Checks["mcp"])
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	h := New(
		Checker{Name: "test", Check: func(_ context.Context) error { return nil }},
	)

	mux := http.NewServeMux()
	h.Register(mux)

	tests := []struct {
		path       string
		wantStatus int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
	}

	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.path, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
		})
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	h := New(
		Checker{Name: "slow", Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately

	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	h := New(
		PingChecker("interactions", pingFunc(func(context.Context) error { return nil })),
		PingChecker("mcp", pingFunc(func(context.Context) error { return errors.New("broken pipe") })),
	)
	checks, ok := h.Evaluate(context.Background())
	if ok {
		t.Error("Evaluate should fail when one pinger fails")
	}
	if checks["interactions"] != "ok" || checks["mcp"] != "fail: broken pipe" {
		t.Errorf("checks = %v", checks)
	}
}

type toolStats []tool.Health

func (s toolStats) Health() []tool.Health { return s }

func TestToolErrorRateChecker(t *testing.T) {
	tests := []struct {
		name    string
		stats   toolStats
		wantErr bool
	}{
		{"no tools", nil, false},
		{"healthy", toolStats{{Name: "lookupFood", Calls: 20, ErrorRate: 0.1}}, false},
		{"too few calls", toolStats{{Name: "lookupFood", Calls: 3, ErrorRate: 1}}, false},
		{"failing", toolStats{
			{Name: "lookupFood", Calls: 20},
			{Name: "searchExercises", Calls: 10, ErrorRate: 0.8},
		}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := ToolErrorRateChecker(tc.stats, 5, 0.5)
			err := c.Check(context.Background())
			if (err != nil) != tc.wantErr {
				t.Errorf("Check() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}
