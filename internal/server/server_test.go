package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/fitcoach/internal/health"
	"github.com/MrWong99/fitcoach/internal/interaction"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/stress"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// fakeChat answers every message with reply, or fails with err when set.
type fakeChat struct {
	reply string
	err   error
}

func (f *fakeChat) Run(_ context.Context, msg string, _ orchestrator.RunContext) (*orchestrator.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &orchestrator.Result{EntryID: "entry-" + msg, Response: f.reply}, nil
}

type fixture struct {
	srv *Server
	log *interaction.Logger
	h   http.Handler
}

func newFixture(t *testing.T, chat Chatter, withStress bool) *fixture {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	log := interaction.NewLogger(interaction.NewMemStore(interaction.MaxEntries))
	deps := Deps{Chat: chat, Log: log, Metrics: met, Health: health.New()}
	if withStress {
		corpus := stress.NewCorpus(map[string][]string{
			"nutrition": {"How much protein today?", "Calories left?"},
			"workouts":  {"Suggest a chest workout", "What did I train yesterday?", "Plan my week"},
		})
		h, err := stress.New(&fakeChat{reply: "Here is a helpful answer."}, corpus,
			stress.Config{DelayBetweenQuestions: -1, QuickPerCategory: 1},
			stress.WithMetrics(met))
		if err != nil {
			t.Fatalf("stress.New: %v", err)
		}
		deps.Stress = h
	}
	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{srv: srv, log: log, h: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, httptest.NewRequest(method, target, r))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func TestNew_RequiresChatAndLog(t *testing.T) {
	t.Parallel()
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing deps")
	}
}

func TestChat(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{reply: "Aim for 160 g of protein."}, false)

	rec := f.do(t, http.MethodPost, "/v1/chat", `{"message":"protein","context":{"userId":"u1"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	res := decode[orchestrator.Result](t, rec)
	if res.EntryID != "entry-protein" || res.Response != "Aim for 160 g of protein." {
		t.Errorf("result = %+v", res)
	}
}

func TestChat_BadRequests(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{reply: "ok"}, false)
	for _, body := range []string{"", `{"message":""}`, `{"message":"hi","extra":1}`, `{`} {
		if rec := f.do(t, http.MethodPost, "/v1/chat", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestChat_RunErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cat  types.ErrorCategory
		want int
	}{
		{types.CategoryAPIRateLimit, http.StatusTooManyRequests},
		{types.CategoryAPIError, http.StatusBadGateway},
		{types.CategoryCancelled, http.StatusServiceUnavailable},
		{types.CategoryIncompleteResponse, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.cat), func(t *testing.T) {
			t.Parallel()
			runErr := &orchestrator.RunError{EntryID: "e-9", Category: tt.cat, Attempts: 4, Err: errors.New("boom")}
			f := newFixture(t, &fakeChat{err: runErr}, false)

			rec := f.do(t, http.MethodPost, "/v1/chat", `{"message":"hi"}`)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decode[errorBody](t, rec)
			if body.Category != tt.cat || body.EntryID != "e-9" || body.Attempts != 4 {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func seed(t *testing.T, log *interaction.Logger) (failedID string) {
	t.Helper()
	ctx := context.Background()
	answer := "Bench press, push-ups and dips."
	log.Record(ctx, interaction.Entry{UserMessage: "chest workout", AIResponse: &answer, Success: true})
	failed := log.Record(ctx, interaction.Entry{
		UserMessage: "calories left?",
		Error:       &types.ErrorInfo{Category: types.CategoryAPIError, Message: "upstream 500"},
	})
	long := strings.Repeat("x", 50)
	log.Record(ctx, interaction.Entry{
		UserMessage: "explain macros",
		AIResponse:  &long,
		Success:     true,
		Warnings:    []types.ErrorInfo{{Category: types.CategoryResponseTooLong, Message: "too long"}},
	})
	return failed.ID
}

func TestInteractions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{}, false)
	failedID := seed(t, f.log)

	tests := []struct {
		target    string
		wantCode  int
		wantCount int
	}{
		{"/v1/interactions", http.StatusOK, 3},
		{"/v1/interactions?failed=true", http.StatusOK, 1},
		{"/v1/interactions?category=response-too-long", http.StatusOK, 1},
		{"/v1/interactions?category=api-rate-limit", http.StatusOK, 0},
		{"/v1/interactions?category=bogus", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		rec := f.do(t, http.MethodGet, tt.target, "")
		if rec.Code != tt.wantCode {
			t.Errorf("%s: status = %d, want %d", tt.target, rec.Code, tt.wantCode)
			continue
		}
		if rec.Code != http.StatusOK {
			continue
		}
		if got := decode[entriesBody](t, rec); got.Count != tt.wantCount || len(got.Entries) != tt.wantCount {
			t.Errorf("%s: count = %d, want %d", tt.target, got.Count, tt.wantCount)
		}
	}

	stats := decode[interaction.Statistics](t, f.do(t, http.MethodGet, "/v1/interactions/stats", ""))
	if stats.TotalInteractions != 3 || stats.FailedInteractions != 1 {
		t.Errorf("stats = %+v", stats)
	}

	export := f.do(t, http.MethodGet, "/v1/interactions/export", "").Body.String()
	if !strings.Contains(export, "calories left?") || strings.Contains(export, "chest workout") {
		t.Errorf("failed-only export:\n%s", export)
	}
	export = f.do(t, http.MethodGet, "/v1/interactions/export?include_successful=true", "").Body.String()
	if !strings.Contains(export, "chest workout") {
		t.Errorf("full export should contain successful entries:\n%s", export)
	}

	rec := f.do(t, http.MethodGet, "/v1/interactions/"+failedID+"/bugreport", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "upstream 500") {
		t.Errorf("bugreport: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodGet, "/v1/interactions/nope/bugreport", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown bugreport status = %d", rec.Code)
	}

	if rec := f.do(t, http.MethodDelete, "/v1/interactions", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("clear status = %d", rec.Code)
	}
	if got := decode[entriesBody](t, f.do(t, http.MethodGet, "/v1/interactions", "")); got.Count != 0 {
		t.Errorf("count after clear = %d", got.Count)
	}
}

func TestStress(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{}, true)

	rec := f.do(t, http.MethodPost, "/v1/stress", `{"categories":["workouts"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode[stressResponse](t, rec)
	if body.Result.TotalQuestions != 3 || body.Result.Successful != 3 {
		t.Errorf("result = %+v", body.Result)
	}
	if body.Report.Summary.SuccessRate != "100.0%" {
		t.Errorf("success rate = %q", body.Report.Summary.SuccessRate)
	}
	if !strings.HasPrefix(body.Markdown, "# AI Stress Test Report") {
		t.Errorf("markdown = %q", body.Markdown)
	}

	quick := decode[stressResponse](t, f.do(t, http.MethodPost, "/v1/stress", `{"quick":true}`))
	if quick.Result.TotalQuestions != 2 {
		t.Errorf("quick total = %d, want 2", quick.Result.TotalQuestions)
	}

	if rec := f.do(t, http.MethodPost, "/v1/stress", `{"categories":["yoga"]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown category status = %d", rec.Code)
	}

	f.srv.stressing.Store(true)
	if rec := f.do(t, http.MethodPost, "/v1/stress", ""); rec.Code != http.StatusConflict {
		t.Errorf("busy status = %d, want 409", rec.Code)
	}
	f.srv.stressing.Store(false)
}

func TestStress_NotConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{}, false)
	if rec := f.do(t, http.MethodPost, "/v1/stress", ""); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStressWebSocket(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{}, true)
	ts := httptest.NewServer(f.h)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stress/ws?category=nutrition"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	var events []streamEvent
	for {
		var ev streamEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			t.Fatalf("Read: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 2 progress + done", len(events))
	}
	for i, ev := range events[:2] {
		if ev.Type != "progress" || ev.Progress.Current != i+1 || ev.Progress.Total != 2 {
			t.Errorf("event %d = %+v", i, ev)
		}
	}
	done := events[2]
	if done.Type != "done" || done.Summary == nil || done.Summary.TotalQuestions != 2 {
		t.Errorf("done event = %+v", done)
	}
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeChat{}, false)
	for _, target := range []string{"/healthz", "/readyz", "/metrics", "/v1/tools/health"} {
		if rec := f.do(t, http.MethodGet, target, ""); rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}
