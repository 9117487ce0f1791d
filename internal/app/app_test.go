package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/fitcoach/internal/app"
	"github.com/MrWong99/fitcoach/internal/config"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/resilience"
	resmock "github.com/MrWong99/fitcoach/internal/resilience/mock"
	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	llmmock "github.com/MrWong99/fitcoach/pkg/provider/llm/mock"
	"github.com/MrWong99/fitcoach/pkg/types"
)

var testNow = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

// testConfig returns a defaulted config with the in-memory log backend.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm:
    name: openai
    model: gpt-4o-mini
stress:
  delay_between_questions: 1s
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	return cfg
}

func newApp(t *testing.T, cfg *config.Config, provider llm.Provider, opts ...app.Option) *app.App {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	all := append([]app.Option{
		app.WithMetrics(met),
		app.WithSleeper(&resmock.Sleeper{}),
		app.WithClock(func() time.Time { return testNow }),
	}, opts...)
	a, err := app.New(context.Background(), cfg, &app.Providers{LLM: provider, LLMName: "mock"}, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

func TestNew_RequiresProvider(t *testing.T) {
	t.Parallel()
	if _, err := app.New(context.Background(), testConfig(t), &app.Providers{}); err == nil {
		t.Error("expected error without an llm provider")
	}
}

func TestNew_RegistersFitnessTools(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), &llmmock.Provider{})
	if got := a.Tools().Len(); got != 6 {
		t.Errorf("tools = %d, want 6", got)
	}

	cfg := testConfig(t)
	off := false
	cfg.Fitness.Enabled = &off
	if got := newApp(t, cfg, &llmmock.Provider{}).Tools().Len(); got != 0 {
		t.Errorf("tools with fitness disabled = %d, want 0", got)
	}
}

func TestChat_EndToEnd(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{Script: []llmmock.Step{
		{Response: &llm.CompletionResponse{ToolCalls: []types.ToolCall{
			{ID: "call-1", Name: "getNutritionStatus", Arguments: `{"date":"today"}`},
		}}},
		{Response: &llm.CompletionResponse{Content: "You have 950 kcal and 68 g of protein left today."}},
	}}
	a := newApp(t, testConfig(t), provider)
	ts := httptest.NewServer(a.Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/v1/chat", "application/json",
		strings.NewReader(`{"message":"How am I doing on calories?","context":{"userId":"demo-user"}}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var res orchestrator.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.ToolsUsed) != 1 || !res.ToolsUsed[0].Success || res.ToolsUsed[0].Name != "getNutritionStatus" {
		t.Fatalf("toolsUsed = %+v", res.ToolsUsed)
	}

	entries := a.Interactions().All(context.Background())
	if len(entries) != 1 || entries[0].ID != res.EntryID || !entries[0].Success {
		t.Errorf("log entries = %+v", entries)
	}
}

func TestStress_RunsAgainstOrchestrator(t *testing.T) {
	t.Parallel()
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Here is a balanced plan for today."}}
	sl := &resmock.Sleeper{}
	a := newApp(t, testConfig(t), provider, app.WithSleeper(sl))

	out, err := a.Stress().RunQuickSubset(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunQuickSubset: %v", err)
	}
	n := len(a.Stress().Corpus().QuickSubset(2))
	if out.Result.TotalQuestions != n || out.Result.Failed != 0 {
		t.Errorf("result = %d total, %d failed; want %d, 0", out.Result.TotalQuestions, out.Result.Failed, n)
	}
	if got := len(a.Interactions().All(context.Background())); got != n {
		t.Errorf("logged %d interactions, want %d", got, n)
	}
	if got := len(sl.Delays()); got != n-1 {
		t.Errorf("pacing delays = %d, want %d", got, n-1)
	}
}

func TestApplyConfig_SwapsStressHarness(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), &llmmock.Provider{})
	before := a.Stress()

	next := testConfig(t)
	next.Stress.QuickPerCategory = 1
	next.Server.ListenAddr = ":9999"
	a.ApplyConfig(next)

	if a.Stress() == before {
		t.Error("stress harness should be rebuilt after a stress change")
	}

	same := a.Stress()
	a.ApplyConfig(next)
	if a.Stress() != same {
		t.Error("unchanged stress config should keep the harness")
	}
}

func TestConfigReload_ReachesStressHarness(t *testing.T) {
	t.Parallel()
	const base = `
providers:
  llm:
    name: openai
    model: gpt-4o-mini
stress:
  delay_between_questions: 1s
`
	path := filepath.Join(t.TempDir(), "fitcoach.yaml")
	if err := os.WriteFile(path, []byte(base), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Keep your protein around 140 g today."}}
	sl := &resmock.Sleeper{}
	a := newApp(t, cfg, provider, app.WithSleeper(sl))
	before := a.Stress()

	applied := make(chan config.ConfigDiff, 1)
	w, err := config.NewWatcher(path, func(r config.Reload) {
		a.ApplyConfig(r.New)
		applied <- r.Diff
	}, config.WithInterval(20*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Stop()

	next := strings.Replace(base, "1s", "250ms", 1) + "  quick_per_category: 1\n"
	if err := os.WriteFile(path, []byte(next), 0o600); err != nil {
		t.Fatal(err)
	}
	mtime := time.Now().Add(time.Second)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-applied:
		if !d.StressChanged || len(d.RestartRequired) != 0 {
			t.Fatalf("Diff = %+v, want a live stress change", d)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reload was not applied")
	}
	if a.Stress() == before {
		t.Fatal("stress harness was not swapped")
	}

	out, err := a.Stress().RunQuickSubset(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunQuickSubset: %v", err)
	}
	n := len(a.Stress().Corpus().QuickSubset(1))
	if out.Result.TotalQuestions != n {
		t.Errorf("questions = %d, want %d (one per category)", out.Result.TotalQuestions, n)
	}
	delays := sl.Delays()
	if len(delays) != n-1 {
		t.Fatalf("pacing delays = %d, want %d", len(delays), n-1)
	}
	for _, d := range delays {
		if d != 250*time.Millisecond {
			t.Errorf("pacing delay = %v, want the reloaded 250ms", d)
			break
		}
	}
}

func TestNew_FileBackend(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.InteractionLog.Backend = config.BackendFile
	cfg.InteractionLog.Path = filepath.Join(t.TempDir(), "log.jsonl")

	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Drink water before every meal."}}
	a := newApp(t, cfg, provider)
	if a.Interactions().Backend() != "file" {
		t.Fatalf("backend = %q", a.Interactions().Backend())
	}
	if _, err := a.Orchestrator().Run(context.Background(), "hydration tips?", orchestrator.RunContext{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, err := os.ReadFile(cfg.InteractionLog.Path)
	if err != nil || !strings.Contains(string(data), "hydration tips?") {
		t.Errorf("log file = %q, err %v", data, err)
	}
}

func TestNew_BadCorpusFile(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t)
	cfg.Stress.CorpusFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := app.New(context.Background(), cfg, &app.Providers{LLM: &llmmock.Provider{}})
	if err == nil || !strings.Contains(err.Error(), "stress") {
		t.Errorf("err = %v, want stress init error", err)
	}
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, name := range []string{"openai", "anthropic"} {
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) {
			return &llmmock.Provider{}, nil
		})
	}

	cfg := testConfig(t)
	ps, err := app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.LLM.(*llmmock.Provider); !ok || ps.LLMName != "openai" {
		t.Errorf("providers = %+v, want bare primary", ps)
	}

	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "anthropic", Model: "claude-haiku"}}
	ps, err = app.BuildProviders(cfg, reg)
	if err != nil {
		t.Fatalf("BuildProviders with fallback: %v", err)
	}
	fb, ok := ps.LLM.(*resilience.LLMFallback)
	if !ok {
		t.Fatalf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if len(fb.Backends()) != 2 {
		t.Errorf("backends = %v", fb.Backends())
	}

	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "gemini"}}
	if _, err := app.BuildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a := newApp(t, testConfig(t), &llmmock.Provider{})
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}
