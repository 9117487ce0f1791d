package stress

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	resmock "github.com/MrWong99/fitcoach/internal/resilience/mock"
	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// fakeRunner answers questions from a script keyed by question text. Missing
// entries answer with a short canned response.
type fakeRunner struct {
	mu     sync.Mutex
	script map[string]func(ctx context.Context) (*orchestrator.Result, error)
	asked  []string
	ctxs   []orchestrator.RunContext
}

func (f *fakeRunner) Run(ctx context.Context, msg string, rc orchestrator.RunContext) (*orchestrator.Result, error) {
	f.mu.Lock()
	f.asked = append(f.asked, msg)
	f.ctxs = append(f.ctxs, rc)
	fn := f.script[msg]
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return &orchestrator.Result{Response: "Here is a helpful answer."}, nil
}

func (f *fakeRunner) Asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

func answer(text string, tools ...string) func(context.Context) (*orchestrator.Result, error) {
	return func(context.Context) (*orchestrator.Result, error) {
		res := &orchestrator.Result{Response: text}
		for _, name := range tools {
			res.ToolsUsed = append(res.ToolsUsed, tool.Record{Name: name, Success: true})
		}
		return res, nil
	}
}

func fail(cat types.ErrorCategory) func(context.Context) (*orchestrator.Result, error) {
	return func(context.Context) (*orchestrator.Result, error) {
		return nil, &orchestrator.RunError{Category: cat, Attempts: 1, Err: errors.New(string(cat))}
	}
}

// stepClock advances by step on every call.
func stepClock(step time.Duration) func() time.Time {
	var mu sync.Mutex
	t := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(step)
		return t
	}
}

func newTestHarness(t *testing.T, r Runner, c *Corpus, cfg Config, opts ...Option) (*Harness, *resmock.Sleeper) {
	t.Helper()
	met, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	sl := &resmock.Sleeper{}
	all := append([]Option{
		WithSleeper(sl),
		WithMetrics(met),
		WithClock(stepClock(50 * time.Millisecond)),
		WithSeed(7),
	}, opts...)
	h, err := New(r, c, cfg, all...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, sl
}

func fiveQuestions() *Corpus {
	return NewCorpus(map[string][]string{
		"nutrition": {"q1", "q2", "q3"},
		"workouts":  {"q4", "q5"},
	})
}

func TestRun_CountsAndSuccessRate(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
		"q2": fail(types.CategoryAPIError),
		"q4": fail(types.CategoryToolExecutionFailed),
	}}
	h, sl := newTestHarness(t, r, fiveQuestions(), Config{DelayBetweenQuestions: 2 * time.Second})

	out, err := h.RunStressTest(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunStressTest: %v", err)
	}
	res := out.Result
	if res.TotalQuestions != 5 || res.Successful != 3 || res.Failed != 2 {
		t.Fatalf("counts = %d/%d/%d, want 5/3/2", res.TotalQuestions, res.Successful, res.Failed)
	}
	if res.Successful+res.Failed != res.TotalQuestions {
		t.Error("successful+failed != total")
	}
	if res.SuccessRate() != 60 {
		t.Errorf("SuccessRate = %v, want 60", res.SuccessRate())
	}
	if out.Report.Summary.SuccessRate != "60.0%" {
		t.Errorf("summary rate = %q, want 60.0%%", out.Report.Summary.SuccessRate)
	}
	if res.Aborted {
		t.Errorf("unexpected abort: %s", res.AbortReason)
	}

	delays := sl.Delays()
	if len(delays) != 4 {
		t.Fatalf("pacing sleeps = %d, want 4", len(delays))
	}
	for _, d := range delays {
		if d != 2*time.Second {
			t.Errorf("delay = %v, want 2s", d)
		}
	}

	if got := out.Report.ErrorsByCategory[types.CategoryAPIError]; len(got) != 1 || got[0].Question != "q2" {
		t.Errorf("api-error failures = %+v", got)
	}
	if got := out.Report.ErrorsByCategory[types.CategoryToolExecutionFailed]; len(got) != 1 || got[0].Category != "workouts" {
		t.Errorf("tool failures = %+v", got)
	}
	if cs := out.Report.ByCategory["nutrition"]; cs.Total != 3 || cs.Failed != 1 || cs.SuccessRate != "66.7%" {
		t.Errorf("nutrition summary = %+v", cs)
	}
}

func TestRun_EmptyResponseIsIncomplete(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
		"q1": answer("   "),
	}}
	h, _ := newTestHarness(t, r, NewCorpus(map[string][]string{"x": {"q1"}}), Config{})

	out := h.Run(context.Background(), []Question{{Category: "x", Text: "q1"}}, nil)
	if out.Result.Failed != 1 {
		t.Fatalf("Failed = %d, want 1", out.Result.Failed)
	}
	if got := out.Result.Errors[0].ErrorCategory; got != types.CategoryIncompleteResponse {
		t.Errorf("category = %s, want incomplete-response", got)
	}
}

func TestRun_StopOnCriticalError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		stop      bool
		cat       types.ErrorCategory
		wantTotal int
		wantAbort bool
	}{
		{name: "api error aborts", stop: true, cat: types.CategoryAPIError, wantTotal: 2, wantAbort: true},
		{name: "rate limit aborts", stop: true, cat: types.CategoryAPIRateLimit, wantTotal: 2, wantAbort: true},
		{name: "tool failure continues", stop: true, cat: types.CategoryToolNotFound, wantTotal: 5},
		{name: "disabled continues", stop: false, cat: types.CategoryAPIError, wantTotal: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
				"q2": fail(tt.cat),
			}}
			h, _ := newTestHarness(t, r, fiveQuestions(), Config{StopOnCriticalError: tt.stop})
			out, err := h.RunStressTest(context.Background(), nil)
			if err != nil {
				t.Fatalf("RunStressTest: %v", err)
			}
			res := out.Result
			if res.TotalQuestions != tt.wantTotal {
				t.Errorf("TotalQuestions = %d, want %d", res.TotalQuestions, tt.wantTotal)
			}
			if res.Planned != 5 {
				t.Errorf("Planned = %d, want 5", res.Planned)
			}
			if res.Aborted != tt.wantAbort {
				t.Errorf("Aborted = %v, want %v (%s)", res.Aborted, tt.wantAbort, res.AbortReason)
			}
			if res.Successful+res.Failed != res.TotalQuestions {
				t.Error("successful+failed != total")
			}
		})
	}
}

func TestRun_ProgressEvents(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
		"q3": fail(types.CategoryDataNotFound),
	}}
	h, _ := newTestHarness(t, r, fiveQuestions(), Config{})

	ch := make(chan Progress)
	var events []Progress
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			events = append(events, ev)
		}
	}()

	if _, err := h.RunStressTest(context.Background(), ch); err != nil {
		t.Fatalf("RunStressTest: %v", err)
	}
	<-done

	if len(events) != 5 {
		t.Fatalf("events = %d, want 5", len(events))
	}
	for i, ev := range events {
		if ev.Current != i+1 || ev.Total != 5 {
			t.Errorf("event %d = %d/%d", i, ev.Current, ev.Total)
		}
	}
	if events[2].Success || events[2].Question != "q3" {
		t.Errorf("event 3 = %+v, want failed q3", events[2])
	}
	if events[2].SuccessRate != 66.7 {
		t.Errorf("rate after 3 = %v, want 66.7", events[2].SuccessRate)
	}
	if events[4].SuccessRate != 80 {
		t.Errorf("final rate = %v, want 80", events[4].SuccessRate)
	}
}

func TestRun_CancelledMidBatch(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &fakeRunner{}
	h, sl := newTestHarness(t, r, fiveQuestions(), Config{})
	calls := 0
	sl.OnSleep = func(time.Duration) {
		calls++
		if calls == 2 {
			cancel()
		}
	}

	out, err := h.RunStressTest(ctx, nil)
	if err != nil {
		t.Fatalf("RunStressTest: %v", err)
	}
	if out.Result.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", out.Result.TotalQuestions)
	}
	if !out.Result.Aborted || !strings.HasPrefix(out.Result.AbortReason, "cancelled") {
		t.Errorf("abort = %v %q", out.Result.Aborted, out.Result.AbortReason)
	}
}

func TestRun_IncludeContext(t *testing.T) {
	t.Parallel()
	rc := orchestrator.RunContext{UserID: "user-1", Screen: "dashboard"}
	for _, include := range []bool{true, false} {
		r := &fakeRunner{}
		h, _ := newTestHarness(t, r, nil, Config{IncludeContext: include, Context: rc})
		h.Run(context.Background(), []Question{{Category: "x", Text: "hello"}}, nil)

		got := r.ctxs[0].UserID
		if include && got != "user-1" {
			t.Errorf("include=true: UserID = %q", got)
		}
		if !include && got != "" {
			t.Errorf("include=false: UserID = %q", got)
		}
	}
}

func TestRun_Warnings(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
		"long": answer(strings.Repeat("a", 40)),
	}}
	h, _ := newTestHarness(t, r, nil, Config{
		LongResponseChars: 20,
		SlowThreshold:     10 * time.Millisecond,
	})
	out := h.Run(context.Background(), []Question{{Category: "x", Text: "long"}}, nil)

	kinds := map[string]bool{}
	for _, w := range out.Result.Warnings {
		kinds[w.Kind] = true
	}
	if !kinds[WarningSlow] || !kinds[WarningVerbose] {
		t.Errorf("warnings = %+v, want slow and verbose", out.Result.Warnings)
	}
	if out.Result.Successful != 1 {
		t.Errorf("warnings must not fail the question")
	}
}

func TestRun_RandomizeOrderIsSeeded(t *testing.T) {
	t.Parallel()
	order := func() []string {
		r := &fakeRunner{}
		h, _ := newTestHarness(t, r, DefaultCorpus(), Config{RandomizeOrder: true})
		if _, err := h.RunCategory(context.Background(), "nutrition", nil); err != nil {
			t.Fatalf("RunCategory: %v", err)
		}
		return r.Asked()
	}
	a, b := order(), order()
	if strings.Join(a, "|") != strings.Join(b, "|") {
		t.Error("same seed produced different orders")
	}
	nutrition, _ := DefaultCorpus().Select("nutrition")
	if len(a) != len(nutrition) {
		t.Errorf("asked %d questions, want %d", len(a), len(nutrition))
	}
}

func TestRunCategories_UnknownCategory(t *testing.T) {
	t.Parallel()
	h, _ := newTestHarness(t, &fakeRunner{}, fiveQuestions(), Config{})
	ch := make(chan Progress, 1)
	_, err := h.RunCategories(context.Background(), []string{"nutrition", "yoga"}, ch)
	if !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("err = %v, want ErrUnknownCategory", err)
	}
	if _, open := <-ch; open {
		t.Error("progress channel not closed")
	}
}

func TestRunQuickSubset(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{}
	h, _ := newTestHarness(t, r, DefaultCorpus(), Config{QuickPerCategory: 1})
	out, err := h.RunQuickSubset(context.Background(), nil)
	if err != nil {
		t.Fatalf("RunQuickSubset: %v", err)
	}
	if want := len(DefaultCorpus().Categories()); out.Result.TotalQuestions != want {
		t.Errorf("TotalQuestions = %d, want %d", out.Result.TotalQuestions, want)
	}
}

func TestDetailedReport_ToolsAndTiming(t *testing.T) {
	t.Parallel()
	res := &TestResult{
		TotalQuestions: 3,
		Successful:     3,
		Performance: []Sample{
			{Category: "a", Question: "fast", ResponseTimeMs: 100, ToolsUsed: 0, Success: true},
			{Category: "a", Question: "slow", ResponseTimeMs: 900, ToolsUsed: 2, Tools: []string{"searchExercises", "getExerciseDetails"}, Success: true},
			{Category: "b", Question: "mid", ResponseTimeMs: 400, ToolsUsed: 1, Tools: []string{"searchExercises"}, Success: true},
		},
	}
	rep := res.DetailedReport()
	if rep.SlowestQueries[0].Question != "slow" || rep.FastestQueries[0].Question != "fast" {
		t.Errorf("slowest/fastest = %s/%s", rep.SlowestQueries[0].Question, rep.FastestQueries[0].Question)
	}
	if rep.ToolUsage["searchExercises"] != 2 || rep.ToolUsage["getExerciseDetails"] != 1 {
		t.Errorf("ToolUsage = %v", rep.ToolUsage)
	}
	if rep.ToolsPerQuestion[0] != 1 || rep.ToolsPerQuestion[1] != 1 || rep.ToolsPerQuestion[2] != 1 {
		t.Errorf("ToolsPerQuestion = %v", rep.ToolsPerQuestion)
	}
	if rep.Summary.AvgResponseMs != 466 {
		t.Errorf("AvgResponseMs = %d, want 466", rep.Summary.AvgResponseMs)
	}
	if rep.Summary.SuccessRate != "100.0%" {
		t.Errorf("SuccessRate = %q", rep.Summary.SuccessRate)
	}
}

func TestDetailedReport_Empty(t *testing.T) {
	t.Parallel()
	rep := (&TestResult{}).DetailedReport()
	if rep.Summary.SuccessRate != "0.0%" {
		t.Errorf("SuccessRate = %q, want 0.0%%", rep.Summary.SuccessRate)
	}
	if len(rep.SlowestQueries) != 0 || len(rep.FastestQueries) != 0 {
		t.Error("expected no samples")
	}
}

func TestExportMarkdown(t *testing.T) {
	t.Parallel()
	r := &fakeRunner{script: map[string]func(context.Context) (*orchestrator.Result, error){
		"q1": answer("Chest: bench press.", "searchExercises"),
		"q2": fail(types.CategoryAPIRateLimit),
	}}
	h, _ := newTestHarness(t, r, NewCorpus(map[string][]string{"exercises": {"q1", "q2 | pipe"}}), Config{})
	out := h.Run(context.Background(), []Question{
		{Category: "exercises", Text: "q1"},
		{Category: "exercises", Text: "q2"},
	}, nil)

	md := ExportMarkdown(out.Report)
	for _, want := range []string{
		"# AI Stress Test Report",
		"| Success rate | 50.0% |",
		"### api-rate-limit (1)",
		"| searchExercises | 1 |",
		"## Slowest queries",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
	if got := mdEscape("a | b"); got != `a \| b` {
		t.Errorf("mdEscape = %q", got)
	}
}

func TestNew_RejectsNilRunner(t *testing.T) {
	t.Parallel()
	if _, err := New(nil, nil, Config{}); err == nil {
		t.Fatal("expected error")
	}
}
