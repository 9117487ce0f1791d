// Package stress drives the conversation orchestrator across a categorised
// battery of scripted questions and aggregates the outcomes into a report.
//
// Questions run strictly one after another with a configurable pause between
// them so that batch runs stay within provider rate limits. Progress is
// streamed on a caller-supplied channel.
package stress

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/orchestrator"
	"github.com/MrWong99/fitcoach/internal/resilience"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultDelayBetweenQuestions = 2 * time.Second
	DefaultSlowThreshold         = 10 * time.Second
	DefaultLongResponseChars     = 1500
	DefaultQuickPerCategory      = 2
)

// Config tunes a [Harness].
type Config struct {
	// DelayBetweenQuestions is the pause between consecutive questions. It is
	// never applied after the last question. Negative disables pacing.
	DelayBetweenQuestions time.Duration

	// IncludeContext sends Context with every question; otherwise questions
	// run with an empty context.
	IncludeContext bool
	Context        orchestrator.RunContext

	// StopOnCriticalError aborts the batch on the first provider-level
	// failure.
	StopOnCriticalError bool

	// RandomizeOrder shuffles the selected questions before running.
	RandomizeOrder bool

	// SlowThreshold flags slower answers with a warning.
	SlowThreshold time.Duration

	// LongResponseChars flags longer answers with a warning.
	LongResponseChars int

	// QuickPerCategory is the number of questions per category in a quick run.
	QuickPerCategory int
}

func (c *Config) applyDefaults() {
	if c.DelayBetweenQuestions == 0 {
		c.DelayBetweenQuestions = DefaultDelayBetweenQuestions
	}
	if c.DelayBetweenQuestions < 0 {
		c.DelayBetweenQuestions = 0
	}
	if c.SlowThreshold <= 0 {
		c.SlowThreshold = DefaultSlowThreshold
	}
	if c.LongResponseChars <= 0 {
		c.LongResponseChars = DefaultLongResponseChars
	}
	if c.QuickPerCategory <= 0 {
		c.QuickPerCategory = DefaultQuickPerCategory
	}
}

// Runner runs one conversation turn. *orchestrator.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, userMessage string, rc orchestrator.RunContext) (*orchestrator.Result, error)
}

var _ Runner = (*orchestrator.Orchestrator)(nil)

// Progress is emitted after every question.
type Progress struct {
	Current     int     `json:"current"`
	Total       int     `json:"total"`
	SuccessRate float64 `json:"successRate"`
	Category    string  `json:"category"`
	Question    string  `json:"question"`
	Success     bool    `json:"success"`
}

// Outcome is the result of one batch together with its derived report.
type Outcome struct {
	Result *TestResult `json:"result"`
	Report Report      `json:"report"`
}

// Harness runs question batches against a [Runner]. A Harness may be reused
// across batches; every batch builds a fresh [TestResult].
type Harness struct {
	runner  Runner
	corpus  *Corpus
	cfg     Config
	sleeper resilience.Sleeper
	metrics *observe.Metrics
	now     func() time.Time
	rng     *rand.Rand
}

// Option configures a Harness.
type Option func(*Harness)

// WithSleeper replaces the wall-clock pacing sleeper.
func WithSleeper(s resilience.Sleeper) Option {
	return func(h *Harness) { h.sleeper = s }
}

// WithMetrics records stress metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Harness) { h.metrics = m }
}

// WithClock overrides the time source used to measure response times.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// WithSeed makes RandomizeOrder deterministic.
func WithSeed(seed uint64) Option {
	return func(h *Harness) { h.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// New creates a Harness. A nil corpus selects [DefaultCorpus].
func New(runner Runner, corpus *Corpus, cfg Config, opts ...Option) (*Harness, error) {
	if runner == nil {
		return nil, errors.New("stress: runner must not be nil")
	}
	if corpus == nil {
		corpus = DefaultCorpus()
	}
	cfg.applyDefaults()
	h := &Harness{
		runner:  runner,
		corpus:  corpus,
		cfg:     cfg,
		sleeper: resilience.TimerSleeper{},
		metrics: observe.DefaultMetrics(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(h)
	}
	if h.rng == nil {
		h.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return h, nil
}

// Corpus returns the question corpus.
func (h *Harness) Corpus() *Corpus { return h.corpus }

// RunStressTest runs every question of the corpus.
func (h *Harness) RunStressTest(ctx context.Context, progress chan<- Progress) (*Outcome, error) {
	return h.RunCategories(ctx, nil, progress)
}

// RunCategory runs the questions of one category.
func (h *Harness) RunCategory(ctx context.Context, name string, progress chan<- Progress) (*Outcome, error) {
	return h.RunCategories(ctx, []string{name}, progress)
}

// RunCategories runs the questions of the named categories; nil means all.
func (h *Harness) RunCategories(ctx context.Context, categories []string, progress chan<- Progress) (*Outcome, error) {
	qs, err := h.corpus.Select(categories...)
	if err != nil {
		if progress != nil {
			close(progress)
		}
		return nil, err
	}
	return h.Run(ctx, qs, progress), nil
}

// RunQuickSubset runs the first few questions of every category.
func (h *Harness) RunQuickSubset(ctx context.Context, progress chan<- Progress) (*Outcome, error) {
	return h.Run(ctx, h.corpus.QuickSubset(h.cfg.QuickPerCategory), progress), nil
}

// Run executes questions sequentially and returns the aggregated outcome.
//
// If progress is non-nil, one event is sent after every question and the
// channel is closed when Run returns; the caller must keep receiving until
// then. Cancelling ctx aborts the batch and the partial result is returned.
func (h *Harness) Run(ctx context.Context, questions []Question, progress chan<- Progress) *Outcome {
	if progress != nil {
		defer close(progress)
	}
	ctx, span := observe.StartSpan(ctx, "stress.run")
	defer span.End()

	h.metrics.ActiveStressTests.Add(ctx, 1)
	defer h.metrics.ActiveStressTests.Add(ctx, -1)

	qs := append([]Question(nil), questions...)
	if h.cfg.RandomizeOrder {
		h.rng.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
	}

	log := observe.Logger(ctx)
	res := &TestResult{Planned: len(qs), StartedAt: h.now()}
	log.Info("stress test started", "questions", len(qs), "delay", h.cfg.DelayBetweenQuestions)

	for i, q := range qs {
		if err := ctx.Err(); err != nil {
			res.abort(fmt.Sprintf("cancelled: %v", err))
			break
		}

		ok, critical := h.ask(ctx, q, res)

		if progress != nil {
			ev := Progress{
				Current:     i + 1,
				Total:       len(qs),
				SuccessRate: res.SuccessRate(),
				Category:    q.Category,
				Question:    q.Text,
				Success:     ok,
			}
			select {
			case progress <- ev:
			case <-ctx.Done():
			}
		}

		if err := ctx.Err(); err != nil {
			res.abort(fmt.Sprintf("cancelled: %v", err))
			break
		}
		if critical != nil {
			res.abort(fmt.Sprintf("critical error on %q: %s", q.Text, critical.Message))
			log.Warn("stress test aborted on critical error",
				"question", q.Text, "category", critical.ErrorCategory)
			observe.FailSpan(span, nil, string(critical.ErrorCategory))
			break
		}
		if i < len(qs)-1 && h.cfg.DelayBetweenQuestions > 0 {
			if err := h.sleeper.Sleep(ctx, h.cfg.DelayBetweenQuestions); err != nil {
				res.abort(fmt.Sprintf("cancelled: %v", err))
				break
			}
		}
	}

	res.FinishedAt = h.now()
	span.SetAttributes(
		observe.AttrQuestions.Int(res.TotalQuestions),
		observe.AttrSuccessRate.Float64(res.SuccessRate()),
	)
	log.Info("stress test finished",
		"total", res.TotalQuestions, "successful", res.Successful, "failed", res.Failed,
		"aborted", res.Aborted, "duration", res.FinishedAt.Sub(res.StartedAt))
	return &Outcome{Result: res, Report: res.DetailedReport()}
}

// ask runs one question and records its outcome in res. It returns whether
// the question succeeded and, when the failure should abort the batch, the
// recorded failure.
func (h *Harness) ask(ctx context.Context, q Question, res *TestResult) (bool, *Failure) {
	var rc orchestrator.RunContext
	if h.cfg.IncludeContext {
		rc = h.cfg.Context
	}

	start := h.now()
	out, err := h.runner.Run(ctx, q.Text, rc)
	elapsed := h.now().Sub(start)

	sample := Sample{
		Category:       q.Category,
		Question:       q.Text,
		ResponseTimeMs: elapsed.Milliseconds(),
	}
	if out != nil {
		sample.ToolsUsed = len(out.ToolsUsed)
		for _, rec := range out.ToolsUsed {
			sample.Tools = append(sample.Tools, rec.Name)
		}
	}
	res.TotalQuestions++

	var fail *Failure
	switch {
	case err != nil:
		fail = &Failure{
			Category:      q.Category,
			Question:      q.Text,
			ErrorCategory: orchestrator.CategoryOf(err),
			Message:       err.Error(),
		}
	case out == nil || strings.TrimSpace(out.Response) == "":
		fail = &Failure{
			Category:      q.Category,
			Question:      q.Text,
			ErrorCategory: types.CategoryIncompleteResponse,
			Message:       "empty response",
		}
	}

	if fail != nil {
		res.Failed++
		res.Errors = append(res.Errors, *fail)
		res.Performance = append(res.Performance, sample)
		h.metrics.RecordStressQuestion(ctx, q.Category, "failure")
		observe.Logger(ctx).Debug("stress question failed",
			"category", q.Category, "question", q.Text, "error_category", fail.ErrorCategory)
		if h.cfg.StopOnCriticalError && isCritical(fail.ErrorCategory) {
			return false, fail
		}
		return false, nil
	}

	sample.Success = true
	res.Successful++
	res.Performance = append(res.Performance, sample)
	h.metrics.RecordStressQuestion(ctx, q.Category, "success")

	if elapsed > h.cfg.SlowThreshold {
		res.Warnings = append(res.Warnings, Warning{
			Category: q.Category,
			Question: q.Text,
			Kind:     WarningSlow,
			Message:  fmt.Sprintf("response took %dms (threshold %dms)", elapsed.Milliseconds(), h.cfg.SlowThreshold.Milliseconds()),
		})
	}
	if n := len([]rune(out.Response)); n > h.cfg.LongResponseChars {
		res.Warnings = append(res.Warnings, Warning{
			Category: q.Category,
			Question: q.Text,
			Kind:     WarningVerbose,
			Message:  fmt.Sprintf("response has %d characters (threshold %d)", n, h.cfg.LongResponseChars),
		})
	}
	return true, nil
}

// isCritical reports whether a failure category indicates a provider-level
// failure that makes continuing the batch pointless.
func isCritical(c types.ErrorCategory) bool {
	switch c {
	case types.CategoryAPIError, types.CategoryAPIRateLimit, types.CategoryCancelled:
		return true
	}
	return false
}
