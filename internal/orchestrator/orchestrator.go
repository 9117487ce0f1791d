// Package orchestrator implements the conversation control loop that turns a
// user message into a tool-calling exchange with an LLM provider.
//
// A run sends the conversation and the registered tool schemas to the
// provider, executes the requested tool calls one at a time in the order the
// model returned them, feeds the results back and repeats until the model
// answers in plain text or the tool-round limit is reached. Transient provider
// failures (rate limits, overload) restart the whole cycle after an
// exponential backoff delay; every other failure is returned immediately.
//
// Exactly one [interaction.Entry] is recorded per call to [Orchestrator.Run],
// after the run reaches a terminal state, whatever the number of retries or
// tool rounds.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrWong99/fitcoach/internal/interaction"
	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/internal/resilience"
	"github.com/MrWong99/fitcoach/internal/tool"
	"github.com/MrWong99/fitcoach/pkg/provider/llm"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// Defaults applied by [New] to zero-valued [Config] fields.
const (
	DefaultMaxToolRounds      = 3
	DefaultLongResponseChars  = 2000
	DefaultVagueResponseChars = 15
	DefaultLogTimeout         = 5 * time.Second
)

// Config tunes an [Orchestrator].
type Config struct {
	// Model labels log entries when the provider does not report a model.
	Model string

	// MaxToolRounds bounds the number of tool-execution rounds per attempt.
	MaxToolRounds int

	// Backoff controls retries of transient provider failures. The zero value
	// selects [resilience.DefaultBackoff].
	Backoff resilience.BackoffPolicy

	Temperature float64
	MaxTokens   int

	// DefaultInstructions opens every system prompt.
	DefaultInstructions string

	// LongResponseChars flags answers longer than this as response-too-long.
	LongResponseChars int

	// VagueResponseChars flags answers shorter than this as response-too-vague.
	VagueResponseChars int

	// LogTimeout bounds the log write; it runs detached from the caller's
	// context so a run always leaves its entry.
	LogTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = DefaultMaxToolRounds
	}
	if c.Backoff == (resilience.BackoffPolicy{}) {
		c.Backoff = resilience.DefaultBackoff()
	}
	if c.LongResponseChars <= 0 {
		c.LongResponseChars = DefaultLongResponseChars
	}
	if c.VagueResponseChars <= 0 {
		c.VagueResponseChars = DefaultVagueResponseChars
	}
	if c.LogTimeout <= 0 {
		c.LogTimeout = DefaultLogTimeout
	}
}

// RunContext is the caller-supplied context of one run. It is read-only
// within the run.
type RunContext struct {
	UserID  string          `json:"userId,omitempty"`
	Screen  string          `json:"screen,omitempty"`
	History []types.Message `json:"history,omitempty"`
	Profile map[string]any  `json:"profile,omitempty"`
}

// ToolResult is the typed outcome of one tool call, in execution order.
type ToolResult struct {
	CallID  string           `json:"callId,omitempty"`
	Name    string           `json:"name"`
	Success bool             `json:"success"`
	Data    any              `json:"data,omitempty"`
	Error   *types.ErrorInfo `json:"error,omitempty"`
}

// Result is returned by a successful [Orchestrator.Run].
type Result struct {
	EntryID     string               `json:"entryId"`
	Response    string               `json:"response"`
	ToolsUsed   []tool.Record        `json:"toolsUsed"`
	ToolResults []ToolResult         `json:"toolResults"`
	Warnings    []types.ErrorInfo    `json:"warnings,omitempty"`
	Metadata    interaction.Metadata `json:"metadata"`
}

// RunError is returned when a run ends in failure. It carries the error
// category recorded in the interaction log.
type RunError struct {
	EntryID  string
	Category types.ErrorCategory
	Attempts int
	Err      error
}

// Error implements error.
func (e *RunError) Error() string {
	return fmt.Sprintf("orchestrator: %s after %d attempt(s): %v", e.Category, e.Attempts, e.Err)
}

// Unwrap returns the underlying provider or context error.
func (e *RunError) Unwrap() error { return e.Err }

// CategoryOf returns the category carried by a [*RunError] in err's chain, or
// the classification of err otherwise.
func CategoryOf(err error) types.ErrorCategory {
	var re *RunError
	if errors.As(err, &re) {
		return re.Category
	}
	return resilience.Classify(err).Category
}

// Orchestrator runs conversations. It holds no per-run state and is safe for
// concurrent use; each call to Run is an independent unit of work.
type Orchestrator struct {
	provider     llm.Provider
	providerName string
	tools        *tool.Registry
	log          *interaction.Logger
	cfg          Config
	sleeper      resilience.Sleeper
	metrics      *observe.Metrics
	now          func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSleeper replaces the wall-clock backoff sleeper.
func WithSleeper(s resilience.Sleeper) Option {
	return func(o *Orchestrator) { o.sleeper = s }
}

// WithMetrics records run, provider, tool and retry metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithClock overrides the time source used for timing and prompts.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithProviderName sets the provider label used in metrics. Default: "llm".
func WithProviderName(name string) Option {
	return func(o *Orchestrator) { o.providerName = name }
}

// New creates an Orchestrator. provider, tools and log are required.
func New(provider llm.Provider, tools *tool.Registry, log *interaction.Logger, cfg Config, opts ...Option) (*Orchestrator, error) {
	if provider == nil {
		return nil, errors.New("orchestrator: provider must not be nil")
	}
	if tools == nil {
		return nil, errors.New("orchestrator: tool registry must not be nil")
	}
	if log == nil {
		return nil, errors.New("orchestrator: interaction logger must not be nil")
	}
	cfg.applyDefaults()

	o := &Orchestrator{
		provider:     provider,
		providerName: "llm",
		tools:        tools,
		log:          log,
		cfg:          cfg,
		sleeper:      resilience.TimerSleeper{},
		metrics:      observe.DefaultMetrics(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Tools returns the registry the orchestrator offers to the model.
func (o *Orchestrator) Tools() *tool.Registry { return o.tools }

// Logger returns the interaction logger runs are recorded to.
func (o *Orchestrator) Logger() *interaction.Logger { return o.log }

// runState accumulates what a run produced across attempts. tools keeps
// every record for the log entry; final marks where the last attempt began.
type runState struct {
	tools     []tool.Record
	final     int
	text      string
	model     string
	rounds    int
	exhausted bool
	tokens    int
}

// finalTools returns the records made by the last attempt.
func (st *runState) finalTools() []tool.Record {
	return st.tools[st.final:]
}

// Run executes one conversation turn for userMessage.
//
// On success it returns the final answer with the tool calls of the attempt
// that produced it; the log entry keeps the calls of abandoned attempts too.
// On failure it returns a [*RunError]; transient provider errors are retried
// per the configured backoff policy first. Cancelling ctx interrupts an
// in-flight provider call or backoff sleep and is never retried.
func (o *Orchestrator) Run(ctx context.Context, userMessage string, rc RunContext) (*Result, error) {
	start := o.now()
	ctx, span := observe.StartSpan(ctx, "orchestrator.run")
	defer span.End()

	o.metrics.ActiveRuns.Add(ctx, 1)
	defer o.metrics.ActiveRuns.Add(ctx, -1)

	base := o.buildMessages(userMessage, rc)
	st := &runState{}

	var (
		err     error
		attempt int
	)
	for attempt = 0; ; attempt++ {
		err = o.cycle(ctx, base, rc, st, attempt+1)
		if err == nil || ctx.Err() != nil || !o.cfg.Backoff.ShouldRetry(attempt, err) {
			break
		}

		class := resilience.Classify(err)
		delay := o.cfg.Backoff.Delay(attempt)
		observe.Logger(ctx).Warn("transient provider failure, retrying",
			"attempt", attempt+1, "category", class.Category, "delay", delay, "err", err)
		o.metrics.RecordRetry(ctx, string(class.Category))

		if serr := o.sleeper.Sleep(ctx, delay); serr != nil {
			err = fmt.Errorf("backoff interrupted: %w", serr)
			break
		}
	}
	attempts := attempt + 1
	elapsed := o.now().Sub(start)

	if st.tokens == 0 {
		st.tokens = o.estimateTokens(base, st.text)
	}
	model := st.model
	if model == "" {
		model = o.cfg.Model
	}
	md := interaction.Metadata{
		Model:               model,
		EstimatedTokens:     st.tokens,
		ResponseTimeMs:      elapsed.Milliseconds(),
		Attempts:            attempts,
		RetriedAttempts:     attempts - 1,
		ToolRounds:          st.rounds,
		ToolRoundsExhausted: st.exhausted,
	}
	entry := interaction.Entry{
		UserMessage: userMessage,
		ToolsUsed:   st.tools,
		Context:     snapshot(rc),
		Metadata:    md,
	}

	span.SetAttributes(
		observe.AttrAttempts.Int(attempts),
		observe.AttrToolCalls.Int(len(st.finalTools())),
		observe.AttrToolRounds.Int(st.rounds),
	)

	if err != nil {
		category := resilience.Classify(err).Category
		if ctx.Err() != nil {
			category = types.CategoryCancelled
		}
		entry.Error = &types.ErrorInfo{Message: err.Error(), Category: category}

		logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LogTimeout)
		defer cancel()
		stored := o.log.Record(logCtx, entry)

		observe.Logger(ctx).Error("orchestrator run failed",
			"entry_id", stored.ID, "category", category, "attempts", attempts, "err", err)
		span.SetAttributes(observe.AttrEntryID.String(stored.ID))
		observe.FailSpan(span, err, string(category))
		o.metrics.RunDuration.Record(ctx, elapsed.Seconds(),
			metricAttrs("failure", category))
		return nil, &RunError{EntryID: stored.ID, Category: category, Attempts: attempts, Err: err}
	}

	text := st.text
	entry.AIResponse = &text
	entry.Success = true
	entry.Warnings = o.qualityWarnings(text)

	// The answer exists; a caller hanging up now must not lose its entry.
	logCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.LogTimeout)
	defer cancel()
	stored := o.log.Record(logCtx, entry)
	span.SetAttributes(observe.AttrEntryID.String(stored.ID))

	if st.exhausted {
		observe.Logger(ctx).Warn("tool round limit reached",
			"entry_id", stored.ID, "rounds", st.rounds, "limit", o.cfg.MaxToolRounds)
	}
	o.metrics.RunDuration.Record(ctx, elapsed.Seconds(), metricAttrs("success", ""))

	return &Result{
		EntryID:     stored.ID,
		Response:    text,
		ToolsUsed:   st.finalTools(),
		ToolResults: toolResults(st.finalTools()),
		Warnings:    entry.Warnings,
		Metadata:    md,
	}, nil
}

// cycle runs one attempt: provider calls interleaved with tool rounds until
// the model answers without tool calls or the round limit is hit. Tool
// records are appended to st, tagged with attempt, even when the attempt
// later fails; rounds only count the current attempt.
func (o *Orchestrator) cycle(ctx context.Context, base []types.Message, rc RunContext, st *runState, attempt int) error {
	messages := append([]types.Message(nil), base...)
	defs := o.tools.Definitions()
	st.text, st.exhausted = "", false
	st.final, st.rounds = len(st.tools), 0

	for round := 0; ; round++ {
		resp, err := o.complete(ctx, messages, defs)
		if err != nil {
			return err
		}
		if resp.Model != "" {
			st.model = resp.Model
		}
		st.tokens += resp.Usage.TotalTokens

		if len(resp.ToolCalls) == 0 {
			st.text = resp.Content
			return nil
		}
		if round >= o.cfg.MaxToolRounds {
			st.text = resp.Content
			st.exhausted = true
			return nil
		}

		messages = append(messages, types.Message{
			Role:      types.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			rec := o.executeCall(ctx, call, rc)
			rec.Attempt = attempt
			st.tools = append(st.tools, rec)
			messages = append(messages, toolMessage(rec))
		}
		st.rounds++
	}
}

// complete performs one provider round trip with tracing and metrics.
func (o *Orchestrator) complete(ctx context.Context, messages []types.Message, defs []types.ToolDefinition) (*llm.CompletionResponse, error) {
	ctx, span := observe.StartSpan(ctx, "llm.complete")
	defer span.End()

	req := llm.CompletionRequest{
		Messages:    messages,
		Tools:       defs,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}
	if len(defs) > 0 {
		req.ToolChoice = llm.ToolChoiceAuto
	}

	start := o.now()
	resp, err := o.provider.Complete(ctx, req)
	seconds := o.now().Sub(start).Seconds()

	if err != nil {
		category := resilience.Classify(err).Category
		o.metrics.RecordProviderRequest(ctx, o.providerName, "error", seconds)
		o.metrics.RecordProviderError(ctx, o.providerName, string(category))
		observe.FailSpan(span, err, string(category))
		return nil, err
	}
	if resp == nil {
		return nil, errors.New("orchestrator: provider returned no response")
	}
	o.metrics.RecordProviderRequest(ctx, o.providerName, "ok", seconds)
	span.SetAttributes(observe.AttrToolCalls.Int(len(resp.ToolCalls)))
	return resp, nil
}

// executeCall decodes and resolves the arguments of one model tool call and
// runs it through the registry.
func (o *Orchestrator) executeCall(ctx context.Context, call types.ToolCall, rc RunContext) tool.Record {
	ctx, span := observe.StartSpan(ctx, "tool.execute")
	defer span.End()
	span.SetAttributes(observe.AttrTool.String(call.Name))

	args, err := decodeArguments(call.Arguments)
	var rec tool.Record
	if err != nil {
		rec = tool.Failure(call.Name, nil, types.CategoryToolMissingParams,
			fmt.Sprintf("invalid arguments: %v", err))
	} else {
		rec = o.tools.Execute(ctx, call.Name, o.resolveArguments(ctx, call.Name, args, rc))
	}
	rec.CallID = call.ID

	status := "ok"
	if !rec.Success {
		status = "error"
		observe.FailSpan(span, nil, string(rec.Error.Category))
	}
	o.metrics.RecordToolCall(ctx, call.Name, status, float64(rec.ExecutionTimeMs)/1000)
	return rec
}

func (o *Orchestrator) estimateTokens(messages []types.Message, response string) int {
	all := append(append([]types.Message(nil), messages...),
		types.Message{Role: types.RoleAssistant, Content: response})
	if n, err := o.provider.CountTokens(all); err == nil && n > 0 {
		return n
	}
	return llm.EstimateTokens(all)
}

// snapshot keeps the diagnostic subset of rc.
func snapshot(rc RunContext) interaction.ContextSnapshot {
	return interaction.ContextSnapshot{
		UserID:       rc.UserID,
		Screen:       rc.Screen,
		HistoryTurns: len(rc.History),
		ProfileKeys:  sortedKeys(rc.Profile),
	}
}

// toolResults converts records into the typed aggregation returned to callers.
func toolResults(records []tool.Record) []ToolResult {
	out := make([]ToolResult, 0, len(records))
	for _, rec := range records {
		tr := ToolResult{
			CallID:  rec.CallID,
			Name:    rec.Name,
			Success: rec.Success,
			Error:   rec.Error,
		}
		if oc, ok := rec.Result.(tool.Outcome); ok {
			tr.Data = oc.Data
		}
		out = append(out, tr)
	}
	return out
}
