package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/fitcoach/pkg/types"
)

// ErrDuplicateTool is returned by [Registry.Register] when a tool with the same
// name is already registered.
var ErrDuplicateTool = errors.New("tool: duplicate tool name")

// suggestThreshold is the minimum Jaro-Winkler similarity for a "did you mean"
// hint on an unknown tool name.
const suggestThreshold = 0.85

// Outcome is what a domain tool executor reports. Data may be any JSON-encodable
// value; the registry never inspects it. Success=false with an Error message
// means the tool ran but found nothing to return.
type Outcome struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Executor runs a tool. A returned error (or a panic) is a tool-execution
// failure; an Outcome with Success=false is a data-not-found result.
// Implementations must be safe for concurrent use and should respect ctx.
type Executor func(ctx context.Context, args map[string]any) (Outcome, error)

// Record describes one tool invocation inside a single orchestration run.
// Records are immutable once returned.
type Record struct {
	CallID          string           `json:"callId,omitempty"`
	Name            string           `json:"name"`
	Arguments       map[string]any   `json:"arguments"`
	Result          any              `json:"result,omitempty"`
	Success         bool             `json:"success"`
	Error           *types.ErrorInfo `json:"error,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs"`
	// Attempt is the 1-based provider attempt the call belonged to; zero
	// when the call was made outside a retried run.
	Attempt         int              `json:"attempt,omitempty"`
}

// Failure builds a failed Record for a call that never reached an executor,
// for example because its arguments could not be decoded.
func Failure(name string, args map[string]any, category types.ErrorCategory, msg string) Record {
	return Record{
		Name:      name,
		Arguments: args,
		Error:     &types.ErrorInfo{Message: msg, Category: category},
	}
}

type entry struct {
	schema Schema
	exec   Executor
	window *rollingWindow
}

// Registry holds the tools offered to the model, in registration order.
//
// Registry is safe for concurrent use. The zero value is not usable; create
// instances with [NewRegistry].
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*entry
	now     func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the time source used to measure execution time.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register validates schema and adds the tool. It fails if the name is taken.
func (r *Registry) Register(schema Schema, exec Executor) error {
	if exec == nil {
		return fmt.Errorf("%w: tool %q has no executor", ErrInvalidSchema, schema.Name)
	}
	if err := schema.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[schema.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, schema.Name)
	}
	r.entries[schema.Name] = &entry{
		schema: schema,
		exec:   exec,
		window: newRollingWindow(defaultWindowSize),
	}
	r.order = append(r.order, schema.Name)
	return nil
}

// MustRegister is like Register but panics on error. Intended for static
// tool tables wired at startup.
func (r *Registry) MustRegister(schema Schema, exec Executor) {
	if err := r.Register(schema, exec); err != nil {
		panic(err)
	}
}

// Schemas returns every registered schema in registration order.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Schema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].schema)
	}
	return out
}

// Definitions returns the provider-facing definitions in registration order.
func (r *Registry) Definitions() []types.ToolDefinition {
	schemas := r.Schemas()
	defs := make([]types.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, s.Definition())
	}
	return defs
}

// Lookup returns the schema registered under name.
func (r *Registry) Lookup(name string) (Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return Schema{}, false
	}
	return e.schema, true
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Execute runs the named tool once and returns the normalised Record.
// It never returns an error and never retries the executor.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) Record {
	start := r.now()
	rec := Record{Name: name, Arguments: args}
	if rec.Arguments == nil {
		rec.Arguments = map[string]any{}
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		msg := fmt.Sprintf("tool %q not found", name)
		if s := r.suggest(name); s != "" {
			msg += fmt.Sprintf("; did you mean %q?", s)
		}
		rec.Error = &types.ErrorInfo{Message: msg, Category: types.CategoryToolNotFound}
		rec.ExecutionTimeMs = r.now().Sub(start).Milliseconds()
		return rec
	}

	if err := e.schema.checkArgs(rec.Arguments); err != nil {
		rec.Error = &types.ErrorInfo{Message: err.Error(), Category: types.CategoryToolMissingParams}
		rec.ExecutionTimeMs = r.now().Sub(start).Milliseconds()
		e.window.Record(rec.ExecutionTimeMs, true)
		return rec
	}

	out, err := runExecutor(ctx, e.exec, rec.Arguments)
	rec.ExecutionTimeMs = r.now().Sub(start).Milliseconds()

	switch {
	case err != nil:
		rec.Error = &types.ErrorInfo{Message: err.Error(), Category: types.CategoryToolExecutionFailed}
		slog.Warn("tool execution failed", "tool", name, "err", err)
	case !out.Success:
		msg := out.Error
		if msg == "" {
			msg = "no data found"
		}
		rec.Result = out
		rec.Error = &types.ErrorInfo{Message: msg, Category: types.CategoryDataNotFound}
	default:
		rec.Success = true
		rec.Result = out
	}
	e.window.Record(rec.ExecutionTimeMs, err != nil)
	return rec
}

// runExecutor invokes exec and converts a panic into an error.
func runExecutor(ctx context.Context, exec Executor, args map[string]any) (out Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool executor panicked", "panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return exec(ctx, args)
}

// suggest returns the registered name most similar to name, or "".
func (r *Registry) suggest(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	best, bestScore := "", 0.0
	for _, candidate := range r.order {
		if score := matchr.JaroWinkler(name, candidate, false); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < suggestThreshold {
		return ""
	}
	return best
}

// Health is a point-in-time view of one tool's recent behaviour.
type Health struct {
	Name      string  `json:"name"`
	Calls     int     `json:"calls"`
	P50Ms     int64   `json:"p50Ms"`
	P99Ms     int64   `json:"p99Ms"`
	ErrorRate float64 `json:"errorRate"`
}

// Health returns per-tool latency and error statistics over the most recent
// calls, in registration order.
func (r *Registry) Health() []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Health, 0, len(r.order))
	for _, name := range r.order {
		w := r.entries[name].window
		out = append(out, Health{
			Name:      name,
			Calls:     w.Count(),
			P50Ms:     w.P50(),
			P99Ms:     w.P99(),
			ErrorRate: w.ErrorRate(),
		})
	}
	return out
}
