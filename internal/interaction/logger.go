package interaction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/fitcoach/internal/observe"
	"github.com/MrWong99/fitcoach/pkg/types"
)

// Logger records interaction entries into a [LogStore] and answers queries
// over the current log.
//
// Writes are serialised so concurrent runs cannot break the store's capacity
// invariant. Store failures are logged and counted, never returned from
// [Logger.Record].
type Logger struct {
	mu      sync.Mutex
	store   LogStore
	backend string
	metrics *observe.Metrics
	now     func() time.Time
	newID   func() string
}

// Option configures a Logger.
type Option func(*Logger)

// WithMetrics records interaction and store-failure counters on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(l *Logger) { l.metrics = m }
}

// WithClock overrides the timestamp source for entries without one.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithIDGenerator overrides the entry ID generator. The default produces
// random UUIDs.
func WithIDGenerator(fn func() string) Option {
	return func(l *Logger) { l.newID = fn }
}

// NewLogger returns a Logger writing to store. A nil store selects an
// in-memory ring buffer of [MaxEntries].
func NewLogger(store LogStore, opts ...Option) *Logger {
	if store == nil {
		store = NewMemStore(MaxEntries)
	}
	l := &Logger{
		store:   store,
		backend: "custom",
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if n, ok := store.(Named); ok {
		l.backend = n.Backend()
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Backend returns the name of the underlying store.
func (l *Logger) Backend() string { return l.backend }

// Record assigns an ID and timestamp when missing, appends e to the store
// and returns the stored entry. A store failure is logged and swallowed.
func (l *Logger) Record(ctx context.Context, e Entry) Entry {
	if e.ID == "" {
		e.ID = l.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	err := l.store.Append(ctx, e)
	l.mu.Unlock()

	if err != nil {
		l.storeFailed(ctx, "append", err)
	}
	if l.metrics != nil {
		l.metrics.RecordInteraction(ctx, e.Success, string(e.Category()))
	}
	return e
}

func (l *Logger) storeFailed(ctx context.Context, op string, err error) {
	observe.Logger(ctx).Warn("interaction log store failed",
		"backend", l.backend, "op", op, "err", err)
	if l.metrics != nil {
		l.metrics.RecordLogStoreError(ctx, l.backend, op)
	}
}

// All returns every retained entry, newest first. A store read failure
// yields an empty slice.
func (l *Logger) All(ctx context.Context) []Entry {
	entries, err := l.store.List(ctx)
	if err != nil {
		l.storeFailed(ctx, "list", err)
		return nil
	}
	return entries
}

// Failed returns the entries with Success=false, newest first.
func (l *Logger) Failed(ctx context.Context) []Entry {
	return filter(l.All(ctx), func(e Entry) bool { return !e.Success })
}

// ByCategory returns the entries that failed with c or carry c as a warning.
func (l *Logger) ByCategory(ctx context.Context, c types.ErrorCategory) []Entry {
	return filter(l.All(ctx), func(e Entry) bool { return e.HasCategory(c) })
}

// Find returns the entry with the given id.
func (l *Logger) Find(ctx context.Context, id string) (Entry, bool) {
	for _, e := range l.All(ctx) {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Statistics computes aggregate statistics over the current log.
func (l *Logger) Statistics(ctx context.Context) Statistics {
	return Compute(l.All(ctx))
}

// Export renders the log as text. Successful entries are omitted unless
// includeSuccessful is set.
func (l *Logger) Export(ctx context.Context, includeSuccessful bool) string {
	entries := l.All(ctx)
	if !includeSuccessful {
		entries = filter(entries, func(e Entry) bool { return !e.Success })
	}
	return ExportText(entries, includeSuccessful, l.now())
}

// Clear empties the log.
func (l *Logger) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.Clear(ctx); err != nil {
		return fmt.Errorf("interaction: clear: %w", err)
	}
	slog.Info("interaction log cleared", "backend", l.backend)
	return nil
}

func filter(entries []Entry, keep func(Entry) bool) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
