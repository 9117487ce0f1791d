package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the instrumentation scope name for the fitcoach tracer.
const tracerName = "github.com/MrWong99/fitcoach"

// Span attribute keys shared by the orchestrator, the tool path and the
// stress harness.
const (
	AttrAttempts      = attribute.Key("fitcoach.attempts")
	AttrToolCalls     = attribute.Key("fitcoach.tool_calls")
	AttrToolRounds    = attribute.Key("fitcoach.tool_rounds")
	AttrTool          = attribute.Key("fitcoach.tool")
	AttrErrorCategory = attribute.Key("fitcoach.error_category")
	AttrEntryID       = attribute.Key("fitcoach.entry_id")
	AttrQuestions     = attribute.Key("fitcoach.stress.questions")
	AttrSuccessRate   = attribute.Key("fitcoach.stress.success_rate")
)

// Tracer returns the fitcoach tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// FailSpan marks span as failed with an error category from the interaction
// taxonomy. err may be nil for failures that are outcomes rather than Go
// errors, such as a tool reporting data-not-found.
func FailSpan(span trace.Span, err error, category string) {
	if err != nil {
		span.RecordError(err)
	}
	span.SetAttributes(AttrErrorCategory.String(category))
	span.SetStatus(codes.Error, category)
}

// CorrelationID returns the trace ID of the span in ctx, or "" without one.
// HTTP responses echo it so a client report can be matched to server logs.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with trace_id and span_id from ctx
// attached, or the plain default logger when ctx carries no span.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}
