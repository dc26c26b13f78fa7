package context

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// Trace identifies the request or background job a unit of work belongs to.
type Trace struct {
	TraceID   string
	RequestID string
	// Job names the background task for work started by the worker.
	Job string
}

type traceKey struct{}

// WithTrace stores t in ctx.
func WithTrace(ctx context.Context, t Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// TraceFrom returns the Trace stored in ctx.
func TraceFrom(ctx context.Context) (Trace, bool) {
	t, ok := ctx.Value(traceKey{}).(Trace)
	return t, ok
}

// TraceID prefers the active OpenTelemetry span, so audit rows and logs
// share the id seen by the tracing backend.
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if t, ok := TraceFrom(ctx); ok {
		return t.TraceID
	}
	return ""
}

// RequestID returns the request id from ctx, if any.
func RequestID(ctx context.Context) string {
	t, _ := TraceFrom(ctx)
	return t.RequestID
}

// StartJob tags ctx for one run of a background job.
func StartJob(ctx context.Context, job string) context.Context {
	runID := uuid.NewString()
	return WithTrace(ctx, Trace{TraceID: runID, RequestID: runID, Job: job})
}
