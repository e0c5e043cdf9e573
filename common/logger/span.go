package logger

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName        = "refbot"
	traceparentHeader = "traceparent"
)

// Queued events always carry W3C trace context, whatever propagator the
// process installed globally.
var traceContext = propagation.TraceContext{}

// EventSpan traces one queued membership event from dequeue to ack.
type EventSpan struct {
	ctx  context.Context
	span trace.Span
}

// StartEventSpan opens a consumer span for a queued event as a child of the
// span that enqueued it, so the webhook request and the worker that applied
// its event share one trace. An empty or malformed traceparent starts a
// fresh trace.
func StartEventSpan(ctx context.Context, name, traceparent string, attrs ...attribute.KeyValue) *EventSpan {
	opts := []trace.SpanStartOption{
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attrs...),
	}

	if traceparent != "" {
		carrier := propagation.MapCarrier{traceparentHeader: traceparent}
		ctx = traceContext.Extract(ctx, carrier)
		if remote := trace.SpanContextFromContext(ctx); remote.IsValid() {
			opts = append(opts, trace.WithLinks(trace.Link{SpanContext: remote}))
		}
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, name, opts...)
	return &EventSpan{ctx: ctx, span: span}
}

func (s *EventSpan) Context() context.Context {
	return s.ctx
}

// Finish ends the span, marking it failed when err is non-nil.
func (s *EventSpan) Finish(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}

// TraceparentOf renders the span active in ctx as a W3C traceparent, or ""
// outside a valid span.
func TraceparentOf(ctx context.Context) string {
	carrier := propagation.MapCarrier{}
	traceContext.Inject(ctx, carrier)
	return carrier.Get(traceparentHeader)
}
