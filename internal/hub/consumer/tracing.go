package consumer

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"eventhub/internal/hub"
	"eventhub/internal/hub/tracing"
)

// TracedHandler wraps a hub.BatchHandler with distributed tracing
// Layer order: TracedHandler -> MetricsHandler -> Handler (real thing)
type TracedHandler struct {
	handler hub.BatchHandler
	tracer  *tracing.Tracer
	channel string
}

// NewTracedHandler creates a new traced batch handler
func NewTracedHandler(handler hub.BatchHandler, tracer *tracing.Tracer, channel string) hub.BatchHandler {
	return &TracedHandler{
		handler: handler,
		tracer:  tracer,
		channel: channel,
	}
}

// Handle implements hub.BatchHandler.Handle with distributed tracing
func (h *TracedHandler) Handle(ctx context.Context, records []hub.Record) error {
	ctx, span := h.tracer.StartSpan(ctx, "consumer.handle_batch", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	span.SetAttributes(h.tracer.BatchAttributes(h.channel, len(records))...)

	err := h.handler.Handle(ctx, records)

	span.SetAttributes(attribute.Int("eventhub.batch.failed_count", len(hub.Failures(err))))
	h.tracer.End(ctx, span, err)

	return err
}
