package producer

import (
	"context"

	"go.opentelemetry.io/otel/trace"

	"eventhub/internal/hub"
	"eventhub/internal/hub/tracing"
)

// TracedPublisher wraps a hub.Publisher with distributed tracing
// Layer order: TracedPublisher -> MetricsPublisher -> channel publisher
type TracedPublisher struct {
	publisher hub.Publisher
	tracer    *tracing.Tracer
}

// NewTracedPublisher creates a new traced publisher
func NewTracedPublisher(publisher hub.Publisher, tracer *tracing.Tracer) hub.Publisher {
	return &TracedPublisher{
		publisher: publisher,
		tracer:    tracer,
	}
}

// Publish implements hub.Publisher.Publish with distributed tracing
func (p *TracedPublisher) Publish(ctx context.Context, channel string, events ...hub.Event) error {
	ctx, span := p.tracer.StartSpan(ctx, "producer.publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer span.End()

	span.SetAttributes(p.tracer.BatchAttributes(channel, len(events))...)

	err := p.publisher.Publish(ctx, channel, events...)
	p.tracer.End(ctx, span, err)

	return err
}
