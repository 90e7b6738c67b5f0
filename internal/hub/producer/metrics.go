package producer

import (
	"context"
	"time"

	"eventhub/internal/hub"
	"eventhub/internal/hub/metrics"
)

// MetricsPublisher wraps the output binding's hub.Publisher with metrics collection
type MetricsPublisher struct {
	publisher hub.Publisher
	registry  *metrics.Registry
}

// NewMetricsPublisher creates a new instrumented publisher
func NewMetricsPublisher(publisher hub.Publisher, registry *metrics.Registry) hub.Publisher {
	return &MetricsPublisher{
		publisher: publisher,
		registry:  registry,
	}
}

// Publish implements hub.Publisher.Publish with metrics collection
func (p *MetricsPublisher) Publish(ctx context.Context, channel string, events ...hub.Event) error {
	start := time.Now()

	err := p.publisher.Publish(ctx, channel, events...)
	duration := time.Since(start)

	p.registry.RecordProduce(channel, duration, err)

	return err
}
