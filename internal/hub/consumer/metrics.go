package consumer

import (
	"context"
	"time"

	"eventhub/internal/hub"
	"eventhub/internal/hub/metrics"
)

// MetricsHandler wraps a hub.BatchHandler with metrics collection
type MetricsHandler struct {
	handler  hub.BatchHandler
	registry *metrics.Registry
	channel  string
}

// NewMetricsHandler creates a new instrumented batch handler
func NewMetricsHandler(handler hub.BatchHandler, registry *metrics.Registry, channel string) hub.BatchHandler {
	return &MetricsHandler{
		handler:  handler,
		registry: registry,
		channel:  channel,
	}
}

// Handle implements hub.BatchHandler.Handle with metrics collection
func (h *MetricsHandler) Handle(ctx context.Context, records []hub.Record) error {
	start := time.Now()

	err := h.handler.Handle(ctx, records)
	duration := time.Since(start)

	h.registry.RecordBatch(h.channel, len(records), duration, err)

	return err
}
