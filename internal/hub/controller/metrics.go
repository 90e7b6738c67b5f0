package controller

import (
	"context"
	"time"

	"eventhub/internal/hub"
	"eventhub/internal/hub/metrics"
)

// MetricsController wraps a hub.Controller with metrics collection
type MetricsController struct {
	controller hub.Controller
	registry   *metrics.Registry
}

// NewMetricsController creates a new instrumented controller
func NewMetricsController(controller hub.Controller, registry *metrics.Registry) hub.Controller {
	return &MetricsController{
		controller: controller,
		registry:   registry,
	}
}

func (c *MetricsController) observe(operation string, start time.Time, err error) {
	c.registry.RecordDatabaseOperation(operation, time.Since(start), err)
}

func (c *MetricsController) GetCursor(ctx context.Context, channel, group string, partition int) (uint64, error) {
	start := time.Now()
	offset, err := c.controller.GetCursor(ctx, channel, group, partition)
	c.observe("get_cursor", start, err)
	return offset, err
}

func (c *MetricsController) CommitCursor(ctx context.Context, channel, group string, partition int, offset uint64) error {
	start := time.Now()
	err := c.controller.CommitCursor(ctx, channel, group, partition, offset)
	c.observe("commit_cursor", start, err)
	return err
}

func (c *MetricsController) ReserveOffsets(ctx context.Context, channel string, partition int, n int) (uint64, error) {
	start := time.Now()
	first, err := c.controller.ReserveOffsets(ctx, channel, partition, n)
	c.observe("reserve_offsets", start, err)
	return first, err
}

func (c *MetricsController) InsertLease(ctx context.Context, group, msgID string, offset uint64) error {
	start := time.Now()
	err := c.controller.InsertLease(ctx, group, msgID, offset)
	c.observe("insert_lease", start, err)
	c.registry.RecordLeaseOperation("create", err)
	return err
}

func (c *MetricsController) DeleteLease(ctx context.Context, group, msgID string) error {
	start := time.Now()
	err := c.controller.DeleteLease(ctx, group, msgID)
	c.observe("delete_lease", start, err)
	c.registry.RecordLeaseOperation("delete", err)
	return err
}

func (c *MetricsController) InsertMessage(ctx context.Context, msg hub.Message) error {
	start := time.Now()
	err := c.controller.InsertMessage(ctx, msg)
	c.observe("insert_message", start, err)
	return err
}

func (c *MetricsController) LoadMessages(ctx context.Context, channel string, partition int, fromOffset uint64, limit int) ([]hub.Message, error) {
	start := time.Now()
	messages, err := c.controller.LoadMessages(ctx, channel, partition, fromOffset, limit)
	c.observe("load_messages", start, err)
	return messages, err
}
