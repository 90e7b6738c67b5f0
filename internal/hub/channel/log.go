package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/validator"
)

// Log is a channel stored through a hub.Controller, one partition per Log.
type Log struct {
	controller hub.Controller
	logger     *zap.Logger
	partition  int
	closer     func(ctx context.Context) error
	now        func() time.Time
}

func NewLog(controller hub.Controller, logger *zap.Logger, partition int, closer func(ctx context.Context) error) (*Log, error) {
	l := Log{
		controller: controller,
		logger:     logger,
		partition:  partition,
		closer:     closer,
		now:        time.Now,
	}

	if err := validator.Validate("log channel", l.controller, l.logger); err != nil {
		return nil, fmt.Errorf("failed to validate log channel deps: %w", err)
	}

	return &l, nil
}

// Publish reserves one offset per event before writing, so concurrent
// publishers never write the same message key.
func (l *Log) Publish(ctx context.Context, channel string, events ...hub.Event) error {
	if len(events) == 0 {
		return nil
	}

	bodies := make([][]byte, len(events))
	for i, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		bodies[i] = body
	}

	first, err := l.controller.ReserveOffsets(ctx, channel, l.partition, len(events))
	if err != nil {
		return fmt.Errorf("failed to reserve offsets for channel %s partition %d: %w", channel, l.partition, err)
	}

	for i, body := range bodies {
		offset := first + uint64(i)
		m := hub.Message{
			ID:           hub.MessageKey(channel, l.partition, offset),
			Channel:      channel,
			Partition:    l.partition,
			Offset:       offset,
			Body:         body,
			EnqueuedTime: l.now().UTC(),
		}

		if err := l.controller.InsertMessage(ctx, m); err != nil {
			return fmt.Errorf("failed to insert message with ID %s: %w", m.ID, err)
		}
	}

	return nil
}

// Fetch returns the messages after the group cursor that this instance
// managed to lease. Messages leased elsewhere are skipped.
func (l *Log) Fetch(ctx context.Context, channel, group string, max int) ([]hub.Record, error) {
	logger := l.logger.With(zap.String("channel", channel), zap.String("group", group))

	cursor, err := l.controller.GetCursor(ctx, channel, group, l.partition)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	msgs, err := l.controller.LoadMessages(ctx, channel, l.partition, cursor, max)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}

	logger.Debug("loaded messages", zap.Uint64("cursor", cursor), zap.Int("count", len(msgs)))

	leased := make([]hub.Record, 0, len(msgs))
	for _, msg := range msgs {
		err := l.controller.InsertLease(ctx, group, msg.ID, msg.Offset)
		switch {
		case err == nil:
			leased = append(leased, msg.Record())
		case errors.Is(err, gocb.ErrDocumentExists):
		default:
			_ = l.Release(ctx, channel, group, leased...)
			return nil, fmt.Errorf("failed to insert lease for message %s: %w", msg.ID, err)
		}
	}

	logger.Debug("leased", zap.Int("count", len(leased)))

	return leased, nil
}

// Ack drops the leases and moves the group cursor past the highest offset.
func (l *Log) Ack(ctx context.Context, channel, group string, records ...hub.Record) error {
	if len(records) == 0 {
		return nil
	}

	if err := l.Release(ctx, channel, group, records...); err != nil {
		return err
	}

	var next uint64
	for _, r := range records {
		if r.Offset+1 > next {
			next = r.Offset + 1
		}
	}

	if err := l.controller.CommitCursor(ctx, channel, group, l.partition, next); err != nil {
		return fmt.Errorf("failed to commit cursor for channel %s group %s: %w", channel, group, err)
	}

	l.logger.Debug("cursor committed",
		zap.String("channel", channel),
		zap.String("group", group),
		zap.Uint64("offset", next),
	)

	return nil
}

// Release drops the leases on records. A lease that already expired counts
// as released.
func (l *Log) Release(ctx context.Context, _, group string, records ...hub.Record) error {
	var err error
	for _, r := range records {
		derr := l.controller.DeleteLease(ctx, group, r.ID)
		switch {
		case derr == nil:
		case errors.Is(derr, gocb.ErrDocumentNotFound):
			l.logger.Debug("lease already expired", zap.String("group", group), zap.String("message_id", r.ID))
		default:
			err = multierr.Append(err, fmt.Errorf("failed to delete lease for message %s: %w", r.ID, derr))
		}
	}
	return err
}

func (l *Log) Close(ctx context.Context) error {
	if l.closer == nil {
		return nil
	}
	return l.closer(ctx)
}
