// Package trigger runs the EventHubTrigger function against a hub.Source: it
// pulls batches, hands them to the handler and checkpoints them.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/hub/metrics"
	"eventhub/internal/validator"
)

type Config struct {
	Channel        string        `env:"EVENT_HUB_NAME" envDefault:"akyleventhub"`
	Group          string        `env:"TRIGGER_CONSUMER_GROUP" envDefault:"$Default"`
	BatchSize      int           `env:"TRIGGER_BATCH_SIZE" envDefault:"10"`
	PollInterval   time.Duration `env:"TRIGGER_POLL_INTERVAL" envDefault:"1s"`
	MaxAttempts    uint          `env:"TRIGGER_MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"TRIGGER_INITIAL_BACKOFF" envDefault:"200ms"`
	MaxBackoff     time.Duration `env:"TRIGGER_MAX_BACKOFF" envDefault:"5s"`
}

type Trigger struct {
	source   hub.Source
	handler  hub.BatchHandler
	logger   *zap.Logger
	config   Config
	registry *metrics.Registry

	ready atomic.Bool
}

// New returns a Trigger. registry may be nil.
func New(source hub.Source, handler hub.BatchHandler, logger *zap.Logger, registry *metrics.Registry, config Config) (*Trigger, error) {
	t := Trigger{
		source:   source,
		handler:  handler,
		logger:   logger,
		config:   config,
		registry: registry,
	}

	if err := validator.Validate("trigger", t.source, t.handler, t.logger, t.config.Channel, t.config.Group, t.config.BatchSize); err != nil {
		return nil, fmt.Errorf("failed to validate trigger deps: %w", err)
	}
	if t.config.BatchSize < 1 {
		return nil, fmt.Errorf("invalid trigger batch size %d: must be at least 1", t.config.BatchSize)
	}
	if t.config.MaxAttempts == 0 {
		t.config.MaxAttempts = 1
	}

	t.logger = logger.With(zap.String("channel", config.Channel), zap.String("group", config.Group))

	return &t, nil
}

// Ready reports whether the trigger has completed at least one fetch.
func (t *Trigger) Ready() bool {
	return t.ready.Load()
}

// Run polls until ctx is done or the source fails.
func (t *Trigger) Run(ctx context.Context) error {
	t.logger.Info("trigger started", zap.Int("batch_size", t.config.BatchSize))

	for {
		n, err := t.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if n > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(t.config.PollInterval):
		}
	}
}

// Poll fetches and handles one batch, returning its size.
// A batch that still fails after MaxAttempts is checkpointed anyway so the
// stream keeps moving; the failure is logged but not returned.
func (t *Trigger) Poll(ctx context.Context) (int, error) {
	records, err := t.source.Fetch(ctx, t.config.Channel, t.config.Group, t.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch batch: %w", err)
	}
	t.ready.Store(true)

	if len(records) == 0 {
		return 0, nil
	}

	logger := t.logger.With(zap.Int("size", len(records)), zap.String("first_id", records[0].ID))
	logger.Debug("delivering batch")

	err = t.deliver(ctx, logger, records)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		if rerr := t.source.Release(context.WithoutCancel(ctx), t.config.Channel, t.config.Group, records...); rerr != nil {
			logger.Error("failed to release batch", zap.Error(rerr))
		}
		return len(records), ctx.Err()
	default:
		logger.Error("batch failed, checkpointing", zap.Uint("attempts", t.config.MaxAttempts), zap.Error(err))
	}

	if err := t.source.Ack(ctx, t.config.Channel, t.config.Group, records...); err != nil {
		return len(records), fmt.Errorf("failed to ack batch: %w", err)
	}

	return len(records), nil
}

func (t *Trigger) deliver(ctx context.Context, logger *zap.Logger, records []hub.Record) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.config.InitialBackoff
	if t.config.MaxBackoff > 0 {
		b.MaxInterval = t.config.MaxBackoff
	}

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 && t.registry != nil {
			t.registry.RecordRetry(t.config.Channel, t.config.Group)
		}
		return struct{}{}, t.handler.Handle(ctx, records)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(t.config.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("batch failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("backoff", next),
				zap.Error(err),
			)
		}),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Unwrap()
	}
	return err
}
