package consumer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/validator"
)

// ErrPanic wraps a panic raised while processing a single record.
var ErrPanic = errors.New("record processing panicked")

// Step is the per-record processing step. It receives the handler's logger.
type Step func(ctx context.Context, logger *zap.Logger, record hub.Record) error

// LogRecord is the default step: one info line per record.
func LogRecord(_ context.Context, logger *zap.Logger, record hub.Record) error {
	logger.Info("event hub trigger processed a message",
		zap.String("id", record.ID),
		zap.ByteString("body", record.Body),
	)
	return nil
}

type Option func(*Handler)

// WithStep replaces the per-record step.
func WithStep(step Step) Option {
	return func(h *Handler) {
		h.step = step
	}
}

// Handler is the EventHubTrigger function. A failing record never stops the
// rest of the batch; the failures are reported together once the batch is done.
type Handler struct {
	logger *zap.Logger
	step   Step
}

func NewHandler(logger *zap.Logger, opts ...Option) (*Handler, error) {
	h := Handler{
		logger: logger,
		step:   LogRecord,
	}
	for _, opt := range opts {
		opt(&h)
	}

	if err := validator.Validate("consumer", h.logger, h.step); err != nil {
		return nil, fmt.Errorf("failed to validate consumer deps: %w", err)
	}

	return &h, nil
}

// Handle processes records in order. It returns nil when all succeed, the
// failure itself when exactly one fails, and a *hub.BatchError otherwise.
func (h *Handler) Handle(ctx context.Context, records []hub.Record) error {
	var result hub.BatchResult
	for _, record := range records {
		result = result.Add(h.process(ctx, record))
	}

	return result.Err()
}

func (h *Handler) process(ctx context.Context, record hub.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: record %s: %v", ErrPanic, record.ID, r)
		}
	}()

	return h.step(ctx, h.logger, record)
}
