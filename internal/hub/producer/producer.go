package producer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/validator"
)

type Option func(*Producer)

// WithClock overrides the time source used to stamp events.
func WithClock(now func() time.Time) Option {
	return func(p *Producer) {
		p.now = now
	}
}

// Producer is the EventHubOutput function. It ignores the request entirely.
type Producer struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewProducer(logger *zap.Logger, opts ...Option) (*Producer, error) {
	p := Producer{
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&p)
	}

	if err := validator.Validate("producer", p.logger, p.now); err != nil {
		return nil, fmt.Errorf("failed to validate producer deps: %w", err)
	}

	return &p, nil
}

func (p *Producer) Produce(_ context.Context, _ *http.Request) hub.Event {
	now := p.now().UTC()
	p.logger.Info("event hub producer function executed", zap.Time("at", now))

	return hub.NewEvent(now)
}
