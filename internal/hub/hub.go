// Package hub holds the types shared by the event hub functions, channel
// backends and the trigger runtime.
package hub

import "context"

// BatchHandler processes one batch of inbound records.
type BatchHandler interface {
	Handle(ctx context.Context, records []Record) error
}

// BatchHandlerFunc adapts a function to BatchHandler.
type BatchHandlerFunc func(ctx context.Context, records []Record) error

func (f BatchHandlerFunc) Handle(ctx context.Context, records []Record) error {
	return f(ctx, records)
}

// Publisher writes events onto a channel.
type Publisher interface {
	Publish(ctx context.Context, channel string, events ...Event) error
}

// Source hands out batches of records to a consumer group.
type Source interface {
	// Fetch returns up to max records for the group. An empty slice means
	// nothing is available right now.
	Fetch(ctx context.Context, channel, group string, max int) ([]Record, error)

	// Ack checkpoints the records so they are not delivered to the group again.
	Ack(ctx context.Context, channel, group string, records ...Record) error

	// Release gives records back so they may be fetched again.
	Release(ctx context.Context, channel, group string, records ...Record) error
}

// Channel is a backend that can both publish and deliver records.
type Channel interface {
	Publisher
	Source
	Close(ctx context.Context) error
}
