package hub

import "context"

// Controller defines message persistence and checkpoint management for a
// partitioned channel log. Producers append messages and advance the write
// offset range; consumer groups read from their cursor and lease what they hold.
type Controller interface {
	// GetCursor returns the next offset a consumer group should read on a
	// channel partition. New groups start at 0.
	GetCursor(ctx context.Context, channel, group string, partition int) (uint64, error)

	// CommitCursor moves a group's cursor forward. It never moves backwards.
	CommitCursor(ctx context.Context, channel, group string, partition int, offset uint64) error

	// ReserveOffsets atomically claims n consecutive write offsets on a
	// channel partition and returns the first. Concurrent callers never get
	// overlapping ranges.
	ReserveOffsets(ctx context.Context, channel string, partition int, n int) (uint64, error)

	// InsertLease takes a temporary exclusive hold on a message for a group.
	// Fails with gocb.ErrDocumentExists when another instance holds it.
	InsertLease(ctx context.Context, group, msgID string, offset uint64) error

	// DeleteLease drops the hold. Missing leases are not an error.
	DeleteLease(ctx context.Context, group, msgID string) error

	// InsertMessage stores a message. Messages are immutable once written.
	InsertMessage(ctx context.Context, msg Message) error

	// LoadMessages returns up to limit messages from fromOffset, in offset order.
	LoadMessages(ctx context.Context, channel string, partition int, fromOffset uint64, limit int) ([]Message, error)
}
