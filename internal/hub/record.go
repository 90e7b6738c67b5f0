package hub

import "time"

// Record is a single inbound item delivered to a consumer as part of a batch.
// Body is opaque; handlers must not assume it is an encoded Event. Offset is
// zero for backends without numeric offsets.
type Record struct {
	ID         string            `json:"id"`
	Channel    string            `json:"channel"`
	Partition  int               `json:"partition"`
	Offset     uint64            `json:"offset"`
	Body       []byte            `json:"body"`
	Properties map[string]string `json:"properties,omitempty"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}
