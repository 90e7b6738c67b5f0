package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/hub"
)

// Memory is an in-process channel. Each consumer group tracks its own cursor;
// fetched records stay invisible to the group until acked or released.
type Memory struct {
	mu     sync.Mutex
	logs   map[string][]hub.Record
	groups map[string]*memoryGroup
	now    func() time.Time
}

type memoryGroup struct {
	cursor   uint64
	inflight map[uint64]struct{}
	acked    map[uint64]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		logs:   make(map[string][]hub.Record),
		groups: make(map[string]*memoryGroup),
		now:    time.Now,
	}
}

func (m *Memory) Publish(ctx context.Context, channel string, events ...hub.Event) error {
	bodies := make([][]byte, 0, len(events))
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
		bodies = append(bodies, b)
	}

	return m.Append(ctx, channel, bodies...)
}

// Append writes raw bodies to the channel.
func (m *Memory) Append(_ context.Context, channel string, bodies ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[channel]
	for _, body := range bodies {
		log = append(log, hub.Record{
			ID:         uuid.NewString(),
			Channel:    channel,
			Offset:     uint64(len(log)),
			Body:       body,
			EnqueuedAt: m.now().UTC(),
		})
	}
	m.logs[channel] = log

	return nil
}

func (m *Memory) Fetch(_ context.Context, channel, group string, max int) ([]hub.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.group(channel, group)
	log := m.logs[channel]

	var out []hub.Record
	for off := g.cursor; off < uint64(len(log)) && len(out) < max; off++ {
		if _, ok := g.inflight[off]; ok {
			continue
		}
		if _, ok := g.acked[off]; ok {
			continue
		}
		g.inflight[off] = struct{}{}
		out = append(out, log[off])
	}

	return out, nil
}

func (m *Memory) Ack(_ context.Context, channel, group string, records ...hub.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.group(channel, group)
	for _, r := range records {
		delete(g.inflight, r.Offset)
		if r.Offset >= g.cursor {
			g.acked[r.Offset] = struct{}{}
		}
	}
	for {
		if _, ok := g.acked[g.cursor]; !ok {
			break
		}
		delete(g.acked, g.cursor)
		g.cursor++
	}

	return nil
}

func (m *Memory) Release(_ context.Context, channel, group string, records ...hub.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	g := m.group(channel, group)
	for _, r := range records {
		delete(g.inflight, r.Offset)
	}

	return nil
}

func (m *Memory) Close(context.Context) error {
	return nil
}

// Len returns the number of records ever written to channel.
func (m *Memory) Len(channel string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs[channel])
}

// Cursor returns the group's checkpoint on channel.
func (m *Memory) Cursor(channel, group string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.group(channel, group).cursor
}

func (m *Memory) group(channel, group string) *memoryGroup {
	key := channel + "\x00" + group
	g, ok := m.groups[key]
	if !ok {
		g = &memoryGroup{
			inflight: make(map[uint64]struct{}),
			acked:    make(map[uint64]struct{}),
		}
		m.groups[key] = g
	}
	return g
}
