package channel

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/couchbase/gocb/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"eventhub/internal/hub"
)

// fakeController keeps the channel log in maps with gocb-compatible errors.
type fakeController struct {
	mu       sync.Mutex
	cursors  map[string]uint64
	offsets  map[string]uint64
	leases   map[string]struct{}
	messages map[string]hub.Message
	failNext error

	reserveDelay time.Duration
}

func newFakeController() *fakeController {
	return &fakeController{
		cursors:  map[string]uint64{},
		offsets:  map[string]uint64{},
		leases:   map[string]struct{}{},
		messages: map[string]hub.Message{},
	}
}

func (f *fakeController) GetCursor(_ context.Context, channel, group string, partition int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cursors[hub.CursorKey(channel, group, partition)], nil
}

func (f *fakeController) CommitCursor(_ context.Context, channel, group string, partition int, offset uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hub.CursorKey(channel, group, partition)
	if offset > f.cursors[key] {
		f.cursors[key] = offset
	}
	return nil
}

// ReserveOffsets is atomic under the lock. reserveDelay keeps concurrent
// publishers queued on it.
func (f *fakeController) ReserveOffsets(_ context.Context, channel string, partition int, n int) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hub.OffsetKey(channel, partition)
	first := f.offsets[key]
	time.Sleep(f.reserveDelay)
	f.offsets[key] = first + uint64(n)
	return first, nil
}

func (f *fakeController) InsertLease(_ context.Context, group, msgID string, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failNext; err != nil {
		f.failNext = nil
		return err
	}
	key := hub.LeaseKey(group, msgID)
	if _, ok := f.leases[key]; ok {
		return fmt.Errorf("failed to insert lease: %w", gocb.ErrDocumentExists)
	}
	f.leases[key] = struct{}{}
	return nil
}

func (f *fakeController) DeleteLease(_ context.Context, group, msgID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hub.LeaseKey(group, msgID)
	if _, ok := f.leases[key]; !ok {
		return fmt.Errorf("failed to remove document with key %s: %w", key, gocb.ErrDocumentNotFound)
	}
	delete(f.leases, key)
	return nil
}

// expire drops every lease the way a document expiry would.
func (f *fakeController) expire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leases = map[string]struct{}{}
}

func (f *fakeController) InsertMessage(_ context.Context, msg hub.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.messages[msg.ID]; ok {
		return fmt.Errorf("failed to insert message: %w", gocb.ErrDocumentExists)
	}
	f.messages[msg.ID] = msg
	return nil
}

func (f *fakeController) LoadMessages(_ context.Context, channel string, partition int, from uint64, limit int) ([]hub.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []hub.Message
	for _, m := range f.messages {
		if m.Channel == channel && m.Partition == partition && m.Offset >= from {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func newLog(t *testing.T, ctrl hub.Controller) *Log {
	l, err := NewLog(ctrl, zap.NewNop(), 0, nil)
	require.NoError(t, err)
	return l
}

func TestLog_PublishAssignsOffsets(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)

	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now()), hub.NewEvent(time.Now())))
	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now())))

	assert.Equal(t, uint64(3), ctrl.offsets[hub.OffsetKey("hub", 0)])
	assert.Contains(t, ctrl.messages, hub.MessageKey("hub", 0, 2))
}

func TestLog_ConcurrentPublishStoresEveryEvent(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	ctrl.reserveDelay = 5 * time.Millisecond
	l := newLog(t, ctrl)

	const publishers = 8
	var wg sync.WaitGroup
	errs := make([]error, publishers)
	for i := 0; i < publishers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = l.Publish(ctx, "hub", hub.NewEvent(time.Now()), hub.NewEvent(time.Now()))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Len(t, ctrl.messages, 2*publishers)
	assert.Equal(t, uint64(2*publishers), ctrl.offsets[hub.OffsetKey("hub", 0)])
}

func TestLog_PublishFailsOnTakenOffset(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)
	ctrl.messages[hub.MessageKey("hub", 0, 0)] = hub.Message{ID: hub.MessageKey("hub", 0, 0)}

	err := l.Publish(ctx, "hub", hub.NewEvent(time.Now()))
	assert.ErrorIs(t, err, gocb.ErrDocumentExists)
}

func TestLog_AckAfterLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)
	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now()), hub.NewEvent(time.Now())))

	batch, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	ctrl.expire()

	require.NoError(t, l.Ack(ctx, "hub", "g", batch...))
	cursor, _ := ctrl.GetCursor(ctx, "hub", "g", 0)
	assert.Equal(t, uint64(2), cursor)
}

func TestLog_ReleaseReportsEveryFailure(t *testing.T) {
	ctx := context.Background()
	l := newLog(t, failingLeases{newFakeController()})

	err := l.Release(ctx, "hub", "g", hub.Record{ID: "a"}, hub.Record{ID: "b"})
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 2)
}

type failingLeases struct {
	*fakeController
}

func (failingLeases) DeleteLease(context.Context, string, string) error {
	return errors.New("timeout")
}

func TestLog_FetchLeasesAndAckCommits(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)
	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now()), hub.NewEvent(time.Now())))

	batch, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	// a second instance of the same group sees nothing while leases are held
	other, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, l.Ack(ctx, "hub", "g", batch...))
	cursor, _ := ctrl.GetCursor(ctx, "hub", "g", 0)
	assert.Equal(t, uint64(2), cursor)
	assert.Empty(t, ctrl.leases)

	rest, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}

func TestLog_ReleaseAllowsRefetch(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)
	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now())))

	batch, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, "hub", "g", batch...))

	again, err := l.Fetch(ctx, "hub", "g", 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, batch[0].ID, again[0].ID)
}

func TestLog_FetchLeaseErrorReleasesHeld(t *testing.T) {
	ctx := context.Background()
	ctrl := newFakeController()
	l := newLog(t, ctrl)
	require.NoError(t, l.Publish(ctx, "hub", hub.NewEvent(time.Now())))

	ctrl.failNext = errors.New("timeout")
	_, err := l.Fetch(ctx, "hub", "g", 10)
	require.Error(t, err)
	assert.Empty(t, ctrl.leases)
}
