package redisstream

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventhub/internal/hub"
)

// redisClient returns a connected client, skipping when REDIS_ADDR is unset.
func redisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	return client
}

func newChannel(t *testing.T) (*Channel, string) {
	client := redisClient(t)
	stream := "eventhub-test-" + uuid.NewString()
	t.Cleanup(func() {
		_ = client.Del(context.Background(), stream).Err()
		_ = client.Close()
	})

	opts := DefaultOptions()
	opts.Block = 100 * time.Millisecond
	c, err := New(client, zap.NewNop(), opts)
	require.NoError(t, err)

	return c, stream
}

func TestToRecord(t *testing.T) {
	r := toRecord("hub", redis.XMessage{
		ID:     "1700000000000-3",
		Values: map[string]any{"body": `{"Message":"Test"}`, "content-type": "application/json"},
	})

	assert.Equal(t, "1700000000000-3", r.ID)
	assert.Equal(t, "hub", r.Channel)
	assert.Zero(t, r.Offset)
	assert.Equal(t, `{"Message":"Test"}`, string(r.Body))
	assert.Equal(t, "application/json", r.Properties["content-type"])
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), r.EnqueuedAt)
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(nil, zap.NewNop(), DefaultOptions())
	assert.Error(t, err)
}

func TestPublishFetchAck(t *testing.T) {
	c, stream := newChannel(t)
	ctx := context.Background()

	e := hub.NewEvent(time.Now())
	require.NoError(t, c.Publish(ctx, stream, e, e))

	records, err := c.Fetch(ctx, stream, hub.DefaultConsumerGroup, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)

	var got hub.Event
	require.NoError(t, json.Unmarshal(records[0].Body, &got))
	assert.Equal(t, hub.TestMessage, got.Message)

	require.NoError(t, c.Ack(ctx, stream, hub.DefaultConsumerGroup, records...))

	records, err = c.Fetch(ctx, stream, hub.DefaultConsumerGroup, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestReleaseRedelivers(t *testing.T) {
	c, stream := newChannel(t)
	ctx := context.Background()

	require.NoError(t, c.Publish(ctx, stream, hub.NewEvent(time.Now())))

	first, err := c.Fetch(ctx, stream, "g", 10)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, c.Release(ctx, stream, "g", first...))

	again, err := c.Fetch(ctx, stream, "g", 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, first[0].ID, again[0].ID)
}
