// Package redisstream implements a hub.Channel on Redis Streams: one stream
// per channel, one Redis consumer group per hub consumer group.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/validator"
)

const (
	fieldBody        = "body"
	fieldContentType = "content-type"
	contentTypeJSON  = "application/json"
)

type Options struct {
	// Consumer names this instance inside every consumer group.
	Consumer string
	// Block is how long a fetch waits for new entries.
	Block time.Duration
	// MaxLen approximately caps each stream. Zero disables trimming.
	MaxLen int64
}

func DefaultOptions() Options {
	host, _ := os.Hostname()
	if host == "" {
		host = "eventhub"
	}
	return Options{
		Consumer: host + "-" + uuid.NewString()[:8],
		Block:    time.Second,
	}
}

type Channel struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	options Options

	groups sync.Map // stream+group -> struct{}
}

func New(client redis.UniversalClient, logger *zap.Logger, options Options) (*Channel, error) {
	c := Channel{
		client:  client,
		logger:  logger,
		options: options,
	}

	if err := validator.Validate("redis stream channel", c.client, c.logger, c.options.Consumer); err != nil {
		return nil, fmt.Errorf("failed to validate redis stream channel deps: %w", err)
	}

	return &c, nil
}

// Open parses a redis:// or rediss:// URL and pings the server.
func Open(ctx context.Context, url string, logger *zap.Logger, options Options) (*Channel, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return New(client, logger, options)
}

func (c *Channel) Publish(ctx context.Context, channel string, events ...hub.Event) error {
	if len(events) == 0 {
		return nil
	}

	_, err := c.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, e := range events {
			body, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("failed to encode event: %w", err)
			}
			args := &redis.XAddArgs{
				Stream: channel,
				Values: map[string]any{
					fieldBody:        body,
					fieldContentType: contentTypeJSON,
				},
			}
			if c.options.MaxLen > 0 {
				args.MaxLen = c.options.MaxLen
				args.Approx = true
			}
			p.XAdd(ctx, args)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", channel, err)
	}

	return nil
}

// Fetch redelivers this consumer's pending entries before reading new ones.
func (c *Channel) Fetch(ctx context.Context, channel, group string, max int) ([]hub.Record, error) {
	if err := c.ensureGroup(ctx, channel, group); err != nil {
		return nil, err
	}

	records, err := c.read(ctx, channel, group, "0", max, -1)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 {
		c.logger.Debug("redelivering pending entries",
			zap.String("channel", channel),
			zap.String("group", group),
			zap.Int("count", len(records)),
		)
		return records, nil
	}

	return c.read(ctx, channel, group, ">", max, c.options.Block)
}

func (c *Channel) read(ctx context.Context, channel, group, id string, max int, block time.Duration) ([]hub.Record, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: c.options.Consumer,
		Streams:  []string{channel, id},
		Count:    int64(max),
		Block:    block,
	}).Result()
	switch {
	case err == nil:
	case errors.Is(err, redis.Nil):
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to read stream %s group %s: %w", channel, group, err)
	}

	var records []hub.Record
	var trimmed []string
	for _, s := range streams {
		for _, m := range s.Messages {
			// pending entries trimmed from the stream come back without values
			if m.Values == nil {
				trimmed = append(trimmed, m.ID)
				continue
			}
			records = append(records, toRecord(s.Stream, m))
		}
	}

	if len(trimmed) > 0 {
		if err := c.client.XAck(ctx, channel, group, trimmed...).Err(); err != nil {
			return nil, fmt.Errorf("failed to ack trimmed entries: %w", err)
		}
	}

	return records, nil
}

func (c *Channel) Ack(ctx context.Context, channel, group string, records ...hub.Record) error {
	if len(records) == 0 {
		return nil
	}

	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}

	if err := c.client.XAck(ctx, channel, group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack entries on stream %s: %w", channel, err)
	}

	return nil
}

// Release leaves the entries pending; the next Fetch by this consumer returns them.
func (c *Channel) Release(context.Context, string, string, ...hub.Record) error {
	return nil
}

func (c *Channel) Close(context.Context) error {
	return c.client.Close()
}

func (c *Channel) ensureGroup(ctx context.Context, channel, group string) error {
	key := channel + "\x00" + group
	if _, ok := c.groups.Load(key); ok {
		return nil
	}

	err := c.client.XGroupCreateMkStream(ctx, channel, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on stream %s: %w", group, channel, err)
	}

	c.groups.Store(key, struct{}{})
	return nil
}

func toRecord(stream string, m redis.XMessage) hub.Record {
	r := hub.Record{
		ID:         m.ID,
		Channel:    stream,
		Properties: make(map[string]string, len(m.Values)),
	}

	for k, v := range m.Values {
		s, _ := v.(string)
		if k == fieldBody {
			r.Body = []byte(s)
			continue
		}
		r.Properties[k] = s
	}

	// stream ids are <ms>-<seq>; seq restarts every millisecond so it is not
	// an offset and Offset stays zero
	ms, _, _ := strings.Cut(m.ID, "-")
	if n, err := strconv.ParseInt(ms, 10, 64); err == nil {
		r.EnqueuedAt = time.UnixMilli(n).UTC()
	}

	return r
}
