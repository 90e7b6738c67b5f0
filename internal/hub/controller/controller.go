package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"eventhub/internal/couchbase"
	"eventhub/internal/hub"
	"eventhub/internal/validator"
)

// MessageRetention is how long published messages stay in the log.
const MessageRetention = 7 * 24 * time.Hour

// Controller is the Couchbase implementation of hub.Controller.
// Cursors and offsets are advanced in distributed transactions so that
// concurrent writers only ever move them forward.
type Controller struct {
	cursors      *couchbase.Couchbase[hub.Cursor]
	leases       *couchbase.Couchbase[hub.Lease]
	messages     *couchbase.Couchbase[hub.Message]
	offsets      *couchbase.Couchbase[hub.Offset]
	transactions *couchbase.Transactions
	// bucket and scope are only needed to address the messages collection in N1QL
	bucket string
	scope  string
}

// NewController creates a Controller over pre-opened collections.
func NewController(
	cursors *couchbase.Couchbase[hub.Cursor],
	leases *couchbase.Couchbase[hub.Lease],
	messages *couchbase.Couchbase[hub.Message],
	offsets *couchbase.Couchbase[hub.Offset],
	transactions *couchbase.Transactions,
	bucket, scope string,
) (*Controller, error) {
	c := Controller{
		cursors:      cursors,
		leases:       leases,
		messages:     messages,
		offsets:      offsets,
		transactions: transactions,
		bucket:       bucket,
		scope:        scope,
	}

	if err := validator.Validate(
		"controller",
		c.cursors,
		c.leases,
		c.messages,
		c.offsets,
		c.transactions,
		c.bucket,
		c.scope,
	); err != nil {
		return nil, fmt.Errorf("failed to validate controller deps: %w", err)
	}

	return &c, nil
}

// GetCursor returns 0 for groups that have never committed.
func (c *Controller) GetCursor(ctx context.Context, channel, group string, partition int) (uint64, error) {
	key := hub.CursorKey(channel, group, partition)

	cur, err := c.cursors.Get(ctx, key, nil)
	switch {
	case err == nil:
		return cur.Offset, nil
	case errors.Is(err, gocb.ErrDocumentNotFound):
		return 0, nil
	default:
		return 0, fmt.Errorf("failed to get cursor: %w", err)
	}
}

func (c *Controller) CommitCursor(ctx context.Context, channel, group string, partition int, offset uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := hub.CursorKey(channel, group, partition)
	cursor := hub.Cursor{
		ID:        key,
		Channel:   channel,
		Group:     group,
		Partition: partition,
		Offset:    offset,
	}

	err := c.advance(c.cursors, key, cursor, func(res *gocb.TransactionGetResult) (any, bool, error) {
		var existing hub.Cursor
		if err := res.Content(&existing); err != nil {
			return nil, false, fmt.Errorf("failed to decode cursor: %w", err)
		}
		if offset <= existing.Offset {
			return nil, false, nil
		}
		existing.Offset = offset
		return existing, true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to commit cursor for channel %s group %s partition %d: %w", channel, group, partition, err)
	}

	return nil
}

// ReserveOffsets advances the write offset by n inside a transaction and
// returns the offset it held before.
func (c *Controller) ReserveOffsets(ctx context.Context, channel string, partition int, n int) (uint64, error) {
	if n < 1 {
		return 0, fmt.Errorf("invalid offset count %d", n)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := hub.OffsetKey(channel, partition)

	var first uint64
	_, err := c.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		for {
			res, err := r.Get(c.offsets, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				_, err := r.Insert(c.offsets, key, hub.Offset{ID: key, N: uint64(n)})
				switch {
				case err == nil:
					first = 0
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					continue
				default:
					return fmt.Errorf("failed to insert %s: %w", key, err)
				}
			default:
				return fmt.Errorf("failed to get %s: %w", key, err)
			}

			var existing hub.Offset
			if err := res.Content(&existing); err != nil {
				return fmt.Errorf("failed to decode offset: %w", err)
			}

			first = existing.N
			existing.N += uint64(n)
			if _, err := r.Replace(res, existing); err != nil {
				return fmt.Errorf("failed to replace %s: %w", key, err)
			}
			return nil
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve %d offsets for channel %s partition %d: %w", n, channel, partition, err)
	}

	return first, nil
}

// advance inserts initial when key is missing, otherwise asks next for the
// replacement document. A concurrent insert of the same key retries the read.
func (c *Controller) advance(
	tc couchbase.TransactionCollection,
	key string,
	initial any,
	next func(res *gocb.TransactionGetResult) (any, bool, error),
) error {
	_, err := c.transactions.Transaction(func(r couchbase.TransactionRunner) error {
		for {
			res, err := r.Get(tc, key)
			switch {
			case err == nil:
			case errors.Is(err, gocb.ErrDocumentNotFound):
				_, err := r.Insert(tc, key, initial)
				switch {
				case err == nil:
					return nil
				case errors.Is(err, gocb.ErrDocumentExists):
					continue
				default:
					return fmt.Errorf("failed to insert %s: %w", key, err)
				}
			default:
				return fmt.Errorf("failed to get %s: %w", key, err)
			}

			doc, changed, err := next(res)
			if err != nil || !changed {
				return err
			}

			if _, err := r.Replace(res, doc); err != nil {
				return fmt.Errorf("failed to replace %s: %w", key, err)
			}
			return nil
		}
	})

	return err
}

// InsertLease fails with gocb.ErrDocumentExists when the message is already leased.
func (c *Controller) InsertLease(ctx context.Context, group, msgID string, offset uint64) error {
	key := hub.LeaseKey(group, msgID)

	lease := hub.Lease{
		ID:        key,
		Group:     group,
		MessageID: msgID,
		Offset:    offset,
		Expires:   time.Now().UTC().Add(hub.LeaseTimeout),
	}

	if err := c.leases.Insert(ctx, key, lease, &gocb.InsertOptions{
		Expiry: hub.LeaseTimeout,
	}); err != nil {
		return fmt.Errorf("failed to insert lease: %w", err)
	}

	return nil
}

// DeleteLease treats a lease that already expired as deleted.
func (c *Controller) DeleteLease(ctx context.Context, group, msgID string) error {
	err := c.leases.Remove(ctx, hub.LeaseKey(group, msgID), nil)
	if err != nil && !errors.Is(err, gocb.ErrDocumentNotFound) {
		return fmt.Errorf("failed to delete lease: %w", err)
	}

	return nil
}

// InsertMessage fails with gocb.ErrDocumentExists for an already written offset.
func (c *Controller) InsertMessage(ctx context.Context, msg hub.Message) error {
	if err := c.messages.Insert(ctx, msg.ID, msg, &gocb.InsertOptions{
		Expiry: MessageRetention,
	}); err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func (c *Controller) LoadMessages(ctx context.Context, channel string, partition int, fromOffset uint64, limit int) ([]hub.Message, error) {
	query := fmt.Sprintf(
		"SELECT RAW m FROM `%s`.`%s`.`%s` m "+
			"WHERE m.channel = $channel AND m.`partition` = $partition AND m.`offset` >= $from "+
			"ORDER BY m.`offset` ASC LIMIT $limit",
		c.bucket,
		c.scope,
		c.messages.Collection().Name(),
	)

	messages, err := c.messages.Query(ctx, query, &gocb.QueryOptions{
		NamedParameters: map[string]any{
			"channel":   channel,
			"partition": partition,
			"from":      fromOffset,
			"limit":     limit,
		},
		ScanConsistency: gocb.QueryScanConsistencyRequestPlus,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}

	return messages, nil
}
