// Package couchbase wraps the Couchbase SDK with typed document stores used by
// the channel log.
package couchbase

import (
	"context"
	"errors"
	"fmt"

	"github.com/couchbase/gocb/v2"
)

// Couchbase is a typed store over one collection. Documents embedding Cas get
// their CAS populated on reads.
type Couchbase[T any] struct {
	cluster    *gocb.Cluster
	collection *gocb.Collection
}

// NewCouchbase wraps collection. cluster is needed for N1QL queries.
func NewCouchbase[T any](cluster *gocb.Cluster, collection *gocb.Collection) (*Couchbase[T], error) {
	if cluster == nil || collection == nil {
		return nil, errors.New("invalid Couchbase parameters: cluster and collection must not be nil")
	}

	return &Couchbase[T]{
		cluster:    cluster,
		collection: collection,
	}, nil
}

// NewCollectionStore opens scope.collection in bucket and wraps it.
func NewCollectionStore[T any](cluster *gocb.Cluster, bucket *gocb.Bucket, scope, collection string) (*Couchbase[T], error) {
	if bucket == nil {
		return nil, errors.New("invalid Couchbase parameters: bucket must not be nil")
	}

	return NewCouchbase[T](cluster, bucket.Scope(scope).Collection(collection))
}

// Insert fails with gocb.ErrDocumentExists (wrapped) when key is taken.
func (c *Couchbase[T]) Insert(ctx context.Context, key string, value T, opts *gocb.InsertOptions) error {
	if opts == nil {
		opts = new(gocb.InsertOptions)
	}
	opts.Context = ctx

	if _, err := c.collection.Insert(key, value, opts); err != nil {
		return fmt.Errorf("failed to insert document with key %s: %w", key, err)
	}

	return nil
}

// Get fails with gocb.ErrDocumentNotFound (wrapped) when key is missing.
func (c *Couchbase[T]) Get(ctx context.Context, key string, opts *gocb.GetOptions) (*T, error) {
	if opts == nil {
		opts = new(gocb.GetOptions)
	}
	opts.Context = ctx

	res, err := c.collection.Get(key, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get document with key %s: %w", key, err)
	}

	var v T
	if err := res.Content(&v); err != nil {
		return nil, fmt.Errorf("failed to parse document content for key %s: %w", key, err)
	}

	if s, ok := any(&v).(CasSetter); ok {
		s.SetCas(uint64(res.Cas()))
	}

	return &v, nil
}

// Remove fails with gocb.ErrDocumentNotFound (wrapped) when key is missing.
func (c *Couchbase[T]) Remove(ctx context.Context, key string, opts *gocb.RemoveOptions) error {
	if opts == nil {
		opts = new(gocb.RemoveOptions)
	}
	opts.Context = ctx

	if _, err := c.collection.Remove(key, opts); err != nil {
		return fmt.Errorf("failed to remove document with key %s: %w", key, err)
	}

	return nil
}

// Query runs a N1QL statement and decodes every row into T.
func (c *Couchbase[T]) Query(ctx context.Context, statement string, opts *gocb.QueryOptions) ([]T, error) {
	if opts == nil {
		opts = new(gocb.QueryOptions)
	}
	opts.Context = ctx

	result, err := c.cluster.Query(statement, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer result.Close()

	var items []T
	for result.Next() {
		var item T
		if err := result.Row(&item); err != nil {
			return nil, fmt.Errorf("failed to parse query row: %w", err)
		}
		items = append(items, item)
	}

	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("failed to read query results: %w", err)
	}

	return items, nil
}

// Collection satisfies TransactionCollection.
func (c *Couchbase[T]) Collection() *gocb.Collection {
	return c.collection
}
