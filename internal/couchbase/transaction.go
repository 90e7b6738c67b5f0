package couchbase

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// DefaultTransactionTimeout bounds a single checkpoint transaction.
const DefaultTransactionTimeout = 10 * time.Second

// Transactions runs attempts inside Couchbase distributed transactions.
type Transactions struct {
	cluster *gocb.Cluster
	options gocb.TransactionOptions
}

func NewTransactions(cluster *gocb.Cluster) (*Transactions, error) {
	if cluster == nil {
		return nil, fmt.Errorf("couchbase cluster cannot be nil")
	}

	return &Transactions{
		cluster: cluster,
		options: gocb.TransactionOptions{
			DurabilityLevel: gocb.DurabilityLevelNone,
			Timeout:         DefaultTransactionTimeout,
		},
	}, nil
}

// Transaction runs fn, retried by the SDK on conflicts, and returns the
// transaction ID once committed.
func (t *Transactions) Transaction(fn TransactionAttempt) (string, error) {
	opts := t.options
	res, err := t.cluster.Transactions().Run(func(actx *gocb.TransactionAttemptContext) error {
		return fn(attempt{ctx: actx})
	}, &opts)
	if err != nil {
		return "", fmt.Errorf("failed to run transaction: %w", err)
	}

	return res.TransactionID, nil
}

type attempt struct {
	ctx *gocb.TransactionAttemptContext
}

func (a attempt) Get(tc TransactionCollection, key string) (*gocb.TransactionGetResult, error) {
	return a.ctx.Get(tc.Collection(), key)
}

func (a attempt) Insert(tc TransactionCollection, key string, value any) (*gocb.TransactionGetResult, error) {
	return a.ctx.Insert(tc.Collection(), key, value)
}

func (a attempt) Replace(doc *gocb.TransactionGetResult, value any) (*gocb.TransactionGetResult, error) {
	return a.ctx.Replace(doc, value)
}

// TransactionRunner is the view of a transaction attempt given to callers.
type TransactionRunner interface {
	Get(tc TransactionCollection, key string) (*gocb.TransactionGetResult, error)
	Insert(tc TransactionCollection, key string, value any) (*gocb.TransactionGetResult, error)
	Replace(doc *gocb.TransactionGetResult, value any) (*gocb.TransactionGetResult, error)
}

// TransactionCollection is anything backed by a collection.
type TransactionCollection interface {
	Collection() *gocb.Collection
}

type TransactionAttempt func(t TransactionRunner) error
