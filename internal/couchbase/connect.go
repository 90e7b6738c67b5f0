package couchbase

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"
)

// ConnectConfig describes how to reach a cluster and which bucket to open.
type ConnectConfig struct {
	ConnectionString string
	Username         string
	Password         string
	Bucket           string
	ReadyTimeout     time.Duration
}

// Connect opens the cluster and waits for the bucket to become ready.
func Connect(config ConnectConfig) (*gocb.Cluster, *gocb.Bucket, error) {
	cluster, err := gocb.Connect(config.ConnectionString, gocb.ClusterOptions{
		Authenticator: gocb.PasswordAuthenticator{
			Username: config.Username,
			Password: config.Password,
		},
		TimeoutsConfig: gocb.TimeoutsConfig{
			ConnectTimeout: 10 * time.Second,
			KVTimeout:      5 * time.Second,
			QueryTimeout:   30 * time.Second,
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to cluster: %w", err)
	}

	timeout := config.ReadyTimeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	bucket := cluster.Bucket(config.Bucket)
	if err := bucket.WaitUntilReady(timeout, nil); err != nil {
		_ = cluster.Close(nil)
		return nil, nil, fmt.Errorf("bucket %s not ready: %w", config.Bucket, err)
	}

	return cluster, bucket, nil
}
