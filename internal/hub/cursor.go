package hub

import (
	"fmt"

	"github.com/couchbase/gocb/v2"

	"eventhub/internal/couchbase"
)

type Cursor struct {
	ID        string `json:"id"`
	Channel   string `json:"channel"`
	Group     string `json:"group"`
	Partition int    `json:"partition"`
	Offset    uint64 `json:"offset"`

	couchbase.Cas `json:"-"`
}

func NewCursorsStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Cursor], error) {
	return couchbase.NewCollectionStore[Cursor](cluster, bucket, scope, "cursors")
}

func CursorKey(channel, group string, partition int) string {
	return fmt.Sprintf("cursor::%s::%s::%d", channel, group, partition)
}
