package hub

import (
	"fmt"

	"github.com/couchbase/gocb/v2"

	"eventhub/internal/couchbase"
)

type Offset struct {
	ID string `json:"id"`
	N  uint64 `json:"n"`

	couchbase.Cas `json:"-"`
}

func NewOffsetsStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Offset], error) {
	return couchbase.NewCollectionStore[Offset](cluster, bucket, scope, "offsets")
}

func OffsetKey(channel string, partition int) string {
	return fmt.Sprintf("offset::%s::%d", channel, partition)
}
