package hub

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"eventhub/internal/couchbase"
)

// LeaseTimeout bounds how long a fetched record stays invisible to other
// instances of the same group.
const LeaseTimeout = time.Minute

type Lease struct {
	ID        string    `json:"id"`
	Group     string    `json:"group"`
	MessageID string    `json:"messageID"`
	Offset    uint64    `json:"offset"`
	Expires   time.Time `json:"expires"`

	couchbase.Cas `json:"-"`
}

func NewLeasesStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Lease], error) {
	return couchbase.NewCollectionStore[Lease](cluster, bucket, scope, "leases")
}

func LeaseKey(group, msgID string) string {
	return fmt.Sprintf("lease::%s::%s", group, msgID)
}
