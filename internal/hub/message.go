package hub

import (
	"fmt"
	"time"

	"github.com/couchbase/gocb/v2"

	"eventhub/internal/couchbase"
)

// Message is the stored form of a record in the channel log.
type Message struct {
	ID           string            `json:"id"`
	Channel      string            `json:"channel"`
	Partition    int               `json:"partition"`
	Offset       uint64            `json:"offset"`
	Body         []byte            `json:"body"`
	Properties   map[string]string `json:"properties,omitempty"`
	EnqueuedTime time.Time         `json:"enqueuedTime"`

	couchbase.Cas `json:"-"`
}

// Record converts the stored message into the form handed to consumers.
func (m Message) Record() Record {
	return Record{
		ID:         m.ID,
		Channel:    m.Channel,
		Partition:  m.Partition,
		Offset:     m.Offset,
		Body:       m.Body,
		Properties: m.Properties,
		EnqueuedAt: m.EnqueuedTime,
	}
}

func NewMessagesStore(cluster *gocb.Cluster, bucket *gocb.Bucket, scope string) (*couchbase.Couchbase[Message], error) {
	return couchbase.NewCollectionStore[Message](cluster, bucket, scope, "messages")
}

func MessageKey(channel string, partition int, offset uint64) string {
	return fmt.Sprintf("message::%s::%d::%d", channel, partition, offset)
}
