package function

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"eventhub/internal/hub"
	"eventhub/internal/hub/channel"
	"eventhub/internal/hub/consumer"
	"eventhub/internal/hub/producer"
)

var outputBinding = hub.Binding{
	Name:       "EventHubOutput",
	Channel:    "akyleventhub",
	Connection: "hubConnection",
	Route:      "produce",
	Method:     http.MethodPost,
	AuthLevel:  hub.AuthAnonymous,
}

func newProducer(t *testing.T) *producer.Producer {
	p, err := producer.NewProducer(zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestOutputHandler_EmptyBody(t *testing.T) {
	mem := channel.NewMemory()
	h := OutputHandler(outputBinding, newProducer(t), mem, zap.NewNop(), "")

	before := time.Now()
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/produce", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var e hub.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Equal(t, "Test", e.Message)
	assert.False(t, e.Date.Before(before.Add(-time.Second)))
	assert.False(t, e.Date.After(time.Now()))

	assert.Equal(t, 1, mem.Len("akyleventhub"))
}

func TestOutputHandler_MalformedBodyIgnored(t *testing.T) {
	mem := channel.NewMemory()
	h := OutputHandler(outputBinding, newProducer(t), mem, zap.NewNop(), "")

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/produce", strings.NewReader("<<<garbage")))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOutputHandler_WrongMethod(t *testing.T) {
	mem := channel.NewMemory()
	h := OutputHandler(outputBinding, newProducer(t), mem, zap.NewNop(), "")

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/produce", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	assert.Zero(t, mem.Len("akyleventhub"))
}

type brokenPublisher struct{}

func (brokenPublisher) Publish(context.Context, string, ...hub.Event) error {
	return errors.New("broker unavailable")
}

func TestOutputHandler_PublishFailure(t *testing.T) {
	h := OutputHandler(outputBinding, newProducer(t), brokenPublisher{}, zap.NewNop(), "")

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodPost, "/produce", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOutputHandler_FunctionAuth(t *testing.T) {
	b := outputBinding
	b.AuthLevel = hub.AuthFunction

	tests := []struct {
		name   string
		key    string
		header string
		target string
		want   int
	}{
		{name: "header", key: "s3cret", header: "s3cret", target: "/produce", want: http.StatusOK},
		{name: "query", key: "s3cret", target: "/produce?code=s3cret", want: http.StatusOK},
		{name: "wrong key", key: "s3cret", header: "nope", target: "/produce", want: http.StatusUnauthorized},
		{name: "missing key", key: "s3cret", target: "/produce", want: http.StatusUnauthorized},
		{name: "unconfigured key", target: "/produce", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := OutputHandler(b, newProducer(t), channel.NewMemory(), zap.NewNop(), tt.key)

			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			if tt.header != "" {
				req.Header.Set(KeyHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			h(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func pushEvent(t *testing.T, data []byte, id string) event.Event {
	t.Helper()
	e := event.New()
	e.SetID("ce-1")
	e.SetSource("//pubsub.googleapis.com/projects/p/topics/akyleventhub")
	e.SetType("google.cloud.pubsub.topic.v1.messagePublished")
	e.SetTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	var m pushMessage
	m.Message.Data = data
	m.Message.MessageID = id
	m.Message.Attributes = map[string]string{"k": "v"}
	require.NoError(t, e.SetData(event.ApplicationJSON, m))
	return e
}

func TestTriggerHandler_DeliversOneRecord(t *testing.T) {
	var got []hub.Record
	h := hub.BatchHandlerFunc(func(_ context.Context, records []hub.Record) error {
		got = append(got, records...)
		return nil
	})

	fn := TriggerHandler(hub.Binding{Name: "EventHubTrigger", Channel: "akyleventhub"}, h, zap.NewNop())
	require.NoError(t, fn(context.Background(), pushEvent(t, []byte(`{"Message":"Test"}`), "42")))

	require.Len(t, got, 1)
	assert.Equal(t, "42", got[0].ID)
	assert.Equal(t, "akyleventhub", got[0].Channel)
	assert.Equal(t, `{"Message":"Test"}`, string(got[0].Body))
	assert.Equal(t, "v", got[0].Properties["k"])
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), got[0].EnqueuedAt)
}

func TestTriggerHandler_FallsBackToEventID(t *testing.T) {
	var got hub.Record
	h := hub.BatchHandlerFunc(func(_ context.Context, records []hub.Record) error {
		got = records[0]
		return nil
	})

	fn := TriggerHandler(hub.Binding{Name: "EventHubTrigger", Channel: "akyleventhub"}, h, zap.NewNop())
	require.NoError(t, fn(context.Background(), pushEvent(t, []byte("x"), "")))

	assert.Equal(t, "ce-1", got.ID)
}

func TestTriggerHandler_PropagatesFailure(t *testing.T) {
	failure := errors.New("e1")
	step := func(context.Context, *zap.Logger, hub.Record) error { return failure }
	h, err := consumer.NewHandler(zap.NewNop(), consumer.WithStep(step))
	require.NoError(t, err)

	fn := TriggerHandler(hub.Binding{Name: "EventHubTrigger", Channel: "akyleventhub"}, h, zap.NewNop())

	assert.Same(t, failure, fn(context.Background(), pushEvent(t, []byte("x"), "1")))
}

func TestTriggerHandler_BadData(t *testing.T) {
	h := hub.BatchHandlerFunc(func(context.Context, []hub.Record) error { return nil })
	fn := TriggerHandler(hub.Binding{Name: "EventHubTrigger", Channel: "akyleventhub"}, h, zap.NewNop())

	e := event.New()
	e.SetID("bad")
	e.SetSource("test")
	e.SetType("test")
	require.NoError(t, e.SetData(event.ApplicationJSON, []byte(`"not an object"`)))

	assert.Error(t, fn(context.Background(), e))
}

func TestRegister_RejectsInvalidBindings(t *testing.T) {
	noop := func(http.ResponseWriter, *http.Request) {}
	trigger := func(context.Context, event.Event) error { return nil }

	err := Register(hub.Binding{}, noop, hub.Binding{}, trigger)
	assert.Error(t, err)

	b := outputBinding
	b.Route = ""
	err = Register(b, noop, hub.Binding{Name: "t", Channel: "c", Connection: "k"}, trigger)
	assert.ErrorContains(t, err, "route is required")
}
