// Package function binds the event hub handlers to the Functions Framework.
// Bindings are plain configuration values; nothing here decides what a
// function does, only how the host reaches it.
package function

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"go.uber.org/zap"

	"eventhub/internal/hub"
)

const (
	// KeyHeader carries the function key for AuthFunction bindings.
	KeyHeader = "x-functions-key"
	// KeyQuery is the query parameter alternative to KeyHeader.
	KeyQuery = "code"
)

// Producer creates the event returned by an output function.
type Producer interface {
	Produce(ctx context.Context, r *http.Request) hub.Event
}

// OutputHandler serves an output binding: the event returned by p is published
// on the binding's channel and then written back as JSON. key is only consulted
// for AuthFunction bindings.
func OutputHandler(b hub.Binding, p Producer, publisher hub.Publisher, logger *zap.Logger, key string) http.HandlerFunc {
	method := b.HTTPMethod()
	logger = logger.With(zap.String("function", b.Name), zap.String("channel", b.Channel))

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}

		if b.AuthLevel == hub.AuthFunction && !authorized(r, key) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		e := p.Produce(r.Context(), r)

		if err := publisher.Publish(r.Context(), b.Channel, e); err != nil {
			logger.Error("failed to publish event", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(e); err != nil {
			logger.Warn("failed to write response", zap.Error(err))
		}
	}
}

func authorized(r *http.Request, key string) bool {
	if key == "" {
		return false
	}
	got := r.Header.Get(KeyHeader)
	if got == "" {
		got = r.URL.Query().Get(KeyQuery)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(key)) == 1
}

// pushMessage is the Pub/Sub message envelope carried in CloudEvent data.
type pushMessage struct {
	Message struct {
		Data        []byte            `json:"data"`
		Attributes  map[string]string `json:"attributes"`
		MessageID   string            `json:"messageId"`
		PublishTime time.Time         `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// TriggerHandler adapts a Pub/Sub CloudEvent into a one-record batch for h.
// The batch outcome is returned to the host unchanged.
func TriggerHandler(b hub.Binding, h hub.BatchHandler, logger *zap.Logger) func(context.Context, event.Event) error {
	logger = logger.With(zap.String("function", b.Name), zap.String("channel", b.Channel))

	return func(ctx context.Context, e event.Event) error {
		var m pushMessage
		if err := e.DataAs(&m); err != nil {
			logger.Error("failed to decode event data", zap.String("event_id", e.ID()), zap.Error(err))
			return fmt.Errorf("failed to decode event data: %w", err)
		}

		record := hub.Record{
			ID:         m.Message.MessageID,
			Channel:    b.Channel,
			Body:       m.Message.Data,
			Properties: m.Message.Attributes,
			EnqueuedAt: m.Message.PublishTime,
		}
		if record.ID == "" {
			record.ID = e.ID()
		}
		if record.EnqueuedAt.IsZero() {
			record.EnqueuedAt = e.Time()
		}

		return h.Handle(ctx, []hub.Record{record})
	}
}

// Register binds the output function under its route and the trigger function
// under its name with the Functions Framework.
func Register(output hub.Binding, outputFn http.HandlerFunc, trigger hub.Binding, triggerFn func(context.Context, event.Event) error) error {
	if err := output.Validate(); err != nil {
		return fmt.Errorf("invalid output binding: %w", err)
	}
	if err := trigger.Validate(); err != nil {
		return fmt.Errorf("invalid trigger binding: %w", err)
	}

	route := strings.Trim(output.Route, "/")
	if route == "" {
		return fmt.Errorf("output binding %s: route is required", output.Name)
	}

	functions.HTTP(route, outputFn)
	functions.CloudEvent(trigger.Name, triggerFn)

	return nil
}
