package hub

import (
	"fmt"
	"net/http"
	"strings"
)

// AuthLevel controls who may invoke an HTTP-bound function.
type AuthLevel string

const (
	AuthAnonymous AuthLevel = "anonymous"
	AuthFunction  AuthLevel = "function"
)

// DefaultConsumerGroup is the group used when a binding names none.
const DefaultConsumerGroup = "$Default"

// Binding is the host configuration attached to a function. It carries no logic;
// the registration layer reads it to wire a handler to a channel and a route.
type Binding struct {
	// Name is the function name reported to the host.
	Name string
	// Channel is the event stream the function reads from or writes to.
	Channel string
	// Connection is the name of the setting that holds the connection string.
	Connection string
	// ConsumerGroup applies to trigger bindings only.
	ConsumerGroup string
	// Route, Method and AuthLevel apply to HTTP bindings only.
	Route     string
	Method    string
	AuthLevel AuthLevel
}

// Validate checks that the fields required for the binding kind are set.
func (b Binding) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("binding name is required")
	}
	if b.Channel == "" {
		return fmt.Errorf("binding %s: channel is required", b.Name)
	}
	if b.Connection == "" {
		return fmt.Errorf("binding %s: connection is required", b.Name)
	}
	switch b.AuthLevel {
	case "", AuthAnonymous, AuthFunction:
	default:
		return fmt.Errorf("binding %s: unknown auth level %q", b.Name, b.AuthLevel)
	}
	return nil
}

// Group returns the consumer group, falling back to DefaultConsumerGroup.
func (b Binding) Group() string {
	if b.ConsumerGroup == "" {
		return DefaultConsumerGroup
	}
	return b.ConsumerGroup
}

// HTTPMethod returns the upper-cased method, POST when unset.
func (b Binding) HTTPMethod() string {
	if b.Method == "" {
		return http.MethodPost
	}
	return strings.ToUpper(b.Method)
}

// Path returns the route with a single leading slash.
func (b Binding) Path() string {
	return "/" + strings.TrimLeft(b.Route, "/")
}
