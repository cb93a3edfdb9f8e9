package pubsub

import (
	"context"
	"encoding/json"
	"strings"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "graph/<session>", "sessions")
	Type    string          `json:"type"`    // Event type (e.g., "updated", "removed", "stale")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// SessionsTopic carries session registration and focus changes
const SessionsTopic = "sessions"

const graphTopicPrefix = "graph/"

// GraphTopic is the topic viewers of one notebook session subscribe to
func GraphTopic(session string) string {
	return graphTopicPrefix + session
}

// SessionFromTopic extracts the session from a graph topic
func SessionFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, graphTopicPrefix) {
		return "", false
	}
	return strings.TrimPrefix(topic, graphTopicPrefix), true
}

// Graph event types
const (
	EventUpdated         = "updated"
	EventRemoved         = "removed"
	EventDownlinks       = "downlinks"
	EventStale           = "stale"
	EventFresh           = "fresh"
	EventOrder           = "order"
	EventContents        = "contents"
	EventSeeded          = "seeded"
	EventExecutionFailed = "execution_failed"
	EventFocus           = "focus"
	EventRegistered      = "registered"
)

// GraphChange tells viewers a session graph moved to a new revision.
// Viewers re-derive their node and edge sets from a fresh snapshot.
type GraphChange struct {
	Session  string   `json:"session"`
	Revision uint64   `json:"revision"`
	Cells    []string `json:"cells,omitempty"` // cells the change touched directly
}

// ExecutionFailed reports a kernel failure that left the graph untouched
type ExecutionFailed struct {
	Session string `json:"session"`
	Cell    string `json:"cell"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// SessionStatus describes the focused session and the active cell
type SessionStatus struct {
	Session  string `json:"session"`
	Active   string `json:"active,omitempty"`
	Previous string `json:"previous,omitempty"`
}
