// Package realtime carries store change notifications to live dashboards.
//
// Subscribers never trust event payloads beyond the event type and row ids:
// a notification only means "something changed, re-fetch".
package realtime

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	// EventResync is emitted after a transport (re)connects; subscribers
	// re-fetch once.
	EventResync EventType = "RESYNC"
)

// TableVisitors is the only table the kiosk publishes changes for.
const TableVisitors = "visitors"

// ChangeEvent is a table-level change notification.
type ChangeEvent struct {
	Type  EventType `json:"type"`
	Table string    `json:"table"`
	IDs   []int64   `json:"ids,omitempty"`
}

// Publisher fans a change out to every subscriber of its table.
type Publisher interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}

// Feed hands out subscriptions scoped to one table.
type Feed interface {
	Subscribe(table string) (*Subscription, error)
	Unsubscribe(sub *Subscription)
}

// FeedPublisher is what the server wires: one transport both ways.
type FeedPublisher interface {
	Feed
	Publisher
}

var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeEvent serialises an event for redis / websocket frames.
func EncodeEvent(ev ChangeEvent) ([]byte, error) {
	return wire.Marshal(ev)
}

// DecodeEvent parses an event from a redis message or a pg_notify payload.
func DecodeEvent(data []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	err := wire.Unmarshal(data, &ev)
	return ev, err
}

// NopPublisher discards events. Used when the database itself notifies.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, ChangeEvent) error { return nil }
