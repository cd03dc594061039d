package notification

import (
	"encoding/json"
	"fmt"
)

// EventType is the discriminator of a push channel payload.
type EventType string

const (
	EventConnected    EventType = "connected"
	EventInitial      EventType = "initial"
	EventNotification EventType = "notification"
)

// Envelope is the raw JSON payload carried by each server-sent event.
type Envelope struct {
	Type          EventType       `json:"type"`
	Notifications []*Notification `json:"notifications,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// Event is one of Connected, InitialSnapshot or NewNotification.
type Event interface {
	Type() EventType
}

// Connected confirms the subscription was accepted.
type Connected struct{}

// InitialSnapshot replaces the whole feed.
type InitialSnapshot struct {
	Notifications []*Notification
}

// NewNotification is prepended to the feed.
type NewNotification struct {
	Notification *Notification
}

func (Connected) Type() EventType       { return EventConnected }
func (InitialSnapshot) Type() EventType { return EventInitial }
func (NewNotification) Type() EventType { return EventNotification }

// ParseEvent decodes a single event payload.
func ParseEvent(payload []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch env.Type {
	case EventConnected:
		return Connected{}, nil
	case EventInitial:
		return InitialSnapshot{Notifications: env.Notifications}, nil
	case EventNotification:
		if len(env.Data) == 0 || string(env.Data) == "null" {
			return nil, fmt.Errorf("notification event without data")
		}
		var n Notification
		if err := json.Unmarshal(env.Data, &n); err != nil {
			return nil, fmt.Errorf("decode notification event data: %w", err)
		}
		return NewNotification{Notification: &n}, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
}

// NewEnvelope builds the wire payload for an event.
func NewEnvelope(ev Event) (*Envelope, error) {
	env := &Envelope{Type: ev.Type()}
	switch e := ev.(type) {
	case Connected:
	case InitialSnapshot:
		env.Notifications = e.Notifications
		if env.Notifications == nil {
			env.Notifications = []*Notification{}
		}
	case NewNotification:
		data, err := json.Marshal(e.Notification)
		if err != nil {
			return nil, err
		}
		env.Data = data
	default:
		return nil, fmt.Errorf("unsupported event %T", ev)
	}
	return env, nil
}
