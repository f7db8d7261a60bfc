package wire

import (
	"encoding/json"
	"time"
)

// Event is the envelope for every message on the push channel
type Event struct {
	ID        string          `json:"id"`         // Event UUID
	SessionID string          `json:"session_id"` // Session UUID
	Type      EventType       `json:"type"`       // Event type
	Seq       uint64          `json:"seq"`        // Session version the payload reflects
	Timestamp time.Time       `json:"timestamp"`  // Event creation time
	Data      json.RawMessage `json:"data"`       // Event-specific payload

	// Err is set only on locally synthesized Disconnected events
	Err error `json:"-"`
}

// EventType represents the type of session event
type EventType string

const (
	EventTypePlayerJoined   EventType = "playerJoined"
	EventTypeTurnChanged    EventType = "turnChanged"
	EventTypeLetterGuessed  EventType = "letterGuessed"
	EventTypeHintTaken      EventType = "hintTaken"
	EventTypeLetterRevealed EventType = "letterRevealed"
	EventTypePaused         EventType = "paused"
	EventTypeResumed        EventType = "resumed"
	EventTypeFinished       EventType = "finished"
	EventTypeStateSync      EventType = "stateSync"

	// EventTypeDisconnected never crosses the wire. The transport emits it when the
	// remote end closes the push channel.
	EventTypeDisconnected EventType = "disconnected"
)

// Known reports whether t is an event type that carries a state payload
func (t EventType) Known() bool {
	switch t {
	case EventTypePlayerJoined, EventTypeTurnChanged, EventTypeLetterGuessed,
		EventTypeHintTaken, EventTypeLetterRevealed, EventTypePaused,
		EventTypeResumed, EventTypeFinished, EventTypeStateSync:
		return true
	}
	return false
}

// ParseEventState decodes the state document carried by a known event.
// Unknown event types return (nil, nil) so callers can skip them.
func ParseEventState(event *Event) (*StateDoc, error) {
	if !event.Type.Known() {
		return nil, nil
	}

	var doc StateDoc
	if err := json.Unmarshal(event.Data, &doc); err != nil {
		return nil, err
	}
	if doc.Seq == 0 {
		doc.Seq = event.Seq
	}
	return &doc, nil
}

// ClientMessage is what a client may send up the push channel
type ClientMessage struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ClientActionSync asks the server to push a fresh stateSync to the sender
const ClientActionSync = "sync"
