// Package realtime maintains a room's websocket: connect with retry,
// decode and dispatch inbound events, send outbound ones.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedFrame is returned by Decode for frames that are not a valid
// event. The channel logs and drops them.
var ErrMalformedFrame = errors.New("malformed realtime frame")

// EventType tags an Event.
type EventType string

const (
	Online   EventType = "online"
	Offline  EventType = "offline"
	Chat     EventType = "chat"
	Read     EventType = "read"
	Reading  EventType = "reading"
	Away     EventType = "away"
	Typing   EventType = "typing"
	Thinking EventType = "thinking"
)

// Valid reports whether t is one of the known tags.
func (t EventType) Valid() bool {
	switch t {
	case Online, Offline, Chat, Read, Reading, Away, Typing, Thinking:
		return true
	}
	return false
}

// ChatObj is the chat payload. On a chat echo ID is the server message id.
type ChatObj struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// UserObj identifies the user an event is about.
type UserObj struct {
	ID string `json:"id"`
}

// Event is the single wire shape for both directions. ID is the client
// correlation id.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Obj       *ChatObj  `json:"obj,omitempty"`
	User      *UserObj  `json:"user,omitempty"`
	Timestamp string    `json:"timestamp"`
}

// Decode parses a text frame. Unknown fields are ignored.
func Decode(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}
	if !evt.Type.Valid() {
		return Event{}, fmt.Errorf("%w: unknown type %q", ErrMalformedFrame, evt.Type)
	}
	return evt, nil
}

// Encode renders evt as a text frame, stamping the timestamp if unset.
func Encode(evt Event) ([]byte, error) {
	if !evt.Type.Valid() {
		return nil, fmt.Errorf("encode: unknown type %q", evt.Type)
	}
	if evt.Timestamp == "" {
		evt.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(evt)
}
