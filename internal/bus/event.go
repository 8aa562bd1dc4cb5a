package bus

import "time"

// Event kinds published on the bus. Subscribers filter by prefix, e.g.
// "presence." receives every pass-through presence signal.
const (
	KindStatusChanged   = "session.status_changed"
	KindLoggedIn        = "auth.logged_in"
	KindLoggedOut       = "auth.logged_out"
	KindContactsSynced  = "contacts.synced"
	KindContactsFailed  = "contacts.sync_failed"
	KindChatsSynced     = "chats.synced"
	KindChatsFailed     = "chats.sync_failed"
	KindRoomCreated     = "chats.room_created"
	KindMessageUpserted = "message.upserted"
	KindMessageRead     = "message.read"
	KindRealtimeState   = "realtime.state_changed"
	PresencePrefix      = "presence."
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// MessageRef identifies a message inside a room.
type MessageRef struct {
	RoomID string `json:"room_id"`
	MsgID  string `json:"msg_id"`
}

// Presence is the payload of presence.* events.
type Presence struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id,omitempty"`
	MsgID  string `json:"msg_id,omitempty"`
}

// RealtimeState is the payload of realtime.state_changed events.
type RealtimeState struct {
	RoomID string `json:"room_id"`
	State  string `json:"state"`
}

// Identity is the payload of auth.* events.
type Identity struct {
	Phone  string `json:"phone"`
	UserID string `json:"user_id"`
}
