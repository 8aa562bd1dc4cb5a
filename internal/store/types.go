package store

import "time"

// Credential is the cached bearer token and the identity it belongs to.
// ExpiresAt is an absolute deadline in epoch milliseconds.
type Credential struct {
	AccessToken string
	Phone       string
	UserID      string
	ExpiresAt   int64
}

// Valid reports whether the credential can still be used at now.
func (c *Credential) Valid(now time.Time) bool {
	return now.UnixMilli() < c.ExpiresAt
}

// Contact is a cached address book entry. Phone is the merge key against
// device contacts and remote records; ContactID is the remote user id.
type Contact struct {
	ID        int64
	Name      string
	Phone     string
	ContactID string
	UserID    string
	IsActive  bool
	IsOnline  bool
	LastSeen  int64
}

// ChatRoom is a server-assigned chat room.
type ChatRoom struct {
	RoomID string
}

// Message is a cached chat message. MsgID holds either the server id or,
// for an unconfirmed local send, a placeholder id. SocketMessageID is the
// correlation id used to match the placeholder to its server echo.
type Message struct {
	ID              int64
	MsgID           string
	SocketMessageID string
	SenderID        string
	RoomID          string
	Body            string
	IsRead          bool
	Timestamp       int64
}

// RoomView is a room joined with its members and ordered messages.
type RoomView struct {
	Room     ChatRoom
	Members  []Contact
	Messages []Message
}
