package raptapi

import (
	"strings"
	"time"
)

// LoginResponse is returned by auth/login once the OTP has been sent.
type LoginResponse struct {
	Message string `json:"message"`
	Phone   string `json:"phone"`
	Success bool   `json:"success"`
}

// TokenResponse is returned by auth/verify and auth/refresh. ExpiresIn is
// in seconds.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// User is a Rapt user profile.
type User struct {
	ID         string `json:"id"`
	Phone      string `json:"phone"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	IsVerified bool   `json:"is_verified"`
	LastSeen   string `json:"last_seen,omitempty"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// ProfileUpdate is the body of PUT auth/users/{id}. Nil fields are omitted.
type ProfileUpdate struct {
	Name           *string `json:"name,omitempty"`
	DeviceFCMToken *string `json:"device_fcm_token,omitempty"`
}

// Contact is a contact record owned by a user. ContactID is the Rapt user
// the phone belongs to, if any.
type Contact struct {
	UserID    string `json:"user_id"`
	ContactID string `json:"contact_id"`
	IsActive  bool   `json:"is_active"`
	Phone     string `json:"phone"`
	Name      string `json:"name"`
}

// ContactUpload is one entry of the POST contacts batch.
type ContactUpload struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
}

// ContactUpdate is the body of PUT auth/users/{id}/contacts.
type ContactUpdate struct {
	Name      *string `json:"name,omitempty"`
	UserID    *string `json:"user_id,omitempty"`
	ContactID *string `json:"contact_id,omitempty"`
}

// Ref is an {"id": ...} reference.
type Ref struct {
	ID string `json:"id"`
}

// Room is a chat room with its members and messages.
type Room struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at,omitempty"`
	Members   []User `json:"members"`
	Chats     []Chat `json:"room_chats"`
}

// Chat is a message as stored by the server.
type Chat struct {
	ID        string `json:"id"`
	Message   string `json:"message"`
	IsRead    bool   `json:"is_read"`
	Sender    Ref    `json:"sender"`
	Room      Ref    `json:"room"`
	CreatedAt string `json:"created_at"`
}

type roomMembers struct {
	Members []Ref `json:"members"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// ParseTime parses the server's timestamps, which may lack a zone (UTC is
// assumed). ok is false for empty or unrecognized input.
func ParseTime(s string) (t time.Time, ok bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
