package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ListRooms returns all cached rooms.
func (db *DB) ListRooms() ([]ChatRoom, error) {
	rows, err := db.Query(`SELECT room_id FROM chat_rooms ORDER BY created_at, room_id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var rooms []ChatRoom
	for rows.Next() {
		var r ChatRoom
		if err := rows.Scan(&r.RoomID); err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a room by id, or nil if it is not cached.
func (db *DB) GetRoom(roomID string) (*ChatRoom, error) {
	var r ChatRoom
	err := db.QueryRow(`SELECT room_id FROM chat_rooms WHERE room_id = ?`, roomID).Scan(&r.RoomID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertRoom stores a room (idempotent on room_id).
func (db *DB) InsertRoom(roomID string) error {
	_, err := db.Exec(`
		INSERT INTO chat_rooms (room_id, created_at) VALUES (?, ?)
		ON CONFLICT(room_id) DO NOTHING`, roomID, time.Now().UnixMilli())
	return err
}

// UpsertRoomWithMembers stores a room and links every member in one
// transaction. Existing membership rows are left untouched.
func (db *DB) UpsertRoomWithMembers(roomID string, contactIDs []string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		INSERT INTO chat_rooms (room_id, created_at) VALUES (?, ?)
		ON CONFLICT(room_id) DO NOTHING`, roomID, time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("insert room %q: %w", roomID, err)
	}
	for _, id := range contactIDs {
		if _, err := tx.Exec(`
			INSERT INTO chat_room_members (contact_id, room_id) VALUES (?, ?)
			ON CONFLICT(contact_id, room_id) DO NOTHING`, id, roomID); err != nil {
			return fmt.Errorf("insert member %q: %w", id, err)
		}
	}
	return tx.Commit()
}

// AddMember links a contact to a room. Returns false if the link already existed.
func (db *DB) AddMember(roomID, contactID string) (bool, error) {
	res, err := db.Exec(`
		INSERT INTO chat_room_members (contact_id, room_id) VALUES (?, ?)
		ON CONFLICT(contact_id, room_id) DO NOTHING`, contactID, roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RoomMemberIDs returns the remote contact ids linked to a room.
func (db *DB) RoomMemberIDs(roomID string) ([]string, error) {
	rows, err := db.Query(`SELECT contact_id FROM chat_room_members WHERE room_id = ? ORDER BY contact_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RoomMembers returns the cached contacts linked to a room, skipping any
// contact whose phone equals excludePhone.
func (db *DB) RoomMembers(roomID, excludePhone string) ([]Contact, error) {
	return db.queryContacts(`
		SELECT c.id, c.name, c.phone, c.contact_id, c.user_id, c.is_active, c.is_online, c.last_seen
		FROM chat_room_members m
		JOIN contacts c ON c.id = (
			SELECT id FROM contacts WHERE contact_id = m.contact_id ORDER BY id LIMIT 1
		)
		WHERE m.room_id = ? AND c.phone != ?
		ORDER BY c.id`, roomID, excludePhone)
}

// RoomView joins one room with its members and messages, or returns nil
// if the room is not cached. Members whose phone equals selfPhone are left out.
func (db *DB) RoomView(roomID, selfPhone string) (*RoomView, error) {
	r, err := db.GetRoom(roomID)
	if err != nil || r == nil {
		return nil, err
	}
	return db.roomView(*r, selfPhone)
}

// RoomViews is RoomView for every cached room.
func (db *DB) RoomViews(selfPhone string) ([]RoomView, error) {
	rooms, err := db.ListRooms()
	if err != nil {
		return nil, err
	}
	views := make([]RoomView, 0, len(rooms))
	for _, r := range rooms {
		v, err := db.roomView(r, selfPhone)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (db *DB) roomView(r ChatRoom, selfPhone string) (*RoomView, error) {
	members, err := db.RoomMembers(r.RoomID, selfPhone)
	if err != nil {
		return nil, fmt.Errorf("members of %q: %w", r.RoomID, err)
	}
	msgs, err := db.ListRoomMessages(r.RoomID)
	if err != nil {
		return nil, fmt.Errorf("messages of %q: %w", r.RoomID, err)
	}
	return &RoomView{Room: r, Members: members, Messages: msgs}, nil
}
