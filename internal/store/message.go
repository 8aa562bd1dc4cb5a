package store

import (
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, msg_id, COALESCE(socket_message_id, ''), sender_id, room_id, body, is_read, timestamp`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	if err := row.Scan(&m.ID, &m.MsgID, &m.SocketMessageID, &m.SenderID, &m.RoomID, &m.Body, &m.IsRead, &m.Timestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

func (db *DB) queryMessage(q string, args ...any) (*Message, error) {
	m, err := scanMessage(db.QueryRow(q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// InsertMessage stores a message unless one with the same MsgID exists.
// Returns false when the message was already cached.
func (db *DB) InsertMessage(m *Message) (bool, error) {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO messages (msg_id, socket_message_id, sender_id, room_id, body, is_read, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO NOTHING`,
		m.MsgID, nullable(m.SocketMessageID), m.SenderID, m.RoomID, m.Body, m.IsRead, m.Timestamp, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		m.ID, err = res.LastInsertId()
	}
	return n > 0, err
}

// GetMessage returns a message by server (or placeholder) id.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	return db.queryMessage(`SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID)
}

// GetMessageBySocketID returns the first message carrying the correlation id.
func (db *DB) GetMessageBySocketID(socketMessageID string) (*Message, error) {
	return db.queryMessage(`SELECT `+messageColumns+` FROM messages WHERE socket_message_id = ? ORDER BY id LIMIT 1`, socketMessageID)
}

// ConfirmMessage replaces the placeholder id of the message with the given
// correlation id by its server id. If the server id is already cached the
// placeholder row is dropped instead, so a server id never appears twice.
func (db *DB) ConfirmMessage(socketMessageID, serverMsgID string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var rowID int64
	var current string
	err = tx.QueryRow(`SELECT id, msg_id FROM messages WHERE socket_message_id = ? ORDER BY id LIMIT 1`, socketMessageID).
		Scan(&rowID, &current)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find placeholder: %w", err)
	}
	if current == serverMsgID {
		return tx.Commit()
	}

	var existing int64
	err = tx.QueryRow(`SELECT id FROM messages WHERE msg_id = ?`, serverMsgID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`UPDATE messages SET msg_id = ? WHERE id = ?`, serverMsgID, rowID); err != nil {
			return fmt.Errorf("confirm %q: %w", serverMsgID, err)
		}
	case err != nil:
		return fmt.Errorf("find confirmed: %w", err)
	default:
		if _, err := tx.Exec(`UPDATE messages SET socket_message_id = ? WHERE id = ?`, socketMessageID, existing); err != nil {
			return fmt.Errorf("link confirmed: %w", err)
		}
		if _, err := tx.Exec(`DELETE FROM messages WHERE id = ?`, rowID); err != nil {
			return fmt.Errorf("drop placeholder: %w", err)
		}
	}
	return tx.Commit()
}

// MarkMessageRead sets is_read on the message with the given server id.
// Returns false when no such message is cached.
func (db *DB) MarkMessageRead(msgID string) (bool, error) {
	res, err := db.Exec(`UPDATE messages SET is_read = 1 WHERE msg_id = ?`, msgID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ListRoomMessages returns the messages of a room, oldest first.
func (db *DB) ListRoomMessages(roomID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE room_id = ?
		ORDER BY timestamp ASC, id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
