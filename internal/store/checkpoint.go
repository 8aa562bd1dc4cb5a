package store

import (
	"database/sql"
	"time"
)

// Checkpoint keys written by the sync engines.
const (
	CheckpointContactsSync = "contacts.last_sync"
	CheckpointChatsSync    = "chats.last_sync"
)

// SetCheckpoint records a sync checkpoint value.
func (db *DB) SetCheckpoint(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// Checkpoint returns a sync checkpoint value, or "" if it was never set.
func (db *DB) Checkpoint(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
