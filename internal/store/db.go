package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection for the session's rapt.db.
type DB struct {
	*sql.DB
}

// Open opens the cache at path in WAL mode with foreign keys on.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &DB{db}, nil
}

// PlaceholderPrefix marks message ids that the server has not confirmed yet.
const PlaceholderPrefix = "temp_"

// Stats counts the cached rows. Pending is the number of messages still
// carrying a placeholder id.
type Stats struct {
	Contacts int64
	Rooms    int64
	Messages int64
	Pending  int64
}

// Stats reads every cache count in one query.
func (db *DB) Stats() (Stats, error) {
	var st Stats
	err := db.QueryRow(`
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM chat_rooms),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM messages WHERE substr(msg_id, 1, ?) = ?)`,
		len(PlaceholderPrefix), PlaceholderPrefix,
	).Scan(&st.Contacts, &st.Rooms, &st.Messages, &st.Pending)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return st, nil
}

func (db *DB) count(table string) (int64, error) {
	var n int64
	err := db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&n)
	return n, err
}

// ContactCount returns the number of cached contacts.
func (db *DB) ContactCount() (int64, error) { return db.count("contacts") }

// MessageCount returns the number of cached messages.
func (db *DB) MessageCount() (int64, error) { return db.count("messages") }
