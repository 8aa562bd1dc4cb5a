package store

import (
	"database/sql"
	"time"
)

// GetCredential returns the cached credential, or nil when none is stored
// or the stored row carries no token.
func (db *DB) GetCredential() (*Credential, error) {
	var c Credential
	err := db.QueryRow(`SELECT access_token, phone, user_id, expires_at FROM credentials WHERE id = 1`).
		Scan(&c.AccessToken, &c.Phone, &c.UserID, &c.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.AccessToken == "" {
		return nil, nil
	}
	return &c, nil
}

// SaveCredential replaces the cached credential.
func (db *DB) SaveCredential(c *Credential) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO credentials (id, access_token, phone, user_id, expires_at, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			phone = excluded.phone,
			user_id = excluded.user_id,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		c.AccessToken, c.Phone, c.UserID, c.ExpiresAt, now)
	return err
}

// DeleteCredential removes the cached credential.
func (db *DB) DeleteCredential() error {
	_, err := db.Exec(`DELETE FROM credentials`)
	return err
}
