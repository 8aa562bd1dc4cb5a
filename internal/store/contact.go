package store

import (
	"database/sql"
	"time"
)

const contactColumns = `id, name, phone, contact_id, user_id, is_active, is_online, last_seen`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	if err := row.Scan(&c.ID, &c.Name, &c.Phone, &c.ContactID, &c.UserID, &c.IsActive, &c.IsOnline, &c.LastSeen); err != nil {
		return nil, err
	}
	return &c, nil
}

func (db *DB) queryContacts(q string, args ...any) ([]Contact, error) {
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, *c)
	}
	return contacts, rows.Err()
}

func (db *DB) queryContact(q string, args ...any) (*Contact, error) {
	c, err := scanContact(db.QueryRow(q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListContacts returns all contacts in insertion order.
func (db *DB) ListContacts() ([]Contact, error) {
	return db.queryContacts(`SELECT ` + contactColumns + ` FROM contacts ORDER BY id`)
}

// SearchContacts returns contacts whose name or phone contains query.
func (db *DB) SearchContacts(query string) ([]Contact, error) {
	return db.queryContacts(`
		SELECT `+contactColumns+` FROM contacts
		WHERE name LIKE '%' || ? || '%' OR phone LIKE '%' || ? || '%'
		ORDER BY id`, query, query)
}

// GetContactByPhone returns the first contact with the given phone.
func (db *DB) GetContactByPhone(phone string) (*Contact, error) {
	return db.queryContact(`SELECT `+contactColumns+` FROM contacts WHERE phone = ? ORDER BY id LIMIT 1`, phone)
}

// GetContactByContactID returns the first contact with the given remote id.
func (db *DB) GetContactByContactID(contactID string) (*Contact, error) {
	return db.queryContact(`SELECT `+contactColumns+` FROM contacts WHERE contact_id = ? ORDER BY id LIMIT 1`, contactID)
}

// InsertContact stores a new contact and sets c.ID.
func (db *DB) InsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	res, err := db.Exec(`
		INSERT INTO contacts (name, phone, contact_id, user_id, is_active, is_online, last_seen, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.Name, c.Phone, c.ContactID, c.UserID, c.IsActive, c.IsOnline, c.LastSeen, now)
	if err != nil {
		return err
	}
	c.ID, err = res.LastInsertId()
	return err
}

// UpdateContact overwrites the mutable fields of an existing contact.
func (db *DB) UpdateContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE contacts SET
			name = ?, contact_id = ?, user_id = ?, is_active = ?, is_online = ?, last_seen = ?, updated_at = ?
		WHERE id = ?`,
		c.Name, c.ContactID, c.UserID, c.IsActive, c.IsOnline, c.LastSeen, now, c.ID)
	return err
}

// MarkContactOnline flags the contact with the given remote id as online.
// Returns false when no such contact is cached.
func (db *DB) MarkContactOnline(contactID string, lastSeen int64) (bool, error) {
	res, err := db.Exec(`
		UPDATE contacts SET is_online = 1, last_seen = ?, updated_at = ?
		WHERE contact_id = ?`, lastSeen, time.Now().UnixMilli(), contactID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteContact removes a contact by local id.
func (db *DB) DeleteContact(id int64) (bool, error) {
	res, err := db.Exec(`DELETE FROM contacts WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
