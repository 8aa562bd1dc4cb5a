package raptapi

import (
	"context"
	"net/http"
	"net/url"
)

func contactsPath(userID string) string {
	return "auth/users/" + url.PathEscape(userID) + "/contacts"
}

// Contacts lists the user's remote contacts.
func (c *Client) Contacts(ctx context.Context, token, userID string) ([]Contact, error) {
	var out []Contact
	if err := c.doJSON(ctx, http.MethodGet, contactsPath(userID), token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AddContacts uploads a batch of contacts and returns the created records.
func (c *Client) AddContacts(ctx context.Context, token, userID string, batch []ContactUpload) ([]Contact, error) {
	var out []Contact
	if err := c.doJSON(ctx, http.MethodPost, contactsPath(userID), token, batch, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateContact updates one of the user's remote contacts.
func (c *Client) UpdateContact(ctx context.Context, token, userID string, upd ContactUpdate) (*Contact, error) {
	var out Contact
	if err := c.doJSON(ctx, http.MethodPut, contactsPath(userID), token, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
