package raptapi

import (
	"context"
	"net/http"
	"net/url"
)

func refs(ids []string) roomMembers {
	m := roomMembers{Members: make([]Ref, 0, len(ids))}
	for _, id := range ids {
		m.Members = append(m.Members, Ref{ID: id})
	}
	return m
}

// Rooms lists the rooms the user belongs to.
func (c *Client) Rooms(ctx context.Context, token string) ([]Room, error) {
	var out []Room
	if err := c.doJSON(ctx, http.MethodGet, "chat/rooms", token, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateRoom creates a room with the given member user ids. The server
// returns the existing room if one with the same members exists.
func (c *Client) CreateRoom(ctx context.Context, token string, memberIDs []string) (*Room, error) {
	var out Room
	if err := c.doJSON(ctx, http.MethodPost, "chat/rooms", token, refs(memberIDs), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Room fetches a single room.
func (c *Client) Room(ctx context.Context, token, roomID string) (*Room, error) {
	var out Room
	if err := c.doJSON(ctx, http.MethodGet, "chat/rooms/"+url.PathEscape(roomID), token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateRoom replaces a room's member list.
func (c *Client) UpdateRoom(ctx context.Context, token, roomID string, memberIDs []string) (*Room, error) {
	var out Room
	if err := c.doJSON(ctx, http.MethodPut, "chat/rooms/"+url.PathEscape(roomID), token, refs(memberIDs), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteRoom deletes a room.
func (c *Client) DeleteRoom(ctx context.Context, token, roomID string) error {
	return c.doJSON(ctx, http.MethodDelete, "chat/rooms/"+url.PathEscape(roomID), token, nil, nil)
}
