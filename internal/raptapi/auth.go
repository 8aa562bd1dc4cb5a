package raptapi

import (
	"context"
	"net/http"
	"net/url"
)

// Login asks the server to send an OTP to phone.
func (c *Client) Login(ctx context.Context, phone string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.postForm(ctx, "auth/login", url.Values{"phone": {phone}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify exchanges an OTP for an access token.
func (c *Client) Verify(ctx context.Context, code, phone string) (*TokenResponse, error) {
	form := url.Values{
		"phone_verification_code": {code},
		"phone":                   {phone},
	}
	var out TokenResponse
	if err := c.postForm(ctx, "auth/verify", form, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges an expired access token for a new one.
func (c *Client) Refresh(ctx context.Context, accessToken string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.postForm(ctx, "auth/refresh", url.Values{"access_token": {accessToken}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the profile of the token's owner.
func (c *Client) Me(ctx context.Context, token string) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "auth/me", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile updates the user's name and/or push token.
func (c *Client) UpdateProfile(ctx context.Context, token, userID string, upd ProfileUpdate) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodPut, "auth/users/"+url.PathEscape(userID), token, upd, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
