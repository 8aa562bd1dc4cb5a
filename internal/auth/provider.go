// Package auth owns the session credential: login, OTP verification,
// refresh on expiry and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/raptchat/rapt/internal/bus"
	"github.com/raptchat/rapt/internal/raptapi"
	"github.com/raptchat/rapt/internal/store"
)

var (
	// ErrAuthenticationMissing means there is no cached credential and the
	// user has to log in.
	ErrAuthenticationMissing = errors.New("not logged in")
	// ErrRefreshFailed wraps the cause of a failed token refresh.
	ErrRefreshFailed = errors.New("credential refresh failed")
	ErrPhoneRequired = errors.New("phone is required")
)

// API is the subset of the Rapt REST API the provider calls.
type API interface {
	Login(ctx context.Context, phone string) (*raptapi.LoginResponse, error)
	Verify(ctx context.Context, code, phone string) (*raptapi.TokenResponse, error)
	Refresh(ctx context.Context, accessToken string) (*raptapi.TokenResponse, error)
	Me(ctx context.Context, token string) (*raptapi.User, error)
	UpdateProfile(ctx context.Context, token, userID string, upd raptapi.ProfileUpdate) (*raptapi.User, error)
}

// CredentialStore persists the single session credential.
type CredentialStore interface {
	GetCredential() (*store.Credential, error)
	SaveCredential(c *store.Credential) error
	DeleteCredential() error
}

// Provider hands out a usable credential, refreshing it once when expired.
// Concurrent callers that both see an expired credential both refresh.
type Provider struct {
	api    API
	store  CredentialStore
	bus    *bus.Bus
	logger *zap.Logger
	now    func() time.Time
}

// NewProvider creates a Provider.
func NewProvider(api API, st CredentialStore, b *bus.Bus, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		api:    api,
		store:  st,
		bus:    b,
		logger: logger,
		now:    time.Now,
	}
}

// CurrentCredential returns the cached credential, refreshing it if it has
// expired. Returns nil, nil when nobody is logged in. A failed refresh is
// returned as ErrRefreshFailed and is not retried.
func (p *Provider) CurrentCredential(ctx context.Context) (*store.Credential, error) {
	cred, err := p.load()
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}
	if cred.Valid(p.now()) {
		return cred, nil
	}

	p.logger.Info("credential expired, refreshing", zap.String("user_id", cred.UserID))
	tok, err := p.api.Refresh(ctx, cred.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	fresh, err := p.establish(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	p.logger.Info("credential refreshed", zap.Int64("expires_at", fresh.ExpiresAt))
	return fresh, nil
}

// Require is CurrentCredential but reports absence as ErrAuthenticationMissing.
func (p *Provider) Require(ctx context.Context) (*store.Credential, error) {
	cred, err := p.CurrentCredential(ctx)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, ErrAuthenticationMissing
	}
	return cred, nil
}

// Token returns a usable bearer token.
func (p *Provider) Token(ctx context.Context) (string, error) {
	cred, err := p.Require(ctx)
	if err != nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Login requests an OTP for phone.
func (p *Provider) Login(ctx context.Context, phone string) (*raptapi.LoginResponse, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrPhoneRequired
	}
	resp, err := p.api.Login(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	return resp, nil
}

// Verify exchanges the OTP for a token, fetches the profile and persists a
// fresh credential.
func (p *Provider) Verify(ctx context.Context, code, phone string) (*store.Credential, error) {
	tok, err := p.api.Verify(ctx, strings.TrimSpace(code), strings.TrimSpace(phone))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	cred, err := p.establish(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	p.logger.Info("logged in", zap.String("user_id", cred.UserID))
	p.bus.Emit(bus.KindLoggedIn, bus.Identity{Phone: cred.Phone, UserID: cred.UserID})
	return cred, nil
}

// Logout forgets the cached credential.
func (p *Provider) Logout() error {
	prev, _ := p.load()
	if err := p.store.DeleteCredential(); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if prev != nil {
		p.bus.Emit(bus.KindLoggedOut, bus.Identity{Phone: prev.Phone, UserID: prev.UserID})
	}
	return nil
}

// Profile fetches the logged-in user's profile.
func (p *Provider) Profile(ctx context.Context) (*raptapi.User, error) {
	cred, err := p.Require(ctx)
	if err != nil {
		return nil, err
	}
	return p.api.Me(ctx, cred.AccessToken)
}

// UpdateProfile changes the user's display name and/or push token.
func (p *Provider) UpdateProfile(ctx context.Context, upd raptapi.ProfileUpdate) (*raptapi.User, error) {
	cred, err := p.Require(ctx)
	if err != nil {
		return nil, err
	}
	return p.api.UpdateProfile(ctx, cred.AccessToken, cred.UserID, upd)
}

// establish turns a token response into a persisted credential.
func (p *Provider) establish(ctx context.Context, tok *raptapi.TokenResponse) (*store.Credential, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, errors.New("empty access token")
	}
	me, err := p.api.Me(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	cred := &store.Credential{
		AccessToken: tok.AccessToken,
		Phone:       me.Phone,
		UserID:      me.ID,
		ExpiresAt:   p.now().UnixMilli() + tok.ExpiresIn*1000,
	}
	if err := p.store.SaveCredential(cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	return cred, nil
}

func (p *Provider) load() (*store.Credential, error) {
	cred, err := p.store.GetCredential()
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}
