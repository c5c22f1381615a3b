package models

import (
	"errors"
	"time"
)

// AccessTokenExpiryBuffer is subtracted from the access token lifetime so that
// callers refresh before the provider starts rejecting the token.
const AccessTokenExpiryBuffer = 60 * time.Second

// ErrNilTokenSet is returned by token stores asked to save nothing.
var ErrNilTokenSet = errors.New("nil token set")

// TokenSet is the token material returned by the identity provider.
// IssuedAt is stamped by the token store when the set is saved.
type TokenSet struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token,omitempty"`
	IDToken          string    `json:"id_token,omitempty"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresIn *int64    `json:"refresh_expires_in,omitempty"` // nil when the provider did not send it
	Scope            string    `json:"scope,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
}

// Stamped returns a copy issued at the given instant.
func (t *TokenSet) Stamped(issuedAt time.Time) *TokenSet {
	c := t.Clone()
	c.IssuedAt = issuedAt
	return c
}

// Clone returns a deep copy.
func (t *TokenSet) Clone() *TokenSet {
	if t == nil {
		return nil
	}
	c := *t
	if t.RefreshExpiresIn != nil {
		v := *t.RefreshExpiresIn
		c.RefreshExpiresIn = &v
	}
	return &c
}

// AccessExpiresAt is the instant the access token stops being usable,
// without the safety buffer.
func (t *TokenSet) AccessExpiresAt() time.Time {
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// RefreshExpiresAt returns the refresh token expiry, or the zero time when
// the set has no refresh token or no refresh lifetime.
func (t *TokenSet) RefreshExpiresAt() time.Time {
	if t.RefreshToken == "" || t.RefreshExpiresIn == nil {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(*t.RefreshExpiresIn) * time.Second)
}

// AccessExpired reports whether the access token is expired at now,
// counting the 60s buffer.
func (t *TokenSet) AccessExpired(now time.Time) bool {
	return !now.Before(t.AccessExpiresAt().Add(-AccessTokenExpiryBuffer))
}

// RefreshExpired reports whether the session can no longer be renewed at now.
func (t *TokenSet) RefreshExpired(now time.Time) bool {
	if t.RefreshToken == "" || t.RefreshExpiresIn == nil {
		return true
	}
	return !now.Before(t.RefreshExpiresAt())
}

// TokenResponse is the token endpoint's JSON body. Unknown fields are ignored.
type TokenResponse struct {
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	IDToken          string `json:"id_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn *int64 `json:"refresh_expires_in"`
	Scope            string `json:"scope"`
	SessionState     string `json:"session_state"`
}

// TokenSet maps the response to a TokenSet. TokenType defaults to "Bearer".
func (r *TokenResponse) TokenSet() *TokenSet {
	tokenType := r.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	return &TokenSet{
		AccessToken:      r.AccessToken,
		RefreshToken:     r.RefreshToken,
		IDToken:          r.IDToken,
		TokenType:        tokenType,
		ExpiresIn:        r.ExpiresIn,
		RefreshExpiresIn: r.RefreshExpiresIn,
		Scope:            r.Scope,
	}
}

// OAuthErrorResponse is the RFC 6749 §5.2 error body.
type OAuthErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}
