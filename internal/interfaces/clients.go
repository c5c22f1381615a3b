package interfaces

import (
	"context"

	"github.com/bobmcallan/employee-portal/internal/models"
)

// TokenEndpoint performs grants and revocation against the identity provider.
type TokenEndpoint interface {
	// ExchangeAuthorizationCode redeems an authorization code and persists
	// the resulting token set. codeVerifier is empty when PKCE was not used.
	ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier string) (*models.TokenSet, error)

	// Refresh renews the stored token set. At most one refresh is in flight.
	Refresh(ctx context.Context) (*models.TokenSet, error)

	// Revoke invalidates a token at the provider.
	Revoke(ctx context.Context, token string) error

	// EndSession revokes the stored refresh token and clears the store,
	// serialized with Refresh.
	EndSession(ctx context.Context) error
}

// IdentityProvider is the full client surface used by the portal services.
type IdentityProvider interface {
	TokenEndpoint

	// GetValidAccessToken returns an access token, refreshing it first when
	// it is inside the expiry buffer.
	GetValidAccessToken(ctx context.Context) (string, error)

	// UserInfo fetches the signed-in user's identity.
	UserInfo(ctx context.Context) (*models.UserIdentity, error)

	// PasswordLogin performs a direct access grant.
	PasswordLogin(ctx context.Context, username, password string) (*models.TokenSet, error)

	// IsAuthenticated reports whether the stored session can still be refreshed.
	IsAuthenticated(ctx context.Context) bool
}
