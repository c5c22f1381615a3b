package keycloak

import (
	"context"

	"github.com/bobmcallan/employee-portal/internal/models"
)

// Discovery is the subset of the OpenID provider metadata the portal reads.
type Discovery struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint"`
	EndSessionEndpoint            string   `json:"end_session_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	JWKSURI                       string   `json:"jwks_uri"`
	ScopesSupported               []string `json:"scopes_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

// SupportsPKCE reports whether the provider advertises the S256 method.
func (d *Discovery) SupportsPKCE() bool {
	for _, m := range d.CodeChallengeMethodsSupported {
		if m == "S256" {
			return true
		}
	}
	return false
}

// UserInfo fetches the signed-in user's identity, refreshing the access
// token first when needed.
func (c *Client) UserInfo(ctx context.Context) (*models.UserIdentity, error) {
	token, err := c.GetValidAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var claims keycloakClaims
	if err := c.getJSON(ctx, "userinfo", c.endpoints.UserInfo, token, &claims); err != nil {
		return nil, err
	}
	return claims.identity(), nil
}

// Discover reads the realm's OpenID provider metadata.
func (c *Client) Discover(ctx context.Context) (*Discovery, error) {
	var d Discovery
	if err := c.getJSON(ctx, "discovery", c.endpoints.Discovery, "", &d); err != nil {
		return nil, err
	}
	return &d, nil
}
