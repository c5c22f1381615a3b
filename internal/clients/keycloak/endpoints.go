package keycloak

import "strings"

// Endpoints are the realm's OpenID Connect URLs.
type Endpoints struct {
	Authorization string
	Token         string
	UserInfo      string
	Logout        string
	Revocation    string
	Discovery     string
}

// NewEndpoints derives the realm endpoints from the server URL and realm name.
func NewEndpoints(serverURL, realm string) Endpoints {
	base := strings.TrimRight(serverURL, "/") + "/realms/" + realm
	oidc := base + "/protocol/openid-connect"
	return Endpoints{
		Authorization: oidc + "/auth",
		Token:         oidc + "/token",
		UserInfo:      oidc + "/userinfo",
		Logout:        oidc + "/logout",
		Revocation:    oidc + "/revoke",
		Discovery:     base + "/.well-known/openid-configuration",
	}
}
