package keycloak

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/bobmcallan/employee-portal/internal/autherr"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// keycloakClaims decodes both userinfo responses and id_token payloads.
// Keycloak puts realm roles under realm_access unless a mapper flattens them.
type keycloakClaims struct {
	models.UserIdentity
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
}

func (k *keycloakClaims) identity() *models.UserIdentity {
	id := k.UserIdentity
	if len(id.Roles) == 0 && len(k.RealmAccess.Roles) > 0 {
		id.Roles = append([]string(nil), k.RealmAccess.Roles...)
	}
	return &id
}

// IDTokenVerifier checks id_token signature, issuer, audience and expiry.
type IDTokenVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewIDTokenVerifier discovers the realm's signing keys. ctx is kept for
// later key fetches and must outlive the verifier.
func NewIDTokenVerifier(ctx context.Context, config *common.KeycloakConfig, httpClient *http.Client) (*IDTokenVerifier, error) {
	if httpClient != nil {
		ctx = oidc.ClientContext(ctx, httpClient)
	}
	provider, err := oidc.NewProvider(ctx, config.Issuer())
	if err != nil {
		return nil, fmt.Errorf("failed to discover %s: %w", config.Issuer(), err)
	}
	return &IDTokenVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: config.ClientID}),
	}, nil
}

// NewStaticIDTokenVerifier verifies against a fixed set of public keys.
func NewStaticIDTokenVerifier(issuer, clientID string, keys ...crypto.PublicKey) *IDTokenVerifier {
	keySet := &oidc.StaticKeySet{PublicKeys: keys}
	return &IDTokenVerifier{
		verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID}),
	}
}

// Verify validates raw and returns the identity it asserts.
func (v *IDTokenVerifier) Verify(ctx context.Context, raw string) (*models.UserIdentity, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", autherr.ErrIDTokenInvalid, err)
	}
	var claims keycloakClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: claims: %w", autherr.ErrIDTokenInvalid, err)
	}
	return claims.identity(), nil
}

// IdentityFromIDToken decodes the identity claims of an id_token without
// checking its signature. Use it only for display of a token this client
// already received from the provider.
func IdentityFromIDToken(raw string) (*models.UserIdentity, error) {
	token, _, err := jwt.NewParser().ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse id token: %w", err)
	}

	payload, err := json.Marshal(token.Claims)
	if err != nil {
		return nil, fmt.Errorf("failed to read id token claims: %w", err)
	}
	var claims keycloakClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("failed to read id token claims: %w", err)
	}
	return claims.identity(), nil
}
