// Package account provides the signed-in employee's session and profile
package account

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/employee-portal/internal/clients/keycloak"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// Compile-time interface check
var _ interfaces.AccountService = (*Service)(nil)

// Service implements AccountService
type Service struct {
	flow   interfaces.FlowController
	idp    interfaces.IdentityProvider
	store  interfaces.TokenStore
	logger *common.Logger
	now    func() time.Time
}

// NewService creates a new account service
func NewService(flow interfaces.FlowController, idp interfaces.IdentityProvider, store interfaces.TokenStore, logger *common.Logger) *Service {
	return &Service{
		flow:   flow,
		idp:    idp,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// BeginLogin starts an interactive login and returns the authorization URL.
func (s *Service) BeginLogin(scopes []string, usePKCE bool) (string, error) {
	return s.flow.CreateAuthorizationURL(scopes, usePKCE)
}

// CompleteLogin handles the provider redirect and loads the signed-in user.
func (s *Service) CompleteLogin(ctx context.Context, callbackURL string) (*interfaces.LoginResult, error) {
	tokens, err := s.flow.HandleCallback(ctx, callbackURL)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, tokens)
}

// PasswordLogin signs in with username and password (direct access grant).
func (s *Service) PasswordLogin(ctx context.Context, username, password string) (*interfaces.LoginResult, error) {
	tokens, err := s.idp.PasswordLogin(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.loginResult(ctx, tokens)
}

// loginResult resolves the user for a fresh token set. When userinfo is
// unavailable the id_token claims are used instead.
func (s *Service) loginResult(ctx context.Context, tokens *models.TokenSet) (*interfaces.LoginResult, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		if tokens.IDToken == "" {
			return nil, err
		}
		id, idErr := keycloak.IdentityFromIDToken(tokens.IDToken)
		if idErr != nil {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("Userinfo unavailable, using id token claims")
		user = models.NewUserFromIdentity(id)
	}

	s.logger.Info().Str("user", user.Username).Msg("User logged in")
	return &interfaces.LoginResult{Tokens: tokens, User: user}, nil
}

// CurrentUser fetches userinfo and maps it to the portal user.
func (s *Service) CurrentUser(ctx context.Context) (*models.User, error) {
	id, err := s.idp.UserInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	return models.NewUserFromIdentity(id), nil
}

// AccessToken returns a valid access token, refreshing when needed.
func (s *Service) AccessToken(ctx context.Context) (string, error) {
	return s.idp.GetValidAccessToken(ctx)
}

// Status reports the session without calling the provider.
func (s *Service) Status(ctx context.Context) (*models.AuthStatus, error) {
	status := &models.AuthStatus{FlowState: s.flow.State()}
	if err := s.flow.LastError(); err != nil {
		status.LastError = err.Error()
	}

	tokens, err := s.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if tokens == nil {
		return status, nil
	}

	status.Authenticated = !tokens.RefreshExpired(s.now())
	accessAt := tokens.AccessExpiresAt()
	status.AccessExpiresAt = &accessAt
	if refreshAt := tokens.RefreshExpiresAt(); !refreshAt.IsZero() {
		status.RefreshExpiresAt = &refreshAt
	}
	status.Scope = tokens.Scope

	if tokens.IDToken != "" {
		if id, err := keycloak.IdentityFromIDToken(tokens.IDToken); err == nil {
			status.Identity = id
		} else {
			s.logger.Debug().Err(err).Msg("Stored id token not decodable")
		}
	}
	return status, nil
}

// CancelLogin abandons an interactive login in progress.
func (s *Service) CancelLogin() bool {
	return s.flow.Cancel()
}

// Logout ends the session locally and at the provider, returning the
// end-session URL the browser should visit.
func (s *Service) Logout(ctx context.Context, postLogoutRedirectURI string) (string, error) {
	var idTokenHint string
	if tokens, err := s.store.Get(ctx); err == nil && tokens != nil {
		idTokenHint = tokens.IDToken
	}

	if err := s.flow.Logout(ctx); err != nil {
		return "", err
	}
	return s.flow.CreateLogoutURL(postLogoutRedirectURI, idTokenHint), nil
}
