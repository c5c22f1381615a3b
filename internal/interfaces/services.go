package interfaces

import (
	"context"

	"github.com/bobmcallan/employee-portal/internal/models"
)

// FlowController drives the browser-based authorization code flow.
type FlowController interface {
	CreateAuthorizationURL(scopes []string, usePKCE bool) (string, error)
	HandleCallback(ctx context.Context, callbackURL string) (*models.TokenSet, error)
	IsAuthenticated(ctx context.Context) bool
	Logout(ctx context.Context) error
	Cancel() bool
	State() models.FlowState
	LastError() error
	CreateLogoutURL(postLogoutRedirectURI, idTokenHint string) string
}

// LoginResult is a completed login: the token set and the signed-in user.
type LoginResult struct {
	Tokens *models.TokenSet
	User   *models.User
}

// AccountService exposes the signed-in employee to the portal.
type AccountService interface {
	BeginLogin(scopes []string, usePKCE bool) (string, error)
	CompleteLogin(ctx context.Context, callbackURL string) (*LoginResult, error)
	PasswordLogin(ctx context.Context, username, password string) (*LoginResult, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	AccessToken(ctx context.Context) (string, error)
	Status(ctx context.Context) (*models.AuthStatus, error)
	CancelLogin() bool
	Logout(ctx context.Context, postLogoutRedirectURI string) (string, error)
}
