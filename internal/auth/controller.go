// Package auth drives the OAuth2 authorization code flow: it builds the
// authorize URL, validates the redirect and hands the code to the token
// endpoint client.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/bobmcallan/employee-portal/internal/auth/pkce"
	"github.com/bobmcallan/employee-portal/internal/autherr"
	"github.com/bobmcallan/employee-portal/internal/clients/keycloak"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// DefaultScopes are requested when neither the caller nor the config names any.
var DefaultScopes = []string{"openid", "profile", "email"}

// Controller is the authorization flow state machine. It holds at most one
// live FlowSession; starting a new authorization abandons the previous one.
type Controller struct {
	config    *common.KeycloakConfig
	oauth     oauth2.Config
	endpoints keycloak.Endpoints
	tokens    interfaces.TokenEndpoint
	store     interfaces.TokenStore
	logger    *common.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   models.FlowState
	session *models.FlowSession
	lastErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithClock overrides the clock used for session timestamps and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		c.now = now
	}
}

// NewController creates an idle controller.
func NewController(config *common.KeycloakConfig, tokens interfaces.TokenEndpoint, store interfaces.TokenStore, opts ...Option) *Controller {
	endpoints := keycloak.NewEndpoints(config.ServerURL, config.Realm)
	c := &Controller{
		config:    config,
		endpoints: endpoints,
		oauth: oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURI,
			Endpoint: oauth2.Endpoint{
				AuthURL:  endpoints.Authorization,
				TokenURL: endpoints.Token,
			},
		},
		tokens: tokens,
		store:  store,
		logger: common.NewSilentLogger(),
		now:    time.Now,
		state:  models.FlowStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAuthorizationURL starts a new authorization and returns the URL to
// open in the browser. Empty scopes fall back to the configured scopes.
func (c *Controller) CreateAuthorizationURL(scopes []string, usePKCE bool) (string, error) {
	if c.oauth.ClientID == "" || c.oauth.RedirectURL == "" {
		return "", fmt.Errorf("client_id and redirect_uri must be configured")
	}
	if _, err := url.Parse(c.oauth.Endpoint.AuthURL); err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}

	if len(scopes) == 0 {
		scopes = c.config.Scopes
	}
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}

	session := &models.FlowSession{
		State:     pkce.GenerateState(),
		Scopes:    append([]string(nil), scopes...),
		CreatedAt: c.now(),
	}

	var opts []oauth2.AuthCodeOption
	if usePKCE {
		session.CodeVerifier = pkce.GenerateCodeVerifier()
		opts = append(opts,
			oauth2.SetAuthURLParam("code_challenge", pkce.GenerateCodeChallenge(session.CodeVerifier)),
			oauth2.SetAuthURLParam("code_challenge_method", pkce.MethodS256),
		)
	}

	cfg := c.oauth
	cfg.Scopes = session.Scopes
	authURL := cfg.AuthCodeURL(session.State, opts...)

	c.mu.Lock()
	abandoned := c.session != nil
	c.session = session
	c.state = models.FlowStateAwaitingCallback
	c.lastErr = nil
	c.mu.Unlock()

	c.logger.Info().Bool("pkce", usePKCE).Bool("abandoned_previous", abandoned).Msg("Authorization started")
	return authURL, nil
}

// HandleCallback validates the redirect URL and exchanges its code. The live
// session is consumed whether or not the exchange succeeds.
func (c *Controller) HandleCallback(ctx context.Context, callbackURL string) (*models.TokenSet, error) {
	params, err := callbackParams(callbackURL)
	if err != nil {
		return nil, c.fail(&autherr.ProtocolError{Reason: err})
	}

	if code := params.Get("error"); code != "" {
		return nil, c.fail(&autherr.ProtocolError{Code: code, Description: params.Get("error_description")})
	}
	code := params.Get("code")
	if code == "" {
		return nil, c.fail(&autherr.ProtocolError{Reason: autherr.ErrMissingCode})
	}

	c.mu.Lock()
	session := c.session
	if session == nil {
		err := &autherr.ProtocolError{Reason: autherr.ErrNoFlowSession}
		c.mu.Unlock()
		c.logger.Warn().Msg("Callback received with no authorization in progress")
		return nil, err
	}
	c.session = nil
	if subtle.ConstantTimeCompare([]byte(params.Get("state")), []byte(session.State)) != 1 {
		err := &autherr.ProtocolError{Reason: autherr.ErrInvalidState}
		c.state = models.FlowStateIdle
		c.lastErr = err
		c.mu.Unlock()
		c.logger.Warn().Msg("Callback state mismatch")
		return nil, err
	}
	c.state = models.FlowStateExchanging
	c.mu.Unlock()

	tokens, err := c.tokens.ExchangeAuthorizationCode(ctx, code, session.CodeVerifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = models.FlowStateIdle
		c.lastErr = err
		c.logger.Warn().Err(err).Msg("Authorization code exchange failed")
		return nil, err
	}
	c.state = models.FlowStateAuthenticated
	c.lastErr = nil
	return tokens, nil
}

// callbackParams reads the redirect's query, or its fragment when the
// provider used response_mode=fragment.
func callbackParams(callbackURL string) (url.Values, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, fmt.Errorf("invalid callback url: %w", err)
	}
	params := u.Query()
	if len(params) == 0 && u.Fragment != "" {
		if params, err = url.ParseQuery(u.Fragment); err != nil {
			return nil, fmt.Errorf("invalid callback fragment: %w", err)
		}
	}
	return params, nil
}

// fail discards the live session, returns the flow to Idle and records err.
// A callback with no authorization in progress changes nothing.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	live := c.session != nil
	if live {
		c.session = nil
		c.state = models.FlowStateIdle
		c.lastErr = err
	}
	c.mu.Unlock()
	c.logger.Warn().Err(err).Bool("in_progress", live).Msg("Authorization callback rejected")
	return err
}

// IsAuthenticated reports whether a stored session can still be refreshed.
func (c *Controller) IsAuthenticated(ctx context.Context) bool {
	tokens, err := c.store.Get(ctx)
	if err != nil || tokens == nil {
		return false
	}
	return !tokens.RefreshExpired(c.now())
}

// Logout ends the stored session through the token endpoint and resets the
// flow to Idle.
func (c *Controller) Logout(ctx context.Context) error {
	endErr := c.tokens.EndSession(ctx)

	c.mu.Lock()
	c.session = nil
	c.state = models.FlowStateIdle
	c.lastErr = nil
	c.mu.Unlock()

	if endErr != nil {
		return endErr
	}
	c.logger.Info().Msg("Logged out")
	return nil
}

// Cancel abandons a live authorization. It reports whether one was live.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return false
	}
	c.session = nil
	c.state = models.FlowStateIdle
	c.lastErr = nil
	return true
}

// State returns the current flow state. A failed callback returns the flow
// to Idle; LastError then reports why.
func (c *Controller) State() models.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the error that ended the last authorization, if any. It
// is cleared by the next authorization, a successful callback, cancel or logout.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Session returns a copy of the live session, or nil.
func (c *Controller) Session() *models.FlowSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	s := *c.session
	s.Scopes = append([]string(nil), c.session.Scopes...)
	return &s
}

// CreateLogoutURL builds the provider's end-session URL. An empty
// postLogoutRedirectURI falls back to the configured one.
func (c *Controller) CreateLogoutURL(postLogoutRedirectURI, idTokenHint string) string {
	if postLogoutRedirectURI == "" {
		postLogoutRedirectURI = c.config.PostLogoutRedirectURI
	}
	q := url.Values{}
	q.Set("client_id", c.config.ClientID)
	if postLogoutRedirectURI != "" {
		q.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}
	return c.endpoints.Logout + "?" + q.Encode()
}

var _ interfaces.FlowController = (*Controller)(nil)
