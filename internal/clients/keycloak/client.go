// Package keycloak provides a client for the Keycloak OpenID Connect endpoints
package keycloak

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/bobmcallan/employee-portal/internal/autherr"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second

	// DefaultRevokeTimeout bounds the best-effort revocation in EndSession.
	DefaultRevokeTimeout = 5 * time.Second

	maxErrorBody = 64 << 10
)

// Client talks to the realm's token, revocation and userinfo endpoints and
// owns the token lifecycle of one token store.
type Client struct {
	config     *common.KeycloakConfig
	endpoints  Endpoints
	store      interfaces.TokenStore
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
	verifier   *IDTokenVerifier

	retainOnTransportError bool
	revokeTimeout          time.Duration

	refreshMu    sync.Mutex
	refreshGroup singleflight.Group
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithHTTPClient replaces the HTTP client. Apply before WithTimeout.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithClock overrides the clock used for expiry checks.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// WithIDTokenVerifier verifies every id_token the provider returns before
// the token set is persisted.
func WithIDTokenVerifier(v *IDTokenVerifier) ClientOption {
	return func(c *Client) {
		c.verifier = v
	}
}

// WithRetainTokensOnTransportError keeps the stored token set when a refresh
// fails without any response from the provider.
func WithRetainTokensOnTransportError(retain bool) ClientOption {
	return func(c *Client) {
		c.retainOnTransportError = retain
	}
}

// WithRevokeTimeout bounds the revocation call made by EndSession.
func WithRevokeTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.revokeTimeout = d
	}
}

// NewClient creates a Keycloak client persisting tokens to store.
func NewClient(config *common.KeycloakConfig, store interfaces.TokenStore, opts ...ClientOption) *Client {
	rps := config.RateLimit
	if rps <= 0 {
		rps = DefaultRateLimit
	}

	c := &Client{
		config:    config,
		endpoints: NewEndpoints(config.ServerURL, config.Realm),
		store:     store,
		httpClient: &http.Client{
			Timeout: config.GetTimeout(),
		},
		limiter:                rate.NewLimiter(rate.Limit(rps), rps),
		logger:                 common.NewSilentLogger(),
		now:                    time.Now,
		retainOnTransportError: config.RetainTokensOnTransportError,
		revokeTimeout:          DefaultRevokeTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// ExchangeAuthorizationCode redeems an authorization code. codeVerifier is
// sent only when non-empty. The token set is persisted before it is returned.
func (c *Client) ExchangeAuthorizationCode(ctx context.Context, code, codeVerifier string) (*models.TokenSet, error) {
	form := c.clientForm("authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.config.RedirectURI)
	if codeVerifier != "" {
		form.Set("code_verifier", codeVerifier)
	}

	tokens, err := c.requestTokens(ctx, "token exchange", form)
	if err != nil {
		return nil, err
	}
	if tokens, err = c.persist(ctx, tokens); err != nil {
		return nil, err
	}

	c.logger.Info().Str("scope", tokens.Scope).Int64("expires_in", tokens.ExpiresIn).Msg("Authorization code exchanged")
	return tokens, nil
}

// PasswordLogin performs a direct access grant with the user's credentials.
func (c *Client) PasswordLogin(ctx context.Context, username, password string) (*models.TokenSet, error) {
	scope := strings.Join(c.config.Scopes, " ")
	if scope == "" {
		scope = "openid"
	}

	form := c.clientForm("password")
	form.Set("username", username)
	form.Set("password", password)
	form.Set("scope", scope)

	tokens, err := c.requestTokens(ctx, "password login", form)
	if err != nil {
		return nil, err
	}
	if tokens, err = c.persist(ctx, tokens); err != nil {
		return nil, err
	}

	c.logger.Info().Str("username", username).Msg("Password login succeeded")
	return tokens, nil
}

// Refresh renews the stored token set using its refresh token. Only one
// refresh runs at a time per client.
func (c *Client) Refresh(ctx context.Context) (*models.TokenSet, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()
	return c.refreshLocked(ctx)
}

// refreshLocked requires refreshMu.
func (c *Client) refreshLocked(ctx context.Context) (*models.TokenSet, error) {
	current, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokens: %w", err)
	}
	if current == nil {
		return nil, &autherr.NotAuthenticatedError{Op: "refresh"}
	}
	if current.RefreshToken == "" {
		return nil, &autherr.SessionExpiredError{Reason: autherr.ErrNoRefreshToken}
	}
	if current.RefreshExpired(c.now()) {
		c.clearTokens(ctx, "refresh token expired")
		return nil, &autherr.SessionExpiredError{Reason: autherr.ErrRefreshTokenExpired}
	}

	form := c.clientForm("refresh_token")
	form.Set("refresh_token", current.RefreshToken)

	tokens, err := c.requestTokens(ctx, "refresh", form)
	if err != nil {
		if c.retainAfter(ctx, err) {
			c.logger.Warn().Err(err).Msg("Token refresh failed, keeping stored tokens")
			return nil, err
		}
		c.clearTokens(ctx, "refresh failed")
		return nil, err
	}

	if tokens, err = c.persist(ctx, tokens); err != nil {
		return nil, err
	}

	c.logger.Debug().Int64("expires_in", tokens.ExpiresIn).Msg("Tokens refreshed")
	return tokens, nil
}

// retainAfter reports whether a failed refresh leaves the store untouched.
// A cancelled caller never clears it; a provider that never answered only
// clears it unless configured otherwise.
func (c *Client) retainAfter(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	var te *autherr.TransportError
	return c.retainOnTransportError && errors.As(err, &te) && te.NoResponse()
}

// persist saves tokens and returns the stored copy, which carries IssuedAt.
func (c *Client) persist(ctx context.Context, tokens *models.TokenSet) (*models.TokenSet, error) {
	if err := c.store.Save(ctx, tokens); err != nil {
		return nil, fmt.Errorf("failed to save tokens: %w", err)
	}
	stored, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load saved tokens: %w", err)
	}
	if stored == nil {
		return tokens, nil
	}
	return stored, nil
}

func (c *Client) clearTokens(ctx context.Context, reason string) {
	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Str("reason", reason).Msg("Failed to clear tokens")
		return
	}
	c.logger.Info().Str("reason", reason).Msg("Stored tokens cleared")
}

// GetValidAccessToken returns the stored access token, refreshing first when
// it is inside the expiry buffer. Concurrent callers share one refresh.
func (c *Client) GetValidAccessToken(ctx context.Context) (string, error) {
	tokens, err := c.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load tokens: %w", err)
	}
	if tokens == nil {
		return "", &autherr.NotAuthenticatedError{Op: "get access token"}
	}
	if !tokens.AccessExpired(c.now()) {
		return tokens.AccessToken, nil
	}

	for attempt := 0; ; attempt++ {
		ch := c.refreshGroup.DoChan("refresh", func() (interface{}, error) {
			c.refreshMu.Lock()
			defer c.refreshMu.Unlock()

			// Another caller may have refreshed while we waited for the lock
			current, err := c.store.Get(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to load tokens: %w", err)
			}
			if current != nil && !current.AccessExpired(c.now()) {
				return current, nil
			}
			return c.refreshLocked(ctx)
		})

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The caller that ran the shared refresh went away; try once more on our own context.
				if attempt == 0 && ctx.Err() == nil && isContextError(res.Err) {
					continue
				}
				return "", res.Err
			}
			return res.Val.(*models.TokenSet).AccessToken, nil
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsAuthenticated reports whether a stored session can still be refreshed.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	tokens, err := c.store.Get(ctx)
	if err != nil || tokens == nil {
		return false
	}
	return !tokens.RefreshExpired(c.now())
}

// Revoke invalidates token at the provider. An empty token is a no-op.
func (c *Client) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	form := c.clientForm("")
	form.Set("token", token)
	return c.postForm(ctx, "revoke", c.endpoints.Revocation, form, nil)
}

// EndSession revokes the stored refresh token and clears the store. It waits
// for any refresh in flight, so a refresh cannot save tokens after the clear.
// Revocation failures are logged, not returned.
func (c *Client) EndSession(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	tokens, err := c.store.Get(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to read tokens before logout")
	}

	if tokens != nil && tokens.RefreshToken != "" {
		rctx, cancel := context.WithTimeout(ctx, c.revokeTimeout)
		if err := c.Revoke(rctx, tokens.RefreshToken); err != nil {
			c.logger.Warn().Err(err).Msg("Token revocation failed")
		}
		cancel()
	}

	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}

func (c *Client) clientForm(grantType string) url.Values {
	form := url.Values{}
	if grantType != "" {
		form.Set("grant_type", grantType)
	}
	form.Set("client_id", c.config.ClientID)
	if c.config.ClientSecret != "" {
		form.Set("client_secret", c.config.ClientSecret)
	}
	return form
}

// requestTokens posts a grant to the token endpoint and returns the mapped,
// verified token set. Nothing is persisted.
func (c *Client) requestTokens(ctx context.Context, op string, form url.Values) (*models.TokenSet, error) {
	var resp models.TokenResponse
	if err := c.postForm(ctx, op, c.endpoints.Token, form, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, &autherr.ProtocolError{Reason: fmt.Errorf("%s: token response has no access_token", op)}
	}

	tokens := resp.TokenSet()
	if c.verifier != nil && tokens.IDToken != "" {
		if _, err := c.verifier.Verify(ctx, tokens.IDToken); err != nil {
			return nil, &autherr.ProtocolError{Reason: err}
		}
	}
	return tokens, nil
}

// postForm performs a rate-limited form POST
func (c *Client) postForm(ctx context.Context, op, endpoint string, form url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op, result)
}

// getJSON performs a rate-limited GET with a bearer token
func (c *Client) getJSON(ctx context.Context, op, endpoint, bearer string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return c.do(req, op, result)
}

func (c *Client) do(req *http.Request, op string, result interface{}) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return &autherr.TransportError{Op: op, Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	req.Header.Set("Accept", "application/json")
	c.logger.Debug().Str("op", op).Str("url", req.URL.Path).Msg("Keycloak request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &autherr.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		te := &autherr.TransportError{Op: op, StatusCode: resp.StatusCode}
		var oauthErr models.OAuthErrorResponse
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			te.Code = oauthErr.Error
			te.Description = oauthErr.ErrorDescription
		}
		c.logger.Warn().Str("op", op).Int("status", resp.StatusCode).Str("error", te.Code).Msg("Keycloak request rejected")
		return te
	}

	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &autherr.TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// Ensure Client implements IdentityProvider
var _ interfaces.IdentityProvider = (*Client)(nil)
