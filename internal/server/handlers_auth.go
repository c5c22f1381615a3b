package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// loginResponse is returned by the callback and password login. Tokens stay
// in the token store; clients fetch an access token from /api/auth/token.
type loginResponse struct {
	User            *models.User `json:"user"`
	Scope           string       `json:"scope,omitempty"`
	ExpiresIn       int64        `json:"expires_in"`
	AccessExpiresAt time.Time    `json:"access_expires_at"`
}

func newLoginResponse(result *interfaces.LoginResult) loginResponse {
	return loginResponse{
		User:            result.User,
		Scope:           result.Tokens.Scope,
		ExpiresIn:       result.Tokens.ExpiresIn,
		AccessExpiresAt: result.Tokens.AccessExpiresAt(),
	}
}

// handleAuthLogin handles GET /api/auth/login. The scope query parameter is
// space separated; pkce=false disables PKCE; redirect=true answers with 302.
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	usePKCE := s.app.Config.Keycloak.UsePKCE
	if v := q.Get("pkce"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "pkce must be true or false")
			return
		}
		usePKCE = b
	}

	authURL, err := s.app.AccountService.BeginLogin(strings.Fields(q.Get("scope")), usePKCE)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to create authorization URL")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if q.Get("redirect") == "true" {
		http.Redirect(w, r, authURL, http.StatusFound)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"authorization_url": authURL})
}

// handleAuthCallback handles GET /api/auth/callback, the redirect target
// registered with the identity provider.
func (s *Server) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	result, err := s.app.AccountService.CompleteLogin(r.Context(), r.URL.String())
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newLoginResponse(result))
}

type passwordLoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleAuthPasswordLogin handles POST /api/auth/login/password.
func (s *Server) handleAuthPasswordLogin(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req passwordLoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	result, err := s.app.AccountService.PasswordLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, newLoginResponse(result))
}

// handleAuthCancel handles POST /api/auth/cancel.
func (s *Server) handleAuthCancel(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": s.app.AccountService.CancelLogin()})
}

// handleAuthStatus handles GET /api/auth/status. It never contacts the
// identity provider.
func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	status, err := s.app.AccountService.Status(r.Context())
	if err != nil {
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, status)
}

// handleAuthToken handles GET /api/auth/token, refreshing when the stored
// access token has expired.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	token, err := s.app.AccountService.AccessToken(r.Context())
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"access_token": token,
		"token_type":   "Bearer",
	})
}

// handleAuthUserInfo handles GET /api/auth/userinfo.
func (s *Server) handleAuthUserInfo(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	user, err := s.app.AccountService.CurrentUser(r.Context())
	if err != nil {
		WriteAuthError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, user)
}

type logoutRequest struct {
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri"`
}

// handleAuthLogout handles POST /api/auth/logout. The body is optional.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req logoutRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	logoutURL, err := s.app.AccountService.Logout(r.Context(), req.PostLogoutRedirectURI)
	if err != nil {
		s.logger.Error().Err(err).Msg("Logout failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"logout_url": logoutURL})
}
