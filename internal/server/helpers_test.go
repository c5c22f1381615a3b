package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/employee-portal/internal/autherr"
)

func TestWriteAuthError_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"session expired", &autherr.SessionExpiredError{Reason: autherr.ErrRefreshTokenExpired}, http.StatusUnauthorized, "reauthentication_required"},
		{"not authenticated", fmt.Errorf("user: %w", &autherr.NotAuthenticatedError{Op: "userinfo"}), http.StatusUnauthorized, "reauthentication_required"},
		{"provider error", &autherr.ProtocolError{Code: "access_denied", Description: "user cancelled"}, http.StatusBadRequest, "access_denied"},
		{"invalid state", &autherr.ProtocolError{Reason: autherr.ErrInvalidState}, http.StatusBadRequest, "invalid_request"},
		{"grant refused", &autherr.TransportError{Op: "password login", StatusCode: 401, Code: "invalid_grant"}, http.StatusUnauthorized, "invalid_grant"},
		{"provider down", &autherr.TransportError{Op: "refresh", StatusCode: 503}, http.StatusBadGateway, "identity_provider_unavailable"},
		{"no response", &autherr.TransportError{Op: "refresh", Err: context.DeadlineExceeded}, http.StatusBadGateway, "identity_provider_unavailable"},
		{"other", errors.New("disk full"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteAuthError(rr, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestWriteAuthError_ChallengeHeader(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteAuthError(rr, &autherr.SessionExpiredError{Reason: autherr.ErrNoRefreshToken})
	assert.Contains(t, rr.Header().Get("WWW-Authenticate"), "invalid_token")
}

func TestRequireMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/auth/token", nil)

	assert.False(t, RequireMethod(rr, req, http.MethodGet, http.MethodHead))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "GET, HEAD", rr.Header().Get("Allow"))
}

func TestDecodeJSON_Invalid(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/password", strings.NewReader("{"))

	var v passwordLoginRequest
	assert.False(t, DecodeJSON(rr, req, &v))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Invalid JSON")
}
