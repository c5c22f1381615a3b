package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/bobmcallan/employee-portal/internal/autherr"
)

// ErrorResponse is the standard error format for REST API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, statusCode int, message string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message})
}

// WriteErrorWithCode writes a JSON error response with an error code.
func WriteErrorWithCode(w http.ResponseWriter, statusCode int, message, code string) {
	WriteJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}

// RequireMethod validates the HTTP method and returns true if it matches.
// If it doesn't match, it writes a 405 response and returns false.
func RequireMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// DecodeJSON reads and decodes JSON from the request body into v.
// Returns false and writes a 400 error if decoding fails.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Body == nil {
		WriteError(w, http.StatusBadRequest, "Request body is required")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

// WriteAuthError maps an authentication failure to a status code: 401 when
// the user must log in again or the provider refused the grant, 400 for
// protocol violations and 502 when the provider could not be used.
func WriteAuthError(w http.ResponseWriter, err error) {
	var protoErr *autherr.ProtocolError
	var transportErr *autherr.TransportError

	switch {
	case autherr.IsReauthenticationRequired(err):
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		WriteErrorWithCode(w, http.StatusUnauthorized, err.Error(), "reauthentication_required")
	case errors.As(err, &protoErr):
		code := protoErr.Code
		if code == "" {
			code = "invalid_request"
		}
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), code)
	case errors.As(err, &transportErr) && transportErr.StatusCode >= 400 && transportErr.StatusCode < 500:
		code := transportErr.Code
		if code == "" {
			code = "access_denied"
		}
		WriteErrorWithCode(w, http.StatusUnauthorized, err.Error(), code)
	case errors.As(err, &transportErr):
		code := transportErr.Code
		if code == "" {
			code = "identity_provider_unavailable"
		}
		WriteErrorWithCode(w, http.StatusBadGateway, err.Error(), code)
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
