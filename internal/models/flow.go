package models

import "time"

// FlowState is the authorization flow controller's state. A failed
// authorization returns to FlowStateIdle with the cause kept as LastError.
type FlowState string

const (
	FlowStateIdle             FlowState = "idle"
	FlowStateAwaitingCallback FlowState = "awaiting_callback"
	FlowStateExchanging       FlowState = "exchanging"
	FlowStateAuthenticated    FlowState = "authenticated"
)

// FlowSession holds the secrets of one authorization request. It is
// consumed by exactly one callback.
type FlowSession struct {
	State        string    `json:"state"`
	CodeVerifier string    `json:"-"` // empty when PKCE is disabled
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsesPKCE reports whether the session carries a code verifier.
func (s *FlowSession) UsesPKCE() bool {
	return s.CodeVerifier != ""
}

// AuthStatus summarises the current session for display.
type AuthStatus struct {
	Authenticated    bool          `json:"authenticated"`
	FlowState        FlowState     `json:"flow_state"`
	LastError        string        `json:"last_error,omitempty"`
	AccessExpiresAt  *time.Time    `json:"access_expires_at,omitempty"`
	RefreshExpiresAt *time.Time    `json:"refresh_expires_at,omitempty"`
	Scope            string        `json:"scope,omitempty"`
	Identity         *UserIdentity `json:"identity,omitempty"`
}
