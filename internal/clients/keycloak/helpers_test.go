package keycloak

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/models"
	"github.com/bobmcallan/employee-portal/internal/storage"
)

const testRealm = "portal"

// testClock is a settable clock shared by the client and the store.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// fakeKeycloak is a stub realm. tokenHandler answers the token endpoint and
// revokeHandler the revocation endpoint; every form posted is recorded.
type fakeKeycloak struct {
	server        *httptest.Server
	tokenCalls    atomic.Int32
	revokeCalls   atomic.Int32
	mu            sync.Mutex
	forms         []url.Values
	tokenHandler  func(w http.ResponseWriter, form url.Values)
	revokeHandler func(w http.ResponseWriter, r *http.Request)
	userinfo      func(w http.ResponseWriter, r *http.Request)
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	fk := &fakeKeycloak{}
	prefix := "/realms/" + testRealm + "/protocol/openid-connect"

	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/token", func(w http.ResponseWriter, r *http.Request) {
		fk.tokenCalls.Add(1)
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/x-www-form-urlencoded" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		assert.NoError(t, r.ParseForm())
		fk.mu.Lock()
		fk.forms = append(fk.forms, r.PostForm)
		handler := fk.tokenHandler
		fk.mu.Unlock()
		if handler == nil {
			writeTokenResponse(w, "AT1", "RT1")
			return
		}
		handler(w, r.PostForm)
	})
	mux.HandleFunc(prefix+"/revoke", func(w http.ResponseWriter, r *http.Request) {
		fk.revokeCalls.Add(1)
		assert.NoError(t, r.ParseForm())
		fk.mu.Lock()
		fk.forms = append(fk.forms, r.PostForm)
		handler := fk.revokeHandler
		fk.mu.Unlock()
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(prefix+"/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if fk.userinfo != nil {
			fk.userinfo(w, r)
			return
		}
		http.Error(w, "not configured", http.StatusNotFound)
	})

	fk.server = httptest.NewServer(mux)
	t.Cleanup(fk.server.Close)
	return fk
}

func (fk *fakeKeycloak) setTokenHandler(h func(w http.ResponseWriter, form url.Values)) {
	fk.mu.Lock()
	fk.tokenHandler = h
	fk.mu.Unlock()
}

func (fk *fakeKeycloak) setRevokeHandler(h func(w http.ResponseWriter, r *http.Request)) {
	fk.mu.Lock()
	fk.revokeHandler = h
	fk.mu.Unlock()
}

func (fk *fakeKeycloak) lastForm() url.Values {
	fk.mu.Lock()
	defer fk.mu.Unlock()
	if len(fk.forms) == 0 {
		return nil
	}
	return fk.forms[len(fk.forms)-1]
}

func writeTokenResponse(w http.ResponseWriter, access, refresh string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"access_token":       access,
		"refresh_token":      refresh,
		"token_type":         "Bearer",
		"expires_in":         300,
		"refresh_expires_in": 1800,
		"scope":              "openid profile email",
		"session_state":      "s-1",
	})
}

func writeOAuthError(w http.ResponseWriter, status int, code, desc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "error_description": desc})
}

func testConfig(serverURL string) *common.KeycloakConfig {
	return &common.KeycloakConfig{
		ServerURL:   serverURL,
		Realm:       testRealm,
		ClientID:    "employee-portal",
		RedirectURI: "portal://oauth/callback",
		Scopes:      []string{"openid", "profile", "email"},
		UsePKCE:     true,
		Timeout:     "5s",
		RateLimit:   1000,
	}
}

func newTestClient(t *testing.T, fk *fakeKeycloak, clock *testClock, opts ...ClientOption) (*Client, *storage.MemoryTokenStore) {
	t.Helper()
	store := storage.NewMemoryTokenStore(storage.WithClock(clock.Now))
	opts = append([]ClientOption{WithClock(clock.Now)}, opts...)
	return NewClient(testConfig(fk.server.URL), store, opts...), store
}

// seed stores a token set issued at the clock's current time.
func seed(t *testing.T, store *storage.MemoryTokenStore, access, refresh string, refreshIn *int64) {
	t.Helper()
	require.NoError(t, store.Save(t.Context(), &models.TokenSet{
		AccessToken:      access,
		RefreshToken:     refresh,
		TokenType:        "Bearer",
		ExpiresIn:        300,
		RefreshExpiresIn: refreshIn,
	}))
}

func int64Ptr(v int64) *int64 { return &v }

func newTestClientStore(clock *testClock) *storage.MemoryTokenStore {
	return storage.NewMemoryTokenStore(storage.WithClock(clock.Now))
}
