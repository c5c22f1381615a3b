package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultPort(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Server.Port != 8085 {
		t.Errorf("Server.Port default = %d, want %d", cfg.Server.Port, 8085)
	}
}

func TestConfig_DefaultKeycloak(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Keycloak.Scopes)
	assert.True(t, cfg.Keycloak.UsePKCE)
	assert.False(t, cfg.Keycloak.RetainTokensOnTransportError)
	assert.Equal(t, "memory", cfg.Storage.Backend)
}

func TestConfig_PortEnvOverride(t *testing.T) {
	t.Setenv("PORTAL_PORT", "9090")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d after env override, want %d", cfg.Server.Port, 9090)
	}
}

func TestConfig_InvalidPortEnvIgnored(t *testing.T) {
	t.Setenv("PORTAL_PORT", "not-a-port")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, 8085, cfg.Server.Port)
}

func TestConfig_AllowedOrigins(t *testing.T) {
	assert.Empty(t, NewDefaultConfig().Server.AllowedOrigins)

	t.Setenv("PORTAL_ALLOWED_ORIGINS", " https://portal.example.com, ,https://admin.example.com")
	cfg := NewDefaultConfig()
	cfg.Server.AllowedOrigins = []string{"https://old.example.com"}
	applyEnvOverrides(cfg)

	assert.Equal(t, []string{"https://portal.example.com", "https://admin.example.com"}, cfg.Server.AllowedOrigins)
}

func TestConfig_KeycloakEnvOverrides(t *testing.T) {
	t.Setenv("PORTAL_KEYCLOAK_SERVER_URL", "https://sso.example.com")
	t.Setenv("PORTAL_KEYCLOAK_REALM", "staff")
	t.Setenv("PORTAL_KEYCLOAK_CLIENT_ID", "portal-app")
	t.Setenv("PORTAL_KEYCLOAK_CLIENT_SECRET", "s3cret")
	t.Setenv("PORTAL_KEYCLOAK_REDIRECT_URI", "http://127.0.0.1:8765/callback")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	assert.Equal(t, "https://sso.example.com", cfg.Keycloak.ServerURL)
	assert.Equal(t, "staff", cfg.Keycloak.Realm)
	assert.Equal(t, "portal-app", cfg.Keycloak.ClientID)
	assert.Equal(t, "s3cret", cfg.Keycloak.ClientSecret)
	assert.Equal(t, "http://127.0.0.1:8765/callback", cfg.Keycloak.RedirectURI)
	assert.Equal(t, "https://sso.example.com/realms/staff", cfg.Keycloak.Issuer())
}

func TestConfig_LoadConfig_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "portal.toml")
	override := filepath.Join(dir, "portal.local.toml")

	require.NoError(t, os.WriteFile(base, []byte(`
environment = "production"

[keycloak]
server_url = "https://sso.example.com/"
realm = "staff"
client_id = "from-file"
timeout = "5s"

[storage]
backend = "FILE"

[storage.file]
path = "/var/lib/portal"
secret = "file-secret"
`), 0600))
	require.NoError(t, os.WriteFile(override, []byte(`
[keycloak]
client_id = "from-override"
`), 0600))

	t.Setenv("PORTAL_KEYCLOAK_REALM", "env-realm")

	cfg, err := LoadConfig(base, override, filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "from-override", cfg.Keycloak.ClientID)
	assert.Equal(t, "env-realm", cfg.Keycloak.Realm)
	assert.Equal(t, 5*time.Second, cfg.Keycloak.GetTimeout())
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "https://sso.example.com/realms/env-realm", cfg.Keycloak.Issuer())
	// Defaults survive partial files
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.Keycloak.Scopes)
	assert.Empty(t, cfg.ValidateRequired())
}

func TestConfig_LoadConfig_InvalidTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("environment = ["), 0600))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestKeycloakConfig_GetTimeout_InvalidFallsBack(t *testing.T) {
	cfg := &KeycloakConfig{Timeout: "soon"}
	if d := cfg.GetTimeout(); d != 30*time.Second {
		t.Errorf("GetTimeout() = %v, want 30s (fallback for invalid)", d)
	}
}

func TestConfig_ValidateRequired_AllMissing(t *testing.T) {
	cfg := &Config{Storage: StorageConfig{Backend: "file"}}
	missing := cfg.ValidateRequired()
	assert.ElementsMatch(t, []string{
		"keycloak.server_url",
		"keycloak.realm",
		"keycloak.client_id",
		"keycloak.redirect_uri",
		"storage.file.path",
		"storage.file.secret",
	}, missing)
}

func TestConfig_ValidateRequired_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Empty(t, cfg.ValidateRequired())

	cfg.Storage.Backend = "surrealdb"
	cfg.Storage.SurrealDB.Address = ""
	assert.Equal(t, []string{"storage.surrealdb.address"}, cfg.ValidateRequired())
}
