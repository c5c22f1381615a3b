// Package common provides shared utilities for the employee portal
package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for the portal
type Config struct {
	Environment string         `toml:"environment"`
	Server      ServerConfig   `toml:"server"`
	Keycloak    KeycloakConfig `toml:"keycloak"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// AllowedOrigins lists the web UI origins allowed cross-origin access,
	// e.g. "https://portal.example.com". Empty disables CORS.
	AllowedOrigins []string `toml:"allowed_origins"`
}

// KeycloakConfig holds the identity provider connection settings.
type KeycloakConfig struct {
	ServerURL             string   `toml:"server_url"`
	Realm                 string   `toml:"realm"`
	ClientID              string   `toml:"client_id"`
	ClientSecret          string   `toml:"client_secret"` // confidential clients only
	RedirectURI           string   `toml:"redirect_uri"`
	PostLogoutRedirectURI string   `toml:"post_logout_redirect_uri"`
	Scopes                []string `toml:"scopes"`
	UsePKCE               bool     `toml:"use_pkce"`
	Timeout               string   `toml:"timeout"`
	RateLimit             int      `toml:"rate_limit"` // requests per second to the provider
	VerifyIDToken         bool     `toml:"verify_id_token"`

	// RetainTokensOnTransportError keeps the stored token set when a refresh fails
	// without any HTTP response from the provider.
	RetainTokensOnTransportError bool `toml:"retain_tokens_on_transport_error"`
}

// GetTimeout parses and returns the timeout duration
func (c *KeycloakConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Issuer returns the realm issuer URL.
func (c *KeycloakConfig) Issuer() string {
	return strings.TrimRight(c.ServerURL, "/") + "/realms/" + c.Realm
}

// StorageConfig selects and configures the token store backend.
type StorageConfig struct {
	Backend   string          `toml:"backend"` // memory, file or surrealdb
	Account   string          `toml:"account"` // key the token set is stored under
	File      FileConfig      `toml:"file"`
	SurrealDB SurrealDBConfig `toml:"surrealdb"`
}

// FileConfig holds the encrypted file store settings.
type FileConfig struct {
	Path   string `toml:"path"`
	Secret string `toml:"secret"`
}

// SurrealDBConfig holds the shared database store settings.
type SurrealDBConfig struct {
	Address   string `toml:"address"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 8085,
		},
		Keycloak: KeycloakConfig{
			ServerURL:   "http://localhost:8180",
			Realm:       "portal",
			ClientID:    "employee-portal",
			RedirectURI: "portal://oauth/callback",
			Scopes:      []string{"openid", "profile", "email"},
			UsePKCE:     true,
			Timeout:     "30s",
			RateLimit:   10,
		},
		Storage: StorageConfig{
			Backend: "memory",
			Account: "default",
			File: FileConfig{
				Path: "data/tokens",
			},
			SurrealDB: SurrealDBConfig{
				Address:   "ws://localhost:8000/rpc",
				Namespace: "portal",
				Database:  "auth",
				Username:  "root",
				Password:  "root",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Outputs:    []string{"console"},
			FilePath:   "./logs/portal.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	config.Storage.Backend = strings.ToLower(strings.TrimSpace(config.Storage.Backend))
	if config.Storage.Backend == "" {
		config.Storage.Backend = "memory"
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PORTAL_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("PORTAL_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("PORTAL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if origins := os.Getenv("PORTAL_ALLOWED_ORIGINS"); origins != "" {
		config.Server.AllowedOrigins = nil
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.Server.AllowedOrigins = append(config.Server.AllowedOrigins, o)
			}
		}
	}

	if level := os.Getenv("PORTAL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	// Identity provider
	if v := os.Getenv("PORTAL_KEYCLOAK_SERVER_URL"); v != "" {
		config.Keycloak.ServerURL = v
	}
	if v := os.Getenv("PORTAL_KEYCLOAK_REALM"); v != "" {
		config.Keycloak.Realm = v
	}
	if v := os.Getenv("PORTAL_KEYCLOAK_CLIENT_ID"); v != "" {
		config.Keycloak.ClientID = v
	}
	if v := os.Getenv("PORTAL_KEYCLOAK_CLIENT_SECRET"); v != "" {
		config.Keycloak.ClientSecret = v
	}
	if v := os.Getenv("PORTAL_KEYCLOAK_REDIRECT_URI"); v != "" {
		config.Keycloak.RedirectURI = v
	}

	// Storage
	if v := os.Getenv("PORTAL_STORAGE_BACKEND"); v != "" {
		config.Storage.Backend = v
	}
	if v := os.Getenv("PORTAL_STORAGE_SECRET"); v != "" {
		config.Storage.File.Secret = v
	}
	if v := os.Getenv("PORTAL_SURREALDB_ADDRESS"); v != "" {
		config.Storage.SurrealDB.Address = v
	}
	if v := os.Getenv("PORTAL_SURREALDB_PASSWORD"); v != "" {
		config.Storage.SurrealDB.Password = v
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateRequired returns the config keys that must be set but are not.
func (c *Config) ValidateRequired() []string {
	var missing []string
	if c.Keycloak.ServerURL == "" {
		missing = append(missing, "keycloak.server_url")
	}
	if c.Keycloak.Realm == "" {
		missing = append(missing, "keycloak.realm")
	}
	if c.Keycloak.ClientID == "" {
		missing = append(missing, "keycloak.client_id")
	}
	if c.Keycloak.RedirectURI == "" {
		missing = append(missing, "keycloak.redirect_uri")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.File.Path == "" {
			missing = append(missing, "storage.file.path")
		}
		if c.Storage.File.Secret == "" {
			missing = append(missing, "storage.file.secret")
		}
	case "surrealdb":
		if c.Storage.SurrealDB.Address == "" {
			missing = append(missing, "storage.surrealdb.address")
		}
	}
	return missing
}
