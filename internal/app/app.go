// Package app wires configuration, logging, token storage and the
// authentication services. It is shared by cmd/portal-server and
// cmd/portal-auth.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bobmcallan/employee-portal/internal/auth"
	"github.com/bobmcallan/employee-portal/internal/clients/keycloak"
	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/services/account"
	"github.com/bobmcallan/employee-portal/internal/storage"
)

// discoveryTimeout bounds the provider metadata fetch at startup.
const discoveryTimeout = 5 * time.Second

// App holds all initialized services and clients.
type App struct {
	Config         *common.Config
	Logger         *common.Logger
	TokenStore     interfaces.TokenStore
	Keycloak       *keycloak.Client
	Flow           *auth.Controller
	AccountService interfaces.AccountService
	StartupTime    time.Time

	// Discovery is the realm's provider metadata, nil when it could not be
	// fetched at startup.
	Discovery *keycloak.Discovery
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// ResolveConfigPath returns configPath, else PORTAL_CONFIG, else portal.toml
// next to the binary, else config/portal.toml.
func ResolveConfigPath(configPath string) string {
	if configPath == "" {
		configPath = os.Getenv("PORTAL_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(getBinaryDir(), "portal.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/portal.toml" // fallback for development
		}
	}
	return configPath
}

// NewApp loads configuration and initializes the application.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger := common.NewLoggerFromConfig(config.Logging)
	return New(context.Background(), config, logger)
}

// LoadConfig resolves and loads the configuration. Relative file store and
// log paths are resolved against the binary directory.
func LoadConfig(configPath string) (*common.Config, error) {
	// Load version from .version file (fallback if ldflags not set)
	common.LoadVersionFromFile()

	config, err := common.LoadConfig(ResolveConfigPath(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	binDir := getBinaryDir()

	// Resolve relative paths to binary directory
	if config.Storage.File.Path != "" && !filepath.IsAbs(config.Storage.File.Path) {
		config.Storage.File.Path = filepath.Join(binDir, config.Storage.File.Path)
	}
	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}
	return config, nil
}

// New initializes the application from an already loaded configuration.
func New(ctx context.Context, config *common.Config, logger *common.Logger) (*App, error) {
	startupStart := time.Now()

	if missing := config.ValidateRequired(); len(missing) > 0 {
		return nil, fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	store, err := storage.NewTokenStore(ctx, logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token store: %w", err)
	}

	opts := []keycloak.ClientOption{
		keycloak.WithLogger(logger),
	}
	if config.Keycloak.VerifyIDToken {
		// Key fetches outlive startup, so the verifier gets a background context
		verifier, err := keycloak.NewIDTokenVerifier(context.Background(), &config.Keycloak, nil)
		if err != nil {
			closeStore(store, logger)
			return nil, fmt.Errorf("failed to initialize id token verifier: %w", err)
		}
		opts = append(opts, keycloak.WithIDTokenVerifier(verifier))
	}

	client := keycloak.NewClient(&config.Keycloak, store, opts...)
	discovery := checkProvider(ctx, client, &config.Keycloak, logger)
	flow := auth.NewController(&config.Keycloak, client, store, auth.WithLogger(logger))

	a := &App{
		Config:         config,
		Logger:         logger,
		TokenStore:     store,
		Keycloak:       client,
		Flow:           flow,
		AccountService: account.NewService(flow, client, store, logger),
		StartupTime:    startupStart,
		Discovery:      discovery,
	}

	logger.Info().
		Str("issuer", config.Keycloak.Issuer()).
		Str("token_store", config.Storage.Backend).
		Dur("startup", time.Since(startupStart)).
		Msg("App initialized")

	return a, nil
}

// checkProvider fetches the realm metadata and warns when PKCE is configured
// but the provider does not advertise S256. An unreachable provider does not
// fail startup.
func checkProvider(ctx context.Context, client *keycloak.Client, config *common.KeycloakConfig, logger *common.Logger) *keycloak.Discovery {
	dctx, cancel := context.WithTimeout(ctx, discoveryTimeout)
	defer cancel()

	d, err := client.Discover(dctx)
	if err != nil {
		logger.Warn().Err(err).Str("issuer", config.Issuer()).Msg("Provider discovery failed")
		return nil
	}
	if config.UsePKCE && !d.SupportsPKCE() {
		logger.Warn().
			Strs("code_challenge_methods", d.CodeChallengeMethodsSupported).
			Msg("use_pkce is set but the provider does not advertise S256")
	}
	return d
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.TokenStore != nil {
		closeStore(a.TokenStore, a.Logger)
		a.TokenStore = nil
	}
}

func closeStore(store interfaces.TokenStore, logger *common.Logger) {
	if c, ok := store.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close token store")
		}
	}
}
