// Package surrealdb stores token sets in SurrealDB so replicas of the portal
// backend can share one session per account.
package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

const tokenTable = "portal_token"

// tokenRow is the DB-level representation of a stored token set.
type tokenRow struct {
	Account          string    `json:"account"`
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	IDToken          string    `json:"id_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresIn *int64    `json:"refresh_expires_in"`
	Scope            string    `json:"scope"`
	IssuedAt         time.Time `json:"issued_at"`
}

// Option configures a TokenStore.
type Option func(*TokenStore)

// WithClock overrides the clock used to stamp IssuedAt.
func WithClock(now func() time.Time) Option {
	return func(s *TokenStore) {
		s.now = now
	}
}

// TokenStore implements interfaces.TokenStore with one record per account.
type TokenStore struct {
	db      *surrealdb.DB
	logger  *common.Logger
	account string
	now     func() time.Time
}

var _ interfaces.TokenStore = (*TokenStore)(nil)

// NewTokenStore connects, signs in and selects the configured namespace and
// database. Close releases the connection.
func NewTokenStore(ctx context.Context, logger *common.Logger, config *common.SurrealDBConfig, account string, opts ...Option) (*TokenStore, error) {
	db, err := surrealdb.New(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SurrealDB: %w", err)
	}

	if _, err := db.SignIn(ctx, map[string]interface{}{
		"user": config.Username,
		"pass": config.Password,
	}); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to sign in to SurrealDB: %w", err)
	}

	if err := db.Use(ctx, config.Namespace, config.Database); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to select namespace/database: %w", err)
	}

	s, err := newTokenStore(ctx, db, logger, account, opts...)
	if err != nil {
		db.Close(ctx)
		return nil, err
	}

	logger.Info().
		Str("address", config.Address).
		Str("namespace", config.Namespace).
		Str("database", config.Database).
		Str("account", s.account).
		Msg("SurrealDB token store initialized")

	return s, nil
}

// newTokenStore wraps an already selected connection.
func newTokenStore(ctx context.Context, db *surrealdb.DB, logger *common.Logger, account string, opts ...Option) (*TokenStore, error) {
	// SurrealDB v3 errors on querying non-existent tables
	sql := fmt.Sprintf("DEFINE TABLE IF NOT EXISTS %s SCHEMALESS", tokenTable)
	if _, err := surrealdb.Query[any](ctx, db, sql, nil); err != nil {
		return nil, fmt.Errorf("failed to define table %s: %w", tokenTable, err)
	}

	if account == "" {
		account = "default"
	}
	s := &TokenStore{db: db, logger: logger, account: account, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *TokenStore) rid() surrealmodels.RecordID {
	return surrealmodels.NewRecordID(tokenTable, s.account)
}

func (s *TokenStore) Save(ctx context.Context, tokens *models.TokenSet) error {
	if tokens == nil {
		return models.ErrNilTokenSet
	}
	tokens = tokens.Stamped(s.now())

	sql := `UPSERT $rid SET
		account = $account, access_token = $access_token, refresh_token = $refresh_token,
		id_token = $id_token, token_type = $token_type, expires_in = $expires_in,
		refresh_expires_in = $refresh_expires_in, scope = $scope, issued_at = $issued_at`
	vars := map[string]any{
		"rid":                s.rid(),
		"account":            s.account,
		"access_token":       tokens.AccessToken,
		"refresh_token":      tokens.RefreshToken,
		"id_token":           tokens.IDToken,
		"token_type":         tokens.TokenType,
		"expires_in":         tokens.ExpiresIn,
		"refresh_expires_in": tokens.RefreshExpiresIn,
		"scope":              tokens.Scope,
		"issued_at":          tokens.IssuedAt,
	}
	if _, err := surrealdb.Query[any](ctx, s.db, sql, vars); err != nil {
		return fmt.Errorf("failed to save token set: %w", err)
	}
	return nil
}

func (s *TokenStore) Get(ctx context.Context) (*models.TokenSet, error) {
	sql := "SELECT account, access_token, refresh_token, id_token, token_type, expires_in, refresh_expires_in, scope, issued_at FROM $rid"
	vars := map[string]any{"rid": s.rid()}

	results, err := surrealdb.Query[[]tokenRow](ctx, s.db, sql, vars)
	if err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token set: %w", err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	row := (*results)[0].Result[0]
	return &models.TokenSet{
		AccessToken:      row.AccessToken,
		RefreshToken:     row.RefreshToken,
		IDToken:          row.IDToken,
		TokenType:        row.TokenType,
		ExpiresIn:        row.ExpiresIn,
		RefreshExpiresIn: row.RefreshExpiresIn,
		Scope:            row.Scope,
		IssuedAt:         row.IssuedAt,
	}, nil
}

func (s *TokenStore) Clear(ctx context.Context) error {
	_, err := surrealdb.Delete[tokenRow](ctx, s.db, s.rid())
	if err != nil && !isNotFoundError(err) {
		return fmt.Errorf("failed to clear token set: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *TokenStore) Close() error {
	return s.db.Close(context.Background())
}

func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "does not exist")
}
