// Package interfaces defines service contracts for the portal
package interfaces

import (
	"context"

	"github.com/bobmcallan/employee-portal/internal/models"
)

// TokenStore holds the current token set. Implementations are safe for
// concurrent use and write a token set as one whole value.
type TokenStore interface {
	// Save stores a copy of tokens issued at the current time, replacing any
	// previous value. The caller's value is not modified. A nil set is
	// rejected with models.ErrNilTokenSet.
	Save(ctx context.Context, tokens *models.TokenSet) error

	// Get returns a copy of the stored token set, or nil when none is stored.
	Get(ctx context.Context) (*models.TokenSet, error)

	// Clear removes the stored token set.
	Clear(ctx context.Context) error
}
