// Package storage provides token set persistence with pluggable backends.
package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// Option configures a token store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used to stamp IssuedAt.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func newOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// MemoryTokenStore keeps the token set in process memory. Tokens do not
// survive a restart; use EncryptedFileStore or the SurrealDB store for that.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens *models.TokenSet
	now    func() time.Time
}

var _ interfaces.TokenStore = (*MemoryTokenStore)(nil)

// NewMemoryTokenStore creates an empty in-memory token store.
func NewMemoryTokenStore(opts ...Option) *MemoryTokenStore {
	o := newOptions(opts)
	return &MemoryTokenStore{now: o.now}
}

func (s *MemoryTokenStore) Save(_ context.Context, tokens *models.TokenSet) error {
	if tokens == nil {
		return models.ErrNilTokenSet
	}
	stored := tokens.Stamped(s.now())

	s.mu.Lock()
	s.tokens = stored
	s.mu.Unlock()
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context) (*models.TokenSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Clone(), nil
}

func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.tokens = nil
	s.mu.Unlock()
	return nil
}
