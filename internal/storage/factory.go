package storage

import (
	"context"
	"fmt"

	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/storage/surrealdb"
)

// Backend type constants.
const (
	BackendMemory    = "memory"
	BackendFile      = "file"
	BackendSurrealDB = "surrealdb"
)

// NewTokenStore creates a token store based on the configuration.
// Supported backends: "memory" (default), "file", "surrealdb".
// Stores holding external resources implement Close() error.
func NewTokenStore(ctx context.Context, logger *common.Logger, config *common.StorageConfig) (interfaces.TokenStore, error) {
	backend := config.Backend
	if backend == "" {
		backend = BackendMemory
	}

	switch backend {
	case BackendMemory:
		return NewMemoryTokenStore(), nil

	case BackendFile:
		store, err := NewEncryptedFileStore(logger, &config.File, config.Account)
		if err != nil {
			return nil, err
		}
		return store, nil

	case BackendSurrealDB:
		store, err := surrealdb.NewTokenStore(ctx, logger, &config.SurrealDB, config.Account)
		if err != nil {
			return nil, err
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: memory, file, surrealdb)", backend)
	}
}
