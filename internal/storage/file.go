package storage

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/interfaces"
	"github.com/bobmcallan/employee-portal/internal/models"
)

const tokenFileExt = ".tok"

// ErrTokenFileUnreadable means the token file exists but cannot be decrypted,
// either because it was tampered with or because the secret changed.
var ErrTokenFileUnreadable = errors.New("token file unreadable")

// EncryptedFileStore persists one account's token set in a file sealed with
// XChaCha20-Poly1305. The key is derived from the configured secret with
// HKDF-SHA256; the account name is bound in as additional data.
type EncryptedFileStore struct {
	mu      sync.Mutex
	path    string
	account string
	aead    cipher.AEAD
	now     func() time.Time
	logger  *common.Logger
}

var _ interfaces.TokenStore = (*EncryptedFileStore)(nil)

// NewEncryptedFileStore creates the store directory if needed and derives the
// file key for account.
func NewEncryptedFileStore(logger *common.Logger, config *common.FileConfig, account string, opts ...Option) (*EncryptedFileStore, error) {
	if config.Secret == "" {
		return nil, fmt.Errorf("token file store requires a secret")
	}
	if account == "" {
		account = "default"
	}

	if err := os.MkdirAll(config.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", config.Path, err)
	}

	key, err := deriveFileKey(config.Secret, account)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise cipher: %w", err)
	}

	o := newOptions(opts)
	fs := &EncryptedFileStore{
		path:    filepath.Join(config.Path, sanitizeKey(account)+tokenFileExt),
		account: account,
		aead:    aead,
		now:     o.now,
		logger:  logger,
	}

	logger.Debug().Str("path", fs.path).Msg("Token file store opened")
	return fs, nil
}

func deriveFileKey(secret, account string) ([]byte, error) {
	h := hkdf.New(sha256.New, []byte(secret), nil, []byte("portal-token-store/"+account))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(h, key); err != nil {
		return nil, fmt.Errorf("failed to derive file key: %w", err)
	}
	return key, nil
}

// sanitizeKey makes a key safe for use as a filename.
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

// Path returns the token file location.
func (fs *EncryptedFileStore) Path() string {
	return fs.path
}

func (fs *EncryptedFileStore) Save(_ context.Context, tokens *models.TokenSet) error {
	if tokens == nil {
		return models.ErrNilTokenSet
	}

	plain, err := json.Marshal(tokens.Stamped(fs.now()))
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	nonce := make([]byte, fs.aead.NonceSize(), fs.aead.NonceSize()+len(plain)+chacha20poly1305.Overhead)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := fs.aead.Seal(nonce, nonce, plain, []byte(fs.account))

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return writeFileAtomic(fs.path, sealed)
}

func (fs *EncryptedFileStore) Get(_ context.Context) (*models.TokenSet, error) {
	fs.mu.Lock()
	data, err := os.ReadFile(fs.path)
	fs.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", fs.path, err)
	}

	ns := fs.aead.NonceSize()
	if len(data) < ns+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: %s is truncated", ErrTokenFileUnreadable, fs.path)
	}
	plain, err := fs.aead.Open(nil, data[:ns], data[ns:], []byte(fs.account))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenFileUnreadable, fs.path)
	}

	var tokens models.TokenSet
	if err := json.Unmarshal(plain, &tokens); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fs.path, err)
	}
	return &tokens, nil
}

func (fs *EncryptedFileStore) Clear(_ context.Context) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := os.Remove(fs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", fs.path, err)
	}
	return nil
}

// writeFileAtomic writes to a temp file in the same directory, then renames
// it over target so readers never see a partial token set.
func writeFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if err := tmpFile.Chmod(0600); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
