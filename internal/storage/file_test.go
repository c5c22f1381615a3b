package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/employee-portal/internal/common"
	"github.com/bobmcallan/employee-portal/internal/models"
)

// newTestFileStore creates an EncryptedFileStore in a temp directory.
func newTestFileStore(t *testing.T, dir, secret, account string, opts ...Option) *EncryptedFileStore {
	t.Helper()
	logger := common.NewSilentLogger()
	fs, err := NewEncryptedFileStore(logger, &common.FileConfig{Path: dir, Secret: secret}, account, opts...)
	require.NoError(t, err)
	return fs
}

func TestEncryptedFileStore_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fs := newTestFileStore(t, t.TempDir(), "correct horse", "alice", WithClock(fixedClock(now)))
	ctx := context.Background()

	got, err := fs.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got, "missing file reads as absent")

	require.NoError(t, fs.Save(ctx, sampleTokens()))

	got, err = fs.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AT1", got.AccessToken)
	assert.Equal(t, "RT1", got.RefreshToken)
	assert.Equal(t, int64(1800), *got.RefreshExpiresIn)
	assert.True(t, now.Equal(got.IssuedAt))
}

func TestEncryptedFileStore_SaveLeavesCallerUntouched(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	fs := newTestFileStore(t, t.TempDir(), "correct horse", "alice", WithClock(fixedClock(now)))
	ctx := context.Background()

	in := sampleTokens()
	require.NoError(t, fs.Save(ctx, in))
	assert.True(t, in.IssuedAt.IsZero())

	assert.ErrorIs(t, fs.Save(ctx, nil), models.ErrNilTokenSet)
	got, err := fs.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "AT1", got.AccessToken)
}

func TestEncryptedFileStore_FileIsEncryptedAndPrivate(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir(), "correct horse", "alice")
	require.NoError(t, fs.Save(context.Background(), sampleTokens()))

	data, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "RT1")
	assert.NotContains(t, string(data), "access_token")

	info, err := os.Stat(fs.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestEncryptedFileStore_WrongSecretRejected(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	writer := newTestFileStore(t, dir, "correct horse", "alice")
	require.NoError(t, writer.Save(ctx, sampleTokens()))

	reader := newTestFileStore(t, dir, "battery staple", "alice")
	_, err := reader.Get(ctx)
	assert.ErrorIs(t, err, ErrTokenFileUnreadable)
}

func TestEncryptedFileStore_TamperDetected(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir(), "correct horse", "alice")
	ctx := context.Background()
	require.NoError(t, fs.Save(ctx, sampleTokens()))

	data, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01
	require.NoError(t, os.WriteFile(fs.Path(), data, 0600))

	_, err = fs.Get(ctx)
	assert.ErrorIs(t, err, ErrTokenFileUnreadable)

	require.NoError(t, os.WriteFile(fs.Path(), []byte("short"), 0600))
	_, err = fs.Get(ctx)
	assert.ErrorIs(t, err, ErrTokenFileUnreadable)
}

func TestEncryptedFileStore_AccountsAreSeparate(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	alice := newTestFileStore(t, dir, "correct horse", "alice")
	bob := newTestFileStore(t, dir, "correct horse", "bob")
	require.NoError(t, alice.Save(ctx, sampleTokens()))

	got, err := bob.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	// A file copied to another account's name does not decrypt
	data, err := os.ReadFile(alice.Path())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(bob.Path(), data, 0600))
	_, err = bob.Get(ctx)
	assert.ErrorIs(t, err, ErrTokenFileUnreadable)
}

func TestEncryptedFileStore_Clear(t *testing.T) {
	fs := newTestFileStore(t, t.TempDir(), "correct horse", "alice")
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, sampleTokens()))
	require.NoError(t, fs.Clear(ctx))
	_, err := os.Stat(fs.Path())
	assert.True(t, os.IsNotExist(err))

	got, err := fs.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, fs.Clear(ctx))
}

func TestEncryptedFileStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	fs := newTestFileStore(t, dir, "correct horse", "alice")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, fs.Save(ctx, sampleTokens()))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice"+tokenFileExt, entries[0].Name())
}

func TestNewEncryptedFileStore_RequiresSecret(t *testing.T) {
	_, err := NewEncryptedFileStore(common.NewSilentLogger(), &common.FileConfig{Path: t.TempDir()}, "alice")
	assert.Error(t, err)
}

func TestSanitizeKey(t *testing.T) {
	assert.Equal(t, "a_b_c", sanitizeKey("a/b:c"))
	assert.Equal(t, "__etc", sanitizeKey("../etc"))
	assert.NotContains(t, sanitizeKey("x/../../y"), string(filepath.Separator))
}

func TestNewTokenStore_Backends(t *testing.T) {
	logger := common.NewSilentLogger()
	ctx := context.Background()

	store, err := NewTokenStore(ctx, logger, &common.StorageConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryTokenStore{}, store)

	store, err = NewTokenStore(ctx, logger, &common.StorageConfig{
		Backend: BackendFile,
		Account: "alice",
		File:    common.FileConfig{Path: t.TempDir(), Secret: "s"},
	})
	require.NoError(t, err)
	assert.IsType(t, &EncryptedFileStore{}, store)

	_, err = NewTokenStore(ctx, logger, &common.StorageConfig{Backend: "redis"})
	assert.ErrorContains(t, err, "unknown storage backend")
}
