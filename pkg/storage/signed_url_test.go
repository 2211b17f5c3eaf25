package storage

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("app-1", "certificates/GAC-2025-1234.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	loc, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "app-1", loc.SubjectID)
	require.Equal(t, "certificates/GAC-2025-1234.pdf", loc.Key)
	require.WithinDuration(t, expiresAt, loc.ExpiresAt, time.Second)
}

func TestSignedURLSignerRejectsTamperedToken(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("app-1", "a.pdf")
	require.NoError(t, err)

	other := NewSignedURLSigner("other", time.Hour)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, ErrInvalidLocator)

	_, err = signer.Verify("not-a-token")
	require.ErrorIs(t, err, ErrInvalidLocator)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	base := time.Now()
	signer.now = func() time.Time { return base }
	token, _, err := signer.Sign("app-1", "a.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrExpiredLocator)
}

func TestLocalStorageRoundTripAndTraversal(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key, err := store.Save("certificates/app-1.pdf", []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, "certificates/app-1.pdf", key)
	require.True(t, store.Exists(key))

	f, err := store.Open(key)
	require.NoError(t, err)
	data, err := os.ReadFile(f.Name())
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "%PDF", string(data))

	_, err = store.Save("../escape.pdf", []byte("x"))
	require.Error(t, err)

	require.NoError(t, store.Delete(key))
	require.False(t, store.Exists(key))
}
