package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	c, err := NewCredentialCipher("server-secret")
	require.NoError(t, err)

	sealed, err := Seal(c, "s3cret-pass")
	require.NoError(t, err)
	require.NotContains(t, sealed, "s3cret-pass")
	require.Contains(t, sealed, ":")

	plain, err := Open(c, sealed)
	require.NoError(t, err)
	require.Equal(t, "s3cret-pass", plain)
}

func TestSealUsesFreshNonce(t *testing.T) {
	c, err := NewCredentialCipher("server-secret")
	require.NoError(t, err)

	a, err := Seal(c, "same")
	require.NoError(t, err)
	b, err := Seal(c, "same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.NotEqual(t, strings.SplitN(a, ":", 2)[0], strings.SplitN(b, ":", 2)[0])
}

func TestOpenRejectsWrongKeyAndMalformedInput(t *testing.T) {
	c1, err := NewCredentialCipher("one")
	require.NoError(t, err)
	c2, err := NewCredentialCipher("two")
	require.NoError(t, err)

	sealed, err := Seal(c1, "value")
	require.NoError(t, err)

	_, err = Open(c2, sealed)
	require.Error(t, err)

	_, err = Open(c1, "no-separator")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Open(c1, "zz:zz")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestNewCredentialCipherRequiresSecret(t *testing.T) {
	_, err := NewCredentialCipher("")
	require.ErrorIs(t, err, ErrMissingSecret)
}
