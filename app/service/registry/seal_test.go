package registry

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealer_RoundTrip(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	a, err := sealer.Seal("1//refresh")
	require.NoError(t, err)
	b, err := sealer.Seal("1//refresh")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "fresh nonce per seal")

	plain, err := sealer.Open(a)
	require.NoError(t, err)
	assert.Equal(t, "1//refresh", plain)
}

func TestSealer_Tampered(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)

	sealed, err := sealer.Seal("1//refresh")
	require.NoError(t, err)

	raw, _ := base64.StdEncoding.DecodeString(sealed)
	raw[len(raw)-1] ^= 0xff

	_, err = sealer.Open(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrSealedTokenInvalid)

	_, err = sealer.Open("short")
	assert.ErrorIs(t, err, ErrSealedTokenInvalid)
}

func TestSealer_WrongKey(t *testing.T) {
	sealer, err := NewSealer(testKey)
	require.NoError(t, err)
	sealed, err := sealer.Seal("1//refresh")
	require.NoError(t, err)

	other, err := NewSealer(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	_, err = other.Open(sealed)
	assert.ErrorIs(t, err, ErrSealedTokenInvalid)
}

func TestNewSealer_BadKey(t *testing.T) {
	_, err := NewSealer("not base64!")
	assert.Error(t, err)

	_, err = NewSealer(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}
