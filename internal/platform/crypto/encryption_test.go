package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type bank struct {
	Account string `json:"account"`
}

func TestRoundTrip(t *testing.T) {
	svc, err := New(testSecret)
	require.NoError(t, err)
	require.True(t, svc.Configured())

	sealed, err := svc.EncryptJSON(bank{Account: "001234567890"})
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "001234567890")

	var out bank
	require.NoError(t, svc.DecryptJSON(sealed, &out))
	assert.Equal(t, "001234567890", out.Account)
}

func TestNoncesDiffer(t *testing.T) {
	svc, err := New(testSecret)
	require.NoError(t, err)

	a, err := svc.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := svc.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTamperAndWrongKey(t *testing.T) {
	svc, err := New(testSecret)
	require.NoError(t, err)
	sealed, err := svc.Encrypt([]byte("secret"))
	require.NoError(t, err)

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff
	_, err = svc.Decrypt(tampered)
	assert.Error(t, err)

	other, err := New(strings.Repeat("z", 32))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = svc.Decrypt([]byte{1, 2})
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestUnconfiguredPassesThrough(t *testing.T) {
	svc, err := New("")
	require.NoError(t, err)
	assert.False(t, svc.Configured())

	sealed, err := svc.Encrypt([]byte("plain"))
	require.NoError(t, err)
	assert.Equal(t, "plain", string(sealed))
}

func TestShortSecretRejected(t *testing.T) {
	_, err := New("short")
	assert.Error(t, err)
}
