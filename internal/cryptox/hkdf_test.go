package cryptox

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey_RFC5869Vector(t *testing.T) {
	// RFC 5869 A.3: SHA-256, empty salt and info. First 32 bytes of OKM.
	ikm := bytes.Repeat([]byte{0x0b}, 22)

	key, err := DeriveKey(ikm, nil)
	require.NoError(t, err)
	assert.Equal(t, "8da4e775a563c18f715f802a063c5a31b8a11f5c5ee1879ec3454e5f3c738d2d", hex.EncodeToString(key))
}

func TestDeriveKey_Deterministic(t *testing.T) {
	secret := []byte("operator-secret")
	info := []byte("paseto-v4-local-key")

	k1, err := DeriveKey(secret, info)
	require.NoError(t, err)
	k2, err := DeriveKey(secret, info)
	require.NoError(t, err)

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
}

func TestDeriveKey_DomainSeparation(t *testing.T) {
	secret := []byte("operator-secret")

	k1, err := DeriveKey(secret, []byte("paseto-v4-local-key"))
	require.NoError(t, err)
	k2, err := DeriveKey(secret, []byte("something-else"))
	require.NoError(t, err)
	k3, err := DeriveKey([]byte("other-secret"), []byte("paseto-v4-local-key"))
	require.NoError(t, err)

	assert.NotEqual(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestDeriveKey_EmptySecret(t *testing.T) {
	key, err := DeriveKey(nil, []byte("paseto-v4-local-key"))
	require.NoError(t, err)
	assert.Len(t, key, KeySize)
}
