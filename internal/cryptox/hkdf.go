package cryptox

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of every derived symmetric key.
const KeySize = 32

// DeriveKey expands secret into a KeySize key with HKDF-SHA256, no salt and
// info as the domain separation label. The output is deterministic for a
// given (secret, info) pair.
func DeriveKey(secret, info []byte) ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, info), key); err != nil {
		return nil, err
	}
	return key, nil
}
