// Package cryptox holds the low-level primitives used by the server:
// Argon2id password hashing in PHC string format and HKDF key derivation.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cellscope/internal/common"
	"golang.org/x/crypto/argon2"
)

var (
	ErrMalformedHash      = errors.New("malformed password hash")
	ErrIncompatibleHash   = errors.New("unsupported password hash algorithm or version")
	ErrRandomSourceFailed = errors.New("random source failed")
)

// Argon2Params are the tunables of an Argon2id hash. Memory is in KiB.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Params follows the OWASP baseline for Argon2id
// (19 MiB, 2 passes, 1 lane).
var DefaultArgon2Params = Argon2Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// upper bound accepted when decoding a stored hash, 1 GiB
const maxMemoryKiB = 1 << 20

// HashPassword derives an Argon2id digest of password with a fresh random
// salt and returns it encoded as
//
//	$argon2id$v=19$m=<memory>,t=<iterations>,p=<parallelism>$<salt>$<digest>
//
// where salt and digest are unpadded standard base64.
func HashPassword(password []byte, p Argon2Params) (string, error) {
	salt := common.GenerateRandByteArray(int(p.SaltLength))
	if salt == nil {
		return "", ErrRandomSourceFailed
	}

	digest := argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return encodeHash(p, salt, digest), nil
}

// VerifyPassword re-derives the digest with the parameters and salt stored in
// encoded and compares it in constant time. A well-formed hash that does not
// match returns (false, nil); a malformed one returns an error.
func VerifyPassword(password []byte, encoded string) (bool, error) {
	p, salt, digest, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey(password, salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	defer common.WipeByteArray(candidate)

	return subtle.ConstantTimeCompare(digest, candidate) == 1, nil
}

func encodeHash(p Argon2Params, salt, digest []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Iterations, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
}

func decodeHash(encoded string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, ErrMalformedHash
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, ErrIncompatibleHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	if version != argon2.Version {
		return p, nil, nil, ErrIncompatibleHash
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrMalformedHash
	}
	if p.Memory == 0 || p.Memory > maxMemoryKiB || p.Iterations == 0 || p.Parallelism == 0 {
		return p, nil, nil, ErrMalformedHash
	}

	salt, err := base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return p, nil, nil, ErrMalformedHash
	}
	digest, err := base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil || len(digest) == 0 {
		return p, nil, nil, ErrMalformedHash
	}

	p.SaltLength = uint32(len(salt))
	p.KeyLength = uint32(len(digest))
	return p, salt, digest, nil
}
