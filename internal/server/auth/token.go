package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	"github.com/dmitrijs2005/cellscope/internal/common"
	"github.com/dmitrijs2005/cellscope/internal/cryptox"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// KeyInfo is the HKDF label under which the token key is derived from the
// operator secret.
const KeyInfo = "paseto-v4-local-key"

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims is the payload sealed inside a token. Expiration is an RFC 3339
// timestamp and is not enforced by the codec.
type Claims struct {
	Subject    string    `json:"sub"`
	Username   string    `json:"username,omitempty"`
	TokenType  TokenType `json:"token_type"`
	Expiration string    `json:"exp"`
}

// NewClaims builds claims for userID expiring at exp (second precision, UTC).
func NewClaims(userID uuid.UUID, username string, tokenType TokenType, exp time.Time) Claims {
	return Claims{
		Subject:    userID.String(),
		Username:   username,
		TokenType:  tokenType,
		Expiration: exp.UTC().Format(time.RFC3339),
	}
}

// ExpiresAt parses Expiration.
func (c Claims) ExpiresAt() (time.Time, error) {
	return time.Parse(time.RFC3339, c.Expiration)
}

// TokenCodec seals and opens PASETO v4.local tokens with a key derived once
// from the operator secret. It is safe for concurrent use.
type TokenCodec struct {
	key    paseto.V4SymmetricKey
	parser paseto.Parser
}

// NewTokenCodec derives the token key from secret. An empty secret is
// accepted here; rejecting it is a configuration concern.
func NewTokenCodec(secret []byte) (*TokenCodec, error) {
	raw, err := cryptox.DeriveKey(secret, []byte(KeyInfo))
	if err != nil {
		return nil, fmt.Errorf("derive token key: %w", err)
	}
	defer common.WipeByteArray(raw)

	key, err := paseto.V4SymmetricKeyFromBytes(raw)
	if err != nil {
		return nil, fmt.Errorf("build token key: %w", err)
	}

	return &TokenCodec{
		key:    key,
		parser: paseto.NewParserWithoutExpiryCheck(),
	}, nil
}

// Issue seals claims into a v4.local token. Every call draws a fresh nonce.
func (c *TokenCodec) Issue(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}

	token, err := paseto.NewTokenFromClaimsJSON(payload, nil)
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}

	return token.V4Encrypt(c.key, nil), nil
}

// Verify authenticates and decrypts token, then decodes its claims. Any
// failure, whether a forged tag, a wrong version header or a payload of the
// wrong shape, is reported as common.ErrInvalidToken.
func (c *TokenCodec) Verify(token string) (Claims, error) {
	parsed, err := c.parser.ParseV4Local(c.key, token, nil)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	claims, err := decodeClaims(parsed.ClaimsJSON())
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	return claims, nil
}

var errClaimsShape = errors.New("claims missing sub, token_type or exp")

func decodeClaims(data []byte) (Claims, error) {
	var c Claims
	if err := json.Unmarshal(data, &c); err != nil {
		return Claims{}, err
	}
	if c.Subject == "" || c.TokenType == "" || c.Expiration == "" {
		return Claims{}, errClaimsShape
	}
	return c, nil
}
