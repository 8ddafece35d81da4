package auth

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	josejwt "github.com/go-jose/go-jose/v4/jwt"

	jose "github.com/go-jose/go-jose/v4"
)

// AccessTokenTTL is how long an issued access token remains valid.
const AccessTokenTTL = time.Hour

// TokenCodec signs and verifies the HS256 access tokens the rest of
// the subsystem treats as opaque bearer strings. It satisfies
// pkg/sqlengine.Resolver so a bound Engine can turn a bearer token
// into connection-local identity claims without importing this
// package.
type TokenCodec struct {
	signer jose.Signer
	key    []byte
}

// NewTokenCodec builds a codec around an HS256 signing key.
func NewTokenCodec(key []byte) (*TokenCodec, error) {
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: key}, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: build signer: %w", err)
	}
	return &TokenCodec{signer: signer, key: key}, nil
}

// Sign issues a signed access token for the given claims, stamping
// IssuedAt/ExpiresAt from now.
func (c *TokenCodec) Sign(claims Claims) (string, error) {
	now := time.Now()
	claims.IssuedAt = now.Unix()
	claims.ExpiresAt = now.Add(AccessTokenTTL).Unix()

	builder := josejwt.Signed(c.signer).Claims(claims)
	token, err := builder.Serialize()
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return token, nil
}

// Verify parses and cryptographically verifies a token, additionally
// rejecting an expired one.
func (c *TokenCodec) Verify(token string) (Claims, error) {
	parsed, err := josejwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("auth: parse token: %w", err)
	}

	var claims Claims
	if err := parsed.Claims(c.key, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: %w: %v", ErrInvalidGrant, err)
	}
	if time.Now().Unix() > claims.ExpiresAt {
		return Claims{}, fmt.Errorf("auth: token expired: %w", ErrInvalidGrant)
	}
	return claims, nil
}

// ExtractUnverified decodes a token's payload WITHOUT verifying its
// signature or expiry. Sign-out uses it so a just-expired token can
// still name the session to revoke; never trust its output for
// anything that grants access.
func ExtractUnverified(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Claims{}, fmt.Errorf("auth: malformed token")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return Claims{}, fmt.Errorf("auth: decode token payload: %w", err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("auth: parse token payload: %w", err)
	}
	return claims, nil
}

// Resolve implements pkg/sqlengine.Resolver, turning a bearer token
// into the (sub, role, email, claimsJSON) tuple the engine binds to
// its connection-local auth_uid()/auth_role()/auth_email()/auth_jwt()
// functions.
func (c *TokenCodec) Resolve(token string) (sub, role, email, claimsJSON string, err error) {
	claims, err := c.Verify(token)
	if err != nil {
		return "", "", "", "", err
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", "", "", "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	return claims.Subject, claims.Role, claims.Email, string(raw), nil
}
