package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenCodecSignVerifyRoundTrip(t *testing.T) {
	codec, err := NewTokenCodec([]byte("test-signing-key-0123456789abcdef"))
	require.NoError(t, err)

	token, err := codec.Sign(Claims{Subject: "user-1", Role: "authenticated", Email: "a@b.c"})
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "authenticated", claims.Role)
}

func TestTokenCodecSetsExpiryInTheFuture(t *testing.T) {
	codec, err := NewTokenCodec([]byte("test-signing-key-0123456789abcdef"))
	require.NoError(t, err)

	token, err := codec.Sign(Claims{Subject: "user-1", Role: "authenticated"})
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	require.Greater(t, claims.ExpiresAt, time.Now().Unix())
}

func TestTokenCodecRejectsWrongKey(t *testing.T) {
	codec, err := NewTokenCodec([]byte("test-signing-key-0123456789abcdef"))
	require.NoError(t, err)
	other, err := NewTokenCodec([]byte("a-totally-different-signing-key!"))
	require.NoError(t, err)

	token, err := codec.Sign(Claims{Subject: "user-1", Role: "authenticated"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	require.Error(t, err)
}

func TestTokenCodecResolveSatisfiesSqlengineResolver(t *testing.T) {
	codec, err := NewTokenCodec([]byte("test-signing-key-0123456789abcdef"))
	require.NoError(t, err)

	token, err := codec.Sign(Claims{Subject: "user-1", Role: "authenticated", Email: "a@b.c"})
	require.NoError(t, err)

	sub, role, email, claimsJSON, err := codec.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", sub)
	require.Equal(t, "authenticated", role)
	require.Equal(t, "a@b.c", email)
	require.Contains(t, claimsJSON, "user-1")
}
