package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/schema"
	"github.com/basestub/basestub/pkg/sqlengine"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	e, err := sqlengine.Open(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })

	require.NoError(t, schema.InstallAuthSchema(ctx, e))
	require.NoError(t, schema.InstallStorageSchema(ctx, e))
	require.NoError(t, schema.RegisterFunctions(ctx, e))

	return NewStore(e)
}

func TestSignUpAndVerifyCredentials(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, "a@b.c", user.Email)
	require.Equal(t, "authenticated", user.Role)

	_, err = s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "other"})
	require.ErrorIs(t, err, ErrEmailExists)

	got, err := s.VerifyCredentials(ctx, SignInRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)

	_, err = s.VerifyCredentials(ctx, SignInRequest{Email: "a@b.c", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.VerifyCredentials(ctx, SignInRequest{Email: "nobody@b.c", Password: "x"})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateSessionAndRotateRefreshToken(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	sess, rt1, err := s.CreateSession(ctx, user.ID)
	require.NoError(t, err)
	require.NotEmpty(t, rt1.Token)

	sess2, rt2, err := s.RotateRefreshToken(ctx, rt1.Token)
	require.NoError(t, err)
	require.Equal(t, sess.ID, sess2.ID)
	require.NotEqual(t, rt1.Token, rt2.Token)

	// the rotated-out token must now be rejected, and reuse revokes the family.
	_, _, err = s.RotateRefreshToken(ctx, rt1.Token)
	require.ErrorIs(t, err, ErrRefreshTokenReused)

	_, _, err = s.RotateRefreshToken(ctx, rt2.Token)
	require.Error(t, err, "whole family should be revoked after reuse is detected")
}

func TestSignOutRevokesSession(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	sess, rt, err := s.CreateSession(ctx, user.ID)
	require.NoError(t, err)

	require.NoError(t, s.SignOut(ctx, sess.ID))

	_, _, err = s.RotateRefreshToken(ctx, rt.Token)
	require.ErrorIs(t, err, ErrRefreshTokenReused)
}

func TestCodecIsPersistedAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	c1, err := s.Codec(ctx)
	require.NoError(t, err)

	s.codec = nil // force a reload from auth_config
	c2, err := s.Codec(ctx)
	require.NoError(t, err)

	claims := Claims{Subject: "u1", Role: "authenticated"}
	token, err := c1.Sign(claims)
	require.NoError(t, err)

	got, err := c2.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "u1", got.Subject)
}

func TestUpdateUserMetadata(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	user, err := s.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	updated, err := s.UpdateUserMetadata(ctx, user.ID, map[string]any{"display_name": "Ada"})
	require.NoError(t, err)
	require.Equal(t, "Ada", updated.UserMetadata["display_name"])
}
