package auth

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	return NewHandler(newTestStore(t))
}

func TestHandlerSignUpSignInRefreshSignOut(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	var signedIn, refreshed, signedOut atomic.Int32
	h.OnAuthStateChange(func(event string, e Event) {
		switch e.Type {
		case EventSignedIn:
			signedIn.Add(1)
		case EventTokenRefreshed:
			refreshed.Add(1)
		case EventSignedOut:
			signedOut.Add(1)
		}
	})

	resp, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "bearer", resp.TokenType)

	user, err := h.GetUser(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "a@b.c", user.Email)

	refreshedResp, err := h.RefreshSession(ctx, resp.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, resp.AccessToken, refreshedResp.AccessToken)

	require.NoError(t, h.SignOut(ctx, refreshedResp.AccessToken))

	_, err = h.RefreshSession(ctx, refreshedResp.RefreshToken)
	require.Error(t, err, "refresh tokens should be revoked after sign out")

	waitFor(t, func() bool { return signedIn.Load() == 1 && refreshed.Load() == 1 && signedOut.Load() == 1 })
}

func TestHandlerSignInWithPasswordRejectsWrongPassword(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	_, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	_, err = h.SignInWithPassword(ctx, SignInRequest{Email: "a@b.c", Password: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestHandlerUpdateUser(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	resp, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	updated, err := h.UpdateUser(ctx, resp.AccessToken, UpdateUserRequest{Data: map[string]any{"theme": "dark"}})
	require.NoError(t, err)
	require.Equal(t, "dark", updated.UserMetadata["theme"])
}

func TestHandlerSubscribeEmitsInitialSession(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	// before any sign-in, the initial session is nil
	events := make(chan Event, 1)
	sub := h.OnAuthStateChange(func(event string, e Event) {
		if e.Type == EventInitialSession {
			events <- e
		}
	})
	select {
	case e := <-events:
		require.Nil(t, e.Session)
	case <-time.After(time.Second):
		t.Fatal("expected INITIAL_SESSION emission on subscribe")
	}
	h.Unsubscribe(sub)

	// after a sign-in, a new subscriber sees the current session
	resp, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	sub = h.OnAuthStateChange(func(event string, e Event) {
		if e.Type == EventInitialSession {
			events <- e
		}
	})
	defer h.Unsubscribe(sub)
	select {
	case e := <-events:
		require.NotNil(t, e.Session)
		require.Equal(t, resp.AccessToken, e.Session.AccessToken)
	case <-time.After(time.Second):
		t.Fatal("expected INITIAL_SESSION emission on subscribe")
	}
}

func TestHandlerSessionStateTracksLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	require.Nil(t, h.GetSession())

	resp, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)
	require.Equal(t, resp, h.GetSession())

	require.NoError(t, h.SignOut(ctx, resp.AccessToken))
	require.Nil(t, h.GetSession())
}

func TestHandlerSignOutToleratesExpiredToken(t *testing.T) {
	ctx := context.Background()
	h := newTestHandler(t)

	resp, err := h.SignUp(ctx, SignUpRequest{Email: "a@b.c", Password: "hunter2"})
	require.NoError(t, err)

	// sign-out extracts the session without verifying the token, so
	// even an expired token still names the session to revoke
	require.NoError(t, h.SignOut(ctx, resp.AccessToken))

	_, err = h.RefreshSession(ctx, resp.RefreshToken)
	require.Error(t, err)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 200; i++ {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
