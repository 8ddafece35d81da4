package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/basestub/basestub/pkg/async"
	"github.com/basestub/basestub/pkg/audit"
	"github.com/basestub/basestub/pkg/webhooks"
)

var tracer = otel.Tracer("github.com/basestub/basestub/pkg/auth")

// Handler implements the HTTP-facing operations of the Auth module:
// sign up, sign in, token refresh, and sign out, each producing the
// same TokenResponse shape and publishing an Event on the package's
// broadcaster so listeners can mirror Supabase's onAuthStateChange.
type Handler struct {
	store       *Store
	broadcaster *webhooks.Broadcaster[Event]

	mu      sync.Mutex
	current *TokenResponse
}

// NewHandler builds a Handler around a Store.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store, broadcaster: webhooks.NewBroadcaster[Event]()}
}

// GetSession returns the in-memory current session, nil when signed
// out.
func (h *Handler) GetSession() *TokenResponse {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// SetSession replaces the in-memory current session; pass nil to
// clear it.
func (h *Handler) SetSession(session *TokenResponse) {
	h.mu.Lock()
	h.current = session
	h.mu.Unlock()
}

// OnAuthStateChange registers a listener for auth Events, returning a
// Subscription usable with Unsubscribe. The new subscriber is sent an
// asynchronous INITIAL_SESSION event carrying the current session (or
// nil), matching what Supabase clients expect on subscribe.
func (h *Handler) OnAuthStateChange(cb webhooks.Callback[Event]) webhooks.Subscription {
	sub := h.broadcaster.Subscribe(cb)
	async.SafeGoNoError(context.Background(), time.Second, "auth initial session", func(ctx context.Context) {
		cb(string(EventInitialSession), Event{Type: EventInitialSession, Session: h.GetSession()})
	})
	return sub
}

// Unsubscribe removes a previously registered listener.
func (h *Handler) Unsubscribe(sub webhooks.Subscription) {
	h.broadcaster.Unsubscribe(sub)
}

// SignUp creates a user and immediately signs them in, matching
// Supabase's default auto-confirm-in-development behavior.
func (h *Handler) SignUp(ctx context.Context, req SignUpRequest) (*TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "auth.SignUp")
	defer span.End()

	user, err := h.store.SignUp(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = audit.LogFailure(ctx, audit.EventTypeAuthSignUp, "sign up failed", err)
		return nil, err
	}

	resp, err := h.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	_ = audit.QuickLog(ctx, audit.EventTypeAuthSignUp, audit.EventStatusSuccess, "user signed up")
	h.SetSession(resp)
	h.broadcaster.Publish(string(EventSignedIn), Event{Type: EventSignedIn, Session: resp})
	return resp, nil
}

// SignInWithPassword verifies credentials and issues a new session.
func (h *Handler) SignInWithPassword(ctx context.Context, req SignInRequest) (*TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "auth.SignInWithPassword")
	defer span.End()

	user, err := h.store.VerifyCredentials(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = audit.LogFailure(ctx, audit.EventTypeAuthSignInFailed, "sign in failed", err)
		return nil, err
	}
	if err := h.store.TouchLastSignIn(ctx, user.ID); err != nil {
		span.RecordError(err)
	}

	resp, err := h.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}
	_ = audit.QuickLog(ctx, audit.EventTypeAuthSignIn, audit.EventStatusSuccess, "user signed in")
	h.SetSession(resp)
	h.broadcaster.Publish(string(EventSignedIn), Event{Type: EventSignedIn, Session: resp})
	return resp, nil
}

// RefreshSession rotates a refresh token and issues a fresh access
// token for the same session.
func (h *Handler) RefreshSession(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "auth.RefreshSession")
	defer span.End()

	sess, rt, err := h.store.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		_ = audit.LogFailure(ctx, audit.EventTypeAuthTokenInvalid, "refresh token rejected", err)
		return nil, err
	}

	user, err := h.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	resp, err := h.buildTokenResponse(ctx, user, sess, rt)
	if err != nil {
		return nil, err
	}
	_ = audit.QuickLog(ctx, audit.EventTypeAuthTokenRefresh, audit.EventStatusSuccess, "session refreshed")
	h.SetSession(resp)
	h.broadcaster.Publish(string(EventTokenRefreshed), Event{Type: EventTokenRefreshed, Session: resp})
	return resp, nil
}

// SignOut revokes the session named by the given access token. The
// token's session_id is extracted without requiring signature
// validity so a just-expired token can still sign out. The in-memory
// current session is cleared and SIGNED_OUT broadcast regardless of
// whether a server-side session could be revoked.
func (h *Handler) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "auth.SignOut")
	defer span.End()

	defer func() {
		h.SetSession(nil)
		h.broadcaster.Publish(string(EventSignedOut), Event{Type: EventSignedOut})
	}()

	if accessToken == "" {
		return nil
	}
	claims, err := ExtractUnverified(accessToken)
	if err != nil {
		span.RecordError(err)
		return err
	}
	sessionID, err := parseUUID(claims.SessionID)
	if err != nil {
		return err
	}
	if err := h.store.SignOut(ctx, sessionID); err != nil {
		span.RecordError(err)
		return err
	}
	_ = audit.QuickLog(ctx, audit.EventTypeAuthSignOut, audit.EventStatusSuccess, "user signed out")
	return nil
}

// GetUser verifies an access token and returns the user it names.
func (h *Handler) GetUser(ctx context.Context, accessToken string) (*User, error) {
	codec, err := h.store.Codec(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(claims.Subject)
	if err != nil {
		return nil, err
	}
	return h.store.GetUserByID(ctx, id)
}

// UpdateUser verifies an access token and applies the supplied field
// changes to the user it names. On success a fresh access token
// carrying the new claim values is minted for the same session and
// broadcast with USER_UPDATED.
func (h *Handler) UpdateUser(ctx context.Context, accessToken string, req UpdateUserRequest) (*User, error) {
	codec, err := h.store.Codec(ctx)
	if err != nil {
		return nil, err
	}
	claims, err := codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	id, err := parseUUID(claims.Subject)
	if err != nil {
		return nil, err
	}

	updated, err := h.store.UpdateUser(ctx, id, req)
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return updated, nil
	}

	fresh, err := codec.Sign(Claims{
		Subject:      updated.ID.String(),
		Role:         updated.Role,
		Email:        updated.Email,
		Aud:          updated.Aud,
		SessionID:    claims.SessionID,
		AppMetadata:  updated.AppMetadata,
		UserMetadata: updated.UserMetadata,
	})
	if err != nil {
		return nil, err
	}
	h.broadcaster.Publish(string(EventUserUpdated), Event{Type: EventUserUpdated, Session: &TokenResponse{
		AccessToken: fresh,
		TokenType:   "bearer",
		User:        updated,
	}})
	return updated, nil
}

func (h *Handler) issueSession(ctx context.Context, user *User) (*TokenResponse, error) {
	sess, rt, err := h.store.CreateSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return h.buildTokenResponse(ctx, user, sess, rt)
}

func (h *Handler) buildTokenResponse(ctx context.Context, user *User, sess *Session, rt *RefreshToken) (*TokenResponse, error) {
	codec, err := h.store.Codec(ctx)
	if err != nil {
		return nil, err
	}

	claims := Claims{
		Subject:      user.ID.String(),
		Role:         user.Role,
		Email:        user.Email,
		Aud:          user.Aud,
		SessionID:    sess.ID.String(),
		AppMetadata:  user.AppMetadata,
		UserMetadata: user.UserMetadata,
	}
	access, err := codec.Sign(claims)
	if err != nil {
		return nil, err
	}

	return &TokenResponse{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(AccessTokenTTL.Seconds()),
		ExpiresAt:    claims.ExpiresAt,
		RefreshToken: rt.Token,
		User:         user,
	}, nil
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}
