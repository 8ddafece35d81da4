package auth

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrEmailExists        = errors.New("auth: email already registered")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidGrant       = errors.New("auth: invalid_grant")
	ErrSessionNotFound    = errors.New("auth: session not found")
	ErrUserBanned         = errors.New("auth: user is banned")
	ErrRefreshTokenReused = errors.New("auth: refresh token already used")
)

// User is a row of auth_users. The password hash never serializes.
type User struct {
	ID                uuid.UUID      `json:"id"`
	Email             string         `json:"email"`
	EncryptedPassword string         `json:"-"`
	Role              string         `json:"role"`
	Aud               string         `json:"aud"`
	AppMetadata       map[string]any `json:"app_metadata"`
	UserMetadata      map[string]any `json:"user_metadata"`
	BannedUntil       *time.Time     `json:"banned_until,omitempty"`
	LastSignInAt      *time.Time     `json:"last_sign_in_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         *time.Time     `json:"-"`
}

// IsBanned reports whether the user is currently under a ban.
func (u *User) IsBanned() bool {
	return u.BannedUntil != nil && u.BannedUntil.After(time.Now())
}

// Session is a row of auth_sessions: one login, tracked independently
// of the refresh tokens rotated underneath it.
type Session struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	CreatedAt   time.Time
	RefreshedAt time.Time
}

// RefreshToken is a row of auth_refresh_tokens. Parent links a rotated
// token to its predecessor so reuse of a revoked token can be detected.
type RefreshToken struct {
	Token     string
	UserID    uuid.UUID
	SessionID uuid.UUID
	Parent    string
	Revoked   bool
	CreatedAt time.Time
}

// Claims is the JWT payload TokenCodec signs and verifies.
type Claims struct {
	Subject      string         `json:"sub"`
	Role         string         `json:"role"`
	Email        string         `json:"email,omitempty"`
	Aud          string         `json:"aud,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	AppMetadata  map[string]any `json:"app_metadata,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	IssuedAt     int64          `json:"iat"`
	ExpiresAt    int64          `json:"exp"`
}

// TokenResponse is the response body shape for sign-in, sign-up, and
// token-refresh operations.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	RefreshToken string `json:"refresh_token"`
	User         *User  `json:"user"`
}

// EventType identifies the kind of auth state change published through
// the Handler's broadcaster.
type EventType string

const (
	EventInitialSession EventType = "INITIAL_SESSION"
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is published on every auth state change.
type Event struct {
	Type    EventType
	Session *TokenResponse
}

// SignUpRequest is the input to Store.SignUp.
type SignUpRequest struct {
	Email       string
	Password    string
	UserMetadata map[string]any
}

// SignInRequest is the input to Store.VerifyCredentials and
// Handler.SignInWithPassword.
type SignInRequest struct {
	Email    string
	Password string
}

// UpdateUserRequest carries the fields an update-user call supplies;
// nil fields are left untouched, and Data merges into the existing
// user_metadata rather than replacing it.
type UpdateUserRequest struct {
	Email    *string        `json:"email,omitempty"`
	Password *string        `json:"password,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// IsEmpty reports whether the request changes nothing.
func (r UpdateUserRequest) IsEmpty() bool {
	return r.Email == nil && r.Password == nil && len(r.Data) == 0
}
