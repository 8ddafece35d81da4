package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/basestub/basestub/pkg/sqlengine"
)

// Store persists users, sessions, and refresh tokens against an
// embedded pkg/sqlengine.Engine, and owns the HS256 signing key used
// to build the package's TokenCodec.
//
// The signing key itself lives in auth_config so it survives process
// restarts; Store.Codec lazily generates and persists one on first
// use. Concurrent first callers are collapsed through a
// singleflight.Group so only one generate-then-persist round trip
// happens regardless of how many goroutines ask for a codec before it
// exists.
type Store struct {
	engine *sqlengine.Engine

	keyGroup singleflight.Group
	codec    *TokenCodec
}

// NewStore wraps an engine that already has the auth schema installed.
func NewStore(engine *sqlengine.Engine) *Store {
	return &Store{engine: engine}
}

const signingKeyConfigKey = "jwt_signing_key"

// Codec returns the package's TokenCodec, generating and persisting a
// random signing key on first call if one isn't already stored.
func (s *Store) Codec(ctx context.Context) (*TokenCodec, error) {
	if s.codec != nil {
		return s.codec, nil
	}

	v, err, _ := s.keyGroup.Do("signing-key", func() (any, error) {
		if s.codec != nil {
			return s.codec, nil
		}

		row := s.engine.QueryRow(ctx, `SELECT value FROM auth_config WHERE key = ?`, signingKeyConfigKey)
		var encoded string
		switch err := row.Scan(&encoded); {
		case err == nil:
			key := []byte(encoded)
			codec, err := NewTokenCodec(key)
			if err != nil {
				return nil, err
			}
			s.codec = codec
			return codec, nil
		case errors.Is(err, sql.ErrNoRows):
			key := make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return nil, fmt.Errorf("auth: generate signing key: %w", err)
			}
			if _, err := s.engine.Exec(ctx, `INSERT INTO auth_config (key, value) VALUES (?, ?)`, signingKeyConfigKey, string(key)); err != nil {
				return nil, fmt.Errorf("auth: persist signing key: %w", err)
			}
			codec, err := NewTokenCodec(key)
			if err != nil {
				return nil, err
			}
			s.codec = codec
			return codec, nil
		default:
			return nil, fmt.Errorf("auth: load signing key: %w", err)
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*TokenCodec), nil
}

// Resolve implements sqlengine.Resolver, so a Store can be handed
// straight to Engine.BindBearer. The codec is built lazily on first
// use; resolution failures degrade the caller to anonymous claims.
func (s *Store) Resolve(token string) (sub, role, email, claimsJSON string, err error) {
	codec, err := s.Codec(context.Background())
	if err != nil {
		return "", "", "", "", err
	}
	return codec.Resolve(token)
}

// SigningKey returns the HS256 key backing the package's TokenCodec.
// Storage signed URLs are HMAC'd with the same key so a process
// restart invalidates neither tokens nor signed URLs.
func (s *Store) SigningKey(ctx context.Context) ([]byte, error) {
	codec, err := s.Codec(ctx)
	if err != nil {
		return nil, err
	}
	return codec.key, nil
}

// SignUp creates a new user with a bcrypt-hashed password, issuing the
// hash through the auth_hash_password SQL function rather than calling
// bcrypt from Go directly.
func (s *Store) SignUp(ctx context.Context, req SignUpRequest) (*User, error) {
	var exists int64
	row := s.engine.QueryRow(ctx, `SELECT COUNT(*) FROM auth_users WHERE email = ? AND deleted_at IS NULL`, req.Email)
	if err := row.Scan(&exists); err != nil {
		return nil, fmt.Errorf("auth: check existing email: %w", err)
	}
	if exists > 0 {
		return nil, ErrEmailExists
	}

	metadata, err := marshalMetadata(req.UserMetadata)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	now := time.Now().UTC()

	_, err = s.engine.Exec(ctx, `
		INSERT INTO auth_users (id, email, encrypted_password, role, aud, app_metadata, user_metadata, created_at, updated_at)
		VALUES (?, ?, auth_hash_password(?), 'authenticated', 'authenticated', '{}', ?, ?, ?)`,
		id.String(), req.Email, req.Password, metadata, now, now)
	if err != nil {
		return nil, fmt.Errorf("auth: insert user: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// VerifyCredentials loads the user by email and verifies the password
// against the stored hash via the auth_verify_password SQL function.
func (s *Store) VerifyCredentials(ctx context.Context, req SignInRequest) (*User, error) {
	user, err := s.GetUserByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if user.IsBanned() {
		return nil, ErrUserBanned
	}

	var ok int64
	row := s.engine.QueryRow(ctx, `SELECT auth_verify_password(?, ?)`, user.EncryptedPassword, req.Password)
	if err := row.Scan(&ok); err != nil {
		return nil, fmt.Errorf("auth: verify password: %w", err)
	}
	if ok == 0 {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUserByEmail looks up a non-deleted user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	rows, _, err := s.engine.Query(ctx, `
		SELECT id, email, encrypted_password, role, aud, app_metadata, user_metadata,
		       banned_until, last_sign_in_at, created_at, updated_at, deleted_at
		FROM auth_users WHERE email = ? AND deleted_at IS NULL`, email)
	if err != nil {
		return nil, fmt.Errorf("auth: query user by email: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}
	return scanUser(rows[0])
}

// GetUserByID looks up a non-deleted user by ID.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	rows, _, err := s.engine.Query(ctx, `
		SELECT id, email, encrypted_password, role, aud, app_metadata, user_metadata,
		       banned_until, last_sign_in_at, created_at, updated_at, deleted_at
		FROM auth_users WHERE id = ? AND deleted_at IS NULL`, id.String())
	if err != nil {
		return nil, fmt.Errorf("auth: query user by id: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrUserNotFound
	}
	return scanUser(rows[0])
}

// UpdateUser applies an update-user request, building an UPDATE over
// only the supplied fields. Data merges key-by-key into the existing
// user_metadata; a password change is re-hashed through
// auth_hash_password.
func (s *Store) UpdateUser(ctx context.Context, id uuid.UUID, req UpdateUserRequest) (*User, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.IsEmpty() {
		return user, nil
	}

	setClauses := []string{"updated_at = ?"}
	args := []any{time.Now().UTC()}

	if req.Email != nil {
		setClauses = append(setClauses, "email = ?")
		args = append(args, *req.Email)
	}
	if req.Password != nil {
		setClauses = append(setClauses, "encrypted_password = auth_hash_password(?)")
		args = append(args, *req.Password)
	}
	if len(req.Data) > 0 {
		merged := make(map[string]any, len(user.UserMetadata)+len(req.Data))
		for k, v := range user.UserMetadata {
			merged[k] = v
		}
		for k, v := range req.Data {
			merged[k] = v
		}
		encoded, err := marshalMetadata(merged)
		if err != nil {
			return nil, err
		}
		setClauses = append(setClauses, "user_metadata = ?")
		args = append(args, encoded)
	}

	args = append(args, id.String())
	query := "UPDATE auth_users SET " + strings.Join(setClauses, ", ") + " WHERE id = ? AND deleted_at IS NULL"
	if _, err := s.engine.Exec(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("auth: update user: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

// UpdateUserMetadata merges new user_metadata into an existing user.
func (s *Store) UpdateUserMetadata(ctx context.Context, id uuid.UUID, metadata map[string]any) (*User, error) {
	return s.UpdateUser(ctx, id, UpdateUserRequest{Data: metadata})
}

// TouchLastSignIn records a successful sign-in timestamp.
func (s *Store) TouchLastSignIn(ctx context.Context, id uuid.UUID) error {
	now := time.Now().UTC()
	_, err := s.engine.Exec(ctx, `UPDATE auth_users SET last_sign_in_at = ? WHERE id = ?`, now, id.String())
	return err
}

// CreateSession starts a new session for a user, inside a transaction
// that also inserts the session's first refresh token.
func (s *Store) CreateSession(ctx context.Context, userID uuid.UUID) (*Session, *RefreshToken, error) {
	sess := &Session{ID: uuid.New(), UserID: userID, CreatedAt: time.Now().UTC(), RefreshedAt: time.Now().UTC()}

	var token *RefreshToken
	err := s.engine.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO auth_sessions (id, user_id, created_at, refreshed_at) VALUES (?, ?, ?, ?)`,
			sess.ID.String(), sess.UserID.String(), sess.CreatedAt, sess.RefreshedAt); err != nil {
			return fmt.Errorf("insert session: %w", err)
		}

		rt, err := s.newRefreshTokenTx(ctx, tx, sess, "")
		if err != nil {
			return err
		}
		token = rt
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("auth: create session: %w", err)
	}
	return sess, token, nil
}

func (s *Store) newRefreshTokenTx(ctx context.Context, tx *sql.Tx, sess *Session, parent string) (*RefreshToken, error) {
	row := tx.QueryRowContext(ctx, `SELECT auth_generate_token(32)`)
	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	rt := &RefreshToken{Token: raw, UserID: sess.UserID, SessionID: sess.ID, Parent: parent, CreatedAt: time.Now().UTC()}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO auth_refresh_tokens (token, user_id, session_id, parent, revoked, created_at)
		VALUES (?, ?, ?, ?, 0, ?)`,
		rt.Token, rt.UserID.String(), rt.SessionID.String(), nullIfEmpty(rt.Parent), rt.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert refresh token: %w", err)
	}
	return rt, nil
}

// RotateRefreshToken exchanges a refresh token for a new one, rejecting
// reuse of an already-revoked token (spec's replay-detection
// requirement) by revoking the entire session's token family when that
// happens.
func (s *Store) RotateRefreshToken(ctx context.Context, token string) (*Session, *RefreshToken, error) {
	rows, _, err := s.engine.Query(ctx, `SELECT token, user_id, session_id, parent, revoked, created_at FROM auth_refresh_tokens WHERE token = ?`, token)
	if err != nil {
		return nil, nil, fmt.Errorf("auth: query refresh token: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, ErrInvalidGrant
	}

	current, err := scanRefreshToken(rows[0])
	if err != nil {
		return nil, nil, err
	}
	if current.Revoked {
		_ = s.revokeSessionFamily(ctx, current.SessionID)
		return nil, nil, ErrRefreshTokenReused
	}

	sessRows, _, err := s.engine.Query(ctx, `SELECT id, user_id, created_at, refreshed_at FROM auth_sessions WHERE id = ?`, current.SessionID.String())
	if err != nil || len(sessRows) == 0 {
		return nil, nil, ErrSessionNotFound
	}
	sess, err := scanSession(sessRows[0])
	if err != nil {
		return nil, nil, err
	}

	var next *RefreshToken
	err = s.engine.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE auth_refresh_tokens SET revoked = 1 WHERE token = ?`, current.Token); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE auth_sessions SET refreshed_at = ? WHERE id = ?`, time.Now().UTC(), sess.ID.String()); err != nil {
			return err
		}
		rt, err := s.newRefreshTokenTx(ctx, tx, sess, current.Token)
		if err != nil {
			return err
		}
		next = rt
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("auth: rotate refresh token: %w", err)
	}
	sess.RefreshedAt = time.Now().UTC()
	return sess, next, nil
}

func (s *Store) revokeSessionFamily(ctx context.Context, sessionID uuid.UUID) error {
	_, err := s.engine.Exec(ctx, `UPDATE auth_refresh_tokens SET revoked = 1 WHERE session_id = ?`, sessionID.String())
	return err
}

// SignOut revokes every refresh token belonging to a session and
// deletes the session row itself.
func (s *Store) SignOut(ctx context.Context, sessionID uuid.UUID) error {
	return s.engine.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE auth_refresh_tokens SET revoked = 1 WHERE session_id = ?`, sessionID.String()); err != nil {
			return fmt.Errorf("revoke session tokens: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM auth_sessions WHERE id = ?`, sessionID.String()); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// SignOutAllSessions revokes every refresh token belonging to every
// session of a user.
func (s *Store) SignOutAllSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := s.engine.Exec(ctx, `
		UPDATE auth_refresh_tokens SET revoked = 1
		WHERE session_id IN (SELECT id FROM auth_sessions WHERE user_id = ?)`, userID.String())
	return err
}

// CleanupExpiredRefreshTokens deletes revoked refresh tokens older
// than the given age, called from the scheduled maintenance sweep in
// cleanup.go.
func (s *Store) CleanupExpiredRefreshTokens(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	res, err := s.engine.Exec(ctx, `DELETE FROM auth_refresh_tokens WHERE revoked = 1 AND created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("auth: cleanup expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}

func scanUser(row map[string]any) (*User, error) {
	u := &User{}
	var err error
	if u.ID, err = uuid.Parse(asString(row["id"])); err != nil {
		return nil, fmt.Errorf("auth: scan user id: %w", err)
	}
	u.Email = asString(row["email"])
	u.EncryptedPassword = asString(row["encrypted_password"])
	u.Role = asString(row["role"])
	u.Aud = asString(row["aud"])
	if u.AppMetadata, err = unmarshalMetadata(asString(row["app_metadata"])); err != nil {
		return nil, err
	}
	if u.UserMetadata, err = unmarshalMetadata(asString(row["user_metadata"])); err != nil {
		return nil, err
	}
	u.BannedUntil = asTimePtr(row["banned_until"])
	u.LastSignInAt = asTimePtr(row["last_sign_in_at"])
	u.CreatedAt = asTime(row["created_at"])
	u.UpdatedAt = asTime(row["updated_at"])
	u.DeletedAt = asTimePtr(row["deleted_at"])
	return u, nil
}

func scanSession(row map[string]any) (*Session, error) {
	s := &Session{}
	var err error
	if s.ID, err = uuid.Parse(asString(row["id"])); err != nil {
		return nil, err
	}
	if s.UserID, err = uuid.Parse(asString(row["user_id"])); err != nil {
		return nil, err
	}
	s.CreatedAt = asTime(row["created_at"])
	s.RefreshedAt = asTime(row["refreshed_at"])
	return s, nil
}

func scanRefreshToken(row map[string]any) (*RefreshToken, error) {
	rt := &RefreshToken{}
	var err error
	rt.Token = asString(row["token"])
	if rt.UserID, err = uuid.Parse(asString(row["user_id"])); err != nil {
		return nil, err
	}
	if rt.SessionID, err = uuid.Parse(asString(row["session_id"])); err != nil {
		return nil, err
	}
	rt.Parent = asString(row["parent"])
	rt.Revoked = asInt64(row["revoked"]) != 0
	rt.CreatedAt = asTime(row["created_at"])
	return rt, nil
}

func marshalMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("auth: marshal metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]any, error) {
	if s == "" {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("auth: unmarshal metadata: %w", err)
	}
	return m, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
