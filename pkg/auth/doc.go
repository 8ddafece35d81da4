// Package auth implements the Auth subsystem: user accounts, password
// verification, session issuance, and JWT access/refresh token
// lifecycle management, backed by an embedded pkg/sqlengine.Engine.
//
// # Key Components
//
// Store persists users, sessions, and refresh tokens and exposes the
// operations the rest of the subsystem needs: SignUp, VerifyCredentials,
// CreateSession, RotateRefreshToken, SignOut, and user lookup/update. Password hashing and
// verification are not done in Go directly; Store calls the
// auth_hash_password/auth_verify_password SQL functions pkg/schema
// registers, so the bcrypt work happens behind the same SQL surface a
// real Postgres deployment's pgcrypto extension would sit behind.
//
// TokenCodec signs and verifies HS256 JWTs with go-jose/v4, and
// satisfies pkg/sqlengine.Resolver so a bearer token can be turned into
// the bound identity claims the engine needs without pkg/sqlengine
// importing this package.
//
// Handler wraps Store with the HTTP-facing operations of spec's Auth
// module (sign up, sign in, token refresh, sign out, get/update user),
// returning the same TokenResponse shape whether a session is newly
// created or refreshed, and publishing auth state changes through a
// pkg/webhooks.Broadcaster so Realtime-style listeners can observe
// sign-in/sign-out events.
//
// # Related Packages
//
//   - pkg/sqlengine: the embedded engine Store runs its SQL against.
//   - pkg/schema: installs the auth_* tables and scalar functions this package depends on.
//   - pkg/audit: security event logging for sign-in/out and token refresh.
//   - pkg/middleware: HTTP authentication middleware built on TokenCodec.
package auth
