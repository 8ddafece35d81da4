// Package middleware provides HTTP middleware for authentication and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including bearer-token
// authentication and token-bucket rate limiting.
//
// # Middleware Components
//
// AuthMiddleware: Token-based authentication
//
//	authMW := middleware.NewAuthMiddleware(codec, true)
//	handler = authMW.Handler(handler)
//	// Extracts Bearer token, verifies it, adds AuthContext to the request;
//	// optional mode degrades missing/invalid tokens to anonymous
//
// RateLimitMiddleware: In-memory rate limiting
//
//	rateLimit := middleware.NewRateLimitMiddleware()
//	handler = rateLimit.Handler(handler)
//	// Keys authenticated callers by claims subject, anonymous ones by IP
//
// RequireAuthenticated: guard for handlers that need a verified
// authenticated-role caller.
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-User: 1000 req/min, 50 burst
// Service role: 5000 req/min, 100 burst
//
// # Related Packages
//
//   - pkg/auth: token signing and verification
//   - pkg/authrouter: per-IP limiting on the token endpoint
package middleware
