// Package authrouter exposes the Auth Handler over the /auth/v1/*
// HTTP surface: signup, the password and refresh-token grants, logout,
// user read/update, and the in-memory session. The /token endpoint is
// rate limited per client IP as a brute-force guard.
package authrouter
