package sqlengine

import "context"

// Claims holds the four session-local claim variables a bound request
// makes visible to SQL predicates via auth_uid()/auth_role()/auth_email()/
// auth_jwt() (spec's request.jwt.claim.* session variables).
type Claims struct {
	Sub        string
	Role       string
	Email      string
	ClaimsJSON string
}

// Anonymous is the claim set bound when no bearer token is present or the
// token fails verification.
func Anonymous() Claims {
	return Claims{Role: "anon", ClaimsJSON: `{"role":"anon"}`}
}

// Resolver turns a bearer token into the claim values that should be
// bound for the rest of the request. It is satisfied by
// *auth.TokenCodec without this package importing pkg/auth, keeping the
// dependency direction auth -> sqlengine rather than the reverse.
type Resolver interface {
	Resolve(token string) (sub, role, email, claimsJSON string, err error)
}

// Bind pins c onto the engine's single connection for the duration of
// the next statements. Binding never itself fails: callers that fail to
// verify a token should bind Anonymous() instead of propagating the
// error, matching spec's "verification failure degrades to anonymous"
// rule.
func (e *Engine) Bind(ctx context.Context, c Claims) error {
	e.mu.Lock()
	e.claims = c
	e.mu.Unlock()
	return nil
}

// BindBearer resolves bearer (if any) via r and binds the result,
// falling back to Anonymous() whenever bearer is empty or resolution
// fails. It never returns an error for that reason; an error return
// value is reserved for engine-level failures, of which there
// currently are none since binding is pure in-memory state.
func (e *Engine) BindBearer(ctx context.Context, bearer string, r Resolver) error {
	if bearer == "" || r == nil {
		return e.Bind(ctx, Anonymous())
	}
	sub, role, email, claimsJSON, err := r.Resolve(bearer)
	if err != nil {
		return e.Bind(ctx, Anonymous())
	}
	return e.Bind(ctx, Claims{Sub: sub, Role: role, Email: email, ClaimsJSON: claimsJSON})
}

// ResetRole mirrors real Supabase's unconditional `RESET ROLE` on
// Storage routes and signed/public downloads, where the storage server
// runs as a privileged role while still honoring the bound claims for
// row-level policies. The embedded engine has no role system, so this
// is a recorded no-op kept for symmetry with a real Postgres deployment.
func (e *Engine) ResetRole(ctx context.Context) error {
	return nil
}

// CurrentClaims returns the claims currently bound on the connection.
func (e *Engine) CurrentClaims() Claims {
	return e.currentClaims()
}
