package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
)

// OpenPostgres connects to a real networked PostgreSQL server instead
// of the embedded engine, for deployments that outgrow the in-process
// database. The same single-connection pinning applies: identity
// claims are session-scoped server state, so the connection must not
// be shared across concurrent requests.
//
// The claim functions (auth_uid and friends) are not registered here —
// against real Postgres the auth schema's SQL helper functions and the
// request.jwt.claim.* session settings serve that role. Rebind only
// rewrites placeholders: SQLite-specific forms the translator emits
// (INSERT OR REPLACE, LIKE ... COLLATE NOCASE, LIMIT -1) are passed
// through unchanged.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open postgres: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlengine: ping postgres: %w", err)
	}
	return db, nil
}

// Rebind rewrites a statement's ? placeholders into the $1..$N style
// PostgreSQL expects, skipping ? characters inside single-quoted
// string literals and double-quoted identifiers.
func Rebind(query string) string {
	var sb strings.Builder
	sb.Grow(len(query) + 8)

	n := 0
	var inString, inIdent bool
	for _, r := range query {
		switch {
		case r == '\'' && !inIdent:
			inString = !inString
		case r == '"' && !inString:
			inIdent = !inIdent
		case r == '?' && !inString && !inIdent:
			n++
			fmt.Fprintf(&sb, "$%d", n)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
