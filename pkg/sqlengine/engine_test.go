package sqlengine

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineBindAndClaimFunctions(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Exec(ctx, "CREATE TABLE t (id TEXT)")
	require.NoError(t, err)

	require.NoError(t, e.Bind(ctx, Claims{Sub: "user-1", Role: "authenticated", Email: "a@b.c", ClaimsJSON: `{"role":"authenticated"}`}))

	rows, _, err := e.Query(ctx, "SELECT auth_uid() AS uid, auth_role() AS role, auth_email() AS email")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "user-1", rows[0]["uid"])
	require.Equal(t, "authenticated", rows[0]["role"])
	require.Equal(t, "a@b.c", rows[0]["email"])
}

func TestEngineBindAnonymousDefault(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	rows, _, err := e.Query(ctx, "SELECT auth_role() AS role")
	require.NoError(t, err)
	require.Equal(t, "anon", rows[0]["role"])
}

func TestBindBearerFallsBackToAnonymousOnError(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.BindBearer(ctx, "not-a-real-token", failingResolver{}))
	require.Equal(t, "anon", e.CurrentClaims().Role)
}

type failingResolver struct{}

func (failingResolver) Resolve(token string) (string, string, string, string, error) {
	return "", "", "", "", errInvalid
}

var errInvalid = &resolverError{"invalid"}

type resolverError struct{ msg string }

func (e *resolverError) Error() string { return e.msg }

func TestTransactionCommitsAndRollsBack(t *testing.T) {
	ctx := context.Background()
	e, err := Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Exec(ctx, "CREATE TABLE t (id INTEGER)")
	require.NoError(t, err)

	err = e.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (1)")
		return err
	})
	require.NoError(t, err)

	rows, _, err := e.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	err = e.Transaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO t (id) VALUES (2)"); err != nil {
			return err
		}
		return errInvalid
	})
	require.Error(t, err)

	rows, _, err = e.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	require.Len(t, rows, 1, "failed transaction must roll back")
}
