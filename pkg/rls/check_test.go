package rls

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/sqlengine"
)

func TestEvaluateCheckAgainstLiteralRow(t *testing.T) {
	ctx := context.Background()
	e, err := sqlengine.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	require.NoError(t, e.Bind(ctx, sqlengine.Claims{Sub: "user-1", Role: "authenticated"}))

	ok, err := EvaluateCheck(ctx, e, `owner_id = auth_uid()`, map[string]any{
		"owner_id": "user-1",
		"name":     "file.png",
	})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = EvaluateCheck(ctx, e, `owner_id = auth_uid()`, map[string]any{
		"owner_id": "someone-else",
		"name":     "file.png",
	})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestEvaluateCheckEmptyIsAlwaysTrue(t *testing.T) {
	ctx := context.Background()
	e, err := sqlengine.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer e.Close()

	ok, err := EvaluateCheck(ctx, e, "", map[string]any{"x": 1})
	require.NoError(t, err)
	require.True(t, ok)
}
