package rls

import (
	"context"
	"fmt"
	"sort"

	"github.com/basestub/basestub/pkg/sqlengine"
)

// EvaluateCheck runs a WITH CHECK expression against the literal
// values of a row about to be written, without touching the target
// table. It builds a synthetic one-row SELECT that binds each column
// name to its value as a positional parameter, then evaluates the
// check expression against that row:
//
//	SELECT (<check>) AS ok FROM (SELECT ? AS "col1", ? AS "col2", ...)
//
// This lets a CHECK expression reference row columns by name exactly
// as it would inside a real INSERT/UPDATE, while still running against
// the single pinned connection's bound identity for auth_uid()/
// auth_role() lookups.
func EvaluateCheck(ctx context.Context, engine *sqlengine.Engine, check string, row map[string]any) (bool, error) {
	if check == "" {
		return true, nil
	}

	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	if len(cols) == 0 {
		rows, _, err := engine.Query(ctx, fmt.Sprintf("SELECT (%s) AS ok", check))
		if err != nil {
			return false, fmt.Errorf("rls: evaluate check: %w", err)
		}
		return truthy(rows[0]["ok"]), nil
	}

	selectCols := ""
	args := make([]any, 0, len(cols))
	for i, c := range cols {
		if i > 0 {
			selectCols += ", "
		}
		selectCols += fmt.Sprintf("? AS %q", c)
		args = append(args, row[c])
	}

	query := fmt.Sprintf("SELECT (%s) AS ok FROM (SELECT %s)", check, selectCols)
	rows, _, err := engine.Query(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("rls: evaluate check: %w", err)
	}
	if len(rows) == 0 {
		return false, fmt.Errorf("rls: evaluate check: synthetic query returned no row")
	}
	return truthy(rows[0]["ok"]), nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case int64:
		return t != 0
	case bool:
		return t
	case nil:
		return false
	default:
		return false
	}
}
