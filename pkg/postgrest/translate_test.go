package postgrest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTranslator(t *testing.T) *Translator {
	t.Helper()
	tr, err := NewTranslator()
	require.NoError(t, err)
	return tr
}

func TestTranslateSelectBare(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{Method: "GET", Resource: "notes"}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "notes"`, stmt.SQL)
	assert.Empty(t, stmt.Params)
	assert.Equal(t, CmdSelect, stmt.Command)
	assert.Equal(t, "notes", stmt.Table)
}

func TestTranslateSelectColumnsAndFilters(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "GET",
		Resource: "notes",
		Query:    "select=id,body&user_id=eq.42&body=like.*draft*",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "body" FROM "notes" WHERE "body" LIKE ? AND "user_id" = ?`, stmt.SQL)
	assert.Equal(t, []any{"%draft%", "42"}, stmt.Params)
}

func TestTranslateSelectOrderLimitOffset(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "GET",
		Resource: "notes",
		Query:    "order=created_at.desc.nullslast,id.asc&limit=10&offset=5",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "notes" ORDER BY "created_at" DESC NULLS LAST, "id" ASC LIMIT 10 OFFSET 5`, stmt.SQL)
}

func TestTranslateSelectOffsetWithoutLimit(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{Method: "GET", Resource: "notes", Query: "offset=3"}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "notes" LIMIT -1 OFFSET 3`, stmt.SQL)
}

func TestTranslateFilterOperators(t *testing.T) {
	tr := newTranslator(t)

	tests := []struct {
		query     string
		wantWhere string
		wantParam []any
	}{
		{"n=gt.5", `"n" > ?`, []any{"5"}},
		{"n=gte.5", `"n" >= ?`, []any{"5"}},
		{"n=lt.5", `"n" < ?`, []any{"5"}},
		{"n=lte.5", `"n" <= ?`, []any{"5"}},
		{"n=neq.5", `"n" != ?`, []any{"5"}},
		{"s=ilike.*x*", `"s" LIKE ? COLLATE NOCASE`, []any{"%x%"}},
		{"s=in.(a,b,c)", `"s" IN (?, ?, ?)`, []any{"a", "b", "c"}},
		{"s=is.null", `"s" IS NULL`, nil},
		{"b=is.true", `"b" = 1`, nil},
		{"b=is.false", `"b" = 0`, nil},
	}
	for _, tc := range tests {
		stmt, err := tr.Translate(Request{Method: "GET", Resource: "t", Query: tc.query}, "")
		require.NoError(t, err, tc.query)
		assert.Equal(t, `SELECT * FROM "t" WHERE `+tc.wantWhere, stmt.SQL, tc.query)
		assert.Equal(t, tc.wantParam, stmt.Params, tc.query)
	}
}

func TestTranslateUnknownOperator(t *testing.T) {
	tr := newTranslator(t)

	_, err := tr.Translate(Request{Method: "GET", Resource: "t", Query: "n=regex.^a"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestTranslateInsertSingleRow(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "POST",
		Resource: "notes",
		Body:     map[string]any{"user_id": "u1", "body": "x"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "notes" ("body", "user_id") VALUES (?, ?)`, stmt.SQL)
	assert.Equal(t, []any{"x", "u1"}, stmt.Params)
	assert.Equal(t, CmdInsert, stmt.Command)
	require.Len(t, stmt.Rows, 1)
}

func TestTranslateInsertMultiRow(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "POST",
		Resource: "notes",
		Body: []any{
			map[string]any{"a": 1.0, "b": "x"},
			map[string]any{"a": 2.0},
		},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "notes" ("a", "b") VALUES (?, ?), (?, ?)`, stmt.SQL)
	assert.Equal(t, []any{1.0, "x", 2.0, nil}, stmt.Params)
}

func TestTranslateInsertEmptyBody(t *testing.T) {
	tr := newTranslator(t)

	_, err := tr.Translate(Request{Method: "POST", Resource: "notes"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty body")

	_, err = tr.Translate(Request{Method: "POST", Resource: "notes", Body: map[string]any{}}, "")
	assert.Error(t, err)
}

func TestTranslateInsertNestedValueEncodedAsJSON(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "POST",
		Resource: "notes",
		Body:     map[string]any{"meta": map[string]any{"k": "v"}},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, []any{`{"k":"v"}`}, stmt.Params)
}

func TestTranslateUpsert(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "PUT",
		Resource: "notes",
		Body:     map[string]any{"id": "1", "body": "x"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `INSERT OR REPLACE INTO "notes" ("body", "id") VALUES (?, ?)`, stmt.SQL)
	assert.Equal(t, CmdUpsert, stmt.Command)
}

func TestTranslateUpdate(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "PATCH",
		Resource: "notes",
		Query:    "id=eq.7",
		Body:     map[string]any{"body": "edited"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "notes" SET "body" = ? WHERE "id" = ?`, stmt.SQL)
	assert.Equal(t, []any{"edited", "7"}, stmt.Params)
	assert.Equal(t, CmdUpdate, stmt.Command)
}

func TestTranslateDelete(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{Method: "DELETE", Resource: "notes", Query: "id=eq.7"}, "")
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "notes" WHERE "id" = ?`, stmt.SQL)
	assert.Equal(t, []any{"7"}, stmt.Params)

	stmt, err = tr.Translate(Request{Method: "DELETE", Resource: "notes"}, "")
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "notes"`, stmt.SQL)
}

func TestTranslateExtraWhere(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{Method: "GET", Resource: "notes", Query: "id=eq.1"}, "auth_uid() = user_id")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "notes" WHERE "id" = ? AND (auth_uid() = user_id)`, stmt.SQL)

	stmt, err = tr.Translate(Request{Method: "GET", Resource: "notes"}, "auth_uid() = user_id")
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "notes" WHERE (auth_uid() = user_id)`, stmt.SQL)
}

func TestTranslateRPC(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "POST",
		Resource: "rpc/storage_extension",
		Body:     map[string]any{"name": "a/b/c.txt"},
	}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "storage_extension"(?) AS "storage_extension"`, stmt.SQL)
	assert.Equal(t, []any{"a/b/c.txt"}, stmt.Params)
	assert.Equal(t, CmdCall, stmt.Command)

	stmt, err = tr.Translate(Request{Method: "POST", Resource: "rpc/auth_uid"}, "")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "auth_uid"() AS "auth_uid"`, stmt.SQL)
}

func TestAppendReturning(t *testing.T) {
	tr := newTranslator(t)

	stmt, err := tr.Translate(Request{
		Method:   "POST",
		Resource: "notes",
		Body:     map[string]any{"body": "x"},
	}, "")
	require.NoError(t, err)

	stmt.AppendReturning()
	assert.Equal(t, `INSERT INTO "notes" ("body") VALUES (?) RETURNING *`, stmt.SQL)
	assert.True(t, stmt.HasReturning)

	// idempotent
	stmt.AppendReturning()
	assert.Equal(t, `INSERT INTO "notes" ("body") VALUES (?) RETURNING *`, stmt.SQL)
}

func TestQuoteIdentEscapesQuotes(t *testing.T) {
	assert.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}

func TestParseCacheReuse(t *testing.T) {
	tr := newTranslator(t)

	// Same shape twice: the second call is answered from the parse
	// cache and must produce identical SQL and params.
	first, err := tr.Translate(Request{Method: "GET", Resource: "t", Query: "a=eq.1"}, "")
	require.NoError(t, err)
	second, err := tr.Translate(Request{Method: "GET", Resource: "t", Query: "a=eq.1"}, "")
	require.NoError(t, err)
	assert.Equal(t, first.SQL, second.SQL)
	assert.Equal(t, first.Params, second.Params)
}
