package postgrest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Command classifies what a translated Statement does, so callers can
// pick row-level-security predicates and response shaping without
// re-parsing the SQL.
type Command string

const (
	CmdSelect Command = "SELECT"
	CmdInsert Command = "INSERT"
	CmdUpdate Command = "UPDATE"
	CmdUpsert Command = "UPSERT"
	CmdDelete Command = "DELETE"
	CmdCall   Command = "CALL"
)

// Request is the translator's input: the PostgREST-shaped parts of an
// HTTP request, with the body already JSON-decoded.
type Request struct {
	Method   string // GET, POST, PATCH, PUT, DELETE
	Resource string // table name, or "rpc/<function>"
	Query    string // raw query string, without the leading '?'
	Body     any    // map[string]any, []any of objects, or nil
}

// Statement is a translated SQL statement plus everything the Data
// Router needs to run and shape it.
type Statement struct {
	SQL     string
	Params  []any
	Table   string  // unquoted table name; empty for rpc calls
	Command Command

	// Rows holds the decoded body rows of a write statement so WITH
	// CHECK predicates can be evaluated against the literal values
	// before execution.
	Rows []map[string]any

	HasReturning bool
}

// AppendReturning adds a RETURNING * clause if none is present.
func (s *Statement) AppendReturning() {
	if s.HasReturning {
		return
	}
	s.SQL += " RETURNING *"
	s.HasReturning = true
}

// Translator converts Requests into Statements, caching query-string
// parses across calls.
type Translator struct {
	cache *Cache
}

// DefaultCacheSize bounds the LRU of parsed query shapes.
const DefaultCacheSize = 512

// NewTranslator builds a Translator with the default cache size.
func NewTranslator() (*Translator, error) {
	cache, err := NewCache(DefaultCacheSize)
	if err != nil {
		return nil, err
	}
	return &Translator{cache: cache}, nil
}

// Translate converts a Request into a Statement. extraWhere, when
// non-empty, is a boolean SQL expression AND-ed into the WHERE clause
// of SELECT/UPDATE/DELETE statements; the Data Router uses it to
// inject row-level-security predicates.
func (t *Translator) Translate(req Request, extraWhere string) (*Statement, error) {
	if fn, ok := strings.CutPrefix(req.Resource, "rpc/"); ok {
		return translateRPC(fn, req.Body)
	}

	pq, err := t.cache.parse(req.Method, req.Resource, req.Query)
	if err != nil {
		return nil, err
	}

	switch req.Method {
	case "GET":
		return translateSelect(req.Resource, pq, extraWhere)
	case "POST":
		return translateInsert(req.Resource, req.Body, false)
	case "PUT":
		return translateInsert(req.Resource, req.Body, true)
	case "PATCH":
		return translateUpdate(req.Resource, req.Body, pq, extraWhere)
	case "DELETE":
		return translateDelete(req.Resource, pq, extraWhere)
	default:
		return nil, fmt.Errorf("postgrest: unsupported method %q", req.Method)
	}
}

// quoteIdent double-quotes a SQL identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func translateSelect(table string, pq ParsedQuery, extraWhere string) (*Statement, error) {
	cols := "*"
	if len(pq.Select) > 0 {
		quoted := make([]string, len(pq.Select))
		for i, c := range pq.Select {
			c = strings.TrimSpace(c)
			if c == "*" {
				quoted[i] = "*"
				continue
			}
			quoted[i] = quoteIdent(c)
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, quoteIdent(table))

	params, err := appendWhere(&sb, pq.Filters, extraWhere)
	if err != nil {
		return nil, err
	}

	if len(pq.Order) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, oc := range pq.Order {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(quoteIdent(oc.Column))
			if oc.Descending {
				sb.WriteString(" DESC")
			} else {
				sb.WriteString(" ASC")
			}
			if oc.hasNulls {
				if oc.NullsFirst {
					sb.WriteString(" NULLS FIRST")
				} else {
					sb.WriteString(" NULLS LAST")
				}
			}
		}
	}

	if pq.Limit != nil {
		fmt.Fprintf(&sb, " LIMIT %d", *pq.Limit)
	}
	if pq.Offset != nil {
		if pq.Limit == nil {
			sb.WriteString(" LIMIT -1")
		}
		fmt.Fprintf(&sb, " OFFSET %d", *pq.Offset)
	}

	return &Statement{SQL: sb.String(), Params: params, Table: table, Command: CmdSelect}, nil
}

// bodyRows normalizes a decoded JSON body into a slice of objects.
func bodyRows(body any) ([]map[string]any, error) {
	switch b := body.(type) {
	case nil:
		return nil, fmt.Errorf("postgrest: empty body")
	case map[string]any:
		if len(b) == 0 {
			return nil, fmt.Errorf("postgrest: empty body")
		}
		return []map[string]any{b}, nil
	case []map[string]any:
		if len(b) == 0 {
			return nil, fmt.Errorf("postgrest: empty body")
		}
		return b, nil
	case []any:
		if len(b) == 0 {
			return nil, fmt.Errorf("postgrest: empty body")
		}
		rows := make([]map[string]any, len(b))
		for i, item := range b {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("postgrest: body element %d is not an object", i)
			}
			rows[i] = obj
		}
		return rows, nil
	default:
		return nil, fmt.Errorf("postgrest: body must be an object or array of objects")
	}
}

// bindValue converts a decoded JSON value into something the SQL
// binding layer accepts; nested objects and arrays are carried as
// their JSON text.
func bindValue(v any) (any, error) {
	switch v.(type) {
	case nil, string, float64, bool, int, int64:
		return v, nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("postgrest: encode body value: %w", err)
		}
		return string(encoded), nil
	}
}

func translateInsert(table string, body any, upsert bool) (*Statement, error) {
	rows, err := bodyRows(body)
	if err != nil {
		return nil, err
	}

	// Column set is the sorted union of every row's keys; rows missing
	// a column insert NULL for it.
	colSet := make(map[string]bool)
	for _, row := range rows {
		for c := range row {
			colSet[c] = true
		}
	}
	cols := make([]string, 0, len(colSet))
	for c := range colSet {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	verb := "INSERT INTO"
	cmd := CmdInsert
	if upsert {
		verb = "INSERT OR REPLACE INTO"
		cmd = CmdUpsert
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s (%s) VALUES ", verb, quoteIdent(table), strings.Join(quoted, ", "))

	var params []any
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(placeholder)
		for _, c := range cols {
			v, err := bindValue(row[c])
			if err != nil {
				return nil, err
			}
			params = append(params, v)
		}
	}

	return &Statement{SQL: sb.String(), Params: params, Table: table, Command: cmd, Rows: rows}, nil
}

func translateUpdate(table string, body any, pq ParsedQuery, extraWhere string) (*Statement, error) {
	rows, err := bodyRows(body)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("postgrest: PATCH body must be a single object")
	}
	row := rows[0]

	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)

	var sb strings.Builder
	fmt.Fprintf(&sb, "UPDATE %s SET ", quoteIdent(table))

	var params []any
	for i, c := range cols {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s = ?", quoteIdent(c))
		v, err := bindValue(row[c])
		if err != nil {
			return nil, err
		}
		params = append(params, v)
	}

	whereParams, err := appendWhere(&sb, pq.Filters, extraWhere)
	if err != nil {
		return nil, err
	}
	params = append(params, whereParams...)

	return &Statement{SQL: sb.String(), Params: params, Table: table, Command: CmdUpdate, Rows: rows}, nil
}

func translateDelete(table string, pq ParsedQuery, extraWhere string) (*Statement, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s", quoteIdent(table))

	params, err := appendWhere(&sb, pq.Filters, extraWhere)
	if err != nil {
		return nil, err
	}

	return &Statement{SQL: sb.String(), Params: params, Table: table, Command: CmdDelete}, nil
}

func translateRPC(fn string, body any) (*Statement, error) {
	var args map[string]any
	switch b := body.(type) {
	case nil:
		args = map[string]any{}
	case map[string]any:
		args = b
	default:
		return nil, fmt.Errorf("postgrest: rpc body must be an object of named arguments")
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params []any
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		placeholders[i] = "?"
		v, err := bindValue(args[k])
		if err != nil {
			return nil, err
		}
		params = append(params, v)
	}

	sql := fmt.Sprintf("SELECT %s(%s) AS %s", quoteIdent(fn), strings.Join(placeholders, ", "), quoteIdent(fn))
	return &Statement{SQL: sql, Params: params, Command: CmdCall}, nil
}

// appendWhere renders filters (and the optional extra predicate) into
// sb, returning the bound parameters in order. Filter values are
// always carried as parameters, never inlined; the only literals
// emitted are the fixed NULL/0/1 forms of the `is` operator.
func appendWhere(sb *strings.Builder, filters []Filter, extraWhere string) ([]any, error) {
	var clauses []string
	var params []any

	for _, f := range filters {
		col := quoteIdent(f.Column)
		switch f.Op {
		case OpEq, OpNeq, OpGt, OpGte, OpLt, OpLte:
			clauses = append(clauses, fmt.Sprintf("%s %s ?", col, sqlOp[f.Op]))
			params = append(params, f.Value)
		case OpLike:
			clauses = append(clauses, fmt.Sprintf("%s LIKE ?", col))
			params = append(params, strings.ReplaceAll(f.Value, "*", "%"))
		case OpILike:
			clauses = append(clauses, fmt.Sprintf("%s LIKE ? COLLATE NOCASE", col))
			params = append(params, strings.ReplaceAll(f.Value, "*", "%"))
		case OpIn:
			values := strings.Split(strings.Trim(f.Value, "()"), ",")
			if len(values) == 0 || (len(values) == 1 && values[0] == "") {
				return nil, fmt.Errorf("postgrest: empty in list for %q", f.Column)
			}
			marks := make([]string, len(values))
			for i, v := range values {
				marks[i] = "?"
				params = append(params, strings.TrimSpace(v))
			}
			clauses = append(clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(marks, ", ")))
		case OpIs:
			switch f.Value {
			case "null":
				clauses = append(clauses, fmt.Sprintf("%s IS NULL", col))
			case "true":
				clauses = append(clauses, fmt.Sprintf("%s = 1", col))
			case "false":
				clauses = append(clauses, fmt.Sprintf("%s = 0", col))
			default:
				return nil, fmt.Errorf("postgrest: invalid is value %q", f.Value)
			}
		default:
			return nil, fmt.Errorf("postgrest: unknown operator %q", f.Op)
		}
	}

	if extraWhere != "" {
		clauses = append(clauses, "("+extraWhere+")")
	}

	if len(clauses) == 0 {
		return nil, nil
	}
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(clauses, " AND "))
	return params, nil
}
