package postgrest

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Op is a PostgREST comparison operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpIs    Op = "is"
)

var validOps = map[Op]bool{
	OpEq: true, OpNeq: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpLike: true, OpILike: true, OpIn: true, OpIs: true,
}

// sqlOp is the SQL operator text for each PostgREST Op. IN and LIKE
// variants are handled specially by the caller; this covers the plain
// binary comparisons.
var sqlOp = map[Op]string{
	OpEq: "=", OpNeq: "!=", OpGt: ">", OpGte: ">=", OpLt: "<", OpLte: "<=",
}

// Filter is one col=op.value query-string token.
type Filter struct {
	Column string
	Op     Op
	Value  string
}

// OrderClause is one column of an order= query-string token.
type OrderClause struct {
	Column     string
	Descending bool
	NullsFirst bool
	hasNulls   bool
}

// ParsedQuery is the structural parse of a PostgREST query string,
// independent of any parameter values.
type ParsedQuery struct {
	Select  []string
	Filters []Filter
	Order   []OrderClause
	Limit   *int
	Offset  *int
}

var reservedKeys = map[string]bool{"select": true, "order": true, "limit": true, "offset": true, "columns": true}

// parseQueryString parses a raw query string (without the leading '?')
// into a ParsedQuery, validating operators against the PostgREST
// vocabulary.
func parseQueryString(raw string) (ParsedQuery, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ParsedQuery{}, fmt.Errorf("postgrest: parse query string: %w", err)
	}

	var pq ParsedQuery

	if sel := values.Get("select"); sel != "" {
		pq.Select = strings.Split(sel, ",")
	}

	if lim := values.Get("limit"); lim != "" {
		n, err := strconv.Atoi(lim)
		if err != nil {
			return ParsedQuery{}, fmt.Errorf("postgrest: invalid limit %q", lim)
		}
		pq.Limit = &n
	}

	if off := values.Get("offset"); off != "" {
		n, err := strconv.Atoi(off)
		if err != nil {
			return ParsedQuery{}, fmt.Errorf("postgrest: invalid offset %q", off)
		}
		pq.Offset = &n
	}

	if ord := values.Get("order"); ord != "" {
		for _, col := range strings.Split(ord, ",") {
			parts := strings.Split(col, ".")
			oc := OrderClause{Column: parts[0]}
			for _, p := range parts[1:] {
				switch p {
				case "desc":
					oc.Descending = true
				case "asc":
					oc.Descending = false
				case "nullsfirst":
					oc.NullsFirst, oc.hasNulls = true, true
				case "nullslast":
					oc.NullsFirst, oc.hasNulls = false, true
				}
			}
			pq.Order = append(pq.Order, oc)
		}
	}

	// Keys not in the reserved set are filters: col=op.value
	keys := make([]string, 0, len(values))
	for k := range values {
		if reservedKeys[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, col := range keys {
		for _, tok := range values[col] {
			dot := strings.IndexByte(tok, '.')
			if dot < 0 {
				return ParsedQuery{}, fmt.Errorf("postgrest: filter %q missing operator", tok)
			}
			op := Op(tok[:dot])
			if !validOps[op] {
				return ParsedQuery{}, fmt.Errorf("postgrest: unknown operator %q", op)
			}
			pq.Filters = append(pq.Filters, Filter{Column: col, Op: op, Value: tok[dot+1:]})
		}
	}

	return pq, nil
}

// Cache wraps an LRU of parsed query shapes. Safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, ParsedQuery]
}

// NewCache builds a Cache holding up to size entries.
func NewCache(size int) (*Cache, error) {
	l, err := lru.New[string, ParsedQuery](size)
	if err != nil {
		return nil, fmt.Errorf("postgrest: new cache: %w", err)
	}
	return &Cache{lru: l}, nil
}

func cacheKey(method, resource, query string) string {
	return method + " " + resource + "?" + query
}

// parse returns the ParsedQuery for (method, resource, query), parsing
// and caching it on a miss.
func (c *Cache) parse(method, resource, query string) (ParsedQuery, error) {
	key := cacheKey(method, resource, query)
	if pq, ok := c.lru.Get(key); ok {
		return pq, nil
	}
	pq, err := parseQueryString(query)
	if err != nil {
		return ParsedQuery{}, err
	}
	c.lru.Add(key, pq)
	return pq, nil
}
