package datarouter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/basestub/basestub/pkg/audit"
	"github.com/basestub/basestub/pkg/httputil"
	"github.com/basestub/basestub/pkg/pooler"
	"github.com/basestub/basestub/pkg/postgrest"
	"github.com/basestub/basestub/pkg/rls"
	"github.com/basestub/basestub/pkg/sqlengine"
)

var tracer = otel.Tracer("github.com/basestub/basestub/pkg/datarouter")

// pgError is the PostgREST-style error body for failed statements.
type pgError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Router serves /rest/v1/*.
type Router struct {
	engine     *sqlengine.Engine
	pool       *pooler.Pooler
	translator *postgrest.Translator
	policies   *rls.PolicyStore
	resolver   sqlengine.Resolver
}

// New builds a Router. pool may be nil, in which case statements run
// directly on the engine.
func New(engine *sqlengine.Engine, pool *pooler.Pooler, policies *rls.PolicyStore, resolver sqlengine.Resolver) (*Router, error) {
	translator, err := postgrest.NewTranslator()
	if err != nil {
		return nil, err
	}
	return &Router{
		engine:     engine,
		pool:       pool,
		translator: translator,
		policies:   policies,
		resolver:   resolver,
	}, nil
}

// submit runs fn with exclusive engine access. The whole
// bind-translate-execute sequence goes through in one turn so no
// other request's identity leaks into this one's statements.
func (rt *Router) submit(ctx context.Context, priority pooler.Priority, fn func(ctx context.Context) error) error {
	if rt.pool != nil {
		return rt.pool.Do(ctx, fn, pooler.WithPriority(priority))
	}
	return fn(ctx)
}

// BearerToken extracts the token from an Authorization header, or ""
// when absent or not Bearer-shaped.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// prefer is the parsed Prefer header.
type prefer struct {
	representation bool
	minimal        bool
	count          bool
}

func parsePrefer(header string) prefer {
	var p prefer
	for _, token := range strings.Split(header, ",") {
		switch strings.TrimSpace(token) {
		case "return=representation":
			p.representation = true
		case "return=minimal":
			p.minimal = true
		case "count=exact", "count=planned", "count=estimated":
			p.count = true
		}
	}
	return p
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := strings.Trim(strings.TrimPrefix(r.URL.Path, "/rest/v1/"), "/")
	if resource == "" {
		httputil.WriteNotFoundError(w, "no resource")
		return
	}

	ctx, span := tracer.Start(r.Context(), "datarouter.ServeHTTP", trace.WithAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("rest.resource", resource),
	))
	defer span.End()

	// The columns parameter is a client-library internal; strip it
	// before translation.
	query := r.URL.Query()
	query.Del("columns")

	var body any
	switch r.Method {
	case http.MethodPost, http.MethodPatch, http.MethodPut:
		if r.Body != nil {
			switch err := json.NewDecoder(r.Body).Decode(&body); {
			case err == io.EOF:
				// absent body; the translator decides whether that is
				// an error for this statement
				body = nil
			case err != nil:
				writePGError(w, fmt.Errorf("invalid JSON body: %w", err))
				return
			}
		}
	}

	pref := parsePrefer(r.Header.Get("Prefer"))
	bearer := BearerToken(r)

	var rows []map[string]any
	var affected int64
	var denied bool

	err := rt.submit(ctx, priorityFor(r.Method), func(ctx context.Context) error {
		if err := rt.engine.BindBearer(ctx, bearer, rt.resolver); err != nil {
			return err
		}

		stmt, err := rt.translate(postgrest.Request{
			Method:   r.Method,
			Resource: resource,
			Query:    query.Encode(),
			Body:     body,
		})
		if err != nil {
			return err
		}

		if ok, err := rt.checkWritePolicies(ctx, stmt); err != nil {
			return err
		} else if !ok {
			denied = true
			return nil
		}

		if wantRepresentation(r.Method, pref) && stmt.Command != postgrest.CmdSelect && stmt.Command != postgrest.CmdCall {
			stmt.AppendReturning()
		}

		if stmt.Command == postgrest.CmdSelect || stmt.Command == postgrest.CmdCall || stmt.HasReturning {
			result, _, err := rt.engine.Query(ctx, stmt.SQL, stmt.Params...)
			if err != nil {
				return err
			}
			rows = result
			affected = int64(len(result))
			return nil
		}

		result, err := rt.engine.Exec(ctx, stmt.SQL, stmt.Params...)
		if err != nil {
			return err
		}
		affected, _ = result.RowsAffected()
		return nil
	})
	if err != nil {
		span.RecordError(err)
		writePGError(w, err)
		return
	}
	if denied {
		_ = audit.LogDenied(ctx, audit.EventTypeRLSDenied, audit.ResourceTypeTable, resource, "write violates row-level security policy")
		httputil.WriteJSON(w, http.StatusForbidden, pgError{
			Message: "new row violates row-level security policy for table \"" + tableOf(resource) + "\"",
			Code:    "42501",
		})
		return
	}

	if rows == nil {
		rows = []map[string]any{}
	}
	if pref.count {
		w.Header().Set("Content-Range", contentRange(affected))
	}
	if strings.HasPrefix(resource, "rpc/") {
		// function calls return their result set regardless of verb
		httputil.WriteJSON(w, http.StatusOK, rows)
		return
	}
	rt.writeResult(w, r.Method, pref, rows)
}

func tableOf(resource string) string {
	return strings.TrimPrefix(resource, "rpc/")
}

func priorityFor(method string) pooler.Priority {
	if method == http.MethodGet {
		return pooler.PriorityHigh
	}
	return pooler.PriorityMedium
}

// translate computes the RLS predicate for the statement's command and
// hands both to the translator. Two passes are avoided by deriving the
// command from the HTTP method up front.
func (rt *Router) translate(req postgrest.Request) (*postgrest.Statement, error) {
	extraWhere := ""
	if rt.policies != nil && !strings.HasPrefix(req.Resource, "rpc/") {
		var cmd rls.Command
		switch req.Method {
		case http.MethodGet:
			cmd = rls.CommandSelect
		case http.MethodPatch:
			cmd = rls.CommandUpdate
		case http.MethodDelete:
			cmd = rls.CommandDelete
		}
		if cmd != "" {
			if clause, restricted := rt.policies.UsingClause(req.Resource, cmd); restricted {
				extraWhere = clause
			}
		}
	}
	return rt.translator.Translate(req, extraWhere)
}

// checkWritePolicies evaluates WITH CHECK predicates against each row
// a write statement carries, before anything executes.
func (rt *Router) checkWritePolicies(ctx context.Context, stmt *postgrest.Statement) (bool, error) {
	if rt.policies == nil || len(stmt.Rows) == 0 {
		return true, nil
	}

	var cmd rls.Command
	switch stmt.Command {
	case postgrest.CmdInsert, postgrest.CmdUpsert:
		cmd = rls.CommandInsert
	case postgrest.CmdUpdate:
		cmd = rls.CommandUpdate
	default:
		return true, nil
	}

	check, restricted := rt.policies.CheckClause(stmt.Table, cmd)
	if !restricted {
		return true, nil
	}
	for _, row := range stmt.Rows {
		ok, err := rls.EvaluateCheck(ctx, rt.engine, check, row)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// wantRepresentation decides whether the statement needs RETURNING *.
// POST defaults to returning rows (the created representation);
// PATCH/PUT/DELETE return rows only on request.
func wantRepresentation(method string, p prefer) bool {
	switch method {
	case http.MethodPost:
		return !p.minimal
	case http.MethodPatch, http.MethodPut, http.MethodDelete:
		return p.representation
	default:
		return false
	}
}

func contentRange(n int64) string {
	if n == 0 {
		return "*/0"
	}
	return fmt.Sprintf("0-%d/%d", n-1, n)
}

func (rt *Router) writeResult(w http.ResponseWriter, method string, p prefer, rows []map[string]any) {
	switch method {
	case http.MethodGet:
		httputil.WriteJSON(w, http.StatusOK, rows)
	case http.MethodPost:
		if p.minimal {
			w.WriteHeader(http.StatusCreated)
			return
		}
		httputil.WriteJSON(w, http.StatusCreated, rows)
	case http.MethodPatch, http.MethodPut, http.MethodDelete:
		if p.representation && !p.minimal {
			httputil.WriteJSON(w, http.StatusOK, rows)
			return
		}
		httputil.WriteNoContent(w)
	default:
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// writePGError reports a translator or SQL failure in the PostgREST
// error shape.
func writePGError(w http.ResponseWriter, err error) {
	httputil.WriteJSON(w, http.StatusBadRequest, pgError{
		Message: err.Error(),
		Code:    "PGRST000",
	})
}
