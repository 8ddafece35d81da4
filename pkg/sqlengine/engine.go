package sqlengine

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/basestub/basestub/pkg/sqlengine")

// Engine is the embeddable SQL engine wrapper. It holds exactly one
// physical connection so session-scoped identity claims behave the way
// spec's "SET LOCAL"-equivalent semantics require.
type Engine struct {
	db   *sql.DB
	conn *sql.Conn

	mu     sync.Mutex
	claims Claims
}

// Open creates (or attaches to) a SQLite database at dsn and pins a
// single connection to it. Use ":memory:" for an ephemeral database.
func Open(ctx context.Context, dsn string) (*Engine, error) {
	db, err := sql.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlengine: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlengine: acquire connection: %w", err)
	}

	e := &Engine{db: db, conn: conn, claims: Anonymous()}
	if err := e.registerClaimFunctions(ctx); err != nil {
		conn.Close()
		db.Close()
		return nil, err
	}
	return e, nil
}

// WithRawConn exposes the single pinned *sqlite3.SQLiteConn so other
// packages (pkg/schema) can register additional scalar SQL functions
// without this package needing to import them.
func (e *Engine) WithRawConn(ctx context.Context, fn func(*sqlite3.SQLiteConn) error) error {
	return e.conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("sqlengine: unexpected driver connection type %T", driverConn)
		}
		return fn(sc)
	})
}

func (e *Engine) registerClaimFunctions(ctx context.Context) error {
	return e.WithRawConn(ctx, func(sc *sqlite3.SQLiteConn) error {
		reg := func(name string, fn any) error {
			return sc.RegisterFunc(name, fn, true)
		}
		if err := reg("auth_uid", func() string { return e.currentClaims().Sub }); err != nil {
			return err
		}
		if err := reg("auth_role", func() string { return e.currentClaims().Role }); err != nil {
			return err
		}
		if err := reg("auth_email", func() string { return e.currentClaims().Email }); err != nil {
			return err
		}
		if err := reg("auth_jwt", func() string { return e.currentClaims().ClaimsJSON }); err != nil {
			return err
		}
		return nil
	})
}

func (e *Engine) currentClaims() Claims {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.claims
}

// Exec runs a statement with no result rows.
func (e *Engine) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, span := tracer.Start(ctx, "sqlengine.Exec", trace.WithAttributes(attribute.String("db.statement", query)))
	defer span.End()
	res, err := e.conn.ExecContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// Query runs a statement and materializes every row into a slice of
// column-name-keyed maps, since callers (the Data Router, Storage
// Handler) need to re-serialize rows as JSON regardless of their SQL
// types.
func (e *Engine) Query(ctx context.Context, query string, args ...any) ([]map[string]any, []string, error) {
	ctx, span := tracer.Start(ctx, "sqlengine.Query", trace.WithAttributes(attribute.String("db.statement", query)))
	defer span.End()

	rows, err := e.conn.QueryContext(ctx, query, args...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make(map[string]any, len(cols))
		for i, c := range cols {
			row[c] = normalizeValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, nil, err
	}
	return out, cols, nil
}

// QueryRow is a convenience wrapper for single-row lookups.
func (e *Engine) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return e.conn.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn inside a SQL transaction, committing on success and
// rolling back if fn returns an error or panics.
func (e *Engine) Transaction(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	ctx, span := tracer.Start(ctx, "sqlengine.Transaction")
	defer span.End()

	tx, err := e.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlengine: begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		span.RecordError(err)
		return err
	}
	if err = tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sqlengine: commit: %w", err)
	}
	return nil
}

// Close releases the pinned connection and the underlying database.
func (e *Engine) Close() error {
	connErr := e.conn.Close()
	dbErr := e.db.Close()
	if connErr != nil {
		return connErr
	}
	return dbErr
}

// normalizeValue converts driver-returned values ([]byte in particular)
// into JSON-friendly Go types.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
