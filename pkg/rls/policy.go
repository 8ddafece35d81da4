package rls

import (
	"fmt"
	"sync"
)

// Command is the statement type a policy applies to, matching
// Postgres's CREATE POLICY FOR clause.
type Command string

const (
	CommandSelect Command = "SELECT"
	CommandInsert Command = "INSERT"
	CommandUpdate Command = "UPDATE"
	CommandDelete Command = "DELETE"
	CommandAll    Command = "ALL"
)

// Policy is a single row-level security rule attached to a table.
//
// Using is a boolean SQL expression AND-ed into the WHERE clause of
// SELECT/UPDATE/DELETE statements against the table; rows for which it
// evaluates false are invisible. Check is a boolean SQL expression
// evaluated against the literal values of a row being INSERTed or
// UPDATEd; if it evaluates false the write is rejected. An empty Check
// falls back to Using in CheckClause. An empty Using adds nothing to
// the visibility predicate; when no matching policy has a Using
// expression, UsingClause denies every row.
type Policy struct {
	Name    string
	Table   string
	Command Command
	Using   string
	Check   string
}

// appliesTo reports whether the policy's Command matches a statement
// of the given command.
func (p Policy) appliesTo(cmd Command) bool {
	return p.Command == CommandAll || p.Command == cmd
}

// PolicyStore holds the RLS policies for every table and whether RLS
// is enabled for that table at all (spec's default-deny-once-enabled
// semantics: a table with RLS enabled and zero matching policies
// denies every row).
type PolicyStore struct {
	mu       sync.RWMutex
	enabled  map[string]bool
	policies map[string][]Policy
}

// NewPolicyStore returns an empty policy store.
func NewPolicyStore() *PolicyStore {
	return &PolicyStore{
		enabled:  make(map[string]bool),
		policies: make(map[string][]Policy),
	}
}

// EnableRLS turns on row-level security for a table. Until a table is
// enabled, UsingClause/CheckClause return no restriction regardless of registered
// policies, matching Postgres's opt-in RLS model.
func (s *PolicyStore) EnableRLS(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[table] = true
}

// DisableRLS turns off row-level security for a table.
func (s *PolicyStore) DisableRLS(table string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled[table] = false
}

// IsEnabled reports whether RLS is active for a table.
func (s *PolicyStore) IsEnabled(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled[table]
}

// Register adds a policy to a table, replacing any existing policy of
// the same name on that table.
func (s *PolicyStore) Register(p Policy) error {
	if p.Name == "" || p.Table == "" {
		return fmt.Errorf("rls: policy must have a name and table")
	}
	if p.Command == "" {
		p.Command = CommandAll
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.policies[p.Table]
	for i, cur := range existing {
		if cur.Name == p.Name {
			existing[i] = p
			return nil
		}
	}
	s.policies[p.Table] = append(existing, p)
	return nil
}

// Drop removes a named policy from a table.
func (s *PolicyStore) Drop(table, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.policies[table]
	for i, cur := range existing {
		if cur.Name == name {
			s.policies[table] = append(existing[:i], existing[i+1:]...)
			return
		}
	}
}

// Policies returns the policies registered for a table that apply to
// the given command, regardless of whether RLS is enabled.
func (s *PolicyStore) Policies(table string, cmd Command) []Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Policy
	for _, p := range s.policies[table] {
		if p.appliesTo(cmd) {
			out = append(out, p)
		}
	}
	return out
}

// UsingClause returns the USING-side boolean expression that must hold
// for a row to be visible to the given command, combining every
// matching policy's Using expression with OR (Postgres evaluates
// permissive policies disjunctively). It returns "", false if RLS is
// disabled for the table, meaning no restriction applies.
//
// If RLS is enabled and no matching policy has a Using expression, it
// returns the unsatisfiable expression "0", true, enforcing default-deny.
func (s *PolicyStore) UsingClause(table string, cmd Command) (string, bool) {
	if !s.IsEnabled(table) {
		return "", false
	}

	var exprs []string
	for _, p := range s.Policies(table, cmd) {
		if p.Using == "" {
			continue
		}
		exprs = append(exprs, "("+p.Using+")")
	}
	if len(exprs) == 0 {
		return "0", true
	}
	return join(exprs, " OR "), true
}

// CheckClause returns the WITH CHECK boolean expression a written row
// must satisfy, combining matching policies with AND (a write must
// satisfy every restrictive check). It returns "", false under the
// same no-restriction rules as UsingClause.
func (s *PolicyStore) CheckClause(table string, cmd Command) (string, bool) {
	if !s.IsEnabled(table) {
		return "", false
	}

	var exprs []string
	for _, p := range s.Policies(table, cmd) {
		check := p.Check
		if check == "" {
			check = p.Using
		}
		if check == "" {
			continue
		}
		exprs = append(exprs, "("+check+")")
	}
	if len(exprs) == 0 {
		return "0", true
	}
	return join(exprs, " AND "), true
}

func join(exprs []string, sep string) string {
	out := exprs[0]
	for _, e := range exprs[1:] {
		out += sep + e
	}
	return out
}
