package rls

import "testing"

func TestUsingClauseNoRestrictionWhenDisabled(t *testing.T) {
	s := NewPolicyStore()
	s.Register(Policy{Name: "p", Table: "storage_objects", Command: CommandSelect, Using: "owner_id = auth_uid()"})

	if _, restricted := s.UsingClause("storage_objects", CommandSelect); restricted {
		t.Fatalf("expected no restriction while RLS disabled")
	}
}

func TestUsingClauseDefaultDenyWithNoPolicy(t *testing.T) {
	s := NewPolicyStore()
	s.EnableRLS("storage_objects")

	clause, restricted := s.UsingClause("storage_objects", CommandSelect)
	if !restricted || clause != "0" {
		t.Fatalf("expected default-deny clause, got %q restricted=%v", clause, restricted)
	}
}

func TestUsingClauseCombinesWithOr(t *testing.T) {
	s := NewPolicyStore()
	s.EnableRLS("storage_objects")
	s.Register(Policy{Name: "owner", Table: "storage_objects", Command: CommandSelect, Using: "owner_id = auth_uid()"})
	s.Register(Policy{Name: "public", Table: "storage_objects", Command: CommandSelect, Using: "is_public = 1"})

	clause, restricted := s.UsingClause("storage_objects", CommandSelect)
	if !restricted {
		t.Fatalf("expected restriction")
	}
	want := "(owner_id = auth_uid()) OR (is_public = 1)"
	if clause != want {
		t.Fatalf("got %q want %q", clause, want)
	}
}

func TestCheckClauseFallsBackToUsing(t *testing.T) {
	s := NewPolicyStore()
	s.EnableRLS("storage_objects")
	s.Register(Policy{Name: "owner", Table: "storage_objects", Command: CommandInsert, Using: "owner_id = auth_uid()"})

	clause, restricted := s.CheckClause("storage_objects", CommandInsert)
	if !restricted || clause != "(owner_id = auth_uid())" {
		t.Fatalf("got %q restricted=%v", clause, restricted)
	}
}

func TestDropRemovesPolicy(t *testing.T) {
	s := NewPolicyStore()
	s.EnableRLS("t")
	s.Register(Policy{Name: "p", Table: "t", Using: "1 = 1"})
	s.Drop("t", "p")

	clause, _ := s.UsingClause("t", CommandSelect)
	if clause != "0" {
		t.Fatalf("expected default-deny after drop, got %q", clause)
	}
}
