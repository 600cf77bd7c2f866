package registry

import "testing"

func TestAddIsIdempotent(t *testing.T) {
	s := New()

	if !s.Add("chat-1") {
		t.Fatal("first Add should report a change")
	}
	if s.Add("chat-1") {
		t.Fatal("second Add of the same id should not report a change")
	}
	if s.Len() != 1 {
		t.Fatalf("expected 1 member, got %d", s.Len())
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := New()
	s.Add("chat-1")

	if !s.Remove("chat-1") {
		t.Fatal("Remove of a member should report a change")
	}
	if s.Remove("chat-1") {
		t.Fatal("Remove of a non-member should not report a change")
	}
	if s.Len() != 0 {
		t.Fatalf("expected empty set, got %d", s.Len())
	}
}

func TestListSnapshot(t *testing.T) {
	s := New()
	s.Add("a")
	s.Add("b")

	members := s.List()
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	s.Add("c")
	if len(members) != 2 {
		t.Fatal("List must return a snapshot, not a live view")
	}
	if !s.Has("c") {
		t.Fatal("Has should see the new member")
	}
}
