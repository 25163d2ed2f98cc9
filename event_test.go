package hashseq

import "testing"

func TestNewRoot_Deterministic(t *testing.T) {
	a := NewRoot(nil, 'x')
	b := NewRoot(nil, 'x')
	if a.ID != b.ID {
		t.Fatalf("expected identical ids for identical Root events, got %v != %v", a.ID, b.ID)
	}
}

func TestNewRoot_DifferentCharDifferentID(t *testing.T) {
	a := NewRoot(nil, 'x')
	b := NewRoot(nil, 'y')
	if a.ID == b.ID {
		t.Fatalf("expected different ids for different characters")
	}
}

func TestNewAfter_ExtraDepsAffectID(t *testing.T) {
	root := NewRoot(nil, 'a')
	plain := NewAfter(nil, root.ID, 'b')
	withDeps := NewAfter([]ID{root.ID}, root.ID, 'b')
	if plain.ID == withDeps.ID {
		t.Fatalf("expected extra-deps to change the event id")
	}
}

func TestEvent_Dependencies(t *testing.T) {
	root := NewRoot(nil, 'a')

	after := NewAfter([]ID{ID(7)}, root.ID, 'b')
	deps := after.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(deps))
	}

	rm := NewRemove([]ID{ID(9)}, []ID{root.ID, after.ID})
	deps = rm.Dependencies()
	if len(deps) != 3 {
		t.Fatalf("expected 3 dependencies for remove, got %d", len(deps))
	}

	r := NewRoot([]ID{ID(1), ID(2)}, 'z')
	deps = r.Dependencies()
	if len(deps) != 2 {
		t.Fatalf("expected root dependencies to equal extra deps, got %d", len(deps))
	}
}

func TestSortedCopy_DedupesNothingButSorts(t *testing.T) {
	in := []ID{5, 1, 3}
	out := sortedCopy(in)
	want := []ID{1, 3, 5}
	for i := range want {
		if out[i] != want[i] {
			t.Fatalf("sortedCopy(%v) = %v, want %v", in, out, want)
		}
	}
	// input slice must not be mutated
	if in[0] != 5 {
		t.Fatalf("sortedCopy mutated its input")
	}
}

func TestInsertSortedID_NoDuplicates(t *testing.T) {
	ids := []ID{1, 3, 5}
	ids = insertSortedID(ids, 3)
	if len(ids) != 3 {
		t.Fatalf("expected insertSortedID to dedupe an existing id, got %v", ids)
	}
	ids = insertSortedID(ids, 4)
	want := []ID{1, 3, 4, 5}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}
