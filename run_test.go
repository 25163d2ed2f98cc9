package hashseq

import "testing"

func TestRunStore_StartRunThenExtend(t *testing.T) {
	s := newRunStore()
	s.startRun(0, nil, ID(1), 'a')

	r, ok := s.isLastOfRun(ID(1))
	if !ok || r.len() != 1 {
		t.Fatalf("expected single-element run after startRun")
	}

	s.extend(r, ID(2), 'b')
	if r.len() != 2 || string(r.content) != "ab" {
		t.Fatalf("expected extended run content \"ab\", got %q", string(r.content))
	}

	pos, ok := s.positionOf(ID(2))
	if !ok || pos.offset != 1 || pos.runID != ID(1) {
		t.Fatalf("expected ID(2) indexed at offset 1 of run 1, got %+v", pos)
	}
}

func TestRunStore_IsLastOfRun_FalseForMidRunElement(t *testing.T) {
	s := newRunStore()
	s.startRun(0, nil, ID(1), 'a')
	r, _ := s.isLastOfRun(ID(1))
	s.extend(r, ID(2), 'b')
	s.extend(r, ID(3), 'c')

	if _, ok := s.isLastOfRun(ID(1)); ok {
		t.Fatalf("expected ID(1) to no longer be last of run once extended past it")
	}
	if _, ok := s.isLastOfRun(ID(2)); ok {
		t.Fatalf("expected ID(2) (mid-run) not to be last of run")
	}
	last, ok := s.isLastOfRun(ID(3))
	if !ok || last.lastID() != ID(3) {
		t.Fatalf("expected ID(3) to be the tail of the run")
	}
}

func TestRunStore_SplitAt_NoOpWhenTerminal(t *testing.T) {
	s := newRunStore()
	s.startRun(0, nil, ID(1), 'a')

	if _, split := s.splitAt(ID(1)); split {
		t.Fatalf("expected no split when p is already terminal")
	}
}

func TestRunStore_SplitAt_NoOpWhenNotARunElement(t *testing.T) {
	s := newRunStore()
	if _, split := s.splitAt(ID(99)); split {
		t.Fatalf("expected no split for an id that is not a run element")
	}
}

func TestRunStore_SplitAt_MidRun(t *testing.T) {
	s := newRunStore()
	s.startRun(0, nil, ID(1), 'a')
	r, _ := s.isLastOfRun(ID(1))
	s.extend(r, ID(2), 'b')
	s.extend(r, ID(3), 'c')

	newHead, split := s.splitAt(ID(1))
	if !split {
		t.Fatalf("expected split at a non-terminal element")
	}
	if newHead != ID(2) {
		t.Fatalf("expected new run head to be ID(2), got %v", newHead)
	}

	left := s.get(ID(1))
	if left.len() != 1 || string(left.content) != "a" {
		t.Fatalf("expected left run truncated to \"a\", got %q", string(left.content))
	}

	right := s.get(newHead)
	if right == nil {
		t.Fatalf("expected new run to be registered under its head id")
	}
	if right.len() != 2 || string(right.content) != "bc" {
		t.Fatalf("expected right run to carry \"bc\", got %q", string(right.content))
	}
	if right.anchor != ID(1) {
		t.Fatalf("expected right run anchored at the split point, got %v", right.anchor)
	}

	// Reverse index must be consistent for every element after the split.
	posA, _ := s.positionOf(ID(1))
	if posA.runID != ID(1) || posA.offset != 0 {
		t.Fatalf("unexpected index for ID(1): %+v", posA)
	}
	posB, _ := s.positionOf(ID(2))
	if posB.runID != newHead || posB.offset != 0 {
		t.Fatalf("unexpected index for ID(2): %+v", posB)
	}
	posC, _ := s.positionOf(ID(3))
	if posC.runID != newHead || posC.offset != 1 {
		t.Fatalf("unexpected index for ID(3): %+v", posC)
	}
}

func TestRunStore_SplitAt_SingleElementRemainderThenNoOp(t *testing.T) {
	s := newRunStore()
	s.startRun(0, nil, ID(1), 'a')
	r, _ := s.isLastOfRun(ID(1))
	s.extend(r, ID(2), 'b')

	newHead, split := s.splitAt(ID(1))
	if !split || newHead != ID(2) {
		t.Fatalf("expected split producing new head ID(2)")
	}

	// Splitting again at the same already-terminal point is a no-op.
	if _, split := s.splitAt(ID(1)); split {
		t.Fatalf("expected second split at the same (now terminal) point to be a no-op")
	}
}
