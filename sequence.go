package hashseq

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Sequence is a replicated sequence CRDT over Unicode scalar values: the
// façade over the causal graph, run store, topological iterator, and
// marker cache that the rest of this package implements. Its
// Insert/Remove/Merge/Value method shapes carry forward a mutex-guarded
// registry wrapped in that same surface, generalized to route through the
// causal graph, run store, and marker cache instead of a single linked
// list.
//
// Sequence satisfies CRDT (doc.go): its Merge is commutative, associative,
// and idempotent, because re-applying an already-known event is always a
// no-op (graph.apply step 1) and every event's meaning is fixed forever
// once admitted.
type Sequence struct {
	mu        sync.RWMutex
	replicaID string
	graph     *graph
	markers   *markerCache
	stats     *editStats
}

// New creates an empty Sequence. An optional replicaID may be supplied for
// diagnostics (editStats, panics, test failure messages); it is never part
// of event identity. When omitted, a random id is generated.
func New(replicaID ...string) *Sequence {
	id := ""
	if len(replicaID) > 0 {
		id = replicaID[0]
	} else {
		id = uuid.NewString()
	}
	return &Sequence{
		replicaID: id,
		graph:     newGraph(),
		markers:   newMarkerCache(),
		stats:     newEditStats(),
	}
}

// Len returns the number of non-tombstoned inserted characters currently
// visible.
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.graph.length()
}

// IsEmpty reports whether Len() == 0.
func (s *Sequence) IsEmpty() bool {
	return s.Len() == 0
}

// Stats reports edit activity counted per replica: the number of
// characters inserted and removed via Insert/InsertBatch/Remove/RemoveBatch
// and the Cursor edit methods, plus the counts carried in by Merge, which
// keeps the larger count for each replica id. Events delivered through
// Apply are not counted. It is a diagnostic only — it plays no role in
// convergence and may legitimately differ between replicas that have
// applied the same event set but performed different local edits.
func (s *Sequence) Stats() (inserted, removed int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats.totals()
}

// invalidateMarkers drops cached markers after a local edit at idx. The
// production default is clear-all (§4.5: "correctness MUST be preserved if
// markers were always cleared"); invalidateFrom's narrower "drop keys >=
// idx, keep the rest" patching is only ever exercised when
// markerPatchingEnabled is flipped on, which only marker_equivalence_test.go
// does.
func (s *Sequence) invalidateMarkers(idx int) {
	if markerPatchingEnabled {
		s.markers.invalidateFrom(idx)
		return
	}
	s.markers.clear()
}

func clampIdx(idx, lo, hi int) int {
	if idx < lo {
		return lo
	}
	if idx > hi {
		return hi
	}
	return idx
}

// locate clamps idx to [0, len], positions it against the cached
// marker nearest-at-or-below it, advances to idx, records a new marker at
// the midpoint when the advance exceeds the spacing threshold, and
// returns the ids immediately left and right of idx.
func (s *Sequence) locate(idx int) (left, right ID, hasLeft, hasRight bool) {
	length := s.graph.length()
	idx = clampIdx(idx, 0, length)

	k, m, found := s.markers.nearestAtOrBelow(idx)
	var cs *charIterator
	if found {
		cs = newCharIteratorFromMarker(s.graph, s.graph.tombstones, m)
	} else {
		cs = newCharIterator(newIterator(s.graph), s.graph.tombstones)
		k = 0
	}

	// k == idx means the cached marker already knows the left neighbor
	// (the id it last emitted before the snapshot) with no walking at all.
	if found && k == idx {
		left, hasLeft = m.lastEmitted, m.hasLast
	}

	diff := idx - k
	threshold := spacingThreshold(length)
	mid := k + diff/2

	for pos := k; pos < idx; pos++ {
		id, _, ok := cs.next()
		if !ok {
			break
		}
		left, hasLeft = id, true
		if diff > threshold && mid != k && pos+1 == mid {
			s.markers.insert(mid, cs.marker())
		}
	}
	if diff > threshold {
		s.markers.cacheMiss++
	} else {
		s.markers.cacheHit++
	}

	if id, _, ok := cs.next(); ok {
		right, hasRight = id, true
	}
	return
}

// tipsExcept returns the current tip set, ascending, with except removed —
// the extra_deps every locally-built event carries, so a concurrent edit
// can tell it happened after everything this replica had seen.
func (s *Sequence) tipsExcept(except ID) []ID {
	out := make([]ID, 0, len(s.graph.tips))
	for id := range s.graph.tips {
		if id != except {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// successorsOf returns x's immediate dependency-successors: ids that name x
// as their parent via After or Before, plus — since run compression never
// changes what an event causally depends on, only how it is stored — the
// next element of x's own run when x is a non-terminal run element.
func successorsOf(g *graph, x ID) []ID {
	var out []ID
	if pos, ok := g.runs.positionOf(x); ok {
		r := g.runs.get(pos.runID)
		if pos.offset+1 < len(r.elementIDs) {
			out = append(out, r.elementIDs[pos.offset+1])
		}
	}
	out = append(out, g.after[x]...)
	out = append(out, g.before[x]...)
	return out
}

// causallyBefore reports whether a is causally before b: a bounded BFS from
// a's dependency-successors.
func causallyBefore(g *graph, a, b ID) bool {
	if a == b {
		return false
	}
	visited := map[ID]bool{a: true}
	queue := successorsOf(g, a)
	for len(queue) > 0 {
		x := queue[0]
		queue = queue[1:]
		if x == b {
			return true
		}
		if visited[x] {
			continue
		}
		visited[x] = true
		queue = append(queue, successorsOf(g, x)...)
	}
	return false
}

// decideAnchor picks which neighbor anchors a new character per the
// decision table: no neighbors means Root, a missing left means
// Before(right), a missing right means After(left), and with both present
// the one not causally before the other wins as the anchor. Returns the
// chosen parent (zero value and before=false for Root) and whether the
// resulting op is Before (as opposed to After or Root).
func decideAnchor(g *graph, left, right ID, hasLeft, hasRight bool) (parent ID, before, isRoot bool) {
	switch {
	case !hasLeft && !hasRight:
		return 0, false, true
	case !hasLeft:
		return right, true, false
	case !hasRight:
		return left, false, false
	default:
		if causallyBefore(g, left, right) {
			return right, true, false
		}
		return left, false, false
	}
}

// buildInsertEvent constructs the Event decideAnchor selected, given the
// extra-deps already computed against that same parent.
func buildInsertEvent(g *graph, left, right ID, hasLeft, hasRight bool, extraDeps []ID, c rune) Event {
	parent, before, isRoot := decideAnchor(g, left, right, hasLeft, hasRight)
	switch {
	case isRoot:
		return NewRoot(extraDeps, c)
	case before:
		return NewBefore(extraDeps, parent, c)
	default:
		return NewAfter(extraDeps, parent, c)
	}
}

// Insert places c at logical index idx, clamping out-of-range indices to
// [0, len].
func (s *Sequence) Insert(idx int, c rune) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(idx, c)
}

func (s *Sequence) insertLocked(idx int, c rune) ID {
	left, right, hasLeft, hasRight := s.locate(idx)
	parent, before, isRoot := decideAnchor(s.graph, left, right, hasLeft, hasRight)
	extraDeps := s.tipsExcept(parent)
	var ev Event
	switch {
	case isRoot:
		ev = NewRoot(extraDeps, c)
	case before:
		ev = NewBefore(extraDeps, parent, c)
	default:
		ev = NewAfter(extraDeps, parent, c)
	}
	s.graph.apply(ev)
	s.invalidateMarkers(idx)
	s.stats.recordInsert(s.replicaID)
	return ev.ID
}

// InsertBatch inserts chars starting at idx: the first character follows
// Insert's decision table; every subsequent character becomes an After
// chained to the previous character's event id with empty extra-deps, so
// the whole batch compresses into a single run.
func (s *Sequence) InsertBatch(idx int, chars []rune) {
	if len(chars) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prevID := s.insertLocked(idx, chars[0])
	for _, c := range chars[1:] {
		ev := NewAfter(nil, prevID, c)
		s.graph.apply(ev)
		prevID = ev.ID
	}
	s.invalidateMarkers(idx)
	for range chars[1:] {
		s.stats.recordInsert(s.replicaID)
	}
}

// Remove deletes the character at logical index idx, clamping out-of-range
// indices to [0, len). A remove against an empty sequence is a no-op.
func (s *Sequence) Remove(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(idx)
}

func (s *Sequence) removeLocked(idx int) {
	length := s.graph.length()
	if length == 0 {
		return
	}
	idx = clampIdx(idx, 0, length-1)
	_, target, _, hasTarget := s.locate(idx)
	if !hasTarget {
		return
	}
	extraDeps := s.tipsExcept(target)
	ev := NewRemove(extraDeps, []ID{target})
	s.graph.apply(ev)
	s.invalidateMarkers(idx)
	s.stats.recordRemove(s.replicaID)
}

// RemoveBatch repeats Remove(idx) n times; each successive remove's
// extra_deps is tips minus that removal's own target, so consecutive
// removes of adjacent run elements form the backspace chain the codec
// detects (codec.go, detectRemoveChains).
func (s *Sequence) RemoveBatch(idx, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.removeLocked(idx)
	}
}

// Iter projects the non-tombstoned characters in topological order.
func (s *Sequence) Iter() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return collectString(newCharIterator(newIterator(s.graph), s.graph.tombstones))
}

// String implements fmt.Stringer, handy for printing intermediate state in
// traces and tests.
func (s *Sequence) String() string {
	return s.Iter()
}

// Apply is the public entry point for externally-sourced events — the
// counterpart to locally-produced edits, for remote delivery and codec
// replay.
func (s *Sequence) Apply(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph.apply(e)
	s.markers.clear()
}

// allEvents reconstructs the full admitted event set of g, including runs
// expanded back into their individual After events (using the ids already
// cached in each run rather than recomputing hashes) and pending orphans.
func allEvents(g *graph) []Event {
	events := make([]Event, 0, len(g.nodes))
	for _, e := range g.nodes {
		events = append(events, e)
	}
	for _, id := range sortedRunIDs(g.runs) {
		r := g.runs.get(id)
		for i, elemID := range r.elementIDs {
			var parent ID
			var deps []ID
			if i == 0 {
				parent = r.anchor
				deps = r.firstExtraDeps
			} else {
				parent = r.elementIDs[i-1]
			}
			events = append(events, Event{
				ID:        elemID,
				Op:        opAfter,
				Parent:    parent,
				Char:      r.content[i],
				ExtraDeps: deps,
			})
		}
	}
	for _, e := range g.orphans {
		events = append(events, e)
	}
	return events
}

// Merge implements CRDT (doc.go): it type-asserts other to *Sequence and
// re-applies every event (and every orphan) it holds into s, including
// every character the run store has compressed away. It is commutative
// and associative because apply is, and idempotent for
// the same reason a single Apply is.
func (s *Sequence) Merge(other CRDT) error {
	o, ok := other.(*Sequence)
	if !ok {
		return fmt.Errorf("hashseq: cannot merge %T into *Sequence", other)
	}

	o.mu.RLock()
	events := allEvents(o.graph)
	o.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.graph.apply(e)
	}
	s.markers.clear()
	s.stats.merge(o.stats)
	return nil
}

// Orphans returns the ids currently awaiting missing dependencies, for
// diagnostics.
func (s *Sequence) Orphans() []ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedOrphanIDs(s.graph.orphans)
}

// Clone returns an independent deep copy, an O(size) snapshot safe for a
// caller to read without racing further mutation of the original.
func (s *Sequence) Clone() *Sequence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := newGraph()
	for id, e := range s.graph.nodes {
		g.nodes[id] = e
	}
	g.after = cloneAdjacency(s.graph.after)
	g.before = cloneAdjacency(s.graph.before)
	g.roots = append([]ID(nil), s.graph.roots...)
	g.tips = make(map[ID]struct{}, len(s.graph.tips))
	for id := range s.graph.tips {
		g.tips[id] = struct{}{}
	}
	g.tombstones = s.graph.tombstones.clone()
	g.orphans = make(map[ID]Event, len(s.graph.orphans))
	for id, e := range s.graph.orphans {
		g.orphans[id] = e
	}
	g.runs = cloneRunStore(s.graph.runs)
	g.insertedCount = s.graph.insertedCount
	g.removeCount = s.graph.removeCount

	stats := newEditStats()
	stats.merge(s.stats)

	return &Sequence{
		replicaID: s.replicaID,
		graph:     g,
		markers:   newMarkerCache(),
		stats:     stats,
	}
}

func cloneAdjacency(m map[ID][]ID) map[ID][]ID {
	out := make(map[ID][]ID, len(m))
	for id, ids := range m {
		out[id] = append([]ID(nil), ids...)
	}
	return out
}

func cloneRunStore(s *runStore) *runStore {
	out := newRunStore()
	for id, r := range s.runs {
		out.runs[id] = &run{
			id:             r.id,
			anchor:         r.anchor,
			firstExtraDeps: append([]ID(nil), r.firstExtraDeps...),
			content:        append([]rune(nil), r.content...),
			elementIDs:     append([]ID(nil), r.elementIDs...),
		}
	}
	for id, p := range s.index {
		out.index[id] = p
	}
	return out
}

// Encode produces the canonical partitioned whole-sequence format.
func (s *Sequence) Encode() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return encodePartitioned(s.graph)
}

// EncodeDictionary produces the alternative dictionary whole-sequence
// format, preferable when the same ids appear many times in the body.
func (s *Sequence) EncodeDictionary() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return encodeDictionary(s.graph)
}

// Decode replaces s's state with the sequence encoded in data (partitioned
// or dictionary format, detected from the leading discriminator byte).
func (s *Sequence) Decode(data []byte) error {
	g, err := decodeWholeSequence(data)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = g
	s.markers.clear()
	return nil
}

// DecodeSequence decodes data into a fresh Sequence.
func DecodeSequence(data []byte) (*Sequence, error) {
	g, err := decodeWholeSequence(data)
	if err != nil {
		return nil, err
	}
	return &Sequence{
		replicaID: uuid.NewString(),
		graph:     g,
		markers:   newMarkerCache(),
		stats:     newEditStats(),
	}, nil
}

// Value implements CRDT (doc.go): the projected string.
func (s *Sequence) Value() any {
	return s.Iter()
}
