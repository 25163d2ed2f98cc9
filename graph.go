package hashseq

// graph is the causal event graph. It owns every
// admitted Event that is not compressed into a run, the after/before
// adjacency maps, the tip set, the tombstone set, the orphan buffer, and
// the run store. Grounded on rga.go's RGA.integrate/processNode/
// pendingOrphans orphan-buffering pattern, generalized from a single linked
// list to adjacency maps plus an explicit run store.
type graph struct {
	nodes      map[ID]Event
	after      map[ID][]ID
	before     map[ID][]ID
	roots      []ID
	tips       map[ID]struct{}
	tombstones *tombstoneSet
	orphans    map[ID]Event
	runs       *runStore

	insertedCount int
	removeCount   int
}

func newGraph() *graph {
	return &graph{
		nodes:      make(map[ID]Event),
		after:      make(map[ID][]ID),
		before:     make(map[ID][]ID),
		tips:       make(map[ID]struct{}),
		tombstones: newTombstoneSet(),
		orphans:    make(map[ID]Event),
		runs:       newRunStore(),
	}
}

// known reports whether id already denotes an admitted event, whether it
// was stored as a standalone node or compressed into a run.
func (g *graph) known(id ID) bool {
	if _, ok := g.nodes[id]; ok {
		return true
	}
	_, ok := g.runs.positionOf(id)
	return ok
}

// charOf returns the character contributed by an admitted id, regardless of
// whether it lives in nodes (Root/Before) or in a run.
func (g *graph) charOf(id ID) rune {
	if e, ok := g.nodes[id]; ok {
		return e.Char
	}
	pos, ok := g.runs.positionOf(id)
	if !ok {
		return 0
	}
	return g.runs.get(pos.runID).content[pos.offset]
}

// apply admits a single event: dedupe, dependency-check-or-orphan,
// adjacency update, tip update, orphan drain.
func (g *graph) apply(e Event) {
	if g.known(e.ID) {
		return
	}
	deps := e.Dependencies()
	for _, d := range deps {
		if !g.known(d) {
			g.orphans[e.ID] = e
			return
		}
	}

	switch e.Op {
	case opRoot:
		g.nodes[e.ID] = e
		g.roots = insertSortedID(g.roots, e.ID)
		g.insertedCount++

	case opBefore:
		if newHead, split := g.runs.splitAt(e.Parent); split {
			g.after[e.Parent] = insertSortedID(g.after[e.Parent], newHead)
		}
		g.nodes[e.ID] = e
		g.before[e.Parent] = insertSortedID(g.before[e.Parent], e.ID)
		g.insertedCount++

	case opAfter:
		if newHead, split := g.runs.splitAt(e.Parent); split {
			g.after[e.Parent] = insertSortedID(g.after[e.Parent], newHead)
		}
		if len(e.ExtraDeps) == 0 {
			if r, ok := g.runs.isLastOfRun(e.Parent); ok && len(g.after[e.Parent]) == 0 {
				g.runs.extend(r, e.ID, e.Char)
				g.insertedCount++
				break
			}
		}
		g.runs.startRun(e.Parent, e.ExtraDeps, e.ID, e.Char)
		g.after[e.Parent] = insertSortedID(g.after[e.Parent], e.ID)
		g.insertedCount++

	case opRemove:
		g.nodes[e.ID] = e
		for _, t := range e.Targets {
			g.tombstones.add(t)
		}
		g.removeCount++
	}

	for _, d := range deps {
		delete(g.tips, d)
	}
	g.tips[e.ID] = struct{}{}

	g.drainOrphans()
}

// drainOrphans moves the current orphan set aside and re-applies each one;
// recursion terminates because every call either admits (strictly growing
// known ids) or re-orphans into the fresh map being built by the caller's
// caller, never looping on the same snapshot.
func (g *graph) drainOrphans() {
	if len(g.orphans) == 0 {
		return
	}
	pending := g.orphans
	g.orphans = make(map[ID]Event)
	for _, e := range pending {
		g.apply(e)
	}
}

// length reports the number of non-tombstoned characters currently
// visible: total admitted characters plus remove events, minus twice the
// tombstone count (each tombstone accounts for one insert and one remove
// event becoming invisible).
func (g *graph) length() int {
	return g.insertedCount + g.removeCount - 2*g.tombstones.len()
}
