package hashseq

// Cursor is a stateful position over a Sequence, for editors that want to
// type, backspace, and navigate without recomputing a logical index on
// every keystroke. It tracks the ids immediately to its left and right
// rather than a raw index, so it survives concurrent remote edits that
// shift everything after it: left/right identify specific characters, not
// offsets. The integer position is a cached value that only this cursor's
// own edits and Seek update; Position does not re-derive it.
//
// Grounded on the teacher's RGA.Insert/RGA.Delete method shapes — acquire
// the lock, mutate, return — generalized to the two-neighbor-id state the
// causal-tree RList keeps in its own Cursor field (AtomID there, a pair of
// ids here since Sequence admits both After and Before anchoring).
type Cursor struct {
	seq      *Sequence
	left     ID
	right    ID
	hasLeft  bool
	hasRight bool
	position int
}

// NewCursor returns a Cursor positioned at the start of seq (position 0).
func NewCursor(seq *Sequence) *Cursor {
	c := &Cursor{seq: seq}
	c.Seek(0)
	return c
}

// Seek repositions the cursor at logical index idx, clamping out-of-range
// indices to [0, seq.Len()].
func (c *Cursor) Seek(idx int) {
	c.seq.mu.RLock()
	defer c.seq.mu.RUnlock()
	left, right, hasLeft, hasRight := c.seq.locate(idx)
	c.left, c.right = left, right
	c.hasLeft, c.hasRight = hasLeft, hasRight
	c.position = clampIdx(idx, 0, c.seq.graph.length())
}

// Position reports the cursor's current logical index.
func (c *Cursor) Position() int {
	return c.position
}

// Seq returns the Sequence this cursor is borrowed from.
func (c *Cursor) Seq() *Sequence {
	return c.seq
}

// Insert places c immediately after the cursor's current position and
// advances the cursor to sit right after the new character, so repeated
// calls type forward the way a text cursor does.
func (cur *Cursor) Insert(c rune) {
	cur.seq.mu.Lock()
	parent, _, _ := decideAnchor(cur.seq.graph, cur.left, cur.right, cur.hasLeft, cur.hasRight)
	extraDeps := cur.seq.tipsExcept(parent)
	ev := buildInsertEvent(cur.seq.graph, cur.left, cur.right, cur.hasLeft, cur.hasRight, extraDeps, c)
	cur.seq.graph.apply(ev)
	cur.seq.invalidateMarkers(cur.position)
	cur.seq.stats.recordInsert(cur.seq.replicaID)
	cur.seq.mu.Unlock()

	cur.left, cur.hasLeft = ev.ID, true
	cur.position++
}

// InsertAhead places c at the cursor's current position, ahead of the
// cursor: the new character becomes the cursor's right neighbor and the
// cursor's own position is unmoved, so c ends up to the cursor's right.
func (cur *Cursor) InsertAhead(c rune) {
	cur.seq.mu.Lock()
	parent, _, _ := decideAnchor(cur.seq.graph, cur.left, cur.right, cur.hasLeft, cur.hasRight)
	extraDeps := cur.seq.tipsExcept(parent)
	ev := buildInsertEvent(cur.seq.graph, cur.left, cur.right, cur.hasLeft, cur.hasRight, extraDeps, c)
	cur.seq.graph.apply(ev)
	cur.seq.invalidateMarkers(cur.position)
	cur.seq.stats.recordInsert(cur.seq.replicaID)
	cur.seq.mu.Unlock()

	cur.right, cur.hasRight = ev.ID, true
}

// Remove deletes the character immediately to the cursor's left (a
// backspace), moving the cursor to sit after whatever was left of it. It
// is a no-op at the start of the sequence.
func (c *Cursor) Remove() {
	if !c.hasLeft {
		return
	}
	c.seq.mu.Lock()
	target := c.left
	extraDeps := c.seq.tipsExcept(target)
	ev := NewRemove(extraDeps, []ID{target})
	c.seq.graph.apply(ev)
	c.seq.invalidateMarkers(c.position - 1)
	c.seq.stats.recordRemove(c.seq.replicaID)
	c.seq.mu.Unlock()

	c.position--
	c.Seek(c.position)
}
