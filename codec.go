package hashseq

import (
	"encoding/binary"
	"sort"
	"unicode/utf8"
)

// refWriter appends the wire representation of an id reference to buf. It
// is the one thing that differs between the partitioned format (raw 8-byte
// little-endian ids) and the dictionary format (a varint index into a
// leading id table) — every section encoder is written once and threaded
// through whichever refWriter the caller picked.
type refWriter func(buf []byte, id ID) []byte

// refReader is refWriter's decode-side counterpart: it consumes an id
// reference from the front of buf and reports how many bytes it took.
type refReader func(buf []byte) (ID, int, error)

func rawWriteRef(buf []byte, id ID) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(id))
	return append(buf, b[:]...)
}

func rawReadRef(buf []byte) (ID, int, error) {
	if len(buf) < 8 {
		return 0, 0, ErrUnexpectedEOF
	}
	return ID(binary.LittleEndian.Uint64(buf)), 8, nil
}

func writeRuneUTF8(buf []byte, r rune) []byte {
	var tmp [utf8.UTFMax]byte
	n := utf8.EncodeRune(tmp[:], r)
	buf = append(buf, byte(n))
	return append(buf, tmp[:n]...)
}

func readRuneUTF8(buf []byte) (rune, int, error) {
	if len(buf) < 1 {
		return 0, 0, ErrUnexpectedEOF
	}
	n := int(buf[0])
	if n < 1 || n > utf8.UTFMax || len(buf) < 1+n {
		return 0, 0, ErrUnexpectedEOF
	}
	r, size := utf8.DecodeRune(buf[1 : 1+n])
	if r == utf8.RuneError && size <= 1 {
		return 0, 0, ErrInvalidUTF8
	}
	return r, 1 + n, nil
}

// --- per-event and batch format ---

func encodeEvent(buf []byte, wr refWriter, e Event) []byte {
	switch e.Op {
	case opRoot:
		buf = append(buf, byte(tagRoot))
	case opAfter:
		buf = append(buf, byte(tagAfter))
	case opBefore:
		buf = append(buf, byte(tagBefore))
	case opRemove:
		buf = append(buf, byte(tagRemove))
	}
	buf = appendVarint(buf, uint64(len(e.ExtraDeps)))
	for _, d := range e.ExtraDeps {
		buf = wr(buf, d)
	}
	switch e.Op {
	case opRoot:
		buf = writeRuneUTF8(buf, e.Char)
	case opAfter, opBefore:
		buf = wr(buf, e.Parent)
		buf = writeRuneUTF8(buf, e.Char)
	case opRemove:
		buf = appendVarint(buf, uint64(len(e.Targets)))
		for _, t := range e.Targets {
			buf = wr(buf, t)
		}
	}
	return buf
}

func decodeEvent(buf []byte, rr refReader) (Event, int, error) {
	if len(buf) < 1 {
		return Event{}, 0, ErrUnexpectedEOF
	}
	t := tag(buf[0])
	off := 1

	n, sz, err := readVarint(buf[off:])
	if err != nil {
		return Event{}, 0, err
	}
	off += sz

	deps := make([]ID, n)
	for i := range deps {
		id, sz, err := rr(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		deps[i] = id
		off += sz
	}

	switch t {
	case tagRoot:
		r, sz, err := readRuneUTF8(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		return NewRoot(deps, r), off, nil

	case tagAfter:
		p, sz, err := rr(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		r, sz, err := readRuneUTF8(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		return NewAfter(deps, p, r), off, nil

	case tagBefore:
		p, sz, err := rr(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		r, sz, err := readRuneUTF8(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		return NewBefore(deps, p, r), off, nil

	case tagRemove:
		cnt, sz, err := readVarint(buf[off:])
		if err != nil {
			return Event{}, 0, err
		}
		off += sz
		targets := make([]ID, cnt)
		for i := range targets {
			id, sz, err := rr(buf[off:])
			if err != nil {
				return Event{}, 0, err
			}
			targets[i] = id
			off += sz
		}
		return NewRemove(deps, targets), off, nil

	default:
		return Event{}, 0, &InvalidOpTagError{Tag: byte(t)}
	}
}

// EncodeBatch encodes events at batch granularity: a varint count followed
// by that many per-event records.
func EncodeBatch(events []Event) []byte {
	buf := appendVarint(nil, uint64(len(events)))
	for _, e := range events {
		buf = encodeEvent(buf, rawWriteRef, e)
	}
	return buf
}

// DecodeBatch is EncodeBatch's inverse.
func DecodeBatch(data []byte) ([]Event, error) {
	n, sz, err := readVarint(data)
	if err != nil {
		return nil, err
	}
	off := sz
	out := make([]Event, 0, n)
	for i := uint64(0); i < n; i++ {
		e, sz, err := decodeEvent(data[off:], rawReadRef)
		if err != nil {
			return nil, err
		}
		off += sz
		out = append(out, e)
	}
	return out, nil
}

// --- whole-sequence format ---

// Format discriminators: the dictionary format is an optional alternative
// chosen by a leading discriminator byte when multiple formats coexist.
const (
	formatPartitioned byte = 0
	formatDictionary  byte = 1
)

// removeChainRecord is a detected run of adjacent single-target removes:
// each member's sole extra-dep is the previous member's id, and their
// targets are contiguous offsets of the same run, walked forward or
// backward.
type removeChainRecord struct {
	firstExtraDeps []ID
	runID          ID
	start, end     int
	forward        bool
}

// detectRemoveChains scans every single-target, single-extra-dep Remove
// event in g for chains chained purely through their own ids, and reports
// which remove event ids were absorbed into a chain (so the standalone
// removes section can skip them).
func detectRemoveChains(g *graph) ([]removeChainRecord, map[ID]bool) {
	candidates := make(map[ID]Event)
	for id, e := range g.nodes {
		if e.Op != opRemove || len(e.Targets) != 1 || len(e.ExtraDeps) != 1 {
			continue
		}
		if _, ok := g.runs.positionOf(e.Targets[0]); !ok {
			continue // only run-element targets can form a compressible chain
		}
		candidates[id] = e
	}

	nextOf := make(map[ID]ID) // predecessor remove id -> successor remove id
	isSuccessor := make(map[ID]bool)
	for id, e := range candidates {
		pred := e.ExtraDeps[0]
		if _, ok := candidates[pred]; ok {
			nextOf[pred] = id
			isSuccessor[id] = true
		}
	}

	var heads []ID
	for id := range candidates {
		if !isSuccessor[id] {
			heads = append(heads, id)
		}
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i] < heads[j] })

	var chains []removeChainRecord
	consumed := make(map[ID]bool)

	for _, head := range heads {
		chain := []Event{candidates[head]}
		cur := head
		for {
			next, ok := nextOf[cur]
			if !ok {
				break
			}
			chain = append(chain, candidates[next])
			cur = next
		}
		if len(chain) < 2 {
			continue
		}
		pos0, _ := g.runs.positionOf(chain[0].Targets[0])
		runID := pos0.runID
		ok := true
		for i := 1; i < len(chain); i++ {
			p, found := g.runs.positionOf(chain[i].Targets[0])
			if !found || p.runID != runID {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		forward := true
		for i := 1; i < len(chain); i++ {
			prev, _ := g.runs.positionOf(chain[i-1].Targets[0])
			cur, _ := g.runs.positionOf(chain[i].Targets[0])
			if cur.offset != prev.offset+1 {
				forward = false
				break
			}
		}
		if !forward {
			backward := true
			for i := 1; i < len(chain); i++ {
				prev, _ := g.runs.positionOf(chain[i-1].Targets[0])
				cur, _ := g.runs.positionOf(chain[i].Targets[0])
				if cur.offset != prev.offset-1 {
					backward = false
					break
				}
			}
			if !backward {
				continue
			}
		}
		startPos, _ := g.runs.positionOf(chain[0].Targets[0])
		endPos, _ := g.runs.positionOf(chain[len(chain)-1].Targets[0])
		start, end := startPos.offset, endPos.offset
		if start > end {
			start, end = end, start
		}
		chains = append(chains, removeChainRecord{
			firstExtraDeps: chain[0].ExtraDeps,
			runID:          runID,
			start:          start,
			end:            end,
			forward:        forward,
		})
		for _, e := range chain {
			consumed[e.ID] = true
		}
	}
	return chains, consumed
}

func sortedEventIDs(nodes map[ID]Event, want op) []ID {
	var ids []ID
	for id, e := range nodes {
		if e.Op == want {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedRunIDs(s *runStore) []ID {
	ids := make([]ID, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func sortedOrphanIDs(orphans map[ID]Event) []ID {
	ids := make([]ID, 0, len(orphans))
	for id := range orphans {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// encodeBody writes the six partitioned sections (roots, runs, befores,
// remove-run chains, standalone removes, orphans) using wr for every id
// reference. The partitioned and dictionary formats share this exactly;
// they differ only in wr and in what (if anything) precedes the body.
func encodeBody(g *graph, wr refWriter) []byte {
	var buf []byte

	roots := g.roots
	buf = appendVarint(buf, uint64(len(roots)))
	for _, id := range roots {
		e := g.nodes[id]
		buf = appendVarint(buf, uint64(len(e.ExtraDeps)))
		for _, d := range e.ExtraDeps {
			buf = wr(buf, d)
		}
		buf = writeRuneUTF8(buf, e.Char)
	}

	runIDs := sortedRunIDs(g.runs)
	buf = appendVarint(buf, uint64(len(runIDs)))
	for _, id := range runIDs {
		r := g.runs.get(id)
		buf = wr(buf, r.anchor)
		buf = appendVarint(buf, uint64(len(r.firstExtraDeps)))
		for _, d := range r.firstExtraDeps {
			buf = wr(buf, d)
		}
		buf = appendVarint(buf, uint64(len(r.content)))
		for _, c := range r.content {
			buf = writeRuneUTF8(buf, c)
		}
	}

	beforeIDs := sortedEventIDs(g.nodes, opBefore)
	buf = appendVarint(buf, uint64(len(beforeIDs)))
	for _, id := range beforeIDs {
		e := g.nodes[id]
		buf = wr(buf, e.Parent)
		buf = appendVarint(buf, uint64(len(e.ExtraDeps)))
		for _, d := range e.ExtraDeps {
			buf = wr(buf, d)
		}
		buf = writeRuneUTF8(buf, e.Char)
	}

	chains, consumed := detectRemoveChains(g)
	buf = appendVarint(buf, uint64(len(chains)))
	for _, c := range chains {
		buf = appendVarint(buf, uint64(len(c.firstExtraDeps)))
		for _, d := range c.firstExtraDeps {
			buf = wr(buf, d)
		}
		buf = wr(buf, c.runID)
		buf = appendVarint(buf, uint64(c.start))
		buf = appendVarint(buf, uint64(c.end))
		if c.forward {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
		}
	}

	var standalone []ID
	for _, id := range sortedEventIDs(g.nodes, opRemove) {
		if !consumed[id] {
			standalone = append(standalone, id)
		}
	}
	buf = appendVarint(buf, uint64(len(standalone)))
	for _, id := range standalone {
		e := g.nodes[id]
		buf = appendVarint(buf, uint64(len(e.ExtraDeps)))
		for _, d := range e.ExtraDeps {
			buf = wr(buf, d)
		}
		buf = appendVarint(buf, uint64(len(e.Targets)))
		for _, t := range e.Targets {
			buf = wr(buf, t)
		}
	}

	orphanIDs := sortedOrphanIDs(g.orphans)
	buf = appendVarint(buf, uint64(len(orphanIDs)))
	for _, id := range orphanIDs {
		buf = encodeEvent(buf, wr, g.orphans[id])
	}

	return buf
}

// decodeBody is encodeBody's inverse: it replays every section through
// g.apply, in the same section order encodeBody used. apply's own
// orphan-buffering absorbs any ordering slack (e.g. a before-event whose
// parent is a run element decoded moments earlier), so sections need not be
// in strict dependency order beyond "runs after roots, removes after runs
// and befores" — which this order already satisfies.
func decodeBody(g *graph, buf []byte, rr refReader) (int, error) {
	off := 0

	readU64 := func() (uint64, error) {
		n, sz, err := readVarint(buf[off:])
		if err != nil {
			return 0, err
		}
		off += sz
		return n, nil
	}
	readRef := func() (ID, error) {
		id, sz, err := rr(buf[off:])
		if err != nil {
			return 0, err
		}
		off += sz
		return id, nil
	}
	readDeps := func() ([]ID, error) {
		n, err := readU64()
		if err != nil {
			return nil, err
		}
		deps := make([]ID, n)
		for i := range deps {
			id, err := readRef()
			if err != nil {
				return nil, err
			}
			deps[i] = id
		}
		return deps, nil
	}
	readChar := func() (rune, error) {
		r, sz, err := readRuneUTF8(buf[off:])
		if err != nil {
			return 0, err
		}
		off += sz
		return r, nil
	}

	nRoots, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nRoots; i++ {
		deps, err := readDeps()
		if err != nil {
			return 0, err
		}
		c, err := readChar()
		if err != nil {
			return 0, err
		}
		g.apply(NewRoot(deps, c))
	}

	nRuns, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nRuns; i++ {
		anchor, err := readRef()
		if err != nil {
			return 0, err
		}
		firstDeps, err := readDeps()
		if err != nil {
			return 0, err
		}
		runeCount, err := readU64()
		if err != nil {
			return 0, err
		}
		if runeCount == 0 {
			return 0, ErrEmptyRun
		}
		prevID := anchor
		for i := uint64(0); i < runeCount; i++ {
			r, sz, err := readRuneUTF8(buf[off:])
			if err != nil {
				return 0, err
			}
			off += sz
			var deps []ID
			if i == 0 {
				deps = firstDeps
			}
			ev := NewAfter(deps, prevID, r)
			g.apply(ev)
			prevID = ev.ID
		}
	}

	nBefores, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nBefores; i++ {
		parent, err := readRef()
		if err != nil {
			return 0, err
		}
		deps, err := readDeps()
		if err != nil {
			return 0, err
		}
		c, err := readChar()
		if err != nil {
			return 0, err
		}
		g.apply(NewBefore(deps, parent, c))
	}

	nChains, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nChains; i++ {
		firstDeps, err := readDeps()
		if err != nil {
			return 0, err
		}
		runID, err := readRef()
		if err != nil {
			return 0, err
		}
		start, err := readU64()
		if err != nil {
			return 0, err
		}
		end, err := readU64()
		if err != nil {
			return 0, err
		}
		if off >= len(buf) {
			return 0, ErrUnexpectedEOF
		}
		forward := buf[off] == 0
		off++

		r := g.runs.get(runID)
		if r == nil {
			return 0, errMissingRun
		}
		offsets := make([]int, 0, end-start+1)
		if forward {
			for o := int(start); o <= int(end); o++ {
				offsets = append(offsets, o)
			}
		} else {
			for o := int(end); o >= int(start); o-- {
				offsets = append(offsets, o)
			}
		}
		prevID := ID(0)
		for i, o := range offsets {
			target := r.elementIDs[o]
			var deps []ID
			if i == 0 {
				deps = firstDeps
			} else {
				deps = []ID{prevID}
			}
			ev := NewRemove(deps, []ID{target})
			g.apply(ev)
			prevID = ev.ID
		}
	}

	nStandalone, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nStandalone; i++ {
		deps, err := readDeps()
		if err != nil {
			return 0, err
		}
		nTargets, err := readU64()
		if err != nil {
			return 0, err
		}
		targets := make([]ID, nTargets)
		for i := range targets {
			t, err := readRef()
			if err != nil {
				return 0, err
			}
			targets[i] = t
		}
		g.apply(NewRemove(deps, targets))
	}

	nOrphans, err := readU64()
	if err != nil {
		return 0, err
	}
	for i := uint64(0); i < nOrphans; i++ {
		e, sz, err := decodeEvent(buf[off:], rr)
		if err != nil {
			return 0, err
		}
		off += sz
		g.apply(e)
	}

	return off, nil
}

func collectReferencedIDs(g *graph) []ID {
	seen := make(map[ID]struct{})
	add := func(id ID) { seen[id] = struct{}{} }
	addAll := func(ids []ID) {
		for _, id := range ids {
			add(id)
		}
	}

	for _, id := range g.roots {
		addAll(g.nodes[id].ExtraDeps)
	}
	for _, id := range sortedRunIDs(g.runs) {
		r := g.runs.get(id)
		add(r.anchor)
		addAll(r.firstExtraDeps)
	}
	for _, id := range sortedEventIDs(g.nodes, opBefore) {
		e := g.nodes[id]
		add(e.Parent)
		addAll(e.ExtraDeps)
	}
	chains, consumed := detectRemoveChains(g)
	for _, c := range chains {
		addAll(c.firstExtraDeps)
		add(c.runID)
	}
	for _, id := range sortedEventIDs(g.nodes, opRemove) {
		if consumed[id] {
			continue
		}
		e := g.nodes[id]
		addAll(e.ExtraDeps)
		addAll(e.Targets)
	}
	for _, id := range sortedOrphanIDs(g.orphans) {
		addAll(g.orphans[id].Dependencies())
	}

	out := make([]ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// encodePartitioned produces the canonical persisted whole-sequence format:
// the six sections in order, every id reference written raw.
func encodePartitioned(g *graph) []byte {
	buf := []byte{formatPartitioned}
	return append(buf, encodeBody(g, rawWriteRef)...)
}

// encodeDictionary produces an alternative format: a leading ascending
// table of every referenced id, then the same six sections with every id
// reference replaced by a varint index into that table.
func encodeDictionary(g *graph) []byte {
	table := collectReferencedIDs(g)
	index := make(map[ID]int, len(table))
	for i, id := range table {
		index[id] = i
	}
	wr := func(buf []byte, id ID) []byte {
		return appendVarint(buf, uint64(index[id]))
	}

	buf := []byte{formatDictionary}
	buf = appendVarint(buf, uint64(len(table)))
	for _, id := range table {
		buf = rawWriteRef(buf, id)
	}
	return append(buf, encodeBody(g, wr)...)
}

// decodeWholeSequence dispatches on the leading format discriminator and
// rebuilds a fresh graph from the encoded event set.
func decodeWholeSequence(data []byte) (*graph, error) {
	if len(data) < 1 {
		return nil, ErrUnexpectedEOF
	}
	g := newGraph()
	switch data[0] {
	case formatPartitioned:
		if _, err := decodeBody(g, data[1:], rawReadRef); err != nil {
			return nil, err
		}
	case formatDictionary:
		n, sz, err := readVarint(data[1:])
		if err != nil {
			return nil, err
		}
		off := 1 + sz
		table := make([]ID, n)
		for i := range table {
			id, sz, err := rawReadRef(data[off:])
			if err != nil {
				return nil, err
			}
			table[i] = id
			off += sz
		}
		rr := func(buf []byte) (ID, int, error) {
			idx, sz, err := readVarint(buf)
			if err != nil {
				return 0, 0, err
			}
			if int(idx) >= len(table) {
				return 0, 0, &InvalidIDIndexError{Index: int(idx)}
			}
			return table[idx], sz, nil
		}
		if _, err := decodeBody(g, data[off:], rr); err != nil {
			return nil, err
		}
	default:
		return nil, &InvalidOpTagError{Tag: data[0]}
	}
	return g, nil
}
