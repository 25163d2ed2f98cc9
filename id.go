package hashseq

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// ID is the content-addressed identity of an Event: a 64-bit hash of its
// canonical encoding. Ids are opaque; callers must treat them as byte-equal
// values, never as timestamps or counters.
//
// Cross-implementation bit-exact interop is out of scope (see the hash
// construction decision recorded in DESIGN.md); an implementation only
// needs to agree with itself, so a 64-bit non-cryptographic hash is
// sufficient.
type ID uint64

// tag identifies an Event's operation variant in its canonical encoding and
// on the wire. The numbering matches the codec's per-event format:
// RUN is reserved for the codec's run-expansion records and is never the tag
// of a hashed Event.
type tag byte

const (
	tagRun    tag = 0
	tagRoot   tag = 1
	tagBefore tag = 2
	tagRemove tag = 3
	tagAfter  tag = 4
)

// hasher accumulates the canonical byte encoding of an event and reduces it
// to a 64-bit ID. The write order is fixed: ascending extra-deps, the
// one-byte tag, then the variant payload in a fixed field order — any
// deviation changes every id downstream, so these helpers are the only
// place that may feed the hash.
type hasher struct {
	h   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher {
	return &hasher{h: xxhash.New()}
}

func (h *hasher) writeExtraDeps(deps []ID) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(len(deps)))
	h.h.Write(h.buf[:])
	for _, d := range deps {
		h.writeID(d)
	}
}

func (h *hasher) writeID(id ID) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(id))
	h.h.Write(h.buf[:])
}

func (h *hasher) writeTag(t tag) {
	h.h.Write([]byte{byte(t)})
}

func (h *hasher) writeRune(r rune) {
	binary.LittleEndian.PutUint32(h.buf[:4], uint32(r))
	h.h.Write(h.buf[:4])
}

func (h *hasher) sum() ID {
	return ID(h.h.Sum64())
}

// hashRoot computes the id of a Root(c) event with the given extra
// dependencies (ascending).
func hashRoot(extraDeps []ID, c rune) ID {
	h := newHasher()
	h.writeExtraDeps(extraDeps)
	h.writeTag(tagRoot)
	h.writeRune(c)
	return h.sum()
}

// hashAfter computes the id of an After(parent, c) event.
func hashAfter(extraDeps []ID, parent ID, c rune) ID {
	h := newHasher()
	h.writeExtraDeps(extraDeps)
	h.writeTag(tagAfter)
	h.writeID(parent)
	h.writeRune(c)
	return h.sum()
}

// hashBefore computes the id of a Before(parent, c) event.
func hashBefore(extraDeps []ID, parent ID, c rune) ID {
	h := newHasher()
	h.writeExtraDeps(extraDeps)
	h.writeTag(tagBefore)
	h.writeID(parent)
	h.writeRune(c)
	return h.sum()
}

// hashRemove computes the id of a Remove(targets) event. targets must
// already be in ascending order; the caller owns that invariant.
func hashRemove(extraDeps []ID, targets []ID) ID {
	h := newHasher()
	h.writeExtraDeps(extraDeps)
	h.writeTag(tagRemove)
	binary.LittleEndian.PutUint64(h.buf[:], uint64(len(targets)))
	h.h.Write(h.buf[:])
	for _, t := range targets {
		h.writeID(t)
	}
	return h.sum()
}
