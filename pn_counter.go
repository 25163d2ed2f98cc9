package hashseq

// editStats is a per-Sequence diagnostic counter tracking, per replica, how
// many characters it has inserted and how many it has removed. It is the
// teacher's PNCounter, repurposed: the "P" counter tracks inserts, the "N"
// counter tracks removes, both keyed by the acting replica's id instead of
// a single fixed nodeID — the local edits (Sequence.Insert/InsertBatch/
// Remove/RemoveBatch and the Cursor edit methods) feed it, Sequence.Merge
// folds in the merged Sequence's counts, and Sequence.Stats exposes it;
// Sequence.Apply does not touch it. It plays no part in convergence; two replicas
// can disagree on these numbers without violating any CRDT law, since it
// counts local edit activity rather than sequence content.
type editStats struct {
	inserted *replicaCounter
	removed  *replicaCounter
}

func newEditStats() *editStats {
	return &editStats{
		inserted: newReplicaCounter(),
		removed:  newReplicaCounter(),
	}
}

// recordInsert adds 1 to replica's insert count.
func (s *editStats) recordInsert(replica string) {
	s.inserted.increment(replica)
}

// recordRemove adds 1 to replica's remove count.
func (s *editStats) recordRemove(replica string) {
	s.removed.increment(replica)
}

// totals returns the global insert and remove counts across all replicas.
func (s *editStats) totals() (inserted, removed int) {
	return s.inserted.value(), s.removed.value()
}

// merge combines another Sequence's diagnostic counts into this one,
// independently merging the underlying insert and remove counters.
func (s *editStats) merge(other *editStats) {
	s.inserted.merge(other.inserted)
	s.removed.merge(other.removed)
}
