// Package hashseq implements a replicated sequence CRDT over Unicode scalar
// values.
//
// Every edit produces a content-addressed Event; the set of applied events
// forms a causal DAG, and a deterministic linearization of that DAG yields
// the current string. Two replicas that have observed the same set of
// events converge to byte-identical sequences regardless of the order in
// which those events arrived.
//
// This package implements a single data type, Sequence, together with the
// supporting machinery: the causal event graph (graph.go), a run-compression
// store that collapses contiguous append chains into strings (run.go), a
// topological iterator defining the one true linearization (iterator.go), a
// sparse marker cache giving amortized sub-linear indexed access
// (marker.go), and a compact binary codec for persistence and replication
// (codec.go).
package hashseq

// CRDT is the base interface that defines the behavior for all convergent
// data types in this package.
//
// Implementing types must ensure that their internal state can be merged
// commutatively, associatively, and idempotently to satisfy the mathematical
// properties of a Join-Semilattice.
type CRDT interface {
	// Value returns the current consolidated state of the CRDT.
	//
	// For Sequence this returns the linearized, projected string.
	Value() any

	// Merge combines the state of a remote CRDT into the local instance.
	//
	// To guarantee convergence across all distributed replicas, the
	// implementation of Merge MUST be:
	//
	// 1. Commutative: The order of merging doesn't matter.
	//    A.Merge(B) results in the same state as B.Merge(A).
	//
	// 2. Associative: The grouping of merges doesn't matter.
	//    (A.Merge(B)).Merge(C) == A.Merge((B.Merge(C))).
	//
	// 3. Idempotent: Merging the same state multiple times has no effect
	//    beyond the first merge. A.Merge(A) == A.
	//
	// Implementations should perform type-assertion on the 'other' parameter
	// and return an error if the types are incompatible.
	Merge(other CRDT) error
}
