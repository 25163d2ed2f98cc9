package hashseq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplicaCounter_Convergence(t *testing.T) {
	a := newReplicaCounter()
	b := newReplicaCounter()

	a.increment("replica-a")
	a.increment("replica-a")
	b.increment("replica-b")

	// Cross-merge.
	a.merge(b)
	b.merge(a)

	require.Equal(t, 3, a.value())
	require.Equal(t, 3, b.value())

	a.merge(b)
	require.Equal(t, 3, a.value(), "merge must be idempotent")
}

func TestReplicaCounter_MergeTakesMax(t *testing.T) {
	a := newReplicaCounter()
	b := newReplicaCounter()

	a.increment("r1")
	a.increment("r1")
	a.increment("r1")
	b.increment("r1")

	a.merge(b)
	require.Equal(t, 3, a.value(), "merge must keep the max per-replica slot, not sum them")
}
