package hashseq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEditStats_Basic(t *testing.T) {
	stats := newEditStats()

	stats.recordInsert("replica-a")
	stats.recordInsert("replica-a")
	stats.recordRemove("replica-a")

	inserted, removed := stats.totals()
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 1, removed)
}

func TestEditStats_Merge(t *testing.T) {
	a := newEditStats()
	b := newEditStats()

	a.recordInsert("replica-a")
	b.recordRemove("replica-b")

	a.merge(b)
	b.merge(a)

	aIns, aRem := a.totals()
	bIns, bRem := b.totals()
	require.Equal(t, aIns, bIns, "expected convergence on inserted count")
	require.Equal(t, aRem, bRem, "expected convergence on removed count")
}
