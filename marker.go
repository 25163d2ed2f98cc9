package hashseq

import (
	"math"
	"sort"
)

// markerPatchingEnabled gates an optional targeted-invalidation fast path.
// It is never set outside marker_equivalence_test.go: every exported
// Sequence method always invalidates via clear-all, which is the only
// strategy guaranteed correct against concurrent splits and extensions.
// The toggle exists solely so the equivalence test can compare both
// strategies against each other.
var markerPatchingEnabled = false

// markerCache is the sparse index -> Marker map: populated on
// indexed access, invalidated on mutation, giving amortized O(log N)
// repeated access. Grounded on the sparse-index-beside-primary-storage
// idiom used across the retrieval pack for auxiliary lookup structures,
// adapted here to a logical-index key instead of a byte-offset or path key.
type markerCache struct {
	byIndex   map[int]Marker
	keys      []int // ascending, kept in sync with byIndex
	cacheHit  int
	cacheMiss int
}

func newMarkerCache() *markerCache {
	return &markerCache{byIndex: make(map[int]Marker)}
}

// nearestAtOrBelow returns the greatest key <= idx together with its
// marker, or (0, Marker{}, false) if none exists.
func (c *markerCache) nearestAtOrBelow(idx int) (int, Marker, bool) {
	i := sort.Search(len(c.keys), func(i int) bool { return c.keys[i] > idx })
	if i == 0 {
		return 0, Marker{}, false
	}
	k := c.keys[i-1]
	return k, c.byIndex[k], true
}

func (c *markerCache) insert(idx int, m Marker) {
	if _, exists := c.byIndex[idx]; !exists {
		i := sort.SearchInts(c.keys, idx)
		c.keys = append(c.keys, 0)
		copy(c.keys[i+1:], c.keys[i:])
		c.keys[i] = idx
	}
	c.byIndex[idx] = m.clone()
}

// invalidateFrom drops every marker at or after idx. When markerPatching is
// disabled (the production default) callers instead call clear, which this
// cache treats identically to invalidateFrom(0).
func (c *markerCache) invalidateFrom(idx int) {
	j := sort.SearchInts(c.keys, idx)
	for _, k := range c.keys[j:] {
		delete(c.byIndex, k)
	}
	c.keys = c.keys[:j]
}

func (c *markerCache) clear() {
	c.byIndex = make(map[int]Marker)
	c.keys = nil
}

// spacingThreshold implements ceil(log2(max(len,2))), the spacing above
// which a new marker is worth inserting.
func spacingThreshold(length int) int {
	if length < 2 {
		length = 2
	}
	return int(math.Ceil(math.Log2(float64(length))))
}
