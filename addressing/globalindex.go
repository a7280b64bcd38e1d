// Package addressing turns references to possibly remote, possibly
// periodic copies of elements into compact local numbering: owned elements
// first, then one slot per distinct remote element grouped by owning rank,
// then one segment per transform.
package addressing

import (
	"fmt"
	"sort"

	"github.com/notargets/meshcomm/parallel"
)

// GlobalIndex numbers elements globally by stacking the per rank counts.
type GlobalIndex struct {
	offsets []int // len NProcs+1
}

// NewGlobalIndex is collective: every rank passes its own element count.
func NewGlobalIndex(c parallel.Comm, localSize int) (*GlobalIndex, error) {
	sizes, err := parallel.AllGather(c, localSize)
	if err != nil {
		return nil, fmt.Errorf("global index: %w", err)
	}
	return NewGlobalIndexFromSizes(sizes), nil
}

func NewGlobalIndexFromSizes(sizes []int) *GlobalIndex {
	gi := &GlobalIndex{offsets: make([]int, len(sizes)+1)}
	for proc, n := range sizes {
		if n < 0 {
			panic(fmt.Sprintf("negative size %d on rank %d", n, proc))
		}
		gi.offsets[proc+1] = gi.offsets[proc] + n
	}
	return gi
}

func (gi *GlobalIndex) NProcs() int { return len(gi.offsets) - 1 }

// Size is the global number of elements.
func (gi *GlobalIndex) Size() int { return gi.offsets[len(gi.offsets)-1] }

func (gi *GlobalIndex) LocalSize(proc int) int {
	return gi.offsets[proc+1] - gi.offsets[proc]
}

func (gi *GlobalIndex) Offset(proc int) int { return gi.offsets[proc] }

func (gi *GlobalIndex) IsLocal(proc, g int) bool {
	return g >= gi.offsets[proc] && g < gi.offsets[proc+1]
}

func (gi *GlobalIndex) ToGlobal(proc, i int) int {
	return gi.offsets[proc] + i
}

func (gi *GlobalIndex) ToLocal(proc, g int) int {
	if !gi.IsLocal(proc, g) {
		panic(fmt.Sprintf("global index %d not on rank %d [%d,%d)",
			g, proc, gi.offsets[proc], gi.offsets[proc+1]))
	}
	return g - gi.offsets[proc]
}

// WhichProc returns the rank owning global index g.
func (gi *GlobalIndex) WhichProc(g int) int {
	if g < 0 || g >= gi.Size() {
		panic(fmt.Sprintf("global index %d outside [0,%d)", g, gi.Size()))
	}
	// First rank whose range ends past g, skipping empty ranks
	return sort.Search(gi.NProcs(), func(proc int) bool {
		return gi.offsets[proc+1] > g
	})
}
