package types

import (
	"fmt"
	"math"
)

/*
EdgeKey stores an edge's two point labels packed into one comparable value.
An edge between points [4] and [0] is always stored as [0,4], ascending, so
both orientations of the same edge produce the same key.
*/
type EdgeKey uint64

func NewEdgeKey(a, b int) (packed EdgeKey) {
	var (
		limit = math.MaxUint32
	)
	if a < 0 || a > limit || b < 0 || b > limit {
		panic(fmt.Errorf("unable to pack point labels %d and %d into an edge key", a, b))
	}
	if a > b {
		a, b = b, a
	}
	packed = EdgeKey(uint64(a) | uint64(b)<<32)
	return
}

// Points returns the two labels, lowest first.
func (ek EdgeKey) Points() (pts [2]int) {
	pts[0] = int(ek & math.MaxUint32)
	pts[1] = int(ek >> 32)
	return
}

func (ek EdgeKey) String() string {
	p := ek.Points()
	return fmt.Sprintf("(%d,%d)", p[0], p[1])
}
