package addressing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshcomm/parallel"
)

func TestGlobalIndex(t *testing.T) {
	gi := NewGlobalIndexFromSizes([]int{3, 0, 4, 2})
	assert.Equal(t, 4, gi.NProcs())
	assert.Equal(t, 9, gi.Size())
	assert.Equal(t, 3, gi.Offset(1))
	assert.Equal(t, 3, gi.Offset(2))
	assert.Equal(t, 0, gi.LocalSize(1))
	assert.Equal(t, []int{0, 0, 0, 2, 2, 2, 2, 3, 3}, func() (procs []int) {
		for g := 0; g < gi.Size(); g++ {
			procs = append(procs, gi.WhichProc(g))
		}
		return
	}())
	assert.True(t, gi.IsLocal(2, 6))
	assert.False(t, gi.IsLocal(2, 7))
	assert.Equal(t, 8, gi.ToGlobal(3, 1))
	assert.Equal(t, 1, gi.ToLocal(3, 8))
	assert.Panics(t, func() { gi.ToLocal(0, 8) })
	assert.Panics(t, func() { gi.WhichProc(9) })

	// The collective constructor gives every rank the same numbering
	err := parallel.NewWorld(3).Run(func(c parallel.Comm) error {
		gi, err := NewGlobalIndex(c, c.Rank()+1)
		if err != nil {
			return err
		}
		assert.Equal(t, 6, gi.Size())
		assert.Equal(t, []int{0, 1, 3, 6}, gi.offsets)
		return nil
	})
	require.NoError(t, err)
}

func TestBuild(t *testing.T) {
	var (
		gi = NewGlobalIndexFromSizes([]int{3, 4, 2})
		// Rank 1 owns globals 3..6
		refs = [][]int{
			{4, -1, 0, 8},
			{0, 0, 2},
			{},
			{7, 3, -1},
		}
		res = Build(gi, 1, refs)
	)
	assert.Equal(t, 4, res.NLocal)
	assert.Equal(t, [][]int{{0, 2}, nil, {0, 1}}, [][]int{res.Remote[0], nilIfEmpty(res.Remote[1]), res.Remote[2]})
	assert.Equal(t, []int{4, 6, 6, 8}, res.RemoteStart)
	assert.Equal(t, 8, res.ConstructSize)
	assert.Equal(t, 4, res.NRemote())
	// Own references resolve locally, duplicates share a slot, -1 survives
	assert.Equal(t, [][]int{
		{1, -1, 4, 7},
		{4, 4, 5},
		{},
		{6, 0, -1},
	}, res.Compact)
	assert.Empty(t, res.Transforms)
	assert.Equal(t, []int{8}, res.TransformStart)
}

func nilIfEmpty(s []int) []int {
	if len(s) == 0 {
		return nil
	}
	return s
}

func TestBuildTransformed(t *testing.T) {
	const (
		identity = 2
		plusX    = 3
		minusX   = 1
	)
	var (
		gi   = NewGlobalIndexFromSizes([]int{2, 2})
		refs = [][]Ref{
			{{Proc: 1, Index: 0, Transform: identity}, {Proc: 0, Index: 1, Transform: plusX}},
			{{Proc: 1, Index: 0, Transform: plusX}, NullRef, {Proc: 0, Index: 1, Transform: plusX}},
			{{Proc: 1, Index: 1, Transform: minusX}, {Proc: 0, Index: 0, Transform: identity}},
			{{Proc: 1, Index: 0, Transform: minusX}},
		}
		res = BuildTransformed(gi, 0, refs, identity)
	)
	// Plain remote slots first, then one segment per transform id ascending
	assert.Equal(t, []int{0}, res.Remote[1])
	assert.Equal(t, []int{2, 2, 3}, res.RemoteStart)
	require.Len(t, res.Transforms, 2)
	assert.Equal(t, minusX, res.Transforms[0].ID)
	assert.Equal(t, [][]int{{}, {0, 1}}, res.Transforms[0].Elements)
	assert.Equal(t, [][]int{{}, {3, 4}}, res.Transforms[0].Slots)
	assert.Equal(t, plusX, res.Transforms[1].ID)
	// A transformed own element needs a slot of its own
	assert.Equal(t, [][]int{{1}, {0}}, res.Transforms[1].Elements)
	assert.Equal(t, [][]int{{5}, {6}}, res.Transforms[1].Slots)
	assert.Equal(t, []int{3, 5, 7}, res.TransformStart)
	assert.Equal(t, 7, res.ConstructSize)
	assert.Equal(t, [][]int{
		{2, 5},
		{6, -1, 5},
		{4, 0},
		{3},
	}, res.Compact)

	assert.Panics(t, func() {
		BuildTransformed(gi, 0, [][]Ref{{{Proc: 2, Index: 0, Transform: identity}}}, identity)
	})
}
