package distribute

import (
	"math"
	"sync"
	"testing"

	"github.com/james-bowman/sparse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/addressing"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/transform"
)

const nOwned = 4

func ownedValues(rank int) []float64 {
	vals := make([]float64, nOwned)
	for i := range vals {
		vals[i] = float64(10*rank + i)
	}
	return vals
}

// ringMap asks every rank for the first element of the next rank and the
// last element of the previous one.
func ringMap(c parallel.Comm, opts ...Option) (*Map, *addressing.Result, error) {
	var (
		me   = c.Rank()
		n    = c.Size()
		next = (me + 1) % n
		prev = (me + n - 1) % n
	)
	gi, err := addressing.NewGlobalIndex(c, nOwned)
	if err != nil {
		return nil, nil, err
	}
	refs := [][]int{
		{gi.ToGlobal(next, 0), gi.ToGlobal(prev, nOwned-1)},
		{gi.ToGlobal(me, 1)},
	}
	res := addressing.Build(gi, me, refs)
	m, err := NewMapFromAddressing(c, res, opts...)
	return m, res, err
}

func TestDistribute(t *testing.T) {
	for _, mode := range []Mode{NonBlocking, Scheduled} {
		err := parallel.NewWorld(3).Run(func(c parallel.Comm) error {
			var (
				me   = c.Rank()
				next = (me + 1) % 3
				prev = (me + 2) % 3
			)
			m, res, err := ringMap(c, WithMode(mode))
			if err != nil {
				return err
			}
			got, err := Distribute(c, m, ownedValues(me))
			if err != nil {
				return err
			}
			assert.Len(t, got, res.ConstructSize)
			// Owned values stay in place ahead of the remote slots
			assert.Equal(t, ownedValues(me), got[:nOwned])
			assert.Equal(t, float64(10*next), got[res.Compact[0][0]])
			assert.Equal(t, float64(10*prev+nOwned-1), got[res.Compact[0][1]])
			assert.Equal(t, float64(10*me+1), got[res.Compact[1][0]])
			if mode == Scheduled {
				assert.NotNil(t, m.Schedule())
				assert.Len(t, m.Schedule().Rounds, 3)
			} else {
				assert.Nil(t, m.Schedule())
			}
			return nil
		})
		require.NoError(t, err, mode.String())
	}
	{ // Serial communicator, only the local copy
		c := parallel.NewSerial()
		m, err := NewMap(c, 2, [][]int{{3, 1}}, [][]int{{1, 0}})
		require.NoError(t, err)
		got, err := Distribute(c, m, []int{5, 6, 7, 8})
		require.NoError(t, err)
		assert.Equal(t, []int{6, 8}, got)
	}
}

func TestAdjointAndConservation(t *testing.T) {
	err := parallel.NewWorld(4).Run(func(c parallel.Comm) error {
		me := c.Rank()
		m, res, err := ringMap(c)
		if err != nil {
			return err
		}
		x := ownedValues(me)
		y := make([]float64, res.ConstructSize)
		for i := range y {
			y[i] = math.Sin(float64(me*17 + i))
		}
		dx, err := Distribute(c, m, x)
		if err != nil {
			return err
		}
		ry, err := ReverseDistributeCombine(c, m, nOwned, 0, y,
			func(a, b float64) float64 { return a + b })
		if err != nil {
			return err
		}
		var lhs, rhs float64
		for i := range dx {
			lhs += dx[i] * y[i]
		}
		for i := range x {
			rhs += x[i] * ry[i]
		}
		if lhs, err = parallel.AllReduceOp(c, lhs, parallel.OpSum); err != nil {
			return err
		}
		if rhs, err = parallel.AllReduceOp(c, rhs, parallel.OpSum); err != nil {
			return err
		}
		assert.InDelta(t, lhs, rhs, 1e-9)

		// Summing back loses nothing: every construct value lands once
		var sent, received float64
		for _, list := range m.ConstructMap {
			for _, idx := range list {
				sent += y[idx]
			}
		}
		for _, v := range ry {
			received += v
		}
		if sent, err = parallel.AllReduceOp(c, sent, parallel.OpSum); err != nil {
			return err
		}
		if received, err = parallel.AllReduceOp(c, received, parallel.OpSum); err != nil {
			return err
		}
		assert.InDelta(t, sent, received, 1e-9)
		return nil
	})
	require.NoError(t, err)
}

func TestReverseDistribute(t *testing.T) {
	err := parallel.NewWorld(2).Run(func(c parallel.Comm) error {
		me := c.Rank()
		m, _, err := ringMap(c)
		if err != nil {
			return err
		}
		got, err := Distribute(c, m, ownedValues(me))
		if err != nil {
			return err
		}
		// Sending the copies home reproduces the owned values
		back, err := ReverseDistribute(c, m, nOwned, -1, got)
		if err != nil {
			return err
		}
		assert.Equal(t, ownedValues(me), back)
		return nil
	})
	require.NoError(t, err)
}

func TestTopologyError(t *testing.T) {
	var (
		mu   sync.Mutex
		msgs = make(map[int]string)
	)
	err := parallel.NewWorld(3).Run(func(c parallel.Comm) error {
		var (
			sub       = make([][]int, 3)
			construct = make([][]int, 3)
		)
		switch c.Rank() {
		case 0:
			sub[1] = []int{0, 1}
		case 1:
			// Expects one value from rank 0, which sends two
			construct[0] = []int{0}
		}
		_, err := NewMap(c, 2, sub, construct)
		assert.Error(t, err)
		assert.True(t, IsTopologyError(err))
		mu.Lock()
		msgs[c.Rank()] = err.Error()
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	// Every rank reports the same problem
	assert.Equal(t, msgs[0], msgs[1])
	assert.Equal(t, msgs[0], msgs[2])
	assert.Contains(t, msgs[0], "rank 1 with rank 0")

	err = parallel.NewWorld(2).Run(func(c parallel.Comm) error {
		construct := [][]int{{5}, {}}
		if c.Rank() == 1 {
			construct = [][]int{{}, {}}
		}
		_, err := NewMap(c, 2, [][]int{{0}, {}}, construct)
		var te *TopologyError
		if assert.ErrorAs(t, err, &te) {
			assert.Equal(t, "construct map index", te.What)
		}
		return nil
	})
	require.NoError(t, err)

	{ // Test sub indices past the source data are caught on every rank
		err = parallel.NewWorld(2).Run(func(c parallel.Comm) error {
			var (
				sub       = [][]int{{}, {}}
				construct = [][]int{{}, {}}
			)
			if c.Rank() == 0 {
				sub[1] = []int{0, 2}
			} else {
				construct[0] = []int{0, 1}
			}
			_, err := NewMap(c, 2, sub, construct, WithSourceSize(2))
			var te *TopologyError
			if assert.ErrorAs(t, err, &te) {
				assert.Equal(t, "sub map index", te.What)
				assert.Equal(t, 0, te.Proc)
				assert.Equal(t, 2, te.Actual)
			}
			return nil
		})
		require.NoError(t, err)
	}
	assert.Panics(t, func() {
		c := parallel.NewSerial()
		MustNewMap(c, 1, [][]int{}, [][]int{})
	})
}

func TestColourSchedule(t *testing.T) {
	{ // Complete graph on four ranks needs three rounds
		g := sparse.NewDOK(4, 4)
		for p := 0; p < 4; p++ {
			for q := 0; q < 4; q++ {
				if p != q {
					g.Set(p, q, 1)
				}
			}
		}
		s := ColourSchedule(g)
		assert.Len(t, s.Rounds, 3)
		pairs := 0
		for _, round := range s.Rounds {
			seen := make(map[int]bool)
			for _, pair := range round {
				assert.False(t, seen[pair[0]] || seen[pair[1]])
				seen[pair[0]], seen[pair[1]] = true, true
				assert.Less(t, pair[0], pair[1])
				pairs++
			}
		}
		assert.Equal(t, 6, pairs)
	}
	{ // One-way traffic still pairs the ranks, idle ranks get -1
		g := sparse.NewDOK(3, 3)
		g.Set(2, 0, 5)
		s := ColourSchedule(g)
		assert.Equal(t, [][][2]int{{{0, 2}}}, s.Rounds)
		assert.Equal(t, []int{2}, s.Partners(0))
		assert.Equal(t, []int{-1}, s.Partners(1))
		assert.Equal(t, []int{0}, s.Partners(2))
	}
}

func TestFlips(t *testing.T) {
	assert.Equal(t, 1, PackIndex(0, false))
	assert.Equal(t, -3, PackIndex(2, true))
	idx, flip := UnpackIndex(PackIndex(7, true))
	assert.Equal(t, 7, idx)
	assert.True(t, flip)
	for _, mode := range []string{"", "nonblocking", "scheduled"} {
		_, err := ParseMode(mode)
		assert.NoError(t, err)
	}
	_, err := ParseMode("eager")
	assert.Error(t, err)

	err = parallel.NewWorld(2).Run(func(c parallel.Comm) error {
		var (
			m   *Map
			err error
		)
		if c.Rank() == 0 {
			m, err = NewMap(c, 0,
				[][]int{{}, {PackIndex(0, true), PackIndex(1, false)}},
				[][]int{{}, {}}, WithFlips(true, false))
		} else {
			m, err = NewMap(c, 2, [][]int{{}, {}}, [][]int{{1, 0}, {}})
		}
		if err != nil {
			return err
		}
		got, err := DistributeFlip(c, m, []float64{3, 4}, func(v float64) float64 { return -v })
		if err != nil {
			return err
		}
		if c.Rank() == 1 {
			assert.Equal(t, []float64{4, -3}, got)
		} else {
			assert.Empty(t, got)
		}
		// Going back undoes the flip
		size := 0
		if c.Rank() == 0 {
			size = 2
		}
		back, err := ReverseDistributeFlip(c, m, size, 0., got, func(v float64) float64 { return -v })
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			assert.Equal(t, []float64{3, 4}, back)
		}
		return nil
	})
	require.NoError(t, err)
}

func TestTransformed(t *testing.T) {
	set := transform.NewSet(transform.NewTranslation(r3.Vec{X: 2}))
	var (
		identity = set.Identity()
		plusX    = set.Generator(0, 1)
	)
	positions := func(rank int) []r3.Vec {
		return []r3.Vec{{X: float64(rank)}, {X: float64(rank) + 0.5, Y: 1}}
	}
	err := parallel.NewWorld(2).Run(func(c parallel.Comm) error {
		me := c.Rank()
		gi, err := addressing.NewGlobalIndex(c, 2)
		if err != nil {
			return err
		}
		var refs [][]addressing.Ref
		if me == 0 {
			refs = [][]addressing.Ref{
				{{Proc: 1, Index: 0, Transform: plusX}, {Proc: 0, Index: 1, Transform: plusX}},
				{{Proc: 1, Index: 1, Transform: identity}},
			}
		}
		res := addressing.BuildTransformed(gi, me, refs, identity)
		m, err := NewMapFromAddressing(c, res)
		if err != nil {
			return err
		}
		got, err := DistributeTransformed(c, m, set, positions(me), transform.PositionOp)
		if err != nil {
			return err
		}
		if me == 0 {
			assert.Equal(t, r3.Vec{X: 3}, got[res.Compact[0][0]])
			assert.Equal(t, r3.Vec{X: 2.5, Y: 1}, got[res.Compact[0][1]])
			assert.Equal(t, r3.Vec{X: 1.5, Y: 1}, got[res.Compact[1][0]])
			assert.Equal(t, []int{res.RemoteStart[2], res.ConstructSize}, m.TransformStart)
			assert.Equal(t, []int{3, 5}, m.TransformStart)
		}
		// Going back undoes the transform
		back, err := ReverseDistributeTransformed(c, m, set, 2, r3.Vec{}, got, transform.PositionOp)
		if err != nil {
			return err
		}
		assert.Equal(t, positions(me), back)
		return nil
	})
	require.NoError(t, err)
}

func TestReverseCombineTransformed(t *testing.T) {
	set := transform.NewSet(transform.NewTranslation(r3.Vec{X: 2}))
	var (
		identity = set.Identity()
		plusX    = set.Generator(0, 1)
		mu       sync.Mutex
		folded   = make(map[int][]r3.Vec)
	)
	err := parallel.NewWorld(2).Run(func(c parallel.Comm) error {
		me := c.Rank()
		gi, err := addressing.NewGlobalIndex(c, 1)
		if err != nil {
			return err
		}
		// Rank 0's element is seen shifted by both ranks and plain by rank 1
		var refs [][]addressing.Ref
		if me == 0 {
			refs = [][]addressing.Ref{{{Proc: 0, Index: 0, Transform: plusX}}}
		} else {
			refs = [][]addressing.Ref{{
				{Proc: 0, Index: 0, Transform: plusX},
				{Proc: 0, Index: 0, Transform: identity},
			}}
		}
		res := addressing.BuildTransformed(gi, me, refs, identity)
		m, err := NewMapFromAddressing(c, res)
		if err != nil {
			return err
		}
		data := make([]r3.Vec, res.ConstructSize)
		data[0] = r3.Vec{Z: 10} // own value folds in untransformed
		if me == 0 {
			data[res.Compact[0][0]] = r3.Vec{X: 5}
		} else {
			data[res.Compact[0][0]] = r3.Vec{X: 3, Z: 1}
			data[res.Compact[0][1]] = r3.Vec{Y: 1}
		}
		orig := append([]r3.Vec(nil), data...)
		out, err := ReverseDistributeCombineTransformed(c, m, set, 1, r3.Vec{}, data,
			transform.PositionOp, r3.Add)
		if err != nil {
			return err
		}
		// The caller's data is left alone
		assert.Equal(t, orig, data)
		mu.Lock()
		folded[me] = out
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	// Shifted copies come back by -2 in x before the sum
	assert.Equal(t, []r3.Vec{{X: 3 + 1, Y: 1, Z: 10 + 1}}, folded[0])
	assert.Equal(t, []r3.Vec{{Z: 10}}, folded[1])
}
