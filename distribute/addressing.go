package distribute

import (
	"fmt"

	"github.com/notargets/meshcomm/addressing"
	"github.com/notargets/meshcomm/parallel"
)

// NewMapFromAddressing turns compact addressing into a map. It is
// collective: every rank tells each owner which of its elements it wants,
// plain ones first, then per transform group. The own rank's part of the
// map starts with the owned elements in place, so Distribute returns the
// owned values at [0,NLocal) followed by the remote and transformed slots.
func NewMapFromAddressing(c parallel.Comm, res *addressing.Result, opts ...Option) (*Map, error) {
	var (
		nProcs       = c.Size()
		me           = c.Rank()
		wants        = make([][]int, nProcs)
		constructMap = make([][]int, nProcs)
	)
	if len(res.Remote) != nProcs {
		return nil, fmt.Errorf("addressing built for %d ranks, communicator has %d",
			len(res.Remote), nProcs)
	}
	for p := 0; p < nProcs; p++ {
		for k, idx := range res.Remote[p] {
			wants[p] = append(wants[p], idx)
			constructMap[p] = append(constructMap[p], res.RemoteStart[p]+k)
		}
		for _, group := range res.Transforms {
			wants[p] = append(wants[p], group.Elements[p]...)
			constructMap[p] = append(constructMap[p], group.Slots[p]...)
		}
	}
	subMap, err := parallel.AllToAll(c, wants)
	if err != nil {
		return nil, fmt.Errorf("exchanging wanted elements: %w", err)
	}
	identity := make([]int, res.NLocal)
	for i := range identity {
		identity[i] = i
	}
	subMap[me] = append(append([]int{}, identity...), subMap[me]...)
	constructMap[me] = append(append([]int{}, identity...), constructMap[me]...)

	var (
		ids      = make([]int, len(res.Transforms))
		elements = make([][]int, len(res.Transforms))
	)
	for t, group := range res.Transforms {
		ids[t] = group.ID
		for slot := res.TransformStart[t]; slot < res.TransformStart[t+1]; slot++ {
			elements[t] = append(elements[t], slot)
		}
	}
	m, err := NewMap(c, res.ConstructSize, subMap, constructMap,
		append([]Option{WithTransforms(ids, elements), WithSourceSize(res.NLocal)}, opts...)...)
	if err != nil {
		return nil, err
	}
	m.TransformStart = res.TransformStart
	return m, nil
}
