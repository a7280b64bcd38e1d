package distribute

import (
	"fmt"

	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/transform"
)

// All exchanges of this package share one tag; collective calls are made in
// the same order on every rank and messages between two ranks arrive in
// order, so consecutive exchanges cannot mix.
const tag = 1

// exchange sends pick(P) to every rank P with a non empty send list and
// hands what arrives from P to place. The own rank is served by a direct
// copy.
func exchange[T any](c parallel.Comm, m *Map, sendLists, recvLists [][]int,
	pick func(list []int) []T, place func(list []int, vals []T)) error {
	var (
		me = c.Rank()
	)
	place(recvLists[me], pick(sendLists[me]))

	sendTo := func(p int) error {
		if len(sendLists[p]) == 0 {
			return nil
		}
		return c.Send(p, tag, pick(sendLists[p]))
	}
	recvFrom := func(p int) error {
		if len(recvLists[p]) == 0 {
			return nil
		}
		vals, err := parallel.ReceiveSlice[T](c, p, tag)
		if err != nil {
			return err
		}
		if len(vals) != len(recvLists[p]) {
			return &TopologyError{Proc: me, Neighbour: p, What: "received values",
				Expected: len(recvLists[p]), Actual: len(vals)}
		}
		place(recvLists[p], vals)
		return nil
	}

	if m.Mode == Scheduled && m.schedule != nil {
		for _, p := range m.schedule.Partners(me) {
			if p < 0 {
				continue
			}
			first, second := sendTo, recvFrom
			if me > p {
				first, second = recvFrom, sendTo
			}
			if err := first(p); err != nil {
				return err
			}
			if err := second(p); err != nil {
				return err
			}
		}
		return nil
	}
	for p := 0; p < c.Size(); p++ {
		if p == me {
			continue
		}
		if err := sendTo(p); err != nil {
			return err
		}
	}
	for p := 0; p < c.Size(); p++ {
		if p == me {
			continue
		}
		if err := recvFrom(p); err != nil {
			return err
		}
	}
	return nil
}

// picker gathers data at the (possibly packed) indices of a list into a
// fresh slice, negating flipped entries when negate is set.
func picker[T any](data []T, hasFlip bool, negate func(T) T) func(list []int) []T {
	return func(list []int) []T {
		vals := make([]T, len(list))
		for k, packed := range list {
			idx, flip := packed, false
			if hasFlip {
				idx, flip = UnpackIndex(packed)
			}
			if idx >= len(data) {
				panic(fmt.Sprintf("map index %d outside data of length %d", idx, len(data)))
			}
			vals[k] = data[idx]
			if flip && negate != nil {
				vals[k] = negate(vals[k])
			}
		}
		return vals
	}
}

// placer writes values to the indices of a list, folding them into what is
// there when cop is set.
func placer[T any](out []T, hasFlip bool, negate func(T) T, cop func(a, b T) T) func(list []int, vals []T) {
	return func(list []int, vals []T) {
		for k, packed := range list {
			idx, flip := packed, false
			if hasFlip {
				idx, flip = UnpackIndex(packed)
			}
			v := vals[k]
			if flip && negate != nil {
				v = negate(v)
			}
			if cop != nil {
				out[idx] = cop(out[idx], v)
			} else {
				out[idx] = v
			}
		}
	}
}

// Distribute sends data[SubMap[P]] to every P and returns the received
// values at ConstructMap positions in an array of ConstructSize.
func Distribute[T any](c parallel.Comm, m *Map, data []T) ([]T, error) {
	return DistributeFlip(c, m, data, nil)
}

// DistributeFlip is Distribute negating every entry whose packed index is
// flipped, on either side of the map.
func DistributeFlip[T any](c parallel.Comm, m *Map, data []T, negate func(T) T) ([]T, error) {
	out := make([]T, m.ConstructSize)
	err := exchange(c, m, m.SubMap, m.ConstructMap,
		picker(data, m.SubHasFlip, negate),
		placer(out, m.ConstructHasFlip, negate, nil))
	if err != nil {
		return nil, fmt.Errorf("distribute: %w", err)
	}
	return out, nil
}

// ReverseDistribute sends the values at ConstructMap positions back to the
// ranks they came from, producing an array of constructSize (the original
// length). Slots nobody sends to hold nullValue; several contributors to one
// slot are not summed, the last one received wins.
func ReverseDistribute[T any](c parallel.Comm, m *Map, constructSize int, nullValue T, data []T) ([]T, error) {
	return reverse(c, m, constructSize, nullValue, data, nil, nil)
}

// ReverseDistributeFlip is ReverseDistribute undoing the negation of
// DistributeFlip, so flipped entries come back with their original sign.
func ReverseDistributeFlip[T any](c parallel.Comm, m *Map, constructSize int, nullValue T, data []T,
	negate func(T) T) ([]T, error) {
	return reverse(c, m, constructSize, nullValue, data, negate, nil)
}

// ReverseDistributeCombine is ReverseDistribute folding every contribution
// into the slot with cop, starting from nullValue.
func ReverseDistributeCombine[T any](c parallel.Comm, m *Map, constructSize int, nullValue T, data []T,
	cop func(a, b T) T) ([]T, error) {
	return reverse(c, m, constructSize, nullValue, data, nil, cop)
}

// reverse runs the exchange backwards. A flip on either side is undone with
// negate, a flipped entry crosses one flip only so one negation restores it.
func reverse[T any](c parallel.Comm, m *Map, constructSize int, nullValue T, data []T,
	negate func(T) T, cop func(a, b T) T) ([]T, error) {
	out := make([]T, constructSize)
	for i := range out {
		out[i] = nullValue
	}
	err := exchange(c, m, m.ConstructMap, m.SubMap,
		picker(data, m.ConstructHasFlip, negate),
		placer(out, m.SubHasFlip, negate, cop))
	if err != nil {
		return nil, fmt.Errorf("reverse distribute: %w", err)
	}
	return out, nil
}

// applyTransforms runs top over every transform segment of data in place.
func applyTransforms[T any](m *Map, set *transform.Set, data []T, top transform.Op[T], forward bool) {
	for t, id := range m.TransformIDs {
		elems := m.TransformElements[t]
		if len(elems) == 0 {
			continue
		}
		vals := make([]T, len(elems))
		for k, idx := range elems {
			vals[k] = data[idx]
		}
		top(set.Transform(id), forward, vals)
		for k, idx := range elems {
			data[idx] = vals[k]
		}
	}
}

// DistributeTransformed is Distribute followed by top applied to every
// transform segment, so periodic copies arrive in the receiving frame.
func DistributeTransformed[T any](c parallel.Comm, m *Map, set *transform.Set, data []T,
	top transform.Op[T]) ([]T, error) {
	out, err := Distribute(c, m, data)
	if err != nil {
		return nil, err
	}
	applyTransforms(m, set, out, top, true)
	return out, nil
}

// ReverseDistributeTransformed undoes the segment transforms on a copy of
// data before sending it back.
func ReverseDistributeTransformed[T any](c parallel.Comm, m *Map, set *transform.Set, constructSize int,
	nullValue T, data []T, top transform.Op[T]) ([]T, error) {
	return ReverseDistributeCombineTransformed(c, m, set, constructSize, nullValue, data, top, nil)
}

func ReverseDistributeCombineTransformed[T any](c parallel.Comm, m *Map, set *transform.Set, constructSize int,
	nullValue T, data []T, top transform.Op[T], cop func(a, b T) T) ([]T, error) {
	local := make([]T, len(data))
	copy(local, data)
	applyTransforms(m, set, local, top, false)
	return reverse(c, m, constructSize, nullValue, local, nil, cop)
}
