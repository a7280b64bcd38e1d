package parallel

import (
	"cmp"
	"fmt"
)

// ReduceOp selects the fold used by the numeric all-reduce helpers.
type ReduceOp uint8

const (
	OpSum ReduceOp = iota
	OpMax
	OpMin
)

func (op ReduceOp) String() string {
	return [...]string{"sum", "max", "min"}[op]
}

// SendSlice sends a private copy of s, the caller may reuse s immediately.
func SendSlice[T any](c Comm, dest, tag int, s []T) error {
	buf := make([]T, len(s))
	copy(buf, s)
	return c.Send(dest, tag, buf)
}

// ReceiveSlice receives a slice sent with SendSlice.
func ReceiveSlice[T any](c Comm, src, tag int) ([]T, error) {
	msg, err := c.Receive(src, tag)
	if err != nil {
		return nil, err
	}
	s, ok := msg.([]T)
	if !ok {
		return nil, fmt.Errorf("rank %d: message from %d tag %d has type %T, want %T",
			c.Rank(), src, tag, msg, s)
	}
	return s, nil
}

// Receive a single value of type T.
func ReceiveValue[T any](c Comm, src, tag int) (v T, err error) {
	var msg any
	if msg, err = c.Receive(src, tag); err != nil {
		return
	}
	// A nil interface value, such as a nil error, arrives untyped
	if msg == nil {
		return
	}
	var ok bool
	if v, ok = msg.(T); !ok {
		err = fmt.Errorf("rank %d: message from %d tag %d has type %T, want %T",
			c.Rank(), src, tag, msg, v)
	}
	return
}

// AllGather returns the value of every rank, indexed by rank.
func AllGather[T any](c Comm, v T) ([]T, error) {
	var (
		size = c.Size()
		all  []T
		err  error
	)
	if c.Rank() == 0 {
		all = make([]T, size)
		all[0] = v
		for src := 1; src < size; src++ {
			if all[src], err = ReceiveValue[T](c, src, tagGather); err != nil {
				return nil, err
			}
		}
	} else if err = c.Send(0, tagGather, v); err != nil {
		return nil, err
	}
	return Broadcast(c, 0, all)
}

// AllGatherSlices gathers a variable length slice from every rank.
func AllGatherSlices[T any](c Comm, s []T) ([][]T, error) {
	buf := make([]T, len(s))
	copy(buf, s)
	return AllGather(c, buf)
}

// Broadcast returns root's value on every rank. Slices are copied per rank.
func Broadcast[T any](c Comm, root int, v T) (T, error) {
	if c.Rank() == root {
		for dest := 0; dest < c.Size(); dest++ {
			if dest == root {
				continue
			}
			if err := c.Send(dest, tagBroadcast, deepCopy(v)); err != nil {
				return v, err
			}
		}
		return v, nil
	}
	return ReceiveValue[T](c, root, tagBroadcast)
}

// AllReduce folds v across ranks in rank order, so a non-commutative fold
// still gives the same answer everywhere.
func AllReduce[T any](c Comm, v T, fold func(a, b T) T) (T, error) {
	all, err := AllGather(c, v)
	if err != nil {
		return v, err
	}
	res := all[0]
	for _, w := range all[1:] {
		res = fold(res, w)
	}
	return res, nil
}

func AllReduceOp[T cmp.Ordered](c Comm, v T, op ReduceOp) (T, error) {
	switch op {
	case OpMax:
		return AllReduce(c, v, func(a, b T) T { return max(a, b) })
	case OpMin:
		return AllReduce(c, v, func(a, b T) T { return min(a, b) })
	default:
		return AllReduce(c, v, func(a, b T) T { return a + b })
	}
}

func AllReduceSum(c Comm, n int) (int, error) {
	return AllReduceOp(c, n, OpSum)
}

func AllReduceOr(c Comm, b bool) (bool, error) {
	return AllReduce(c, b, func(x, y bool) bool { return x || y })
}

func AllReduceAnd(c Comm, b bool) (bool, error) {
	return AllReduce(c, b, func(x, y bool) bool { return x && y })
}

// Barrier returns once every rank has entered it.
func Barrier(c Comm) error {
	_, err := AllReduceSum(c, 0)
	return err
}

// AllToAll sends send[p] to rank p and returns what every rank sent here.
func AllToAll[T any](c Comm, send []T) ([]T, error) {
	if len(send) != c.Size() {
		return nil, fmt.Errorf("rank %d: all-to-all needs %d entries, have %d",
			c.Rank(), c.Size(), len(send))
	}
	for dest, v := range send {
		if err := c.Send(dest, tagAllToAll, deepCopy(v)); err != nil {
			return nil, err
		}
	}
	recv := make([]T, c.Size())
	var err error
	for src := range recv {
		if recv[src], err = ReceiveValue[T](c, src, tagAllToAll); err != nil {
			return nil, err
		}
	}
	return recv, nil
}

// deepCopy copies the common slice payloads so no two ranks alias storage.
func deepCopy[T any](v T) T {
	switch s := any(v).(type) {
	case []int:
		return any(append([]int(nil), s...)).(T)
	case []float64:
		return any(append([]float64(nil), s...)).(T)
	case [][]int:
		out := make([][]int, len(s))
		for i := range s {
			out[i] = append([]int(nil), s[i]...)
		}
		return any(out).(T)
	}
	return v
}
