package synctools

import (
	"cmp"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// CombineOp folds two copies of one coupled entity into the value every
// copy ends up with. Synchronisation assumes it is commutative and
// associative.
type CombineOp[T any] func(a, b T) T

type Number interface {
	~int | ~int32 | ~int64 | ~float32 | ~float64
}

func Sum[T Number]() CombineOp[T] {
	return func(a, b T) T { return a + b }
}

func Max[T cmp.Ordered]() CombineOp[T] {
	return func(a, b T) T { return max(a, b) }
}

func Min[T cmp.Ordered]() CombineOp[T] {
	return func(a, b T) T { return min(a, b) }
}

func Or() CombineOp[bool] {
	return func(a, b bool) bool { return a || b }
}

func And() CombineOp[bool] {
	return func(a, b bool) bool { return a && b }
}

// EqualOp keeps the first value and panics when the copies differ by more
// than tol. It checks that data which should already agree does.
func EqualOp[T Number](tol float64) CombineOp[T] {
	return func(a, b T) T {
		if math.Abs(float64(a)-float64(b)) > tol {
			panic(fmt.Sprintf("coupled values differ: %v and %v, tolerance %g", a, b, tol))
		}
		return a
	}
}

// MinMagSqr keeps the vector of smaller magnitude, ties go to the smaller
// components so all copies of a point pick the same one.
func MinMagSqr() CombineOp[r3.Vec] {
	return func(a, b r3.Vec) r3.Vec {
		ma, mb := r3.Dot(a, a), r3.Dot(b, b)
		switch {
		case ma < mb:
			return a
		case mb < ma:
			return b
		}
		if cmp.Or(cmp.Compare(a.X, b.X), cmp.Compare(a.Y, b.Y), cmp.Compare(a.Z, b.Z)) <= 0 {
			return a
		}
		return b
	}
}

// entry marks which slots of a gathered array hold a contribution.
type entry[T any] struct {
	Set bool
	V   T
}

func (cop CombineOp[T]) fold(a, b entry[T]) entry[T] {
	switch {
	case !a.Set:
		return b
	case !b.Set:
		return a
	}
	return entry[T]{Set: true, V: cop(a.V, b.V)}
}
