package transform

import "gonum.org/v1/gonum/spatial/r3"

// Op applies tr (forward) or its inverse to every value of fld in place.
// Positions take the full rigid transform, directional quantities the
// rotation only, scalars nothing.
type Op[T any] func(tr Transform, forward bool, fld []T)

// NoOp leaves values untouched, for scalars, labels and flags.
func NoOp[T any](Transform, bool, []T) {}

func PositionOp(tr Transform, forward bool, fld []r3.Vec) {
	if tr.Kind() == Identity {
		return
	}
	for i, p := range fld {
		if forward {
			fld[i] = tr.TransformPosition(p)
		} else {
			fld[i] = tr.InvTransformPosition(p)
		}
	}
}

func VectorOp(tr Transform, forward bool, fld []r3.Vec) {
	if !tr.HasRotation() {
		return
	}
	for i, v := range fld {
		if forward {
			fld[i] = tr.TransformVector(v)
		} else {
			fld[i] = tr.InvTransformVector(v)
		}
	}
}

func TensorOp(tr Transform, forward bool, fld []Tensor) {
	if !tr.HasRotation() {
		return
	}
	for i, a := range fld {
		if forward {
			fld[i] = tr.TransformTensor(a)
		} else {
			fld[i] = tr.InvTransformTensor(a)
		}
	}
}

// Registry of named ops for callers that select the field kind at runtime.
type Registry[T any] map[string]Op[T]

// VectorOps returns the r3.Vec ops keyed by the physical kind of the field.
func VectorOps() Registry[r3.Vec] {
	return Registry[r3.Vec]{
		"position": PositionOp,
		"vector":   VectorOp,
		"none":     NoOp[r3.Vec],
	}
}
