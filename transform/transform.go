// Package transform holds the rigid-body transforms carried by cyclic
// (periodic) couplings and the operators that apply them to field values.
package transform

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Kind classifies a transform so callers can skip work for the common cases.
type Kind uint8

const (
	Identity Kind = iota
	Translation
	Rotation
	General // rotation plus translation
)

func (k Kind) String() string {
	return [...]string{"identity", "translation", "rotation", "general"}[k]
}

// Transform maps x to R·x + T. Positions take the full map, directional
// quantities (vectors, tensors) only the rotation R.
type Transform struct {
	kind Kind
	r    *mat.Dense // nil means the identity rotation
	t    r3.Vec
}

func NewIdentity() Transform { return Transform{kind: Identity} }

func NewTranslation(sep r3.Vec) Transform {
	if sep == (r3.Vec{}) {
		return NewIdentity()
	}
	return Transform{kind: Translation, t: sep}
}

// NewRotation rotates by angle (radians) about axis through centre.
func NewRotation(axis r3.Vec, angle float64, centre r3.Vec) Transform {
	n := r3.Norm(axis)
	if n == 0 {
		panic("rotation axis has zero length")
	}
	k := r3.Scale(1/n, axis)
	var (
		c, s = math.Cos(angle), math.Sin(angle)
		v    = 1 - c
	)
	r := mat.NewDense(3, 3, []float64{
		c + k.X*k.X*v, k.X*k.Y*v - k.Z*s, k.X*k.Z*v + k.Y*s,
		k.Y*k.X*v + k.Z*s, c + k.Y*k.Y*v, k.Y*k.Z*v - k.X*s,
		k.Z*k.X*v - k.Y*s, k.Z*k.Y*v + k.X*s, c + k.Z*k.Z*v,
	})
	return newRotationAbout(r, centre)
}

// NewRotationBetween returns the rotation about centre taking the direction
// of from onto the direction of to.
func NewRotationBetween(from, to, centre r3.Vec) Transform {
	var (
		a     = r3.Unit(from)
		b     = r3.Unit(to)
		axis  = r3.Cross(a, b)
		sinA  = r3.Norm(axis)
		cosA  = r3.Dot(a, b)
		angle = math.Atan2(sinA, cosA)
	)
	if sinA < 1e-12 {
		if cosA > 0 {
			return NewIdentity()
		}
		// Anti-parallel, any axis normal to a will do.
		axis = r3.Cross(a, r3.Vec{X: 1})
		if r3.Norm(axis) < 1e-6 {
			axis = r3.Cross(a, r3.Vec{Y: 1})
		}
	}
	return NewRotation(axis, angle, centre)
}

// NewGeneral builds x -> R·x + T from a row-major rotation tensor.
func NewGeneral(rot [9]float64, sep r3.Vec) Transform {
	r := mat.NewDense(3, 3, rot[:])
	if isIdentity(r) {
		return NewTranslation(sep)
	}
	if sep == (r3.Vec{}) {
		return Transform{kind: Rotation, r: r}
	}
	return Transform{kind: General, r: r, t: sep}
}

func newRotationAbout(r *mat.Dense, centre r3.Vec) Transform {
	if isIdentity(r) {
		return NewIdentity()
	}
	// x' = R(x-c)+c = Rx + (c - Rc)
	t := r3.Sub(centre, mulVec(r, centre))
	if r3.Norm(t) < 1e-14*(1+r3.Norm(centre)) {
		return Transform{kind: Rotation, r: r}
	}
	return Transform{kind: General, r: r, t: t}
}

func (tr Transform) Kind() Kind { return tr.kind }

// HasRotation reports whether directional quantities change under tr.
func (tr Transform) HasRotation() bool { return tr.r != nil }

func (tr Transform) Translation() r3.Vec { return tr.t }

// Rotation returns the row-major rotation tensor.
func (tr Transform) Rotation() (rot [9]float64) {
	if tr.r == nil {
		rot[0], rot[4], rot[8] = 1, 1, 1
		return
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot[3*i+j] = tr.r.At(i, j)
		}
	}
	return
}

func (tr Transform) TransformPosition(p r3.Vec) r3.Vec {
	if tr.r != nil {
		p = mulVec(tr.r, p)
	}
	return r3.Add(p, tr.t)
}

func (tr Transform) InvTransformPosition(p r3.Vec) r3.Vec {
	p = r3.Sub(p, tr.t)
	if tr.r != nil {
		p = mulVecTrans(tr.r, p)
	}
	return p
}

func (tr Transform) TransformVector(v r3.Vec) r3.Vec {
	if tr.r == nil {
		return v
	}
	return mulVec(tr.r, v)
}

func (tr Transform) InvTransformVector(v r3.Vec) r3.Vec {
	if tr.r == nil {
		return v
	}
	return mulVecTrans(tr.r, v)
}

// TransformTensor returns R·A·Rᵀ.
func (tr Transform) TransformTensor(a Tensor) Tensor {
	if tr.r == nil {
		return a
	}
	var tmp, res mat.Dense
	tmp.Mul(tr.r, a.dense())
	res.Mul(&tmp, tr.r.T())
	return tensorFrom(&res)
}

// InvTransformTensor returns Rᵀ·A·R.
func (tr Transform) InvTransformTensor(a Tensor) Tensor {
	if tr.r == nil {
		return a
	}
	var tmp, res mat.Dense
	tmp.Mul(tr.r.T(), a.dense())
	res.Mul(&tmp, tr.r)
	return tensorFrom(&res)
}

// Inverse returns the transform undoing tr.
func (tr Transform) Inverse() Transform {
	switch tr.kind {
	case Identity:
		return tr
	case Translation:
		return Transform{kind: Translation, t: r3.Scale(-1, tr.t)}
	}
	rt := mat.DenseCopyOf(tr.r.T())
	inv := Transform{kind: tr.kind, r: rt}
	if tr.kind == General {
		inv.t = r3.Scale(-1, mulVec(rt, tr.t))
	}
	return inv
}

// Compose returns the transform applying b first, then tr.
func (tr Transform) Compose(b Transform) Transform {
	switch {
	case b.kind == Identity:
		return tr
	case tr.kind == Identity:
		return b
	}
	var (
		t = r3.Add(tr.TransformVector(b.t), tr.t)
		r *mat.Dense
	)
	switch {
	case tr.r == nil:
		r = b.r
	case b.r == nil:
		r = tr.r
	default:
		r = new(mat.Dense)
		r.Mul(tr.r, b.r)
	}
	if r == nil {
		return NewTranslation(t)
	}
	if isIdentity(r) {
		return NewTranslation(t)
	}
	if r3.Norm(t) == 0 {
		return Transform{kind: Rotation, r: r}
	}
	return Transform{kind: General, r: r, t: t}
}

// Equal compares rotation and translation entries within tol.
func (tr Transform) Equal(b Transform, tol float64) bool {
	ra, rb := tr.Rotation(), b.Rotation()
	for i := range ra {
		if math.Abs(ra[i]-rb[i]) > tol {
			return false
		}
	}
	return r3.Norm(r3.Sub(tr.t, b.t)) <= tol
}

func (tr Transform) String() string {
	switch tr.kind {
	case Identity:
		return "identity"
	case Translation:
		return fmt.Sprintf("translation %v", tr.t)
	}
	return fmt.Sprintf("%s R=%v T=%v", tr.kind, tr.Rotation(), tr.t)
}

func mulVec(r *mat.Dense, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(r, mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func mulVecTrans(r *mat.Dense, v r3.Vec) r3.Vec {
	var out mat.VecDense
	out.MulVec(r.T(), mat.NewVecDense(3, []float64{v.X, v.Y, v.Z}))
	return r3.Vec{X: out.AtVec(0), Y: out.AtVec(1), Z: out.AtVec(2)}
}

func isIdentity(r *mat.Dense) bool {
	return mat.EqualApprox(r, eye, 1e-15)
}

var eye = mat.NewDiagDense(3, []float64{1, 1, 1})
