package transform

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/spatial/r3"
)

func vecNear(t *testing.T, want, got r3.Vec) {
	t.Helper()
	assert.InDelta(t, 0, r3.Norm(r3.Sub(want, got)), 1e-12, "want %v got %v", want, got)
}

func TestTranslation(t *testing.T) {
	tr := NewTranslation(r3.Vec{X: 2})
	assert.Equal(t, Translation, tr.Kind())
	assert.False(t, tr.HasRotation())
	vecNear(t, r3.Vec{X: 3, Y: 1}, tr.TransformPosition(r3.Vec{X: 1, Y: 1}))
	// Directions are unaffected by a pure translation
	vecNear(t, r3.Vec{Y: 1}, tr.TransformVector(r3.Vec{Y: 1}))
	vecNear(t, r3.Vec{X: 1, Y: 1}, tr.InvTransformPosition(r3.Vec{X: 3, Y: 1}))
	assert.Equal(t, Identity, NewTranslation(r3.Vec{}).Kind())
}

func TestRotation(t *testing.T) {
	{ // Quarter turn about z through the origin
		tr := NewRotation(r3.Vec{Z: 1}, math.Pi/2, r3.Vec{})
		assert.Equal(t, Rotation, tr.Kind())
		vecNear(t, r3.Vec{Y: 1}, tr.TransformPosition(r3.Vec{X: 1}))
		vecNear(t, r3.Vec{Y: 1}, tr.TransformVector(r3.Vec{X: 1}))
		vecNear(t, r3.Vec{X: 1}, tr.InvTransformVector(r3.Vec{Y: 1}))
	}
	{ // About an off-origin centre the position map picks up a translation
		tr := NewRotation(r3.Vec{Z: 1}, math.Pi, r3.Vec{X: 1})
		assert.Equal(t, General, tr.Kind())
		vecNear(t, r3.Vec{X: 2}, tr.TransformPosition(r3.Vec{}))
		vecNear(t, r3.Vec{X: -1}, tr.TransformVector(r3.Vec{X: 1}))
		vecNear(t, r3.Vec{}, tr.InvTransformPosition(r3.Vec{X: 2}))
	}
	{ // Rotation between two normals
		tr := NewRotationBetween(r3.Vec{X: 1}, r3.Vec{Y: 1}, r3.Vec{})
		vecNear(t, r3.Vec{Y: 3}, tr.TransformVector(r3.Vec{X: 3}))
		flip := NewRotationBetween(r3.Vec{X: 1}, r3.Vec{X: -1}, r3.Vec{})
		vecNear(t, r3.Vec{X: -1}, flip.TransformVector(r3.Vec{X: 1}))
	}
}

func TestInverseAndCompose(t *testing.T) {
	trs := []Transform{
		NewIdentity(),
		NewTranslation(r3.Vec{X: 1, Y: -2, Z: 0.5}),
		NewRotation(r3.Vec{X: 1, Y: 1, Z: 1}, 0.3, r3.Vec{}),
		NewRotation(r3.Vec{Z: 1}, 1.1, r3.Vec{X: 4, Y: -1}),
	}
	p := r3.Vec{X: 0.3, Y: 0.7, Z: -1.2}
	for _, a := range trs {
		vecNear(t, p, a.Inverse().TransformPosition(a.TransformPosition(p)))
		vecNear(t, p, a.InvTransformPosition(a.TransformPosition(p)))
		for _, b := range trs {
			ab := a.Compose(b)
			vecNear(t, a.TransformPosition(b.TransformPosition(p)), ab.TransformPosition(p))
		}
		assert.True(t, a.Compose(a.Inverse()).Equal(NewIdentity(), 1e-12))
	}
}

func TestTensor(t *testing.T) {
	tr := NewRotation(r3.Vec{Z: 1}, math.Pi/2, r3.Vec{})
	// xx component rotates into yy
	a := Tensor{1, 0, 0, 0, 0, 0, 0, 0, 0}
	b := tr.TransformTensor(a)
	assert.InDelta(t, 1, b[4], 1e-12)
	assert.InDelta(t, 0, b[0], 1e-12)
	c := tr.InvTransformTensor(b)
	for i := range a {
		assert.InDelta(t, a[i], c[i], 1e-12)
	}
}

func TestSet(t *testing.T) {
	var (
		gx = NewTranslation(r3.Vec{X: 10})
		gy = NewTranslation(r3.Vec{Y: 4})
		s  = NewSet(gx, gy)
	)
	assert.Equal(t, 2, s.NGenerators())
	assert.Equal(t, 25, s.Len())
	id := s.Identity()
	assert.True(t, s.IsIdentity(id))
	assert.Equal(t, Identity, s.Transform(id).Kind())

	px := s.Generator(0, 1)
	my := s.Generator(1, -1)
	assert.Equal(t, []int{1, 0}, s.Decode(px))
	assert.Equal(t, []int{0, -1}, s.Decode(my))
	both := s.Add(px, my)
	assert.Equal(t, []int{1, -1}, s.Decode(both))
	vecNear(t, r3.Vec{X: 10, Y: -4}, s.Transform(both).TransformPosition(r3.Vec{}))
	assert.Equal(t, s.Generator(0, -1), s.Inverse(px))
	assert.Equal(t, id, s.Sub(px, px))
	assert.False(t, s.IsRotational(both))

	assert.Panics(t, func() { s.Transform(-1) })
	assert.Panics(t, func() { s.Encode([]int{3, 0}) })
}

func TestOps(t *testing.T) {
	tr := NewRotation(r3.Vec{Z: 1}, math.Pi/2, r3.Vec{X: 1})
	pos := []r3.Vec{{X: 2}}
	PositionOp(tr, true, pos)
	vecNear(t, r3.Vec{X: 1, Y: 1}, pos[0])
	PositionOp(tr, false, pos)
	vecNear(t, r3.Vec{X: 2}, pos[0])

	dir := []r3.Vec{{X: 2}}
	VectorOp(tr, true, dir)
	vecNear(t, r3.Vec{Y: 2}, dir[0])

	{ // Test tensors rotate as R·A·Rᵀ and come back on the inverse
		xx := Tensor{1, 0, 0, 0, 0, 0, 0, 0, 0}
		xy := Tensor{0, 1, 0, 0, 0, 0, 0, 0, 0}
		fld := []Tensor{xx, xy}
		TensorOp(tr, true, fld)
		// x goes to y and y to -x, the offset plays no part
		assert.InDelta(t, 1, fld[0][4], 1e-12)
		assert.InDelta(t, -1, fld[1][3], 1e-12)
		assert.InDelta(t, 0, fld[1][1], 1e-12)
		TensorOp(tr, false, fld)
		for i := range xx {
			assert.InDelta(t, xx[i], fld[0][i], 1e-12)
			assert.InDelta(t, xy[i], fld[1][i], 1e-12)
		}
		shifted := []Tensor{xy}
		TensorOp(NewTranslation(r3.Vec{X: 3}), true, shifted)
		assert.Equal(t, xy, shifted[0])
	}

	scalars := []float64{1, 2}
	NoOp(tr, true, scalars)
	assert.Equal(t, []float64{1, 2}, scalars)

	_, ok := VectorOps()["position"]
	assert.True(t, ok)
}
