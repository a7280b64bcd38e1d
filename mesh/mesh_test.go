package mesh

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/types"
)

func near(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, 0, r3.Norm(r3.Sub(want, got)), tol, "want %v got %v", want, got)
}

func TestGenerateBlock(t *testing.T) {
	m, err := GenerateBlock(BlockSpec{NX: 3, NY: 2, NZ: 1, LX: 3, LY: 1, LZ: 0.5})
	require.NoError(t, err)
	{ // Test counts
		assert.Equal(t, 6, m.NCells)
		assert.Equal(t, 24, m.NPoints())
		assert.Equal(t, 7, m.NInternalFaces())
		assert.Equal(t, 22, m.NBoundaryFaces())
		assert.Len(t, m.Patches, 6)
		sizes := []int{2, 2, 3, 3, 6, 6}
		for pi, p := range m.Patches {
			assert.Equal(t, BlockPatchNames[pi], p.Name)
			assert.Equal(t, sizes[pi], p.Size)
			assert.Equal(t, types.PatchPhysical, p.Kind)
		}
		assert.Equal(t, 1, m.Transforms.Len())
	}
	{ // Test upper triangular order of internal faces
		for f := 1; f < m.NInternalFaces(); f++ {
			prev := [2]int{m.Owner[f-1], m.Neighbour[f-1]}
			cur := [2]int{m.Owner[f], m.Neighbour[f]}
			assert.True(t, prev[0] < cur[0] || (prev[0] == cur[0] && prev[1] < cur[1]))
			assert.Less(t, m.Owner[f], m.Neighbour[f])
		}
	}
	{ // Test geometry
		vols := m.CellVolumes()
		for c := 0; c < m.NCells; c++ {
			assert.InDelta(t, 0.25, vols[c], 1e-12)
		}
		near(t, r3.Vec{X: 0.5, Y: 0.25, Z: 0.25}, m.CellCentres()[0], 1e-12)
		near(t, r3.Vec{X: 2.5, Y: 0.75, Z: 0.25}, m.CellCentres()[5], 1e-12)
		// Every cell is closed and every face points out of its owner
		sum := make([]r3.Vec, m.NCells)
		for f, a := range m.FaceAreas() {
			sum[m.Owner[f]] = r3.Add(sum[m.Owner[f]], a)
			if f < m.NInternalFaces() {
				sum[m.Neighbour[f]] = r3.Sub(sum[m.Neighbour[f]], a)
				d := r3.Sub(m.CellCentres()[m.Neighbour[f]], m.CellCentres()[m.Owner[f]])
				assert.Greater(t, r3.Dot(a, d), 0.)
			} else {
				d := r3.Sub(m.FaceCentres()[f], m.CellCentres()[m.Owner[f]])
				assert.Greater(t, r3.Dot(a, d), 0.)
			}
		}
		for c := range sum {
			near(t, r3.Vec{}, sum[c], 1e-12)
		}
	}
	{ // Test patch lookup
		assert.Equal(t, -1, m.FindPatch(0))
		assert.Equal(t, 0, m.FindPatch(7))
		assert.Equal(t, 2, m.FindPatch(11))
		assert.Equal(t, 5, m.FindPatch(28))
		assert.Equal(t, -1, m.FindPatch(29))
		assert.Equal(t, 3, m.PatchByName("ymax"))
		assert.Equal(t, -1, m.PatchByName("inlet"))
		assert.Equal(t, []int{0, 4, 8, 12, 16, 20}, m.PatchPoints(0))
		assert.Empty(t, m.CoupledPoints())
	}
	{ // Test bad specs
		_, err = GenerateBlock(BlockSpec{NX: 0, NY: 1, NZ: 1, LX: 1, LY: 1, LZ: 1})
		assert.Error(t, err)
		_, err = GenerateBlock(BlockSpec{NX: 1, NY: 1, NZ: 1, LX: 1, LZ: 1,
			SectorAngle: 1, Cyclic: [3]bool{true, false, false}})
		assert.Error(t, err)
	}
}

func TestTranslationalCyclic(t *testing.T) {
	m, err := GenerateBlock(BlockSpec{NX: 4, NY: 2, NZ: 1, LX: 2, LY: 1, LZ: 1,
		Cyclic: [3]bool{true, false, false}})
	require.NoError(t, err)
	var (
		xmin = m.Patches[0]
		xmax = m.Patches[1]
		fc   = m.FaceCentres()
	)
	assert.Equal(t, types.PatchCyclic, xmin.Kind)
	assert.True(t, xmin.Owner)
	assert.False(t, xmax.Owner)
	assert.Equal(t, 1, xmin.NeighbPatch)
	assert.Equal(t, 0, xmax.NeighbPatch)
	assert.Equal(t, []int{1}, m.Transforms.Decode(xmax.TransformID))
	assert.Equal(t, []int{-1}, m.Transforms.Decode(xmin.TransformID))
	for i := 0; i < xmin.Size; i++ {
		// pos_here = T(pos_partner)
		near(t, fc[xmax.Start+i], m.Transforms.Transform(xmax.TransformID).TransformPosition(fc[xmin.Start+i]), 1e-12)
		near(t, fc[xmin.Start+i], m.Transforms.Transform(xmin.TransformID).TransformPosition(fc[xmax.Start+i]), 1e-12)
		// Partner normals are opposite
		near(t, r3.Scale(-1, m.FaceAreas()[xmin.Start+i]), m.FaceAreas()[xmax.Start+i], 1e-12)
	}
	assert.Len(t, m.CyclicPointPairs, 3*2)
	for _, pp := range m.CyclicPointPairs {
		near(t, m.Points[pp.A], m.Transforms.Transform(pp.Transform).TransformPosition(m.Points[pp.B]), 1e-12)
	}
	assert.Len(t, m.CoupledPoints(), 12)
}

func TestSectorCyclic(t *testing.T) {
	angle := math.Pi / 6
	m, err := GenerateBlock(BlockSpec{NX: 3, NY: 4, NZ: 1, LX: 1, LZ: 0.2,
		SectorAngle: angle, InnerRadius: 1, Cyclic: [3]bool{false, true, false}})
	require.NoError(t, err)
	var (
		ymin = m.Patches[2]
		ymax = m.Patches[3]
		fc   = m.FaceCentres()
	)
	assert.True(t, m.Transforms.IsRotational(ymax.TransformID))
	for i := 0; i < ymin.Size; i++ {
		near(t, fc[ymax.Start+i], m.Transforms.Transform(ymax.TransformID).TransformPosition(fc[ymin.Start+i]), 1e-12)
		// Outward normals rotate into each other with a sign change
		near(t, r3.Scale(-1, m.FaceAreas()[ymax.Start+i]),
			m.Transforms.Transform(ymax.TransformID).TransformVector(m.FaceAreas()[ymin.Start+i]), 1e-12)
	}
	for _, pp := range m.CyclicPointPairs {
		near(t, m.Points[pp.A], m.Transforms.Transform(pp.Transform).TransformPosition(m.Points[pp.B]), 1e-12)
	}
	for c, v := range m.CellVolumes() {
		assert.Greater(t, v, 0., "cell %d", c)
	}
}

func TestEdges(t *testing.T) {
	m, err := GenerateBlock(BlockSpec{NX: 2, NY: 2, NZ: 1, LX: 1, LY: 1, LZ: 1})
	require.NoError(t, err)
	assert.Len(t, m.Edges(), 33)
	for f, fe := range m.FaceEdges() {
		require.Len(t, fe, 4)
		for i, e := range fe {
			pts := m.Edges()[e].Points()
			a, b := m.Faces[f][i], m.Faces[f][(i+1)%4]
			assert.Equal(t, [2]int{min(a, b), max(a, b)}, pts)
		}
	}
	assert.Len(t, m.PatchEdges(4), 12)
}

func TestCache(t *testing.T) {
	m, err := GenerateBlock(BlockSpec{NX: 1, NY: 1, NZ: 1, LX: 1, LY: 1, LZ: 1})
	require.NoError(t, err)
	builds := 0
	build := func() (int, error) {
		builds++
		return builds, nil
	}
	v, err := Demand(m, "count", build)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, _ = Demand(m, "count", build)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, builds)

	gen := m.Generation()
	m.TopoChanged()
	assert.Equal(t, gen+1, m.Generation())
	v, _ = Demand(m, "count", build)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, m.Cache().Len())

	// Failures are reported and not cached
	_, err = Demand(m, "broken", func() (int, error) { return 0, errors.New("no") })
	assert.Error(t, err)
	v, err = Demand(m, "broken", func() (int, error) { return 7, nil })
	assert.NoError(t, err)
	assert.Equal(t, 7, v)
}
