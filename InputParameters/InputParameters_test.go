package InputParameters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/meshcomm/distribute"
)

func TestParse(t *testing.T) {
	fileInput := []byte(`
Title: Sector
NX: 4
NY: 6
L: [1, 0, 0.2]
Cyclic: [false, true, false]
SectorAngle: 90
InnerRadius: 1
NProcs: 3
Method: metis
WallPatches: [xmin, xmax]
Wavefront:
  propagationTol: 0.001
  maxIter: 50
CommMode: scheduled
`)
	ip := NewWallDistParameters()
	require.NoError(t, ip.Parse(fileInput))
	ip.Print()
	assert.Equal(t, "Sector", ip.Title)
	assert.Equal(t, 1, ip.NZ) // default kept
	assert.Equal(t, 3, ip.NProcs)
	assert.Equal(t, []string{"xmin", "xmax"}, ip.WallPatches)
	assert.Equal(t, 0.001, ip.Wavefront.PropagationTol)
	assert.Equal(t, 0.05, ip.Wavefront.RotationalTol)
	assert.Equal(t, 50, ip.Wavefront.MaxIter)

	bs, err := ip.BlockSpec()
	require.NoError(t, err)
	assert.Equal(t, [3]bool{false, true, false}, bs.Cyclic)
	assert.Equal(t, "y", ip.cyclicAxes())
	assert.InDelta(t, math.Pi/2, bs.SectorAngle, 1e-15)
	mode, err := ip.Mode()
	require.NoError(t, err)
	assert.Equal(t, distribute.Scheduled, mode)
	assert.Equal(t, float32(1.05), ip.DecomposeOptions().ImbalanceFactor)

	{ // Test bad input is rejected
		for _, bad := range []string{
			"Cyclic: [x]",
			"CommMode: eventually",
			"NProcs: 0",
			"WallPatches: []",
			"NX: [1",
		} {
			assert.Error(t, NewWallDistParameters().Parse([]byte(bad)), bad)
		}
	}
}

func TestCyclicFlags(t *testing.T) {
	// YAML 1.1 reads a bare y as true, flags keep every axis unambiguous
	for _, tc := range []struct {
		in   string
		want [3]bool
	}{
		{"Cyclic: [false, true, false]", [3]bool{false, true, false}},
		{"Cyclic: [true, false, true]", [3]bool{true, false, true}},
		{"NX: 4", [3]bool{}},
	} {
		ip := NewWallDistParameters()
		require.NoError(t, ip.Parse([]byte(tc.in)), tc.in)
		bs, err := ip.BlockSpec()
		require.NoError(t, err)
		assert.Equal(t, tc.want, bs.Cyclic, tc.in)
	}
}
