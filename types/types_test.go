package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypes(t *testing.T) {
	{ // Test packed edge keys are orientation independent
		en := NewEdgeKey(1, 0)
		assert.Equal(t, EdgeKey(1<<32), en)
		assert.Equal(t, [2]int{0, 1}, en.Points())
		assert.Equal(t, en, NewEdgeKey(0, 1))

		en = NewEdgeKey(100, 1)
		assert.Equal(t, EdgeKey(100*(1<<32)+1), en)
		assert.Equal(t, [2]int{1, 100}, en.Points())

		// Test maximum indices
		en = NewEdgeKey(1<<32-1, 1<<32-1)
		assert.Equal(t, EdgeKey(1<<64-1), en)
		assert.Equal(t, [2]int{1<<32 - 1, 1<<32 - 1}, en.Points())
		assert.Equal(t, "(1,100)", NewEdgeKey(1, 100).String())

		assert.Panics(t, func() { NewEdgeKey(-1, 2) })
	}
	{ // Test patch kind parsing
		tokens := []string{"WALL", "Cyclic-1", "periodic", "processor", "patch-top"}
		kinds := []PatchKind{PatchPhysical, PatchCyclic, PatchCyclic, PatchProcessor, PatchPhysical}
		for i, token := range tokens {
			pk, err := ParsePatchKind(token)
			assert.NoError(t, err)
			assert.Equal(t, kinds[i], pk)
		}
		_, err := ParsePatchKind("symmetry")
		assert.Error(t, err)
		assert.True(t, PatchCyclic.Coupled())
		assert.False(t, PatchPhysical.Coupled())
		assert.Equal(t, "processor", PatchProcessor.String())
	}
}
