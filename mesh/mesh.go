// Package mesh holds one rank's partition of a face-addressed polyhedral
// mesh: points, faces with owner/neighbour cells and the boundary patches,
// including the coupled ones that link the partition to its neighbours.
package mesh

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/transform"
	"github.com/notargets/meshcomm/types"
)

// Patch is a contiguous range of boundary faces.
type Patch struct {
	Name  string
	Kind  types.PatchKind
	Start int // First face of the patch
	Size  int
	// Coupled patches only
	NeighbProc  int  // Rank holding the partner patch, own rank for cyclics
	NeighbPatch int  // Index of the partner patch on NeighbProc
	Owner       bool // Owner side of the coupling
	// TransformID maps positions seen from the partner patch into this
	// patch's frame: pos_here = T(pos_partner). Identity for plain
	// processor patches.
	TransformID int
}

func (p Patch) Coupled() bool { return p.Kind.Coupled() }

// PointPair links two global points of a periodic boundary,
// pos(A) = T(pos(B)) with T the transform with id Transform.
type PointPair struct {
	A, B      int
	Transform int
}

// Mesh is a partition mesh. Faces are ordered internal first (Owner and
// Neighbour both set), then the boundary faces patch by patch. Face points
// are ordered so the right hand normal points out of the owner cell.
type Mesh struct {
	Points    []r3.Vec
	Faces     [][]int
	Owner     []int // Owner cell of every face
	Neighbour []int // Neighbour cell of every internal face
	NCells    int
	Patches   []Patch

	// Transforms is shared by all partitions of one decomposition.
	Transforms *transform.Set

	// Addressing back into the undecomposed mesh, nil when the mesh was
	// never decomposed.
	PointProcAddressing []int
	FaceProcAddressing  []int
	CellProcAddressing  []int
	NGlobalPoints       int

	// Periodic point couplings in global point numbering.
	CyclicPointPairs []PointPair

	Rank, NProcs int

	generation atomic.Uint64
	cacheOnce  sync.Once
	cache      *Cache
}

func (m *Mesh) NPoints() int        { return len(m.Points) }
func (m *Mesh) NFaces() int         { return len(m.Faces) }
func (m *Mesh) NInternalFaces() int { return len(m.Neighbour) }
func (m *Mesh) NBoundaryFaces() int { return len(m.Faces) - len(m.Neighbour) }

// Generation is the topology generation the mesh is at.
func (m *Mesh) Generation() uint64 { return m.generation.Load() }

// TopoChanged must be called after any edit of the connectivity, it makes
// every cached addressing stale.
func (m *Mesh) TopoChanged() {
	m.generation.Add(1)
}

// FindPatch returns the patch holding face, -1 for internal faces.
func (m *Mesh) FindPatch(face int) int {
	if face < m.NInternalFaces() || face >= m.NFaces() {
		return -1
	}
	pi := sort.Search(len(m.Patches), func(i int) bool {
		return m.Patches[i].Start+m.Patches[i].Size > face
	})
	if pi == len(m.Patches) || m.Patches[pi].Start > face {
		return -1
	}
	return pi
}

// PatchByName returns the index of the named patch, -1 when absent.
func (m *Mesh) PatchByName(name string) int {
	for pi, p := range m.Patches {
		if p.Name == name {
			return pi
		}
	}
	return -1
}

func (m *Mesh) GlobalPoint(i int) int {
	if m.PointProcAddressing == nil {
		return i
	}
	return m.PointProcAddressing[i]
}

func (m *Mesh) GlobalFace(i int) int {
	if m.FaceProcAddressing == nil {
		return i
	}
	return m.FaceProcAddressing[i]
}

func (m *Mesh) GlobalCell(i int) int {
	if m.CellProcAddressing == nil {
		return i
	}
	return m.CellProcAddressing[i]
}

// GlobalPointCount is the number of points of the undecomposed mesh.
func (m *Mesh) GlobalPointCount() int {
	if m.PointProcAddressing == nil {
		return len(m.Points)
	}
	return m.NGlobalPoints
}

// PatchPoints returns the sorted distinct points of a patch.
func (m *Mesh) PatchPoints(patchi int) []int {
	p := m.Patches[patchi]
	return m.facePoints(p.Start, p.Start+p.Size)
}

// CoupledPoints returns the sorted distinct points on any coupled patch.
func (m *Mesh) CoupledPoints() []int {
	seen := make(map[int]struct{})
	for _, p := range m.Patches {
		if !p.Coupled() {
			continue
		}
		for _, f := range m.Faces[p.Start : p.Start+p.Size] {
			for _, pt := range f {
				seen[pt] = struct{}{}
			}
		}
	}
	return sortedKeys(seen)
}

func (m *Mesh) facePoints(start, end int) []int {
	seen := make(map[int]struct{})
	for _, f := range m.Faces[start:end] {
		for _, pt := range f {
			seen[pt] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

func sortedKeys(set map[int]struct{}) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}

// CellFaces returns the faces bounding every cell.
func (m *Mesh) CellFaces() [][]int {
	cf, _ := Demand(m, "cellFaces", func() ([][]int, error) {
		cf := make([][]int, m.NCells)
		for f, c := range m.Owner {
			cf[c] = append(cf[c], f)
		}
		for f, c := range m.Neighbour {
			cf[c] = append(cf[c], f)
		}
		return cf, nil
	})
	return cf
}

// CheckPatches verifies the face layout: patches follow the internal faces
// back to back, and every coupled patch has a valid partner.
func (m *Mesh) CheckPatches() error {
	if len(m.Owner) != len(m.Faces) {
		return fmt.Errorf("rank %d: %d owners for %d faces", m.Rank, len(m.Owner), len(m.Faces))
	}
	next := m.NInternalFaces()
	for pi, p := range m.Patches {
		if p.Start != next {
			return fmt.Errorf("rank %d: patch %s starts at face %d, expected %d",
				m.Rank, p.Name, p.Start, next)
		}
		next += p.Size
		if !p.Coupled() {
			continue
		}
		if p.NeighbProc < 0 || (m.NProcs > 0 && p.NeighbProc >= m.NProcs) {
			return fmt.Errorf("rank %d: patch %s couples to rank %d outside [0,%d)",
				m.Rank, p.Name, p.NeighbProc, m.NProcs)
		}
		if p.Kind == types.PatchCyclic {
			if p.NeighbPatch < 0 || p.NeighbPatch >= len(m.Patches) || p.NeighbPatch == pi {
				return fmt.Errorf("rank %d: cyclic patch %s has invalid partner %d",
					m.Rank, p.Name, p.NeighbPatch)
			}
			nbr := m.Patches[p.NeighbPatch]
			if nbr.Size != p.Size || nbr.NeighbPatch != pi {
				return fmt.Errorf("rank %d: cyclic patches %s and %s do not match",
					m.Rank, p.Name, nbr.Name)
			}
		}
		if m.Transforms != nil && (p.TransformID < 0 || p.TransformID >= m.Transforms.Len()) {
			return fmt.Errorf("rank %d: patch %s has transform id %d outside the set",
				m.Rank, p.Name, p.TransformID)
		}
	}
	if next != len(m.Faces) {
		return fmt.Errorf("rank %d: patches cover faces up to %d of %d",
			m.Rank, next, len(m.Faces))
	}
	for f, c := range m.Owner {
		if c < 0 || c >= m.NCells {
			return fmt.Errorf("rank %d: face %d has owner %d outside [0,%d)",
				m.Rank, f, c, m.NCells)
		}
	}
	return nil
}
