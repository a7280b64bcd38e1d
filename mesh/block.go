package mesh

import (
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/transform"
	"github.com/notargets/meshcomm/types"
)

// BlockSpec describes a structured hexahedral block.
type BlockSpec struct {
	NX, NY, NZ int     // Cells per direction
	LX, LY, LZ float64 // Extent per direction
	Origin     r3.Vec
	// Cyclic couples the min and max patches of an axis through a
	// translation by the block length, or through the sector rotation for
	// the y axis of a sector block.
	Cyclic [3]bool
	// SectorAngle > 0 bends the y direction into an annular sector of that
	// many radians about the z axis through Origin. x then runs radially
	// from InnerRadius to InnerRadius+LX and LY is ignored.
	SectorAngle float64
	InnerRadius float64
}

// BlockPatchNames is the patch order of a generated block.
var BlockPatchNames = [6]string{"xmin", "xmax", "ymin", "ymax", "zmin", "zmax"}

func (bs BlockSpec) validate() error {
	if bs.NX < 1 || bs.NY < 1 || bs.NZ < 1 {
		return fmt.Errorf("block needs at least one cell per direction, have %dx%dx%d",
			bs.NX, bs.NY, bs.NZ)
	}
	if bs.LX <= 0 || bs.LZ <= 0 || (bs.SectorAngle == 0 && bs.LY <= 0) {
		return fmt.Errorf("block lengths must be positive, have %g,%g,%g", bs.LX, bs.LY, bs.LZ)
	}
	if bs.SectorAngle < 0 || bs.SectorAngle >= 2*math.Pi {
		return fmt.Errorf("sector angle %g outside (0,2pi)", bs.SectorAngle)
	}
	if bs.SectorAngle > 0 {
		if bs.InnerRadius < 0 {
			return fmt.Errorf("negative sector inner radius %g", bs.InnerRadius)
		}
		if bs.Cyclic[0] {
			return fmt.Errorf("the radial direction of a sector cannot be cyclic")
		}
	}
	return nil
}

// GenerateBlock builds the undecomposed mesh of a block. Internal faces are
// in upper triangular order, boundary faces follow in the patch order of
// BlockPatchNames. Facing cyclic patches list their faces in matching
// order.
func GenerateBlock(bs BlockSpec) (m *Mesh, err error) {
	if err = bs.validate(); err != nil {
		return
	}
	var (
		NX, NY, NZ = bs.NX, bs.NY, bs.NZ
		P          = func(i, j, k int) int { return i + (NX+1)*(j+(NY+1)*k) }
		C          = func(i, j, k int) int { return i + NX*(j+NY*k) }
		xFace      = func(i, j, k int) []int {
			return []int{P(i, j, k), P(i, j+1, k), P(i, j+1, k+1), P(i, j, k+1)}
		}
		yFace = func(i, j, k int) []int {
			return []int{P(i, j, k), P(i, j, k+1), P(i+1, j, k+1), P(i+1, j, k)}
		}
		zFace = func(i, j, k int) []int {
			return []int{P(i, j, k), P(i+1, j, k), P(i+1, j+1, k), P(i, j+1, k)}
		}
		reversed = func(f []int) []int {
			slices.Reverse(f)
			return f
		}
	)
	m = &Mesh{
		Points: make([]r3.Vec, (NX+1)*(NY+1)*(NZ+1)),
		NCells: NX * NY * NZ,
		NProcs: 1,
	}
	for k := 0; k <= NZ; k++ {
		for j := 0; j <= NY; j++ {
			for i := 0; i <= NX; i++ {
				m.Points[P(i, j, k)] = bs.position(i, j, k)
			}
		}
	}
	addFace := func(face []int, owner, neighbour int) {
		m.Faces = append(m.Faces, face)
		m.Owner = append(m.Owner, owner)
		if neighbour >= 0 {
			m.Neighbour = append(m.Neighbour, neighbour)
		}
	}
	for k := 0; k < NZ; k++ {
		for j := 0; j < NY; j++ {
			for i := 0; i < NX; i++ {
				c := C(i, j, k)
				if i+1 < NX {
					addFace(xFace(i+1, j, k), c, C(i+1, j, k))
				}
				if j+1 < NY {
					addFace(yFace(i, j+1, k), c, C(i, j+1, k))
				}
				if k+1 < NZ {
					addFace(zFace(i, j, k+1), c, C(i, j, k+1))
				}
			}
		}
	}

	// Transform generators, one per cyclic axis
	var (
		gens     []transform.Transform
		genIndex = [3]int{-1, -1, -1}
		lengths  = [3]float64{bs.LX, bs.LY, bs.LZ}
	)
	for axis := 0; axis < 3; axis++ {
		if !bs.Cyclic[axis] {
			continue
		}
		genIndex[axis] = len(gens)
		if axis == 1 && bs.SectorAngle > 0 {
			gens = append(gens, transform.NewRotation(r3.Vec{Z: 1}, bs.SectorAngle, bs.Origin))
			continue
		}
		var sep r3.Vec
		switch axis {
		case 0:
			sep.X = lengths[0]
		case 1:
			sep.Y = lengths[1]
		case 2:
			sep.Z = lengths[2]
		}
		gens = append(gens, transform.NewTranslation(sep))
	}
	m.Transforms = transform.NewSet(gens...)

	for pi, name := range BlockPatchNames {
		var (
			axis  = pi / 2
			isMax = pi%2 == 1
			start = m.NFaces()
		)
		switch axis {
		case 0:
			i, ci := 0, 0
			if isMax {
				i, ci = NX, NX-1
			}
			for k := 0; k < NZ; k++ {
				for j := 0; j < NY; j++ {
					f := xFace(i, j, k)
					if !isMax {
						f = reversed(f)
					}
					addFace(f, C(ci, j, k), -1)
				}
			}
		case 1:
			j, cj := 0, 0
			if isMax {
				j, cj = NY, NY-1
			}
			for k := 0; k < NZ; k++ {
				for i := 0; i < NX; i++ {
					f := yFace(i, j, k)
					if !isMax {
						f = reversed(f)
					}
					addFace(f, C(i, cj, k), -1)
				}
			}
		case 2:
			k, ck := 0, 0
			if isMax {
				k, ck = NZ, NZ-1
			}
			for j := 0; j < NY; j++ {
				for i := 0; i < NX; i++ {
					f := zFace(i, j, k)
					if !isMax {
						f = reversed(f)
					}
					addFace(f, C(i, j, ck), -1)
				}
			}
		}
		patch := Patch{
			Name:        name,
			Kind:        types.PatchPhysical,
			Start:       start,
			Size:        m.NFaces() - start,
			NeighbProc:  -1,
			NeighbPatch: -1,
			TransformID: m.Transforms.Identity(),
		}
		if g := genIndex[axis]; g >= 0 {
			patch.Kind = types.PatchCyclic
			patch.NeighbProc = 0
			patch.Owner = !isMax
			if isMax {
				patch.NeighbPatch = pi - 1
				patch.TransformID = m.Transforms.Generator(g, 1)
			} else {
				patch.NeighbPatch = pi + 1
				patch.TransformID = m.Transforms.Generator(g, -1)
			}
		}
		m.Patches = append(m.Patches, patch)
	}

	// Point couplings, max plane point = T(min plane point)
	for axis := 0; axis < 3; axis++ {
		g := genIndex[axis]
		if g < 0 {
			continue
		}
		id := m.Transforms.Generator(g, 1)
		for k := 0; k <= NZ; k++ {
			for j := 0; j <= NY; j++ {
				for i := 0; i <= NX; i++ {
					var (
						ijk  = [3]int{i, j, k}
						last = [3]int{NX, NY, NZ}
					)
					if ijk[axis] != 0 {
						continue
					}
					ijk[axis] = last[axis]
					m.CyclicPointPairs = append(m.CyclicPointPairs, PointPair{
						A:         P(ijk[0], ijk[1], ijk[2]),
						B:         P(i, j, k),
						Transform: id,
					})
				}
			}
		}
	}
	err = m.CheckPatches()
	return
}

func (bs BlockSpec) position(i, j, k int) r3.Vec {
	var (
		u = bs.LX * float64(i) / float64(bs.NX)
		v = bs.LY * float64(j) / float64(bs.NY)
		w = bs.LZ * float64(k) / float64(bs.NZ)
	)
	if bs.SectorAngle > 0 {
		r := bs.InnerRadius + u
		th := bs.SectorAngle * float64(j) / float64(bs.NY)
		return r3.Add(bs.Origin, r3.Vec{X: r * math.Cos(th), Y: r * math.Sin(th), Z: w})
	}
	return r3.Add(bs.Origin, r3.Vec{X: u, Y: v, Z: w})
}
