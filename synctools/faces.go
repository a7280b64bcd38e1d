// Package synctools keeps the copies of coupled mesh entities consistent.
// Faces on processor and cyclic patches exist on both sides of the
// coupling, points and edges on coupled patches may have any number of
// copies spread over several ranks. Every function here is collective.
package synctools

import (
	"fmt"
	"slices"

	"github.com/notargets/meshcomm/addressing"
	"github.com/notargets/meshcomm/distribute"
	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/transform"
)

// FaceCoupling exchanges every coupled boundary face with its partner face,
// on the neighbouring rank or, for cyclics, on the same rank. Values of
// transformed patches arrive in the receiving patch's frame.
type FaceCoupling struct {
	Map *distribute.Map
	// Compact position of the partner value of every boundary face, -1 for
	// faces on uncoupled patches
	Partner []int
	// Partner rank and face label, -1 when uncoupled
	PartnerProc []int
	PartnerFace []int
	// Owner side of the coupling of every boundary face
	Owner []bool

	set       *transform.Set
	nInternal int
}

// CoupledFaces returns the face coupling of the mesh's current topology,
// building it collectively on first use.
func CoupledFaces(c parallel.Comm, m *mesh.Mesh) (*FaceCoupling, error) {
	return mesh.Demand(m, "synctools.faces", func() (*FaceCoupling, error) {
		return NewFaceCoupling(c, m)
	})
}

func transformSet(m *mesh.Mesh) *transform.Set {
	if m.Transforms == nil {
		return transform.NewSet()
	}
	return m.Transforms
}

// agree returns the first error of any rank on every rank.
func agree(c parallel.Comm, local error) error {
	errs, err := parallel.AllGather(c, local)
	if err != nil {
		return err
	}
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}

// NewFaceCoupling builds the coupling without caching it.
func NewFaceCoupling(c parallel.Comm, m *mesh.Mesh) (*FaceCoupling, error) {
	var (
		me        = c.Rank()
		nInternal = m.NInternalFaces()
		nb        = m.NBoundaryFaces()
		set       = transformSet(m)
		// nInternal, then start and size of every patch
		layout = []int{nInternal}
	)
	for _, p := range m.Patches {
		layout = append(layout, p.Start, p.Size)
	}
	layouts, err := parallel.AllGatherSlices(c, layout)
	if err != nil {
		return nil, err
	}
	fc := &FaceCoupling{
		Partner:     make([]int, nb),
		PartnerProc: make([]int, nb),
		PartnerFace: make([]int, nb),
		Owner:       make([]bool, nb),
		set:         set,
		nInternal:   nInternal,
	}
	var (
		refs     = make([][]addressing.Ref, nb)
		localErr error
	)
	for _, p := range m.Patches {
		var nbrStart, nbrInternal int
		if p.Coupled() {
			if p.NeighbProc < 0 || p.NeighbProc >= len(layouts) {
				localErr = fmt.Errorf("rank %d: patch %s couples to rank %d outside [0,%d)",
					me, p.Name, p.NeighbProc, len(layouts))
				break
			}
			nl := layouts[p.NeighbProc]
			if p.NeighbPatch < 0 || 2*p.NeighbPatch+2 >= len(nl) {
				localErr = fmt.Errorf("rank %d: patch %s couples to missing patch %d on rank %d",
					me, p.Name, p.NeighbPatch, p.NeighbProc)
				break
			}
			nbrInternal, nbrStart = nl[0], nl[1+2*p.NeighbPatch]
			if size := nl[2+2*p.NeighbPatch]; size != p.Size {
				localErr = &distribute.TopologyError{Proc: me, Neighbour: p.NeighbProc,
					What: "faces of partner of patch " + p.Name, Expected: p.Size, Actual: size}
				break
			}
		}
		for i := 0; i < p.Size; i++ {
			bf := p.Start - nInternal + i
			if !p.Coupled() {
				refs[bf] = []addressing.Ref{addressing.NullRef}
				fc.PartnerProc[bf], fc.PartnerFace[bf] = -1, -1
				continue
			}
			refs[bf] = []addressing.Ref{{
				Proc:      p.NeighbProc,
				Index:     nbrStart - nbrInternal + i,
				Transform: p.TransformID,
			}}
			fc.PartnerProc[bf], fc.PartnerFace[bf] = p.NeighbProc, nbrStart+i
			fc.Owner[bf] = p.Owner
		}
	}
	if err = agree(c, localErr); err != nil {
		return nil, err
	}
	gi, err := addressing.NewGlobalIndex(c, nb)
	if err != nil {
		return nil, err
	}
	res := addressing.BuildTransformed(gi, me, refs, set.Identity())
	if fc.Map, err = distribute.NewMapFromAddressing(c, res); err != nil {
		return nil, fmt.Errorf("face coupling: %w", err)
	}
	for bf, compact := range res.Compact {
		fc.Partner[bf] = compact[0]
	}
	return fc, nil
}

func checkLen(what string, have, want int) {
	if have != want {
		panic(fmt.Sprintf("%s field has %d values, mesh has %d", what, have, want))
	}
}

// SwapBoundaryFaceList returns, for every boundary face, the value of its
// partner face. Faces on uncoupled patches keep their own value.
func SwapBoundaryFaceList[T any](c parallel.Comm, m *mesh.Mesh, fld []T, top transform.Op[T]) ([]T, error) {
	checkLen("boundary face", len(fld), m.NBoundaryFaces())
	fc, err := CoupledFaces(c, m)
	if err != nil {
		return nil, err
	}
	nbr, err := distribute.DistributeTransformed(c, fc.Map, fc.set, fld, top)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(fld)
	for bf, slot := range fc.Partner {
		if slot >= 0 {
			out[bf] = nbr[slot]
		}
	}
	return out, nil
}

// SyncBoundaryFaceList combines every coupled boundary face value with its
// partner's. The owner side value always goes first into cop, so both
// sides compute the same result.
func SyncBoundaryFaceList[T any](c parallel.Comm, m *mesh.Mesh, fld []T, cop CombineOp[T],
	top transform.Op[T]) ([]T, error) {
	nbr, err := SwapBoundaryFaceList(c, m, fld, top)
	if err != nil {
		return nil, err
	}
	fc, _ := CoupledFaces(c, m)
	out := slices.Clone(fld)
	for bf, slot := range fc.Partner {
		switch {
		case slot < 0:
		case fc.Owner[bf]:
			out[bf] = cop(fld[bf], nbr[bf])
		default:
			out[bf] = cop(nbr[bf], fld[bf])
		}
	}
	return out, nil
}

// SyncFaceList is SyncBoundaryFaceList on a field over all faces.
func SyncFaceList[T any](c parallel.Comm, m *mesh.Mesh, fld []T, cop CombineOp[T],
	top transform.Op[T]) ([]T, error) {
	checkLen("face", len(fld), m.NFaces())
	nInternal := m.NInternalFaces()
	synced, err := SyncBoundaryFaceList(c, m, fld[nInternal:], cop, top)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(fld)
	copy(out[nInternal:], synced)
	return out, nil
}

// SwapBoundaryCellList returns, for every boundary face, the value of the
// cell on the other side of the coupling, the face's own cell when the
// face is not coupled.
func SwapBoundaryCellList[T any](c parallel.Comm, m *mesh.Mesh, cellData []T,
	top transform.Op[T]) ([]T, error) {
	checkLen("cell", len(cellData), m.NCells)
	var (
		nInternal = m.NInternalFaces()
		bvals     = make([]T, m.NBoundaryFaces())
	)
	for bf := range bvals {
		bvals[bf] = cellData[m.Owner[nInternal+bf]]
	}
	return SwapBoundaryFaceList(c, m, bvals, top)
}

type faceValue[T any] struct {
	Face  int
	Value T
}

// SyncFaceMap synchronises a sparse set of face values keyed by face
// label. A coupled face missing from the map picks up its partner's value.
func SyncFaceMap[T any](c parallel.Comm, m *mesh.Mesh, values map[int]T, cop CombineOp[T],
	top transform.Op[T]) (map[int]T, error) {
	fc, err := CoupledFaces(c, m)
	if err != nil {
		return nil, err
	}
	var (
		send  = make([][]faceValue[T], c.Size())
		faces = make([]int, 0, len(values))
	)
	for f := range values {
		faces = append(faces, f)
	}
	slices.Sort(faces)
	for _, f := range faces {
		bf := f - fc.nInternal
		if bf < 0 || fc.PartnerProc[bf] < 0 {
			continue
		}
		p := fc.PartnerProc[bf]
		send[p] = append(send[p], faceValue[T]{Face: fc.PartnerFace[bf], Value: values[f]})
	}
	recv, err := parallel.AllToAll(c, send)
	if err != nil {
		return nil, err
	}
	out := make(map[int]T, len(values))
	for f, v := range values {
		out[f] = v
	}
	for _, msgs := range recv {
		for _, msg := range msgs {
			var (
				patch = m.Patches[m.FindPatch(msg.Face)]
				v     = []T{msg.Value}
			)
			top(fc.set.Transform(patch.TransformID), true, v)
			own, ok := values[msg.Face]
			switch {
			case !ok:
				out[msg.Face] = v[0]
			case patch.Owner:
				out[msg.Face] = cop(own, v[0])
			default:
				out[msg.Face] = cop(v[0], own)
			}
		}
	}
	return out, nil
}
