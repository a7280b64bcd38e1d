// Package decompose splits an undecomposed mesh into partition meshes, one
// per rank, creating the processor patches that couple them.
package decompose

import (
	"fmt"
	"log"
	"slices"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/types"
)

// procFace is a global face placed on a processor patch, flipped when the
// local cell is the global neighbour.
type procFace struct {
	global int
	flip   bool
}

// procPatchKey orders processor patches by neighbour rank, the plain patch
// (through == -1) ahead of the ones crossing a cyclic.
type procPatchKey struct {
	nbr, through int
}

type partBuilder struct {
	cells       []int
	internal    []int
	patchFaces  [][]int
	procPatches map[procPatchKey][]procFace
}

// ProcPatchName names the patch of rank p facing rank q. A non empty
// through names the cyclic patch the coupling crosses.
func ProcPatchName(p, q int, through string) string {
	if through == "" {
		return fmt.Sprintf("procBoundary%dto%d", p, q)
	}
	return fmt.Sprintf("procBoundary%dto%dthrough%s", p, q, through)
}

// Decompose distributes the cells of global over nProcs ranks following
// cellToProc. Faces between ranks become processor patches listed in
// global face order on both sides, cyclic faces whose partner lands on
// another rank become processor patches carrying the cyclic transform.
// All partitions share global's transform set.
func Decompose(global *mesh.Mesh, cellToProc []int, nProcs int) (parts []*mesh.Mesh, err error) {
	if global.PointProcAddressing != nil {
		return nil, fmt.Errorf("mesh is already decomposed")
	}
	if len(cellToProc) != global.NCells {
		return nil, fmt.Errorf("decomposition has %d entries for %d cells",
			len(cellToProc), global.NCells)
	}
	var (
		builders  = make([]*partBuilder, nProcs)
		cellLocal = make([]int, global.NCells)
	)
	for p := range builders {
		builders[p] = &partBuilder{
			patchFaces:  make([][]int, len(global.Patches)),
			procPatches: make(map[procPatchKey][]procFace),
		}
	}
	for c, p := range cellToProc {
		if p < 0 || p >= nProcs {
			return nil, fmt.Errorf("cell %d assigned to rank %d outside [0,%d)", c, p, nProcs)
		}
		cellLocal[c] = len(builders[p].cells)
		builders[p].cells = append(builders[p].cells, c)
	}
	for f := 0; f < global.NInternalFaces(); f++ {
		po, pn := cellToProc[global.Owner[f]], cellToProc[global.Neighbour[f]]
		if po == pn {
			builders[po].internal = append(builders[po].internal, f)
			continue
		}
		ko, kn := procPatchKey{nbr: pn, through: -1}, procPatchKey{nbr: po, through: -1}
		builders[po].procPatches[ko] = append(builders[po].procPatches[ko], procFace{global: f})
		builders[pn].procPatches[kn] = append(builders[pn].procPatches[kn], procFace{global: f, flip: true})
	}
	for pi, patch := range global.Patches {
		for i := 0; i < patch.Size; i++ {
			f := patch.Start + i
			p := cellToProc[global.Owner[f]]
			if patch.Kind == types.PatchCyclic {
				partner := global.Patches[patch.NeighbPatch]
				q := cellToProc[global.Owner[partner.Start+i]]
				if q != p {
					key := procPatchKey{nbr: q, through: pi}
					builders[p].procPatches[key] = append(builders[p].procPatches[key], procFace{global: f})
					continue
				}
			}
			builders[p].patchFaces[pi] = append(builders[p].patchFaces[pi], f)
		}
	}

	var (
		through = make([][]int, nProcs)
	)
	parts = make([]*mesh.Mesh, nProcs)
	for p, b := range builders {
		parts[p], through[p] = b.assemble(global, p, nProcs, cellLocal)
	}
	// Partner patches are only known once every rank has its patch list
	for p, part := range parts {
		for pi := range part.Patches {
			patch := &part.Patches[pi]
			if patch.Kind != types.PatchProcessor {
				continue
			}
			partnerName := ProcPatchName(patch.NeighbProc, p, "")
			if gp := through[p][pi]; gp >= 0 {
				partnerName = ProcPatchName(patch.NeighbProc, p,
					global.Patches[global.Patches[gp].NeighbPatch].Name)
			}
			if patch.NeighbPatch = parts[patch.NeighbProc].PatchByName(partnerName); patch.NeighbPatch < 0 {
				return nil, fmt.Errorf("rank %d: no partner patch %s on rank %d",
					p, partnerName, patch.NeighbProc)
			}
		}
		if err = part.CheckPatches(); err != nil {
			return nil, err
		}
	}
	return
}

// assemble builds the partition mesh of rank p. through holds, per patch,
// the global cyclic patch a processor patch crosses or -1.
func (b *partBuilder) assemble(global *mesh.Mesh, p, nProcs int, cellLocal []int) (part *mesh.Mesh, through []int) {
	var (
		faces     [][]int
		owner     []int
		neighbour []int
		faceAddr  []int
		patches   []mesh.Patch
		keys      = make([]procPatchKey, 0, len(b.procPatches))
	)
	addFace := func(f int, flip bool) {
		face := slices.Clone(global.Faces[f])
		o := global.Owner[f]
		if flip {
			slices.Reverse(face)
			o = global.Neighbour[f]
		}
		faces = append(faces, face)
		owner = append(owner, cellLocal[o])
		faceAddr = append(faceAddr, f)
	}
	for _, f := range b.internal {
		addFace(f, false)
		neighbour = append(neighbour, cellLocal[global.Neighbour[f]])
	}
	for pi, gp := range global.Patches {
		start := len(faces)
		for _, f := range b.patchFaces[pi] {
			addFace(f, false)
		}
		patch := gp
		patch.Start, patch.Size = start, len(faces)-start
		if gp.Kind == types.PatchCyclic {
			patch.NeighbProc = p
		}
		patches = append(patches, patch)
		through = append(through, -1)
	}
	for key := range b.procPatches {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].nbr != keys[j].nbr {
			return keys[i].nbr < keys[j].nbr
		}
		return keys[i].through < keys[j].through
	})
	for _, key := range keys {
		start := len(faces)
		for _, pf := range b.procPatches[key] {
			addFace(pf.global, pf.flip)
		}
		patch := mesh.Patch{
			Name:        ProcPatchName(p, key.nbr, ""),
			Kind:        types.PatchProcessor,
			Start:       start,
			Size:        len(faces) - start,
			NeighbProc:  key.nbr,
			NeighbPatch: -1,
			Owner:       p < key.nbr,
			TransformID: global.Transforms.Identity(),
		}
		if key.through >= 0 {
			cyclic := global.Patches[key.through]
			patch.Name = ProcPatchName(p, key.nbr, cyclic.Name)
			patch.TransformID = cyclic.TransformID
		}
		patches = append(patches, patch)
		through = append(through, key.through)
	}

	// Local points in global order
	var (
		used       = make(map[int]struct{})
		pointAddr  []int
		pointLocal = make(map[int]int)
	)
	for _, face := range faces {
		for _, pt := range face {
			used[pt] = struct{}{}
		}
	}
	for pt := range used {
		pointAddr = append(pointAddr, pt)
	}
	sort.Ints(pointAddr)
	points := make([]r3.Vec, len(pointAddr))
	for i, pt := range pointAddr {
		pointLocal[pt] = i
		points[i] = global.Points[pt]
	}
	for _, face := range faces {
		for i, pt := range face {
			face[i] = pointLocal[pt]
		}
	}
	var pairs []mesh.PointPair
	for _, pp := range global.CyclicPointPairs {
		_, hasA := pointLocal[pp.A]
		_, hasB := pointLocal[pp.B]
		if hasA || hasB {
			pairs = append(pairs, pp)
		}
	}
	part = &mesh.Mesh{
		Points:              points,
		Faces:               faces,
		Owner:               owner,
		Neighbour:           neighbour,
		NCells:              len(b.cells),
		Patches:             patches,
		Transforms:          global.Transforms,
		PointProcAddressing: pointAddr,
		FaceProcAddressing:  faceAddr,
		CellProcAddressing:  slices.Clone(b.cells),
		NGlobalPoints:       global.NPoints(),
		CyclicPointPairs:    pairs,
		Rank:                p,
		NProcs:              nProcs,
	}
	return
}

// InterfaceFaces counts the coupled faces between every pair of ranks.
func InterfaceFaces(parts []*mesh.Mesh) *sparse.DOK {
	nProcs := len(parts)
	dok := sparse.NewDOK(nProcs, nProcs)
	for p, part := range parts {
		for _, patch := range part.Patches {
			if patch.Kind == types.PatchProcessor {
				dok.Set(p, patch.NeighbProc, dok.At(p, patch.NeighbProc)+float64(patch.Size))
			}
		}
	}
	return dok
}

// Report logs the balance and interface statistics of a decomposition.
func Report(parts []*mesh.Mesh) {
	var (
		nProcs     = len(parts)
		iface      = InterfaceFaces(parts)
		total      int
		minLoad    = -1
		maxLoad    int
		commVolume float64
	)
	for _, part := range parts {
		total += part.NCells
		maxLoad = max(maxLoad, part.NCells)
		if minLoad < 0 || part.NCells < minLoad {
			minLoad = part.NCells
		}
	}
	avgLoad := float64(total) / float64(nProcs)
	log.Printf("Decomposition Analysis:")
	log.Printf("  Cells: %d over %d ranks", total, nProcs)
	log.Printf("  Load imbalance: %.2f%%", 100*(float64(maxLoad)/avgLoad-1))
	log.Printf("  Load range: [%d, %d], avg: %.1f", minLoad, maxLoad, avgLoad)
	log.Printf("\nInterface statistics:")
	for p := 0; p < nProcs; p++ {
		for q := p + 1; q < nProcs; q++ {
			if n := iface.At(p, q); n > 0 {
				log.Printf("  Rank %d <-> %d: %d faces", p, q, int(n))
				commVolume += n
			}
		}
	}
	log.Printf("  Coupled rank pairs: %d, interface faces: %d", iface.NNZ()/2, int(commVolume))
}
