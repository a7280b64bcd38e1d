package wavefront

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
)

// WallResult is one rank's share of a wall distance computation.
type WallResult struct {
	// Per cell distance to the nearest wall face centre, math.MaxFloat64
	// for cells the wave did not reach
	Distance []float64
	// Per cell wall face centre the distance was measured to
	Nearest    []r3.Vec
	Iterations int
	// Cells left unreached, over all ranks
	Unreached int
}

// WallDistance computes the distance of every cell to the faces of the
// named patches. Every rank has to name the same patches, a patch may have
// no faces on some ranks.
func WallDistance(c parallel.Comm, m *mesh.Mesh, patchNames []string, cfg Config) (*WallResult, error) {
	var faces []int
	for _, name := range patchNames {
		pi := m.PatchByName(name)
		if pi < 0 {
			return nil, fmt.Errorf("rank %d: no patch %s", c.Rank(), name)
		}
		p := m.Patches[pi]
		if p.Coupled() {
			return nil, fmt.Errorf("rank %d: wall patch %s is coupled", c.Rank(), name)
		}
		for i := 0; i < p.Size; i++ {
			faces = append(faces, p.Start+i)
		}
	}
	return WallDistanceFromFaces(c, m, faces, cfg)
}

// WallDistanceFromFaces is WallDistance seeded with explicit local faces.
func WallDistanceFromFaces(c parallel.Comm, m *mesh.Mesh, seedFaces []int, cfg Config) (*WallResult, error) {
	var (
		cellInfo = make([]WallPoint, m.NCells)
		faceInfo = make([]WallPoint, m.NFaces())
		seeds    = make([]WallPoint, len(seedFaces))
		centres  = m.FaceCentres()
	)
	for i := range cellInfo {
		cellInfo[i] = Unset
	}
	for i := range faceInfo {
		faceInfo[i] = Unset
	}
	for i, f := range seedFaces {
		seeds[i] = WallPoint{Origin: centres[f]}
	}
	w, err := New[WallPoint, NoTracking](c, m, cellInfo, faceInfo, NoTracking{}, cfg)
	if err != nil {
		return nil, err
	}
	w.SetFaceInfo(seedFaces, seeds)
	iters, err := w.Iterate(cfg.MaxIter)
	if err != nil {
		return nil, err
	}
	res := &WallResult{
		Distance:   make([]float64, m.NCells),
		Nearest:    make([]r3.Vec, m.NCells),
		Iterations: iters,
	}
	for i, wp := range cellInfo {
		res.Distance[i] = wp.Distance()
		res.Nearest[i] = wp.Origin
	}
	if res.Unreached, err = parallel.AllReduceSum(c, w.NUnvisitedCells()); err != nil {
		return nil, err
	}
	if cfg.Verbose && c.Rank() == 0 {
		log.Printf("wall distance: %d iterations, %d cells unreached", iters, res.Unreached)
	}
	return res, nil
}
