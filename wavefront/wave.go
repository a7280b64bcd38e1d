// Package wavefront propagates information from a set of seed faces across
// the cells and faces of a decomposed mesh until nothing changes anymore.
// The information carried is up to the caller: any type whose pointer
// satisfies InfoPtr can be propagated, WallPoint computes the distance to
// the nearest wall.
package wavefront

import (
	"fmt"
	"log"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/mesh"
	"github.com/notargets/meshcomm/parallel"
	"github.com/notargets/meshcomm/synctools"
	"github.com/notargets/meshcomm/transform"
)

// InfoPtr is implemented by a pointer to the propagated information.
type InfoPtr[I any, TD any] interface {
	*I
	// Valid reports whether the info has been set by the wave.
	Valid(td TD) bool
	// Update the info held at pos from the neighbouring nbr. It returns
	// true when the info changed, which only happens for an improvement
	// larger than the relative tolerance tol.
	Update(pos r3.Vec, nbr I, tol float64, td TD) bool
	// Transform maps the info into the frame of the other side of a
	// periodic coupling.
	Transform(tr transform.Transform, td TD)
}

type Config struct {
	// Relative improvement needed to accept an update
	PropagationTol float64 `json:"propagationTol"`
	// Used instead of PropagationTol for faces of rotational couplings
	RotationalTol float64 `json:"rotationalTol"`
	// Iteration cap of WallDistance, negative runs to the fixed point
	MaxIter int  `json:"maxIter"`
	Verbose bool `json:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		PropagationTol: 0.01,
		RotationalTol:  0.05,
		MaxIter:        -1,
	}
}

func (cfg Config) validate() error {
	if cfg.PropagationTol < 0 || cfg.RotationalTol < 0 {
		return fmt.Errorf("negative wavefront tolerance %g/%g", cfg.PropagationTol, cfg.RotationalTol)
	}
	return nil
}

// Wave holds the state of one propagation on one rank. It is created per
// computation and dropped afterwards.
type Wave[I any, TD any, P InfoPtr[I, TD]] struct {
	comm parallel.Comm
	mesh *mesh.Mesh
	td   TD
	cfg  Config

	cellInfo, faceInfo       []I
	changedCell, changedFace []bool
	changedCells             []int
	changedFaces             []int

	nUnvisitedCells, nUnvisitedFaces int
	nEvals                           int

	fc          *synctools.FaceCoupling
	coupledTol  []float64 // per boundary face
	cellCentres []r3.Vec
	faceCentres []r3.Vec
	cellFaces   [][]int
}

// New starts a wave over cellInfo and faceInfo, which it updates in place.
// It is collective, the face coupling of the mesh is built on first use.
func New[I any, TD any, P InfoPtr[I, TD]](c parallel.Comm, m *mesh.Mesh, cellInfo, faceInfo []I,
	td TD, cfg Config) (*Wave[I, TD, P], error) {
	if len(cellInfo) != m.NCells || len(faceInfo) != m.NFaces() {
		return nil, fmt.Errorf("rank %d: wave over %d cells and %d faces, mesh has %d and %d",
			c.Rank(), len(cellInfo), len(faceInfo), m.NCells, m.NFaces())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	fc, err := synctools.CoupledFaces(c, m)
	if err != nil {
		return nil, err
	}
	w := &Wave[I, TD, P]{
		comm:        c,
		mesh:        m,
		td:          td,
		cfg:         cfg,
		cellInfo:    cellInfo,
		faceInfo:    faceInfo,
		changedCell: make([]bool, m.NCells),
		changedFace: make([]bool, m.NFaces()),
		fc:          fc,
		coupledTol:  make([]float64, m.NBoundaryFaces()),
		cellCentres: m.CellCentres(),
		faceCentres: m.FaceCentres(),
		cellFaces:   m.CellFaces(),
	}
	set := m.Transforms
	for _, patch := range m.Patches {
		tol := cfg.PropagationTol
		if set != nil && set.IsRotational(patch.TransformID) {
			tol = cfg.RotationalTol
		}
		for i := 0; i < patch.Size; i++ {
			w.coupledTol[patch.Start-m.NInternalFaces()+i] = tol
		}
	}
	for i := range cellInfo {
		if !P(&cellInfo[i]).Valid(td) {
			w.nUnvisitedCells++
		}
	}
	for i := range faceInfo {
		if !P(&faceInfo[i]).Valid(td) {
			w.nUnvisitedFaces++
		}
	}
	return w, nil
}

// SetFaceInfo seeds the wave: faces[i] gets infos[i] and is queued.
func (w *Wave[I, TD, P]) SetFaceInfo(faces []int, infos []I) {
	if len(faces) != len(infos) {
		panic(fmt.Sprintf("%d seed faces with %d infos", len(faces), len(infos)))
	}
	for i, f := range faces {
		if !P(&w.faceInfo[f]).Valid(w.td) && P(&infos[i]).Valid(w.td) {
			w.nUnvisitedFaces--
		}
		w.faceInfo[f] = infos[i]
		w.markFace(f)
	}
}

func (w *Wave[I, TD, P]) markFace(f int) {
	if !w.changedFace[f] {
		w.changedFace[f] = true
		w.changedFaces = append(w.changedFaces, f)
	}
}

func (w *Wave[I, TD, P]) markCell(c int) {
	if !w.changedCell[c] {
		w.changedCell[c] = true
		w.changedCells = append(w.changedCells, c)
	}
}

func (w *Wave[I, TD, P]) updateCell(cell int, nbr I, tol float64) {
	w.nEvals++
	info := P(&w.cellInfo[cell])
	wasValid := info.Valid(w.td)
	if info.Update(w.cellCentres[cell], nbr, tol, w.td) {
		w.markCell(cell)
	}
	if !wasValid && info.Valid(w.td) {
		w.nUnvisitedCells--
	}
}

func (w *Wave[I, TD, P]) updateFace(face int, nbr I, tol float64) {
	w.nEvals++
	info := P(&w.faceInfo[face])
	wasValid := info.Valid(w.td)
	if info.Update(w.faceCentres[face], nbr, tol, w.td) {
		w.markFace(face)
	}
	if !wasValid && info.Valid(w.td) {
		w.nUnvisitedFaces--
	}
}

// FaceToCell moves the info of every queued face into its cells and
// returns the number of cells changed over all ranks.
func (w *Wave[I, TD, P]) FaceToCell() (int, error) {
	nInternal := w.mesh.NInternalFaces()
	for _, f := range w.changedFaces {
		w.changedFace[f] = false
		nbr := w.faceInfo[f]
		if !P(&nbr).Valid(w.td) {
			continue
		}
		w.updateCell(w.mesh.Owner[f], nbr, w.cfg.PropagationTol)
		if f < nInternal {
			w.updateCell(w.mesh.Neighbour[f], nbr, w.cfg.PropagationTol)
		}
	}
	w.changedFaces = w.changedFaces[:0]
	return parallel.AllReduceSum(w.comm, len(w.changedCells))
}

// CellToFace moves the info of every queued cell into its faces, then
// hands changed coupled faces to their partners. It returns the number of
// faces changed over all ranks.
func (w *Wave[I, TD, P]) CellToFace() (int, error) {
	for _, c := range w.changedCells {
		w.changedCell[c] = false
		nbr := w.cellInfo[c]
		for _, f := range w.cellFaces[c] {
			w.updateFace(f, nbr, w.cfg.PropagationTol)
		}
	}
	w.changedCells = w.changedCells[:0]
	if err := w.handleCoupled(); err != nil {
		return 0, err
	}
	return parallel.AllReduceSum(w.comm, len(w.changedFaces))
}

type packet[I any] struct {
	Changed bool
	Info    I
}

// handleCoupled sends every changed coupled face to its partner, which
// updates its own face from it.
func (w *Wave[I, TD, P]) handleCoupled() error {
	var (
		nInternal = w.mesh.NInternalFaces()
		send      = make([]packet[I], w.mesh.NBoundaryFaces())
	)
	for bf := range send {
		if f := nInternal + bf; w.fc.Partner[bf] >= 0 && w.changedFace[f] {
			send[bf] = packet[I]{Changed: true, Info: w.faceInfo[f]}
		}
	}
	var top transform.Op[packet[I]] = func(tr transform.Transform, forward bool, fld []packet[I]) {
		if !forward {
			tr = tr.Inverse()
		}
		for i := range fld {
			if fld[i].Changed {
				P(&fld[i].Info).Transform(tr, w.td)
			}
		}
	}
	recv, err := synctools.SwapBoundaryFaceList(w.comm, w.mesh, send, top)
	if err != nil {
		return fmt.Errorf("coupled faces: %w", err)
	}
	for bf, pkt := range recv {
		if w.fc.Partner[bf] < 0 || !pkt.Changed {
			continue
		}
		w.updateFace(nInternal+bf, pkt.Info, w.coupledTol[bf])
	}
	return nil
}

// Iterate alternates FaceToCell and CellToFace until no rank changes
// anything or maxIter iterations are done, negative maxIter meaning no
// cap. Seeds on coupled faces cross before the first iteration. It returns
// the number of iterations.
func (w *Wave[I, TD, P]) Iterate(maxIter int) (iter int, err error) {
	if err = w.handleCoupled(); err != nil {
		return
	}
	for maxIter < 0 || iter < maxIter {
		var nCells, nFaces int
		if nCells, err = w.FaceToCell(); err != nil {
			return
		}
		if nCells == 0 {
			break
		}
		if nFaces, err = w.CellToFace(); err != nil {
			return
		}
		iter++
		if w.cfg.Verbose && w.comm.Rank() == 0 {
			log.Printf("wavefront iteration %d: %d cells, %d faces changed", iter, nCells, nFaces)
		}
		if nFaces == 0 {
			break
		}
	}
	return
}

func (w *Wave[I, TD, P]) CellInfo() []I { return w.cellInfo }
func (w *Wave[I, TD, P]) FaceInfo() []I { return w.faceInfo }

// NUnvisitedCells is the number of local cells the wave has not reached.
func (w *Wave[I, TD, P]) NUnvisitedCells() int { return w.nUnvisitedCells }
func (w *Wave[I, TD, P]) NUnvisitedFaces() int { return w.nUnvisitedFaces }

// NEvals counts the local Update calls.
func (w *Wave[I, TD, P]) NEvals() int { return w.nEvals }
