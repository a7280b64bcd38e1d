package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

type geometry struct {
	faceCentres, faceAreas []r3.Vec
	cellCentres            []r3.Vec
	cellVolumes            []float64
}

// FaceCentres returns the area weighted centroid of every face.
func (m *Mesh) FaceCentres() []r3.Vec { return m.geometry().faceCentres }

// FaceAreas returns the area vector of every face, pointing out of the
// owner cell.
func (m *Mesh) FaceAreas() []r3.Vec { return m.geometry().faceAreas }

// CellCentres returns the volume weighted centroid of every cell.
func (m *Mesh) CellCentres() []r3.Vec { return m.geometry().cellCentres }

func (m *Mesh) CellVolumes() []float64 { return m.geometry().cellVolumes }

func (m *Mesh) geometry() *geometry {
	g, _ := Demand(m, "geometry", func() (*geometry, error) {
		g := &geometry{
			faceCentres: make([]r3.Vec, m.NFaces()),
			faceAreas:   make([]r3.Vec, m.NFaces()),
		}
		for f, face := range m.Faces {
			g.faceCentres[f], g.faceAreas[f] = faceCentreAndArea(m.Points, face)
		}
		g.cellCentres, g.cellVolumes = m.cellCentresAndVolumes(g.faceCentres, g.faceAreas)
		return g, nil
	})
	return g
}

// faceCentreAndArea decomposes the face into triangles about the point
// average and weights each triangle centroid by its area.
func faceCentreAndArea(points []r3.Vec, face []int) (centre, area r3.Vec) {
	nPoints := len(face)
	if nPoints == 3 {
		p0, p1, p2 := points[face[0]], points[face[1]], points[face[2]]
		centre = r3.Scale(1./3., r3.Add(r3.Add(p0, p1), p2))
		area = r3.Scale(0.5, r3.Cross(r3.Sub(p1, p0), r3.Sub(p2, p0)))
		return
	}
	var est r3.Vec
	for _, pt := range face {
		est = r3.Add(est, points[pt])
	}
	est = r3.Scale(1./float64(nPoints), est)

	var (
		sumN, sumAc r3.Vec
		sumA        float64
	)
	for i, pt := range face {
		thisPoint := points[pt]
		nextPoint := points[face[(i+1)%nPoints]]
		c := r3.Add(r3.Add(thisPoint, nextPoint), est)
		n := r3.Cross(r3.Sub(nextPoint, thisPoint), r3.Sub(est, thisPoint))
		a := r3.Norm(n)
		sumN = r3.Add(sumN, n)
		sumA += a
		sumAc = r3.Add(sumAc, r3.Scale(a, c))
	}
	if sumA < math.SmallestNonzeroFloat64*1e10 {
		centre = est
	} else {
		centre = r3.Scale(1./(3.*sumA), sumAc)
	}
	area = r3.Scale(0.5, sumN)
	return
}

// cellCentresAndVolumes sums the pyramids standing on each face with their
// apex at the average of the cell's face centres.
func (m *Mesh) cellCentresAndVolumes(fCtrs, fAreas []r3.Vec) (cellCtrs []r3.Vec, cellVols []float64) {
	var (
		nCells    = m.NCells
		cEst      = make([]r3.Vec, nCells)
		nCellFace = make([]int, nCells)
	)
	cellCtrs = make([]r3.Vec, nCells)
	cellVols = make([]float64, nCells)
	accumulate := func(f, c int) {
		cEst[c] = r3.Add(cEst[c], fCtrs[f])
		nCellFace[c]++
	}
	for f, c := range m.Owner {
		accumulate(f, c)
	}
	for f, c := range m.Neighbour {
		accumulate(f, c)
	}
	for c := range cEst {
		if nCellFace[c] > 0 {
			cEst[c] = r3.Scale(1./float64(nCellFace[c]), cEst[c])
		}
	}
	pyramid := func(f, c int, sign float64) {
		pyr3Vol := sign * r3.Dot(fAreas[f], r3.Sub(fCtrs[f], cEst[c]))
		pc := r3.Add(r3.Scale(0.75, fCtrs[f]), r3.Scale(0.25, cEst[c]))
		cellCtrs[c] = r3.Add(cellCtrs[c], r3.Scale(pyr3Vol, pc))
		cellVols[c] += pyr3Vol
	}
	for f, c := range m.Owner {
		pyramid(f, c, 1)
	}
	for f, c := range m.Neighbour {
		pyramid(f, c, -1)
	}
	for c := range cellCtrs {
		if math.Abs(cellVols[c]) > 1e-300 {
			cellCtrs[c] = r3.Scale(1./cellVols[c], cellCtrs[c])
		} else {
			cellCtrs[c] = cEst[c]
		}
		cellVols[c] /= 3
	}
	return
}
