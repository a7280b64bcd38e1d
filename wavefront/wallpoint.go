package wavefront

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/notargets/meshcomm/transform"
)

// small absorbs round-off when comparing squared distances.
const small = 1e-15

// WallPoint is the wave information for distance to the nearest wall: the
// wall face centre reached and the squared distance to it. Use Unset for
// entities the wave has not reached, the zero value is a point on a wall
// at the origin.
type WallPoint struct {
	Origin  r3.Vec
	DistSqr float64
}

// NoTracking is the tracking data of payloads that need none.
type NoTracking struct{}

// Unset is the WallPoint of an unreached entity.
var Unset = WallPoint{Origin: r3.Vec{X: math.MaxFloat64, Y: math.MaxFloat64, Z: math.MaxFloat64}, DistSqr: -1}

func (wp *WallPoint) Valid(NoTracking) bool { return wp.DistSqr > -0.5 }

// Update takes the wall point of nbr when it is nearer to pos than the
// current one by more than the relative tolerance tol.
func (wp *WallPoint) Update(pos r3.Vec, nbr WallPoint, tol float64, td NoTracking) bool {
	if !nbr.Valid(td) {
		return false
	}
	d := r3.Sub(pos, nbr.Origin)
	distSqr := r3.Dot(d, d)
	if !wp.Valid(td) {
		wp.Origin, wp.DistSqr = nbr.Origin, distSqr
		return true
	}
	diff := wp.DistSqr - distSqr
	switch {
	case diff < 0:
		// Already nearer
		return false
	case diff < small || (wp.DistSqr > small && diff/wp.DistSqr < tol):
		// Too small an improvement to propagate
		return false
	}
	wp.Origin, wp.DistSqr = nbr.Origin, distSqr
	return true
}

func (wp *WallPoint) Transform(tr transform.Transform, _ NoTracking) {
	wp.Origin = tr.TransformPosition(wp.Origin)
}

// Distance is the distance to the wall, math.MaxFloat64 when unreached.
func (wp WallPoint) Distance() float64 {
	if wp.DistSqr < -0.5 {
		return math.MaxFloat64
	}
	return math.Sqrt(wp.DistSqr)
}

func (wp WallPoint) String() string {
	if wp.DistSqr < -0.5 {
		return "unset"
	}
	return fmt.Sprintf("origin %v distance %g", wp.Origin, math.Sqrt(wp.DistSqr))
}
