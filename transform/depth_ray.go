package transform

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/microsoft/psi-sub009/rimage"
)

// DepthValueType states what quantity a depth surface stores per pixel.
type DepthValueType string

const (
	// DepthAlongAxis means samples are distances along the camera forward (+Z) axis.
	DepthAlongAxis = DepthValueType("z_depth")
	// DepthFromOrigin means samples are Euclidean distances from the camera origin.
	DepthFromOrigin = DepthValueType("range")
)

const (
	// DefaultRayStep is the ray-march increment, 5 cm in meter units.
	DefaultRayStep = 0.05
	// DefaultMaxRayLength is how far a ray is followed before giving up, 5 m in meter units.
	DefaultMaxRayLength = 5.0
)

// IntersectRayWithDepthMap marches from origin toward target in fixed
// stepSize increments up to maxDist, projecting each hypothesis point into
// the depth camera's pixel space and comparing the sampled surface depth with
// the hypothesis' own depth coordinate. Out-of-bounds and zero-valued samples
// are skipped. The first hypothesis that lands behind the surface is the
// intersection; if none occurs the flag is false.
func IntersectRayWithDepthMap(
	origin, target r3.Vector,
	dm *rimage.DepthMap,
	depthModel *PinholeCameraModel,
	valueType DepthValueType,
	stepSize, maxDist float64,
) (r3.Vector, bool) {
	dir := target.Sub(origin)
	if dir.Norm() == 0 {
		return r3.Vector{}, false
	}
	dir = dir.Normalize()
	for d := stepSize; d <= maxDist; d += stepSize {
		p := origin.Add(dir.Mul(d))
		px, ok := depthModel.ProjectPoint(p, true)
		if !ok {
			continue
		}
		x, y := int(math.Floor(px.X)), int(math.Floor(px.Y))
		if !dm.Contains(x, y) {
			continue
		}
		surface := dm.GetDepth(x, y)
		if surface == 0 {
			continue
		}
		hypothesis := p.Z
		if valueType == DepthFromOrigin {
			hypothesis = p.Norm()
		}
		if surface < hypothesis {
			return p, true
		}
	}
	return r3.Vector{}, false
}
