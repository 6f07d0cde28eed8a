package transform

import (
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/microsoft/psi-sub009/rimage"
)

func testDepthModel() *PinholeCameraModel {
	return &PinholeCameraModel{
		&PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
		},
		nil,
	}
}

func uniformDepthMap(width, height int, depth float64) *rimage.DepthMap {
	dm := rimage.NewEmptyDepthMap(width, height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dm.Set(x, y, depth)
		}
	}
	return dm
}

func TestIntersectRayWithFlatWall(t *testing.T) {
	model := testDepthModel()
	dm := uniformDepthMap(640, 480, 2.02)

	// a ray down the optical axis crosses the wall on the first sample past it
	p, ok := IntersectRayWithDepthMap(
		r3.Vector{}, r3.Vector{Z: 5.}, dm, model,
		DepthAlongAxis, DefaultRayStep, DefaultMaxRayLength)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.X, test.ShouldAlmostEqual, 0., 1e-9)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0., 1e-9)
	test.That(t, p.Z, test.ShouldAlmostEqual, 2.05, 1e-9)
}

func TestIntersectRayEmptyDepthMap(t *testing.T) {
	model := testDepthModel()
	dm := rimage.NewEmptyDepthMap(640, 480)

	// zero-valued samples carry no data, so no ray ever intersects
	rays := []r3.Vector{
		{Z: 5.},
		{X: 1., Y: 0.5, Z: 4.},
		{X: -0.5, Y: -0.5, Z: 3.},
	}
	for _, target := range rays {
		_, ok := IntersectRayWithDepthMap(
			r3.Vector{}, target, dm, model,
			DepthAlongAxis, DefaultRayStep, DefaultMaxRayLength)
		test.That(t, ok, test.ShouldBeFalse)
	}
}

func TestIntersectRayWallTooFar(t *testing.T) {
	model := testDepthModel()
	dm := uniformDepthMap(640, 480, 10.0)

	// the wall is past the maximum march distance
	_, ok := IntersectRayWithDepthMap(
		r3.Vector{}, r3.Vector{Z: 1.}, dm, model,
		DepthAlongAxis, DefaultRayStep, DefaultMaxRayLength)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestIntersectRayRangeValues(t *testing.T) {
	model := testDepthModel()
	dm := uniformDepthMap(640, 480, 1.02)

	// with range samples the comparison uses distance from the origin, not Z
	p, ok := IntersectRayWithDepthMap(
		r3.Vector{}, r3.Vector{X: 0.5, Z: 5.}, dm, model,
		DepthFromOrigin, DefaultRayStep, DefaultMaxRayLength)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, p.Norm(), test.ShouldAlmostEqual, 1.05, 1e-6)
}

func TestIntersectRayDegenerateDirection(t *testing.T) {
	model := testDepthModel()
	dm := uniformDepthMap(640, 480, 1.0)
	_, ok := IntersectRayWithDepthMap(
		r3.Vector{X: 1, Y: 1, Z: 1}, r3.Vector{X: 1, Y: 1, Z: 1}, dm, model,
		DepthAlongAxis, DefaultRayStep, DefaultMaxRayLength)
	test.That(t, ok, test.ShouldBeFalse)
}
