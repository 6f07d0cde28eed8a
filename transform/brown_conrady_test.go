package transform

import (
	"testing"

	"go.viam.com/test"
)

func TestNewBrownConrady(t *testing.T) {
	bc, err := NewBrownConrady(nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.isZero(), test.ShouldBeTrue)
	test.That(t, bc.ModelType(), test.ShouldEqual, BrownConradyDistortionType)
	test.That(t, bc.CheckValid(), test.ShouldBeNil)

	bc, err = NewBrownConrady([]float64{0.1, -0.02})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, bc.RadialK1, test.ShouldEqual, 0.1)
	test.That(t, bc.RadialK2, test.ShouldEqual, -0.02)
	test.That(t, bc.Parameters(), test.ShouldResemble, []float64{0.1, -0.02, 0, 0, 0, 0, 0, 0})

	_, err = NewBrownConrady(make([]float64, 9))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "too long")

	var nilModel *BrownConrady
	test.That(t, nilModel.CheckValid(), test.ShouldNotBeNil)
	test.That(t, nilModel.Parameters(), test.ShouldResemble, []float64{})
}

func TestZeroDistortionIsIdentity(t *testing.T) {
	bc := &BrownConrady{}
	x, y := bc.Undistort(0.25, -0.125)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.125)
	x, y, ok := bc.Distort(0.25, -0.125)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, x, test.ShouldEqual, 0.25)
	test.That(t, y, test.ShouldEqual, -0.125)
}

func TestRadialDistortRoundTrip(t *testing.T) {
	bc := &BrownConrady{RadialK1: 0.1, RadialK2: -0.02}
	for xi := -0.5; xi <= 0.5; xi += 0.1 {
		for yi := -0.5; yi <= 0.5; yi += 0.1 {
			xd, yd, ok := bc.Distort(xi, yi)
			if !ok {
				continue
			}
			xu, yu := bc.Undistort(xd, yd)
			test.That(t, xu, test.ShouldAlmostEqual, xi, 1e-4)
			test.That(t, yu, test.ShouldAlmostEqual, yi, 1e-4)
		}
	}
}

func TestFullDistortRoundTrip(t *testing.T) {
	// tangential and rational terms force the 2x2 Newton path
	bc := &BrownConrady{
		RadialK1:     0.05,
		RadialK2:     -0.01,
		TangentialP1: 0.002,
		TangentialP2: -0.001,
		RadialK3:     0.001,
		RadialK4:     0.01,
	}
	for xi := -0.4; xi <= 0.4; xi += 0.08 {
		for yi := -0.4; yi <= 0.4; yi += 0.08 {
			xd, yd, ok := bc.Distort(xi, yi)
			test.That(t, ok, test.ShouldBeTrue)
			xu, yu := bc.Undistort(xd, yd)
			test.That(t, xu, test.ShouldAlmostEqual, xi, 1e-6)
			test.That(t, yu, test.ShouldAlmostEqual, yi, 1e-6)
		}
	}
}

func TestDistortOrigin(t *testing.T) {
	bc := &BrownConrady{RadialK1: 0.1, RadialK2: -0.02}
	x, y, ok := bc.Distort(0, 0)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, x, test.ShouldEqual, 0.)
	test.That(t, y, test.ShouldEqual, 0.)
}

func TestNewDistorter(t *testing.T) {
	d, err := NewDistorter(BrownConradyDistortionType, []float64{0.1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.ModelType(), test.ShouldEqual, BrownConradyDistortionType)

	_, err = NewDistorter(DistortionType("kannala_brandt"), nil)
	test.That(t, err, test.ShouldNotBeNil)
}
