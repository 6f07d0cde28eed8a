package transform

import (
	"math"

	"github.com/pkg/errors"
)

const (
	// distortMaxIterations caps the Newton iterations inverting the
	// distortion polynomial.
	distortMaxIterations = 100
	// distortTolerance bounds both the squared residual of the 2x2
	// solve and the 1-D Newton step at convergence.
	distortTolerance = 1e-16
)

// BrownConrady stores the coefficients of a Brown-Conrady lens model with up
// to six radial terms and two tangential terms. RadialK4-K6 form the
// denominator of a rational radial polynomial and are zero for the plain
// model. The polynomial maps distorted normalized coordinates to undistorted
// ones, matching the coefficient convention of depth-sensor calibration
// blobs: undistortion is closed form, distortion is a Newton inversion.
type BrownConrady struct {
	RadialK1     float64 `json:"rk1"`
	RadialK2     float64 `json:"rk2"`
	TangentialP1 float64 `json:"tp1"`
	TangentialP2 float64 `json:"tp2"`
	RadialK3     float64 `json:"rk3"`
	RadialK4     float64 `json:"rk4"`
	RadialK5     float64 `json:"rk5"`
	RadialK6     float64 `json:"rk6"`
}

// NewBrownConrady takes a slice of up to 8 floats in OpenCV coefficient
// order (k1, k2, p1, p2, k3, k4, k5, k6) and fills missing values with zero.
func NewBrownConrady(inp []float64) (*BrownConrady, error) {
	if len(inp) > 8 {
		return nil, errors.Errorf("list of parameters too long, expected max 8, got %d", len(inp))
	}
	coeffs := make([]float64, 8)
	copy(coeffs, inp)
	return &BrownConrady{
		RadialK1:     coeffs[0],
		RadialK2:     coeffs[1],
		TangentialP1: coeffs[2],
		TangentialP2: coeffs[3],
		RadialK3:     coeffs[4],
		RadialK4:     coeffs[5],
		RadialK5:     coeffs[6],
		RadialK6:     coeffs[7],
	}, nil
}

// ModelType returns the type of distortion model.
func (bc *BrownConrady) ModelType() DistortionType {
	return BrownConradyDistortionType
}

// CheckValid checks if the fields for BrownConrady have valid inputs.
func (bc *BrownConrady) CheckValid() error {
	if bc == nil {
		return InvalidDistortionError("BrownConrady shaped distortion_parameters not provided")
	}
	return nil
}

// Parameters returns the parameters of the distortion model as a list of
// floats in OpenCV coefficient order.
func (bc *BrownConrady) Parameters() []float64 {
	if bc == nil {
		return []float64{}
	}
	return []float64{
		bc.RadialK1, bc.RadialK2, bc.TangentialP1, bc.TangentialP2,
		bc.RadialK3, bc.RadialK4, bc.RadialK5, bc.RadialK6,
	}
}

// isZero reports whether the model is a no-op.
func (bc *BrownConrady) isZero() bool {
	if bc == nil {
		return true
	}
	for _, p := range bc.Parameters() {
		if p != 0 {
			return false
		}
	}
	return true
}

// radialOnly reports whether the model has no tangential or rational terms,
// so that the radius can be inverted with a scalar Newton iteration.
func (bc *BrownConrady) radialOnly() bool {
	return bc.TangentialP1 == 0 && bc.TangentialP2 == 0 &&
		bc.RadialK4 == 0 && bc.RadialK5 == 0 && bc.RadialK6 == 0
}

// radialScale evaluates the rational radial factor g(r2) and its derivative
// with respect to r2.
func (bc *BrownConrady) radialScale(r2 float64) (g, dgdr2 float64) {
	num := 1. + r2*(bc.RadialK1+r2*(bc.RadialK2+r2*bc.RadialK3))
	den := 1. + r2*(bc.RadialK4+r2*(bc.RadialK5+r2*bc.RadialK6))
	dnum := bc.RadialK1 + r2*(2.*bc.RadialK2+r2*3.*bc.RadialK3)
	dden := bc.RadialK4 + r2*(2.*bc.RadialK5+r2*3.*bc.RadialK6)
	g = num / den
	dgdr2 = (dnum*den - num*dden) / (den * den)
	return g, dgdr2
}

// Undistort evaluates the distortion polynomial directly, mapping a distorted
// normalized point (xd, yd) to its undistorted location.
func (bc *BrownConrady) Undistort(xd, yd float64) (float64, float64) {
	if bc == nil {
		return xd, yd
	}
	r2 := xd*xd + yd*yd
	g, _ := bc.radialScale(r2)
	xu := xd*g + 2.*bc.TangentialP1*xd*yd + bc.TangentialP2*(r2+2.*xd*xd)
	yu := yd*g + bc.TangentialP1*(r2+2.*yd*yd) + 2.*bc.TangentialP2*xd*yd
	return xu, yu
}

// Distort inverts the distortion polynomial, mapping an undistorted
// normalized point (xu, yu) to the distorted location that Undistort would
// map back to it. The returned flag is false when the Newton iteration hit a
// singular Jacobian or failed to converge; callers then get the input point
// back unchanged as a best effort.
func (bc *BrownConrady) Distort(xu, yu float64) (float64, float64, bool) {
	if bc.isZero() {
		return xu, yu, true
	}
	if bc.radialOnly() {
		return bc.distortRadial(xu, yu)
	}
	return bc.distortFull(xu, yu)
}

// distortRadial runs a scalar Newton iteration on
// rd*g(rd^2) = ru and rescales the point.
func (bc *BrownConrady) distortRadial(xu, yu float64) (float64, float64, bool) {
	ru := math.Sqrt(xu*xu + yu*yu)
	if ru == 0 {
		return 0, 0, true
	}
	rd := ru
	for i := 0; i < distortMaxIterations; i++ {
		r2 := rd * rd
		g, dgdr2 := bc.radialScale(r2)
		f := rd*g - ru
		fp := g + rd*dgdr2*2.*rd
		if math.Abs(fp) < distortTolerance {
			return xu, yu, false
		}
		step := f / fp
		rd -= step
		if math.Abs(step) < distortTolerance {
			break
		}
	}
	scale := rd / ru
	return xu * scale, yu * scale, true
}

// distortFull runs a 2x2 Newton iteration with the closed-form Jacobian of
// the undistortion map.
func (bc *BrownConrady) distortFull(xu, yu float64) (float64, float64, bool) {
	xd, yd := xu, yu
	for i := 0; i < distortMaxIterations; i++ {
		r2 := xd*xd + yd*yd
		g, dgdr2 := bc.radialScale(r2)

		ex, ey := bc.Undistort(xd, yd)
		ex -= xu
		ey -= yu
		if ex*ex+ey*ey < distortTolerance {
			return xd, yd, true
		}

		// Jacobian of Undistort at (xd, yd); d(r2)/dx = 2x, d(r2)/dy = 2y.
		j00 := g + 2.*xd*xd*dgdr2 + 2.*bc.TangentialP1*yd + 6.*bc.TangentialP2*xd
		j01 := 2.*xd*yd*dgdr2 + 2.*bc.TangentialP1*xd + 2.*bc.TangentialP2*yd
		j10 := 2.*xd*yd*dgdr2 + 2.*bc.TangentialP1*xd + 2.*bc.TangentialP2*yd
		j11 := g + 2.*yd*yd*dgdr2 + 6.*bc.TangentialP1*yd + 2.*bc.TangentialP2*xd

		det := j00*j11 - j01*j10
		if math.Abs(det) < distortTolerance {
			return xu, yu, false
		}
		xd -= (j11*ex - j01*ey) / det
		yd -= (-j10*ex + j00*ey) / det
	}
	ex, ey := bc.Undistort(xd, yd)
	ex -= xu
	ey -= yu
	if ex*ex+ey*ey < distortTolerance {
		return xd, yd, true
	}
	return xu, yu, false
}
