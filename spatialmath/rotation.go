// Package spatialmath implements conversions between the rotation
// representations used by the calibration pipeline: R3 axis-angle vectors,
// 3x3 rotation matrices, and quaternions as the numerically stable
// intermediate for matrix decomposition.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"
)

// defaultAngleEpsilon is the angle below which a rotation is treated as the
// identity when extracting an axis-angle vector, 0.01 degrees in radians.
const defaultAngleEpsilon = 0.01 * math.Pi / 180.

// AxisAngleToRotationMatrix converts an R3 axis-angle vector, whose direction
// is the rotation axis and whose magnitude is the rotation angle in radians,
// into a 3x3 rotation matrix with Rodrigues' formula
// R = I + K*sin(theta) + K^2*(1-cos(theta)).
func AxisAngleToRotationMatrix(aa r3.Vector) *mat.Dense {
	rm := identityMatrix()
	theta := aa.Norm()
	if theta == 0 {
		return rm
	}
	k := crossProductMatrix(aa.Mul(1. / theta))
	var k2, sinTerm, cosTerm mat.Dense
	k2.Mul(k, k)
	sinTerm.Scale(math.Sin(theta), k)
	cosTerm.Scale(1.-math.Cos(theta), &k2)
	rm.Add(rm, &sinTerm)
	rm.Add(rm, &cosTerm)
	return rm
}

// RotationMatrixToAxisAngle converts a 3x3 rotation matrix into an R3
// axis-angle vector. The extraction goes through a quaternion, which stays
// exact for every sign pattern of the matrix including rotations at or near
// pi, where the anti-symmetric part of the matrix vanishes. Angles smaller
// than 0.01 degrees collapse to the zero vector.
func RotationMatrixToAxisAngle(m mat.Matrix) (r3.Vector, error) {
	q, err := RotationMatrixToQuaternion(m)
	if err != nil {
		return r3.Vector{}, err
	}
	if q.Real < 0 { // keep theta in [0, pi]
		q = quat.Scale(-1, q)
	}
	sinHalf := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	theta := 2. * math.Atan2(sinHalf, q.Real)
	if theta < defaultAngleEpsilon || sinHalf == 0 {
		return r3.Vector{}, nil
	}
	axis := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}.Mul(1. / sinHalf)
	return axis.Mul(theta), nil
}

// RotationMatrixToQuaternion extracts a unit quaternion from a 3x3 rotation
// matrix, branching on the largest of the trace and the diagonal entries so
// that the divisor is always well away from zero.
func RotationMatrixToQuaternion(m mat.Matrix) (quat.Number, error) {
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		return quat.Number{}, errors.Errorf("input to RotationMatrixToQuaternion must be a 3x3 matrix, got %dx%d", rows, cols)
	}
	tr := m.At(0, 0) + m.At(1, 1) + m.At(2, 2)
	var q quat.Number
	switch {
	case tr > 0:
		s := 2. * math.Sqrt(tr+1.)
		q.Real = 0.25 * s
		q.Imag = (m.At(2, 1) - m.At(1, 2)) / s
		q.Jmag = (m.At(0, 2) - m.At(2, 0)) / s
		q.Kmag = (m.At(1, 0) - m.At(0, 1)) / s
	case m.At(0, 0) > m.At(1, 1) && m.At(0, 0) > m.At(2, 2):
		s := 2. * math.Sqrt(1.+m.At(0, 0)-m.At(1, 1)-m.At(2, 2))
		q.Real = (m.At(2, 1) - m.At(1, 2)) / s
		q.Imag = 0.25 * s
		q.Jmag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Kmag = (m.At(0, 2) + m.At(2, 0)) / s
	case m.At(1, 1) > m.At(2, 2):
		s := 2. * math.Sqrt(1.+m.At(1, 1)-m.At(0, 0)-m.At(2, 2))
		q.Real = (m.At(0, 2) - m.At(2, 0)) / s
		q.Imag = (m.At(0, 1) + m.At(1, 0)) / s
		q.Jmag = 0.25 * s
		q.Kmag = (m.At(1, 2) + m.At(2, 1)) / s
	default:
		s := 2. * math.Sqrt(1.+m.At(2, 2)-m.At(0, 0)-m.At(1, 1))
		q.Real = (m.At(1, 0) - m.At(0, 1)) / s
		q.Imag = (m.At(0, 2) + m.At(2, 0)) / s
		q.Jmag = (m.At(1, 2) + m.At(2, 1)) / s
		q.Kmag = 0.25 * s
	}
	return q, nil
}

// ClosestRotationMatrix projects an arbitrary 3x3 matrix onto the rotation
// group via its singular value decomposition, R = U*V^T, flipping the sign
// of the last singular direction if the product lands on a reflection.
func ClosestRotationMatrix(m mat.Matrix) (*mat.Dense, error) {
	rows, cols := m.Dims()
	if rows != 3 || cols != 3 {
		return nil, errors.Errorf("input to ClosestRotationMatrix must be a 3x3 matrix, got %dx%d", rows, cols)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return &r, nil
}

// crossProductMatrix returns the skew-symmetric matrix K such that K*q equals
// the cross product p x q for any vector q.
func crossProductMatrix(p r3.Vector) *mat.Dense {
	cross := mat.NewDense(3, 3, nil)
	cross.Set(0, 1, -p.Z)
	cross.Set(0, 2, p.Y)
	cross.Set(1, 0, p.Z)
	cross.Set(1, 2, -p.X)
	cross.Set(2, 0, -p.Y)
	cross.Set(2, 1, p.X)
	return cross
}

func identityMatrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}
