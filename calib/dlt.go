// Package calib computes camera calibrations: a generic Levenberg-Marquardt
// solver, a DLT pose initializer, and the pipelines that fit intrinsics and
// extrinsics to 3D/2D correspondences.
package calib

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/microsoft/psi-sub009/spatialmath"
	"github.com/microsoft/psi-sub009/transform"
)

// minPoseCorrespondences is the smallest N for which the 2Nx12 DLT system
// determines a projection matrix.
const minPoseCorrespondences = 6

// CamPose is a rigid world-to-camera transform: p_camera = R*p_world + t.
type CamPose struct {
	Rotation    *mat.Dense
	Translation r3.Vector
}

// NewCamPoseFromMat creates a camera pose from a 3x4 [R|t] matrix.
func NewCamPoseFromMat(pose *mat.Dense) *CamPose {
	rot := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rot.Set(i, j, pose.At(i, j))
		}
	}
	return &CamPose{
		Rotation:    rot,
		Translation: r3.Vector{X: pose.At(0, 3), Y: pose.At(1, 3), Z: pose.At(2, 3)},
	}
}

// TransformPoint maps a world point into the camera frame.
func (cp *CamPose) TransformPoint(p r3.Vector) r3.Vector {
	r := cp.Rotation
	return r3.Vector{
		X: r.At(0, 0)*p.X + r.At(0, 1)*p.Y + r.At(0, 2)*p.Z + cp.Translation.X,
		Y: r.At(1, 0)*p.X + r.At(1, 1)*p.Y + r.At(1, 2)*p.Z + cp.Translation.Y,
		Z: r.At(2, 0)*p.X + r.At(2, 1)*p.Y + r.At(2, 2)*p.Z + cp.Translation.Z,
	}
}

// AxisAngle returns the pose rotation as an R3 axis-angle vector.
func (cp *CamPose) AxisAngle() (r3.Vector, error) {
	return spatialmath.RotationMatrixToAxisAngle(cp.Rotation)
}

// adjustPoseSign fixes the sign ambiguity of the homogeneous DLT solution:
// if the rotation block has negative determinant, the whole matrix flips.
func adjustPoseSign(pose *mat.Dense) *mat.Dense {
	subPose := pose.Slice(0, 3, 0, 3)
	if m := mat.DenseCopyOf(subPose); mat.Det(m) < 0 {
		pose.Scale(-1, pose)
	}
	return pose
}

// EstimatePoseDLT computes an initial world-to-camera pose from N >= 6
// correspondences with the Direct Linear Transform. Image points are
// undistorted and normalized first, so the recovered 3x4 matrix is a scaled
// [R|t]. The result minimizes an algebraic error, not the reprojection
// error, and is intended purely as a seed for nonlinear refinement.
func EstimatePoseDLT(worldPts []r3.Vector, imagePts []r2.Point, model *transform.PinholeCameraModel) (*CamPose, error) {
	if len(worldPts) != len(imagePts) {
		return nil, errors.Errorf("the 2 sets of points don't have the same number of elements, %d vs %d", len(worldPts), len(imagePts))
	}
	if len(worldPts) < minPoseCorrespondences {
		return nil, errors.Errorf("pose estimation needs at least %d correspondences, got %d", minPoseCorrespondences, len(worldPts))
	}

	// two homogeneous projection rows per correspondence
	n := len(worldPts)
	a := mat.NewDense(2*n, 12, nil)
	for i, wp := range worldPts {
		u, v := normalizedUndistorted(imagePts[i], model)
		a.SetRow(2*i, []float64{
			wp.X, wp.Y, wp.Z, 1, 0, 0, 0, 0, -u * wp.X, -u * wp.Y, -u * wp.Z, -u,
		})
		a.SetRow(2*i+1, []float64{
			0, 0, 0, 0, wp.X, wp.Y, wp.Z, 1, -v * wp.X, -v * wp.Y, -v * wp.Z, -v,
		})
	}

	// the null direction of A is the right singular vector with the
	// smallest singular value, the same vector as the smallest eigenvector
	// of A^T*A
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, errors.New("failed to factorize A")
	}
	var v mat.Dense
	svd.VTo(&v)
	p := mat.NewDense(3, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 4; j++ {
			p.Set(i, j, v.At(4*i+j, 11))
		}
	}
	p = adjustPoseSign(p)

	rotCandidate := mat.DenseCopyOf(p.Slice(0, 3, 0, 3))
	rot, err := spatialmath.ClosestRotationMatrix(rotCandidate)
	if err != nil {
		return nil, err
	}

	// the homogeneous solution is determined only up to scale; recover it by
	// comparing Frobenius norms of the candidate block and the true rotation
	scale := mat.Norm(rotCandidate, 2) / mat.Norm(rot, 2)
	translation := r3.Vector{
		X: p.At(0, 3) / scale,
		Y: p.At(1, 3) / scale,
		Z: p.At(2, 3) / scale,
	}
	return &CamPose{Rotation: rot, Translation: translation}, nil
}

// normalizedUndistorted maps a pixel to undistorted normalized camera
// coordinates.
func normalizedUndistorted(px r2.Point, model *transform.PinholeCameraModel) (float64, float64) {
	u := (px.X - model.Ppx) / model.Fx
	v := (px.Y - model.Ppy) / model.Fy
	if model.Distortion != nil {
		u, v = model.Distortion.Undistort(u, v)
	}
	return u, v
}
