package calib

import (
	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/microsoft/psi-sub009/spatialmath"
	"github.com/microsoft/psi-sub009/transform"
)

// minIntrinsicsCorrespondences is the smallest N that determines the 6
// intrinsic parameters (each correspondence contributes 2 residuals).
const minIntrinsicsCorrespondences = 4

// Parameter vector layouts. Packing on input and unpacking on output use
// the same order.
const (
	numIntrinsicParams = 6  // fx, fy, cx, cy, k1, k2
	numFullParams      = 12 // intrinsics + rx, ry, rz, tx, ty, tz
)

// CalibrationResult is the outcome of a calibration run. A non-Running
// status other than the usual ReductionStepTooSmall convergence may mean the
// fit is poor; the RMS reprojection error (in pixels) is the quality gauge
// and accept/reject policy stays with the caller.
type CalibrationResult struct {
	Intrinsics transform.PinholeCameraIntrinsics
	Distortion *transform.BrownConrady
	Pose       *CamPose
	RMS        float64
	Status     OptimizationStatus
}

// CalibrateIntrinsics fits focal lengths, principal point and the two
// leading radial distortion coefficients to correspondences whose 3D points
// are already in camera-local coordinates. The initial guess supplies the
// image size and the optimizer seed.
func CalibrateIntrinsics(
	cameraPts []r3.Vector,
	imagePts []r2.Point,
	guess *transform.PinholeCameraModel,
	logger golog.Logger,
) (*CalibrationResult, error) {
	if len(cameraPts) != len(imagePts) {
		return nil, errors.Errorf("the 2 sets of points don't have the same number of elements, %d vs %d", len(cameraPts), len(imagePts))
	}
	if len(cameraPts) < minIntrinsicsCorrespondences {
		return nil, errors.Errorf("intrinsics calibration needs at least %d correspondences, got %d", minIntrinsicsCorrespondences, len(cameraPts))
	}
	if err := guess.CheckValid(); err != nil {
		return nil, err
	}

	residual := func(p []float64) []float64 {
		model := intrinsicsFromParams(p, guess.Width, guess.Height)
		res, _ := reprojectionResiduals(model, cameraPts, imagePts, nil)
		return res
	}
	lm := NewLevenbergMarquardt(residual, nil, logger)
	state := lm.Minimize(packIntrinsics(guess))

	model := intrinsicsFromParams(state.Params, guess.Width, guess.Height)
	if _, failed := reprojectionResiduals(model, cameraPts, imagePts, nil); failed > 0 {
		logger.Warnw("projections failed at the final parameters, RMS includes best-effort pixels",
			"failed", failed, "total", len(cameraPts))
	}
	logger.Debugw("intrinsics calibration finished",
		"status", state.Status.String(), "rms", state.RMS, "iterations", state.Iterations)
	return &CalibrationResult{
		Intrinsics: *model.PinholeCameraIntrinsics,
		Distortion: model.Distortion,
		RMS:        state.RMS,
		Status:     state.Status,
	}, nil
}

// CalibrateIntrinsicsExtrinsics fits intrinsics, distortion and a rigid
// world-to-camera pose to correspondences whose 3D points are in world
// coordinates. A DLT solution from the initial intrinsics guess seeds the
// pose parameters.
func CalibrateIntrinsicsExtrinsics(
	worldPts []r3.Vector,
	imagePts []r2.Point,
	guess *transform.PinholeCameraModel,
	logger golog.Logger,
) (*CalibrationResult, error) {
	if len(worldPts) != len(imagePts) {
		return nil, errors.Errorf("the 2 sets of points don't have the same number of elements, %d vs %d", len(worldPts), len(imagePts))
	}
	if err := guess.CheckValid(); err != nil {
		return nil, err
	}

	seed, err := EstimatePoseDLT(worldPts, imagePts, guess)
	if err != nil {
		return nil, err
	}
	aa, err := seed.AxisAngle()
	if err != nil {
		return nil, err
	}

	initial := make([]float64, numFullParams)
	copy(initial, packIntrinsics(guess))
	initial[6], initial[7], initial[8] = aa.X, aa.Y, aa.Z
	initial[9], initial[10], initial[11] = seed.Translation.X, seed.Translation.Y, seed.Translation.Z

	residual := func(p []float64) []float64 {
		model := intrinsicsFromParams(p, guess.Width, guess.Height)
		pose := poseFromParams(p)
		res, _ := reprojectionResiduals(model, worldPts, imagePts, pose)
		return res
	}
	lm := NewLevenbergMarquardt(residual, nil, logger)
	state := lm.Minimize(initial)

	model := intrinsicsFromParams(state.Params, guess.Width, guess.Height)
	pose := poseFromParams(state.Params)
	if _, failed := reprojectionResiduals(model, worldPts, imagePts, pose); failed > 0 {
		logger.Warnw("projections failed at the final parameters, RMS includes best-effort pixels",
			"failed", failed, "total", len(worldPts))
	}
	logger.Debugw("intrinsics+extrinsics calibration finished",
		"status", state.Status.String(), "rms", state.RMS, "iterations", state.Iterations)
	return &CalibrationResult{
		Intrinsics: *model.PinholeCameraIntrinsics,
		Distortion: model.Distortion,
		Pose:       pose,
		RMS:        state.RMS,
		Status:     state.Status,
	}, nil
}

// reprojectionResiduals interleaves the pixel residuals (dx0, dy0, dx1, ...)
// of projecting every 3D point through the model, mapping through pose first
// when one is given. Failed projections (behind-camera points, non-converged
// distortion inversions) fall back to the best-effort pixel the model returns
// and are tallied so the final evaluation can report them.
func reprojectionResiduals(
	model *transform.PinholeCameraModel,
	pts []r3.Vector,
	imagePts []r2.Point,
	pose *CamPose,
) ([]float64, int) {
	out := make([]float64, 0, 2*len(pts))
	failed := 0
	for i, p := range pts {
		if pose != nil {
			p = pose.TransformPoint(p)
		}
		px, ok := model.ProjectPoint(p, true)
		if !ok {
			failed++
		}
		out = append(out, imagePts[i].X-px.X, imagePts[i].Y-px.Y)
	}
	return out, failed
}

// packIntrinsics flattens the guess into [fx, fy, cx, cy, k1, k2].
func packIntrinsics(model *transform.PinholeCameraModel) []float64 {
	k1, k2 := 0., 0.
	if model.Distortion != nil {
		k1, k2 = model.Distortion.RadialK1, model.Distortion.RadialK2
	}
	return []float64{model.Fx, model.Fy, model.Ppx, model.Ppy, k1, k2}
}

// intrinsicsFromParams unpacks the leading 6 parameters into a camera model,
// mirroring packIntrinsics.
func intrinsicsFromParams(p []float64, width, height int) *transform.PinholeCameraModel {
	return &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width:  width,
			Height: height,
			Fx:     p[0],
			Fy:     p[1],
			Ppx:    p[2],
			Ppy:    p[3],
		},
		Distortion: &transform.BrownConrady{RadialK1: p[4], RadialK2: p[5]},
	}
}

// poseFromParams rebuilds the rigid transform from the trailing 6 parameters
// (axis-angle rotation, then translation).
func poseFromParams(p []float64) *CamPose {
	rot := spatialmath.AxisAngleToRotationMatrix(r3.Vector{X: p[6], Y: p[7], Z: p[8]})
	return &CamPose{
		Rotation:    rot,
		Translation: r3.Vector{X: p[9], Y: p[10], Z: p[11]},
	}
}
