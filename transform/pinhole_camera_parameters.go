package transform

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters or other parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, msg)
}

// The basis convention for the whole module: camera forward is +Z, image x
// grows right, image y grows down, and pixel = (Fx*x/z + Ppx, Fy*y/z + Ppy).
// Data produced under a forward-is-X convention must be adapted before entry.

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective
// projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// PinholeCameraModel is the model of a pinhole camera: intrinsics plus an
// optional distortion polynomial.
type PinholeCameraModel struct {
	*PinholeCameraIntrinsics `json:"intrinsic_parameters"`
	Distortion               *BrownConrady `json:"distortion,omitempty"`
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid
// inputs. Validity guarantees the camera matrix is invertible.
func (params *PinholeCameraIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Width <= 0 || params.Height <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid size (%#v, %#v)", params.Width, params.Height))
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	if params.Ppx < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal X point Ppx = %#v", params.Ppx))
	}
	if params.Ppy < 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid principal Y point Ppy = %#v", params.Ppy))
	}
	return nil
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (params *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if params == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, params.Fx)
	cameraMatrix.Set(1, 1, params.Fy)
	cameraMatrix.Set(0, 2, params.Ppx)
	cameraMatrix.Set(1, 2, params.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}

// GetCameraMatrixInverse returns the precomputable inverse of the camera
// matrix, mapping pixel coordinates back to normalized camera coordinates.
func (params *PinholeCameraIntrinsics) GetCameraMatrixInverse() *mat.Dense {
	if params == nil {
		return nil
	}
	inv := mat.NewDense(3, 3, nil)
	inv.Set(0, 0, 1./params.Fx)
	inv.Set(1, 1, 1./params.Fy)
	inv.Set(0, 2, -params.Ppx/params.Fx)
	inv.Set(1, 2, -params.Ppy/params.Fy)
	inv.Set(2, 2, 1)
	return inv
}

// PixelToPoint transforms a pixel with depth to a 3D point. The intrinsics
// parameters should be the ones of the sensor used to obtain the image that
// contains the pixel.
func (params *PinholeCameraIntrinsics) PixelToPoint(x, y, z float64) (float64, float64, float64) {
	xOverZ := (x - params.Ppx) / params.Fx
	yOverZ := (y - params.Ppy) / params.Fy
	return xOverZ * z, yOverZ * z, z
}

// PointToPixel projects a 3D point to a pixel in an image plane. The
// intrinsics parameters should be the ones of the sensor we want to project
// to. Subpixel precision is kept so that reprojection residuals stay smooth.
func (params *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		return (x/z)*params.Fx + params.Ppx, (y/z)*params.Fy + params.Ppy
	}
	// if depth is zero, return negative coordinates so that bounds checks filter the pixel out
	return -1.0, -1.0
}

// ProjectPoint projects a 3D point in camera coordinates to a pixel,
// applying the distortion model when distort is set. The flag is false when
// the point sits at or behind the image plane or the distortion inversion
// did not converge; the returned pixel is then a best effort.
func (model *PinholeCameraModel) ProjectPoint(p r3.Vector, distort bool) (r2.Point, bool) {
	if p.Z <= 0 {
		return r2.Point{}, false
	}
	xn, yn := p.X/p.Z, p.Y/p.Z
	ok := true
	if distort && model.Distortion != nil {
		xn, yn, ok = model.Distortion.Distort(xn, yn)
	}
	return r2.Point{
		X: xn*model.Fx + model.Ppx,
		Y: yn*model.Fy + model.Ppy,
	}, ok
}

// UnprojectPixel maps a pixel at a given depth back to a 3D point in camera
// coordinates, undoing the distortion model when undistort is set.
func (model *PinholeCameraModel) UnprojectPixel(px r2.Point, depth float64, undistort bool) r3.Vector {
	xn := (px.X - model.Ppx) / model.Fx
	yn := (px.Y - model.Ppy) / model.Fy
	if undistort && model.Distortion != nil {
		xn, yn = model.Distortion.Undistort(xn, yn)
	}
	return r3.Vector{X: xn * depth, Y: yn * depth, Z: depth}
}

// NewPinholeCameraIntrinsicsFromJSONFile takes in a file path to a JSON and
// turns it into PinholeCameraIntrinsics.
func NewPinholeCameraIntrinsicsFromJSONFile(jsonPath string) (*PinholeCameraIntrinsics, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	byteValue, err := io.ReadAll(jsonFile)
	if err != nil {
		return nil, errors.Wrap(err, "error reading JSON data")
	}
	intrinsics := &PinholeCameraIntrinsics{}
	if err := json.Unmarshal(byteValue, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}
