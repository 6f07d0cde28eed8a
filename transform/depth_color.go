package transform

import (
	"encoding/json"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/microsoft/psi-sub009/rimage"
)

// Extrinsics is a rigid transform between two camera frames: a row-major 3x3
// rotation matrix and a translation vector in the same length unit as the 3D
// points. The rotation block must be orthonormal with determinant +1.
type Extrinsics struct {
	RotationMatrix    []float64 `json:"rotation"`
	TranslationVector []float64 `json:"translation"`
}

// extrinsicsDetTolerance bounds how far the rotation determinant may drift
// from +1 before the extrinsics are rejected.
const extrinsicsDetTolerance = 1e-6

// CheckValid checks if the fields for Extrinsics have valid inputs.
func (params *Extrinsics) CheckValid() error {
	if params == nil {
		return errors.New("pointer to Extrinsics is nil")
	}
	if len(params.RotationMatrix) != 9 {
		return errors.Errorf("rotation matrix must have 9 elements, got %d", len(params.RotationMatrix))
	}
	if len(params.TranslationVector) != 3 {
		return errors.Errorf("translation vector must have 3 elements, got %d", len(params.TranslationVector))
	}
	det := mat.Det(mat.NewDense(3, 3, params.RotationMatrix))
	if math.Abs(det-1.) > extrinsicsDetTolerance {
		return errors.Errorf("rotation matrix must be orthonormal with determinant +1, got determinant %v", det)
	}
	return nil
}

// TransformPointToPoint applies a rigid body transform specified as the
// Extrinsics to a point: R*p + t.
func (params *Extrinsics) TransformPointToPoint(x, y, z float64) r3.Vector {
	rm := params.RotationMatrix
	t := params.TranslationVector
	return r3.Vector{
		X: rm[0]*x + rm[1]*y + rm[2]*z + t[0],
		Y: rm[3]*x + rm[4]*y + rm[5]*z + t[1],
		Z: rm[6]*x + rm[7]*y + rm[8]*z + t[2],
	}
}

// Inverse returns the extrinsics of the opposite direction: R^T, -R^T*t.
func (params *Extrinsics) Inverse() Extrinsics {
	rm := params.RotationMatrix
	t := params.TranslationVector
	rt := []float64{
		rm[0], rm[3], rm[6],
		rm[1], rm[4], rm[7],
		rm[2], rm[5], rm[8],
	}
	return Extrinsics{
		RotationMatrix: rt,
		TranslationVector: []float64{
			-(rt[0]*t[0] + rt[1]*t[1] + rt[2]*t[2]),
			-(rt[3]*t[0] + rt[4]*t[1] + rt[5]*t[2]),
			-(rt[6]*t[0] + rt[7]*t[1] + rt[8]*t[2]),
		},
	}
}

// DepthColorIntrinsicsExtrinsics holds the intrinsics for a color camera, a
// depth camera, and the depth-to-color rigid transform between them. The
// aggregate is read-only to the calibration core.
type DepthColorIntrinsicsExtrinsics struct {
	ColorCamera     PinholeCameraIntrinsics `json:"color"`
	ColorDistortion *BrownConrady           `json:"color_distortion,omitempty"`
	DepthCamera     PinholeCameraIntrinsics `json:"depth"`
	DepthDistortion *BrownConrady           `json:"depth_distortion,omitempty"`
	ExtrinsicD2C    Extrinsics              `json:"extrinsics_depth_to_color"`
}

// CheckValid checks if all the sub-fields form a valid aggregate.
func (dcie *DepthColorIntrinsicsExtrinsics) CheckValid() error {
	if dcie == nil {
		return errors.New("pointer to DepthColorIntrinsicsExtrinsics is nil")
	}
	return multierr.Combine(
		dcie.ColorCamera.CheckValid(),
		dcie.DepthCamera.CheckValid(),
		dcie.ExtrinsicD2C.CheckValid(),
	)
}

// NewEmptyDepthColorIntrinsicsExtrinsics creates an zero initialized DepthColorIntrinsicsExtrinsics.
func NewEmptyDepthColorIntrinsicsExtrinsics() *DepthColorIntrinsicsExtrinsics {
	return &DepthColorIntrinsicsExtrinsics{
		ColorCamera: PinholeCameraIntrinsics{},
		DepthCamera: PinholeCameraIntrinsics{},
		ExtrinsicD2C: Extrinsics{
			RotationMatrix:    []float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
			TranslationVector: []float64{0, 0, 0},
		},
	}
}

// NewDepthColorIntrinsicsExtrinsicsFromBytes reads a JSON byte stream and
// turns it into DepthColorIntrinsicsExtrinsics.
func NewDepthColorIntrinsicsExtrinsicsFromBytes(byteJSON []byte) (*DepthColorIntrinsicsExtrinsics, error) {
	intrinsics := NewEmptyDepthColorIntrinsicsExtrinsics()
	if err := json.Unmarshal(byteJSON, intrinsics); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	return intrinsics, nil
}

// NewDepthColorIntrinsicsExtrinsicsFromJSONFile takes in a file path to a
// JSON and turns it into DepthColorIntrinsicsExtrinsics.
func NewDepthColorIntrinsicsExtrinsicsFromJSONFile(jsonPath string) (*DepthColorIntrinsicsExtrinsics, error) {
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
	return NewDepthColorIntrinsicsExtrinsicsFromBytes(byteValue)
}

// DepthPixelToColorPixel takes a pixel of the depth map at a given depth and
// projects it into the color camera's image plane.
func (dcie *DepthColorIntrinsicsExtrinsics) DepthPixelToColorPixel(dx, dy, dz float64) (float64, float64, float64) {
	px, py, pz := dcie.DepthCamera.PixelToPoint(dx, dy, dz)
	cp := dcie.ExtrinsicD2C.TransformPointToPoint(px, py, pz)
	cx, cy := dcie.ColorCamera.PointToPixel(cp.X, cp.Y, cp.Z)
	return cx, cy, cp.Z
}

// ColorPixelToDepthPoint resolves a color-camera pixel into a 3D point in the
// depth camera's frame by marching the pixel's viewing ray through the depth
// surface. The flag is false when the ray never crosses the surface within
// the default maximum range.
func (dcie *DepthColorIntrinsicsExtrinsics) ColorPixelToDepthPoint(px r2.Point, dm *rimage.DepthMap) (r3.Vector, bool) {
	colorModel := &PinholeCameraModel{&dcie.ColorCamera, dcie.ColorDistortion}
	depthModel := &PinholeCameraModel{&dcie.DepthCamera, dcie.DepthDistortion}

	// viewing ray of the pixel in the color frame, then moved into the depth frame
	far := colorModel.UnprojectPixel(px, DefaultMaxRayLength, true)
	c2d := dcie.ExtrinsicD2C.Inverse()
	origin := c2d.TransformPointToPoint(0, 0, 0)
	target := c2d.TransformPointToPoint(far.X, far.Y, far.Z)

	return IntersectRayWithDepthMap(origin, target, dm, depthModel, DepthAlongAxis, DefaultRayStep, DefaultMaxRayLength)
}
