package transform

import "github.com/pkg/errors"

// DistortionType is the name of the distortion model.
type DistortionType string

// BrownConradyDistortionType is for simple lenses of narrow field easily modeled as a pinhole camera.
const BrownConradyDistortionType = DistortionType("brown_conrady")

// A Distorter maps between distorted and undistorted normalized image
// coordinates. The stored polynomial runs in the undistort direction, so
// Undistort is a direct evaluation while Distort must invert it numerically
// and reports whether the inversion converged.
type Distorter interface {
	ModelType() DistortionType
	CheckValid() error
	Parameters() []float64
	Undistort(x, y float64) (float64, float64)
	Distort(x, y float64) (float64, float64, bool)
}

// InvalidDistortionError is used when the distortion_parameters are invalid.
func InvalidDistortionError(msg string) error {
	return errors.Wrapf(errors.New("invalid distortion_parameters"), msg)
}

// NewDistorter returns a Distorter given a valid DistortionType and its parameters.
func NewDistorter(distortionType DistortionType, parameters []float64) (Distorter, error) {
	switch distortionType {
	case BrownConradyDistortionType:
		return NewBrownConrady(parameters)
	default:
		return nil, errors.Errorf("do not know how to parse %q distortion model", distortionType)
	}
}
