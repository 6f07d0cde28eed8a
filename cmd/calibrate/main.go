// Package main implements a CLI to calibrate a camera from a JSON file of
// 3D/2D correspondences.
package main

import (
	"encoding/json"
	"os"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/microsoft/psi-sub009/calib"
	"github.com/microsoft/psi-sub009/transform"
)

// CalibrationConfig is the JSON input schema: correspondences plus the
// initial intrinsics guess.
type CalibrationConfig struct {
	Points3D       []r3.Vector                       `json:"points_3d"`
	ImagePoints    []r2.Point                        `json:"image_points"`
	InitialGuess   transform.PinholeCameraIntrinsics `json:"initial_guess"`
	DistortionCoef []float64                         `json:"distortion_coefficients,omitempty"`
	SolvePose      bool                              `json:"solve_pose"`
}

// calibrationOutput is the JSON result schema.
type calibrationOutput struct {
	Intrinsics  transform.PinholeCameraIntrinsics `json:"intrinsics"`
	Distortion  []float64                         `json:"distortion_coefficients"`
	Rotation    []float64                         `json:"rotation,omitempty"`
	Translation []float64                         `json:"translation,omitempty"`
	RMS         float64                           `json:"rms_pixels"`
	Status      string                            `json:"status"`
}

func main() {
	app := &cli.App{
		Name:  "calibrate",
		Usage: "fit camera intrinsics (and optionally a pose) to 3D/2D correspondences",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Usage:    "path to the correspondence JSON file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "path for the result JSON, stdout when empty",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log per-iteration optimizer diagnostics",
			},
		},
		Action: func(c *cli.Context) error {
			var logger golog.Logger
			if c.Bool("debug") {
				logger = golog.NewDebugLogger("calibrate")
			} else {
				logger = golog.NewDevelopmentLogger("calibrate")
			}
			return calibrate(c.String("config"), c.String("out"), logger)
		},
	}
	if err := app.Run(os.Args); err != nil {
		golog.Global().Fatal(err)
	}
}

func calibrate(configPath, outPath string, logger golog.Logger) error {
	//nolint:gosec
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "error reading config file")
	}
	var conf CalibrationConfig
	if err := json.Unmarshal(raw, &conf); err != nil {
		return errors.Wrap(err, "error parsing config file")
	}
	distortion, err := transform.NewBrownConrady(conf.DistortionCoef)
	if err != nil {
		return err
	}
	guess := &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &conf.InitialGuess,
		Distortion:              distortion,
	}

	var result *calib.CalibrationResult
	if conf.SolvePose {
		result, err = calib.CalibrateIntrinsicsExtrinsics(conf.Points3D, conf.ImagePoints, guess, logger)
	} else {
		result, err = calib.CalibrateIntrinsics(conf.Points3D, conf.ImagePoints, guess, logger)
	}
	if err != nil {
		return err
	}
	logger.Infow("calibration finished", "status", result.Status.String(), "rms_pixels", result.RMS)

	out := calibrationOutput{
		Intrinsics: result.Intrinsics,
		Distortion: result.Distortion.Parameters(),
		RMS:        result.RMS,
		Status:     result.Status.String(),
	}
	if result.Pose != nil {
		out.Rotation = result.Pose.Rotation.RawMatrix().Data
		out.Translation = []float64{
			result.Pose.Translation.X,
			result.Pose.Translation.Y,
			result.Pose.Translation.Z,
		}
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	if outPath == "" {
		_, err = os.Stdout.Write(append(encoded, '\n'))
		return err
	}
	return os.WriteFile(outPath, encoded, 0o644)
}
