package main

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/microsoft/psi-sub009/transform"
)

func TestCalibrateEndToEnd(t *testing.T) {
	truth := &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
		},
		Distortion: &transform.BrownConrady{RadialK1: 0.01, RadialK2: 0.002},
	}
	rnd := rand.New(rand.NewSource(11))
	conf := CalibrationConfig{
		InitialGuess: transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 540, Fy: 460, Ppx: 300, Ppy: 260,
		},
	}
	for i := 0; i < 30; i++ {
		p := r3.Vector{
			X: rnd.Float64() - 0.5,
			Y: rnd.Float64() - 0.5,
			Z: 1. + 3.*rnd.Float64(),
		}
		px, ok := truth.ProjectPoint(p, true)
		test.That(t, ok, test.ShouldBeTrue)
		conf.Points3D = append(conf.Points3D, p)
		conf.ImagePoints = append(conf.ImagePoints, px)
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	outPath := filepath.Join(dir, "result.json")
	raw, err := json.Marshal(conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(configPath, raw, 0o644), test.ShouldBeNil)

	logger := golog.NewTestLogger(t)
	test.That(t, calibrate(configPath, outPath, logger), test.ShouldBeNil)

	encoded, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	var out calibrationOutput
	test.That(t, json.Unmarshal(encoded, &out), test.ShouldBeNil)
	test.That(t, out.RMS, test.ShouldBeLessThan, 0.01)
	test.That(t, out.Intrinsics.Fx, test.ShouldAlmostEqual, 500., 2.5)
	test.That(t, out.Intrinsics.Fy, test.ShouldAlmostEqual, 500., 2.5)
	test.That(t, out.Rotation, test.ShouldBeNil)

	// the round-tripped result parses back into a usable model
	distortion, err := transform.NewBrownConrady(out.Distortion)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, distortion.RadialK1, test.ShouldAlmostEqual, 0.01, 1e-3)
}

func TestCalibrateBadInputs(t *testing.T) {
	logger := golog.NewTestLogger(t)
	err := calibrate(filepath.Join(t.TempDir(), "missing.json"), "", logger)
	test.That(t, err, test.ShouldNotBeNil)

	badPath := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(badPath, []byte("{"), 0o644), test.ShouldBeNil)
	err = calibrate(badPath, "", logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "parsing")
}

func TestCalibrateSolvePose(t *testing.T) {
	// a pose solve reports rotation and translation in the output
	truth := &transform.PinholeCameraModel{
		PinholeCameraIntrinsics: &transform.PinholeCameraIntrinsics{
			Width: 640, Height: 480,
			Fx: 500, Fy: 500, Ppx: 320, Ppy: 240,
		},
	}
	conf := CalibrationConfig{
		InitialGuess: *truth.PinholeCameraIntrinsics,
		SolvePose:    true,
	}
	rnd := rand.New(rand.NewSource(23))
	for i := 0; i < 30; i++ {
		p := r3.Vector{
			X: rnd.Float64() - 0.5,
			Y: rnd.Float64() - 0.5,
			Z: 1. + 3.*rnd.Float64(),
		}
		px, ok := truth.ProjectPoint(p, true)
		test.That(t, ok, test.ShouldBeTrue)
		// identity pose: world coordinates equal camera coordinates
		conf.Points3D = append(conf.Points3D, p)
		conf.ImagePoints = append(conf.ImagePoints, r2.Point{X: px.X, Y: px.Y})
	}

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.json")
	outPath := filepath.Join(dir, "result.json")
	raw, err := json.Marshal(conf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, os.WriteFile(configPath, raw, 0o644), test.ShouldBeNil)

	logger := golog.NewTestLogger(t)
	test.That(t, calibrate(configPath, outPath, logger), test.ShouldBeNil)

	encoded, err := os.ReadFile(outPath)
	test.That(t, err, test.ShouldBeNil)
	var out calibrationOutput
	test.That(t, json.Unmarshal(encoded, &out), test.ShouldBeNil)
	test.That(t, out.RMS, test.ShouldBeLessThan, 0.01)
	test.That(t, len(out.Rotation), test.ShouldEqual, 9)
	test.That(t, len(out.Translation), test.ShouldEqual, 3)
	// identity pose: the recovered translation is near zero
	for _, v := range out.Translation {
		test.That(t, v, test.ShouldAlmostEqual, 0., 1e-3)
	}
}
