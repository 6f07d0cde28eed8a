// Package rimage holds the depth surface type consumed by the depth-to-color
// correspondence queries.
package rimage

import (
	"image"

	"github.com/pkg/errors"
)

// DepthMap is a 2D grid of per-pixel depth samples. Samples are stored in the
// same length unit as the 3D points handed to the calibration core, and a
// zero sample means "no data" at that pixel.
type DepthMap struct {
	width  int
	height int

	data []float64
}

// NewEmptyDepthMap returns an all-zero depth map of the given dimensions.
func NewEmptyDepthMap(width, height int) *DepthMap {
	return &DepthMap{
		width:  width,
		height: height,
		data:   make([]float64, width*height),
	}
}

// NewDepthMapFromData wraps a row-major sample slice. The slice length must
// equal width*height.
func NewDepthMapFromData(width, height int, data []float64) (*DepthMap, error) {
	if len(data) != width*height {
		return nil, errors.Errorf("data slice of length %d does not fit a %dx%d depth map", len(data), width, height)
	}
	return &DepthMap{width: width, height: height, data: data}, nil
}

// HasData reports whether the map holds any samples at all.
func (dm *DepthMap) HasData() bool {
	return dm.width > 0 && dm.data != nil
}

// Width returns the number of sample columns.
func (dm *DepthMap) Width() int {
	return dm.width
}

// Height returns the number of sample rows.
func (dm *DepthMap) Height() int {
	return dm.height
}

// Bounds returns the pixel rectangle covered by the map.
func (dm *DepthMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, dm.width, dm.height)
}

// Contains reports whether (x, y) indexes a sample inside the map.
func (dm *DepthMap) Contains(x, y int) bool {
	return x >= 0 && x < dm.width && y >= 0 && y < dm.height
}

// GetDepth returns the sample at (x, y).
func (dm *DepthMap) GetDepth(x, y int) float64 {
	return dm.data[y*dm.width+x]
}

// Get returns the sample at an image point.
func (dm *DepthMap) Get(p image.Point) float64 {
	return dm.data[p.Y*dm.width+p.X]
}

// Set writes the sample at (x, y).
func (dm *DepthMap) Set(x, y int, val float64) {
	dm.data[y*dm.width+x] = val
}
