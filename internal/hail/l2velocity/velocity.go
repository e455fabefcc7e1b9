// Package l2velocity owns Layer 2 (Velocity) of the hailstone data model:
// instantaneous pixel-per-frame velocity between two detections.
//
// No frame-rate or real-world calibration is applied here.
package l2velocity

import (
	"math"

	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"gonum.org/v1/gonum/floats"
)

// Velocity returns the planar speed from a to b in pixels per frame.
// ok is false when both detections share a frame; callers discard the pair.
// b.Frame > a.Frame is assumed; a negative separation yields a negative value.
func Velocity(a, b l1detections.Detection) (v float64, ok bool) {
	dt := b.Frame - a.Frame
	if dt == 0 {
		return 0, false
	}
	return Distance(a, b) / float64(dt), true
}

// VerticalVelocity returns (b.Y - a.Y) / (b.Frame - a.Frame). Positive values
// mean the object moved down the image.
func VerticalVelocity(a, b l1detections.Detection) (v float64, ok bool) {
	dt := b.Frame - a.Frame
	if dt == 0 {
		return 0, false
	}
	return float64(b.Y-a.Y) / float64(dt), true
}

// Distance is the Euclidean distance between the two centroids in pixels.
func Distance(a, b l1detections.Detection) float64 {
	return floats.Distance(
		[]float64{float64(a.X), float64(a.Y)},
		[]float64{float64(b.X), float64(b.Y)},
		2,
	)
}

// Round2 rounds v to two decimal places, half away from zero.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
