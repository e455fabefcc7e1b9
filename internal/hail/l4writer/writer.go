// Package l4writer owns Layer 4 (Output) of the hailstone data model:
// serialising accepted fragments and trajectories to the textual log format.
//
// Field order and number formatting are an external contract; downstream
// tools parse these lines.
package l4writer

import (
	"bufio"
	"fmt"
	"io"

	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"github.com/banshee-data/hailstone.report/internal/hail/l3trajectories"
)

// FragmentLine formats one member of a fragment.
func FragmentLine(d l1detections.Detection, velocity float64, fragmentID int) string {
	return fmt.Sprintf("Frame %d: X=%d, Y=%d, Radius=%d, Velocity=%.2f, DetectionNum=%d",
		d.Frame, d.X, d.Y, d.Radius, velocity, fragmentID)
}

// TrajectoryLine formats one member of a labeled trajectory.
func TrajectoryLine(objectID string, d l1detections.Detection) string {
	return fmt.Sprintf("Frame %d: ID=%s, X=%d, Y=%d, Radius=%d", d.Frame, objectID, d.X, d.Y, d.Radius)
}

// WriteFragments writes three lines per fragment, in fragment order.
func WriteFragments(w io.Writer, frags []l3trajectories.Fragment) error {
	bw := bufio.NewWriter(w)
	for _, f := range frags {
		for _, d := range f.Detections {
			if _, err := fmt.Fprintln(bw, FragmentLine(d, f.Velocity, f.ID)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteTrajectories writes one line per retained detection, grouped by trajectory.
func WriteTrajectories(w io.Writer, trajs []l3trajectories.Trajectory) error {
	bw := bufio.NewWriter(w)
	for _, t := range trajs {
		for _, d := range t.Detections {
			if _, err := fmt.Fprintln(bw, TrajectoryLine(t.ObjectID, d)); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteDetections writes plain detection lines, as produced by the detector.
func WriteDetections(w io.Writer, dets []l1detections.Detection) error {
	bw := bufio.NewWriter(w)
	for _, d := range dets {
		if _, err := fmt.Fprintln(bw, d.String()); err != nil {
			return err
		}
	}
	return bw.Flush()
}
