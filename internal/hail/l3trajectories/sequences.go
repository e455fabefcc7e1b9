package l3trajectories

import (
	"cmp"
	"math"
	"slices"

	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"github.com/banshee-data/hailstone.report/internal/hail/l2velocity"
)

// Trajectory is an accepted, frame-ordered group of detections sharing one
// external identity.
type Trajectory struct {
	ObjectID   string
	Detections []l1detections.Detection
	// Velocities holds the vertical velocity of each consecutive pair (px/frame).
	Velocities []float64
}

// SequenceResult is the outcome of ValidateSequences.
type SequenceResult struct {
	Accepted []Trajectory // input group order
	Rejected map[string]RejectReason
	// Collapsed counts detections dropped because their group already had
	// a detection in the same frame.
	Collapsed int
}

// ValidateSequences checks each identity group independently. Rejected
// groups are dropped whole.
func ValidateSequences(groups []l1detections.Group, tol Tolerances) *SequenceResult {
	res := &SequenceResult{Rejected: make(map[string]RejectReason)}
	for _, g := range groups {
		traj, collapsed, reason := ValidateSequence(g, tol)
		res.Collapsed += collapsed
		if reason != Accepted {
			res.Rejected[g.ObjectID] = reason
			continue
		}
		res.Accepted = append(res.Accepted, traj)
	}
	return res
}

// ValidateSequence sorts one group by frame, collapses repeated frames
// (keeping the first detection of each frame), and accepts it when it has at
// least MinDetections members, moved vertically by more than
// MaxPositionalDeviation between some pair, yielded at least two velocity
// samples, and those samples vary within MaxVelocityDeviation.
//
// Collapsing happens before the MinDetections check, so a later detection
// in an already-seen frame never contributes a velocity sample. This differs
// from skipping only the zero-interval pair, where the next sample would be
// measured from the later duplicate.
func ValidateSequence(g l1detections.Group, tol Tolerances) (Trajectory, int, RejectReason) {
	sorted := slices.Clone(g.Detections)
	slices.SortStableFunc(sorted, func(a, b l1detections.Detection) int {
		return cmp.Compare(a.Frame, b.Frame)
	})
	dets := slices.CompactFunc(sorted, func(a, b l1detections.Detection) bool {
		return a.Frame == b.Frame
	})
	collapsed := len(g.Detections) - len(dets)

	if len(dets) < tol.MinDetections {
		return Trajectory{}, collapsed, RejectTooFewDetections
	}

	velocities := make([]float64, 0, len(dets)-1)
	moved := false
	for i := 1; i < len(dets); i++ {
		prev, cur := dets[i-1], dets[i]
		v, ok := l2velocity.VerticalVelocity(prev, cur)
		if !ok {
			continue
		}
		dy := cur.Y - prev.Y
		if tol.RequireDescent && dy < 0 {
			return Trajectory{}, collapsed, RejectAscent
		}
		if math.Abs(float64(dy)) > tol.MaxPositionalDeviation {
			moved = true
		}
		velocities = append(velocities, v)
	}

	switch {
	case !moved:
		return Trajectory{}, collapsed, RejectNoMovement
	case len(velocities) < 2:
		return Trajectory{}, collapsed, RejectTooFewSamples
	case !stable(velocities, tol.MaxVelocityDeviation, tol.Stability):
		return Trajectory{}, collapsed, RejectVelocityDeviation
	}

	return Trajectory{ObjectID: g.ObjectID, Detections: dets, Velocities: velocities}, collapsed, Accepted
}
