package l3trajectories

// RejectReason records the first check a candidate failed.
type RejectReason int

const (
	Accepted RejectReason = iota

	// Triple checks, in evaluation order.
	RejectOrdering
	RejectMonotonicity
	RejectFrameGap
	RejectRadius
	RejectDegenerateVelocity
	RejectVelocityDeviation

	// Sequence checks.
	RejectTooFewDetections
	RejectAscent
	RejectNoMovement
	RejectTooFewSamples
)

var reasonNames = map[RejectReason]string{
	Accepted:                 "accepted",
	RejectOrdering:           "frame_ordering",
	RejectMonotonicity:       "upward_jitter",
	RejectFrameGap:           "frame_gap",
	RejectRadius:             "radius_change",
	RejectDegenerateVelocity: "degenerate_velocity",
	RejectVelocityDeviation:  "velocity_deviation",
	RejectTooFewDetections:   "too_few_detections",
	RejectAscent:             "ascent",
	RejectNoMovement:         "no_movement",
	RejectTooFewSamples:      "too_few_velocity_samples",
}

func (r RejectReason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}
