package l3trajectories

import "github.com/banshee-data/hailstone.report/internal/hail/l1detections"

// FallSession holds the previous frame's positions for live falling
// detection. Positions are keyed by X column: a detection is falling when
// the previous frame had a detection at the same X and Y has since grown by
// at least Threshold pixels.
//
// A FallSession is not safe for concurrent use; run one per stream.
type FallSession struct {
	Threshold int

	prev      map[int]int // x -> y
	lastFrame int
	started   bool
}

// NewFallSession returns an empty session.
func NewFallSession(threshold int) *FallSession {
	return &FallSession{Threshold: threshold, prev: make(map[int]int)}
}

// ObserveFrame records the detections of one frame and returns those that
// are falling relative to the previous frame. Skipping frame numbers means
// the skipped frames had no detections, which clears the stored positions.
func (s *FallSession) ObserveFrame(frame int, dets []l1detections.Detection) []l1detections.Detection {
	if s.started && frame != s.lastFrame+1 {
		clear(s.prev)
	}
	s.started = true
	s.lastFrame = frame

	var falling []l1detections.Detection
	next := make(map[int]int, len(dets))
	for _, d := range dets {
		if py, ok := s.prev[d.X]; ok && d.Y-py >= s.Threshold {
			falling = append(falling, d)
		}
		next[d.X] = d.Y
	}
	s.prev = next
	return falling
}

// Reset forgets all stored positions.
func (s *FallSession) Reset() {
	clear(s.prev)
	s.started = false
}

// ReplayFrames feeds an unlabeled detection log through a fresh session,
// grouping consecutive detections with the same frame number.
func ReplayFrames(dets []l1detections.Detection, threshold int) []l1detections.Detection {
	s := NewFallSession(threshold)
	var out []l1detections.Detection
	for start := 0; start < len(dets); {
		end := start + 1
		for end < len(dets) && dets[end].Frame == dets[start].Frame {
			end++
		}
		out = append(out, s.ObserveFrame(dets[start].Frame, dets[start:end])...)
		start = end
	}
	return out
}
