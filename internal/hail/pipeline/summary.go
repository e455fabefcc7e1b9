package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/hailstone.report/internal/hail/storage/sqlite"
	"gonum.org/v1/gonum/stat"
)

// Summary reports the counts of one Run.
//
// Candidates are triples for ModeUnlabeled, identity groups for
// ModeLabeled and detections for ModeLive.
type Summary struct {
	RunID     string
	Mode      Mode
	StartedAt time.Time
	Duration  time.Duration

	ValidLines   int
	SkippedLines int

	Considered int64
	Accepted   int64
	Rejected   int64
	ByReason   map[string]int64

	// Velocity statistics over fragment velocities (unlabeled) or vertical
	// velocity samples of accepted trajectories (labeled), in px/frame.
	VelocitySamples int
	MeanVelocity    float64
	StdDevVelocity  float64
}

// Empty reports the "no results" outcome: no valid detections were parsed.
func (s *Summary) Empty() bool { return s.ValidLines == 0 }

func (s *Summary) setVelocityStats(vs []float64) {
	s.VelocitySamples = len(vs)
	switch len(vs) {
	case 0:
	case 1:
		s.MeanVelocity = vs[0]
	default:
		s.MeanVelocity, s.StdDevVelocity = stat.MeanStdDev(vs, nil)
	}
}

func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s mode=%s lines: valid=%d skipped=%d; candidates: accepted=%d rejected=%d (of %d)",
		s.RunID, s.Mode, s.ValidLines, s.SkippedLines, s.Accepted, s.Rejected, s.Considered)
	if s.VelocitySamples > 0 {
		fmt.Fprintf(&b, "; velocity mean=%.2f sd=%.2f px/frame (n=%d)", s.MeanVelocity, s.StdDevVelocity, s.VelocitySamples)
	}
	if s.Empty() {
		b.WriteString("; no valid detections")
	}
	return b.String()
}

func (s *Summary) record(opts Options) sqlite.RunRecord {
	r := sqlite.RunRecord{
		RunID:        s.RunID,
		Mode:         string(s.Mode),
		InputPath:    opts.InputPath,
		CreatedAt:    s.StartedAt,
		ValidLines:   s.ValidLines,
		SkippedLines: s.SkippedLines,
		Considered:   s.Considered,
		Accepted:     s.Accepted,
		Rejected:     s.Rejected,
		ParamsJSON:   paramsJSON(opts.Tolerances),
	}
	if s.VelocitySamples > 0 {
		mean, sd := s.MeanVelocity, s.StdDevVelocity
		r.MeanVelocity = &mean
		r.StdDevVelocity = &sd
	}
	return r
}
