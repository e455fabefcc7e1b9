package l3trajectories

import (
	"fmt"
	"math"

	"github.com/banshee-data/hailstone.report/internal/config"
)

// Stability selects how velocity samples are compared.
type Stability int

const (
	// StabilityAdjacent compares each sample with the one before it.
	StabilityAdjacent Stability = iota
	// StabilityFirst compares each sample with the first sample.
	StabilityFirst
)

func (s Stability) String() string {
	switch s {
	case StabilityAdjacent:
		return config.StabilityAdjacent
	case StabilityFirst:
		return config.StabilityFirst
	default:
		return fmt.Sprintf("Stability(%d)", int(s))
	}
}

// Tolerances holds the thresholds consumed by both validation strategies.
type Tolerances struct {
	MaxRadiusDiff          int     // max |Δradius| between consecutive members (px)
	MaxVelocityDeviation   float64 // max |Δv| between compared velocity samples (px/frame)
	MinFrameGap            int     // min frame spacing inside a triple
	MinDetections          int     // min members of a labeled trajectory
	MaxPositionalDeviation float64 // |Δy| above which a labeled object counts as moving (px)

	Stability      Stability
	RequireDescent bool // reject labeled trajectories with any upward step

	MaxTripleDetections int  // exhaustive search refuses larger inputs; 0 = unbounded
	PruneTriples        bool // enumerate triples along a pair-compatibility graph

	FallThreshold int // min downward Δy per frame for FallSession
}

// DefaultTolerances returns the built-in defaults.
func DefaultTolerances() Tolerances {
	return TolerancesFromConfig(config.EmptyToleranceConfig())
}

// TolerancesFromConfig builds Tolerances from a loaded ToleranceConfig.
func TolerancesFromConfig(cfg *config.ToleranceConfig) Tolerances {
	stability := StabilityAdjacent
	if cfg.GetVelocityStability() == config.StabilityFirst {
		stability = StabilityFirst
	}
	return Tolerances{
		MaxRadiusDiff:          cfg.GetMaxRadiusDiff(),
		MaxVelocityDeviation:   cfg.GetMaxVelocityDeviation(),
		MinFrameGap:            cfg.GetMinFrameGap(),
		MinDetections:          cfg.GetMinDetections(),
		MaxPositionalDeviation: cfg.GetMaxPositionalDeviation(),
		Stability:              stability,
		RequireDescent:         cfg.GetRequireDescent(),
		MaxTripleDetections:    cfg.GetMaxTripleDetections(),
		PruneTriples:           cfg.GetPruneTriples(),
		FallThreshold:          cfg.GetFallThreshold(),
	}
}

// stable reports whether the velocity samples vary within maxDev under mode.
// A difference equal to maxDev is accepted.
func stable(vs []float64, maxDev float64, mode Stability) bool {
	for i := 1; i < len(vs); i++ {
		ref := vs[i-1]
		if mode == StabilityFirst {
			ref = vs[0]
		}
		if math.Abs(vs[i]-ref) > maxDev {
			return false
		}
	}
	return true
}
