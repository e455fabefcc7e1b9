package l3trajectories

import (
	"errors"
	"fmt"
	"iter"

	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"github.com/banshee-data/hailstone.report/internal/hail/l2velocity"
)

// ErrInputTooLarge is returned by the unpruned search when the detection
// count exceeds Tolerances.MaxTripleDetections.
var ErrInputTooLarge = errors.New("too many detections for exhaustive triple search")

// Fragment is one accepted triple of detections.
type Fragment struct {
	ID         int
	Detections [3]l1detections.Detection
	Velocity   float64 // mean of the two segment velocities, rounded to 2dp
}

// TripleStats summarises a MatchTriples run.
type TripleStats struct {
	Considered int64 // C(n,3), regardless of pruning
	Accepted   int64
	Rejected   int64
	// ByReason counts the first failed check per candidate. Only the
	// unpruned search fills it.
	ByReason map[RejectReason]int64
}

// TripleResult is the outcome of MatchTriples.
type TripleResult struct {
	Fragments []Fragment
	Stats     TripleStats
	Pruned    bool
}

// Triples yields every index combination i<j<k over n items in
// lexicographic order.
func Triples(n int) iter.Seq[[3]int] {
	return func(yield func([3]int) bool) {
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				for k := j + 1; k < n; k++ {
					if !yield([3]int{i, j, k}) {
						return
					}
				}
			}
		}
	}
}

// CombinationCount returns C(n,3).
func CombinationCount(n int) int64 {
	if n < 3 {
		return 0
	}
	m := int64(n)
	return m * (m - 1) * (m - 2) / 6
}

// CheckTriple applies the five triple checks in order and returns the mean
// velocity (unrounded) or the first reason for rejection.
func CheckTriple(a, b, c l1detections.Detection, tol Tolerances) (float64, RejectReason) {
	if !(a.Frame < b.Frame && b.Frame < c.Frame) {
		return 0, RejectOrdering
	}
	if !(a.Y <= b.Y && b.Y <= c.Y) {
		return 0, RejectMonotonicity
	}
	if b.Frame-a.Frame < tol.MinFrameGap || c.Frame-b.Frame < tol.MinFrameGap {
		return 0, RejectFrameGap
	}
	if absInt(a.Radius-b.Radius) > tol.MaxRadiusDiff || absInt(b.Radius-c.Radius) > tol.MaxRadiusDiff {
		return 0, RejectRadius
	}
	v1, ok1 := l2velocity.Velocity(a, b)
	v2, ok2 := l2velocity.Velocity(b, c)
	if !ok1 || !ok2 {
		return 0, RejectDegenerateVelocity
	}
	if !stable([]float64{v1, v2}, tol.MaxVelocityDeviation, tol.Stability) {
		return 0, RejectVelocityDeviation
	}
	return (v1 + v2) / 2, Accepted
}

// MatchTriples finds every triple of detections consistent with a single
// falling object. The detections are treated as an unordered pool; fragments
// are emitted in (i,j,k) combination order with IDs assigned from 0.
// Overlapping fragments are all kept.
//
// With tol.PruneTriples set, a successor graph of pair-compatible detections
// is built first and only its paths of length two are examined. The result is
// identical to the unpruned search.
func MatchTriples(dets []l1detections.Detection, tol Tolerances) (*TripleResult, error) {
	n := len(dets)
	res := &TripleResult{
		Stats:  TripleStats{Considered: CombinationCount(n)},
		Pruned: tol.PruneTriples,
	}

	if tol.PruneTriples {
		matchPruned(dets, tol, res)
	} else {
		if tol.MaxTripleDetections > 0 && n > tol.MaxTripleDetections {
			return nil, fmt.Errorf("%w: %d detections (max %d)", ErrInputTooLarge, n, tol.MaxTripleDetections)
		}
		matchExhaustive(dets, tol, res)
	}

	res.Stats.Accepted = int64(len(res.Fragments))
	res.Stats.Rejected = res.Stats.Considered - res.Stats.Accepted
	return res, nil
}

func matchExhaustive(dets []l1detections.Detection, tol Tolerances, res *TripleResult) {
	res.Stats.ByReason = make(map[RejectReason]int64)
	for t := range Triples(len(dets)) {
		a, b, c := dets[t[0]], dets[t[1]], dets[t[2]]
		v, reason := CheckTriple(a, b, c, tol)
		if reason != Accepted {
			res.Stats.ByReason[reason]++
			continue
		}
		res.Fragments = append(res.Fragments, newFragment(len(res.Fragments), a, b, c, v))
	}
}

type edge struct {
	to int
	v  float64
}

func matchPruned(dets []l1detections.Detection, tol Tolerances, res *TripleResult) {
	n := len(dets)
	succ := make([][]edge, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if v, ok := pairCompatible(dets[i], dets[j], tol); ok {
				succ[i] = append(succ[i], edge{to: j, v: v})
			}
		}
	}

	for i := 0; i < n; i++ {
		for _, ij := range succ[i] {
			for _, jk := range succ[ij.to] {
				if !stable([]float64{ij.v, jk.v}, tol.MaxVelocityDeviation, tol.Stability) {
					continue
				}
				res.Fragments = append(res.Fragments,
					newFragment(len(res.Fragments), dets[i], dets[ij.to], dets[jk.to], (ij.v+jk.v)/2))
			}
		}
	}
}

// pairCompatible applies the per-pair parts of CheckTriple to a consecutive
// pair and returns the pair velocity.
func pairCompatible(a, b l1detections.Detection, tol Tolerances) (float64, bool) {
	if a.Frame >= b.Frame || a.Y > b.Y {
		return 0, false
	}
	if b.Frame-a.Frame < tol.MinFrameGap || absInt(a.Radius-b.Radius) > tol.MaxRadiusDiff {
		return 0, false
	}
	return l2velocity.Velocity(a, b)
}

func newFragment(id int, a, b, c l1detections.Detection, v float64) Fragment {
	return Fragment{
		ID:         id,
		Detections: [3]l1detections.Detection{a, b, c},
		Velocity:   l2velocity.Round2(v),
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
