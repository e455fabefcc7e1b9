// Package l3trajectories owns Layer 3 (Trajectories) of the hailstone data model.
//
// Responsibilities: deciding which detections belong to a physically
// plausible falling object. Two interchangeable strategies are provided:
//
//   - MatchTriples exhaustively tests every combination of three unlabeled
//     detections for ordering, downward monotonicity, frame spacing, radius
//     stability and velocity stability. Accepted triples are emitted as
//     overlapping Fragments; no deduplication is performed.
//   - ValidateSequences checks identity-labeled groups for movement and
//     bounded variation between successive vertical velocity samples.
//
// FallSession carries previous-frame positions for live, frame-by-frame
// falling detection. Each session is independent.
//
// Dependency rule: L3 may depend on L1-L2. No I/O happens in this package.
package l3trajectories
