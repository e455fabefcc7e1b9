// Package l1detections owns Layer 1 (Detections) of the hailstone data model.
//
// Responsibilities: parsing the textual detection log emitted by the
// upstream blob detector into immutable Detection records, in either the
// unlabeled or the identity-labeled dialect, and rendering a Detection back
// to its canonical line.
// Key types: Detection, Record, Group, Parser, Result.
//
// Malformed lines never abort a parse. They are counted, logged and kept
// on the Result as *LineError values.
//
// Dependency rule: L1 depends on nothing else in internal/hail.
package l1detections
