// Package pipeline runs one hailstone filtering pass: read a detection log,
// validate it with the selected strategy, and write the accepted
// detections back out, optionally persisting the run and rendering charts.
//
// The pipeline does not own domain logic; it delegates to the layer
// packages (L1-L4) and the storage and visualiser adapters. Each Run is
// independent and shares no mutable state with other runs.
package pipeline
