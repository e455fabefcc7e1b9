// Package sqlite persists hailstone pipeline runs and their accepted
// detections in a SQLite database.
//
// The schema is embedded and applied with golang-migrate on Open. Domain
// layers (L1-L4) never import this package; the pipeline hands it plain
// RunRecord and PointRecord values.
package sqlite
