package l1detections

import "fmt"

// Detection is one observed circular blob in one frame.
type Detection struct {
	Frame  int
	X      int
	Y      int
	Radius int
}

// String renders d in the canonical unlabeled log format.
func (d Detection) String() string {
	return fmt.Sprintf("Frame %d: X=%d, Y=%d, Radius=%d", d.Frame, d.X, d.Y, d.Radius)
}

// Record is a parsed log line. ObjectID is empty for the unlabeled dialect.
type Record struct {
	ObjectID string
	Detection
}

// Group is the set of detections sharing one externally assigned identity.
type Group struct {
	ObjectID   string
	Detections []Detection
}
