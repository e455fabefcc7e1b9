package visualiser

import (
	"errors"
	"strconv"

	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"github.com/banshee-data/hailstone.report/internal/hail/l3trajectories"
)

// ErrNoSeries is returned when there is nothing to draw.
var ErrNoSeries = errors.New("no series to plot")

// Series is one fragment or trajectory.
type Series struct {
	Name   string
	Points []l1detections.Detection
}

// SeriesFromFragments names each series "fragment <id>".
func SeriesFromFragments(frags []l3trajectories.Fragment) []Series {
	out := make([]Series, 0, len(frags))
	for _, f := range frags {
		out = append(out, Series{
			Name:   "fragment " + strconv.Itoa(f.ID),
			Points: f.Detections[:],
		})
	}
	return out
}

// SeriesFromTrajectories names each series after its object ID.
func SeriesFromTrajectories(trajs []l3trajectories.Trajectory) []Series {
	out := make([]Series, 0, len(trajs))
	for _, t := range trajs {
		out = append(out, Series{Name: t.ObjectID, Points: t.Detections})
	}
	return out
}
