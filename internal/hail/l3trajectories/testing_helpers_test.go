package l3trajectories

import "github.com/banshee-data/hailstone.report/internal/hail/l1detections"

type det = l1detections.Detection

func d(frame, x, y, r int) det {
	return det{Frame: frame, X: x, Y: y, Radius: r}
}
