// Package visualiser renders accepted fragments and trajectories as static
// plots (gonum/plot, PNG or SVG by file extension) and interactive HTML
// scatter charts (go-echarts).
package visualiser
