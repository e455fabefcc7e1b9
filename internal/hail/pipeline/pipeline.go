package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/hailstone.report/internal/config"
	"github.com/banshee-data/hailstone.report/internal/fsutil"
	"github.com/banshee-data/hailstone.report/internal/hail/l1detections"
	"github.com/banshee-data/hailstone.report/internal/hail/l3trajectories"
	"github.com/banshee-data/hailstone.report/internal/hail/l4writer"
	"github.com/banshee-data/hailstone.report/internal/hail/storage/sqlite"
	"github.com/banshee-data/hailstone.report/internal/hail/visualiser"
	"github.com/banshee-data/hailstone.report/internal/timeutil"
	"github.com/google/uuid"
)

var (
	// ErrUnreadableInput wraps failures to open or read the detection log.
	ErrUnreadableInput = errors.New("unreadable input")
	// ErrUnwritableOutput wraps failures to create or write any output artefact.
	ErrUnwritableOutput = errors.New("unwritable output")
)

// Mode selects the validation strategy.
type Mode string

const (
	ModeUnlabeled Mode = "unlabeled" // exhaustive triple matching
	ModeLabeled   Mode = "labeled"   // per-identity sequence validation
	ModeLive      Mode = "live"      // frame-by-frame falling detection replay
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeUnlabeled, ModeLabeled, ModeLive:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want unlabeled, labeled or live)", s)
	}
}

// RunStore persists a finished run.
type RunStore interface {
	SaveRun(ctx context.Context, run sqlite.RunRecord, points []sqlite.PointRecord) error
}

// Options configures one Run.
type Options struct {
	Mode       Mode
	InputPath  string
	OutputPath string
	Tolerances l3trajectories.Tolerances
	Loose      bool // accept the legacy loosely delimited log layout

	FS    fsutil.FileSystem // defaults to fsutil.OSFileSystem
	Clock timeutil.Clock    // defaults to timeutil.RealClock
	Store RunStore          // optional

	PlotPath string // optional gonum/plot figure; written to local disk
	HTMLPath string // optional go-echarts page; written through FS
}

// outcome is the strategy-specific part of a run.
type outcome struct {
	write      func(io.Writer) error
	points     []sqlite.PointRecord
	series     []visualiser.Series
	velocities []float64
	considered int64
	accepted   int64
	byReason   map[string]int64
}

// Run executes one pipeline pass. Malformed input lines and rejected
// candidates are counted, never returned as errors. The returned error is
// non-nil only for unusable options, unreadable input, unwritable output,
// an oversized exhaustive search, or context cancellation between stages.
func Run(ctx context.Context, opts Options) (*Summary, error) {
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, err
	}
	if opts.InputPath == "" || opts.OutputPath == "" {
		return nil, errors.New("input and output paths are required")
	}
	fsys := opts.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	sum := &Summary{
		RunID:     uuid.NewString(),
		Mode:      opts.Mode,
		StartedAt: clock.Now(),
	}
	diagf("run %s: mode=%s input=%s tolerances=%+v", sum.RunID, opts.Mode, opts.InputPath, opts.Tolerances)

	parsed, err := readLog(fsys, opts)
	if err != nil {
		opsf("run %s: %v", sum.RunID, err)
		return nil, err
	}
	sum.ValidLines = parsed.Valid
	sum.SkippedLines = parsed.Skipped
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out *outcome
	switch opts.Mode {
	case ModeUnlabeled:
		out, err = runTriples(parsed.Detections(), opts.Tolerances)
	case ModeLabeled:
		out = runSequences(parsed.Groups(), opts.Tolerances)
	case ModeLive:
		out = runLive(parsed.Detections(), opts.Tolerances)
	}
	if err != nil {
		opsf("run %s: %v", sum.RunID, err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sum.Considered = out.considered
	sum.Accepted = out.accepted
	sum.Rejected = out.considered - out.accepted
	sum.ByReason = out.byReason
	sum.setVelocityStats(out.velocities)
	for reason, n := range out.byReason {
		tracef("run %s: rejected %d candidates: %s", sum.RunID, n, reason)
	}

	if err := writeOutput(fsys, opts.OutputPath, out.write); err != nil {
		opsf("run %s: %v", sum.RunID, err)
		return nil, err
	}
	if err := renderCharts(fsys, opts, sum.RunID, out.series); err != nil {
		opsf("run %s: %v", sum.RunID, err)
		return nil, err
	}

	sum.Duration = clock.Since(sum.StartedAt)

	if opts.Store != nil {
		if err := opts.Store.SaveRun(ctx, sum.record(opts), out.points); err != nil {
			opsf("run %s: persist: %v", sum.RunID, err)
			return nil, fmt.Errorf("persist run %s: %w", sum.RunID, err)
		}
	}

	if sum.Empty() {
		opsf("run %s: no valid detections in %s", sum.RunID, opts.InputPath)
	}
	diagf("%s", sum)
	return sum, nil
}

func readLog(fsys fsutil.FileSystem, opts Options) (*l1detections.Result, error) {
	f, err := fsys.Open(opts.InputPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	defer f.Close()

	dialect := l1detections.DialectUnlabeled
	if opts.Mode == ModeLabeled {
		dialect = l1detections.DialectLabeled
	}
	p := l1detections.Parser{Dialect: dialect, Loose: opts.Loose, Logf: opsf}
	res, err := p.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableInput, err)
	}
	return res, nil
}

func writeOutput(fsys fsutil.FileSystem, path string, write func(io.Writer) error) error {
	if err := ensureParent(fsys, path); err != nil {
		return err
	}
	if fsys.Exists(path) {
		diagf("overwriting %s", path)
	}
	w, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnwritableOutput, err)
	}
	if err := write(w); err != nil {
		w.Close()
		return fmt.Errorf("%w: write %s: %v", ErrUnwritableOutput, path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrUnwritableOutput, path, err)
	}
	return nil
}

func ensureParent(fsys fsutil.FileSystem, path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUnwritableOutput, err)
	}
	return nil
}

func renderCharts(fsys fsutil.FileSystem, opts Options, runID string, series []visualiser.Series) error {
	if opts.PlotPath == "" && opts.HTMLPath == "" {
		return nil
	}
	if len(series) == 0 {
		diagf("run %s: nothing accepted, skipping charts", runID)
		return nil
	}
	title := fmt.Sprintf("%s hailstone trajectories (%s)", opts.Mode, filepath.Base(opts.InputPath))

	if opts.PlotPath != "" {
		// gonum/plot saves straight to local disk
		if err := ensureParent(fsutil.OSFileSystem{}, opts.PlotPath); err != nil {
			return err
		}
		if err := visualiser.SavePlot(opts.PlotPath, title, series); err != nil {
			return fmt.Errorf("%w: %v", ErrUnwritableOutput, err)
		}
	}
	if opts.HTMLPath != "" {
		return writeOutput(fsys, opts.HTMLPath, func(w io.Writer) error {
			return visualiser.RenderHTML(w, title, series)
		})
	}
	return nil
}

func runTriples(dets []l1detections.Detection, tol l3trajectories.Tolerances) (*outcome, error) {
	res, err := l3trajectories.MatchTriples(dets, tol)
	if err != nil {
		return nil, err
	}

	out := &outcome{
		write:      func(w io.Writer) error { return l4writer.WriteFragments(w, res.Fragments) },
		series:     visualiser.SeriesFromFragments(res.Fragments),
		considered: res.Stats.Considered,
		accepted:   res.Stats.Accepted,
	}
	if res.Stats.ByReason != nil {
		out.byReason = make(map[string]int64, len(res.Stats.ByReason))
		for r, n := range res.Stats.ByReason {
			out.byReason[r.String()] = n
		}
	}
	for _, f := range res.Fragments {
		v := f.Velocity
		out.velocities = append(out.velocities, v)
		key := strconv.Itoa(f.ID)
		for i, d := range f.Detections {
			out.points = append(out.points, pointRecord(key, i, d, &v))
		}
	}
	return out, nil
}

func runSequences(groups []l1detections.Group, tol l3trajectories.Tolerances) *outcome {
	res := l3trajectories.ValidateSequences(groups, tol)
	if res.Collapsed > 0 {
		diagf("collapsed %d detections sharing a frame with their identity", res.Collapsed)
	}

	out := &outcome{
		write:      func(w io.Writer) error { return l4writer.WriteTrajectories(w, res.Accepted) },
		series:     visualiser.SeriesFromTrajectories(res.Accepted),
		considered: int64(len(groups)),
		accepted:   int64(len(res.Accepted)),
		byReason:   make(map[string]int64),
	}
	for id, r := range res.Rejected {
		out.byReason[r.String()]++
		tracef("rejected object %s: %s", id, r)
	}
	for _, t := range res.Accepted {
		out.velocities = append(out.velocities, t.Velocities...)
		for i, d := range t.Detections {
			out.points = append(out.points, pointRecord(t.ObjectID, i, d, nil))
		}
	}
	return out
}

func runLive(dets []l1detections.Detection, tol l3trajectories.Tolerances) *outcome {
	falling := l3trajectories.ReplayFrames(dets, tol.FallThreshold)
	out := &outcome{
		write:      func(w io.Writer) error { return l4writer.WriteDetections(w, falling) },
		considered: int64(len(dets)),
		accepted:   int64(len(falling)),
	}
	if len(falling) > 0 {
		out.series = []visualiser.Series{{Name: "falling", Points: falling}}
	}
	for i, d := range falling {
		out.points = append(out.points, pointRecord("falling", i, d, nil))
	}
	return out
}

func pointRecord(group string, seq int, d l1detections.Detection, v *float64) sqlite.PointRecord {
	return sqlite.PointRecord{
		GroupKey: group,
		Seq:      seq,
		Frame:    d.Frame,
		X:        d.X,
		Y:        d.Y,
		Radius:   d.Radius,
		Velocity: v,
	}
}

// TolerancesConfig converts Tolerances back into the on-disk config shape.
func TolerancesConfig(tol l3trajectories.Tolerances) *config.ToleranceConfig {
	stability := tol.Stability.String()
	return &config.ToleranceConfig{
		MaxRadiusDiff:          &tol.MaxRadiusDiff,
		MaxVelocityDeviation:   &tol.MaxVelocityDeviation,
		MinFrameGap:            &tol.MinFrameGap,
		MinDetections:          &tol.MinDetections,
		MaxPositionalDeviation: &tol.MaxPositionalDeviation,
		VelocityStability:      &stability,
		RequireDescent:         &tol.RequireDescent,
		MaxTripleDetections:    &tol.MaxTripleDetections,
		PruneTriples:           &tol.PruneTriples,
		FallThreshold:          &tol.FallThreshold,
	}
}

func paramsJSON(tol l3trajectories.Tolerances) string {
	b, err := json.Marshal(TolerancesConfig(tol))
	if err != nil {
		return "{}"
	}
	return string(b)
}
