package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/hailstone.report/internal/fsutil"
	"github.com/banshee-data/hailstone.report/internal/hail/l3trajectories"
	"github.com/banshee-data/hailstone.report/internal/hail/storage/sqlite"
	"github.com/banshee-data/hailstone.report/internal/timeutil"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	SetLogWriters(io.Discard, io.Discard, io.Discard)
	os.Exit(m.Run())
}

var fallLog = strings.Join([]string{
	"Frame 0: X=100, Y=50, Radius=10",
	"Frame 6: X=100, Y=70, Radius=11",
	"Frame 12: X=100, Y=90, Radius=12",
}, "\n") + "\n"

func memOptions(mode Mode, input string) (Options, *fsutil.MemoryFileSystem) {
	fsys := fsutil.NewMemoryFileSystem()
	fsys.WriteFile("hailstoneData.txt", []byte(input))
	return Options{
		Mode:       mode,
		InputPath:  "hailstoneData.txt",
		OutputPath: "filteredHailstones.txt",
		Tolerances: l3trajectories.DefaultTolerances(),
		FS:         fsys,
		Clock:      timeutil.NewMockClock(time.Date(2026, 5, 2, 17, 0, 0, 0, time.UTC)),
	}, fsys
}

func readOutput(t *testing.T, fsys *fsutil.MemoryFileSystem) string {
	t.Helper()
	data, err := fsys.ReadFile("filteredHailstones.txt")
	require.NoError(t, err)
	return string(data)
}

func TestRun_UnlabeledConcreteScenario(t *testing.T) {
	opts, fsys := memOptions(ModeUnlabeled, fallLog)

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Frame 0: X=100, Y=50, Radius=10, Velocity=3.33, DetectionNum=0",
		"Frame 6: X=100, Y=70, Radius=11, Velocity=3.33, DetectionNum=0",
		"Frame 12: X=100, Y=90, Radius=12, Velocity=3.33, DetectionNum=0",
	}, "\n") + "\n"
	if diff := cmp.Diff(want, readOutput(t, fsys)); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, 3, sum.ValidLines)
	assert.Equal(t, 0, sum.SkippedLines)
	assert.Equal(t, int64(1), sum.Considered)
	assert.Equal(t, int64(1), sum.Accepted)
	assert.Equal(t, int64(0), sum.Rejected)
	assert.Equal(t, 1, sum.VelocitySamples)
	assert.Equal(t, 3.33, sum.MeanVelocity)
	assert.NotEmpty(t, sum.RunID)
	assert.False(t, sum.Empty())
}

func TestRun_UnlabeledFrameGapRejection(t *testing.T) {
	input := strings.Replace(fallLog, "Frame 6:", "Frame 3:", 1)
	opts, fsys := memOptions(ModeUnlabeled, input)
	fsys.WriteFile(opts.OutputPath, []byte("stale output from a previous run\n"))

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "", readOutput(t, fsys), "output is overwritten even when nothing is accepted")
	assert.Equal(t, int64(0), sum.Accepted)
	assert.Equal(t, int64(1), sum.Rejected)
}

func TestRun_ExhaustiveReportsReasons(t *testing.T) {
	input := strings.Replace(fallLog, "Frame 6:", "Frame 3:", 1)
	opts, _ := memOptions(ModeUnlabeled, input)
	opts.Tolerances.PruneTriples = false

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"frame_gap": 1}, sum.ByReason)
}

func TestRun_MalformedLinesSkipped(t *testing.T) {
	input := "garbage\n" + fallLog + "Frame 99: X=oops, Y=1, Radius=2\n"
	opts, _ := memOptions(ModeUnlabeled, input)

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ValidLines)
	assert.Equal(t, 2, sum.SkippedLines)
	assert.Equal(t, int64(1), sum.Accepted)
}

func TestRun_LegacyAndLooseDialects(t *testing.T) {
	legacy := "Frame 0: X=100 Y=50 Radius=10\nFrame 6: X=100 Y=70 Radius=11\nFrame 12: X=100 Y=90 Radius=12\n"
	opts, _ := memOptions(ModeUnlabeled, legacy)
	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ValidLines, "whitespace-delimited lines are read by default")
	assert.Equal(t, int64(1), sum.Accepted)

	reordered := "Frame 0: Radius=10, X=100, Y=50\nFrame 6: Radius=11,X=100 Y=70\nFrame 12: Y=90, X=100, Radius=12\n"
	opts, _ = memOptions(ModeUnlabeled, reordered)
	sum, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, sum.Empty(), "strict parser skips reordered fields")
	assert.Equal(t, 3, sum.SkippedLines)

	opts, _ = memOptions(ModeUnlabeled, reordered)
	opts.Loose = true
	sum, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Accepted)
}

func TestRun_OversizedLineDoesNotAbort(t *testing.T) {
	lines := strings.SplitAfter(fallLog, "\n")
	input := lines[0] + strings.Repeat("#", 3<<20) + "\n" + lines[1] + lines[2]
	opts, fsys := memOptions(ModeUnlabeled, input)

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.ValidLines)
	assert.Equal(t, 1, sum.SkippedLines)
	assert.Equal(t, int64(1), sum.Accepted)
	assert.Equal(t, 3, strings.Count(readOutput(t, fsys), "DetectionNum=0"))
}

func TestRun_EmptyInput(t *testing.T) {
	opts, fsys := memOptions(ModeLabeled, "")
	fsys.WriteFile(opts.OutputPath, []byte("old\n"))

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err, "empty input is not an error")
	assert.True(t, sum.Empty())
	assert.Contains(t, sum.String(), "no valid detections")
	assert.Equal(t, "", readOutput(t, fsys))
}

func TestRun_Labeled(t *testing.T) {
	input := strings.Join([]string{
		"Frame 0: ID=2, X=10, Y=0, Radius=4",
		"Frame 0: ID=1, X=50, Y=40, Radius=4",
		"Frame 1: ID=2, X=10, Y=5, Radius=4",
		"Frame 1: ID=1, X=50, Y=40, Radius=4",
		"Frame 2: ID=2, X=10, Y=10, Radius=4",
		"Frame 2: ID=1, X=50, Y=40, Radius=4",
		"Frame 3: X=1, Y=2, Radius=3",
	}, "\n")
	opts, fsys := memOptions(ModeLabeled, input)

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, "Frame 0: ID=2, X=10, Y=0, Radius=4\nFrame 1: ID=2, X=10, Y=5, Radius=4\nFrame 2: ID=2, X=10, Y=10, Radius=4\n",
		readOutput(t, fsys))
	assert.Equal(t, 6, sum.ValidLines)
	assert.Equal(t, 1, sum.SkippedLines, "unlabeled line in labeled log")
	assert.Equal(t, int64(2), sum.Considered)
	assert.Equal(t, int64(1), sum.Accepted)
	assert.Equal(t, map[string]int64{"no_movement": 1}, sum.ByReason)
	assert.Equal(t, 2, sum.VelocitySamples)
	assert.Equal(t, 5.0, sum.MeanVelocity)
	assert.Equal(t, 0.0, sum.StdDevVelocity)
}

func TestRun_Live(t *testing.T) {
	input := strings.Join([]string{
		"Frame 0: X=10, Y=5, Radius=3",
		"Frame 0: X=20, Y=5, Radius=3",
		"Frame 1: X=10, Y=8, Radius=3",
		"Frame 1: X=20, Y=4, Radius=3",
	}, "\n")
	opts, fsys := memOptions(ModeLive, input)

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "Frame 1: X=10, Y=8, Radius=3\n", readOutput(t, fsys))
	assert.Equal(t, int64(4), sum.Considered)
	assert.Equal(t, int64(1), sum.Accepted)
}

func TestRun_CreatesOutputDirectories(t *testing.T) {
	opts, fsys := memOptions(ModeUnlabeled, fallLog)
	opts.OutputPath = "runs/2026-05-02/filtered.txt"
	opts.HTMLPath = "charts/fragments.html"

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.True(t, fsys.Exists("runs/2026-05-02"))
	assert.True(t, fsys.Exists("charts"))
	assert.Contains(t, readFile(t, fsys, opts.OutputPath), "DetectionNum=0")
	assert.Contains(t, readFile(t, fsys, opts.HTMLPath), "fragment 0")
}

func TestRun_CreatesPlotDirectoryOnDisk(t *testing.T) {
	opts, _ := memOptions(ModeUnlabeled, fallLog)
	opts.PlotPath = filepath.Join(t.TempDir(), "plots", "fragments.svg")

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.FileExists(t, opts.PlotPath)
}

func readFile(t *testing.T, fsys *fsutil.MemoryFileSystem, name string) string {
	t.Helper()
	data, err := fsys.ReadFile(name)
	require.NoError(t, err)
	return string(data)
}

func TestRun_FatalErrors(t *testing.T) {
	t.Run("unreadable input", func(t *testing.T) {
		opts, _ := memOptions(ModeUnlabeled, fallLog)
		opts.InputPath = "missing.txt"
		_, err := Run(context.Background(), opts)
		assert.True(t, errors.Is(err, ErrUnreadableInput), "got %v", err)
	})

	t.Run("unwritable output", func(t *testing.T) {
		opts, fsys := memOptions(ModeUnlabeled, fallLog)
		fsys.Deny(opts.OutputPath)
		_, err := Run(context.Background(), opts)
		assert.True(t, errors.Is(err, ErrUnwritableOutput), "got %v", err)
	})

	t.Run("unwritable output on disk", func(t *testing.T) {
		opts, _ := memOptions(ModeUnlabeled, fallLog)
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "in.txt"), []byte(fallLog), 0644))
		opts.FS = nil
		opts.InputPath = filepath.Join(dir, "in.txt")
		opts.OutputPath = filepath.Join(dir, "in.txt", "out.txt")
		_, err := Run(context.Background(), opts)
		assert.True(t, errors.Is(err, ErrUnwritableOutput), "got %v", err)
	})

	t.Run("exhaustive bound", func(t *testing.T) {
		opts, _ := memOptions(ModeUnlabeled, fallLog)
		opts.Tolerances.PruneTriples = false
		opts.Tolerances.MaxTripleDetections = 2
		_, err := Run(context.Background(), opts)
		assert.True(t, errors.Is(err, l3trajectories.ErrInputTooLarge), "got %v", err)
	})

	t.Run("bad mode", func(t *testing.T) {
		opts, _ := memOptions("sideways", fallLog)
		_, err := Run(context.Background(), opts)
		assert.Error(t, err)
	})

	t.Run("missing paths", func(t *testing.T) {
		_, err := Run(context.Background(), Options{Mode: ModeLive})
		assert.Error(t, err)
	})

	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		opts, _ := memOptions(ModeUnlabeled, fallLog)
		_, err := Run(ctx, opts)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestRun_PersistsToStore(t *testing.T) {
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "hail.db"))
	require.NoError(t, err)
	defer store.Close()

	opts, _ := memOptions(ModeUnlabeled, fallLog)
	opts.Store = store

	sum, err := Run(context.Background(), opts)
	require.NoError(t, err)

	run, err := store.GetRun(context.Background(), sum.RunID)
	require.NoError(t, err)
	assert.Equal(t, "unlabeled", run.Mode)
	assert.Equal(t, int64(1), run.Accepted)
	assert.Contains(t, run.ParamsJSON, `"min_frame_gap":5`)
	assert.True(t, run.CreatedAt.Equal(sum.StartedAt))

	points, err := store.ListPoints(context.Background(), sum.RunID)
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, "0", points[0].GroupKey)
	require.NotNil(t, points[2].Velocity)
	assert.Equal(t, 3.33, *points[2].Velocity)
}

type failingStore struct{}

func (failingStore) SaveRun(context.Context, sqlite.RunRecord, []sqlite.PointRecord) error {
	return errors.New("database is locked")
}

func TestRun_StoreFailureIsFatal(t *testing.T) {
	opts, _ := memOptions(ModeUnlabeled, fallLog)
	opts.Store = failingStore{}
	_, err := Run(context.Background(), opts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database is locked")
}

func TestRun_Charts(t *testing.T) {
	opts, fsys := memOptions(ModeUnlabeled, fallLog)
	opts.PlotPath = filepath.Join(t.TempDir(), "fragments.png")
	opts.HTMLPath = "fragments.html"

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)

	info, err := os.Stat(opts.PlotPath)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	html, err := fsys.ReadFile("fragments.html")
	require.NoError(t, err)
	assert.Contains(t, string(html), "fragment 0")
}

func TestRun_ChartsSkippedWhenNothingAccepted(t *testing.T) {
	opts, fsys := memOptions(ModeUnlabeled, "")
	opts.HTMLPath = "fragments.html"

	_, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.False(t, fsys.Exists("fragments.html"))
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"unlabeled", "labeled", "live"} {
		m, err := ParseMode(s)
		require.NoError(t, err)
		assert.Equal(t, Mode(s), m)
	}
	_, err := ParseMode("kalman")
	assert.Error(t, err)
}

func TestSummaryString(t *testing.T) {
	s := &Summary{RunID: "r", Mode: ModeUnlabeled, ValidLines: 3, Accepted: 1, Considered: 1,
		VelocitySamples: 1, MeanVelocity: 3.33}
	assert.Equal(t,
		"run r mode=unlabeled lines: valid=3 skipped=0; candidates: accepted=1 rejected=0 (of 1); velocity mean=3.33 sd=0.00 px/frame (n=1)",
		s.String())
}

func TestTolerancesConfigRoundTrip(t *testing.T) {
	tol := l3trajectories.DefaultTolerances()
	tol.Stability = l3trajectories.StabilityFirst
	tol.MinFrameGap = 7
	assert.Equal(t, tol, l3trajectories.TolerancesFromConfig(TolerancesConfig(tol)))
}
