// Command hailfilter reads a hailstone detection log, keeps the detections
// that form physically plausible falling trajectories, and writes them back
// out in the same line format.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/banshee-data/hailstone.report/internal/config"
	"github.com/banshee-data/hailstone.report/internal/hail/l3trajectories"
	"github.com/banshee-data/hailstone.report/internal/hail/pipeline"
	"github.com/banshee-data/hailstone.report/internal/hail/storage/sqlite"
	"github.com/banshee-data/hailstone.report/internal/monitoring"
	"github.com/banshee-data/hailstone.report/internal/version"
)

const (
	defaultInput  = "hailstoneData.txt"
	defaultOutput = "filteredHailstones.txt"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type cliOptions struct {
	input, output string
	mode          string
	configPath    string
	loose         bool
	dbPath        string
	plotPath      string
	htmlPath      string
	quiet         bool
	trace         bool
	showVersion   bool

	// tolerance overrides; only flags set on the command line are applied
	tol toleranceFlags
}

type toleranceFlags struct {
	maxRadiusDiff          int
	maxVelocityDeviation   float64
	minFrameGap            int
	minDetections          int
	maxPositionalDeviation float64
	velocityStability      string
	requireDescent         bool
	maxTripleDetections    int
	pruneTriples           bool
	fallThreshold          int
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *cliOptions) {
	o := &cliOptions{}
	fs := flag.NewFlagSet("hailfilter", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.input, "in", defaultInput, "detection log to read")
	fs.StringVar(&o.output, "out", defaultOutput, "filtered log to write (always overwritten)")
	fs.StringVar(&o.mode, "mode", string(pipeline.ModeUnlabeled), "validation mode: unlabeled, labeled or live")
	fs.StringVar(&o.configPath, "config", "", "tolerance config JSON (defaults used when empty)")
	fs.BoolVar(&o.loose, "loose", false, "accept Key=value fields in any order with any comma/whitespace separators (whitespace-only legacy lines are read without it)")
	fs.StringVar(&o.dbPath, "db", "", "sqlite database to record the run in (optional)")
	fs.StringVar(&o.plotPath, "plot", "", "write a PNG/SVG/PDF trajectory plot to this path")
	fs.StringVar(&o.htmlPath, "html", "", "write an interactive HTML trajectory chart to this path")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress diagnostic logging")
	fs.BoolVar(&o.trace, "trace", false, "log every rejected candidate")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")

	d := config.DefaultToleranceConfig()
	fs.IntVar(&o.tol.maxRadiusDiff, "max-radius-diff", d.GetMaxRadiusDiff(), "max radius change between detections (px)")
	fs.Float64Var(&o.tol.maxVelocityDeviation, "max-velocity-deviation", d.GetMaxVelocityDeviation(), "max velocity deviation (px/frame)")
	fs.IntVar(&o.tol.minFrameGap, "min-frame-gap", d.GetMinFrameGap(), "min frames between consecutive triple detections")
	fs.IntVar(&o.tol.minDetections, "min-detections", d.GetMinDetections(), "min detections per labeled trajectory")
	fs.Float64Var(&o.tol.maxPositionalDeviation, "max-positional-deviation", d.GetMaxPositionalDeviation(), "vertical movement below this is stationary (px)")
	fs.StringVar(&o.tol.velocityStability, "velocity-stability", d.GetVelocityStability(), "velocity stability comparison: adjacent or first")
	fs.BoolVar(&o.tol.requireDescent, "require-descent", d.GetRequireDescent(), "reject labeled trajectories that move upward")
	fs.IntVar(&o.tol.maxTripleDetections, "max-triple-detections", d.GetMaxTripleDetections(), "exhaustive triple search bound (0 = unbounded)")
	fs.BoolVar(&o.tol.pruneTriples, "prune-triples", d.GetPruneTriples(), "use the pair-compatibility graph for triple matching")
	fs.IntVar(&o.tol.fallThreshold, "fall-threshold", d.GetFallThreshold(), "min downward step for live falling detection (px)")
	return fs, o
}

// overrides returns a config holding only the tolerance flags that were set.
func overrides(fs *flag.FlagSet, o *cliOptions) *config.ToleranceConfig {
	c := config.EmptyToleranceConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "max-radius-diff":
			c.MaxRadiusDiff = &o.tol.maxRadiusDiff
		case "max-velocity-deviation":
			c.MaxVelocityDeviation = &o.tol.maxVelocityDeviation
		case "min-frame-gap":
			c.MinFrameGap = &o.tol.minFrameGap
		case "min-detections":
			c.MinDetections = &o.tol.minDetections
		case "max-positional-deviation":
			c.MaxPositionalDeviation = &o.tol.maxPositionalDeviation
		case "velocity-stability":
			c.VelocityStability = &o.tol.velocityStability
		case "require-descent":
			c.RequireDescent = &o.tol.requireDescent
		case "max-triple-detections":
			c.MaxTripleDetections = &o.tol.maxTripleDetections
		case "prune-triples":
			c.PruneTriples = &o.tol.pruneTriples
		case "fall-threshold":
			c.FallThreshold = &o.tol.fallThreshold
		}
	})
	return c
}

func loadTolerances(fs *flag.FlagSet, o *cliOptions) (l3trajectories.Tolerances, error) {
	cfg := config.DefaultToleranceConfig()
	if o.configPath != "" {
		fileCfg, err := config.LoadToleranceConfig(o.configPath)
		if err != nil {
			return l3trajectories.Tolerances{}, err
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(overrides(fs, o))
	if err := cfg.Validate(); err != nil {
		return l3trajectories.Tolerances{}, fmt.Errorf("invalid tolerances: %w", err)
	}
	return l3trajectories.TolerancesFromConfig(cfg), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, o := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	logOut := stderr
	if o.quiet {
		logOut = nil
	}
	var traceOut io.Writer
	if o.trace {
		traceOut = stderr
	}
	pipeline.SetLogWriters(stderr, logOut, traceOut)
	monitoring.SetLogger(monitoring.WriterLogger("[hailfilter] ", stderr))

	mode, err := pipeline.ParseMode(o.mode)
	if err != nil {
		monitoring.Logf("%v", err)
		return 2
	}
	tol, err := loadTolerances(fs, o)
	if err != nil {
		monitoring.Logf("%v", err)
		return 2
	}

	opts := pipeline.Options{
		Mode:       mode,
		InputPath:  o.input,
		OutputPath: o.output,
		Tolerances: tol,
		Loose:      o.loose,
		PlotPath:   o.plotPath,
		HTMLPath:   o.htmlPath,
	}
	if o.dbPath != "" {
		store, err := sqlite.Open(o.dbPath)
		if err != nil {
			monitoring.Logf("open db: %v", err)
			return 1
		}
		defer store.Close()
		opts.Store = store
	}

	sum, err := pipeline.Run(ctx, opts)
	if err != nil {
		monitoring.Logf("%v", err)
		return 1
	}
	if sum.Empty() {
		fmt.Fprintf(stdout, "no valid detections in %s; wrote empty %s\n", o.input, o.output)
		return 0
	}
	fmt.Fprintf(stdout, "kept %d of %d candidates from %d detections (%d lines skipped); wrote %s\n",
		sum.Accepted, sum.Considered, sum.ValidLines, sum.SkippedLines, o.output)
	if sum.VelocitySamples > 0 {
		fmt.Fprintf(stdout, "velocity mean %.2f px/frame, sd %.2f (n=%d)\n",
			sum.MeanVelocity, sum.StdDevVelocity, sum.VelocitySamples)
	}
	return 0
}
