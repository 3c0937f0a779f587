// Command hextile tiles a polygon layer with hexagons and assigns every
// polygon to its own hexagon, repeating over randomly phased grids.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/banshee-data/hextile/internal/config"
	"github.com/banshee-data/hextile/internal/db"
	"github.com/banshee-data/hextile/internal/features"
	"github.com/banshee-data/hextile/internal/fsutil"
	"github.com/banshee-data/hextile/internal/geojsonio"
	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/merge"
	"github.com/banshee-data/hextile/internal/monitoring"
	"github.com/banshee-data/hextile/internal/render"
	"github.com/banshee-data/hextile/internal/timeutil"
	"github.com/banshee-data/hextile/internal/trials"
	"github.com/banshee-data/hextile/internal/version"
)

// defaultsPath is layered under every config file when it exists.
var defaultsPath = config.DefaultConfigPath

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, timeutil.RealClock{}, os.Args[1:], os.Stdout, os.Stderr))
}

// flags holds the parsed command line. Only flags the user actually set
// override the config file.
type flags struct {
	configPath  string
	verbose     bool
	version     bool
	history     bool
	historyN    int
	replay      string
	migrateDown bool
	overrides   *config.RunConfig
}

func parseFlags(args []string, stderr io.Writer) (*flags, error) {
	fs := flag.NewFlagSet("hextile", flag.ContinueOnError)
	fs.SetOutput(stderr)

	configPath := fs.String("config", "", "Path to JSON run configuration")
	input := fs.String("input", "", "Input GeoJSON polygon layer")
	output := fs.String("output", "", "Output directory for assigned grids")
	prefix := fs.String("prefix", "", "Output file name prefix")
	size := fs.Float64("size", 0, "Hexagon circumradius in projected units")
	numTrials := fs.Int("trials", 0, "Number of randomly phased trials")
	seed := fs.Uint64("seed", 0, "Seed for offset sampling (random if unset)")
	workers := fs.Int("workers", 0, "Trials to run concurrently")
	reproject := fs.String("reproject", "", "Input reprojection: web_mercator or none")
	policy := fs.String("geometry-policy", "", "Geometry-valued attributes: drop or strict")
	wgs84 := fs.Bool("wgs84", false, "Write outputs in WGS84 longitude/latitude")
	plotPNG := fs.Bool("plot", false, "Render a PNG next to each output")
	chart := fs.Bool("chart", false, "Write an HTML chart of per-trial displacement")
	dbPath := fs.String("db", "", "SQLite run history database")
	historyN := fs.Int("history", 0, "List the N most recent runs in -db and exit (0 for all)")
	replay := fs.String("replay", "", "Re-run the offsets of a recorded run id from -db")
	migrateDown := fs.Bool("migrate-down", false, "Roll back the latest -db schema migration and exit")
	verbose := fs.Bool("verbose", false, "Verbose logging")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	o := config.EmptyRunConfig()
	history := false
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "history":
			history = true
		case "input":
			o.Input = input
		case "output":
			o.OutputDir = output
		case "prefix":
			o.OutputPrefix = prefix
		case "size":
			o.Size = size
		case "trials":
			o.NumTrials = numTrials
		case "seed":
			o.Seed = seed
		case "workers":
			o.Workers = workers
		case "reproject":
			o.Reproject = reproject
		case "geometry-policy":
			o.GeometryPolicy = policy
		case "wgs84":
			o.OutputWGS84 = wgs84
		case "plot":
			o.Plot = plotPNG
		case "chart":
			o.Chart = chart
		case "db":
			o.DBPath = dbPath
		}
	})

	return &flags{
		configPath:  *configPath,
		verbose:     *verbose,
		version:     *showVersion,
		history:     history,
		historyN:    *historyN,
		replay:      *replay,
		migrateDown: *migrateDown,
		overrides:   o,
	}, nil
}

// resolveConfig layers the defaults file, the config file and the flag
// overrides, in that order.
func resolveConfig(f *flags) (*config.RunConfig, error) {
	cfg, err := config.LoadLayered(defaultsPath, f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Merge(f.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadConfig resolves the configuration of a fresh run.
func loadConfig(f *flags) (*config.RunConfig, error) {
	cfg, err := resolveConfig(f)
	if err != nil {
		return nil, err
	}
	if cfg.GetInput() == "" {
		return nil, errors.New("no input: set -input or \"input\" in the config file")
	}
	return cfg, nil
}

// dbPathOf returns the history database path or an error naming the
// option that needed it.
func dbPathOf(cfg *config.RunConfig, option string) (string, error) {
	path := cfg.GetDBPath()
	if path == "" {
		return "", fmt.Errorf("%s needs a run history: set -db or \"db_path\" in the config file", option)
	}
	return path, nil
}

// loadReplay rebuilds a recorded run: its stored parameters with this
// invocation's flags on top, and a sampler that yields its offsets in
// trial order.
func loadReplay(f *flags) (*config.RunConfig, *trials.FixedSampler, error) {
	base, err := resolveConfig(f)
	if err != nil {
		return nil, nil, err
	}
	path, err := dbPathOf(base, "-replay")
	if err != nil {
		return nil, nil, err
	}

	database, err := db.NewDB(path)
	if err != nil {
		return nil, nil, err
	}
	defer database.Close()
	store := db.NewRunStore(database)

	rec, err := store.GetRun(f.replay)
	if err != nil {
		return nil, nil, err
	}
	rows, err := store.ListTrials(rec.RunID)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("run %s has no recorded trials", rec.RunID)
	}

	cfg := config.EmptyRunConfig()
	if len(rec.ParamsJSON) > 0 {
		if err := json.Unmarshal(rec.ParamsJSON, cfg); err != nil {
			return nil, nil, fmt.Errorf("run %s: bad params: %w", rec.RunID, err)
		}
	}
	cfg.Merge(f.overrides)
	n := len(rows)
	cfg.NumTrials = &n
	cfg.DBPath = &path
	if cfg.Input == nil && rec.Input != "" {
		cfg.Input = &rec.Input
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	offsets := make([]hexgrid.Offset, n)
	for i, t := range rows {
		offsets[i] = hexgrid.Offset{X: t.OffsetX, Y: t.OffsetY}
	}
	monitoring.Logf("Replaying run %s: %d trials from %s", rec.RunID, n, path)
	return cfg, &trials.FixedSampler{Offsets: offsets}, nil
}

// prepareSources loads the input layer and brings it into the planar CRS
// the grid is built in.
func prepareSources(fsys fsutil.FileSystem, cfg *config.RunConfig) (*features.Collection, error) {
	col, err := geojsonio.Load(fsys, cfg.GetInput())
	if err != nil {
		return nil, err
	}
	if cfg.GetReproject() == config.ReprojectWebMercator {
		col, err = col.ToWebMercator()
		if err != nil {
			return nil, err
		}
		monitoring.Debugf("reprojected sources to %s", col.CRS)
	}
	return col, nil
}

func run(ctx context.Context, clock timeutil.Clock, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "hextile: %v\n", err)
		return 1
	}
	if f.version {
		fmt.Fprintf(stdout, "hextile %s\n", version.String())
		return 0
	}
	monitoring.SetVerbose(f.verbose)
	clock = timeutil.OrReal(clock)

	if f.history || f.migrateDown {
		if err := maintain(stdout, f); err != nil {
			monitoring.Logf("hextile: %v", err)
			return 1
		}
		return 0
	}

	var cfg *config.RunConfig
	var sampler trials.OffsetSampler
	if f.replay != "" {
		cfg, sampler, err = loadReplay(f)
	} else {
		cfg, err = loadConfig(f)
	}
	if err != nil {
		monitoring.Logf("hextile: %v", err)
		return 1
	}

	fsys := fsutil.OSFileSystem{}
	sources, err := prepareSources(fsys, cfg)
	if err != nil {
		monitoring.Logf("hextile: %v", err)
		return 1
	}

	policy, err := merge.ParseGeometryPolicy(cfg.GetGeometryPolicy())
	if err != nil {
		monitoring.Logf("hextile: %v", err)
		return 1
	}

	if sampler == nil {
		seed, ok := cfg.GetSeed()
		if !ok {
			seed = rand.Uint64()
			cfg.Seed = &seed
			monitoring.Logf("No seed given, using %d", seed)
		}
		sampler = trials.NewUniformSampler(seed)
	}

	writer := &geojsonio.Writer{
		FS:      fsys,
		Dir:     cfg.GetOutputDir(),
		Prefix:  cfg.GetOutputPrefix(),
		ToWGS84: cfg.GetOutputWGS84(),
	}
	var sink trials.Sink = writer
	if cfg.GetPlot() {
		sink = &render.PlotSink{Next: writer, FS: fsys}
	}

	started := clock.Now()
	report, err := trials.Run(ctx, sources, trials.Options{
		Size:           cfg.GetSize(),
		NumTrials:      cfg.GetNumTrials(),
		Workers:        cfg.GetWorkers(),
		Sampler:        sampler,
		GeometryPolicy: policy,
		Clock:          clock,
	}, sink)
	if err != nil {
		monitoring.Logf("hextile: %v", err)
		if report == nil {
			return 1
		}
	}

	printSummary(stdout, report)

	if cfg.GetChart() {
		if err := writeChart(fsys, cfg, report); err != nil {
			monitoring.Logf("hextile: %v", err)
		}
	}
	if path := cfg.GetDBPath(); path != "" {
		if err := recordRun(path, clock, cfg, sources, report, started); err != nil {
			monitoring.Logf("hextile: failed to record run: %v", err)
		}
	}

	if err != nil {
		return 1
	}
	return exitCode(report.Outcome)
}

// exitCode is non-zero only when every feasible trial failed.
func exitCode(o trials.Outcome) int {
	if o == trials.OutcomeNoneSucceeded {
		return 1
	}
	return 0
}

func printSummary(w io.Writer, report *trials.Report) {
	for _, t := range report.Trials {
		switch t.State {
		case trials.StateDone:
			fmt.Fprintf(w, "trial %d: offset=(%.2f, %.2f) cells=%d total=%.2f mean=%.2f max=%.2f -> %s\n",
				t.Index, t.Offset.X, t.Offset.Y, t.Cells, t.TotalCost, t.MeanCost, t.MaxCost, t.OutputPath)
		default:
			fmt.Fprintf(w, "trial %d: %s: %v\n", t.Index, t.State, t.Err)
		}
	}
	done, skipped, failed := report.Counts()
	fmt.Fprintf(w, "%s: %d done, %d skipped, %d failed\n", report.Outcome, done, skipped, failed)
	if best := report.Best(); best != nil {
		fmt.Fprintf(w, "best: trial %d (total %.2f)\n", best.Index, best.TotalCost)
	}
}

func writeChart(fsys fsutil.FileSystem, cfg *config.RunConfig, report *trials.Report) error {
	if err := fsys.MkdirAll(cfg.GetOutputDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}
	path := filepath.Join(cfg.GetOutputDir(), cfg.GetOutputPrefix()+"_trials.html")
	subtitle := fmt.Sprintf("size=%g trials=%d", cfg.GetSize(), cfg.GetNumTrials())
	if err := render.WriteTrialChart(fsys, path, report, subtitle); err != nil {
		return err
	}
	monitoring.Logf("Trial chart saved to %s", path)
	return nil
}

func recordRun(path string, clock timeutil.Clock, cfg *config.RunConfig, sources *features.Collection, report *trials.Report, started time.Time) error {
	database, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	params, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var seed *uint64
	if v, ok := cfg.GetSeed(); ok {
		seed = &v
	}
	rec := &db.Run{
		Version:        version.String(),
		Input:          cfg.GetInput(),
		CRS:            sources.CRS,
		SourceCount:    sources.Len(),
		Size:           cfg.GetSize(),
		NumTrials:      cfg.GetNumTrials(),
		Seed:           seed,
		Workers:        cfg.GetWorkers(),
		GeometryPolicy: cfg.GetGeometryPolicy(),
		ParamsJSON:     params,
		StartedAt:      started.UnixNano(),
	}
	if err := db.NewRunStore(database).WithClock(clock).RecordReport(rec, report); err != nil {
		return err
	}
	monitoring.Logf("Run %s recorded in %s", rec.RunID, path)
	return nil
}

// maintain serves the run history commands that need no input layer.
func maintain(w io.Writer, f *flags) error {
	cfg, err := resolveConfig(f)
	if err != nil {
		return err
	}
	option := "-history"
	if f.migrateDown {
		option = "-migrate-down"
	}
	path, err := dbPathOf(cfg, option)
	if err != nil {
		return err
	}

	database, err := db.NewDB(path)
	if err != nil {
		return err
	}
	defer database.Close()

	if f.migrateDown {
		if err := database.MigrateDown(); err != nil {
			return err
		}
		v, _, err := database.MigrateVersion()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: rolled back to schema v%d\n", path, v)
		return nil
	}
	return printHistory(w, path, database, f.historyN)
}

func printHistory(w io.Writer, path string, database *db.DB, limit int) error {
	v, dirty, err := database.MigrateVersion()
	if err != nil {
		return err
	}
	mark := ""
	if dirty {
		mark = " (dirty)"
	}
	fmt.Fprintf(w, "%s: schema v%d%s\n", path, v, mark)

	store := db.NewRunStore(database)
	runs, err := store.ListRuns(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		seed := "-"
		if r.Seed != nil {
			seed = fmt.Sprintf("%d", *r.Seed)
		}
		fmt.Fprintf(w, "run %s  %s  %s  size=%g trials=%d seed=%s  %s\n",
			r.RunID, time.Unix(0, r.StartedAt).UTC().Format(time.RFC3339), r.Input, r.Size, r.NumTrials, seed, r.Outcome)

		rows, err := store.ListTrials(r.RunID)
		if err != nil {
			return err
		}
		for _, t := range rows {
			fmt.Fprintf(w, "  trial %d: %s offset=(%.2f, %.2f) cells=%d", t.TrialIndex, t.State, t.OffsetX, t.OffsetY, t.Cells)
			if t.TotalCost != nil {
				fmt.Fprintf(w, " total=%.2f", *t.TotalCost)
			}
			if t.Error != "" {
				fmt.Fprintf(w, ": %s", t.Error)
			}
			fmt.Fprintln(w)
		}
	}
	return nil
}
