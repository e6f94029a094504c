// Command demsinks extracts depressions and mounds from ESRI ASCII DEMs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/demsinks/internal/config"
	"github.com/banshee-data/demsinks/internal/fsutil"
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/pipeline"
	"github.com/banshee-data/demsinks/internal/raster"
	"github.com/banshee-data/demsinks/internal/store"
	"github.com/banshee-data/demsinks/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `demsinks - depression and mound extraction for gridded DEMs

Usage: demsinks <command> [options]

Commands:
  sinks        Fill the DEM and extract depressions larger than -min-size
  depressions  Delineate nested depressions
  mounts       Delineate nested mounds on the inverted DEM
  migrate      Apply run catalogue migrations (up, down, version)
  runs         List, show or delete catalogued runs
  version      Print version information

Run 'demsinks <command> -h' for command options.`)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}
	command, rest := args[0], args[1:]

	var err error
	switch command {
	case "sinks", "depressions", "mounts":
		err = handleExtract(ctx, command, rest, stdout, stderr)
	case "migrate":
		err = handleMigrate(rest, stdout, stderr)
	case "runs":
		err = handleRuns(ctx, rest, stdout, stderr)
	case "version", "-version", "--version":
		fmt.Fprintln(stdout, version.String())
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 2
	}
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "demsinks %s: %v\n", command, err)
		return 1
	}
	return 0
}

// extractFlags holds the command line overrides of an extraction command.
type extractFlags struct {
	input      string
	configPath string
	envFile    string
	verbose    bool
	over       *config.Config
}

func parseExtractFlags(command string, args []string, stderr io.Writer) (*extractFlags, error) {
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &extractFlags{over: config.EmptyConfig()}
	fs.StringVar(&f.input, "input", "", "Input ESRI ASCII grid (required)")
	fs.StringVar(&f.configPath, "config", "", "JSON configuration file")
	fs.StringVar(&f.envFile, "env", ".env", "dotenv file with DEMSINKS_* overrides")
	fs.BoolVar(&f.verbose, "verbose", false, "Enable debug logging")

	minSize := fs.Int("min-size", 0, "Drop depressions with at most this many cells")
	minHeight := fs.Float64("min-height", 0, "Minimum depression depth kept in the hierarchy")
	interval := fs.Float64("interval", 0, "Slicing interval of the hierarchy")
	delta := fs.Float64("delta", 0, "Inversion offset above the DEM maximum (mounts)")
	conn := fs.Int("conn", 0, "Fill connectivity, 4 or 8")
	outDir := fs.String("out", "", "Output directory")
	writers := fs.Int("writers", 0, "Concurrent output writers")
	shp := fs.Bool("shp", false, "Write polygon shapefiles")
	previews := fs.Bool("previews", false, "Write PNG heatmaps and an HTML report")
	db := fs.String("db", "", "SQLite run catalogue")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if f.input == "" {
		fs.Usage()
		return nil, errors.New("-input is required")
	}

	// Only explicitly set flags override the file and environment.
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "min-size":
			f.over.MinSize = minSize
		case "min-height":
			f.over.MinHeight = minHeight
		case "interval":
			f.over.Interval = interval
		case "delta":
			f.over.Delta = delta
		case "conn":
			f.over.Connectivity = conn
		case "out":
			f.over.OutDir = outDir
		case "writers":
			f.over.Writers = writers
		case "shp":
			f.over.Shapefile = shp
		case "previews":
			f.over.Previews = previews
		case "db":
			f.over.Database = db
		}
	})
	return f, nil
}

// resolveConfig layers defaults, the JSON file, the environment and flags.
func resolveConfig(f *extractFlags, lookup func(string) (string, bool)) (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg := config.EmptyConfig()
	if f.configPath != "" {
		fileCfg, err := config.LoadConfig(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.Merge(f.over)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func handleExtract(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	f, err := parseExtractFlags(command, args, stderr)
	if err != nil {
		return err
	}
	monitoring.SetVerbose(f.verbose)

	cfg, err := resolveConfig(f, os.LookupEnv)
	if err != nil {
		return err
	}
	params := pipeline.ParamsFromConfig(cfg)
	params.OutDir = cfg.GetOutDir()
	params.InputPath = f.input

	osfs := fsutil.OSFileSystem{}
	dem, err := raster.LoadASCII(osfs, f.input)
	if err != nil {
		return err
	}

	opts := []pipeline.Option{pipeline.WithFileSystem(osfs)}
	if path := cfg.GetDatabase(); path != "" {
		db, err := store.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.MigrateUp(); err != nil {
			return err
		}
		opts = append(opts, pipeline.WithRecorder(store.NewRunStore(db)))
	}
	o := pipeline.New(opts...)

	switch command {
	case "sinks":
		res, err := o.ExtractSinks(ctx, dem, params)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d depressions written to %s\n", len(res.Depressions), params.OutDir)
		printRunID(stdout, res.RunID)
	default:
		delineate := o.DelineateDepressions
		if command == "mounts" {
			delineate = o.DelineateMounts
		}
		res, err := delineate(ctx, dem, params)
		if err != nil {
			return err
		}
		h := res.Hierarchy
		fmt.Fprintf(stdout, "%d regions, %d nodes over %d levels written to %s\n",
			len(res.Sinks.Depressions), len(h.Nodes()), h.Levels, params.OutDir)
		if h.Anomalies > 0 {
			fmt.Fprintf(stdout, "%d overlapping regions without a containing parent\n", h.Anomalies)
		}
		printRunID(stdout, res.RunID)
	}
	return nil
}

func printRunID(w io.Writer, id string) {
	if id != "" {
		fmt.Fprintf(w, "run %s\n", id)
	}
}

func handleMigrate(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite run catalogue (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" || fs.NArg() != 1 {
		fs.Usage()
		return errors.New("usage: demsinks migrate -db <path> up|down|version")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	switch action := fs.Arg(0); action {
	case "up":
		err = db.MigrateUp()
	case "down":
		err = db.MigrateDown()
	case "version":
		var v uint
		var dirty bool
		v, dirty, err = db.MigrateVersion()
		if err == nil {
			fmt.Fprintf(stdout, "version %d (dirty: %v)\n", v, dirty)
		}
		return err
	default:
		return fmt.Errorf("unknown migrate action %q", action)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "migrate %s complete\n", fs.Arg(0))
	return nil
}
