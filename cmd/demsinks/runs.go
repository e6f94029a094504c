package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/demsinks/internal/store"
)

const runsUsage = "usage: demsinks runs -db <path> [-kind sinks|depressions|mounts] list | show <run-id> | delete <run-id>"

func handleRuns(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbPath := fs.String("db", "", "SQLite run catalogue (required)")
	kind := fs.String("kind", "", "Only list runs of this kind")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dbPath == "" || fs.NArg() < 1 {
		fs.Usage()
		return errors.New(runsUsage)
	}
	action := fs.Arg(0)
	if (action == "show" || action == "delete") && fs.NArg() != 2 {
		return fmt.Errorf("runs %s needs a run id", action)
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.MigrateUp(); err != nil {
		return err
	}
	runs := store.NewRunStore(db)

	switch action {
	case "list":
		return listRuns(ctx, runs, *kind, stdout)
	case "show":
		return showRun(ctx, runs, fs.Arg(1), stdout)
	case "delete":
		if err := runs.DeleteRun(ctx, fs.Arg(1)); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted run %s\n", fs.Arg(1))
		return nil
	default:
		return fmt.Errorf("unknown runs action %q", action)
	}
}

func listRuns(ctx context.Context, rs *store.RunStore, kind string, w io.Writer) error {
	runs, err := rs.ListRuns(ctx, kind)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tKIND\tCREATED\tINPUT\tREGIONS\tNODES")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\n", r.RunID, r.Kind,
			time.Unix(0, r.CreatedAtNs).UTC().Format(time.RFC3339), r.InputPath, r.RegionCount, r.NodeCount)
	}
	return tw.Flush()
}

func showRun(ctx context.Context, rs *store.RunStore, id string, w io.Writer) error {
	run, err := rs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	deps, err := rs.ListDepressions(ctx, id)
	if err != nil {
		return err
	}
	nodes, err := rs.ListNodes(ctx, id)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "run %s (%s)\n", run.RunID, run.Kind)
	fmt.Fprintf(w, "input %s, %dx%d cells at %g\n", run.InputPath, run.Rows, run.Cols, run.Resolution)
	fmt.Fprintf(w, "params %s\n", run.ParamsJSON)
	fmt.Fprintf(w, "%d regions, %d nodes over %d levels, %d anomalies\n", run.RegionCount, run.NodeCount, run.LevelCount, run.Anomalies)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nREGION\tCOUNT\tAREA\tVOLUME\tMAX-DEPTH")
	for _, d := range deps {
		fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\n", d.ID, d.PixelCount, d.Area, d.Volume, d.MaxDepth)
	}
	if len(nodes) > 0 {
		fmt.Fprintln(tw, "\nNODE\tLEVEL\tPARENT\tROOT\tMAX-DEPTH")
		for _, n := range nodes {
			parent := 0
			if n.ParentID != nil {
				parent = *n.ParentID
			}
			fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%.2f\n", n.NodeID, n.Level, parent, n.RootID, n.Depression.MaxDepth)
		}
	}
	return tw.Flush()
}
