// Command gridconv runs a grid conversion job.
//
//	gridconv -config job.json [-source src.txt] [-target dst.txt] [-db runs.db]
//	gridconv runs [-db runs.db] [-n 20]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/banshee-data/gridfiles/internal/config"
	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/gridjob"
	"github.com/banshee-data/gridfiles/internal/store"
	"github.com/banshee-data/gridfiles/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if stage := griderr.StageOf(err); stage != "" {
			log.Fatalf("conversion failed at %s: %v", stage, err)
		}
		log.Fatalf("gridconv: %v", err)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) > 0 && args[0] == "runs" {
		return listRuns(args[1:], stdout)
	}

	fs := flag.NewFlagSet("gridconv", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to job configuration (.json, .yaml)")
	source := fs.String("source", "", "source control point file (overrides config)")
	target := fs.String("target", "", "target control point file (overrides config)")
	dbPath := fs.String("db", "", "run log database (overrides config)")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *showVersion {
		fmt.Fprintln(stdout, version.Software())
		return nil
	}
	if *configPath == "" {
		return fmt.Errorf("-config is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *source != "" {
		cfg.SourceFile = *source
	}
	if *target != "" {
		cfg.TargetFile = *target
	}
	if *dbPath != "" {
		cfg.Database = *dbPath
	}

	job := gridjob.New(cfg)
	job.ConfigPath = *configPath
	if cfg.Database != "" {
		db, err := store.Open(cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		job.Runs = store.NewRunStore(db)
	}

	res, err := job.Run(ctx)
	if err != nil {
		return err
	}
	if res.RunID != "" {
		fmt.Fprintf(stdout, "run %s\n", res.RunID)
	}
	fmt.Fprintf(stdout, "control points: %d (%d incomplete dropped)\n", res.Points, res.Removed)
	if res.Horizontal != nil {
		fmt.Fprintln(stdout, res.Horizontal.Summary())
	}
	if res.Vertical != nil {
		fmt.Fprintf(stdout, "Vertical: trend=%.6g s0=%.6g\n", res.Vertical.Trend, res.Vertical.S0)
	}
	for _, p := range res.Outputs {
		fmt.Fprintf(stdout, "wrote %s\n", p)
	}
	return nil
}

func listRuns(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	dbPath := fs.String("db", "gridfiles.db", "run log database")
	limit := fs.Int("n", 20, "number of runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := store.NewRunStore(db).ListRuns(*limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCREATED\tSTATUS\tSTAGE\tTYPE\tPOINTS")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
			r.RunID,
			time.Unix(0, r.CreatedAtNs).UTC().Format(time.RFC3339),
			r.Status, dash(r.FailedStage), r.OutputType, r.PointCount)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
