// Command runs-report lists recorded cleaning runs from a run store and
// optionally prints the per-axis diagnostics and final mixing matrix for
// one run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/magarray/magclean/internal/db"
)

func main() {
	var (
		dbPath = flag.String("db", "", "run store SQLite path")
		runID  = flag.String("run", "", "show details for one run ID")
		limit  = flag.Int("limit", 20, "max runs to list")
	)
	flag.Parse()

	if *dbPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if err := run(*dbPath, *runID, *limit); err != nil {
		log.Fatalf("runs-report: %v", err)
	}
}

func run(dbPath, runID string, limit int) error {
	store, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()
	ctx := context.Background()

	if runID != "" {
		return report(ctx, store, runID)
	}

	runs, err := store.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		axes := "single-axis"
		if r.Triaxial {
			axes = "triaxial"
		}
		fmt.Printf("%s  %s  %d sensors  %d samples  %s  %.2fs\n",
			r.ID, r.Started.Format(time.RFC3339), r.Sensors, r.Samples, axes,
			r.Finished.Sub(r.Started).Seconds())
	}
	return nil
}

func report(ctx context.Context, store *db.DB, runID string) error {
	r, err := store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	fmt.Printf("run %s: %d sensors, %d axes, %d samples\n", r.ID, r.Sensors, r.Axes, r.Samples)
	fmt.Printf("config: %s\n", r.ConfigJSON)

	stats, err := store.GetAxisStats(ctx, runID)
	if err != nil {
		return err
	}
	for _, s := range stats {
		fmt.Printf("axis %d: %d/%d bins retained, %d clusters, %d fallbacks, rms %.3f -> %.3f\n",
			s.Axis, s.RetainedBins, s.TotalBins, s.Clusters, s.SolverRetries, s.RMSIn, s.RMSOut)
	}
	if len(stats) == 0 {
		return nil
	}

	m, err := store.GetMixingMatrix(ctx, runID, stats[len(stats)-1].Axis)
	if err != nil {
		return err
	}
	fmt.Printf("mixing matrix (%dx%d):\n", m.Sensors, m.Clusters)
	for i := 0; i < m.Sensors; i++ {
		for j := 0; j < m.Clusters; j++ {
			v := m.Values[i*m.Clusters+j]
			fmt.Printf("  %7.3f%+7.3fi", real(v), imag(v))
		}
		fmt.Println()
	}
	return nil
}
