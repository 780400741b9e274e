// Command magclean removes spacecraft interference from a magnetometer
// array segment. It reads a segment CSV, runs the separation pipeline,
// writes the cleaned ambient field as CSV, and can record the run in a
// local SQLite store for later inspection.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/magarray/magclean/internal/config"
	"github.com/magarray/magclean/internal/db"
	"github.com/magarray/magclean/internal/monitoring"
	"github.com/magarray/magclean/internal/segment"
	"github.com/magarray/magclean/internal/ubss"
	"github.com/magarray/magclean/internal/version"
)

func main() {
	var (
		inPath     = flag.String("in", "", "input segment CSV ('-' for stdin)")
		outPath    = flag.String("out", "", "output field CSV ('-' or empty for stdout)")
		configPath = flag.String("config", "", "tuning config JSON (optional)")
		dbPath     = flag.String("db", "", "run store SQLite path (optional)")
		triaxial   = flag.Bool("triaxial", false, "treat input as triaxial (3 axes per sensor)")
		verbose    = flag.Bool("v", false, "verbose logging")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("magclean %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *inPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	monitoring.Verbose = *verbose

	if err := run(*inPath, *outPath, *configPath, *dbPath, *triaxial); err != nil {
		log.Fatalf("magclean: %v", err)
	}
}

func run(inPath, outPath, configPath, dbPath string, triaxial bool) error {
	tuning := config.EmptyTuningConfig()
	if configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(configPath)
		if err != nil {
			return err
		}
	}
	cfg := sessionConfig(tuning)

	b, err := readSegment(inPath)
	if err != nil {
		return err
	}
	if triaxial && b.Axes != 3 {
		return fmt.Errorf("input has %d axes per sensor, triaxial needs 3", b.Axes)
	}
	if monitoring.Verbose {
		stats, err := segment.Stats(b)
		if err != nil {
			return err
		}
		for _, cs := range stats {
			monitoring.Debugf("segment: sensor %d axis %d: mean %.3f stddev %.3f range [%.3f, %.3f]",
				cs.Sensor, cs.Axis, cs.Mean, cs.StdDev, cs.Min, cs.Max)
		}
	}

	session, err := ubss.NewSession(cfg, b.Sensors)
	if err != nil {
		return err
	}
	result, err := session.Clean(b, triaxial)
	if err != nil {
		return err
	}

	if err := writeField(outPath, result.Field); err != nil {
		return err
	}
	if dbPath != "" {
		if err := recordRun(dbPath, tuning, b, triaxial, session, result); err != nil {
			return err
		}
	}
	return nil
}

func readSegment(path string) (*ubss.Tensor, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return segment.ReadCSV(r)
}

func writeField(path string, field [][]float64) error {
	if path == "" || path == "-" {
		return segment.WriteFieldCSV(os.Stdout, field)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := segment.WriteFieldCSV(f, field); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func recordRun(path string, tuning *config.TuningConfig, b *ubss.Tensor, triaxial bool, session *ubss.Session, result *ubss.Result) error {
	store, err := db.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	cfgJSON, err := json.Marshal(tuning)
	if err != nil {
		return err
	}
	ctx := context.Background()
	runID := result.RunID.String()
	if err := store.RecordRun(ctx, db.Run{
		ID:         runID,
		Started:    result.Started,
		Finished:   result.Finished,
		Sensors:    b.Sensors,
		Axes:       b.Axes,
		Samples:    b.Samples,
		Triaxial:   triaxial,
		ConfigJSON: string(cfgJSON),
	}); err != nil {
		return err
	}

	stats := make([]db.AxisStats, len(result.Stats))
	for i, s := range result.Stats {
		stats[i] = db.AxisStats{
			RunID:         runID,
			Axis:          s.Axis,
			TotalBins:     s.TotalBins,
			RetainedBins:  s.RetainedBins,
			Clusters:      s.Clusters,
			SolverRetries: s.SolverRetries,
			RMSIn:         s.RMSIn,
			RMSOut:        s.RMSOut,
		}
	}
	if err := store.RecordAxisStats(ctx, stats); err != nil {
		return err
	}

	// Snapshot of the session's mixing matrix after the last axis pass.
	a := session.MixingMatrix()
	rows, cols := a.Dims()
	values := make([]complex128, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			values = append(values, a.At(i, j))
		}
	}
	lastAxis := len(result.Stats) - 1
	return store.RecordMixingMatrix(ctx, db.MixingMatrix{
		RunID:    runID,
		Axis:     lastAxis,
		Sensors:  rows,
		Clusters: cols,
		Values:   values,
	})
}

func sessionConfig(t *config.TuningConfig) ubss.Config {
	return ubss.Config{
		Detrend:          t.GetDetrend(),
		FilterWindow:     t.GetFilterWindow(),
		Sigma:            t.GetSigma(),
		Lambda:           t.GetLambda(),
		SSPTolDegrees:    t.GetSSPTolDegrees(),
		BandsPerOctave:   t.GetBandsPerOctave(),
		SampleRate:       t.GetSampleRate(),
		BoomSensor:       t.GetBoomSensor(),
		CSIterations:     t.GetCSIterations(),
		Workers:          t.GetWorkers(),
		ClusterMinPoints: t.GetClusterMinPoints(),
		ClusterEps:       t.GetClusterEps(),
	}
}
