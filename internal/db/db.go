// Package db persists cleaning runs and their per-axis diagnostics to a
// local SQLite database. The store is append-only: a run row is written
// once, after processing, together with the axis stats and the final
// mixing matrix used for each axis.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle for the run store.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if necessary) the run store at path and applies
// any pending migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// modernc sqlite serializes access per connection; a single
	// connection avoids SQLITE_BUSY between writers.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	db := &DB{DB: sqlDB, path: path}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Path returns the filesystem path the store was opened with.
func (d *DB) Path() string { return d.path }

// Run is one invocation of the cleaner over a measurement tensor.
type Run struct {
	ID         string
	Started    time.Time
	Finished   time.Time
	Sensors    int
	Axes       int
	Samples    int
	Triaxial   bool
	ConfigJSON string
}

// AxisStats records solver diagnostics for one axis of a run.
type AxisStats struct {
	RunID         string
	Axis          int
	TotalBins     int
	RetainedBins  int
	Clusters      int
	SolverRetries int
	RMSIn         float64
	RMSOut        float64
}

// MixingMatrix is the sensors-by-clusters complex matrix a run finished
// an axis with, stored row-major as (re, im) pairs.
type MixingMatrix struct {
	RunID    string
	Axis     int
	Sensors  int
	Clusters int
	Values   []complex128
}

// RecordRun inserts a completed run row.
func (d *DB) RecordRun(ctx context.Context, r Run) error {
	_, err := d.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, sensors, axes, samples, triaxial, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Started.UTC().Format(time.RFC3339Nano), r.Finished.UTC().Format(time.RFC3339Nano),
		r.Sensors, r.Axes, r.Samples, boolToInt(r.Triaxial), r.ConfigJSON)
	if err != nil {
		return fmt.Errorf("record run %s: %w", r.ID, err)
	}
	return nil
}

// RecordAxisStats inserts the per-axis diagnostics for a run.
func (d *DB) RecordAxisStats(ctx context.Context, stats []AxisStats) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, s := range stats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO run_axis_stats (run_id, axis, total_bins, retained_bins, clusters, solver_retries, rms_in, rms_out)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			s.RunID, s.Axis, s.TotalBins, s.RetainedBins, s.Clusters, s.SolverRetries, s.RMSIn, s.RMSOut)
		if err != nil {
			return fmt.Errorf("record axis stats %s/%d: %w", s.RunID, s.Axis, err)
		}
	}
	return tx.Commit()
}

// RecordMixingMatrix inserts the final mixing matrix for one axis of a run.
func (d *DB) RecordMixingMatrix(ctx context.Context, m MixingMatrix) error {
	if len(m.Values) != m.Sensors*m.Clusters {
		return fmt.Errorf("mixing matrix %s/%d: %d values for %dx%d",
			m.RunID, m.Axis, len(m.Values), m.Sensors, m.Clusters)
	}
	blob, err := json.Marshal(encodeComplex(m.Values))
	if err != nil {
		return err
	}
	_, err = d.ExecContext(ctx, `
		INSERT INTO mixing_matrices (run_id, axis, sensors, clusters, vals)
		VALUES (?, ?, ?, ?, ?)`,
		m.RunID, m.Axis, m.Sensors, m.Clusters, string(blob))
	if err != nil {
		return fmt.Errorf("record mixing matrix %s/%d: %w", m.RunID, m.Axis, err)
	}
	return nil
}

// GetRun fetches a run row by ID.
func (d *DB) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var started, finished string
	var triaxial int
	err := d.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, sensors, axes, samples, triaxial, config
		FROM runs WHERE id = ?`, id).
		Scan(&r.ID, &started, &finished, &r.Sensors, &r.Axes, &r.Samples, &triaxial, &r.ConfigJSON)
	if err != nil {
		return Run{}, fmt.Errorf("get run %s: %w", id, err)
	}
	r.Triaxial = triaxial != 0
	if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return Run{}, err
	}
	if r.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns up to limit runs, most recent first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.QueryContext(ctx, `
		SELECT id, started_at, finished_at, sensors, axes, samples, triaxial, config
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var started, finished string
		var triaxial int
		if err := rows.Scan(&r.ID, &started, &finished, &r.Sensors, &r.Axes, &r.Samples, &triaxial, &r.ConfigJSON); err != nil {
			return nil, err
		}
		r.Triaxial = triaxial != 0
		if r.Started, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, err
		}
		if r.Finished, err = time.Parse(time.RFC3339Nano, finished); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetAxisStats returns the stats for every axis of a run, ordered by axis.
func (d *DB) GetAxisStats(ctx context.Context, runID string) ([]AxisStats, error) {
	rows, err := d.QueryContext(ctx, `
		SELECT run_id, axis, total_bins, retained_bins, clusters, solver_retries, rms_in, rms_out
		FROM run_axis_stats WHERE run_id = ? ORDER BY axis`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AxisStats
	for rows.Next() {
		var s AxisStats
		if err := rows.Scan(&s.RunID, &s.Axis, &s.TotalBins, &s.RetainedBins, &s.Clusters,
			&s.SolverRetries, &s.RMSIn, &s.RMSOut); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetMixingMatrix fetches the stored mixing matrix for one axis of a run.
func (d *DB) GetMixingMatrix(ctx context.Context, runID string, axis int) (MixingMatrix, error) {
	var m MixingMatrix
	var blob string
	err := d.QueryRowContext(ctx, `
		SELECT run_id, axis, sensors, clusters, vals
		FROM mixing_matrices WHERE run_id = ? AND axis = ?`, runID, axis).
		Scan(&m.RunID, &m.Axis, &m.Sensors, &m.Clusters, &blob)
	if err != nil {
		return MixingMatrix{}, fmt.Errorf("get mixing matrix %s/%d: %w", runID, axis, err)
	}
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(blob), &pairs); err != nil {
		return MixingMatrix{}, err
	}
	m.Values = decodeComplex(pairs)
	if len(m.Values) != m.Sensors*m.Clusters {
		return MixingMatrix{}, fmt.Errorf("mixing matrix %s/%d: %d values for %dx%d",
			runID, axis, len(m.Values), m.Sensors, m.Clusters)
	}
	return m, nil
}

func encodeComplex(vals []complex128) [][2]float64 {
	out := make([][2]float64, len(vals))
	for i, v := range vals {
		out[i] = [2]float64{real(v), imag(v)}
	}
	return out
}

func decodeComplex(pairs [][2]float64) []complex128 {
	out := make([]complex128, len(pairs))
	for i, p := range pairs {
		out[i] = complex(p[0], p[1])
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
