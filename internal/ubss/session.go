package ubss

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/magarray/magclean/internal/cqt"
	"github.com/magarray/magclean/internal/monitoring"
	"github.com/magarray/magclean/internal/sparserec"
	"github.com/magarray/magclean/internal/timeutil"
)

// Config is the tuning surface of the cleaning pipeline. The zero value is
// not usable; start from DefaultConfig.
type Config struct {
	Detrend      bool
	FilterWindow int // moving-average window for detrending, samples

	Sigma         float64 // magnitude filter threshold
	Lambda        float64 // magnitude filter threshold factor
	SSPTolDegrees float64 // single-source-point / centroid-merge angular tolerance

	BandsPerOctave int
	SampleRate     float64 // Hz

	BoomSensor   int // index of boom magnetometer, -1 disables the clamp
	CSIterations int // reweighting loop bound
	Workers      int // demix pool size, 0 = available parallelism - 1

	ClusterMinPoints int
	ClusterEps       float64 // 0 derives the radius from SSPTolDegrees

	// Solver overrides the sparse-recovery backend; nil selects the default.
	Solver sparserec.Solver

	// Clock overrides the run timestamp source; nil selects the real clock.
	Clock timeutil.Clock
}

// DefaultConfig returns the reference parameterization.
func DefaultConfig() Config {
	return Config{
		Detrend:          false,
		FilterWindow:     400,
		Sigma:            100,
		Lambda:           1.2,
		SSPTolDegrees:    15,
		BandsPerOctave:   10,
		SampleRate:       1,
		BoomSensor:       -1,
		CSIterations:     5,
		Workers:          0,
		ClusterMinPoints: 4,
		ClusterEps:       0,
	}
}

func (c Config) validate() error {
	if c.Sigma < 0 {
		return fmt.Errorf("ubss: sigma must be non-negative, got %g", c.Sigma)
	}
	if c.SSPTolDegrees <= 0 || c.SSPTolDegrees >= 90 {
		return fmt.Errorf("ubss: SSP tolerance must be in (0, 90) degrees, got %g", c.SSPTolDegrees)
	}
	if c.BandsPerOctave <= 0 {
		return fmt.Errorf("ubss: bands per octave must be positive, got %d", c.BandsPerOctave)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("ubss: sample rate must be positive, got %g", c.SampleRate)
	}
	if c.CSIterations <= 0 {
		return fmt.Errorf("ubss: CS iteration count must be positive, got %d", c.CSIterations)
	}
	if c.ClusterMinPoints < 2 {
		return fmt.Errorf("ubss: cluster min points must be at least 2, got %d", c.ClusterMinPoints)
	}
	return nil
}

// ErrSensorCount is returned when a tensor's sensor count does not match the
// session. Sensor-count changes are an explicit reset, not an implicit one.
var ErrSensorCount = errors.New("ubss: tensor sensor count does not match session; call Reset")

// AxisStats summarizes one axis pass.
type AxisStats struct {
	Axis          int
	TotalBins     int
	RetainedBins  int // bins surviving the magnitude + SSP filters
	Clusters      int // mixing matrix width after the clustering pass
	SolverRetries int // bins that used the fallback solution
	RMSIn         float64
	RMSOut        float64
}

// Result carries the cleaned ambient field and per-axis diagnostics for one
// pipeline invocation.
type Result struct {
	RunID    uuid.UUID
	Field    [][]float64 // (axes, samples); one row when not triaxial
	Stats    []AxisStats
	Started  time.Time
	Finished time.Time
}

// Session owns the persistent mixing-matrix state of the pipeline. The
// centroid set is created for a fixed sensor count, persists and grows across
// axis passes and Clean invocations, and is reset only by an explicit Reset.
// A Session is not safe for concurrent use; parallelism lives inside the
// per-bin demix batch.
type Session struct {
	cfg       Config
	sensors   int
	centroids *centroidSet
	solver    sparserec.Solver
	clock     timeutil.Clock
}

// NewSession creates a session for a fixed sensor count.
func NewSession(cfg Config, nSensors int) (*Session, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if nSensors < 2 {
		return nil, fmt.Errorf("ubss: need at least 2 sensors, got %d", nSensors)
	}
	if cfg.BoomSensor >= nSensors {
		return nil, fmt.Errorf("ubss: boom sensor index %d out of range for %d sensors", cfg.BoomSensor, nSensors)
	}
	solver := cfg.Solver
	if solver == nil {
		solver = sparserec.FISTA{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Session{
		cfg:       cfg,
		sensors:   nSensors,
		centroids: newCentroidSet(nSensors, cfg.SSPTolDegrees),
		solver:    solver,
		clock:     clock,
	}, nil
}

// Reset discards all learned centroids and re-initializes the session for a
// new sensor count. The ambient direction returns to the all-ones prior.
func (s *Session) Reset(nSensors int) error {
	if nSensors < 2 {
		return fmt.Errorf("ubss: need at least 2 sensors, got %d", nSensors)
	}
	s.sensors = nSensors
	s.centroids = newCentroidSet(nSensors, s.cfg.SSPTolDegrees)
	return nil
}

// Sensors returns the sensor count the session was created for.
func (s *Session) Sensors() int { return s.sensors }

// NumClusters returns the current mixing matrix width, ambient included.
func (s *Session) NumClusters() int { return s.centroids.NumClusters() }

// MixingMatrix returns the current sensors x clusters mixing matrix.
func (s *Session) MixingMatrix() *mat.CDense { return s.centroids.MixingMatrix() }

// AmbientCentroid returns a copy of the reserved ambient response vector.
func (s *Session) AmbientCentroid() []complex128 { return s.centroids.Centroid(0) }

// Clean separates the ambient field from spacecraft interference. With
// triaxial set, B must be shaped (sensors, 3, samples) and the result field
// is (3, samples); otherwise B must have a single axis and the result field
// has one row. The session's mixing-matrix state is updated as a side effect
// of the clustering pass.
func (s *Session) Clean(b *Tensor, triaxial bool) (*Result, error) {
	if b == nil {
		return nil, errors.New("ubss: nil measurement tensor")
	}
	if b.Sensors != s.sensors {
		return nil, fmt.Errorf("%w (tensor %d, session %d)", ErrSensorCount, b.Sensors, s.sensors)
	}
	wantAxes := 1
	if triaxial {
		wantAxes = 3
	}
	if b.Axes != wantAxes {
		return nil, fmt.Errorf("ubss: tensor has %d axes, want %d", b.Axes, wantAxes)
	}

	result := &Result{
		RunID:   uuid.New(),
		Field:   make([][]float64, b.Axes),
		Started: s.clock.Now(),
	}

	for axis := 0; axis < b.Axes; axis++ {
		rows := make([][]float64, b.Sensors)
		for i := 0; i < b.Sensors; i++ {
			rows[i] = b.Row(i, axis)
		}

		var trend [][]float64
		if s.cfg.Detrend {
			var err error
			rows, trend, err = detrendRows(rows, s.cfg.FilterWindow)
			if err != nil {
				return nil, err
			}
		}

		cleaned, stats, err := s.cleanAxis(rows, axis)
		if err != nil {
			return nil, fmt.Errorf("axis %d: %w", axis, err)
		}

		if trend != nil {
			baseline := meanAcrossRows(trend)
			floats.Add(cleaned, baseline)
		}
		result.Field[axis] = cleaned
		result.Stats = append(result.Stats, stats)
	}

	result.Finished = s.clock.Now()
	monitoring.Logf("ubss: run %s cleaned %d axis(es), %d samples, %d learned directions in %s",
		result.RunID, b.Axes, b.Samples, s.NumClusters(), result.Finished.Sub(result.Started).Round(time.Millisecond))
	return result, nil
}

// cleanAxis runs the full pipeline on one axis: forward transform, point
// filtering, clustering into the shared centroid state, then a second forward
// pass demixed bin by bin and inverted back to a time series.
func (s *Session) cleanAxis(rows [][]float64, axis int) ([]float64, AxisStats, error) {
	samples := len(rows[0])
	tf, err := cqt.New(s.cfg.BandsPerOctave, s.cfg.SampleRate, samples)
	if err != nil {
		return nil, AxisStats{}, err
	}

	stats := AxisStats{Axis: axis, TotalBins: tf.TotalBins()}

	if err := s.clusterPass(tf, rows, &stats); err != nil {
		return nil, AxisStats{}, err
	}
	cleaned, err := s.demixPass(tf, rows, &stats)
	if err != nil {
		return nil, AxisStats{}, err
	}

	stats.Clusters = s.NumClusters()
	stats.RMSIn = rmsOfMean(rows)
	stats.RMSOut = rms(cleaned)
	return cleaned, stats, nil
}

// clusterPass learns mixing directions from the axis's single-source points.
// Zero detected clusters is non-fatal: the mixing matrix is simply left
// unchanged for this call.
func (s *Session) clusterPass(tf *cqt.Transform, rows [][]float64, stats *AxisStats) error {
	coef, err := s.stackedCoefficients(tf, rows)
	if err != nil {
		return err
	}

	bright := magnitudeFilter(coef, s.cfg.Lambda, s.cfg.Sigma)
	single := sspFilter(coef, bright, s.cfg.SSPTolDegrees)
	stats.RetainedBins = len(single)

	features := buildFeatures(coef, single)
	if len(features) == 0 {
		monitoring.Debugf("ubss: axis %d: no single-source points retained", stats.Axis)
		return nil
	}

	eps := s.cfg.ClusterEps
	if eps <= 0 {
		eps = epsFromAngle(s.cfg.SSPTolDegrees)
	}
	means := clusterFeatures(features, ClusterParams{Eps: eps, MinPts: s.cfg.ClusterMinPoints})
	if len(means) == 0 {
		monitoring.Debugf("ubss: axis %d: clustering found only noise", stats.Axis)
		return nil
	}

	s.centroids.Update(centroidResponses(means, s.sensors), defaultLearnRate)
	return nil
}

// demixPass solves every bin (retained or not) against the current mixing
// matrix, then reconstructs the ambient row through the inverse transform.
func (s *Session) demixPass(tf *cqt.Transform, rows [][]float64, stats *AxisStats) ([]float64, error) {
	coef, err := s.stackedCoefficients(tf, rows)
	if err != nil {
		return nil, err
	}

	a := s.centroids.MixingMatrix()
	amplitudes, fallbacks := s.demixAll(a, coef)
	stats.SolverRetries = fallbacks
	if fallbacks > 0 {
		monitoring.Logf("ubss: axis %d: %d/%d bins used the fallback solution", stats.Axis, fallbacks, len(amplitudes))
	}

	ambient := make([]complex128, len(amplitudes))
	for j, x := range amplitudes {
		ambient[j] = x[0]
	}

	subbands, err := tf.Split(ambient)
	if err != nil {
		return nil, err
	}
	return tf.Backward(subbands)
}

// stackedCoefficients forward-transforms every sensor row and flattens the
// subbands into a sensors x totalBins coefficient matrix. Subband shapes are
// identical across sensors by construction.
func (s *Session) stackedCoefficients(tf *cqt.Transform, rows [][]float64) ([][]complex128, error) {
	batch, err := tf.ForwardBatch(rows)
	if err != nil {
		return nil, err
	}
	coef := make([][]complex128, len(batch))
	for i, sub := range batch {
		coef[i] = cqt.Flatten(sub)
	}
	return coef, nil
}

func rms(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

func rmsOfMean(rows [][]float64) float64 {
	return rms(meanAcrossRows(rows))
}
