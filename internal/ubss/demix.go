package ubss

import (
	"math"
	"math/cmplx"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/magarray/magclean/internal/sparserec"
	"gonum.org/v1/gonum/mat"
)

// dantzigTol bounds the sup-norm of the correlated residual Aᴴ(Ax−b) in the
// per-bin sparse recovery program.
const dantzigTol = 0.01

// deltaGate is the restricted-isometry deviation below which standard
// inverse-magnitude reweighting is trusted on multi-source bins: sqrt(2)-1,
// the classical recovery threshold.
var deltaGate = math.Sqrt2 - 1

// processBin recovers the per-cluster complex amplitudes for one
// time-frequency bin by iterative reweighted l1 minimization. The loop is a
// bounded heuristic: single-source bins shrink the ambient weight by
// inverse-magnitude reweighting; multi-source bins either do the same when
// the solution's isometry deviation is small, or nudge the ambient weight
// toward the interference-to-ambient energy ratio. A failed solve with no
// prior iterate falls back to attributing the smallest-magnitude measurement
// to the ambient column. Returns the amplitudes and whether the fallback was
// used.
func (s *Session) processBin(a *mat.CDense, b []complex128) ([]complex128, bool) {
	_, nClusters := a.Dims()

	weights := make([]float64, nClusters)
	for i := range weights {
		weights[i] = 1 / float64(nClusters)
	}

	sspThreshold := math.Cos(s.cfg.SSPTolDegrees * math.Pi / 180)
	ssp := cosineSimilarity(b) >= sspThreshold

	var x []complex128
	fellBack := false

	for iter := 0; iter < s.cfg.CSIterations; iter++ {
		res := s.solver.Solve(a, b, weights, dantzigTol, x)
		if res.Status == sparserec.StatusFailed {
			if x == nil {
				x = fallbackAmplitudes(nClusters, b)
				fellBack = true
			}
		} else {
			x = res.X
			if res.Status == sparserec.StatusOptimal {
				break
			}
		}

		if ssp {
			weights = inverseMagnitudeWeights(x)
			continue
		}

		delta := sparserec.DeltaS(a, x)
		if delta < deltaGate {
			weights = inverseMagnitudeWeights(x)
			continue
		}

		var interference float64
		for j := 1; j < nClusters; j++ {
			interference += cmplx.Abs(x[j])
		}
		ratio := interference / (cmplx.Abs(x[0]) + 0.01)
		weights[0] += 0.1 * (ratio - weights[0])
		if weights[0] < 0.01 {
			weights[0] = 0.01
		} else if weights[0] > 100 {
			weights[0] = 100
		}
	}

	if x == nil {
		x = fallbackAmplitudes(nClusters, b)
		fellBack = true
	}

	// The boom magnetometer is assumed less contaminated; the recovered
	// ambient amplitude may not exceed its raw measurement.
	if boom := s.cfg.BoomSensor; boom >= 0 && boom < len(b) {
		if cmplx.Abs(x[0]) >= cmplx.Abs(b[boom]) {
			x[0] = b[boom]
		}
	}

	return x, fellBack
}

// fallbackAmplitudes is the degenerate solution used when the solver yields
// nothing: all sources zero except the ambient column, which takes the
// smallest-magnitude measurement.
func fallbackAmplitudes(nClusters int, b []complex128) []complex128 {
	x := make([]complex128, nClusters)
	if len(b) == 0 {
		return x
	}
	minIdx := 0
	minAbs := cmplx.Abs(b[0])
	for i := 1; i < len(b); i++ {
		if a := cmplx.Abs(b[i]); a < minAbs {
			minAbs = a
			minIdx = i
		}
	}
	x[0] = b[minIdx]
	return x
}

// inverseMagnitudeWeights is the standard iterative l1 reweighting: weight
// each component by the inverse of its current magnitude, damped by 0.01.
func inverseMagnitudeWeights(x []complex128) []float64 {
	w := make([]float64, len(x))
	for i, c := range x {
		w[i] = 1 / (cmplx.Abs(c) + 0.01)
	}
	return w
}

// demixAll solves every bin against the shared mixing matrix using a bounded
// worker pool. The matrix is read-only for the duration of the batch and no
// solve mutates shared state; results are gathered by bin index so the
// original order is preserved regardless of completion order. Returns the
// per-bin amplitude vectors and the number of fallback solutions.
func (s *Session) demixAll(a *mat.CDense, coef [][]complex128) ([][]complex128, int) {
	nSensors := len(coef)
	if nSensors == 0 {
		return nil, 0
	}
	nBins := len(coef[0])

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU() - 1
	}
	if workers < 1 {
		workers = 1
	}

	results := make([][]complex128, nBins)
	var fallbacks int64

	jobs := make(chan int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b := make([]complex128, nSensors)
			for j := range jobs {
				for i := 0; i < nSensors; i++ {
					b[i] = coef[i][j]
				}
				x, fellBack := s.processBin(a, b)
				results[j] = x
				if fellBack {
					atomic.AddInt64(&fallbacks, 1)
				}
			}
		}()
	}
	for j := 0; j < nBins; j++ {
		jobs <- j
	}
	close(jobs)
	wg.Wait()

	return results, int(fallbacks)
}
