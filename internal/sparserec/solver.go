// Package sparserec solves the per-bin sparse recovery problem used by the
// demixer: minimize a weighted l1 norm of a complex amplitude vector subject
// to a Dantzig-selector-style sup-norm bound on the correlated residual,
//
//	min Σ wᵢ|xᵢ|   s.t.   ‖Aᴴ(Ax − b)‖∞ ≤ tol.
//
// The backend is proximal-gradient (FISTA) with complex soft thresholding on
// a decreasing penalty continuation path. The KKT conditions of the penalized
// problem bound the correlated residual by the penalty itself, so driving the
// penalty below tol drives the iterate into the feasible set.
package sparserec

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Status reports the outcome of a solve.
type Status int

const (
	// StatusOptimal means the constraint is satisfied at the returned point.
	StatusOptimal Status = iota
	// StatusMaxIterations means the iteration budget ran out before the
	// constraint was met; X holds the best iterate.
	StatusMaxIterations
	// StatusFailed means the solve produced no usable iterate.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusMaxIterations:
		return "max_iterations"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the typed outcome of a solve. Callers inspect Status rather than
// catching solver panics; a failed solve carries Err and a nil X.
type Result struct {
	X        []complex128
	Status   Status
	Residual float64 // final ‖Aᴴ(Ax − b)‖∞
	Err      error
}

// Solver is the capability interface consumed by the demixer. Alternate
// backends may be substituted without touching the pipeline logic.
type Solver interface {
	Solve(A *mat.CDense, b []complex128, weights []float64, tol float64, warm []complex128) Result
}

// FISTA is the default Solver backend.
type FISTA struct {
	// InnerIterations bounds the proximal-gradient steps per penalty level.
	// Zero selects the default.
	InnerIterations int
	// MaxRounds bounds the continuation path length. Zero selects the default.
	MaxRounds int
}

const (
	defaultInnerIterations = 60
	defaultMaxRounds       = 24
)

var errBadShape = errors.New("sparserec: dimension mismatch")

// Solve runs the default FISTA backend.
func Solve(A *mat.CDense, b []complex128, weights []float64, tol float64, warm []complex128) Result {
	return FISTA{}.Solve(A, b, weights, tol, warm)
}

// Solve minimizes the weighted l1 norm subject to the Dantzig constraint.
// warm, when non-nil, seeds the iterate (warm start across reweighting
// passes).
func (f FISTA) Solve(A *mat.CDense, b []complex128, weights []float64, tol float64, warm []complex128) Result {
	rows, cols := A.Dims()
	if len(b) != rows || len(weights) != cols || (warm != nil && len(warm) != cols) {
		return Result{Status: StatusFailed, Err: errBadShape}
	}
	if tol <= 0 {
		return Result{Status: StatusFailed, Err: errors.New("sparserec: tolerance must be positive")}
	}
	if !finiteCmplx(b) || !finiteReal(weights) {
		return Result{Status: StatusFailed, Err: errors.New("sparserec: non-finite input")}
	}

	inner := f.InnerIterations
	if inner <= 0 {
		inner = defaultInnerIterations
	}
	rounds := f.MaxRounds
	if rounds <= 0 {
		rounds = defaultMaxRounds
	}

	// Correlated residual at zero; a zero measurement is already feasible.
	g0 := infNorm(adjMulVec(A, b))
	if g0 <= tol {
		return Result{X: make([]complex128, cols), Status: StatusOptimal, Residual: g0}
	}

	lip := operatorNormSq(A)
	if lip <= 0 || math.IsNaN(lip) || math.IsInf(lip, 0) {
		return Result{Status: StatusFailed, Err: errors.New("sparserec: degenerate mixing matrix")}
	}
	step := 1 / (1.02 * lip)

	maxW := 0.0
	for _, w := range weights {
		if w > maxW {
			maxW = w
		}
	}
	if maxW <= 0 {
		maxW = 1
	}

	mu := 0.1 * g0
	muEnd := 0.5 * tol / maxW
	if muEnd > mu {
		muEnd = mu
	}

	x := make([]complex128, cols)
	if warm != nil {
		copy(x, warm)
		if !finiteCmplx(x) {
			for i := range x {
				x[i] = 0
			}
		}
	}

	var best Result
	best.Status = StatusMaxIterations
	best.Residual = math.Inf(1)

	for round := 0; round < rounds; round++ {
		x = fistaInner(A, b, weights, x, mu, step, inner)
		if !finiteCmplx(x) {
			if best.X != nil {
				return best
			}
			return Result{Status: StatusFailed, Err: errors.New("sparserec: iterate diverged")}
		}

		res := infNorm(adjMulVec(A, subVec(mulVec(A, x), b)))
		if res < best.Residual {
			best.X = append([]complex128(nil), x...)
			best.Residual = res
		}
		if res <= tol {
			return Result{X: best.X, Status: StatusOptimal, Residual: res}
		}
		if mu == muEnd {
			break
		}
		mu /= 2
		if mu < muEnd {
			mu = muEnd
		}
	}

	return best
}

// fistaInner runs accelerated proximal-gradient steps at a fixed penalty mu.
func fistaInner(A *mat.CDense, b []complex128, weights []float64, x0 []complex128, mu, step float64, iters int) []complex128 {
	cols := len(x0)
	x := append([]complex128(nil), x0...)
	y := append([]complex128(nil), x0...)
	tPrev := 1.0

	for it := 0; it < iters; it++ {
		grad := adjMulVec(A, subVec(mulVec(A, y), b))
		next := make([]complex128, cols)
		for i := 0; i < cols; i++ {
			z := y[i] - complex(step, 0)*grad[i]
			next[i] = softThreshold(z, step*mu*weights[i])
		}

		tNext := (1 + math.Sqrt(1+4*tPrev*tPrev)) / 2
		beta := (tPrev - 1) / tNext
		for i := 0; i < cols; i++ {
			y[i] = next[i] + complex(beta, 0)*(next[i]-x[i])
		}
		x = next
		tPrev = tNext
	}
	return x
}

// softThreshold is the proximal operator of θ|z| for complex z: shrink the
// magnitude toward zero, preserving phase.
func softThreshold(z complex128, theta float64) complex128 {
	m := cmplx.Abs(z)
	if m <= theta {
		return 0
	}
	scale := (m - theta) / m
	return complex(real(z)*scale, imag(z)*scale)
}

// DeltaS estimates the restricted-isometry deviation of the current solution:
// the departure of (‖Ax‖/‖x‖)² from 1. A zero-norm x clamps the denominator
// to 1 rather than propagating a non-finite value.
func DeltaS(A *mat.CDense, x []complex128) float64 {
	axNorm := norm2(mulVec(A, x))
	xNorm := norm2(x)
	if xNorm == 0 {
		xNorm = 1
	}
	ratio := (axNorm / xNorm) * (axNorm / xNorm)
	return math.Abs(ratio - 1)
}

// RIPEstimate probes the restricted isometry constant of A at sparsity k by
// measuring the l1 response ratio of random k-sparse unit-anchored vectors,
// one anchored on each column. Larger values indicate worse conditioning for
// sparse recovery. A nil rng uses a fixed seed.
func RIPEstimate(A *mat.CDense, k int, rng *rand.Rand) float64 {
	_, cols := A.Dims()
	if k < 1 {
		k = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	delta := 0.0
	for i := 0; i < cols; i++ {
		x := make([]complex128, cols)
		x[i] = 1
		for j := 0; j < k-1; j++ {
			x[rng.Intn(cols)] = complex(rng.NormFloat64(), 0)
		}
		xn := norm1(x)
		if xn == 0 {
			continue
		}
		ratio := norm1(mulVec(A, x)) / xn
		if d := math.Abs(ratio - 1); d > delta {
			delta = d
		}
	}
	return delta
}

// operatorNormSq estimates the largest eigenvalue of AᴴA by power iteration.
func operatorNormSq(A *mat.CDense) float64 {
	_, cols := A.Dims()
	v := make([]complex128, cols)
	for i := range v {
		v[i] = complex(1/math.Sqrt(float64(cols)), 0)
	}
	lambda := 0.0
	for it := 0; it < 30; it++ {
		w := adjMulVec(A, mulVec(A, v))
		n := norm2(w)
		if n == 0 {
			return 0
		}
		lambda = n
		for i := range w {
			w[i] = complex(real(w[i])/n, imag(w[i])/n)
		}
		v = w
	}
	return lambda
}

func mulVec(A *mat.CDense, x []complex128) []complex128 {
	rows, cols := A.Dims()
	out := make([]complex128, rows)
	for i := 0; i < rows; i++ {
		var sum complex128
		for j := 0; j < cols; j++ {
			sum += A.At(i, j) * x[j]
		}
		out[i] = sum
	}
	return out
}

func adjMulVec(A *mat.CDense, r []complex128) []complex128 {
	rows, cols := A.Dims()
	out := make([]complex128, cols)
	for j := 0; j < cols; j++ {
		var sum complex128
		for i := 0; i < rows; i++ {
			sum += cmplx.Conj(A.At(i, j)) * r[i]
		}
		out[j] = sum
	}
	return out
}

func subVec(a, b []complex128) []complex128 {
	out := make([]complex128, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

func infNorm(v []complex128) float64 {
	m := 0.0
	for _, c := range v {
		if a := cmplx.Abs(c); a > m {
			m = a
		}
	}
	return m
}

func norm2(v []complex128) float64 {
	s := 0.0
	for _, c := range v {
		s += real(c)*real(c) + imag(c)*imag(c)
	}
	return math.Sqrt(s)
}

func norm1(v []complex128) float64 {
	s := 0.0
	for _, c := range v {
		s += cmplx.Abs(c)
	}
	return s
}

func finiteCmplx(v []complex128) bool {
	for _, c := range v {
		if cmplx.IsNaN(c) || cmplx.IsInf(c) {
			return false
		}
	}
	return true
}

func finiteReal(v []float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
