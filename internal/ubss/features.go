package ubss

import (
	"math"
	"math/cmplx"
)

// cosineSimilarity measures how parallel the real and imaginary parts of a
// per-sensor coefficient vector are. A value near 1 indicates one dominant
// phase across sensors, i.e. a single-source point. Zero-norm parts clamp
// their denominator to 1 so degenerate bins yield 0 rather than NaN.
func cosineSimilarity(col []complex128) float64 {
	var dot, normRe, normIm float64
	for _, c := range col {
		re, im := real(c), imag(c)
		dot += re * im
		normRe += re * re
		normIm += im * im
	}
	normRe = math.Sqrt(normRe)
	normIm = math.Sqrt(normIm)
	if normRe == 0 {
		normRe = 1
	}
	if normIm == 0 {
		normIm = 1
	}
	return math.Abs(dot / (normRe * normIm))
}

// magnitudeFilter returns the indices of bins whose per-bin norm across
// sensors exceeds lambda*sigma, rejecting low-energy points.
func magnitudeFilter(coef [][]complex128, lambda, sigma float64) []int {
	if len(coef) == 0 {
		return nil
	}
	threshold := lambda * sigma
	nBins := len(coef[0])
	var retained []int
	for j := 0; j < nBins; j++ {
		var sum float64
		for i := range coef {
			a := cmplx.Abs(coef[i][j])
			sum += a * a
		}
		if math.Sqrt(sum) > threshold {
			retained = append(retained, j)
		}
	}
	return retained
}

// sspFilter keeps the bins among the given candidates whose cosine
// similarity meets the single-source-point threshold, discarding
// multi-source points.
func sspFilter(coef [][]complex128, candidates []int, tolDegrees float64) []int {
	threshold := math.Cos(tolDegrees * math.Pi / 180)
	col := make([]complex128, len(coef))
	var kept []int
	for _, j := range candidates {
		for i := range coef {
			col[i] = coef[i][j]
		}
		if cosineSimilarity(col) >= threshold {
			kept = append(kept, j)
		}
	}
	return kept
}

// buildFeatures constructs one feature vector per retained bin: per-sensor
// magnitudes projected onto the unit hypersphere, concatenated with the
// cosine and sine of each sensor's phase offset from sensor 0. Vectors have
// length 3*nSensors. A zero normalization denominator yields zeros, not NaN.
func buildFeatures(coef [][]complex128, retained []int) [][]float64 {
	nSensors := len(coef)
	features := make([][]float64, 0, len(retained))
	for _, j := range retained {
		f := make([]float64, 3*nSensors)

		var norm float64
		for i := 0; i < nSensors; i++ {
			m := cmplx.Abs(coef[i][j])
			f[i] = m
			norm += m * m
		}
		norm = math.Sqrt(norm)
		if norm != 0 {
			for i := 0; i < nSensors; i++ {
				f[i] /= norm
			}
		} else {
			for i := 0; i < nSensors; i++ {
				f[i] = 0
			}
		}

		ref := cmplx.Phase(coef[0][j])
		for i := 0; i < nSensors; i++ {
			ang := math.Abs(cmplx.Phase(coef[i][j]) - ref)
			f[nSensors+i] = math.Cos(ang)
			f[2*nSensors+i] = math.Sin(ang)
		}

		features = append(features, f)
	}
	return features
}
