package ubss

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// defaultLearnRate is the exponential smoothing rate used when blending a
// matched interference centroid toward a new observation.
const defaultLearnRate = 0.1

// centroidSet is the mixing-matrix state: a growable indexed list of learned
// per-sensor complex response vectors, one per source direction. Index 0 is
// permanently reserved for the ambient field, initialized to the all-ones
// vector and never blended; interference directions are appended behind it
// in insertion order.
type centroidSet struct {
	sensors   int
	tolRad    float64
	centroids [][]complex128
}

func newCentroidSet(nSensors int, tolDegrees float64) *centroidSet {
	ambient := make([]complex128, nSensors)
	for i := range ambient {
		ambient[i] = 1
	}
	return &centroidSet{
		sensors:   nSensors,
		tolRad:    tolDegrees * math.Pi / 180,
		centroids: [][]complex128{ambient},
	}
}

// NumClusters returns the current number of learned source directions,
// ambient included.
func (cs *centroidSet) NumClusters() int { return len(cs.centroids) }

// Update merges new centroid observations into the set. An observation whose
// angular distance to an existing centroid falls below the tolerance is
// considered a re-sighting: non-ambient matches are blended toward the
// observation by exponential smoothing, the ambient centroid is matched but
// left untouched. Unmatched observations are appended as new directions.
// Returns the rebuilt mixing matrix.
func (cs *centroidSet) Update(observations [][]complex128, learnRate float64) *mat.CDense {
	for _, obs := range observations {
		matched := false
		for idx, c := range cs.centroids {
			if angleBetween(c, obs) >= cs.tolRad {
				continue
			}
			matched = true
			if idx == 0 {
				continue
			}
			for i := range c {
				c[i] += complex(learnRate, 0) * (obs[i] - c[i])
			}
		}
		if !matched {
			cs.centroids = append(cs.centroids, append([]complex128(nil), obs...))
		}
	}
	return cs.MixingMatrix()
}

// MixingMatrix builds the sensors x clusters complex mixing matrix, columns
// ordered by centroid insertion order.
func (cs *centroidSet) MixingMatrix() *mat.CDense {
	n := len(cs.centroids)
	a := mat.NewCDense(cs.sensors, n, nil)
	for j, c := range cs.centroids {
		for i := 0; i < cs.sensors; i++ {
			a.Set(i, j, c[i])
		}
	}
	return a
}

// Centroid returns a copy of the centroid at the given index.
func (cs *centroidSet) Centroid(idx int) []complex128 {
	return append([]complex128(nil), cs.centroids[idx]...)
}

// angleBetween measures the angle between the normalized real parts of two
// complex response vectors. Zero norms clamp to 1 so degenerate vectors
// compare at a right angle instead of producing NaN.
func angleBetween(a, b []complex128) float64 {
	na := cnorm(a)
	nb := cnorm(b)
	if na == 0 {
		na = 1
	}
	if nb == 0 {
		nb = 1
	}
	var dot float64
	for i := range a {
		dot += (real(a[i]) / na) * (real(b[i]) / nb)
	}
	if dot > 1 {
		dot = 1
	} else if dot < -1 {
		dot = -1
	}
	return math.Acos(dot)
}

func cnorm(v []complex128) float64 {
	var s float64
	for _, c := range v {
		s += real(c)*real(c) + imag(c)*imag(c)
	}
	return math.Sqrt(s)
}
