package ubss

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blob(rng *rand.Rand, center []float64, spread float64, n int) [][]float64 {
	pts := make([][]float64, n)
	for i := range pts {
		p := make([]float64, len(center))
		for k := range p {
			p[k] = center[k] + spread*rng.NormFloat64()
		}
		pts[i] = p
	}
	return pts
}

func TestDBSCAN(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	t.Run("two blobs and scattered noise", func(t *testing.T) {
		var pts [][]float64
		pts = append(pts, blob(rng, []float64{0, 0, 1}, 0.01, 20)...)
		pts = append(pts, blob(rng, []float64{1, 0, 0}, 0.01, 20)...)
		// Lone outliers far from both blobs.
		pts = append(pts, []float64{5, 5, 5}, []float64{-4, 2, 9})

		labels, n := dbscan(pts, 0.2, 4)
		assert.Equal(t, 2, n)
		assert.Equal(t, -1, labels[40])
		assert.Equal(t, -1, labels[41])
		// Points within one blob share a label.
		for i := 1; i < 20; i++ {
			assert.Equal(t, labels[0], labels[i])
		}
	})

	t.Run("all noise", func(t *testing.T) {
		pts := [][]float64{{0, 0}, {10, 0}, {0, 10}}
		labels, n := dbscan(pts, 0.5, 2)
		assert.Equal(t, 0, n)
		for _, l := range labels {
			assert.Equal(t, -1, l)
		}
	})
}

func TestClusterFeatures(t *testing.T) {
	rng := rand.New(rand.NewSource(9))

	t.Run("returns per-cluster means", func(t *testing.T) {
		center := []float64{0.5, 0.5, 0.2}
		pts := blob(rng, center, 0.005, 30)
		means := clusterFeatures(pts, ClusterParams{Eps: 0.1, MinPts: 4})
		require.Len(t, means, 1)
		for k := range center {
			assert.InDelta(t, center[k], means[0][k], 0.01)
		}
	})

	t.Run("degenerate cases", func(t *testing.T) {
		assert.Nil(t, clusterFeatures(nil, ClusterParams{Eps: 0.1, MinPts: 4}))
		noise := [][]float64{{0, 0}, {9, 9}}
		assert.Nil(t, clusterFeatures(noise, ClusterParams{Eps: 0.1, MinPts: 2}))
	})
}

func TestCentroidResponses(t *testing.T) {
	t.Run("gain normalized, phase recombined", func(t *testing.T) {
		// Mean feature: magnitudes (3,4), phase offsets (0, pi/2).
		m := []float64{3, 4, 1, math.Cos(math.Pi / 2), 0, math.Sin(math.Pi / 2)}
		resp := centroidResponses([][]float64{m}, 2)
		require.Len(t, resp, 1)
		require.Len(t, resp[0], 2)

		// Gains normalize to (0.6, 0.8).
		assert.InDelta(t, 0.6, real(resp[0][0]), 1e-12)
		assert.InDelta(t, 0, imag(resp[0][0]), 1e-12)
		// Second sensor carries the pi/2 phase: 0.8i.
		assert.InDelta(t, 0, real(resp[0][1]), 1e-9)
		assert.InDelta(t, 0.8, imag(resp[0][1]), 1e-9)
	})

	t.Run("zero gain stays zero", func(t *testing.T) {
		m := make([]float64, 6)
		resp := centroidResponses([][]float64{m}, 2)
		require.Len(t, resp, 1)
		for _, c := range resp[0] {
			assert.Equal(t, complex128(0), c)
		}
	})
}

func TestEpsFromAngle(t *testing.T) {
	// Chord length of 60 degrees on the unit sphere is exactly 1.
	assert.InDelta(t, 1, epsFromAngle(60), 1e-12)
	assert.InDelta(t, 0.2611, epsFromAngle(15), 1e-4)
}
