package ubss

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	t.Run("parallel real and imaginary parts", func(t *testing.T) {
		// Re = (1,2), Im = (2,4): perfectly parallel.
		col := []complex128{complex(1, 2), complex(2, 4)}
		assert.InDelta(t, 1, cosineSimilarity(col), 1e-12)
	})

	t.Run("pure real bin scores zero", func(t *testing.T) {
		// Zero imaginary part: dot of Re and Im is 0, denominator clamps.
		col := []complex128{5, -2, 1}
		assert.InDelta(t, 0, cosineSimilarity(col), 1e-12)
	})

	t.Run("zero vector does not produce NaN", func(t *testing.T) {
		col := []complex128{0, 0}
		got := cosineSimilarity(col)
		assert.False(t, math.IsNaN(got))
		assert.Equal(t, 0.0, got)
	})

	t.Run("orthogonal parts score zero", func(t *testing.T) {
		// Re = (1,0), Im = (0,1).
		col := []complex128{complex(1, 0), complex(0, 1)}
		assert.InDelta(t, 0, cosineSimilarity(col), 1e-12)
	})
}

func TestMagnitudeFilter(t *testing.T) {
	coef := [][]complex128{
		{complex(10, 0), complex(0.1, 0), 0},
		{complex(10, 0), complex(0.1, 0), 0},
	}
	// Norms per bin: ~14.1, ~0.14, 0. Threshold lambda*sigma = 1.2.
	got := magnitudeFilter(coef, 1.2, 1)
	assert.Equal(t, []int{0}, got)

	t.Run("empty input", func(t *testing.T) {
		assert.Nil(t, magnitudeFilter(nil, 1.2, 1))
	})
}

func TestSSPFilter(t *testing.T) {
	phase := math.Pi / 4 // both sensors share one phase: single source
	ssp := []complex128{
		complex(math.Cos(phase), math.Sin(phase)),
		complex(2*math.Cos(phase), 2*math.Sin(phase)),
	}
	msp := []complex128{complex(1, 0), complex(0, 1)} // orthogonal parts
	coef := [][]complex128{
		{ssp[0], msp[0]},
		{ssp[1], msp[1]},
	}

	kept := sspFilter(coef, []int{0, 1}, 15)
	assert.Equal(t, []int{0}, kept)

	t.Run("threshold splits at the tolerance angle", func(t *testing.T) {
		// Re = (1,1), Im = (1,0): similarity 1/sqrt(2) = cos(45°). A degree
		// of margin on either side keeps the comparison clear of rounding.
		bin45 := [][]complex128{
			{complex(1, 1)},
			{complex(1, 0)},
		}
		assert.Equal(t, []int{0}, sspFilter(bin45, []int{0}, 46))
		assert.Empty(t, sspFilter(bin45, []int{0}, 44))
	})
}

func TestBuildFeatures(t *testing.T) {
	t.Run("dimensions and hypersphere projection", func(t *testing.T) {
		coef := [][]complex128{
			{complex(3, 0)},
			{complex(4, 0)},
		}
		feats := buildFeatures(coef, []int{0})
		require.Len(t, feats, 1)
		require.Len(t, feats[0], 6)

		// Magnitudes (3,4) normalize to (0.6, 0.8).
		assert.InDelta(t, 0.6, feats[0][0], 1e-12)
		assert.InDelta(t, 0.8, feats[0][1], 1e-12)
		// Equal phases: cos of differences 1, sin 0.
		assert.InDelta(t, 1, feats[0][2], 1e-12)
		assert.InDelta(t, 1, feats[0][3], 1e-12)
		assert.InDelta(t, 0, feats[0][4], 1e-12)
		assert.InDelta(t, 0, feats[0][5], 1e-12)
	})

	t.Run("zero bin yields zeros not NaN", func(t *testing.T) {
		coef := [][]complex128{{0}, {0}}
		feats := buildFeatures(coef, []int{0})
		require.Len(t, feats, 1)
		for i, v := range feats[0][:2] {
			assert.False(t, math.IsNaN(v), "component %d", i)
			assert.Equal(t, 0.0, v)
		}
	})

	t.Run("phase difference is encoded", func(t *testing.T) {
		coef := [][]complex128{
			{complex(1, 0)}, // phase 0
			{complex(0, 1)}, // phase pi/2
		}
		feats := buildFeatures(coef, []int{0})
		n := 2
		assert.InDelta(t, math.Cos(math.Pi/2), feats[0][n+1], 1e-12)
		assert.InDelta(t, math.Sin(math.Pi/2), feats[0][2*n+1], 1e-12)
	})
}
