package ubss

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func matrixValues(a *mat.CDense) []complex128 {
	r, c := a.Dims()
	out := make([]complex128, 0, r*c)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out = append(out, a.At(i, j))
		}
	}
	return out
}

func TestCentroidSet_AmbientInvariant(t *testing.T) {
	cs := newCentroidSet(3, 15)
	require.Equal(t, 1, cs.NumClusters())

	ones := []complex128{1, 1, 1}
	assert.Equal(t, ones, cs.Centroid(0))

	// An observation aligned with the ambient direction matches index 0 but
	// must never blend it.
	aligned := []complex128{complex(0.577, 0), complex(0.577, 0), complex(0.577, 0)}
	cs.Update([][]complex128{aligned}, 0.5)
	assert.Equal(t, 1, cs.NumClusters(), "aligned observation must not append")
	assert.Equal(t, ones, cs.Centroid(0), "ambient centroid must never be blended")
}

func TestCentroidSet_AppendAndBlend(t *testing.T) {
	cs := newCentroidSet(3, 15)

	obs := []complex128{0, complex(1, 0), 0}
	cs.Update([][]complex128{obs}, 0.1)
	require.Equal(t, 2, cs.NumClusters())
	assert.Equal(t, obs, cs.Centroid(1))

	// A nearby observation blends the existing centroid toward it.
	drifted := []complex128{0, complex(0.9, 0.1), 0}
	cs.Update([][]complex128{drifted}, 0.5)
	require.Equal(t, 2, cs.NumClusters())
	got := cs.Centroid(1)
	assert.InDelta(t, 0.95, real(got[1]), 1e-12)
	assert.InDelta(t, 0.05, imag(got[1]), 1e-12)

	// A direction far from everything appends.
	other := []complex128{complex(1, 0), 0, 0}
	cs.Update([][]complex128{other}, 0.1)
	assert.Equal(t, 3, cs.NumClusters())
}

func TestCentroidSet_MergeIdempotence(t *testing.T) {
	cs := newCentroidSet(2, 15)

	obs := []complex128{complex(0.3, 0), complex(0.95, 0)}
	before := matrixValues(cs.MixingMatrix())
	first := matrixValues(cs.Update([][]complex128{obs}, 0.1))
	assert.False(t, cmp.Equal(before, first), "first observation must change the matrix")

	second := matrixValues(cs.Update([][]complex128{obs}, 0.1))
	for i := range first {
		assert.InDelta(t, real(first[i]), real(second[i]), 1e-9)
		assert.InDelta(t, imag(first[i]), imag(second[i]), 1e-9)
	}
}

func TestCentroidSet_MixingMatrixLayout(t *testing.T) {
	cs := newCentroidSet(2, 15)
	obs := []complex128{0, complex(0, 1)}
	a := cs.Update([][]complex128{obs}, 0.1)

	rows, cols := a.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	// Column 0 is the ambient all-ones direction.
	assert.Equal(t, complex128(1), a.At(0, 0))
	assert.Equal(t, complex128(1), a.At(1, 0))
	// Column 1 is the appended observation.
	assert.Equal(t, complex128(0), a.At(0, 1))
	assert.Equal(t, complex(0, 1), a.At(1, 1))
}

func TestAngleBetween(t *testing.T) {
	t.Run("identical directions", func(t *testing.T) {
		// acos near 1 amplifies rounding; tolerance sized for that.
		a := []complex128{1, 1}
		assert.InDelta(t, 0, angleBetween(a, a), 1e-6)
	})
	t.Run("orthogonal real parts", func(t *testing.T) {
		a := []complex128{1, 0}
		b := []complex128{0, 1}
		assert.InDelta(t, 3.14159/2, angleBetween(a, b), 1e-3)
	})
	t.Run("zero vector clamps instead of NaN", func(t *testing.T) {
		a := []complex128{0, 0}
		b := []complex128{1, 0}
		assert.False(t, math.IsNaN(angleBetween(a, b)))
	})
}
