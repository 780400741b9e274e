// Package cqt implements an invertible constant-Q subband decomposition used
// as the sparse time-frequency front end of the interference removal
// pipeline. The forward transform partitions the half spectrum of a real
// signal into logarithmically spaced frequency bands and renders each band as
// a short complex time sequence; the backward transform reassembles the half
// spectrum from the subbands and is an exact inverse (to rounding) when the
// subbands are unmodified.
package cqt

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// band is a half-open FFT bin range owned by one subband.
type band struct {
	lo, hi int // bin indices into the half spectrum, [lo, hi)
}

// Transform holds the band layout and FFT plans for one signal length.
// A Transform is safe for concurrent use by multiple goroutines only if each
// goroutine uses its own Transform; plans carry scratch state.
type Transform struct {
	n     int
	bpo   int
	fs    float64
	bands []band

	rfft  *fourier.FFT
	plans map[int]*fourier.CmplxFFT
}

// New creates a Transform for real signals of the given length. bpo is the
// number of bands per octave and fs the sampling rate in Hz. The lowest
// analysis frequency is 2*bpo*fs/length; the signal must be long enough for
// that frequency to sit below Nyquist, which requires length > 4*bpo.
func New(bpo int, fs float64, length int) (*Transform, error) {
	if bpo <= 0 {
		return nil, fmt.Errorf("cqt: bands per octave must be positive, got %d", bpo)
	}
	if fs <= 0 {
		return nil, fmt.Errorf("cqt: sample rate must be positive, got %g", fs)
	}
	if length <= 4*bpo {
		return nil, fmt.Errorf("cqt: signal length %d too short for %d bands per octave (need > %d samples)",
			length, bpo, 4*bpo)
	}

	fmin := 2 * float64(bpo) * fs / float64(length)
	fmax := fs / 2
	half := length/2 + 1

	// Log-spaced band edges from fmin to Nyquist, bpo per octave, mapped to
	// FFT bin indices. Consecutive edges that collapse to the same bin are
	// merged so every band owns at least one bin.
	edges := []int{0}
	octaves := math.Log2(fmax / fmin)
	steps := int(math.Ceil(octaves * float64(bpo)))
	for j := 0; j <= steps; j++ {
		f := fmin * math.Pow(2, float64(j)/float64(bpo))
		bin := int(math.Round(f * float64(length) / fs))
		if bin <= edges[len(edges)-1] {
			continue
		}
		if bin >= half {
			break
		}
		edges = append(edges, bin)
	}
	edges = append(edges, half)

	t := &Transform{
		n:     length,
		bpo:   bpo,
		fs:    fs,
		rfft:  fourier.NewFFT(length),
		plans: make(map[int]*fourier.CmplxFFT),
	}
	for i := 0; i+1 < len(edges); i++ {
		b := band{lo: edges[i], hi: edges[i+1]}
		t.bands = append(t.bands, b)
		if _, ok := t.plans[b.hi-b.lo]; !ok {
			t.plans[b.hi-b.lo] = fourier.NewCmplxFFT(b.hi - b.lo)
		}
	}
	return t, nil
}

// Len returns the signal length the transform was planned for.
func (t *Transform) Len() int { return t.n }

// NumBands returns the number of subbands produced by Forward.
func (t *Transform) NumBands() int { return len(t.bands) }

// TotalBins returns the total coefficient count across all subbands.
func (t *Transform) TotalBins() int { return t.n/2 + 1 }

// SubbandLengths returns the per-scale subband lengths in band order. The
// reconstructor uses these to split a flat coefficient row back into
// subbands.
func (t *Transform) SubbandLengths() []int {
	lengths := make([]int, len(t.bands))
	for i, b := range t.bands {
		lengths[i] = b.hi - b.lo
	}
	return lengths
}

// BandFrequencies returns the lower edge frequency of each band in Hz.
func (t *Transform) BandFrequencies() []float64 {
	freqs := make([]float64, len(t.bands))
	for i, b := range t.bands {
		freqs[i] = float64(b.lo) * t.fs / float64(t.n)
	}
	return freqs
}

// Forward decomposes a real signal into complex subband sequences, one per
// band, ordered from DC upward. Sequence lengths vary per band and match
// SubbandLengths.
func (t *Transform) Forward(x []float64) ([][]complex128, error) {
	if len(x) != t.n {
		return nil, fmt.Errorf("cqt: signal length %d does not match transform length %d", len(x), t.n)
	}

	coeffs := t.rfft.Coefficients(nil, x)
	subbands := make([][]complex128, len(t.bands))
	for i, b := range t.bands {
		m := b.hi - b.lo
		sub := t.plans[m].Sequence(nil, coeffs[b.lo:b.hi])
		inv := 1 / float64(m)
		for k := range sub {
			sub[k] = complex(real(sub[k])*inv, imag(sub[k])*inv)
		}
		subbands[i] = sub
	}
	return subbands, nil
}

// Backward reassembles a real signal from subband sequences. It is the exact
// inverse of Forward when the subbands are unmodified; modified subbands
// reconstruct the corresponding spectral content.
func (t *Transform) Backward(subbands [][]complex128) ([]float64, error) {
	if len(subbands) != len(t.bands) {
		return nil, fmt.Errorf("cqt: got %d subbands, transform has %d bands", len(subbands), len(t.bands))
	}

	coeffs := make([]complex128, t.n/2+1)
	for i, b := range t.bands {
		m := b.hi - b.lo
		if len(subbands[i]) != m {
			return nil, fmt.Errorf("cqt: subband %d has length %d, want %d", i, len(subbands[i]), m)
		}
		spectrum := t.plans[m].Coefficients(nil, subbands[i])
		copy(coeffs[b.lo:b.hi], spectrum)
	}

	x := t.rfft.Sequence(nil, coeffs)
	inv := 1 / float64(t.n)
	for i := range x {
		x[i] *= inv
	}
	return x, nil
}

// ForwardBatch applies Forward to each channel of a multichannel signal.
// The subband layout is identical across channels.
func (t *Transform) ForwardBatch(x [][]float64) ([][][]complex128, error) {
	out := make([][][]complex128, len(x))
	for i, ch := range x {
		sub, err := t.Forward(ch)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = sub
	}
	return out, nil
}

// BackwardBatch applies Backward to each channel.
func (t *Transform) BackwardBatch(subbands [][][]complex128) ([][]float64, error) {
	out := make([][]float64, len(subbands))
	for i, sub := range subbands {
		x, err := t.Backward(sub)
		if err != nil {
			return nil, fmt.Errorf("channel %d: %w", i, err)
		}
		out[i] = x
	}
	return out, nil
}

// Flatten concatenates subband sequences into a single coefficient row in
// band order.
func Flatten(subbands [][]complex128) []complex128 {
	total := 0
	for _, s := range subbands {
		total += len(s)
	}
	flat := make([]complex128, 0, total)
	for _, s := range subbands {
		flat = append(flat, s...)
	}
	return flat
}

// Split cuts a flat coefficient row back into subband sequences using the
// transform's recorded per-scale lengths.
func (t *Transform) Split(flat []complex128) ([][]complex128, error) {
	if len(flat) != t.TotalBins() {
		return nil, fmt.Errorf("cqt: row has %d coefficients, want %d", len(flat), t.TotalBins())
	}
	subbands := make([][]complex128, len(t.bands))
	idx := 0
	for i, b := range t.bands {
		m := b.hi - b.lo
		subbands[i] = flat[idx : idx+m]
		idx += m
	}
	return subbands, nil
}
