// Package ubss removes spacecraft-generated magnetic interference from
// multi-sensor magnetometer array measurements by underdetermined blind
// source separation: a sparse constant-Q time-frequency representation,
// density clustering of observed mixing directions into a learned mixing
// matrix, and a per-bin sparse-recovery demix that separates the ambient
// field from an unknown, time-varying number of interference sources.
package ubss

import "fmt"

// Tensor is a real measurement tensor shaped (sensors, axes, samples). The
// sample axis is innermost so per-channel rows are contiguous.
type Tensor struct {
	Sensors int
	Axes    int
	Samples int

	data []float64
}

// NewTensor allocates a zero tensor of the given shape.
func NewTensor(sensors, axes, samples int) (*Tensor, error) {
	if sensors <= 0 || axes <= 0 || samples <= 0 {
		return nil, fmt.Errorf("ubss: invalid tensor shape (%d, %d, %d)", sensors, axes, samples)
	}
	return &Tensor{
		Sensors: sensors,
		Axes:    axes,
		Samples: samples,
		data:    make([]float64, sensors*axes*samples),
	}, nil
}

// At returns the sample at (sensor, axis, index).
func (t *Tensor) At(sensor, axis, i int) float64 {
	return t.data[(sensor*t.Axes+axis)*t.Samples+i]
}

// Set stores a sample at (sensor, axis, index).
func (t *Tensor) Set(sensor, axis, i int, v float64) {
	t.data[(sensor*t.Axes+axis)*t.Samples+i] = v
}

// Row returns the contiguous sample row for one sensor and axis. The slice
// aliases the tensor's storage.
func (t *Tensor) Row(sensor, axis int) []float64 {
	off := (sensor*t.Axes + axis) * t.Samples
	return t.data[off : off+t.Samples]
}

// SetRow copies samples into the row for one sensor and axis.
func (t *Tensor) SetRow(sensor, axis int, samples []float64) error {
	if len(samples) != t.Samples {
		return fmt.Errorf("ubss: row length %d does not match tensor samples %d", len(samples), t.Samples)
	}
	copy(t.Row(sensor, axis), samples)
	return nil
}
