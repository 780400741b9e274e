// Package segment reads and writes magnetometer array segments as CSV.
// A segment file has one row per (sensor, axis) channel with the sample
// values in column order, so the same file works for single-axis and
// triaxial recordings.
package segment

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/magarray/magclean/internal/ubss"
)

// ReadCSV parses a segment file into a measurement tensor. Rows must
// cover every (sensor, axis) pair exactly once and carry the same
// number of samples.
func ReadCSV(r io.Reader) (*ubss.Tensor, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("segment: read header: %w", err)
	}
	if len(header) < 3 || header[0] != "sensor" || header[1] != "axis" {
		return nil, fmt.Errorf("segment: bad header, want sensor,axis,s0,... got %q", strings.Join(header, ","))
	}
	samples := len(header) - 2

	type channel struct {
		sensor, axis int
		values       []float64
	}
	var channels []channel
	maxSensor, maxAxis := -1, -1
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("segment: line %d: %w", line, err)
		}
		if len(rec) != samples+2 {
			return nil, fmt.Errorf("segment: line %d: %d columns, want %d", line, len(rec), samples+2)
		}
		sensor, err := strconv.Atoi(rec[0])
		if err != nil || sensor < 0 {
			return nil, fmt.Errorf("segment: line %d: bad sensor %q", line, rec[0])
		}
		axis, err := strconv.Atoi(rec[1])
		if err != nil || axis < 0 {
			return nil, fmt.Errorf("segment: line %d: bad axis %q", line, rec[1])
		}
		values := make([]float64, samples)
		for i, field := range rec[2:] {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("segment: line %d col %d: %w", line, i+3, err)
			}
			values[i] = v
		}
		channels = append(channels, channel{sensor, axis, values})
		if sensor > maxSensor {
			maxSensor = sensor
		}
		if axis > maxAxis {
			maxAxis = axis
		}
	}
	if len(channels) == 0 {
		return nil, fmt.Errorf("segment: no channel rows")
	}

	nSensors, nAxes := maxSensor+1, maxAxis+1
	if len(channels) != nSensors*nAxes {
		return nil, fmt.Errorf("segment: %d channel rows for %d sensors x %d axes", len(channels), nSensors, nAxes)
	}
	b, err := ubss.NewTensor(nSensors, nAxes, samples)
	if err != nil {
		return nil, fmt.Errorf("segment: %w", err)
	}
	seen := make(map[[2]int]bool, len(channels))
	for _, ch := range channels {
		key := [2]int{ch.sensor, ch.axis}
		if seen[key] {
			return nil, fmt.Errorf("segment: duplicate channel sensor=%d axis=%d", ch.sensor, ch.axis)
		}
		seen[key] = true
		if err := b.SetRow(ch.sensor, ch.axis, ch.values); err != nil {
			return nil, fmt.Errorf("segment: %w", err)
		}
	}
	return b, nil
}

// WriteCSV writes a measurement tensor in the segment file layout.
func WriteCSV(w io.Writer, b *ubss.Tensor) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, b.Samples+2)
	header = append(header, "sensor", "axis")
	for i := 0; i < b.Samples; i++ {
		header = append(header, fmt.Sprintf("s%d", i))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("segment: write header: %w", err)
	}
	row := make([]string, b.Samples+2)
	for sensor := 0; sensor < b.Sensors; sensor++ {
		for axis := 0; axis < b.Axes; axis++ {
			row[0] = strconv.Itoa(sensor)
			row[1] = strconv.Itoa(axis)
			for i, v := range b.Row(sensor, axis) {
				row[i+2] = strconv.FormatFloat(v, 'g', -1, 64)
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("segment: write channel %d/%d: %w", sensor, axis, err)
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFieldCSV writes a cleaned ambient field, one row per axis.
func WriteFieldCSV(w io.Writer, field [][]float64) error {
	if len(field) == 0 {
		return fmt.Errorf("segment: empty field")
	}
	samples := len(field[0])
	cw := csv.NewWriter(w)
	header := make([]string, 0, samples+1)
	header = append(header, "axis")
	for i := 0; i < samples; i++ {
		header = append(header, fmt.Sprintf("s%d", i))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("segment: write header: %w", err)
	}
	row := make([]string, samples+1)
	for axis, values := range field {
		if len(values) != samples {
			return fmt.Errorf("segment: axis %d has %d samples, want %d", axis, len(values), samples)
		}
		row[0] = strconv.Itoa(axis)
		for i, v := range values {
			row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("segment: write axis %d: %w", axis, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
