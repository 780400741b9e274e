package segment

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/magarray/magclean/internal/ubss"
)

// ChannelStats summarizes one (sensor, axis) channel of a segment.
type ChannelStats struct {
	Sensor int
	Axis   int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Stats computes per-channel summary statistics for a measurement tensor,
// in (sensor, axis) order.
func Stats(b *ubss.Tensor) ([]ChannelStats, error) {
	if b == nil {
		return nil, fmt.Errorf("segment: nil tensor")
	}
	out := make([]ChannelStats, 0, b.Sensors*b.Axes)
	for sensor := 0; sensor < b.Sensors; sensor++ {
		for axis := 0; axis < b.Axes; axis++ {
			row := b.Row(sensor, axis)
			mean, std := stat.MeanStdDev(row, nil)
			min, max := row[0], row[0]
			for _, v := range row[1:] {
				if v < min {
					min = v
				}
				if v > max {
					max = v
				}
			}
			out = append(out, ChannelStats{
				Sensor: sensor,
				Axis:   axis,
				Mean:   mean,
				StdDev: std,
				Min:    min,
				Max:    max,
			})
		}
	}
	return out, nil
}
