package ubss

import "fmt"

// movingAverage computes a centered moving average of x with the given window
// length. Windows are clamped at the signal edges so the output has the same
// length as the input.
func movingAverage(x []float64, window int) []float64 {
	n := len(x)
	out := make([]float64, n)
	half := window / 2
	for i := 0; i < n; i++ {
		lo := i - half
		hi := lo + window
		if lo < 0 {
			lo = 0
		}
		if hi > n {
			hi = n
		}
		sum := 0.0
		for j := lo; j < hi; j++ {
			sum += x[j]
		}
		out[i] = sum / float64(hi-lo)
	}
	return out
}

// detrendRows subtracts a moving-average baseline from each row, returning
// the detrended rows and the removed trends. The input rows are not mutated.
func detrendRows(rows [][]float64, window int) (detrended, trend [][]float64, err error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("ubss: no rows to detrend")
	}
	n := len(rows[0])
	if window <= 0 || window > n {
		return nil, nil, fmt.Errorf("ubss: detrend window %d out of range (0, %d]", window, n)
	}

	detrended = make([][]float64, len(rows))
	trend = make([][]float64, len(rows))
	for i, row := range rows {
		trend[i] = movingAverage(row, window)
		detrended[i] = make([]float64, n)
		for j := range row {
			detrended[i][j] = row[j] - trend[i][j]
		}
	}
	return detrended, trend, nil
}

// meanAcrossRows collapses per-sensor trends into a single baseline by
// averaging across the sensor axis.
func meanAcrossRows(rows [][]float64) []float64 {
	if len(rows) == 0 {
		return nil
	}
	n := len(rows[0])
	out := make([]float64, n)
	for _, row := range rows {
		for j, v := range row {
			out[j] += v
		}
	}
	inv := 1 / float64(len(rows))
	for j := range out {
		out[j] *= inv
	}
	return out
}
