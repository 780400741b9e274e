package segment

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magarray/magclean/internal/ubss"
)

func TestReadCSV(t *testing.T) {
	in := strings.Join([]string{
		"sensor,axis,s0,s1,s2",
		"0,0,1.5,2.5,3.5",
		"1,0,-1,0,1e3",
	}, "\n") + "\n"

	b, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, 2, b.Sensors)
	assert.Equal(t, 1, b.Axes)
	assert.Equal(t, 3, b.Samples)
	assert.Equal(t, []float64{1.5, 2.5, 3.5}, b.Row(0, 0))
	assert.Equal(t, []float64{-1, 0, 1000}, b.Row(1, 0))
}

func TestReadCSVErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"bad header", "time,value\n0,1\n"},
		{"no rows", "sensor,axis,s0\n"},
		{"ragged row", "sensor,axis,s0,s1\n0,0,1\n"},
		{"bad sensor", "sensor,axis,s0\nx,0,1\n"},
		{"bad value", "sensor,axis,s0\n0,0,abc\n"},
		{"duplicate channel", "sensor,axis,s0\n0,0,1\n0,0,2\n"},
		{"missing channel", "sensor,axis,s0\n0,0,1\n2,0,2\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tc.in))
			assert.Error(t, err)
		})
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	b, err := ubss.NewTensor(3, 2, 4)
	require.NoError(t, err)
	for sensor := 0; sensor < 3; sensor++ {
		for axis := 0; axis < 2; axis++ {
			for i := 0; i < 4; i++ {
				b.Set(sensor, axis, i, float64(sensor)*100+float64(axis)*10+float64(i)+0.25)
			}
		}
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, b))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, b, got)
}

func TestStats(t *testing.T) {
	b, err := ubss.NewTensor(2, 1, 4)
	require.NoError(t, err)
	require.NoError(t, b.SetRow(0, 0, []float64{1, 2, 3, 4}))
	require.NoError(t, b.SetRow(1, 0, []float64{-2, 0, 2, 0}))

	stats, err := Stats(b)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	assert.Equal(t, 0, stats[0].Sensor)
	assert.InDelta(t, 2.5, stats[0].Mean, 1e-12)
	assert.InDelta(t, 1.0, stats[0].Min, 1e-12)
	assert.InDelta(t, 4.0, stats[0].Max, 1e-12)

	assert.Equal(t, 1, stats[1].Sensor)
	assert.InDelta(t, 0, stats[1].Mean, 1e-12)
	assert.InDelta(t, -2.0, stats[1].Min, 1e-12)
	assert.InDelta(t, 2.0, stats[1].Max, 1e-12)

	_, err = Stats(nil)
	assert.Error(t, err)
}

func TestWriteFieldCSV(t *testing.T) {
	var buf bytes.Buffer
	field := [][]float64{
		{1, 2, 3},
		{-0.5, 0, 0.5},
	}
	require.NoError(t, WriteFieldCSV(&buf, field))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "axis,s0,s1,s2", lines[0])
	assert.Equal(t, "0,1,2,3", lines[1])
	assert.Equal(t, "1,-0.5,0,0.5", lines[2])

	assert.Error(t, WriteFieldCSV(&buf, nil))
	assert.Error(t, WriteFieldCSV(&buf, [][]float64{{1, 2}, {1}}))
}
