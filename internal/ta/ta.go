package ta

import (
	"math"

	"momentum-screener/internal/types"
)

func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

func Volumes(candles []types.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Vol
	}
	return out
}

// AverageVolume averages up to days bars that precede the latest bar.
// The latest bar is today's session and is excluded so a surge does not inflate its own baseline.
func AverageVolume(candles []types.Candle, days int) (float64, bool) {
	if len(candles) < 2 || days <= 0 {
		return 0, false
	}
	prior := Volumes(candles[:len(candles)-1])
	n := days
	if n > len(prior) {
		n = len(prior)
	}
	avg := SMA(prior, n)
	if math.IsNaN(avg) {
		return 0, false
	}
	return avg, true
}

// PreviousClose returns the close of the bar before the latest one.
func PreviousClose(candles []types.Candle) (float64, bool) {
	if len(candles) < 2 {
		return 0, false
	}
	c := candles[len(candles)-2].Close
	return c, c > 0
}
