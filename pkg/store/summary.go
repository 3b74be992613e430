package store

import (
	"github.com/chewxy/math32"
)

// Summary describes one sweep position (one column) over a view.
type Summary struct {
	Index int
	Min   float32
	Max   float32
	Mean  float32
	RMS   float32 // RMS about the mean
	Last  float32
}

// Summarize computes per-column statistics over the sweeps in v.
// It returns nil for an empty view.
func Summarize(v View) []Summary {
	n := v.Len()
	if n == 0 || v.SamplesPerSweep == 0 {
		return nil
	}

	out := make([]Summary, v.SamplesPerSweep)
	for c := range out {
		lo, hi := math32.Inf(1), math32.Inf(-1)
		var sum float32
		for i := 0; i < n; i++ {
			x := v.Data[i*v.SamplesPerSweep+c]
			lo = math32.Min(lo, x)
			hi = math32.Max(hi, x)
			sum += x
		}
		mean := sum / float32(n)

		var sq float32
		for i := 0; i < n; i++ {
			d := v.Data[i*v.SamplesPerSweep+c] - mean
			sq += d * d
		}

		out[c] = Summary{
			Index: c,
			Min:   lo,
			Max:   hi,
			Mean:  mean,
			RMS:   math32.Sqrt(sq / float32(n)),
			Last:  v.Data[(n-1)*v.SamplesPerSweep+c],
		}
	}
	return out
}
