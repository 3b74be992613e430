package sample

import (
	"github.com/itohio/adcstream/pkg/filter"
	"github.com/itohio/adcstream/pkg/store"
)

// AverageRepeats returns, for each unique channel in order of first
// appearance, the per-sweep mean of every sample that channel contributes to
// the sweep. Positions beyond the view's sweep length are ignored.
func AverageRepeats(v store.View, channels []int, repeat int) ([]int, [][]float32) {
	order, indices := filter.Layout(channels, repeat)
	means := make([][]float32, len(order))

	for c, ch := range order {
		var idx []int
		for _, i := range indices[ch] {
			if i < v.SamplesPerSweep {
				idx = append(idx, i)
			}
		}

		series := make([]float32, v.Len())
		if len(idx) > 0 {
			for s := range series {
				sweep := v.Sweep(s)
				var sum float32
				for _, i := range idx {
					sum += sweep[i]
				}
				series[s] = sum / float32(len(idx))
			}
		}
		means[c] = series
	}
	return order, means
}
