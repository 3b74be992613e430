package filter

import (
	"errors"
	"math"
	"testing"

	"github.com/itohio/adcstream/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lowPass(cutoff float64) Settings {
	s := DefaultSettings()
	s.Enabled = true
	s.Type = LowPass
	s.Order = 4
	s.LowCutoffHz = cutoff
	return s
}

func signal(n int, fs float64) []float64 {
	x := make([]float64, n)
	for i := range x {
		t := float64(i) / fs
		x[i] = math.Sin(2*math.Pi*5*t) + 0.5*math.Sin(2*math.Pi*180*t) + 0.1
	}
	return x
}

func TestChannelRates(t *testing.T) {
	const r = 1000.0
	rates := ChannelRates([]int{0, 1, 1, 2}, r)
	require.Len(t, rates, 3)
	assert.InDelta(t, r/4, rates[0], 1e-12)
	assert.InDelta(t, r/2, rates[1], 1e-12)
	assert.InDelta(t, r/4, rates[2], 1e-12)

	assert.Empty(t, ChannelRates(nil, r))
}

func TestBuildPlan_Indices(t *testing.T) {
	tests := []struct {
		name     string
		channels []int
		repeat   int
		want     map[int][]int
		order    []int
	}{
		{"simple", []int{0, 1, 2}, 1, map[int][]int{0: {0}, 1: {1}, 2: {2}}, []int{0, 1, 2}},
		{"repeated channel", []int{0, 1, 1, 2}, 1, map[int][]int{0: {0}, 1: {1, 2}, 2: {3}}, []int{0, 1, 2}},
		{"repeat count", []int{3, 5}, 2, map[int][]int{3: {0, 1}, 5: {2, 3}}, []int{3, 5}},
		{"first appearance order", []int{7, 2, 7}, 2, map[int][]int{7: {0, 1, 4, 5}, 2: {2, 3}}, []int{7, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := BuildPlan(lowPass(10), tt.channels, tt.repeat, 1000)
			require.NoError(t, err)
			require.Len(t, plan, len(tt.order))
			for i, rt := range plan {
				assert.Equal(t, tt.order[i], rt.Channel)
				assert.Equal(t, tt.want[rt.Channel], rt.Indices)
				assert.NotEmpty(t, rt.Cascade)
				assert.Len(t, rt.State, len(rt.Cascade))
			}
		})
	}
}

func TestEngine_Bypass(t *testing.T) {
	e := NewEngine(DefaultSettings())
	e.Configure([]int{0, 1}, 1)
	require.False(t, e.Enabled())

	in := []float64{1, 2, 3, 4, 5, 6}
	out, err := e.Process(in, 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	out[0] = 42
	assert.Equal(t, 1.0, in[0], "output must be a copy")
}

func TestEngine_Continuity(t *testing.T) {
	const fs = 1000.0
	x := signal(70, fs)

	whole := NewEngine(lowPass(50))
	whole.Configure([]int{0}, 1)
	want, err := whole.Process(x, 1, fs)
	require.NoError(t, err)

	split := NewEngine(lowPass(50))
	split.Configure([]int{0}, 1)
	var got []float64
	off := 0
	for _, n := range []int{7, 13, 50} {
		y, err := split.Process(x[off:off+n], 1, fs)
		require.NoError(t, err)
		got = append(got, y...)
		off += n
	}

	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i], got[i], 1e-9, "sample %d", i)
	}
	assert.Equal(t, want[0], got[0])
}

func TestEngine_Multiplexed(t *testing.T) {
	const fs = 1000.0
	channels := []int{0, 1, 1, 2}
	settings := lowPass(40)

	e := NewEngine(settings)
	e.Configure(channels, 1)
	require.NoError(t, e.Apply(settings, fs))

	plan := e.Plan()
	require.Len(t, plan, 3)
	assert.InDelta(t, 250, plan[0].RateHz, 1e-9)
	assert.InDelta(t, 500, plan[1].RateHz, 1e-9)
	assert.InDelta(t, 250, plan[2].RateHz, 1e-9)

	const sweeps = 32
	block := make([]float64, sweeps*len(channels))
	for i := range block {
		block[i] = math.Sin(float64(i)*0.37) + float64(i%4)
	}
	out, err := e.Process(block, len(channels), fs)
	require.NoError(t, err)

	for _, info := range plan {
		var stream []float64
		for r := 0; r < sweeps; r++ {
			for _, idx := range info.Indices {
				stream = append(stream, block[r*len(channels)+idx])
			}
		}
		c, err := settings.Design(info.RateHz)
		require.NoError(t, err)
		y, _ := c.Filter(stream, nil)

		k := 0
		for r := 0; r < sweeps; r++ {
			for _, idx := range info.Indices {
				assert.InDelta(t, y[k], out[r*len(channels)+idx], 1e-12, "channel %d sweep %d", info.Channel, r)
				k++
			}
		}
	}
}

func TestEngine_FailureDisables(t *testing.T) {
	// channel 0 runs at 250 Hz so a 200 Hz cutoff is beyond its Nyquist
	settings := lowPass(200)
	e := NewEngine(settings)
	e.Configure([]int{0, 1, 1, 2}, 1)

	err := e.Apply(settings, 1000)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)

	var ferr *Error
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, 0, ferr.Channel)
	assert.InDelta(t, 250, ferr.RateHz, 1e-9)

	assert.False(t, e.Enabled())
	assert.Equal(t, err, e.LastError())
	assert.Empty(t, e.Plan())

	in := []float64{1, 2, 3, 4}
	out, err := e.Process(in, 4, 1000)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEngine_DeferredRate(t *testing.T) {
	settings := lowPass(20)
	e := NewEngine(settings)
	e.Configure([]int{0}, 1)

	require.NoError(t, e.Apply(settings, 0))
	assert.True(t, e.Enabled())
	assert.Empty(t, e.Plan())

	in := []float64{1, 2, 3}
	out, err := e.Process(in, 1, 0)
	assert.ErrorIs(t, err, ErrSampleRate)
	assert.Equal(t, in, out)
	assert.False(t, e.Enabled())
	assert.ErrorIs(t, e.LastError(), ErrSampleRate)
}

func TestEngine_RateChangeRebuilds(t *testing.T) {
	settings := lowPass(20)
	e := NewEngine(settings)
	e.Configure([]int{0, 1}, 1)
	require.NoError(t, e.Apply(settings, 1000))
	assert.InDelta(t, 500, e.Plan()[0].RateHz, 1e-9)

	_, err := e.Process(make([]float64, 4), 2, 2000)
	require.NoError(t, err)
	assert.InDelta(t, 1000, e.Plan()[0].RateHz, 1e-9)

	e.Configure([]int{0, 1, 2}, 1)
	_, err = e.Process(make([]float64, 6), 3, 2000)
	require.NoError(t, err)
	assert.Len(t, e.Plan(), 3)
}

func TestEngine_SweepMismatch(t *testing.T) {
	settings := lowPass(20)
	e := NewEngine(settings)
	e.Configure([]int{0, 1}, 1)

	in := []float64{1, 2, 3}
	out, err := e.Process(in, 3, 1000)
	assert.Error(t, err)
	assert.Equal(t, in, out)
	assert.True(t, e.Enabled(), "layout mismatch is not a design failure")

	_, err = e.Process(in, 2, 1000)
	assert.Error(t, err)
}

func TestEngine_Prime(t *testing.T) {
	settings := lowPass(20)
	settings.Prime = true
	e := NewEngine(settings)
	e.Configure([]int{0}, 1)

	in := make([]float64, 50)
	for i := range in {
		in[i] = 2.5
	}
	out, err := e.Process(in, 1, 1000)
	require.NoError(t, err)
	for i, v := range out {
		assert.InDelta(t, 2.5, v, 1e-9, "sample %d", i)
	}
}

func TestEngine_Reprocess(t *testing.T) {
	const fs = 1000.0
	st, err := store.New(5, 1)
	require.NoError(t, err)

	x := signal(8, fs)
	for i, v := range x {
		require.NoError(t, st.Write([]float32{float32(v)}, []float32{float32(v)}, float64(i)))
	}

	settings := lowPass(50)
	e := NewEngine(settings)
	e.Configure([]int{0}, 1)
	require.NoError(t, e.Apply(settings, fs))
	require.NoError(t, e.Reprocess(st, fs))

	w := st.ReadWindow(5)
	stream := make([]float64, w.Len())
	for i := range stream {
		stream[i] = float64(w.Raw[i])
	}
	c, err := settings.Design(fs)
	require.NoError(t, err)
	want, _ := c.Filter(stream, nil)

	for i := range want {
		assert.InDelta(t, want[i], float64(w.Filtered[i]), 1e-5, "sweep %d", i)
	}
	assert.Equal(t, []float64{3, 4, 5, 6, 7}, w.Timestamps)
}

func TestEngine_ReprocessDisabledCopiesRaw(t *testing.T) {
	st, err := store.New(3, 2)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		v := float32(i)
		require.NoError(t, st.Write([]float32{v, v + 0.5}, []float32{-1, -1}, float64(i)))
	}

	e := NewEngine(DefaultSettings())
	e.Configure([]int{0, 1}, 1)
	require.NoError(t, e.Reprocess(st, 1000))

	w := st.ReadWindow(3)
	assert.Equal(t, w.Raw, w.Filtered)
}
