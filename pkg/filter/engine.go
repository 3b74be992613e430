package filter

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ChannelRuntime carries the design and the running state of one logical channel.
type ChannelRuntime struct {
	Channel int
	Indices []int   // positions of this channel inside one sweep
	RateHz  float64 // effective sample rate of this channel
	Cascade Cascade
	State   State

	steady State // per-unit steady state, used when priming
	primed bool
}

// ChannelInfo is a read-only description of a planned channel.
type ChannelInfo struct {
	Channel  int
	Indices  []int
	RateHz   float64
	Sections int
}

// Source is the store side of reprocessing.
type Source interface {
	SamplesPerSweep() int
	Chronological() (positions []int, raw []float32)
	WriteFiltered(positions []int, filtered []float32) error
}

// Engine applies continuous per-channel IIR filtering to blocks of sweeps
// whose channels are multiplexed at different effective rates.
//
// Engine is not safe for concurrent use: a single goroutine owns the channel
// states.
type Engine struct {
	settings Settings
	enabled  bool
	lastErr  error

	channels []int
	repeat   int

	planRate float64
	plan     []*ChannelRuntime
	pending  bool
}

// NewEngine creates an engine with the given settings and no channel layout.
func NewEngine(settings Settings) *Engine {
	return &Engine{
		settings: settings.Clone(),
		enabled:  settings.Enabled,
		repeat:   1,
		pending:  true,
	}
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() Settings {
	return e.settings.Clone()
}

// Enabled reports whether blocks are filtered. It turns false after any
// validation or design failure.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// LastError returns the reason filtering was disabled, if any.
func (e *Engine) LastError() error {
	return e.lastErr
}

// Configure sets the channel sequence and repeat count. The plan is rebuilt
// on the next block when the layout changed.
func (e *Engine) Configure(channels []int, repeat int) {
	repeat = max(1, repeat)
	if slices.Equal(channels, e.channels) && repeat == e.repeat {
		return
	}
	e.channels = slices.Clone(channels)
	e.repeat = repeat
	e.pending = true
}

// SamplesPerSweep returns len(channels) * repeat for the configured layout.
func (e *Engine) SamplesPerSweep() int {
	return len(e.channels) * e.repeat
}

// Apply installs new settings. When rateHz is known the plan is designed
// immediately and any failure disables filtering and is returned; otherwise
// design is deferred to the first block.
func (e *Engine) Apply(settings Settings, rateHz float64) error {
	e.settings = settings.Clone()
	e.enabled = settings.Enabled
	e.lastErr = nil
	e.pending = true

	if !e.enabled {
		e.plan = nil
		return nil
	}
	if err := e.settings.Check(); err != nil {
		return e.fail(&Error{Channel: -1, Err: err})
	}
	if rateHz > 0 {
		if err := e.ensure(rateHz); err != nil {
			return err
		}
	}
	return nil
}

// Plan describes the current channel plan.
func (e *Engine) Plan() []ChannelInfo {
	out := make([]ChannelInfo, len(e.plan))
	for i, rt := range e.plan {
		out[i] = ChannelInfo{
			Channel:  rt.Channel,
			Indices:  slices.Clone(rt.Indices),
			RateHz:   rt.RateHz,
			Sections: len(rt.Cascade),
		}
	}
	return out
}

// Reset returns every channel to its initial state.
func (e *Engine) Reset() {
	for _, rt := range e.plan {
		rt.State = rt.Cascade.NewState()
		rt.primed = false
	}
}

// Process filters a block of sweeps laid out row-major with samplesPerSweep
// samples per sweep and returns a filtered copy. When filtering is disabled
// the copy is exact. A non-nil error means the block was passed through
// unfiltered; validation and design errors also disable filtering.
func (e *Engine) Process(block []float64, samplesPerSweep int, rateHz float64) ([]float64, error) {
	out := slices.Clone(block)
	if !e.enabled || len(block) == 0 {
		return out, nil
	}
	if samplesPerSweep <= 0 || len(block)%samplesPerSweep != 0 {
		return out, fmt.Errorf("block of %d samples is not whole sweeps of %d", len(block), samplesPerSweep)
	}
	if err := e.ensure(rateHz); err != nil {
		return out, err
	}
	if samplesPerSweep != e.SamplesPerSweep() {
		return out, fmt.Errorf("sweep length %d does not match channel layout %d", samplesPerSweep, e.SamplesPerSweep())
	}

	sweeps := len(block) / samplesPerSweep
	for _, rt := range e.plan {
		if len(rt.Cascade) == 0 {
			continue
		}

		stream := make([]float64, 0, sweeps*len(rt.Indices))
		for r := 0; r < sweeps; r++ {
			row := block[r*samplesPerSweep:]
			for _, idx := range rt.Indices {
				stream = append(stream, row[idx])
			}
		}

		if e.settings.Prime && !rt.primed {
			rt.State = rt.steady.Scale(stream[0])
			rt.primed = true
		}

		y, zf := rt.Cascade.Filter(stream, rt.State)
		rt.State = zf

		k := 0
		for r := 0; r < sweeps; r++ {
			row := out[r*samplesPerSweep:]
			for _, idx := range rt.Indices {
				row[idx] = y[k]
				k++
			}
		}
	}
	return out, nil
}

// Reprocess refilters every resident sweep of src in chronological order from
// reset channel states and writes the result over the filtered slots that
// hold the same sweeps. With filtering disabled the raw data is copied.
func (e *Engine) Reprocess(src Source, rateHz float64) error {
	positions, raw := src.Chronological()
	if len(positions) == 0 {
		return nil
	}

	if !e.enabled {
		return src.WriteFiltered(positions, raw)
	}

	e.pending = true
	if err := e.ensure(rateHz); err != nil {
		return errors.Join(err, src.WriteFiltered(positions, raw))
	}
	e.Reset()

	block := make([]float64, len(raw))
	for i, v := range raw {
		block[i] = float64(v)
	}
	filtered, err := e.Process(block, src.SamplesPerSweep(), rateHz)
	if err != nil {
		return errors.Join(err, src.WriteFiltered(positions, raw))
	}

	out := make([]float32, len(filtered))
	for i, v := range filtered {
		out[i] = float32(v)
	}
	return src.WriteFiltered(positions, out)
}

// ensure rebuilds the plan when the layout, the rate or the settings changed.
func (e *Engine) ensure(rateHz float64) error {
	if !e.pending && math.Abs(e.planRate-rateHz) <= 1e-6 {
		return nil
	}
	if rateHz <= 0 {
		return e.fail(&Error{Channel: -1, Err: fmt.Errorf("%w: cannot design filters", ErrSampleRate)})
	}

	plan, err := BuildPlan(e.settings, e.channels, e.repeat, rateHz)
	if err != nil {
		return e.fail(err)
	}
	e.plan = plan
	e.planRate = rateHz
	e.pending = false
	return nil
}

func (e *Engine) fail(err error) error {
	e.enabled = false
	e.lastErr = err
	e.plan = nil
	return err
}

// ChannelRates returns the effective sample rate of each unique channel in
// sequence: totalRateHz scaled by the channel's share of the sequence.
func ChannelRates(channels []int, totalRateHz float64) map[int]float64 {
	rates := make(map[int]float64)
	if len(channels) == 0 {
		return rates
	}
	for _, ch := range channels {
		rates[ch] += totalRateHz / float64(len(channels))
	}
	return rates
}

// Layout returns the unique channels in order of first appearance and the
// positions each occupies inside a sweep. Sequence entry i covers positions
// i*repeat through i*repeat+repeat-1.
func Layout(channels []int, repeat int) ([]int, map[int][]int) {
	repeat = max(1, repeat)
	var order []int
	indices := make(map[int][]int)
	for seq, ch := range channels {
		if _, ok := indices[ch]; !ok {
			order = append(order, ch)
		}
		base := seq * repeat
		for i := 0; i < repeat; i++ {
			indices[ch] = append(indices[ch], base+i)
		}
	}
	return order, indices
}

// BuildPlan designs one runtime per unique channel, in order of first
// appearance. Any validation or design failure aborts the whole plan.
func BuildPlan(settings Settings, channels []int, repeat int, totalRateHz float64) ([]*ChannelRuntime, error) {
	rates := ChannelRates(channels, totalRateHz)
	order, indices := Layout(channels, repeat)

	plan := make([]*ChannelRuntime, 0, len(order))
	for _, ch := range order {
		rt := &ChannelRuntime{Channel: ch, Indices: indices[ch], RateHz: rates[ch]}

		c, err := settings.Design(rt.RateHz)
		if err != nil {
			return nil, &Error{Channel: rt.Channel, RateHz: rt.RateHz, Err: err}
		}
		rt.Cascade = c
		rt.State = c.NewState()
		if settings.Prime && len(c) > 0 {
			steady, err := c.SteadyState()
			if err != nil {
				return nil, &Error{Channel: rt.Channel, RateHz: rt.RateHz, Err: err}
			}
			rt.steady = steady
		}
		plan = append(plan, rt)
	}
	return plan, nil
}
