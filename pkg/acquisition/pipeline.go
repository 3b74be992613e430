package acquisition

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/itohio/adcstream/pkg/filter"
	"github.com/itohio/adcstream/pkg/protocol"
	"github.com/itohio/adcstream/pkg/store"
	"github.com/itohio/adcstream/pkg/timing"
)

// Update is published after every stored block. Only the latest update is
// kept for a slow consumer.
type Update struct {
	Total       uint64  // sweeps written since capture start
	Sweeps      int     // sweeps added by the block
	LastTime    float64 // relative time of the newest sweep
	GapUS       uint32
	TotalRateHz float64
	Filtered    bool // filtered buffer is the active one
}

// Pipeline turns the raw byte stream into stored, optionally filtered sweeps.
//
// A single producer goroutine calls Feed (usually through Run). Consumers may
// call the read methods concurrently; they only touch the store under its
// own lock. Callbacks run on the producer goroutine after its locks are
// released.
type Pipeline struct {
	ctx *Context

	// mu serialises block processing with reconfiguration. It guards the
	// decoder buffer, the reconstructor, the filter engine and the layout.
	mu       sync.Mutex
	channels []int
	repeat   int

	mcuMu sync.RWMutex
	mcu   protocol.Status

	cbMu     sync.RWMutex
	onBlock  func(protocol.Block)
	onText   func(string)
	onStatus StatusFunc

	updates chan Update
}

// New creates a pipeline around c using the channel layout of c.Config.
func New(c *Context) *Pipeline {
	acq := c.Config.Acquisition
	return &Pipeline{
		ctx:      c,
		channels: slices.Clone(acq.Channels),
		repeat:   max(1, acq.Repeat),
		onStatus: LogStatus,
		updates:  make(chan Update, 1),
	}
}

// OnBlock registers the callback for every decoded binary block.
func (p *Pipeline) OnBlock(fn func(protocol.Block)) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.onBlock = fn
}

// OnText registers the callback for every '#' text line.
func (p *Pipeline) OnText(fn func(string)) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	p.onText = fn
}

// OnStatus registers the status sink. A nil fn restores LogStatus.
func (p *Pipeline) OnStatus(fn StatusFunc) {
	p.cbMu.Lock()
	defer p.cbMu.Unlock()
	if fn == nil {
		fn = LogStatus
	}
	p.onStatus = fn
}

// Updates returns the single-slot update channel.
func (p *Pipeline) Updates() <-chan Update {
	return p.updates
}

// Run feeds every chunk from data until data is closed or ctx is done.
func (p *Pipeline) Run(ctx context.Context, data <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-data:
			if !ok {
				return nil
			}
			p.Feed(chunk)
		}
	}
}

// Feed decodes chunk and stores every complete block it finishes. It never
// fails; problems are reported through the status callback.
func (p *Pipeline) Feed(chunk []byte) {
	notes := p.process(chunk)
	for _, fn := range notes {
		p.safeCall(fn)
	}
}

// Configure changes the channel sequence and repeat count. Any change of
// layout discards the stored sweeps and restarts the timestamp reference;
// an empty layout is rejected without touching the current one.
func (p *Pipeline) Configure(channels []int, repeat int) error {
	repeat = max(1, repeat)
	spp := len(channels) * repeat
	if spp == 0 {
		return fmt.Errorf("failed to configure layout: %w: no channels", store.ErrInvalidSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if slices.Equal(p.channels, channels) && repeat == p.repeat && spp == p.ctx.Store.SamplesPerSweep() {
		return nil
	}

	if spp != p.ctx.Store.SamplesPerSweep() {
		if err := p.ctx.Store.Reallocate(spp); err != nil {
			return fmt.Errorf("failed to reallocate sweep store: %w", err)
		}
	} else {
		p.ctx.Store.Reset()
	}

	p.channels = slices.Clone(channels)
	p.repeat = repeat
	p.ctx.Filter.Configure(channels, repeat)
	p.ctx.Timing.Reset()
	p.ctx.Stats.SetChannelCount(uniqueChannels(channels))
	return nil
}

// StartCapture clears stored sweeps, filter state and timing and starts
// accepting binary blocks.
func (p *Pipeline) StartCapture() {
	p.mu.Lock()
	p.ctx.Store.Reset()
	p.ctx.Filter.Reset()
	p.ctx.Timing.Reset()
	p.ctx.Stats.Reset()
	p.ctx.Decoder.SetCapturing(true)
	p.mu.Unlock()

	p.notify(Info, "capture started")
}

// StopCapture makes the decoder discard binary blocks. Text lines are still
// delivered.
func (p *Pipeline) StopCapture() {
	p.ctx.Decoder.SetCapturing(false)
	p.notify(Info, "capture stopped")
}

// Capturing reports whether binary blocks are accepted.
func (p *Pipeline) Capturing() bool {
	return p.ctx.Decoder.Capturing()
}

// ApplyFilterSettings installs new filter settings and, when sweeps are
// already stored, refilters them. A validation or design error disables
// filtering and is returned; the raw buffer becomes the active one.
func (p *Pipeline) ApplyFilterSettings(s filter.Settings) error {
	p.mu.Lock()
	rate := p.ctx.Stats.TotalRateHz()
	err := p.ctx.Filter.Apply(s, rate)
	var rerr error
	if err == nil && p.ctx.Store.Len() > 0 {
		rerr = p.ctx.Filter.Reprocess(p.ctx.Store, rate)
	}
	enabled := p.ctx.Filter.Enabled()
	p.ctx.Store.SetFilterEnabled(enabled)
	p.mu.Unlock()

	switch {
	case err != nil:
		p.notify(Error, fmt.Sprintf("filtering disabled: %v", err))
		return err
	case rerr != nil:
		p.notify(Error, fmt.Sprintf("failed to reprocess stored sweeps: %v", rerr))
		return rerr
	case enabled:
		p.notify(Info, fmt.Sprintf("filter applied: %s order %d", s.Type, s.EffectiveOrder()))
	default:
		p.notify(Info, "filtering off")
	}
	return nil
}

// ReprocessExisting refilters every stored sweep from reset filter state.
func (p *Pipeline) ReprocessExisting() error {
	p.mu.Lock()
	err := p.ctx.Filter.Reprocess(p.ctx.Store, p.ctx.Stats.TotalRateHz())
	p.ctx.Store.SetFilterEnabled(p.ctx.Filter.Enabled())
	p.mu.Unlock()

	if err != nil {
		p.notify(Error, fmt.Sprintf("failed to reprocess stored sweeps: %v", err))
	}
	return err
}

// ReadWindow returns copies of the newest n sweeps, raw and filtered.
func (p *Pipeline) ReadWindow(n int) store.Window {
	return p.ctx.Store.ReadWindow(n)
}

// ActiveWindow returns the newest n sweeps of the active buffer.
func (p *Pipeline) ActiveWindow(n int) store.View {
	return p.ctx.Store.ActiveWindow(n)
}

// ActiveBuffer returns every stored sweep of the active buffer.
func (p *Pipeline) ActiveBuffer() store.View {
	return p.ctx.Store.ActiveBuffer()
}

// Summary returns per-position statistics over the newest n sweeps of the
// active buffer.
func (p *Pipeline) Summary(n int) []store.Summary {
	return store.Summarize(p.ctx.Store.ActiveWindow(n))
}

// McuStatus returns the configuration last reported by the MCU.
func (p *Pipeline) McuStatus() protocol.Status {
	p.mcuMu.RLock()
	defer p.mcuMu.RUnlock()
	return p.mcu.Clone()
}

// Timing returns the block timing statistics.
func (p *Pipeline) Timing() timing.Snapshot {
	return p.ctx.Stats.Snapshot()
}

// FilterState reports whether filtering is active and why it was disabled.
func (p *Pipeline) FilterState() (enabled bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx.Filter.Enabled(), p.ctx.Filter.LastError()
}

// FilterPlan describes the per-channel filter plan.
func (p *Pipeline) FilterPlan() []filter.ChannelInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ctx.Filter.Plan()
}

// process runs under mu and returns the callbacks to fire once it is released.
func (p *Pipeline) process(chunk []byte) (notes []func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("recovered from panic while processing input: %v\n%s", r, debug.Stack())
			notes = p.status(notes, Error, msg)
		}
	}()

	for _, ev := range p.ctx.Decoder.Feed(chunk) {
		switch ev.Kind {
		case protocol.EventText:
			notes = p.handleText(ev.Text, notes)
		case protocol.EventBlock:
			notes = p.handleBlock(ev.Block, notes)
		}
	}
	return notes
}

func (p *Pipeline) handleText(line string, notes []func()) []func() {
	p.mcuMu.Lock()
	p.mcu.Apply(line)
	p.mcuMu.Unlock()

	p.cbMu.RLock()
	cb := p.onText
	p.cbMu.RUnlock()
	if cb != nil {
		notes = append(notes, func() { cb(line) })
	}
	return notes
}

func (p *Pipeline) handleBlock(b protocol.Block, notes []func()) []func() {
	spp := len(p.channels) * p.repeat
	if spp == 0 {
		return p.status(notes, Warn, "dropping block: no channels configured")
	}

	st := p.ctx.Store
	if st.SamplesPerSweep() != spp {
		if err := st.Reallocate(spp); err != nil {
			return p.status(notes, Error, fmt.Sprintf("dropping block: %v", err))
		}
	}

	bt := p.ctx.Timing.Observe(b, spp)
	if bt.Truncated > 0 {
		notes = p.status(notes, Warn, fmt.Sprintf("block of %d samples is not a multiple of %d, dropped %d trailing samples",
			len(b.Samples), spp, bt.Truncated))
	}
	p.ctx.Stats.Record(timing.BlockInfo{
		AvgSampleTimeUS: b.AvgSampleTimeUS,
		StartUS:         b.StartUS,
		EndUS:           b.EndUS,
		GapUS:           bt.GapUS,
		HasGap:          bt.HasGap,
		Sweeps:          bt.SweepsInBlock,
	})
	rate := p.ctx.Stats.TotalRateHz()

	rows := make([]float64, bt.SampleCount)
	for i := range rows {
		rows[i] = float64(b.Samples[i])
	}

	wasEnabled := p.ctx.Filter.Enabled()
	filtered, err := p.ctx.Filter.Process(rows, spp, rate)
	if err != nil {
		if wasEnabled && !p.ctx.Filter.Enabled() {
			st.SetFilterEnabled(false)
			notes = p.status(notes, Error, fmt.Sprintf("filtering disabled: %v", err))
		} else {
			notes = p.status(notes, Warn, fmt.Sprintf("block stored unfiltered: %v", err))
		}
	}

	raw := make([]float32, spp)
	filt := make([]float32, spp)
	for s, ts := range bt.Sweeps {
		off := s * spp
		for i := 0; i < spp; i++ {
			raw[i] = float32(rows[off+i])
			filt[i] = float32(filtered[off+i])
		}
		if err := st.Write(raw, filt, ts); err != nil {
			notes = p.status(notes, Error, fmt.Sprintf("failed to store sweep: %v", err))
			break
		}
	}

	u := Update{
		Total:       st.Total(),
		Sweeps:      bt.SweepsInBlock,
		GapUS:       bt.GapUS,
		TotalRateHz: rate,
		Filtered:    st.FilterEnabled(),
	}
	if n := len(bt.Sweeps); n > 0 {
		u.LastTime = bt.Sweeps[n-1]
	}
	p.publish(u)

	p.cbMu.RLock()
	cb := p.onBlock
	p.cbMu.RUnlock()
	if cb != nil {
		notes = append(notes, func() { cb(b) })
	}
	return notes
}

// publish replaces any unread update with u.
func (p *Pipeline) publish(u Update) {
	for {
		select {
		case p.updates <- u:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}

// status queues a status notification for delivery after the lock is released.
func (p *Pipeline) status(notes []func(), level Level, msg string) []func() {
	return append(notes, func() { p.notify(level, msg) })
}

func (p *Pipeline) notify(level Level, msg string) {
	p.cbMu.RLock()
	fn := p.onStatus
	p.cbMu.RUnlock()
	if fn != nil {
		fn(level, msg)
	}
}

// safeCall shields the producer from panicking callbacks.
func (p *Pipeline) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			LogStatus(Error, fmt.Sprintf("callback panicked: %v", r))
		}
	}()
	fn()
}
