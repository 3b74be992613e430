// Package timing reconstructs monotonic sweep timestamps from the MCU's
// free-running 32-bit microsecond counter.
//
// All counter arithmetic is performed modulo 2^32 by relying on uint32
// overflow, so a wrap (every ~71.6 minutes) never produces a negative or
// discontinuous result.
package timing

import (
	"github.com/itohio/adcstream/pkg/protocol"
)

// Elapsed returns (to - from) mod 2^32.
func Elapsed(from, to uint32) uint32 {
	return to - from
}

// Advance returns (base + offset) mod 2^32.
func Advance(base uint32, offset uint64) uint32 {
	return base + uint32(offset)
}

// SweepOffsetUS returns the offset of sweep i from the block start.
// Per-sweep times are derived from the block's average sample interval
// because the wire format carries no per-sweep timestamp.
func SweepOffsetUS(i, samplesPerSweep int, avgSampleTimeUS uint16) uint64 {
	return uint64(i) * uint64(samplesPerSweep) * uint64(avgSampleTimeUS)
}

// BlockTiming is the timing derived for one block.
type BlockTiming struct {
	Sweeps        []float64 // relative seconds, one per complete sweep
	GapUS         uint32    // start of this block minus end of the previous one
	HasGap        bool      // false for the first block of a capture
	FirstRefUS    uint32
	TotalRateHz   float64 // 1e6 / avg sample time, 0 when unknown
	SampleCount   int     // samples used (complete sweeps only)
	Truncated     int     // trailing samples dropped
	SweepsInBlock int
}

// Reconstructor converts block timing metadata into relative sweep times.
// It is owned by the producer goroutine and is not safe for concurrent use.
type Reconstructor struct {
	firstRef   uint32
	hasFirst   bool
	lastEnd    uint32
	hasLastEnd bool
}

// NewReconstructor creates a reconstructor with no reference.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{}
}

// Reset clears the reference; call on every capture start.
func (r *Reconstructor) Reset() {
	*r = Reconstructor{}
}

// Reference returns the first sweep's counter value, if set.
func (r *Reconstructor) Reference() (uint32, bool) {
	return r.firstRef, r.hasFirst
}

// Observe computes relative times for every complete sweep in b and records
// the block end for the next gap computation. samplesPerSweep must be > 0.
func (r *Reconstructor) Observe(b protocol.Block, samplesPerSweep int) BlockTiming {
	bt := BlockTiming{}
	if samplesPerSweep <= 0 {
		return bt
	}

	n := len(b.Samples)
	bt.SweepsInBlock = n / samplesPerSweep
	bt.SampleCount = bt.SweepsInBlock * samplesPerSweep
	bt.Truncated = n - bt.SampleCount
	if b.AvgSampleTimeUS > 0 {
		bt.TotalRateHz = 1e6 / float64(b.AvgSampleTimeUS)
	}

	if r.hasLastEnd {
		bt.GapUS = Elapsed(r.lastEnd, b.StartUS)
		bt.HasGap = true
	}
	r.lastEnd = b.EndUS
	r.hasLastEnd = true

	if !r.hasFirst {
		r.firstRef = b.StartUS
		r.hasFirst = true
	}
	bt.FirstRefUS = r.firstRef

	bt.Sweeps = make([]float64, bt.SweepsInBlock)
	for i := range bt.Sweeps {
		abs := Advance(b.StartUS, SweepOffsetUS(i, samplesPerSweep, b.AvgSampleTimeUS))
		bt.Sweeps[i] = float64(Elapsed(r.firstRef, abs)) / 1e6
	}
	return bt
}
