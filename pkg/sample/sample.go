package sample

import (
	"log"
	"time"

	"github.com/chewxy/math32"
	"github.com/itohio/adcstream/pkg/config"
	"github.com/itohio/adcstream/pkg/store"
)

// Trace is the display data of one logical channel.
type Trace struct {
	Channel int
	Times   []float64 // relative seconds
	Volts   []float32
}

// Frame is a set of traces derived from one buffer snapshot.
type Frame struct {
	Total    uint64 // sweeps written when the snapshot was taken
	Filtered bool
	Traces   []Trace
}

// Converter is a function type that converts buffer snapshots to display frames.
type Converter func(in <-chan store.View) <-chan Frame

// NewConverter creates a converter that turns each snapshot into a decimated
// frame of voltages, one trace per channel.
func NewConverter(cfg *config.Config, bufSize int) Converter {
	if bufSize <= 0 {
		bufSize = 100
	}

	return func(in <-chan store.View) <-chan Frame {
		out := make(chan Frame, bufSize)

		go func() {
			defer close(out)

			for view := range in {
				frame := Convert(view, cfg)

				select {
				case out <- frame:
				case <-time.After(time.Second):
					log.Printf("Converter output channel full, dropping frame")
				}
			}
		}()

		return out
	}
}

// Convert builds a frame from v: repeats of a channel within a sweep are
// averaged, counts are converted to volts and each trace is decimated to
// Display.MaxPoints.
func Convert(v store.View, cfg *config.Config) Frame {
	frame := Frame{Total: v.Total, Filtered: v.Filtered}
	if v.Len() == 0 || v.SamplesPerSweep == 0 {
		return frame
	}

	order, means := AverageRepeats(v, cfg.Acquisition.Channels, cfg.Acquisition.Repeat)
	vref := float32(cfg.Display.VRef)

	times := Decimate(nil, v.Timestamps, cfg.Display.MaxPoints)
	for i, ch := range order {
		counts := Decimate(nil, means[i], cfg.Display.MaxPoints)
		frame.Traces = append(frame.Traces, Trace{
			Channel: ch,
			Times:   times,
			Volts:   ToVolts(counts[:0], counts, vref, cfg.Display.ResolutionBits),
		})
	}
	return frame
}

// ToVolts converts ADC counts to volts for a converter of the given resolution
// and reference. dst may alias counts.
func ToVolts(dst, counts []float32, vref float32, bits int) []float32 {
	fullScale := math32.Exp2(float32(bits)) - 1
	if cap(dst) < len(counts) {
		dst = make([]float32, len(counts))
	}
	dst = dst[:len(counts)]
	for i, c := range counts {
		dst[i] = c / fullScale * vref
	}
	return dst
}
