package acquisition

import (
	"fmt"

	"github.com/itohio/adcstream/pkg/config"
	"github.com/itohio/adcstream/pkg/filter"
	"github.com/itohio/adcstream/pkg/protocol"
	"github.com/itohio/adcstream/pkg/store"
	"github.com/itohio/adcstream/pkg/timing"
)

// Context owns the components of one acquisition session. It is built by the
// application root and handed to New; nothing in it is global.
type Context struct {
	Config  *config.Config
	Decoder *protocol.Decoder
	Timing  *timing.Reconstructor
	Stats   *timing.Stats
	Store   *store.Store
	Filter  *filter.Engine
}

// NewContext validates cfg and builds every component from it.
func NewContext(cfg *config.Config) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	acq := cfg.Acquisition
	st, err := store.New(acq.Capacity, cfg.SamplesPerSweep())
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sweep store: %w", err)
	}
	st.SetFilterEnabled(cfg.Filter.Enabled)

	stats := timing.NewStats(acq.SampleRateHz)
	stats.SetChannelCount(uniqueChannels(acq.Channels))

	engine := filter.NewEngine(cfg.Filter)
	engine.Configure(acq.Channels, acq.Repeat)

	return &Context{
		Config:  cfg,
		Decoder: protocol.NewDecoder(acq.MaxLineLength),
		Timing:  timing.NewReconstructor(),
		Stats:   stats,
		Store:   st,
		Filter:  engine,
	}, nil
}

func uniqueChannels(channels []int) int {
	order, _ := filter.Layout(channels, 1)
	return len(order)
}
