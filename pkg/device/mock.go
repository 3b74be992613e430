package device

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/itohio/adcstream/pkg/config"
	"github.com/itohio/adcstream/pkg/protocol"
)

// Mock simulates the streaming MCU. It answers "run" and "stop" commands and
// emits wire-format blocks of multiplexed sine waves plus '#' status lines.
type Mock struct {
	cfg      config.MockConfig
	channels []int
	repeat   int
	sweeps   int

	data      chan []byte
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
	running   bool

	// Simulation state
	counter uint32
	blocks  int
	rng     *rand.Rand
}

// NewMock creates a new mocked device for the acquisition layout in cfg.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}

	return &Mock{
		cfg:      cfg.Mock,
		channels: append([]int(nil), cfg.Acquisition.Channels...),
		repeat:   max(1, cfg.Acquisition.Repeat),
		sweeps:   cfg.BlockSweeps(),
		data:     make(chan []byte, DefaultBufferSize),
		rng:      rand.New(rand.NewSource(1)),
	}
}

// Connect simulates connecting to the device. The status banner is emitted
// immediately, like the firmware does after reset.
func (m *Mock) Connect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.connected {
		return ErrAlreadyConnected
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.data = make(chan []byte, DefaultBufferSize)
	m.done = make(chan struct{})
	m.connected = true
	m.running = false
	m.counter = m.cfg.StartUS
	m.blocks = 0

	go m.generate(ctx, m.data, m.done)

	return nil
}

// Close stops the mocked device and closes the data channel.
func (m *Mock) Close() error {
	m.mu.Lock()
	if !m.connected {
		m.mu.Unlock()
		return nil
	}

	m.cancel()
	m.connected = false
	m.running = false
	done := m.done
	m.mu.Unlock()

	<-done
	return nil
}

// Data returns the channel of generated byte chunks.
func (m *Mock) Data() <-chan []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.data
}

// Send handles "run" and "stop". Other commands are accepted and ignored.
func (m *Mock) Send(cmd string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return ErrNotConnected
	}

	switch strings.TrimSuffix(strings.TrimSpace(cmd), Terminator) {
	case CommandRun:
		m.running = true
	case CommandStop:
		m.running = false
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

// Running reports whether the mock is streaming blocks.
func (m *Mock) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// generate emits the status banner and then one block per interval while
// running.
func (m *Mock) generate(ctx context.Context, data chan<- []byte, done chan struct{}) {
	defer close(done)
	defer close(data)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in mock generator: %v", r)
		}
	}()

	send := func(b []byte) bool {
		select {
		case data <- b:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(m.statusLines()) {
		return
	}

	interval := m.cfg.BlockInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.Running() {
				continue
			}
			chunk, err := m.nextChunk()
			if err != nil {
				log.Printf("Failed to encode mock block: %v", err)
				continue
			}
			if !send(chunk) {
				return
			}
		}
	}
}

// nextChunk returns the next encoded block, prefixed with the status banner
// every StatusEvery blocks.
func (m *Mock) nextChunk() ([]byte, error) {
	var out []byte
	m.blocks++
	if m.cfg.StatusEvery > 0 && m.blocks%m.cfg.StatusEvery == 0 {
		out = append(out, m.statusLines()...)
	}
	return protocol.AppendEncode(out, m.nextBlock())
}

// nextBlock synthesises one block and advances the microsecond counter so
// the next block starts one sample time after this one ends.
func (m *Mock) nextBlock() protocol.Block {
	avg := uint16(m.cfg.SampleTimeUS)
	sweeps := max(1, m.sweeps)
	spp := len(m.channels) * m.repeat

	samples := make([]uint16, 0, sweeps*spp)
	start := m.counter
	t := m.counter
	for s := 0; s < sweeps; s++ {
		for _, ch := range m.channels {
			for r := 0; r < m.repeat; r++ {
				samples = append(samples, m.sample(ch, t))
				t += uint32(avg)
			}
		}
	}

	end := start
	if n := uint32(len(samples)); n > 0 {
		end = start + (n-1)*uint32(avg)
	}
	m.counter = end + uint32(avg)

	return protocol.Block{
		Samples:         samples,
		AvgSampleTimeUS: avg,
		StartUS:         start,
		EndUS:           end,
	}
}

// sample returns a 12-bit reading of channel ch at counter value t.
func (m *Mock) sample(ch int, t uint32) uint16 {
	sec := float64(t) / 1e6
	f := m.cfg.SignalHz * float64(ch+1)
	v := 2048 + m.cfg.Amplitude*math.Sin(2*math.Pi*f*sec)
	if m.cfg.Noise > 0 {
		v += m.cfg.Noise * m.rng.NormFloat64()
	}
	return uint16(math.Max(0, math.Min(4095, math.Round(v))))
}

// statusLines renders the configuration banner the firmware prints.
func (m *Mock) statusLines() []byte {
	parts := make([]string, len(m.channels))
	for i, ch := range m.channels {
		parts[i] = strconv.Itoa(ch)
	}

	var b strings.Builder
	b.WriteString("# channels:\n")
	fmt.Fprintf(&b, "#   %s\n", strings.Join(parts, ","))
	fmt.Fprintf(&b, "# repeatCount: %d\n", m.repeat)
	b.WriteString("# groundPin: -1\n")
	b.WriteString("# useGroundBeforeEach: false\n")
	b.WriteString("# adcReference: VDD\n")
	return []byte(b.String())
}
