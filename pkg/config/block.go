package config

import (
	"sort"
	"time"

	"github.com/itohio/adcstream/pkg/protocol"
)

const (
	// MaxBlockSamples is the largest block the MCU can buffer.
	MaxBlockSamples = 32000
	// TargetLatency bounds the transmit time of a single block.
	TargetLatency = 100 * time.Millisecond
	// USBPacketSize is the full-speed CDC bulk packet size.
	USBPacketSize = 64

	bitsPerByte = 10 // 8N1 framing
)

// BlockCandidate is one possible sweeps-per-block setting with its metrics.
type BlockCandidate struct {
	Sweeps        int
	Samples       int
	Bytes         int
	TransmitTime  time.Duration
	USBEfficiency float64 // 1 when the block fills its last USB packet
	LatencyRatio  float64 // TransmitTime / target latency
	Score         float64
}

// BlockCandidates scores every block size that fits the MCU buffer and the
// target latency and returns the best n, largest block first.
func BlockCandidates(channels, repeat, baud int, target time.Duration, n int) []BlockCandidate {
	spp := channels * repeat
	if spp <= 0 || baud <= 0 {
		return []BlockCandidate{{Sweeps: 1}}
	}

	var out []BlockCandidate
	for sweeps := 1; sweeps*spp <= MaxBlockSamples; sweeps++ {
		c := candidate(sweeps, spp, baud, target)
		if target > 0 && c.TransmitTime > target {
			continue
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return []BlockCandidate{candidate(1, spp, baud, target)}
	}

	maxSamples := out[len(out)-1].Samples
	for i := range out {
		out[i].Score = 0.4*out[i].USBEfficiency +
			0.3*latencyScore(out[i].LatencyRatio) +
			0.3*float64(out[i].Samples)/float64(maxSamples)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Sweeps > out[j].Sweeps
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sweeps > out[j].Sweeps })
	return out
}

// SweepsPerBlock returns the best scoring sweeps-per-block for the layout.
func SweepsPerBlock(channels, repeat, baud int) int {
	best := BlockCandidates(channels, repeat, baud, TargetLatency, 1)
	return best[0].Sweeps
}

// LimitSweepsPerBlock clamps a requested block size to the MCU buffer.
func LimitSweepsPerBlock(sweeps, channels, repeat int) int {
	spp := channels * repeat
	if spp <= 0 {
		return max(1, sweeps)
	}
	return max(1, min(sweeps, MaxBlockSamples/spp))
}

// BlockSweeps returns the sweeps per block the MCU is asked to send: the
// configured acquisition.sweeps_per_block, or the advisor's choice for the
// layout and baud rate when it is 0, clamped to the MCU buffer.
func (c *Config) BlockSweeps() int {
	acq := c.Acquisition
	sweeps := acq.SweepsPerBlock
	if sweeps <= 0 {
		sweeps = SweepsPerBlock(len(acq.Channels), acq.Repeat, c.Serial.Baud)
	}
	return LimitSweepsPerBlock(sweeps, len(acq.Channels), acq.Repeat)
}

func candidate(sweeps, spp, baud int, target time.Duration) BlockCandidate {
	samples := sweeps * spp
	size := protocol.PacketSize(samples)
	tx := time.Duration(float64(size*bitsPerByte) / float64(baud) * float64(time.Second))

	packets := (size + USBPacketSize - 1) / USBPacketSize
	wasted := packets*USBPacketSize - size

	c := BlockCandidate{
		Sweeps:        sweeps,
		Samples:       samples,
		Bytes:         size,
		TransmitTime:  tx,
		USBEfficiency: 1 - float64(wasted)/USBPacketSize,
	}
	if target > 0 {
		c.LatencyRatio = float64(tx) / float64(target)
	}
	return c
}

// latencyScore prefers blocks using 70-90% of the latency budget.
func latencyScore(ratio float64) float64 {
	var s float64
	switch {
	case ratio <= 0.7:
		s = ratio / 0.7
	case ratio <= 0.9:
		s = 1
	default:
		s = 1 - (ratio-0.9)/0.1
	}
	return max(0, min(1, s))
}
