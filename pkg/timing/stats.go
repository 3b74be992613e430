package timing

import "sync"

// MaxHistory is the number of recent blocks kept for statistics.
const MaxHistory = 1000

// Snapshot is a copy of the rolling block statistics.
type Snapshot struct {
	Blocks          uint64
	LastAvgSampleUS uint16
	LastGapUS       uint32
	AvgGapUS        float64
	AvgSampleUS     float64
	TotalRateHz     float64
	PerChannelHz    float64
	LastStartUS     uint32
	LastEndUS       uint32
	LastSweeps      int
}

// Stats keeps a bounded history of block timing for display and for
// estimating the total sample rate used by the filter engine.
type Stats struct {
	mu           sync.RWMutex
	fallbackRate float64
	channelCount int

	blocks      uint64
	sampleTimes []uint16
	gaps        []uint32
	lastStart   uint32
	lastEnd     uint32
	lastSweeps  int
}

// NewStats creates statistics with a configured fallback sample rate, used
// until the first block reports its average sample time.
func NewStats(fallbackRateHz float64) *Stats {
	return &Stats{fallbackRate: fallbackRateHz}
}

// SetChannelCount sets the number of distinct channels in the sequence,
// used for the per-channel rate estimate.
func (s *Stats) SetChannelCount(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelCount = n
}

// SetFallbackRate changes the configured fallback rate.
func (s *Stats) SetFallbackRate(hz float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallbackRate = hz
}

// Record adds a block and its derived timing.
func (s *Stats) Record(b BlockInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks++
	s.sampleTimes = appendBounded(s.sampleTimes, b.AvgSampleTimeUS)
	if b.HasGap {
		s.gaps = appendBounded(s.gaps, b.GapUS)
	}
	s.lastStart = b.StartUS
	s.lastEnd = b.EndUS
	s.lastSweeps = b.Sweeps
}

// BlockInfo is the subset of block timing fed into Stats.
type BlockInfo struct {
	AvgSampleTimeUS uint16
	StartUS         uint32
	EndUS           uint32
	GapUS           uint32
	HasGap          bool
	Sweeps          int
}

// Reset clears all history; the fallback rate is kept.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks = 0
	s.sampleTimes = s.sampleTimes[:0]
	s.gaps = s.gaps[:0]
	s.lastStart, s.lastEnd, s.lastSweeps = 0, 0, 0
}

// TotalRateHz returns the most recent total sample rate estimate:
// 1e6 / latest average sample time, or the fallback rate.
func (s *Stats) TotalRateHz() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalRateLocked()
}

func (s *Stats) totalRateLocked() float64 {
	if n := len(s.sampleTimes); n > 0 && s.sampleTimes[n-1] > 0 {
		return 1e6 / float64(s.sampleTimes[n-1])
	}
	if s.fallbackRate > 0 {
		return s.fallbackRate
	}
	return 0
}

// Snapshot returns a copy of the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Blocks:      s.blocks,
		TotalRateHz: s.totalRateLocked(),
		LastStartUS: s.lastStart,
		LastEndUS:   s.lastEnd,
		LastSweeps:  s.lastSweeps,
	}
	if n := len(s.sampleTimes); n > 0 {
		snap.LastAvgSampleUS = s.sampleTimes[n-1]
		var sum float64
		for _, v := range s.sampleTimes {
			sum += float64(v)
		}
		snap.AvgSampleUS = sum / float64(n)
	}
	if n := len(s.gaps); n > 0 {
		snap.LastGapUS = s.gaps[n-1]
		var sum float64
		for _, v := range s.gaps {
			sum += float64(v)
		}
		snap.AvgGapUS = sum / float64(n)
	}
	if s.channelCount > 0 {
		snap.PerChannelHz = snap.TotalRateHz / float64(s.channelCount)
	}
	return snap
}

func appendBounded[T any](s []T, v T) []T {
	s = append(s, v)
	if len(s) > MaxHistory {
		s = s[len(s)-MaxHistory:]
	}
	return s
}
