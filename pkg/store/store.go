package store

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidSize is returned for a non-positive capacity or sweep length.
	ErrInvalidSize = errors.New("invalid buffer size")
	// ErrSweepLength is returned when a written sweep does not match the configured length.
	ErrSweepLength = errors.New("sweep length mismatch")
)

// Window is a chronological copy of the most recent sweeps.
// Raw and Filtered are row-major: sweep i occupies [i*SamplesPerSweep, (i+1)*SamplesPerSweep).
type Window struct {
	SamplesPerSweep int
	Raw             []float32
	Filtered        []float32
	Timestamps      []float64
	Total           uint64 // sweeps written since the last reset, at snapshot time
}

// Len returns the number of sweeps in the window.
func (w Window) Len() int {
	return len(w.Timestamps)
}

// RawSweep returns sweep i of the raw data.
func (w Window) RawSweep(i int) []float32 {
	return w.Raw[i*w.SamplesPerSweep : (i+1)*w.SamplesPerSweep]
}

// FilteredSweep returns sweep i of the filtered data.
func (w Window) FilteredSweep(i int) []float32 {
	return w.Filtered[i*w.SamplesPerSweep : (i+1)*w.SamplesPerSweep]
}

// View is a chronological copy of either the raw or the filtered buffer.
type View struct {
	SamplesPerSweep int
	Data            []float32
	Timestamps      []float64
	Filtered        bool // true when Data comes from the filtered buffer
	Total           uint64
}

// Len returns the number of sweeps in the view.
func (v View) Len() int {
	return len(v.Timestamps)
}

// Sweep returns sweep i.
func (v View) Sweep(i int) []float32 {
	return v.Data[i*v.SamplesPerSweep : (i+1)*v.SamplesPerSweep]
}

// Store is a fixed-capacity circular buffer of sweeps. Raw samples, filtered
// samples, and timestamps at the same slot always describe the same sweep.
//
// All access goes through a single mutex held only for the duration of a
// copy; no I/O or filter design ever happens under it.
type Store struct {
	mu sync.RWMutex

	capacity        int
	samplesPerSweep int
	raw             []float32
	filtered        []float32
	timestamps      []float64
	writeIndex      uint64

	filterEnabled bool
}

// New allocates a store holding capacity sweeps of samplesPerSweep samples.
func New(capacity, samplesPerSweep int) (*Store, error) {
	if capacity <= 0 || samplesPerSweep <= 0 {
		return nil, fmt.Errorf("%w: capacity=%d samples_per_sweep=%d", ErrInvalidSize, capacity, samplesPerSweep)
	}
	s := &Store{}
	s.allocate(capacity, samplesPerSweep)
	return s, nil
}

func (s *Store) allocate(capacity, samplesPerSweep int) {
	s.capacity = capacity
	s.samplesPerSweep = samplesPerSweep
	s.raw = make([]float32, capacity*samplesPerSweep)
	s.filtered = make([]float32, capacity*samplesPerSweep)
	s.timestamps = make([]float64, capacity)
	s.writeIndex = 0
}

// Capacity returns the number of sweeps the store can hold.
func (s *Store) Capacity() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.capacity
}

// SamplesPerSweep returns the configured sweep length.
func (s *Store) SamplesPerSweep() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samplesPerSweep
}

// Total returns the number of sweeps written since the last reset.
func (s *Store) Total() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writeIndex
}

// Len returns the number of resident sweeps, min(Total, Capacity).
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.residentLocked()
}

func (s *Store) residentLocked() int {
	if s.writeIndex < uint64(s.capacity) {
		return int(s.writeIndex)
	}
	return s.capacity
}

// Write stores one sweep. The write index advances only after raw, filtered,
// and timestamp are all in place, so readers never observe a partial sweep.
func (s *Store) Write(raw, filtered []float32, timestamp float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(raw) != s.samplesPerSweep || len(filtered) != s.samplesPerSweep {
		return fmt.Errorf("%w: raw=%d filtered=%d want %d", ErrSweepLength, len(raw), len(filtered), s.samplesPerSweep)
	}

	pos := int(s.writeIndex % uint64(s.capacity))
	off := pos * s.samplesPerSweep
	copy(s.raw[off:off+s.samplesPerSweep], raw)
	copy(s.filtered[off:off+s.samplesPerSweep], filtered)
	s.timestamps[pos] = timestamp
	s.writeIndex++
	return nil
}

// ReadWindow returns copies of the most recent n sweeps in chronological
// order (oldest first). Fewer are returned when fewer are resident.
func (s *Store) ReadWindow(n int) Window {
	s.mu.RLock()
	defer s.mu.RUnlock()

	positions := s.windowLocked(n)
	w := Window{
		SamplesPerSweep: s.samplesPerSweep,
		Raw:             s.gatherLocked(s.raw, positions),
		Filtered:        s.gatherLocked(s.filtered, positions),
		Timestamps:      make([]float64, len(positions)),
		Total:           s.writeIndex,
	}
	for i, p := range positions {
		w.Timestamps[i] = s.timestamps[p]
	}
	return w
}

// ActiveWindow returns the most recent n sweeps from whichever buffer is
// current: filtered when filtering is enabled, raw otherwise.
func (s *Store) ActiveWindow(n int) View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(n)
}

// ActiveBuffer returns every resident sweep from the current buffer.
func (s *Store) ActiveBuffer() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(s.capacity)
}

func (s *Store) activeLocked(n int) View {
	src := s.raw
	if s.filterEnabled {
		src = s.filtered
	}
	positions := s.windowLocked(n)
	v := View{
		SamplesPerSweep: s.samplesPerSweep,
		Data:            s.gatherLocked(src, positions),
		Timestamps:      make([]float64, len(positions)),
		Filtered:        s.filterEnabled,
		Total:           s.writeIndex,
	}
	for i, p := range positions {
		v.Timestamps[i] = s.timestamps[p]
	}
	return v
}

// SetFilterEnabled selects which buffer ActiveWindow and ActiveBuffer return.
func (s *Store) SetFilterEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filterEnabled = enabled
}

// FilterEnabled reports whether the filtered buffer is current.
func (s *Store) FilterEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterEnabled
}

// Reallocate resizes the store for a new sweep length and zeroes it.
// On error the previous contents are left untouched.
func (s *Store) Reallocate(samplesPerSweep int) error {
	return s.Resize(0, samplesPerSweep)
}

// Resize changes capacity and sweep length, zeroing all data. A capacity
// of 0 keeps the current capacity. On error the store is left untouched.
func (s *Store) Resize(capacity, samplesPerSweep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if capacity == 0 {
		capacity = s.capacity
	}
	if capacity <= 0 || samplesPerSweep <= 0 {
		return fmt.Errorf("%w: capacity=%d samples_per_sweep=%d", ErrInvalidSize, capacity, samplesPerSweep)
	}
	s.allocate(capacity, samplesPerSweep)
	return nil
}

// Reset zeroes all data and rewinds the write index, keeping the shape.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.raw)
	clear(s.filtered)
	clear(s.timestamps)
	s.writeIndex = 0
}

// Chronological returns the physical slot of every resident sweep in
// chronological order together with a copy of their raw samples.
func (s *Store) Chronological() (positions []int, raw []float32) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	positions = s.windowLocked(s.capacity)
	return positions, s.gatherLocked(s.raw, positions)
}

// WriteFiltered overwrites the filtered samples of the given physical slots,
// leaving raw samples, timestamps and the write index untouched.
func (s *Store) WriteFiltered(positions []int, filtered []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(filtered) != len(positions)*s.samplesPerSweep {
		return fmt.Errorf("%w: %d samples for %d sweeps of %d", ErrSweepLength, len(filtered), len(positions), s.samplesPerSweep)
	}
	for i, p := range positions {
		if p < 0 || p >= s.capacity {
			return fmt.Errorf("%w: slot %d outside capacity %d", ErrInvalidSize, p, s.capacity)
		}
		copy(s.filtered[p*s.samplesPerSweep:(p+1)*s.samplesPerSweep], filtered[i*s.samplesPerSweep:(i+1)*s.samplesPerSweep])
	}
	return nil
}

// windowLocked returns the physical slots of the newest n sweeps, oldest first.
// While the buffer has not wrapped the data is contiguous from slot 0;
// afterwards the window may span the end of the buffer and the start.
func (s *Store) windowLocked(n int) []int {
	resident := s.residentLocked()
	take := min(max(n, 0), resident)
	positions := make([]int, take)
	if take == 0 {
		return positions
	}

	if resident < s.capacity {
		start := resident - take
		for i := range positions {
			positions[i] = start + i
		}
		return positions
	}

	writePos := int(s.writeIndex % uint64(s.capacity))
	start := (writePos - take + s.capacity) % s.capacity
	for i := range positions {
		positions[i] = (start + i) % s.capacity
	}
	return positions
}

func (s *Store) gatherLocked(src []float32, positions []int) []float32 {
	out := make([]float32, len(positions)*s.samplesPerSweep)
	for i, p := range positions {
		copy(out[i*s.samplesPerSweep:(i+1)*s.samplesPerSweep], src[p*s.samplesPerSweep:(p+1)*s.samplesPerSweep])
	}
	return out
}
