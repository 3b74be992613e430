package filter

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks a cutoff or parameter outside its allowed range.
	ErrValidation = errors.New("filter validation failed")
	// ErrDesign marks a numerical failure while designing coefficients.
	ErrDesign = errors.New("filter design failed")
	// ErrSampleRate marks a missing sample rate estimate.
	ErrSampleRate = errors.New("sample rate unavailable")
)

// Error records why filtering was disabled.
type Error struct {
	Channel int     // logical channel, -1 when not channel specific
	RateHz  float64 // effective rate of that channel
	Err     error
}

func (e *Error) Error() string {
	if e.Channel < 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("channel %d (%.2f Hz): %v", e.Channel, e.RateHz, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
