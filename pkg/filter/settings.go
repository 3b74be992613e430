package filter

import (
	"fmt"
	"strings"
)

// MaxNotches is the number of notch stages the settings can carry.
const MaxNotches = 3

// Type selects the main filter stage.
type Type int

const (
	None Type = iota
	LowPass
	HighPass
	BandPass
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	case BandPass:
		return "bandpass"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// ParseType converts a name such as "lowpass" into a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return None, nil
	case "lowpass", "low-pass", "lp":
		return LowPass, nil
	case "highpass", "high-pass", "hp":
		return HighPass, nil
	case "bandpass", "band-pass", "bp":
		return BandPass, nil
	default:
		return None, fmt.Errorf("unsupported filter type %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Notch is a single second-order notch stage.
type Notch struct {
	Enabled bool    `yaml:"enabled"`
	FreqHz  float64 `yaml:"freq_hz"`
	Q       float64 `yaml:"q"`
}

// Settings is the user-facing filter configuration.
type Settings struct {
	Enabled      bool    `yaml:"enabled"`
	Type         Type    `yaml:"type"`
	Order        int     `yaml:"order"`
	LowCutoffHz  float64 `yaml:"low_cutoff_hz"`  // low-pass cutoff, band-pass lower edge
	HighCutoffHz float64 `yaml:"high_cutoff_hz"` // high-pass cutoff, band-pass upper edge
	Notches      []Notch `yaml:"notches"`
	Prime        bool    `yaml:"prime"` // start each channel at steady state for its first sample
}

// DefaultSettings returns disabled filtering with a 4th order 50 Hz low-pass
// and mains notches prepared but switched off.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      false,
		Type:         LowPass,
		Order:        4,
		LowCutoffHz:  50,
		HighCutoffHz: 1,
		Notches: []Notch{
			{Enabled: false, FreqHz: 50, Q: 30},
			{Enabled: false, FreqHz: 60, Q: 30},
			{Enabled: false, FreqHz: 100, Q: 30},
		},
	}
}

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	c := s
	c.Notches = append([]Notch(nil), s.Notches...)
	return c
}

// EffectiveOrder returns the order used for design, at least 1.
func (s Settings) EffectiveOrder() int {
	return max(1, s.Order)
}

// HasStages reports whether any stage would be designed.
func (s Settings) HasStages() bool {
	if s.Type != None {
		return true
	}
	for _, n := range s.Notches {
		if n.Enabled {
			return true
		}
	}
	return false
}

// Check validates the settings independently of any sample rate.
func (s Settings) Check() error {
	if len(s.Notches) > MaxNotches {
		return fmt.Errorf("%w: %d notches configured, at most %d supported", ErrValidation, len(s.Notches), MaxNotches)
	}
	switch s.Type {
	case None, LowPass, HighPass, BandPass:
	default:
		return fmt.Errorf("%w: unknown filter type %d", ErrValidation, int(s.Type))
	}
	return nil
}

// Validate checks every enabled cutoff against the Nyquist frequency of a
// channel sampled at rateHz.
func (s Settings) Validate(rateHz float64) error {
	if err := s.Check(); err != nil {
		return err
	}
	if rateHz <= 0 {
		return fmt.Errorf("%w: sample rate unavailable for filtering", ErrSampleRate)
	}

	nyquist := rateHz / 2
	for _, n := range s.Notches {
		if !n.Enabled {
			continue
		}
		if n.FreqHz <= 0 || n.FreqHz >= nyquist {
			return fmt.Errorf("%w: notch frequency %.2f must be between 0 and Nyquist (%.2f Hz)", ErrValidation, n.FreqHz, nyquist)
		}
		if n.Q <= 0 {
			return fmt.Errorf("%w: notch Q must be > 0", ErrValidation)
		}
	}

	switch s.Type {
	case LowPass:
		if s.LowCutoffHz <= 0 || s.LowCutoffHz >= nyquist {
			return fmt.Errorf("%w: low-pass cutoff %.2f must be between 0 and Nyquist (%.2f Hz)", ErrValidation, s.LowCutoffHz, nyquist)
		}
	case HighPass:
		if s.HighCutoffHz <= 0 || s.HighCutoffHz >= nyquist {
			return fmt.Errorf("%w: high-pass cutoff %.2f must be between 0 and Nyquist (%.2f Hz)", ErrValidation, s.HighCutoffHz, nyquist)
		}
	case BandPass:
		if s.LowCutoffHz <= 0 || s.HighCutoffHz <= 0 {
			return fmt.Errorf("%w: band-pass cutoffs must be > 0", ErrValidation)
		}
		if s.LowCutoffHz >= s.HighCutoffHz {
			return fmt.Errorf("%w: band-pass low cutoff must be less than high cutoff", ErrValidation)
		}
		if s.HighCutoffHz >= nyquist {
			return fmt.Errorf("%w: band-pass high cutoff must be below Nyquist (%.2f Hz)", ErrValidation, nyquist)
		}
	}
	return nil
}

// Design builds the cascade for a channel sampled at rateHz: one section per
// enabled notch followed by the main filter sections. It returns an empty
// cascade when no stage is enabled.
func (s Settings) Design(rateHz float64) (Cascade, error) {
	if err := s.Validate(rateHz); err != nil {
		return nil, err
	}

	var c Cascade
	for _, n := range s.Notches {
		if !n.Enabled {
			continue
		}
		c = append(c, NotchSection(n.FreqHz, n.Q, rateHz))
	}

	if s.Type != None {
		main, err := Butterworth(s.Type, s.EffectiveOrder(), s.LowCutoffHz, s.HighCutoffHz, rateHz)
		if err != nil {
			return nil, err
		}
		c = append(c, main...)
	}
	return c, nil
}
