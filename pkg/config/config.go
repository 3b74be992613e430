package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/itohio/adcstream/pkg/filter"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Filter      filter.Settings   `yaml:"filter"`
	Display     DisplayConfig     `yaml:"display"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

// AcquisitionConfig describes the sweep layout and the in-memory history.
type AcquisitionConfig struct {
	Channels       []int   `yaml:"channels"`         // channel sequence of one sweep, may repeat
	Repeat         int     `yaml:"repeat"`           // consecutive samples per sequence entry
	Capacity       int     `yaml:"capacity"`         // sweeps kept in memory
	SampleRateHz   float64 `yaml:"sample_rate_hz"`   // used until the MCU reports timing
	MaxLineLength  int     `yaml:"max_line_length"`  // text lines longer than this are dropped
	SweepsPerBlock int     `yaml:"sweeps_per_block"` // 0 picks a value from the baud rate
}

// DisplayConfig contains parameters for consumers that render the data.
type DisplayConfig struct {
	VRef           float64 `yaml:"vref"`
	ResolutionBits int     `yaml:"resolution_bits"`
	MaxPoints      int     `yaml:"max_points"`
}

// MockConfig contains mock device configuration.
type MockConfig struct {
	SampleTimeUS  int           `yaml:"sample_time_us"` // average time between samples
	StartUS       uint32        `yaml:"start_us"`       // initial microsecond counter
	SignalHz      float64       `yaml:"signal_hz"`      // base sine frequency, channel n uses (n+1)*SignalHz
	Amplitude     float64       `yaml:"amplitude"`      // in ADC counts
	Noise         float64       `yaml:"noise"`          // in ADC counts
	StatusEvery   int           `yaml:"status_every"`   // emit status lines every N blocks, 0 disables
	BlockInterval time.Duration `yaml:"block_interval"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port:        "/dev/ttyACM0",
			Baud:        460800,
			ReadTimeout: time.Second,
		},
		Acquisition: AcquisitionConfig{
			Channels:      []int{0, 1, 2, 3},
			Repeat:        1,
			Capacity:      10000,
			SampleRateHz:  0,
			MaxLineLength: 512,
		},
		Filter: filter.DefaultSettings(),
		Display: DisplayConfig{
			VRef:           3.3,
			ResolutionBits: 12,
			MaxPoints:      2000,
		},
		Mock: MockConfig{
			SampleTimeUS:  100,
			StartUS:       0xFFFF0000, // wraps after ~65 ms
			SignalHz:      5,
			Amplitude:     1000,
			Noise:         20,
			StatusEvery:   50,
			BlockInterval: 20 * time.Millisecond,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// SamplesPerSweep returns the number of samples in one sweep.
func (c *Config) SamplesPerSweep() int {
	return len(c.Acquisition.Channels) * c.Acquisition.Repeat
}

// Validate reports every setting that cannot be used.
func (c *Config) Validate() error {
	var errs []error

	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be > 0, got %d", c.Serial.Baud))
	}
	if len(c.Acquisition.Channels) == 0 {
		errs = append(errs, errors.New("acquisition.channels must not be empty"))
	}
	for _, ch := range c.Acquisition.Channels {
		if ch < 0 || ch > 255 {
			errs = append(errs, fmt.Errorf("acquisition.channels: channel %d out of range 0..255", ch))
		}
	}
	if c.Acquisition.Repeat < 1 {
		errs = append(errs, fmt.Errorf("acquisition.repeat must be >= 1, got %d", c.Acquisition.Repeat))
	}
	if c.Acquisition.Capacity < 1 {
		errs = append(errs, fmt.Errorf("acquisition.capacity must be >= 1, got %d", c.Acquisition.Capacity))
	}
	if c.Acquisition.SampleRateHz < 0 {
		errs = append(errs, fmt.Errorf("acquisition.sample_rate_hz must be >= 0, got %g", c.Acquisition.SampleRateHz))
	}
	if c.Acquisition.MaxLineLength < 2 {
		errs = append(errs, fmt.Errorf("acquisition.max_line_length must be >= 2, got %d", c.Acquisition.MaxLineLength))
	}
	if err := c.Filter.Check(); err != nil {
		errs = append(errs, fmt.Errorf("filter: %w", err))
	}
	if c.Display.ResolutionBits < 1 || c.Display.ResolutionBits > 16 {
		errs = append(errs, fmt.Errorf("display.resolution_bits must be in 1..16, got %d", c.Display.ResolutionBits))
	}
	if c.Mock.SampleTimeUS <= 0 || c.Mock.SampleTimeUS > 0xFFFF {
		errs = append(errs, fmt.Errorf("mock.sample_time_us must be in 1..65535, got %d", c.Mock.SampleTimeUS))
	}

	return errors.Join(errs...)
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Serial.ReadTimeout == 0 {
		c.Serial.ReadTimeout = def.Serial.ReadTimeout
	}

	if len(c.Acquisition.Channels) == 0 {
		c.Acquisition.Channels = def.Acquisition.Channels
	}
	if c.Acquisition.Repeat == 0 {
		c.Acquisition.Repeat = def.Acquisition.Repeat
	}
	if c.Acquisition.Capacity == 0 {
		c.Acquisition.Capacity = def.Acquisition.Capacity
	}
	if c.Acquisition.MaxLineLength == 0 {
		c.Acquisition.MaxLineLength = def.Acquisition.MaxLineLength
	}

	if c.Filter.Order == 0 {
		c.Filter.Order = def.Filter.Order
	}
	if c.Filter.Notches == nil {
		c.Filter.Notches = def.Filter.Notches
	}

	if c.Display.VRef == 0 {
		c.Display.VRef = def.Display.VRef
	}
	if c.Display.ResolutionBits == 0 {
		c.Display.ResolutionBits = def.Display.ResolutionBits
	}
	if c.Display.MaxPoints == 0 {
		c.Display.MaxPoints = def.Display.MaxPoints
	}

	if c.Mock.SampleTimeUS == 0 {
		c.Mock.SampleTimeUS = def.Mock.SampleTimeUS
	}
	if c.Mock.BlockInterval == 0 {
		c.Mock.BlockInterval = def.Mock.BlockInterval
	}
}
