package config

import (
	"os"
	"testing"
	"time"

	"github.com/itohio/adcstream/pkg/filter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 460800, cfg.Serial.Baud)
	assert.Equal(t, time.Second, cfg.Serial.ReadTimeout)
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.Acquisition.Channels)
	assert.Equal(t, 1, cfg.Acquisition.Repeat)
	assert.Equal(t, 10000, cfg.Acquisition.Capacity)
	assert.Equal(t, 512, cfg.Acquisition.MaxLineLength)
	assert.False(t, cfg.Filter.Enabled)
	assert.Len(t, cfg.Filter.Notches, filter.MaxNotches)
	assert.Equal(t, 12, cfg.Display.ResolutionBits)
	assert.Equal(t, 4, cfg.SamplesPerSweep())
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "COM7"
  baud: 921600
  read_timeout: 500ms

acquisition:
  channels: [0, 1, 1, 2]
  repeat: 2
  capacity: 500
  sample_rate_hz: 8000

filter:
  enabled: true
  type: bandpass
  order: 2
  low_cutoff_hz: 5
  high_cutoff_hz: 200
  notches:
    - enabled: true
      freq_hz: 50
      q: 25

mock:
  sample_time_us: 250
  block_interval: 5ms
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "COM7", cfg.Serial.Port)
	assert.Equal(t, 921600, cfg.Serial.Baud)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.ReadTimeout)
	assert.Equal(t, []int{0, 1, 1, 2}, cfg.Acquisition.Channels)
	assert.Equal(t, 2, cfg.Acquisition.Repeat)
	assert.Equal(t, 500, cfg.Acquisition.Capacity)
	assert.Equal(t, 8000.0, cfg.Acquisition.SampleRateHz)
	assert.True(t, cfg.Filter.Enabled)
	assert.Equal(t, filter.BandPass, cfg.Filter.Type)
	assert.Equal(t, 2, cfg.Filter.Order)
	require.Len(t, cfg.Filter.Notches, 1)
	assert.Equal(t, filter.Notch{Enabled: true, FreqHz: 50, Q: 25}, cfg.Filter.Notches[0])
	assert.Equal(t, 250, cfg.Mock.SampleTimeUS)
	assert.Equal(t, 5*time.Millisecond, cfg.Mock.BlockInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("invalid: yaml: content: [")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_UnknownFilterType(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	_, err = tmpfile.WriteString("filter:\n  type: comb\n")
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	_, err = Load(tmpfile.Name())
	assert.Error(t, err)
}

func TestLoad_PartialYAML(t *testing.T) {
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	yamlContent := `
serial:
  port: "/dev/ttyUSB1"
acquisition:
  repeat: 0
`

	_, err = tmpfile.WriteString(yamlContent)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())

	cfg, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 460800, cfg.Serial.Baud)                     // default
	assert.Equal(t, 1, cfg.Acquisition.Repeat)                   // default
	assert.Equal(t, []int{0, 1, 2, 3}, cfg.Acquisition.Channels) // default
	assert.Equal(t, 4, cfg.Filter.Order)                         // default
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Acquisition.Channels = []int{3, 5}
	cfg.Filter.Enabled = true
	cfg.Filter.Type = filter.HighPass

	tmpfile, err := os.CreateTemp("", "test_save_*.yaml")
	require.NoError(t, err)
	defer os.Remove(tmpfile.Name())

	err = cfg.Save(tmpfile.Name())
	require.NoError(t, err)

	// Load it back and verify
	loaded, err := Load(tmpfile.Name())
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, []int{3, 5}, loaded.Acquisition.Channels)
	assert.True(t, loaded.Filter.Enabled)
	assert.Equal(t, filter.HighPass, loaded.Filter.Type)
	assert.Equal(t, cfg.Mock.StartUS, loaded.Mock.StartUS)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"no channels", func(c *Config) { c.Acquisition.Channels = nil }, "acquisition.channels must not be empty"},
		{"channel out of range", func(c *Config) { c.Acquisition.Channels = []int{0, 300} }, "channel 300 out of range"},
		{"zero repeat", func(c *Config) { c.Acquisition.Repeat = 0 }, "acquisition.repeat"},
		{"zero capacity", func(c *Config) { c.Acquisition.Capacity = 0 }, "acquisition.capacity"},
		{"zero baud", func(c *Config) { c.Serial.Baud = 0 }, "serial.baud"},
		{"short lines", func(c *Config) { c.Acquisition.MaxLineLength = 1 }, "max_line_length"},
		{"too many notches", func(c *Config) { c.Filter.Notches = make([]filter.Notch, 4) }, "filter:"},
		{"resolution", func(c *Config) { c.Display.ResolutionBits = 24 }, "resolution_bits"},
		{"mock sample time", func(c *Config) { c.Mock.SampleTimeUS = 70000 }, "sample_time_us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAll(t *testing.T) {
	cfg := Default()
	cfg.Serial.Baud = 0
	cfg.Acquisition.Capacity = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serial.baud")
	assert.Contains(t, err.Error(), "acquisition.capacity")
}
