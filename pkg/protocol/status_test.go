package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Apply(t *testing.T) {
	var s Status

	lines := []struct {
		line string
		ok   bool
	}{
		{"#   0, 1,1,2", true},
		{"# repeatCount: 4", true},
		{"# groundPin: 7", true},
		{"# useGroundBeforeEach: TRUE", true},
		{"# osr: 16", true},
		{"# gain: 2", true},
		{"# adcReference: INTERNAL1V2", true},
		{"# STATUS ready", false},
		{"# repeatCount: many", false},
		{"#   1,x,3", false},
		{"no prefix: 1", false},
		{"# unknown: 1", false},
	}

	for _, l := range lines {
		assert.Equal(t, l.ok, s.Apply(l.line), l.line)
	}

	assert.Equal(t, []int{0, 1, 1, 2}, s.Channels)
	assert.Equal(t, 4, s.Repeat)
	assert.Equal(t, 7, s.GroundPin)
	assert.True(t, s.UseGround)
	assert.Equal(t, 16, s.OSR)
	assert.Equal(t, 2, s.Gain)
	assert.Equal(t, "1.2", s.Reference)
	assert.Equal(t, 7, s.UpdatedLines)
}

func TestStatus_ReferenceMapping(t *testing.T) {
	tests := map[string]string{
		"VDD":         "vdd",
		"3V3":         "vdd",
		"1V2":         "1.2",
		"INTERNAL1V2": "1.2",
		"EXTERNAL":    "external",
	}
	for in, want := range tests {
		var s Status
		assert.True(t, s.Apply("# reference: "+in))
		assert.Equal(t, want, s.Reference, in)
	}
}

func TestStatus_Clone(t *testing.T) {
	s := Status{Channels: []int{1, 2}}
	c := s.Clone()
	c.Channels[0] = 9
	assert.Equal(t, 1, s.Channels[0])
}
