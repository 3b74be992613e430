package protocol

import (
	"strconv"
	"strings"
)

// Status is the MCU configuration as reported by its '#' status lines.
type Status struct {
	Channels     []int
	Repeat       int
	GroundPin    int
	UseGround    bool
	OSR          int
	Gain         int
	Reference    string
	UpdatedLines int
}

var referenceNames = map[string]string{
	"INTERNAL1V2": "1.2",
	"1V2":         "1.2",
	"VDD":         "vdd",
	"3V3":         "vdd",
}

// Apply parses a single status line such as "#   1,2,3" or "# repeatCount: 4"
// and updates s. It returns false when the line carries nothing recognised.
func (s *Status) Apply(line string) bool {
	if !strings.HasPrefix(line, "#") {
		return false
	}

	// Channel list: "#   1,2,3,4,5"
	if strings.HasPrefix(line, "#   ") && strings.Contains(line, ",") && !strings.Contains(line, ":") {
		parts := strings.Split(strings.TrimSpace(line[4:]), ",")
		channels := make([]int, 0, len(parts))
		for _, p := range parts {
			v, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return false
			}
			channels = append(channels, v)
		}
		s.Channels = channels
		s.UpdatedLines++
		return true
	}

	key, value, found := strings.Cut(line, ":")
	if !found {
		return false
	}
	key = strings.TrimSpace(strings.Trim(key, "# "))
	value = strings.TrimSpace(value)
	lower := strings.ToLower(key)

	var err error
	switch {
	case strings.Contains(key, "repeatCount"):
		s.Repeat, err = strconv.Atoi(value)
	case strings.Contains(key, "groundPin"):
		s.GroundPin, err = strconv.Atoi(value)
	case strings.Contains(key, "useGroundBeforeEach"):
		s.UseGround = strings.EqualFold(value, "true")
	case strings.Contains(lower, "osr"):
		s.OSR, err = strconv.Atoi(value)
	case strings.Contains(lower, "gain"):
		s.Gain, err = strconv.Atoi(value)
	case strings.Contains(key, "adcReference") || strings.Contains(lower, "reference"):
		if mapped, ok := referenceNames[value]; ok {
			s.Reference = mapped
		} else {
			s.Reference = strings.ToLower(value)
		}
	default:
		return false
	}
	if err != nil {
		return false
	}
	s.UpdatedLines++
	return true
}

// Clone returns a deep copy of s.
func (s Status) Clone() Status {
	c := s
	if s.Channels != nil {
		c.Channels = append([]int(nil), s.Channels...)
	}
	return c
}
