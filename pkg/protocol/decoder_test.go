package protocol

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, b Block) []byte {
	t.Helper()
	p, err := Encode(b)
	require.NoError(t, err)
	return p
}

func capturingDecoder() *Decoder {
	d := NewDecoder(0)
	d.SetCapturing(true)
	return d
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		block Block
	}{
		{
			name:  "empty block",
			block: Block{Samples: []uint16{}, AvgSampleTimeUS: 1, StartUS: 2, EndUS: 3},
		},
		{
			name: "extreme values",
			block: Block{
				Samples:         []uint16{0, 0xFFFF, 0xAA55, 0x55AA, '#', '\n'},
				AvgSampleTimeUS: 0xFFFF,
				StartUS:         0xFFFFFFFF,
				EndUS:           0,
			},
		},
		{
			name:  "concrete scenario",
			block: Block{Samples: []uint16{10, 11, 20, 21, 30, 31, 40, 41}, AvgSampleTimeUS: 100, StartUS: 1000, EndUS: 1700},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustEncode(t, tt.block)
			assert.Len(t, p, 14+2*len(tt.block.Samples))

			events := capturingDecoder().Feed(p)
			require.Len(t, events, 1)
			assert.Equal(t, EventBlock, events[0].Kind)
			assert.Equal(t, tt.block, events[0].Block)
		})
	}
}

func TestEncode_WireLayout(t *testing.T) {
	p := mustEncode(t, Block{Samples: []uint16{0x0102}, AvgSampleTimeUS: 0x0304, StartUS: 0x05060708, EndUS: 0x090A0B0C})
	want := []byte{
		0xAA, 0x55, 0x01, 0x00,
		0x02, 0x01,
		0x04, 0x03,
		0x08, 0x07, 0x06, 0x05,
		0x0C, 0x0B, 0x0A, 0x09,
	}
	assert.Equal(t, want, p)
}

func TestEncode_TooManySamples(t *testing.T) {
	_, err := Encode(Block{Samples: make([]uint16, MaxSamples+1)})
	assert.Error(t, err)
}

func TestDecoder_TextLines(t *testing.T) {
	d := NewDecoder(0)
	events := d.Feed([]byte("# STATUS: ready\r\n#\n#   1,2,3\n"))

	require.Len(t, events, 2)
	assert.Equal(t, Event{Kind: EventText, Text: "# STATUS: ready"}, events[0])
	assert.Equal(t, Event{Kind: EventText, Text: "#   1,2,3"}, events[1])
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_NotCapturingDiscardsBlocks(t *testing.T) {
	d := NewDecoder(0)
	stream := mustEncode(t, Block{Samples: []uint16{1, 2, 3, 4}})
	stream = append(stream, []byte("#hello\n")...)
	stream = append(stream, mustEncode(t, Block{Samples: []uint16{5, 6}})...)

	events := d.Feed(stream)

	require.Len(t, events, 1)
	assert.Equal(t, EventText, events[0].Kind)
	assert.Equal(t, uint64(2), d.Discarded())
	assert.Equal(t, 0, d.Pending())

	d.SetCapturing(true)
	assert.True(t, d.Capturing())
	events = d.Feed(mustEncode(t, Block{Samples: []uint16{7}}))
	require.Len(t, events, 1)
	assert.Equal(t, []uint16{7}, events[0].Block.Samples)
}

func TestDecoder_WaitsForCompletePacket(t *testing.T) {
	d := capturingDecoder()
	p := mustEncode(t, Block{Samples: []uint16{1, 2, 3, 4, 5, 6}, StartUS: 99})

	for i := 0; i < len(p)-1; i++ {
		assert.Empty(t, d.Feed(p[i:i+1]), "byte %d", i)
	}
	assert.Equal(t, len(p)-1, d.Pending())

	events := d.Feed(p[len(p)-1:])
	require.Len(t, events, 1)
	assert.Equal(t, uint32(99), events[0].Block.StartUS)
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_Resync(t *testing.T) {
	block := Block{Samples: []uint16{100, 200}, AvgSampleTimeUS: 10, StartUS: 1, EndUS: 2}

	tests := []struct {
		name   string
		prefix []byte
	}{
		{name: "random junk", prefix: []byte{0x00, 0x13, 0xFF, 0x55, 0xAA}},
		{name: "invalid utf8 line", prefix: []byte{'#', 0xFF, 0xFE, '\n'}},
		{name: "hash followed by packet", prefix: []byte{'#', '#'}},
		{name: "lone magic byte", prefix: []byte{0xAA, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := capturingDecoder()
			stream := append(append([]byte{}, tt.prefix...), mustEncode(t, block)...)
			stream = append(stream, []byte("#ok\n")...)

			events := d.Feed(stream)

			var blocks []Block
			var texts []string
			for _, ev := range events {
				switch ev.Kind {
				case EventBlock:
					blocks = append(blocks, ev.Block)
				case EventText:
					texts = append(texts, ev.Text)
				}
			}
			require.Len(t, blocks, 1)
			assert.Equal(t, block, blocks[0])
			assert.Equal(t, "#ok", texts[len(texts)-1])
			assert.Equal(t, 0, d.Pending())
		})
	}
}

func TestDecoder_NonPrintableLineIsConsumed(t *testing.T) {
	d := capturingDecoder()
	events := d.Feed([]byte("#bell\x07\n#next\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "#next", events[0].Text)
	assert.Equal(t, uint64(0), d.Dropped())
}

func TestDecoder_LineWithoutNewlineBeyondBound(t *testing.T) {
	d := NewDecoder(8)
	d.SetCapturing(true)

	// Shorter than the bound: wait for the newline.
	assert.Empty(t, d.Feed([]byte("#abc")))
	assert.Equal(t, 4, d.Pending())

	// Past the bound without a newline: the '#' is dropped and scanning resumes.
	events := d.Feed([]byte("defghij"))
	assert.Empty(t, events)
	assert.Greater(t, d.Dropped(), uint64(0))
	assert.Less(t, d.Pending(), 11)
}

func TestDecoder_ChunkingInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	var stream []byte
	var want []Event
	for i := 0; i < 60; i++ {
		if rng.Intn(3) == 0 {
			line := fmt.Sprintf("# line %d value=%d", i, rng.Intn(1000))
			stream = append(stream, []byte(line+"\n")...)
			want = append(want, Event{Kind: EventText, Text: line})
			continue
		}
		n := rng.Intn(40)
		samples := make([]uint16, n)
		for j := range samples {
			samples[j] = uint16(rng.Intn(0x10000))
		}
		b := Block{
			Samples:         samples,
			AvgSampleTimeUS: uint16(rng.Intn(0x10000)),
			StartUS:         rng.Uint32(),
			EndUS:           rng.Uint32(),
		}
		stream = append(stream, mustEncode(t, b)...)
		want = append(want, Event{Kind: EventBlock, Block: b})
	}

	whole := capturingDecoder().Feed(stream)
	require.Equal(t, want, whole)

	for trial := 0; trial < 20; trial++ {
		d := capturingDecoder()
		var got []Event
		for rest := stream; len(rest) > 0; {
			n := 1 + rng.Intn(64)
			if n > len(rest) {
				n = len(rest)
			}
			got = append(got, d.Feed(rest[:n])...)
			rest = rest[n:]
		}
		assert.Equal(t, want, got, "trial %d", trial)
		assert.Equal(t, 0, d.Pending())
	}
}

func TestDecoder_ConcreteScenario(t *testing.T) {
	p := mustEncode(t, Block{
		Samples:         []uint16{10, 11, 20, 21, 30, 31, 40, 41},
		AvgSampleTimeUS: 100,
		StartUS:         1000,
		EndUS:           1700,
	})

	events := capturingDecoder().Feed(p)
	require.Len(t, events, 1)
	b := events[0].Block
	assert.Equal(t, 8, b.SampleCount())
	assert.Equal(t, []uint16{10, 11, 20, 21}, b.Samples[:4])
	assert.Equal(t, []uint16{30, 31, 40, 41}, b.Samples[4:])
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "block", EventBlock.String())
	assert.Equal(t, "text", EventText.String())
	assert.Equal(t, "unknown", EventKind(7).String())
}
