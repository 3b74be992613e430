package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// Magic0 and Magic1 open every binary block packet.
	Magic0 = 0xAA
	Magic1 = 0x55

	// TextPrefix opens every diagnostic text line.
	TextPrefix = '#'

	// HeaderSize is magic (2) + sample count (2).
	HeaderSize = 4
	// TrailerSize is avg sample time (2) + block start (4) + block end (4).
	TrailerSize = 10

	// MaxSamples is the largest sample count a u16 header can carry.
	MaxSamples = 0xFFFF
)

// Block is one binary transmission unit from the MCU.
// It holds one or more sweeps plus the MCU timing metadata.
type Block struct {
	Samples         []uint16
	AvgSampleTimeUS uint16 // Average time per sample in microseconds
	StartUS         uint32 // MCU micros() at first sample
	EndUS           uint32 // MCU micros() at last sample
}

// SampleCount returns the number of samples in the block.
func (b Block) SampleCount() int {
	return len(b.Samples)
}

// PacketSize returns the size of an encoded packet carrying sampleCount samples.
func PacketSize(sampleCount int) int {
	return HeaderSize + sampleCount*2 + TrailerSize
}

// Encode serializes a block into the little-endian wire format.
func Encode(b Block) ([]byte, error) {
	return AppendEncode(nil, b)
}

// AppendEncode appends the encoded block to dst and returns the extended slice.
func AppendEncode(dst []byte, b Block) ([]byte, error) {
	n := len(b.Samples)
	if n > MaxSamples {
		return dst, fmt.Errorf("block has %d samples, max %d", n, MaxSamples)
	}

	dst = append(dst, Magic0, Magic1)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(n))
	for _, s := range b.Samples {
		dst = binary.LittleEndian.AppendUint16(dst, s)
	}
	dst = binary.LittleEndian.AppendUint16(dst, b.AvgSampleTimeUS)
	dst = binary.LittleEndian.AppendUint32(dst, b.StartUS)
	dst = binary.LittleEndian.AppendUint32(dst, b.EndUS)
	return dst, nil
}

// decodePacket parses a complete packet. The caller guarantees len(p) == PacketSize(n).
func decodePacket(p []byte, n int) Block {
	samples := make([]uint16, n)
	for i := range samples {
		samples[i] = binary.LittleEndian.Uint16(p[HeaderSize+2*i:])
	}
	t := HeaderSize + 2*n
	return Block{
		Samples:         samples,
		AvgSampleTimeUS: binary.LittleEndian.Uint16(p[t:]),
		StartUS:         binary.LittleEndian.Uint32(p[t+2:]),
		EndUS:           binary.LittleEndian.Uint32(p[t+6:]),
	}
}
