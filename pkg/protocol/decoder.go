package protocol

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync/atomic"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxLineLength bounds how far the decoder looks for the newline of a
// text line before it gives up on the leading '#' and resynchronizes.
const DefaultMaxLineLength = 512

// EventKind tells which payload an Event carries.
type EventKind int

const (
	EventBlock EventKind = iota
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventBlock:
		return "block"
	case EventText:
		return "text"
	default:
		return "unknown"
	}
}

// Event is a single decoded unit of the stream.
type Event struct {
	Kind  EventKind
	Block Block  // Valid when Kind == EventBlock
	Text  string // Valid when Kind == EventText, trimmed
}

// Decoder splits the shared serial byte stream into binary blocks and
// text lines. It is not safe for concurrent Feed calls; the capturing flag
// may be toggled from any goroutine.
type Decoder struct {
	buf       []byte
	off       int
	maxLine   int
	capturing atomic.Bool

	dropped   uint64 // bytes skipped while resynchronizing
	discarded uint64 // complete packets dropped while not capturing
}

// NewDecoder creates a decoder. maxLine <= 0 selects DefaultMaxLineLength.
func NewDecoder(maxLine int) *Decoder {
	if maxLine <= 0 {
		maxLine = DefaultMaxLineLength
	}
	return &Decoder{
		buf:     make([]byte, 0, 4096),
		maxLine: maxLine,
	}
}

// SetCapturing enables or disables emission of binary blocks.
// While disabled, complete packets are still consumed and discarded.
func (d *Decoder) SetCapturing(on bool) {
	d.capturing.Store(on)
}

// Capturing reports whether binary blocks are emitted.
func (d *Decoder) Capturing() bool {
	return d.capturing.Load()
}

// Pending returns the number of buffered bytes awaiting more input.
func (d *Decoder) Pending() int {
	return len(d.buf) - d.off
}

// Dropped returns the number of bytes skipped to resynchronize.
func (d *Decoder) Dropped() uint64 {
	return d.dropped
}

// Discarded returns the number of complete packets dropped while not capturing.
func (d *Decoder) Discarded() uint64 {
	return d.discarded
}

// Reset discards all buffered bytes.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.off = 0
}

// Feed appends data to the internal buffer and returns all events that can
// be decoded from it. It never fails: malformed input is skipped byte by byte.
func (d *Decoder) Feed(data []byte) []Event {
	d.compact()
	d.buf = append(d.buf, data...)

	var events []Event
	for {
		ev, ok, more := d.next()
		if ok {
			events = append(events, ev)
		}
		if !more {
			break
		}
	}
	return events
}

// next performs a single scan step. ok reports an emitted event, more
// reports whether another step may make progress without new input.
func (d *Decoder) next() (ev Event, ok bool, more bool) {
	p := d.buf[d.off:]
	if len(p) < 2 {
		return Event{}, false, false
	}

	if p[0] == Magic0 && p[1] == Magic1 {
		if len(p) < HeaderSize {
			return Event{}, false, false
		}
		n := int(binary.LittleEndian.Uint16(p[2:]))
		size := PacketSize(n)
		if len(p) < size {
			return Event{}, false, false
		}
		d.off += size
		if !d.capturing.Load() {
			d.discarded++
			return Event{}, false, true
		}
		return Event{Kind: EventBlock, Block: decodePacket(p[:size], n)}, true, true
	}

	if p[0] == TextPrefix {
		window := p
		if len(window) > d.maxLine {
			window = window[:d.maxLine]
		}
		nl := bytes.IndexByte(window, '\n')
		if nl < 0 {
			if len(p) < d.maxLine {
				// Line still arriving.
				return Event{}, false, false
			}
			d.skip()
			return Event{}, false, true
		}
		raw := p[:nl]
		if !utf8.Valid(raw) {
			d.skip()
			return Event{}, false, true
		}
		d.off += nl + 1
		line := strings.TrimSpace(string(raw))
		if line == "" || !printable(line) {
			return Event{}, false, true
		}
		return Event{Kind: EventText, Text: line}, true, true
	}

	d.skip()
	return Event{}, false, true
}

func (d *Decoder) skip() {
	d.off++
	d.dropped++
}

// compact moves unread bytes to the front once the consumed prefix dominates.
func (d *Decoder) compact() {
	if d.off == 0 {
		return
	}
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
		return
	}
	if d.off >= len(d.buf)/2 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
}

func printable(s string) bool {
	for _, r := range s {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
