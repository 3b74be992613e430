package device

import "errors"

var (
	// ErrNotConnected is returned by operations that need an open device.
	ErrNotConnected = errors.New("not connected")
	// ErrAlreadyConnected is returned by Connect on an open device.
	ErrAlreadyConnected = errors.New("already connected")
)

// Commands understood by the MCU firmware.
const (
	CommandRun  = "run"
	CommandStop = "stop"

	// Terminator ends every command sent to the MCU.
	Terminator = "***"
)

// Device defines the interface for ADC streaming devices (real or mocked).
//
// Data delivers raw byte chunks in arrival order and is closed after Close.
type Device interface {
	Connect() error
	Close() error
	Data() <-chan []byte
	Send(cmd string) error
	IsConnected() bool
}

// Ensure Serial implements Device.
var _ Device = (*Serial)(nil)

// Ensure Mock implements Device.
var _ Device = (*Mock)(nil)
