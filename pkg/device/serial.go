package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	// DefaultBaudRate is the rate the firmware is built for.
	DefaultBaudRate = 460800
	// DefaultBufferSize is the default number of chunks buffered between the
	// reader and the consumer.
	DefaultBufferSize = 256
	// ReadChunkSize is the size of a single read from the port.
	ReadChunkSize = 4096
)

// Port represents a serial port.
type Port struct {
	Name        string
	Description string
	IsUSB       bool
	VID, PID    string
}

// Serial represents a connection to the streaming MCU.
type Serial struct {
	port        string
	baudRate    int
	bufSize     int
	readTimeout time.Duration

	conn      serial.Port
	data      chan []byte
	mu        sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool
}

// New creates a new Serial device with the specified port, baud rate, and buffer size.
func New(port string, baudRate int, bufSize int, readTimeout time.Duration) *Serial {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}
	if bufSize == 0 {
		bufSize = DefaultBufferSize
	}
	if readTimeout == 0 {
		readTimeout = time.Second
	}

	return &Serial{
		port:        port,
		baudRate:    baudRate,
		bufSize:     bufSize,
		readTimeout: readTimeout,
		data:        make(chan []byte, bufSize),
	}
}

// Ports returns a list of available serial ports.
func Ports() ([]Port, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		result := make([]Port, 0, len(details))
		for _, d := range details {
			desc := d.Name
			if d.Product != "" {
				desc = d.Name + " - " + d.Product
			}
			result = append(result, Port{
				Name:        d.Name,
				Description: desc,
				IsUSB:       d.IsUSB,
				VID:         d.VID,
				PID:         d.PID,
			})
		}
		return result, nil
	}

	// Enumeration without USB details is still useful.
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	result := make([]Port, 0, len(names))
	for _, name := range names {
		result = append(result, Port{Name: name, Description: name})
	}
	return result, nil
}

// Connect opens the serial port and starts reading.
func (d *Serial) Connect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return ErrAlreadyConnected
	}

	mode := &serial.Mode{
		BaudRate: d.baudRate,
	}

	port, err := serial.Open(d.port, mode)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", d.port, err)
	}
	if err := port.SetReadTimeout(d.readTimeout); err != nil {
		port.Close()
		return fmt.Errorf("failed to set read timeout on %s: %w", d.port, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Printf("Failed to reset input buffer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.conn = port
	d.cancel = cancel
	d.data = make(chan []byte, d.bufSize)
	d.done = make(chan struct{})
	d.connected = true

	go d.read(ctx, port, d.data, d.done)

	return nil
}

// Close closes the connection, stops the reader and closes the data channel.
func (d *Serial) Close() error {
	d.mu.Lock()
	if !d.connected {
		d.mu.Unlock()
		return nil
	}

	d.cancel()
	if err := d.conn.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	d.conn = nil
	d.connected = false
	done := d.done
	d.mu.Unlock()

	<-done
	return nil
}

// Data returns the channel of received byte chunks for the current
// connection.
func (d *Serial) Data() <-chan []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.data
}

// Send writes a command followed by the terminator.
func (d *Serial) Send(cmd string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.connected {
		return ErrNotConnected
	}

	if _, err := d.conn.Write([]byte(cmd + Terminator)); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	if err := d.conn.Drain(); err != nil {
		return fmt.Errorf("failed to flush command %q: %w", cmd, err)
	}
	return nil
}

// IsConnected returns whether the device is currently connected.
func (d *Serial) IsConnected() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.connected
}

// read copies bytes from the port to the data channel until ctx is cancelled
// or the port fails. Chunks are never dropped: the decoder needs the stream
// intact.
func (d *Serial) read(ctx context.Context, port serial.Port, data chan<- []byte, done chan struct{}) {
	defer close(done)
	defer close(data)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in serial reader: %v", r)
		}
	}()

	buf := make([]byte, ReadChunkSize)
	for {
		n, err := port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case data <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				log.Printf("Error reading from serial port: %v", err)
			}
			return
		}
		// n == 0 with no error is a read timeout
		if ctx.Err() != nil {
			return
		}
	}
}
