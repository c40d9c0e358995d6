package roboteq

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"go.bug.st/serial"
)

// Transport owns the serial byte stream to the controller and frames
// request/response exchanges as carriage-return terminated ASCII lines.
//
// The link is half-duplex and responses are not tagged with request
// identity, so Exchange holds a mutex for the full write+read: two
// in-flight exchanges would misattribute responses. Both the startup
// configurator and the control loop go through the same Transport.
type Transport struct {
	port    serial.Port
	timeout time.Duration

	mu sync.Mutex
}

const (
	// DefaultBaudRate is the fixed line rate of the controller.
	DefaultBaudRate = 115200
	// DefaultReadTimeout bounds the wait for a terminated response line.
	DefaultReadTimeout = 250 * time.Millisecond
)

// Open opens the serial device at 115200 8N1 and wraps it in a Transport.
func Open(path string) (*Transport, error) {
	mode := &serial.Mode{
		BaudRate: DefaultBaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	t := NewTransport(port, DefaultReadTimeout)
	if err := port.SetReadTimeout(20 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	glog.Infof("opened %s at %d baud", path, DefaultBaudRate)
	return t, nil
}

// NewTransport wraps an already-open port. timeout bounds each Exchange
// read; zero selects DefaultReadTimeout.
func NewTransport(port serial.Port, timeout time.Duration) *Transport {
	if timeout == 0 {
		timeout = DefaultReadTimeout
	}
	return &Transport{port: port, timeout: timeout}
}

// Exchange writes one request line and blocks until one full
// carriage-return terminated response line is read back, or the read
// timeout elapses (ErrTimeout). Concurrent callers are serialized.
func (t *Transport) Exchange(request string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if glog.V(2) {
		glog.Infof("SND %q", request)
	}
	if _, err := t.port.Write([]byte(request)); err != nil {
		return "", fmt.Errorf("write: %w", err)
	}

	var line strings.Builder
	buf := make([]byte, 1)
	deadline := time.Now().Add(t.timeout)
	for {
		// The deadline bounds the whole exchange, not just an idle
		// wait: a device streaming bytes with no terminator must not
		// hold the transport lock forever.
		if !time.Now().Before(deadline) {
			return "", ErrTimeout
		}
		n, err := t.port.Read(buf)
		if err != nil {
			return "", fmt.Errorf("read: %w", err)
		}
		if n == 0 {
			// Port-level timeout expired with no pending byte.
			continue
		}
		if buf[0] == '\r' {
			break
		}
		line.WriteByte(buf[0])
	}
	if glog.V(2) {
		glog.Infof("RCV %q", line.String())
	}
	return line.String(), nil
}

// Drain discards buffered input, e.g. a pending echo line after toggling
// the controller's echo flag.
func (t *Transport) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.ResetInputBuffer()
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port.Close()
}
