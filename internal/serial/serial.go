// Package serial is the byte transport the kernel logs through before any
// other output is available.
package serial

import (
	"fmt"
	"io"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/superkooks/bootcon/internal/kerr"
)

// COM1 is the I/O base of the first PC serial port.
const COM1 uint16 = 0x3F8

var metricBytesTx = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bootcon_serial_bytes_tx_total",
	Help: "The total number of bytes sent to a serial port",
}, []string{"port"})

var metricDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bootcon_serial_dropped_writes_total",
	Help: "Best-effort serial writes that were discarded",
}, []string{"port"})

// Port is a serial port guarded by a mutex. The UART itself is the sink
// passed to Init.
type Port struct {
	mu   sync.Mutex
	sink io.Writer
	name string
}

// New returns an uninitialized port for the given I/O base.
func New(base uint16) *Port {
	return &Port{name: fmt.Sprintf("%#x", base)}
}

// Init binds the port to its sink.
func (p *Port) Init(sink io.Writer) error {
	if sink == nil {
		return kerr.Wrap(kerr.SerialInitFailed, "no sink for port "+p.name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sink = sink
	return nil
}

// Initialized reports whether Init has bound a sink.
func (p *Port) Initialized() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink != nil
}

// Write implements io.Writer.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sink == nil {
		return 0, kerr.ErrSerialInit
	}

	n, err := p.sink.Write(b)
	metricBytesTx.WithLabelValues(p.name).Add(float64(n))
	if err != nil {
		return n, kerr.WrapCause(kerr.WriteFailed, "serial port "+p.name, err)
	}
	return n, nil
}

// WriteSafe writes b when the port is initialized and free, and discards it
// otherwise. Sink errors are ignored.
func (p *Port) WriteSafe(b []byte) {
	if !p.mu.TryLock() {
		metricDropped.WithLabelValues(p.name).Inc()
		return
	}
	defer p.mu.Unlock()

	if p.sink == nil {
		metricDropped.WithLabelValues(p.name).Inc()
		return
	}
	n, _ := p.sink.Write(b)
	metricBytesTx.WithLabelValues(p.name).Add(float64(n))
}

// PrintSafe formats and writes through WriteSafe.
func (p *Port) PrintSafe(format string, args ...any) {
	p.WriteSafe([]byte(fmt.Sprintf(format, args...)))
}
