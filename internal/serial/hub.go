package serial

import (
	"bytes"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// backlogSize is how much recent output a new subscriber receives.
	backlogSize = 4096
	// subscriberQueue is the number of pending writes a subscriber may lag.
	subscriberQueue = 64
)

var metricSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "bootcon_serial_subscribers",
	Help: "The number of clients currently following serial output",
})

// Hub is a serial sink that fans output out to any number of subscribers,
// like a terminal attached to the emulator's serial port. Slow subscribers
// lose writes instead of stalling the kernel.
type Hub struct {
	m       sync.Mutex
	backlog bytes.Buffer
	subs    map[chan []byte]struct{}
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan []byte]struct{})}
}

// Write implements io.Writer. It never fails.
func (h *Hub) Write(p []byte) (n int, err error) {
	h.m.Lock()
	defer h.m.Unlock()

	h.backlog.Write(p)
	if over := h.backlog.Len() - backlogSize; over > 0 {
		h.backlog.Next(over)
	}

	for ch := range h.subs {
		msg := bytes.Clone(p)
		select {
		case ch <- msg:
		default:
		}
	}
	return len(p), nil
}

// Backlog returns a copy of the recent output.
func (h *Hub) Backlog() []byte {
	h.m.Lock()
	defer h.m.Unlock()
	return bytes.Clone(h.backlog.Bytes())
}

// Subscribe returns the backlog and a channel of subsequent writes. cancel
// closes the channel.
func (h *Hub) Subscribe() (backlog []byte, ch <-chan []byte, cancel func()) {
	h.m.Lock()
	defer h.m.Unlock()

	c := make(chan []byte, subscriberQueue)
	h.subs[c] = struct{}{}
	metricSubscribers.Inc()

	var once sync.Once
	cancel = func() {
		once.Do(func() {
			h.m.Lock()
			defer h.m.Unlock()
			delete(h.subs, c)
			close(c)
			metricSubscribers.Dec()
		})
	}
	return bytes.Clone(h.backlog.Bytes()), c, cancel
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.m.Lock()
	defer h.m.Unlock()
	return len(h.subs)
}
