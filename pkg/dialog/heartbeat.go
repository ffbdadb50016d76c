package dialog

import (
	"sync"
	"time"
)

// heartbeatCadence is the tick interval of the Silence Heartbeat.
const heartbeatCadence = 20 * time.Millisecond

// Heartbeat emits a tick every 20ms while running, carrying the elapsed
// milliseconds since Start — computed from a monotonic clock reading, not a
// counter, so missed ticks under CPU pressure never accumulate drift.
type Heartbeat struct {
	mu      sync.Mutex
	cancel  chan struct{}
	running bool
}

// Start is idempotent; a second call while already running does nothing.
// onTick is invoked on every tick with the elapsed milliseconds since Start.
func (h *Heartbeat) Start(onTick func(elapsedMs uint64)) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	cancel := make(chan struct{})
	h.cancel = cancel
	h.running = true
	h.mu.Unlock()

	go h.run(cancel, onTick)
}

func (h *Heartbeat) run(cancel chan struct{}, onTick func(uint64)) {
	start := time.Now()
	ticker := time.NewTicker(heartbeatCadence)
	defer ticker.Stop()

	for {
		select {
		case <-cancel:
			return
		case <-ticker.C:
			if onTick != nil {
				onTick(uint64(time.Since(start).Milliseconds()))
			}
		}
	}
}

// Stop cooperatively cancels the running tick loop. Safe to call when not
// running.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.running {
		return
	}
	close(h.cancel)
	h.running = false
}

// Running reports whether the heartbeat is currently ticking.
func (h *Heartbeat) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}
