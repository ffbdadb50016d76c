package dialog

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestHeartbeat_TicksAndReportsElapsed(t *testing.T) {
	var ticks int32
	var lastElapsed uint64

	h := &Heartbeat{}
	h.Start(func(elapsedMs uint64) {
		atomic.AddInt32(&ticks, 1)
		atomic.StoreUint64(&lastElapsed, elapsedMs)
	})
	defer h.Stop()

	time.Sleep(100 * time.Millisecond)

	if atomic.LoadInt32(&ticks) < 2 {
		t.Errorf("expected multiple ticks in 100ms at 20ms cadence, got %d", ticks)
	}
	if atomic.LoadUint64(&lastElapsed) == 0 {
		t.Error("expected nonzero elapsed milliseconds")
	}
}

func TestHeartbeat_StartIsIdempotent(t *testing.T) {
	h := &Heartbeat{}
	h.Start(func(uint64) {})
	h.Start(func(uint64) {})
	defer h.Stop()

	if !h.Running() {
		t.Error("expected running after Start")
	}
}

func TestHeartbeat_StopIsIdempotent(t *testing.T) {
	h := &Heartbeat{}
	h.Start(func(uint64) {})
	h.Stop()
	h.Stop()

	if h.Running() {
		t.Error("expected not running after Stop")
	}
}

func TestHeartbeat_StopWithoutStart(t *testing.T) {
	h := &Heartbeat{}
	h.Stop()
	if h.Running() {
		t.Error("expected not running")
	}
}
