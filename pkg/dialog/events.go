package dialog

// Bus is the outbound UI event surface named in spec.md §6. pkg/bridge is
// the only caller of the text/audio-bearing events; the state machine and
// heartbeat only ever call StateChanged and Silence.
type Bus interface {
	// StateChanged reports a vad-state-changed transition. Never called
	// with TransitionBuffer, and never called for a transition that ends
	// hidden inside it.
	StateChanged(state State)
	// Silence reports a silence-event tick while Waiting.
	Silence(silenceMs uint64)
}

// NoOpBus discards every event; useful in tests that don't care about UI
// side effects.
type NoOpBus struct{}

func (NoOpBus) StateChanged(State) {}
func (NoOpBus) Silence(uint64)     {}
