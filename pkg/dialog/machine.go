// Package dialog implements the Dialog State Machine: the hidden
// TransitionBuffer quarantine, the Speaking→Waiting silence collapse, and
// the Silence Heartbeat that runs while Waiting.
package dialog

import (
	"sync"
	"time"
)

// State is one of the five VadState values. TransitionBuffer is never
// surfaced to the UI or to State(); the machine has no exported accessor
// for its raw internal state.
type State string

const (
	Initial          State = "Initial"
	Speaking         State = "Speaking"
	Waiting          State = "Waiting"
	Listening        State = "Listening"
	TransitionBuffer State = "TransitionBuffer"
)

// silenceCollapseFrames is the number of consecutive unvoiced classified
// frames that collapse Speaking into Waiting.
const silenceCollapseFrames = 5

// transitionBufferTimeout bounds how long the machine waits in
// TransitionBuffer for non-empty recognizer text before falling back to the
// previously visible state.
const transitionBufferTimeout = 500 * time.Millisecond

// PreContextSender is the subset of the Audio Pipeline the machine calls
// into directly: forwarding the pre-roll context on a TransitionBuffer
// entry from Waiting or Listening.
type PreContextSender interface {
	SendPreContext()
}

// Machine is the Dialog State Machine singleton. Interior mutation is
// guarded by an exclusive lock; per spec.md §9's lock ordering, it never
// calls back into the Audio Pipeline or Backend Channel while holding that
// lock except through PreContextSender, which does its own locking
// internally and is called synchronously here by design.
type Machine struct {
	mu sync.Mutex

	state               State
	lastVisibleState    State
	transitionEntryTime time.Time
	silenceRun          int

	pipeline      PreContextSender
	bus           Bus
	heartbeat     Heartbeat
	onHeartbeatMs func(elapsedMs uint64)
}

// New builds a Machine in the Initial state. pipeline is used to send
// pre-context on certain TransitionBuffer entries; bus receives
// vad-state-changed and silence-event notifications; onHeartbeatMs (may be
// nil) is invoked on every heartbeat tick to write the control WireFrame to
// the Backend Channel.
func New(pipeline PreContextSender, bus Bus, onHeartbeatMs func(elapsedMs uint64)) *Machine {
	if bus == nil {
		bus = NoOpBus{}
	}
	return &Machine{
		state:             Initial,
		lastVisibleState:  Initial,
		pipeline:          pipeline,
		bus:               bus,
		onHeartbeatMs:     onHeartbeatMs,
	}
}

// State returns the UI-visible state: TransitionBuffer is substituted with
// last_user_visible_state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == TransitionBuffer {
		return m.lastVisibleState
	}
	return m.state
}

// VoiceFrame feeds one classified-voiced frame into the machine and
// reports whether the current frame should be forwarded upstream.
func (m *Machine) VoiceFrame() (forward bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Initial:
		m.enterTransitionBufferLocked(Initial, false)
		return true
	case Speaking:
		m.silenceRun = 0
		return true
	case Waiting:
		m.enterTransitionBufferLocked(Waiting, true)
		return true
	case Listening:
		m.enterTransitionBufferLocked(Listening, true)
		return true
	case TransitionBuffer:
		return true
	default:
		return false
	}
}

// SilenceFrame feeds one classified-unvoiced frame into the machine and
// reports whether the current frame should be forwarded upstream.
func (m *Machine) SilenceFrame() (forward bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Initial:
		return false
	case Speaking:
		m.silenceRun++
		if m.silenceRun >= silenceCollapseFrames {
			m.silenceRun = 0
			m.setStateLocked(Waiting, true)
			return false
		}
		return true
	case Waiting:
		return false
	case Listening:
		return false
	case TransitionBuffer:
		return true
	default:
		return false
	}
}

// BackendReturnText injects non-empty recognizer text. Only meaningful from
// TransitionBuffer, where it confirms real speech and advances to Speaking.
func (m *Machine) BackendReturnText() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != TransitionBuffer {
		return
	}
	m.transitionEntryTime = time.Time{}
	m.silenceRun = 0
	m.setStateLocked(Speaking, true)
}

// AudioPlaybackStart injects the start of synthesised-audio playback.
func (m *Machine) AudioPlaybackStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setStateLocked(Listening, true)
}

// AudioPlaybackEnd injects the end of synthesised-audio playback.
func (m *Machine) AudioPlaybackEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case Listening:
		m.setStateLocked(Initial, true)
	case TransitionBuffer:
		// Stays quarantined; playback ending mid-transition does not
		// resolve the pending wake-up.
	default:
		// Initial, Speaking, Waiting: no-op, matches the transition table.
	}
}

// BackendEndSession injects a session-end signal from the backend.
func (m *Machine) BackendEndSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetToInitialLocked()
}

// BackendResetToInitial injects an explicit reset signal from the backend.
func (m *Machine) BackendResetToInitial() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetToInitialLocked()
}

// TransitionTimeout is driven by the Bridge's timer once
// transitionBufferTimeout has elapsed since entering TransitionBuffer with
// no confirming BackendReturnText. It is a no-op if the machine is not
// (still) in TransitionBuffer or the timeout has not actually elapsed.
func (m *Machine) TransitionTimeout() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != TransitionBuffer {
		return
	}
	if time.Since(m.transitionEntryTime) <= transitionBufferTimeout {
		return
	}

	fallback := m.lastVisibleState
	m.transitionEntryTime = time.Time{}
	// Falling back to the state the UI already believes it's in is not a
	// user-visible transition; no StateChanged event is emitted.
	m.setStateLocked(fallback, false)
}

// DueForTimeout reports whether the machine has been in TransitionBuffer
// longer than the timeout, for a driver loop to poll.
func (m *Machine) DueForTimeout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == TransitionBuffer && time.Since(m.transitionEntryTime) > transitionBufferTimeout
}

func (m *Machine) resetToInitialLocked() {
	m.transitionEntryTime = time.Time{}
	m.silenceRun = 0
	m.setStateLocked(Initial, true)
}

// enterTransitionBufferLocked records the previous visible state and entry
// time, optionally forwarding the pre-roll context first, and switches into
// the hidden TransitionBuffer state without emitting a UI event.
func (m *Machine) enterTransitionBufferLocked(previousVisible State, sendPreContext bool) {
	if sendPreContext && m.pipeline != nil {
		m.pipeline.SendPreContext()
	}
	m.lastVisibleState = previousVisible
	m.transitionEntryTime = time.Now()
	m.setStateLocked(TransitionBuffer, false)
}

// setStateLocked transitions to next, starting/stopping the heartbeat on
// Waiting boundary crossings, and emits a StateChanged event when emit is
// true and the state actually changed.
func (m *Machine) setStateLocked(next State, emit bool) {
	prev := m.state
	m.state = next

	if next != TransitionBuffer {
		m.lastVisibleState = next
	}

	if prev == Waiting && next != Waiting {
		m.heartbeat.Stop()
	}
	if next == Waiting && prev != Waiting {
		m.heartbeat.Start(m.onWaitingTick)
	}

	if emit && prev != next {
		m.bus.StateChanged(next)
	}
}

func (m *Machine) onWaitingTick(elapsedMs uint64) {
	m.bus.Silence(elapsedMs)
	if m.onHeartbeatMs != nil {
		m.onHeartbeatMs(elapsedMs)
	}
}
