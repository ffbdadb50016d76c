package bridge

import "github.com/lumina-project/vad-bridge/pkg/dialog"

// Sink is the full outbound UI event bus of spec.md §6: the two events the
// Dialog State Machine and Heartbeat emit directly (embedded via
// dialog.Bus), plus the three the Command Surface emits itself.
type Sink interface {
	dialog.Bus
	// VadEvent reports a classified edge from process_audio_frame.
	VadEvent(edge string)
	// SttResult forwards one recognizer message to the UI.
	SttResult(text string, isFinal bool)
	// BackendAudioData reports one base64-encoded synthesised PCM chunk.
	BackendAudioData(dataB64, format string)
}

// NoOpSink discards every event.
type NoOpSink struct{}

func (NoOpSink) StateChanged(dialog.State)       {}
func (NoOpSink) Silence(uint64)                  {}
func (NoOpSink) VadEvent(string)                 {}
func (NoOpSink) SttResult(string, bool)          {}
func (NoOpSink) BackendAudioData(string, string) {}
