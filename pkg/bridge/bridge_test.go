package bridge

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/lumina-project/vad-bridge/pkg/dialog"
)

type recordingSink struct {
	mu     sync.Mutex
	states []dialog.State
	edges  []string
}

func (s *recordingSink) StateChanged(st dialog.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}
func (s *recordingSink) Silence(uint64)          {}
func (s *recordingSink) VadEvent(edge string)    { s.mu.Lock(); s.edges = append(s.edges, edge); s.mu.Unlock() }
func (s *recordingSink) SttResult(string, bool)  {}
func (s *recordingSink) BackendAudioData(string, string) {}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.UpstreamAddress = filepath.Join(dir, "upstream.sock")
	cfg.RecognizerAddress = filepath.Join(dir, "recognizer.sock")
	cfg.SynthAddress = filepath.Join(dir, "synth.sock")
	return cfg
}

func voicedFrame() []float32 {
	frame := make([]float32, 320)
	for i := range frame {
		if i%2 == 0 {
			frame[i] = 0.8
		} else {
			frame[i] = -0.8
		}
	}
	return frame
}

func silentFrame() []float32 {
	return make([]float32, 320)
}

func TestBridge_HandleBackendControl_UnknownAction(t *testing.T) {
	b, err := New(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if err := b.HandleBackendControl("bogus", nil); err != ErrUnknownBackendAction {
		t.Errorf("expected ErrUnknownBackendAction, got %v", err)
	}
}

func TestBridge_HandleBackendControl_ResetAndEndSession(t *testing.T) {
	b, err := New(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	b.AudioPlaybackStarted()
	if b.GetVADState() != "Listening" {
		t.Fatalf("setup: expected Listening, got %s", b.GetVADState())
	}

	if err := b.HandleBackendControl("reset_to_initial", nil); err != nil {
		t.Fatalf("HandleBackendControl: %v", err)
	}
	if b.GetVADState() != "Initial" {
		t.Errorf("expected Initial after reset_to_initial, got %s", b.GetVADState())
	}

	b.AudioPlaybackStarted()
	if b.GetVADState() != "Listening" {
		t.Fatalf("setup: expected Listening, got %s", b.GetVADState())
	}

	if err := b.HandleBackendControl("end_session", nil); err != nil {
		t.Fatalf("HandleBackendControl: %v", err)
	}
	if b.GetVADState() != "Initial" {
		t.Errorf("expected Initial after end_session, got %s", b.GetVADState())
	}
}

func TestBridge_CreateTestSpeechSegment(t *testing.T) {
	b, err := New(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	b.CreateTestSpeechSegment()
	segs := b.GetSpeechSegments()
	if len(segs) != 1 {
		t.Fatalf("expected one diagnostic segment, got %d", len(segs))
	}
	if len(segs[0]) != 16000 {
		t.Errorf("expected 16000 samples (1s @16kHz), got %d", len(segs[0]))
	}

	b.ClearSpeechSegments()
	if len(b.GetSpeechSegments()) != 0 {
		t.Error("expected segments cleared")
	}
}

func TestBridge_ProcessAudioFrame_EmitsVadEvent(t *testing.T) {
	sink := &recordingSink{}
	b, err := New(testConfig(t), sink, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if _, err := b.ProcessAudioFrame(silentFrame()); err != nil {
		t.Fatalf("ProcessAudioFrame: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.edges) != 1 {
		t.Fatalf("expected one vad-event emitted, got %d", len(sink.edges))
	}
}

func TestBridge_ProcessAudioFrame_RejectsShortFrame(t *testing.T) {
	b, err := New(testConfig(t), nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if _, err := b.ProcessAudioFrame(make([]float32, 3)); err == nil {
		t.Error("expected error for too-short frame")
	}
}
