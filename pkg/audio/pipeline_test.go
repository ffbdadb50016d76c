package audio

import (
	"errors"
	"sync"
	"testing"
)

type fakeUpstream struct {
	mu      sync.Mutex
	writes  [][]int16
	failing bool
}

func (f *fakeUpstream) WriteAudio(samples []int16) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("simulated failure")
	}
	cp := make([]int16, len(samples))
	copy(cp, samples)
	f.writes = append(f.writes, cp)
	return nil
}

func TestPipeline_SendOne_MirrorsOnSuccess(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)

	ok := p.SendOne([]int16{1, 2, 3})
	if !ok {
		t.Fatal("expected send to succeed")
	}
	segs := p.SpeechSegments()
	if len(segs) != 1 || len(segs[0]) != 3 {
		t.Fatalf("expected one mirrored segment of 3 samples, got %v", segs)
	}
}

func TestPipeline_SendOne_QueuesOnFailure(t *testing.T) {
	up := &fakeUpstream{failing: true}
	p := NewPipeline(up, nil)

	ok := p.SendOne([]int16{1, 2, 3})
	if ok {
		t.Fatal("expected send to fail")
	}
	if len(p.SpeechSegments()) != 0 {
		t.Fatal("failed send must not be mirrored")
	}

	up.failing = false
	p.FlushRetryQueue()
	if len(p.SpeechSegments()) != 1 {
		t.Fatal("expected retry queue drain to mirror the segment")
	}
}

func TestPipeline_AppendEmitsAtThreshold(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)

	p.StartBuffering()
	frame := make([]int16, sendBufferThreshold-1)
	p.Append(frame)

	up.mu.Lock()
	if len(up.writes) != 0 {
		t.Fatal("should not emit before threshold reached")
	}
	up.mu.Unlock()

	p.Append([]int16{1, 2})

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.writes) != 1 {
		t.Fatalf("expected exactly one emitted segment, got %d", len(up.writes))
	}
	if len(up.writes[0]) != sendBufferThreshold+1 {
		t.Errorf("expected tail segment of %d samples, got %d", sendBufferThreshold+1, len(up.writes[0]))
	}
}

func TestPipeline_StopBuffering_BatchesInThreshold(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)

	p.StartBuffering()
	// Directly seed the session below threshold so StopBuffering flushes it
	// as a single final batch.
	p.session.samples = make([]int16, 100)
	p.session.samplesSinceLastFlush = 100

	ok := p.StopBuffering()
	if !ok {
		t.Fatal("expected StopBuffering to succeed")
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.writes) != 1 || len(up.writes[0]) != 100 {
		t.Fatalf("expected one 100-sample batch, got %v", up.writes)
	}
}

func TestPipeline_StartBuffering_Idempotent(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)

	p.StartBuffering()
	p.Append([]int16{1, 2, 3})
	p.StartBuffering() // must not clear the in-progress session

	if len(p.session.samples) != 3 {
		t.Errorf("expected idempotent StartBuffering to preserve session, got %d samples", len(p.session.samples))
	}
}

func TestPipeline_Observe_EvictsOldestOnOverflow(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)

	for i := 0; i < preContextCap+2; i++ {
		p.Observe([]int16{int16(i)})
	}

	p.SendPreContext()
	up.mu.Lock()
	defer up.mu.Unlock()
	if len(up.writes) != preContextCap {
		t.Fatalf("expected %d pre-context frames forwarded, got %d", preContextCap, len(up.writes))
	}
	if up.writes[0][0] != int16(2) {
		t.Errorf("expected oldest retained frame to start at 2, got %d", up.writes[0][0])
	}
}

func TestPipeline_ClearSpeechSegments(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)
	p.SendOne([]int16{1})
	p.ClearSpeechSegments()
	if len(p.SpeechSegments()) != 0 {
		t.Error("expected mirror to be empty after clear")
	}
}

func TestPipeline_CombinedSpeechSegment(t *testing.T) {
	up := &fakeUpstream{}
	p := NewPipeline(up, nil)
	p.SendOne([]int16{1, 2})
	p.SendOne([]int16{3, 4})

	combined := p.CombinedSpeechSegment()
	want := []int16{1, 2, 3, 4}
	if len(combined) != len(want) {
		t.Fatalf("expected %v, got %v", want, combined)
	}
	for i := range want {
		if combined[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], combined[i])
		}
	}
}
