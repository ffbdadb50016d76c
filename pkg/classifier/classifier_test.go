package classifier

import "testing"

func voicedFrame() []float32 {
	frame := make([]float32, frameSize20ms)
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
	return make([]float32, frameSize20ms)
}

func TestProcess_RejectsShortFrame(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, _, err = c.Process(make([]float32, 5))
	if err != ErrFrameTooShort {
		t.Errorf("expected ErrFrameTooShort, got %v", err)
	}
}

func TestDebounce_SpeechStartAfterTwoVoicedFrames(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	edge := c.debounce(true)
	if edge != Processing {
		t.Errorf("frame 1: expected Processing, got %v", edge)
	}
	if c.isSpeaking {
		t.Error("frame 1: should not be speaking yet")
	}

	edge = c.debounce(true)
	if edge != SpeechStart {
		t.Errorf("frame 2: expected SpeechStart, got %v", edge)
	}
	if !c.isSpeaking {
		t.Error("frame 2: should latch speaking true")
	}
}

func TestDebounce_SpeechEndAfterHundredUnvoicedFrames(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.isSpeaking = true

	for i := 0; i < speechEndFrames-1; i++ {
		if edge := c.debounce(false); edge != Processing {
			t.Fatalf("frame %d: expected Processing, got %v", i, edge)
		}
	}

	edge := c.debounce(false)
	if edge != SpeechEnd {
		t.Errorf("final frame: expected SpeechEnd, got %v", edge)
	}
	if c.isSpeaking {
		t.Error("should unlatch speaking after SpeechEnd")
	}
}

func TestDebounce_VoicedFrameResetsSilenceRun(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.isSpeaking = true
	c.silenceFrames = speechEndFrames - 1

	c.debounce(true)
	if c.silenceFrames != 0 {
		t.Errorf("expected silence run reset to 0, got %d", c.silenceFrames)
	}
}

func TestReset_ClearsCountersAndLatch(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.isSpeaking = true
	c.speechFrames = 1
	c.silenceFrames = 50

	c.Reset()

	if c.isSpeaking || c.speechFrames != 0 || c.silenceFrames != 0 {
		t.Error("Reset should clear isSpeaking and both counters")
	}
}

func TestToPCM_PadsShortFrame(t *testing.T) {
	frame := make([]float32, 100)
	pcm := toPCM(frame, frameSize10ms)
	if len(pcm) != frameSize10ms*2 {
		t.Errorf("expected %d bytes, got %d", frameSize10ms*2, len(pcm))
	}
}

func TestToPCM_TruncatesLongFrame(t *testing.T) {
	frame := make([]float32, 960)
	pcm := toPCM(frame, normalizedFrameSize)
	if len(pcm) != normalizedFrameSize*2 {
		t.Errorf("expected %d bytes, got %d", normalizedFrameSize*2, len(pcm))
	}
}

func TestToPCM_ClipsOutOfRangeSamples(t *testing.T) {
	frame := []float32{2.0, -2.0}
	pcm := toPCM(frame, 2)
	first := int16(uint16(pcm[0]) | uint16(pcm[1])<<8)
	second := int16(uint16(pcm[2]) | uint16(pcm[3])<<8)
	if first != 32767 {
		t.Errorf("expected clip to 32767, got %d", first)
	}
	if second != -32768 {
		t.Errorf("expected clip to -32768, got %d", second)
	}
}

func TestAcceptedFrameSize(t *testing.T) {
	for _, n := range []int{160, 320, 480} {
		if !acceptedFrameSize(n) {
			t.Errorf("expected %d to be accepted", n)
		}
	}
	if acceptedFrameSize(200) {
		t.Error("200 should not be accepted")
	}
}

func TestPcmSizeFor_HonorsAllowListedSizesUnmodified(t *testing.T) {
	for _, n := range []int{frameSize10ms, frameSize20ms, frameSize30ms} {
		if got := pcmSizeFor(n); got != n {
			t.Errorf("pcmSizeFor(%d): expected pass-through %d, got %d", n, n, got)
		}
	}
}

func TestPcmSizeFor_NormalizesOffListSizes(t *testing.T) {
	for _, n := range []int{100, 200, 960} {
		if got := pcmSizeFor(n); got != normalizedFrameSize {
			t.Errorf("pcmSizeFor(%d): expected normalizedFrameSize %d, got %d", n, normalizedFrameSize, got)
		}
	}
}

func TestProcess_AcceptsNativeFrameSizesWithoutError(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, n := range []int{frameSize10ms, frameSize20ms, frameSize30ms} {
		if _, _, err := c.Process(make([]float32, n)); err != nil {
			t.Errorf("Process with %d-sample frame: unexpected error %v", n, err)
		}
	}
}
