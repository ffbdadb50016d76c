// Package classifier wraps a third-party voice activity detector and turns
// its raw per-frame verdicts into debounced, high-level speech edges.
package classifier

import (
	"errors"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// SampleRate is the only input rate this classifier accepts; frames at any
// other rate must be resampled by the caller before Process is invoked.
const SampleRate = 16000

// Accepted frame sizes in samples for 16 kHz audio, per the libwebrtcvad
// engine's own constraints (10ms/20ms/30ms windows).
const (
	frameSize10ms = 160
	frameSize20ms = 320
	frameSize30ms = 480

	// normalizedFrameSize is what a frame is padded/truncated to before
	// classification when its length is not one of the native sizes above;
	// frames already at a native size are classified as they are.
	normalizedFrameSize = frameSize20ms

	minSamples = 10

	// speechStartFrames is the number of consecutive voiced frames required
	// to latch a SpeechStart edge.
	speechStartFrames = 2
	// speechEndFrames is the number of consecutive unvoiced frames required
	// to latch a SpeechEnd edge (~2s at 20ms/frame).
	speechEndFrames = 100

	// veryAggressiveMode is libwebrtcvad's most speech-selective
	// aggressiveness tier (mode 3 of 0-3).
	veryAggressiveMode = 3
)

// Edge is a debounced, high-level event derived from a run of per-frame
// voiced/unvoiced verdicts.
type Edge string

const (
	SpeechStart Edge = "SpeechStart"
	SpeechEnd   Edge = "SpeechEnd"
	Processing  Edge = "Processing"
)

// ErrFrameTooShort is returned when a frame has fewer than minSamples samples.
var ErrFrameTooShort = errors.New("classifier: frame too short")

// Classifier normalizes frames and applies hysteresis to a third-party VAD's
// raw per-frame verdicts. Not safe for concurrent use without an external
// lock; callers (pkg/bridge) serialize access.
type Classifier struct {
	vad *webrtcvad.VAD

	isSpeaking    bool
	speechFrames  int
	silenceFrames int
}

// New creates a Classifier with the underlying VAD set to VeryAggressive
// sensitivity.
func New() (*Classifier, error) {
	vad, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("classifier: create vad: %w", err)
	}
	if err := vad.SetMode(veryAggressiveMode); err != nil {
		return nil, fmt.Errorf("classifier: set mode: %w", err)
	}
	return &Classifier{vad: vad}, nil
}

// Process classifies one frame of float32 PCM samples in [-1, 1] and returns
// the debounced edge plus the raw voiced/unvoiced verdict for this frame.
func (c *Classifier) Process(frame []float32) (Edge, bool, error) {
	if len(frame) < minSamples {
		return Processing, false, ErrFrameTooShort
	}

	pcm := toPCM(frame, pcmSizeFor(len(frame)))

	voiced, err := c.vad.Process(SampleRate, pcm)
	if err != nil {
		return Processing, false, fmt.Errorf("classifier: vad process: %w", err)
	}

	return c.debounce(voiced), voiced, nil
}

// debounce updates the consecutive-frame counters and returns the resulting
// edge, latching is_speaking exactly as spec'd: SpeechStart fires once
// speechFrames reaches speechStartFrames while not already speaking;
// SpeechEnd fires once silenceFrames reaches speechEndFrames while speaking.
func (c *Classifier) debounce(voiced bool) Edge {
	if voiced {
		c.speechFrames++
		c.silenceFrames = 0

		if !c.isSpeaking && c.speechFrames >= speechStartFrames {
			c.isSpeaking = true
			return SpeechStart
		}
		return Processing
	}

	c.silenceFrames++
	c.speechFrames = 0

	if c.isSpeaking && c.silenceFrames >= speechEndFrames {
		c.isSpeaking = false
		return SpeechEnd
	}
	return Processing
}

// Reset zeroes the hysteresis counters and the speaking latch, and resets
// the underlying VAD's internal state.
func (c *Classifier) Reset() {
	c.isSpeaking = false
	c.speechFrames = 0
	c.silenceFrames = 0
	_ = c.vad.Reset()
}

// IsSpeaking reports the latched speaking state.
func (c *Classifier) IsSpeaking() bool {
	return c.isSpeaking
}

// toPCM converts float32 samples in [-1,1] to size 16-bit PCM samples,
// clipping before the int16 cast. frame is padded with zeros if shorter than
// size, or truncated if longer.
func toPCM(frame []float32, size int) []byte {
	samples := make([]int16, size)
	n := len(frame)
	if n > size {
		n = size
	}
	for i := 0; i < n; i++ {
		samples[i] = clip16(frame[i])
	}
	// Remaining samples (if frame was shorter than size) stay zero — this is
	// the padding case.

	pcm := make([]byte, size*2)
	for i, s := range samples {
		pcm[2*i] = byte(uint16(s))
		pcm[2*i+1] = byte(uint16(s) >> 8)
	}
	return pcm
}

func clip16(f float32) int16 {
	v := f * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// acceptedFrameSize reports whether n is one of libwebrtcvad's native input
// sizes; Process passes frames of these sizes through untouched and only
// pads/truncates everything else to normalizedFrameSize.
func acceptedFrameSize(n int) bool {
	switch n {
	case frameSize10ms, frameSize20ms, frameSize30ms:
		return true
	default:
		return false
	}
}

// pcmSizeFor picks the PCM sample count Process hands to the underlying VAD
// for a frame of length n: n itself if n is already one of libwebrtcvad's
// native sizes, otherwise normalizedFrameSize.
func pcmSizeFor(n int) int {
	if acceptedFrameSize(n) {
		return n
	}
	return normalizedFrameSize
}
