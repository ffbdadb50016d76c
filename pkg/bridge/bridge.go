// Package bridge implements the Command Surface: the process-lifecycle
// singleton that wires the Frame Classifier, Audio Pipeline, Dialog State
// Machine, and Backend Channel together behind the lock order documented in
// spec.md §9 (State Machine → Pipeline → Backend Channel).
package bridge

import (
	"context"
	"encoding/base64"
	"math"
	"sync"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/audio"
	"github.com/lumina-project/vad-bridge/pkg/backend"
	"github.com/lumina-project/vad-bridge/pkg/classifier"
	"github.com/lumina-project/vad-bridge/pkg/dialog"
	"github.com/lumina-project/vad-bridge/pkg/logging"
)

// testSegmentFreqHz and testSegmentDuration parameterize
// CreateTestSpeechSegment's synthesized diagnostic tone.
const (
	testSegmentFreqHz   = 440.0
	testSegmentDuration = time.Second
)

// Bridge is the Command Surface singleton. Construct with New; Close stops
// its background drivers and listeners.
type Bridge struct {
	cfg Config
	log logging.Logger

	classifier *classifier.Classifier
	pipeline   *audio.Pipeline
	machine    *dialog.Machine

	upstream   *backend.UpstreamConn
	recognizer *backend.RecognizerReader
	synth      *backend.SynthReader

	sink Sink

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New builds a Bridge from cfg, wiring every singleton and starting the
// retry and transition-timeout background drivers. sink may be nil (defaults
// to NoOpSink); log may be nil (defaults to a no-op logger).
func New(cfg Config, sink Sink, log logging.Logger) (*Bridge, error) {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	vadClassifier, err := classifier.New()
	if err != nil {
		return nil, err
	}

	upstream := backend.NewUpstreamConn(cfg.UpstreamAddress, log)
	pipeline := audio.NewPipeline(upstream, log)

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:        cfg,
		log:        log,
		classifier: vadClassifier,
		pipeline:   pipeline,
		upstream:   upstream,
		recognizer: backend.NewRecognizerReader(cfg.RecognizerAddress, log),
		synth:      backend.NewSynthReader(cfg.SynthAddress, log),
		sink:       sink,
		ctx:        ctx,
		cancel:     cancel,
	}
	b.machine = dialog.New(pipeline, sink, b.writeHeartbeatControlFrame)

	go b.runRetryDriver()
	go b.runTransitionTimeoutDriver()

	return b, nil
}

func (b *Bridge) writeHeartbeatControlFrame(elapsedMs uint64) {
	if err := b.upstream.WriteSilence(elapsedMs); err != nil {
		b.log.Debug("heartbeat control frame write failed", "error", err)
	}
}

func (b *Bridge) runRetryDriver() {
	ticker := time.NewTicker(b.cfg.RetryDriverInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.pipeline.FlushRetryQueue()
		}
	}
}

func (b *Bridge) runTransitionTimeoutDriver() {
	ticker := time.NewTicker(b.cfg.TransitionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			if b.machine.DueForTimeout() {
				b.machine.TransitionTimeout()
			}
		}
	}
}

// ProcessAudioFrame pushes one frame through the Classifier and State
// Machine, updates PreContext, conditionally writes the frame upstream, and
// emits a vad-event. Returns the classified edge.
func (b *Bridge) ProcessAudioFrame(frame []float32) (classifier.Edge, error) {
	edge, voiced, err := b.classifier.Process(frame)
	if err != nil {
		return edge, err
	}

	samples := toInt16Samples(frame)
	b.pipeline.Observe(samples)

	switch edge {
	case classifier.SpeechStart:
		b.pipeline.StartBuffering()
	case classifier.SpeechEnd:
		b.pipeline.StopBuffering()
	}

	var forward bool
	if voiced {
		forward = b.machine.VoiceFrame()
	} else {
		forward = b.machine.SilenceFrame()
	}
	if forward {
		b.pipeline.Append(samples)
	}

	b.sink.VadEvent(string(edge))
	return edge, nil
}

// StartSTTResultListener is idempotent; it spawns the recognizer reader. On
// receiving any non-empty text it injects BackendReturnText into the state
// machine, then forwards the message to the UI.
func (b *Bridge) StartSTTResultListener() {
	b.recognizer.Start(b.ctx, func(msg backend.RecognizerMessage) {
		if msg.Text != "" {
			b.machine.BackendReturnText()
		}
		b.sink.SttResult(msg.Text, msg.IsFinal)
	})
}

// StartTTSAudioListener is idempotent; it spawns the synthesised-audio
// reader and emits each chunk as a base64-encoded UI event.
func (b *Bridge) StartTTSAudioListener() {
	b.synth.Start(b.ctx, func(chunk []byte) {
		b.sink.BackendAudioData(base64.StdEncoding.EncodeToString(chunk), "pcm")
	})
}

// ResetVADState drives the machine to Initial and resets Classifier
// counters.
func (b *Bridge) ResetVADState() {
	b.classifier.Reset()
	b.machine.BackendResetToInitial()
}

// StopVADProcessing drives the machine to Initial and resets Classifier
// counters.
func (b *Bridge) StopVADProcessing() {
	b.classifier.Reset()
	b.machine.BackendResetToInitial()
}

// ResetVADSession flushes any in-flight buffering session as a final
// batched write, then drives the machine to Initial and resets Classifier
// counters.
func (b *Bridge) ResetVADSession() {
	b.pipeline.StopBuffering()
	b.classifier.Reset()
	b.machine.BackendResetToInitial()
}

// AudioPlaybackStarted injects AudioPlaybackStart.
func (b *Bridge) AudioPlaybackStarted() {
	b.machine.AudioPlaybackStart()
}

// AudioPlaybackEnded injects AudioPlaybackEnd.
func (b *Bridge) AudioPlaybackEnded() {
	b.machine.AudioPlaybackEnd()
}

// HandleBackendControl dispatches a string action to the corresponding
// machine event. Unknown actions return ErrUnknownBackendAction.
func (b *Bridge) HandleBackendControl(action string, _ []byte) error {
	switch action {
	case "reset_to_initial":
		b.machine.BackendResetToInitial()
		return nil
	case "end_session":
		b.machine.BackendEndSession()
		return nil
	default:
		return ErrUnknownBackendAction
	}
}

// GetVADState returns the UI-visible state name (never TransitionBuffer).
func (b *Bridge) GetVADState() string {
	return string(b.machine.State())
}

// GetSpeechSegments returns a copy of every SentMirror entry.
func (b *Bridge) GetSpeechSegments() [][]int16 {
	return b.pipeline.SpeechSegments()
}

// GetCombinedSpeechSegment concatenates every SentMirror entry in order.
func (b *Bridge) GetCombinedSpeechSegment() []int16 {
	return b.pipeline.CombinedSpeechSegment()
}

// ClearSpeechSegments empties the SentMirror.
func (b *Bridge) ClearSpeechSegments() {
	b.pipeline.ClearSpeechSegments()
}

// CreateTestSpeechSegment synthesizes a 1s 440Hz sine wave into the
// SentMirror for diagnostics.
func (b *Bridge) CreateTestSpeechSegment() {
	n := int(testSegmentDuration.Seconds() * float64(classifier.SampleRate))
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / float64(classifier.SampleRate)
		samples[i] = int16(math.Sin(2*math.Pi*testSegmentFreqHz*t) * 32767)
	}
	b.pipeline.MirrorSegment(samples)
}

// Close stops the background drivers and the upstream connection. Safe to
// call more than once.
func (b *Bridge) Close() error {
	b.once.Do(func() {
		b.cancel()
		_ = b.upstream.Close()
	})
	return nil
}

// toInt16Samples clips float32 samples in [-1,1] to 16-bit PCM, the same
// formula the Classifier uses internally, so the raw frame forwarded
// upstream matches what was classified.
func toInt16Samples(frame []float32) []int16 {
	samples := make([]int16, len(frame))
	for i, f := range frame {
		v := f * 32767
		if v > 32767 {
			v = 32767
		}
		if v < -32768 {
			v = -32768
		}
		samples[i] = int16(v)
	}
	return samples
}
