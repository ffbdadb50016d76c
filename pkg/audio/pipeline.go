// Package audio owns the rolling buffers and batched-upload policy that sit
// between the Frame Classifier's per-frame verdicts and the Backend
// Channel's upstream socket.
package audio

import (
	"sync"

	"github.com/lumina-project/vad-bridge/pkg/logging"
)

const (
	// preContextCap is the number of most-recent frames retained for
	// retroactive forwarding on wake-up (≈100ms at 20ms/frame).
	preContextCap = 5
	// sendBufferThreshold is the sample count at which an in-progress
	// buffering session emits a batch (200ms at 16kHz).
	sendBufferThreshold = 3200
	// sentMirrorCap bounds the diagnostic mirror of confirmed upstream
	// writes.
	sentMirrorCap = 50
)

// Upstream is the subset of the Backend Channel the Pipeline writes
// through. Implemented by *backend.UpstreamConn.
type Upstream interface {
	WriteAudio(samples []int16) error
}

// preContext is a fixed-capacity FIFO of the most recent frames, evicting
// the oldest on overflow.
type preContext struct {
	frames [][]int16
}

func (p *preContext) push(frame []int16) {
	cp := make([]int16, len(frame))
	copy(cp, frame)
	p.frames = append(p.frames, cp)
	if len(p.frames) > preContextCap {
		p.frames = p.frames[len(p.frames)-preContextCap:]
	}
}

func (p *preContext) snapshot() [][]int16 {
	out := make([][]int16, len(p.frames))
	copy(out, p.frames)
	return out
}

// bufferingSession is an append-only accumulator of samples since the last
// SpeechStart, tracking how many samples have accrued since the last flush.
type bufferingSession struct {
	active                bool
	samples               []int16
	samplesSinceLastFlush int
}

func (b *bufferingSession) reset() {
	b.active = true
	b.samples = nil
	b.samplesSinceLastFlush = 0
}

func (b *bufferingSession) stop() {
	b.active = false
	b.samples = nil
	b.samplesSinceLastFlush = 0
}

// sentMirror is a bounded FIFO of every segment successfully written
// upstream, used for diagnostic playback.
type sentMirror struct {
	segments [][]int16
}

func (m *sentMirror) push(segment []int16) {
	cp := make([]int16, len(segment))
	copy(cp, segment)
	m.segments = append(m.segments, cp)
	if len(m.segments) > sentMirrorCap {
		m.segments = m.segments[len(m.segments)-sentMirrorCap:]
	}
}

func (m *sentMirror) combined() []int16 {
	var total int
	for _, s := range m.segments {
		total += len(s)
	}
	out := make([]int16, 0, total)
	for _, s := range m.segments {
		out = append(out, s...)
	}
	return out
}

// Pipeline is the Audio Pipeline singleton: PreContext, BufferingSession,
// RetryQueue, and SentMirror, guarded by a single exclusive lock per
// spec.md §5's shared-resource policy — owned solely by the pipeline, never
// mutated directly by the state machine.
type Pipeline struct {
	mu sync.Mutex

	upstream Upstream
	log      logging.Logger

	preCtx  preContext
	session bufferingSession
	retry   [][]int16
	mirror  sentMirror
}

// NewPipeline builds a Pipeline writing confirmed segments through upstream.
func NewPipeline(upstream Upstream, log logging.Logger) *Pipeline {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	return &Pipeline{upstream: upstream, log: log}
}

// Observe is always called, regardless of state, and updates PreContext.
func (p *Pipeline) Observe(frame []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.preCtx.push(frame)
}

// StartBuffering is idempotent: if not already buffering, clears the
// session and begins a new one.
func (p *Pipeline) StartBuffering() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.session.active {
		p.session.reset()
	}
}

// StopBuffering flushes the session in ≤3200-sample batches via the
// upstream connection and clears it. Failed batches are pushed to the
// RetryQueue. Returns whether every batch succeeded.
func (p *Pipeline) StopBuffering() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.session.active {
		return true
	}

	allOK := true
	remaining := p.session.samples
	for len(remaining) > 0 {
		n := sendBufferThreshold
		if n > len(remaining) {
			n = len(remaining)
		}
		batch := remaining[:n]
		remaining = remaining[n:]
		if !p.sendLocked(batch) {
			allOK = false
		}
	}

	p.session.stop()
	return allOK
}

// Append appends frame to the in-progress session while buffering; once
// samples_since_last_flush reaches the threshold it emits one segment
// containing exactly the newly accumulated tail and resets the counter. The
// session itself is retained so the final StopBuffering flush can complete.
func (p *Pipeline) Append(frame []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.session.active {
		return
	}

	p.session.samples = append(p.session.samples, frame...)
	p.session.samplesSinceLastFlush += len(frame)

	if p.session.samplesSinceLastFlush >= sendBufferThreshold {
		total := len(p.session.samples)
		tail := p.session.samples[total-p.session.samplesSinceLastFlush:]
		p.sendLocked(tail)
		p.session.samplesSinceLastFlush = 0
	}
}

// SendOne performs an atomic upstream write of segment; on success it is
// mirrored into SentMirror. Returns whether the write succeeded.
func (p *Pipeline) SendOne(segment []int16) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sendLocked(segment)
}

func (p *Pipeline) sendLocked(segment []int16) bool {
	if err := p.upstream.WriteAudio(segment); err != nil {
		p.log.Warn("upstream write failed, queuing for retry", "error", err, "samples", len(segment))
		cp := make([]int16, len(segment))
		copy(cp, segment)
		p.retry = append(p.retry, cp)
		return false
	}
	p.mirror.push(segment)
	return true
}

// SendPreContext writes every frame currently in PreContext upstream, in
// order, as independent segments. Used when a state transition forwards
// audio while having suppressed the frames immediately preceding it.
func (p *Pipeline) SendPreContext() {
	p.mu.Lock()
	frames := p.preCtx.snapshot()
	p.mu.Unlock()

	for _, f := range frames {
		p.SendOne(f)
	}
}

// FlushRetryQueue is a best-effort drain of previously-failed segments,
// called on a 1Hz cadence by the Bridge's retry driver.
func (p *Pipeline) FlushRetryQueue() {
	p.mu.Lock()
	pending := p.retry
	p.retry = nil
	p.mu.Unlock()

	for _, segment := range pending {
		p.SendOne(segment)
	}
}

// SpeechSegments returns a copy of every segment currently in SentMirror.
func (p *Pipeline) SpeechSegments() [][]int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]int16, len(p.mirror.segments))
	for i, s := range p.mirror.segments {
		cp := make([]int16, len(s))
		copy(cp, s)
		out[i] = cp
	}
	return out
}

// CombinedSpeechSegment concatenates every SentMirror entry in order.
func (p *Pipeline) CombinedSpeechSegment() []int16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mirror.combined()
}

// ClearSpeechSegments empties SentMirror.
func (p *Pipeline) ClearSpeechSegments() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirror.segments = nil
}

// MirrorSegment directly appends segment to SentMirror, bypassing the
// upstream write. Used by CreateTestSpeechSegment for diagnostics.
func (p *Pipeline) MirrorSegment(segment []int16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mirror.push(segment)
}
