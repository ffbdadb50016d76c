package backend

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/logging"
)

// SynthReader reconnects to the synthesised-audio downstream endpoint and
// delivers each length-prefixed PCM chunk to onChunk. Short reads or I/O
// errors close the connection and trigger a reconnect.
type SynthReader struct {
	address string
	log     logging.Logger

	mu          sync.Mutex
	lastAttempt time.Time
	running     bool
}

// NewSynthReader builds a reader against address.
func NewSynthReader(address string, log logging.Logger) *SynthReader {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	return &SynthReader{address: address, log: log}
}

// Start is idempotent; it spawns the reconnect-and-read loop once and
// delivers each PCM chunk to onChunk until ctx is cancelled.
func (s *SynthReader) Start(ctx context.Context, onChunk func([]byte)) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx, onChunk)
}

func (s *SynthReader) loop(ctx context.Context, onChunk func([]byte)) {
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.connect()
		if err != nil {
			s.log.Debug("synth connect failed", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		s.readUntilFailure(ctx, conn, onChunk)
		_ = conn.Close()

		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (s *SynthReader) connect() (net.Conn, error) {
	s.mu.Lock()
	if !s.lastAttempt.IsZero() && time.Since(s.lastAttempt) < reconnectInterval {
		s.mu.Unlock()
		return nil, ErrReconnectThrottled
	}
	s.lastAttempt = time.Now()
	s.mu.Unlock()

	return dial(s.address, writeTimeout)
}

func (s *SynthReader) readUntilFailure(ctx context.Context, conn net.Conn, onChunk func([]byte)) {
	var lengthBuf [4]byte
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if _, err := io.ReadFull(conn, lengthBuf[:]); err != nil {
			if err != io.EOF {
				s.log.Warn("synth length read failed", "error", err)
			}
			return
		}

		length := binary.LittleEndian.Uint32(lengthBuf[:])
		chunk := make([]byte, length)
		if _, err := io.ReadFull(conn, chunk); err != nil {
			s.log.Warn("synth chunk short read", "error", err)
			return
		}

		onChunk(chunk)
	}
}
