package backend

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/logging"
	"github.com/lumina-project/vad-bridge/pkg/wire"
)

const (
	// writeTimeout bounds a single non-blocking upstream write.
	writeTimeout = 50 * time.Millisecond
	// reconnectInterval rate-limits reconnect attempts per endpoint.
	reconnectInterval = 500 * time.Millisecond
)

// UpstreamConn is the audio+control leg of the Backend Channel: a
// lazy-connecting, auto-reconnecting client that writes one atomic framed
// buffer per call so the length prefix and payload never interleave with
// another segment's bytes on the wire.
type UpstreamConn struct {
	mu          sync.Mutex
	address     string
	conn        netConn
	lastAttempt time.Time
	log         logging.Logger
}

// netConn is the subset of net.Conn this package needs, kept narrow so
// backend_test.go can fake it without a real socket if ever required.
type netConn interface {
	Write(b []byte) (int, error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// NewUpstreamConn builds an UpstreamConn against address. Nothing is dialed
// until the first write.
func NewUpstreamConn(address string, log logging.Logger) *UpstreamConn {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	return &UpstreamConn{address: address, log: log}
}

// WriteAudio frames and writes one audio segment.
func (u *UpstreamConn) WriteAudio(samples []int16) error {
	return u.write(wire.EncodeAudio(samples))
}

// WriteSilence frames and writes one silence control frame.
func (u *UpstreamConn) WriteSilence(silenceMs uint64) error {
	return u.write(wire.EncodeSilence(silenceMs))
}

func (u *UpstreamConn) write(buf []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.conn == nil {
		if err := u.connectLocked(); err != nil {
			return err
		}
	}

	_ = u.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	n, err := u.conn.Write(buf)
	if err != nil {
		u.log.Warn("upstream write failed, dropping connection", "error", err)
		u.closeLocked()
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrWriteTimeout, err)
		}
		return fmt.Errorf("backend: upstream write: %w", err)
	}
	if n != len(buf) {
		u.log.Warn("upstream short write, dropping connection", "wrote", n, "want", len(buf))
		u.closeLocked()
		return ErrWriteTimeout
	}
	return nil
}

func (u *UpstreamConn) connectLocked() error {
	if !u.lastAttempt.IsZero() && time.Since(u.lastAttempt) < reconnectInterval {
		return ErrReconnectThrottled
	}
	u.lastAttempt = time.Now()

	conn, err := dial(u.address, writeTimeout)
	if err != nil {
		u.log.Debug("upstream connect failed", "address", u.address, "error", err)
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	u.conn = conn
	u.log.Info("upstream connected", "address", u.address)
	return nil
}

func (u *UpstreamConn) closeLocked() {
	if u.conn != nil {
		_ = u.conn.Close()
		u.conn = nil
	}
}

// Close drops the underlying connection, if any. Safe to call repeatedly.
func (u *UpstreamConn) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closeLocked()
	return nil
}
