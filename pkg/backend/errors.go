package backend

import "errors"

var (
	// ErrNotConnected is returned by a write attempt when lazy-connect
	// itself failed; the caller should treat the segment as unsent.
	ErrNotConnected = errors.New("backend: not connected")
	// ErrWriteTimeout is returned when a write did not complete within the
	// 50ms non-blocking deadline.
	ErrWriteTimeout = errors.New("backend: write timeout")
	// ErrReconnectThrottled is returned when a connect attempt is made
	// before the 500ms per-endpoint rate limit has elapsed.
	ErrReconnectThrottled = errors.New("backend: reconnect throttled")
	// ErrShortRead names the case where a synthesized chunk's declared
	// length could not be fully read before the connection closed.
	// SynthReader does not return it: it logs the failed read, closes the
	// connection and reconnects.
	ErrShortRead = errors.New("backend: short read")
)
