package backend

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/lumina-project/vad-bridge/pkg/logging"
)

// RecognizerMessage is one line of the recognizer downstream protocol.
type RecognizerMessage struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

// RecognizerReader reconnects to the recognizer downstream endpoint and
// delivers one RecognizerMessage per newline-delimited JSON line. Malformed
// lines are logged and skipped without closing the connection.
type RecognizerReader struct {
	address string
	log     logging.Logger

	mu          sync.Mutex
	lastAttempt time.Time
	running     bool
}

// NewRecognizerReader builds a reader against address.
func NewRecognizerReader(address string, log logging.Logger) *RecognizerReader {
	if log == nil {
		log = &logging.NoOpLogger{}
	}
	return &RecognizerReader{address: address, log: log}
}

// Start is idempotent; it spawns the reconnect-and-read loop once and
// delivers each parsed message to onMessage until ctx is cancelled.
func (r *RecognizerReader) Start(ctx context.Context, onMessage func(RecognizerMessage)) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	go r.loop(ctx, onMessage)
}

func (r *RecognizerReader) loop(ctx context.Context, onMessage func(RecognizerMessage)) {
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := r.connect()
		if err != nil {
			r.log.Debug("recognizer connect failed", "error", err)
			if !sleepCtx(ctx, time.Second) {
				return
			}
			continue
		}

		r.readUntilFailure(ctx, conn, onMessage)
		_ = conn.Close()

		if !sleepCtx(ctx, time.Second) {
			return
		}
	}
}

func (r *RecognizerReader) connect() (net.Conn, error) {
	r.mu.Lock()
	if !r.lastAttempt.IsZero() && time.Since(r.lastAttempt) < reconnectInterval {
		r.mu.Unlock()
		return nil, ErrReconnectThrottled
	}
	r.lastAttempt = time.Now()
	r.mu.Unlock()

	return dial(r.address, writeTimeout)
}

func (r *RecognizerReader) readUntilFailure(ctx context.Context, conn net.Conn, onMessage func(RecognizerMessage)) {
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg RecognizerMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			r.log.Warn("malformed recognizer message, skipping", "error", err)
			continue
		}
		onMessage(msg)
	}
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
