//go:build windows

package backend

import (
	"net"
	"time"
)

// On Windows there is no AF_UNIX-equivalent widely available, so each
// endpoint gets its own loopback TCP port instead of a named socket path.
const (
	dialNetwork = "tcp"

	DefaultUpstreamAddress   = "127.0.0.1:8765"
	DefaultRecognizerAddress = "127.0.0.1:8766"
	DefaultSynthAddress      = "127.0.0.1:8767"
)

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(dialNetwork, address, timeout)
}
