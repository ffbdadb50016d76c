//go:build !windows

package backend

import (
	"net"
	"time"
)

// dialNetwork and the default address of each endpoint on Unix-like systems: named
// filesystem sockets, matching the original prototype's platform split.
const (
	dialNetwork = "unix"

	DefaultUpstreamAddress   = "/tmp/lumina_stt.sock"
	DefaultRecognizerAddress = "/tmp/lumina_stt_result.sock"
	DefaultSynthAddress      = "/tmp/lumina_tts.sock"
)

func dial(address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(dialNetwork, address, timeout)
}
