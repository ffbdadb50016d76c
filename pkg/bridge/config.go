package bridge

import (
	"time"

	"github.com/lumina-project/vad-bridge/pkg/backend"
)

// Config holds the overridable compile-time constants of spec.md §6. The
// zero Config is invalid; use DefaultConfig.
type Config struct {
	UpstreamAddress   string
	RecognizerAddress string
	SynthAddress      string

	// RetryDriverInterval is the 1Hz cadence the Bridge drains the Audio
	// Pipeline's RetryQueue on.
	RetryDriverInterval time.Duration
	// TransitionPollInterval is how often the Bridge checks whether a
	// TransitionBuffer quarantine has exceeded its timeout. Spec.md itself
	// only fixes the 500ms timeout value, not the polling grain used to
	// detect it — this resolves that as an implementation-level Open
	// Question (see DESIGN.md).
	TransitionPollInterval time.Duration
}

// DefaultConfig returns the addresses and drivers cadences from spec.md §6
// and the platform's default socket/port scheme.
func DefaultConfig() Config {
	return Config{
		UpstreamAddress:        backend.DefaultUpstreamAddress,
		RecognizerAddress:      backend.DefaultRecognizerAddress,
		SynthAddress:           backend.DefaultSynthAddress,
		RetryDriverInterval:    time.Second,
		TransitionPollInterval: 50 * time.Millisecond,
	}
}
