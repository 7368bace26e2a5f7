package vcr

import (
	"fmt"
	"os"
	"strings"
)

// ModeEnv is the environment variable that selects the mode.
const ModeEnv = "VCR_MODE"

// Mode selects how the Transport treats requests.
type Mode string

const (
	// ModePassthrough forwards every request without touching fixtures.
	ModePassthrough Mode = ""
	// ModeRecord records every request, never plays back.
	ModeRecord Mode = "record"
	// ModePlayback plays back only and fails on a miss.
	ModePlayback Mode = "playback"
	// ModeCache plays back hits and records misses.
	ModeCache Mode = "cache"
	// ModePlaybackTimed plays back with the recorded latency.
	ModePlaybackTimed Mode = "playback_timed"
)

// ParseMode parses a mode name. The empty string is pass-through.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePassthrough, ModeRecord, ModePlayback, ModeCache, ModePlaybackTimed:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// ModeFromEnv reads the mode from VCR_MODE.
func ModeFromEnv() (Mode, error) {
	return ParseMode(os.Getenv(ModeEnv))
}

// Intercepts reports whether fixtures are involved at all.
func (m Mode) Intercepts() bool {
	return m != ModePassthrough
}

// PlaybackHits reports whether existing fixtures are served.
func (m Mode) PlaybackHits() bool {
	return m == ModePlayback || m == ModeCache || m == ModePlaybackTimed
}

// RecordMisses reports whether missing fixtures are recorded.
func (m Mode) RecordMisses() bool {
	return m == ModeRecord || m == ModeCache
}

// Timed reports whether playback emulates the recorded latency.
func (m Mode) Timed() bool {
	return m == ModePlaybackTimed
}

func (m Mode) String() string {
	if m == ModePassthrough {
		return "passthrough"
	}
	return string(m)
}
