// Package fixture stores recorded HTTP exchanges on disk.
//
// A fixture is addressed by its base path, root/lang/namespace/digest. The
// response body lives at the base path itself, the metadata at base+".headers".
// Descriptors of the originating request are kept in ".request" (debug
// recordings) and ".missing" (strict playback misses) siblings.
package fixture

import (
	"net/http"
	"time"
)

// File extensions of the sibling files of a fixture.
const (
	HeadersExt = ".headers"
	RequestExt = ".request"
	MissingExt = ".missing"
)

// SentinelTime is the nominal duration, in milliseconds, stored in the
// placeholder written before a recording goes live.
const SentinelTime = 30000

// RequestEcho is the part of the originating request kept in the metadata.
type RequestEcho struct {
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
}

// Metadata is the content of a ".headers" file. A metadata record is either a
// response (StatusCode and Headers set) or a sentinel (Timeout or Error set).
type Metadata struct {
	StatusCode int          `json:"statusCode,omitempty"`
	Headers    http.Header  `json:"headers,omitempty"`
	URL        string       `json:"url,omitempty"`
	Time       int64        `json:"time"`
	Request    *RequestEcho `json:"request,omitempty"`
	Timeout    bool         `json:"timeout,omitempty"`
	Error      string       `json:"error,omitempty"`
	// RecordingID marks a placeholder with the recording that wrote it.
	RecordingID string `json:"recordingId,omitempty"`
}

// TimeoutSentinel is the placeholder written before a live call so that an
// interrupted recording plays back as a timeout.
func TimeoutSentinel() Metadata {
	return Metadata{Timeout: true, Time: SentinelTime}
}

// IsSentinel reports whether the record describes a failure instead of a
// response.
func (m Metadata) IsSentinel() bool {
	return m.Timeout || m.Error != ""
}

// Duration returns the recorded latency.
func (m Metadata) Duration() time.Duration {
	return time.Duration(m.Time) * time.Millisecond
}

// Descriptor is the content of ".request" and ".missing" files.
type Descriptor struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body"`
}
