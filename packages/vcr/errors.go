package vcr

import (
	"errors"
	"fmt"
)

var (
	// ErrFixtureNotFound matches every *FixtureNotFoundError.
	ErrFixtureNotFound = errors.New("fixture not found")

	// ErrUnknownMode is returned by ParseMode.
	ErrUnknownMode = errors.New("unknown mode")
)

// FixtureNotFoundError is returned on a strict playback miss. The request
// descriptor was written to MissingFile.
type FixtureNotFoundError struct {
	Fixture     string
	MissingFile string
	// Debug is set when a best match was searched for.
	Debug     bool
	BestMatch string
}

func (e *FixtureNotFoundError) Error() string {
	switch {
	case !e.Debug:
		return fmt.Sprintf("fixture %s not found", e.Fixture)
	case e.BestMatch != "":
		return fmt.Sprintf("fixture %s not found, expected %s, but the best match is %s", e.Fixture, e.MissingFile, e.BestMatch)
	default:
		return fmt.Sprintf("fixture %s not found and could not compute the best matching fixture", e.Fixture)
	}
}

func (e *FixtureNotFoundError) Is(target error) bool {
	return target == ErrFixtureNotFound
}

// UpstreamError reproduces a failed live call, either as it happened or as
// recorded in an error sentinel.
type UpstreamError struct {
	Fixture string
	Message string
	Err     error
}

func (e *UpstreamError) Error() string {
	if e.Fixture == "" {
		return fmt.Sprintf("upstream error: %s", e.Message)
	}
	return fmt.Sprintf("upstream error (fixture %s): %s", e.Fixture, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// TimeoutError reproduces a timed out live call. It satisfies net.Error so
// callers checking Timeout() see the same signal as a real timeout.
type TimeoutError struct {
	Fixture string
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout (fixture %s)", e.Fixture)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

func (e *TimeoutError) Timeout() bool {
	return true
}

func (e *TimeoutError) Temporary() bool {
	return true
}
