package vcr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in       string
		want     Mode
		playback bool
		record   bool
		timed    bool
	}{
		{in: "", want: ModePassthrough},
		{in: "record", want: ModeRecord, record: true},
		{in: "playback", want: ModePlayback, playback: true},
		{in: "cache", want: ModeCache, playback: true, record: true},
		{in: "playback_timed", want: ModePlaybackTimed, playback: true, timed: true},
		{in: " CACHE ", want: ModeCache, playback: true, record: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			mode, err := ParseMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, mode)
			assert.Equal(t, tt.playback, mode.PlaybackHits())
			assert.Equal(t, tt.record, mode.RecordMisses())
			assert.Equal(t, tt.timed, mode.Timed())
			assert.Equal(t, tt.in != "", mode.Intercepts())
		})
	}

	_, err := ParseMode("replay")
	assert.True(t, errors.Is(err, ErrUnknownMode))
}

func TestModeFromEnv(t *testing.T) {
	t.Setenv(ModeEnv, "playback")
	mode, err := ModeFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ModePlayback, mode)

	t.Setenv(ModeEnv, "bogus")
	_, err = ModeFromEnv()
	assert.Error(t, err)
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv(ModeEnv, "cache")
	client, err := NewClientFromEnv(nil)
	require.NoError(t, err)

	tr, ok := client.Transport.(*Transport)
	require.True(t, ok)
	assert.Equal(t, ModeCache, tr.Mode())
	assert.NotNil(t, tr.Settings())
}

func TestModeString(t *testing.T) {
	assert.Equal(t, "passthrough", ModePassthrough.String())
	assert.Equal(t, "playback_timed", ModePlaybackTimed.String())
}

func TestFixtureNotFoundError(t *testing.T) {
	err := &FixtureNotFoundError{Fixture: "/f/abc", MissingFile: "/f/abc.missing"}
	assert.Equal(t, "fixture /f/abc not found", err.Error())
	assert.True(t, errors.Is(err, ErrFixtureNotFound))

	err.Debug = true
	assert.Contains(t, err.Error(), "could not compute the best matching fixture")

	err.BestMatch = "/f/def.request"
	assert.Contains(t, err.Error(), "but the best match is /f/def.request")
}
