package journal

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_Summary(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	events := []vcr.Event{
		{RequestID: "1", Kind: vcr.KindRecord, Mode: vcr.ModeCache, Method: "GET", URL: "http://a", Fixture: "/f/a", StatusCode: 200, Time: now.Add(-time.Minute)},
		{RequestID: "2", Kind: vcr.KindHit, Mode: vcr.ModeCache, Method: "GET", URL: "http://a", Fixture: "/f/a", StatusCode: 200, Time: now},
		{RequestID: "3", Kind: vcr.KindHit, Mode: vcr.ModeCache, Method: "GET", URL: "http://a", Fixture: "/f/a", StatusCode: 200, Time: now.Add(-time.Second)},
		{RequestID: "4", Kind: vcr.KindMiss, Mode: vcr.ModePlayback, Method: "POST", URL: "http://b", Fixture: "/f/b", Err: errors.New("fixture not found"), Time: now},
		{RequestID: "5", Kind: vcr.KindLive, Mode: vcr.ModeCache, Method: "GET", URL: "http://c", StatusCode: 200, Time: now},
	}
	for _, e := range events {
		require.NoError(t, j.Record(ctx, e))
	}

	usage, err := j.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)

	assert.Equal(t, "/f/a", usage[0].Fixture)
	assert.Equal(t, int64(2), usage[0].Hits)
	assert.Equal(t, int64(1), usage[0].Records)
	assert.Equal(t, int64(0), usage[0].Misses)
	assert.True(t, usage[0].LastUsed.Equal(now), "last used is the newest event")
	assert.Equal(t, "/f/b", usage[1].Fixture)
	assert.Equal(t, int64(1), usage[1].Misses)
	assert.Equal(t, int64(1), usage[1].Errors)

	counts, err := j.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[vcr.Kind]int64{
		vcr.KindRecord: 1,
		vcr.KindHit:    2,
		vcr.KindMiss:   1,
		vcr.KindLive:   1,
	}, counts)
}

func TestJournal_ObservesTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	j := openTestJournal(t)
	settings := config.NewSettings()
	settings.SetFixtureDir(t.TempDir())
	client := vcr.NewClient(vcr.ModeCache, settings, vcr.WithObserver(j))

	for i := 0; i < 3; i++ {
		res, err := client.Get(server.URL)
		require.NoError(t, err)
		res.Body.Close()
	}

	usage, err := j.Summary(context.Background())
	require.NoError(t, err)
	require.Len(t, usage, 1)
	assert.Equal(t, int64(1), usage[0].Records)
	assert.Equal(t, int64(2), usage[0].Hits)
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "dir", "journal.db"))
	assert.Error(t, err)
}
