package vcr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/filter"
	"github.com/abdul-hamid-achik/httpvcr/packages/fingerprint"
	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) Observe(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) last() Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.events[len(l.events)-1]
}

func (l *eventLog) kinds() []Kind {
	l.mu.Lock()
	defer l.mu.Unlock()
	kinds := make([]Kind, 0, len(l.events))
	for _, e := range l.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func quietLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

func newTestSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.NewSettings()
	s.SetFixtureDir(t.TempDir())
	return s
}

func newTestTransport(next http.RoundTripper, mode Mode, s *config.Settings) (*Transport, *eventLog) {
	events := &eventLog{}
	return New(next, mode, s,
		WithLogger(quietLogger()),
		WithObserver(events),
		WithBannerOutput(io.Discard),
	), events
}

// countingServer answers every request with a body naming the call number.
func countingServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("X-Call", fmt.Sprint(n))
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "call %d", n)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func get(t *testing.T, client *http.Client, rawURL string, header http.Header) (*http.Response, string, error) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body), nil
}

func stubResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": {"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func fixturePath(t *testing.T, s *config.Settings, method, rawURL string, body []byte, header http.Header) string {
	t.Helper()
	parts := fingerprint.Build(s.FingerprintOptions(), method, rawURL, body, header)
	loc, err := fixture.NewResolver(s).Resolve(rawURL, header, parts.Digest())
	require.NoError(t, err)
	return loc.Primary
}

func TestTransport_CacheRoundTrip(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)
	tr, events := newTestTransport(nil, ModeCache, s)
	client := &http.Client{Transport: tr}

	first, firstBody, err := get(t, client, server.URL+"/things", nil)
	require.NoError(t, err)
	assert.Equal(t, KindRecord, events.last().Kind)

	second, secondBody, err := get(t, client, server.URL+"/things", nil)
	require.NoError(t, err)
	assert.Equal(t, KindHit, events.last().Kind)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "call 1", firstBody)
	assert.Equal(t, firstBody, secondBody)
	assert.Equal(t, first.StatusCode, second.StatusCode)
	assert.Equal(t, first.Header.Get("X-Call"), second.Header.Get("X-Call"))
	assert.Equal(t, first.Header.Get("Content-Type"), second.Header.Get("Content-Type"))

	path := events.last().Fixture
	meta, err := fixture.NewStore().ReadHeaders(path)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, meta.StatusCode)
	assert.Equal(t, server.URL+"/things", meta.URL)
	assert.Equal(t, "GET", meta.Request.Method)
	assert.False(t, meta.IsSentinel())
}

func TestTransport_RecordAlwaysGoesLive(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)
	tr, _ := newTestTransport(nil, ModeRecord, s)
	client := &http.Client{Transport: tr}

	_, first, err := get(t, client, server.URL, nil)
	require.NoError(t, err)
	_, second, err := get(t, client, server.URL, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "call 1", first)
	assert.Equal(t, "call 2", second)

	playback, _ := newTestTransport(nil, ModePlayback, s)
	_, replayed, err := get(t, &http.Client{Transport: playback}, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "call 2", replayed, "the last recording wins")
}

func TestTransport_RequestBody(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		fmt.Fprintf(w, "got %s", body)
	}))
	defer server.Close()

	s := newTestSettings(t)
	tr, _ := newTestTransport(nil, ModeCache, s)
	client := &http.Client{Transport: tr}

	post := func(body string) string {
		res, err := client.Post(server.URL, "text/plain", strings.NewReader(body))
		require.NoError(t, err)
		defer res.Body.Close()
		out, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		return string(out)
	}

	assert.Equal(t, "got one", post("one"))
	assert.Equal(t, "got two", post("two"))
	assert.Equal(t, "got one", post("one"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransport_ForceLive(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)
	s.AddFilter(filter.Filter{URL: regexp.MustCompile(`/random`), ForceLive: true})

	for _, mode := range []Mode{ModeRecord, ModeCache, ModePlayback} {
		tr, events := newTestTransport(nil, mode, s)
		client := &http.Client{Transport: tr}

		_, first, err := get(t, client, server.URL+"/random", nil)
		require.NoError(t, err)
		_, second, err := get(t, client, server.URL+"/random", nil)
		require.NoError(t, err)

		assert.NotEqual(t, first, second, "mode %s", mode)
		assert.Equal(t, []Kind{KindLive, KindLive}, events.kinds())
	}
	assert.Equal(t, int32(6), calls.Load())

	count := 0
	require.NoError(t, fixture.Walk(s.FixtureDir(), func(fixture.Entry) error {
		count++
		return nil
	}))
	assert.Zero(t, count, "force-live requests never leave fixtures")
}

func TestTransport_GlobalVersusNamespaced(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)
	s.AddFilter(filter.Filter{URL: regexp.MustCompile(`/global`), Global: true})
	tr, events := newTestTransport(nil, ModeCache, s)
	client := &http.Client{Transport: tr}

	s.SetTestName("test1")
	_, _, err := get(t, client, server.URL+"/global", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.FixtureDir(), filepath.Base(events.last().Fixture)), events.last().Fixture)
	_, _, err = get(t, client, server.URL+"/local", nil)
	require.NoError(t, err)
	assert.Contains(t, events.last().Fixture, filepath.Join(s.FixtureDir(), "test1"))
	require.Equal(t, int32(2), calls.Load())

	s.SetTestName("test2")
	_, _, err = get(t, client, server.URL+"/global", nil)
	require.NoError(t, err)
	assert.Equal(t, KindHit, events.last().Kind)
	assert.Equal(t, int32(2), calls.Load())

	_, _, err = get(t, client, server.URL+"/local", nil)
	require.NoError(t, err)
	assert.Equal(t, KindRecord, events.last().Kind)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransport_TestNameHeader(t *testing.T) {
	var leaked atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for name := range r.Header {
			if fingerprint.IsInternal(name) {
				leaked.Store(true)
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	s := newTestSettings(t)
	s.SetTestName("ambient")

	for _, mode := range []Mode{ModeCache, ModePassthrough} {
		tr, events := newTestTransport(nil, mode, s)
		res, _, err := get(t, &http.Client{Transport: tr}, server.URL, http.Header{
			"X-Httpvcr-Test-Name": {"per-request"},
		})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, res.StatusCode)

		if mode == ModeCache {
			assert.Equal(t, filepath.Join(s.FixtureDir(), "per-request"), filepath.Dir(events.last().Fixture))
			meta, err := fixture.NewStore().ReadHeaders(events.last().Fixture)
			require.NoError(t, err)
			for name := range meta.Request.Headers {
				assert.False(t, fingerprint.IsInternal(name))
			}
		}
	}
	assert.False(t, leaked.Load(), "internal headers must not reach the upstream")
}

func TestTransport_StrictPlaybackMiss(t *testing.T) {
	var calls atomic.Int32
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return stubResponse(r, http.StatusOK, "recorded"), nil
	})

	t.Run("writes missing descriptor", func(t *testing.T) {
		s := newTestSettings(t)
		tr, events := newTestTransport(next, ModePlayback, s)

		_, _, err := get(t, &http.Client{Transport: tr}, "http://mysite.com/a", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFixtureNotFound))

		var notFound *FixtureNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.False(t, notFound.Debug)
		assert.Equal(t, KindMiss, events.last().Kind)

		desc, err := fixture.ReadDescriptor(events.last().Fixture + fixture.MissingExt)
		require.NoError(t, err)
		assert.Equal(t, "http://mysite.com/a", desc.URL)
		assert.Equal(t, "GET", desc.Method)
		assert.False(t, fixture.NewStore().Exists(events.last().Fixture))
	})

	t.Run("debug names the best match", func(t *testing.T) {
		s := newTestSettings(t)
		s.Configure(config.Options{Debug: config.BoolPtr(true)})

		recorder, recEvents := newTestTransport(next, ModeCache, s)
		req, err := http.NewRequest(http.MethodPost, "http://mysite.com", strings.NewReader("missing file 0123"))
		require.NoError(t, err)
		res, err := recorder.RoundTrip(req)
		require.NoError(t, err)
		res.Body.Close()
		recorded := recEvents.last().Fixture

		player, _ := newTestTransport(next, ModePlayback, s)
		req, err = http.NewRequest(http.MethodPost, "http://mysite.com", strings.NewReader("missing file"))
		require.NoError(t, err)
		_, err = player.RoundTrip(req)

		var notFound *FixtureNotFoundError
		require.True(t, errors.As(err, &notFound))
		assert.Equal(t, recorded+fixture.RequestExt, notFound.BestMatch)
		assert.Contains(t, err.Error(), "but the best match is "+recorded+fixture.RequestExt)
	})

	t.Run("debug without candidates", func(t *testing.T) {
		s := newTestSettings(t)
		s.Configure(config.Options{Debug: config.BoolPtr(true)})
		tr, _ := newTestTransport(next, ModePlayback, s)

		_, _, err := get(t, &http.Client{Transport: tr}, "http://elsewhere.com", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "could not compute the best matching fixture")
	})

	assert.Equal(t, int32(1), calls.Load(), "only the debug recording went live")
}

func TestTransport_PlaceholderDuringRecording(t *testing.T) {
	s := newTestSettings(t)
	var sawSentinel atomic.Bool
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		_ = fixture.Walk(s.FixtureDir(), func(e fixture.Entry) error {
			meta, err := fixture.NewStore().ReadHeaders(e.Path)
			if err == nil && meta.Timeout && meta.Time == fixture.SentinelTime {
				sawSentinel.Store(true)
			}
			return nil
		})
		return stubResponse(r, http.StatusOK, "done"), nil
	})

	tr, _ := newTestTransport(next, ModeCache, s)
	_, body, err := get(t, &http.Client{Transport: tr}, "http://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "done", body)
	assert.True(t, sawSentinel.Load(), "a timeout placeholder exists while the call is live")
}

func TestTransport_InterruptedRecordingPlaysBackAsTimeout(t *testing.T) {
	s := newTestSettings(t)
	path := fixturePath(t, s, http.MethodGet, "http://example.com/slow", nil, http.Header{})
	require.NoError(t, fixture.NewStore().WriteHeaders(path, fixture.TimeoutSentinel()))

	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		t.Fatal("playback must not go live")
		return nil, nil
	})
	tr, _ := newTestTransport(next, ModePlayback, s)

	_, _, err := get(t, &http.Client{Transport: tr}, "http://example.com/slow", nil)
	require.Error(t, err)

	var urlErr *url.Error
	require.True(t, errors.As(err, &urlErr))
	assert.True(t, urlErr.Timeout())

	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())

	var timeoutErr *TimeoutError
	require.True(t, errors.As(err, &timeoutErr))
	assert.Equal(t, path, timeoutErr.Fixture)
	assert.False(t, errors.Is(err, ErrFixtureNotFound))
}

func TestTransport_RecordsUpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		liveErr error
		check   func(t *testing.T, err error)
	}{
		{
			name:    "connection error",
			liveErr: errors.New("dial tcp: connection refused"),
			check: func(t *testing.T, err error) {
				var upstream *UpstreamError
				require.True(t, errors.As(err, &upstream))
				assert.Contains(t, upstream.Message, "connection refused")
			},
		},
		{
			name:    "deadline",
			liveErr: context.DeadlineExceeded,
			check: func(t *testing.T, err error) {
				var timeoutErr *TimeoutError
				require.True(t, errors.As(err, &timeoutErr))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSettings(t)
			var calls atomic.Int32
			next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
				calls.Add(1)
				return nil, tt.liveErr
			})

			recorder, events := newTestTransport(next, ModeCache, s)
			_, _, err := get(t, &http.Client{Transport: recorder}, "http://example.com", nil)
			require.Error(t, err)
			tt.check(t, err)

			meta, err := fixture.NewStore().ReadHeaders(events.last().Fixture)
			require.NoError(t, err)
			assert.True(t, meta.IsSentinel())

			player, _ := newTestTransport(next, ModePlayback, s)
			_, _, err = get(t, &http.Client{Transport: player}, "http://example.com", nil)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}

func TestTransport_ForceLiveErrorsAreNotPersisted(t *testing.T) {
	s := newTestSettings(t)
	s.AddFilter(filter.Filter{ForceLive: true})
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	tr, _ := newTestTransport(next, ModeCache, s)

	_, _, err := get(t, &http.Client{Transport: tr}, "http://example.com", nil)
	require.Error(t, err)

	entries, err := os.ReadDir(s.FixtureDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransport_CancellationRestoresFixture(t *testing.T) {
	blocking := func(started chan struct{}) http.RoundTripper {
		return roundTripFunc(func(r *http.Request) (*http.Response, error) {
			close(started)
			<-r.Context().Done()
			return nil, r.Context().Err()
		})
	}
	cancelledGet := func(t *testing.T, tr *Transport, started chan struct{}) error {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			<-started
			cancel()
		}()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)
		require.NoError(t, err)
		_, err = tr.RoundTrip(req)
		return err
	}

	t.Run("no previous fixture", func(t *testing.T) {
		s := newTestSettings(t)
		started := make(chan struct{})
		tr, events := newTestTransport(blocking(started), ModeCache, s)

		err := cancelledGet(t, tr, started)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
		assert.False(t, fixture.NewStore().Exists(events.last().Fixture))
	})

	t.Run("previous fixture survives", func(t *testing.T) {
		s := newTestSettings(t)
		good := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return stubResponse(r, http.StatusOK, "first"), nil
		})
		recorder, _ := newTestTransport(good, ModeRecord, s)
		_, _, err := get(t, &http.Client{Transport: recorder}, "http://example.com", nil)
		require.NoError(t, err)

		started := make(chan struct{})
		tr, _ := newTestTransport(blocking(started), ModeRecord, s)
		require.Error(t, cancelledGet(t, tr, started))

		player, _ := newTestTransport(good, ModePlayback, s)
		_, body, err := get(t, &http.Client{Transport: player}, "http://example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, "first", body)
	})
}

func TestTransport_CancelledRecordingKeepsConcurrentRecording(t *testing.T) {
	run := func(t *testing.T, cancelFirst bool) {
		s := newTestSettings(t)

		aStarted, releaseA := make(chan struct{}), make(chan struct{})
		first, _ := newTestTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
			close(aStarted)
			<-releaseA
			return stubResponse(r, http.StatusOK, "recorded by A"), nil
		}), ModeRecord, s)

		bStarted := make(chan struct{})
		second, _ := newTestTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
			close(bStarted)
			<-r.Context().Done()
			return nil, r.Context().Err()
		}), ModeRecord, s)

		aDone := make(chan error, 1)
		go func() {
			_, body, err := get(t, &http.Client{Transport: first}, "http://example.com", nil)
			if err == nil && body != "recorded by A" {
				err = fmt.Errorf("unexpected body %q", body)
			}
			aDone <- err
		}()
		<-aStarted

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		bDone := make(chan error, 1)
		go func() {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)
			if err != nil {
				bDone <- err
				return
			}
			_, err = second.RoundTrip(req)
			bDone <- err
		}()
		<-bStarted

		if cancelFirst {
			cancel()
			assert.True(t, errors.Is(<-bDone, context.Canceled))
			close(releaseA)
			require.NoError(t, <-aDone)
		} else {
			close(releaseA)
			require.NoError(t, <-aDone)
			cancel()
			assert.True(t, errors.Is(<-bDone, context.Canceled))
		}

		player, events := newTestTransport(nil, ModePlayback, s)
		res, body, err := get(t, &http.Client{Transport: player}, "http://example.com", nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "recorded by A", body)
		assert.Equal(t, KindHit, events.last().Kind)
	}

	t.Run("cancelled after the other recording completes", func(t *testing.T) {
		run(t, false)
	})
	t.Run("cancelled before the other recording completes", func(t *testing.T) {
		run(t, true)
	})
}

func TestTransport_ConcurrentFirstRecordings(t *testing.T) {
	s := newTestSettings(t)

	var arrived sync.WaitGroup
	arrived.Add(2)
	recorder := func(name string) *Transport {
		tr, _ := newTestTransport(roundTripFunc(func(r *http.Request) (*http.Response, error) {
			arrived.Done()
			arrived.Wait()
			res := stubResponse(r, http.StatusOK, "recorded by "+name)
			res.Header.Set("X-Recorder", name)
			return res, nil
		}), ModeRecord, s)
		return tr
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, name := range []string{"A", "B"} {
		tr := recorder(name)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := get(t, &http.Client{Transport: tr}, "http://example.com", nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	store := fixture.NewStore()
	path := fixturePath(t, s, http.MethodGet, "http://example.com", nil, nil)
	meta, err := store.ReadHeaders(path)
	require.NoError(t, err)
	assert.False(t, meta.IsSentinel())
	assert.Empty(t, meta.RecordingID)
	assert.Equal(t, http.StatusOK, meta.StatusCode)

	body, err := store.ReadBody(path)
	require.NoError(t, err)
	assert.Equal(t, "recorded by "+meta.Headers.Get("X-Recorder"), string(body), "body and metadata come from the same recording")

	report, err := fixture.Verify(s.FixtureDir())
	require.NoError(t, err)
	assert.True(t, report.OK(), "%v", report.Problems)
}

func TestTransport_FallbackToGlobal(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)

	recorder, _ := newTestTransport(nil, ModeRecord, s)
	_, _, err := get(t, &http.Client{Transport: recorder}, server.URL, nil)
	require.NoError(t, err)

	s.SetTestName("test1")
	player, events := newTestTransport(nil, ModePlayback, s)
	client := &http.Client{Transport: player}

	_, _, err = get(t, client, server.URL, nil)
	assert.True(t, errors.Is(err, ErrFixtureNotFound), "fallback is off by default")

	s.Configure(config.Options{FallbackToGlobal: config.BoolPtr(true)})
	_, body, err := get(t, client, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "call 1", body)
	assert.Equal(t, KindHit, events.last().Kind)
	assert.Equal(t, s.FixtureDir(), filepath.Dir(events.last().Fixture))
	assert.Equal(t, int32(1), calls.Load())

	cache, cacheEvents := newTestTransport(nil, ModeRecord, s)
	_, _, err = get(t, &http.Client{Transport: cache}, server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(s.FixtureDir(), "test1"), filepath.Dir(cacheEvents.last().Fixture), "recording stays namespaced")
}

func TestTransport_PlaybackTimed(t *testing.T) {
	s := newTestSettings(t)
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return stubResponse(r, http.StatusOK, "slow"), nil
	})
	recorder, events := newTestTransport(next, ModeRecord, s)
	_, _, err := get(t, &http.Client{Transport: recorder}, "http://example.com", nil)
	require.NoError(t, err)

	store := fixture.NewStore()
	path := events.last().Fixture
	meta, err := store.ReadHeaders(path)
	require.NoError(t, err)
	meta.Time = 150
	require.NoError(t, store.WriteHeaders(path, meta))

	timed, _ := newTestTransport(next, ModePlaybackTimed, s)
	start := time.Now()
	_, body, err := get(t, &http.Client{Transport: timed}, "http://example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, "slow", body)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	_, err = timed.RoundTrip(req)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestTransport_MalformedFixtureIsFatal(t *testing.T) {
	s := newTestSettings(t)
	path := fixturePath(t, s, http.MethodGet, "http://example.com", nil, http.Header{})
	require.NoError(t, os.WriteFile(path+fixture.HeadersExt, []byte("{corrupt"), 0644))

	var calls atomic.Int32
	next := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		calls.Add(1)
		return stubResponse(r, http.StatusOK, "live"), nil
	})
	tr, _ := newTestTransport(next, ModeCache, s)

	req, err := http.NewRequest(http.MethodGet, "http://example.com", nil)
	require.NoError(t, err)
	_, err = tr.RoundTrip(req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fixture.ErrMalformedFixture))
	assert.False(t, errors.Is(err, ErrFixtureNotFound))
	assert.Zero(t, calls.Load())
}

func TestTransport_Passthrough(t *testing.T) {
	server, calls := countingServer(t)
	s := newTestSettings(t)
	tr, events := newTestTransport(nil, ModePassthrough, s)
	client := &http.Client{Transport: tr}

	for i := 0; i < 2; i++ {
		_, _, err := get(t, client, server.URL, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []Kind{KindPassthrough, KindPassthrough}, events.kinds())

	entries, err := os.ReadDir(s.FixtureDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransport_VerboseBanners(t *testing.T) {
	server, _ := countingServer(t)
	s := newTestSettings(t)
	s.Configure(config.Options{Verbose: config.BoolPtr(true)})

	var out bytes.Buffer
	tr := New(nil, ModeCache, s, WithLogger(quietLogger()), WithBannerOutput(&out))
	client := &http.Client{Transport: tr}

	_, _, err := get(t, client, server.URL, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cache miss")

	out.Reset()
	_, _, err = get(t, client, server.URL, nil)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "cache hit")
	assert.Contains(t, out.String(), fixture.HeadersExt)
}

func TestTransport_ConcurrentRequests(t *testing.T) {
	server, _ := countingServer(t)
	s := newTestSettings(t)
	tr, _ := newTestTransport(nil, ModeCache, s)
	client := &http.Client{Transport: tr}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := get(t, client, fmt.Sprintf("%s/item/%d", server.URL, i), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	report, err := fixture.Verify(s.FixtureDir())
	require.NoError(t, err)
	assert.Equal(t, 20, report.Checked)
	assert.True(t, report.OK(), "%v", report.Problems)
}
