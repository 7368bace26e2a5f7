package report

import (
	"bytes"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixtures(t *testing.T, root string) {
	t.Helper()
	store := fixture.NewStore()
	dir := filepath.Join(root, "en-US")
	require.NoError(t, os.MkdirAll(dir, 0755))

	ok := func(name string, status int, ms int64, rawURL string) {
		require.NoError(t, store.WriteFixture(filepath.Join(dir, name), fixture.Metadata{
			StatusCode: status,
			Headers:    http.Header{"Content-Type": {"text/plain"}},
			URL:        rawURL,
			Time:       ms,
		}, []byte("body")))
	}
	ok("a", 200, 10, "http://api.example.com/a")
	ok("b", 200, 20, "http://api.example.com/b")
	ok("c", 404, 30, "http://api.example.com/c")
	ok("d", 500, 40, "http://other.example.com/d")
	require.NoError(t, store.WriteHeaders(filepath.Join(dir, "e"), fixture.TimeoutSentinel()))
	require.NoError(t, store.WriteHeaders(filepath.Join(dir, "f"), fixture.Metadata{Error: "connection refused", URL: "http://down.example.com/"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "g"+fixture.HeadersExt), []byte("{not json"), 0644))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFixtures(t, root)

	s, err := Collect(root)
	require.NoError(t, err)

	assert.Equal(t, int64(7), s.Fixtures)
	assert.Equal(t, int64(4), s.Responses)
	assert.Equal(t, int64(1), s.Timeouts)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(1), s.Malformed)
	assert.Equal(t, []int{200, 404, 500}, s.StatusCodes())
	assert.Equal(t, int64(2), s.ByStatus[200])
	assert.Equal(t, []string{"api.example.com", "down.example.com", "other.example.com"}, s.Hosts())
}

func TestStats_Latency(t *testing.T) {
	s := NewStats()
	assert.Equal(t, Latency{}, s.Latency())

	for i := int64(1); i <= 100; i++ {
		s.Add(fixture.Metadata{StatusCode: 200, Time: i})
	}
	s.Add(fixture.TimeoutSentinel())

	l := s.Latency()
	assert.InDelta(t, float64(time.Millisecond), float64(l.Min), float64(10*time.Microsecond))
	assert.InDelta(t, float64(100*time.Millisecond), float64(l.Max), float64(time.Millisecond))
	assert.InDelta(t, float64(50*time.Millisecond), float64(l.P50), float64(time.Millisecond))
	assert.InDelta(t, float64(95*time.Millisecond), float64(l.P95), float64(time.Millisecond))
	assert.Equal(t, int64(100), s.Responses, "sentinel latency is not a response")
}

func TestStats_LatencyClamped(t *testing.T) {
	s := NewStats()
	s.Add(fixture.Metadata{StatusCode: 200, Time: 120_000})
	s.Add(fixture.Metadata{StatusCode: 200, Time: 0})

	l := s.Latency()
	assert.LessOrEqual(t, l.Max, 61*time.Second)
	assert.Greater(t, l.Max, 59*time.Second)
	assert.Equal(t, time.Microsecond, l.Min)
}

func TestCollect_MissingRoot(t *testing.T) {
	_, err := Collect(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestReporter_Print(t *testing.T) {
	root := t.TempDir()
	writeFixtures(t, root)
	s, err := Collect(root)
	require.NoError(t, err)

	var buf bytes.Buffer
	NewReporter(WithWriter(&buf), WithNoColor(true)).Print(root, s)
	out := buf.String()

	assert.Contains(t, out, "FIXTURES "+root)
	assert.Contains(t, out, "Responses:  4")
	assert.Contains(t, out, "Timeouts:   1")
	assert.Contains(t, out, "Errors:     1")
	assert.Contains(t, out, "Malformed:  1")
	assert.Contains(t, out, "  404 Not Found")
	assert.Contains(t, out, "api.example.com")
	assert.Contains(t, out, "RECORDED LATENCY (ms)")
	assert.NotContains(t, out, "\x1b[")
}

func TestReporter_PrintEmpty(t *testing.T) {
	var buf bytes.Buffer
	NewReporter(WithWriter(&buf), WithNoColor(true)).Print("fx", NewStats())
	out := buf.String()

	assert.Contains(t, out, "Total:      0")
	assert.NotContains(t, out, "STATUS CODES")
	assert.NotContains(t, out, "RECORDED LATENCY")
}

func TestFormatLatencyMs(t *testing.T) {
	assert.Equal(t, "0.50", formatLatencyMs(500*time.Microsecond))
	assert.Equal(t, "2.5", formatLatencyMs(2500*time.Microsecond))
	assert.Equal(t, "42", formatLatencyMs(42*time.Millisecond))
}
