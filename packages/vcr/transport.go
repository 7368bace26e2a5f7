// Package vcr records, plays back and caches HTTP exchanges at the
// http.RoundTripper boundary.
package vcr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/fingerprint"
	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
	"github.com/abdul-hamid-achik/httpvcr/packages/match"
	"github.com/abdul-hamid-achik/httpvcr/packages/transport"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	hitColor   = color.New(color.FgGreen, color.Bold)
	missColor  = color.New(color.FgRed, color.Bold)
	matchColor = color.New(color.FgBlue, color.Bold)
)

// Transport decorates a live http.RoundTripper with the fixture cache.
type Transport struct {
	next      http.RoundTripper
	mode      Mode
	settings  *config.Settings
	resolver  *fixture.Resolver
	store     *fixture.Store
	matcher   *match.Matcher
	logger    *logrus.Entry
	out       io.Writer
	observers []Observer
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the structured logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// WithObserver registers an observer for every handled request.
func WithObserver(o Observer) Option {
	return func(t *Transport) {
		t.observers = append(t.observers, o)
	}
}

// WithBannerOutput sets where verbose hit and miss banners go.
func WithBannerOutput(w io.Writer) Option {
	return func(t *Transport) {
		t.out = w
	}
}

// New wraps next. A nil next uses the default live transport.
func New(next http.RoundTripper, mode Mode, settings *config.Settings, opts ...Option) *Transport {
	if next == nil {
		next = transport.New()
	}
	if settings == nil {
		settings = config.NewSettings()
	}
	t := &Transport{
		next:     next,
		mode:     mode,
		settings: settings,
		resolver: fixture.NewResolver(settings),
		store:    fixture.NewStore(fixture.WithTouchHits(settings.TouchHits)),
		matcher:  match.NewMatcher(settings),
		logger:   logrus.StandardLogger().WithField("component", "vcr"),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Mode returns the configured mode.
func (t *Transport) Mode() Mode {
	return t.mode
}

// Settings returns the configuration context.
func (t *Transport) Settings() *config.Settings {
	return t.settings
}

// exchange carries the per-request state through the decision procedure.
type exchange struct {
	id       string
	req      *http.Request
	outgoing *http.Request
	url      string
	body     []byte
	start    time.Time
	log      *logrus.Entry
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	x := &exchange{
		id:    uuid.NewString(),
		req:   req,
		url:   req.URL.String(),
		start: time.Now(),
	}
	x.log = t.logger.WithFields(logrus.Fields{
		"request_id": x.id,
		"method":     req.Method,
		"url":        x.url,
	})

	body, err := bufferBody(req)
	if err != nil {
		t.emit(x, KindError, "", 0, err)
		return nil, err
	}
	x.body = body
	x.outgoing = outgoingRequest(req, body)

	if !t.mode.Intercepts() {
		return t.live(x, KindPassthrough)
	}
	if t.settings.Filters().ForceLive(x.url) {
		return t.live(x, KindLive)
	}

	parts := fingerprint.Build(t.settings.FingerprintOptions(), req.Method, x.url, body, req.Header)
	loc, err := t.resolver.Resolve(x.url, req.Header, parts.Digest())
	if err != nil {
		t.emit(x, KindError, "", 0, err)
		return nil, err
	}

	if t.mode.PlaybackHits() {
		for _, path := range loc.Candidates(t.settings.FallbackToGlobal()) {
			if !t.store.Exists(path) {
				continue
			}
			t.banner(hitColor, "cache hit ", parts, path)
			if err := t.store.MarkHit(path); err != nil {
				x.log.WithError(err).Warn("failed to touch fixture")
			}
			res, err := t.deliver(x, path, true)
			t.emitResult(x, KindHit, path, res, err)
			return res, err
		}
	}
	t.banner(missColor, "cache miss", parts, loc.Primary)

	if !t.mode.RecordMisses() {
		err := t.miss(x, loc.Primary)
		t.emit(x, KindMiss, loc.Primary, 0, err)
		return nil, err
	}

	res, err := t.record(x, loc.Primary)
	t.emitResult(x, KindRecord, loc.Primary, res, err)
	return res, err
}

// live forwards the request without any fixture I/O.
func (t *Transport) live(x *exchange, kind Kind) (*http.Response, error) {
	res, err := t.next.RoundTrip(x.outgoing)
	if err != nil {
		x.log.WithError(err).Debug("live call failed")
	}
	t.emitResult(x, kind, "", res, err)
	return res, err
}

// miss handles a strict playback miss.
func (t *Transport) miss(x *exchange, path string) error {
	missingFile, err := t.store.WriteMissing(path, x.descriptor())
	if err != nil {
		return err
	}

	notFound := &FixtureNotFoundError{Fixture: path, MissingFile: missingFile}
	if t.settings.Debug() {
		notFound.Debug = true
		best, ok, err := t.matcher.BestMatch(missingFile)
		switch {
		case err != nil:
			x.log.WithError(err).Warn("best match search failed")
		case ok:
			notFound.BestMatch = best
			t.matchBanner(best)
		}
	}
	x.log.WithField("fixture", path).Debug("fixture not found")
	return notFound
}

// record goes live and stores the outcome. A timeout sentinel owned by this
// exchange is in place for the whole duration of the call.
func (t *Transport) record(x *exchange, path string) (*http.Response, error) {
	restore, err := t.store.Snapshot(path, x.id)
	if err != nil {
		return nil, err
	}
	placeholder := fixture.TimeoutSentinel()
	placeholder.RecordingID = x.id
	if err := t.store.WriteHeaders(path, placeholder); err != nil {
		return nil, err
	}

	start := time.Now()
	res, liveErr := t.next.RoundTrip(x.outgoing)
	var resBody []byte
	if liveErr == nil {
		resBody, liveErr = io.ReadAll(res.Body)
		res.Body.Close()
	}
	elapsed := time.Since(start)

	if liveErr != nil && isCanceled(x.req.Context(), liveErr) {
		if err := restore(); err != nil {
			x.log.WithError(err).Warn("failed to restore fixture after cancellation")
		}
		return nil, liveErr
	}

	meta := fixture.Metadata{
		URL:  x.url,
		Time: elapsed.Milliseconds(),
		Request: &fixture.RequestEcho{
			Method:  x.req.Method,
			Headers: fingerprint.Flatten(x.outgoing.Header),
		},
	}
	if liveErr != nil {
		meta.Error = liveErr.Error()
		meta.Timeout = isTimeout(liveErr)
		err = t.store.WriteHeaders(path, meta)
	} else {
		meta.StatusCode = res.StatusCode
		meta.Headers = res.Header
		err = t.store.WriteFixture(path, meta, resBody)
	}
	if err != nil {
		return nil, err
	}

	if t.settings.Debug() {
		if err := t.store.WriteRequest(path, x.descriptor()); err != nil {
			x.log.WithError(err).Warn("failed to write request descriptor")
		}
	}
	x.log.WithFields(logrus.Fields{"fixture": path, "elapsed": elapsed}).Debug("recorded fixture")
	return t.deliver(x, path, false)
}

// deliver serves a stored fixture. Record and playback both end here.
func (t *Transport) deliver(x *exchange, path string, timed bool) (*http.Response, error) {
	meta, err := t.store.ReadHeaders(path)
	if err != nil {
		return nil, err
	}

	if timed && t.mode.Timed() {
		if err := sleep(x.req.Context(), meta.Duration()); err != nil {
			return nil, err
		}
	}

	if meta.Timeout {
		return nil, &TimeoutError{Fixture: path}
	}
	if meta.Error != "" {
		return nil, &UpstreamError{Fixture: path, Message: meta.Error}
	}

	body, err := t.store.ReadBody(path)
	if err != nil {
		return nil, err
	}

	header := meta.Headers.Clone()
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", meta.StatusCode, http.StatusText(meta.StatusCode)),
		StatusCode:    meta.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       x.req,
	}, nil
}

func (t *Transport) emitResult(x *exchange, kind Kind, path string, res *http.Response, err error) {
	status := 0
	if res != nil {
		status = res.StatusCode
	}
	t.emit(x, kind, path, status, err)
}

func (t *Transport) emit(x *exchange, kind Kind, path string, status int, err error) {
	if err != nil && kind != KindMiss && !isReplayedFailure(err) {
		x.log.WithError(err).WithField("fixture", path).Warn("request failed")
	}
	if len(t.observers) == 0 {
		return
	}
	e := Event{
		RequestID:  x.id,
		Kind:       kind,
		Mode:       t.mode,
		Method:     x.req.Method,
		URL:        x.url,
		Fixture:    path,
		StatusCode: status,
		Duration:   time.Since(x.start),
		Err:        err,
		Time:       x.start,
	}
	for _, o := range t.observers {
		o.Observe(e)
	}
}

func (t *Transport) banner(c *color.Color, title string, parts fingerprint.Parts, path string) {
	if !t.settings.Verbose() {
		return
	}
	c.Fprintf(t.out, "\n ====[ %s ]====\n %s\n filename: %s%s\n======================\n", title, parts, path, fixture.HeadersExt)
}

func (t *Transport) matchBanner(best string) {
	if !t.settings.Verbose() {
		return
	}
	matchColor.Fprintf(t.out, "\n ====[ best match ]====\n filename: %s\n======================\n", best)
}

func (x *exchange) descriptor() fixture.Descriptor {
	return fixture.Descriptor{
		URL:     x.url,
		Method:  x.req.Method,
		Headers: fingerprint.Flatten(x.outgoing.Header),
		Body:    fingerprint.BodyText(x.body),
	}
}

// bufferBody reads the whole request body once.
func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}

// outgoingRequest is the request forwarded live: internal headers removed
// and a replayable body.
func outgoingRequest(req *http.Request, body []byte) *http.Request {
	out := req.Clone(req.Context())
	out.Header = fingerprint.StripInternal(req.Header)
	if out.Header == nil {
		out.Header = make(http.Header)
	}
	if len(body) == 0 {
		out.Body = http.NoBody
		out.GetBody = func() (io.ReadCloser, error) { return http.NoBody, nil }
		out.ContentLength = 0
		return out
	}
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	out.ContentLength = int64(len(body))
	return out
}

// isCanceled reports whether the caller gave up on the request, as opposed
// to the call running out of time.
func isCanceled(ctx context.Context, err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isReplayedFailure(err error) bool {
	var timeoutErr *TimeoutError
	var upstreamErr *UpstreamError
	return errors.As(err, &timeoutErr) || errors.As(err, &upstreamErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
