// Package transport provides the live executor used when a request has to go
// over the network.
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	neturl "net/url"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout bounds a live call from request start to body close
	DefaultTimeout = 30 * time.Second
	// DefaultMaxIdleConns is the maximum number of idle connections in the pool
	DefaultMaxIdleConns = 1000
	// DefaultMaxIdleConnsPerHost keeps enough idle connections for slow hosts
	// hit by many concurrent recordings
	DefaultMaxIdleConnsPerHost = 1000
	// DefaultIdleConnTimeout is how long idle connections stay in the pool
	DefaultIdleConnTimeout = 90 * time.Second
)

// Transport performs real network calls. It never caps concurrent
// connections per host.
type Transport struct {
	base        *http.Transport
	timeout     time.Duration
	validateSSL bool
	proxyURL    string
	limiter     *rate.Limiter
}

type Option func(*Transport)

// New creates the live executor.
func New(opts ...Option) *Transport {
	t := &Transport{
		timeout:     DefaultTimeout,
		validateSSL: true,
	}

	for _, opt := range opts {
		opt(t)
	}

	base := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     0,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	// Configure TLS verification
	if !t.validateSSL {
		base.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: true,
		}
	}

	// Configure proxy if specified
	if t.proxyURL != "" {
		proxyURL, err := neturl.Parse(t.proxyURL)
		if err == nil {
			base.Proxy = http.ProxyURL(proxyURL)
		}
	}

	t.base = base
	return t
}

// WithTimeout sets the per-call timeout. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.timeout = d
	}
}

// WithValidateSSL enables or disables SSL certificate validation
func WithValidateSSL(validate bool) Option {
	return func(t *Transport) {
		t.validateSSL = validate
	}
}

// WithProxy routes live calls through an HTTP proxy
func WithProxy(proxyURL string) Option {
	return func(t *Transport) {
		t.proxyURL = proxyURL
	}
}

// WithRateLimit caps live calls to rps per second with the given burst. It
// keeps large recording runs from hammering upstream services.
func WithRateLimit(rps float64, burst int) Option {
	return func(t *Transport) {
		if rps <= 0 {
			t.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// RoundTrip performs the live call.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	if t.timeout <= 0 {
		return t.base.RoundTrip(req)
	}

	ctx, cancel := context.WithTimeout(req.Context(), t.timeout)
	res, err := t.base.RoundTrip(req.WithContext(ctx))
	if err != nil {
		cancel()
		return nil, err
	}
	res.Body = &cancelOnClose{ReadCloser: res.Body, cancel: cancel}
	return res, nil
}

// CloseIdleConnections closes idle pooled connections.
func (t *Transport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}

// cancelOnClose releases the call's timeout once the body is done with.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
