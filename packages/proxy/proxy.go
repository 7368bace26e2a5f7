// Package proxy exposes the interceptor to processes that cannot install an
// http.RoundTripper: it is a reverse proxy whose transport records and plays
// back fixtures.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/vcr"
	"github.com/sirupsen/logrus"
)

// DefaultPort is the port the proxy listens on.
const DefaultPort = 8080

// Exchange summarizes one proxied request.
type Exchange struct {
	Time       time.Time
	RequestID  string
	Method     string
	URL        string
	Kind       vcr.Kind
	Fixture    string
	StatusCode int
	Duration   time.Duration
	Error      string
}

// Proxy is a reverse proxy in front of a single target.
type Proxy struct {
	host      string
	port      int
	targetURL string
	transport http.RoundTripper
	verbose   bool
	logger    *logrus.Entry

	mutex     sync.Mutex
	exchanges []Exchange
}

// Option is a functional option for Proxy
type Option func(*Proxy)

// WithPort sets the proxy port
func WithPort(port int) Option {
	return func(p *Proxy) {
		p.port = port
	}
}

// WithHost sets the listen host
func WithHost(host string) Option {
	return func(p *Proxy) {
		p.host = host
	}
}

// WithTargetURL sets the target URL to proxy to
func WithTargetURL(target string) Option {
	return func(p *Proxy) {
		p.targetURL = target
	}
}

// WithTransport sets the round tripper requests are sent through, normally a
// *vcr.Transport. Register the proxy as its observer to collect exchanges.
func WithTransport(rt http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = rt
	}
}

// WithVerbose logs every exchange at info level
func WithVerbose(verbose bool) Option {
	return func(p *Proxy) {
		p.verbose = verbose
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(p *Proxy) {
		p.logger = logger
	}
}

// New creates a proxy.
func New(opts ...Option) *Proxy {
	p := &Proxy{
		port:      DefaultPort,
		exchanges: make([]Exchange, 0),
		logger:    logrus.StandardLogger().WithField("component", "proxy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetTransport installs rt after New, for a *vcr.Transport that observes p.
func (p *Proxy) SetTransport(rt http.RoundTripper) {
	p.transport = rt
}

// Addr returns the listen address.
func (p *Proxy) Addr() string {
	return net.JoinHostPort(p.host, fmt.Sprint(p.port))
}

// Handler builds the reverse proxy handler.
func (p *Proxy) Handler() (http.Handler, error) {
	if p.targetURL == "" {
		return nil, fmt.Errorf("target URL is required")
	}
	target, err := url.Parse(p.targetURL)
	if err != nil {
		return nil, fmt.Errorf("invalid target URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid target URL: %q", p.targetURL)
	}

	return &httputil.ReverseProxy{
		Rewrite: func(r *httputil.ProxyRequest) {
			r.SetURL(target)
			r.Out.Host = target.Host
		},
		Transport:    p.transport,
		ErrorHandler: p.handleError,
	}, nil
}

// StartWithContext serves until ctx is cancelled.
func (p *Proxy) StartWithContext(ctx context.Context) error {
	handler, err := p.Handler()
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              p.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	p.logger.WithFields(logrus.Fields{"addr": p.Addr(), "target": p.targetURL}).Info("proxy listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleError maps interceptor failures onto gateway status codes.
func (p *Proxy) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusBadGateway
	var timeout *vcr.TimeoutError
	switch {
	case errors.Is(err, vcr.ErrFixtureNotFound):
		status = http.StatusNotFound
	case errors.As(err, &timeout), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client went away; nobody reads the response.
		return
	}
	p.logger.WithError(err).WithFields(logrus.Fields{
		"method": r.Method,
		"url":    r.URL.String(),
		"status": status,
	}).Warn("proxy error")
	http.Error(w, err.Error(), status)
}

// Observe implements vcr.Observer and keeps a summary of the exchange.
func (p *Proxy) Observe(e vcr.Event) {
	x := Exchange{
		Time:       e.Time,
		RequestID:  e.RequestID,
		Method:     e.Method,
		URL:        e.URL,
		Kind:       e.Kind,
		Fixture:    e.Fixture,
		StatusCode: e.StatusCode,
		Duration:   e.Duration,
	}
	if e.Err != nil {
		x.Error = e.Err.Error()
	}

	p.mutex.Lock()
	p.exchanges = append(p.exchanges, x)
	p.mutex.Unlock()

	if p.verbose {
		p.logger.WithFields(logrus.Fields{
			"request_id": x.RequestID,
			"kind":       x.Kind,
			"status":     x.StatusCode,
			"fixture":    x.Fixture,
			"duration":   x.Duration,
		}).Infof("%s %s", x.Method, x.URL)
	}
}

// Exchanges returns the exchanges seen so far.
func (p *Proxy) Exchanges() []Exchange {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	result := make([]Exchange, len(p.exchanges))
	copy(result, p.exchanges)
	return result
}

// Counts returns the number of exchanges per kind.
func (p *Proxy) Counts() map[vcr.Kind]int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	counts := make(map[vcr.Kind]int)
	for _, x := range p.exchanges {
		counts[x.Kind]++
	}
	return counts
}

// Clear forgets all exchanges
func (p *Proxy) Clear() {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.exchanges = make([]Exchange, 0)
}
