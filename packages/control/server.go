// Package control serves the endpoint used to switch the ambient test name of
// a running process, and a client for it.
package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

const (
	// DefaultPort is the port the control server listens on
	DefaultPort = 58080
	// TestOptionsPath is the endpoint that sets the test name
	TestOptionsPath = "/testOptions/"
)

// Server sets the ambient test name of a Settings from HTTP requests.
type Server struct {
	settings *config.Settings
	host     string
	port     int
	logger   *logrus.Entry
}

// Option is a functional option for Server
type Option func(*Server)

// WithPort sets the listen port
func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

// WithHost sets the listen host
func WithHost(host string) Option {
	return func(s *Server) {
		s.host = host
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a control server for settings.
func NewServer(settings *config.Settings, opts ...Option) *Server {
	s := &Server{
		settings: settings,
		host:     "0.0.0.0",
		port:     DefaultPort,
		logger:   logrus.StandardLogger().WithField("component", "control"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.host, s.port)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.WithField("addr", s.Addr()).Info("control server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, strings.TrimSuffix(TestOptionsPath, "/")) {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if !gjson.ValidBytes(body) {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	// Every call replaces the test options; a missing testName clears it.
	testName := gjson.GetBytes(body, "testName").String()
	s.settings.SetTestName(testName)
	s.logger.WithField("test_name", testName).Debug("test name changed")
	w.WriteHeader(http.StatusOK)
}
