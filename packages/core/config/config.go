package config

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/abdul-hamid-achik/httpvcr/packages/filter"
	"github.com/abdul-hamid-achik/httpvcr/packages/fingerprint"
)

// Options is a partial configuration. Nil pointers and nil slices leave the
// current setting untouched, so Configure is a merge, never a reset.
type Options struct {
	IncludeHeaderNames *bool    `yaml:"includeHeaderNames,omitempty" json:"includeHeaderNames,omitempty"`
	HeaderWhitelist    []string `yaml:"headerWhitelist,omitempty" json:"headerWhitelist,omitempty"`
	IncludeCookieNames *bool    `yaml:"includeCookieNames,omitempty" json:"includeCookieNames,omitempty"`
	CookieWhitelist    []string `yaml:"cookieWhitelist,omitempty" json:"cookieWhitelist,omitempty"`
	Verbose            *bool    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	TouchHits          *bool    `yaml:"touchHits,omitempty" json:"touchHits,omitempty"`
	Debug              *bool    `yaml:"debug,omitempty" json:"debug,omitempty"`
	FallbackToGlobal   *bool    `yaml:"fallbackToGlobal,omitempty" json:"fallbackToGlobal,omitempty"`
}

// BoolPtr returns a pointer to b, for filling Options literals.
func BoolPtr(b bool) *bool {
	return &b
}

// Settings is the configuration context shared by the interceptor, the
// resolver and the fixture store. It is safe for concurrent use.
type Settings struct {
	mu sync.RWMutex

	fixtureDir string
	filters    *filter.Registry

	includeHeaderNames bool
	headerWhitelist    []string
	includeCookieNames bool
	cookieWhitelist    []string

	verbose          bool
	touchHits        bool
	debug            bool
	fallbackToGlobal bool

	testName string
}

// NewSettings returns settings initialized to their defaults.
func NewSettings() *Settings {
	s := &Settings{filters: filter.NewRegistry()}
	s.Reset()
	return s
}

// DefaultFixtureDir is fixtures/generated under the working directory.
func DefaultFixtureDir() string {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return filepath.Join(cwd, "fixtures", "generated")
}

// Reset restores every setting to its default and drops all filters.
func (s *Settings) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fixtureDir = DefaultFixtureDir()
	s.filters.Reset()
	s.includeHeaderNames = true
	s.headerWhitelist = nil
	s.includeCookieNames = true
	s.cookieWhitelist = nil
	s.verbose = false
	s.touchHits = true
	s.debug = false
	s.fallbackToGlobal = false
	s.testName = ""
}

// Configure merges opts into the current settings.
func (s *Settings) Configure(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts.IncludeHeaderNames != nil {
		s.includeHeaderNames = *opts.IncludeHeaderNames
	}
	if opts.HeaderWhitelist != nil {
		s.headerWhitelist = lowerAll(opts.HeaderWhitelist)
	}
	if opts.IncludeCookieNames != nil {
		s.includeCookieNames = *opts.IncludeCookieNames
	}
	if opts.CookieWhitelist != nil {
		s.cookieWhitelist = lowerAll(opts.CookieWhitelist)
	}
	if opts.Verbose != nil {
		s.verbose = *opts.Verbose
	}
	if opts.TouchHits != nil {
		s.touchHits = *opts.TouchHits
	}
	if opts.Debug != nil {
		s.debug = *opts.Debug
	}
	if opts.FallbackToGlobal != nil {
		s.fallbackToGlobal = *opts.FallbackToGlobal
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.ToLower(v)
	}
	return out
}

// SetFixtureDir changes the fixture root for fixtures resolved from now on.
func (s *Settings) SetFixtureDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fixtureDir = dir
}

// FixtureDir returns the fixture root.
func (s *Settings) FixtureDir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fixtureDir
}

// SetTestName sets the ambient test name. An empty name clears it.
func (s *Settings) SetTestName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.testName = name
}

// TestName returns the ambient test name.
func (s *Settings) TestName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.testName
}

// AddFilter registers a filter after the existing ones.
func (s *Settings) AddFilter(f filter.Filter) {
	s.filters.Add(f)
}

// Filters returns the filter registry.
func (s *Settings) Filters() *filter.Registry {
	return s.filters
}

// FingerprintOptions snapshots the settings that feed the fingerprint.
func (s *Settings) FingerprintOptions() fingerprint.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fingerprint.Options{
		Filters:            s.filters,
		IncludeHeaderNames: s.includeHeaderNames,
		HeaderWhitelist:    append([]string(nil), s.headerWhitelist...),
		IncludeCookieNames: s.includeCookieNames,
		CookieWhitelist:    append([]string(nil), s.cookieWhitelist...),
	}
}

// Verbose reports whether fingerprint banners are printed.
func (s *Settings) Verbose() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.verbose
}

// TouchHits reports whether playback hits refresh the fixture mtime.
func (s *Settings) TouchHits() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touchHits
}

// Debug reports whether recordings also write a ".request" descriptor.
func (s *Settings) Debug() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.debug
}

// FallbackToGlobal reports whether playback falls back to the un-namespaced fixture.
func (s *Settings) FallbackToGlobal() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fallbackToGlobal
}
