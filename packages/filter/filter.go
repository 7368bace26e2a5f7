// Package filter holds the ordered URL-scoped rules that rewrite request URLs and
// bodies before fingerprinting, and that mark URLs as force-live or global.
package filter

import (
	"regexp"
	"sync"
)

// MatchAll is the pattern used when a filter does not specify one.
var MatchAll = regexp.MustCompile(`.*`)

// Filter is a single URL-scoped rule. A zero Filter matches every URL and
// leaves the URL and body untouched.
type Filter struct {
	URL        *regexp.Regexp
	URLFilter  func(string) string
	BodyFilter func(string) string
	ForceLive  bool
	Global     bool
}

func identity(s string) string { return s }

// withDefaults fills in the pattern and rewrite functions that were left nil.
func (f Filter) withDefaults() Filter {
	if f.URL == nil {
		f.URL = MatchAll
	}
	if f.URLFilter == nil {
		f.URLFilter = identity
	}
	if f.BodyFilter == nil {
		f.BodyFilter = identity
	}
	return f
}

// Matches reports whether the filter's pattern matches rawURL.
func (f Filter) Matches(rawURL string) bool {
	if f.URL == nil {
		return true
	}
	return f.URL.MatchString(rawURL)
}

// Registry is a concurrency-safe, ordered list of filters.
type Registry struct {
	mu      sync.RWMutex
	filters []Filter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a filter. Missing fields get their defaults.
func (r *Registry) Add(f Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = append(r.filters, f.withDefaults())
}

// Reset removes every filter.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filters = nil
}

// Replace swaps the whole filter list in one step.
func (r *Registry) Replace(filters []Filter) {
	next := make([]Filter, 0, len(filters))
	for _, f := range filters {
		next = append(next, f.withDefaults())
	}
	r.mu.Lock()
	r.filters = next
	r.mu.Unlock()
}

// Filters returns a copy of the registered filters in registration order.
func (r *Registry) Filters() []Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Filter, len(r.filters))
	copy(out, r.filters)
	return out
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.filters)
}

// Apply runs every filter whose pattern matches the original rawURL, in
// registration order. Each filter sees the previous filter's output.
func (r *Registry) Apply(rawURL, body string) (string, string) {
	if r == nil {
		return rawURL, body
	}

	filteredURL, filteredBody := rawURL, body
	for _, f := range r.Filters() {
		if !f.Matches(rawURL) {
			continue
		}
		filteredURL = f.URLFilter(filteredURL)
		filteredBody = f.BodyFilter(filteredBody)
	}
	return filteredURL, filteredBody
}

// ForceLive reports whether any matching filter forces a live call.
func (r *Registry) ForceLive(rawURL string) bool {
	return r.any(rawURL, func(f Filter) bool { return f.ForceLive })
}

// Global reports whether any matching filter stores fixtures without a test
// namespace.
func (r *Registry) Global(rawURL string) bool {
	return r.any(rawURL, func(f Filter) bool { return f.Global })
}

func (r *Registry) any(rawURL string, pred func(Filter) bool) bool {
	if r == nil {
		return false
	}
	for _, f := range r.Filters() {
		if pred(f) && f.Matches(rawURL) {
			return true
		}
	}
	return false
}
