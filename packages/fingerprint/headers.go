package fingerprint

import (
	"net/http"
	"sort"
	"strings"
)

const (
	// InternalHeaderPrefix marks control headers that steer the interceptor.
	// They never reach a live endpoint and never take part in a fingerprint.
	InternalHeaderPrefix = "x-httpvcr-"

	// TestNameHeader overrides the ambient test name for a single request.
	TestNameHeader = InternalHeaderPrefix + "test-name"
)

// IsInternal reports whether name is a reserved control header.
func IsInternal(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), InternalHeaderPrefix)
}

// StripInternal returns a copy of h without reserved control headers. The
// input is left untouched. A nil header yields nil.
func StripInternal(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	out := make(http.Header, len(h))
	for name, values := range h {
		if IsInternal(name) {
			continue
		}
		out[name] = append([]string(nil), values...)
	}
	return out
}

// Flatten turns a header into a lower-cased name -> value map, the shape
// stored in request descriptors. Repeated values are joined with ", ", except
// Cookie which is joined with "; " so it still parses as one cookie header.
func Flatten(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		sep := ", "
		if strings.EqualFold(name, "Cookie") {
			sep = "; "
		}
		out[strings.ToLower(name)] = strings.Join(values, sep)
	}
	return out
}

// Unflatten is the inverse of Flatten, enough to rebuild a fingerprint from a
// stored descriptor.
func Unflatten(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for name, value := range m {
		h[http.CanonicalHeaderKey(name)] = []string{value}
	}
	return h
}

// HeaderNames returns the sorted, lower-cased, whitelist-filtered names of the
// non-internal headers in h.
func HeaderNames(h http.Header, whitelist []string) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		if IsInternal(name) {
			continue
		}
		names = append(names, strings.ToLower(name))
	}
	names = filterByWhitelist(names, whitelist)
	sort.Strings(names)
	return names
}

// CookieNames parses the names out of every Cookie header value. Segments
// without "=" or without a name are dropped.
func CookieNames(h http.Header, whitelist []string) []string {
	names := make([]string, 0)
	for _, value := range h.Values("Cookie") {
		for _, segment := range strings.Split(value, ";") {
			segment = strings.TrimSpace(segment)
			if segment == "" {
				continue
			}
			name, _, ok := strings.Cut(segment, "=")
			name = strings.ToLower(strings.TrimSpace(name))
			if !ok || name == "" {
				continue
			}
			names = append(names, name)
		}
	}
	names = filterByWhitelist(names, whitelist)
	sort.Strings(names)
	return names
}

// filterByWhitelist keeps only names present in the whitelist. An empty
// whitelist keeps everything.
func filterByWhitelist(names, whitelist []string) []string {
	if len(whitelist) == 0 {
		return names
	}
	allowed := make(map[string]struct{}, len(whitelist))
	for _, w := range whitelist {
		allowed[strings.ToLower(w)] = struct{}{}
	}
	kept := names[:0]
	for _, name := range names {
		if _, ok := allowed[name]; ok {
			kept = append(kept, name)
		}
	}
	return kept
}
