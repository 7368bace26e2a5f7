// Package fingerprint derives the stable cache key of an outgoing request.
//
// A fingerprint is an ordered list of named parts: method, filtered URL,
// filtered body, header names and cookie names. Only names take part, never
// header or cookie values. The parts serialize to compact JSON whose MD5 hex
// digest is the fixture's base filename.
package fingerprint

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/abdul-hamid-achik/httpvcr/packages/filter"
)

// Part names, in serialization order.
const (
	PartMethod      = "method"
	PartURL         = "url"
	PartBody        = "body"
	PartHeaderNames = "headerNames"
	PartCookieNames = "cookieNames"
)

// BodyBase64Prefix marks a body part holding base64 encoded binary content.
const BodyBase64Prefix = "base64:"

// Options controls which request details take part in a fingerprint.
type Options struct {
	Filters            *filter.Registry
	IncludeHeaderNames bool
	HeaderWhitelist    []string
	IncludeCookieNames bool
	CookieWhitelist    []string
}

// Part is one named component. Value is a string or a []string.
type Part struct {
	Name  string
	Value any
}

// Parts is an ordered fingerprint.
type Parts []Part

// Build computes the fingerprint parts of a request. It never fails: a
// missing method becomes "get", nil headers and bodies count as empty.
func Build(opts Options, method, rawURL string, body []byte, header http.Header) Parts {
	method = strings.ToLower(method)
	if method == "" {
		method = "get"
	}

	filteredURL, filteredBody := opts.Filters.Apply(rawURL, BodyText(body))

	headerNames := []string{}
	if opts.IncludeHeaderNames {
		headerNames = HeaderNames(header, opts.HeaderWhitelist)
	}

	cookieNames := []string{}
	if opts.IncludeCookieNames {
		cookieNames = CookieNames(header, opts.CookieWhitelist)
	}

	return Parts{
		{Name: PartMethod, Value: method},
		{Name: PartURL, Value: filteredURL},
		{Name: PartBody, Value: filteredBody},
		{Name: PartHeaderNames, Value: headerNames},
		{Name: PartCookieNames, Value: cookieNames},
	}
}

// BodyText renders a request body as the text used in fingerprints and
// request descriptors. Bodies that are not valid UTF-8 are base64 encoded
// behind a "base64:" prefix so distinct binary payloads keep distinct keys.
func BodyText(body []byte) string {
	if utf8.Valid(body) {
		return string(body)
	}
	return BodyBase64Prefix + base64.StdEncoding.EncodeToString(body)
}

// String returns the canonical serialization: a JSON array of [name, value]
// pairs, without HTML escaping.
func (p Parts) String() string {
	pairs := make([][2]any, 0, len(p))
	for _, part := range p {
		pairs = append(pairs, [2]any{part.Name, part.Value})
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		// Values are strings and string slices only.
		return ""
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// MarshalJSON emits the canonical serialization.
func (p Parts) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// Digest returns the hex MD5 of the canonical serialization.
func (p Parts) Digest() string {
	sum := md5.Sum([]byte(p.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns the value of the named part, or nil.
func (p Parts) Get(name string) any {
	for _, part := range p {
		if part.Name == name {
			return part.Value
		}
	}
	return nil
}

// URL returns the filtered URL part.
func (p Parts) URL() string {
	s, _ := p.Get(PartURL).(string)
	return s
}
