// Package match finds the recorded request closest to one that missed.
package match

import (
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/fingerprint"
	"github.com/abdul-hamid-achik/httpvcr/packages/fixture"
	"github.com/agnivade/levenshtein"
)

// Matcher compares request descriptors by the edit distance between their
// serialized fingerprints.
type Matcher struct {
	settings *config.Settings
}

// NewMatcher creates a matcher that fingerprints with the current settings.
func NewMatcher(s *config.Settings) *Matcher {
	return &Matcher{settings: s}
}

// BestMatch scans the ".request" files next to missingFile and returns the one
// closest to it among those with the same URL host. Candidates are visited in
// lexical order and only a strictly smaller distance replaces the current
// best. Unreadable candidates are skipped.
func (m *Matcher) BestMatch(missingFile string) (string, bool, error) {
	missing, err := fixture.ReadDescriptor(missingFile)
	if err != nil {
		return "", false, err
	}
	host := hostOf(missing.URL)
	target := m.serialize(missing)

	dir := filepath.Dir(missingFile)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false, err
	}

	best, bestDistance := "", -1
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fixture.RequestExt) {
			continue
		}
		candidate := filepath.Join(dir, entry.Name())
		desc, err := fixture.ReadDescriptor(candidate)
		if err != nil || hostOf(desc.URL) != host {
			continue
		}
		d := levenshtein.ComputeDistance(target, m.serialize(desc))
		if bestDistance < 0 || d < bestDistance {
			best, bestDistance = candidate, d
		}
	}
	return best, best != "", nil
}

// Distance returns the edit distance between two descriptors.
func (m *Matcher) Distance(a, b fixture.Descriptor) int {
	return levenshtein.ComputeDistance(m.serialize(a), m.serialize(b))
}

func (m *Matcher) serialize(d fixture.Descriptor) string {
	parts := fingerprint.Build(m.settings.FingerprintOptions(), d.Method, d.URL, []byte(d.Body), fingerprint.Unflatten(d.Headers))
	return parts.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
