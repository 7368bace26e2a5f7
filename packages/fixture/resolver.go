package fixture

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/abdul-hamid-achik/httpvcr/packages/core/config"
	"github.com/abdul-hamid-achik/httpvcr/packages/fingerprint"
)

// Location is where a fixture lives. Primary is the path recordings are
// written to. Global is the language-only path consulted on playback when
// fallback is on; it is empty when Primary carries no test namespace.
type Location struct {
	Digest  string
	Primary string
	Global  string
}

// Candidates lists the paths to try on playback, in order.
func (l Location) Candidates(fallback bool) []string {
	if fallback && l.Global != "" && l.Global != l.Primary {
		return []string{l.Primary, l.Global}
	}
	return []string{l.Primary}
}

// Resolver maps requests to fixture directories.
type Resolver struct {
	settings *config.Settings
}

// NewResolver creates a resolver reading the fixture root, filters and
// ambient test name from s.
func NewResolver(s *config.Settings) *Resolver {
	return &Resolver{settings: s}
}

// Dir returns the fixture directory for a request and creates it.
func (r *Resolver) Dir(rawURL string, header http.Header) (string, error) {
	root, err := r.root()
	if err != nil {
		return "", err
	}
	return makeDir(root, Language(header), r.namespace(rawURL, header))
}

// Resolve returns the location of the fixture with the given digest. The
// namespace is read once so Primary and Global always agree.
func (r *Resolver) Resolve(rawURL string, header http.Header, digest string) (Location, error) {
	root, err := r.root()
	if err != nil {
		return Location{}, err
	}
	lang := Language(header)
	ns := r.namespace(rawURL, header)

	dir, err := makeDir(root, lang, ns)
	if err != nil {
		return Location{}, err
	}

	loc := Location{Digest: digest, Primary: filepath.Join(dir, digest)}
	if ns != "" {
		loc.Global = filepath.Join(root, lang, digest)
	}
	return loc, nil
}

func (r *Resolver) root() (string, error) {
	root, err := filepath.Abs(r.settings.FixtureDir())
	if err != nil {
		return "", fmt.Errorf("failed to resolve fixture root: %w", err)
	}
	return root, nil
}

func makeDir(root, lang, ns string) (string, error) {
	dir := filepath.Join(root, lang, ns)
	if err := validatePathWithinBase(dir, root); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create fixture directory: %w", err)
	}
	return dir, nil
}

// namespace picks the test namespace: none for global URLs, else the
// per-request header, else the ambient test name.
func (r *Resolver) namespace(rawURL string, header http.Header) string {
	if r.settings.Filters().Global(rawURL) {
		return ""
	}
	if name := header.Get(fingerprint.TestNameHeader); name != "" {
		return name
	}
	return r.settings.TestName()
}

// Language returns the primary tag of the Accept-Language header, or "".
func Language(header http.Header) string {
	lang, _, _ := strings.Cut(header.Get("Accept-Language"), ",")
	return strings.TrimSpace(lang)
}

// validatePathWithinBase ensures path resolves inside baseDir.
func validatePathWithinBase(path, baseDir string) error {
	cleanBase := filepath.Clean(baseDir)
	cleanPath := filepath.Clean(path)
	if !strings.HasPrefix(cleanPath, cleanBase+string(filepath.Separator)) && cleanPath != cleanBase {
		return fmt.Errorf("%w: %s is outside fixture root %s", ErrInvalidNamespace, path, baseDir)
	}
	return nil
}
