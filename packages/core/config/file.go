package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/abdul-hamid-achik/httpvcr/packages/filter"
	"gopkg.in/yaml.v3"
)

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".httpvcr.yaml",
	"httpvcr.yaml",
	".httpvcr.yml",
	"httpvcr.yml",
}

// File is the on-disk configuration.
type File struct {
	FixtureDir string       `yaml:"fixtureDir,omitempty"`
	Mode       string       `yaml:"mode,omitempty"`
	Options    Options      `yaml:",inline"`
	Filters    []FilterSpec `yaml:"filters,omitempty"`
}

// FilterSpec is the declarative form of filter.Filter. Unknown keys are
// ignored.
type FilterSpec struct {
	URL         string               `yaml:"url,omitempty"`
	URLReplace  []filter.Replacement `yaml:"urlReplace,omitempty"`
	BodyReplace []filter.Replacement `yaml:"bodyReplace,omitempty"`
	ForceLive   bool                 `yaml:"forceLive,omitempty"`
	Global      bool                 `yaml:"global,omitempty"`
}

// Filter compiles the declarative rule into a filter.Filter.
func (fs FilterSpec) Filter() (filter.Filter, error) {
	var f filter.Filter
	if fs.URL != "" {
		re, err := regexp.Compile(fs.URL)
		if err != nil {
			return f, fmt.Errorf("%w: url %q: %v", ErrInvalidFilter, fs.URL, err)
		}
		f.URL = re
	}

	var err error
	if f.URLFilter, err = filter.Rewriter(fs.URLReplace); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	if f.BodyFilter, err = filter.Rewriter(fs.BodyReplace); err != nil {
		return f, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	f.ForceLive = fs.ForceLive
	f.Global = fs.Global
	return f, nil
}

// LoadFile loads configuration from the specified path or searches for config
// files in the current directory. It returns nil, nil when none is found.
func LoadFile(path string) (*File, error) {
	if path != "" {
		return loadFromFile(path)
	}
	return FindAndLoad(".")
}

// FindAndLoad searches for a config file in the given directory.
func FindAndLoad(dir string) (*File, error) {
	path := Find(dir)
	if path == "" {
		return nil, nil
	}
	return loadFromFile(path)
}

// Find returns the first config file present in dir, or "".
func Find(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

func loadFromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML config document.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParseConfig, err)
	}
	return &f, nil
}

// Apply merges the file into s. Filters from the file replace the current
// filter list as a whole, so re-applying a changed file does not stack
// duplicates. Nothing is changed if any filter fails to compile.
func (f *File) Apply(s *Settings) error {
	filters := make([]filter.Filter, 0, len(f.Filters))
	for i, rule := range f.Filters {
		compiled, err := rule.Filter()
		if err != nil {
			return fmt.Errorf("filter %d: %w", i, err)
		}
		filters = append(filters, compiled)
	}

	if f.FixtureDir != "" {
		s.SetFixtureDir(f.FixtureDir)
	}
	s.Configure(f.Options)
	s.Filters().Replace(filters)
	return nil
}

// Save writes the configuration to a file.
func (f *File) Save(path string) error {
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
