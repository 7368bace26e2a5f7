package filter

import (
	"fmt"
	"regexp"
)

// Replacement is a declarative regex rewrite, used by config files where
// filters cannot carry Go functions.
type Replacement struct {
	Pattern     string `yaml:"pattern" json:"pattern"`
	Replacement string `yaml:"replacement" json:"replacement"`
}

// Rewriter compiles the replacements into one function that applies them in
// order. A nil or empty list yields nil so Add falls back to identity.
func Rewriter(replacements []Replacement) (func(string) string, error) {
	if len(replacements) == 0 {
		return nil, nil
	}

	type rule struct {
		re  *regexp.Regexp
		out string
	}
	rules := make([]rule, 0, len(replacements))
	for _, r := range replacements {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid replacement pattern %q: %w", r.Pattern, err)
		}
		rules = append(rules, rule{re: re, out: r.Replacement})
	}

	return func(s string) string {
		for _, r := range rules {
			s = r.re.ReplaceAllString(s, r.out)
		}
		return s
	}, nil
}
