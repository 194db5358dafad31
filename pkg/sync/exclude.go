package sync

import (
	"github.com/gobwas/glob"

	"github.com/sidkik/foldersync/pkg/errors"
)

// ExcludeRules is a compiled set of exclusion patterns. Patterns are matched
// against bare file names, never against directory paths.
type ExcludeRules struct {
	patterns []string
	globs    []glob.Glob
}

// CompileExcludes compiles shell-style glob patterns (`*`, `?`, `[...]` and
// `{a,b}`) into ExcludeRules.
func CompileExcludes(patterns []string) (ExcludeRules, error) {
	rules := ExcludeRules{patterns: append([]string(nil), patterns...)}
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return ExcludeRules{}, errors.WithContext(err,
				"compile exclude pattern "+pattern)
		}
		rules.globs = append(rules.globs, g)
	}
	return rules, nil
}

// Match returns whether name matches any of the rules.
func (rules ExcludeRules) Match(name string) bool {
	for _, g := range rules.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Patterns returns the patterns the rules were compiled from.
func (rules ExcludeRules) Patterns() []string {
	return append([]string(nil), rules.patterns...)
}

// IsExcluded returns whether fileName matches any of patterns. Invalid
// patterns never match.
func IsExcluded(fileName string, patterns []string) bool {
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			continue
		}
		if g.Match(fileName) {
			return true
		}
	}
	return false
}
