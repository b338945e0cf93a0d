package builder

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ExpandSources expands doublestar patterns into file paths. Plain paths are
// kept even when they do not exist so the evaluator sees them as missing.
// The result keeps pattern order and drops repeats.
func ExpandSources(patterns []string) ([]string, error) {
	var sources []string
	seen := make(map[string]struct{})

	add := func(path string) {
		if _, ok := seen[path]; ok {
			return
		}

		seen[path] = struct{}{}
		sources = append(sources, path)
	}

	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			add(pattern)
			continue
		}

		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid source pattern %s: %w", pattern, err)
		}

		for _, m := range matches {
			add(m)
		}
	}

	return sources, nil
}

func hasMeta(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
