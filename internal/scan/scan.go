// Package scan extracts header references from C, C++ and CUDA sources.
//
// The scan is textual, not a preprocessor: every line that starts with
// #include counts, including ones guarded by #if/#ifdef that would never be
// compiled.
package scan

import (
	"strings"
	"unicode"
)

// Directive is the keyword a line has to start with to be treated as an include.
const Directive = "#include"

// Includes returns the header names referenced by include directives in
// content, in the order they appear. Duplicates are kept.
func Includes(content string) []string {
	var includes []string

	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(line, Directive) {
			continue
		}

		if name, ok := ParseLine(line); ok {
			includes = append(includes, name)
		}
	}

	return includes
}

// ParseLine parses a single include directive and returns the referenced name.
// It reports false for lines that are not directives and for malformed ones
// whose opening delimiter is never closed.
func ParseLine(line string) (string, bool) {
	line = strings.TrimLeftFunc(line, unicode.IsSpace)
	if !strings.HasPrefix(line, Directive) {
		return "", false
	}

	open := strings.IndexAny(line, `"<`)
	if open < 0 {
		return "", false
	}

	closing := byte('>')
	if line[open] == '"' {
		closing = '"'
	}

	rest := line[open+1:]
	end := strings.IndexByte(rest, closing)
	if end < 0 {
		return "", false
	}

	return rest[:end], true
}
