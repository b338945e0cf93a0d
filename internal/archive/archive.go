// Package archive locates previously built static archives under a build
// output root.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

const (
	prefix = "lib"
	suffix = ".a"
)

// ErrAmbiguous is returned when more than one archive matches an output name.
var ErrAmbiguous = errors.New("ambiguous archive")

// ErrInvalidName is returned for output names that are not a plain file name.
var ErrInvalidName = errors.New("invalid output name")

// AmbiguousError lists the candidates found for a single output name.
type AmbiguousError struct {
	Name       string
	Candidates []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("more than one archive named %s: %s", e.Name, strings.Join(e.Candidates, ", "))
}

func (e *AmbiguousError) Unwrap() error {
	return ErrAmbiguous
}

// Name returns the archive file name for output. Names already in the
// lib<name>.a form are returned unchanged.
func Name(output string) string {
	if isArchiveName(output) {
		return output
	}

	return prefix + output + suffix
}

// Stem returns the logical library name for output, without lib prefix and .a suffix.
func Stem(output string) string {
	if isArchiveName(output) {
		return output[len(prefix) : len(output)-len(suffix)]
	}

	return output
}

func isArchiveName(s string) bool {
	return len(s) > len(prefix)+len(suffix) && strings.HasPrefix(s, prefix) && strings.HasSuffix(s, suffix)
}

// CheckName rejects output names that cannot be matched by Search: names
// with a path separator and names whose stem is empty, "." or "..".
func CheckName(output string) error {
	stem := Stem(output)
	if strings.ContainsAny(output, `/\`) || stem == "" || stem == "." || stem == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidName, output)
	}

	return nil
}

// Search walks root and returns every regular file whose base name is name.
// Unreadable directories, including a missing root, contribute no matches.
func Search(root, name string) []string {
	var matches []string

	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}

		if d.Type().IsRegular() && d.Name() == name {
			matches = append(matches, path)
		}

		return nil
	})

	return matches
}

// Find returns the single archive for output under root, or "" when none
// exists. Two or more candidates yield an *AmbiguousError and an output
// rejected by CheckName yields ErrInvalidName.
func Find(root, output string) (string, error) {
	if err := CheckName(output); err != nil {
		return "", err
	}

	name := Name(output)

	matches := Search(root, name)
	switch len(matches) {
	case 0:
		return "", nil
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Name: name, Candidates: matches}
	}
}
