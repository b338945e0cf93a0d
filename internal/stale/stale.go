// Package stale decides whether a static archive is older than the sources
// and headers it was built from.
//
// An evaluation stops at the first conclusive signal:
//
//  1. No archive named lib<output>.a under the build root: rebuild.
//  2. More than one such archive: archive.ErrAmbiguous, no decision.
//  3. A source that is missing, newer than the archive or not readable as text: rebuild.
//  4. A header referenced by a source (or by another tracked header), found in
//     the search directories and newer than the archive or that cannot be read:
//     rebuild. Header content need not be valid UTF-8.
//
// Headers that cannot be found in any search directory are ignored; they are
// assumed to be system headers outside the project.
package stale

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/Norgate-AV/ccb/internal/archive"
	"github.com/Norgate-AV/ccb/internal/scan"
)

var errNotText = errors.New("content is not valid UTF-8 text")

// Finder locates the archive for an output name under a root.
type Finder func(root, output string) (string, error)

// Evaluator compares archives under a build output root with their inputs.
type Evaluator struct {
	root   string
	find   Finder
	logger *log.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithLogger sets the logger used for debug output.
func WithLogger(logger *log.Logger) Option {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// WithFinder replaces the archive lookup.
func WithFinder(find Finder) Option {
	return func(e *Evaluator) {
		e.find = find
	}
}

// New creates an Evaluator searching for archives below root.
func New(root string, opts ...Option) *Evaluator {
	e := &Evaluator{
		root:   root,
		find:   archive.Find,
		logger: log.Default(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Root returns the build output root.
func (e *Evaluator) Root() string {
	return e.root
}

// ShouldRebuild reports whether the archive for output must be rebuilt from
// sources. search is the ordered list of include directories.
func (e *Evaluator) ShouldRebuild(sources, search []string, output string) (bool, error) {
	d, err := e.Evaluate(sources, search, output)
	if err != nil {
		return false, err
	}

	return d.Rebuild, nil
}

// Evaluate is ShouldRebuild with the reason for the outcome.
func (e *Evaluator) Evaluate(sources, search []string, output string) (Decision, error) {
	lib, err := e.find(e.root, output)
	if err != nil {
		return Decision{}, err
	}

	if lib == "" {
		return e.conclude(rebuild(ReasonMissingArtifact, "", ""), output), nil
	}

	info, err := os.Stat(lib)
	if err != nil {
		return e.conclude(rebuild(ReasonMissingArtifact, lib, ""), output), nil
	}

	since := info.ModTime()

	var deps []string
	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return e.conclude(rebuild(ReasonMissingSource, src, lib), output), nil
		}

		if info.ModTime().After(since) {
			return e.conclude(rebuild(ReasonSourceNewer, src, lib), output), nil
		}

		content, err := readText(src)
		if err != nil {
			return e.conclude(rebuild(ReasonUnreadableSource, src, lib), output), nil
		}

		deps = append(deps, scan.Includes(content)...)
	}

	visited := make(map[string]struct{})
	for i := 0; i < len(deps); i++ {
		header, info, ok := Resolve(search, deps[i])
		if !ok {
			e.logger.Debug("unresolved include", "output", output, "include", deps[i])
			continue
		}

		if _, seen := visited[header]; seen {
			continue
		}

		visited[header] = struct{}{}

		if info.ModTime().After(since) {
			return e.conclude(rebuild(ReasonHeaderNewer, header, lib), output), nil
		}

		// Header bytes are scanned as is; only sources must be valid text
		content, err := os.ReadFile(header)
		if err != nil {
			return e.conclude(rebuild(ReasonUnreadableHeader, header, lib), output), nil
		}

		deps = append(deps, scan.Includes(string(content))...)
	}

	return e.conclude(Decision{Reason: ReasonUpToDate, Archive: lib}, output), nil
}

func (e *Evaluator) conclude(d Decision, output string) Decision {
	e.logger.Debug("staleness evaluated", "output", output, "rebuild", d.Rebuild, "reason", d.Reason, "path", d.Path)
	return d
}

// Resolve finds include in the first directory of search that contains it.
// Names with '/' are treated as paths relative to each directory.
func Resolve(search []string, include string) (string, fs.FileInfo, bool) {
	rel := filepath.FromSlash(include)

	for _, dir := range search {
		path := filepath.Join(dir, rel)

		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			return path, info, true
		}
	}

	return "", nil, false
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	if !utf8.Valid(data) {
		return "", errNotText
	}

	return string(data), nil
}
