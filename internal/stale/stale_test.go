package stale

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Norgate-AV/ccb/internal/archive"
)

var (
	old    = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	built  = old.Add(time.Hour)
	recent = built.Add(time.Hour)
)

type fixture struct {
	t       *testing.T
	dir     string
	root    string
	include string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dir := t.TempDir()
	f := &fixture{
		t:       t,
		dir:     dir,
		root:    filepath.Join(dir, "target", "release", "build"),
		include: filepath.Join(dir, "include"),
	}

	require.NoError(t, os.MkdirAll(f.root, 0o755))
	require.NoError(t, os.MkdirAll(f.include, 0o755))

	return f
}

func (f *fixture) write(path, content string, mtime time.Time) string {
	f.t.Helper()

	if !filepath.IsAbs(path) {
		path = filepath.Join(f.dir, path)
	}

	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
	require.NoError(f.t, os.Chtimes(path, mtime, mtime))

	return path
}

func (f *fixture) archive(rel string, mtime time.Time) string {
	f.t.Helper()
	return f.write(filepath.Join(f.root, rel), "!<arch>\n", mtime)
}

func (f *fixture) evaluator() *Evaluator {
	return New(f.root, WithLogger(log.New(io.Discard)))
}

func TestEvaluate_MissingArtifact(t *testing.T) {
	f := newFixture(t)
	src := f.write("src/main.c", "int main(void) { return 0; }\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.True(t, d.Rebuild)
	assert.Equal(t, ReasonMissingArtifact, d.Reason)
	assert.Empty(t, d.Archive)
}

func TestEvaluate_MissingRoot(t *testing.T) {
	e := New(filepath.Join(t.TempDir(), "nowhere"), WithLogger(log.New(io.Discard)))

	rebuild, err := e.ShouldRebuild(nil, nil, "foo")
	require.NoError(t, err)
	assert.True(t, rebuild)
}

func TestEvaluate_UpToDate(t *testing.T) {
	f := newFixture(t)
	lib := f.archive("foo-abc/out/libfoo.a", built)
	f.write("include/foo.h", "#include \"util/bar.h\"\n", old)
	f.write("include/util/bar.h", "int bar(void);\n", old)
	src := f.write("src/foo.c", "#include <stdio.h>\n#include \"foo.h\"\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.False(t, d.Rebuild)
	assert.Equal(t, ReasonUpToDate, d.Reason)
	assert.Equal(t, lib, d.Archive)
}

func TestEvaluate_AcceptsArchiveName(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	src := f.write("src/foo.c", "", old)

	rebuild, err := f.evaluator().ShouldRebuild([]string{src}, nil, "libfoo.a")
	require.NoError(t, err)
	assert.False(t, rebuild)
}

func TestEvaluate_NoSources(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)

	rebuild, err := f.evaluator().ShouldRebuild(nil, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.False(t, rebuild)
}

func TestEvaluate_SourceConditions(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture) []string
		wantReason Reason
		wantPath   func(f *fixture) string
	}{
		{
			name: "source newer than archive",
			setup: func(f *fixture) []string {
				return []string{
					f.write("src/a.c", "", old),
					f.write("src/b.c", "", recent),
				}
			},
			wantReason: ReasonSourceNewer,
			wantPath:   func(f *fixture) string { return filepath.Join(f.dir, "src/b.c") },
		},
		{
			name: "source missing",
			setup: func(f *fixture) []string {
				return []string{
					f.write("src/a.c", "", old),
					filepath.Join(f.dir, "src/gone.c"),
				}
			},
			wantReason: ReasonMissingSource,
			wantPath:   func(f *fixture) string { return filepath.Join(f.dir, "src/gone.c") },
		},
		{
			name: "source is not text",
			setup: func(f *fixture) []string {
				return []string{f.write("src/blob.c", "\xff\xfe\x00binary", old)}
			},
			wantReason: ReasonUnreadableSource,
			wantPath:   func(f *fixture) string { return filepath.Join(f.dir, "src/blob.c") },
		},
		{
			name: "source is a directory",
			setup: func(f *fixture) []string {
				dir := filepath.Join(f.dir, "src", "dir.c")
				require.NoError(f.t, os.MkdirAll(dir, 0o755))
				require.NoError(f.t, os.Chtimes(dir, old, old))
				return []string{dir}
			},
			wantReason: ReasonUnreadableSource,
			wantPath:   func(f *fixture) string { return filepath.Join(f.dir, "src", "dir.c") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.archive("out/libfoo.a", built)

			d, err := f.evaluator().Evaluate(tt.setup(f), []string{f.include}, "foo")
			require.NoError(t, err)
			assert.True(t, d.Rebuild)
			assert.Equal(t, tt.wantReason, d.Reason)
			assert.Equal(t, tt.wantPath(f), d.Path)
		})
	}
}

func TestEvaluate_ShortCircuitsOnFirstSource(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	f.write("include/new.h", "", recent)
	first := f.write("src/a.c", "#include \"new.h\"\n", old)
	second := filepath.Join(f.dir, "src/missing.c")

	d, err := f.evaluator().Evaluate([]string{first, second}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.Equal(t, ReasonMissingSource, d.Reason)
}

func TestEvaluate_HeaderNewer(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	header := f.write("include/nested/dep.h", "", recent)
	src := f.write("src/foo.c", "#include <nested/dep.h>\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.True(t, d.Rebuild)
	assert.Equal(t, ReasonHeaderNewer, d.Reason)
	assert.Equal(t, header, d.Path)
}

func TestEvaluate_TransitiveHeaderNewer(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	f.write("include/a.h", "#include \"b.h\"\n", old)
	f.write("include/b.h", "#include \"c.h\"\n", old)
	deep := f.write("include/c.h", "", recent)
	src := f.write("src/foo.c", "#include \"a.h\"\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.True(t, d.Rebuild)
	assert.Equal(t, ReasonHeaderNewer, d.Reason)
	assert.Equal(t, deep, d.Path)
}

func TestEvaluate_HeaderCycle(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	f.write("include/a.h", "#include \"b.h\"\n", old)
	f.write("include/b.h", "#include \"a.h\"\n", old)
	src := f.write("src/foo.c", "#include \"a.h\"\n#include \"a.h\"\n", old)

	rebuild, err := f.evaluator().ShouldRebuild([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.False(t, rebuild)
}

func TestEvaluate_UnreadableHeader(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("file permissions are not enforced for root")
	}

	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	header := f.write("include/locked.h", "", old)
	require.NoError(t, os.Chmod(header, 0o000))
	t.Cleanup(func() { _ = os.Chmod(header, 0o644) })
	src := f.write("src/foo.c", "#include \"locked.h\"\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.Equal(t, ReasonUnreadableHeader, d.Reason)
	assert.Equal(t, header, d.Path)
}

func TestEvaluate_NonUTF8Header(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	f.write("include/latin1.h", "/* caf\xe9 */\n#include \"inner.h\"\n", old)
	src := f.write("src/foo.c", "#include \"latin1.h\"\n", old)

	d, err := f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.False(t, d.Rebuild)
	assert.Equal(t, ReasonUpToDate, d.Reason)

	// includes after the non-UTF-8 bytes are still followed
	inner := f.write("include/inner.h", "", recent)

	d, err = f.evaluator().Evaluate([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.Equal(t, ReasonHeaderNewer, d.Reason)
	assert.Equal(t, inner, d.Path)
}

func TestEvaluate_UnresolvedHeaderIgnored(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)
	src := f.write("src/foo.c", "#include <not/anywhere.h>\n#include \"missing.h\"\n", old)

	rebuild, err := f.evaluator().ShouldRebuild([]string{src}, []string{f.include}, "foo")
	require.NoError(t, err)
	assert.False(t, rebuild)
}

func TestEvaluate_FirstSearchDirectoryWins(t *testing.T) {
	f := newFixture(t)
	f.archive("out/libfoo.a", built)

	first := filepath.Join(f.dir, "first")
	second := filepath.Join(f.dir, "second")
	f.write("first/config.h", "", old)
	f.write("second/config.h", "", recent)
	src := f.write("src/foo.c", "#include \"config.h\"\n", old)

	rebuild, err := f.evaluator().ShouldRebuild([]string{src}, []string{first, second}, "foo")
	require.NoError(t, err)
	assert.False(t, rebuild)

	rebuild, err = f.evaluator().ShouldRebuild([]string{src}, []string{second, first}, "foo")
	require.NoError(t, err)
	assert.True(t, rebuild)
}

func TestEvaluate_AmbiguousArchive(t *testing.T) {
	f := newFixture(t)
	f.archive("foo-1/out/libfoo.a", built)
	f.archive("foo-2/out/libfoo.a", built)
	src := f.write("src/foo.c", "", old)

	rebuild, err := f.evaluator().ShouldRebuild([]string{src}, nil, "foo")
	require.Error(t, err)
	assert.False(t, rebuild)
	assert.True(t, errors.Is(err, archive.ErrAmbiguous))
}

func TestEvaluate_CustomFinder(t *testing.T) {
	f := newFixture(t)
	lib := f.write("elsewhere/libfoo.a", "", built)
	src := f.write("src/foo.c", "", old)

	var gotRoot, gotOutput string
	e := New(f.root, WithLogger(log.New(io.Discard)), WithFinder(func(root, output string) (string, error) {
		gotRoot, gotOutput = root, output
		return lib, nil
	}))

	d, err := e.Evaluate([]string{src}, nil, "foo")
	require.NoError(t, err)
	assert.False(t, d.Rebuild)
	assert.Equal(t, lib, d.Archive)
	assert.Equal(t, f.root, gotRoot)
	assert.Equal(t, "foo", gotOutput)
	assert.Equal(t, f.root, e.Root())
}

func TestResolve(t *testing.T) {
	f := newFixture(t)
	want := f.write("include/sys/api.h", "", old)
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "other", "sys", "api.h"), 0o755))

	path, info, ok := Resolve([]string{filepath.Join(f.dir, "other"), f.include}, "sys/api.h")
	require.True(t, ok)
	assert.Equal(t, want, path)
	assert.False(t, info.IsDir())

	_, _, ok = Resolve([]string{f.include}, "nope.h")
	assert.False(t, ok)

	_, _, ok = Resolve(nil, "sys/api.h")
	assert.False(t, ok)
}

func TestEvaluate_OutputNameWithSeparator(t *testing.T) {
	f := newFixture(t)
	f.archive("a/b/out/liba/b.a", recent)
	src := f.write("src/b.c", "", old)

	_, err := f.evaluator().Evaluate([]string{src}, nil, "a/b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, archive.ErrInvalidName))
}
