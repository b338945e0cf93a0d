// Package compiler turns a target into compiler and archiver invocations and
// runs them.
package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Norgate-AV/ccb/internal/archive"
	"github.com/Norgate-AV/ccb/internal/config"
)

type ShellCommand struct {
	Path string
	Args []string
}

func (c *ShellCommand) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Plan is the full set of commands producing one archive
type Plan struct {
	// Archive is the path of the produced lib<name>.a
	Archive string
	// ObjectDir holds intermediate objects
	ObjectDir string
	// Compile has one command per source
	Compile []*ShellCommand
	// Link bundles the objects into the archive
	Link *ShellCommand
}

// ArchivePath returns where the archive for name is written under root
func ArchivePath(root, name string) string {
	stem := archive.Stem(name)
	return filepath.Join(root, stem, "out", archive.Name(stem))
}

// ObjectDir returns where intermediate objects for name are written under root
func ObjectDir(root, name string) string {
	return filepath.Join(root, archive.Stem(name), "obj")
}

func GetBuildCommands(cfg *config.Config, target config.Target, sources []string) (*Plan, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("target %s has no sources", target.Name)
	}

	plan := &Plan{
		Archive:   ArchivePath(cfg.BuildRoot, target.Name),
		ObjectDir: ObjectDir(cfg.BuildRoot, target.Name),
	}

	compiler := cfg.Compiler
	if target.CUDA {
		compiler = cfg.CUDACompiler
	}

	objects := make([]string, 0, len(sources))
	for _, src := range sources {
		absSrc, err := filepath.Abs(src)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve absolute path for %s: %w", src, err)
		}

		obj := filepath.Join(plan.ObjectDir, objectName(absSrc))
		objects = append(objects, obj)

		plan.Compile = append(plan.Compile, &ShellCommand{
			Path: compiler,
			Args: CompileArgs(cfg, target, absSrc, obj),
		})
	}

	plan.Link = &ShellCommand{
		Path: cfg.Archiver,
		Args: append([]string{"crs", plan.Archive}, objects...),
	}

	return plan, nil
}

// CompileArgs builds the arguments compiling src into obj
func CompileArgs(cfg *config.Config, target config.Target, src, obj string) []string {
	var args []string

	if target.CUDA {
		if target.CUDART != "" {
			args = append(args, "-cudart="+target.CUDART)
		}
	} else {
		args = append(args, cfg.ExtraFlags...)
	}

	args = append(args, target.Flags...)

	for _, dir := range target.Includes {
		if dir != "" {
			args = append(args, "-I", dir)
		}
	}

	return append(args, "-c", src, "-o", obj)
}

// objectName keeps sources with the same base name in different directories apart
func objectName(src string) string {
	sum := sha256.Sum256([]byte(src))
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))

	return fmt.Sprintf("%s-%s.o", base, hex.EncodeToString(sum[:4]))
}
