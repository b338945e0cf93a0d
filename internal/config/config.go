package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/go-shellwords"
	"github.com/spf13/viper"

	"github.com/Norgate-AV/ccb/internal/archive"
)

// Default configuration values
const (
	DefaultBuildRoot    = "target/release/build"
	DefaultCompiler     = "cc"
	DefaultCUDACompiler = "nvcc"
	DefaultArchiver     = "ar"
	DefaultCacheDir     = ".ccb-cache"
	DefaultVerbose      = false
)

// DefaultJobs is the number of targets built concurrently
var DefaultJobs = runtime.NumCPU()

// Target describes one static archive and the inputs it is built from
type Target struct {
	// Logical output name; the archive is lib<Name>.a
	Name string `mapstructure:"name"`
	// Source files or doublestar globs
	Sources []string `mapstructure:"sources"`
	// Include directories, searched in order
	Includes []string `mapstructure:"includes"`
	// Extra compiler flags
	Flags []string `mapstructure:"flags"`
	// Compile with the CUDA compiler
	CUDA bool `mapstructure:"cuda"`
	// CUDA runtime linkage (none, static, shared)
	CUDART string `mapstructure:"cudart"`
}

// Holds the configuration options for ccb
type Config struct {
	// Directory relative paths are resolved against
	ProjectDir string
	// Root searched for previously built archives
	BuildRoot string
	// C/C++ compiler
	Compiler string
	// CUDA compiler
	CUDACompiler string
	// Static archiver
	Archiver string
	// Flags appended to every non-CUDA compile (from CFLAGS)
	ExtraFlags []string
	// Number of targets built concurrently
	Jobs int
	// Build ledger directory
	CacheDir string
	// Disable the build ledger
	NoCache bool
	// Rebuild regardless of staleness
	Force bool
	// Enable verbose output
	Verbose bool
	// Targets to build
	Targets []Target
}

func Load() (*Config, error) {
	cfg := &Config{
		ProjectDir:   viper.GetString("project_dir"),
		BuildRoot:    viper.GetString("build_root"),
		Compiler:     viper.GetString("compiler"),
		CUDACompiler: viper.GetString("cuda_compiler"),
		Archiver:     viper.GetString("archiver"),
		Jobs:         viper.GetInt("jobs"),
		CacheDir:     viper.GetString("cache_dir"),
		NoCache:      viper.GetBool("no_cache"),
		Force:        viper.GetBool("force"),
		Verbose:      viper.GetBool("verbose"),
	}

	extra, err := shellwords.Parse(viper.GetString("cflags"))
	if err != nil {
		return nil, fmt.Errorf("invalid cflags: %w", err)
	}

	if len(extra) > 0 {
		cfg.ExtraFlags = extra
	}

	if err := viper.UnmarshalKey("targets", &cfg.Targets); err != nil {
		return nil, fmt.Errorf("invalid targets: %w", err)
	}

	// Apply defaults if not set
	if cfg.ProjectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}

		cfg.ProjectDir = wd
	}

	if cfg.BuildRoot == "" {
		cfg.BuildRoot = DefaultBuildRoot
	}

	if cfg.Compiler == "" {
		cfg.Compiler = DefaultCompiler
	}

	if cfg.CUDACompiler == "" {
		cfg.CUDACompiler = DefaultCUDACompiler
	}

	if cfg.Archiver == "" {
		cfg.Archiver = DefaultArchiver
	}

	if cfg.CacheDir == "" {
		cfg.CacheDir = DefaultCacheDir
	}

	if cfg.Jobs == 0 {
		cfg.Jobs = DefaultJobs
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	abs, err := filepath.Abs(c.ProjectDir)
	if err != nil {
		return fmt.Errorf("invalid project directory: %v", err)
	}

	c.ProjectDir = abs
	c.BuildRoot = c.resolve(c.BuildRoot)
	c.CacheDir = c.resolve(c.CacheDir)

	if c.Jobs < 1 {
		return fmt.Errorf("invalid jobs: %d", c.Jobs)
	}

	seen := make(map[string]string, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]

		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i)
		}

		if err := archive.CheckName(t.Name); err != nil {
			return fmt.Errorf("target %d: %w", i, err)
		}

		// foo and libfoo.a share one archive
		stem := archive.Stem(t.Name)
		if prev, ok := seen[stem]; ok {
			if prev == t.Name {
				return fmt.Errorf("duplicate target: %s", t.Name)
			}

			return fmt.Errorf("targets %s and %s both build %s", prev, t.Name, archive.Name(stem))
		}

		seen[stem] = t.Name

		if !isValidCUDART(t.CUDART) {
			return fmt.Errorf("invalid cudart for target %s: %s", t.Name, t.CUDART)
		}

		// Resolve sources and include folders
		for j, src := range t.Sources {
			t.Sources[j] = c.resolve(src)
		}

		for j, dir := range t.Includes {
			if dir != "" {
				t.Includes[j] = c.resolve(dir)
			}
		}
	}

	return nil
}

// Target returns the configured target with the given name
func (c *Config) Target(name string) (Target, bool) {
	for _, t := range c.Targets {
		if t.Name == name {
			return t, true
		}
	}

	return Target{}, false
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(c.ProjectDir, path)
}

func isValidCUDART(mode string) bool {
	switch mode {
	case "", "none", "static", "shared":
		return true
	}

	return false
}
