package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables read by viper
const EnvPrefix = "CCB"

// Loader handles configuration loading from various sources
type Loader struct {
	// userConfigDir returns the per-user configuration directory
	userConfigDir func() (string, error)
	// getwd returns the directory the local config search starts from
	getwd func() (string, error)
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		userConfigDir: os.UserConfigDir,
		getwd:         os.Getwd,
	}
}

// LoadForBuild loads configuration for build, check and history commands
func (l *Loader) LoadForBuild(cmd *cobra.Command) (*Config, error) {
	l.setupViperDefaults()
	l.bindEnv()
	l.loadGlobalConfig()
	l.loadLocalConfig()
	l.bindCommandFlags(cmd)

	return Load()
}

// setupViperDefaults sets up default values for viper
func (l *Loader) setupViperDefaults() {
	viper.SetDefault("build_root", DefaultBuildRoot)
	viper.SetDefault("compiler", DefaultCompiler)
	viper.SetDefault("cuda_compiler", DefaultCUDACompiler)
	viper.SetDefault("archiver", DefaultArchiver)
	viper.SetDefault("cache_dir", DefaultCacheDir)
	viper.SetDefault("jobs", DefaultJobs)
	viper.SetDefault("verbose", DefaultVerbose)
}

// bindEnv maps CCB_* variables plus the conventional CC, AR and CFLAGS
func (l *Loader) bindEnv() {
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("compiler", EnvPrefix+"_COMPILER", "CC")
	_ = viper.BindEnv("archiver", EnvPrefix+"_ARCHIVER", "AR")
	_ = viper.BindEnv("cflags", EnvPrefix+"_CFLAGS", "CFLAGS")
}

// loadGlobalConfig loads global configuration from the user config directory
func (l *Loader) loadGlobalConfig() {
	base, err := l.userConfigDir()
	if err != nil || base == "" {
		return
	}

	globalDir := filepath.Join(base, "ccb")
	for _, ext := range ConfigExts {
		globalPath := filepath.Join(globalDir, "config."+ext)

		if _, err := os.Stat(globalPath); err == nil {
			viper.SetConfigFile(globalPath)

			if err := viper.MergeInConfig(); err == nil {
				break
			}
		}
	}
}

// loadLocalConfig loads the nearest .ccb.* file and records its directory as the project directory
func (l *Loader) loadLocalConfig() {
	wd, err := l.getwd()
	if err != nil {
		return // silently ignore, config.Load() will handle validation
	}

	localPath := FindLocalConfig(wd)
	if localPath == "" {
		return
	}

	viper.SetConfigFile(localPath)
	if err := viper.MergeInConfig(); err == nil {
		viper.Set("project_dir", filepath.Dir(localPath))
	}
}

// bindCommandFlags binds command flags to viper
func (l *Loader) bindCommandFlags(cmd *cobra.Command) {
	for key, flag := range map[string]string{
		"build_root": "build-root",
		"compiler":   "compiler",
		"archiver":   "archiver",
		"jobs":       "jobs",
		"verbose":    "verbose",
		"no_cache":   "no-cache",
		"force":      "force",
		"cache_dir":  "cache-dir",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}
