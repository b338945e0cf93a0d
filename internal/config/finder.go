package config

import (
	"os"
	"path/filepath"
)

// LocalConfigName is the base name of project configuration files
const LocalConfigName = ".ccb"

// ConfigExts are the file extensions viper is asked to read, in lookup order
var ConfigExts = []string{"yml", "yaml", "json", "toml"}

// FindLocalConfig returns the nearest .ccb.<ext> file in dir or one of its
// parents, or "" when there is none. A relative dir is taken from the working
// directory so that the search still reaches the parents.
func FindLocalConfig(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		if path := configIn(dir); path != "" {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}

		dir = parent
	}
}

// configIn returns the first regular config file in dir
func configIn(dir string) string {
	for _, ext := range ConfigExts {
		path := filepath.Join(dir, LocalConfigName+"."+ext)

		info, err := os.Stat(path)
		if err == nil && info.Mode().IsRegular() {
			return path
		}
	}

	return ""
}
