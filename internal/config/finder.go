package config

import (
	"os"
	"path/filepath"
)

// FindProjectRoot walks up from dir looking for a schemactl.yaml and returns
// the directory containing it, or "" if none is found before the filesystem
// root.
func FindProjectRoot(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, ProjectFile)

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}

// FindWorkspaceConfig walks up from dir looking for a workspace config file
// (.schemactl.yaml or .schemactl.yml) and returns its path, or "" if none is
// found.
func FindWorkspaceConfig(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		for _, ext := range []string{"yaml", "yml"} {
			path := filepath.Join(dir, ".schemactl."+ext)

			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}

		dir = parent
	}

	return ""
}
