package operation

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// CollectOutputs lists every regular file under dir as sorted slash paths
// relative to dir. A missing directory yields an empty list, matching an
// operation that produced nothing.
func CollectOutputs(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	var files []string

	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output directory: %w", err)
	}

	sort.Strings(files)

	return files, nil
}

// VerifyOutputs reports whether every recorded output still exists under
// dir. A deleted artifact turns a would-be cache hit into a miss so the
// files get regenerated. An empty record trivially verifies.
func VerifyOutputs(dir string, files []string) bool {
	for _, f := range files {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(f))); err != nil {
			return false
		}
	}

	return true
}
