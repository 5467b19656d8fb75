// Package fingerprint derives deterministic cache keys for schema operations.
//
// A fingerprint covers everything that can change an operation's outcome:
// the operation kind, the hash-relevant configuration view, the resolved tool
// version (inside the view), and the content of every input file in scope.
// Identical inputs always produce the identical fingerprint regardless of
// process, platform, file-discovery order or prior cache state:
//
//  1. Input files are hashed by content, never by mtime, and combined in
//     lexicographically sorted relative-path order
//  2. The configuration view is serialized as canonical JSON (sorted keys)
//  3. Records in the digest stream are length-delimited by field markers and
//     newlines so concatenation cannot be ambiguous
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Fingerprint is a deterministic digest identifying one unit of cacheable
// work. Opaque to callers; compare with ==.
type Fingerprint string

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns a truncated form for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}

	return string(f[:12])
}

// InputUnreadableError reports an input file that could not be read while
// fingerprinting. The caller decides whether to treat it as a cache-miss or a
// hard error.
type InputUnreadableError struct {
	Path string
	Err  error
}

func (e *InputUnreadableError) Error() string {
	return fmt.Sprintf("input file %s unreadable: %v", e.Path, e.Err)
}

func (e *InputUnreadableError) Unwrap() error {
	return e.Err
}

// Digest is the full result of a fingerprint computation: the combined
// fingerprint plus the individual content hashes it was built from, keyed by
// slash-separated path relative to the project root.
type Digest struct {
	Fingerprint Fingerprint
	InputHashes map[string]string
}

// Build computes the fingerprint for one operation. view is the
// hash-relevant configuration projection (volatile fields already excluded),
// root is the project root used to relativize file paths, files are the input
// files in any order.
//
// Pure function over its inputs; safe for concurrent use.
func Build(kind string, view map[string]any, root string, files []string) (Fingerprint, error) {
	d, err := Compute(kind, view, root, files)
	if err != nil {
		return "", err
	}

	return d.Fingerprint, nil
}

// Compute is Build plus the per-file content hashes, so a caller storing a
// cache entry does not hash everything twice.
func Compute(kind string, view map[string]any, root string, files []string) (*Digest, error) {
	h := sha256.New()

	fmt.Fprintf(h, "operation:%s\n", kind)

	cfg, err := json.Marshal(view)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize config view: %w", err)
	}

	h.Write([]byte("config:"))
	h.Write(cfg)
	h.Write([]byte("\n"))

	type input struct {
		rel string
		abs string
	}

	inputs := make([]input, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, f)
		if err != nil || strings.HasPrefix(rel, "..") {
			// Files outside the root keep their full path
			rel = f
		}

		inputs = append(inputs, input{rel: filepath.ToSlash(rel), abs: f})
	}

	sort.Slice(inputs, func(i, j int) bool { return inputs[i].rel < inputs[j].rel })

	hashes := make(map[string]string, len(inputs))
	for _, in := range inputs {
		sum, err := HashFile(in.abs)
		if err != nil {
			return nil, &InputUnreadableError{Path: in.abs, Err: err}
		}

		hashes[in.rel] = sum
		fmt.Fprintf(h, "file:%s:%s\n", in.rel, sum)
	}

	return &Digest{
		Fingerprint: Fingerprint(hex.EncodeToString(h.Sum(nil))),
		InputHashes: hashes,
	}, nil
}

// HashFile returns the hex sha256 of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// IgnoredDir reports whether a directory name is outside input scope.
// Hidden directories and the common dependency dirs never contribute
// schema files.
func IgnoredDir(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules" || name == "vendor"
}

// CollectInputs walks dir and returns the files matching the given
// extensions, sorted. Directories rejected by IgnoredDir are skipped.
// Extensions are matched case-insensitively and must include the leading
// dot.
func CollectInputs(dir string, exts []string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &InputUnreadableError{Path: path, Err: err}
		}

		if d.IsDir() {
			if path != dir && IgnoredDir(d.Name()) {
				return fs.SkipDir
			}

			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		for _, want := range exts {
			if ext == want {
				files = append(files, path)
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)

	return files, nil
}
