package fingerprint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(t, err)
	err = os.WriteFile(path, []byte(content), 0o644)
	require.NoError(t, err)
}

func TestBuildDeterminism(t *testing.T) {
	root := t.TempDir()
	schema := filepath.Join(root, "schema.yaml")
	writeFile(t, schema, "name: test\nversion: 1.0.0")

	view := map[string]any{"tool_version": "1.0.0"}

	fp1, err := Build("validate", view, root, []string{schema})
	require.NoError(t, err)

	fp2, err := Build("validate", view, root, []string{schema})
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "same inputs must produce the same fingerprint")

	// Golden value pins the digest stream format: a change here breaks every
	// existing cache on upgrade and must be deliberate.
	assert.Equal(t, Fingerprint("97efb5525a57b018ba3da81149127ca7cf9c1565bcb79ffef898c8eba322a033"), fp1)
}

func TestBuildChangesWithContent(t *testing.T) {
	root := t.TempDir()
	schema := filepath.Join(root, "schema.yaml")
	writeFile(t, schema, "name: test\nversion: 1.0.0")

	view := map[string]any{"tool_version": "1.0.0"}

	fp1, err := Build("validate", view, root, []string{schema})
	require.NoError(t, err)

	// One byte changed
	writeFile(t, schema, "name: test\nversion: 1.0.1")

	fp2, err := Build("validate", view, root, []string{schema})
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2, "a one-byte content change must change the fingerprint")
}

func TestBuildIndependentOfFileOrder(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a.yaml")
	b := filepath.Join(root, "b.yaml")
	writeFile(t, a, "a: 1")
	writeFile(t, b, "b: 2")

	view := map[string]any{"tool_version": "1.0.0"}

	fp1, err := Build("validate", view, root, []string{a, b})
	require.NoError(t, err)

	fp2, err := Build("validate", view, root, []string{b, a})
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2, "file discovery order must not affect the fingerprint")
}

func TestBuildSeparatesContributions(t *testing.T) {
	root := t.TempDir()
	schema := filepath.Join(root, "schema.yaml")
	writeFile(t, schema, "name: test")

	base := map[string]any{"tool_version": "1.0.0", "args": []string{"--strict"}}

	fp, err := Build("validate", base, root, []string{schema})
	require.NoError(t, err)

	// Different operation kind
	fpKind, err := Build("generate", base, root, []string{schema})
	require.NoError(t, err)
	assert.NotEqual(t, fp, fpKind)

	// Different tool version
	fpVersion, err := Build("validate", map[string]any{"tool_version": "1.1.0", "args": []string{"--strict"}}, root, []string{schema})
	require.NoError(t, err)
	assert.NotEqual(t, fp, fpVersion)

	// Different args
	fpArgs, err := Build("validate", map[string]any{"tool_version": "1.0.0", "args": []string{"--lax"}}, root, []string{schema})
	require.NoError(t, err)
	assert.NotEqual(t, fp, fpArgs)
}

func TestBuildStableAcrossCheckoutLocations(t *testing.T) {
	view := map[string]any{"tool_version": "1.0.0"}

	rootA := t.TempDir()
	fileA := filepath.Join(rootA, "schemas", "user.yaml")
	writeFile(t, fileA, "name: user")

	rootB := t.TempDir()
	fileB := filepath.Join(rootB, "schemas", "user.yaml")
	writeFile(t, fileB, "name: user")

	fpA, err := Build("validate", view, rootA, []string{fileA})
	require.NoError(t, err)

	fpB, err := Build("validate", view, rootB, []string{fileB})
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB, "paths are relativized so checkout location must not matter")
}

func TestBuildInputUnreadable(t *testing.T) {
	root := t.TempDir()
	missing := filepath.Join(root, "missing.yaml")

	_, err := Build("validate", map[string]any{}, root, []string{missing})
	require.Error(t, err)

	var unreadable *InputUnreadableError
	require.True(t, errors.As(err, &unreadable))
	assert.Equal(t, missing, unreadable.Path)
}

func TestComputeInputHashes(t *testing.T) {
	root := t.TempDir()
	schema := filepath.Join(root, "schemas", "user.yaml")
	writeFile(t, schema, "name: user")

	d, err := Compute("validate", map[string]any{"tool_version": "1.0.0"}, root, []string{schema})
	require.NoError(t, err)

	want, err := HashFile(schema)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"schemas/user.yaml": want}, d.InputHashes)
	assert.NotEmpty(t, d.Fingerprint)
}

func TestCollectInputs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.yaml"), "b")
	writeFile(t, filepath.Join(root, "a.yml"), "a")
	writeFile(t, filepath.Join(root, "nested", "c.json"), "{}")
	writeFile(t, filepath.Join(root, "README.md"), "docs")
	writeFile(t, filepath.Join(root, ".hidden", "d.yaml"), "d")
	writeFile(t, filepath.Join(root, "node_modules", "e.yaml"), "e")

	files, err := CollectInputs(root, []string{".yaml", ".yml", ".json"})
	require.NoError(t, err)

	want := []string{
		filepath.Join(root, "a.yml"),
		filepath.Join(root, "b.yaml"),
		filepath.Join(root, "nested", "c.json"),
	}
	assert.Equal(t, want, files)
}

func TestCollectInputsCaseInsensitiveExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "upper.YAML"), "u")

	files, err := CollectInputs(root, []string{".yaml"})
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestCollectInputsMissingDir(t *testing.T) {
	_, err := CollectInputs(filepath.Join(t.TempDir(), "nope"), []string{".yaml"})
	require.Error(t, err)

	var unreadable *InputUnreadableError
	assert.True(t, errors.As(err, &unreadable))
}

func TestFingerprintShort(t *testing.T) {
	assert.Equal(t, "abcdef123456", Fingerprint("abcdef1234567890").Short())
	assert.Equal(t, "abc", Fingerprint("abc").Short())
}
