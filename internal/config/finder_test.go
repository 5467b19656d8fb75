package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindProjectRoot(t *testing.T) {
	tempDir := t.TempDir()
	projDir := filepath.Join(tempDir, "billing")
	deepDir := filepath.Join(projDir, "schemas", "v1")
	err := os.MkdirAll(deepDir, 0o755)
	require.NoError(t, err)

	err = os.WriteFile(filepath.Join(projDir, ProjectFile), []byte("project: billing\n"), 0o644)
	require.NoError(t, err)

	// Found in the directory itself
	assert.Equal(t, projDir, FindProjectRoot(projDir))

	// Found walking up from a nested directory
	assert.Equal(t, projDir, FindProjectRoot(deepDir))

	// Not found above the project
	assert.Equal(t, "", FindProjectRoot(tempDir))
}

func TestFindProjectRootIgnoresDirectories(t *testing.T) {
	tempDir := t.TempDir()

	// A directory named like the config file must not count
	err := os.MkdirAll(filepath.Join(tempDir, ProjectFile), 0o755)
	require.NoError(t, err)

	assert.Equal(t, "", FindProjectRoot(tempDir))
}

func TestFindWorkspaceConfig(t *testing.T) {
	tempDir := t.TempDir()
	subDir := filepath.Join(tempDir, "sub")
	err := os.Mkdir(subDir, 0o755)
	require.NoError(t, err)

	configYML := filepath.Join(tempDir, ".schemactl.yml")
	err = os.WriteFile(configYML, []byte("workers: 8\n"), 0o644)
	require.NoError(t, err)

	// Found in a parent
	assert.Equal(t, configYML, FindWorkspaceConfig(subDir))

	// .yaml wins over .yml in the same directory
	configYAML := filepath.Join(subDir, ".schemactl.yaml")
	err = os.WriteFile(configYAML, []byte("workers: 2\n"), 0o644)
	require.NoError(t, err)

	assert.Equal(t, configYAML, FindWorkspaceConfig(subDir))
}
