package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/config"
)

var initCmd = &cobra.Command{
	Use:          "init [dir]",
	Short:        "Create a schemactl.yaml for a new project",
	Long:         `Create a starter schemactl.yaml and the schema directory. The project name is the directory name.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runInit,
}

const projectTemplate = `project: %s

# Directories are relative to this file.
schema_dir: schemas
output_dir: gen

tool:
  # schema-engine version to download and run.
  version: "1.0.0"

operations:
  validate: {}
  generate: {}
  docs:
    skip: true
`

func runInit(cmd *cobra.Command, args []string) error {
	return scaffoldProject(cmd, targetDir(args))
}

func scaffoldProject(cmd *cobra.Command, dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", abs, err)
	}

	path := filepath.Join(abs, config.ProjectFile)
	if _, err := os.Stat(path); err == nil {
		return &codes.UsageError{Err: fmt.Errorf("%s already exists in %s", config.ProjectFile, abs)}
	}

	name := filepath.Base(abs)

	content := fmt.Sprintf(projectTemplate, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", config.ProjectFile, err)
	}

	if err := os.MkdirAll(filepath.Join(abs, "schemas"), 0o755); err != nil {
		return fmt.Errorf("failed to create schema directory: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "created %s for project %s\n", config.ProjectFile, name)

	return nil
}
