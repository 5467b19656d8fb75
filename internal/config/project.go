package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectFile is the per-project configuration file name.
const ProjectFile = "schemactl.yaml"

// Project is the schema of schemactl.yaml. Duration fields are strings in
// time.ParseDuration format ("30s", "2m") and are parsed during the merge.
type Project struct {
	Project   string   `yaml:"project"`
	SchemaDir string   `yaml:"schema_dir"`
	OutputDir string   `yaml:"output_dir"`
	Include   []string `yaml:"include"`

	Tool struct {
		Version string `yaml:"version"`
		Path    string `yaml:"path"`
	} `yaml:"tool"`

	Cache struct {
		Enabled   *bool             `yaml:"enabled"`
		Freshness map[string]string `yaml:"freshness"`
		Failures  map[string]*bool  `yaml:"failures"`
	} `yaml:"cache"`

	Operations map[string]ProjectOp `yaml:"operations"`

	// DotEnv holds variables read from the project's .env file. Populated by
	// LoadProject, not part of the YAML schema.
	DotEnv map[string]string `yaml:"-"`
}

// ProjectOp is one operation block of a project config.
type ProjectOp struct {
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`
	Skip    bool              `yaml:"skip"`
	Timeout string            `yaml:"timeout"`
	Retries int               `yaml:"retries"`
}

// LoadProject reads and strictly decodes the project config in dir, plus an
// optional .env file alongside it. Unknown YAML keys are rejected so typos
// fail loudly instead of silently falling back to defaults.
func LoadProject(dir string) (*Project, error) {
	path := filepath.Join(dir, ProjectFile)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project config: %w", err)
	}

	var p Project
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if p.Project == "" {
		p.Project = filepath.Base(dir)
	}

	// .env is optional; its variables sit below explicit env overrides
	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		vars, err := godotenv.Read(envPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", envPath, err)
		}

		p.DotEnv = vars
	}

	return &p, nil
}
