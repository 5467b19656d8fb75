// Package config loads and merges schemactl configuration.
//
// Configuration comes from three layers with increasing precedence:
//
//  1. Built-in defaults (registered with viper)
//  2. Workspace config (.schemactl.yaml, plus SCHEMACTL_* environment)
//  3. Project config (schemactl.yaml found by walking up from the target)
//
// The merge is an explicit, total function over named fields (see merge.go).
// Everything downstream of this package consumes a fully-populated Resolved
// and never re-checks for missing values.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Default configuration values
const (
	DefaultToolName    = "schema-engine"
	DefaultDownloadURL = "https://releases.schemakit.dev/schema-engine/{version}/{os}/{arch}/schema-engine{ext}"
	DefaultChecksumURL = "https://releases.schemakit.dev/schema-engine/{version}/checksums.txt"

	DefaultMaxRetries   = 3
	DefaultRetryBackoff = "exponential"
	DefaultRetryInitial = 500 * time.Millisecond
	DefaultRetryMax     = 10 * time.Second
	DefaultRetention    = 720 * time.Hour

	DefaultFreshnessValidate = 24 * time.Hour
	DefaultFreshnessGenerate = 1 * time.Hour
	DefaultFreshnessDocs     = 1 * time.Hour

	DefaultTimeout        = 5 * time.Minute
	DefaultWorkers        = 4
	DefaultWatchDebounce  = 500 * time.Millisecond
	DefaultMaxOutputBytes = 64 * 1024
)

// Operation kind names used as policy-table keys. The operation package
// defines the typed enum; these are the canonical spellings.
const (
	KindValidate = "validate"
	KindGenerate = "generate"
	KindDocs     = "docs"
)

// kindNames lists every operation kind a policy table must cover.
var kindNames = []string{KindValidate, KindGenerate, KindDocs}

// ToolSettings describes the external schema engine and how to acquire it.
type ToolSettings struct {
	// Name of the engine binary (also the store subdirectory name)
	Name string

	// Version requested, e.g. "1.4.2"
	Version string

	// Path forces a local binary and skips download entirely
	Path string

	// DownloadURL is a template with {version}, {os}, {arch} and {ext} slots
	DownloadURL string

	// ChecksumURL is a template for the published sha256 checksum file
	ChecksumURL string

	// Verify toggles checksum verification of downloads
	Verify bool

	// MaxRetries bounds download attempts for transient failures
	MaxRetries int

	// RetryBackoff is one of "fixed", "linear", "exponential"
	RetryBackoff string

	// RetryInitial is the base delay between attempts
	RetryInitial time.Duration

	// RetryMax caps the computed delay
	RetryMax time.Duration

	// Retention is how long an unused version survives cleanup
	Retention time.Duration

	// Dir is the executable store root
	Dir string
}

// CacheSettings controls the operation result cache.
type CacheSettings struct {
	// Dir holds cache.db
	Dir string

	// Enabled toggles the cache entirely
	Enabled bool

	// Freshness windows per operation kind
	Freshness map[string]time.Duration

	// CacheFailures controls whether failed results are cached, per kind
	CacheFailures map[string]bool

	// MaxOutputBytes caps the stored stdout per entry
	MaxOutputBytes int
}

// OpSettings carries the per-operation invocation parameters.
type OpSettings struct {
	// Args passed to the engine after the operation subcommand
	Args []string

	// Env overrides merged onto the ambient environment
	Env map[string]string

	// Skip disables the operation for this project
	Skip bool

	// Timeout bounds a single engine invocation
	Timeout time.Duration

	// Retries allows re-running after a timeout (validate only; generation
	// may have partially written files and is never auto-retried)
	Retries int
}

// Resolved is the fully merged workspace+project configuration handed to the
// orchestrator. All maps are populated for every kind; no field is left to a
// downstream default.
type Resolved struct {
	// Project name, used for cache scoping
	Project string

	// Root is the absolute project directory (where schemactl.yaml lives)
	Root string

	// SchemaDir and OutputDir are relative to Root so fingerprints stay
	// stable across checkout locations
	SchemaDir string
	OutputDir string

	// Include lists the file extensions in fingerprint scope
	Include []string

	Tool       ToolSettings
	Cache      CacheSettings
	Operations map[string]OpSettings

	// Workers bounds parallel operations in run/watch mode
	Workers int

	WatchDebounce time.Duration
	MetricsListen string
}

// SchemaPath returns the absolute schema directory.
func (r *Resolved) SchemaPath() string {
	return filepath.Join(r.Root, r.SchemaDir)
}

// OutputPath returns the absolute output directory.
func (r *Resolved) OutputPath() string {
	return filepath.Join(r.Root, r.OutputDir)
}

// Op returns the settings for the given kind name.
func (r *Resolved) Op(kind string) OpSettings {
	return r.Operations[kind]
}

// FreshnessFor returns the cache freshness window for the given kind.
func (r *Resolved) FreshnessFor(kind string) time.Duration {
	return r.Cache.Freshness[kind]
}

// CacheFailuresFor reports whether failed results are cached for the kind.
func (r *Resolved) CacheFailuresFor(kind string) bool {
	return r.Cache.CacheFailures[kind]
}

// HashView returns the fingerprint-relevant projection of the configuration
// for one operation kind. Volatile fields (verbosity, timeouts, worker
// counts) are deliberately excluded; directories appear in their relative
// form.
func (r *Resolved) HashView(kind string) map[string]any {
	op := r.Op(kind)

	env := make(map[string]string, len(op.Env))
	for k, v := range op.Env {
		env[k] = v
	}

	return map[string]any{
		"tool_name":    r.Tool.Name,
		"tool_version": r.Tool.Version,
		"schema_dir":   filepath.ToSlash(r.SchemaDir),
		"output_dir":   filepath.ToSlash(r.OutputDir),
		"include":      append([]string(nil), r.Include...),
		"args":         append([]string(nil), op.Args...),
		"env":          env,
	}
}

// Validate checks the parts of a Resolved config that cannot be defaulted.
func (r *Resolved) Validate() error {
	if r.Project == "" {
		return fmt.Errorf("project name not set")
	}

	if r.Tool.Version == "" && r.Tool.Path == "" {
		return fmt.Errorf("tool version not set and no local tool path given")
	}

	if r.Tool.MaxRetries < 1 {
		return fmt.Errorf("tool max_retries must be at least 1, got %d", r.Tool.MaxRetries)
	}

	switch r.Tool.RetryBackoff {
	case "fixed", "linear", "exponential":
	default:
		return fmt.Errorf("invalid retry backoff %q", r.Tool.RetryBackoff)
	}

	for _, kind := range kindNames {
		if _, ok := r.Operations[kind]; !ok {
			return fmt.Errorf("operation settings missing for %q", kind)
		}

		if _, ok := r.Cache.Freshness[kind]; !ok {
			return fmt.Errorf("freshness window missing for %q", kind)
		}
	}

	return nil
}
