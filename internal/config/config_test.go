package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResolved() *Resolved {
	return &Resolved{
		Project:   "billing",
		Root:      filepath.Join("/", "work", "billing"),
		SchemaDir: "schemas",
		OutputDir: "gen",
		Include:   []string{".yaml", ".yml", ".json"},
		Tool: ToolSettings{
			Name:         "schema-engine",
			Version:      "1.4.2",
			DownloadURL:  DefaultDownloadURL,
			ChecksumURL:  DefaultChecksumURL,
			Verify:       true,
			MaxRetries:   3,
			RetryBackoff: "exponential",
			RetryInitial: DefaultRetryInitial,
			RetryMax:     DefaultRetryMax,
			Retention:    DefaultRetention,
			Dir:          "/tmp/tools",
		},
		Cache: CacheSettings{
			Dir:     "/tmp/cache",
			Enabled: true,
			Freshness: map[string]time.Duration{
				KindValidate: 24 * time.Hour,
				KindGenerate: time.Hour,
				KindDocs:     time.Hour,
			},
			CacheFailures: map[string]bool{
				KindValidate: true,
				KindGenerate: false,
				KindDocs:     false,
			},
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		Operations: map[string]OpSettings{
			KindValidate: {Args: []string{"--strict"}, Env: map[string]string{}, Timeout: time.Minute},
			KindGenerate: {Args: []string{"--lang", "go"}, Env: map[string]string{}, Timeout: time.Minute},
			KindDocs:     {Env: map[string]string{}, Timeout: time.Minute},
		},
		Workers:       4,
		WatchDebounce: DefaultWatchDebounce,
	}
}

func TestResolvedPaths(t *testing.T) {
	r := testResolved()

	assert.Equal(t, filepath.Join(r.Root, "schemas"), r.SchemaPath())
	assert.Equal(t, filepath.Join(r.Root, "gen"), r.OutputPath())
}

func TestResolvedPolicyLookups(t *testing.T) {
	r := testResolved()

	assert.Equal(t, 24*time.Hour, r.FreshnessFor(KindValidate))
	assert.Equal(t, time.Hour, r.FreshnessFor(KindGenerate))
	assert.True(t, r.CacheFailuresFor(KindValidate))
	assert.False(t, r.CacheFailuresFor(KindGenerate))
	assert.Equal(t, []string{"--strict"}, r.Op(KindValidate).Args)
}

func TestHashViewExcludesVolatileFields(t *testing.T) {
	r := testResolved()

	view := r.HashView(KindValidate)

	assert.Equal(t, "1.4.2", view["tool_version"])
	assert.Equal(t, "schemas", view["schema_dir"])
	assert.Equal(t, []string{"--strict"}, view["args"])

	// Timeout, workers and cache policy must not leak into the fingerprint
	_, hasTimeout := view["timeout"]
	_, hasWorkers := view["workers"]
	assert.False(t, hasTimeout)
	assert.False(t, hasWorkers)
}

func TestHashViewCopiesEnv(t *testing.T) {
	r := testResolved()
	op := r.Operations[KindValidate]
	op.Env = map[string]string{"SCHEMA_LINT": "all"}
	r.Operations[KindValidate] = op

	view := r.HashView(KindValidate)

	env, ok := view["env"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "all", env["SCHEMA_LINT"])

	// Mutating the view must not reach the config
	env["SCHEMA_LINT"] = "none"
	assert.Equal(t, "all", r.Op(KindValidate).Env["SCHEMA_LINT"])
}

func TestResolvedValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Resolved)
		errContains string
	}{
		{
			name:   "valid config passes",
			mutate: func(r *Resolved) {},
		},
		{
			name:        "missing project name",
			mutate:      func(r *Resolved) { r.Project = "" },
			errContains: "project name",
		},
		{
			name: "missing version without local path",
			mutate: func(r *Resolved) {
				r.Tool.Version = ""
				r.Tool.Path = ""
			},
			errContains: "tool version",
		},
		{
			name: "local path excuses missing version",
			mutate: func(r *Resolved) {
				r.Tool.Version = ""
				r.Tool.Path = "/usr/local/bin/schema-engine"
			},
		},
		{
			name:        "zero max retries",
			mutate:      func(r *Resolved) { r.Tool.MaxRetries = 0 },
			errContains: "max_retries",
		},
		{
			name:        "bad backoff mode",
			mutate:      func(r *Resolved) { r.Tool.RetryBackoff = "quadratic" },
			errContains: "backoff",
		},
		{
			name:        "missing operation settings",
			mutate:      func(r *Resolved) { delete(r.Operations, KindDocs) },
			errContains: "operation settings missing",
		},
		{
			name:        "missing freshness window",
			mutate:      func(r *Resolved) { delete(r.Cache.Freshness, KindGenerate) },
			errContains: "freshness window missing",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := testResolved()
			test.mutate(r)

			err := r.Validate()
			if test.errContains == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.errContains)
			}
		})
	}
}
