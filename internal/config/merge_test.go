package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkspace() *Workspace {
	return &Workspace{
		Tool: ToolSettings{
			Name:         DefaultToolName,
			Version:      "1.4.2",
			DownloadURL:  DefaultDownloadURL,
			ChecksumURL:  DefaultChecksumURL,
			Verify:       true,
			MaxRetries:   DefaultMaxRetries,
			RetryBackoff: DefaultRetryBackoff,
			RetryInitial: DefaultRetryInitial,
			RetryMax:     DefaultRetryMax,
			Retention:    DefaultRetention,
			Dir:          "/tmp/tools",
		},
		Cache: CacheSettings{
			Dir:     "/tmp/cache",
			Enabled: true,
			Freshness: map[string]time.Duration{
				KindValidate: DefaultFreshnessValidate,
				KindGenerate: DefaultFreshnessGenerate,
				KindDocs:     DefaultFreshnessDocs,
			},
			CacheFailures: map[string]bool{
				KindValidate: true,
				KindGenerate: false,
				KindDocs:     false,
			},
			MaxOutputBytes: DefaultMaxOutputBytes,
		},
		Timeout:       DefaultTimeout,
		Workers:       DefaultWorkers,
		WatchDebounce: DefaultWatchDebounce,
	}
}

func TestMergeProjectOverridesWorkspace(t *testing.T) {
	w := testWorkspace()

	p := &Project{Project: "billing"}
	p.Tool.Version = "2.0.0"
	p.Cache.Freshness = map[string]string{"generate": "30m"}
	p.Operations = map[string]ProjectOp{
		"validate": {Args: []string{"--strict"}, Timeout: "90s", Retries: 1},
	}

	r, err := Merge(w, p, t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "billing", r.Project)
	assert.Equal(t, "2.0.0", r.Tool.Version)
	assert.Equal(t, 30*time.Minute, r.FreshnessFor(KindGenerate))
	assert.Equal(t, DefaultFreshnessValidate, r.FreshnessFor(KindValidate), "untouched windows keep workspace values")

	op := r.Op(KindValidate)
	assert.Equal(t, []string{"--strict"}, op.Args)
	assert.Equal(t, 90*time.Second, op.Timeout)
	assert.Equal(t, 1, op.Retries)
}

func TestMergeIsTotal(t *testing.T) {
	w := testWorkspace()

	// Project configures only one operation; every kind must still be covered
	p := &Project{Project: "billing"}
	p.Operations = map[string]ProjectOp{
		"generate": {Args: []string{"--lang", "go"}},
	}

	r, err := Merge(w, p, t.TempDir())
	require.NoError(t, err)

	for _, kind := range []string{KindValidate, KindGenerate, KindDocs} {
		op, ok := r.Operations[kind]
		require.True(t, ok, "missing settings for %s", kind)
		assert.NotNil(t, op.Env)
		assert.Equal(t, DefaultTimeout, op.Timeout, "unset timeouts fall back to the workspace default for %s", kind)

		_, ok = r.Cache.Freshness[kind]
		assert.True(t, ok)
	}

	assert.Equal(t, "schemas", r.SchemaDir)
	assert.Equal(t, "gen", r.OutputDir)
	assert.Equal(t, []string{".yaml", ".yml", ".json"}, r.Include)
}

func TestMergeDotEnvBelowExplicitEnv(t *testing.T) {
	w := testWorkspace()

	p := &Project{Project: "billing"}
	p.DotEnv = map[string]string{"SCHEMA_REGISTRY": "https://dev.example.com", "EXTRA": "from-dotenv"}
	p.Operations = map[string]ProjectOp{
		"validate": {Env: map[string]string{"SCHEMA_REGISTRY": "https://prod.example.com"}},
	}

	r, err := Merge(w, p, t.TempDir())
	require.NoError(t, err)

	env := r.Op(KindValidate).Env
	assert.Equal(t, "https://prod.example.com", env["SCHEMA_REGISTRY"], "explicit env wins over .env")
	assert.Equal(t, "from-dotenv", env["EXTRA"])

	// Operations without explicit env still see .env
	assert.Equal(t, "from-dotenv", r.Op(KindDocs).Env["EXTRA"])
}

func TestMergeCacheOverrides(t *testing.T) {
	w := testWorkspace()

	off := false
	cacheOn := true
	p := &Project{Project: "billing"}
	p.Cache.Enabled = &off
	p.Cache.Failures = map[string]*bool{"generate": &cacheOn}

	r, err := Merge(w, p, t.TempDir())
	require.NoError(t, err)

	assert.False(t, r.Cache.Enabled)
	assert.True(t, r.CacheFailuresFor(KindGenerate))
	assert.True(t, r.CacheFailuresFor(KindValidate), "untouched policies keep workspace values")
}

func TestMergeNormalizesExtensions(t *testing.T) {
	w := testWorkspace()

	p := &Project{Project: "billing", Include: []string{"YAML", ".Json", " proto "}}

	r, err := Merge(w, p, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, []string{".yaml", ".json", ".proto"}, r.Include)
}

func TestMergeErrors(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Project)
		errContains string
	}{
		{
			name:        "bad freshness duration",
			mutate:      func(p *Project) { p.Cache.Freshness = map[string]string{"validate": "soon"} },
			errContains: "cache.freshness.validate",
		},
		{
			name:        "negative freshness",
			mutate:      func(p *Project) { p.Cache.Freshness = map[string]string{"docs": "-1h"} },
			errContains: "must not be negative",
		},
		{
			name:        "unknown kind in freshness",
			mutate:      func(p *Project) { p.Cache.Freshness = map[string]string{"deploy": "1h"} },
			errContains: `unknown operation kind "deploy"`,
		},
		{
			name:        "unknown kind in operations",
			mutate:      func(p *Project) { p.Operations = map[string]ProjectOp{"deploy": {}} },
			errContains: `unknown operation kind "deploy"`,
		},
		{
			name:        "bad operation timeout",
			mutate:      func(p *Project) { p.Operations = map[string]ProjectOp{"validate": {Timeout: "fast"}} },
			errContains: "operations.validate.timeout",
		},
		{
			name:        "zero operation timeout",
			mutate:      func(p *Project) { p.Operations = map[string]ProjectOp{"validate": {Timeout: "0s"}} },
			errContains: "must be positive",
		},
		{
			name:        "negative retries",
			mutate:      func(p *Project) { p.Operations = map[string]ProjectOp{"validate": {Retries: -1}} },
			errContains: "retries",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := &Project{Project: "billing"}
			test.mutate(p)

			_, err := Merge(testWorkspace(), p, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errContains)
		})
	}
}
