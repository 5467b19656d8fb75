package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Merge combines the workspace configuration with one project's overrides
// into a fully-populated Resolved. Precedence is project over workspace over
// defaults; the result covers every field and every operation kind, so
// downstream code never consults defaults again.
func Merge(w *Workspace, p *Project, root string) (*Resolved, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}

	r := &Resolved{
		Project:       p.Project,
		Root:          absRoot,
		SchemaDir:     p.SchemaDir,
		OutputDir:     p.OutputDir,
		Include:       normalizeExtensions(p.Include),
		Tool:          w.Tool,
		Workers:       w.Workers,
		WatchDebounce: w.WatchDebounce,
		MetricsListen: w.MetricsListen,
	}

	if r.SchemaDir == "" {
		r.SchemaDir = "schemas"
	}

	if r.OutputDir == "" {
		r.OutputDir = "gen"
	}

	if p.Tool.Version != "" {
		r.Tool.Version = p.Tool.Version
	}

	if p.Tool.Path != "" {
		r.Tool.Path = p.Tool.Path
	}

	if err := mergeCache(&r.Cache, &w.Cache, p); err != nil {
		return nil, err
	}

	if err := mergeOperations(r, w, p); err != nil {
		return nil, err
	}

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration for project %q: %w", p.Project, err)
	}

	return r, nil
}

// mergeCache copies the workspace cache settings and applies the project's
// overrides, parsing duration strings as it goes.
func mergeCache(dst *CacheSettings, src *CacheSettings, p *Project) error {
	dst.Dir = src.Dir
	dst.Enabled = src.Enabled
	dst.MaxOutputBytes = src.MaxOutputBytes

	dst.Freshness = make(map[string]time.Duration, len(kindNames))
	dst.CacheFailures = make(map[string]bool, len(kindNames))

	for _, kind := range kindNames {
		dst.Freshness[kind] = src.Freshness[kind]
		dst.CacheFailures[kind] = src.CacheFailures[kind]
	}

	if p.Cache.Enabled != nil {
		dst.Enabled = *p.Cache.Enabled
	}

	for kind, raw := range p.Cache.Freshness {
		if !isKnownKind(kind) {
			return fmt.Errorf("unknown operation kind %q in cache.freshness", kind)
		}

		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid cache.freshness.%s: %w", kind, err)
		}

		if d < 0 {
			return fmt.Errorf("cache.freshness.%s must not be negative", kind)
		}

		dst.Freshness[kind] = d
	}

	for kind, v := range p.Cache.Failures {
		if !isKnownKind(kind) {
			return fmt.Errorf("unknown operation kind %q in cache.failures", kind)
		}

		if v != nil {
			dst.CacheFailures[kind] = *v
		}
	}

	return nil
}

// mergeOperations builds the per-kind settings table. Every kind gets an
// entry; the environment layers .env values under the explicit per-operation
// env overrides.
func mergeOperations(r *Resolved, w *Workspace, p *Project) error {
	for kind := range p.Operations {
		if !isKnownKind(kind) {
			return fmt.Errorf("unknown operation kind %q in operations", kind)
		}
	}

	r.Operations = make(map[string]OpSettings, len(kindNames))

	for _, kind := range kindNames {
		op := OpSettings{
			Args:    nil,
			Env:     map[string]string{},
			Skip:    false,
			Timeout: w.Timeout,
			Retries: 0,
		}

		for k, v := range p.DotEnv {
			op.Env[k] = v
		}

		if po, ok := p.Operations[kind]; ok {
			op.Args = append([]string(nil), po.Args...)
			op.Skip = po.Skip
			op.Retries = po.Retries

			for k, v := range po.Env {
				op.Env[k] = v
			}

			if po.Timeout != "" {
				d, err := time.ParseDuration(po.Timeout)
				if err != nil {
					return fmt.Errorf("invalid operations.%s.timeout: %w", kind, err)
				}

				if d <= 0 {
					return fmt.Errorf("operations.%s.timeout must be positive", kind)
				}

				op.Timeout = d
			}

			if op.Retries < 0 {
				return fmt.Errorf("operations.%s.retries must not be negative", kind)
			}
		}

		r.Operations[kind] = op
	}

	return nil
}

// normalizeExtensions lowercases the include list and guarantees a leading
// dot. An empty list falls back to the schema file defaults.
func normalizeExtensions(exts []string) []string {
	if len(exts) == 0 {
		return []string{".yaml", ".yml", ".json"}
	}

	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}

		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}

		out = append(out, ext)
	}

	return out
}

func isKnownKind(kind string) bool {
	for _, k := range kindNames {
		if k == kind {
			return true
		}
	}

	return false
}
