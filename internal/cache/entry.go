package cache

import "time"

// Entry represents one cached operation result
type Entry struct {
	// Fingerprint is the unique identifier for this cache entry, derived
	// from operation kind + config view + tool version + input content
	Fingerprint string `json:"fingerprint"`

	// Kind is the operation kind ("validate", "generate", "docs")
	Kind string `json:"kind"`

	// Project the entry belongs to, used for scoped invalidation
	Project string `json:"project"`

	// ToolVersion is the engine version that produced the result
	ToolVersion string `json:"tool_version"`

	// Success indicates whether the operation succeeded
	Success bool `json:"success"`

	// ExitCode the engine finished with
	ExitCode int `json:"exit_code,omitempty"`

	// Output is the captured stdout (possibly truncated)
	Output string `json:"output"`

	// ErrorText is the captured stderr for failed operations
	ErrorText string `json:"error_text,omitempty"`

	// OutputFiles lists files the operation wrote, relative to the output
	// directory (generation only)
	OutputFiles []string `json:"output_files,omitempty"`

	// InputHashes maps relative input path to its content sha256
	InputHashes map[string]string `json:"input_hashes,omitempty"`

	// CreatedAt is when this entry was stored
	CreatedAt time.Time `json:"created_at"`

	// TTL is the freshness window captured at store time
	TTL time.Duration `json:"ttl"`
}

// Expired reports whether the entry is past its freshness window at t. A
// zero TTL expires immediately.
func (e *Entry) Expired(t time.Time) bool {
	return !t.Before(e.CreatedAt.Add(e.TTL))
}
