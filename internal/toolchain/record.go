package toolchain

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// recordFile sits next to each downloaded binary in its version directory.
const recordFile = "record.json"

// Record describes one downloaded, verified engine binary. The manager is
// the sole writer; callers treat the path as read-only.
type Record struct {
	// Name of the engine
	Name string `json:"name"`

	// Version as requested
	Version string `json:"version"`

	// OS and Arch the binary was fetched for
	OS   string `json:"os"`
	Arch string `json:"arch"`

	// Path to the executable
	Path string `json:"path"`

	// SHA256 of the verified content, lowercase hex
	SHA256 string `json:"sha256"`

	// Size in bytes
	Size int64 `json:"size"`

	// Attempts the successful download needed
	Attempts int `json:"attempts"`

	// DownloadedAt is when the binary was fetched and verified
	DownloadedAt time.Time `json:"downloaded_at"`

	// LastUsedAt is updated on every resolution, drives cleanup
	LastUsedAt time.Time `json:"last_used_at"`
}

// Platform returns the record's download coordinate.
func (r *Record) Platform() Platform {
	return Platform{OS: r.OS, Arch: r.Arch}
}

// readRecord loads the record from a version directory.
func readRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, recordFile))
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, recordFile), err)
	}

	return &rec, nil
}

// writeRecord persists the record into its version directory.
func writeRecord(dir string, rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, recordFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}
