// Package toolchain resolves, downloads, verifies and caches versions of the
// external schema engine.
//
// The store layout is one directory per (version, os, arch) coordinate:
//
//	<dir>/<name>/<version>/<os>-<arch>/<name>[.exe]
//	<dir>/<name>/<version>/<os>-<arch>/record.json
//
// The manager is the sole writer of the store. Concurrent resolution of the
// same coordinate converges on a single network fetch; failure is surfaced to
// every waiter rather than retried independently by each.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/singleflight"

	"github.com/schemakit/schemactl/internal/config"
	"github.com/schemakit/schemactl/internal/fingerprint"
	"github.com/schemakit/schemactl/internal/metrics"
)

// Manager acquires and maintains engine binaries.
type Manager struct {
	settings config.ToolSettings
	client   *http.Client
	log      *slog.Logger
	recorder metrics.Recorder

	// sf deduplicates in-flight downloads per (version, os, arch)
	sf singleflight.Group

	mu   sync.Mutex
	pins map[string]int

	now func() time.Time
}

// Options configures a Manager. Zero fields get working defaults.
type Options struct {
	Settings config.ToolSettings
	Client   *http.Client
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// NewManager creates a Manager for the given tool settings.
func NewManager(opts Options) *Manager {
	m := &Manager{
		settings: opts.Settings,
		client:   opts.Client,
		log:      opts.Logger,
		recorder: opts.Recorder,
		pins:     make(map[string]int),
		now:      time.Now,
	}

	if m.client == nil {
		m.client = &http.Client{}
	}

	if m.log == nil {
		m.log = slog.Default()
	}

	if m.recorder == nil {
		m.recorder = metrics.NoopRecorder{}
	}

	return m
}

// ResolvePath returns a ready-to-execute local path for the version,
// transparently downloading it if absent or invalid. A configured local tool
// path short-circuits the store entirely.
func (m *Manager) ResolvePath(ctx context.Context, version string) (string, error) {
	if m.settings.Path != "" {
		abs, err := filepath.Abs(m.settings.Path)
		if err != nil {
			return "", fmt.Errorf("failed to resolve tool path: %w", err)
		}

		if _, err := os.Stat(abs); err != nil {
			return "", fmt.Errorf("local tool path %s: %w", abs, err)
		}

		return abs, nil
	}

	platform, err := HostPlatform()
	if err != nil {
		return "", err
	}

	v, err, _ := m.sf.Do(m.flightKey(version, platform), func() (any, error) {
		return m.resolve(ctx, version, platform)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Download fetches the version unconditionally, replacing any stored copy.
// Shares the in-flight dedup with ResolvePath.
func (m *Manager) Download(ctx context.Context, version string) (string, error) {
	platform, err := HostPlatform()
	if err != nil {
		return "", err
	}

	v, err, _ := m.sf.Do(m.flightKey(version, platform), func() (any, error) {
		return m.download(ctx, version, platform)
	})
	if err != nil {
		return "", err
	}

	return v.(string), nil
}

// Validate confirms a previously downloaded binary still matches its record
// and is executable. Detects tampering and disk corruption.
func (m *Manager) Validate(version string) bool {
	platform, err := HostPlatform()
	if err != nil {
		return false
	}

	rec, err := readRecord(m.versionDir(version, platform))
	if err != nil {
		return false
	}

	return m.verifyRecord(rec) == nil
}

// Pin marks a version as in use by an in-flight operation, protecting it
// from Cleanup. Callers must Unpin when done.
func (m *Manager) Pin(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pins[version]++
}

// Unpin releases one pin on the version.
func (m *Manager) Unpin(version string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.pins[version] <= 1 {
		delete(m.pins, version)
	} else {
		m.pins[version]--
	}
}

func (m *Manager) pinned(version string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.pins[version] > 0
}

// Cleanup removes versions whose last-used time exceeds the retention
// window. Pinned versions always survive. Returns the removed records.
func (m *Manager) Cleanup(retention time.Duration) ([]Record, error) {
	stale, err := m.Stale(retention)
	if err != nil {
		return nil, err
	}

	var removed []Record

	for _, rec := range stale {
		dir := m.versionDir(rec.Version, rec.Platform())
		if err := os.RemoveAll(dir); err != nil {
			return removed, fmt.Errorf("failed to remove %s: %w", dir, err)
		}

		m.log.Info("removed unused tool version", "version", rec.Version, "platform", rec.Platform().String(), "last_used", rec.LastUsedAt)
		removed = append(removed, rec)
	}

	return removed, nil
}

// Stale returns the records Cleanup would remove: unused past the retention
// window and not pinned by an in-flight operation.
func (m *Manager) Stale(retention time.Duration) ([]Record, error) {
	records, err := m.List()
	if err != nil {
		return nil, err
	}

	cutoff := m.now().Add(-retention)
	var stale []Record

	for _, rec := range records {
		if rec.LastUsedAt.After(cutoff) {
			continue
		}

		if m.pinned(rec.Version) {
			m.log.Debug("cleanup skipping pinned version", "version", rec.Version)
			continue
		}

		stale = append(stale, rec)
	}

	return stale, nil
}

// List returns every stored record, newest semver first. Versions that do
// not parse as semver sort after the parseable ones, lexicographically.
func (m *Manager) List() ([]Record, error) {
	root := filepath.Join(m.settings.Dir, m.settings.Name)

	versions, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to read tool store: %w", err)
	}

	var records []Record
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}

		platforms, err := os.ReadDir(filepath.Join(root, v.Name()))
		if err != nil {
			continue
		}

		for _, p := range platforms {
			if !p.IsDir() {
				continue
			}

			rec, err := readRecord(filepath.Join(root, v.Name(), p.Name()))
			if err != nil {
				continue
			}

			records = append(records, *rec)
		}
	}

	slices.SortStableFunc(records, func(a, b Record) int {
		va, ea := semver.NewVersion(a.Version)
		vb, eb := semver.NewVersion(b.Version)

		switch {
		case ea == nil && eb == nil:
			return vb.Compare(va)
		case ea == nil:
			return -1
		case eb == nil:
			return 1
		default:
			return strings.Compare(a.Version, b.Version)
		}
	})

	return records, nil
}

// resolve serves one coordinate from the store, downloading on miss or when
// the stored copy fails validation.
func (m *Manager) resolve(ctx context.Context, version string, platform Platform) (string, error) {
	dir := m.versionDir(version, platform)

	if rec, err := readRecord(dir); err == nil {
		verr := m.verifyRecord(rec)
		if verr == nil {
			m.touch(dir, rec)
			return rec.Path, nil
		}

		m.log.Warn("stored tool failed validation, downloading again", "version", version, "error", verr)
	}

	return m.download(ctx, version, platform)
}

// verifyRecord re-hashes the stored binary and checks it against the record.
func (m *Manager) verifyRecord(rec *Record) error {
	info, err := os.Stat(rec.Path)
	if err != nil {
		return fmt.Errorf("binary missing: %w", err)
	}

	if rec.OS != "windows" && info.Mode()&0o111 == 0 {
		return fmt.Errorf("binary %s is not executable", rec.Path)
	}

	sum, err := fingerprint.HashFile(rec.Path)
	if err != nil {
		return fmt.Errorf("failed to hash binary: %w", err)
	}

	if sum != rec.SHA256 {
		return &HashMismatchError{Version: rec.Version, Want: rec.SHA256, Got: sum}
	}

	return nil
}

// touch refreshes the last-used time. Failure only logs; the resolution
// itself already succeeded.
func (m *Manager) touch(dir string, rec *Record) {
	rec.LastUsedAt = m.now()

	if err := writeRecord(dir, rec); err != nil {
		m.log.Debug("failed to update last-used time", "version", rec.Version, "error", err)
	}
}

// download fetches with bounded retry and backoff. Transport failures and
// 5xx responses are retried; 4xx responses and checksum mismatches are not.
// Every retry re-attempts the full fetch.
func (m *Manager) download(ctx context.Context, version string, platform Platform) (string, error) {
	url := ExpandURL(m.settings.DownloadURL, version, platform)

	policy := Policy{
		Mode:        m.settings.RetryBackoff,
		Initial:     m.settings.RetryInitial,
		Max:         m.settings.RetryMax,
		MaxAttempts: m.settings.MaxRetries,
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	dir := m.versionDir(version, platform)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create tool directory: %w", err)
	}

	start := time.Now()

	var lastErr error
	lastStatus := 0

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			m.recorder.IncDownloadRetry()

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(policy.Delay(attempt - 1)):
			}
		}

		binPath, err := m.fetchOnce(ctx, url, version, platform, dir, attempt)
		if err == nil {
			m.recorder.ObserveDownloadDuration(time.Since(start), true)
			return binPath, nil
		}

		var mismatch *HashMismatchError
		if errors.As(err, &mismatch) {
			m.recorder.ObserveDownloadDuration(time.Since(start), false)
			return "", mismatch
		}

		var httpErr *httpStatusError
		if errors.As(err, &httpErr) {
			lastStatus = httpErr.status

			if !httpErr.retryable() {
				m.recorder.ObserveDownloadDuration(time.Since(start), false)
				return "", &DownloadError{URL: url, Attempts: attempt, Status: httpErr.status, Err: err}
			}
		}

		if ctx.Err() != nil {
			m.recorder.ObserveDownloadDuration(time.Since(start), false)
			return "", ctx.Err()
		}

		m.log.Warn("download attempt failed", "version", version, "attempt", attempt, "error", err)
		lastErr = err
	}

	m.recorder.ObserveDownloadDuration(time.Since(start), false)

	return "", &DownloadError{URL: url, Attempts: policy.MaxAttempts, Status: lastStatus, Err: lastErr}
}

// fetchOnce performs one complete fetch-verify-install cycle. Partial
// downloads never reach the final path: content lands in a temp file that is
// renamed only after verification.
func (m *Manager) fetchOnce(ctx context.Context, url, version string, platform Platform, dir string, attempt int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{status: resp.StatusCode}
	}

	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	tmpPath := tmp.Name()

	size, err := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write download: %w", err)
	}

	sum, err := fingerprint.HashFile(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to hash download: %w", err)
	}

	if m.settings.Verify {
		want, err := m.fetchChecksum(ctx, url, version, platform)
		if err != nil {
			os.Remove(tmpPath)
			return "", err
		}

		if !strings.EqualFold(want, sum) {
			os.Remove(tmpPath)
			return "", &HashMismatchError{Version: version, Want: strings.ToLower(want), Got: sum}
		}
	}

	binPath := filepath.Join(dir, m.settings.Name+platform.Ext())

	if err := os.Chmod(tmpPath, 0o755); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to mark binary executable: %w", err)
	}

	if err := os.Rename(tmpPath, binPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("failed to install binary: %w", err)
	}

	now := m.now()
	rec := &Record{
		Name:         m.settings.Name,
		Version:      version,
		OS:           platform.OS,
		Arch:         platform.Arch,
		Path:         binPath,
		SHA256:       sum,
		Size:         size,
		Attempts:     attempt,
		DownloadedAt: now,
		LastUsedAt:   now,
	}

	if err := writeRecord(dir, rec); err != nil {
		return "", err
	}

	m.log.Debug("tool downloaded", "version", version, "platform", platform.String(), "attempts", attempt, "size", size)

	return binPath, nil
}

// fetchChecksum downloads the published checksum file and extracts the entry
// for the binary named by the download URL. The file uses sha256sum format:
// "<hex>  <filename>".
func (m *Manager) fetchChecksum(ctx context.Context, binURL, version string, platform Platform) (string, error) {
	url := ExpandURL(m.settings.ChecksumURL, version, platform)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build checksum request: %w", err)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &httpStatusError{status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read checksum file: %w", err)
	}

	base := binURL
	if i := strings.IndexByte(base, '?'); i >= 0 {
		base = base[:i]
	}

	want := findChecksum(string(data), path.Base(base))
	if want == "" {
		return "", &HashMismatchError{Version: version}
	}

	return want, nil
}

// findChecksum scans sha256sum-format lines for the given filename. A "*"
// binary-mode marker and any directory prefix on the name are ignored.
func findChecksum(data, filename string) string {
	for _, line := range strings.Split(data, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}

		name := strings.TrimPrefix(fields[1], "*")
		if path.Base(name) == filename {
			return fields[0]
		}
	}

	return ""
}

func (m *Manager) flightKey(version string, platform Platform) string {
	return version + "|" + platform.String()
}

// versionDir is <dir>/<name>/<version>/<os>-<arch>.
func (m *Manager) versionDir(version string, platform Platform) string {
	return filepath.Join(m.settings.Dir, m.settings.Name, version, platform.String())
}
