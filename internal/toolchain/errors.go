package toolchain

import "fmt"

// DownloadError reports a fetch that failed after all retry attempts, or a
// non-retryable HTTP response.
type DownloadError struct {
	URL      string
	Attempts int
	Status   int // last HTTP status, 0 for transport failures
	Err      error
}

func (e *DownloadError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("download failed after %d attempt(s): %s returned status %d", e.Attempts, e.URL, e.Status)
	}

	return fmt.Sprintf("download failed after %d attempt(s): %s: %v", e.Attempts, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// HashMismatchError reports a failed integrity check. Never retried:
// re-fetching cannot fix a tampered artifact or a wrong URL.
type HashMismatchError struct {
	Version string
	Want    string
	Got     string
}

func (e *HashMismatchError) Error() string {
	if e.Want == "" {
		return fmt.Sprintf("checksum for version %s not found in published checksum file", e.Version)
	}

	return fmt.Sprintf("checksum mismatch for version %s: want %s, got %s", e.Version, e.Want, e.Got)
}

// UnsupportedPlatformError reports a host with no download coordinate.
type UnsupportedPlatformError struct {
	OS   string
	Arch string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("no download available for platform %s/%s", e.OS, e.Arch)
}

// httpStatusError carries a non-200 response through the retry loop so it
// can decide between retrying and giving up.
type httpStatusError struct {
	status int
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.status)
}

// retryable reports whether another attempt could plausibly succeed. Server
// errors and throttling qualify; other client errors do not.
func (e *httpStatusError) retryable() bool {
	return e.status >= 500 || e.status == 429
}
