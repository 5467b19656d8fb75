// Package codes defines the schemactl process exit codes and maps errors
// onto them. Scripts rely on these staying stable.
package codes

import (
	"context"
	"errors"

	"github.com/schemakit/schemactl/internal/fingerprint"
	"github.com/schemakit/schemactl/internal/operation"
	"github.com/schemakit/schemactl/internal/runner"
	"github.com/schemakit/schemactl/internal/toolchain"
)

const (
	// OK means every requested operation succeeded (possibly from cache)
	OK = 0

	// OperationFailed means the engine ran and reported errors
	OperationFailed = 1

	// Usage means the configuration or command line was invalid
	Usage = 2

	// InputUnreadable means a schema file could not be read
	InputUnreadable = 3

	// Download means the engine binary could not be fetched
	Download = 4

	// ChecksumMismatch means a fetched binary failed verification
	ChecksumMismatch = 5

	// UnsupportedPlatform means no engine build exists for this host
	UnsupportedPlatform = 6

	// Timeout means an operation exceeded its wall-clock budget
	Timeout = 7
)

var messages = map[int]string{
	OK:                  "success",
	OperationFailed:     "operation failed",
	Usage:               "configuration or usage error",
	InputUnreadable:     "schema input unreadable",
	Download:            "engine download failed",
	ChecksumMismatch:    "engine checksum mismatch",
	UnsupportedPlatform: "platform not supported",
	Timeout:             "operation timed out",
}

// UsageError marks configuration and CLI misuse so the process exits with
// the Usage code instead of the generic failure code.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

// For maps an error to the exit code the process should finish with.
// Wrapped errors classify the same as their cause.
func For(err error) int {
	if err == nil {
		return OK
	}

	var (
		usageErr    *UsageError
		execErr     *operation.ExecutionError
		inputErr    *fingerprint.InputUnreadableError
		hashErr     *toolchain.HashMismatchError
		downloadErr *toolchain.DownloadError
		platformErr *toolchain.UnsupportedPlatformError
		timeoutErr  *runner.TimeoutError
	)

	switch {
	case errors.As(err, &usageErr):
		return Usage
	case errors.As(err, &execErr):
		return OperationFailed
	case errors.As(err, &inputErr):
		return InputUnreadable
	case errors.As(err, &hashErr):
		return ChecksumMismatch
	case errors.As(err, &downloadErr):
		return Download
	case errors.As(err, &platformErr):
		return UnsupportedPlatform
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return Timeout
	default:
		return OperationFailed
	}
}

// IsSuccess reports whether the exit code indicates success.
func IsSuccess(code int) bool {
	return code == OK
}

// Message returns the description for an exit code, or a generic message
// for unknown codes.
func Message(code int) string {
	if msg, ok := messages[code]; ok {
		return msg
	}

	return "unknown error"
}
