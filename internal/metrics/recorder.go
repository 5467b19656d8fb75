// Package metrics provides observability hooks for schemactl operations.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics cost nothing unless a real implementation is
// wired in (see prometheus.go).
package metrics

import "time"

// ResultLabel enumerates operation result categories for counters.
type ResultLabel string

const (
	ResultSuccess ResultLabel = "success"
	ResultFailed  ResultLabel = "failed"
	ResultCached  ResultLabel = "cached"
	ResultTimeout ResultLabel = "timeout"
	ResultSkipped ResultLabel = "skipped"
	ResultError   ResultLabel = "error"
)

// Recorder defines the observability hooks. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveOperationDuration(kind string, d time.Duration)
	IncOperationResult(kind string, result ResultLabel)
	IncCacheHit(kind string)
	IncCacheMiss(kind string)
	ObserveDownloadDuration(d time.Duration, success bool)
	IncDownloadRetry()
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveOperationDuration(string, time.Duration) {}
func (NoopRecorder) IncOperationResult(string, ResultLabel)         {}
func (NoopRecorder) IncCacheHit(string)                             {}
func (NoopRecorder) IncCacheMiss(string)                            {}
func (NoopRecorder) ObserveDownloadDuration(time.Duration, bool)    {}
func (NoopRecorder) IncDownloadRetry()                              {}
