package toolchain

import "time"

// Policy encapsulates retry/backoff settings for transient download
// failures. Immutable after construction.
type Policy struct {
	Mode        string // fixed|linear|exponential
	Initial     time.Duration
	Max         time.Duration
	MaxAttempts int // total attempts including the first
}

// DefaultPolicy returns the built-in download policy (exponential, 500ms
// initial, 10s cap, 3 attempts).
func DefaultPolicy() Policy {
	return Policy{Mode: "exponential", Initial: 500 * time.Millisecond, Max: 10 * time.Second, MaxAttempts: 3}
}

// Delay returns the backoff delay before the given retry (1-based: the first
// retry is 1).
func (p Policy) Delay(retry int) time.Duration {
	if retry <= 0 {
		return 0
	}

	switch p.Mode {
	case "fixed":
		return p.Initial
	case "exponential":
		d := p.Initial * (1 << (retry - 1))
		if d > p.Max {
			return p.Max
		}

		return d
	default: // linear
		d := time.Duration(retry) * p.Initial
		if d > p.Max {
			return p.Max
		}

		return d
	}
}
