package operation

import (
	"fmt"
	"strings"
)

// ExecutionError reports an engine run that completed with a nonzero exit,
// whether fresh or replayed from the cache.
type ExecutionError struct {
	Kind     Kind
	ExitCode int
	Stderr   string
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s failed with exit code %d", e.Kind, e.ExitCode)

	if first := firstLine(e.Stderr); first != "" {
		msg += ": " + first
	}

	return msg
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	return strings.TrimSpace(s)
}
