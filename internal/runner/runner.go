// Package runner executes engine processes with deadlines, environment
// layering and bounded output capture.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// reapDelay bounds how long Wait keeps collecting stdio after the process
// was killed. Without it a grandchild holding the pipes can stall Wait
// forever.
const reapDelay = 5 * time.Second

// Invocation describes one engine process to run.
type Invocation struct {
	// Path to the executable
	Path string

	// Args passed verbatim
	Args []string

	// Env is layered over the parent process environment; these win
	Env map[string]string

	// Dir is the working directory, empty means inherit
	Dir string

	// Timeout is the wall-clock budget, zero means none
	Timeout time.Duration

	// MaxOutputBytes caps each captured stream, zero means unlimited
	MaxOutputBytes int64
}

// Result is the outcome of a completed process. A nonzero exit is a result,
// not an error; only failures to run or finish become errors.
type Result struct {
	Success  bool
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// TimeoutError reports a process killed for exceeding its wall-clock budget.
// Carries whatever output was captured before the kill.
type TimeoutError struct {
	Timeout time.Duration
	Stdout  string
	Stderr  string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// Commander is the slice of exec.Cmd the engine drives. Tests substitute
// scripted implementations.
type Commander interface {
	Run() error
}

// commandSpec is everything the factory needs to build a runnable command.
type commandSpec struct {
	path   string
	args   []string
	env    []string
	dir    string
	stdout io.Writer
	stderr io.Writer
}

// Engine runs invocations.
type Engine struct {
	log *slog.Logger

	execCommand func(ctx context.Context, spec commandSpec) Commander
}

// NewEngine creates an Engine backed by os/exec.
func NewEngine(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}

	return &Engine{
		log: log,
		execCommand: func(ctx context.Context, spec commandSpec) Commander {
			cmd := exec.CommandContext(ctx, spec.path, spec.args...)
			cmd.Env = spec.env
			cmd.Dir = spec.dir
			cmd.Stdout = spec.stdout
			cmd.Stderr = spec.stderr
			cmd.WaitDelay = reapDelay

			return cmd
		},
	}
}

// Run executes the invocation and blocks until it finishes, times out, or
// the context is cancelled. Cancellation kills the process and still reaps
// it before returning.
func (e *Engine) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if inv.Path == "" {
		return nil, errors.New("invocation has no executable path")
	}

	runCtx := ctx
	cancel := func() {}
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
	}
	defer cancel()

	stdout := &limitedBuffer{max: inv.MaxOutputBytes}
	stderr := &limitedBuffer{max: inv.MaxOutputBytes}

	cmd := e.execCommand(runCtx, commandSpec{
		path:   inv.Path,
		args:   inv.Args,
		env:    mergeEnv(os.Environ(), inv.Env),
		dir:    inv.Dir,
		stdout: stdout,
		stderr: stderr,
	})

	e.log.Debug("executing", "path", inv.Path, "args", inv.Args, "dir", inv.Dir, "timeout", inv.Timeout)

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if err != nil {
		if inv.Timeout > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Timeout: inv.Timeout, Stdout: res.Stdout, Stderr: res.Stderr}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		var coder interface{ ExitCode() int }
		if !errors.As(err, &coder) {
			return nil, fmt.Errorf("failed to run %s: %w", inv.Path, err)
		}

		res.ExitCode = coder.ExitCode()
		e.log.Debug("command finished", "exit_code", res.ExitCode, "duration", duration)

		return res, nil
	}

	res.Success = true
	e.log.Debug("command finished", "exit_code", 0, "duration", duration)

	return res, nil
}

// mergeEnv layers overrides onto the parent environment. Parent order is
// preserved; new keys append in sorted order so results are stable.
func mergeEnv(parent []string, overrides map[string]string) []string {
	if len(overrides) == 0 {
		return parent
	}

	merged := make(map[string]string, len(parent)+len(overrides))
	order := make([]string, 0, len(parent)+len(overrides))

	for _, kv := range parent {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}

		merged[k] = v
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, seen := merged[k]; !seen {
			order = append(order, k)
		}

		merged[k] = overrides[k]
	}

	env := make([]string, 0, len(order))
	for _, k := range order {
		env = append(env, k+"="+merged[k])
	}

	return env
}

// limitedBuffer keeps at most max bytes and remembers how much was dropped.
// Writes never fail; a chatty process must not be able to wedge itself on a
// full pipe.
type limitedBuffer struct {
	buf     bytes.Buffer
	max     int64
	dropped int64
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)

	if b.max <= 0 {
		b.buf.Write(p)
		return n, nil
	}

	room := b.max - int64(b.buf.Len())
	if room <= 0 {
		b.dropped += int64(n)
		return n, nil
	}

	if int64(n) > room {
		b.buf.Write(p[:room])
		b.dropped += int64(n) - room
		return n, nil
	}

	b.buf.Write(p)

	return n, nil
}

func (b *limitedBuffer) String() string {
	if b.dropped > 0 {
		return b.buf.String() + fmt.Sprintf("\n... (%d bytes truncated)", b.dropped)
	}

	return b.buf.String()
}
