package operation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/schemakit/schemactl/internal/cache"
	"github.com/schemakit/schemactl/internal/config"
	"github.com/schemakit/schemactl/internal/fingerprint"
	"github.com/schemakit/schemactl/internal/metrics"
	"github.com/schemakit/schemactl/internal/runner"
)

// Resolver acquires engine binaries and protects them from cleanup while an
// operation holds them.
type Resolver interface {
	ResolvePath(ctx context.Context, version string) (string, error)
	Pin(version string)
	Unpin(version string)
}

// Executor runs engine invocations.
type Executor interface {
	Run(ctx context.Context, inv runner.Invocation) (*runner.Result, error)
}

// Request asks for one operation run.
type Request struct {
	Kind Kind

	// Force re-runs even on a fresh cache entry; the result is still stored
	Force bool

	// DryRun stops after the cache check and touches nothing
	DryRun bool
}

// Response reports one operation run.
type Response struct {
	// RunID uniquely identifies this run in logs
	RunID string

	Kind    Kind
	Project string

	// Fingerprint of the operation inputs, empty if fingerprinting failed
	Fingerprint string

	// State the run ended in; Trace lists every state it passed through
	State State
	Trace []State

	// FromCache is true when the result was replayed without executing
	FromCache bool

	// Skipped is true when the project disables this operation
	Skipped bool

	// DryRun echoes the request
	DryRun bool

	Success  bool
	ExitCode int

	// Output is the engine stdout, possibly truncated
	Output string

	// ErrorText is the engine stderr for failures, or the pipeline error
	ErrorText string

	// OutputFiles lists generated files relative to the output directory
	OutputFiles []string

	Duration time.Duration

	// Attempts the execution took (>1 only for retried validate timeouts)
	Attempts int
}

// Options wires an Orchestrator. Config and Resolver and Executor are
// required; a nil Cache disables caching.
type Options struct {
	Config   *config.Resolved
	Cache    *cache.Store
	Resolver Resolver
	Executor Executor
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Orchestrator drives operations for one resolved project configuration.
// Safe for concurrent use; runs of the same kind serialize on a per-kind
// lock so they cannot race on the cache or the output directory.
type Orchestrator struct {
	cfg      *config.Resolved
	cache    *cache.Store
	resolver Resolver
	executor Executor
	log      *slog.Logger
	recorder metrics.Recorder

	mu    sync.Mutex
	locks map[Kind]*sync.Mutex
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(opts Options) *Orchestrator {
	o := &Orchestrator{
		cfg:      opts.Config,
		cache:    opts.Cache,
		resolver: opts.Resolver,
		executor: opts.Executor,
		log:      opts.Logger,
		recorder: opts.Recorder,
		locks:    make(map[Kind]*sync.Mutex),
	}

	if o.log == nil {
		o.log = slog.Default()
	}

	if o.recorder == nil {
		o.recorder = metrics.NoopRecorder{}
	}

	return o
}

// Run executes one operation end to end. Engine failures (nonzero exits,
// fresh or replayed) return the populated Response together with an
// ExecutionError; pipeline breakdowns return whatever was assembled plus
// the underlying error.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*Response, error) {
	resp := &Response{
		RunID:   uuid.NewString(),
		Kind:    req.Kind,
		Project: o.cfg.Project,
		DryRun:  req.DryRun,
	}

	kind := req.Kind.String()
	opCfg := o.cfg.Op(kind)

	if opCfg.Skip {
		resp.Skipped = true
		resp.Success = true
		o.step(resp, StateDone)
		o.recorder.IncOperationResult(kind, metrics.ResultSkipped)
		o.log.Info("operation skipped by config", "run_id", resp.RunID, "kind", kind)

		return resp, nil
	}

	unlock := o.lock(req.Kind)
	defer unlock()

	start := time.Now()
	defer func() {
		resp.Duration = time.Since(start)
		o.recorder.ObserveOperationDuration(kind, resp.Duration)
	}()

	// Fingerprint
	o.step(resp, StateFingerprinting)

	files, err := fingerprint.CollectInputs(o.cfg.SchemaPath(), o.cfg.Include)
	if err != nil {
		return o.fail(resp, err)
	}

	digest, err := fingerprint.Compute(kind, o.cfg.HashView(kind), o.cfg.Root, files)
	if err != nil {
		return o.fail(resp, err)
	}

	resp.Fingerprint = digest.Fingerprint.String()

	// Cache check
	cacheable := o.cache != nil && o.cfg.Cache.Enabled

	if !req.Force {
		o.step(resp, StateCacheCheck)

		if cacheable {
			if entry, ok := o.cache.Get(resp.Fingerprint); ok && o.hitUsable(req.Kind, entry) {
				return o.replay(resp, entry)
			}

			o.recorder.IncCacheMiss(kind)
		}
	}

	if req.DryRun {
		resp.Success = true
		o.step(resp, StateDone)
		o.log.Info("dry run stopping before execution", "run_id", resp.RunID, "kind", kind, "fingerprint", digest.Fingerprint.Short())

		return resp, nil
	}

	// Resolve the engine binary, pinned against cleanup for the duration
	o.step(resp, StateResolving)

	version := o.cfg.Tool.Version

	path, err := o.resolver.ResolvePath(ctx, version)
	if err != nil {
		return o.fail(resp, err)
	}

	o.resolver.Pin(version)
	defer o.resolver.Unpin(version)

	// Execute
	o.step(resp, StateExecuting)

	inv := runner.Invocation{
		Path:           path,
		Args:           buildArgs(req.Kind, o.cfg),
		Env:            opCfg.Env,
		Dir:            o.cfg.Root,
		Timeout:        opCfg.Timeout,
		MaxOutputBytes: int64(o.cfg.Cache.MaxOutputBytes),
	}

	var res *runner.Result

	for attempt := 1; ; attempt++ {
		resp.Attempts = attempt

		res, err = o.executor.Run(ctx, inv)
		if err == nil {
			break
		}

		var tErr *runner.TimeoutError
		if errors.As(err, &tErr) && req.Kind == KindValidate && attempt <= opCfg.Retries {
			o.log.Warn("validate timed out, retrying", "run_id", resp.RunID, "attempt", attempt, "timeout", tErr.Timeout)
			continue
		}

		return o.fail(resp, err)
	}

	resp.Success = res.Success
	resp.ExitCode = res.ExitCode
	resp.Output = res.Stdout

	if !res.Success {
		resp.ErrorText = res.Stderr
	}

	if res.Success && req.Kind.producesOutputs() {
		outputs, err := CollectOutputs(o.cfg.OutputPath())
		if err != nil {
			o.log.Warn("failed to collect outputs", "run_id", resp.RunID, "error", err)
		} else {
			resp.OutputFiles = outputs
		}
	}

	// Store
	if cacheable && (res.Success || o.cfg.CacheFailuresFor(kind)) {
		o.step(resp, StateStoring)

		entry := &cache.Entry{
			Fingerprint: resp.Fingerprint,
			Kind:        kind,
			Project:     o.cfg.Project,
			ToolVersion: version,
			Success:     res.Success,
			ExitCode:    res.ExitCode,
			Output:      resp.Output,
			ErrorText:   resp.ErrorText,
			OutputFiles: resp.OutputFiles,
			InputHashes: digest.InputHashes,
			TTL:         o.cfg.FreshnessFor(kind),
		}

		// A store failure costs a future cache hit, not this run
		if err := o.cache.Store(entry); err != nil {
			o.log.Warn("failed to store cache entry", "run_id", resp.RunID, "error", err)
		}
	}

	o.step(resp, StateDone)

	if !res.Success {
		o.recorder.IncOperationResult(kind, metrics.ResultFailed)
		o.log.Info("operation failed", "run_id", resp.RunID, "kind", kind, "exit_code", res.ExitCode, "attempts", resp.Attempts)

		return resp, &ExecutionError{Kind: req.Kind, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}

	o.recorder.IncOperationResult(kind, metrics.ResultSuccess)
	o.log.Info("operation succeeded", "run_id", resp.RunID, "kind", kind, "fingerprint", digest.Fingerprint.Short(), "duration", res.Duration)

	return resp, nil
}

// hitUsable decides whether a fresh cache entry can stand in for a run.
// Generated outputs must still exist on disk; a deleted artifact voids the
// hit.
func (o *Orchestrator) hitUsable(kind Kind, entry *cache.Entry) bool {
	if entry.Kind != kind.String() {
		return false
	}

	if kind.producesOutputs() && !VerifyOutputs(o.cfg.OutputPath(), entry.OutputFiles) {
		o.log.Debug("cache entry unusable, outputs missing", "kind", entry.Kind, "fingerprint", entry.Fingerprint)
		return false
	}

	return true
}

// replay serves a response straight from a cache entry.
func (o *Orchestrator) replay(resp *Response, entry *cache.Entry) (*Response, error) {
	kind := resp.Kind.String()

	resp.FromCache = true
	resp.Success = entry.Success
	resp.ExitCode = entry.ExitCode
	resp.Output = entry.Output
	resp.ErrorText = entry.ErrorText
	resp.OutputFiles = entry.OutputFiles

	o.step(resp, StateDone)
	o.recorder.IncCacheHit(kind)
	o.recorder.IncOperationResult(kind, metrics.ResultCached)
	o.log.Info("cache hit", "run_id", resp.RunID, "kind", kind, "fingerprint", entry.Fingerprint, "cached_success", entry.Success)

	if !entry.Success {
		return resp, &ExecutionError{Kind: resp.Kind, ExitCode: entry.ExitCode, Stderr: entry.ErrorText}
	}

	return resp, nil
}

func (o *Orchestrator) step(resp *Response, s State) {
	resp.State = s
	resp.Trace = append(resp.Trace, s)
	o.log.Debug("operation state", "run_id", resp.RunID, "kind", resp.Kind.String(), "state", s)
}

// fail finishes a run in StateError. Timeouts get their own metrics label.
func (o *Orchestrator) fail(resp *Response, err error) (*Response, error) {
	resp.ErrorText = err.Error()
	o.step(resp, StateError)

	var tErr *runner.TimeoutError
	if errors.As(err, &tErr) {
		o.recorder.IncOperationResult(resp.Kind.String(), metrics.ResultTimeout)
	} else {
		o.recorder.IncOperationResult(resp.Kind.String(), metrics.ResultError)
	}

	o.log.Error("operation failed", "run_id", resp.RunID, "kind", resp.Kind.String(), "error", err)

	return resp, err
}

// lock serializes runs of one kind within this orchestrator. Different kinds
// proceed in parallel; two concurrent runs of the same kind would race on
// the output directory and the cache entry.
func (o *Orchestrator) lock(kind Kind) func() {
	o.mu.Lock()

	l, ok := o.locks[kind]
	if !ok {
		l = &sync.Mutex{}
		o.locks[kind] = l
	}

	o.mu.Unlock()

	l.Lock()

	return l.Unlock
}

// buildArgs assembles the engine command line for a kind.
func buildArgs(kind Kind, cfg *config.Resolved) []string {
	args := []string{kind.String(), "--schema-dir", cfg.SchemaPath()}

	if kind.producesOutputs() {
		args = append(args, "--out-dir", cfg.OutputPath())
	}

	args = append(args, cfg.Op(kind.String()).Args...)

	return args
}
