package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/cache"
	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/config"
	"github.com/schemakit/schemactl/internal/metrics"
	"github.com/schemakit/schemactl/internal/operation"
	"github.com/schemakit/schemactl/internal/runner"
	"github.com/schemakit/schemactl/internal/toolchain"
)

// shared holds the process-wide components every project reuses: one cache
// store (bbolt allows one open handle per file), one toolchain manager (so
// download dedup and pins span projects) and one engine.
type shared struct {
	ws       *config.Workspace
	store    *cache.Store
	tools    *toolchain.Manager
	engine   *runner.Engine
	recorder metrics.Recorder
	log      *slog.Logger
	noCache  bool
}

// app is one project wired against the shared components.
type app struct {
	*shared
	cfg  *config.Resolved
	orch *operation.Orchestrator
}

// targetDir returns the directory argument, or the current directory when
// the command was invoked without one.
func targetDir(args []string) string {
	if len(args) >= 1 && args[0] != "" {
		return args[0]
	}

	return "."
}

// loadWorkspace resolves machine-level settings for commands that operate
// outside any project (cache, tool).
func loadWorkspace(cmd *cobra.Command) (*config.Workspace, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	cfgFile, _ := cmd.Flags().GetString("config")

	ws, err := config.NewLoader().Load(cmd, cwd, cfgFile)
	if err != nil {
		return nil, &codes.UsageError{Err: err}
	}

	return ws, nil
}

// newShared loads the workspace (discovered from dir) and opens the
// components the projects share. A nil recorder disables metrics.
func newShared(cmd *cobra.Command, dir string, recorder metrics.Recorder) (*shared, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	cfgFile, _ := cmd.Flags().GetString("config")

	ws, err := config.NewLoader().Load(cmd, abs, cfgFile)
	if err != nil {
		return nil, &codes.UsageError{Err: err}
	}

	noCache, _ := cmd.Flags().GetBool("no-cache")
	if noCache {
		ws.Cache.Enabled = false
	}

	log := slog.Default()
	s := &shared{ws: ws, recorder: recorder, log: log, noCache: noCache}

	if ws.Cache.Enabled {
		store, err := cache.Open(ws.Cache.Dir)
		if err != nil {
			return nil, err
		}

		s.store = store
	}

	s.tools = toolchain.NewManager(toolchain.Options{
		Settings: ws.Tool,
		Logger:   log,
		Recorder: recorder,
	})

	s.engine = runner.NewEngine(log)

	return s, nil
}

// project resolves and wires the project at or above dir.
func (s *shared) project(dir string) (*app, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	root := config.FindProjectRoot(abs)
	if root == "" {
		return nil, &codes.UsageError{
			Err: fmt.Errorf("no %s found in %s or any parent; run 'schemactl init' to create one", config.ProjectFile, abs),
		}
	}

	project, err := config.LoadProject(root)
	if err != nil {
		return nil, &codes.UsageError{Err: err}
	}

	resolved, err := config.Merge(s.ws, project, root)
	if err != nil {
		return nil, &codes.UsageError{Err: err}
	}

	if s.noCache {
		resolved.Cache.Enabled = false
	}

	orch := operation.NewOrchestrator(operation.Options{
		Config:   resolved,
		Cache:    s.store,
		Resolver: s.tools,
		Executor: s.engine,
		Logger:   s.log,
		Recorder: s.recorder,
	})

	return &app{shared: s, cfg: resolved, orch: orch}, nil
}

// buildApp wires a single project for commands that operate on one.
func buildApp(cmd *cobra.Command, recorder metrics.Recorder, dir string) (*app, error) {
	s, err := newShared(cmd, dir, recorder)
	if err != nil {
		return nil, err
	}

	a, err := s.project(dir)
	if err != nil {
		s.Close()
		return nil, err
	}

	return a, nil
}

func (s *shared) Close() {
	if s.store == nil {
		return
	}

	if err := s.store.Close(); err != nil {
		s.log.Warn("failed to close cache", "error", err)
	}
}
