package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/operation"
	"github.com/schemakit/schemactl/internal/utils"
)

var runCmd = &cobra.Command{
	Use:   "run [dir...]",
	Short: "Run operations for one or more projects against the shared cache",
	Long: `Run a set of operations for each listed project directory (default: the
current one). All operations share one worker pool, one cache and one
engine store; a summary table reports what ran and what was replayed.`,
	SilenceUsage: true,
	RunE:         runRun,
}

func init() {
	runCmd.Flags().StringSliceP("kinds", "k", nil, "Operations to run: validate, generate, docs or all (default all)")
	runCmd.Flags().IntP("workers", "w", 0, "Parallel operations, overriding config")
	addOperationFlags(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	selectors, _ := cmd.Flags().GetStringSlice("kinds")

	kinds, err := utils.ResolveKinds(selectors)
	if err != nil {
		return &codes.UsageError{Err: err}
	}

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	dirs := args
	if len(dirs) == 0 {
		dirs = []string{"."}
	}

	s, err := newShared(cmd, dirs[0], nil)
	if err != nil {
		return err
	}
	defer s.Close()

	seen := make(map[string]bool)
	var jobs []operation.Job

	for _, dir := range dirs {
		a, err := s.project(dir)
		if err != nil {
			return err
		}

		if seen[a.cfg.Root] {
			continue
		}
		seen[a.cfg.Root] = true

		for _, kind := range kinds {
			jobs = append(jobs, operation.Job{
				Orchestrator: a.orch,
				Request:      operation.Request{Kind: kind, Force: force, DryRun: dryRun},
			})
		}
	}

	responses, err := operation.RunJobs(cmd.Context(), jobs, s.ws.Workers)
	if err != nil {
		return err
	}

	renderRunSummary(cmd.OutOrStdout(), responses)

	return firstFailure(responses)
}

// firstFailure surfaces a failed operation as the command error so the
// process exits nonzero after the summary has been printed.
func firstFailure(responses []*operation.Response) error {
	for _, resp := range responses {
		if resp == nil || resp.Success {
			continue
		}

		return &operation.ExecutionError{Kind: resp.Kind, ExitCode: resp.ExitCode, Stderr: resp.ErrorText}
	}

	return nil
}

func renderRunSummary(w io.Writer, responses []*operation.Response) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"PROJECT", "OPERATION", "RESULT", "SOURCE", "FINGERPRINT", "DURATION"})

	for _, resp := range responses {
		if resp == nil {
			continue
		}

		t.AppendRow(table.Row{
			resp.Project,
			resp.Kind,
			summaryResult(resp),
			summarySource(resp),
			shortFingerprint(resp.Fingerprint),
			resp.Duration.Round(time.Millisecond),
		})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}

func summaryResult(resp *operation.Response) string {
	switch {
	case resp.Skipped:
		return "skipped"
	case resp.State == operation.StateError:
		return "error"
	case resp.DryRun && resp.FromCache:
		return "up to date"
	case resp.DryRun:
		return "would run"
	case !resp.Success:
		return fmt.Sprintf("failed (exit %d)", resp.ExitCode)
	default:
		return "ok"
	}
}

func summarySource(resp *operation.Response) string {
	switch {
	case resp.Skipped || resp.DryRun || resp.State == operation.StateError:
		return "-"
	case resp.FromCache:
		return "cache"
	default:
		return "engine"
	}
}
