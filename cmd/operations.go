package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/fingerprint"
	"github.com/schemakit/schemactl/internal/operation"
)

var validateCmd = &cobra.Command{
	Use:          "validate [dir]",
	Short:        "Validate the project schemas",
	Long:         `Validate every schema in the project at or above dir (default: the current directory), replaying the cached verdict when nothing has changed.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args, operation.KindValidate)
	},
}

var generateCmd = &cobra.Command{
	Use:          "generate [dir]",
	Short:        "Generate code from the project schemas",
	Long:         `Generate code into the output directory. A cached result is replayed only when its output files are still present on disk.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args, operation.KindGenerate)
	},
}

var docsCmd = &cobra.Command{
	Use:          "docs [dir]",
	Short:        "Render documentation from the project schemas",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, args, operation.KindDocs)
	},
}

func init() {
	addOperationFlags(validateCmd)
	addOperationFlags(generateCmd)
	addOperationFlags(docsCmd)
}

func addOperationFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("force", "f", false, "Run even when a fresh cached result exists")
	cmd.Flags().Bool("dry-run", false, "Report whether the engine would run, without running it")
}

func runOperation(cmd *cobra.Command, args []string, kind operation.Kind) error {
	a, err := buildApp(cmd, nil, targetDir(args))
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	resp, runErr := a.orch.Run(cmd.Context(), operation.Request{Kind: kind, Force: force, DryRun: dryRun})
	printResponse(cmd, resp)

	return runErr
}

// printResponse writes the engine output followed by a one-line status.
// Pipeline breakdowns print nothing here; the returned error carries them.
func printResponse(cmd *cobra.Command, resp *operation.Response) {
	if resp == nil || resp.State == operation.StateError {
		return
	}

	out := cmd.OutOrStdout()

	switch {
	case resp.Skipped:
		fmt.Fprintf(out, "%s: skipped by config\n", resp.Kind)
		return
	case resp.DryRun && resp.FromCache:
		fmt.Fprintf(out, "%s: up to date (%s)\n", resp.Kind, shortFingerprint(resp.Fingerprint))
		return
	case resp.DryRun:
		fmt.Fprintf(out, "%s: would run (%s)\n", resp.Kind, shortFingerprint(resp.Fingerprint))
		return
	}

	writeBlock(out, resp.Output)

	if !resp.Success {
		writeBlock(cmd.ErrOrStderr(), resp.ErrorText)
	}

	status := "ok"
	if !resp.Success {
		status = fmt.Sprintf("failed (exit %d)", resp.ExitCode)
	}

	source := "engine"
	if resp.FromCache {
		source = "cache"
	}

	fmt.Fprintf(out, "%s: %s (%s, %s, %s)\n",
		resp.Kind, status, shortFingerprint(resp.Fingerprint), source, resp.Duration.Round(time.Millisecond))
}

// writeBlock prints captured output with a guaranteed trailing newline.
func writeBlock(w io.Writer, text string) {
	if text == "" {
		return
	}

	fmt.Fprint(w, text)

	if !strings.HasSuffix(text, "\n") {
		fmt.Fprintln(w)
	}
}

func shortFingerprint(fp string) string {
	return fingerprint.Fingerprint(fp).Short()
}
