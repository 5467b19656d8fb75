package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "schemactl",
	Short: "Schema toolchain runner with content-addressed caching",
	Long: `schemactl drives the schema-engine binary and skips work it has already
done. Every operation is fingerprinted over the schema files and the
effective configuration; when a fresh cached result exists, it is replayed
instead of re-running the engine.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		configureLogging(cmd)
	},
}

// Execute runs the CLI. The process exit code classifies the failure so
// scripts and CI can branch on it.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(codes.For(err))
	}
}

func init() {
	rootCmd.Version = fmt.Sprintf("%s (%s) %s", version.Version, version.Commit, version.BuildTime)

	rootCmd.PersistentFlags().String("config", "", "Workspace config file (default: walk up for .schemactl.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable the operation cache for this invocation")
	rootCmd.PersistentFlags().String("tool-version", "", "Engine version to run, overriding config")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-operation timeout, overriding config")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the schemactl version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "schemactl %s\n", rootCmd.Version)
	},
}

func configureLogging(cmd *cobra.Command) {
	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
