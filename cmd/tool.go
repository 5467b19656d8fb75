package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/config"
	"github.com/schemakit/schemactl/internal/toolchain"
)

var toolCmd = &cobra.Command{
	Use:   "tool",
	Short: "Manage downloaded engine binaries",
}

var toolListCmd = &cobra.Command{
	Use:          "list",
	Short:        "List installed engine versions",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runToolList,
}

var toolInstallCmd = &cobra.Command{
	Use:          "install [version]",
	Short:        "Download and verify an engine version",
	Long:         `Download an engine version into the local store. Without a version argument the configured version is installed. Already-verified versions are left alone unless --force is given.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runToolInstall,
}

var toolVerifyCmd = &cobra.Command{
	Use:          "verify [version]",
	Short:        "Check an installed engine against its recorded checksum",
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runToolVerify,
}

var toolCleanupCmd = &cobra.Command{
	Use:          "cleanup",
	Short:        "Remove engine versions unused beyond the retention window",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runToolCleanup,
}

func init() {
	toolInstallCmd.Flags().BoolP("force", "f", false, "Re-download even when a verified copy exists")
	toolCleanupCmd.Flags().Duration("retention", 0, "Age after which unused versions are removed, overriding config")
	toolCleanupCmd.Flags().Bool("dry-run", false, "Print what would be removed without removing it")

	toolCmd.AddCommand(toolListCmd)
	toolCmd.AddCommand(toolInstallCmd)
	toolCmd.AddCommand(toolVerifyCmd)
	toolCmd.AddCommand(toolCleanupCmd)
}

// workspaceManager builds a toolchain manager from machine-level settings,
// so tool maintenance works outside any project.
func workspaceManager(cmd *cobra.Command) (*toolchain.Manager, *config.Workspace, error) {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return nil, nil, err
	}

	m := toolchain.NewManager(toolchain.Options{
		Settings: ws.Tool,
		Logger:   slog.Default(),
	})

	return m, ws, nil
}

// toolVersion picks the version argument, falling back to the configured one.
func toolVersion(args []string, ws *config.Workspace) (string, error) {
	if len(args) == 1 && args[0] != "" {
		return args[0], nil
	}

	if ws.Tool.Version != "" {
		return ws.Tool.Version, nil
	}

	return "", &codes.UsageError{Err: fmt.Errorf("no engine version given and none configured")}
}

func runToolList(cmd *cobra.Command, args []string) error {
	manager, _, err := workspaceManager(cmd)
	if err != nil {
		return err
	}

	records, err := manager.List()
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no engine versions installed")
		return nil
	}

	renderToolTable(cmd, records)

	return nil
}

func runToolInstall(cmd *cobra.Command, args []string) error {
	manager, ws, err := workspaceManager(cmd)
	if err != nil {
		return err
	}

	version, err := toolVersion(args, ws)
	if err != nil {
		return err
	}

	force, _ := cmd.Flags().GetBool("force")

	var path string
	if force {
		path, err = manager.Download(cmd.Context(), version)
	} else {
		path, err = manager.ResolvePath(cmd.Context(), version)
	}

	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s installed at %s\n", ws.Tool.Name, version, path)

	return nil
}

func runToolVerify(cmd *cobra.Command, args []string) error {
	manager, ws, err := workspaceManager(cmd)
	if err != nil {
		return err
	}

	version, err := toolVersion(args, ws)
	if err != nil {
		return err
	}

	if !manager.Validate(version) {
		return fmt.Errorf("%s %s is missing or does not match its recorded checksum", ws.Tool.Name, version)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s verified\n", ws.Tool.Name, version)

	return nil
}

func runToolCleanup(cmd *cobra.Command, args []string) error {
	manager, ws, err := workspaceManager(cmd)
	if err != nil {
		return err
	}

	retention := ws.Tool.Retention
	if flagValue, _ := cmd.Flags().GetDuration("retention"); flagValue > 0 {
		retention = flagValue
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		stale, err := manager.Stale(retention)
		if err != nil {
			return err
		}

		if len(stale) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove")
			return nil
		}

		renderToolTable(cmd, stale)
		fmt.Fprintf(cmd.OutOrStdout(), "would remove %d engine versions\n", len(stale))

		return nil
	}

	removed, err := manager.Cleanup(retention)
	if err != nil {
		return err
	}

	if len(removed) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "nothing to remove")
		return nil
	}

	renderToolTable(cmd, removed)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d engine versions\n", len(removed))

	return nil
}

func renderToolTable(cmd *cobra.Command, records []toolchain.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendHeader(table.Row{"VERSION", "PLATFORM", "SIZE", "DOWNLOADED", "LAST USED"})

	for _, rec := range records {
		t.AppendRow(table.Row{
			rec.Version,
			rec.Platform().String(),
			formatBytes(rec.Size),
			rec.DownloadedAt.Local().Format(time.DateOnly),
			rec.LastUsedAt.Local().Format(time.DateOnly),
		})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()
}
