package cmd

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/cache"
	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/config"
	"github.com/schemakit/schemactl/internal/operation"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the operation cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:          "stats",
	Short:        "Show cache entry counts and size",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runCacheStats,
}

var cacheClearCmd = &cobra.Command{
	Use:          "clear",
	Short:        "Remove cache entries",
	Long:         `Remove cache entries for the current project, a named one with --project, or every project with --all. --kind narrows the sweep to one operation.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runCacheClear,
}

var cacheCompactCmd = &cobra.Command{
	Use:          "compact",
	Short:        "Drop expired and unreadable entries",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         runCacheCompact,
}

func init() {
	cacheClearCmd.Flags().String("kind", "", "Limit to one operation (validate, generate or docs)")
	cacheClearCmd.Flags().String("project", "", "Project name to clear (default: the current project)")
	cacheClearCmd.Flags().Bool("all", false, "Clear entries for every project, not just the current one")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheCompactCmd)
}

// openWorkspaceStore opens the cache from machine-level settings alone, so
// cache maintenance works outside any project.
func openWorkspaceStore(cmd *cobra.Command) (*cache.Store, error) {
	ws, err := loadWorkspace(cmd)
	if err != nil {
		return nil, err
	}

	return cache.Open(ws.Cache.Dir)
}

func runCacheStats(cmd *cobra.Command, args []string) error {
	store, err := openWorkspaceStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	stats, err := store.Stats()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.AppendRows([]table.Row{
		{"Entries", stats.Total},
		{"Fresh", stats.Fresh},
		{"Expired", stats.Expired},
		{"Corrupt", stats.Corrupt},
		{"Size", formatBytes(stats.SizeBytes)},
	})

	kinds := make([]string, 0, len(stats.PerKind))
	for kind := range stats.PerKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	for _, kind := range kinds {
		t.AppendRow(table.Row{fmt.Sprintf("Entries (%s)", kind), stats.PerKind[kind]})
	}

	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()

	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	kindName, _ := cmd.Flags().GetString("kind")
	projectName, _ := cmd.Flags().GetString("project")

	var scope cache.Scope

	if kindName != "" {
		kind, err := operation.ParseKind(kindName)
		if err != nil {
			return &codes.UsageError{Err: err}
		}

		scope.Kind = kind.String()
	}

	switch {
	case all:
		// Zero project scope matches every project.
	case projectName != "":
		scope.Project = projectName
	default:
		project, err := currentProject()
		if err != nil {
			return err
		}

		scope.Project = project
	}

	store, err := openWorkspaceStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Invalidate(scope)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", removed)

	return nil
}

func runCacheCompact(cmd *cobra.Command, args []string) error {
	store, err := openWorkspaceStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	removed, err := store.Compact()
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale cache entries\n", removed)

	return nil
}

// currentProject resolves the project name for scoping, requiring the
// command to run inside a project tree.
func currentProject() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	root := config.FindProjectRoot(cwd)
	if root == "" {
		return "", &codes.UsageError{
			Err: fmt.Errorf("no %s found in %s or any parent; pass --project or --all", config.ProjectFile, cwd),
		}
	}

	project, err := config.LoadProject(root)
	if err != nil {
		return "", &codes.UsageError{Err: err}
	}

	return project.Project, nil
}

func formatBytes(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
