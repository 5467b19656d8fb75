package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/schemakit/schemactl/internal/codes"
	"github.com/schemakit/schemactl/internal/metrics"
	"github.com/schemakit/schemactl/internal/operation"
	"github.com/schemakit/schemactl/internal/utils"
	"github.com/schemakit/schemactl/internal/watch"
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-run operations whenever schemas change",
	Long: `Watch the schema directory and re-run the selected operations after each
quiet period. Unchanged inputs still hit the cache, so a burst of edits
costs one engine run per operation that actually changed.`,
	Args:         cobra.MaximumNArgs(1),
	SilenceUsage: true,
	RunE:         runWatch,
}

func init() {
	watchCmd.Flags().StringSliceP("kinds", "k", nil, "Operations to run on change: validate, generate, docs or all (default all)")
	watchCmd.Flags().IntP("workers", "w", 0, "Parallel operations, overriding config")
	watchCmd.Flags().String("metrics-listen", "", "Address to serve Prometheus metrics on (e.g. :9090)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(reg)

	a, err := buildApp(cmd, recorder, targetDir(args))
	if err != nil {
		return err
	}
	defer a.Close()

	selectors, _ := cmd.Flags().GetStringSlice("kinds")

	kinds, err := utils.ResolveKinds(selectors)
	if err != nil {
		return &codes.UsageError{Err: err}
	}

	reqs := make([]operation.Request, 0, len(kinds))
	for _, kind := range kinds {
		reqs = append(reqs, operation.Request{Kind: kind})
	}

	ctx := cmd.Context()

	if addr := a.cfg.MetricsListen; addr != "" {
		srv := &http.Server{
			Addr:              addr,
			Handler:           metrics.HTTPHandler(reg),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			a.log.Info("serving metrics", "addr", addr)

			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	runAll := func(runCtx context.Context) {
		responses, err := a.orch.RunAll(runCtx, reqs, a.cfg.Workers)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error("run failed", "error", err)
		}

		renderRunSummary(cmd.OutOrStdout(), responses)
	}

	// Initial pass so the outputs are current before we start waiting.
	runAll(ctx)

	w, err := watch.New(watch.Options{
		Dir:        a.cfg.SchemaPath(),
		Extensions: a.cfg.Include,
		Debounce:   a.cfg.WatchDebounce,
		Logger:     a.log,
		OnChange: func(changeCtx context.Context, paths []string) {
			a.log.Info("schemas changed", "files", len(paths))
			runAll(changeCtx)
		},
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "watching %s (interrupt to stop)\n", a.cfg.SchemaPath())

	return w.Run(ctx)
}
