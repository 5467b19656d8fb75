package operation

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Job pairs a request with the orchestrator that runs it, so requests from
// several projects can share one bounded pool.
type Job struct {
	Orchestrator *Orchestrator
	Request      Request
}

// RunAll executes the requests with bounded parallelism and returns the
// responses in request order. Engine failures stay inside their responses
// (and each response reports its own ExecutionError outcome); only pipeline
// breakdowns cancel the group and come back as the error.
func (o *Orchestrator) RunAll(ctx context.Context, reqs []Request, workers int) ([]*Response, error) {
	jobs := make([]Job, len(reqs))
	for i, req := range reqs {
		jobs[i] = Job{Orchestrator: o, Request: req}
	}

	return RunJobs(ctx, jobs, workers)
}

// RunJobs executes jobs, possibly spanning multiple projects, with bounded
// parallelism. Responses come back in job order. Same-kind jobs within one
// orchestrator still serialize on its per-kind lock; jobs for different
// projects are fully independent.
func RunJobs(ctx context.Context, jobs []Job, workers int) ([]*Response, error) {
	if workers < 1 {
		workers = 1
	}

	responses := make([]*Response, len(jobs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			resp, err := job.Orchestrator.Run(ctx, job.Request)
			responses[i] = resp

			var execErr *ExecutionError
			if err != nil && !errors.As(err, &execErr) {
				return err
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return responses, err
	}

	return responses, nil
}
