package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtnitsch/linkmeta/pkg/pipeline"
)

// Job is one pipeline request with its position in the batch.
type Job struct {
	Index   int
	Request pipeline.Request
}

// Result pairs a request with its outcome.
type Result struct {
	Request pipeline.Request
	Outcome *pipeline.Outcome
}

// runner is what the workers drive; *pipeline.Pipeline satisfies it.
type runner interface {
	Run(ctx context.Context, req pipeline.Request) *pipeline.Outcome
}

// runAll extracts every request on a pool of workers. Results keep the
// order of reqs. The error is non-nil when any attempt failed.
func runAll(ctx context.Context, logger *slog.Logger, p runner, reqs []pipeline.Request, workerCount int) ([]Result, error) {
	if workerCount <= 0 {
		workerCount = 4
	}
	if workerCount > len(reqs) {
		workerCount = len(reqs)
	}

	logger.Info("Starting concurrent extraction", "blocks", len(reqs), "workers", workerCount)
	var wg sync.WaitGroup
	jobs := make(chan Job, len(reqs))
	results := make([]Result, len(reqs))

	for w := 1; w <= workerCount; w++ {
		wg.Add(1)
		go worker(ctx, w, logger, p, &wg, jobs, results)
	}

	for i, req := range reqs {
		jobs <- Job{Index: i, Request: req}
	}
	close(jobs)

	wg.Wait()
	logger.Info("All extraction workers finished")

	failed := 0
	for _, r := range results {
		if r.Outcome.Status == pipeline.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return results, fmt.Errorf("%d of %d extractions failed", failed, len(reqs))
	}
	return results, nil
}

// Each worker writes only the result slots of the jobs it took.
func worker(ctx context.Context, id int, logger *slog.Logger, p runner, wg *sync.WaitGroup, jobs <-chan Job, results []Result) {
	defer wg.Done()
	for job := range jobs {
		logger.Debug("Worker started job", "worker_id", id, "block", job.Request.BlockID)
		results[job.Index] = Result{Request: job.Request, Outcome: p.Run(ctx, job.Request)}
	}
}
