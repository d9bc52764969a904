package embedding

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-ingest/internal/metrics"
)

// DefaultWorkers bounds concurrent embedding jobs.
const DefaultWorkers = 4

// Pool runs embedding jobs with bounded concurrency. Jobs report results
// through their own closures; Wait drains the pool.
type Pool struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewPool builds a pool of size workers bound to ctx.
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	g := &errgroup.Group{}
	g.SetLimit(workers)
	return &Pool{group: g, ctx: ctx}
}

// Submit queues job, blocking while every worker is busy.
func (p *Pool) Submit(job func(ctx context.Context)) {
	p.group.Go(func() error {
		metrics.IncEmbeddingWorkers()
		defer metrics.DecEmbeddingWorkers()
		job(p.ctx)
		return nil
	})
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	_ = p.group.Wait()
}
