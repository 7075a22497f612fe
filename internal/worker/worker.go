// Package worker claims batches from the store and hands them to the
// runner. Batches run in parallel with each other; commands within one
// batch stay strictly sequential.
package worker

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/domain"
	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/runner"
)

// Config configures the worker
type Config struct {
	MaxParallelBatches int
	PollInterval       time.Duration
}

// Worker polls for Initial batches and runs each claimed batch to
// completion. The atomic claim in the store guarantees no batch is ever
// processed twice, however many workers poll the same database.
type Worker struct {
	id     string
	store  *batchstore.Store
	runner *runner.Runner
	config Config
}

// New creates a Worker with a unique identity
func New(store *batchstore.Store, r *runner.Runner, config Config) *Worker {
	if config.MaxParallelBatches <= 0 {
		config.MaxParallelBatches = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	return &Worker{
		id:     uuid.NewString(),
		store:  store,
		runner: r,
		config: config,
	}
}

// ID returns the worker's identity, used in logs
func (w *Worker) ID() string {
	return w.id
}

// Run polls until the context is canceled
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("worker %s: polling every %s", w.id, w.config.PollInterval)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(w.config.MaxParallelBatches)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Let in-flight batches finish their current command.
			return group.Wait()
		case <-ticker.C:
			w.claimAvailable(ctx, group)
		}
	}
}

// RunOnce claims and runs batches until none are claimable, then returns.
// Used by the CLI's one-shot run path.
func (w *Worker) RunOnce(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(w.config.MaxParallelBatches)
	w.claimAvailable(ctx, group)
	return group.Wait()
}

func (w *Worker) claimAvailable(ctx context.Context, group *errgroup.Group) {
	for {
		batch, err := w.store.ClaimBatch()
		if err != nil {
			log.Printf("worker %s: claiming: %v", w.id, err)
			return
		}
		if batch == nil {
			return
		}
		claimed := batch
		started := group.TryGo(func() error {
			if err := w.runner.RunClaimed(ctx, claimed); err != nil {
				log.Printf("worker %s: batch %d: %v", w.id, claimed.ID, err)
			}
			return nil
		})
		if !started {
			// All slots busy: release the claim for another worker.
			if err := w.store.UpdateBatchStatus(claimed.ID, domain.BatchInitial, ""); err != nil {
				log.Printf("worker %s: releasing batch %d: %v", w.id, claimed.ID, err)
			}
			return
		}
	}
}
