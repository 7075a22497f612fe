// Package maintenance recovers batches left in Running by an unclean
// shutdown. The sweep resets stale Running batches to Initial so a worker
// re-claims them; Done, Blocked and Stopped batches are never touched.
package maintenance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/WikiMovimentoBrasil/quickstatements3-sub000/internal/batchstore"
)

// Sweeper periodically resets stale Running batches
type Sweeper struct {
	store      *batchstore.Store
	schedule   cron.Schedule
	staleAfter time.Duration
}

// New creates a Sweeper from a cron expression and staleness threshold
func New(store *batchstore.Store, cronExpr string, staleAfter time.Duration) (*Sweeper, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep cron expression: %w", err)
	}
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	return &Sweeper{store: store, schedule: schedule, staleAfter: staleAfter}, nil
}

// Run sweeps on the configured schedule until the context is canceled
func (s *Sweeper) Run(ctx context.Context) error {
	for {
		next := s.schedule.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
			if _, err := s.Sweep(); err != nil {
				log.Printf("maintenance: sweep: %v", err)
			}
		}
	}
}

// Sweep resets Running batches that have made no progress within the
// staleness threshold, recording why. An actively running batch touches
// its row on every command update and is never reset.
func (s *Sweeper) Sweep() (int64, error) {
	reason := fmt.Sprintf("reset to initial by maintenance sweep: batch was left running with no progress for over %s (likely an unclean shutdown)", s.staleAfter)
	reset, err := s.store.SweepStaleRunning(s.staleAfter, reason)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		log.Printf("maintenance: reset %d stale running batch(es) to initial", reset)
	}
	return reset, nil
}
