// Package services – deletion sweeper
//
// Time-driven collaborator of the deletion lifecycle: on a fixed interval it
// asks DeletionService to process every request whose grace period elapsed.
// The state machine itself lives in DeletionService; the sweeper only
// supplies the clock ticks.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DeletionSweeper periodically processes due deletion requests.
type DeletionSweeper struct {
	Service  *DeletionService
	Interval time.Duration
}

// NewDeletionSweeper constructs a sweeper with the given interval.
func NewDeletionSweeper(svc *DeletionService, interval time.Duration) *DeletionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &DeletionSweeper{Service: svc, Interval: interval}
}

// Run sweeps until ctx is cancelled. It blocks; callers start it in its own
// goroutine.
func (w *DeletionSweeper) Run(ctx context.Context) {
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	log.Info().Dur("interval", w.Interval).Msg("deletion sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("deletion sweeper stopped")
			return
		case <-t.C:
			processed, err := w.Service.ProcessDue(ctx, time.Now().UTC())
			if err != nil {
				log.Error().Err(err).Msg("deletion sweep failed")
				continue
			}
			if processed > 0 {
				log.Info().Int("processed", processed).Msg("deletion sweep processed due requests")
			}
		}
	}
}
