// Package services – submission queue processor
//
// This file implements the background worker pool that drains the submission
// queue. It polls for eligible pending items, claims each one through the
// optimistic lock, replays the action against the HR gateway under a
// per-attempt timeout, and books the outcome. Several processor instances can
// run against the same store: the lock contract guarantees each attempt has
// exactly one owner, and expired leases are reclaimed on the next poll.
package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/attendly/go-timeclock-backend/internal/config"
	"github.com/attendly/go-timeclock-backend/internal/domain"
	"github.com/attendly/go-timeclock-backend/internal/gateway"
)

// gcInterval is how often terminal items past their TTL are purged.
const gcInterval = 10 * time.Minute

// Processor drains the submission queue in the background.
type Processor struct {
	Queue         *QueueService
	Conversations *ConversationService
	Gateway       gateway.ExternalGateway

	PollInterval   time.Duration
	BatchSize      int
	Workers        int
	AttemptTimeout time.Duration
}

// NewProcessor constructs a Processor from queue configuration.
func NewProcessor(q *QueueService, c *ConversationService, g gateway.ExternalGateway, cfg config.QueueConfig) *Processor {
	return &Processor{
		Queue:          q,
		Conversations:  c,
		Gateway:        g,
		PollInterval:   cfg.PollInterval,
		BatchSize:      cfg.BatchSize,
		Workers:        cfg.Workers,
		AttemptTimeout: cfg.AttemptTimeout,
	}
}

// Run polls and processes until ctx is cancelled. It blocks; callers start it
// in its own goroutine.
func (p *Processor) Run(ctx context.Context) {
	work := make(chan domain.SubmissionQueueItem)

	var wg sync.WaitGroup
	for i := 0; i < p.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range work {
				p.processOne(ctx, item)
			}
		}()
	}

	poll := time.NewTicker(p.PollInterval)
	defer poll.Stop()
	gc := time.NewTicker(gcInterval)
	defer gc.Stop()

	log.Info().Int("workers", p.Workers).Dur("poll_interval", p.PollInterval).Msg("submission processor started")

	for {
		select {
		case <-ctx.Done():
			close(work)
			wg.Wait()
			log.Info().Msg("submission processor stopped")
			return

		case <-gc.C:
			if purged, err := p.Queue.Purge(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("queue purge failed")
			} else if purged > 0 {
				queuePurged.Add(float64(purged))
				log.Info().Int64("purged", purged).Msg("purged expired queue items")
			}

		case <-poll.C:
			now := time.Now().UTC()

			if reclaimed, err := p.Queue.ReclaimStale(ctx, now); err != nil {
				log.Error().Err(err).Msg("queue reclaim failed")
			} else if reclaimed > 0 {
				queueReclaimed.Add(float64(reclaimed))
				log.Warn().Int64("reclaimed", reclaimed).Msg("reclaimed stale queue locks")
			}

			items, err := p.Queue.PendingReady(ctx, now, p.BatchSize)
			if err != nil {
				log.Error().Err(err).Msg("queue poll failed")
				continue
			}
			queueReady.Set(float64(len(items)))

			for _, item := range items {
				select {
				case work <- item:
				case <-ctx.Done():
				}
			}
		}
	}
}

// processOne runs a single retry attempt end to end.
func (p *Processor) processOne(ctx context.Context, item domain.SubmissionQueueItem) {
	locked, err := p.Queue.TryLock(ctx, &item)
	if err != nil {
		log.Error().Err(err).Str("queue_item_id", item.ID).Msg("queue lock failed")
		return
	}
	if !locked {
		// Another worker owns this attempt.
		queueAttempts.WithLabelValues("lost_lock").Inc()
		return
	}

	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	start := time.Now()
	res := p.Gateway.Submit(attemptCtx, gateway.Action{
		IdentityID: item.IdentityID,
		Kind:       item.ActionKind,
		Timestamp:  item.TargetTimestamp,
	})
	cancel()
	queueAttemptDur.Observe(time.Since(start).Seconds())

	if res.Success {
		wrote, err := p.Queue.RecordSuccess(ctx, &item, res.StatusCode)
		if err != nil {
			log.Error().Err(err).Str("queue_item_id", item.ID).Msg("recording queue success failed")
			return
		}
		if !wrote {
			// Lease was reclaimed mid-flight; the outcome is discarded and
			// the reclaimed attempt decides the item's fate.
			queueAttempts.WithLabelValues("lost_lock").Inc()
			return
		}
		queueAttempts.WithLabelValues("completed").Inc()

		// Confirmed external write: now, and only now, flip the thread state.
		if _, serr := p.Conversations.ApplyConfirmedAction(ctx, item.IdentityID, item.ThreadID, item.ActionKind, item.TargetTimestamp); serr != nil {
			log.Warn().Err(serr).
				Str("queue_item_id", item.ID).
				Str("thread_id", item.ThreadID).
				Msg("submission completed but thread state update failed")
		}
		log.Info().
			Str("queue_item_id", item.ID).
			Str("identity_id", item.IdentityID).
			Str("action", item.ActionKind).
			Int("retry_count", item.RetryCount).
			Msg("queued submission completed")
		return
	}

	wrote, err := p.Queue.RecordFailure(ctx, &item, res.ErrorMessage, res.StatusCode)
	if err != nil {
		log.Error().Err(err).Str("queue_item_id", item.ID).Msg("recording queue failure failed")
		return
	}
	if !wrote {
		queueAttempts.WithLabelValues("lost_lock").Inc()
		return
	}
	if item.Status == domain.QueueStatusFailed {
		queueAttempts.WithLabelValues("failed").Inc()
		log.Error().
			Str("queue_item_id", item.ID).
			Str("identity_id", item.IdentityID).
			Str("action", item.ActionKind).
			Str("last_error", item.LastError).
			Msg("queued submission failed terminally")
		return
	}
	queueAttempts.WithLabelValues("retry_scheduled").Inc()
	log.Warn().
		Str("queue_item_id", item.ID).
		Int("retry_count", item.RetryCount).
		Time("next_retry_at", *item.NextRetryAt).
		Msg("queued submission attempt failed, retry scheduled")
}
