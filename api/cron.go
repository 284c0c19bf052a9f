/*
cron.go - Periodic batch trigger

PURPOSE:
  Drives the batch processor on a cron expression so due schedules are
  materialized without an external trigger. One tick keeps invoking the
  processor while it reports more work, so a backlog larger than one
  invocation's cap still drains within the tick.

CONFIGURATION:
  - Spec: standard 5-field cron expression (default: "0 3 * * *")
  - An empty spec disables the scheduler; hosts can rely solely on
    POST /api/admin/process.

USAGE:
  sched := api.NewBatchScheduler(processor, "0 3 * * *", logger)
  if err := sched.Start(); err != nil { ... }
  defer sched.Stop()

SEE ALSO:
  - handlers.go: Process endpoint (manual trigger)
  - schedule/batch.go: the processor this drives
*/
package api

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/dcerge/carexpenses-api-sub003/schedule"
)

// maxDrainRounds bounds one tick; a backlog beyond this waits for the next.
const maxDrainRounds = 20

// BatchScheduler runs the batch processor on a cron schedule.
type BatchScheduler struct {
	Processor *schedule.BatchProcessor
	Spec      string
	Logger    zerolog.Logger

	cron *cron.Cron
}

func NewBatchScheduler(processor *schedule.BatchProcessor, spec string, logger zerolog.Logger) *BatchScheduler {
	return &BatchScheduler{
		Processor: processor,
		Spec:      spec,
		Logger:    logger,
	}
}

// Start registers the cron entry and begins ticking. A nil return with an
// empty spec means the scheduler is disabled.
func (b *BatchScheduler) Start() error {
	if b.Spec == "" {
		b.Logger.Info().Msg("batch scheduler disabled, no cron spec")
		return nil
	}

	c := cron.New()
	if _, err := c.AddFunc(b.Spec, b.tick); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", b.Spec, err)
	}
	c.Start()
	b.cron = c

	b.Logger.Info().Str("spec", b.Spec).Msg("batch scheduler started")
	return nil
}

// Stop stops ticking and waits for a running tick to finish.
func (b *BatchScheduler) Stop() {
	if b.cron == nil {
		return
	}
	<-b.cron.Stop().Done()
	b.Logger.Info().Msg("batch scheduler stopped")
}

func (b *BatchScheduler) tick() {
	ctx := context.Background()

	for round := 0; round < maxDrainRounds; round++ {
		summary, err := b.Processor.ProcessScheduledExpenses(ctx, 0, 0)
		if err != nil {
			b.Logger.Error().Err(err).Msg("scheduled batch run failed")
			return
		}
		if !summary.HasMoreToProcess {
			return
		}
		b.Logger.Info().Int("round", round+1).Msg("batch backlog remains, continuing")
	}
	b.Logger.Warn().Msg("batch backlog still present after max drain rounds")
}
