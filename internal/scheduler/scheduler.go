// Package scheduler fires the daily battle aggregation at a fixed local time.
// It is the trigger adapter for BattleService; the handler itself is
// idempotent, so a missed or doubled tick is safe.
package scheduler

import (
	"context"
	"time"

	"miniquest-worker/internal/config"
	"miniquest-worker/internal/constants"
	"miniquest-worker/internal/service"

	"github.com/rs/zerolog"
)

type Daily struct {
	battles *service.BattleService
	runHour int
	logger  zerolog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewDaily(battles *service.BattleService, cfg *config.Config, logger zerolog.Logger) *Daily {
	return &Daily{
		battles: battles,
		runHour: cfg.BattleRunHour,
		logger:  logger,
	}
}

// Start launches the trigger loop. Stop cancels it and waits for a running
// aggregation to finish or hit its deadline.
func (d *Daily) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.loop(ctx)
}

func (d *Daily) Stop() {
	if d.cancel == nil {
		return
	}
	d.cancel()
	<-d.done
}

func (d *Daily) loop(ctx context.Context) {
	defer close(d.done)

	for {
		next := d.nextRun(time.Now())
		d.logger.Info().Time("next_run", next).Msg("battle aggregation scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case now := <-timer.C:
			d.run(ctx, now)
		}
	}
}

func (d *Daily) run(ctx context.Context, now time.Time) {
	// The whole run gets one deadline; exceeding it fails the run. The next
	// tick picks up whatever is still active.
	runCtx, cancel := context.WithTimeout(ctx, constants.BattleRunTimeout)
	defer cancel()

	if err := d.battles.RunDaily(runCtx, now); err != nil {
		d.logger.Error().Err(err).Msg("daily battle run failed")
	}
}

// nextRun is the next occurrence of the configured run hour in the app's
// local timezone.
func (d *Daily) nextRun(now time.Time) time.Time {
	local := now.UTC().Add(constants.DayKeyOffset)
	next := time.Date(local.Year(), local.Month(), local.Day(), d.runHour, 0, 0, 0, time.UTC)
	if !next.After(local) {
		next = next.Add(24 * time.Hour)
	}
	return next.Add(-constants.DayKeyOffset)
}
