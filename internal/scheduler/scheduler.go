// Package scheduler drives the recurring import: an explicit cron loop that
// computes the next fire time, sleeps to it, and runs the import under the
// cross-replica lease lock.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/fxrates/internal/config"
	"github.com/sawpanic/fxrates/internal/domain"
	"github.com/sawpanic/fxrates/internal/metrics"
	"github.com/sawpanic/fxrates/internal/persistence"
)

const (
	// leaseName coordinates scheduled imports across replicas.
	leaseName = "exchangeRateImport"

	// holdAtMost bounds a run; pick >= 10x expected duration because crash
	// recovery is purely time-based.
	holdAtMost = 15 * time.Minute

	// holdAtLeast keeps a completed lease alive briefly so a fast run cannot
	// let another replica re-fire at the same instant.
	holdAtLeast = time.Minute
)

// ImportRunner is the slice of the import engine the scheduler drives.
type ImportRunner interface {
	ImportLatestExchangeRates(ctx context.Context) ([]domain.ImportResult, error)
	ImportMissingExchangeRates(ctx context.Context) ([]domain.ImportResult, error)
}

// Scheduler fires the import on a cron schedule with a bounded in-process
// retry ladder. Every attempt, retries included, takes the lease first.
type Scheduler struct {
	schedule    cron.Schedule
	lease       persistence.LeaseRepo
	runner      ImportRunner
	maxAttempts int
	retryDelay  time.Duration
	logger      zerolog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// New parses the cron expression (Quartz-style seconds field and '?' are
// accepted) and wires the scheduler.
func New(cfg config.ImportConfig, lease persistence.LeaseRepo, runner ImportRunner) (*Scheduler, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(cfg.Cron)
	if err != nil {
		return nil, fmt.Errorf("invalid import cron %q: %w", cfg.Cron, err)
	}

	return &Scheduler{
		schedule:    schedule,
		lease:       lease,
		runner:      runner,
		maxAttempts: cfg.Retry.MaxAttempts,
		retryDelay:  time.Duration(cfg.Retry.DelayMinutes) * time.Minute,
		logger:      log.With().Str("component", "scheduler").Logger(),
		stop:        make(chan struct{}),
	}, nil
}

// RunStartupImport synchronously imports series with no stored rates. A
// failure here is fatal to the caller: the process refuses to serve without
// data it was configured to have.
func (s *Scheduler) RunStartupImport(ctx context.Context) error {
	results, err := s.runner.ImportMissingExchangeRates(ctx)
	if err != nil {
		return fmt.Errorf("startup import failed: %w", err)
	}
	for _, r := range results {
		if r.Error != "" {
			return fmt.Errorf("startup import failed for %s: %s", r.CurrencyCode, r.Error)
		}
	}
	s.logger.Info().Int("series", len(results)).Msg("startup import completed")
	return nil
}

// Start launches the cron loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop halts the loop and waits for an in-flight run.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		next := s.schedule.Next(time.Now())
		s.logger.Debug().Time("next_fire", next).Msg("sleeping until next scheduled import")

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
			s.fire(ctx)
		}
	}
}

// fire runs the attempt ladder for one scheduled instant. Provider failures
// never propagate past the ladder; an exhausted run is recorded and the next
// cron fire starts from scratch.
func (s *Scheduler) fire(ctx context.Context) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		executed, err := s.runUnderLease(ctx)
		if err == nil {
			if executed {
				metrics.ScheduledRuns.WithLabelValues("executed").Inc()
			} else {
				metrics.ScheduledRuns.WithLabelValues("lease_held").Inc()
				s.logger.Info().Msg("scheduled import skipped, lease held elsewhere")
			}
			return
		}

		s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.maxAttempts).
			Msg("scheduled import attempt failed")

		if attempt == s.maxAttempts {
			metrics.ScheduledRuns.WithLabelValues("exhausted").Inc()
			s.logger.Error().Msg("scheduled import exhausted all attempts")
			return
		}

		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(s.retryDelay):
		}
	}
}

// runUnderLease takes the lease and runs the incremental import. executed is
// false when another replica holds the lease, which is a successful no-op.
func (s *Scheduler) runUnderLease(ctx context.Context) (executed bool, err error) {
	lease, err := s.lease.TryAcquire(ctx, leaseName, holdAtMost, holdAtLeast)
	if err != nil {
		return false, err
	}
	if lease == nil {
		return false, nil
	}
	defer func() {
		if releaseErr := lease.Release(ctx); releaseErr != nil {
			s.logger.Warn().Err(releaseErr).Msg("lease release failed")
		}
	}()

	results, err := s.runner.ImportLatestExchangeRates(ctx)
	if err != nil {
		return true, err
	}

	var failed int
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if failed > 0 {
		// Per-series failures are reported in the results and retried on the
		// next attempt; they do not abort the run that produced them.
		return true, fmt.Errorf("%d of %d series failed to import", failed, len(results))
	}
	return true, nil
}
