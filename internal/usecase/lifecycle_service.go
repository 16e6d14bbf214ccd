package usecase

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultStaleAfter    = 36 * time.Hour
	DefaultFinalizeAfter = 115 * time.Minute
	defaultLifecycleWork = 4
)

type LifecycleConfig struct {
	StaleAfter    time.Duration
	FinalizeAfter time.Duration
	Workers       int
}

type LifecycleResult struct {
	Active        int `json:"active"`
	Started       int `json:"started"`
	ForceFinished int `json:"force_finished"`
	Collected     int `json:"collected"`
	Finalized     int `json:"finalized"`
	Skipped       int `json:"skipped"`
	Failed        int `json:"failed"`
}

type lifecycleCounters struct {
	started       atomic.Int32
	forceFinished atomic.Int32
	collected     atomic.Int32
	finalized     atomic.Int32
	skipped       atomic.Int32
	failed        atomic.Int32
}

func (c *lifecycleCounters) result(active int) LifecycleResult {
	return LifecycleResult{
		Active:        active,
		Started:       int(c.started.Load()),
		ForceFinished: int(c.forceFinished.Load()),
		Collected:     int(c.collected.Load()),
		Finalized:     int(c.finalized.Load()),
		Skipped:       int(c.skipped.Load()),
		Failed:        int(c.failed.Load()),
	}
}

// LifecycleService walks active matches forward in time: it starts them,
// triggers the mid-game collection, and closes them out.
type LifecycleService struct {
	repo      match.Repository
	stats     StatsProvider
	collector *CollectorService
	cfg       LifecycleConfig
	logger    *logging.Logger
	now       func() time.Time
}

func NewLifecycleService(repo match.Repository, stats StatsProvider, collector *CollectorService, cfg LifecycleConfig, logger *logging.Logger) *LifecycleService {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.FinalizeAfter <= 0 {
		cfg.FinalizeAfter = DefaultFinalizeAfter
	}
	if cfg.Workers < 1 {
		cfg.Workers = defaultLifecycleWork
	}
	return &LifecycleService{
		repo:      repo,
		stats:     stats,
		collector: collector,
		cfg:       cfg,
		logger:    logging.OrDefault(logger).Named("lifecycle"),
		now:       time.Now,
	}
}

// Tick advances every active match by at most one lifecycle step each.
func (s *LifecycleService) Tick(ctx context.Context) (LifecycleResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LifecycleService.Tick")
	defer span.End()

	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return LifecycleResult{}, fmt.Errorf("list active matches: %w", err)
	}

	now := s.now()
	var counters lifecycleCounters
	err = s.forEachMatch(ctx, active, &counters, func(ctx context.Context, m match.Match) error {
		return s.tickMatch(ctx, m, now, &counters)
	})
	result := counters.result(len(active))
	span.SetAttributes(attribute.Int("lifecycle.active", result.Active), attribute.Int("lifecycle.failed", result.Failed))
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "lifecycle tick finished",
		"active", result.Active,
		"started", result.Started,
		"force_finished", result.ForceFinished,
		"collected", result.Collected,
		"failed", result.Failed,
	)
	return result, nil
}

func (s *LifecycleService) tickMatch(ctx context.Context, m match.Match, now time.Time, counters *lifecycleCounters) error {
	elapsed := now.Sub(m.KickoffAt)
	if elapsed < 0 {
		counters.skipped.Add(1)
		return nil
	}

	if m.Status == match.StatusScheduled {
		advanced, err := s.repo.AdvanceStatus(ctx, m.FixtureID, match.StatusScheduled, match.StatusInProgress)
		if err != nil {
			return fmt.Errorf("advance status: %w", err)
		}
		if advanced {
			counters.started.Add(1)
			s.logger.InfoContext(ctx, "match started", "fixture_id", m.FixtureID, "home", m.HomeTeam, "away", m.AwayTeam)
		}
		m.Status = match.StatusInProgress
	}

	if elapsed >= s.cfg.StaleAfter {
		finished, err := s.repo.ForceFinish(ctx, m.FixtureID)
		if err != nil {
			return fmt.Errorf("force finish: %w", err)
		}
		if finished {
			counters.forceFinished.Add(1)
			s.logger.WarnContext(ctx, "stale match closed without score", "fixture_id", m.FixtureID, "elapsed", elapsed.String())
		}
		return nil
	}

	if s.collector == nil || !s.collector.Due(m, now) {
		return nil
	}
	outcome, err := s.collector.Collect(ctx, m)
	if err != nil {
		return fmt.Errorf("collect (%s): %w", outcome, err)
	}
	switch outcome {
	case CollectCaptured, CollectGatedNoBet, CollectAdvised, CollectNoRecommendation:
		counters.collected.Add(1)
	}
	return nil
}

// Finalize stores the final score for matches the statistics provider reports
// as finished.
func (s *LifecycleService) Finalize(ctx context.Context) (LifecycleResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LifecycleService.Finalize")
	defer span.End()

	if s.stats == nil {
		return LifecycleResult{}, fmt.Errorf("%w: statistics provider is not configured", ErrDependencyUnavailable)
	}
	active, err := s.repo.ListActive(ctx)
	if err != nil {
		return LifecycleResult{}, fmt.Errorf("list active matches: %w", err)
	}

	now := s.now()
	due := make([]match.Match, 0, len(active))
	for _, m := range active {
		if m.SecondaryEventID != nil && now.Sub(m.KickoffAt) >= s.cfg.FinalizeAfter {
			due = append(due, m)
		}
	}

	var counters lifecycleCounters
	err = s.forEachMatch(ctx, due, &counters, s.finalizeMatch(&counters))
	result := counters.result(len(due))
	if err != nil {
		return result, err
	}

	s.logger.InfoContext(ctx, "finalize finished", "due", len(due), "finalized", result.Finalized, "failed", result.Failed)
	return result, nil
}

func (s *LifecycleService) finalizeMatch(counters *lifecycleCounters) func(context.Context, match.Match) error {
	return func(ctx context.Context, m match.Match) error {
		detail, err := s.stats.EventDetail(ctx, *m.SecondaryEventID)
		if err != nil {
			return fmt.Errorf("fetch event detail event_id=%d: %w", *m.SecondaryEventID, err)
		}
		if !detail.Finished() || detail.HomeScore == nil || detail.AwayScore == nil {
			counters.skipped.Add(1)
			return nil
		}

		score := match.Score{Home: *detail.HomeScore, Away: *detail.AwayScore}
		saved, err := s.repo.SaveFinalResult(ctx, match.FinalResult{
			FixtureID:   m.FixtureID,
			Score:       score,
			FavoriteWon: m.FavoriteWonWith(score),
		})
		if err != nil {
			return fmt.Errorf("save final result: %w", err)
		}
		if saved {
			counters.finalized.Add(1)
			s.logger.InfoContext(ctx, "match finalized", "fixture_id", m.FixtureID, "score", scoreText(&score))
		}
		return nil
	}
}

// forEachMatch runs fn per match on a bounded pool. A failing or panicking
// match is counted and logged, the rest keep going.
func (s *LifecycleService) forEachMatch(ctx context.Context, matches []match.Match, counters *lifecycleCounters, fn func(context.Context, match.Match) error) error {
	if len(matches) == 0 {
		return nil
	}
	workerCount := s.cfg.Workers
	if workerCount > len(matches) {
		workerCount = len(matches)
	}

	pool, err := ants.NewPool(workerCount)
	if err != nil {
		return fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, m := range matches {
		m := m
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			defer func() {
				if recovered := recover(); recovered != nil {
					counters.failed.Add(1)
					s.logger.ErrorContext(ctx, "match task panicked", "fixture_id", m.FixtureID, "panic", fmt.Sprint(recovered), "stack", string(debug.Stack()))
				}
			}()

			if ctx.Err() != nil {
				counters.skipped.Add(1)
				return
			}
			if err := fn(ctx, m); err != nil {
				counters.failed.Add(1)
				s.logger.WarnContext(ctx, "match task failed", "fixture_id", m.FixtureID, "error", err)
			}
		}); err != nil {
			workers.Done()
			return fmt.Errorf("submit task to worker pool: %w", err)
		}
	}
	workers.Wait()
	return nil
}
