package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

type ReconcileConfig struct {
	KickoffTolerance time.Duration
}

type ReconcileResult struct {
	Updated        int `json:"updated"`
	SecondPass     int `json:"second_pass"`
	Unmatched      int `json:"unmatched"`
	WriteFailed    int `json:"write_failed"`
	DatesProcessed int `json:"dates_processed"`
	DatesFailed    int `json:"dates_failed"`
}

// ReconcileService attaches statistics-provider event ids to fixtures that
// do not have one yet.
type ReconcileService struct {
	repo   match.Repository
	stats  StatsProvider
	cfg    ReconcileConfig
	logger *logging.Logger
}

func NewReconcileService(repo match.Repository, stats StatsProvider, cfg ReconcileConfig, logger *logging.Logger) *ReconcileService {
	if cfg.KickoffTolerance <= 0 {
		cfg.KickoffTolerance = DefaultKickoffTolerance
	}
	return &ReconcileService{
		repo:   repo,
		stats:  stats,
		cfg:    cfg,
		logger: logging.OrDefault(logger).Named("reconcile"),
	}
}

func (s *ReconcileService) Run(ctx context.Context) (ReconcileResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.ReconcileService.Run")
	defer span.End()

	var result ReconcileResult
	if s.stats == nil {
		return result, fmt.Errorf("%w: statistics provider is not configured", ErrDependencyUnavailable)
	}

	pending, err := s.repo.ListUnmatched(ctx)
	if err != nil {
		return result, fmt.Errorf("list unmatched matches: %w", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	byDate := make(map[string][]match.Match)
	for _, m := range pending {
		if m.KickoffDate == "" {
			continue
		}
		byDate[m.KickoffDate] = append(byDate[m.KickoffDate], m)
	}
	dates := make([]string, 0, len(byDate))
	for date := range byDate {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		events, err := s.stats.ScheduledEvents(ctx, date)
		if err != nil {
			result.DatesFailed++
			s.logger.WarnContext(ctx, "fetch scheduled events failed", "date", date, "matches", len(byDate[date]), "error", err)
			continue
		}
		attached, err := s.repo.AttachedEventIDs(ctx, date)
		if err != nil {
			result.DatesFailed++
			s.logger.WarnContext(ctx, "list attached events failed", "date", date, "error", err)
			continue
		}
		result.DatesProcessed++
		s.reconcileDate(ctx, date, byDate[date], withoutEvents(events, attached), &result)
	}

	span.SetAttributes(
		attribute.Int("reconcile.updated", result.Updated),
		attribute.Int("reconcile.unmatched", result.Unmatched),
	)
	s.logger.InfoContext(ctx, "reconcile finished",
		"updated", result.Updated,
		"second_pass", result.SecondPass,
		"unmatched", result.Unmatched,
		"dates_processed", result.DatesProcessed,
		"dates_failed", result.DatesFailed,
	)
	return result, nil
}

func (s *ReconcileService) reconcileDate(ctx context.Context, date string, matches []match.Match, events []SecondaryEvent, result *ReconcileResult) {
	for _, r := range ReconcileDate(matches, events, s.cfg.KickoffTolerance) {
		m := r.Match
		if r.Event == nil {
			result.Unmatched++
			s.logger.InfoContext(ctx, "no secondary event matched",
				"fixture_id", m.FixtureID,
				"home", m.HomeTeam,
				"away", m.AwayTeam,
				"date", date,
				"kickoff", m.KickoffTime,
				"candidates", len(events),
			)
			continue
		}

		attached, err := s.repo.AttachSecondary(ctx, m.FixtureID, r.Event.ID, r.Join())
		if err != nil {
			result.WriteFailed++
			s.logger.ErrorContext(ctx, "attach secondary event failed", "fixture_id", m.FixtureID, "event_id", r.Event.ID, "error", err)
			continue
		}
		if !attached {
			continue
		}
		result.Updated++
		if r.Pass == 2 {
			result.SecondPass++
		}
		s.logger.InfoContext(ctx, "secondary event attached",
			"fixture_id", m.FixtureID,
			"event_id", r.Event.ID,
			"pass", r.Pass,
		)
	}
}

// withoutEvents drops events already attached to another row on an earlier run.
func withoutEvents(events []SecondaryEvent, ids []int64) []SecondaryEvent {
	if len(ids) == 0 {
		return events
	}
	taken := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		taken[id] = struct{}{}
	}
	out := make([]SecondaryEvent, 0, len(events))
	for _, ev := range events {
		if _, ok := taken[ev.ID]; !ok {
			out = append(out, ev)
		}
	}
	return out
}
