package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultCollectorOffset = 50 * time.Minute
	DefaultCollectorWindow = 15 * time.Minute
)

type CollectorConfig struct {
	Offset             time.Duration
	Window             time.Duration
	SkipLosingFavorite bool
}

// CollectOutcome says how far one collection attempt got.
type CollectOutcome string

const (
	CollectSkipped          CollectOutcome = "skipped"
	CollectAlreadyCaptured  CollectOutcome = "already_captured"
	CollectCaptured         CollectOutcome = "captured"
	CollectGatedNoBet       CollectOutcome = "gated_no_bet"
	CollectAdvised          CollectOutcome = "advised"
	CollectNoRecommendation CollectOutcome = "no_recommendation"
)

// CollectorService captures the one mid-game snapshot per match and hands it
// to the advisory chain.
type CollectorService struct {
	repo     match.Repository
	stats    StatsProvider
	odds     OddsProvider
	advisory *AdvisoryService
	notifier *NotifierService
	cfg      CollectorConfig
	logger   *logging.Logger
	now      func() time.Time
}

func NewCollectorService(
	repo match.Repository,
	stats StatsProvider,
	odds OddsProvider,
	advisory *AdvisoryService,
	notifier *NotifierService,
	cfg CollectorConfig,
	logger *logging.Logger,
) *CollectorService {
	if cfg.Offset <= 0 {
		cfg.Offset = DefaultCollectorOffset
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultCollectorWindow
	}
	return &CollectorService{
		repo:     repo,
		stats:    stats,
		odds:     odds,
		advisory: advisory,
		notifier: notifier,
		cfg:      cfg,
		logger:   logging.OrDefault(logger).Named("collector"),
		now:      time.Now,
	}
}

// Due reports whether m sits inside the collection window without a snapshot.
func (s *CollectorService) Due(m match.Match, now time.Time) bool {
	if m.HasSnapshot() || m.SecondaryEventID == nil || !m.Status.IsActive() {
		return false
	}
	elapsed := now.Sub(m.KickoffAt)
	return elapsed >= s.cfg.Offset && elapsed <= s.cfg.Offset+s.cfg.Window
}

// Collect captures statistics, score and live odds for m. Once a snapshot
// exists every further call is a no-op.
func (s *CollectorService) Collect(ctx context.Context, m match.Match) (CollectOutcome, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.CollectorService.Collect", attribute.String("fixture_id", m.FixtureID))
	defer span.End()

	if m.HasSnapshot() {
		return CollectAlreadyCaptured, nil
	}
	if m.SecondaryEventID == nil {
		return CollectSkipped, nil
	}
	if s.stats == nil {
		return CollectSkipped, fmt.Errorf("%w: statistics provider is not configured", ErrDependencyUnavailable)
	}
	eventID := *m.SecondaryEventID
	now := s.now()
	elapsed := int(math.Floor(m.ElapsedMinutes(now)))

	statistics, err := s.stats.EventStatistics(ctx, eventID)
	if err != nil {
		return CollectSkipped, fmt.Errorf("fetch statistics event_id=%d: %w", eventID, err)
	}

	score := s.currentScore(ctx, m, eventID)
	prices, liveOdds := s.liveMarket(ctx, m)

	payload, err := sonic.Marshal(statsSnapshot{
		CapturedAt:     now.UTC(),
		ElapsedMinutes: elapsed,
		Score:          score,
		Highlights:     extractHighlights(statistics),
		Periods:        statistics.Periods,
	})
	if err != nil {
		return CollectSkipped, fmt.Errorf("encode snapshot: %w", err)
	}

	gated := s.cfg.SkipLosingFavorite && score != nil && m.FavoriteLosing(*score)
	snapshot := match.Snapshot{
		FixtureID: m.FixtureID,
		Payload:   payload,
		Score:     score,
		LiveOdds:  liveOdds,
		Prices:    prices,
	}
	if gated {
		noBet := match.VerdictNoBet
		snapshot.Verdict = &noBet
	}

	written, err := s.repo.SaveSnapshot(ctx, snapshot)
	if err != nil {
		return CollectSkipped, fmt.Errorf("save snapshot: %w", err)
	}
	if !written {
		return CollectAlreadyCaptured, nil
	}
	m = applySnapshot(m, snapshot)
	s.logger.InfoContext(ctx, "snapshot captured",
		"fixture_id", m.FixtureID,
		"event_id", eventID,
		"elapsed_minutes", elapsed,
		"score", scoreText(score),
		"live_odds", floatOrNil(liveOdds),
		"gated", gated,
	)

	if gated {
		s.logger.InfoContext(ctx, "favorite losing at snapshot, no advisory", "fixture_id", m.FixtureID, "favorite", m.FavoriteTeam)
		return CollectGatedNoBet, nil
	}
	if !s.advisory.Enabled() {
		return CollectCaptured, nil
	}

	rec, adviseErr := s.advisory.Advise(ctx, AdviceInput{
		Match:          m,
		Score:          score,
		ElapsedMinutes: elapsed,
		Snapshot:       payload,
	})
	if rec.Rationale == "" && rec.Outcome == nil {
		return CollectNoRecommendation, fmt.Errorf("advise: %w", adviseErr)
	}
	if err := s.repo.SaveRecommendation(ctx, rec); err != nil {
		return CollectNoRecommendation, fmt.Errorf("save recommendation: %w", err)
	}
	if adviseErr != nil {
		if !errors.Is(adviseErr, ErrNoOutcome) {
			return CollectNoRecommendation, adviseErr
		}
		s.logger.WarnContext(ctx, "no tier produced an outcome, raw answer stored", "fixture_id", m.FixtureID, "model", rec.Model)
		return CollectNoRecommendation, nil
	}

	m = applyRecommendation(m, rec)
	if s.notifier != nil {
		s.notifier.Evaluate(ctx, m)
	}
	return CollectAdvised, nil
}

func (s *CollectorService) currentScore(ctx context.Context, m match.Match, eventID int64) *match.Score {
	detail, err := s.stats.EventDetail(ctx, eventID)
	if err != nil {
		s.logger.WarnContext(ctx, "fetch event detail failed, snapshot without score", "fixture_id", m.FixtureID, "event_id", eventID, "error", err)
		return m.CurrentScore
	}
	if detail.HomeScore == nil || detail.AwayScore == nil {
		return m.CurrentScore
	}
	return &match.Score{Home: *detail.HomeScore, Away: *detail.AwayScore}
}

// liveMarket refreshes the three-way prices. On failure the stored prices stay.
func (s *CollectorService) liveMarket(ctx context.Context, m match.Match) (match.ThreeWay, *float64) {
	if s.odds == nil || m.LeagueKey == "" {
		return match.ThreeWay{}, nil
	}
	ev, err := s.odds.FetchEventOdds(ctx, m.LeagueKey, m.FixtureID)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh live odds failed", "fixture_id", m.FixtureID, "league", m.LeagueKey, "error", err)
		return match.ThreeWay{}, nil
	}
	if ev.HomeTeam == "" {
		ev.HomeTeam, ev.AwayTeam = m.HomeTeam, m.AwayTeam
	}
	quote := QuoteMarket(ev)
	if !m.HasFavorite() {
		return quote.Prices, nil
	}
	return quote.Prices, quote.SidePrice(*m.FavoriteIsHome)
}

type sideHighlights struct {
	Possession    *float64 `json:"possession,omitempty"`
	ShotsOnTarget *float64 `json:"shots_on_target,omitempty"`
	ExpectedGoals *float64 `json:"xg,omitempty"`
}

type statsSnapshot struct {
	CapturedAt     time.Time                 `json:"captured_at"`
	ElapsedMinutes int                       `json:"elapsed_minutes"`
	Score          *match.Score              `json:"score"`
	Highlights     map[string]sideHighlights `json:"highlights"`
	Periods        []StatisticsPeriod        `json:"periods"`
}

var highlightKeys = map[string]string{
	"ballpossession":  "possession",
	"ball possession": "possession",
	"shotsongoal":     "shots_on_target",
	"shots on target": "shots_on_target",
	"expectedgoals":   "xg",
	"expected goals":  "xg",
}

// extractHighlights pulls possession, shots on target and xG from the
// whole-match period, falling back to the first period.
func extractHighlights(stats SecondaryStatistics) map[string]sideHighlights {
	out := map[string]sideHighlights{}
	if len(stats.Periods) == 0 {
		return out
	}
	period := stats.Periods[0]
	for _, p := range stats.Periods {
		if strings.EqualFold(p.Period, "ALL") {
			period = p
			break
		}
	}

	var home, away sideHighlights
	for _, group := range period.Groups {
		for _, item := range group.Items {
			metric, ok := highlightKeys[strings.ToLower(item.Key)]
			if !ok {
				metric, ok = highlightKeys[strings.ToLower(item.Name)]
			}
			if !ok {
				continue
			}
			setHighlight(&home, metric, statValue(item.HomeValue, item.Home))
			setHighlight(&away, metric, statValue(item.AwayValue, item.Away))
		}
	}
	out["home"] = home
	out["away"] = away
	return out
}

func setHighlight(h *sideHighlights, metric string, v *float64) {
	if v == nil {
		return
	}
	switch metric {
	case "possession":
		if h.Possession == nil {
			h.Possession = v
		}
	case "shots_on_target":
		if h.ShotsOnTarget == nil {
			h.ShotsOnTarget = v
		}
	case "xg":
		if h.ExpectedGoals == nil {
			h.ExpectedGoals = v
		}
	}
}

func statValue(numeric *float64, display string) *float64 {
	if numeric != nil {
		return numeric
	}
	display = strings.TrimSuffix(strings.TrimSpace(display), "%")
	if display == "" {
		return nil
	}
	v, err := strconv.ParseFloat(display, 64)
	if err != nil {
		return nil
	}
	return &v
}

func applySnapshot(m match.Match, snap match.Snapshot) match.Match {
	m.StatsSnapshot = snap.Payload
	if snap.Score != nil {
		m.CurrentScore = snap.Score
	}
	if snap.LiveOdds != nil {
		m.LiveOdds = snap.LiveOdds
	}
	if snap.Prices.Home != nil {
		m.Odds1 = snap.Prices.Home
	}
	if snap.Prices.Draw != nil {
		m.OddsX = snap.Prices.Draw
	}
	if snap.Prices.Away != nil {
		m.Odds2 = snap.Prices.Away
	}
	if snap.Verdict != nil {
		m.Verdict = snap.Verdict
	}
	return m
}

func applyRecommendation(m match.Match, rec match.Recommendation) match.Match {
	m.RecommendedOutcome = rec.Outcome
	if rec.Rationale != "" {
		m.RecommendationRationale = &rec.Rationale
	}
	if rec.Model != "" {
		m.RecommendationModel = &rec.Model
	}
	m.RecommendationOdds = rec.Odds
	m.AlternateOutcome = rec.AlternateOutcome
	m.AlternateOdds = rec.AlternateOdds
	m.AlternateConfirmed = rec.AlternateConfirmed
	if rec.Verdict != nil {
		m.Verdict = rec.Verdict
	}
	return m
}

func scoreText(score *match.Score) string {
	if score == nil {
		return "unknown"
	}
	return strconv.Itoa(score.Home) + "-" + strconv.Itoa(score.Away)
}

func floatOrNil(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
