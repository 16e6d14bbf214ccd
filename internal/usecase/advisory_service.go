package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
	"github.com/valyala/bytebufferpool"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// MaxAdvisoryTiers is the primary endpoint plus three fallbacks.
	MaxAdvisoryTiers        = 4
	DefaultAlternateMinOdds = 1.10

	defaultTierAttempts  = 2
	defaultTierBaseDelay = 500 * time.Millisecond
	defaultTierMaxDelay  = 2 * time.Second
)

// AdvisoryTier is one inference endpoint in the fallback chain.
type AdvisoryTier struct {
	Label    string
	Provider InferenceProvider
}

type AdvisoryConfig struct {
	AlternateMinOdds float64
	// Retry applies per tier before the chain moves on. Only rate limits and
	// unavailable upstreams are retried.
	Retry resilience.RetryPolicy
}

// AdvisoryService asks the tiers in order and keeps the first answer that
// carries an outcome code.
type AdvisoryService struct {
	tiers  []AdvisoryTier
	parser RecommendationParser
	cfg    AdvisoryConfig
	logger *logging.Logger
}

func NewAdvisoryService(tiers []AdvisoryTier, parser RecommendationParser, cfg AdvisoryConfig, logger *logging.Logger) *AdvisoryService {
	if parser == nil {
		parser = RegexRecommendationParser{}
	}
	if cfg.AlternateMinOdds <= 0 {
		cfg.AlternateMinOdds = DefaultAlternateMinOdds
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = defaultTierAttempts
	}
	if cfg.Retry.BaseDelay <= 0 {
		cfg.Retry.BaseDelay = defaultTierBaseDelay
	}
	if cfg.Retry.MaxDelay <= 0 {
		cfg.Retry.MaxDelay = defaultTierMaxDelay
	}
	kept := make([]AdvisoryTier, 0, MaxAdvisoryTiers)
	for _, tier := range tiers {
		if tier.Provider == nil {
			continue
		}
		if tier.Label == "" {
			tier.Label = tier.Provider.Name()
		}
		kept = append(kept, tier)
		if len(kept) == MaxAdvisoryTiers {
			break
		}
	}
	return &AdvisoryService{
		tiers:  kept,
		parser: parser,
		cfg:    cfg,
		logger: logging.OrDefault(logger).Named("advisory"),
	}
}

func (s *AdvisoryService) Enabled() bool {
	return s != nil && len(s.tiers) > 0
}

// AdviceInput is the match as refreshed by the collector plus its snapshot.
type AdviceInput struct {
	Match          match.Match
	Score          *match.Score
	ElapsedMinutes int
	Snapshot       []byte
}

// Advise walks the tier chain. When no tier yields an outcome the returned
// recommendation still carries the last raw answer, with a wrapped ErrNoOutcome.
func (s *AdvisoryService) Advise(ctx context.Context, input AdviceInput) (match.Recommendation, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.AdvisoryService.Advise", attribute.String("fixture_id", input.Match.FixtureID))
	defer span.End()

	rec := match.Recommendation{FixtureID: input.Match.FixtureID}
	if !s.Enabled() {
		return rec, fmt.Errorf("%w: no advisory tiers configured", ErrDependencyUnavailable)
	}

	prompt, err := BuildAdvisoryPrompt(input)
	if err != nil {
		return rec, fmt.Errorf("build advisory prompt: %w", err)
	}

	var lastErr error
	for i, tier := range s.tiers {
		started := time.Now()
		text, err := s.complete(ctx, tier, prompt)
		if err != nil {
			lastErr = fmt.Errorf("tier %s: %w", tier.Label, err)
			s.logger.WarnContext(ctx, "advisory tier failed", "fixture_id", rec.FixtureID, "tier", tier.Label, "position", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			lastErr = fmt.Errorf("tier %s: empty response", tier.Label)
			continue
		}
		rec.Rationale = text
		rec.Model = tier.Label

		parsed, err := s.parser.Parse(text)
		if err != nil {
			lastErr = fmt.Errorf("tier %s: %w", tier.Label, err)
			s.logger.WarnContext(ctx, "advisory response unparseable", "fixture_id", rec.FixtureID, "tier", tier.Label, "chars", len(text))
			continue
		}

		s.apply(&rec, parsed, input.Match)
		s.logger.InfoContext(ctx, "advisory answered",
			"fixture_id", rec.FixtureID,
			"tier", tier.Label,
			"outcome", string(parsed.Outcome),
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return rec, nil
	}

	if lastErr == nil || !errors.Is(lastErr, ErrNoOutcome) {
		lastErr = errors.Join(ErrNoOutcome, lastErr)
	}
	return rec, lastErr
}

func (s *AdvisoryService) complete(ctx context.Context, tier AdvisoryTier, prompt string) (string, error) {
	var text string
	err := s.cfg.Retry.Do(ctx, func(ctx context.Context, attempt int) error {
		out, err := tier.Provider.Complete(ctx, prompt)
		if err == nil {
			text = out
			return nil
		}
		if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrDependencyUnavailable) {
			s.logger.WarnContext(ctx, "advisory tier transient failure", "tier", tier.Label, "attempt", attempt, "error", err)
			return resilience.MarkRetryable(err, resilience.RetryHint{})
		}
		return err
	})
	return text, err
}

func (s *AdvisoryService) apply(rec *match.Recommendation, parsed ParsedRecommendation, m match.Match) {
	prices := match.ThreeWay{Home: m.Odds1, Draw: m.OddsX, Away: m.Odds2}

	outcome := parsed.Outcome
	rec.Outcome = &outcome
	if price, ok := RecommendationOdds(outcome, prices); ok {
		rounded := RoundOdds(price)
		rec.Odds = &rounded
	}

	if parsed.Bet != nil {
		verdict := match.VerdictNoBet
		if *parsed.Bet {
			verdict = match.VerdictBet
		}
		rec.Verdict = &verdict
	}

	if parsed.Alternate == nil {
		return
	}
	alternate := *parsed.Alternate
	rec.AlternateOutcome = &alternate
	altPrice, ok := RecommendationOdds(alternate, prices)
	if !ok {
		return
	}
	altRounded := RoundOdds(altPrice)
	rec.AlternateOdds = &altRounded
	if rec.Odds != nil {
		confirmed := AlternateConfirmed(altRounded, *rec.Odds, s.cfg.AlternateMinOdds)
		rec.AlternateConfirmed = &confirmed
	}
}

type advisoryMarket struct {
	Odds1          *float64 `json:"odds_1"`
	OddsX          *float64 `json:"odds_x"`
	Odds2          *float64 `json:"odds_2"`
	Favorite       string   `json:"favorite,omitempty"`
	FavoriteIsHome *bool    `json:"favorite_is_home,omitempty"`
	InitialOdds    *float64 `json:"initial_odds,omitempty"`
	LastOdds       *float64 `json:"last_odds,omitempty"`
	LiveOdds       *float64 `json:"live_odds,omitempty"`
}

type advisoryContext struct {
	HomeTeam       string          `json:"home_team"`
	AwayTeam       string          `json:"away_team"`
	League         string          `json:"league"`
	Kickoff        string          `json:"kickoff"`
	ElapsedMinutes int             `json:"elapsed_minutes"`
	Score          *match.Score    `json:"score"`
	Market         advisoryMarket  `json:"market"`
	Statistics     json.RawMessage `json:"statistics,omitempty"`
}

const advisoryInstruction = `You are a football betting analyst. A match is in progress; the JSON below holds the teams, the current score, the 1X2 market and the live statistics.
Choose exactly one outcome code for the final result:
  1  = home win
  1X = home win or draw
  X  = draw
  X2 = draw or away win
  2  = away win
Answer in exactly this format, nothing before it:
OUTCOME: <1|1X|X|X2|2>
BET: <YES|NO>
ALTERNATE: <1|1X|X|X2|2>
REASON: <two or three sentences>

Match data:
`

// BuildAdvisoryPrompt renders the instruction followed by the match context.
// The same input always produces the same prompt.
func BuildAdvisoryPrompt(input AdviceInput) (string, error) {
	m := input.Match
	payload := advisoryContext{
		HomeTeam:       m.HomeTeam,
		AwayTeam:       m.AwayTeam,
		League:         m.LeagueKey,
		Kickoff:        strings.TrimSpace(m.KickoffDate + " " + m.KickoffTime),
		ElapsedMinutes: input.ElapsedMinutes,
		Score:          input.Score,
		Market: advisoryMarket{
			Odds1:       m.Odds1,
			OddsX:       m.OddsX,
			Odds2:       m.Odds2,
			InitialOdds: m.InitialOdds,
			LastOdds:    m.LastOdds,
			LiveOdds:    m.LiveOdds,
		},
	}
	if m.HasFavorite() {
		payload.Market.Favorite = m.FavoriteTeam
		payload.Market.FavoriteIsHome = m.FavoriteIsHome
	}
	if len(input.Snapshot) > 0 {
		payload.Statistics = json.RawMessage(input.Snapshot)
	}

	encoded, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode advisory context: %w", err)
	}

	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.WriteString(advisoryInstruction)
	_, _ = buf.Write(encoded)
	return buf.String(), nil
}
