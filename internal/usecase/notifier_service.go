package usecase

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
)

const DefaultNotifyMinOdds = 1.5

type NotifyRules struct {
	MinOdds float64
}

// ShouldNotify reports whether a recommendation is worth a message. When a
// favorite exists its live price must have drifted above the pre-match price.
func ShouldNotify(m match.Match, rules NotifyRules) bool {
	if m.RecommendedOutcome == nil || m.RecommendationOdds == nil {
		return false
	}
	if m.Verdict != nil && *m.Verdict == match.VerdictNoBet {
		return false
	}
	if *m.RecommendationOdds <= rules.MinOdds {
		return false
	}
	if m.HasFavorite() {
		if m.LiveOdds == nil || m.LastOdds == nil {
			return false
		}
		return *m.LiveOdds > *m.LastOdds
	}
	return true
}

// NotifiedSet remembers fixtures already announced by this process.
type NotifiedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewNotifiedSet() *NotifiedSet {
	return &NotifiedSet{seen: make(map[string]struct{})}
}

// Claim returns true the first time fixtureID is seen.
func (s *NotifiedSet) Claim(fixtureID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.seen[fixtureID]; ok {
		return false
	}
	s.seen[fixtureID] = struct{}{}
	return true
}

func (s *NotifiedSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

type NotifierService struct {
	notifier Notifier
	rules    NotifyRules
	sent     *NotifiedSet
	logger   *logging.Logger
}

func NewNotifierService(notifier Notifier, rules NotifyRules, sent *NotifiedSet, logger *logging.Logger) *NotifierService {
	if rules.MinOdds <= 0 {
		rules.MinOdds = DefaultNotifyMinOdds
	}
	if sent == nil {
		sent = NewNotifiedSet()
	}
	return &NotifierService{
		notifier: notifier,
		rules:    rules,
		sent:     sent,
		logger:   logging.OrDefault(logger).Named("notifier"),
	}
}

// Evaluate sends at most one message per fixture. Delivery failures are
// logged and never retried.
func (s *NotifierService) Evaluate(ctx context.Context, m match.Match) bool {
	if s == nil || s.notifier == nil {
		return false
	}
	if !ShouldNotify(m, s.rules) {
		return false
	}
	if !s.sent.Claim(m.FixtureID) {
		return false
	}

	if err := s.notifier.Send(ctx, FormatRecommendationMessage(m)); err != nil {
		s.logger.WarnContext(ctx, "notification delivery failed", "fixture_id", m.FixtureID, "error", err)
		return false
	}
	s.logger.InfoContext(ctx, "notification sent", "fixture_id", m.FixtureID, "outcome", string(*m.RecommendedOutcome))
	return true
}

// FormatRecommendationMessage renders the Telegram HTML body.
func FormatRecommendationMessage(m match.Match) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s vs %s</b>\n", html.EscapeString(m.HomeTeam), html.EscapeString(m.AwayTeam))
	if m.LeagueKey != "" {
		fmt.Fprintf(&b, "League: %s\n", html.EscapeString(m.LeagueKey))
	}
	if m.CurrentScore != nil {
		fmt.Fprintf(&b, "Score: %d-%d\n", m.CurrentScore.Home, m.CurrentScore.Away)
	}
	if m.HasFavorite() {
		fmt.Fprintf(&b, "Favorite: %s (pre-match %s, live %s)\n",
			html.EscapeString(m.FavoriteTeam), formatOdds(m.LastOdds), formatOdds(m.LiveOdds))
	}
	fmt.Fprintf(&b, "Pick: <b>%s</b> @ %s\n", *m.RecommendedOutcome, formatOdds(m.RecommendationOdds))
	if m.AlternateOutcome != nil {
		confirmed := m.AlternateConfirmed != nil && *m.AlternateConfirmed
		fmt.Fprintf(&b, "Alternate: %s @ %s", *m.AlternateOutcome, formatOdds(m.AlternateOdds))
		if confirmed {
			b.WriteString(" (confirmed)")
		}
		b.WriteString("\n")
	}
	if m.RecommendationModel != nil {
		fmt.Fprintf(&b, "<i>%s</i>", html.EscapeString(*m.RecommendationModel))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatOdds(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", *v)
}
