package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
)

// MatchRepository keeps matches in a map and applies the same conditional
// write rules as the SQL store.
type MatchRepository struct {
	mu      sync.RWMutex
	matches map[string]match.Match
	now     func() time.Time
}

func NewMatchRepository(seed ...match.Match) *MatchRepository {
	r := &MatchRepository{
		matches: make(map[string]match.Match, len(seed)),
		now:     time.Now,
	}
	for _, m := range seed {
		r.matches[m.FixtureID] = cloneMatch(m)
	}
	return r
}

func (r *MatchRepository) GetByFixtureID(_ context.Context, fixtureID string) (match.Match, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.matches[fixtureID]
	if !ok {
		return match.Match{}, false, nil
	}
	return cloneMatch(m), true, nil
}

func (r *MatchRepository) ListActive(_ context.Context) ([]match.Match, error) {
	return r.list(func(m match.Match) bool { return m.Status.IsActive() }), nil
}

func (r *MatchRepository) ListUnmatched(_ context.Context) ([]match.Match, error) {
	return r.list(func(m match.Match) bool { return m.Status.IsActive() && m.SecondaryEventID == nil }), nil
}

func (r *MatchRepository) AttachedEventIDs(_ context.Context, kickoffDate string) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []int64
	for _, m := range r.matches {
		if m.KickoffDate == kickoffDate && m.SecondaryEventID != nil {
			ids = append(ids, *m.SecondaryEventID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MatchRepository) list(keep func(match.Match) bool) []match.Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]match.Match, 0, len(r.matches))
	for _, m := range r.matches {
		if keep(m) {
			out = append(out, cloneMatch(m))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].KickoffAt.Equal(out[j].KickoffAt) {
			return out[i].KickoffAt.Before(out[j].KickoffAt)
		}
		return out[i].FixtureID < out[j].FixtureID
	})
	return out
}

func (r *MatchRepository) Insert(_ context.Context, input match.NewMarket) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.matches[input.FixtureID]; ok {
		return false, nil
	}
	now := r.now().UTC()
	date, clock := match.KickoffParts(input.KickoffAt, input.Location)
	m := match.Match{
		FixtureID:    input.FixtureID,
		LeagueKey:    input.LeagueKey,
		HomeTeam:     input.HomeTeam,
		AwayTeam:     input.AwayTeam,
		FavoriteTeam: match.NoFavorite,
		Status:       match.StatusScheduled,
		KickoffAt:    input.KickoffAt.UTC(),
		KickoffDate:  date,
		KickoffTime:  clock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	setPrices(&m, input.Prices)
	if fav := input.Favorite; fav != nil {
		setFavorite(&m, *fav)
	}
	r.matches[m.FixtureID] = m
	return true, nil
}

func (r *MatchRepository) UpdateMarket(_ context.Context, input match.MarketUpdate) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[input.FixtureID]
	if !ok || m.Status == match.StatusFinished {
		return false, nil
	}
	setPrices(&m, input.Prices)
	if input.Favorite != nil && !m.HasFavorite() {
		setFavorite(&m, *input.Favorite)
	} else if input.LastOdds != nil && m.HasFavorite() {
		m.LastOdds = float64Ptr(*input.LastOdds)
	}
	m.UpdatedAt = r.now().UTC()
	r.matches[m.FixtureID] = m
	return true, nil
}

func (r *MatchRepository) AttachSecondary(_ context.Context, fixtureID string, eventID int64, join *match.SecondaryJoin) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[fixtureID]
	if !ok || m.SecondaryEventID != nil {
		return false, nil
	}
	m.SecondaryEventID = &eventID
	if join != nil {
		copied := *join
		m.SecondaryJoin = &copied
	}
	m.UpdatedAt = r.now().UTC()
	r.matches[fixtureID] = m
	return true, nil
}

func (r *MatchRepository) AdvanceStatus(_ context.Context, fixtureID string, from, to match.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[fixtureID]
	if !ok || m.Status != from || !from.CanAdvanceTo(to) {
		return false, nil
	}
	m.Status = to
	m.UpdatedAt = r.now().UTC()
	r.matches[fixtureID] = m
	return true, nil
}

func (r *MatchRepository) ForceFinish(_ context.Context, fixtureID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[fixtureID]
	if !ok || !m.Status.IsActive() {
		return false, nil
	}
	m.Status = match.StatusFinished
	m.UpdatedAt = r.now().UTC()
	r.matches[fixtureID] = m
	return true, nil
}

func (r *MatchRepository) SaveSnapshot(_ context.Context, input match.Snapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[input.FixtureID]
	if !ok || m.HasSnapshot() || len(input.Payload) == 0 {
		return false, nil
	}
	m.StatsSnapshot = append([]byte(nil), input.Payload...)
	if input.Score != nil {
		score := *input.Score
		m.CurrentScore = &score
	}
	if input.LiveOdds != nil {
		m.LiveOdds = float64Ptr(*input.LiveOdds)
	}
	setPrices(&m, input.Prices)
	if input.Verdict != nil {
		verdict := *input.Verdict
		m.Verdict = &verdict
	}
	m.UpdatedAt = r.now().UTC()
	r.matches[m.FixtureID] = m
	return true, nil
}

func (r *MatchRepository) SaveRecommendation(_ context.Context, input match.Recommendation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[input.FixtureID]
	if !ok {
		return nil
	}
	m.RecommendedOutcome = input.Outcome
	m.RecommendationRationale = stringPtr(input.Rationale)
	m.RecommendationModel = stringPtr(input.Model)
	m.RecommendationOdds = input.Odds
	m.AlternateOutcome = input.AlternateOutcome
	m.AlternateOdds = input.AlternateOdds
	m.AlternateConfirmed = input.AlternateConfirmed
	if input.Verdict != nil {
		verdict := *input.Verdict
		m.Verdict = &verdict
	}
	m.UpdatedAt = r.now().UTC()
	r.matches[m.FixtureID] = m
	return nil
}

func (r *MatchRepository) SaveFinalResult(_ context.Context, input match.FinalResult) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[input.FixtureID]
	if !ok || m.Status == match.StatusFinished {
		return false, nil
	}
	home, away := input.Score.Home, input.Score.Away
	m.FinalScoreHome = &home
	m.FinalScoreAway = &away
	m.CurrentScore = &match.Score{Home: home, Away: away}
	if input.FavoriteWon != nil {
		won := *input.FavoriteWon
		m.FavoriteWon = &won
	}
	m.Status = match.StatusFinished
	m.UpdatedAt = r.now().UTC()
	r.matches[m.FixtureID] = m
	return true, nil
}

func setPrices(m *match.Match, prices match.ThreeWay) {
	if prices.Home != nil {
		m.Odds1 = float64Ptr(*prices.Home)
	}
	if prices.Draw != nil {
		m.OddsX = float64Ptr(*prices.Draw)
	}
	if prices.Away != nil {
		m.Odds2 = float64Ptr(*prices.Away)
	}
}

// setFavorite never overwrites an initial price already recorded.
func setFavorite(m *match.Match, fav match.Favorite) {
	isHome := fav.IsHome
	m.FavoriteTeam = fav.Team
	m.FavoriteIsHome = &isHome
	if m.InitialOdds == nil {
		m.InitialOdds = float64Ptr(fav.Price)
	}
	m.LastOdds = float64Ptr(fav.Price)
}

func cloneMatch(m match.Match) match.Match {
	if m.StatsSnapshot != nil {
		m.StatsSnapshot = append([]byte(nil), m.StatsSnapshot...)
	}
	return m
}

func float64Ptr(v float64) *float64 {
	return &v
}

func stringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
