package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultFavoriteCeiling = 1.5
	soccerGroup            = "Soccer"
)

type LeagueSyncConfig struct {
	Leagues         []string
	FavoriteCeiling float64
	Workers         int
	Location        *time.Location
}

type LeagueSyncResult struct {
	Added            int `json:"added"`
	Updated          int `json:"updated"`
	SkippedPast      int `json:"skipped_past"`
	SkippedFinished  int `json:"skipped_finished"`
	NoFavorite       int `json:"no_favorite"`
	WriteFailed      int `json:"write_failed"`
	LeaguesProcessed int `json:"leagues_processed"`
	LeaguesFailed    int `json:"leagues_failed"`
}

func (r *LeagueSyncResult) merge(other LeagueSyncResult) {
	r.Added += other.Added
	r.Updated += other.Updated
	r.SkippedPast += other.SkippedPast
	r.SkippedFinished += other.SkippedFinished
	r.NoFavorite += other.NoFavorite
	r.WriteFailed += other.WriteFailed
	r.LeaguesProcessed += other.LeaguesProcessed
	r.LeaguesFailed += other.LeaguesFailed
}

// LeagueSyncService pulls league odds and upserts one match row per fixture.
type LeagueSyncService struct {
	repo   match.Repository
	odds   OddsProvider
	cfg    LeagueSyncConfig
	logger *logging.Logger
	now    func() time.Time
}

func NewLeagueSyncService(repo match.Repository, odds OddsProvider, cfg LeagueSyncConfig, logger *logging.Logger) *LeagueSyncService {
	if cfg.FavoriteCeiling <= 0 {
		cfg.FavoriteCeiling = DefaultFavoriteCeiling
	}
	if cfg.Workers < 1 {
		cfg.Workers = 2
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &LeagueSyncService{
		repo:   repo,
		odds:   odds,
		cfg:    cfg,
		logger: logging.OrDefault(logger).Named("league_sync"),
		now:    time.Now,
	}
}

// Run syncs every configured league. A failing or panicking league is
// counted and logged without affecting the others.
func (s *LeagueSyncService) Run(ctx context.Context) (LeagueSyncResult, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LeagueSyncService.Run")
	defer span.End()

	var total LeagueSyncResult
	if s.odds == nil {
		return total, fmt.Errorf("%w: odds provider is not configured", ErrDependencyUnavailable)
	}
	if len(s.cfg.Leagues) == 0 {
		return total, fmt.Errorf("%w: no leagues configured", ErrInvalidInput)
	}

	var mu sync.Mutex
	workers := pool.New().WithMaxGoroutines(s.cfg.Workers)
	for _, league := range s.cfg.Leagues {
		league := league
		workers.Go(func() {
			var catcher panics.Catcher
			var tally LeagueSyncResult
			var err error
			catcher.Try(func() {
				tally, err = s.syncLeague(ctx, league)
			})
			if recovered := catcher.Recovered(); recovered != nil {
				err = recovered.AsError()
			}
			if err != nil {
				tally.LeaguesFailed++
				s.logger.ErrorContext(ctx, "league sync failed", "league", league, "error", err)
			} else {
				tally.LeaguesProcessed++
			}

			mu.Lock()
			total.merge(tally)
			mu.Unlock()
		})
	}
	workers.Wait()

	s.logger.InfoContext(ctx, "league sync finished",
		"leagues_processed", total.LeaguesProcessed,
		"leagues_failed", total.LeaguesFailed,
		"added", total.Added,
		"updated", total.Updated,
		"no_favorite", total.NoFavorite,
		"skipped_past", total.SkippedPast,
		"skipped_finished", total.SkippedFinished,
	)
	return total, nil
}

func (s *LeagueSyncService) syncLeague(ctx context.Context, league string) (LeagueSyncResult, error) {
	var tally LeagueSyncResult
	events, err := s.odds.FetchLeagueOdds(ctx, league)
	if err != nil {
		return tally, fmt.Errorf("fetch odds league=%s: %w", league, err)
	}

	now := s.now()
	for _, ev := range events {
		if strings.TrimSpace(ev.ID) == "" || ev.CommenceTime.IsZero() {
			continue
		}
		if ev.CommenceTime.Before(now) {
			tally.SkippedPast++
			continue
		}
		if err := s.upsertFixture(ctx, league, ev, &tally); err != nil {
			tally.WriteFailed++
			s.logger.ErrorContext(ctx, "upsert fixture failed", "league", league, "fixture_id", ev.ID, "error", err)
		}
	}
	return tally, nil
}

func (s *LeagueSyncService) upsertFixture(ctx context.Context, league string, ev ExternalOddsEvent, tally *LeagueSyncResult) error {
	quote := QuoteMarket(ev)
	favorite := quote.Favorite(ev.HomeTeam, ev.AwayTeam, s.cfg.FavoriteCeiling)

	existing, found, err := s.repo.GetByFixtureID(ctx, ev.ID)
	if err != nil {
		return fmt.Errorf("load match: %w", err)
	}

	if !found {
		leagueKey := ev.SportKey
		if leagueKey == "" {
			leagueKey = league
		}
		inserted, err := s.repo.Insert(ctx, match.NewMarket{
			FixtureID: ev.ID,
			LeagueKey: leagueKey,
			HomeTeam:  ev.HomeTeam,
			AwayTeam:  ev.AwayTeam,
			KickoffAt: ev.CommenceTime.UTC(),
			Location:  s.cfg.Location,
			Prices:    quote.Prices,
			Favorite:  favorite,
		})
		if err != nil {
			return fmt.Errorf("insert match: %w", err)
		}
		if inserted {
			tally.Added++
			if favorite == nil {
				tally.NoFavorite++
			}
		}
		return nil
	}

	if existing.Status == match.StatusFinished {
		tally.SkippedFinished++
		return nil
	}

	update := match.MarketUpdate{FixtureID: ev.ID, Prices: quote.Prices}
	switch {
	case existing.HasFavorite():
		update.LastOdds = quote.SidePrice(*existing.FavoriteIsHome)
	case favorite != nil:
		update.Favorite = favorite
	default:
		tally.NoFavorite++
	}

	updated, err := s.repo.UpdateMarket(ctx, update)
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if updated {
		tally.Updated++
	}
	return nil
}

// ValidateLeagues returns the configured keys the provider does not list as
// active soccer leagues without outrights.
func (s *LeagueSyncService) ValidateLeagues(ctx context.Context) ([]string, error) {
	if s.odds == nil {
		return nil, fmt.Errorf("%w: odds provider is not configured", ErrDependencyUnavailable)
	}
	leagues, err := s.odds.ListSoccerLeagues(ctx)
	if err != nil {
		return nil, fmt.Errorf("list soccer leagues: %w", err)
	}
	known := make(map[string]struct{}, len(leagues))
	for _, l := range leagues {
		if l.Group == soccerGroup && !l.HasOutrights {
			known[l.Key] = struct{}{}
		}
	}

	var unknown []string
	for _, key := range s.cfg.Leagues {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		s.logger.WarnContext(ctx, "configured leagues not offered by odds provider", "leagues", unknown)
	}
	return unknown, nil
}
