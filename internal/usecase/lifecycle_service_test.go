package usecase

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/infrastructure/repository/memory"
)

var tickNow = time.Date(2026, 10, 4, 20, 0, 0, 0, time.UTC)

// panickyRepository blows up when a chosen fixture is advanced.
type panickyRepository struct {
	match.Repository
	fixtureID string
}

func (r *panickyRepository) AdvanceStatus(ctx context.Context, fixtureID string, from, to match.Status) (bool, error) {
	if fixtureID == r.fixtureID {
		panic("corrupt row")
	}
	return r.Repository.AdvanceStatus(ctx, fixtureID, from, to)
}

func scheduledAt(id string, kickoff time.Time) match.Match {
	return match.Match{FixtureID: id, HomeTeam: id + " home", AwayTeam: id + " away", FavoriteTeam: match.NoFavorite, Status: match.StatusScheduled, KickoffAt: kickoff}
}

func TestLifecycleService_TickAdvancesAndClosesStale(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewMatchRepository(
		scheduledAt("future", tickNow.Add(time.Hour)),
		scheduledAt("kicked-off", tickNow.Add(-10*time.Minute)),
		scheduledAt("stale", tickNow.Add(-40*time.Hour)),
		scheduledAt("broken", tickNow.Add(-20*time.Minute)),
	)
	repo := &panickyRepository{Repository: store, fixtureID: "broken"}

	svc := NewLifecycleService(repo, &statsProviderStub{}, nil, LifecycleConfig{Workers: 2}, testLogger)
	svc.now = fixedClock(tickNow)

	result, err := svc.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Active != 4 || result.Skipped != 1 || result.Started != 2 || result.ForceFinished != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	for id, want := range map[string]match.Status{
		"future":     match.StatusScheduled,
		"kicked-off": match.StatusInProgress,
		"stale":      match.StatusFinished,
		"broken":     match.StatusScheduled,
	} {
		got, _, _ := store.GetByFixtureID(ctx, id)
		if got.Status != want {
			t.Fatalf("%s: status %s want %s", id, got.Status, want)
		}
	}

	stale, _, _ := store.GetByFixtureID(ctx, "stale")
	if stale.FinalScoreHome != nil || stale.FavoriteWon != nil {
		t.Fatalf("stale match must close without a score: %+v", stale)
	}
}

func TestLifecycleService_FinalizeStoresResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	done := scheduledAt("done", tickNow.Add(-2*time.Hour))
	done.Status = match.StatusInProgress
	done.SecondaryEventID = ptrInt64(1)
	done.FavoriteTeam = "done away"
	done.FavoriteIsHome = ptrBool(false)

	running := scheduledAt("running", tickNow.Add(-2*time.Hour))
	running.Status = match.StatusInProgress
	running.SecondaryEventID = ptrInt64(2)

	early := scheduledAt("early", tickNow.Add(-90*time.Minute))
	early.Status = match.StatusInProgress
	early.SecondaryEventID = ptrInt64(3)

	store := memory.NewMatchRepository(done, running, early)
	stats := &statsProviderStub{details: map[int64]SecondaryEventDetail{
		1: {ID: 1, StatusType: "finished", HomeScore: ptrInt(2), AwayScore: ptrInt(2)},
		2: {ID: 2, StatusType: "inprogress", HomeScore: ptrInt(0), AwayScore: ptrInt(0)},
		3: {ID: 3, StatusType: "finished", HomeScore: ptrInt(1), AwayScore: ptrInt(0)},
	}}

	svc := NewLifecycleService(store, stats, nil, LifecycleConfig{}, testLogger)
	svc.now = fixedClock(tickNow)

	result, err := svc.Finalize(ctx)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if result.Active != 2 || result.Finalized != 1 || result.Skipped != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	got, _, _ := store.GetByFixtureID(ctx, "done")
	if got.Status != match.StatusFinished || *got.FinalScoreHome != 2 || *got.FinalScoreAway != 2 {
		t.Fatalf("unexpected final row: %+v", got)
	}
	if got.FavoriteWon == nil || *got.FavoriteWon {
		t.Fatalf("a draw must record favorite_won=false, got %v", got.FavoriteWon)
	}
	if e, _, _ := store.GetByFixtureID(ctx, "early"); e.Status != match.StatusInProgress {
		t.Fatalf("match before the finalize threshold must stay open")
	}
}

func TestEngine_EndToEndFavoriteToRecommendation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kickoff := time.Date(2026, 10, 10, 19, 0, 0, 0, time.UTC)
	store := memory.NewMatchRepository()

	odds := &oddsProviderStub{
		leagueOdds: map[string][]ExternalOddsEvent{
			"soccer_epl": {eplFixture("fx-e2e", "Manchester City", "Luton Town", kickoff, 1.3, 8.0)},
		},
		eventOdds: map[string]ExternalOddsEvent{
			"fx-e2e": {
				ID:       "fx-e2e",
				HomeTeam: "Manchester City",
				AwayTeam: "Luton Town",
				Bookmakers: []ExternalBookmaker{
					h2hBookmaker("b1", map[string]float64{"Manchester City": 1.5, "Draw": 4.0, "Luton Town": 6.0}),
				},
			},
		},
	}
	stats := &statsProviderStub{
		events: map[string][]SecondaryEvent{
			"2026-10-10": {{
				ID:             555,
				Slug:           "manchester-city-luton-town",
				StartTimestamp: kickoff.Unix(),
				HomeNames:      []string{"Manchester City", "Man City"},
				AwayNames:      []string{"Luton Town", "Luton"},
			}},
		},
		details: map[int64]SecondaryEventDetail{
			555: {ID: 555, StatusType: "inprogress", HomeScore: ptrInt(0), AwayScore: ptrInt(1)},
		},
		statistics: map[int64]SecondaryStatistics{555: statsWithPossession("71%", "29%")},
	}
	inference := &inferenceStub{name: "primary", answer: "OUTCOME: 1X\nBET: YES\nREASON: City are camped in the Luton half."}

	leagueSync := NewLeagueSyncService(store, odds, LeagueSyncConfig{Leagues: []string{"soccer_epl"}}, testLogger)
	leagueSync.now = fixedClock(kickoff.Add(-24 * time.Hour))
	if _, err := leagueSync.Run(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	synced, _, _ := store.GetByFixtureID(ctx, "fx-e2e")
	if synced.FavoriteTeam != "Manchester City" || synced.FavoriteIsHome == nil || !*synced.FavoriteIsHome || *synced.InitialOdds != 1.3 {
		t.Fatalf("expected home favorite at 1.3: %+v", synced)
	}

	if _, err := NewReconcileService(store, stats, ReconcileConfig{}, testLogger).Run(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	advisory := NewAdvisoryService([]AdvisoryTier{{Provider: inference}}, nil, AdvisoryConfig{}, testLogger)
	collector := NewCollectorService(store, stats, odds, advisory, nil, CollectorConfig{SkipLosingFavorite: false}, testLogger)
	collector.now = fixedClock(kickoff.Add(50 * time.Minute))
	lifecycle := NewLifecycleService(store, stats, collector, LifecycleConfig{}, testLogger)
	lifecycle.now = fixedClock(kickoff.Add(50 * time.Minute))

	result, err := lifecycle.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if result.Started != 1 || result.Collected != 1 {
		t.Fatalf("unexpected tick result: %+v", result)
	}

	got, _, _ := store.GetByFixtureID(ctx, "fx-e2e")
	if got.RecommendedOutcome == nil || *got.RecommendedOutcome != match.OutcomeHomeOrDraw {
		t.Fatalf("expected 1X recommendation, got %v", got.RecommendedOutcome)
	}
	if got.RecommendationOdds == nil || math.Abs(*got.RecommendationOdds-1.09) > oddsEpsilon {
		t.Fatalf("expected 1X priced from 1.5 and 4.0, got %v", got.RecommendationOdds)
	}
	if *got.InitialOdds != 1.3 || *got.LiveOdds != 1.5 {
		t.Fatalf("unexpected odds trail: initial=%v live=%v", *got.InitialOdds, *got.LiveOdds)
	}
	if inference.calls.Load() != 1 {
		t.Fatalf("expected a single advisory call, got %d", inference.calls.Load())
	}

	if _, err := lifecycle.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}
	if inference.calls.Load() != 1 {
		t.Fatalf("second tick must not call the advisory again")
	}
}
