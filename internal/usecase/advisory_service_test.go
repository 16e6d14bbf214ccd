package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/resilience"
)

func advisoryMatch() match.Match {
	return match.Match{
		FixtureID:      "fx-adv",
		LeagueKey:      "soccer_epl",
		HomeTeam:       "Arsenal",
		AwayTeam:       "Brighton",
		FavoriteTeam:   "Arsenal",
		FavoriteIsHome: ptrBool(true),
		InitialOdds:    ptrFloat(1.4),
		LastOdds:       ptrFloat(1.45),
		Odds1:          ptrFloat(2.0),
		OddsX:          ptrFloat(3.0),
		Odds2:          ptrFloat(5.0),
		KickoffDate:    "2026-10-04",
		KickoffTime:    "15:00",
	}
}

func TestAdvisoryService_FallsThroughToFirstParseableTier(t *testing.T) {
	t.Parallel()

	failing := &inferenceStub{name: "primary", err: errors.New("502 from upstream")}
	empty := &inferenceStub{name: "fallback-1", answer: "   "}
	rambling := &inferenceStub{name: "fallback-2", answer: "Hard to say, both teams look tired."}
	good := &inferenceStub{name: "fallback-3", answer: "OUTCOME: 1X\nBET: YES\nALTERNATE: 1\nREASON: Arsenal control the game."}
	unused := &inferenceStub{name: "fallback-4", answer: "OUTCOME: 2"}

	svc := NewAdvisoryService([]AdvisoryTier{
		{Provider: failing},
		{Provider: empty},
		{Provider: rambling},
		{Label: "gemini-flash", Provider: good},
		{Provider: unused},
	}, nil, AdvisoryConfig{}, testLogger)

	rec, err := svc.Advise(context.Background(), AdviceInput{Match: advisoryMatch(), Score: &match.Score{Home: 1}, ElapsedMinutes: 52})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if rec.Outcome == nil || *rec.Outcome != match.OutcomeHomeOrDraw {
		t.Fatalf("unexpected outcome: %v", rec.Outcome)
	}
	if rec.Model != "gemini-flash" {
		t.Fatalf("unexpected model label: %q", rec.Model)
	}
	if rec.Odds == nil || math.Abs(*rec.Odds-1.2) > oddsEpsilon {
		t.Fatalf("expected 1X priced at 1.2, got %v", rec.Odds)
	}
	if rec.Verdict == nil || *rec.Verdict != match.VerdictBet {
		t.Fatalf("unexpected verdict: %v", rec.Verdict)
	}
	if rec.AlternateOdds == nil || *rec.AlternateOdds != 2.0 || rec.AlternateConfirmed == nil || *rec.AlternateConfirmed {
		t.Fatalf("alternate 1 at 2.0 is dearer than 1.2 and must not confirm: %+v", rec)
	}
	if unused.calls.Load() != 0 {
		t.Fatalf("chain must stop at the first parseable answer")
	}
}

func TestAdvisoryService_KeepsRawTextWhenNoTierParses(t *testing.T) {
	t.Parallel()

	svc := NewAdvisoryService([]AdvisoryTier{
		{Provider: &inferenceStub{name: "primary", answer: "no idea"}},
		{Provider: &inferenceStub{name: "fallback", answer: "Still no idea, sorry."}},
	}, nil, AdvisoryConfig{}, testLogger)

	rec, err := svc.Advise(context.Background(), AdviceInput{Match: advisoryMatch()})
	if !errors.Is(err, ErrNoOutcome) {
		t.Fatalf("expected ErrNoOutcome, got %v", err)
	}
	if rec.Rationale != "Still no idea, sorry." || rec.Model != "fallback" || rec.Outcome != nil || rec.Odds != nil {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
}

func TestAdvisoryService_CapsTiers(t *testing.T) {
	t.Parallel()

	tiers := make([]AdvisoryTier, 0, 6)
	stubs := make([]*inferenceStub, 0, 6)
	for i := 0; i < 6; i++ {
		stub := &inferenceStub{name: "tier", err: errors.New("down")}
		stubs = append(stubs, stub)
		tiers = append(tiers, AdvisoryTier{Provider: stub})
	}
	svc := NewAdvisoryService(tiers, nil, AdvisoryConfig{}, testLogger)
	_, _ = svc.Advise(context.Background(), AdviceInput{Match: advisoryMatch()})

	called := 0
	for _, stub := range stubs {
		called += int(stub.calls.Load())
	}
	if called != MaxAdvisoryTiers {
		t.Fatalf("expected %d tier calls, got %d", MaxAdvisoryTiers, called)
	}
	if NewAdvisoryService(nil, nil, AdvisoryConfig{}, testLogger).Enabled() {
		t.Fatalf("service without tiers must report disabled")
	}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestAdvisoryService_RetriesTransientTierFailure(t *testing.T) {
	t.Parallel()

	primary := &inferenceStub{
		name:   "primary",
		errs:   []error{fmt.Errorf("%w: openrouter status=429", ErrRateLimited)},
		answer: "OUTCOME: 1\nBET: YES\nREASON: Arsenal pressing high.",
	}
	fallback := &inferenceStub{name: "fallback", answer: "OUTCOME: 2"}

	svc := NewAdvisoryService([]AdvisoryTier{
		{Provider: primary},
		{Provider: fallback},
	}, nil, AdvisoryConfig{Retry: resilience.RetryPolicy{Sleep: noSleep}}, testLogger)

	rec, err := svc.Advise(context.Background(), AdviceInput{Match: advisoryMatch()})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if rec.Model != "primary" || rec.Outcome == nil || *rec.Outcome != match.OutcomeHome {
		t.Fatalf("expected the primary answer after one retry: %+v", rec)
	}
	if primary.calls.Load() != 2 {
		t.Fatalf("expected 2 primary calls, got %d", primary.calls.Load())
	}
	if fallback.calls.Load() != 0 {
		t.Fatalf("fallback must not be asked when the primary recovers")
	}
}

func TestAdvisoryService_RetryIsCappedPerTier(t *testing.T) {
	t.Parallel()

	primary := &inferenceStub{name: "primary", err: fmt.Errorf("%w: gemini status=503", ErrDependencyUnavailable)}
	rejecting := &inferenceStub{name: "fallback-1", err: errors.New("400 bad request")}
	good := &inferenceStub{name: "fallback-2", answer: "OUTCOME: X"}

	svc := NewAdvisoryService([]AdvisoryTier{
		{Provider: primary},
		{Provider: rejecting},
		{Provider: good},
	}, nil, AdvisoryConfig{Retry: resilience.RetryPolicy{Sleep: noSleep}}, testLogger)

	rec, err := svc.Advise(context.Background(), AdviceInput{Match: advisoryMatch()})
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if rec.Model != "fallback-2" {
		t.Fatalf("unexpected model label: %q", rec.Model)
	}
	if primary.calls.Load() != defaultTierAttempts {
		t.Fatalf("expected %d primary calls, got %d", defaultTierAttempts, primary.calls.Load())
	}
	if rejecting.calls.Load() != 1 {
		t.Fatalf("non-transient failures must not be retried, got %d calls", rejecting.calls.Load())
	}
}

func TestBuildAdvisoryPrompt_IsDeterministic(t *testing.T) {
	t.Parallel()

	input := AdviceInput{
		Match:          advisoryMatch(),
		Score:          &match.Score{Home: 0, Away: 1},
		ElapsedMinutes: 55,
		Snapshot:       []byte(`{"highlights":{"home":{"possession":61}}}`),
	}
	first, err := BuildAdvisoryPrompt(input)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, _ := BuildAdvisoryPrompt(input)
	if first != second {
		t.Fatalf("prompt must be deterministic")
	}
	for _, want := range []string{"OUTCOME: <1|1X|X|X2|2>", `"home_team":"Arsenal"`, `"elapsed_minutes":55`, `"possession":61`, `"favorite":"Arsenal"`} {
		if !strings.Contains(first, want) {
			t.Fatalf("prompt missing %q:\n%s", want, first)
		}
	}
}
