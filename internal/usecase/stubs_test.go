package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
)

type oddsProviderStub struct {
	leagueOdds    map[string][]ExternalOddsEvent
	leagueErr     map[string]error
	leaguePanic   string
	eventOdds     map[string]ExternalOddsEvent
	eventErr      error
	leagues       []ExternalLeague
	eventRequests atomic.Int32
}

func (s *oddsProviderStub) FetchLeagueOdds(_ context.Context, leagueKey string) ([]ExternalOddsEvent, error) {
	if leagueKey == s.leaguePanic && leagueKey != "" {
		panic("odds decoder exploded")
	}
	if err := s.leagueErr[leagueKey]; err != nil {
		return nil, err
	}
	return s.leagueOdds[leagueKey], nil
}

func (s *oddsProviderStub) FetchEventOdds(_ context.Context, _ string, eventID string) (ExternalOddsEvent, error) {
	s.eventRequests.Add(1)
	if s.eventErr != nil {
		return ExternalOddsEvent{}, s.eventErr
	}
	ev, ok := s.eventOdds[eventID]
	if !ok {
		return ExternalOddsEvent{}, errors.New("event not offered")
	}
	return ev, nil
}

func (s *oddsProviderStub) ListSoccerLeagues(context.Context) ([]ExternalLeague, error) {
	return s.leagues, nil
}

type statsProviderStub struct {
	mu          sync.Mutex
	events      map[string][]SecondaryEvent
	eventsErr   map[string]error
	details     map[int64]SecondaryEventDetail
	detailErr   error
	statistics  map[int64]SecondaryStatistics
	statsErr    error
	statsCalls  atomic.Int32
	datesCalled []string
}

func (s *statsProviderStub) ScheduledEvents(_ context.Context, date string) ([]SecondaryEvent, error) {
	s.mu.Lock()
	s.datesCalled = append(s.datesCalled, date)
	s.mu.Unlock()
	if err := s.eventsErr[date]; err != nil {
		return nil, err
	}
	return s.events[date], nil
}

func (s *statsProviderStub) EventDetail(_ context.Context, eventID int64) (SecondaryEventDetail, error) {
	if s.detailErr != nil {
		return SecondaryEventDetail{}, s.detailErr
	}
	detail, ok := s.details[eventID]
	if !ok {
		return SecondaryEventDetail{}, errors.New("unknown event")
	}
	return detail, nil
}

func (s *statsProviderStub) EventStatistics(_ context.Context, eventID int64) (SecondaryStatistics, error) {
	s.statsCalls.Add(1)
	if s.statsErr != nil {
		return SecondaryStatistics{}, s.statsErr
	}
	return s.statistics[eventID], nil
}

type inferenceStub struct {
	name   string
	answer string
	err    error
	// errs is returned call by call before falling back to err.
	errs    []error
	calls   atomic.Int32
	prompts []string
	mu      sync.Mutex
}

func (s *inferenceStub) Name() string { return s.name }

func (s *inferenceStub) Complete(_ context.Context, prompt string) (string, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
	if n <= len(s.errs) && s.errs[n-1] != nil {
		return "", s.errs[n-1]
	}
	return s.answer, s.err
}

type notifierStub struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (s *notifierStub) Send(_ context.Context, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return s.err
}

func (s *notifierStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func ptrFloat(v float64) *float64 { return &v }

func ptrInt(v int) *int { return &v }

func ptrInt64(v int64) *int64 { return &v }

func ptrBool(v bool) *bool { return &v }

func h2hBookmaker(key string, prices map[string]float64) ExternalBookmaker {
	outcomes := make([]ExternalOutcome, 0, len(prices))
	for name, price := range prices {
		outcomes = append(outcomes, ExternalOutcome{Name: name, Price: price})
	}
	return ExternalBookmaker{Key: key, Title: key, Markets: []ExternalMarket{{Key: "h2h", Outcomes: outcomes}}}
}

func statsWithPossession(home, away string) SecondaryStatistics {
	return SecondaryStatistics{Periods: []StatisticsPeriod{{
		Period: "ALL",
		Groups: []StatisticsGroup{{
			Name: "Match overview",
			Items: []StatisticsItem{
				{Key: "ballPossession", Name: "Ball possession", Home: home, Away: away},
				{Key: "expectedGoals", Name: "Expected goals", Home: "1.20", Away: "0.35", HomeValue: ptrFloat(1.2), AwayValue: ptrFloat(0.35)},
			},
		}},
	}}}
}

var testLogger = logging.NewNop()

var _ match.Repository = (*countingRepository)(nil)

// countingRepository counts writes on top of another repository.
type countingRepository struct {
	match.Repository
	snapshotWrites       atomic.Int32
	recommendationWrites atomic.Int32
}

func (r *countingRepository) SaveSnapshot(ctx context.Context, input match.Snapshot) (bool, error) {
	ok, err := r.Repository.SaveSnapshot(ctx, input)
	if ok {
		r.snapshotWrites.Add(1)
	}
	return ok, err
}

func (r *countingRepository) SaveRecommendation(ctx context.Context, input match.Recommendation) error {
	r.recommendationWrites.Add(1)
	return r.Repository.SaveRecommendation(ctx, input)
}
