package usecase

import (
	"context"
	"time"
)

// OddsProvider is the bookmaker odds source keyed by fixture id.
type OddsProvider interface {
	FetchLeagueOdds(ctx context.Context, leagueKey string) ([]ExternalOddsEvent, error)
	FetchEventOdds(ctx context.Context, leagueKey, eventID string) (ExternalOddsEvent, error)
	ListSoccerLeagues(ctx context.Context) ([]ExternalLeague, error)
}

// StatsProvider is the live-statistics source; it shares no ids with OddsProvider.
type StatsProvider interface {
	ScheduledEvents(ctx context.Context, date string) ([]SecondaryEvent, error)
	EventDetail(ctx context.Context, eventID int64) (SecondaryEventDetail, error)
	EventStatistics(ctx context.Context, eventID int64) (SecondaryStatistics, error)
}

// InferenceProvider answers one free-text prompt.
type InferenceProvider interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// Notifier delivers an assembled message to a human channel.
type Notifier interface {
	Send(ctx context.Context, message string) error
}

type ExternalOddsEvent struct {
	ID           string
	SportKey     string
	HomeTeam     string
	AwayTeam     string
	CommenceTime time.Time
	Bookmakers   []ExternalBookmaker
}

type ExternalBookmaker struct {
	Key     string
	Title   string
	Markets []ExternalMarket
}

type ExternalMarket struct {
	Key      string
	Outcomes []ExternalOutcome
}

type ExternalOutcome struct {
	Name  string
	Price float64
}

type ExternalLeague struct {
	Key          string
	Group        string
	Title        string
	Active       bool
	HasOutrights bool
}

type SecondaryEvent struct {
	ID             int64
	Slug           string
	StartTimestamp int64
	// HomeNames and AwayNames hold name, short name and every translation.
	HomeNames []string
	AwayNames []string
}

func (e SecondaryEvent) StartTime() time.Time {
	return time.Unix(e.StartTimestamp, 0).UTC()
}

type SecondaryEventDetail struct {
	ID         int64
	StatusType string
	StatusCode int
	HomeScore  *int
	AwayScore  *int
}

// Finished reports whether the provider has closed the event.
func (d SecondaryEventDetail) Finished() bool {
	return d.StatusType == "finished"
}

type SecondaryStatistics struct {
	Periods []StatisticsPeriod `json:"periods"`
}

type StatisticsPeriod struct {
	Period string            `json:"period"`
	Groups []StatisticsGroup `json:"groups"`
}

type StatisticsGroup struct {
	Name  string           `json:"name"`
	Items []StatisticsItem `json:"items"`
}

type StatisticsItem struct {
	Key       string   `json:"key,omitempty"`
	Name      string   `json:"name"`
	Home      string   `json:"home"`
	Away      string   `json:"away"`
	HomeValue *float64 `json:"home_value,omitempty"`
	AwayValue *float64 `json:"away_value,omitempty"`
}
