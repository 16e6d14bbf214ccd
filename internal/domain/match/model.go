package match

import (
	"strings"
	"time"
)

// NoFavorite marks a fixture whose market has no side under the favorite ceiling.
const NoFavorite = "-"

type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusFinished   Status = "finished"
)

func (s Status) rank() int {
	switch s {
	case StatusScheduled:
		return 1
	case StatusInProgress:
		return 2
	case StatusFinished:
		return 3
	default:
		return 0
	}
}

func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanAdvanceTo reports whether next is strictly later in the lifecycle.
func (s Status) CanAdvanceTo(next Status) bool {
	return s.Valid() && next.Valid() && next.rank() > s.rank()
}

func (s Status) IsActive() bool {
	return s == StatusScheduled || s == StatusInProgress
}

// Outcome is a three-way market selection, single or double chance.
type Outcome string

const (
	OutcomeHome       Outcome = "1"
	OutcomeHomeOrDraw Outcome = "1X"
	OutcomeDraw       Outcome = "X"
	OutcomeDrawOrAway Outcome = "X2"
	OutcomeAway       Outcome = "2"
)

var outcomes = []Outcome{OutcomeHomeOrDraw, OutcomeDrawOrAway, OutcomeHome, OutcomeDraw, OutcomeAway}

func Outcomes() []Outcome {
	return append([]Outcome(nil), outcomes...)
}

func ParseOutcome(raw string) (Outcome, bool) {
	value := strings.ToUpper(strings.TrimSpace(raw))
	value = strings.ReplaceAll(value, "Х", "X")
	switch value {
	case "1X", "X1":
		return OutcomeHomeOrDraw, true
	case "X2", "2X":
		return OutcomeDrawOrAway, true
	case "1":
		return OutcomeHome, true
	case "X":
		return OutcomeDraw, true
	case "2":
		return OutcomeAway, true
	default:
		return "", false
	}
}

func (o Outcome) IsCombined() bool {
	return o == OutcomeHomeOrDraw || o == OutcomeDrawOrAway
}

type Verdict string

const (
	VerdictBet   Verdict = "bet"
	VerdictNoBet Verdict = "no_bet"
)

type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// SecondaryJoin keeps what the kickoff-tolerant pass matched on.
type SecondaryJoin struct {
	Slug           string `json:"slug"`
	StartTimestamp int64  `json:"startTimestamp"`
}

type Match struct {
	FixtureID        string
	LeagueKey        string
	SecondaryEventID *int64
	SecondaryJoin    *SecondaryJoin

	HomeTeam string
	AwayTeam string

	FavoriteTeam   string
	FavoriteIsHome *bool
	InitialOdds    *float64
	LastOdds       *float64
	LiveOdds       *float64
	Odds1          *float64
	OddsX          *float64
	Odds2          *float64

	Status      Status
	KickoffAt   time.Time
	KickoffDate string
	KickoffTime string

	StatsSnapshot []byte
	CurrentScore  *Score
	Verdict       *Verdict

	RecommendedOutcome      *Outcome
	RecommendationRationale *string
	RecommendationModel     *string
	RecommendationOdds      *float64
	AlternateOutcome        *Outcome
	AlternateOdds           *float64
	AlternateConfirmed      *bool

	FinalScoreHome *int
	FinalScoreAway *int
	FavoriteWon    *bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Match) HasFavorite() bool {
	return m.FavoriteTeam != "" && m.FavoriteTeam != NoFavorite && m.FavoriteIsHome != nil
}

func (m Match) HasSnapshot() bool {
	return len(m.StatsSnapshot) > 0
}

func (m Match) ElapsedMinutes(now time.Time) float64 {
	return now.Sub(m.KickoffAt).Minutes()
}

// FavoriteLosing is false when there is no favorite.
func (m Match) FavoriteLosing(score Score) bool {
	if !m.HasFavorite() {
		return false
	}
	if *m.FavoriteIsHome {
		return score.Home < score.Away
	}
	return score.Away < score.Home
}

// FavoriteWonWith returns nil when there is no favorite. A draw counts as not won.
func (m Match) FavoriteWonWith(score Score) *bool {
	if !m.HasFavorite() {
		return nil
	}
	won := score.Away > score.Home
	if *m.FavoriteIsHome {
		won = score.Home > score.Away
	}
	return &won
}

// NewMarket is what a first sighting of a fixture persists.
type NewMarket struct {
	FixtureID string
	LeagueKey string
	HomeTeam  string
	AwayTeam  string
	KickoffAt time.Time
	Location  *time.Location
	Prices    ThreeWay
	Favorite  *Favorite
}

// MarketUpdate refreshes an existing, unfinished fixture.
type MarketUpdate struct {
	FixtureID string
	Prices    ThreeWay
	// Favorite is only set when the row had no favorite and one now qualifies.
	Favorite *Favorite
	// LastOdds is the current price of the already recorded favorite side.
	LastOdds *float64
}

type ThreeWay struct {
	Home *float64
	Draw *float64
	Away *float64
}

type Favorite struct {
	Team   string
	IsHome bool
	Price  float64
}

type Snapshot struct {
	FixtureID string
	Payload   []byte
	Score     *Score
	LiveOdds  *float64
	Prices    ThreeWay
	Verdict   *Verdict
}

type Recommendation struct {
	FixtureID          string
	Outcome            *Outcome
	Rationale          string
	Model              string
	Odds               *float64
	AlternateOutcome   *Outcome
	AlternateOdds      *float64
	AlternateConfirmed *bool
	Verdict            *Verdict
}

type FinalResult struct {
	FixtureID   string
	Score       Score
	FavoriteWon *bool
}

// KickoffParts renders the kickoff instant as date and clock in loc.
func KickoffParts(at time.Time, loc *time.Location) (string, string) {
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	return local.Format("2006-01-02"), local.Format("15:04")
}
