package sqlstore

import (
	"database/sql"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
)

var matchColumns = []string{
	"fixture_id",
	"league_key",
	"secondary_event_id",
	"secondary_join",
	"home_team",
	"away_team",
	"favorite_team",
	"favorite_is_home",
	"initial_odds",
	"last_odds",
	"live_odds",
	"odds_1",
	"odds_x",
	"odds_2",
	"status",
	"kickoff_at",
	"kickoff_date",
	"kickoff_time",
	"stats_snapshot",
	"current_score_home",
	"current_score_away",
	"verdict",
	"recommended_outcome",
	"recommendation_rationale",
	"recommendation_model",
	"recommendation_odds",
	"alternate_outcome",
	"alternate_odds",
	"alternate_confirmed",
	"final_score_home",
	"final_score_away",
	"favorite_won",
	"created_at",
	"updated_at",
}

type matchTableModel struct {
	FixtureID               string          `db:"fixture_id"`
	LeagueKey               string          `db:"league_key"`
	SecondaryEventID        sql.NullInt64   `db:"secondary_event_id"`
	SecondaryJoin           sql.NullString  `db:"secondary_join"`
	HomeTeam                string          `db:"home_team"`
	AwayTeam                string          `db:"away_team"`
	FavoriteTeam            string          `db:"favorite_team"`
	FavoriteIsHome          sql.NullBool    `db:"favorite_is_home"`
	InitialOdds             sql.NullFloat64 `db:"initial_odds"`
	LastOdds                sql.NullFloat64 `db:"last_odds"`
	LiveOdds                sql.NullFloat64 `db:"live_odds"`
	Odds1                   sql.NullFloat64 `db:"odds_1"`
	OddsX                   sql.NullFloat64 `db:"odds_x"`
	Odds2                   sql.NullFloat64 `db:"odds_2"`
	Status                  string          `db:"status"`
	KickoffAt               time.Time       `db:"kickoff_at"`
	KickoffDate             string          `db:"kickoff_date"`
	KickoffTime             string          `db:"kickoff_time"`
	StatsSnapshot           sql.NullString  `db:"stats_snapshot"`
	CurrentScoreHome        sql.NullInt64   `db:"current_score_home"`
	CurrentScoreAway        sql.NullInt64   `db:"current_score_away"`
	Verdict                 sql.NullString  `db:"verdict"`
	RecommendedOutcome      sql.NullString  `db:"recommended_outcome"`
	RecommendationRationale sql.NullString  `db:"recommendation_rationale"`
	RecommendationModel     sql.NullString  `db:"recommendation_model"`
	RecommendationOdds      sql.NullFloat64 `db:"recommendation_odds"`
	AlternateOutcome        sql.NullString  `db:"alternate_outcome"`
	AlternateOdds           sql.NullFloat64 `db:"alternate_odds"`
	AlternateConfirmed      sql.NullBool    `db:"alternate_confirmed"`
	FinalScoreHome          sql.NullInt64   `db:"final_score_home"`
	FinalScoreAway          sql.NullInt64   `db:"final_score_away"`
	FavoriteWon             sql.NullBool    `db:"favorite_won"`
	CreatedAt               time.Time       `db:"created_at"`
	UpdatedAt               time.Time       `db:"updated_at"`
}

// matchInsertModel is the column set written on first sighting.
type matchInsertModel struct {
	FixtureID      string    `db:"fixture_id"`
	LeagueKey      string    `db:"league_key"`
	HomeTeam       string    `db:"home_team"`
	AwayTeam       string    `db:"away_team"`
	FavoriteTeam   string    `db:"favorite_team"`
	FavoriteIsHome *bool     `db:"favorite_is_home"`
	InitialOdds    *float64  `db:"initial_odds"`
	LastOdds       *float64  `db:"last_odds"`
	Odds1          *float64  `db:"odds_1"`
	OddsX          *float64  `db:"odds_x"`
	Odds2          *float64  `db:"odds_2"`
	Status         string    `db:"status"`
	KickoffAt      time.Time `db:"kickoff_at"`
	KickoffDate    string    `db:"kickoff_date"`
	KickoffTime    string    `db:"kickoff_time"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

func (row matchTableModel) toDomain() match.Match {
	m := match.Match{
		FixtureID:               row.FixtureID,
		LeagueKey:               row.LeagueKey,
		SecondaryEventID:        nullInt64Ptr(row.SecondaryEventID),
		HomeTeam:                row.HomeTeam,
		AwayTeam:                row.AwayTeam,
		FavoriteTeam:            row.FavoriteTeam,
		FavoriteIsHome:          nullBoolPtr(row.FavoriteIsHome),
		InitialOdds:             nullFloatPtr(row.InitialOdds),
		LastOdds:                nullFloatPtr(row.LastOdds),
		LiveOdds:                nullFloatPtr(row.LiveOdds),
		Odds1:                   nullFloatPtr(row.Odds1),
		OddsX:                   nullFloatPtr(row.OddsX),
		Odds2:                   nullFloatPtr(row.Odds2),
		Status:                  match.Status(row.Status),
		KickoffAt:               row.KickoffAt.UTC(),
		KickoffDate:             row.KickoffDate,
		KickoffTime:             row.KickoffTime,
		RecommendationRationale: nullStringPtr(row.RecommendationRationale),
		RecommendationModel:     nullStringPtr(row.RecommendationModel),
		RecommendationOdds:      nullFloatPtr(row.RecommendationOdds),
		AlternateOdds:           nullFloatPtr(row.AlternateOdds),
		AlternateConfirmed:      nullBoolPtr(row.AlternateConfirmed),
		FavoriteWon:             nullBoolPtr(row.FavoriteWon),
		CreatedAt:               row.CreatedAt.UTC(),
		UpdatedAt:               row.UpdatedAt.UTC(),
	}

	if row.SecondaryJoin.Valid && row.SecondaryJoin.String != "" {
		var join match.SecondaryJoin
		if err := sonic.UnmarshalString(row.SecondaryJoin.String, &join); err == nil {
			m.SecondaryJoin = &join
		}
	}
	if row.StatsSnapshot.Valid && row.StatsSnapshot.String != "" {
		m.StatsSnapshot = []byte(row.StatsSnapshot.String)
	}
	if row.CurrentScoreHome.Valid && row.CurrentScoreAway.Valid {
		m.CurrentScore = &match.Score{Home: int(row.CurrentScoreHome.Int64), Away: int(row.CurrentScoreAway.Int64)}
	}
	if row.Verdict.Valid {
		v := match.Verdict(row.Verdict.String)
		m.Verdict = &v
	}
	if outcome, ok := nullOutcome(row.RecommendedOutcome); ok {
		m.RecommendedOutcome = &outcome
	}
	if outcome, ok := nullOutcome(row.AlternateOutcome); ok {
		m.AlternateOutcome = &outcome
	}
	if row.FinalScoreHome.Valid {
		v := int(row.FinalScoreHome.Int64)
		m.FinalScoreHome = &v
	}
	if row.FinalScoreAway.Valid {
		v := int(row.FinalScoreAway.Int64)
		m.FinalScoreAway = &v
	}
	return m
}

func nullOutcome(v sql.NullString) (match.Outcome, bool) {
	if !v.Valid {
		return "", false
	}
	return match.ParseOutcome(v.String)
}
