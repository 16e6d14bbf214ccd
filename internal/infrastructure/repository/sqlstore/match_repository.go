package sqlstore

import (
	"context"
	"fmt"
	"time"

	sonic "github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	qb "github.com/riskibarqy/match-odds-engine/internal/platform/querybuilder"
)

const matchesTable = "matches"

// MatchRepository persists matches in one table. Every state change is a
// conditional UPDATE so concurrent jobs can race on the same row and exactly
// one of them wins.
type MatchRepository struct {
	db      *sqlx.DB
	dialect Dialect
	now     func() time.Time
}

func NewMatchRepository(db *sqlx.DB) *MatchRepository {
	return &MatchRepository{
		db:      db,
		dialect: DialectOf(db.DriverName()),
		now:     time.Now,
	}
}

func (r *MatchRepository) GetByFixtureID(ctx context.Context, fixtureID string) (match.Match, bool, error) {
	query, args, err := qb.Select(matchColumns...).From(matchesTable).
		Where(qb.Eq("fixture_id", fixtureID)).
		Limit(1).
		ToSQL()
	if err != nil {
		return match.Match{}, false, fmt.Errorf("build select match query: %w", err)
	}

	var row matchTableModel
	if err := r.db.GetContext(ctx, &row, r.rebind(query), args...); err != nil {
		if isNotFound(err) {
			return match.Match{}, false, nil
		}
		return match.Match{}, false, fmt.Errorf("get match fixture_id=%s: %w", fixtureID, err)
	}
	return row.toDomain(), true, nil
}

func (r *MatchRepository) ListActive(ctx context.Context) ([]match.Match, error) {
	return r.list(ctx, "active", qb.In("status", activeStatuses()))
}

func (r *MatchRepository) ListUnmatched(ctx context.Context) ([]match.Match, error) {
	return r.list(ctx, "unmatched", qb.In("status", activeStatuses()), qb.IsNull("secondary_event_id"))
}

func (r *MatchRepository) AttachedEventIDs(ctx context.Context, kickoffDate string) ([]int64, error) {
	query, args, err := qb.Select("secondary_event_id").From(matchesTable).
		Where(qb.Eq("kickoff_date", kickoffDate), qb.IsNotNull("secondary_event_id")).
		OrderBy("secondary_event_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build attached event ids query: %w", err)
	}

	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select attached event ids: %w", err)
	}
	return ids, nil
}

func (r *MatchRepository) list(ctx context.Context, name string, conditions ...qb.Condition) ([]match.Match, error) {
	query, args, err := qb.Select(matchColumns...).From(matchesTable).
		Where(conditions...).
		OrderBy("kickoff_at", "fixture_id").
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build select %s matches query: %w", name, err)
	}

	var rows []matchTableModel
	if err := r.db.SelectContext(ctx, &rows, r.rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select %s matches: %w", name, err)
	}

	out := make([]match.Match, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *MatchRepository) Insert(ctx context.Context, input match.NewMarket) (bool, error) {
	now := r.now().UTC()
	date, clock := match.KickoffParts(input.KickoffAt, input.Location)
	model := matchInsertModel{
		FixtureID:    input.FixtureID,
		LeagueKey:    input.LeagueKey,
		HomeTeam:     input.HomeTeam,
		AwayTeam:     input.AwayTeam,
		FavoriteTeam: match.NoFavorite,
		Odds1:        input.Prices.Home,
		OddsX:        input.Prices.Draw,
		Odds2:        input.Prices.Away,
		Status:       string(match.StatusScheduled),
		KickoffAt:    input.KickoffAt.UTC(),
		KickoffDate:  date,
		KickoffTime:  clock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if fav := input.Favorite; fav != nil {
		isHome, price := fav.IsHome, fav.Price
		model.FavoriteTeam = fav.Team
		model.FavoriteIsHome = &isHome
		model.InitialOdds = &price
		model.LastOdds = &price
	}

	query, args, err := qb.InsertModel(matchesTable, model, "ON CONFLICT (fixture_id) DO NOTHING")
	if err != nil {
		return false, fmt.Errorf("build insert match query: %w", err)
	}
	return r.exec(ctx, r.db, "insert match", query, args)
}

func (r *MatchRepository) UpdateMarket(ctx context.Context, input match.MarketUpdate) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin update market tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := r.now().UTC()
	query, args, err := qb.Update(matchesTable).
		SetExpr("odds_1", "COALESCE(?, odds_1)", floatArg(input.Prices.Home)).
		SetExpr("odds_x", "COALESCE(?, odds_x)", floatArg(input.Prices.Draw)).
		SetExpr("odds_2", "COALESCE(?, odds_2)", floatArg(input.Prices.Away)).
		Set("updated_at", now).
		Where(qb.Eq("fixture_id", input.FixtureID), qb.NotEq("status", string(match.StatusFinished))).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build update prices query: %w", err)
	}
	updated, err := r.exec(ctx, tx, "update prices", query, args)
	if err != nil || !updated {
		return false, err
	}

	favoriteSet := false
	if fav := input.Favorite; fav != nil {
		query, args, err = qb.Update(matchesTable).
			Set("favorite_team", fav.Team).
			Set("favorite_is_home", fav.IsHome).
			SetExpr("initial_odds", "COALESCE(initial_odds, ?)", fav.Price).
			Set("last_odds", fav.Price).
			Where(qb.Eq("fixture_id", input.FixtureID), qb.IsNull("favorite_is_home")).
			ToSQL()
		if err != nil {
			return false, fmt.Errorf("build set favorite query: %w", err)
		}
		if favoriteSet, err = r.exec(ctx, tx, "set favorite", query, args); err != nil {
			return false, err
		}
	}
	if !favoriteSet && input.LastOdds != nil {
		query, args, err = qb.Update(matchesTable).
			Set("last_odds", *input.LastOdds).
			Where(qb.Eq("fixture_id", input.FixtureID), qb.IsNotNull("favorite_is_home")).
			ToSQL()
		if err != nil {
			return false, fmt.Errorf("build update last odds query: %w", err)
		}
		if _, err := r.exec(ctx, tx, "update last odds", query, args); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit update market tx: %w", err)
	}
	return true, nil
}

func (r *MatchRepository) AttachSecondary(ctx context.Context, fixtureID string, eventID int64, join *match.SecondaryJoin) (bool, error) {
	var joinArg any
	if join != nil {
		raw, err := sonic.MarshalString(join)
		if err != nil {
			return false, fmt.Errorf("encode secondary join: %w", err)
		}
		joinArg = raw
	}

	query, args, err := qb.Update(matchesTable).
		Set("secondary_event_id", eventID).
		Set("secondary_join", joinArg).
		Set("updated_at", r.now().UTC()).
		Where(qb.Eq("fixture_id", fixtureID), qb.IsNull("secondary_event_id")).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build attach secondary query: %w", err)
	}
	return r.exec(ctx, r.db, "attach secondary", query, args)
}

func (r *MatchRepository) AdvanceStatus(ctx context.Context, fixtureID string, from, to match.Status) (bool, error) {
	if !from.CanAdvanceTo(to) {
		return false, nil
	}
	query, args, err := qb.Update(matchesTable).
		Set("status", string(to)).
		Set("updated_at", r.now().UTC()).
		Where(qb.Eq("fixture_id", fixtureID), qb.Eq("status", string(from))).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build advance status query: %w", err)
	}
	return r.exec(ctx, r.db, "advance status", query, args)
}

func (r *MatchRepository) ForceFinish(ctx context.Context, fixtureID string) (bool, error) {
	query, args, err := qb.Update(matchesTable).
		Set("status", string(match.StatusFinished)).
		Set("updated_at", r.now().UTC()).
		Where(qb.Eq("fixture_id", fixtureID), qb.In("status", activeStatuses())).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build force finish query: %w", err)
	}
	return r.exec(ctx, r.db, "force finish", query, args)
}

func (r *MatchRepository) SaveSnapshot(ctx context.Context, input match.Snapshot) (bool, error) {
	if len(input.Payload) == 0 {
		return false, nil
	}

	builder := qb.Update(matchesTable).
		Set("stats_snapshot", string(input.Payload)).
		SetExpr("live_odds", "COALESCE(?, live_odds)", floatArg(input.LiveOdds)).
		SetExpr("odds_1", "COALESCE(?, odds_1)", floatArg(input.Prices.Home)).
		SetExpr("odds_x", "COALESCE(?, odds_x)", floatArg(input.Prices.Draw)).
		SetExpr("odds_2", "COALESCE(?, odds_2)", floatArg(input.Prices.Away)).
		SetExpr("verdict", "COALESCE(?, verdict)", verdictArg(input.Verdict)).
		Set("updated_at", r.now().UTC())
	if input.Score != nil {
		builder = builder.
			Set("current_score_home", input.Score.Home).
			Set("current_score_away", input.Score.Away)
	}
	query, args, err := builder.
		Where(qb.Eq("fixture_id", input.FixtureID), qb.IsNull("stats_snapshot")).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build save snapshot query: %w", err)
	}
	return r.exec(ctx, r.db, "save snapshot", query, args)
}

func (r *MatchRepository) SaveRecommendation(ctx context.Context, input match.Recommendation) error {
	query, args, err := qb.Update(matchesTable).
		Set("recommended_outcome", outcomeArg(input.Outcome)).
		Set("recommendation_rationale", stringArg(input.Rationale)).
		Set("recommendation_model", stringArg(input.Model)).
		Set("recommendation_odds", floatArg(input.Odds)).
		Set("alternate_outcome", outcomeArg(input.AlternateOutcome)).
		Set("alternate_odds", floatArg(input.AlternateOdds)).
		Set("alternate_confirmed", boolArg(input.AlternateConfirmed)).
		SetExpr("verdict", "COALESCE(?, verdict)", verdictArg(input.Verdict)).
		Set("updated_at", r.now().UTC()).
		Where(qb.Eq("fixture_id", input.FixtureID)).
		ToSQL()
	if err != nil {
		return fmt.Errorf("build save recommendation query: %w", err)
	}
	_, err = r.exec(ctx, r.db, "save recommendation", query, args)
	return err
}

func (r *MatchRepository) SaveFinalResult(ctx context.Context, input match.FinalResult) (bool, error) {
	query, args, err := qb.Update(matchesTable).
		Set("final_score_home", input.Score.Home).
		Set("final_score_away", input.Score.Away).
		Set("current_score_home", input.Score.Home).
		Set("current_score_away", input.Score.Away).
		Set("favorite_won", boolArg(input.FavoriteWon)).
		Set("status", string(match.StatusFinished)).
		Set("updated_at", r.now().UTC()).
		Where(qb.Eq("fixture_id", input.FixtureID), qb.NotEq("status", string(match.StatusFinished))).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("build save final result query: %w", err)
	}
	return r.exec(ctx, r.db, "save final result", query, args)
}

func (r *MatchRepository) exec(ctx context.Context, db sqlx.ExecerContext, name, query string, args []any) (bool, error) {
	res, err := db.ExecContext(ctx, r.rebind(query), args...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", name, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows affected: %w", name, err)
	}
	return affected > 0, nil
}

func (r *MatchRepository) rebind(query string) string {
	return rebind(r.dialect, query)
}

func activeStatuses() []any {
	return []any{string(match.StatusScheduled), string(match.StatusInProgress)}
}

var _ match.Repository = (*MatchRepository)(nil)
