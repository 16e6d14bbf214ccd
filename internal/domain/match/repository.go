package match

import "context"

type Repository interface {
	GetByFixtureID(ctx context.Context, fixtureID string) (Match, bool, error)
	// ListActive returns scheduled and in-progress matches ordered by kickoff.
	ListActive(ctx context.Context) ([]Match, error)
	// ListUnmatched returns active matches without a secondary event id.
	ListUnmatched(ctx context.Context) ([]Match, error)
	// AttachedEventIDs returns the secondary event ids already attached to
	// any match kicking off on kickoffDate, finished ones included.
	AttachedEventIDs(ctx context.Context, kickoffDate string) ([]int64, error)
	Insert(ctx context.Context, input NewMarket) (bool, error)
	UpdateMarket(ctx context.Context, input MarketUpdate) (bool, error)
	AttachSecondary(ctx context.Context, fixtureID string, eventID int64, join *SecondaryJoin) (bool, error)
	AdvanceStatus(ctx context.Context, fixtureID string, from, to Status) (bool, error)
	ForceFinish(ctx context.Context, fixtureID string) (bool, error)
	// SaveSnapshot writes only when no snapshot exists yet.
	SaveSnapshot(ctx context.Context, input Snapshot) (bool, error)
	SaveRecommendation(ctx context.Context, input Recommendation) error
	SaveFinalResult(ctx context.Context, input FinalResult) (bool, error)
}
