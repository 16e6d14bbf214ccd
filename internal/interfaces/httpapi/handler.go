package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/riskibarqy/match-odds-engine/internal/domain/match"
	"github.com/riskibarqy/match-odds-engine/internal/platform/credentials"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/riskibarqy/match-odds-engine/internal/usecase"
)

// QuotaReader exposes the odds provider's per-credential quota state.
type QuotaReader interface {
	QuotaSnapshot() []credentials.CredentialState
}

// JobRunner runs one scheduled job on demand.
type JobRunner interface {
	RunOnce(ctx context.Context, job usecase.Job) (usecase.JobRunResult, error)
}

// MatchLister lists the matches the engine is still tracking.
type MatchLister interface {
	ListActive(ctx context.Context) ([]match.Match, error)
}

type Handler struct {
	quota   QuotaReader
	jobs    JobRunner
	matches MatchLister
	started time.Time
	now     func() time.Time
	logger  *logging.Logger
}

func NewHandler(quota QuotaReader, jobs JobRunner, matches MatchLister, logger *logging.Logger) *Handler {
	now := time.Now
	return &Handler{
		quota:   quota,
		jobs:    jobs,
		matches: matches,
		started: now(),
		now:     now,
		logger:  logging.OrDefault(logger).Named("httpapi"),
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeSuccess(r.Context(), w, http.StatusOK, healthResponse{
		Status:        "ok",
		UptimeSeconds: int64(h.now().Sub(h.started).Seconds()),
	})
}

type credentialsResponse struct {
	Credentials []credentials.CredentialState `json:"credentials"`
	Healthy     int                           `json:"healthy"`
}

// ListCredentials reports the remaining quota of every odds API key.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	ctx, span := startHandlerSpan(r, "ListCredentials")
	defer span.End()

	if h.quota == nil {
		writeError(ctx, w, fmt.Errorf("%w: odds provider is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	states := h.quota.QuotaSnapshot()
	healthy := 0
	for _, state := range states {
		if state.Healthy {
			healthy++
		}
	}
	writeSuccess(ctx, w, http.StatusOK, credentialsResponse{Credentials: states, Healthy: healthy})
}

type matchItem struct {
	FixtureID        string       `json:"fixture_id"`
	LeagueKey        string       `json:"league_key"`
	HomeTeam         string       `json:"home_team"`
	AwayTeam         string       `json:"away_team"`
	Status           match.Status `json:"status"`
	KickoffAt        time.Time    `json:"kickoff_at"`
	FavoriteTeam     string       `json:"favorite_team"`
	InitialOdds      *float64     `json:"initial_odds,omitempty"`
	LastOdds         *float64     `json:"last_odds,omitempty"`
	SecondaryEventID *int64       `json:"secondary_event_id,omitempty"`
	HasSnapshot      bool         `json:"has_snapshot"`
}

func (h *Handler) ListActiveMatches(w http.ResponseWriter, r *http.Request) {
	ctx, span := startHandlerSpan(r, "ListActiveMatches")
	defer span.End()

	if h.matches == nil {
		writeError(ctx, w, fmt.Errorf("%w: match store is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	items, err := h.matches.ListActive(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "list active matches failed", "error", err)
		writeError(ctx, w, err)
		return
	}

	out := make([]matchItem, 0, len(items))
	for _, m := range items {
		out = append(out, matchItem{
			FixtureID:        m.FixtureID,
			LeagueKey:        m.LeagueKey,
			HomeTeam:         m.HomeTeam,
			AwayTeam:         m.AwayTeam,
			Status:           m.Status,
			KickoffAt:        m.KickoffAt,
			FavoriteTeam:     m.FavoriteTeam,
			InitialOdds:      m.InitialOdds,
			LastOdds:         m.LastOdds,
			SecondaryEventID: m.SecondaryEventID,
			HasSnapshot:      len(m.StatsSnapshot) > 0,
		})
	}
	writeSuccess(ctx, w, http.StatusOK, out)
}

// RunJob triggers sync, lifecycle or finalize outside the schedule.
func (h *Handler) RunJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := startHandlerSpan(r, "RunJob")
	defer span.End()

	if h.jobs == nil {
		writeError(ctx, w, fmt.Errorf("%w: job orchestrator is not configured", usecase.ErrDependencyUnavailable))
		return
	}

	job := usecase.Job(strings.ToLower(strings.TrimSpace(mux.Vars(r)["job"])))
	switch job {
	case usecase.JobSync, usecase.JobLifecycle, usecase.JobFinalize:
	default:
		writeError(ctx, w, fmt.Errorf("%w: unknown job %q", usecase.ErrInvalidInput, job))
		return
	}

	result, err := h.jobs.RunOnce(ctx, job)
	if err != nil {
		h.logger.WarnContext(ctx, "manual job run failed", "job", string(job), "run_id", result.RunID, "error", err)
		writeError(ctx, w, err)
		return
	}
	status := http.StatusOK
	if result.Skipped {
		status = http.StatusConflict
	}
	writeSuccess(ctx, w, status, result)
}
