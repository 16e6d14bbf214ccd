package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riskibarqy/match-odds-engine/internal/platform/id"
	"github.com/riskibarqy/match-odds-engine/internal/platform/logging"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type Job string

const (
	JobSync      Job = "sync"
	JobLifecycle Job = "lifecycle"
	JobFinalize  Job = "finalize"
)

type JobOrchestratorConfig struct {
	SyncInterval      time.Duration
	LifecycleInterval time.Duration
	FinalizeInterval  time.Duration
}

type JobRunResult struct {
	Job        Job               `json:"job"`
	RunID      string            `json:"run_id"`
	Skipped    bool              `json:"skipped"`
	DurationMs int64             `json:"duration_ms"`
	Sync       *LeagueSyncResult `json:"sync,omitempty"`
	Reconcile  *ReconcileResult  `json:"reconcile,omitempty"`
	Lifecycle  *LifecycleResult  `json:"lifecycle,omitempty"`
}

// JobOrchestratorService drives the periodic jobs. Jobs share one lock and an
// overlapping tick is dropped rather than queued.
type JobOrchestratorService struct {
	leagueSync *LeagueSyncService
	reconcile  *ReconcileService
	lifecycle  *LifecycleService
	ids        id.Generator
	cfg        JobOrchestratorConfig
	logger     *logging.Logger
	running    sync.Mutex
}

func NewJobOrchestratorService(
	leagueSync *LeagueSyncService,
	reconcile *ReconcileService,
	lifecycle *LifecycleService,
	ids id.Generator,
	cfg JobOrchestratorConfig,
	logger *logging.Logger,
) *JobOrchestratorService {
	if ids == nil {
		ids = id.NewUUIDGenerator()
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 10 * time.Minute
	}
	if cfg.LifecycleInterval <= 0 {
		cfg.LifecycleInterval = 5 * time.Minute
	}
	if cfg.FinalizeInterval <= 0 {
		cfg.FinalizeInterval = 5 * time.Minute
	}

	return &JobOrchestratorService{
		leagueSync: leagueSync,
		reconcile:  reconcile,
		lifecycle:  lifecycle,
		ids:        ids,
		cfg:        cfg,
		logger:     logging.OrDefault(logger).Named("jobs"),
	}
}

// Run starts one ticker per job and blocks until ctx is done. The sync job
// runs once immediately so a fresh store has fixtures before the first tick.
func (s *JobOrchestratorService) Run(ctx context.Context) {
	s.runLogged(ctx, JobSync)

	var wg conc.WaitGroup
	for job, interval := range map[Job]time.Duration{
		JobSync:      s.cfg.SyncInterval,
		JobLifecycle: s.cfg.LifecycleInterval,
		JobFinalize:  s.cfg.FinalizeInterval,
	} {
		job, interval := job, interval
		wg.Go(func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					s.runLogged(ctx, job)
				}
			}
		})
	}
	if recovered := wg.WaitAndRecover(); recovered != nil {
		s.logger.ErrorContext(ctx, "job loop panicked", "panic", recovered.String())
	}
}

func (s *JobOrchestratorService) runLogged(ctx context.Context, job Job) {
	result, err := s.RunOnce(ctx, job)
	if err != nil {
		s.logger.ErrorContext(ctx, "job failed", "job", string(job), "run_id", result.RunID, "error", err)
	}
}

// RunOnce executes job if no other job holds the lock.
func (s *JobOrchestratorService) RunOnce(ctx context.Context, job Job) (JobRunResult, error) {
	runID, err := s.ids.NewID()
	if err != nil {
		return JobRunResult{Job: job}, fmt.Errorf("generate run id: %w", err)
	}
	result := JobRunResult{Job: job, RunID: runID}

	if !s.running.TryLock() {
		result.Skipped = true
		s.logger.WarnContext(ctx, "previous job still running, tick skipped", "job", string(job), "run_id", runID)
		return result, nil
	}
	defer s.running.Unlock()

	ctx, span := startJobSpan(ctx, string(job), runID)
	defer span.End()

	started := time.Now()
	s.logger.InfoContext(ctx, "job started", "job", string(job), "run_id", runID)

	err = s.dispatch(ctx, job, &result)
	result.DurationMs = time.Since(started).Milliseconds()
	span.SetAttributes(attribute.Int64("job.duration_ms", result.DurationMs))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}

	s.logger.InfoContext(ctx, "job finished", "job", string(job), "run_id", runID, "duration_ms", result.DurationMs)
	return result, nil
}

func (s *JobOrchestratorService) dispatch(ctx context.Context, job Job, result *JobRunResult) error {
	switch job {
	case JobSync:
		if s.leagueSync != nil {
			synced, err := s.leagueSync.Run(ctx)
			result.Sync = &synced
			if err != nil {
				return fmt.Errorf("league sync: %w", err)
			}
		}
		if s.reconcile != nil {
			reconciled, err := s.reconcile.Run(ctx)
			result.Reconcile = &reconciled
			if err != nil {
				return fmt.Errorf("reconcile: %w", err)
			}
		}
		return nil
	case JobLifecycle:
		if s.lifecycle == nil {
			return nil
		}
		ticked, err := s.lifecycle.Tick(ctx)
		result.Lifecycle = &ticked
		if err != nil {
			return fmt.Errorf("lifecycle tick: %w", err)
		}
		return nil
	case JobFinalize:
		if s.lifecycle == nil {
			return nil
		}
		finalized, err := s.lifecycle.Finalize(ctx)
		result.Lifecycle = &finalized
		if err != nil {
			return fmt.Errorf("finalize: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown job %q", ErrInvalidInput, job)
	}
}
