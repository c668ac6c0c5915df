// Package scheduler owns the deferred execution of git jobs: the durable
// lifecycle lives in the job store, while this package holds the only
// process-wide registry of live timers and recurring loops.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"reposense/internal/config"
	"reposense/internal/gitexec"
	"reposense/internal/models"
	"reposense/internal/store"
	"reposense/internal/suggest"
	"reposense/internal/telemetry"
)

var (
	ErrDelayOutOfRange    = errors.New("delay exceeds the configured maximum")
	ErrIntervalOutOfRange = errors.New("interval is below the configured minimum")
	ErrLoopNotFound       = errors.New("recurring loop not found")
)

// Store is the slice of the job store the scheduler depends on.
type Store interface {
	Insert(ctx context.Context, job models.Job) (models.Job, error)
	Get(ctx context.Context, id string) (models.Job, error)
	MarkRunning(ctx context.Context, id string) (bool, error)
	MarkCancelled(ctx context.Context, id string) error
	Finish(ctx context.Context, id, status string, result models.Result) error
	RecoverInterrupted(ctx context.Context) ([]string, error)
	PendingJobs(ctx context.Context) ([]models.Job, error)
	MarkMissed(ctx context.Context, id string, deadline time.Time) error
	AppendAudit(ctx context.Context, jobID, event, detail string) error
}

// Runner executes a job's composite git procedure.
type Runner interface {
	Run(ctx context.Context, kind, workspace string, p models.Payload) gitexec.Outcome
}

// Scheduler arms one timer per pending job and flips job state through
// the store's compare-and-set transitions. All timer and loop bookkeeping
// lives behind mu; there is no ambient global state.
type Scheduler struct {
	cfg     config.Config
	store   Store
	runner  Runner
	suggest suggest.Provider
	log     zerolog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	loops  map[string]cron.EntryID
	cron   *cron.Cron

	wg sync.WaitGroup
}

// New builds a scheduler. Call Start before scheduling.
func New(cfg config.Config, st Store, runner Runner, provider suggest.Provider, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		store:   st,
		runner:  runner,
		suggest: provider,
		log:     log.With().Str("component", "scheduler").Logger(),
		timers:  make(map[string]*time.Timer),
		loops:   make(map[string]cron.EntryID),
		cron:    cron.New(),
	}
}

// Schedule validates the request, persists a pending job, and arms its
// timer. A zero or negative delay means run now; a delay above the
// configured maximum is rejected outright.
func (s *Scheduler) Schedule(ctx context.Context, workspace, kind string, payload models.Payload, delay time.Duration) (models.Job, error) {
	if delay < 0 {
		delay = 0
	}
	if delay > s.cfg.MaxDelay {
		return models.Job{}, fmt.Errorf("%w: %s > %s", ErrDelayOutOfRange, delay, s.cfg.MaxDelay)
	}
	if kind == models.KindCommitPush && payload.Message == "" {
		return models.Job{}, fmt.Errorf("%w: commit_push requires a message", store.ErrInvalidJob)
	}

	now := time.Now().UTC()
	job, err := s.store.Insert(ctx, models.Job{
		Workspace:   workspace,
		Kind:        kind,
		Payload:     payload,
		ScheduledAt: now,
		ExecuteAt:   now.Add(delay),
	})
	if err != nil {
		return models.Job{}, err
	}

	s.arm(job.ID, delay)
	_ = s.store.AppendAudit(ctx, job.ID, "scheduled", fmt.Sprintf("kind=%s delay=%s", kind, delay))
	telemetry.JobsScheduled.Inc()
	s.log.Info().Str("job_id", job.ID).Str("workspace", workspace).Str("kind", kind).Dur("delay", delay).Msg("job scheduled")
	return job, nil
}

// Cancel disarms a pending job. The store transition is the authority: if
// the job already started (or finished), this returns ErrCannotCancel and
// keeps the timer race honest.
func (s *Scheduler) Cancel(ctx context.Context, id string) error {
	if err := s.store.MarkCancelled(ctx, id); err != nil {
		return err
	}
	s.disarm(id)
	_ = s.store.AppendAudit(ctx, id, "cancelled", "cancel requested")
	telemetry.JobsCancelled.Inc()
	s.log.Info().Str("job_id", id).Msg("job cancelled")
	return nil
}

// arm registers the job's timer in the owned registry. The wait group is
// incremented here, not in the fire callback, so Stop cannot observe a
// zero count between a timer elapsing and its callback starting.
func (s *Scheduler) arm(id string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Add(1)
	s.timers[id] = time.AfterFunc(delay, func() { s.fire(id) })
	telemetry.TimersArmed.Set(float64(len(s.timers)))
}

func (s *Scheduler) disarm(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		// Stop reports whether the callback was prevented from running;
		// if it already fired, fire owns the wait-group release.
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	telemetry.TimersArmed.Set(float64(len(s.timers)))
}

// fire runs when a job's timer elapses. The pending->running
// compare-and-set is the single gate against double execution: losing it
// (a concurrent cancel, or a duplicate fire) makes this a no-op.
func (s *Scheduler) fire(id string) {
	defer s.wg.Done()
	s.disarm(id)

	ctx := context.Background()
	job, err := s.store.Get(ctx, id)
	if err != nil {
		s.log.Error().Str("job_id", id).Err(err).Msg("fired job could not be loaded")
		return
	}

	ok, err := s.store.MarkRunning(ctx, id)
	if err != nil {
		s.log.Error().Str("job_id", id).Err(err).Msg("mark running failed")
		return
	}
	if !ok {
		// Cancelled between arming and firing.
		return
	}

	started := time.Now()
	outcome := s.runner.Run(ctx, job.Kind, job.Workspace, job.Payload)
	telemetry.GitOpDuration.Observe(time.Since(started).Seconds())

	status, result := mapOutcome(outcome)
	if err := s.store.Finish(ctx, id, status, result); err != nil {
		// Should never happen: the job is ours after winning the CAS.
		s.log.Error().Str("job_id", id).Err(err).Msg("finish transition rejected")
		return
	}

	if status == models.StatusCompleted {
		telemetry.JobsCompleted.Inc()
		_ = s.store.AppendAudit(ctx, id, "completed", result.Message)
		s.log.Info().Str("job_id", id).Str("workspace", job.Workspace).Msg("job completed")
	} else {
		telemetry.JobsFailed.Inc()
		_ = s.store.AppendAudit(ctx, id, "failed", fmt.Sprintf("kind=%s %s", result.ErrorKind, result.Message))
		s.log.Warn().Str("job_id", id).Str("workspace", job.Workspace).Str("error_kind", result.ErrorKind).Str("msg", result.Message).Msg("job failed")
	}
}

// mapOutcome folds a runner outcome into a terminal status and result.
// A push rejected as non-fast-forward (without force) is not auto-retried;
// the result flags pull_needed so the caller can resolve or force.
func mapOutcome(out gitexec.Outcome) (string, models.Result) {
	result := models.Result{
		Success:      out.Success,
		Message:      out.Message,
		ErrorKind:    out.ErrorKind,
		FilesChanged: out.FilesChanged,
		Insertions:   out.Insertions,
		Deletions:    out.Deletions,
		PullNeeded:   out.PullNeeded,
	}
	if out.Success {
		return models.StatusCompleted, result
	}
	return models.StatusFailed, result
}

// Start recovers persisted state and begins serving timers: jobs stuck in
// running from a prior crash are failed as interrupted, overdue pending
// jobs follow the recovery policy, and future pending jobs get their
// timers re-armed.
func (s *Scheduler) Start(ctx context.Context) error {
	interrupted, err := s.store.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	for _, id := range interrupted {
		_ = s.store.AppendAudit(ctx, id, "failed", "reason="+models.ReasonInterrupted)
	}
	if len(interrupted) > 0 {
		s.log.Warn().Int("jobs", len(interrupted)).Msg("reconciled jobs interrupted by restart")
	}

	pending, err := s.store.PendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("load pending jobs: %w", err)
	}
	now := time.Now()
	for _, job := range pending {
		delay := job.ExecuteAt.Sub(now)
		if delay <= 0 && s.cfg.RecoveryPolicy == config.RecoveryFail {
			if err := s.store.MarkMissed(ctx, job.ID, job.ExecuteAt); err != nil {
				s.log.Error().Str("job_id", job.ID).Err(err).Msg("mark missed failed")
			}
			continue
		}
		if delay < 0 {
			delay = 0
		}
		s.arm(job.ID, delay)
	}

	s.cron.Start()
	s.log.Info().Int("rearmed", len(s.timers)).Str("recovery_policy", s.cfg.RecoveryPolicy).Msg("scheduler started")
	return nil
}

// Stop disarms everything and waits for in-flight executions to persist
// their outcome. Cancellation is cooperative: an operation already in
// flight is never interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	ctx := s.cron.Stop()
	for id, t := range s.timers {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.timers, id)
	}
	telemetry.TimersArmed.Set(0)
	s.mu.Unlock()

	<-ctx.Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}
