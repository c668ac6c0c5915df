// Package query serves read-only views over the job store for the
// dashboard: active jobs with live time remaining, history, and stats.
package query

import (
	"context"
	"time"

	"reposense/internal/models"
)

// Store is the read-only slice of the job store the facade needs.
type Store interface {
	ListActive(ctx context.Context, workspace string) ([]models.Job, error)
	ListHistory(ctx context.Context, workspace string, limit int) ([]models.Job, error)
	Stats(ctx context.Context, workspace string) (models.Stats, error)
}

// Facade adds no caching of its own; time remaining is computed from the
// stored execute_at on every read.
type Facade struct {
	store        Store
	defaultLimit int
	maxLimit     int
	now          func() time.Time
}

func New(store Store, defaultLimit, maxLimit int) *Facade {
	return &Facade{store: store, defaultLimit: defaultLimit, maxLimit: maxLimit, now: time.Now}
}

// ActiveJobs lists pending/running jobs with seconds until execution.
func (f *Facade) ActiveJobs(ctx context.Context, workspace string) ([]models.JobSummary, error) {
	jobs, err := f.store.ListActive(ctx, workspace)
	if err != nil {
		return nil, err
	}
	now := f.now()
	summaries := make([]models.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		remaining := int64(job.ExecuteAt.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		summaries = append(summaries, models.JobSummary{
			JobID:                job.ID,
			Workspace:            job.Workspace,
			Kind:                 job.Kind,
			Status:               job.Status,
			ScheduledAt:          job.ScheduledAt,
			ExecuteAt:            job.ExecuteAt,
			TimeRemainingSeconds: remaining,
		})
	}
	return summaries, nil
}

// History lists terminal jobs, newest first. A non-positive limit takes
// the default; anything above the cap is clamped.
func (f *Facade) History(ctx context.Context, workspace string, limit int) ([]models.Job, error) {
	if limit <= 0 {
		limit = f.defaultLimit
	}
	if f.maxLimit > 0 && limit > f.maxLimit {
		limit = f.maxLimit
	}
	return f.store.ListHistory(ctx, workspace, limit)
}

// Stats returns counts by status.
func (f *Facade) Stats(ctx context.Context, workspace string) (models.Stats, error) {
	return f.store.Stats(ctx, workspace)
}
