package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"reposense/internal/models"
)

// Scheduling-time and transition errors surfaced by the store.
var (
	ErrInvalidJob        = errors.New("invalid job")
	ErrJobNotFound       = errors.New("job not found")
	ErrCannotCancel      = errors.New("job is not in a cancellable state")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// pastTolerance is how far in the past execute_at may sit before Insert
// treats it as a caller error rather than clock skew.
const pastTolerance = 5 * time.Second

// Store wraps pgxpool for Postgres persistence of jobs.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Insert assigns an id and persists a pending job. It rejects an
// execute_at more than a small tolerance in the past; the caller computed
// it, so that is a caller error, never something to clamp.
func (s *Store) Insert(ctx context.Context, job models.Job) (models.Job, error) {
	now := time.Now().UTC()
	if job.Workspace == "" || !models.ValidKind(job.Kind) {
		return models.Job{}, fmt.Errorf("%w: workspace and kind are required", ErrInvalidJob)
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = now
	}
	if job.ExecuteAt.IsZero() {
		job.ExecuteAt = job.ScheduledAt
	}
	if job.ExecuteAt.Before(now.Add(-pastTolerance)) {
		return models.Job{}, fmt.Errorf("%w: execute_at %s is in the past", ErrInvalidJob, job.ExecuteAt.Format(time.RFC3339))
	}
	if job.ExecuteAt.Before(job.ScheduledAt) {
		return models.Job{}, fmt.Errorf("%w: execute_at precedes scheduled_at", ErrInvalidJob)
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return models.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	job.ID = uuid.New().String()
	job.Status = models.StatusPending
	job.Attempts = 0
	job.Result = nil
	job.CreatedAt = now
	job.UpdatedAt = now

	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (id, workspace, kind, payload, status, attempts, scheduled_at, execute_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $7, $8, $8)
	`, job.ID, job.Workspace, job.Kind, payloadJSON, job.Status, job.ScheduledAt, job.ExecuteAt, now)
	if err != nil {
		return models.Job{}, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

const jobColumns = `id, workspace, kind, payload, status, attempts, result, scheduled_at, execute_at, created_at, updated_at`

// Get fetches a job by id.
func (s *Store) Get(ctx context.Context, id string) (models.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, ErrJobNotFound
	}
	return job, err
}

// ListActive returns pending and running jobs, newest execute_at last.
// An empty workspace means all workspaces.
func (s *Store) ListActive(ctx context.Context, workspace string) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ($1, $2) AND ($3::text = '' OR workspace = $3)
		ORDER BY execute_at ASC
	`, models.StatusPending, models.StatusRunning, workspace)
	if err != nil {
		return nil, fmt.Errorf("list active jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListHistory returns terminal jobs for a workspace, most recent first.
func (s *Store) ListHistory(ctx context.Context, workspace string, limit int) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status IN ($1, $2, $3) AND ($4::text = '' OR workspace = $4)
		ORDER BY updated_at DESC
		LIMIT $5
	`, models.StatusCompleted, models.StatusFailed, models.StatusCancelled, workspace, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkRunning is the compare-and-set gate for execution: it flips a
// pending job to running and charges one attempt. It reports false when
// the job was no longer pending (cancelled, or a racing fire won);
// that is a normal outcome, not an error.
func (s *Store) MarkRunning(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, attempts = attempts + 1, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusRunning, models.StatusPending)
	if err != nil {
		return false, fmt.Errorf("mark running: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCancelled transitions pending -> cancelled. Cancelling a running or
// terminal job is an explicit error, never a silent success.
func (s *Store) MarkCancelled(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3
	`, id, models.StatusCancelled, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark cancelled: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := s.Get(ctx, id); errors.Is(err, ErrJobNotFound) {
		return ErrJobNotFound
	}
	return ErrCannotCancel
}

// Finish records the terminal outcome of an execution, guarded on the
// job still being in running state.
func (s *Store) Finish(ctx context.Context, id, status string, result models.Result) error {
	if status != models.StatusCompleted && status != models.StatusFailed {
		return fmt.Errorf("%w: finish to %q", ErrInvalidTransition, status)
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, result = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, status, resultJSON, models.StatusRunning)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: job %s is not running", ErrInvalidTransition, id)
	}
	return nil
}

// Stats returns counts by status; empty workspace aggregates everything.
func (s *Store) Stats(ctx context.Context, workspace string) (models.Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM jobs
		WHERE ($1::text = '' OR workspace = $1)
		GROUP BY status
	`, workspace)
	if err != nil {
		return models.Stats{}, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	var st models.Stats
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return models.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		st.Total += n
		switch status {
		case models.StatusPending:
			st.Pending = n
		case models.StatusRunning:
			st.Running = n
		case models.StatusCompleted:
			st.Completed = n
		case models.StatusFailed:
			st.Failed = n
		case models.StatusCancelled:
			st.Cancelled = n
		}
	}
	return st, rows.Err()
}

// AppendAudit adds an audit row.
func (s *Store) AppendAudit(ctx context.Context, jobID, event, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (job_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, jobID, event, detail)
	return err
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (models.Job, error) {
	var job models.Job
	var payloadJSON []byte
	var resultJSON []byte

	err := row.Scan(&job.ID, &job.Workspace, &job.Kind, &payloadJSON, &job.Status, &job.Attempts,
		&resultJSON, &job.ScheduledAt, &job.ExecuteAt, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return models.Job{}, err
	}
	if err := json.Unmarshal(payloadJSON, &job.Payload); err != nil {
		return models.Job{}, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(resultJSON) > 0 {
		var res models.Result
		if err := json.Unmarshal(resultJSON, &res); err != nil {
			return models.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &res
	}
	return job, nil
}
