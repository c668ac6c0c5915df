package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reposense/internal/models"
)

// RecoverInterrupted resolves jobs left in running state by a prior
// crash. No job's running status may survive a restart. Returns the
// ids it reconciled.
func (s *Store) RecoverInterrupted(ctx context.Context) ([]string, error) {
	result := models.Result{
		Success: false,
		Message: "execution interrupted by process restart",
		Reason:  models.ReasonInterrupted,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs
		SET status = $1, result = $2, updated_at = NOW()
		WHERE status = $3
		RETURNING id
	`, models.StatusFailed, resultJSON, models.StatusRunning)
	if err != nil {
		return nil, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PendingJobs returns every pending job so the scheduler can re-arm
// timers (and apply the overdue policy) at startup.
func (s *Store) PendingJobs(ctx context.Context) ([]models.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE status = $1
		ORDER BY execute_at ASC
	`, models.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// MarkMissed fails a pending job whose deadline passed while the process
// was down, under the fail recovery policy.
func (s *Store) MarkMissed(ctx context.Context, id string, deadline time.Time) error {
	result := models.Result{
		Success: false,
		Message: fmt.Sprintf("execute_at %s passed while the scheduler was down", deadline.Format(time.RFC3339)),
		Reason:  models.ReasonMissedDeadline,
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2, result = $3, updated_at = NOW()
		WHERE id = $1 AND status = $4
	`, id, models.StatusFailed, resultJSON, models.StatusPending)
	if err != nil {
		return fmt.Errorf("mark missed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: job %s is not pending", ErrInvalidTransition, id)
	}
	return nil
}
