package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"reposense/internal/models"
	"reposense/internal/suggest"
	"reposense/internal/telemetry"
)

// StartRecurring registers a server-owned loop that schedules an
// immediate commit_push job every interval. The loop itself is not a job
// store entity; only the jobs it fires are. It keeps running until
// StopRecurring, independent of any client connection.
func (s *Scheduler) StartRecurring(workspace string, interval time.Duration) (string, error) {
	if interval < s.cfg.MinRecurInterval {
		return "", fmt.Errorf("%w: %s < %s", ErrIntervalOutOfRange, interval, s.cfg.MinRecurInterval)
	}

	loopID := uuid.New().String()
	entryID, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		s.fireLoop(loopID, workspace)
	})
	if err != nil {
		return "", fmt.Errorf("register recurring loop: %w", err)
	}

	s.mu.Lock()
	s.loops[loopID] = entryID
	telemetry.LoopsActive.Set(float64(len(s.loops)))
	s.mu.Unlock()

	s.log.Info().Str("loop_id", loopID).Str("workspace", workspace).Dur("interval", interval).Msg("recurring loop started")
	return loopID, nil
}

// StopRecurring removes the loop. Jobs it already scheduled are left
// alone; they remain individually cancellable.
func (s *Scheduler) StopRecurring(loopID string) error {
	s.mu.Lock()
	entryID, ok := s.loops[loopID]
	if ok {
		delete(s.loops, loopID)
	}
	telemetry.LoopsActive.Set(float64(len(s.loops)))
	s.mu.Unlock()

	if !ok {
		return ErrLoopNotFound
	}
	s.cron.Remove(entryID)
	s.log.Info().Str("loop_id", loopID).Msg("recurring loop stopped")
	return nil
}

// fireLoop asks the suggestion provider for a commit message and
// schedules an immediate auto-push job. Provider failures never propagate
// anywhere; they just fall back to a generic label.
func (s *Scheduler) fireLoop(loopID, workspace string) {
	ctx := context.Background()

	msg, err := s.suggest.Suggest(ctx, workspace)
	if err != nil || strings.TrimSpace(msg) == "" {
		msg = suggest.FallbackLabel(time.Now())
	}

	if _, err := s.Schedule(ctx, workspace, models.KindCommitPush, models.Payload{Message: msg, AutoPush: true}, 0); err != nil {
		s.log.Warn().Str("loop_id", loopID).Str("workspace", workspace).Err(err).Msg("recurring schedule failed")
	}
}
