package models

import (
	"time"
)

// JobStatus enumerates lifecycle states persisted in Postgres.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Job kinds: the composite git procedures a job can carry.
const (
	KindCommitPush = "commit_push"
	KindPush       = "push"
	KindSync       = "sync"
)

// Error kinds assigned by the operation runner from git stderr.
const (
	ErrKindAuth            = "auth"
	ErrKindNetwork         = "network"
	ErrKindNonFastForward  = "rejected_non_fast_forward"
	ErrKindNotARepository  = "not_a_repository"
	ErrKindNothingToCommit = "nothing_to_commit"
	ErrKindMergeConflict   = "merge_conflict"
	ErrKindUnknown         = "unknown"
)

// Failure reasons recorded by startup recovery.
const (
	ReasonInterrupted    = "interrupted"
	ReasonMissedDeadline = "missed-deadline"
)

// Payload carries kind-specific parameters for a job.
type Payload struct {
	Message   string `json:"message,omitempty"`
	ForcePush bool   `json:"force_push,omitempty"`
	Rebase    bool   `json:"rebase,omitempty"`
	AutoPush  bool   `json:"auto_push,omitempty"`
}

// Result is populated once a job leaves pending/running.
type Result struct {
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	FilesChanged int    `json:"files_changed,omitempty"`
	Insertions   int    `json:"insertions,omitempty"`
	Deletions    int    `json:"deletions,omitempty"`
	PullNeeded   bool   `json:"pull_needed,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// Job represents a scheduled or executed composite git operation.
type Job struct {
	ID          string    `json:"id"`
	Workspace   string    `json:"workspace"`
	Kind        string    `json:"kind"`
	Payload     Payload   `json:"payload"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	Result      *Result   `json:"result,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	ExecuteAt   time.Time `json:"execute_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Terminal reports whether a status admits no further transitions.
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// ValidKind reports whether k names a known composite procedure.
func ValidKind(k string) bool {
	switch k {
	case KindCommitPush, KindPush, KindSync:
		return true
	}
	return false
}

// JobSummary is the active-jobs view served to the dashboard.
type JobSummary struct {
	JobID                string    `json:"job_id"`
	Workspace            string    `json:"workspace"`
	Kind                 string    `json:"kind"`
	Status               string    `json:"status"`
	ScheduledAt          time.Time `json:"scheduled_at"`
	ExecuteAt            time.Time `json:"execute_at"`
	TimeRemainingSeconds int64     `json:"time_remaining_seconds"`
}

// Stats aggregates job counts by status for a workspace (or all).
type Stats struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

// AuditLog is a simple audit event row.
type AuditLog struct {
	JobID    string    `json:"job_id"`
	Event    string    `json:"event"`
	Detail   string    `json:"detail"`
	Recorded time.Time `json:"recorded_at"`
}
