// Package job defines the Job entity processed by the job queue and its
// periodic schedulers.
package job

import (
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/apperr"
)

// Type enumerates the closed set of job kinds.
type Type string

const (
	TypeGroupCheck        Type = "group_check"
	TypeUserCheck         Type = "user_check"
	TypeDigest            Type = "digest"
	TypeDelayedSurvey     Type = "delayed_survey"
	TypeScheduledReminder Type = "scheduled_reminder"
)

// Status is the job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// MaxAttempts bounds how many times a job is retried before it is marked
// failed permanently.
const MaxAttempts = 3

// Job is a unit of deferred or periodic work.
type Job struct {
	JobID        string         `json:"job_id" bson:"job_id"`
	JobType      Type           `json:"job_type" bson:"job_type"`
	GroupID      string         `json:"group_id,omitempty" bson:"group_id,omitempty"`
	UserID       string         `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Priority     int            `json:"priority" bson:"priority"`
	Status       Status         `json:"status" bson:"status"`
	RunAt        time.Time      `json:"run_at" bson:"run_at"`
	CreatedAt    time.Time      `json:"created_at" bson:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	Attempts     int            `json:"attempts" bson:"attempts"`
	MaxAttempts  int            `json:"max_attempts" bson:"max_attempts"`
	Result       map[string]any `json:"result,omitempty" bson:"result,omitempty"`
	Error        string         `json:"error,omitempty" bson:"error,omitempty"`
}

// New constructs a pending Job with the package defaults applied.
func New(jobType Type, runAt time.Time, priority int) (*Job, error) {
	if priority < 0 || priority > 5 {
		return nil, apperr.New(apperr.KindInputInvalid, fmt.Sprintf("priority %d out of range [0,5]", priority))
	}
	switch jobType {
	case TypeGroupCheck, TypeUserCheck, TypeDigest, TypeDelayedSurvey, TypeScheduledReminder:
	default:
		return nil, apperr.New(apperr.KindInputInvalid, fmt.Sprintf("unknown job type %q", jobType))
	}
	return &Job{
		JobType:     jobType,
		Priority:    priority,
		Status:      StatusPending,
		RunAt:       runAt,
		MaxAttempts: MaxAttempts,
	}, nil
}

// DedupeKey identifies the (job_type, group_id, user_id) tuple that must
// have at most one pending or processing job at a time.
func (j *Job) DedupeKey() string {
	return fmt.Sprintf("%s|%s|%s", j.JobType, j.GroupID, j.UserID)
}

// CanRetry reports whether the job may be attempted again.
func (j *Job) CanRetry() bool {
	return j.Attempts < j.MaxAttempts
}

// RecordFailure increments the attempt counter and marks the job failed only
// once attempts are exhausted; otherwise it returns to pending for retry.
func (j *Job) RecordFailure(err error) {
	j.Attempts++
	j.Error = err.Error()
	if j.Attempts >= j.MaxAttempts {
		j.Status = StatusFailed
	} else {
		j.Status = StatusPending
	}
}

// RecordSuccess marks the job completed with an optional result payload.
func (j *Job) RecordSuccess(result map[string]any, completedAt time.Time) {
	j.Status = StatusCompleted
	j.Result = result
	j.CompletedAt = &completedAt
}

// RequeueStuck moves a job stuck in "processing" (e.g. after a crash) back
// to pending so it is picked up again.
func (j *Job) RequeueStuck() {
	if j.Status == StatusProcessing {
		j.Status = StatusPending
		j.StartedAt = nil
	}
}
