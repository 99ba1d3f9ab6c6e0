// Package jobqueue is the persistent job collection and its dispatch
// primitives: idempotent enqueue keyed on (job_type, group_id, user_id),
// priority-ordered claiming, and crash recovery of stuck "processing" jobs.
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/domain/job"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Queue wraps the jobs collection with the semantics the schedulers need.
type Queue struct {
	store storage.Store
	now   func() time.Time
}

// New builds a Queue over the jobs collection.
func New(store storage.Store) *Queue {
	return &Queue{store: store, now: time.Now}
}

func (q *Queue) clock() time.Time {
	if q.now != nil {
		return q.now()
	}
	return time.Now()
}

// Enqueue inserts j unless a job with the same (job_type, group_id, user_id)
// is already pending or processing, in which case it is a no-op — the
// near-threshold scans that call this run far more often than the
// underlying condition changes, so duplicate candidates are expected.
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) (bool, error) {
	filter := storage.Filter{"job_type": string(j.JobType)}
	if j.GroupID != "" {
		filter["group_id"] = j.GroupID
	}
	if j.UserID != "" {
		filter["user_id"] = j.UserID
	}
	var existing []job.Job
	if err := q.store.Find(ctx, filter, nil, 0, &existing); err != nil {
		return false, fmt.Errorf("check existing jobs: %w", err)
	}
	for _, e := range existing {
		if e.Status == job.StatusPending || e.Status == job.StatusProcessing {
			return false, nil
		}
	}

	if j.JobID == "" {
		j.JobID = uuid.NewString()
	}
	j.CreatedAt = q.clock()
	if j.Status == "" {
		j.Status = job.StatusPending
	}
	if j.MaxAttempts == 0 {
		j.MaxAttempts = job.MaxAttempts
	}
	if err := q.store.InsertOne(ctx, j.JobID, j); err != nil {
		return false, fmt.Errorf("insert job: %w", err)
	}
	return true, nil
}

// ClaimPending claims up to limit pending jobs whose run_at has arrived,
// highest priority first, marking each "processing" before returning it —
// so a crash between claim and completion is recoverable via RecoverStuck.
func (q *Queue) ClaimPending(ctx context.Context, limit int) ([]job.Job, error) {
	var candidates []job.Job
	sort := storage.Sort{Field: "priority", Desc: true}
	if err := q.store.Find(ctx, storage.Filter{"status": string(job.StatusPending)}, &sort, 0, &candidates); err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}

	now := q.clock()
	var claimed []job.Job
	for _, j := range candidates {
		if len(claimed) >= limit {
			break
		}
		if j.RunAt.After(now) {
			continue
		}
		startedAt := now
		update := storage.Update{Set: map[string]any{
			"status":     string(job.StatusProcessing),
			"started_at": startedAt,
		}}
		if err := q.store.UpdateOne(ctx, storage.Filter{"job_id": j.JobID}, update); err != nil {
			return nil, fmt.Errorf("claim job %s: %w", j.JobID, err)
		}
		j.Status = job.StatusProcessing
		j.StartedAt = &startedAt
		claimed = append(claimed, j)
	}
	return claimed, nil
}

// Complete marks jobID completed with an optional result payload.
func (q *Queue) Complete(ctx context.Context, jobID string, result map[string]any) error {
	completedAt := q.clock()
	return q.store.UpdateOne(ctx, storage.Filter{"job_id": jobID}, storage.Update{Set: map[string]any{
		"status":       string(job.StatusCompleted),
		"result":       result,
		"completed_at": completedAt,
	}})
}

// Fail records a processing failure for jobID: if the job can still retry it
// returns to pending with the attempt counter incremented, otherwise it is
// marked permanently failed.
func (q *Queue) Fail(ctx context.Context, jobID string, cause error) error {
	var j job.Job
	if err := q.store.FindOne(ctx, storage.Filter{"job_id": jobID}, &j); err != nil {
		return fmt.Errorf("find job %s: %w", jobID, err)
	}
	j.RecordFailure(cause)
	return q.store.UpdateOne(ctx, storage.Filter{"job_id": jobID}, storage.Update{Set: map[string]any{
		"status":   string(j.Status),
		"attempts": j.Attempts,
		"error":    j.Error,
	}})
}

// RecoverStuck moves every "processing" job back to "pending", clearing
// started_at. Called once at boot so a mid-dispatch crash never strands a
// job forever in flight.
func (q *Queue) RecoverStuck(ctx context.Context) (int64, error) {
	return q.store.UpdateMany(ctx, storage.Filter{"status": string(job.StatusProcessing)}, storage.Update{Set: map[string]any{
		"status":     string(job.StatusPending),
		"started_at": nil,
	}})
}
