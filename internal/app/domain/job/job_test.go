package job

import (
	"errors"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/apperr"
)

func TestNewRejectsBadPriority(t *testing.T) {
	if _, err := New(TypeDigest, time.Now(), 6); !apperr.Is(err, apperr.KindInputInvalid) {
		t.Fatalf("expected input_invalid error, got %v", err)
	}
}

func TestNewRejectsUnknownType(t *testing.T) {
	if _, err := New(Type("bogus"), time.Now(), 1); !apperr.Is(err, apperr.KindInputInvalid) {
		t.Fatalf("expected input_invalid error, got %v", err)
	}
}

func TestRecordFailureMarksFailedAtMaxAttempts(t *testing.T) {
	j, err := New(TypeGroupCheck, time.Now(), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.Attempts = MaxAttempts - 1
	j.RecordFailure(errors.New("boom"))
	if j.Status != StatusFailed {
		t.Fatalf("expected status failed, got %s", j.Status)
	}
	if j.CanRetry() {
		t.Fatalf("expected CanRetry false once attempts exhausted")
	}
}

func TestRecordFailureReturnsToPendingBeforeExhausted(t *testing.T) {
	j, err := New(TypeGroupCheck, time.Now(), 1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	j.RecordFailure(errors.New("transient"))
	if j.Status != StatusPending {
		t.Fatalf("expected status pending, got %s", j.Status)
	}
	if !j.CanRetry() {
		t.Fatalf("expected CanRetry true")
	}
}

func TestDedupeKey(t *testing.T) {
	j := &Job{JobType: TypeGroupCheck, GroupID: "g1"}
	if got, want := j.DedupeKey(), "group_check|g1|"; got != want {
		t.Fatalf("DedupeKey() = %q, want %q", got, want)
	}
}

func TestRequeueStuckOnlyAffectsProcessing(t *testing.T) {
	j := &Job{Status: StatusProcessing}
	j.RequeueStuck()
	if j.Status != StatusPending {
		t.Fatalf("expected pending after requeue, got %s", j.Status)
	}

	completed := &Job{Status: StatusCompleted}
	completed.RequeueStuck()
	if completed.Status != StatusCompleted {
		t.Fatalf("expected completed job to be untouched")
	}
}
