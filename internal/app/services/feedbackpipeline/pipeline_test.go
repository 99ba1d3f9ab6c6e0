package feedbackpipeline

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/feedback"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

type recordingFixExecutor struct {
	calls []string
}

func (e *recordingFixExecutor) ExecuteFix(ctx context.Context, req policy.AutoFixRequest) (string, error) {
	e.calls = append(e.calls, req.FixType)
	return "fixed:" + req.FixType, nil
}

func newTestPipeline(now time.Time) (*Pipeline, storage.Store, *recordingFixExecutor) {
	store := memory.New()
	feedbackPolicy := policy.NewFeedbackPolicy()
	exec := &recordingFixExecutor{}
	p := New(store, feedbackPolicy, nil, exec)
	p.now = func() time.Time { return now }
	return p, store, exec
}

func TestSubmitRedactsPIIBeforeStorage(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, _ := newTestPipeline(now)

	result, err := p.Submit(context.Background(), SubmitInput{
		UserID: "u1", Content: "please email me at user@example.com about this bug",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if result.Duplicate {
		t.Fatalf("expected a fresh submission, got duplicate")
	}
	if result.Feedback.Content == "please email me at user@example.com about this bug" {
		t.Fatalf("expected email to be redacted, got %q", result.Feedback.Content)
	}
}

func TestSubmitLinksDuplicateWithinSevenDayWindow(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, _ := newTestPipeline(now)
	ctx := context.Background()

	in := SubmitInput{UserID: "u1", GroupID: "g1", Content: "the settlement came out wrong again"}
	first, err := p.Submit(ctx, in)
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	p.now = func() time.Time { return now.Add(2 * 24 * time.Hour) }
	second, err := p.Submit(ctx, in)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected second identical submission to be flagged duplicate")
	}
	if second.Feedback.FeedbackID != first.Feedback.FeedbackID {
		t.Fatalf("expected duplicate to link to the original feedback_id")
	}
}

func TestSubmitDoesNotDedupeAcrossDifferentGroups(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, _ := newTestPipeline(now)
	ctx := context.Background()

	content := "the settlement came out wrong again"
	if _, err := p.Submit(ctx, SubmitInput{UserID: "u1", GroupID: "g1", Content: content}); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	second, err := p.Submit(ctx, SubmitInput{UserID: "u2", GroupID: "g2", Content: content})
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if second.Duplicate {
		t.Fatalf("expected no dedup across different groups")
	}
}

func TestSubmitAssignsCategoryFloorAndSLA(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, _ := newTestPipeline(now)

	result, err := p.Submit(context.Background(), SubmitInput{
		UserID: "u1", Content: "minor cosmetic typo on the settings page",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	fb := result.Feedback
	if fb.Classification == nil {
		t.Fatalf("expected classification to be set")
	}
	if fb.Status != feedback.StatusClassified {
		t.Fatalf("expected status classified, got %s", fb.Status)
	}
	if fb.SLADueAt == nil {
		t.Fatalf("expected an SLA due date to be stamped")
	}
}

func TestSubmitAutoRunsVerifyTierFix(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, exec := newTestPipeline(now)

	result, err := p.Submit(context.Background(), SubmitInput{
		UserID: "u1", Content: "the settlement came out wrong, chips don't add up",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "recompute_ledger" {
		t.Fatalf("expected a recompute_ledger auto-fix call, got %+v", exec.calls)
	}
	if result.Feedback.Status != feedback.StatusAutoFixed {
		t.Fatalf("expected status auto_fixed, got %s", result.Feedback.Status)
	}
	if !result.Feedback.AutoFixAttempted {
		t.Fatalf("expected AutoFixAttempted to be true")
	}
}

func TestSubmitFlagsMutateTierFixForHostConfirmation(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, _, exec := newTestPipeline(now)

	result, err := p.Submit(context.Background(), SubmitInput{
		UserID: "u1", Content: "payment not tracked, I already paid via stripe",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected no auto-fix to run unattended for a mutate-tier fix, got %+v", exec.calls)
	}
	if result.Feedback.Status != feedback.StatusNeedsHostAction {
		t.Fatalf("expected status needs_host_action, got %s", result.Feedback.Status)
	}
}

func TestConfirmFixRunsMutateTierFixOnceConfirmedByAdmin(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store, exec := newTestPipeline(now)
	ctx := context.Background()

	result, err := p.Submit(ctx, SubmitInput{
		UserID: "u1", Content: "payment not tracked, I already paid via stripe",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.ConfirmFix(ctx, result.Feedback.FeedbackID, "reissue_payment", policy.RoleAdmin, 5000); err != nil {
		t.Fatalf("ConfirmFix: %v", err)
	}
	if len(exec.calls) != 1 || exec.calls[0] != "reissue_payment" {
		t.Fatalf("expected a reissue_payment auto-fix call, got %+v", exec.calls)
	}

	var fb feedback.Feedback
	if err := store.FindOne(ctx, storage.Filter{"feedback_id": result.Feedback.FeedbackID}, &fb); err != nil {
		t.Fatalf("find feedback: %v", err)
	}
	if fb.Status != feedback.StatusAutoFixed {
		t.Fatalf("expected status auto_fixed after confirmation, got %s", fb.Status)
	}
}

func TestConfirmFixBlocksWhenPotExceedsThreshold(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	p, store, exec := newTestPipeline(now)
	ctx := context.Background()

	result, err := p.Submit(ctx, SubmitInput{
		UserID: "u1", Content: "payment not tracked, I already paid via stripe",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := p.ConfirmFix(ctx, result.Feedback.FeedbackID, "reissue_payment", policy.RoleAdmin, 100*100+1); err != nil {
		t.Fatalf("ConfirmFix: %v", err)
	}
	if len(exec.calls) != 0 {
		t.Fatalf("expected pot over threshold to block the auto-fix, got %+v", exec.calls)
	}

	var fb feedback.Feedback
	if err := store.FindOne(ctx, storage.Filter{"feedback_id": result.Feedback.FeedbackID}, &fb); err != nil {
		t.Fatalf("find feedback: %v", err)
	}
	if fb.Status == feedback.StatusAutoFixed {
		t.Fatalf("expected status to remain unfixed when blocked")
	}
}
