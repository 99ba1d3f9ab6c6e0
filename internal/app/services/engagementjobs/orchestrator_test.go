package engagementjobs

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/job"
	"github.com/oddside/automation-runtime/internal/app/services/engagementscorer"
	"github.com/oddside/automation-runtime/internal/app/services/jobqueue"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

type recordingExecutor struct {
	sent []string
}

func (r *recordingExecutor) SendNudge(ctx context.Context, category, userID string, channels []string, message string) error {
	r.sent = append(r.sent, userID+":"+category)
	return nil
}

func newTestOrchestrator(now time.Time) (*Orchestrator, storage.Store, storage.Store, storage.Store, storage.Store, *recordingExecutor) {
	groups := memory.New()
	memberships := memory.New()
	gameNights := memory.New()
	profiles := memory.New()
	preferences := memory.New()
	engagementLog := memory.New()

	scorer := engagementscorer.New(groups, memberships, gameNights, profiles)
	counter := policy.NewMemoryCounter()
	engagementPolicy := policy.NewEngagementPolicy(counter)
	queue := jobqueue.New(memory.New())
	exec := &recordingExecutor{}

	o := New(queue, scorer, engagementPolicy, groups, memberships, preferences, engagementLog, exec)
	o.now = func() time.Time { return now }
	return o, groups, memberships, gameNights, engagementLog, exec
}

func TestEnqueueNearThresholdEnqueuesInactiveGroupAndUser(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, groups, memberships, gameNights, _, _ := newTestOrchestrator(now)
	ctx := context.Background()

	if err := groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Thursday Game", EngagementEnabled: true}); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	for i := 0; i < 2; i++ {
		uid := "u" + string(rune('1'+i))
		if err := memberships.InsertOne(ctx, "g1-"+uid, directory.Membership{GroupID: "g1", UserID: uid, JoinedAt: now.AddDate(0, -2, 0)}); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}
	if err := gameNights.InsertOne(ctx, "game1", directory.GameNight{
		GameID: "game1", GroupID: "g1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -20),
		Players:   []directory.GameNightPlayer{{UserID: "u1", TotalBuyIn: 20, CashOut: 10}},
	}); err != nil {
		t.Fatalf("insert game: %v", err)
	}

	if err := o.EnqueueNearThreshold(ctx); err != nil {
		t.Fatalf("EnqueueNearThreshold: %v", err)
	}

	claimed, err := o.queue.ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(claimed) == 0 {
		t.Fatalf("expected at least one job enqueued for the inactive group/user, got none")
	}

	sawGroupCheck := false
	for _, j := range claimed {
		if j.JobType == job.TypeGroupCheck && j.GroupID == "g1" {
			sawGroupCheck = true
		}
	}
	if !sawGroupCheck {
		t.Fatalf("expected a group_check job for g1, got %+v", claimed)
	}
}

func TestEnqueueNearThresholdIsIdempotentAcrossTicks(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, groups, memberships, gameNights, _, _ := newTestOrchestrator(now)
	ctx := context.Background()

	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Thursday Game", EngagementEnabled: true})
	memberships.InsertOne(ctx, "g1-u1", directory.Membership{GroupID: "g1", UserID: "u1", JoinedAt: now.AddDate(0, -2, 0)})
	memberships.InsertOne(ctx, "g1-u2", directory.Membership{GroupID: "g1", UserID: "u2", JoinedAt: now.AddDate(0, -2, 0)})
	gameNights.InsertOne(ctx, "game1", directory.GameNight{
		GameID: "game1", GroupID: "g1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -20),
		Players:   []directory.GameNightPlayer{{UserID: "u1", TotalBuyIn: 20, CashOut: 10}},
	})

	if err := o.EnqueueNearThreshold(ctx); err != nil {
		t.Fatalf("first EnqueueNearThreshold: %v", err)
	}
	first, err := o.queue.ClaimPending(ctx, 100)
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}

	// Re-run the scan without claiming/completing the first batch: every
	// candidate is still pending/processing, so the dedupe key must skip
	// re-inserting a duplicate job.
	if err := o.EnqueueNearThreshold(ctx); err != nil {
		t.Fatalf("second EnqueueNearThreshold: %v", err)
	}
	second, err := o.queue.ClaimPending(ctx, 100)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected the second scan to enqueue nothing new (first batch still in flight), got %+v", second)
	}
	if len(first) == 0 {
		t.Fatalf("expected the first scan to have found a candidate")
	}
}

func TestDispatchCompletesGroupCheckAndSendsNudgeWhenAllowed(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, groups, memberships, gameNights, engagementLog, exec := newTestOrchestrator(now)
	ctx := context.Background()

	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Thursday Game", EngagementEnabled: true})
	memberships.InsertOne(ctx, "g1-admin", directory.Membership{GroupID: "g1", UserID: "admin1", Role: "admin", JoinedAt: now.AddDate(0, -3, 0)})
	gameNights.InsertOne(ctx, "game1", directory.GameNight{
		GameID: "game1", GroupID: "g1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -30),
		Players:   []directory.GameNightPlayer{{UserID: "admin1", TotalBuyIn: 20, CashOut: 10}},
	})

	j, err := job.New(job.TypeGroupCheck, now, 3)
	if err != nil {
		t.Fatalf("job.New: %v", err)
	}
	j.GroupID = "g1"
	if _, err := o.queue.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	n, err := o.Dispatch(ctx, 10)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 job dispatched, got %d", n)
	}
	if len(exec.sent) != 1 {
		t.Fatalf("expected 1 nudge sent, got %+v", exec.sent)
	}

	count, err := engagementLog.CountDocuments(ctx, storage.Filter{"event_type": "nudge_sent"})
	if err != nil {
		t.Fatalf("count engagement log: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 engagement event logged, got %d", count)
	}
}

func TestDispatchSkipsNudgeWhenGroupEngagementDisabled(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, groups, memberships, gameNights, _, exec := newTestOrchestrator(now)
	ctx := context.Background()

	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Thursday Game", EngagementEnabled: false})
	memberships.InsertOne(ctx, "g1-admin", directory.Membership{GroupID: "g1", UserID: "admin1", Role: "admin", JoinedAt: now.AddDate(0, -3, 0)})
	gameNights.InsertOne(ctx, "game1", directory.GameNight{
		GameID: "game1", GroupID: "g1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -30),
		Players:   []directory.GameNightPlayer{{UserID: "admin1", TotalBuyIn: 20, CashOut: 10}},
	})

	j, _ := job.New(job.TypeGroupCheck, now, 3)
	j.GroupID = "g1"
	if _, err := o.queue.Enqueue(ctx, j); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if _, err := o.Dispatch(ctx, 10); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(exec.sent) != 0 {
		t.Fatalf("expected no nudge sent when engagement is disabled, got %+v", exec.sent)
	}
}

func TestEnqueueDigestsEnqueuesOnePerGroup(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	o, groups, _, _, _, _ := newTestOrchestrator(now)
	ctx := context.Background()

	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Thursday Game", EngagementEnabled: true})
	groups.InsertOne(ctx, "g2", directory.Group{GroupID: "g2", Name: "Friday Game", EngagementEnabled: true})

	if err := o.EnqueueDigests(ctx); err != nil {
		t.Fatalf("EnqueueDigests: %v", err)
	}

	claimed, err := o.queue.ClaimPending(ctx, 10)
	if err != nil {
		t.Fatalf("ClaimPending: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 digest jobs, got %d", len(claimed))
	}
	for _, j := range claimed {
		if j.JobType != job.TypeDigest {
			t.Fatalf("expected only digest jobs, got %+v", j)
		}
	}
}
