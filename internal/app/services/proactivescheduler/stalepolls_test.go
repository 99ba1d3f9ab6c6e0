package proactivescheduler

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/poll"
	"github.com/oddside/automation-runtime/internal/app/services/smartscheduler"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

type recordingPollAnnouncer struct {
	calls []string
}

func (r *recordingPollAnnouncer) AnnounceRepropose(ctx context.Context, groupID string, newPoll poll.Poll, oldPollID string) (string, error) {
	r.calls = append(r.calls, oldPollID+"->"+newPoll.PollID)
	return "msg_1", nil
}

func TestStalePollScanReproposesStaleLowResponsePoll(t *testing.T) {
	ctx := context.Background()
	polls := memory.New()
	gameNights := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	old := poll.Poll{
		PollID:  "poll1",
		GroupID: "grp1",
		Type:    "scheduling",
		Options: []poll.Option{
			{OptionID: "o1", Label: "Friday 7pm", DateTime: now.Add(-48 * time.Hour), Votes: []string{"u1"}},
		},
		Status:    poll.StatusActive,
		CreatedAt: now.Add(-36 * time.Hour),
	}
	if err := polls.InsertOne(ctx, old.PollID, old); err != nil {
		t.Fatalf("insert poll: %v", err)
	}

	sched := smartscheduler.New(gameNights)
	announcer := &recordingPollAnnouncer{}
	scan := NewStalePollScan(polls, sched, announcer)
	scan.now = func() time.Time { return now }

	if err := scan.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(announcer.calls) != 1 {
		t.Fatalf("expected one repropose announcement, got %v", announcer.calls)
	}

	var closed poll.Poll
	if err := polls.FindOne(ctx, storage.Filter{"poll_id": "poll1"}, &closed); err != nil {
		t.Fatalf("find old poll: %v", err)
	}
	if closed.Status != poll.StatusClosed {
		t.Fatalf("expected the stale poll to be closed, got status %q", closed.Status)
	}

	var all []poll.Poll
	if err := polls.Find(ctx, nil, nil, 0, &all); err != nil {
		t.Fatalf("list polls: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected the old poll plus a reproposed one, got %d", len(all))
	}
}

func TestStalePollScanLeavesFreshOrWellAnsweredPollsAlone(t *testing.T) {
	ctx := context.Background()
	polls := memory.New()
	gameNights := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	fresh := poll.Poll{
		PollID: "poll-fresh", GroupID: "grp1", Status: poll.StatusActive,
		CreatedAt: now.Add(-2 * time.Hour),
	}
	answered := poll.Poll{
		PollID: "poll-answered", GroupID: "grp1", Status: poll.StatusActive,
		CreatedAt: now.Add(-48 * time.Hour),
		Options: []poll.Option{
			{OptionID: "o1", Votes: []string{"u1", "u2"}},
			{OptionID: "o2", Votes: []string{"u3"}},
		},
	}
	if err := polls.InsertOne(ctx, fresh.PollID, fresh); err != nil {
		t.Fatalf("insert fresh poll: %v", err)
	}
	if err := polls.InsertOne(ctx, answered.PollID, answered); err != nil {
		t.Fatalf("insert answered poll: %v", err)
	}

	sched := smartscheduler.New(gameNights)
	announcer := &recordingPollAnnouncer{}
	scan := NewStalePollScan(polls, sched, announcer)
	scan.now = func() time.Time { return now }

	if err := scan.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(announcer.calls) != 0 {
		t.Fatalf("expected no repropose for a fresh or well-answered poll, got %v", announcer.calls)
	}
}
