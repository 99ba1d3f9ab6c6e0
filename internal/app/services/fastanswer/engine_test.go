package fastanswer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/intent"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func newTestEngine() (*Engine, storage.Store, storage.Store, storage.Store, storage.Store, storage.Store) {
	groups := memory.New()
	memberships := memory.New()
	gameNights := memory.New()
	profiles := memory.New()
	entries := memory.New()
	return New(groups, memberships, gameNights, profiles, entries), groups, memberships, gameNights, profiles, entries
}

func TestHandleGroupsCountNoGroups(t *testing.T) {
	e, _, _, _, _, _ := newTestEngine()
	answer, err := e.Answer(context.Background(), intent.Result{Intent: intent.GroupsCount}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "not in any groups") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleGroupsCountWithGroups(t *testing.T) {
	e, groups, memberships, _, _, _ := newTestEngine()
	ctx := context.Background()
	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Friday Regulars", Currency: "USD"})
	memberships.InsertOne(ctx, "m1", directory.Membership{GroupID: "g1", UserID: "u1", Role: "admin"})

	answer, err := e.Answer(ctx, intent.Result{Intent: intent.GroupsCount}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "1 group") || !strings.Contains(answer.Text, "Friday Regulars") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleWhoOwesMeAggregatesByPerson(t *testing.T) {
	e, _, _, _, profiles, entries := newTestEngine()
	ctx := context.Background()
	profiles.InsertOne(ctx, "u2", directory.Profile{UserID: "u2", Name: "Sam"})
	entries.InsertOne(ctx, "l1", ledger.Entry{
		LedgerID: "l1", FromUserID: "u2", ToUserID: "u1", Amount: 25, Currency: "USD", Status: ledger.StatusOpen,
	})

	answer, err := e.Answer(ctx, intent.Result{Intent: intent.WhoOwesMe}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "Sam") || !strings.Contains(answer.Text, "$25.00") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleWhoOwesMeAllSettled(t *testing.T) {
	e, _, _, _, _, entries := newTestEngine()
	ctx := context.Background()
	entries.InsertOne(ctx, "l1", ledger.Entry{
		LedgerID: "l1", FromUserID: "u2", ToUserID: "u1", Amount: 25, Currency: "USD", Status: ledger.StatusPaid,
	})

	answer, err := e.Answer(ctx, intent.Result{Intent: intent.WhoOwesMe}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "All settled up") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleMyStatsNoProfile(t *testing.T) {
	e, _, _, _, _, _ := newTestEngine()
	answer, err := e.Answer(context.Background(), intent.Result{Intent: intent.MyStats}, "ghost")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "couldn't find your profile") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleMyRecordReportsNetProfit(t *testing.T) {
	e, _, _, _, profiles, _ := newTestEngine()
	ctx := context.Background()
	profiles.InsertOne(ctx, "u1", directory.Profile{UserID: "u1", Name: "Ann", TotalGames: 10, TotalProfit: 42.5})

	answer, err := e.Answer(ctx, intent.Result{Intent: intent.MyRecord}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "up $42.50") {
		t.Fatalf("unexpected text: %q", answer.Text)
	}
}

func TestHandleActiveGamesTruncatesAtFive(t *testing.T) {
	e, groups, memberships, gameNights, _, _ := newTestEngine()
	ctx := context.Background()
	groups.InsertOne(ctx, "g1", directory.Group{GroupID: "g1", Name: "Regulars"})
	memberships.InsertOne(ctx, "m1", directory.Membership{GroupID: "g1", UserID: "u1"})
	for i := 0; i < 7; i++ {
		id := "game" + string(rune('a'+i))
		gameNights.InsertOne(ctx, id, directory.GameNight{GameID: id, GroupID: "g1", Title: id, Status: directory.GameNightActive})
	}

	answer, err := e.Answer(ctx, intent.Result{Intent: intent.ActiveGames}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "7 active games") {
		t.Fatalf("expected count of 7 in text, got %q", answer.Text)
	}
	if strings.Count(answer.Text, "\n") != 5 {
		t.Fatalf("expected 5 listed game lines, got text %q", answer.Text)
	}
}

func TestHandleHowToUsesQuickAnswer(t *testing.T) {
	e, _, _, _, _, _ := newTestEngine()
	answer, err := e.Answer(context.Background(), intent.Result{
		Intent: intent.HowTo,
		Params: map[string]string{"original_message": "how do i cash out?"},
	}, "u1")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(answer.Text, "Cash-out is what a player leaves") {
		t.Fatalf("expected the cash-out quick answer, got %q", answer.Text)
	}
}

func TestUpcomingRangeTomorrow(t *testing.T) {
	e, _, _, _, _, _ := newTestEngine()
	fixed := time.Date(2026, 7, 30, 15, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	start, end, label := e.upcomingRange("tomorrow")
	if label != "tomorrow" {
		t.Fatalf("expected tomorrow label, got %q", label)
	}
	if start.Day() != 31 || end.Sub(start) != 24*time.Hour {
		t.Fatalf("unexpected range: %v - %v", start, end)
	}
}
