package smartconfig

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func TestSuggestGameConfigDefaultsForNewGroup(t *testing.T) {
	ctx := context.Background()
	advisor := New(memory.New(), memory.New(), memory.New(), memory.New(), memory.New())

	suggestion, err := advisor.SuggestGameConfig(ctx, "grp1")
	if err != nil {
		t.Fatalf("SuggestGameConfig: %v", err)
	}
	if suggestion.BuyInAmount != defaultBuyInAmount || suggestion.ChipsPerBuyIn != defaultChipsPerBuyIn {
		t.Fatalf("expected default buy-in/chips for a new group, got %+v", suggestion)
	}
	if suggestion.Confidence != "low" {
		t.Fatalf("expected low confidence, got %s", suggestion.Confidence)
	}
}

func TestSuggestGameConfigPicksMostCommonHistoricalValues(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	groups := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	if err := groups.InsertOne(ctx, "grp1", directory.Group{GroupID: "grp1", Name: "Friday Regulars"}); err != nil {
		t.Fatalf("insert group: %v", err)
	}
	for i, buyIn := range []float64{25, 25, 25, 50, 25} {
		g := directory.GameNight{
			GameID: "g" + string(rune('0'+i)), GroupID: "grp1",
			BuyInAmount: buyIn, ChipsPerBuyIn: 100,
			CreatedAt: now.AddDate(0, 0, -i),
		}
		if err := gameNights.InsertOne(ctx, g.GameID, g); err != nil {
			t.Fatalf("insert game: %v", err)
		}
	}

	advisor := New(gameNights, groups, memory.New(), memory.New(), memory.New())
	advisor.SetClock(func() time.Time { return now })

	suggestion, err := advisor.SuggestGameConfig(ctx, "grp1")
	if err != nil {
		t.Fatalf("SuggestGameConfig: %v", err)
	}
	if suggestion.BuyInAmount != 25 {
		t.Fatalf("expected the most common buy-in (25), got %v", suggestion.BuyInAmount)
	}
	if suggestion.Confidence != "high" {
		t.Fatalf("expected high confidence with 5 games, got %s", suggestion.Confidence)
	}
}

func TestSuggestPlayersRanksByAttendancePaymentAndRecency(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	memberships := memory.New()
	ledgerEntries := memory.New()
	profiles := memory.New()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	for _, uid := range []string{"u1", "u2"} {
		if err := memberships.InsertOne(ctx, "grp1-"+uid, directory.Membership{GroupID: "grp1", UserID: uid, JoinedAt: now}); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}
	if err := profiles.InsertOne(ctx, "u1", directory.Profile{UserID: "u1", Name: "Reliable Rae"}); err != nil {
		t.Fatalf("insert profile: %v", err)
	}

	games := []directory.GameNight{
		{GameID: "g1", GroupID: "grp1", CreatedAt: now.AddDate(0, 0, -1), Players: []directory.GameNightPlayer{{UserID: "u1"}, {UserID: "u2"}}},
		{GameID: "g2", GroupID: "grp1", CreatedAt: now.AddDate(0, 0, -3), Players: []directory.GameNightPlayer{{UserID: "u1"}}},
	}
	for _, g := range games {
		if err := gameNights.InsertOne(ctx, g.GameID, g); err != nil {
			t.Fatalf("insert game: %v", err)
		}
	}

	if err := ledgerEntries.InsertOne(ctx, "l1", ledger.Entry{LedgerID: "l1", GroupID: "grp1", FromUserID: "u2", Status: ledger.StatusPending}); err != nil {
		t.Fatalf("insert ledger entry: %v", err)
	}

	advisor := New(gameNights, memory.New(), memberships, ledgerEntries, profiles)
	advisor.SetClock(func() time.Time { return now })

	suggestions, err := advisor.SuggestPlayers(ctx, "grp1", 0)
	if err != nil {
		t.Fatalf("SuggestPlayers: %v", err)
	}
	if len(suggestions) != 2 {
		t.Fatalf("expected 2 ranked players, got %d", len(suggestions))
	}
	if suggestions[0].UserID != "u1" {
		t.Fatalf("expected u1 (more games, no outstanding payment) ranked first, got %+v", suggestions[0])
	}
	if suggestions[0].Name != "Reliable Rae" {
		t.Fatalf("expected profile name to be resolved, got %q", suggestions[0].Name)
	}
	if suggestions[1].PaymentReliability >= 100 {
		t.Fatalf("expected u2's outstanding ledger entry to reduce payment reliability, got %v", suggestions[1].PaymentReliability)
	}
}
