package rsvptracker

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func TestStatsTalliesByRSVPStatus(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	game := directory.GameNight{
		GameID:  "g1",
		GroupID: "grp1",
		Players: []directory.GameNightPlayer{
			{UserID: "u1", RSVPStatus: directory.RSVPConfirmed},
			{UserID: "u2", RSVPStatus: directory.RSVPConfirmed},
			{UserID: "u3", RSVPStatus: directory.RSVPDeclined},
			{UserID: "u4", RSVPStatus: directory.RSVPMaybe},
			{UserID: "u5", RSVPStatus: directory.RSVPInvited},
			{UserID: "u6"},
		},
	}
	if err := gameNights.InsertOne(ctx, "g1", game); err != nil {
		t.Fatalf("insert game: %v", err)
	}

	tracker := New(gameNights, memory.New(), memory.New())
	stats, err := tracker.Stats(ctx, "g1")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Confirmed != 2 || stats.Declined != 1 || stats.Maybe != 1 || stats.Pending != 2 || stats.Total != 6 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestUnansweredReturnsOnlyUnrespondedPlayers(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	game := directory.GameNight{
		GameID:  "g1",
		GroupID: "grp1",
		Players: []directory.GameNightPlayer{
			{UserID: "u1", RSVPStatus: directory.RSVPConfirmed},
			{UserID: "u2", RSVPStatus: directory.RSVPPending},
			{UserID: "u3"},
		},
	}
	if err := gameNights.InsertOne(ctx, "g1", game); err != nil {
		t.Fatalf("insert game: %v", err)
	}

	tracker := New(gameNights, memory.New(), memory.New())
	unanswered, err := tracker.Unanswered(ctx, "g1")
	if err != nil {
		t.Fatalf("Unanswered: %v", err)
	}
	if len(unanswered) != 2 {
		t.Fatalf("expected 2 unanswered players, got %d", len(unanswered))
	}
}

func TestSuggestBackupPlayersRanksByGamesPlayedExcludingCurrentPlayers(t *testing.T) {
	ctx := context.Background()
	gameNights := memory.New()
	memberships := memory.New()
	now := time.Now()

	current := directory.GameNight{
		GameID:  "g1",
		GroupID: "grp1",
		Players: []directory.GameNightPlayer{{UserID: "u1"}},
	}
	if err := gameNights.InsertOne(ctx, "g1", current); err != nil {
		t.Fatalf("insert current game: %v", err)
	}

	past := directory.GameNight{
		GameID:  "g0",
		GroupID: "grp1",
		Players: []directory.GameNightPlayer{
			{UserID: "u2"}, {UserID: "u2"}, {UserID: "u3"},
		},
		CreatedAt: now.AddDate(0, 0, -10),
	}
	if err := gameNights.InsertOne(ctx, "g0", past); err != nil {
		t.Fatalf("insert past game: %v", err)
	}

	for _, uid := range []string{"u1", "u2", "u3", "u4"} {
		m := directory.Membership{GroupID: "grp1", UserID: uid, Role: "player", JoinedAt: now}
		if err := memberships.InsertOne(ctx, "grp1-"+uid, m); err != nil {
			t.Fatalf("insert membership: %v", err)
		}
	}

	tracker := New(gameNights, memberships, memory.New())
	backups, err := tracker.SuggestBackupPlayers(ctx, "grp1", "g1", 0)
	if err != nil {
		t.Fatalf("SuggestBackupPlayers: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backup candidates (u1 excluded as already in the game), got %+v", backups)
	}
	if backups[0].UserID != "u2" || backups[0].GamesPlayed != 2 {
		t.Fatalf("expected u2 (2 games) ranked first, got %+v", backups[0])
	}
}
