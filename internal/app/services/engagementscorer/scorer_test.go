package engagementscorer

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func newTestScorer() (*Scorer, storage.Store, storage.Store, storage.Store, storage.Store) {
	groups := memory.New()
	memberships := memory.New()
	gameNights := memory.New()
	profiles := memory.New()
	return New(groups, memberships, gameNights, profiles), groups, memberships, gameNights, profiles
}

func TestScoreUserNoGamesReturnsNewLevel(t *testing.T) {
	s, _, _, _, _ := newTestScorer()
	score, err := s.ScoreUser(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("ScoreUser: %v", err)
	}
	if score.Score != 0 || score.Level != "new" {
		t.Fatalf("expected a zero score for a brand new user, got %+v", score)
	}
}

func TestScoreUserRecentActiveGamesScoreHigh(t *testing.T) {
	s, _, _, gameNights, _ := newTestScorer()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		g := directory.GameNight{
			GameID:    "g" + string(rune('a'+i)),
			GroupID:   "grp1",
			Status:    directory.GameNightEnded,
			CreatedAt: now.AddDate(0, 0, -i*5),
			Players:   []directory.GameNightPlayer{{UserID: "u1", TotalBuyIn: 50, CashOut: 60}},
		}
		if err := gameNights.InsertOne(ctx, g.GameID, g); err != nil {
			t.Fatalf("insert game: %v", err)
		}
	}

	score, err := s.ScoreUser(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ScoreUser: %v", err)
	}
	if score.TotalGames != 5 {
		t.Fatalf("expected 5 total games, got %d", score.TotalGames)
	}
	if score.GamesPerMonth != 5 {
		t.Fatalf("expected 5 games in the last 30 days, got %d", score.GamesPerMonth)
	}
	if score.Score < 60 {
		t.Fatalf("expected a recently-active user to score at least 60, got %d", score.Score)
	}
}

func TestScoreGroupNoGamesWithMembersScoresFive(t *testing.T) {
	s, _, memberships, _, _ := newTestScorer()
	ctx := context.Background()
	for _, uid := range []string{"u1", "u2", "u3"} {
		if err := memberships.InsertOne(ctx, uid, directory.Membership{GroupID: "grp1", UserID: uid}); err != nil {
			t.Fatalf("insert member: %v", err)
		}
	}

	score, err := s.ScoreGroup(ctx, "grp1")
	if err != nil {
		t.Fatalf("ScoreGroup: %v", err)
	}
	if score.Score != 5 || score.Level != "new" {
		t.Fatalf("expected a new group with 3 members to score 5, got %+v", score)
	}
}

func TestFindInactiveUsersFlagsPastThreshold(t *testing.T) {
	s, _, memberships, gameNights, _ := newTestScorer()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	memberships.InsertOne(ctx, "m1", directory.Membership{GroupID: "grp1", UserID: "u1"})
	memberships.InsertOne(ctx, "m2", directory.Membership{GroupID: "grp1", UserID: "u2"})
	gameNights.InsertOne(ctx, "g1", directory.GameNight{
		GameID: "g1", GroupID: "grp1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -40),
		Players:   []directory.GameNightPlayer{{UserID: "u1"}},
	})
	gameNights.InsertOne(ctx, "g2", directory.GameNight{
		GameID: "g2", GroupID: "grp1", Status: directory.GameNightEnded,
		CreatedAt: now.AddDate(0, 0, -1),
		Players:   []directory.GameNightPlayer{{UserID: "u2"}},
	})

	inactive, err := s.FindInactiveUsers(ctx, "grp1", 30)
	if err != nil {
		t.Fatalf("FindInactiveUsers: %v", err)
	}
	if len(inactive) != 1 || inactive[0].UserID != "u1" {
		t.Fatalf("expected only u1 flagged inactive, got %+v", inactive)
	}
}

func TestFindInactiveGroupsSkipsGroupsWithActiveGame(t *testing.T) {
	s, groups, memberships, gameNights, _ := newTestScorer()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	groups.InsertOne(ctx, "grp1", directory.Group{GroupID: "grp1", Name: "Friday Regulars"})
	memberships.InsertOne(ctx, "m1", directory.Membership{GroupID: "grp1", UserID: "u1"})
	memberships.InsertOne(ctx, "m2", directory.Membership{GroupID: "grp1", UserID: "u2"})
	gameNights.InsertOne(ctx, "g1", directory.GameNight{
		GameID: "g1", GroupID: "grp1", Status: directory.GameNightActive, CreatedAt: now.AddDate(0, 0, -1),
	})

	inactive, err := s.FindInactiveGroups(ctx, 14)
	if err != nil {
		t.Fatalf("FindInactiveGroups: %v", err)
	}
	if len(inactive) != 0 {
		t.Fatalf("expected a group with an active game in flight to be skipped, got %+v", inactive)
	}
}

func TestCheckMilestonesFiresOnExactOrdinal(t *testing.T) {
	s, _, _, gameNights, profiles := newTestScorer()
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	profiles.InsertOne(ctx, "u1", directory.Profile{UserID: "u1", Name: "Sam"})
	for i := 0; i < 5; i++ {
		gameNights.InsertOne(ctx, "g"+string(rune('a'+i)), directory.GameNight{
			GameID: "g" + string(rune('a'+i)), GroupID: "grp1", Status: directory.GameNightEnded,
			CreatedAt: now.AddDate(0, 0, -i),
			Players:   []directory.GameNightPlayer{{UserID: "u1"}},
		})
	}

	milestones, err := s.CheckMilestones(ctx, "u1", "")
	if err != nil {
		t.Fatalf("CheckMilestones: %v", err)
	}
	if len(milestones) != 1 || milestones[0].Value != 5 || milestones[0].Kind != MilestoneUser {
		t.Fatalf("expected a user milestone at 5 games, got %+v", milestones)
	}
	if milestones[0].Message == "" {
		t.Fatalf("expected a non-empty milestone message")
	}
}

func TestFindBigWinnersDetectsDoubleUpAndFlatFifty(t *testing.T) {
	s, _, _, gameNights, _ := newTestScorer()
	ctx := context.Background()
	gameNights.InsertOne(ctx, "g1", directory.GameNight{
		GameID: "g1", GroupID: "grp1", Status: directory.GameNightSettled,
		Players: []directory.GameNightPlayer{
			{UserID: "doubled-up", TotalBuyIn: 40, CashOut: 90},
			{UserID: "flat-fifty", TotalBuyIn: 100, CashOut: 150},
			{UserID: "small-win", TotalBuyIn: 100, CashOut: 120},
			{UserID: "loser", TotalBuyIn: 100, CashOut: 0},
		},
	})

	winners, err := s.FindBigWinners(ctx, "g1")
	if err != nil {
		t.Fatalf("FindBigWinners: %v", err)
	}
	if len(winners) != 2 {
		t.Fatalf("expected exactly 2 big winners, got %+v", winners)
	}
	ids := map[string]bool{}
	for _, w := range winners {
		ids[w.UserID] = true
	}
	if !ids["doubled-up"] || !ids["flat-fifty"] {
		t.Fatalf("expected doubled-up and flat-fifty to be flagged, got %+v", winners)
	}
}
