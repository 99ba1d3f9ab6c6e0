package smartscheduler

import (
	"context"
	"testing"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/internal/app/storage/memory"
)

func newTestScheduler(now time.Time) (*Scheduler, storage.Store) {
	gameNights := memory.New()
	s := New(gameNights)
	s.now = func() time.Time { return now }
	return s, gameNights
}

func insertGame(t *testing.T, ctx context.Context, store storage.Store, id, groupID string, createdAt time.Time) {
	t.Helper()
	g := directory.GameNight{GameID: id, GroupID: groupID, Status: directory.GameNightEnded, CreatedAt: createdAt}
	if err := store.InsertOne(ctx, id, g); err != nil {
		t.Fatalf("insert game: %v", err)
	}
}

func TestSuggestTimesDefaultsToSaturdayWithNoHistory(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) // a Thursday
	s, _ := newTestScheduler(now)

	suggestions, err := s.SuggestTimes(context.Background(), "grp1", 3, 0, ExternalContext{})
	if err != nil {
		t.Fatalf("SuggestTimes: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected at least one suggestion")
	}
	if suggestions[0].DateTime.Weekday() != time.Saturday {
		t.Fatalf("expected the top suggestion to land on the group's default Saturday, got %s", suggestions[0].DateTime.Weekday())
	}
}

func TestSuggestTimesFavorsGroupsRegularDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC) // Thursday
	s, store := newTestScheduler(now)

	// Four Wednesdays in a row establishes the group's regular day, even
	// though Wednesday isn't one of the poker-friendly Thu-Sun defaults.
	for i := 0; i < 4; i++ {
		wednesday := now.AddDate(0, 0, -7*(i+1)-1)
		insertGame(t, ctx, store, "g"+string(rune('a'+i)), "grp1", wednesday)
	}

	suggestions, err := s.SuggestTimes(ctx, "grp1", 5, 14, ExternalContext{})
	if err != nil {
		t.Fatalf("SuggestTimes: %v", err)
	}

	found := false
	for _, sug := range suggestions {
		if sug.DateTime.Weekday() == time.Wednesday {
			found = true
			hasRegularDayFactor := false
			for _, f := range sug.Factors {
				if f.Name == "regular_day" {
					hasRegularDayFactor = true
				}
			}
			if !hasRegularDayFactor {
				t.Fatalf("expected the Wednesday candidate to carry a regular_day factor, got %+v", sug.Factors)
			}
		}
	}
	if !found {
		t.Fatalf("expected a Wednesday candidate to appear once it's the group's regular day")
	}
}

func TestSuggestTimesScoresOverdueGroupsHigher(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s, store := newTestScheduler(now)

	insertGame(t, ctx, store, "g1", "grp1", now.AddDate(0, 0, -20))

	suggestions, err := s.SuggestTimes(ctx, "grp1", 1, 14, ExternalContext{})
	if err != nil {
		t.Fatalf("SuggestTimes: %v", err)
	}
	if len(suggestions) == 0 {
		t.Fatalf("expected a suggestion")
	}
	hasOverdue := false
	for _, f := range suggestions[0].Factors {
		if f.Name == "overdue" {
			hasOverdue = true
		}
	}
	if !hasOverdue {
		t.Fatalf("expected the overdue factor to apply after 20 days with no game, got %+v", suggestions[0].Factors)
	}
}

func TestSuggestTimesAppliesHolidayAndBadWeatherFactors(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(now)

	holidayDate := now.AddDate(0, 0, 2).Format("2006-01-02") // a Saturday, so a Thu-Sun candidate
	ext := ExternalContext{
		UpcomingHolidays: []Holiday{{Date: holidayDate, Name: "Labor Day"}},
		BadWeatherDays:   map[string]bool{holidayDate: true},
	}

	suggestions, err := s.SuggestTimes(ctx, "grp1", 10, 14, ext)
	if err != nil {
		t.Fatalf("SuggestTimes: %v", err)
	}

	var holidaySuggestion *Suggestion
	for i := range suggestions {
		if suggestions[i].DateTime.Format("2006-01-02") == holidayDate {
			holidaySuggestion = &suggestions[i]
		}
	}
	if holidaySuggestion == nil {
		t.Fatalf("expected a suggestion on the holiday date")
	}
	var names []string
	for _, f := range holidaySuggestion.Factors {
		names = append(names, f.Name)
	}
	if !containsFactor(names, "holiday") || !containsFactor(names, "bad_weather") {
		t.Fatalf("expected holiday and bad_weather factors, got %v", names)
	}
}

func TestSuggestTimesSortsByScoreDescending(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(now)

	suggestions, err := s.SuggestTimes(ctx, "grp1", 8, 14, ExternalContext{})
	if err != nil {
		t.Fatalf("SuggestTimes: %v", err)
	}
	for i := 1; i < len(suggestions); i++ {
		if suggestions[i].Score > suggestions[i-1].Score {
			t.Fatalf("expected suggestions sorted by descending score, got %+v", suggestions)
		}
	}
}

func containsFactor(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
