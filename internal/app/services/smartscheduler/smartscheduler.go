// Package smartscheduler generates ranked candidate game times by scoring
// Thu-Sun (plus the group's own regular day) slots against the group's
// scheduling history, recency, and a caller-supplied external context of
// holidays/weather.
package smartscheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Score weights, exactly spec §4.10's table.
const (
	weightRegularDay  = 0.30
	weightRegularTime = 0.15
	weightWeekend     = 0.10
	weightOverdue     = 0.20
	weightBadWeather  = 0.15
	weightHoliday     = 0.25
	weightLongWeekend = 0.25
	weightHolidayEve  = 0.20
	weightNoWorkNext  = 0.10
)

// defaultHour/defaultMinute is the fallback game time when a group has no
// history to derive one from.
const (
	defaultHour      = 19
	defaultMinute    = 0
	overdueDays      = 14
	maxHistory       = 20
	defaultDaysAhead = 14
)

// Holiday is a single-day holiday on or after the scan window's start.
type Holiday struct {
	Date string // YYYY-MM-DD
	Name string
}

// LongWeekend is a contiguous holiday-adjacent stretch of days.
type LongWeekend struct {
	Start   string // YYYY-MM-DD
	End     string // YYYY-MM-DD
	Holiday string
	Days    int
}

// ExternalContext is the holiday/weather signal a caller supplies; the
// scheduler has no opinion on where it comes from (calendar API, weather
// API), it only scores against it.
type ExternalContext struct {
	BadWeatherDays   map[string]bool // date string -> true
	UpcomingHolidays []Holiday
	LongWeekends     []LongWeekend
}

// Factor is one scored signal that contributed to a suggestion, carrying
// its own human-readable reason so a delivery adapter can render it as-is.
type Factor struct {
	Name   string
	Weight float64
	Reason string
}

// Suggestion is one scored candidate time slot.
type Suggestion struct {
	DateTime time.Time
	Label    string
	Score    float64
	Factors  []Factor
}

// Reasons joins every contributing factor's reason into one sentence, the
// same shape a chat response renders directly.
func (s Suggestion) Reasons() string {
	out := ""
	for i, f := range s.Factors {
		if i > 0 {
			out += " "
		}
		out += f.Reason
	}
	return out
}

// groupPatterns summarizes a group's scheduling history.
type groupPatterns struct {
	regularDay        *time.Weekday
	regularDayName    string
	regularHour       int
	regularMinute     int
	daysSinceLastGame *int
}

// Scheduler generates ranked time suggestions for a group's next game.
type Scheduler struct {
	gameNights storage.Store
	now        func() time.Time
}

// New builds a Scheduler.
func New(gameNights storage.Store) *Scheduler {
	return &Scheduler{gameNights: gameNights, now: time.Now}
}

// SetClock overrides the scheduler's time source, for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// SuggestTimes returns the top numSuggestions candidate slots over the next
// daysAhead days (0 uses the spec default of 14), sorted by score
// descending. externalContext may be the zero value when no holiday or
// weather signal is available.
func (s *Scheduler) SuggestTimes(ctx context.Context, groupID string, numSuggestions, daysAhead int, externalContext ExternalContext) ([]Suggestion, error) {
	if daysAhead <= 0 {
		daysAhead = defaultDaysAhead
	}
	if numSuggestions <= 0 {
		numSuggestions = 3
	}

	patterns, err := s.groupPatterns(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("derive group patterns: %w", err)
	}

	candidates := generateCandidates(patterns, daysAhead, s.clock())

	suggestions := make([]Suggestion, 0, len(candidates))
	for _, c := range candidates {
		suggestions = append(suggestions, scoreCandidate(c, patterns, externalContext))
	}

	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].Score > suggestions[j].Score })
	if len(suggestions) > numSuggestions {
		suggestions = suggestions[:numSuggestions]
	}
	return suggestions, nil
}

func generateCandidates(p groupPatterns, daysAhead int, now time.Time) []time.Time {
	today := now.UTC().Truncate(24 * time.Hour)
	var out []time.Time
	for offset := 1; offset <= daysAhead; offset++ {
		day := today.AddDate(0, 0, offset)
		wd := day.Weekday()
		isPokerFriendly := wd == time.Thursday || wd == time.Friday || wd == time.Saturday || wd == time.Sunday
		isRegularDay := p.regularDay != nil && wd == *p.regularDay
		if !isPokerFriendly && !isRegularDay {
			continue
		}
		out = append(out, time.Date(day.Year(), day.Month(), day.Day(), p.regularHour, p.regularMinute, 0, 0, time.UTC))
	}
	return out
}

func scoreCandidate(dt time.Time, p groupPatterns, ext ExternalContext) Suggestion {
	wd := dt.Weekday()
	label := fmt.Sprintf("%s %s at %s", wd.String(), dt.Format("Jan 2"), dt.Format("3:04 PM"))
	suggestion := Suggestion{DateTime: dt, Label: label}

	add := func(name string, weight float64, reason string) {
		suggestion.Score += weight
		suggestion.Factors = append(suggestion.Factors, Factor{Name: name, Weight: weight, Reason: reason})
	}

	if p.regularDay != nil && wd == *p.regularDay {
		dayName := p.regularDayName
		if dayName == "" {
			dayName = wd.String()
		}
		add("regular_day", weightRegularDay, fmt.Sprintf("Your group usually plays on %ss.", dayName))
	}

	add("regular_time", weightRegularTime, fmt.Sprintf("%02d:%02d is your group's usual start time.", p.regularHour, p.regularMinute))

	if wd == time.Friday || wd == time.Saturday {
		add("weekend", weightWeekend, "Weekend evening — prime poker time.")
		add("no_work_next", weightNoWorkNext, "No work the next morning.")
	}

	if p.daysSinceLastGame != nil && *p.daysSinceLastGame >= overdueDays {
		add("overdue", weightOverdue, fmt.Sprintf("It's been %d days since your last game.", *p.daysSinceLastGame))
	}

	dateStr := dt.Format("2006-01-02")
	if ext.BadWeatherDays[dateStr] {
		add("bad_weather", weightBadWeather, "Bad weather expected — perfect excuse for a home game.")
	}

	for _, h := range ext.UpcomingHolidays {
		if h.Date == dateStr {
			add("holiday", weightHoliday, fmt.Sprintf("%s — day off for most people.", h.Name))
		}
	}

	for _, lw := range ext.LongWeekends {
		if lw.Start <= dateStr && dateStr <= lw.End {
			days := lw.Days
			if days == 0 {
				days = 3
			}
			add("long_weekend", weightLongWeekend, fmt.Sprintf("Part of a %d-day weekend (%s).", days, lw.Holiday))
			break
		}
	}

	tomorrow := dt.AddDate(0, 0, 1).Format("2006-01-02")
	for _, h := range ext.UpcomingHolidays {
		if h.Date == tomorrow {
			add("holiday_eve", weightHolidayEve, fmt.Sprintf("Night before %s — late game, no alarm!", h.Name))
		}
	}

	return suggestion
}

// groupPatterns analyzes the group's most recent games (bounded history) to
// derive its regular day/time and recency.
func (s *Scheduler) groupPatterns(ctx context.Context, groupID string) (groupPatterns, error) {
	saturday := time.Saturday
	defaults := groupPatterns{
		regularDay:     &saturday,
		regularDayName: saturday.String(),
		regularHour:    defaultHour,
		regularMinute:  defaultMinute,
	}

	var games []directory.GameNight
	byRecency := &storage.Sort{Field: "created_at", Desc: true}
	if err := s.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, byRecency, maxHistory, &games); err != nil {
		return defaults, err
	}
	if len(games) == 0 {
		return defaults, nil
	}

	dayCounts := make(map[time.Weekday]int)
	for _, g := range games {
		at := g.ScheduledAt
		if at == nil {
			at = &g.CreatedAt
		}
		dayCounts[at.Weekday()]++
	}
	var best time.Weekday
	bestCount := -1
	for wd, count := range dayCounts {
		if count > bestCount {
			best, bestCount = wd, count
		}
	}
	defaults.regularDay = &best
	defaults.regularDayName = best.String()

	daysSince := int(s.clock().UTC().Sub(games[0].CreatedAt).Hours() / 24)
	defaults.daysSinceLastGame = &daysSince

	return defaults, nil
}
