package automationengine

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oddside/automation-runtime/internal/apperr"
	"github.com/oddside/automation-runtime/internal/app/domain/automation"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule parses a 5-field cron expression and enforces the
// frequency constraint: minimum effective interval of 15 minutes, and no
// more than 4 distinct minute-of-hour values.
func ValidateSchedule(expr string) (cron.Schedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, apperr.New(apperr.KindInputInvalid, fmt.Sprintf("cron expression %q must have exactly 5 fields", expr))
	}

	if err := checkDistinctMinutes(fields[0]); err != nil {
		return nil, err
	}

	schedule, err := cronParser.Parse(expr)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInputInvalid, fmt.Sprintf("cron expression %q is invalid", expr), err)
	}

	if err := checkMinimumInterval(schedule); err != nil {
		return nil, err
	}
	return schedule, nil
}

func checkDistinctMinutes(minuteField string) error {
	if minuteField == "*" {
		return apperr.New(apperr.KindInputInvalid, "minute field \"*\" exceeds the 4-distinct-minutes-per-hour limit")
	}
	if strings.Contains(minuteField, "/") {
		// Step expressions (e.g. "*/5") enumerate many minutes per hour;
		// the interval check below rejects these on a different axis, but
		// a step field can't be counted by splitting on commas.
		return nil
	}
	distinct := strings.Split(minuteField, ",")
	if len(distinct) > automation.MaxDistinctMinutesPerHour {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf(
			"minute field %q enumerates %d distinct minutes, max is %d", minuteField, len(distinct), automation.MaxDistinctMinutesPerHour))
	}
	return nil
}

// checkMinimumInterval walks the schedule forward from a fixed reference
// instant and verifies every consecutive gap meets the minimum.
func checkMinimumInterval(schedule cron.Schedule) error {
	const lookaheadFires = 24
	ref := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := schedule.Next(ref)
	minGap := time.Duration(-1)
	for i := 0; i < lookaheadFires; i++ {
		next := schedule.Next(prev)
		gap := next.Sub(prev)
		if minGap < 0 || gap < minGap {
			minGap = gap
		}
		prev = next
	}
	if minGap >= 0 && minGap < automation.MinScheduleIntervalMinutes*time.Minute {
		return apperr.New(apperr.KindInputInvalid, fmt.Sprintf(
			"schedule fires every %s, below the %d-minute minimum", minGap, automation.MinScheduleIntervalMinutes))
	}
	return nil
}
