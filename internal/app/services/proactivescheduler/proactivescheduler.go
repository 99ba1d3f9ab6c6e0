// Package proactivescheduler holds the periodic background scans that
// initiate AI action without an inbound event: proactively suggesting a
// game when a group has gone quiet, and reminding players who haven't
// RSVP'd to an upcoming game. Each scan is a scheduler.TickFunc meant to be
// wrapped in its own scheduler.Loop at its own interval, mirroring
// engagementjobs.Orchestrator's enqueue/dispatch/digest split.
package proactivescheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/services/smartscheduler"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Spec §4.9's spam guard: don't suggest a game for a group more than once
// every 3 days, and only when it has no upcoming game already.
const suggestionCooldown = 3 * 24 * time.Hour

// rsvpReminderWindow is how far ahead an upcoming game must be to qualify
// for a reminder sweep; spec's 4-hourly loop only reminds about games in
// the next 24 hours.
const rsvpReminderWindow = 24 * time.Hour

// upcomingGameStatuses are the statuses that count as "a game is already
// planned" for the game-suggestion check.
var upcomingGameStatuses = map[directory.GameNightStatus]bool{
	directory.GameNightScheduled: true,
	directory.GameNightActive:    true,
}

// GameSuggester posts a proactive game-time suggestion into a group's chat.
type GameSuggester interface {
	SuggestGame(ctx context.Context, groupID string, suggestions []smartscheduler.Suggestion) error
}

// RSVPReminder nudges a single player who hasn't responded to a game.
type RSVPReminder interface {
	RemindRSVP(ctx context.Context, gameID, groupID, userID string) error
}

// GameSuggestionScan checks every engagement-enabled group for whether it needs a
// proactive game-time suggestion, grounded on proactive_scheduler.py's
// _check_game_suggestions/_suggest_game_for_group.
type GameSuggestionScan struct {
	groups     storage.Store
	gameNights storage.Store
	scheduler  *smartscheduler.Scheduler
	suggester  GameSuggester
	now        func() time.Time

	lastSuggested map[string]time.Time
}

// NewGameSuggestionScan builds a GameSuggestionScan.
func NewGameSuggestionScan(groups, gameNights storage.Store, sched *smartscheduler.Scheduler, suggester GameSuggester) *GameSuggestionScan {
	return &GameSuggestionScan{
		groups:        groups,
		gameNights:    gameNights,
		scheduler:     sched,
		suggester:     suggester,
		now:           time.Now,
		lastSuggested: make(map[string]time.Time),
	}
}

func (s *GameSuggestionScan) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Tick implements scheduler.TickFunc.
func (s *GameSuggestionScan) Tick(ctx context.Context) error {
	var groups []directory.Group
	if err := s.groups.Find(ctx, storage.Filter{"engagement_enabled": true}, nil, 0, &groups); err != nil {
		return fmt.Errorf("list engagement-enabled groups: %w", err)
	}

	for _, group := range groups {
		if err := s.suggestForGroup(ctx, group.GroupID); err != nil {
			return fmt.Errorf("game suggestion for group %s: %w", group.GroupID, err)
		}
	}
	return nil
}

func (s *GameSuggestionScan) suggestForGroup(ctx context.Context, groupID string) error {
	if last, ok := s.lastSuggested[groupID]; ok && s.clock().Sub(last) < suggestionCooldown {
		return nil
	}

	var games []directory.GameNight
	if err := s.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, nil, 0, &games); err != nil {
		return err
	}
	for _, g := range games {
		if upcomingGameStatuses[g.Status] {
			return nil // a game is already planned, nothing to suggest
		}
	}

	suggestions, err := s.scheduler.SuggestTimes(ctx, groupID, 3, 0, smartscheduler.ExternalContext{})
	if err != nil {
		return err
	}
	if len(suggestions) == 0 {
		return nil
	}

	if err := s.suggester.SuggestGame(ctx, groupID, suggestions); err != nil {
		return err
	}
	s.lastSuggested[groupID] = s.clock()
	return nil
}

// RSVPReminderScan reminds players who haven't responded to a game
// happening within the next 24 hours, grounded on
// proactive_scheduler.py's _check_rsvp_reminders.
type RSVPReminderScan struct {
	gameNights storage.Store
	reminder   RSVPReminder
	now        func() time.Time
}

// NewRSVPReminderScan builds an RSVPReminderScan.
func NewRSVPReminderScan(gameNights storage.Store, reminder RSVPReminder) *RSVPReminderScan {
	return &RSVPReminderScan{gameNights: gameNights, reminder: reminder, now: time.Now}
}

func (s *RSVPReminderScan) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Tick implements scheduler.TickFunc.
func (s *RSVPReminderScan) Tick(ctx context.Context) error {
	var games []directory.GameNight
	if err := s.gameNights.Find(ctx, storage.Filter{}, nil, 0, &games); err != nil {
		return fmt.Errorf("list game nights: %w", err)
	}

	now := s.clock()
	deadline := now.Add(rsvpReminderWindow)

	for _, g := range games {
		if !upcomingGameStatuses[g.Status] || g.ScheduledAt == nil {
			continue
		}
		if g.ScheduledAt.Before(now) || g.ScheduledAt.After(deadline) {
			continue
		}
		for _, p := range g.Players {
			if !p.RSVPStatus.Unanswered() {
				continue
			}
			if err := s.reminder.RemindRSVP(ctx, g.GameID, g.GroupID, p.UserID); err != nil {
				return fmt.Errorf("rsvp reminder for game %s user %s: %w", g.GameID, p.UserID, err)
			}
		}
	}
	return nil
}

// LoggerNotifier records game suggestions and RSVP reminders through the
// structured logger instead of posting to a real chat/notification channel,
// the same staging-safe fallback pattern as delivery.LoggerExecutor.
type LoggerNotifier struct {
	log *logger.Logger
}

// NewLoggerNotifier builds a LoggerNotifier that writes through log.
func NewLoggerNotifier(log *logger.Logger) *LoggerNotifier {
	return &LoggerNotifier{log: log}
}

// SuggestGame implements GameSuggester.
func (n *LoggerNotifier) SuggestGame(ctx context.Context, groupID string, suggestions []smartscheduler.Suggestion) error {
	top := suggestions[0]
	n.log.WithField("group_id", groupID).
		WithField("top_suggestion", top.Label).
		WithField("score", top.Score).
		WithField("candidate_count", len(suggestions)).
		Info("proactively suggesting a game time")
	return nil
}

// RemindRSVP implements RSVPReminder.
func (n *LoggerNotifier) RemindRSVP(ctx context.Context, gameID, groupID, userID string) error {
	n.log.WithField("game_id", gameID).
		WithField("group_id", groupID).
		WithField("user_id", userID).
		Info("sending rsvp reminder")
	return nil
}
