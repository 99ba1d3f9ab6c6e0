package proactivescheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/oddside/automation-runtime/internal/app/domain/poll"
	"github.com/oddside/automation-runtime/internal/app/services/smartscheduler"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// stalePollAge is how long an active poll sits with too few responses
// before it's considered stale, grounded on rsvp_tracker.py's
// STALE_POLL_HOURS.
const stalePollAge = 24 * time.Hour

// minResponsesForResolve is the response floor a poll must clear to be left
// alone rather than reproposed, grounded on rsvp_tracker.py's
// MIN_RESPONSES_FOR_RESOLVE.
const minResponsesForResolve = 3

// reproposalValidity is how long a reproposed poll stays open, grounded on
// rsvp_tracker.py's repropose_poll expires_at (+48h).
const reproposalValidity = 48 * time.Hour

// reproposalNumOptions mirrors repropose_poll's num_suggestions=4.
const reproposalNumOptions = 4

// PollAnnouncer posts a reproposed poll's new options into a group's chat,
// returning the message id so the new poll can record it.
type PollAnnouncer interface {
	AnnounceRepropose(ctx context.Context, groupID string, newPoll poll.Poll, oldPollID string) (messageID string, err error)
}

// StalePollScan finds active availability polls that have gone stale
// (24h+ old, fewer than 3 total votes) and reproposes each with a fresh set
// of candidate times, grounded on rsvp_tracker.py's check_stale_polls and
// repropose_poll.
type StalePollScan struct {
	polls     storage.Store
	scheduler *smartscheduler.Scheduler
	announcer PollAnnouncer
	now       func() time.Time
}

// NewStalePollScan builds a StalePollScan.
func NewStalePollScan(polls storage.Store, sched *smartscheduler.Scheduler, announcer PollAnnouncer) *StalePollScan {
	return &StalePollScan{polls: polls, scheduler: sched, announcer: announcer, now: time.Now}
}

func (s *StalePollScan) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Tick implements scheduler.TickFunc.
func (s *StalePollScan) Tick(ctx context.Context) error {
	var active []poll.Poll
	if err := s.polls.Find(ctx, storage.Filter{"status": string(poll.StatusActive)}, nil, 0, &active); err != nil {
		return fmt.Errorf("list active polls: %w", err)
	}

	threshold := s.clock().Add(-stalePollAge)
	for _, p := range active {
		if p.CreatedAt.After(threshold) {
			continue
		}
		if p.TotalVotes() >= minResponsesForResolve {
			continue
		}
		if err := s.repropose(ctx, p); err != nil {
			return fmt.Errorf("repropose poll %s: %w", p.PollID, err)
		}
	}
	return nil
}

func (s *StalePollScan) repropose(ctx context.Context, old poll.Poll) error {
	now := s.clock()
	if err := s.polls.UpdateOne(ctx, storage.Filter{"poll_id": old.PollID}, storage.Update{
		Set: map[string]any{"status": string(poll.StatusClosed), "closed_at": now},
	}); err != nil {
		return fmt.Errorf("close stale poll: %w", err)
	}

	options := s.newOptions(ctx, old)

	newPoll := poll.Poll{
		PollID:       "poll_" + uuid.NewString(),
		GroupID:      old.GroupID,
		CreatedBy:    systemAuthorID,
		Type:         old.Type,
		Question:     "Previous poll didn't get enough responses. Pick a new time:",
		Options:      options,
		Status:       poll.StatusActive,
		ExpiresAt:    now.Add(reproposalValidity),
		GameID:       old.GameID,
		ReproposalOf: old.PollID,
		CreatedAt:    now,
	}
	if err := s.polls.InsertOne(ctx, newPoll.PollID, newPoll); err != nil {
		return fmt.Errorf("insert reproposed poll: %w", err)
	}

	messageID, err := s.announcer.AnnounceRepropose(ctx, old.GroupID, newPoll, old.PollID)
	if err != nil {
		return fmt.Errorf("announce reproposed poll: %w", err)
	}
	if messageID == "" {
		return nil
	}
	return s.polls.UpdateOne(ctx, storage.Filter{"poll_id": newPoll.PollID}, storage.Update{
		Set: map[string]any{"message_id": messageID},
	})
}

// newOptions asks the smart scheduler for fresh candidate times; if it
// errors or returns nothing, it falls back to shifting every old option a
// week out, the same fallback repropose_poll takes when suggestion
// generation fails.
func (s *StalePollScan) newOptions(ctx context.Context, old poll.Poll) []poll.Option {
	suggestions, err := s.scheduler.SuggestTimes(ctx, old.GroupID, reproposalNumOptions, 0, smartscheduler.ExternalContext{})
	if err == nil && len(suggestions) > 0 {
		options := make([]poll.Option, 0, len(suggestions))
		for _, sugg := range suggestions {
			options = append(options, poll.Option{
				OptionID: "popt_" + uuid.NewString(),
				Label:    sugg.Label,
				DateTime: sugg.DateTime,
			})
		}
		return options
	}

	options := make([]poll.Option, 0, len(old.Options))
	for _, opt := range old.Options {
		options = append(options, poll.Option{
			OptionID: "popt_" + uuid.NewString(),
			Label:    opt.Label + " (next week)",
			DateTime: opt.DateTime.AddDate(0, 0, 7),
		})
	}
	return options
}

// systemAuthorID attributes a reproposed poll to the assistant, matching
// delivery.systemUserID's convention for system-authored content.
const systemAuthorID = "ai_assistant"

// AnnounceRepropose implements PollAnnouncer through the structured logger.
func (n *LoggerNotifier) AnnounceRepropose(ctx context.Context, groupID string, newPoll poll.Poll, oldPollID string) (string, error) {
	n.log.WithField("group_id", groupID).
		WithField("old_poll_id", oldPollID).
		WithField("new_poll_id", newPoll.PollID).
		WithField("option_count", len(newPoll.Options)).
		Info("reproposing stale poll")
	return "", nil
}
