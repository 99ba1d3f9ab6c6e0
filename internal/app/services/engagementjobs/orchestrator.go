// Package engagementjobs is the Job Queue's domain-specific half: it scans
// the engagement scorer for near-threshold candidates, enqueues jobs for
// them, and on dispatch runs each job through the Engagement Policy gate
// before handing an allowed nudge to a delivery adapter. The job queue
// itself (internal/app/services/jobqueue) and the periodic ticking
// (internal/app/services/scheduler) are generic; this package is the glue
// that gives C8's three loops something engagement-specific to do.
package engagementjobs

import (
	"context"
	"fmt"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/engagement"
	"github.com/oddside/automation-runtime/internal/app/domain/job"
	"github.com/oddside/automation-runtime/internal/app/services/engagementscorer"
	"github.com/oddside/automation-runtime/internal/app/services/jobqueue"
	"github.com/oddside/automation-runtime/internal/app/services/policy"
	"github.com/oddside/automation-runtime/internal/app/storage"
	"github.com/oddside/automation-runtime/pkg/logger"
)

// Default inactivity thresholds the enqueue scan checks against, matching
// the scorer tool's own find_inactive_* defaults.
const (
	GroupInactiveThresholdDays = 14
	UserInactiveThresholdDays  = 30
)

// NudgeExecutor delivers an allowed engagement nudge. LoggerNudgeExecutor is
// the baseline implementation; a real push/email/in-app adapter plugs in
// behind the same contract.
type NudgeExecutor interface {
	SendNudge(ctx context.Context, category, userID string, channels []string, message string) error
}

// LoggerNudgeExecutor records every nudge through the structured logger,
// the same staging-safe fallback pattern as delivery.LoggerExecutor.
type LoggerNudgeExecutor struct {
	log *logger.Logger
}

// NewLoggerNudgeExecutor builds a LoggerNudgeExecutor that writes through log.
func NewLoggerNudgeExecutor(log *logger.Logger) *LoggerNudgeExecutor {
	return &LoggerNudgeExecutor{log: log}
}

// SendNudge implements NudgeExecutor.
func (e *LoggerNudgeExecutor) SendNudge(ctx context.Context, category, userID string, channels []string, message string) error {
	e.log.WithField("user_id", userID).
		WithField("category", category).
		WithField("channels", channels).
		Info("dispatching engagement nudge")
	return nil
}

// Orchestrator wires the engagement scorer, the job queue, and the
// engagement policy together for C8's three periodic loops.
type Orchestrator struct {
	queue         *jobqueue.Queue
	scorer        *engagementscorer.Scorer
	policy        *policy.EngagementPolicy
	groups        storage.Store
	memberships   storage.Store
	preferences   storage.Store
	engagementLog storage.Store
	executor      NudgeExecutor
	now           func() time.Time
}

// New builds an Orchestrator over the given collections and services.
func New(
	queue *jobqueue.Queue,
	scorer *engagementscorer.Scorer,
	engagementPolicy *policy.EngagementPolicy,
	groups, memberships, preferences, engagementLog storage.Store,
	executor NudgeExecutor,
) *Orchestrator {
	return &Orchestrator{
		queue: queue, scorer: scorer, policy: engagementPolicy,
		groups: groups, memberships: memberships, preferences: preferences, engagementLog: engagementLog,
		executor: executor, now: time.Now,
	}
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

// EnqueueNearThreshold scans inactive groups and users and upserts a
// group_check/user_check job for each, priced by ComputePriority. It is the
// tick function for C8's ~6h enqueue loop.
func (o *Orchestrator) EnqueueNearThreshold(ctx context.Context) error {
	now := o.clock()

	groups, err := o.scorer.FindInactiveGroups(ctx, GroupInactiveThresholdDays)
	if err != nil {
		return fmt.Errorf("find inactive groups: %w", err)
	}
	for _, g := range groups {
		days := GroupInactiveThresholdDays + 60
		if g.DaysInactive != nil {
			days = *g.DaysInactive
		}
		priority := jobqueue.ComputePriority(days, GroupInactiveThresholdDays)
		j, err := job.New(job.TypeGroupCheck, now, priority)
		if err != nil {
			return fmt.Errorf("build group_check job: %w", err)
		}
		j.GroupID = g.GroupID
		if _, err := o.queue.Enqueue(ctx, j); err != nil {
			return fmt.Errorf("enqueue group_check for %s: %w", g.GroupID, err)
		}
	}

	users, err := o.scorer.FindInactiveUsers(ctx, "", UserInactiveThresholdDays)
	if err != nil {
		return fmt.Errorf("find inactive users: %w", err)
	}
	for _, u := range users {
		days := UserInactiveThresholdDays + 60
		if u.DaysInactive != nil {
			days = *u.DaysInactive
		}
		priority := jobqueue.ComputePriority(days, UserInactiveThresholdDays)
		j, err := job.New(job.TypeUserCheck, now, priority)
		if err != nil {
			return fmt.Errorf("build user_check job: %w", err)
		}
		j.UserID = u.UserID
		if _, err := o.queue.Enqueue(ctx, j); err != nil {
			return fmt.Errorf("enqueue user_check for %s: %w", u.UserID, err)
		}
	}

	return nil
}

// EnqueueDigests upserts one weekly digest job per group. It is the tick
// function for C8's ~7d digest loop.
func (o *Orchestrator) EnqueueDigests(ctx context.Context) error {
	var groups []directory.Group
	if err := o.groups.Find(ctx, nil, nil, 0, &groups); err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	now := o.clock()
	for _, g := range groups {
		j, err := job.New(job.TypeDigest, now, 1)
		if err != nil {
			return fmt.Errorf("build digest job: %w", err)
		}
		j.GroupID = g.GroupID
		if _, err := o.queue.Enqueue(ctx, j); err != nil {
			return fmt.Errorf("enqueue digest for %s: %w", g.GroupID, err)
		}
	}
	return nil
}

// Dispatch claims up to batchSize pending jobs and runs each through the
// engagement pipeline: re-score, policy gate, deliver if allowed. It is the
// tick function for C8's ~30min dispatch loop.
func (o *Orchestrator) Dispatch(ctx context.Context, batchSize int) (int, error) {
	claimed, err := o.queue.ClaimPending(ctx, batchSize)
	if err != nil {
		return 0, fmt.Errorf("claim pending jobs: %w", err)
	}
	for _, j := range claimed {
		if err := o.run(ctx, j); err != nil {
			_ = o.queue.Fail(ctx, j.JobID, err)
			continue
		}
	}
	return len(claimed), nil
}

func (o *Orchestrator) run(ctx context.Context, j job.Job) error {
	switch j.JobType {
	case job.TypeGroupCheck:
		return o.runGroupCheck(ctx, j)
	case job.TypeUserCheck:
		return o.runUserCheck(ctx, j)
	case job.TypeDigest:
		return o.runDigest(ctx, j)
	default:
		return o.queue.Complete(ctx, j.JobID, map[string]any{"skipped": string(j.JobType)})
	}
}

func (o *Orchestrator) runGroupCheck(ctx context.Context, j job.Job) error {
	score, err := o.scorer.ScoreGroup(ctx, j.GroupID)
	if err != nil {
		return fmt.Errorf("score group %s: %w", j.GroupID, err)
	}
	if score.DaysSinceLastGame == nil || *score.DaysSinceLastGame < GroupInactiveThresholdDays {
		return o.queue.Complete(ctx, j.JobID, map[string]any{"nudged": false, "reason": "no longer inactive"})
	}

	admin, err := o.groupAdmin(ctx, j.GroupID)
	if err != nil {
		return fmt.Errorf("find group admin for %s: %w", j.GroupID, err)
	}
	if admin == "" {
		return o.queue.Complete(ctx, j.JobID, map[string]any{"nudged": false, "reason": "no admin on record"})
	}

	message := fmt.Sprintf("%s hasn't played in a while — want to line up the next game?", j.GroupID)
	allowed, reason, err := o.dispatchNudge(ctx, "inactive_group", j.GroupID, admin, message)
	if err != nil {
		return err
	}
	return o.queue.Complete(ctx, j.JobID, map[string]any{"nudged": allowed, "reason": reason})
}

func (o *Orchestrator) runUserCheck(ctx context.Context, j job.Job) error {
	score, err := o.scorer.ScoreUser(ctx, j.UserID, "")
	if err != nil {
		return fmt.Errorf("score user %s: %w", j.UserID, err)
	}
	if score.DaysSinceLastGame == nil || *score.DaysSinceLastGame < UserInactiveThresholdDays {
		return o.queue.Complete(ctx, j.JobID, map[string]any{"nudged": false, "reason": "no longer inactive"})
	}

	message := "It's been a while since your last game — your group has been playing without you!"
	allowed, reason, err := o.dispatchNudge(ctx, "inactive_user", "", j.UserID, message)
	if err != nil {
		return err
	}
	return o.queue.Complete(ctx, j.JobID, map[string]any{"nudged": allowed, "reason": reason})
}

func (o *Orchestrator) runDigest(ctx context.Context, j job.Job) error {
	var members []directory.Membership
	if err := o.memberships.Find(ctx, storage.Filter{"group_id": j.GroupID}, nil, 0, &members); err != nil {
		return fmt.Errorf("list members of %s: %w", j.GroupID, err)
	}
	sent := 0
	for _, m := range members {
		allowed, _, err := o.dispatchNudge(ctx, "digest", j.GroupID, m.UserID, fmt.Sprintf("Your weekly recap for %s is ready.", j.GroupID))
		if err != nil {
			return err
		}
		if allowed {
			sent++
		}
	}
	return o.queue.Complete(ctx, j.JobID, map[string]any{"sent": sent, "members": len(members)})
}

// dispatchNudge runs the full policy gate for one candidate nudge and, if
// allowed, hands it to the executor and records the engagement event.
func (o *Orchestrator) dispatchNudge(ctx context.Context, category, groupID, userID, message string) (bool, string, error) {
	group := directory.Group{EngagementEnabled: true}
	if groupID != "" {
		if err := o.groups.FindOne(ctx, storage.Filter{"group_id": groupID}, &group); err != nil && err != storage.ErrNotFound {
			return false, "", fmt.Errorf("find group %s: %w", groupID, err)
		}
	}

	var prefs engagement.Preferences
	if err := o.preferences.FindOne(ctx, storage.Filter{"user_id": userID}, &prefs); err != nil && err != storage.ErrNotFound {
		return false, "", fmt.Errorf("find preferences for %s: %w", userID, err)
	}

	lastSameCategoryAt, err := o.lastEventAt(ctx, groupID, userID, category, engagement.EventNudgeSent)
	if err != nil {
		return false, "", err
	}
	unresolved, err := o.unresolvedCount(ctx, groupID, userID, category)
	if err != nil {
		return false, "", err
	}

	localHour := o.clock().UTC().Hour() + prefs.TimezoneOffsetHours
	localHour = ((localHour % 24) + 24) % 24

	dec, channels, err := o.policy.Check(ctx, policy.NudgeRequest{
		GroupID: groupID, UserID: userID, Category: category,
		GroupEngagementOn:  group.EngagementEnabled,
		Preferences:        prefs,
		LocalHour:          localHour,
		LastSameCategoryAt: lastSameCategoryAt,
		UnresolvedNudges:   unresolved,
	})
	if err != nil {
		return false, "", fmt.Errorf("engagement policy check: %w", err)
	}
	if !dec.Allowed {
		return false, dec.BlockedReason, nil
	}

	if err := o.executor.SendNudge(ctx, category, userID, channels, message); err != nil {
		return false, "", fmt.Errorf("send nudge: %w", err)
	}
	evt := engagement.Event{
		EventType: engagement.EventNudgeSent, GroupID: groupID, UserID: userID,
		Category: category, CreatedAt: o.clock(),
	}
	if len(channels) > 0 {
		evt.Channel = channels[0]
	}
	if err := o.engagementLog.InsertOne(ctx, eventID(groupID, userID, category, o.clock()), evt); err != nil {
		return false, "", fmt.Errorf("log engagement event: %w", err)
	}
	return true, "", nil
}

func (o *Orchestrator) lastEventAt(ctx context.Context, groupID, userID, category string, eventType engagement.EventType) (*time.Time, error) {
	filter := storage.Filter{"event_type": string(eventType)}
	if category != "" {
		filter["category"] = category
	}
	if groupID != "" {
		filter["group_id"] = groupID
	}
	if userID != "" {
		filter["user_id"] = userID
	}
	var events []engagement.Event
	srt := storage.Sort{Field: "created_at", Desc: true}
	if err := o.engagementLog.Find(ctx, filter, &srt, 1, &events); err != nil {
		return nil, fmt.Errorf("find last event: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}
	return &events[0].CreatedAt, nil
}

// unresolvedNudgeWindow bounds how far back an unresolved-nudge count looks
// when the user/group has never had a resolving event (a game played after a
// nudge): without this a long-lived inactive pair would accumulate nudge_sent
// events forever and permanently trip the escalation cap.
const unresolvedNudgeWindow = 90 * 24 * time.Hour

// unresolvedCount counts nudge_sent events for category since whichever is
// more recent: the last game_started_after_nudge event for this group/user
// (a nudge "resolving" by prompting actual play), or the start of the
// bounded lookback window.
func (o *Orchestrator) unresolvedCount(ctx context.Context, groupID, userID, category string) (int, error) {
	since := o.clock().Add(-unresolvedNudgeWindow)
	resolvedAt, err := o.lastEventAt(ctx, groupID, userID, "", engagement.EventGameStartedAfterNudge)
	if err != nil {
		return 0, err
	}
	if resolvedAt != nil && resolvedAt.After(since) {
		since = *resolvedAt
	}

	filter := storage.Filter{"category": category, "event_type": string(engagement.EventNudgeSent)}
	if groupID != "" {
		filter["group_id"] = groupID
	}
	if userID != "" {
		filter["user_id"] = userID
	}
	var events []engagement.Event
	if err := o.engagementLog.Find(ctx, filter, nil, 0, &events); err != nil {
		return 0, fmt.Errorf("list nudge events: %w", err)
	}
	count := 0
	for _, e := range events {
		if e.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (o *Orchestrator) groupAdmin(ctx context.Context, groupID string) (string, error) {
	var m directory.Membership
	if err := o.memberships.FindOne(ctx, storage.Filter{"group_id": groupID, "role": "admin"}, &m); err != nil {
		if err == storage.ErrNotFound {
			return "", nil
		}
		return "", err
	}
	return m.UserID, nil
}

func eventID(groupID, userID, category string, at time.Time) string {
	return fmt.Sprintf("%s|%s|%s|%d", groupID, userID, category, at.UnixNano())
}
