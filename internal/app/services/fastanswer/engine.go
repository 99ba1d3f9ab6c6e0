// Package fastanswer resolves Tier-0 chat intents into answers from
// persisted state and canned templates, with no external model call. Every
// handler is deterministic given the same stored data and clock.
package fastanswer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/services/intent"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// currencySymbols mirrors the product's supported settlement currencies.
var currencySymbols = map[string]string{
	"USD": "$", "EUR": "€", "GBP": "£", "NOK": "kr", "SEK": "kr",
	"DKK": "kr", "CAD": "C$", "AUD": "A$", "INR": "₹",
}

// Answer is what a Tier-0 handler hands back to the chat surface.
type Answer struct {
	Text       string
	FollowUps  []string
	Navigation map[string]string
	Source     string
}

// followUpPools are the per-intent suggestion pools Answer sampling draws
// from without replacement.
var followUpPools = map[intent.Name][]string{
	intent.GroupsCount: {
		"Do I have any active games?", "Who owes me money?",
		"What are my stats?", "Any games planned this week?",
	},
	intent.GroupsList: {
		"Any active games right now?", "What's my total profit?",
		"Do I owe anyone?", "Any upcoming games?",
	},
	intent.ActiveGames: {
		"Who owes me money?", "Show my groups",
		"What are my stats?", "Any pending payments?",
	},
	intent.UpcomingGames: {
		"What about active games?", "Who owes me?",
		"Show my stats", "What groups am I in?",
	},
	intent.RecentGames: {
		"How much have I won total?", "Any upcoming games?",
		"Who owes me money?", "What are my stats?",
	},
	intent.WhoOwesMe: {
		"What do I owe others?", "Show my recent games",
		"What's my total profit?", "Any active games?",
	},
	intent.WhatIOwe: {
		"Who owes me money?", "Show my recent games",
		"What are my stats?", "Any upcoming games?",
	},
	intent.MyStats: {
		"Show my groups", "Any active games?",
		"Who owes me money?", "Show my recent games",
	},
	intent.MyRecord: {
		"What are my stats?", "Any games this week?",
		"Show my groups", "Any pending payments?",
	},
	intent.HowTo: {
		"How does buy-in work?", "How do I cash out?",
		"What is settlement?", "How do I create a group?",
	},
}

// maxGroupsListed caps how many group names GROUPS_COUNT spells out (adding
// " and N more" beyond it) and how many games ACTIVE_GAMES and
// UPCOMING_GAMES list; GROUPS_LIST names every group.
const maxGroupsListed = 5

// Engine answers Tier-0 intents by reading the directory, ledger, and
// automation-run collections the rest of the runtime already maintains.
type Engine struct {
	groups      storage.Store
	memberships storage.Store
	gameNights  storage.Store
	profiles    storage.Store
	entries     storage.Store
	now         func() time.Time
	rng         *rand.Rand
}

// New builds an Engine over the read-only directory collections (groups,
// group memberships, game nights, profiles) and the ledger collection
// payment reconciliation owns.
func New(groups, memberships, gameNights, profiles, entries storage.Store) *Engine {
	return &Engine{
		groups:      groups,
		memberships: memberships,
		gameNights:  gameNights,
		profiles:    profiles,
		entries:     entries,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(1)),
	}
}

func (e *Engine) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}

// Answer dispatches a classified Tier-0 intent to its handler.
func (e *Engine) Answer(ctx context.Context, result intent.Result, userID string) (Answer, error) {
	a, err := e.dispatch(ctx, result, userID)
	if err != nil {
		return Answer{}, err
	}
	if a.Source == "" {
		a.Source = "fast_answer"
	}
	return a, nil
}

func (e *Engine) dispatch(ctx context.Context, result intent.Result, userID string) (Answer, error) {
	switch result.Intent {
	case intent.GroupsCount:
		return e.handleGroupsCount(ctx, userID)
	case intent.GroupsList:
		return e.handleGroupsList(ctx, userID)
	case intent.ActiveGames:
		return e.handleActiveGames(ctx, userID)
	case intent.UpcomingGames:
		return e.handleUpcomingGames(ctx, userID, result.Params["time_filter"])
	case intent.RecentGames:
		return e.handleRecentGames(ctx, userID)
	case intent.WhoOwesMe:
		return e.handleWhoOwesMe(ctx, userID)
	case intent.WhatIOwe:
		return e.handleWhatIOwe(ctx, userID)
	case intent.MyStats:
		return e.handleMyStats(ctx, userID)
	case intent.MyRecord:
		return e.handleMyRecord(ctx, userID)
	case intent.HowTo:
		return e.handleHowTo(result.Params["original_message"]), nil
	default:
		return Answer{
			Text:      "I'm not sure how to answer that. Try asking differently!",
			FollowUps: e.pickFollowUps(intent.MyStats, 3),
		}, nil
	}
}

func (e *Engine) handleGroupsCount(ctx context.Context, userID string) (Answer, error) {
	groups, err := e.userGroups(ctx, userID)
	if err != nil {
		return Answer{}, err
	}
	if len(groups) == 0 {
		return Answer{
			Text:       "You're not in any groups yet. Create one or ask a friend to invite you!",
			FollowUps:  []string{"How do I create a group?", "How do I join a group?"},
			Navigation: map[string]string{"screen": "Groups"},
		}, nil
	}

	names := make([]string, len(groups))
	for i, g := range groups {
		names[i] = g.Name
	}
	count := len(names)
	namesStr := strings.Join(names[:min(count, maxGroupsListed)], ", ")
	if count > maxGroupsListed {
		namesStr += fmt.Sprintf(" and %d more", count-maxGroupsListed)
	}
	s := ""
	if count != 1 {
		s = "s"
	}

	return Answer{
		Text:       fmt.Sprintf("You're in %d group%s: %s.", count, s, namesStr),
		FollowUps:  e.pickFollowUps(intent.GroupsCount, 3),
		Navigation: map[string]string{"screen": "Groups"},
	}, nil
}

func (e *Engine) handleGroupsList(ctx context.Context, userID string) (Answer, error) {
	memberships, err := e.membershipsFor(ctx, userID)
	if err != nil {
		return Answer{}, err
	}
	if len(memberships) == 0 {
		return Answer{
			Text:       "You're not in any groups yet. Create one or ask a friend to invite you!",
			FollowUps:  []string{"How do I create a group?"},
			Navigation: map[string]string{"screen": "Groups"},
		}, nil
	}

	var lines []string
	for _, m := range memberships {
		var g directory.Group
		name := "Unnamed"
		if err := e.groups.FindOne(ctx, storage.Filter{"group_id": m.GroupID}, &g); err == nil {
			name = g.Name
		}
		roleTag := ""
		if m.Role == "admin" {
			roleTag = " (admin)"
		}
		lines = append(lines, fmt.Sprintf("• %s%s", name, roleTag))
	}

	return Answer{
		Text:       fmt.Sprintf("Your groups (%d):\n%s", len(lines), strings.Join(lines, "\n")),
		FollowUps:  e.pickFollowUps(intent.GroupsList, 3),
		Navigation: map[string]string{"screen": "Groups"},
	}, nil
}

func (e *Engine) handleActiveGames(ctx context.Context, userID string) (Answer, error) {
	groupIDs, err := e.userGroupIDs(ctx, userID)
	if err != nil {
		return Answer{}, err
	}
	if len(groupIDs) == 0 {
		return Answer{
			Text:      "You're not in any groups yet, so no active games.",
			FollowUps: []string{"How do I create a group?"},
		}, nil
	}

	games, err := e.gameNightsByStatus(ctx, groupIDs, directory.GameNightActive)
	if err != nil {
		return Answer{}, err
	}
	if len(games) == 0 {
		return Answer{
			Text:      "No active games right now. Time to start one?",
			FollowUps: []string{"Any upcoming games?", "Show my groups", "How do I start a game?"},
		}, nil
	}

	names := e.groupNames(ctx, groupIDs)
	count := len(games)
	s := ""
	if count != 1 {
		s = "s"
	}
	var lines []string
	for _, g := range games[:min(count, maxGroupsListed)] {
		lines = append(lines, fmt.Sprintf("• %s (%s)", g.Title, names[g.GroupID]))
	}

	return Answer{
		Text:       fmt.Sprintf("You have %d active game%s:\n%s", count, s, strings.Join(lines, "\n")),
		FollowUps:  e.pickFollowUps(intent.ActiveGames, 3),
		Navigation: map[string]string{"screen": "GameNight"},
	}, nil
}

// upcomingRange turns a time_filter param into a [start, end) window and a
// human label, the same mapping the original chat assistant used.
func (e *Engine) upcomingRange(timeFilter string) (time.Time, time.Time, string) {
	now := e.clock()
	switch timeFilter {
	case "today":
		start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return start, start.Add(24 * time.Hour), "today"
	case "tomorrow":
		tomorrow := now.AddDate(0, 0, 1)
		start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 0, 0, 0, 0, tomorrow.Location())
		return start, start.Add(24 * time.Hour), "tomorrow"
	case "this_weekend":
		daysUntilSat := (6 - int(now.Weekday())) % 7
		sat := now.AddDate(0, 0, daysUntilSat)
		start := time.Date(sat.Year(), sat.Month(), sat.Day(), 0, 0, 0, 0, sat.Location())
		return start, start.Add(48 * time.Hour), "this weekend"
	default:
		return now, now.Add(7 * 24 * time.Hour), "the next 7 days"
	}
}

func (e *Engine) handleUpcomingGames(ctx context.Context, userID, timeFilter string) (Answer, error) {
	groupIDs, err := e.userGroupIDs(ctx, userID)
	if err != nil {
		return Answer{}, err
	}
	if len(groupIDs) == 0 {
		return Answer{
			Text:      "You're not in any groups yet, so no upcoming games.",
			FollowUps: []string{"How do I create a group?"},
		}, nil
	}

	start, end, label := e.upcomingRange(timeFilter)
	candidates, err := e.gameNightsByStatus(ctx, groupIDs, directory.GameNightScheduled)
	if err != nil {
		return Answer{}, err
	}
	var games []directory.GameNight
	for _, g := range candidates {
		if g.ScheduledAt == nil {
			continue
		}
		if !g.ScheduledAt.Before(start) && g.ScheduledAt.Before(end) {
			games = append(games, g)
		}
	}
	sort.Slice(games, func(i, j int) bool { return games[i].ScheduledAt.Before(*games[j].ScheduledAt) })

	if len(games) == 0 {
		return Answer{
			Text:      fmt.Sprintf("No games scheduled for %s. Maybe time to plan one?", label),
			FollowUps: []string{"Any active games?", "Show my groups", "How do I start a game?"},
		}, nil
	}

	names := e.groupNames(ctx, groupIDs)
	count := len(games)
	s := ""
	if count != 1 {
		s = "s"
	}
	var lines []string
	for _, g := range games[:min(count, maxGroupsListed)] {
		lines = append(lines, fmt.Sprintf("• %s — %s (%s)", g.Title, names[g.GroupID], g.ScheduledAt.Format("Mon Jan 2, 3:04 PM")))
	}

	return Answer{
		Text:      fmt.Sprintf("%d game%s scheduled for %s:\n%s", count, s, label, strings.Join(lines, "\n")),
		FollowUps: e.pickFollowUps(intent.UpcomingGames, 3),
	}, nil
}

func (e *Engine) handleRecentGames(ctx context.Context, userID string) (Answer, error) {
	groupIDs, err := e.userGroupIDs(ctx, userID)
	if err != nil {
		return Answer{}, err
	}
	if len(groupIDs) == 0 {
		return Answer{
			Text:      "You're not in any groups yet, so no game history.",
			FollowUps: []string{"How do I create a group?"},
		}, nil
	}

	ended, err := e.gameNightsByStatus(ctx, groupIDs, directory.GameNightEnded)
	if err != nil {
		return Answer{}, err
	}
	settled, err := e.gameNightsByStatus(ctx, groupIDs, directory.GameNightSettled)
	if err != nil {
		return Answer{}, err
	}
	games := append(ended, settled...)
	sort.Slice(games, func(i, j int) bool { return games[i].CreatedAt.After(games[j].CreatedAt) })
	if len(games) > 5 {
		games = games[:5]
	}

	if len(games) == 0 {
		return Answer{
			Text:      "No completed games yet. Your history will show up here after your first game!",
			FollowUps: []string{"Any active games?", "Show my groups"},
		}, nil
	}

	names := e.groupNames(ctx, groupIDs)
	var lines []string
	for _, g := range games {
		statusLabel := "ended"
		if g.Status == directory.GameNightSettled {
			statusLabel = "settled"
		}
		lines = append(lines, fmt.Sprintf("• %s (%s) — %s [%s]", g.Title, names[g.GroupID], g.CreatedAt.Format("Jan 2"), statusLabel))
	}

	return Answer{
		Text:      fmt.Sprintf("Your last %d games:\n%s", len(games), strings.Join(lines, "\n")),
		FollowUps: e.pickFollowUps(intent.RecentGames, 3),
	}, nil
}

func (e *Engine) handleWhoOwesMe(ctx context.Context, userID string) (Answer, error) {
	var entries []ledger.Entry
	if err := e.entries.Find(ctx, storage.Filter{"to_user_id": userID}, nil, 0, &entries); err != nil {
		return Answer{}, fmt.Errorf("who owes me: %w", err)
	}
	entries = outstandingOnly(entries)
	if len(entries) == 0 {
		return Answer{Text: "Nobody owes you anything right now. All settled up!", FollowUps: e.pickFollowUps(intent.WhoOwesMe, 3)}, nil
	}

	byPerson, total, symbol := aggregateByUser(entries, func(en ledger.Entry) string { return en.FromUserID })
	text := fmt.Sprintf("%s owe%s you a total of %s%.2f:\n%s",
		personCount(len(byPerson)), pluralVerb(len(byPerson)), symbol, total, e.formatByPerson(ctx, byPerson, symbol))

	return Answer{Text: text, FollowUps: e.pickFollowUps(intent.WhoOwesMe, 3)}, nil
}

func (e *Engine) handleWhatIOwe(ctx context.Context, userID string) (Answer, error) {
	var entries []ledger.Entry
	if err := e.entries.Find(ctx, storage.Filter{"from_user_id": userID}, nil, 0, &entries); err != nil {
		return Answer{}, fmt.Errorf("what i owe: %w", err)
	}
	entries = outstandingOnly(entries)
	if len(entries) == 0 {
		return Answer{Text: "You're all squared up! You don't owe anyone.", FollowUps: e.pickFollowUps(intent.WhatIOwe, 3)}, nil
	}

	byPerson, total, symbol := aggregateByUser(entries, func(en ledger.Entry) string { return en.ToUserID })
	count := len(byPerson)
	s := ""
	if count != 1 {
		s = "s"
	}
	text := fmt.Sprintf("You owe %d person%s a total of %s%.2f:\n%s", count, s, symbol, total, e.formatByPerson(ctx, byPerson, symbol))

	return Answer{Text: text, FollowUps: e.pickFollowUps(intent.WhatIOwe, 3)}, nil
}

func (e *Engine) handleMyStats(ctx context.Context, userID string) (Answer, error) {
	var prof directory.Profile
	if err := e.profiles.FindOne(ctx, storage.Filter{"user_id": userID}, &prof); err != nil {
		return Answer{Text: "I couldn't find your profile. Try refreshing the app.", FollowUps: []string{"Show my groups"}}, nil
	}

	profitStr := fmt.Sprintf("+$%.2f", prof.TotalProfit)
	if prof.TotalProfit < 0 {
		profitStr = fmt.Sprintf("-$%.2f", -prof.TotalProfit)
	}

	memberSince := ""
	if !prof.CreatedAt.IsZero() {
		memberSince = fmt.Sprintf(" Member since %s.", prof.CreatedAt.Format("Jan 2006"))
	}

	text := fmt.Sprintf("Hey %s! Here's your profile:\n• Level: %s\n• Games played: %d\n• Net profit: %s\n• Badges: %d",
		prof.Name, prof.Level, prof.TotalGames, profitStr, len(prof.Badges))
	if len(prof.Badges) > 0 {
		shown := prof.Badges
		if len(shown) > 5 {
			shown = shown[:5]
		}
		text += fmt.Sprintf(" (%s)", strings.Join(shown, ", "))
	}
	text = strings.TrimRight(text+"\n"+memberSince, " \n")

	return Answer{Text: text, FollowUps: e.pickFollowUps(intent.MyStats, 3)}, nil
}

func (e *Engine) handleMyRecord(ctx context.Context, userID string) (Answer, error) {
	var prof directory.Profile
	if err := e.profiles.FindOne(ctx, storage.Filter{"user_id": userID}, &prof); err != nil {
		return Answer{Text: "I couldn't find your profile.", FollowUps: []string{"Show my groups"}}, nil
	}

	if prof.TotalGames == 0 {
		return Answer{
			Text:      "You haven't played any games yet. Your record will show here after your first game!",
			FollowUps: []string{"Show my groups", "How do I start a game?"},
		}, nil
	}

	var status string
	switch {
	case prof.TotalProfit > 0:
		status = fmt.Sprintf("You're up $%.2f overall across %d games. Nice work!", prof.TotalProfit, prof.TotalGames)
	case prof.TotalProfit < 0:
		status = fmt.Sprintf("You're down $%.2f overall across %d games. Better luck ahead!", -prof.TotalProfit, prof.TotalGames)
	default:
		status = fmt.Sprintf("You're exactly even after %d games. Perfectly balanced.", prof.TotalGames)
	}

	return Answer{Text: status, FollowUps: e.pickFollowUps(intent.MyRecord, 3)}, nil
}

func (e *Engine) handleHowTo(originalMessage string) Answer {
	if a, ok := quickAnswer(originalMessage); ok {
		if len(a.FollowUps) == 0 {
			a.FollowUps = e.pickFollowUps(intent.HowTo, 3)
		}
		return a
	}
	return Answer{
		Text: "I can help with common tasks! Try asking:\n" +
			"• How do I create a group?\n" +
			"• How does buy-in work?\n" +
			"• How do I cash out?\n" +
			"• What is settlement?\n" +
			"• Poker hand rankings",
		FollowUps: e.pickFollowUps(intent.HowTo, 3),
	}
}

// pickFollowUps samples up to count suggestions from intent's pool without
// replacement, falling back to MY_STATS's pool for intents with none.
func (e *Engine) pickFollowUps(name intent.Name, count int) []string {
	pool := followUpPools[name]
	if pool == nil {
		pool = followUpPools[intent.MyStats]
	}
	if len(pool) <= count {
		out := make([]string, len(pool))
		copy(out, pool)
		return out
	}
	idx := e.rng.Perm(len(pool))[:count]
	out := make([]string, count)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}

func (e *Engine) userGroupIDs(ctx context.Context, userID string) ([]string, error) {
	memberships, err := e.membershipsFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(memberships))
	for i, m := range memberships {
		ids[i] = m.GroupID
	}
	return ids, nil
}

func (e *Engine) membershipsFor(ctx context.Context, userID string) ([]directory.Membership, error) {
	var memberships []directory.Membership
	if err := e.memberships.Find(ctx, storage.Filter{"user_id": userID}, nil, 0, &memberships); err != nil {
		return nil, fmt.Errorf("find memberships for %s: %w", userID, err)
	}
	return memberships, nil
}

func (e *Engine) userGroups(ctx context.Context, userID string) ([]directory.Group, error) {
	groupIDs, err := e.userGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []directory.Group
	for _, id := range groupIDs {
		var g directory.Group
		if err := e.groups.FindOne(ctx, storage.Filter{"group_id": id}, &g); err != nil {
			continue
		}
		out = append(out, g)
	}
	return out, nil
}

func (e *Engine) groupNames(ctx context.Context, groupIDs []string) map[string]string {
	names := make(map[string]string, len(groupIDs))
	for _, id := range groupIDs {
		var g directory.Group
		if err := e.groups.FindOne(ctx, storage.Filter{"group_id": id}, &g); err == nil {
			names[id] = g.Name
		} else {
			names[id] = "Unnamed"
		}
	}
	return names
}

func (e *Engine) gameNightsByStatus(ctx context.Context, groupIDs []string, status directory.GameNightStatus) ([]directory.GameNight, error) {
	inGroups := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		inGroups[id] = true
	}
	var all []directory.GameNight
	if err := e.gameNights.Find(ctx, storage.Filter{"status": string(status)}, nil, 0, &all); err != nil {
		return nil, fmt.Errorf("find game nights (%s): %w", status, err)
	}
	var out []directory.GameNight
	for _, g := range all {
		if inGroups[g.GroupID] {
			out = append(out, g)
		}
	}
	return out, nil
}

func outstandingOnly(entries []ledger.Entry) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range entries {
		if e.Outstanding() {
			out = append(out, e)
		}
	}
	return out
}

func aggregateByUser(entries []ledger.Entry, key func(ledger.Entry) string) (map[string]float64, float64, string) {
	byPerson := make(map[string]float64)
	var total float64
	symbol := "$"
	if len(entries) > 0 && entries[0].Currency != "" {
		if s, ok := currencySymbols[entries[0].Currency]; ok {
			symbol = s
		}
	}
	for _, en := range entries {
		byPerson[key(en)] += en.Amount
		total += en.Amount
	}
	return byPerson, total, symbol
}

func (e *Engine) formatByPerson(ctx context.Context, byPerson map[string]float64, symbol string) string {
	type row struct {
		userID string
		amount float64
	}
	rows := make([]row, 0, len(byPerson))
	for id, amount := range byPerson {
		rows = append(rows, row{id, amount})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].amount > rows[j].amount })

	var lines []string
	for _, r := range rows {
		name := e.userName(ctx, r.userID)
		lines = append(lines, fmt.Sprintf("• %s: %s%.2f", name, symbol, r.amount))
	}
	return strings.Join(lines, "\n")
}

func (e *Engine) userName(ctx context.Context, userID string) string {
	var prof directory.Profile
	if err := e.profiles.FindOne(ctx, storage.Filter{"user_id": userID}, &prof); err == nil && prof.Name != "" {
		return prof.Name
	}
	return "Someone"
}

func personCount(n int) string {
	s := ""
	if n != 1 {
		s = "s"
	}
	return fmt.Sprintf("%d person%s", n, s)
}

func pluralVerb(n int) string {
	if n == 1 {
		return "s"
	}
	return ""
}
