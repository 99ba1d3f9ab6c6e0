// Package engagementscorer scores users and groups on a 0-100 engagement
// scale and surfaces the findings (inactive user, inactive group, milestone,
// big winner) that feed engagement nudges. Every score carries explainable
// reasons and recommendations rather than a bare number.
package engagementscorer

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// maxScanCandidates bounds how many members/groups a single discovery scan
// will walk, so a large product never turns a periodic scan into an
// unbounded table scan.
const maxScanCandidates = 200

// Milestone ordinals, exactly as fired by the product's original scorer.
var userMilestones = []int{5, 10, 25, 50, 100, 200, 500}
var groupMilestones = []int{10, 25, 50, 100, 200, 500}

// ComponentScore is one weighted factor of a total score, kept alongside its
// ceiling and weight so a caller can render a breakdown bar.
type ComponentScore struct {
	Score  int     `json:"score"`
	Max    int     `json:"max"`
	Weight float64 `json:"weight"`
}

// Recommendation is one suggested follow-up action with its rationale.
type Recommendation struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

// UserScore is a user's engagement score and its explanation.
type UserScore struct {
	UserID            string                    `json:"user_id"`
	Score             int                       `json:"score"`
	Level             string                    `json:"level"`
	TotalGames        int                       `json:"total_games"`
	DaysSinceLastGame *int                      `json:"days_since_last_game"`
	GamesPerMonth     int                       `json:"games_per_month"`
	Components        map[string]ComponentScore `json:"components"`
	Reasons           []string                  `json:"reasons"`
	Recommendations   []Recommendation          `json:"recommendations"`
}

// GroupScore is a group's engagement score and its explanation.
type GroupScore struct {
	GroupID           string                    `json:"group_id"`
	Score             int                       `json:"score"`
	Level             string                    `json:"level"`
	TotalGames        int                       `json:"total_games"`
	MemberCount       int                       `json:"member_count"`
	DaysSinceLastGame *int                      `json:"days_since_last_game"`
	GamesPerMonth     int                       `json:"games_per_month"`
	AvgPlayersPerGame float64                   `json:"avg_players_per_game"`
	Components        map[string]ComponentScore `json:"components"`
	Reasons           []string                  `json:"reasons"`
	Recommendations   []Recommendation          `json:"recommendations"`
}

// InactiveUser is a member whose days-since-last-game cleared the threshold.
type InactiveUser struct {
	UserID        string `json:"user_id"`
	DaysInactive  *int   `json:"days_inactive"`
	LastGameID    string `json:"last_game_id,omitempty"`
	LastGameTitle string `json:"last_game_title,omitempty"`
}

// InactiveGroup is a group with no recent play and no active game in flight.
type InactiveGroup struct {
	GroupID       string `json:"group_id"`
	GroupName     string `json:"group_name"`
	DaysInactive  *int   `json:"days_inactive"`
	MemberCount   int    `json:"member_count"`
	LastGameTitle string `json:"last_game_title,omitempty"`
}

// MilestoneKind distinguishes a user milestone from a group milestone.
type MilestoneKind string

const (
	MilestoneUser  MilestoneKind = "user_milestone"
	MilestoneGroup MilestoneKind = "group_milestone"
)

// Milestone is a just-reached game-count ordinal for a user or group.
type Milestone struct {
	Kind    MilestoneKind `json:"type"`
	Value   int           `json:"milestone"`
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Message string        `json:"message"`
}

// BigWinner is a player whose result in one game clears the celebration bar:
// cash-out at least 2x buy-in, or a net result of $50 or more.
type BigWinner struct {
	UserID     string  `json:"user_id"`
	NetResult  float64 `json:"net_result"`
	TotalBuyIn float64 `json:"total_buy_in"`
	CashOut    float64 `json:"cash_out"`
}

// Scorer computes engagement scores and findings from the read-only
// directory collections.
type Scorer struct {
	groups      storage.Store
	memberships storage.Store
	gameNights  storage.Store
	profiles    storage.Store
	now         func() time.Time
}

// New builds a Scorer over the given directory collections.
func New(groups, memberships, gameNights, profiles storage.Store) *Scorer {
	return &Scorer{groups: groups, memberships: memberships, gameNights: gameNights, profiles: profiles, now: time.Now}
}

func (s *Scorer) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// ScoreUser computes a user's 0-100 engagement score, optionally scoped to a
// single group's play history.
func (s *Scorer) ScoreUser(ctx context.Context, userID, groupID string) (UserScore, error) {
	games, err := s.concludedGamesForUser(ctx, userID, groupID)
	if err != nil {
		return UserScore{}, err
	}

	if len(games) == 0 {
		return UserScore{
			UserID:     userID,
			Score:      0,
			Level:      "new",
			TotalGames: 0,
			Components: map[string]ComponentScore{
				"recency":     {Score: 0, Max: 30, Weight: 0.30},
				"frequency":   {Score: 0, Max: 30, Weight: 0.30},
				"consistency": {Score: 0, Max: 20, Weight: 0.20},
				"social":      {Score: 0, Max: 20, Weight: 0.20},
			},
			Reasons: []string{"No games played yet"},
			Recommendations: []Recommendation{
				{Action: "nudge_user", Reason: "New user with no games — invite to first game"},
			},
		}, nil
	}

	sortByCreatedAtDesc(games)
	now := s.clock()

	daysSinceLast := daysBetween(games[0].CreatedAt, now)
	recencyScore := max(0, 30-daysSinceLast)

	thirtyDaysAgo := now.AddDate(0, 0, -30)
	gamesPerMonth := 0
	for _, g := range games {
		if g.CreatedAt.After(thirtyDaysAgo) {
			gamesPerMonth++
		}
	}
	frequencyScore := min(30, gamesPerMonth*6)

	consistencyScore := 0
	if len(games) >= 3 {
		consistencyScore = consistencyFromIntervals(games)
	}

	uniqueGroups := map[string]bool{}
	for _, g := range games {
		uniqueGroups[g.GroupID] = true
	}
	socialScore := min(20, len(uniqueGroups)*5)

	total := recencyScore + frequencyScore + consistencyScore + socialScore
	level := userLevel(total)

	var reasons []string
	if daysSinceLast > 30 {
		reasons = append(reasons, fmt.Sprintf("Last game %d days ago", daysSinceLast))
	} else if daysSinceLast > 14 {
		reasons = append(reasons, fmt.Sprintf("No games in %d days", daysSinceLast))
	}
	if gamesPerMonth == 0 {
		reasons = append(reasons, "No games in the last 30 days")
	} else if gamesPerMonth <= 1 {
		reasons = append(reasons, fmt.Sprintf("Only %d game in the last month", gamesPerMonth))
	}
	if consistencyScore < 5 && len(games) >= 3 {
		reasons = append(reasons, "Irregular play schedule")
	}
	if len(uniqueGroups) <= 1 {
		reasons = append(reasons, "Only active in 1 group")
	}
	if total >= 60 && gamesPerMonth >= 3 {
		reasons = append(reasons, fmt.Sprintf("Strong activity: %d games this month", gamesPerMonth))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("Score %d/100 — %s engagement", total, level))
	}

	var recs []Recommendation
	if daysSinceLast > 30 {
		recs = append(recs, Recommendation{Action: "nudge_user", Reason: fmt.Sprintf("Inactive for %d days — send re-engagement nudge", daysSinceLast)})
	} else if daysSinceLast > 14 {
		recs = append(recs, Recommendation{Action: "nudge_user", Reason: "Approaching inactivity threshold — light reminder"})
	}
	if gamesPerMonth == 0 {
		recs = append(recs, Recommendation{Action: "fomo_nudge", Reason: "Lapsed player — show group activity they missed"})
	}
	if total >= 80 {
		recs = append(recs, Recommendation{Action: "milestone_check", Reason: "Highly active — check for upcoming milestones"})
	}

	return UserScore{
		UserID:            userID,
		Score:             total,
		Level:             level,
		TotalGames:        len(games),
		DaysSinceLastGame: &daysSinceLast,
		GamesPerMonth:     gamesPerMonth,
		Components: map[string]ComponentScore{
			"recency":     {Score: recencyScore, Max: 30, Weight: 0.30},
			"frequency":   {Score: frequencyScore, Max: 30, Weight: 0.30},
			"consistency": {Score: consistencyScore, Max: 20, Weight: 0.20},
			"social":      {Score: socialScore, Max: 20, Weight: 0.20},
		},
		Reasons:         reasons,
		Recommendations: recs,
	}, nil
}

func userLevel(score int) string {
	switch {
	case score >= 80:
		return "highly_active"
	case score >= 60:
		return "active"
	case score >= 40:
		return "moderate"
	case score >= 20:
		return "low"
	default:
		return "inactive"
	}
}

// consistencyFromIntervals scores regularity of inter-game gaps: lower
// variance in days-between-games yields a higher score, capped to [0,20].
func consistencyFromIntervals(games []directory.GameNight) int {
	limit := len(games) - 1
	if limit > 10 {
		limit = 10
	}
	var intervals []float64
	for i := 0; i < limit; i++ {
		intervals = append(intervals, float64(daysBetween(games[i+1].CreatedAt, games[i].CreatedAt)))
	}
	if len(intervals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range intervals {
		sum += v
	}
	avg := sum / float64(len(intervals))
	var variance float64
	for _, v := range intervals {
		variance += (v - avg) * (v - avg)
	}
	variance /= float64(len(intervals))
	score := int(20 - math.Sqrt(variance)/2)
	return max(0, min(20, score))
}

// ScoreGroup computes a group's 0-100 engagement score.
func (s *Scorer) ScoreGroup(ctx context.Context, groupID string) (GroupScore, error) {
	var allGames []directory.GameNight
	if err := s.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, nil, maxScanCandidates, &allGames); err != nil {
		return GroupScore{}, fmt.Errorf("list game nights: %w", err)
	}
	games := concludedOnly(allGames)

	memberCount, err := s.memberships.CountDocuments(ctx, storage.Filter{"group_id": groupID})
	if err != nil {
		return GroupScore{}, fmt.Errorf("count members: %w", err)
	}

	if len(games) == 0 {
		participation := 0
		var reasons []string
		var recs []Recommendation
		reasons = append(reasons, "No games played yet")
		if memberCount >= 3 {
			participation = 5
			reasons = append(reasons, fmt.Sprintf("%d members ready to play", memberCount))
			recs = append(recs, Recommendation{Action: "nudge_group", Reason: "Group has members but no games — prompt host to schedule"})
		} else if memberCount > 0 {
			recs = append(recs, Recommendation{Action: "grow_group", Reason: "Need more members before first game"})
		}
		return GroupScore{
			GroupID:     groupID,
			Score:       participation,
			Level:       "new",
			TotalGames:  0,
			MemberCount: int(memberCount),
			Components: map[string]ComponentScore{
				"recency":       {Score: 0, Max: 30, Weight: 0.30},
				"frequency":     {Score: 0, Max: 30, Weight: 0.30},
				"participation": {Score: participation, Max: 20, Weight: 0.20},
				"growth":        {Score: 0, Max: 20, Weight: 0.20},
			},
			Reasons:         reasons,
			Recommendations: recs,
		}, nil
	}

	sortByCreatedAtDesc(games)
	now := s.clock()

	daysSinceLast := daysBetween(games[0].CreatedAt, now)
	recencyScore := max(0, 30-daysSinceLast)

	thirtyDaysAgo := now.AddDate(0, 0, -30)
	gamesPerMonth := 0
	for _, g := range games {
		if g.CreatedAt.After(thirtyDaysAgo) {
			gamesPerMonth++
		}
	}
	frequencyScore := min(30, gamesPerMonth*8)

	sampleSize := len(games)
	if sampleSize > 10 {
		sampleSize = 10
	}
	totalPlayers := 0
	for _, g := range games[:sampleSize] {
		totalPlayers += len(g.Players)
	}
	avgPlayers := float64(totalPlayers) / float64(sampleSize)
	participationScore := min(20, int(avgPlayers*3))

	var newMembers []directory.Membership
	if err := s.memberships.Find(ctx, storage.Filter{"group_id": groupID}, nil, maxScanCandidates, &newMembers); err != nil {
		return GroupScore{}, fmt.Errorf("list members: %w", err)
	}
	newMemberCount := 0
	for _, m := range newMembers {
		if m.JoinedAt.After(thirtyDaysAgo) {
			newMemberCount++
		}
	}
	growthScore := min(20, newMemberCount*5)

	total := recencyScore + frequencyScore + participationScore + growthScore
	level := groupLevel(total)

	var reasons []string
	if daysSinceLast > 30 {
		reasons = append(reasons, fmt.Sprintf("No games in %d days", daysSinceLast))
	} else if daysSinceLast > 14 {
		reasons = append(reasons, fmt.Sprintf("Last game %d days ago", daysSinceLast))
	}
	if gamesPerMonth == 0 {
		reasons = append(reasons, "Zero games this month")
	} else if gamesPerMonth <= 1 {
		reasons = append(reasons, fmt.Sprintf("Only %d game this month", gamesPerMonth))
	}
	if avgPlayers < 3 {
		reasons = append(reasons, fmt.Sprintf("Low turnout: avg %.1f players/game", avgPlayers))
	}
	if memberCount > 0 && avgPlayers/float64(memberCount) < 0.5 {
		activePct := int((avgPlayers / float64(memberCount)) * 100)
		reasons = append(reasons, fmt.Sprintf("Only %d%% of %d members playing", activePct, memberCount))
	}
	if total >= 60 {
		reasons = append(reasons, fmt.Sprintf("Healthy group activity: %d games/month", gamesPerMonth))
	}
	if len(reasons) == 0 {
		reasons = append(reasons, fmt.Sprintf("Score %d/100 — %s", total, level))
	}

	var recs []Recommendation
	if daysSinceLast > 21 {
		recs = append(recs, Recommendation{Action: "nudge_group", Reason: fmt.Sprintf("Inactive for %d days — propose a date", daysSinceLast)})
	} else if daysSinceLast > 14 {
		recs = append(recs, Recommendation{Action: "nudge_admin", Reason: "Approaching inactivity — remind host to schedule"})
	}
	if avgPlayers < 3 && memberCount >= 4 {
		recs = append(recs, Recommendation{Action: "boost_participation", Reason: "Low participation rate — encourage more members to join"})
	}
	if growthScore == 0 && memberCount < 6 {
		recs = append(recs, Recommendation{Action: "grow_group", Reason: "No new members recently — suggest inviting friends"})
	}

	return GroupScore{
		GroupID:           groupID,
		Score:             total,
		Level:             level,
		TotalGames:        len(games),
		MemberCount:       int(memberCount),
		DaysSinceLastGame: &daysSinceLast,
		GamesPerMonth:     gamesPerMonth,
		AvgPlayersPerGame: roundTo1(avgPlayers),
		Components: map[string]ComponentScore{
			"recency":       {Score: recencyScore, Max: 30, Weight: 0.30},
			"frequency":     {Score: frequencyScore, Max: 30, Weight: 0.30},
			"participation": {Score: participationScore, Max: 20, Weight: 0.20},
			"growth":        {Score: growthScore, Max: 20, Weight: 0.20},
		},
		Reasons:         reasons,
		Recommendations: recs,
	}, nil
}

func groupLevel(score int) string {
	switch {
	case score >= 80:
		return "thriving"
	case score >= 60:
		return "active"
	case score >= 40:
		return "moderate"
	case score >= 20:
		return "cooling"
	default:
		return "dormant"
	}
}

// FindInactiveUsers lists members of groupID (or, if groupID is empty, every
// member across every group up to maxScanCandidates) whose last concluded
// game is older than inactiveDays — restricted to a near-threshold window
// [inactiveDays-5, inactiveDays+30] so a scan doesn't keep resurfacing users
// who have been inactive for a very long time and are presumably already
// handled by a longer-lived nudge cycle.
func (s *Scorer) FindInactiveUsers(ctx context.Context, groupID string, inactiveDays int) ([]InactiveUser, error) {
	userIDs, err := s.scopedUserIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var out []InactiveUser
	for _, uid := range userIDs {
		games, err := s.concludedGamesForUser(ctx, uid, groupID)
		if err != nil {
			return nil, err
		}
		if len(games) == 0 {
			out = append(out, InactiveUser{UserID: uid})
			continue
		}
		sortByCreatedAtDesc(games)
		daysInactive := daysBetween(games[0].CreatedAt, now)
		if daysInactive < inactiveDays {
			continue
		}
		if !withinNearWindow(daysInactive, inactiveDays, 5, 30) {
			continue
		}
		days := daysInactive
		out = append(out, InactiveUser{
			UserID:        uid,
			DaysInactive:  &days,
			LastGameID:    games[0].GameID,
			LastGameTitle: games[0].Title,
		})
	}

	sortInactiveUsersDesc(out)
	return out, nil
}

// FindInactiveGroups lists groups with no active/scheduled game in flight and
// no concluded game within inactiveDays, restricted to a near-threshold
// window [inactiveDays-2, inactiveDays+30].
func (s *Scorer) FindInactiveGroups(ctx context.Context, inactiveDays int) ([]InactiveGroup, error) {
	var groups []directory.Group
	if err := s.groups.Find(ctx, nil, nil, maxScanCandidates, &groups); err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	now := s.clock()
	var out []InactiveGroup
	for _, g := range groups {
		var games []directory.GameNight
		if err := s.gameNights.Find(ctx, storage.Filter{"group_id": g.GroupID}, nil, maxScanCandidates, &games); err != nil {
			return nil, fmt.Errorf("list game nights for %s: %w", g.GroupID, err)
		}
		if hasInFlightGame(games) {
			continue
		}
		concluded := concludedOnly(games)
		memberCount, err := s.memberships.CountDocuments(ctx, storage.Filter{"group_id": g.GroupID})
		if err != nil {
			return nil, fmt.Errorf("count members for %s: %w", g.GroupID, err)
		}

		if len(concluded) == 0 {
			if memberCount >= 2 {
				out = append(out, InactiveGroup{GroupID: g.GroupID, GroupName: g.Name, MemberCount: int(memberCount)})
			}
			continue
		}

		sortByCreatedAtDesc(concluded)
		daysInactive := daysBetween(concluded[0].CreatedAt, now)
		if daysInactive < inactiveDays {
			continue
		}
		if !withinNearWindow(daysInactive, inactiveDays, 2, 30) {
			continue
		}
		days := daysInactive
		out = append(out, InactiveGroup{
			GroupID:       g.GroupID,
			GroupName:     g.Name,
			DaysInactive:  &days,
			MemberCount:   int(memberCount),
			LastGameTitle: concluded[0].Title,
		})
	}

	sortInactiveGroupsDesc(out)
	return out, nil
}

// withinNearWindow reports whether days falls within
// [threshold-before, threshold+after], treating a negative lower bound as 0.
func withinNearWindow(days, threshold, before, after int) bool {
	lo := threshold - before
	if lo < 0 {
		lo = 0
	}
	hi := threshold + after
	return days >= lo && days <= hi
}

func hasInFlightGame(games []directory.GameNight) bool {
	for _, g := range games {
		switch g.Status {
		case directory.GameNightScheduled, directory.GameNightActive:
			return true
		}
	}
	return false
}

// CheckMilestones reports whether userID's and/or groupID's just-concluded
// game count lands exactly on a milestone ordinal.
func (s *Scorer) CheckMilestones(ctx context.Context, userID, groupID string) ([]Milestone, error) {
	var out []Milestone

	if userID != "" {
		games, err := s.concludedGamesForUser(ctx, userID, groupID)
		if err != nil {
			return nil, err
		}
		count := len(games)
		if containsInt(userMilestones, count) {
			name := "Player"
			var profile directory.Profile
			if err := s.profiles.FindOne(ctx, storage.Filter{"user_id": userID}, &profile); err == nil && profile.Name != "" {
				name = profile.Name
			}
			out = append(out, Milestone{
				Kind:    MilestoneUser,
				Value:   count,
				ID:      userID,
				Name:    name,
				Message: fmt.Sprintf("%s just played their %s game!", name, ordinal(count)),
			})
		}
	}

	if groupID != "" {
		count, err := s.gameNights.CountDocuments(ctx, storage.Filter{"group_id": groupID, "status": string(directory.GameNightEnded)})
		if err != nil {
			return nil, fmt.Errorf("count ended games: %w", err)
		}
		settledCount, err := s.gameNights.CountDocuments(ctx, storage.Filter{"group_id": groupID, "status": string(directory.GameNightSettled)})
		if err != nil {
			return nil, fmt.Errorf("count settled games: %w", err)
		}
		total := int(count + settledCount)
		if containsInt(groupMilestones, total) {
			name := "Your group"
			var group directory.Group
			if err := s.groups.FindOne(ctx, storage.Filter{"group_id": groupID}, &group); err == nil && group.Name != "" {
				name = group.Name
			}
			out = append(out, Milestone{
				Kind:    MilestoneGroup,
				Value:   total,
				ID:      groupID,
				Name:    name,
				Message: fmt.Sprintf("%s just completed their %s game!", name, ordinal(total)),
			})
		}
	}

	return out, nil
}

// FindBigWinners returns the players from gameID whose result clears the
// celebration bar: cash-out at least 2x buy-in, or a net result of $50+.
func (s *Scorer) FindBigWinners(ctx context.Context, gameID string) ([]BigWinner, error) {
	var game directory.GameNight
	if err := s.gameNights.FindOne(ctx, storage.Filter{"game_id": gameID}, &game); err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}

	var winners []BigWinner
	for _, p := range game.Players {
		net := p.NetResult()
		if net <= 0 {
			continue
		}
		bigMultiple := p.TotalBuyIn > 0 && p.CashOut >= p.TotalBuyIn*2
		bigAbsolute := net >= 50
		if bigMultiple || bigAbsolute {
			winners = append(winners, BigWinner{UserID: p.UserID, NetResult: net, TotalBuyIn: p.TotalBuyIn, CashOut: p.CashOut})
		}
	}
	return winners, nil
}

// concludedGamesForUser lists every ended/settled game in which userID
// appears as a player, optionally scoped to one group. Membership filtering
// happens client-side: storage.Filter only matches equality on scalar and
// nested-object fields, not array membership, so "players.user_id" cannot
// be pushed down to the store.
func (s *Scorer) concludedGamesForUser(ctx context.Context, userID, groupID string) ([]directory.GameNight, error) {
	filter := storage.Filter{}
	if groupID != "" {
		filter["group_id"] = groupID
	}
	var candidates []directory.GameNight
	if err := s.gameNights.Find(ctx, filter, nil, maxScanCandidates, &candidates); err != nil {
		return nil, fmt.Errorf("list game nights: %w", err)
	}

	var out []directory.GameNight
	for _, g := range candidates {
		if !g.Concluded() {
			continue
		}
		if playerIn(g.Players, userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func playerIn(players []directory.GameNightPlayer, userID string) bool {
	for _, p := range players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func concludedOnly(games []directory.GameNight) []directory.GameNight {
	var out []directory.GameNight
	for _, g := range games {
		if g.Concluded() {
			out = append(out, g)
		}
	}
	return out
}

// scopedUserIDs lists member user IDs for groupID, or up to
// maxScanCandidates members across the whole product when groupID is empty.
func (s *Scorer) scopedUserIDs(ctx context.Context, groupID string) ([]string, error) {
	filter := storage.Filter{}
	if groupID != "" {
		filter["group_id"] = groupID
	}
	var members []directory.Membership
	if err := s.memberships.Find(ctx, filter, nil, maxScanCandidates, &members); err != nil {
		return nil, fmt.Errorf("list memberships: %w", err)
	}
	seen := map[string]bool{}
	var ids []string
	for _, m := range members {
		if !seen[m.UserID] {
			seen[m.UserID] = true
			ids = append(ids, m.UserID)
		}
	}
	return ids, nil
}

func sortByCreatedAtDesc(games []directory.GameNight) {
	for i := 1; i < len(games); i++ {
		j := i
		for j > 0 && games[j-1].CreatedAt.Before(games[j].CreatedAt) {
			games[j-1], games[j] = games[j], games[j-1]
			j--
		}
	}
}

func sortInactiveUsersDesc(users []InactiveUser) {
	for i := 1; i < len(users); i++ {
		j := i
		for j > 0 && rankDays(users[j-1].DaysInactive) < rankDays(users[j].DaysInactive) {
			users[j-1], users[j] = users[j], users[j-1]
			j--
		}
	}
}

func sortInactiveGroupsDesc(groups []InactiveGroup) {
	for i := 1; i < len(groups); i++ {
		j := i
		for j > 0 && rankDays(groups[j-1].DaysInactive) < rankDays(groups[j].DaysInactive) {
			groups[j-1], groups[j] = groups[j], groups[j-1]
			j--
		}
	}
}

// rankDays treats "never played" (nil) as the most inactive possible, so it
// sorts first in a most-inactive-first ordering.
func rankDays(d *int) int {
	if d == nil {
		return 9999
	}
	return *d
}

func daysBetween(earlier, later time.Time) int {
	d := later.Sub(earlier)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func ordinal(n int) string {
	if n%100 >= 11 && n%100 <= 13 {
		return fmt.Sprintf("%dth", n)
	}
	switch n % 10 {
	case 1:
		return fmt.Sprintf("%dst", n)
	case 2:
		return fmt.Sprintf("%dnd", n)
	case 3:
		return fmt.Sprintf("%drd", n)
	default:
		return fmt.Sprintf("%dth", n)
	}
}

func roundTo1(f float64) float64 {
	return math.Round(f*10) / 10
}
