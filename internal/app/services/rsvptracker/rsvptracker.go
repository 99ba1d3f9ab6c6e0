// Package rsvptracker is a read-model over the product's own game_nights
// and group_members collections (reached read-only through the directory
// package, same as engagementscorer and fastanswer): who has and hasn't
// responded to an upcoming game, and who to suggest as a backup once
// someone declines. This runtime never owns RSVP state, so it never writes
// to game_nights — a host-facing surface elsewhere in the product is
// responsible for recording the response itself.
package rsvptracker

import (
	"context"
	"fmt"
	"sort"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

// Stats tallies one game's RSVPs by status, grounded on
// rsvp_tracker.py's _calc_rsvp_stats.
type Stats struct {
	Confirmed int
	Declined  int
	Maybe     int
	Pending   int
	Total     int
}

// CalcStats tallies players by RSVP status.
func CalcStats(players []directory.GameNightPlayer) Stats {
	stats := Stats{Total: len(players)}
	for _, p := range players {
		switch p.RSVPStatus {
		case directory.RSVPConfirmed:
			stats.Confirmed++
		case directory.RSVPDeclined:
			stats.Declined++
		case directory.RSVPMaybe:
			stats.Maybe++
		default:
			stats.Pending++
		}
	}
	return stats
}

// BackupCandidate is a group member not currently in a game, scored by how
// active a player they are.
type BackupCandidate struct {
	UserID      string
	GamesPlayed int
}

// Tracker answers "who hasn't responded" and "who should we invite as a
// backup" over the directory's read-only game_nights/group_members/profiles
// collections. It follows engagementscorer.Scorer's house convention of
// taking storage.Store fields directly.
type Tracker struct {
	gameNights  storage.Store
	memberships storage.Store
	profiles    storage.Store
}

// New builds a Tracker.
func New(gameNights, memberships, profiles storage.Store) *Tracker {
	return &Tracker{gameNights: gameNights, memberships: memberships, profiles: profiles}
}

// Stats returns the RSVP tally for a game.
func (t *Tracker) Stats(ctx context.Context, gameID string) (Stats, error) {
	var game directory.GameNight
	if err := t.gameNights.FindOne(ctx, storage.Filter{"game_id": gameID}, &game); err != nil {
		return Stats{}, fmt.Errorf("find game %s: %w", gameID, err)
	}
	return CalcStats(game.Players), nil
}

// Unanswered returns the players on a game who still haven't responded,
// the signal the rsvp_reminder proactive-scheduler loop sweeps on.
func (t *Tracker) Unanswered(ctx context.Context, gameID string) ([]directory.GameNightPlayer, error) {
	var game directory.GameNight
	if err := t.gameNights.FindOne(ctx, storage.Filter{"game_id": gameID}, &game); err != nil {
		return nil, fmt.Errorf("find game %s: %w", gameID, err)
	}
	var out []directory.GameNightPlayer
	for _, p := range game.Players {
		if p.RSVPStatus.Unanswered() {
			out = append(out, p)
		}
	}
	return out, nil
}

// SuggestBackupPlayers scores group members who aren't already in the game,
// ranked by games played (most active first), grounded on
// rsvp_tracker.py's suggest_backup_players. maxSuggestions caps the result;
// 0 uses a default of 3.
func (t *Tracker) SuggestBackupPlayers(ctx context.Context, groupID, gameID string, maxSuggestions int) ([]BackupCandidate, error) {
	if maxSuggestions <= 0 {
		maxSuggestions = 3
	}

	var game directory.GameNight
	if err := t.gameNights.FindOne(ctx, storage.Filter{"game_id": gameID}, &game); err != nil {
		return nil, fmt.Errorf("find game %s: %w", gameID, err)
	}
	inGame := make(map[string]bool, len(game.Players))
	for _, p := range game.Players {
		inGame[p.UserID] = true
	}

	var members []directory.Membership
	if err := t.memberships.Find(ctx, storage.Filter{"group_id": groupID}, nil, 0, &members); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	var allGames []directory.GameNight
	if err := t.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, nil, 0, &allGames); err != nil {
		return nil, fmt.Errorf("list group games: %w", err)
	}
	gamesPlayed := make(map[string]int)
	for _, g := range allGames {
		for _, p := range g.Players {
			gamesPlayed[p.UserID]++
		}
	}

	candidates := make([]BackupCandidate, 0, len(members))
	for _, m := range members {
		if inGame[m.UserID] {
			continue
		}
		candidates = append(candidates, BackupCandidate{UserID: m.UserID, GamesPlayed: gamesPlayed[m.UserID]})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].GamesPlayed > candidates[j].GamesPlayed })
	if len(candidates) > maxSuggestions {
		candidates = candidates[:maxSuggestions]
	}
	return candidates, nil
}
