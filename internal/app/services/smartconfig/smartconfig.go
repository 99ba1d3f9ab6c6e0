// Package smartconfig supplements the Smart Scheduler with advisory-only
// game configuration and invite suggestions, grounded on
// tools/smart_config.py's suggest_game_config and suggest_players. It never
// mutates group or game state; every suggestion is read-only, the same
// posture as rsvptracker and the scheduler's own time-slot ranking.
package smartconfig

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/oddside/automation-runtime/internal/app/domain/directory"
	"github.com/oddside/automation-runtime/internal/app/domain/ledger"
	"github.com/oddside/automation-runtime/internal/app/storage"
)

const (
	defaultBuyInAmount   = 20.0
	defaultChipsPerBuyIn = 100

	gameConfigHistoryWindow = 10
	playerHistoryWindow     = 20
	maxSuggestedPlayers     = 8
)

// GameConfigSuggestion is an advisory buy-in/chip/title recommendation for a
// group's next game.
type GameConfigSuggestion struct {
	BuyInAmount       float64
	ChipsPerBuyIn     int
	Title             string
	TitleAlternatives []string
	Confidence        string
	Reason            string
}

// PlayerSuggestion ranks a group member as an invite candidate.
type PlayerSuggestion struct {
	UserID             string
	Name               string
	GamesPlayed        int
	AttendanceRate     float64
	PaymentReliability float64
	RecencyScore       float64
	TotalScore         float64
}

// Advisor answers smart-config questions over the directory's read-only
// collections plus the payment ledger, following the house convention of
// taking storage.Store fields directly.
type Advisor struct {
	gameNights    storage.Store
	groups        storage.Store
	memberships   storage.Store
	ledgerEntries storage.Store
	profiles      storage.Store
	now           func() time.Time
}

// New builds an Advisor.
func New(gameNights, groups, memberships, ledgerEntries, profiles storage.Store) *Advisor {
	return &Advisor{
		gameNights:    gameNights,
		groups:        groups,
		memberships:   memberships,
		ledgerEntries: ledgerEntries,
		profiles:      profiles,
		now:           time.Now,
	}
}

// SetClock overrides the advisor's clock, for deterministic tests.
func (a *Advisor) SetClock(now func() time.Time) { a.now = now }

func (a *Advisor) clock() time.Time {
	if a.now != nil {
		return a.now()
	}
	return time.Now()
}

// SuggestGameConfig suggests a buy-in amount, chip count, and title for a
// group's next game from its last 10 games, grounded on
// _suggest_game_config. An empty history falls back to the product's
// default $20/100-chip buy-in.
func (a *Advisor) SuggestGameConfig(ctx context.Context, groupID string) (GameConfigSuggestion, error) {
	var games []directory.GameNight
	if err := a.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, &storage.Sort{Field: "created_at", Desc: true}, gameConfigHistoryWindow, &games); err != nil {
		return GameConfigSuggestion{}, fmt.Errorf("list games: %w", err)
	}

	var groupName string
	var group directory.Group
	if err := a.groups.FindOne(ctx, storage.Filter{"group_id": groupID}, &group); err == nil {
		groupName = group.Name
	}
	if groupName == "" {
		groupName = "Poker"
	}
	weekday := a.clock().Weekday().String()
	titles := []string{
		fmt.Sprintf("%s %s Game", groupName, weekday),
		fmt.Sprintf("%s Night Poker", weekday),
		fmt.Sprintf("%s Poker Night", groupName),
	}

	if len(games) == 0 {
		return GameConfigSuggestion{
			BuyInAmount:       defaultBuyInAmount,
			ChipsPerBuyIn:     defaultChipsPerBuyIn,
			Title:             "Poker Night",
			Confidence:        "low",
			Reason:            "No previous games found. Using default settings.",
		}, nil
	}

	var buyIns []float64
	var chips []int
	for _, g := range games {
		if g.BuyInAmount > 0 {
			buyIns = append(buyIns, g.BuyInAmount)
		}
		if g.ChipsPerBuyIn > 0 {
			chips = append(chips, g.ChipsPerBuyIn)
		}
	}

	confidence := "medium"
	if len(games) >= 5 {
		confidence = "high"
	}

	return GameConfigSuggestion{
		BuyInAmount:       mostCommonFloat(buyIns, defaultBuyInAmount),
		ChipsPerBuyIn:     mostCommonInt(chips, defaultChipsPerBuyIn),
		Title:             titles[0],
		TitleAlternatives: titles[1:],
		Confidence:        confidence,
		Reason:            fmt.Sprintf("Based on %d previous games.", len(games)),
	}, nil
}

// SuggestPlayers ranks a group's members as invite candidates by a weighted
// blend of attendance rate (40%), payment reliability (30%), and recency
// (30%), grounded on _suggest_players. maxSuggestions <= 0 uses the
// product default of 8.
func (a *Advisor) SuggestPlayers(ctx context.Context, groupID string, maxSuggestions int) ([]PlayerSuggestion, error) {
	if maxSuggestions <= 0 {
		maxSuggestions = maxSuggestedPlayers
	}

	var members []directory.Membership
	if err := a.memberships.Find(ctx, storage.Filter{"group_id": groupID}, nil, 0, &members); err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	var games []directory.GameNight
	if err := a.gameNights.Find(ctx, storage.Filter{"group_id": groupID}, &storage.Sort{Field: "created_at", Desc: true}, playerHistoryWindow, &games); err != nil {
		return nil, fmt.Errorf("list games: %w", err)
	}
	totalGames := len(games)
	if totalGames == 0 {
		totalGames = 1
	}

	gamesPlayed := make(map[string]int)
	lastPlayed := make(map[string]time.Time)
	for _, g := range games {
		for _, p := range g.Players {
			gamesPlayed[p.UserID]++
			if g.CreatedAt.After(lastPlayed[p.UserID]) {
				lastPlayed[p.UserID] = g.CreatedAt
			}
		}
	}

	now := a.clock()
	suggestions := make([]PlayerSuggestion, 0, len(members))
	for _, m := range members {
		played := gamesPlayed[m.UserID]
		attendanceRate := (float64(played) / float64(len(games))) * 100
		if len(games) == 0 {
			attendanceRate = 0
		}

		outstanding, err := a.ledgerEntries.CountDocuments(ctx, storage.Filter{"from_user_id": m.UserID, "group_id": groupID, "status": string(ledger.StatusPending)})
		if err != nil {
			return nil, fmt.Errorf("count outstanding ledger entries for %s: %w", m.UserID, err)
		}
		paymentReliability := 100.0 - float64(outstanding)*20
		if paymentReliability < 0 {
			paymentReliability = 0
		}

		recencyScore := 100.0
		if last, ok := lastPlayed[m.UserID]; ok {
			daysSince := now.Sub(last).Hours() / 24
			recencyScore = 100 - daysSince*2
			if recencyScore < 0 {
				recencyScore = 0
			}
		}

		totalScore := attendanceRate*0.4 + paymentReliability*0.3 + recencyScore*0.3

		name := m.UserID
		var profile directory.Profile
		if err := a.profiles.FindOne(ctx, storage.Filter{"user_id": m.UserID}, &profile); err == nil && profile.Name != "" {
			name = profile.Name
		}

		suggestions = append(suggestions, PlayerSuggestion{
			UserID:             m.UserID,
			Name:               name,
			GamesPlayed:        played,
			AttendanceRate:     attendanceRate,
			PaymentReliability: paymentReliability,
			RecencyScore:       recencyScore,
			TotalScore:         totalScore,
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool { return suggestions[i].TotalScore > suggestions[j].TotalScore })
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	return suggestions, nil
}

func mostCommonFloat(values []float64, fallback float64) float64 {
	if len(values) == 0 {
		return fallback
	}
	counts := make(map[float64]int)
	var order []float64
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := order[0]
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}

func mostCommonInt(values []int, fallback int) int {
	if len(values) == 0 {
		return fallback
	}
	counts := make(map[int]int)
	var order []int
	for _, v := range values {
		if counts[v] == 0 {
			order = append(order, v)
		}
		counts[v]++
	}
	best := order[0]
	for _, v := range order {
		if counts[v] > counts[best] {
			best = v
		}
	}
	return best
}
