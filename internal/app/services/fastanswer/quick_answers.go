package fastanswer

import "strings"

// quickAnswerEntry is one canned HOW_TO response, matched by substring
// against the lowercased original message.
type quickAnswerEntry struct {
	keywords []string
	answer   Answer
}

var quickAnswerTable = []quickAnswerEntry{
	{
		keywords: []string{"buy-in", "buy in", "buyin"},
		answer: Answer{
			Text: "Buy-in is the amount a player pays to join a game. The host sets " +
				"the buy-in when creating the game; it becomes that player's starting " +
				"ledger stake for settlement.",
			Navigation: map[string]string{"screen": "HowToBuyIn"},
		},
	},
	{
		keywords: []string{"cash out", "cash-out", "cashout"},
		answer: Answer{
			Text: "Cash-out is what a player leaves the table with. At the end of a " +
				"game the host records every player's cash-out, and settlement works " +
				"out who owes whom from the difference against their buy-ins.",
			Navigation: map[string]string{"screen": "HowToCashOut"},
		},
	},
	{
		keywords: []string{"settlement", "settle up", "settling"},
		answer: Answer{
			Text: "Settlement turns a game's buy-ins and cash-outs into the minimum " +
				"set of payments between players, so nobody has to send more " +
				"transfers than necessary.",
			Navigation: map[string]string{"screen": "HowToSettlement"},
		},
	},
	{
		keywords: []string{"create a group", "create group", "new group", "join a group", "join group"},
		answer: Answer{
			Text: "From the Groups screen, tap Create Group and share the invite link " +
				"or code with your regulars. Anyone with the link can join; the " +
				"creator starts as admin.",
			Navigation: map[string]string{"screen": "Groups"},
		},
	},
	{
		keywords: []string{"hand ranking", "hand rankings", "poker hand"},
		answer: Answer{
			Text: "From best to worst: royal flush, straight flush, four of a kind, " +
				"full house, flush, straight, three of a kind, two pair, pair, high card.",
		},
	},
}

// quickAnswer matches a HOW_TO message against the canned-answer table.
func quickAnswer(message string) (Answer, bool) {
	lower := strings.ToLower(message)
	for _, entry := range quickAnswerTable {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				return entry.answer, true
			}
		}
	}
	return Answer{}, false
}
