// Package bracket derives every player's position in an 8-player
// single-elimination tree purely from the tournament's match history.
// Slots 0-7 are the entrants in join order, 8-11 the semifinal feeders,
// 12-13 the final feeders and 14 the champion. Nothing here is persisted:
// positions are recomputed on demand, so stored and derived state cannot
// drift apart.
package bracket

import (
	"github.com/42-Transcendence-2025/consegna-finale/models"
)

const (
	LeafSlots    = 8
	ChampionSlot = 14
)

// ParentSlot returns the slot a winner advances to.
func ParentSlot(child int) int {
	if child < 8 {
		return 8 + child/2
	}
	if child < 12 {
		return 12 + (child-8)/2
	}
	return ChampionSlot
}

// OpponentSlot returns the other half of the bracket pair containing slot.
// Pairs are (0,1)(2,3)(4,5)(6,7)(8,9)(10,11)(12,13).
func OpponentSlot(slot int) int {
	return slot ^ 1
}

// MatchNumberForSlot maps a slot to the match_number its pair plays:
// quarterfinals 0-3, semifinals 4-5, final 6.
func MatchNumberForSlot(slot int) int {
	return slot / 2
}

// PairSlots returns the two slots feeding match number n.
func PairSlots(n int) (int, int) {
	return 2 * n, 2*n + 1
}

// nextMatchMapping: aborted match number -> (next round match, sibling match
// feeding the same parent).
var nextMatchMapping = map[int][2]int{
	0: {4, 1},
	1: {4, 0},
	2: {5, 3},
	3: {5, 2},
	4: {6, 5},
	5: {6, 4},
}

// Slots folds the tournament's matches, ordered by match_number, into the
// current slot of every still-alive player. Players eliminated (or swallowed
// by an aborted match) are absent from the result.
func Slots(playerIDs []int, matches []models.Match) map[int]int {
	slots := make(map[int]int, len(playerIDs))
	for idx, id := range playerIDs {
		slots[id] = idx
	}

	for _, m := range ordered(matches) {
		if m.Status == models.MatchStatusAborted {
			// Neither side advances; both recorded players are out.
			if m.Player1ID != nil {
				delete(slots, *m.Player1ID)
			}
			if m.Player2ID != nil {
				delete(slots, *m.Player2ID)
			}
			continue
		}
		if m.WinnerID == nil {
			continue // still pending
		}

		s1, ok1 := sideSlot(slots, m.Player1ID)
		s2, ok2 := sideSlot(slots, m.Player2ID)

		var target int
		switch {
		case ok1 && ok2:
			target = ParentSlot(min(s1, s2))
		case ok1:
			target = ParentSlot(s1)
		case ok2:
			target = ParentSlot(s2)
		default:
			continue // anomalous row; skip rather than fail the whole fold
		}

		slots[*m.WinnerID] = target
		if m.LoserID != nil {
			delete(slots, *m.LoserID)
		} else if loser := otherPlayer(m); loser != nil && *loser != *m.WinnerID {
			delete(slots, *loser)
		}
	}
	return slots
}

// CurrentSlot returns the player's current bracket slot, or false if the
// player has been eliminated or never entered.
func CurrentSlot(playerIDs []int, matches []models.Match, playerID int) (int, bool) {
	slot, ok := Slots(playerIDs, matches)[playerID]
	return slot, ok
}

// Occupant returns the player currently holding the given slot, or false.
func Occupant(playerIDs []int, matches []models.Match, slot int) (int, bool) {
	for id, s := range Slots(playerIDs, matches) {
		if s == slot {
			return id, true
		}
	}
	return 0, false
}

// OpponentOf returns the player currently occupying the other half of the
// pair containing playerID's slot, or false if either side is unresolved.
func OpponentOf(playerIDs []int, matches []models.Match, playerID int) (int, bool) {
	slots := Slots(playerIDs, matches)
	slot, ok := slots[playerID]
	if !ok || slot == ChampionSlot {
		return 0, false
	}
	want := OpponentSlot(slot)
	for id, s := range slots {
		if s == want {
			return id, true
		}
	}
	return 0, false
}

// View is one of the 7 bracket positions, either backed by a stored match
// row or synthesized from the players currently occupying its feeder slots.
type View struct {
	MatchNumber   int                `json:"match_number"`
	Player1ID     *int               `json:"player_1,omitempty"`
	Player2ID     *int               `json:"player_2,omitempty"`
	Status        models.MatchStatus `json:"status,omitempty"`
	PointsPlayer1 *int               `json:"points_player_1,omitempty"`
	PointsPlayer2 *int               `json:"points_player_2,omitempty"`
	WinnerID      *int               `json:"winner,omitempty"`
	Stored        bool               `json:"-"`
}

// MatchViews always returns exactly TournamentMatchCount entries, one per
// match number. Positions with no stored row get their players filled from
// whoever currently occupies the pair's two slots.
func MatchViews(playerIDs []int, matches []models.Match) []View {
	stored := make(map[int]models.Match, len(matches))
	for _, m := range matches {
		if m.MatchNumber != nil {
			stored[*m.MatchNumber] = m
		}
	}
	slots := Slots(playerIDs, matches)

	views := make([]View, models.TournamentMatchCount)
	for n := 0; n < models.TournamentMatchCount; n++ {
		if m, ok := stored[n]; ok {
			views[n] = View{
				MatchNumber:   n,
				Player1ID:     m.Player1ID,
				Player2ID:     m.Player2ID,
				Status:        m.Status,
				PointsPlayer1: m.PointsPlayer1,
				PointsPlayer2: m.PointsPlayer2,
				WinnerID:      m.WinnerID,
				Stored:        true,
			}
			continue
		}
		v := View{MatchNumber: n}
		lo, hi := PairSlots(n)
		for id, s := range slots {
			switch p := id; s {
			case lo:
				v.Player1ID = &p
			case hi:
				v.Player2ID = &p
			}
		}
		views[n] = v
	}
	return views
}

// WalkoverWinner inspects an aborted match and reports the sibling winner
// who should advance by walkover, together with the next round's match
// number. It reports false when the final was aborted, the sibling has no
// winner yet, or the next-round match already exists.
func WalkoverWinner(matches []models.Match, abortedNumber int) (winnerID, nextNumber int, ok bool) {
	mapping, found := nextMatchMapping[abortedNumber]
	if !found {
		return 0, 0, false
	}
	nextNumber = mapping[0]
	siblingNumber := mapping[1]

	var sibling *models.Match
	for i := range matches {
		m := &matches[i]
		if m.MatchNumber == nil {
			continue
		}
		switch *m.MatchNumber {
		case nextNumber:
			return 0, 0, false // next round already created
		case siblingNumber:
			sibling = m
		}
	}
	if sibling == nil || sibling.WinnerID == nil {
		return 0, 0, false
	}
	return *sibling.WinnerID, nextNumber, true
}

// IsComplete reports whether all 7 matches exist and are terminal.
func IsComplete(matches []models.Match) bool {
	seen := make(map[int]bool, models.TournamentMatchCount)
	for _, m := range matches {
		if m.MatchNumber != nil && m.Status.IsTerminal() {
			seen[*m.MatchNumber] = true
		}
	}
	return len(seen) == models.TournamentMatchCount
}

// ChampionID returns the winner of the final (match number 6), if any.
func ChampionID(matches []models.Match) (int, bool) {
	for _, m := range matches {
		if m.MatchNumber != nil && *m.MatchNumber == models.TournamentMatchCount-1 && m.WinnerID != nil {
			return *m.WinnerID, true
		}
	}
	return 0, false
}

func ordered(matches []models.Match) []models.Match {
	out := make([]models.Match, 0, len(matches))
	for n := 0; n < models.TournamentMatchCount; n++ {
		for _, m := range matches {
			if m.MatchNumber != nil && *m.MatchNumber == n {
				out = append(out, m)
			}
		}
	}
	// Matches without a number (ad-hoc rows that leaked in) cannot move
	// anyone in the tree; they are ignored on purpose.
	return out
}

func sideSlot(slots map[int]int, playerID *int) (int, bool) {
	if playerID == nil {
		return 0, false
	}
	s, ok := slots[*playerID]
	return s, ok
}

func otherPlayer(m models.Match) *int {
	if m.WinnerID == nil {
		return nil
	}
	if m.Player1ID != nil && *m.Player1ID == *m.WinnerID {
		return m.Player2ID
	}
	if m.Player2ID != nil && *m.Player2ID == *m.WinnerID {
		return m.Player1ID
	}
	return nil
}
