package emotimatch

import (
	"math"
	"slices"
)

// generateCards draws a round's solution and one card per entry of sizes.
//
// Every card holds the solution once. The next min(smallest size, players)
// slots reuse one shared draw, rotated per player, so cards also overlap
// with each other on symbols that are not the solution. Slots beyond the
// smallest card are filled with one fresh symbol per slot, shared by every
// card that is large enough. Each card is shuffled at the end.
func generateCards(symbols []string, sizes []int) (string, [][]string) {
	players := len(sizes)
	if players == 0 {
		return "", nil
	}

	sel := NewSampler(symbols)
	solution, _ := sel.SelectOne()

	cards := make([][]string, players)
	for pid, size := range sizes {
		cards[pid] = make([]string, max(size, 1))
	}

	minSize := len(cards[0])
	maxSize := len(cards[0])
	for _, card := range cards {
		minSize = min(minSize, len(card))
		maxSize = max(maxSize, len(card))
	}

	shared := sel.SelectArray(players)
	sharedEnd := min(minSize, players)

	for pid, card := range cards {
		card[0] = solution

		for sid := 1; sid < sharedEnd; sid++ {
			card[sid] = shared[(sid+pid)%players]
		}

		for sid := sharedEnd; sid < minSize; sid++ {
			card[sid], _ = sel.SelectOne()
		}
	}

	for sid := minSize; sid < maxSize; sid++ {
		symbol, _ := sel.SelectOne()

		for _, card := range cards {
			if sid < len(card) {
				card[sid] = symbol
			}
		}
	}

	for pid, card := range cards {
		// empty slots only remain if the pool ran dry
		card = slices.DeleteFunc(card, func(s string) bool { return s == "" })

		cards[pid] = NewSampler(card).SelectArray(len(card))
	}

	return solution, cards
}

// cardSize rounds a fractional card size to the number of symbols dealt.
func cardSize(size float64) int {
	return max(int(math.Round(size)), 1)
}
