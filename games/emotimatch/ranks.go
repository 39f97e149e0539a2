package emotimatch

import (
	"maps"
	"slices"
)

// ComputeRanks assigns competition ranks to scores: the highest score gets
// rank 1, tied scores share a rank, and the following rank is skipped by the
// size of the tie.
func ComputeRanks(scores []int) []int {
	groups := make(map[int][]int)
	for pid, score := range scores {
		groups[score] = append(groups[score], pid)
	}

	distinct := slices.Sorted(maps.Keys(groups))
	slices.Reverse(distinct)

	ranks := make([]int, len(scores))

	rank := 1
	for _, score := range distinct {
		for _, pid := range groups[score] {
			ranks[pid] = rank
		}

		rank += len(groups[score])
	}

	return ranks
}
