package services

import (
	"sort"
	"strings"

	"perks/internal/core"
)

// periodRanks orders credits by how often they reset; denser first.
var periodRanks = map[core.PeriodType]int{
	core.Monthly:      1,
	core.Quarterly:    2,
	core.Semiannually: 3,
	core.Annually:     4,
}

const (
	anniversaryRank = 5
	unknownRank     = 99
)

// PeriodRank returns the sort rank for a credit's reset frequency.
// Anniversary-based credits rank last among the known frequencies no
// matter what their nominal period says.
func PeriodRank(pt core.PeriodType, anniversary bool) int {
	if anniversary {
		return anniversaryRank
	}
	if r, ok := periodRanks[pt]; ok {
		return r
	}
	return unknownRank
}

// SortCredits orders credits in place by period rank, then by title
// (case-insensitive). This keeps rendering stable across recomputes.
func SortCredits(credits []core.CreditView) {
	sort.SliceStable(credits, func(i, j int) bool {
		ri := PeriodRank(credits[i].Period, credits[i].Anniversary)
		rj := PeriodRank(credits[j].Period, credits[j].Anniversary)
		if ri != rj {
			return ri < rj
		}
		return strings.ToLower(credits[i].Title) < strings.ToLower(credits[j].Title)
	})
}

// SortCards orders cards in place: preferred card first, then by name
// (case-insensitive).
func SortCards(cards []core.CardSummary) {
	sort.SliceStable(cards, func(i, j int) bool {
		if cards[i].Preferred != cards[j].Preferred {
			return cards[i].Preferred
		}
		return strings.ToLower(cards[i].Name) < strings.ToLower(cards[j].Name)
	})
}
