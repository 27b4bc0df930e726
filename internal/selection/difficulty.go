// Package selection holds the deterministic strategies agents use to choose their next
// unit of work. Nothing here performs I/O.
package selection

import (
	"sort"
	"strings"
)

// Tier is a practice-problem difficulty. Tiers are ordered Easy < Medium < Hard.
type Tier int

const (
	Easy Tier = iota
	Medium
	Hard
)

// ProgressionWindow is how many of the most recent items decide the next tier.
const ProgressionWindow = 5

var tierNames = [...]string{"Easy", "Medium", "Hard"}

func (t Tier) String() string {
	if t < Easy || t > Hard {
		return "Unknown"
	}
	return tierNames[t]
}

// ParseTier maps a stored difficulty label to a tier (case-insensitive).
func ParseTier(s string) (Tier, bool) {
	for i, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Tier(i), true
		}
	}
	return Easy, false
}

// TargetTier applies the progression rule to a newest-first history of completed tiers.
// Only the first ProgressionWindow entries are considered:
//
//	>= 3 Easy and no Medium  -> Medium
//	>= 3 Medium              -> Hard
//	otherwise                -> Easy
//
// Histories shorter than three entries always target Easy.
func TargetTier(recent []Tier) Tier {
	if len(recent) > ProgressionWindow {
		recent = recent[:ProgressionWindow]
	}
	if len(recent) < 3 {
		return Easy
	}
	var easy, medium int
	for _, t := range recent {
		switch t {
		case Easy:
			easy++
		case Medium:
			medium++
		}
	}
	switch {
	case easy >= 3 && medium == 0:
		return Medium
	case medium >= 3:
		return Hard
	}
	return Easy
}

// Item is a selectable practice problem.
type Item struct {
	ID         string
	ExternalID int
	Tier       Tier
}

// PickNext returns the unsolved item with the lowest external id in the target tier.
// When the target tier has nothing left it walks up through the harder tiers; ok is false
// only when no tier at or above target has an eligible item.
func PickNext(items []Item, solved map[string]bool, target Tier) (Item, bool) {
	byTier := make(map[Tier][]Item)
	for _, it := range items {
		if solved[it.ID] {
			continue
		}
		byTier[it.Tier] = append(byTier[it.Tier], it)
	}
	for tier := target; tier <= Hard; tier++ {
		candidates := byTier[tier]
		if len(candidates) == 0 {
			continue
		}
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].ExternalID < candidates[j].ExternalID
		})
		return candidates[0], true
	}
	return Item{}, false
}
