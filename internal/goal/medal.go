package goal

import "math"

// Tier is a medal rank within a category.
type Tier string

const (
	TierBronze  Tier = "bronze"
	TierSilver  Tier = "silver"
	TierGold    Tier = "gold"
	TierDiamond Tier = "diamond"
)

// TierRule is the completed-goal threshold and bonus XP of a tier.
type TierRule struct {
	Tier      Tier
	Threshold int
	BonusXP   int
}

// TierRules are ordered lowest first.
var TierRules = []TierRule{
	{Tier: TierBronze, Threshold: 1, BonusXP: 10},
	{Tier: TierSilver, Threshold: 10, BonusXP: 100},
	{Tier: TierGold, Threshold: 50, BonusXP: 1000},
	{Tier: TierDiamond, Threshold: 100, BonusXP: 10000},
}

// BonusXP returns the bonus attached to a tier, 0 for unknown tiers.
func (t Tier) BonusXP() int {
	for _, r := range TierRules {
		if r.Tier == t {
			return r.BonusXP
		}
	}
	return 0
}

// Rank orders tiers; unknown tiers rank below bronze.
func (t Tier) Rank() int {
	for i, r := range TierRules {
		if r.Tier == t {
			return i
		}
	}
	return -1
}

// NextTier returns the highest tier whose threshold completed meets and that
// is not already earned.
func NextTier(completed int, earned []Tier) (Tier, bool) {
	have := make(map[Tier]bool, len(earned))
	for _, t := range earned {
		have[t] = true
	}
	for i := len(TierRules) - 1; i >= 0; i-- {
		r := TierRules[i]
		if completed >= r.Threshold && !have[r.Tier] {
			return r.Tier, true
		}
	}
	return "", false
}

// Level maps total XP to a level: floor(sqrt(xp/100)) + 1.
func Level(xp int) int {
	if xp <= 0 {
		return 1
	}
	return int(math.Floor(math.Sqrt(float64(xp)/100))) + 1
}
