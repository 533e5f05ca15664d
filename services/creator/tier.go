package creator

import "github.com/shopspring/decimal"

// Recruitment tiers. A creator's tier is a function of how many of their
// recruits are currently active; the tier fixes the override rate applied to
// downstream sales. Tier 4 is terminal.
var tierTable = []struct {
	threshold    int
	overrideRate string
}{
	{0, "0"},
	{5, "0.02"},
	{10, "0.04"},
	{15, "0.06"},
	{20, "0.08"},
}

type TierStatus struct {
	Tier           int             `json:"tier"`
	OverrideRate   decimal.Decimal `json:"override_rate"`
	NextThreshold  int             `json:"next_tier_threshold"`
	RecruitsToNext int             `json:"recruits_to_next_tier"`
}

// TierForRecruits maps an active-recruit count to a tier. Total function:
// negative counts clamp to tier 0, counts past the top threshold to tier 4.
func TierForRecruits(count int) int {
	tier := 0
	for i, row := range tierTable {
		if count >= row.threshold {
			tier = i
		}
	}
	return tier
}

// OverrideRateForTier returns the override commission rate for a tier,
// clamping out-of-range tiers into the table.
func OverrideRateForTier(tier int) decimal.Decimal {
	if tier < 0 {
		tier = 0
	}
	if tier >= len(tierTable) {
		tier = len(tierTable) - 1
	}
	rate, _ := decimal.NewFromString(tierTable[tier].overrideRate)
	return rate
}

// TierStatusForRecruits computes the full tier status for a recruit count.
func TierStatusForRecruits(count int) TierStatus {
	if count < 0 {
		count = 0
	}

	tier := TierForRecruits(count)
	status := TierStatus{
		Tier:         tier,
		OverrideRate: OverrideRateForTier(tier),
	}

	if tier == len(tierTable)-1 {
		// terminal tier
		status.NextThreshold = tierTable[tier].threshold
		status.RecruitsToNext = 0
		return status
	}

	status.NextThreshold = tierTable[tier+1].threshold
	status.RecruitsToNext = status.NextThreshold - count
	return status
}
