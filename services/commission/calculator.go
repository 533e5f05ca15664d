package commission

import "github.com/shopspring/decimal"

// OverrideParty is one recruiter in the chain above the attributed creator,
// nearest first, with the override rate frozen at calculation time.
type OverrideParty struct {
	CreatorID string
	Rate      decimal.Decimal
}

// Draft is a computed commission line before it is written to the ledger.
type Draft struct {
	CreatorID string
	Kind      EntryKind
	Level     int
	Rate      decimal.Decimal
	Amount    decimal.Decimal
}

// CalculateDrafts turns an order's revenue and recruiter chain into commission
// lines. The direct line is base x directRate. Each override line is base x the
// recruiter's rate. If the total exceeds base x capRate, override lines are
// scaled down proportionally so the total lands exactly on the cap; the direct
// line is never reduced. Zero-rate recruiters earn no line at all.
func CalculateDrafts(base, directRate, capRate decimal.Decimal, directCreatorID string, chain []OverrideParty) []Draft {
	drafts := make([]Draft, 0, len(chain)+1)

	direct := base.Mul(directRate).Round(2)
	drafts = append(drafts, Draft{
		CreatorID: directCreatorID,
		Kind:      KindDirect,
		Level:     0,
		Rate:      directRate,
		Amount:    direct,
	})

	overrideTotal := decimal.Zero
	for i, party := range chain {
		if !party.Rate.IsPositive() {
			continue
		}
		amount := base.Mul(party.Rate).Round(2)
		overrideTotal = overrideTotal.Add(amount)
		drafts = append(drafts, Draft{
			CreatorID: party.CreatorID,
			Kind:      KindOverride,
			Level:     i + 1,
			Rate:      party.Rate,
			Amount:    amount,
		})
	}

	cap := base.Mul(capRate).Round(2)
	if direct.Add(overrideTotal).LessThanOrEqual(cap) {
		return drafts
	}

	budget := cap.Sub(direct)
	if !budget.IsPositive() {
		// direct alone consumes the cap; overrides are dropped entirely
		return drafts[:1]
	}

	// scale each override by budget/overrideTotal, floored to whole cents, then
	// hand the leftover cents to the lines with the largest truncated fraction.
	// Flooring keeps every line non-negative and the total lands exactly on the
	// cap.
	cent := decimal.New(1, -2)
	fractions := make([]decimal.Decimal, len(drafts))
	allocated := decimal.Zero
	for i := 1; i < len(drafts); i++ {
		share := drafts[i].Amount.Mul(budget).Div(overrideTotal)
		floored := share.RoundDown(2)
		drafts[i].Amount = floored
		fractions[i] = share.Sub(floored)
		allocated = allocated.Add(floored)
	}
	for allocated.LessThan(budget) {
		best := 1
		for i := 2; i < len(drafts); i++ {
			if fractions[i].GreaterThan(fractions[best]) {
				best = i
			}
		}
		drafts[best].Amount = drafts[best].Amount.Add(cent)
		fractions[best] = fractions[best].Sub(cent)
		allocated = allocated.Add(cent)
	}

	return drafts
}
