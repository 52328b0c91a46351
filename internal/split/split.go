// Package split turns a total amount and a split policy into per-participant
// obligations. All functions are pure; validation failures come back as
// wrapped sentinel errors.
package split

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoParticipants = errors.New("at least one participant is required")
	ErrPercentSum     = errors.New("percentages must add up to 100")
	ErrAmountSum      = errors.New("amounts must add up to the total")
	ErrMissingShare   = errors.New("missing share for participant")
)

// Amounts below this are treated as zero to absorb rounding noise.
var epsilon = decimal.NewFromFloat(0.01)

var hundred = decimal.NewFromInt(100)

// Even divides the total equally. Every share is rounded to cents
// independently, so the sum of shares can drift from the total by up to
// len(participants)-1 cents; the drift is not reconciled.
func Even(total decimal.Decimal, participants []string) (map[string]decimal.Decimal, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	share := total.Div(decimal.NewFromInt(int64(len(participants)))).Round(2)
	amounts := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		amounts[p] = share
	}
	return amounts, nil
}

// Percent computes shares from per-participant percentages. The percentages
// must add up to 100 within the cent tolerance.
func Percent(total decimal.Decimal, participants []string, percents map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	sum := decimal.Zero
	for _, p := range participants {
		pct, ok := percents[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingShare, p)
		}
		sum = sum.Add(pct)
	}
	if sum.Sub(hundred).Abs().GreaterThan(epsilon) {
		return nil, fmt.Errorf("%w (got %s%%)", ErrPercentSum, sum.String())
	}

	amounts := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		amounts[p] = total.Mul(percents[p]).Div(hundred).Round(2)
	}
	return amounts, nil
}

// Amount uses the given per-participant amounts as-is. They must add up to
// the total within the cent tolerance.
func Amount(total decimal.Decimal, participants []string, amounts map[string]decimal.Decimal) (map[string]decimal.Decimal, error) {
	if len(participants) == 0 {
		return nil, ErrNoParticipants
	}
	sum := decimal.Zero
	for _, p := range participants {
		amt, ok := amounts[p]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingShare, p)
		}
		sum = sum.Add(amt)
	}
	if sum.Sub(total).Abs().GreaterThan(epsilon) {
		return nil, fmt.Errorf("%w (shares add up to %s, total is %s)", ErrAmountSum, sum.StringFixed(2), total.StringFixed(2))
	}

	out := make(map[string]decimal.Decimal, len(participants))
	for _, p := range participants {
		out[p] = amounts[p]
	}
	return out, nil
}
