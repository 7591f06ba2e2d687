// Package split computes per-member shares for a generated expense.
//
// All four split methods produce shares in integer cents whose sum matches
// the expense amount within core.CentTolerance. Rounding drift is corrected
// by distributeRemainder so every method shares one arithmetic path.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"coown/internal/core"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyConfig means the template's method requires configured shares
	// and none were provided.
	ErrEmptyConfig = errors.New("missing split configuration")

	// ErrPercentSum means the configured percentages do not sum to 100.
	ErrPercentSum = errors.New("percentages do not sum to 100")

	// ErrCustomSum means the configured amounts do not sum to the template amount.
	ErrCustomSum = errors.New("custom amounts do not sum to the template amount")

	// ErrUnknownMethod means the template carries a split method this package
	// does not implement.
	ErrUnknownMethod = errors.New("unsupported split method")

	// ErrInvalidShare means a configured percentage or custom amount is zero
	// or negative.
	ErrInvalidShare = errors.New("configured share must be positive")

	// ErrDrift means the computed shares failed the final sum check. This is
	// a defect in the computation, not bad template data.
	ErrDrift = errors.New("computed splits do not sum to the expense amount")
)

var percentTolerance = decimal.New(1, -2) // 0.01

// Compute returns the per-member splits for one materialization of tpl.
// members is the property's current member set; it is only consulted by the
// equal method but callers fetch it unconditionally.
func Compute(ctx context.Context, tpl core.RecurringTemplate, members []string) ([]core.Split, error) {
	var (
		splits []core.Split
		err    error
	)

	switch tpl.Method {
	case core.SplitPayerOnly:
		splits = payerOnly(tpl)
	case core.SplitEqual:
		splits = equal(ctx, tpl, members)
	case core.SplitPercentage:
		splits, err = percentage(tpl)
	case core.SplitCustom:
		splits, err = custom(tpl)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMethod, tpl.Method)
	}
	if err != nil {
		return nil, err
	}

	var sum int64
	for _, s := range splits {
		sum += s.Amount.Cents
	}
	if diff := sum - tpl.Amount.Cents; diff > core.CentTolerance || diff < -core.CentTolerance {
		return nil, fmt.Errorf("%w: got %d cents, want %d", ErrDrift, sum, tpl.Amount.Cents)
	}

	return splits, nil
}

func payerOnly(tpl core.RecurringTemplate) []core.Split {
	return []core.Split{{
		UserID: tpl.PayerID,
		Amount: tpl.Amount,
		Status: core.StatusPaid,
	}}
}

// equal divides the amount evenly across the current member set. Shares are
// truncated to whole cents; the last member absorbs the remainder. When the
// property has no members the full amount falls back to the payer.
func equal(ctx context.Context, tpl core.RecurringTemplate, members []string) []core.Split {
	if len(members) == 0 {
		slog.WarnContext(ctx, "Property has no members, assigning full amount to payer",
			"template_id", tpl.ID,
			"property_id", tpl.PropertyID)
		return payerOnly(tpl)
	}

	base := tpl.Amount.Cents / int64(len(members))
	shares := make([]int64, len(members))
	for i := range shares {
		shares[i] = base
	}
	distributeRemainder(shares, tpl.Amount.Cents, len(shares)-1)

	splits := make([]core.Split, len(members))
	for i, userID := range members {
		splits[i] = core.Split{
			UserID: userID,
			Amount: core.Money{Cents: shares[i]},
			Status: status(userID, tpl.PayerID),
		}
	}
	return splits
}

// percentage assigns each configured entry amount*percent/100, rounded
// half-up to cents, then corrects rounding drift on the largest share.
func percentage(tpl core.RecurringTemplate) ([]core.Split, error) {
	entries := tpl.Config.Percents
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: percentage method without percents", ErrEmptyConfig)
	}

	total := decimal.Zero
	for _, e := range entries {
		// A sum check alone would accept pairs like 150/-50.
		if !e.Percent.IsPositive() {
			return nil, fmt.Errorf("%w: %s%% for %s", ErrInvalidShare, e.Percent, e.UserID)
		}
		total = total.Add(e.Percent)
	}
	if total.Sub(decimal.NewFromInt(100)).Abs().GreaterThan(percentTolerance) {
		return nil, fmt.Errorf("%w: configured sum is %s", ErrPercentSum, total)
	}

	amount := decimal.NewFromInt(tpl.Amount.Cents)
	hundred := decimal.NewFromInt(100)
	shares := make([]int64, len(entries))
	for i, e := range entries {
		shares[i] = amount.Mul(e.Percent).Div(hundred).Round(0).IntPart()
	}
	distributeRemainder(shares, tpl.Amount.Cents, largestShareIndex(shares))

	splits := make([]core.Split, len(entries))
	for i, e := range entries {
		splits[i] = core.Split{
			UserID: e.UserID,
			Amount: core.Money{Cents: shares[i]},
			Status: status(e.UserID, tpl.PayerID),
		}
	}
	return splits, nil
}

// custom uses the configured amounts verbatim. No redistribution happens;
// the sum is validated against the template amount instead.
func custom(tpl core.RecurringTemplate) ([]core.Split, error) {
	entries := tpl.Config.Customs
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: custom method without amounts", ErrEmptyConfig)
	}

	var sum int64
	for _, e := range entries {
		if e.AmountCents <= 0 {
			return nil, fmt.Errorf("%w: %d cents for %s", ErrInvalidShare, e.AmountCents, e.UserID)
		}
		sum += e.AmountCents
	}
	if diff := sum - tpl.Amount.Cents; diff > core.CentTolerance || diff < -core.CentTolerance {
		return nil, fmt.Errorf("%w: configured sum is %d cents, template amount is %d",
			ErrCustomSum, sum, tpl.Amount.Cents)
	}

	splits := make([]core.Split, len(entries))
	for i, e := range entries {
		splits[i] = core.Split{
			UserID: e.UserID,
			Amount: core.Money{Cents: e.AmountCents},
			Status: status(e.UserID, tpl.PayerID),
		}
	}
	return splits, nil
}

func status(userID, payerID string) core.SplitStatus {
	if userID == payerID {
		return core.StatusPaid
	}
	return core.StatusOwed
}

// distributeRemainder adds target minus the current sum of shares to
// shares[at], making the shares sum exactly to target. The equal method
// points it at the last-enumerated member; percentage points it at the
// largest share.
func distributeRemainder(shares []int64, target int64, at int) {
	var sum int64
	for _, s := range shares {
		sum += s
	}
	shares[at] += target - sum
}

// largestShareIndex returns the index of the largest share, first occurrence
// winning ties.
func largestShareIndex(shares []int64) int {
	idx := 0
	for i, s := range shares {
		if s > shares[idx] {
			idx = i
		}
	}
	return idx
}
