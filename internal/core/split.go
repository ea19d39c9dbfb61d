package core

// Contribution is one participant's owed share of an expense.
type Contribution struct {
	UserID string
	Amount Money
}

// ComputeSplits turns the declared per-participant shares into the complete
// split set for an expense. The payer's own share is the remainder
// `amount - Σ declared`, synthesized explicitly so conservation
// (Σ splits == amount) holds by construction.
//
// With no declared shares the expense is standalone: a single split for the
// payer covering the full amount, and no settlement activity results.
// Deterministic, no I/O.
func ComputeSplits(payerID string, amount Money, declared []Contribution) ([]Contribution, error) {
	if err := amount.Validate(); err != nil {
		return nil, err
	}
	if payerID == "" {
		return nil, Invalidf("Missing payerId")
	}

	if len(declared) == 0 {
		return []Contribution{{UserID: payerID, Amount: amount}}, nil
	}

	seen := make(map[string]struct{}, len(declared))
	var total Money
	for _, c := range declared {
		if c.UserID == "" {
			return nil, Invalidf("Split is missing a user id")
		}
		if c.UserID == payerID {
			return nil, Invalidf("Payer share is implicit and must not be declared")
		}
		if _, dup := seen[c.UserID]; dup {
			return nil, Invalidf("Duplicate split for user %s", c.UserID)
		}
		seen[c.UserID] = struct{}{}
		if err := c.Amount.Validate(); err != nil {
			return nil, Invalidf("Invalid split amount for user %s", c.UserID)
		}
		total = total.Add(c.Amount)
	}
	if total.Cents > amount.Cents {
		return nil, Invalidf("Split total is greater than amount paid")
	}

	splits := make([]Contribution, 0, len(declared)+1)
	splits = append(splits, declared...)
	// Remainder share; may be zero cents when the declared shares cover the
	// whole amount.
	splits = append(splits, Contribution{UserID: payerID, Amount: amount.Sub(total)})
	return splits, nil
}

// EvenShare returns the share each participant owes under an even split with
// n non-payer participants. The "+1" accounts for the payer sharing equally;
// the integer-division remainder stays with the payer's implicit share.
func EvenShare(amount Money, participants int) Money {
	share, _ := amount.DivideBy(participants + 1)
	return share
}
