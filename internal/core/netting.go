package core

// ChangeOp says what the ledger must do with a settlement row after netting.
type ChangeOp int

const (
	ChangeInsert ChangeOp = iota + 1
	ChangeUpdate
	ChangeDelete
)

func (op ChangeOp) String() string {
	switch op {
	case ChangeInsert:
		return "insert"
	case ChangeUpdate:
		return "update"
	case ChangeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// SettlementChange is the outcome of netting one contribution into a pair's
// balance. For inserts the settlement carries no ID yet; for updates and
// deletes it keeps the existing row's ID.
type SettlementChange struct {
	Op         ChangeOp
	Settlement Settlement
}

// NetContribution folds a single contribution into the current pairwise
// balance between payerID and otherID within a group.
//
// The balance is modeled as a signed value from the payer's side: positive
// means the other user owes the payer. An existing row contributes +amount
// when the payer is its creditor and -amount when the payer is its debtor;
// the new share is added on top. The stored row is then materialized from the
// result: sign picks the creditor, magnitude is the amount, and an exact zero
// deletes the row so the amount-always-positive invariant holds.
//
// A manual repayment is the same operation: the sender fronting `share` for
// the receiver shifts the balance identically.
func NetContribution(existing *Settlement, groupID, payerID, otherID string, share Money) (SettlementChange, error) {
	if err := share.Validate(); err != nil {
		return SettlementChange{}, err
	}
	if payerID == otherID {
		return SettlementChange{}, Invalidf("Cannot settle a user against themselves")
	}

	if existing == nil {
		return SettlementChange{
			Op: ChangeInsert,
			Settlement: Settlement{
				GroupID:    groupID,
				CreditorID: payerID,
				DebtorID:   otherID,
				Amount:     share,
			},
		}, nil
	}

	if !existing.SamePair(payerID, otherID) {
		return SettlementChange{}, Invalidf("Settlement does not belong to this user pair")
	}

	balance := existing.Amount.Cents
	if existing.CreditorID != payerID {
		balance = -balance
	}
	balance += share.Cents

	out := *existing
	switch {
	case balance == 0:
		out.Amount = Money{}
		return SettlementChange{Op: ChangeDelete, Settlement: out}, nil
	case balance > 0:
		out.CreditorID = payerID
		out.DebtorID = otherID
		out.Amount = Money{Cents: balance}
	default:
		out.CreditorID = otherID
		out.DebtorID = payerID
		out.Amount = Money{Cents: -balance}
	}
	return SettlementChange{Op: ChangeUpdate, Settlement: out}, nil
}

// NetContributions nets a batch of non-payer contributions from one expense
// against the existing settlements of the group. Each contribution touches a
// distinct pair, so the result is order-independent.
//
// The existing slice is the batched lookup of the payer's settlements within
// the group; rows for unrelated pairs are ignored.
func NetContributions(existing []Settlement, groupID, payerID string, contribs []Contribution) ([]SettlementChange, error) {
	changes := make([]SettlementChange, 0, len(contribs))
	for _, c := range contribs {
		if c.UserID == payerID {
			// The payer's remainder share never creates a settlement.
			continue
		}
		var current *Settlement
		for i := range existing {
			if existing[i].GroupID == groupID && existing[i].SamePair(payerID, c.UserID) {
				current = &existing[i]
				break
			}
		}
		change, err := NetContribution(current, groupID, payerID, c.UserID, c.Amount)
		if err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, nil
}
