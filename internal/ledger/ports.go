// Package ledger defines the storage ports consumed by the service layer.
package ledger

import (
	"context"

	"splitledger/internal/core"
)

// Ports for outbound adapters. Implementations must return errors carrying a
// core.ErrorKind for conditions the caller maps to responses (missing rows in
// particular).
type (
	// UserReader resolves user accounts by id.
	UserReader interface {
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	// CategoryReader resolves expense categories by id.
	CategoryReader interface {
		GetCategory(ctx context.Context, id string) (core.Category, error)
	}

	// GroupReader resolves a group together with its member ids.
	GroupReader interface {
		GetGroupWithMembers(ctx context.Context, id string) (core.GroupWithMembers, error)
	}

	// ExpenseWriter persists an expense with its complete split set and the
	// settlement changes the splits imply, atomically. The shares slice is
	// the calculator's output and always includes the payer's own share.
	//
	// The whole write happens in one transaction: the expense row, every
	// split row, and the netted settlement upserts for each non-payer share
	// when the expense belongs to a group. Any failure rolls back all of it.
	// Access to each touched (group, pair) balance is serialized by the
	// implementation for the duration of the transaction.
	ExpenseWriter interface {
		CreateExpense(ctx context.Context, e core.Expense, shares []core.Contribution) (core.Expense, []core.Split, error)
	}

	// SettlementStore reads pair balances and applies manual adjustments.
	SettlementStore interface {
		// SettlementsForUserInGroup returns every settlement within the
		// group that has the user on either side.
		SettlementsForUserInGroup(ctx context.Context, userID, groupID string) ([]core.Settlement, error)

		// AdjustSettlement applies a repayment of amount from sender to
		// receiver against the settlement identified by id and the unordered
		// pair. Returns the resulting change (update or delete). Fails with
		// a not-found error when no row matches.
		AdjustSettlement(ctx context.Context, settlementID, senderID, receiverID string, groupID *string, amount core.Money) (core.SettlementChange, error)
	}

	// ActivityStore persists activity-feed events.
	ActivityStore interface {
		SaveActivity(ctx context.Context, a core.Activity) (core.Activity, error)
	}
)

// Store is the full ledger surface wired into the services.
type Store interface {
	UserReader
	CategoryReader
	GroupReader
	ExpenseWriter
	SettlementStore
	ActivityStore

	// Close releases any resources held by the store.
	Close() error
}
