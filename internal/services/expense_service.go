// Package services orchestrates the ledger operations: validation,
// store transactions and the best-effort activity side channel.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/ledger"
)

// ActivityPublisher is the async side channel for activity events. A nil
// publisher disables the feed; publish errors are logged and swallowed.
type ActivityPublisher interface {
	PublishActivity(ctx context.Context, msg *amqp.ActivityMessage) error
}

// ShareInput is one declared participant share.
type ShareInput struct {
	UserID string
	Amount core.Money
}

// CreateExpenseInput carries the request payload after JSON decoding.
// PayerID defaults to the acting user for non-admin callers.
type CreateExpenseInput struct {
	Amount      core.Money
	Currency    string
	SplitType   core.SplitType
	GroupID     *string
	PayerID     string
	CategoryID  *string
	Description string
	Splits      []ShareInput
}

// CreateExpenseResult is the committed expense with its splits.
type CreateExpenseResult struct {
	Expense core.Expense
	Splits  []core.Split
}

// ExpenseService validates and persists expenses, then fans out activity
// events.
type ExpenseService struct {
	store     ledger.Store
	publisher ActivityPublisher
}

func NewExpenseService(store ledger.Store, publisher ActivityPublisher) *ExpenseService {
	return &ExpenseService{
		store:     store,
		publisher: publisher,
	}
}

// CreateExpense runs the ordered validation checks, computes the complete
// split set and commits everything in one store transaction. Validation is
// side-effect free: nothing is written until every check has passed.
func (s *ExpenseService) CreateExpense(ctx context.Context, actor core.User, in CreateExpenseInput) (CreateExpenseResult, error) {
	// Normalize before any check: the default split type must be in place
	// when the equal-share rule runs.
	if in.SplitType == "" {
		in.SplitType = core.SplitEven
	}
	in.Currency = core.NormalizeCurrency(in.Currency)

	payerID := in.PayerID
	if payerID == "" {
		if actor.Role == core.RoleAdmin {
			return CreateExpenseResult{}, core.Invalidf("Missing payerId")
		}
		payerID = actor.ID
	}

	payer, err := s.store.GetUser(ctx, payerID)
	if err != nil {
		return CreateExpenseResult{}, err
	}

	if in.CategoryID != nil {
		category, err := s.store.GetCategory(ctx, *in.CategoryID)
		if err != nil {
			return CreateExpenseResult{}, err
		}
		if !category.UsableBy(payer.ID) {
			return CreateExpenseResult{}, core.Invalidf("Category does not belongs to user")
		}
	}

	if len(in.Splits) > 0 && in.GroupID == nil {
		return CreateExpenseResult{}, core.Invalidf("Splits require a groupId")
	}

	if in.GroupID != nil {
		group, err := s.store.GetGroupWithMembers(ctx, *in.GroupID)
		if err != nil {
			return CreateExpenseResult{}, err
		}
		if !group.HasMember(payer.ID) {
			return CreateExpenseResult{}, core.Invalidf("User %s is not a member of group %s", payer.ID, group.ID)
		}
		for _, share := range in.Splits {
			if !group.HasMember(share.UserID) {
				return CreateExpenseResult{}, core.Invalidf("User %s is not a member of group %s", share.UserID, group.ID)
			}
		}
		if in.SplitType == core.SplitEven {
			expected := core.EvenShare(in.Amount, len(in.Splits))
			for _, share := range in.Splits {
				if share.Amount.Cents != expected.Cents {
					return CreateExpenseResult{}, core.Invalidf("Split amount is unequal for user %s", share.UserID)
				}
			}
		}
	}

	declared := make([]core.Contribution, 0, len(in.Splits))
	for _, share := range in.Splits {
		declared = append(declared, core.Contribution{UserID: share.UserID, Amount: share.Amount})
	}
	shares, err := core.ComputeSplits(payer.ID, in.Amount, declared)
	if err != nil {
		return CreateExpenseResult{}, err
	}

	expense := core.Expense{
		PayerID:     payer.ID,
		CreatorID:   actor.ID,
		GroupID:     in.GroupID,
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		SplitType:   in.SplitType,
		Description: in.Description,
	}
	if err := expense.Validate(); err != nil {
		return CreateExpenseResult{}, core.Invalidf("%s", err)
	}

	created, splits, err := s.store.CreateExpense(ctx, expense, shares)
	if err != nil {
		return CreateExpenseResult{}, err
	}

	s.publishActivity(ctx, core.Activity{
		Type:    core.ActivityExpenseAdded,
		GroupID: created.GroupID,
		Metadata: core.ActivityMetadata{
			Action:       "created",
			ResourceType: "expense",
			ActorID:      actor.ID,
			TargetID:     created.ID,
			ActorName:    payer.FullName,
			Message:      fmt.Sprintf("%s added an expense of %s", payer.FullName, created.Amount),
		},
	})

	return CreateExpenseResult{Expense: created, Splits: splits}, nil
}

// publishActivity fires the event after a successful commit. Failures are
// logged only; the caller's request already succeeded.
func (s *ExpenseService) publishActivity(ctx context.Context, a core.Activity) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Activity publisher not configured, skipping event", "type", a.Type)
		return
	}
	if err := s.publisher.PublishActivity(ctx, amqp.NewActivityMessage(a)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish activity event",
			"type", a.Type,
			"error", err)
	}
}
