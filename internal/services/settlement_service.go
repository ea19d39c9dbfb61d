package services

import (
	"context"
	"fmt"
	"log/slog"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/ledger"
)

// AdjustSettlementInput is a manual repayment between two users applied
// against an existing settlement row.
type AdjustSettlementInput struct {
	SenderID   string
	ReceiverID string
	Amount     core.Money
	GroupID    *string
}

// SettlementService applies manual settlement adjustments and serves the
// settlement read path.
type SettlementService struct {
	store     ledger.Store
	publisher ActivityPublisher
}

func NewSettlementService(store ledger.Store, publisher ActivityPublisher) *SettlementService {
	return &SettlementService{
		store:     store,
		publisher: publisher,
	}
}

// AdjustSettlement records a payment of in.Amount from sender to receiver.
// The row is matched by id and unordered pair; paying down the full balance
// deletes it, overpaying flips the direction.
func (s *SettlementService) AdjustSettlement(ctx context.Context, actor core.User, settlementID string, in AdjustSettlementInput) (core.SettlementChange, error) {
	if in.SenderID == "" || in.ReceiverID == "" {
		return core.SettlementChange{}, core.Invalidf("Missing senderId or receiverId")
	}
	if in.SenderID == in.ReceiverID {
		return core.SettlementChange{}, core.Invalidf("Sender and receiver must differ")
	}
	if err := in.Amount.Validate(); err != nil {
		return core.SettlementChange{}, core.Invalidf("Amount must be greater than zero")
	}

	change, err := s.store.AdjustSettlement(ctx, settlementID, in.SenderID, in.ReceiverID, in.GroupID, in.Amount)
	if err != nil {
		return core.SettlementChange{}, err
	}

	actorName := actor.FullName
	if actorName == "" {
		if u, err := s.store.GetUser(ctx, actor.ID); err == nil {
			actorName = u.FullName
		}
	}

	groupID := change.Settlement.GroupID
	s.publishActivity(ctx, core.Activity{
		Type:    core.ActivitySettlementUpdated,
		GroupID: &groupID,
		Metadata: core.ActivityMetadata{
			Action:       "updated",
			ResourceType: "settlement",
			ActorID:      actor.ID,
			TargetID:     settlementID,
			ActorName:    actorName,
			Message:      fmt.Sprintf("%s recorded a payment of %s", actorName, in.Amount),
		},
	})

	return change, nil
}

// SettlementsForUserInGroup lists the settlements within a group that have
// the user on either side.
func (s *SettlementService) SettlementsForUserInGroup(ctx context.Context, userID, groupID string) ([]core.Settlement, error) {
	if _, err := s.store.GetGroupWithMembers(ctx, groupID); err != nil {
		return nil, err
	}
	return s.store.SettlementsForUserInGroup(ctx, userID, groupID)
}

func (s *SettlementService) publishActivity(ctx context.Context, a core.Activity) {
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
