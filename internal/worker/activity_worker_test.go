package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	"splitledger/internal/ledger/memory"
)

type failingStore struct {
	memory.Store
}

func (f *failingStore) SaveActivity(_ context.Context, _ core.Activity) (core.Activity, error) {
	return core.Activity{}, errors.New("disk full")
}

func TestActivityWorker_HandleActivityMessage(t *testing.T) {
	store := memory.New()
	w := NewActivityWorker(store, Options{})

	groupID := "g1"
	msg := amqp.NewActivityMessage(core.Activity{
		Type:    core.ActivityExpenseAdded,
		GroupID: &groupID,
		Metadata: core.ActivityMetadata{
			Action:       "created",
			ResourceType: "expense",
			ActorID:      "u1",
			ActorName:    "Alice",
		},
		CreatedAt: time.Now().UTC(),
	})

	if err := w.HandleActivityMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleActivityMessage() error = %v", err)
	}

	activities := store.Activities()
	if len(activities) != 1 {
		t.Fatalf("len(activities) = %d, want 1", len(activities))
	}
	if activities[0].Type != core.ActivityExpenseAdded {
		t.Errorf("Type = %v, want %v", activities[0].Type, core.ActivityExpenseAdded)
	}
	if activities[0].ID == "" {
		t.Error("saved activity should get an id")
	}
}

func TestActivityWorker_HandleActivityMessage_missingType(t *testing.T) {
	w := NewActivityWorker(memory.New(), Options{})
	if err := w.HandleActivityMessage(context.Background(), &amqp.ActivityMessage{}); err == nil {
		t.Error("HandleActivityMessage() error = nil, want error for missing type")
	}
}

func TestActivityWorker_HandleActivityMessage_storeFailure(t *testing.T) {
	w := NewActivityWorker(&failingStore{}, Options{})
	msg := amqp.NewActivityMessage(core.Activity{Type: core.ActivitySettlementUpdated})
	if err := w.HandleActivityMessage(context.Background(), msg); err == nil {
		t.Error("HandleActivityMessage() error = nil, want error so the delivery is requeued")
	}
}
