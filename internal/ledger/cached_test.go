package ledger_test

import (
	"context"
	"sync/atomic"
	"testing"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
	"splitledger/internal/ledger/memory"
)

type countingStore struct {
	*memory.Store
	userLookups int64
}

func (s *countingStore) GetUser(ctx context.Context, id string) (core.User, error) {
	atomic.AddInt64(&s.userLookups, 1)
	return s.Store.GetUser(ctx, id)
}

func TestCachedStore_GetUser_hitsCache(t *testing.T) {
	inner := &countingStore{Store: memory.New()}
	u := inner.SeedUser(core.User{FullName: "Alice"})

	cached := ledger.NewCachedStore(inner)
	defer cached.Close()

	for i := 0; i < 3; i++ {
		got, err := cached.GetUser(context.Background(), u.ID)
		if err != nil {
			t.Fatalf("GetUser() error = %v", err)
		}
		if got.FullName != "Alice" {
			t.Errorf("FullName = %v, want Alice", got.FullName)
		}
	}

	if n := atomic.LoadInt64(&inner.userLookups); n != 1 {
		t.Errorf("inner lookups = %d, want 1 (subsequent reads served from cache)", n)
	}
}

func TestCachedStore_GetUser_missNotCached(t *testing.T) {
	inner := &countingStore{Store: memory.New()}
	cached := ledger.NewCachedStore(inner)
	defer cached.Close()

	for i := 0; i < 2; i++ {
		if _, err := cached.GetUser(context.Background(), "nope"); core.KindOf(err) != core.KindNotFound {
			t.Fatalf("error kind = %v, want not-found", core.KindOf(err))
		}
	}
	if n := atomic.LoadInt64(&inner.userLookups); n != 2 {
		t.Errorf("inner lookups = %d, want 2 (misses are not cached)", n)
	}
}
