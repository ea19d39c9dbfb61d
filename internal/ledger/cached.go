package ledger

import (
	"context"
	"time"

	"splitledger/internal/cache"
	"splitledger/internal/core"
)

// CachedStore is a read-through decorator over a Store. Users and categories
// barely change and get a longer TTL; group membership can change upstream at
// any time, so groups are kept only briefly.
type CachedStore struct {
	Store

	users      *cache.LRUCache[core.User]
	categories *cache.LRUCache[core.Category]
	groups     *cache.LRUCache[core.GroupWithMembers]
	manager    *cache.Manager
}

func NewCachedStore(inner Store) *CachedStore {
	s := &CachedStore{
		Store:      inner,
		users:      cache.NewLRUCache[core.User](1000, 5*time.Minute),
		categories: cache.NewLRUCache[core.Category](500, 5*time.Minute),
		groups:     cache.NewLRUCache[core.GroupWithMembers](500, 30*time.Second),
		manager:    cache.NewManager(),
	}
	s.manager.Register(s.users)
	s.manager.Register(s.categories)
	s.manager.Register(s.groups)
	s.manager.StartCleanup(time.Minute)
	return s
}

func (s *CachedStore) GetUser(ctx context.Context, id string) (core.User, error) {
	if u, ok := s.users.Get(id); ok {
		return u, nil
	}
	u, err := s.Store.GetUser(ctx, id)
	if err != nil {
		return core.User{}, err
	}
	s.users.Set(id, u)
	return u, nil
}

func (s *CachedStore) GetCategory(ctx context.Context, id string) (core.Category, error) {
	if c, ok := s.categories.Get(id); ok {
		return c, nil
	}
	c, err := s.Store.GetCategory(ctx, id)
	if err != nil {
		return core.Category{}, err
	}
	s.categories.Set(id, c)
	return c, nil
}

func (s *CachedStore) GetGroupWithMembers(ctx context.Context, id string) (core.GroupWithMembers, error) {
	if g, ok := s.groups.Get(id); ok {
		return g, nil
	}
	g, err := s.Store.GetGroupWithMembers(ctx, id)
	if err != nil {
		return core.GroupWithMembers{}, err
	}
	s.groups.Set(id, g)
	return g, nil
}

func (s *CachedStore) Close() error {
	s.manager.Stop()
	return s.Store.Close()
}
