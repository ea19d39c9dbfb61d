// Package memory provides an in-memory ledger store. It backs local
// development and the service/handler tests; every logical transaction runs
// behind one mutex, which trivially serializes concurrent writers touching
// the same pair balance.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/ledger"
)

// Ensure Store implements the full ledger surface.
var _ ledger.Store = (*Store)(nil)

type Store struct {
	mu          sync.Mutex
	users       map[string]core.User
	categories  map[string]core.Category
	groups      map[string]core.GroupWithMembers
	expenses    map[string]core.Expense
	splits      map[string][]core.Split // keyed by expense id
	settlements map[string]core.Settlement
	activities  []core.Activity
}

func New() *Store {
	return &Store{
		users:       make(map[string]core.User),
		categories:  make(map[string]core.Category),
		groups:      make(map[string]core.GroupWithMembers),
		expenses:    make(map[string]core.Expense),
		splits:      make(map[string][]core.Split),
		settlements: make(map[string]core.Settlement),
	}
}

// SeedUser registers a user, assigning an id when absent.
func (s *Store) SeedUser(u core.User) core.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	if u.Role == "" {
		u.Role = core.RoleUser
	}
	s.users[u.ID] = u
	return u
}

// SeedCategory registers a category, assigning an id when absent.
func (s *Store) SeedCategory(c core.Category) core.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	s.categories[c.ID] = c
	return c
}

// SeedGroup registers a group with its members, assigning an id when absent.
func (s *Store) SeedGroup(g core.GroupWithMembers) core.GroupWithMembers {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.ID == "" {
		g.ID = uuid.New().String()
	}
	s.groups[g.ID] = g
	return g
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, core.NotFoundf("User not found")
	}
	return u, nil
}

func (s *Store) GetCategory(_ context.Context, id string) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok {
		return core.Category{}, core.NotFoundf("Category not found")
	}
	return c, nil
}

func (s *Store) GetGroupWithMembers(_ context.Context, id string) (core.GroupWithMembers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		return core.GroupWithMembers{}, core.NotFoundf("Group not found")
	}
	out := g
	out.MemberIDs = append([]string(nil), g.MemberIDs...)
	return out, nil
}

// CreateExpense implements ledger.ExpenseWriter. The mutex spans the whole
// read-net-write sequence, so the store behaves like a serializable
// transaction.
func (s *Store) CreateExpense(_ context.Context, e core.Expense, shares []core.Contribution) (core.Expense, []core.Split, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	splits := make([]core.Split, 0, len(shares))
	for _, share := range shares {
		splits = append(splits, core.Split{
			ID:        uuid.New().String(),
			ExpenseID: e.ID,
			UserID:    share.UserID,
			Amount:    share.Amount,
		})
	}

	if e.GroupID != nil {
		existing := s.settlementsForUserInGroupLocked(e.PayerID, *e.GroupID)
		changes, err := core.NetContributions(existing, *e.GroupID, e.PayerID, nonPayerShares(e.PayerID, shares))
		if err != nil {
			return core.Expense{}, nil, err
		}
		now := time.Now().UTC()
		for _, ch := range changes {
			row := ch.Settlement
			switch ch.Op {
			case core.ChangeInsert:
				row.ID = uuid.New().String()
				row.CreatedAt = now
				row.UpdatedAt = now
				s.settlements[row.ID] = row
			case core.ChangeUpdate:
				row.UpdatedAt = now
				s.settlements[row.ID] = row
			case core.ChangeDelete:
				delete(s.settlements, row.ID)
			}
		}
	}

	s.expenses[e.ID] = e
	s.splits[e.ID] = splits
	return e, splits, nil
}

func (s *Store) SettlementsForUserInGroup(_ context.Context, userID, groupID string) ([]core.Settlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settlementsForUserInGroupLocked(userID, groupID), nil
}

func (s *Store) settlementsForUserInGroupLocked(userID, groupID string) []core.Settlement {
	var out []core.Settlement
	for _, row := range s.settlements {
		if row.GroupID == groupID && (row.CreditorID == userID || row.DebtorID == userID) {
			out = append(out, row)
		}
	}
	return out
}

func (s *Store) AdjustSettlement(_ context.Context, settlementID, senderID, receiverID string, groupID *string, amount core.Money) (core.SettlementChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.settlements[settlementID]
	if !ok || !row.SamePair(senderID, receiverID) {
		return core.SettlementChange{}, core.NotFoundf("Settlement not found")
	}
	if groupID != nil && row.GroupID != *groupID {
		return core.SettlementChange{}, core.NotFoundf("Settlement not found")
	}

	change, err := core.NetContribution(&row, row.GroupID, senderID, receiverID, amount)
	if err != nil {
		return core.SettlementChange{}, err
	}
	switch change.Op {
	case core.ChangeUpdate:
		change.Settlement.UpdatedAt = time.Now().UTC()
		s.settlements[change.Settlement.ID] = change.Settlement
	case core.ChangeDelete:
		delete(s.settlements, change.Settlement.ID)
	}
	return change, nil
}

func (s *Store) SaveActivity(_ context.Context, a core.Activity) (core.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.activities = append(s.activities, a)
	return a, nil
}

// Activities returns a copy of the stored activity events, oldest first.
func (s *Store) Activities() []core.Activity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Activity(nil), s.activities...)
}

// Settlements returns a copy of every settlement row. Test helper.
func (s *Store) Settlements() []core.Settlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Settlement, 0, len(s.settlements))
	for _, row := range s.settlements {
		out = append(out, row)
	}
	return out
}

// SplitsForExpense returns the splits stored for an expense. Test helper.
func (s *Store) SplitsForExpense(expenseID string) []core.Split {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Split(nil), s.splits[expenseID]...)
}

func (s *Store) Close() error { return nil }

func nonPayerShares(payerID string, shares []core.Contribution) []core.Contribution {
	out := make([]core.Contribution, 0, len(shares))
	for _, sh := range shares {
		if sh.UserID != payerID {
			out = append(out, sh)
		}
	}
	return out
}
