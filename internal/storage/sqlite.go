// Package storage provides the SQL-backed ledger stores and their
// migrations. Two dialects are supported: sqlite for single-node
// deployments and postgres for anything with concurrent writers.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/ledger"

	_ "modernc.org/sqlite"
)

var _ ledger.Store = (*SQLiteStore)(nil)

// SQLiteStore persists the ledger in a single sqlite file. The pool is
// capped at one connection and every write transaction starts in immediate
// mode, so concurrent writers queue on the database lock instead of failing
// with SQLITE_BUSY mid-transaction.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	if err := RunSQLiteMigrations(dbPath); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, role FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.FullName, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFoundf("User not found")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM categories WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("Category not found")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetGroupWithMembers(ctx context.Context, id string) (core.GroupWithMembers, error) {
	var g core.GroupWithMembers
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id FROM groups WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.CreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GroupWithMembers{}, core.NotFoundf("Group not found")
	}
	if err != nil {
		return core.GroupWithMembers{}, fmt.Errorf("get group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ?`, id)
	if err != nil {
		return core.GroupWithMembers{}, fmt.Errorf("get group members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var memberID string
		if err := rows.Scan(&memberID); err != nil {
			return core.GroupWithMembers{}, fmt.Errorf("scan group member: %w", err)
		}
		g.MemberIDs = append(g.MemberIDs, memberID)
	}
	if err := rows.Err(); err != nil {
		return core.GroupWithMembers{}, fmt.Errorf("iterate group members: %w", err)
	}
	return g, nil
}

// CreateExpense writes the expense, its splits and the implied settlement
// changes in one immediate transaction.
func (s *SQLiteStore) CreateExpense(ctx context.Context, e core.Expense, shares []core.Contribution) (core.Expense, []core.Split, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, payer_id, creator_id, group_id, category_id, amount_cents, currency, split_type, description, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.PayerID, e.CreatorID, e.GroupID, e.CategoryID,
		e.Amount.Cents, e.Currency, string(e.SplitType), e.Description, e.CreatedAt.Unix())
	if err != nil {
		return core.Expense{}, nil, fmt.Errorf("insert expense: %w", err)
	}

	splits := make([]core.Split, 0, len(shares))
	for _, share := range shares {
		sp := core.Split{
			ID:        uuid.New().String(),
			ExpenseID: e.ID,
			UserID:    share.UserID,
			Amount:    share.Amount,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO splits (id, expense_id, user_id, amount_cents, is_settled, created_at)
			 VALUES (?, ?, ?, ?, 0, ?)`,
			sp.ID, sp.ExpenseID, sp.UserID, sp.Amount.Cents, e.CreatedAt.Unix())
		if err != nil {
			return core.Expense{}, nil, fmt.Errorf("insert split: %w", err)
		}
		splits = append(splits, sp)
	}

	if e.GroupID != nil {
		existing, err := settlementsForUserInGroupTx(ctx, tx, sqliteDialect, e.PayerID, *e.GroupID, true)
		if err != nil {
			return core.Expense{}, nil, err
		}
		changes, err := core.NetContributions(existing, *e.GroupID, e.PayerID, nonPayerShares(e.PayerID, shares))
		if err != nil {
			return core.Expense{}, nil, err
		}
		if err := applySettlementChangesTx(ctx, tx, sqliteDialect, changes); err != nil {
			return core.Expense{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return e, splits, nil
}

func (s *SQLiteStore) SettlementsForUserInGroup(ctx context.Context, userID, groupID string) ([]core.Settlement, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, group_id, creditor_id, debtor_id, amount_cents, created_at, updated_at
		 FROM settlements
		 WHERE group_id = ? AND (creditor_id = ? OR debtor_id = ?)`,
		groupID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()
	return scanSettlements(rows, sqliteDialect)
}

func (s *SQLiteStore) AdjustSettlement(ctx context.Context, settlementID, senderID, receiverID string, groupID *string, amount core.Money) (core.SettlementChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SettlementChange{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := settlementByIDTx(ctx, tx, sqliteDialect, settlementID)
	if err != nil {
		return core.SettlementChange{}, err
	}
	if !row.SamePair(senderID, receiverID) || (groupID != nil && row.GroupID != *groupID) {
		return core.SettlementChange{}, core.NotFoundf("Settlement not found")
	}

	change, err := core.NetContribution(&row, row.GroupID, senderID, receiverID, amount)
	if err != nil {
		return core.SettlementChange{}, err
	}
	if err := applySettlementChangesTx(ctx, tx, sqliteDialect, []core.SettlementChange{change}); err != nil {
		return core.SettlementChange{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.SettlementChange{}, fmt.Errorf("commit tx: %w", err)
	}
	return change, nil
}

func (s *SQLiteStore) SaveActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return core.Activity{}, fmt.Errorf("marshal activity metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO activities (id, type, group_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Type, a.GroupID, string(meta), a.CreatedAt.Unix())
	if err != nil {
		return core.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}
