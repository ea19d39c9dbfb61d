package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"splitledger/internal/core"
	"splitledger/internal/ledger"

	_ "github.com/lib/pq"
)

var _ ledger.Store = (*PostgresStore)(nil)

// PostgresStore persists the ledger in postgres. Pair-balance writes take
// row locks (SELECT ... FOR UPDATE) so concurrent expenses against the same
// pair serialize on the database instead of clobbering each other, and the
// unique index on the unordered pair catches the insert/insert race.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunPostgresMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, role FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.FullName, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NotFoundf("User not found")
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, id string) (core.Category, error) {
	var c core.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_id FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Category{}, core.NotFoundf("Category not found")
	}
	if err != nil {
		return core.Category{}, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetGroupWithMembers(ctx context.Context, id string) (core.GroupWithMembers, error) {
	var g core.GroupWithMembers
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, creator_id FROM groups WHERE id = $1`, id,
	).Scan(&g.ID, &g.Name, &g.CreatorID)
	if errors.Is(err, sql.ErrNoRows) {
		return core.GroupWithMembers{}, core.NotFoundf("Group not found")
	}
	if err != nil {
		return core.GroupWithMembers{}, fmt.Errorf("get group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1`, id)
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
// changes in one transaction. Existing pair rows are locked before netting.
func (s *PostgresStore) CreateExpense(ctx context.Context, e core.Expense, shares []core.Contribution) (core.Expense, []core.Split, error) {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.PayerID, e.CreatorID, e.GroupID, e.CategoryID,
		e.Amount.Cents, e.Currency, string(e.SplitType), e.Description, e.CreatedAt)
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
			 VALUES ($1, $2, $3, $4, FALSE, $5)`,
			sp.ID, sp.ExpenseID, sp.UserID, sp.Amount.Cents, e.CreatedAt)
		if err != nil {
			return core.Expense{}, nil, fmt.Errorf("insert split: %w", err)
		}
		splits = append(splits, sp)
	}

	if e.GroupID != nil {
		existing, err := settlementsForUserInGroupTx(ctx, tx, postgresDialect, e.PayerID, *e.GroupID, true)
		if err != nil {
			return core.Expense{}, nil, err
		}
		changes, err := core.NetContributions(existing, *e.GroupID, e.PayerID, nonPayerShares(e.PayerID, shares))
		if err != nil {
			return core.Expense{}, nil, err
		}
		if err := applySettlementChangesTx(ctx, tx, postgresDialect, changes); err != nil {
			return core.Expense{}, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return core.Expense{}, nil, fmt.Errorf("commit tx: %w", err)
	}
	return e, splits, nil
}

func (s *PostgresStore) SettlementsForUserInGroup(ctx context.Context, userID, groupID string) ([]core.Settlement, error) {
	return settlementsForUserInGroupTx(ctx, s.db, postgresDialect, userID, groupID, false)
}

func (s *PostgresStore) AdjustSettlement(ctx context.Context, settlementID, senderID, receiverID string, groupID *string, amount core.Money) (core.SettlementChange, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.SettlementChange{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := settlementByIDTx(ctx, tx, postgresDialect, settlementID)
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
	if err := applySettlementChangesTx(ctx, tx, postgresDialect, []core.SettlementChange{change}); err != nil {
		return core.SettlementChange{}, err
	}
	if err := tx.Commit(); err != nil {
		return core.SettlementChange{}, fmt.Errorf("commit tx: %w", err)
	}
	return change, nil
}

func (s *PostgresStore) SaveActivity(ctx context.Context, a core.Activity) (core.Activity, error) {
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
		 VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.Type, a.GroupID, meta, a.CreatedAt)
	if err != nil {
		return core.Activity{}, fmt.Errorf("insert activity: %w", err)
	}
	return a, nil
}
