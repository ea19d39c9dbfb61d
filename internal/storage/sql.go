package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"splitledger/internal/core"
)

// dialect selects placeholder style, timestamp encoding and row locking for
// the SQL helpers shared by the sqlite and postgres stores.
type dialect int

const (
	sqliteDialect dialect = iota
	postgresDialect
)

// rebind rewrites ? placeholders to $n for postgres. Queries are written in
// the sqlite style and rebound once per call.
func (d dialect) rebind(query string) string {
	if d != postgresDialect {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// timeArg encodes a timestamp for the dialect: unix seconds for sqlite,
// native time for postgres.
func (d dialect) timeArg(t time.Time) any {
	if d == sqliteDialect {
		return t.Unix()
	}
	return t
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanSettlementRow(d dialect, scan func(dest ...any) error) (core.Settlement, error) {
	var row core.Settlement
	if d == sqliteDialect {
		var createdAt, updatedAt int64
		if err := scan(&row.ID, &row.GroupID, &row.CreditorID, &row.DebtorID, &row.Amount.Cents, &createdAt, &updatedAt); err != nil {
			return core.Settlement{}, err
		}
		row.CreatedAt = time.Unix(createdAt, 0).UTC()
		row.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		return row, nil
	}
	if err := scan(&row.ID, &row.GroupID, &row.CreditorID, &row.DebtorID, &row.Amount.Cents, &row.CreatedAt, &row.UpdatedAt); err != nil {
		return core.Settlement{}, err
	}
	return row, nil
}

func scanSettlements(rows *sql.Rows, d dialect) ([]core.Settlement, error) {
	var out []core.Settlement
	for rows.Next() {
		row, err := scanSettlementRow(d, rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}

// settlementsForUserInGroupTx reads every settlement row touching the user
// within the group. With lock set, postgres takes row locks so concurrent
// writers to the same pair serialize for the rest of the transaction.
func settlementsForUserInGroupTx(ctx context.Context, q querier, d dialect, userID, groupID string, lock bool) ([]core.Settlement, error) {
	query := `SELECT id, group_id, creditor_id, debtor_id, amount_cents, created_at, updated_at
		 FROM settlements
		 WHERE group_id = ? AND (creditor_id = ? OR debtor_id = ?)`
	if lock && d == postgresDialect {
		query += " FOR UPDATE"
	}
	rows, err := q.QueryContext(ctx, d.rebind(query), groupID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	defer rows.Close()
	return scanSettlements(rows, d)
}

func settlementByIDTx(ctx context.Context, q querier, d dialect, id string) (core.Settlement, error) {
	query := `SELECT id, group_id, creditor_id, debtor_id, amount_cents, created_at, updated_at
		 FROM settlements WHERE id = ?`
	if d == postgresDialect {
		query += " FOR UPDATE"
	}
	row, err := scanSettlementRow(d, q.QueryRowContext(ctx, d.rebind(query), id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Settlement{}, core.NotFoundf("Settlement not found")
	}
	if err != nil {
		return core.Settlement{}, fmt.Errorf("get settlement: %w", err)
	}
	return row, nil
}

// applySettlementChangesTx materializes netting output inside the caller's
// transaction. A unique-index violation on insert means another transaction
// created the pair row first; that surfaces as a conflict for the caller to
// retry.
func applySettlementChangesTx(ctx context.Context, q querier, d dialect, changes []core.SettlementChange) error {
	now := time.Now().UTC()
	for _, ch := range changes {
		row := ch.Settlement
		switch ch.Op {
		case core.ChangeInsert:
			if row.ID == "" {
				row.ID = uuid.New().String()
			}
			_, err := q.ExecContext(ctx, d.rebind(
				`INSERT INTO settlements (id, group_id, creditor_id, debtor_id, amount_cents, created_at, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`),
				row.ID, row.GroupID, row.CreditorID, row.DebtorID, row.Amount.Cents,
				d.timeArg(now), d.timeArg(now))
			if err != nil {
				if isUniqueViolation(err) {
					return core.Conflict("Settlement already exists for pair")
				}
				return fmt.Errorf("insert settlement: %w", err)
			}
		case core.ChangeUpdate:
			res, err := q.ExecContext(ctx, d.rebind(
				`UPDATE settlements SET creditor_id = ?, debtor_id = ?, amount_cents = ?, updated_at = ? WHERE id = ?`),
				row.CreditorID, row.DebtorID, row.Amount.Cents, d.timeArg(now), row.ID)
			if err != nil {
				return fmt.Errorf("update settlement: %w", err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return core.NotFoundf("Settlement not found")
			}
		case core.ChangeDelete:
			if _, err := q.ExecContext(ctx, d.rebind(`DELETE FROM settlements WHERE id = ?`), row.ID); err != nil {
				return fmt.Errorf("delete settlement: %w", err)
			}
		}
	}
	return nil
}

func nonPayerShares(payerID string, shares []core.Contribution) []core.Contribution {
	out := make([]core.Contribution, 0, len(shares))
	for _, sh := range shares {
		if sh.UserID != payerID {
			out = append(out, sh)
		}
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed")
}
