package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"

	"splitledger/internal/core"
)

func TestDialect_Rebind(t *testing.T) {
	tests := []struct {
		name    string
		dialect dialect
		query   string
		want    string
	}{
		{
			name:    "sqlite keeps question marks",
			dialect: sqliteDialect,
			query:   "SELECT * FROM settlements WHERE id = ? AND group_id = ?",
			want:    "SELECT * FROM settlements WHERE id = ? AND group_id = ?",
		},
		{
			name:    "postgres numbers placeholders",
			dialect: postgresDialect,
			query:   "SELECT * FROM settlements WHERE id = ? AND group_id = ?",
			want:    "SELECT * FROM settlements WHERE id = $1 AND group_id = $2",
		},
		{
			name:    "postgres with no placeholders",
			dialect: postgresDialect,
			query:   "DELETE FROM settlements",
			want:    "DELETE FROM settlements",
		},
		{
			name:    "postgres many placeholders",
			dialect: postgresDialect,
			query:   "INSERT INTO settlements VALUES (?, ?, ?, ?, ?, ?, ?)",
			want:    "INSERT INTO settlements VALUES ($1, $2, $3, $4, $5, $6, $7)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.rebind(tt.query); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDialect_TimeArg(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	if got, ok := sqliteDialect.timeArg(at).(int64); !ok || got != at.Unix() {
		t.Errorf("sqlite timeArg = %v, want unix %d", sqliteDialect.timeArg(at), at.Unix())
	}
	if got, ok := postgresDialect.timeArg(at).(time.Time); !ok || !got.Equal(at) {
		t.Errorf("postgres timeArg = %v, want %v", postgresDialect.timeArg(at), at)
	}
}

func TestScanSettlementRow(t *testing.T) {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("sqlite decodes unix seconds", func(t *testing.T) {
		scan := func(dest ...any) error {
			*dest[0].(*string) = "s1"
			*dest[1].(*string) = "g1"
			*dest[2].(*string) = "creditor"
			*dest[3].(*string) = "debtor"
			*dest[4].(*int64) = 2500
			*dest[5].(*int64) = at.Unix()
			*dest[6].(*int64) = at.Unix()
			return nil
		}
		row, err := scanSettlementRow(sqliteDialect, scan)
		if err != nil {
			t.Fatalf("scanSettlementRow() error = %v", err)
		}
		if row.ID != "s1" || row.Amount.Cents != 2500 {
			t.Errorf("unexpected row: %+v", row)
		}
		if !row.CreatedAt.Equal(at) || !row.UpdatedAt.Equal(at) {
			t.Errorf("timestamps = %v / %v, want %v", row.CreatedAt, row.UpdatedAt, at)
		}
	})

	t.Run("postgres scans native timestamps", func(t *testing.T) {
		scan := func(dest ...any) error {
			*dest[0].(*string) = "s2"
			*dest[1].(*string) = "g1"
			*dest[2].(*string) = "creditor"
			*dest[3].(*string) = "debtor"
			*dest[4].(*int64) = 100
			*dest[5].(*time.Time) = at
			*dest[6].(*time.Time) = at
			return nil
		}
		row, err := scanSettlementRow(postgresDialect, scan)
		if err != nil {
			t.Fatalf("scanSettlementRow() error = %v", err)
		}
		if !row.CreatedAt.Equal(at) {
			t.Errorf("CreatedAt = %v, want %v", row.CreatedAt, at)
		}
	})
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "pq unique violation",
			err:  &pq.Error{Code: "23505"},
			want: true,
		},
		{
			name: "pq other code",
			err:  &pq.Error{Code: "23503"},
			want: false,
		},
		{
			name: "sqlite unique constraint",
			err:  errors.New("constraint failed: UNIQUE constraint failed: settlements.group_id"),
			want: true,
		},
		{
			name: "unrelated error",
			err:  errors.New("connection reset"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNonPayerShares(t *testing.T) {
	shares := []core.Contribution{
		{UserID: "payer", Amount: core.Money{Cents: 400}},
		{UserID: "alice", Amount: core.Money{Cents: 300}},
		{UserID: "bob", Amount: core.Money{Cents: 300}},
	}

	got := nonPayerShares("payer", shares)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	for _, sh := range got {
		if sh.UserID == "payer" {
			t.Error("payer share not filtered out")
		}
	}
}
