package core

import "testing"

func TestComputeSplits_standalone(t *testing.T) {
	splits, err := ComputeSplits("P", Money{Cents: 4200}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 1 || splits[0].UserID != "P" || splits[0].Amount.Cents != 4200 {
		t.Fatalf("unexpected splits: %+v", splits)
	}
}

func TestComputeSplits_payerRemainder(t *testing.T) {
	declared := []Contribution{
		{UserID: "A", Amount: Money{Cents: 2000}},
		{UserID: "B", Amount: Money{Cents: 5000}},
	}
	splits, err := ComputeSplits("P", Money{Cents: 9000}, declared)
	if err != nil {
		t.Fatal(err)
	}
	if len(splits) != 3 {
		t.Fatalf("expected 3 splits, got %d", len(splits))
	}

	var total int64
	var payerShare int64 = -1
	for _, s := range splits {
		total += s.Amount.Cents
		if s.UserID == "P" {
			payerShare = s.Amount.Cents
		}
	}
	// Conservation: splits cover everyone once and sum to the amount.
	if total != 9000 {
		t.Fatalf("splits sum to %d, expected 9000", total)
	}
	if payerShare != 2000 {
		t.Fatalf("payer remainder share was %d, expected 2000", payerShare)
	}
}

func TestComputeSplits_zeroRemainder(t *testing.T) {
	declared := []Contribution{{UserID: "A", Amount: Money{Cents: 9000}}}
	splits, err := ComputeSplits("P", Money{Cents: 9000}, declared)
	if err != nil {
		t.Fatal(err)
	}
	// The payer still appears, with a zero-cent share.
	if len(splits) != 2 || splits[1].UserID != "P" || splits[1].Amount.Cents != 0 {
		t.Fatalf("unexpected splits: %+v", splits)
	}
}

func TestComputeSplits_rejects(t *testing.T) {
	cases := []struct {
		name     string
		payer    string
		amount   int64
		declared []Contribution
	}{
		{"over total", "P", 100, []Contribution{{UserID: "A", Amount: Money{Cents: 150}}}},
		{"payer declared", "P", 100, []Contribution{{UserID: "P", Amount: Money{Cents: 50}}}},
		{"duplicate user", "P", 100, []Contribution{
			{UserID: "A", Amount: Money{Cents: 10}},
			{UserID: "A", Amount: Money{Cents: 10}},
		}},
		{"zero share", "P", 100, []Contribution{{UserID: "A", Amount: Money{}}}},
		{"zero amount", "P", 0, nil},
		{"missing payer", "", 100, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ComputeSplits(tc.payer, Money{Cents: tc.amount}, tc.declared); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestEvenShare(t *testing.T) {
	// 90 split with 2 participants plus the payer = 30 each.
	if got := EvenShare(Money{Cents: 9000}, 2); got.Cents != 3000 {
		t.Fatalf("expected 3000, got %d", got.Cents)
	}
	// 100 split 3 ways: 33.33 each, remainder stays with the payer.
	if got := EvenShare(Money{Cents: 10000}, 2); got.Cents != 3333 {
		t.Fatalf("expected 3333, got %d", got.Cents)
	}
}
