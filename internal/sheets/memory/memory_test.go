package memory

import (
	"context"
	"testing"

	"coown/internal/core"
)

func validExpense() core.Expense {
	return core.Expense{
		ID:          "exp-1",
		PropertyID:  "prop-1",
		Description: "Monthly rent",
		Amount:      core.Money{Cents: 10000},
		Date:        core.NewDate(2024, 3, 1),
		PayerID:     "alice",
		Method:      core.SplitEqual,
		Splits: []core.Split{
			{UserID: "alice", Amount: core.Money{Cents: 5000}, Status: core.StatusPaid},
			{UserID: "bob", Amount: core.Money{Cents: 5000}, Status: core.StatusOwed},
		},
	}
}

func TestAppendExpense(t *testing.T) {
	s := New()
	ctx := context.Background()

	ref, err := s.AppendExpense(ctx, validExpense())
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	if ref != "mem:1" {
		t.Errorf("ref = %q, want mem:1", ref)
	}

	ref, err = s.AppendExpense(ctx, validExpense())
	if err != nil {
		t.Fatalf("AppendExpense: %v", err)
	}
	if ref != "mem:2" {
		t.Errorf("ref = %q, want mem:2", ref)
	}

	items := s.Items()
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ID != "exp-1" {
		t.Errorf("item id = %q", items[0].ID)
	}
}

func TestAppendExpenseRejectsInvalid(t *testing.T) {
	s := New()

	bad := validExpense()
	bad.Splits = nil
	if _, err := s.AppendExpense(context.Background(), bad); err == nil {
		t.Fatal("expected validation error")
	}
}
