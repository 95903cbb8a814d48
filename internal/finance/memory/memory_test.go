package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ledger/internal/core"
	"ledger/internal/finance"

	"github.com/shopspring/decimal"
)

func TestBudgetLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()

	if _, err := s.FetchAnnualBudget(ctx, 2025); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	created, err := s.CreateAnnualBudget(ctx, 2025, decimal.NewFromInt(120000))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.LedgerID == "" || !created.TotalSpent.IsZero() || !created.PercentageSpent.IsZero() {
		t.Fatalf("unexpected summary %+v", created)
	}
	if err := s.UpdateAnnualBudget(ctx, 2025, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.SaveBatch(ctx, created.LedgerID, 3, []finance.NewItem{{ItemName: "Lift service", Amount: decimal.NewFromInt(450)}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.FetchAnnualBudget(ctx, 2025)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !got.TotalSpent.Equal(decimal.NewFromInt(450)) || !got.PercentageSpent.Equal(decimal.NewFromInt(45)) {
		t.Fatalf("unexpected aggregate %+v", got)
	}

	years, err := s.FetchAvailableYears(ctx)
	if err != nil || len(years) != 1 || years[0].Year != 2025 || years[0].LedgerID != created.LedgerID {
		t.Fatalf("unexpected years %+v (err=%v)", years, err)
	}
}

func TestMonthlyFinanceByName(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Seed(2025, decimal.NewFromInt(100))
	s.SeedItems(2025, 7, finance.RemoteItem{ItemName: "Cleaning", Amount: decimal.NewFromInt(20)})

	months, err := s.FetchMonthlyFinance(ctx, 2025)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(months) != 1 || months[0].MonthName != "July" || len(months[0].Items) != 1 {
		t.Fatalf("unexpected months %+v", months)
	}
	if months[0].Items[0].ID == "" {
		t.Fatalf("seeded item without id")
	}
}

func TestFailureInjection(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.Fail(OpListYears, nil)
	if _, err := s.FetchAvailableYears(ctx); !errors.Is(err, core.ErrRemoteUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	s.Restore(OpListYears)
	if _, err := s.FetchAvailableYears(ctx); err != nil {
		t.Fatalf("expected success after restore, got %v", err)
	}
	if s.Calls(OpListYears) != 2 {
		t.Fatalf("expected 2 calls, got %d", s.Calls(OpListYears))
	}
}

func TestSaveBatchUnknownLedger(t *testing.T) {
	s := New()
	err := s.SaveBatch(context.Background(), "nope", 1, []finance.NewItem{{ItemName: "x"}})
	if !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(s.Batches()) != 0 {
		t.Fatalf("failed save recorded")
	}
}

func TestHoldRespectsContext(t *testing.T) {
	s := New()
	s.Hold(OpFetchMonthly, make(chan struct{}))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := s.FetchMonthlyFinance(ctx, 2025); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
