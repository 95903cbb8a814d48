// Package memory is an in-process finance service used by the memory
// backend and by tests. Failures can be injected per operation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ledger/internal/core"
	"ledger/internal/finance"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Operation names accepted by Fail, Hold and Calls.
const (
	OpListYears    = "list_years"
	OpFetchBudget  = "fetch_budget"
	OpCreateBudget = "create_budget"
	OpUpdateBudget = "update_budget"
	OpFetchMonthly = "fetch_monthly"
	OpSaveBatch    = "save_batch"
)

type ledgerRow struct {
	id     string
	budget decimal.Decimal
}

// Batch records one successful SaveBatch call.
type Batch struct {
	LedgerID string
	Month    int
	Items    []finance.NewItem
}

type Service struct {
	mu      sync.Mutex
	ledgers map[core.FiscalYear]ledgerRow
	// items by ledger id, then one-based month
	items   map[string]map[int][]finance.RemoteItem
	fail    map[string]error
	holds   map[string]<-chan struct{}
	calls   map[string]int
	batches []Batch
}

var _ finance.Gateway = (*Service)(nil)

func New() *Service {
	return &Service{
		ledgers: map[core.FiscalYear]ledgerRow{},
		items:   map[string]map[int][]finance.RemoteItem{},
		fail:    map[string]error{},
		holds:   map[string]<-chan struct{}{},
		calls:   map[string]int{},
	}
}

// Seed registers a ledger for year and returns its id.
func (s *Service) Seed(year core.FiscalYear, budget decimal.Decimal) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.ledgers[year] = ledgerRow{id: id, budget: budget}
	return id
}

// SeedItems stores items as if previously saved; month is one-based.
func (s *Service) SeedItems(year core.FiscalYear, month int, items ...finance.RemoteItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledgers[year]
	if !ok {
		panic(fmt.Sprintf("memory: no ledger seeded for %d", year))
	}
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
	}
	s.monthItems(row.id)[month] = append(s.monthItems(row.id)[month], items...)
}

// Fail makes op return err until Restore is called. A nil err means core.ErrRemoteUnavailable.
func (s *Service) Fail(op string, err error) {
	if err == nil {
		err = core.ErrRemoteUnavailable
	}
	s.mu.Lock()
	s.fail[op] = err
	s.mu.Unlock()
}

// FailAll makes every operation fail as unreachable.
func (s *Service) FailAll() {
	for _, op := range []string{OpListYears, OpFetchBudget, OpCreateBudget, OpUpdateBudget, OpFetchMonthly, OpSaveBatch} {
		s.Fail(op, nil)
	}
}

func (s *Service) Restore(op string) {
	s.mu.Lock()
	delete(s.fail, op)
	s.mu.Unlock()
}

func (s *Service) RestoreAll() {
	s.mu.Lock()
	s.fail = map[string]error{}
	s.mu.Unlock()
}

// Hold blocks the next call to op until release is closed or the call's context ends.
func (s *Service) Hold(op string, release <-chan struct{}) {
	s.mu.Lock()
	s.holds[op] = release
	s.mu.Unlock()
}

// Calls reports how many times op was invoked, failed calls included.
func (s *Service) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Batches returns the successful SaveBatch calls in order.
func (s *Service) Batches() []Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Batch(nil), s.batches...)
}

func (s *Service) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	hold := s.holds[op]
	delete(s.holds, op)
	s.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail[op]
}

func (s *Service) monthItems(ledgerID string) map[int][]finance.RemoteItem {
	m, ok := s.items[ledgerID]
	if !ok {
		m = map[int][]finance.RemoteItem{}
		s.items[ledgerID] = m
	}
	return m
}

func (s *Service) FetchAvailableYears(ctx context.Context) ([]finance.YearEntry, error) {
	if err := s.enter(ctx, OpListYears); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]finance.YearEntry, 0, len(s.ledgers))
	for y, row := range s.ledgers {
		out = append(out, finance.YearEntry{Year: y, LedgerID: row.id})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (s *Service) FetchAnnualBudget(ctx context.Context, year core.FiscalYear) (finance.BudgetSummary, error) {
	if err := s.enter(ctx, OpFetchBudget); err != nil {
		return finance.BudgetSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledgers[year]
	if !ok {
		return finance.BudgetSummary{}, fmt.Errorf("budget %d: %w", year, core.ErrNotFound)
	}
	return s.summary(year, row), nil
}

func (s *Service) summary(year core.FiscalYear, row ledgerRow) finance.BudgetSummary {
	spent := decimal.Zero
	for _, items := range s.items[row.id] {
		for _, it := range items {
			spent = spent.Add(it.Amount)
		}
	}
	agg := core.ComputeAggregate(year, row.budget, spent, core.SourceRemote)
	return finance.BudgetSummary{
		Year:            year,
		LedgerID:        row.id,
		TotalBudget:     agg.TotalBudget,
		TotalSpent:      agg.TotalSpent,
		RemainingBudget: agg.RemainingBudget,
		PercentageSpent: agg.PercentageSpent,
	}
}

func (s *Service) CreateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (finance.BudgetSummary, error) {
	if err := s.enter(ctx, OpCreateBudget); err != nil {
		return finance.BudgetSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Like the real service, a second create replaces the ledger.
	row := ledgerRow{id: uuid.NewString(), budget: amount}
	s.ledgers[year] = row
	return s.summary(year, row), nil
}

func (s *Service) UpdateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) error {
	if err := s.enter(ctx, OpUpdateBudget); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledgers[year]
	if !ok {
		return fmt.Errorf("budget %d: %w", year, core.ErrNotFound)
	}
	row.budget = amount
	s.ledgers[year] = row
	return nil
}

func (s *Service) FetchMonthlyFinance(ctx context.Context, year core.FiscalYear) ([]finance.MonthlyFinance, error) {
	if err := s.enter(ctx, OpFetchMonthly); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.ledgers[year]
	if !ok {
		return nil, fmt.Errorf("ledger %d: %w", year, core.ErrNotFound)
	}
	var out []finance.MonthlyFinance
	for n := 1; n <= 12; n++ {
		items := s.items[row.id][n]
		if len(items) == 0 {
			continue
		}
		m, _ := core.MonthFromNumber(n)
		mf := finance.MonthlyFinance{MonthName: m.String(), TotalSpent: decimal.Zero}
		for _, it := range items {
			mf.TotalSpent = mf.TotalSpent.Add(it.Amount)
			mf.Items = append(mf.Items, it)
		}
		out = append(out, mf)
	}
	return out, nil
}

func (s *Service) SaveBatch(ctx context.Context, ledgerID string, month int, items []finance.NewItem) error {
	if err := s.enter(ctx, OpSaveBatch); err != nil {
		return err
	}
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: %d", core.ErrInvalidMonth, month)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	known := false
	for _, row := range s.ledgers {
		if row.id == ledgerID {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("ledger %q: %w", ledgerID, core.ErrNotFound)
	}
	stored := make([]finance.RemoteItem, 0, len(items))
	for _, it := range items {
		stored = append(stored, finance.RemoteItem{
			ID:          uuid.NewString(),
			Category:    it.Category,
			ItemName:    it.ItemName,
			Description: it.Description,
			Amount:      it.Amount,
		})
	}
	mi := s.monthItems(ledgerID)
	mi[month] = append(mi[month], stored...)
	s.batches = append(s.batches, Batch{LedgerID: ledgerID, Month: month, Items: append([]finance.NewItem(nil), items...)})
	return nil
}
