package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"

	"github.com/shopspring/decimal"
)

// BudgetGateway is the part of the finance service the budget ledger uses.
type BudgetGateway interface {
	finance.BudgetReader
	finance.BudgetWriter
}

// BudgetLedger owns the annual budget figure of each year it has seen.
type BudgetLedger struct {
	mu            sync.Mutex
	gw            BudgetGateway
	cache         *session.Cache
	defaultAmount decimal.Decimal
	known         map[core.FiscalYear]core.AnnualBudget
	notifier      notify.Notifier
	logger        *log.Logger
}

func NewBudgetLedger(gw BudgetGateway, cache *session.Cache, defaultAmount decimal.Decimal, notifier notify.Notifier, logger *log.Logger) *BudgetLedger {
	if logger == nil {
		logger = log.Default(log.ComponentBudget)
	}
	return &BudgetLedger{
		gw:            gw,
		cache:         cache,
		defaultAmount: defaultAmount,
		known:         map[core.FiscalYear]core.AnnualBudget{},
		notifier:      notifier,
		logger:        logger.WithComponent(log.ComponentBudget),
	}
}

// Summary fetches the budget with its service-computed aggregate and
// remembers the budget on success.
func (b *BudgetLedger) Summary(ctx context.Context, year core.FiscalYear) (finance.BudgetSummary, error) {
	s, err := b.gw.FetchAnnualBudget(ctx, year)
	if err != nil {
		return finance.BudgetSummary{}, err
	}
	s.Year = year
	b.remember(ctx, s.Budget())
	return s, nil
}

// Fetch returns the remote annual budget, core.ErrNotFound when the year
// has none, or core.ErrRemoteUnavailable.
func (b *BudgetLedger) Fetch(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error) {
	s, err := b.Summary(ctx, year)
	if err != nil {
		return core.AnnualBudget{}, err
	}
	return s.Budget(), nil
}

// Load fetches the budget and falls back to the last known value when the
// service is unreachable. stale reports that the fallback was used.
func (b *BudgetLedger) Load(ctx context.Context, year core.FiscalYear) (budget core.AnnualBudget, stale bool, err error) {
	budget, err = b.Fetch(ctx, year)
	if err == nil {
		return budget, false, nil
	}
	if known, ok := b.Known(ctx, year); ok && (isRemoteFailure(err) || errors.Is(err, core.ErrNotFound)) {
		if known.LedgerID != "" || isRemoteFailure(err) {
			notify.Warnf(ctx, notify.ForYear(b.notifier, int(year)), "Could not load the %d budget; showing the last known value", year)
		}
		b.logger.WarnContext(ctx, "Using last known budget", log.NewFields().WithYear(int(year)).WithError(err).ToSlice()...)
		return known, true, nil
	}
	if isRemoteFailure(err) {
		notify.Errorf(ctx, notify.ForYear(b.notifier, int(year)), "Could not load the %d budget: the finance service is unavailable", year)
	}
	return core.AnnualBudget{}, false, err
}

// Known returns the last budget seen for year, from memory or the session cache.
func (b *BudgetLedger) Known(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, bool) {
	b.mu.Lock()
	budget, ok := b.known[year]
	b.mu.Unlock()
	if ok {
		return budget, true
	}
	budget, ok = b.cache.Budget(ctx, year)
	if ok {
		b.mu.Lock()
		b.known[year] = budget
		b.mu.Unlock()
	}
	return budget, ok
}

// CreateWithDefault creates the year's budget with the default amount.
// Callers check Fetch first; the service does not deduplicate creates.
// When the service is unreachable the budget is created locally instead.
func (b *BudgetLedger) CreateWithDefault(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error) {
	to := notify.ForYear(b.notifier, int(year))
	s, err := b.gw.CreateAnnualBudget(ctx, year, b.defaultAmount)
	if err == nil {
		s.Year = year
		budget := s.Budget()
		b.remember(ctx, budget)
		b.logger.InfoContext(ctx, "Annual budget created", log.NewFields().WithYear(int(year)).WithLedgerID(budget.LedgerID).WithAmount(budget.TotalBudget).ToSlice()...)
		notify.Successf(ctx, to, "Created the %d budget with a default of %s", year, core.FormatAmount(budget.TotalBudget))
		return budget, nil
	}
	if !isRemoteFailure(err) {
		notify.Errorf(ctx, to, "Could not create the %d budget", year)
		return core.AnnualBudget{}, err
	}
	return b.CreateLocal(ctx, year, err), nil
}

// CreateLocal keeps a default budget without ledger id. Saves for the year
// fail until a ledger exists.
func (b *BudgetLedger) CreateLocal(ctx context.Context, year core.FiscalYear, cause error) core.AnnualBudget {
	budget := core.AnnualBudget{Year: year, TotalBudget: b.defaultAmount}
	b.remember(ctx, budget)
	b.logger.WarnContext(ctx, "Annual budget created locally", log.NewFields().WithYear(int(year)).WithError(cause).ToSlice()...)
	notify.Warnf(ctx, notify.ForYear(b.notifier, int(year)), "The finance service is unavailable; the %d budget was created locally and cannot be saved yet", year)
	return budget
}

// Update changes the annual budget. On failure the previous value is kept
// and the error returned.
func (b *BudgetLedger) Update(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (core.AnnualBudget, error) {
	to := notify.ForYear(b.notifier, int(year))
	if amount.IsNegative() {
		return core.AnnualBudget{}, fmt.Errorf("budget %s: %w", amount, core.ErrInvalidAmount)
	}
	if err := b.gw.UpdateAnnualBudget(ctx, year, amount); err != nil {
		b.logger.WarnContext(ctx, "Budget update failed", log.NewFields().WithYear(int(year)).WithAmount(amount).WithError(err).ToSlice()...)
		switch {
		case errors.Is(err, core.ErrNotFound):
			notify.Errorf(ctx, to, "Could not update the %d budget: the year has no ledger", year)
		default:
			notify.Errorf(ctx, to, "Could not update the %d budget: the finance service is unavailable", year)
		}
		return core.AnnualBudget{}, err
	}

	budget, _ := b.Known(ctx, year)
	budget.Year = year
	budget.TotalBudget = amount
	b.remember(ctx, budget)
	b.logger.InfoContext(ctx, "Budget updated", log.NewFields().WithYear(int(year)).WithAmount(amount).ToSlice()...)
	notify.Successf(ctx, to, "Budget for %d updated to %s", year, core.FormatAmount(amount))
	return budget, nil
}

func (b *BudgetLedger) remember(ctx context.Context, budget core.AnnualBudget) {
	b.mu.Lock()
	b.known[budget.Year] = budget
	b.mu.Unlock()
	b.cache.PutBudget(ctx, budget)
}
