package ledger

import (
	"context"
	"errors"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/notify"

	"github.com/shopspring/decimal"
)

// Calculator derives the budget aggregate on demand. The service's own
// figures win because they may include saves this process never saw.
type Calculator struct {
	budgets  *BudgetLedger
	store    *ItemStore
	notifier notify.Notifier
	logger   *log.Logger
}

func NewCalculator(budgets *BudgetLedger, store *ItemStore, notifier notify.Notifier, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.Default(log.ComponentAggregate)
	}
	return &Calculator{budgets: budgets, store: store, notifier: notifier, logger: logger.WithComponent(log.ComponentAggregate)}
}

// ComputeForYear returns the remote aggregate, or a local one summed over
// every item of the year when the service cannot provide it.
func (c *Calculator) ComputeForYear(ctx context.Context, year core.FiscalYear) (core.BudgetAggregate, error) {
	s, err := c.budgets.Summary(ctx, year)
	if err == nil {
		return s.Aggregate(), nil
	}
	if !isRemoteFailure(err) && !errors.Is(err, core.ErrNotFound) {
		return core.BudgetAggregate{}, err
	}

	total := decimal.Zero
	if b, ok := c.budgets.Known(ctx, year); ok {
		total = b.TotalBudget
	}
	agg := core.ComputeAggregate(year, total, c.store.Total(year), core.SourceLocal)
	c.logger.WarnContext(ctx, "Aggregate computed locally",
		log.NewFields().WithYear(int(year)).WithAmount(agg.TotalSpent).WithError(err).ToSlice()...)
	if isRemoteFailure(err) {
		notify.Warnf(ctx, notify.ForYear(c.notifier, int(year)), "Totals for %d were computed from local items; the finance service is unavailable", year)
	}
	return agg, nil
}
