package finance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"

	"github.com/shopspring/decimal"
)

// Classify folds any gateway failure into core.ErrNotFound or core.ErrRemoteUnavailable.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrRemoteUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: timed out: %v", core.ErrRemoteUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", core.ErrRemoteUnavailable, err)
	}
}

// Guarded bounds every call to the wrapped gateway with a timeout and classifies its errors.
type Guarded struct {
	next    Gateway
	timeout time.Duration
	logger  *log.Logger
}

var _ Gateway = (*Guarded)(nil)

// Guard wraps next. A zero timeout leaves calls bounded only by the caller's context.
func Guard(next Gateway, timeout time.Duration, logger *log.Logger) *Guarded {
	if logger == nil {
		logger = log.Default(log.ComponentGateway)
	}
	return &Guarded{next: next, timeout: timeout, logger: logger.WithComponent(log.ComponentGateway)}
}

func (g *Guarded) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}

func (g *Guarded) done(ctx context.Context, op string, year core.FiscalYear, start time.Time, err error) error {
	err = Classify(err)
	fields := log.NewFields().WithOperation(op)
	if year != 0 {
		fields.WithYear(int(year))
	}
	fields[log.FieldDuration] = time.Since(start).Milliseconds()
	switch {
	case err == nil:
		g.logger.DebugContext(ctx, "Finance call succeeded", fields.ToSlice()...)
	case errors.Is(err, core.ErrNotFound):
		g.logger.InfoContext(ctx, "Finance record not found", fields.ToSlice()...)
	default:
		g.logger.WarnContext(ctx, "Finance call failed", fields.WithError(err).ToSlice()...)
	}
	return err
}

func (g *Guarded) FetchAvailableYears(ctx context.Context) ([]YearEntry, error) {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	years, err := g.next.FetchAvailableYears(ctx)
	if err = g.done(ctx, log.OpListYears, 0, start, err); err != nil {
		return nil, err
	}
	return years, nil
}

func (g *Guarded) FetchAnnualBudget(ctx context.Context, year core.FiscalYear) (BudgetSummary, error) {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	b, err := g.next.FetchAnnualBudget(ctx, year)
	if err = g.done(ctx, log.OpFetchBudget, year, start, err); err != nil {
		return BudgetSummary{}, err
	}
	return b, nil
}

func (g *Guarded) CreateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (BudgetSummary, error) {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	b, err := g.next.CreateAnnualBudget(ctx, year, amount)
	if err = g.done(ctx, log.OpCreateBudget, year, start, err); err != nil {
		return BudgetSummary{}, err
	}
	return b, nil
}

func (g *Guarded) UpdateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) error {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.done(ctx, log.OpUpdateBudget, year, start, g.next.UpdateAnnualBudget(ctx, year, amount))
}

func (g *Guarded) FetchMonthlyFinance(ctx context.Context, year core.FiscalYear) ([]MonthlyFinance, error) {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	months, err := g.next.FetchMonthlyFinance(ctx, year)
	if err = g.done(ctx, log.OpFetchMonthly, year, start, err); err != nil {
		return nil, err
	}
	return months, nil
}

func (g *Guarded) SaveBatch(ctx context.Context, ledgerID string, month int, items []NewItem) error {
	start := time.Now()
	ctx, cancel := g.bound(ctx)
	defer cancel()
	return g.done(ctx, log.OpSaveBatch, 0, start, g.next.SaveBatch(ctx, ledgerID, month, items))
}
