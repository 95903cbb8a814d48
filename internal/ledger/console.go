// Package ledger is the reconciliation engine behind the budgeting console:
// year registry, annual budget, line item store, monthly merge, aggregate
// calculation, and the Console session tying them together.
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
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a Console is built from.
type Deps struct {
	Gateway       finance.Gateway
	Cache         *session.Cache
	Notifier      notify.Notifier
	Logger        *log.Logger
	Bounds        core.YearBounds
	DefaultBudget decimal.Decimal
}

// Snapshot is the loaded state of one year.
type Snapshot struct {
	Year      core.FiscalYear      `json:"year"`
	Budget    core.AnnualBudget    `json:"budget"`
	Months    []core.MonthRecord   `json:"months"`
	Aggregate core.BudgetAggregate `json:"aggregate"`
	Offline   bool                 `json:"offline"`
	Stale     bool                 `json:"stale"`
}

// SaveResult reports a partial save. NoOp means there was nothing to submit.
type SaveResult struct {
	NoOp      bool                 `json:"noOp"`
	Saved     int                  `json:"saved"`
	Month     core.MonthRecord     `json:"month"`
	Aggregate core.BudgetAggregate `json:"aggregate"`
}

// Console is one user's session over the ledger. A year selection is tagged
// with a generation; a load that finishes after a newer selection started is
// discarded with core.ErrSuperseded.
type Console struct {
	gw       finance.BatchWriter
	cache    *session.Cache
	notifier notify.Notifier
	logger   *log.Logger

	Registry *Registry
	Budgets  *BudgetLedger
	Store    *ItemStore
	Merger   *MergeEngine
	Calc     *Calculator

	mu         sync.Mutex
	selected   core.FiscalYear
	generation uint64
}

func NewConsole(d Deps) *Console {
	logger := d.Logger
	if logger == nil {
		logger = log.Default(log.ComponentLedger)
	}
	budgets := NewBudgetLedger(d.Gateway, d.Cache, d.DefaultBudget, d.Notifier, logger)
	store := NewItemStore()
	return &Console{
		gw:       d.Gateway,
		cache:    d.Cache,
		notifier: d.Notifier,
		logger:   logger.WithComponent(log.ComponentLedger),
		Registry: NewRegistry(d.Gateway, budgets, d.Cache, d.Bounds, d.Notifier, logger),
		Budgets:  budgets,
		Store:    store,
		Merger:   NewMergeEngine(d.Gateway, store, d.Cache, d.Notifier, logger),
		Calc:     NewCalculator(budgets, store, d.Notifier, logger),
	}
}

// Selected returns the currently selected year, if any.
func (c *Console) Selected() (core.FiscalYear, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected, c.selected != 0
}

func (c *Console) ListYears(ctx context.Context) []core.FiscalYear {
	return c.Registry.ListAvailableYears(ctx)
}

// begin starts a new load generation. The selection itself only moves once
// that load is installed.
func (c *Console) begin() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	return c.generation
}

// SelectYear loads year and makes it the current selection: the ledger is
// resolved (or created when create is set), then the budget and the merged
// months are fetched in parallel and installed in the item store. A failed
// load leaves the previous selection in place.
func (c *Console) SelectYear(ctx context.Context, year core.FiscalYear, create bool) (Snapshot, error) {
	to := notify.ForYear(c.notifier, int(year))
	if err := c.Registry.Validate(year); err != nil {
		b := c.Registry.Bounds()
		notify.Errorf(ctx, to, "%d is outside the supported years %d-%d", year, b.Min, b.Max)
		return Snapshot{}, err
	}
	gen := c.begin()
	fields := log.NewFields().WithYear(int(year)).WithGeneration(gen)

	res, err := c.Registry.Select(ctx, year, create)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			notify.Infof(ctx, to, "No ledger exists for %d yet; confirm to create one", year)
		}
		return Snapshot{}, err
	}

	var (
		budget      core.AnnualBudget
		budgetStale bool
		merged      MergeResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if res.Created != nil {
			budget = *res.Created
			return nil
		}
		b, stale, err := c.Budgets.Load(gctx, year)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) || isRemoteFailure(err) {
				// months can still be shown without a budget figure
				budget, budgetStale = core.AnnualBudget{Year: year, TotalBudget: decimal.Zero, LedgerID: res.LedgerID}, true
				return nil
			}
			return err
		}
		budget, budgetStale = b, stale
		return nil
	})
	g.Go(func() error {
		m, err := c.Merger.Load(gctx, year)
		merged = m
		return err
	})
	if err := g.Wait(); err != nil {
		c.logger.ErrorContext(ctx, "Year load failed", fields.WithError(err).ToSlice()...)
		return Snapshot{}, err
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.InfoContext(ctx, "Discarding superseded year load", fields.ToSlice()...)
		return Snapshot{}, fmt.Errorf("load of %d: %w", year, core.ErrSuperseded)
	}
	c.Store.ApplyMerged(year, merged.List())
	c.selected = year
	c.mu.Unlock()

	for _, m := range core.AllMonths() {
		c.cacheMonth(ctx, year, m)
	}

	agg, err := c.Calc.ComputeForYear(ctx, year)
	if err != nil {
		return Snapshot{}, err
	}
	c.logger.InfoContext(ctx, "Year loaded", fields.WithLedgerID(res.LedgerID).ToSlice()...)
	return Snapshot{
		Year:      year,
		Budget:    budget,
		Months:    c.Store.Months(year),
		Aggregate: agg,
		Offline:   res.Offline,
		Stale:     merged.Stale || budgetStale,
	}, nil
}

// Budget returns the year's budget, falling back to the last known value.
func (c *Console) Budget(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error) {
	if err := c.Registry.Validate(year); err != nil {
		return core.AnnualBudget{}, err
	}
	b, _, err := c.Budgets.Load(ctx, year)
	return b, err
}

// UpdateBudget changes the annual budget and returns the recomputed aggregate.
func (c *Console) UpdateBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (core.BudgetAggregate, error) {
	if err := c.Registry.Validate(year); err != nil {
		return core.BudgetAggregate{}, err
	}
	if _, err := c.Budgets.Update(ctx, year, amount); err != nil {
		return core.BudgetAggregate{}, err
	}
	return c.Calc.ComputeForYear(ctx, year)
}

// Months returns the twelve months of a loaded year.
func (c *Console) Months(year core.FiscalYear) ([]core.MonthRecord, error) {
	if err := c.Registry.Validate(year); err != nil {
		return nil, err
	}
	if !c.Store.Loaded(year) {
		return nil, fmt.Errorf("%d: %w", year, core.ErrYearNotLoaded)
	}
	return c.Store.Months(year), nil
}

func (c *Console) Aggregate(ctx context.Context, year core.FiscalYear) (core.BudgetAggregate, error) {
	if err := c.Registry.Validate(year); err != nil {
		return core.BudgetAggregate{}, err
	}
	return c.Calc.ComputeForYear(ctx, year)
}

func (c *Console) AddItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, f core.ItemFields) (core.LineItem, error) {
	if err := c.Registry.Validate(year); err != nil {
		return core.LineItem{}, err
	}
	item, err := c.Store.AddDraft(year, m, f)
	if err != nil {
		return core.LineItem{}, err
	}
	c.cacheMonth(ctx, year, m)
	c.logger.DebugContext(ctx, "Draft added", log.NewFields().WithYear(int(year)).WithMonth(m.Number()).WithAmount(item.Amount).ToSlice()...)
	return item, nil
}

func (c *Console) EditItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, id string, f core.ItemFields) (core.LineItem, error) {
	if err := c.Registry.Validate(year); err != nil {
		return core.LineItem{}, err
	}
	item, err := c.Store.Edit(year, m, id, f)
	if err != nil {
		return core.LineItem{}, err
	}
	c.cacheMonth(ctx, year, m)
	return item, nil
}

func (c *Console) RemoveItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, id string) error {
	if err := c.Registry.Validate(year); err != nil {
		return err
	}
	if err := c.Store.Remove(year, m, id); err != nil {
		return err
	}
	c.cacheMonth(ctx, year, m)
	return nil
}

// SaveNewItems submits the month's drafts, and only those, as one batch.
// The ledger id must resolve first; a miss is a bug and fails loudly.
func (c *Console) SaveNewItems(ctx context.Context, year core.FiscalYear, m core.MonthIndex) (SaveResult, error) {
	to := notify.ForYear(c.notifier, int(year))
	if err := c.Registry.Validate(year); err != nil {
		return SaveResult{}, err
	}
	if !m.Valid() {
		return SaveResult{}, fmt.Errorf("%w: %d", core.ErrInvalidMonth, int(m))
	}
	fields := log.NewFields().WithYear(int(year)).WithMonth(m.Number())

	ledgerID, err := c.Registry.ResolveLedgerID(ctx, year)
	if err != nil {
		err = fmt.Errorf("save %s %d: %w", m, year, core.ErrMissingLedgerMapping)
		c.logger.ErrorContext(ctx, "Save without ledger mapping", fields.WithError(err).ToSlice()...)
		notify.Errorf(ctx, to, "Cannot save %s %d: no ledger is linked to %d", m, year, year)
		return SaveResult{}, err
	}
	fields.WithLedgerID(ledgerID)

	drafts, err := c.Store.BeginSave(year, m)
	if err != nil {
		return SaveResult{}, err
	}
	if len(drafts) == 0 {
		notify.Infof(ctx, to, "Nothing to save for %s %d", m, year)
		return SaveResult{NoOp: true, Month: c.Store.Month(year, m)}, nil
	}

	batch := make([]finance.NewItem, 0, len(drafts))
	for _, it := range drafts {
		batch = append(batch, finance.ToNewItem(it))
	}
	fields.WithItemCount(len(batch))

	if err := c.gw.SaveBatch(ctx, ledgerID, m.Number(), batch); err != nil {
		c.Store.FinishSave(year, m, drafts, false)
		c.logger.WarnContext(ctx, "Save failed", fields.WithError(err).ToSlice()...)
		notify.Errorf(ctx, to, "Could not save %d item(s) to %s %d: the finance service is unavailable", len(batch), m, year)
		return SaveResult{}, err
	}
	rec := c.Store.FinishSave(year, m, drafts, true)
	c.cacheMonth(ctx, year, m)
	c.logger.InfoContext(ctx, "Items saved", fields.ToSlice()...)
	notify.Successf(ctx, to, "Saved %d item(s) to %s %d", len(batch), m, year)

	agg, err := c.Calc.ComputeForYear(ctx, year)
	if err != nil {
		return SaveResult{}, err
	}
	return SaveResult{Saved: len(batch), Month: rec, Aggregate: agg}, nil
}

// Warm refreshes the session cache with the year list and the selected
// year's budget so a later startup without the service has recent data.
// It runs unattended, so failures are logged without notifying the user.
func (c *Console) Warm(ctx context.Context) error {
	years, err := c.Registry.RefreshYears(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "Year list not refreshed", log.FieldError, err)
	}
	year, ok := c.Selected()
	if !ok {
		c.logger.DebugContext(ctx, "Cache warmed", "years", len(years))
		return nil
	}
	if _, err := c.Budgets.Fetch(ctx, year); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("warm budget %d: %w", year, err)
	}
	c.logger.DebugContext(ctx, "Cache warmed", "years", len(years), log.FieldYear, int(year))
	return nil
}

func (c *Console) cacheMonth(ctx context.Context, year core.FiscalYear, m core.MonthIndex) {
	c.cache.PutMonth(ctx, c.Store.Month(year, m), c.Store.HasLocalModifications(year, m))
}
