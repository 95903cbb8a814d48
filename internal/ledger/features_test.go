package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/finance/memory"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
)

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		Name:                "ledger-reconciliation",
		ScenarioInitializer: initializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			Strict:   true,
			TestingT: t,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

type worldKey struct{}

// world is the per-scenario state shared between steps.
type world struct {
	svc     *memory.Service
	console *Console
	notes   *notify.Recorder
	saveErr error
}

func getWorld(ctx context.Context) *world {
	return ctx.Value(worldKey{}).(*world)
}

func initializeScenario(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return context.WithValue(ctx, worldKey{}, &world{}), nil
	})

	sc.Step(`^the finance service is running$`, theFinanceServiceIsRunning)
	sc.Step(`^year (\d+) has a budget of (\d+)$`, yearHasBudget)
	sc.Step(`^"([^"]*)" costing (\d+) was saved in (\w+) (\d+)$`, itemWasSaved)
	sc.Step(`^"([^"]*)" costing (\d+) is saved elsewhere in (\w+) (\d+)$`, itemWasSaved)
	sc.Step(`^the finance service cannot create budgets$`, serviceCannotCreate)
	sc.Step(`^the finance service stops answering budget requests$`, serviceStopsBudgets)

	sc.Step(`^I select year (\d+)$`, iSelectYear)
	sc.Step(`^I select year (\d+) and confirm creation$`, iSelectYearAndCreate)
	sc.Step(`^I add "([^"]*)" costing (\d+) in "([^"]*)" to (\w+) (\d+)$`, iAddItem)
	sc.Step(`^I save (\w+) (\d+)$`, iSaveMonth)
	sc.Step(`^I try to save (\w+) (\d+)$`, iTryToSaveMonth)

	sc.Step(`^the budget for (\d+) is (\d+)$`, theBudgetIs)
	sc.Step(`^the year (\d+) has a ledger$`, theYearHasLedger)
	sc.Step(`^the total spent for (\d+) is (\d+)$`, theTotalSpentIs)
	sc.Step(`^the percentage spent for (\d+) is (\d+)$`, thePercentageIs)
	sc.Step(`^the totals for (\d+) come from "([^"]*)"$`, theTotalsComeFrom)
	sc.Step(`^(\d+) items? (?:is|are) sent for month (\d+)$`, itemsSentForMonth)
	sc.Step(`^(\d+) batch(?:es)? (?:has|have) been sent$`, batchesSent)
	sc.Step(`^the item "([^"]*)" in (\w+) (\d+) is "([^"]*)"$`, itemHasProvenance)
	sc.Step(`^(\w+) (\d+) is "([^"]*)"$`, monthHasStatus)
	sc.Step(`^(\w+) (\d+) has (\d+) items$`, monthHasItems)
	sc.Step(`^the last notification is "([^"]*)"$`, lastNotificationIs)
	sc.Step(`^the save fails because the ledger mapping is missing$`, saveFailsWithoutMapping)
}

func theFinanceServiceIsRunning(ctx context.Context) error {
	w := getWorld(ctx)
	w.svc = memory.New()
	w.notes = notify.NewRecorder(0)
	logger := log.Discard()
	w.console = NewConsole(Deps{
		Gateway:       finance.Guard(w.svc, time.Second, logger),
		Cache:         session.New(cache.NewKV(0), logger),
		Notifier:      w.notes,
		Logger:        logger,
		Bounds:        core.DefaultYearBounds(),
		DefaultBudget: decimal.NewFromInt(120000),
	})
	return nil
}

func yearHasBudget(ctx context.Context, year, amount int) error {
	getWorld(ctx).svc.Seed(core.FiscalYear(year), decimal.NewFromInt(int64(amount)))
	return nil
}

func itemWasSaved(ctx context.Context, name string, amount int, month string, year int) error {
	m, err := core.ParseMonthName(month)
	if err != nil {
		return err
	}
	getWorld(ctx).svc.SeedItems(core.FiscalYear(year), m.Number(), finance.RemoteItem{
		ItemName: name, Description: name, Category: "General", Amount: decimal.NewFromInt(int64(amount)),
	})
	return nil
}

func serviceCannotCreate(ctx context.Context) error {
	getWorld(ctx).svc.Fail(memory.OpCreateBudget, nil)
	return nil
}

func serviceStopsBudgets(ctx context.Context) error {
	getWorld(ctx).svc.Fail(memory.OpFetchBudget, nil)
	return nil
}

func iSelectYear(ctx context.Context, year int) error {
	_, err := getWorld(ctx).console.SelectYear(ctx, core.FiscalYear(year), false)
	return err
}

func iSelectYearAndCreate(ctx context.Context, year int) error {
	_, err := getWorld(ctx).console.SelectYear(ctx, core.FiscalYear(year), true)
	return err
}

func iAddItem(ctx context.Context, name string, amount int, category, month string, year int) error {
	m, err := core.ParseMonthName(month)
	if err != nil {
		return err
	}
	_, err = getWorld(ctx).console.AddItem(ctx, core.FiscalYear(year), m, core.ItemFields{
		Description: name, Amount: decimal.NewFromInt(int64(amount)), Category: category,
	})
	return err
}

func iSaveMonth(ctx context.Context, month string, year int) error {
	m, err := core.ParseMonthName(month)
	if err != nil {
		return err
	}
	_, err = getWorld(ctx).console.SaveNewItems(ctx, core.FiscalYear(year), m)
	return err
}

func iTryToSaveMonth(ctx context.Context, month string, year int) error {
	m, err := core.ParseMonthName(month)
	if err != nil {
		return err
	}
	w := getWorld(ctx)
	_, w.saveErr = w.console.SaveNewItems(ctx, core.FiscalYear(year), m)
	return nil
}

func theBudgetIs(ctx context.Context, year, amount int) error {
	b, ok := getWorld(ctx).console.Budgets.Known(ctx, core.FiscalYear(year))
	if !ok {
		return fmt.Errorf("no budget known for %d", year)
	}
	if !b.TotalBudget.Equal(decimal.NewFromInt(int64(amount))) {
		return fmt.Errorf("budget is %s, want %d", b.TotalBudget, amount)
	}
	return nil
}

func theYearHasLedger(ctx context.Context, year int) error {
	id, err := getWorld(ctx).console.Registry.ResolveLedgerID(ctx, core.FiscalYear(year))
	if err != nil || id == "" {
		return fmt.Errorf("no ledger for %d: %v", year, err)
	}
	return nil
}

func currentAggregate(ctx context.Context, year int) (core.BudgetAggregate, error) {
	return getWorld(ctx).console.Aggregate(ctx, core.FiscalYear(year))
}

func theTotalSpentIs(ctx context.Context, year, amount int) error {
	agg, err := currentAggregate(ctx, year)
	if err != nil {
		return err
	}
	if !agg.TotalSpent.Equal(decimal.NewFromInt(int64(amount))) {
		return fmt.Errorf("total spent is %s, want %d", agg.TotalSpent, amount)
	}
	return nil
}

func thePercentageIs(ctx context.Context, year, pct int) error {
	agg, err := currentAggregate(ctx, year)
	if err != nil {
		return err
	}
	if !agg.PercentageSpent.Equal(decimal.NewFromInt(int64(pct))) {
		return fmt.Errorf("percentage is %s, want %d", agg.PercentageSpent, pct)
	}
	return nil
}

func theTotalsComeFrom(ctx context.Context, year int, source string) error {
	agg, err := currentAggregate(ctx, year)
	if err != nil {
		return err
	}
	if string(agg.Source) != source {
		return fmt.Errorf("totals come from %s, want %s", agg.Source, source)
	}
	return nil
}

func itemsSentForMonth(ctx context.Context, n, month int) error {
	batches := getWorld(ctx).svc.Batches()
	if len(batches) == 0 {
		return errors.New("nothing was sent")
	}
	last := batches[len(batches)-1]
	if last.Month != month || len(last.Items) != n {
		return fmt.Errorf("sent %d item(s) for month %d, want %d for month %d", len(last.Items), last.Month, n, month)
	}
	return nil
}

func batchesSent(ctx context.Context, n int) error {
	if got := len(getWorld(ctx).svc.Batches()); got != n {
		return fmt.Errorf("%d batches sent, want %d", got, n)
	}
	return nil
}

func monthRecord(ctx context.Context, name string, year int) (core.MonthRecord, error) {
	m, err := core.ParseMonthName(name)
	if err != nil {
		return core.MonthRecord{}, err
	}
	return getWorld(ctx).console.Store.Month(core.FiscalYear(year), m), nil
}

func itemHasProvenance(ctx context.Context, title, name string, year int, provenance string) error {
	rec, err := monthRecord(ctx, name, year)
	if err != nil {
		return err
	}
	for _, it := range rec.Items {
		if it.Title() == title {
			if string(it.Provenance) != provenance {
				return fmt.Errorf("%q is %s, want %s", title, it.Provenance, provenance)
			}
			return nil
		}
	}
	return fmt.Errorf("%q not found in %s %d", title, name, year)
}

func monthHasStatus(ctx context.Context, name string, year int, status string) error {
	rec, err := monthRecord(ctx, name, year)
	if err != nil {
		return err
	}
	if string(rec.Status) != status {
		return fmt.Errorf("%s %d is %s, want %s", name, year, rec.Status, status)
	}
	return nil
}

func monthHasItems(ctx context.Context, name string, year, n int) error {
	rec, err := monthRecord(ctx, name, year)
	if err != nil {
		return err
	}
	if len(rec.Items) != n {
		return fmt.Errorf("%s %d has %d items, want %d", name, year, len(rec.Items), n)
	}
	return nil
}

func lastNotificationIs(ctx context.Context, level string) error {
	n, ok := getWorld(ctx).notes.Last()
	if !ok {
		return errors.New("no notifications")
	}
	if string(n.Level) != level {
		return fmt.Errorf("last notification is %s (%q), want %s", n.Level, n.Message, level)
	}
	return nil
}

func saveFailsWithoutMapping(ctx context.Context) error {
	if err := getWorld(ctx).saveErr; !errors.Is(err, core.ErrMissingLedgerMapping) {
		return fmt.Errorf("expected a missing ledger mapping error, got %v", err)
	}
	return nil
}
