// Package finance defines the port to the remote finance service and the
// wire shapes it speaks. Nothing outside this package tree talks to the
// service directly.
package finance

import (
	"context"

	"ledger/internal/core"

	"github.com/shopspring/decimal"
)

// Wire shapes exchanged with the finance service.
type (
	YearEntry struct {
		Year     core.FiscalYear `json:"year"`
		LedgerID string          `json:"ledgerId"`
	}

	// BudgetSummary is the annual budget together with the aggregate the service computed.
	BudgetSummary struct {
		Year            core.FiscalYear `json:"year"`
		LedgerID        string          `json:"ledgerId"`
		TotalBudget     decimal.Decimal `json:"totalBudget"`
		TotalSpent      decimal.Decimal `json:"totalSpent"`
		RemainingBudget decimal.Decimal `json:"remainingBudget"`
		PercentageSpent decimal.Decimal `json:"percentageSpent"`
	}

	RemoteItem struct {
		ID          string          `json:"id"`
		Category    string          `json:"category"`
		ItemName    string          `json:"itemName"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}

	// MonthlyFinance reports one month by name, as the service enumerates them.
	MonthlyFinance struct {
		MonthName  string          `json:"monthName"`
		TotalSpent decimal.Decimal `json:"totalSpent"`
		Items      []RemoteItem    `json:"items"`
	}

	NewItem struct {
		ItemName    string          `json:"itemName"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
	}
)

// Ports for outbound adapters.
type (
	YearLister interface {
		FetchAvailableYears(ctx context.Context) ([]YearEntry, error)
	}

	BudgetReader interface {
		// FetchAnnualBudget returns core.ErrNotFound when the year has no ledger.
		FetchAnnualBudget(ctx context.Context, year core.FiscalYear) (BudgetSummary, error)
	}

	BudgetWriter interface {
		// CreateAnnualBudget is not idempotent; check FetchAnnualBudget first.
		CreateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (BudgetSummary, error)
		UpdateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) error
	}

	MonthlyReader interface {
		FetchMonthlyFinance(ctx context.Context, year core.FiscalYear) ([]MonthlyFinance, error)
	}

	BatchWriter interface {
		// SaveBatch appends items to a ledger month. month is one-based (1 = January).
		// The batch is all or nothing.
		SaveBatch(ctx context.Context, ledgerID string, month int, items []NewItem) error
	}

	// Gateway is the full surface of the finance service.
	Gateway interface {
		YearLister
		BudgetReader
		BudgetWriter
		MonthlyReader
		BatchWriter
	}
)

// ToNewItem builds the save payload for a draft line item.
func ToNewItem(it core.LineItem) NewItem {
	return NewItem{
		ItemName:    it.Title(),
		Category:    it.Category,
		Description: it.Description,
		Amount:      it.Amount,
	}
}

// ToLineItem converts a remote item into a persisted line item.
func (r RemoteItem) ToLineItem() core.LineItem {
	return core.LineItem{
		ID:          r.ID,
		Name:        r.ItemName,
		Description: r.Description,
		Amount:      r.Amount,
		Category:    r.Category,
		Provenance:  core.ProvenancePersistedRemote,
	}
}

// Aggregate returns the service-computed aggregate carried by the summary.
func (b BudgetSummary) Aggregate() core.BudgetAggregate {
	return core.BudgetAggregate{
		Year:            b.Year,
		TotalBudget:     b.TotalBudget,
		TotalSpent:      b.TotalSpent,
		RemainingBudget: b.RemainingBudget,
		PercentageSpent: b.PercentageSpent,
		Source:          core.SourceRemote,
	}
}

func (b BudgetSummary) Budget() core.AnnualBudget {
	return core.AnnualBudget{Year: b.Year, TotalBudget: b.TotalBudget, LedgerID: b.LedgerID}
}
