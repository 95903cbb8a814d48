package core

import "github.com/shopspring/decimal"

type AggregateSource string

const (
	SourceRemote AggregateSource = "remote"
	SourceLocal  AggregateSource = "local"
)

// BudgetAggregate is the year-level spending summary shown on the dashboard.
type BudgetAggregate struct {
	Year            FiscalYear      `json:"year"`
	TotalBudget     decimal.Decimal `json:"totalBudget"`
	TotalSpent      decimal.Decimal `json:"totalSpent"`
	RemainingBudget decimal.Decimal `json:"remainingBudget"`
	PercentageSpent decimal.Decimal `json:"percentageSpent"`
	Source          AggregateSource `json:"source"`
}

var hundred = decimal.NewFromInt(100)

// ComputeAggregate derives remaining and percentage figures. A zero budget
// yields a zero percentage rather than a division error.
func ComputeAggregate(year FiscalYear, budget, spent decimal.Decimal, src AggregateSource) BudgetAggregate {
	pct := decimal.Zero
	if !budget.IsZero() {
		pct = spent.Div(budget).Mul(hundred).Round(2)
	}
	return BudgetAggregate{
		Year:            year,
		TotalBudget:     budget,
		TotalSpent:      spent,
		RemainingBudget: budget.Sub(spent),
		PercentageSpent: pct,
		Source:          src,
	}
}
