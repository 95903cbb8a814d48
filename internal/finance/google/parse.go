package google

import (
	"fmt"
	"strconv"
	"strings"

	"ledger/internal/core"
	"ledger/internal/finance"

	"github.com/shopspring/decimal"
)

// ledgerRow is one line of the Ledgers sheet. Row is the 1-based sheet row.
type ledgerRow struct {
	Year     core.FiscalYear
	LedgerID string
	Budget   decimal.Decimal
	Row      int
}

// parseLedgerRows reads Year, LedgerID, TotalBudget rows. Headers and rows
// without a numeric year are skipped; a later row for the same year wins.
func parseLedgerRows(values [][]any) []ledgerRow {
	byYear := map[core.FiscalYear]int{}
	var out []ledgerRow
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 2 {
			continue
		}
		y, err := strconv.Atoi(cols[0])
		if err != nil || y <= 0 {
			continue
		}
		budget := decimal.Zero
		if len(raw) >= 3 {
			if d, ok := parseCellAmount(raw[2]); ok {
				budget = d
			}
		}
		row := ledgerRow{Year: core.FiscalYear(y), LedgerID: cols[1], Budget: budget, Row: i + 1}
		if j, seen := byYear[row.Year]; seen {
			out[j] = row
			continue
		}
		byYear[row.Year] = len(out)
		out = append(out, row)
	}
	return out
}

func findRow(rows []ledgerRow, year core.FiscalYear) (ledgerRow, bool) {
	for _, r := range rows {
		if r.Year == year {
			return r, true
		}
	}
	return ledgerRow{}, false
}

type monthItem struct {
	Month core.MonthIndex
	finance.RemoteItem
}

// parseExpenseRows reads Month, ItemID, Item, Description, Category, Amount
// rows. Rows whose month or amount cannot be parsed are skipped. Rows
// without an id get a deterministic one from their position.
func parseExpenseRows(year core.FiscalYear, values [][]any) []monthItem {
	var out []monthItem
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 6 {
			continue
		}
		m, err := core.ParseMonthName(cols[0])
		if err != nil {
			continue
		}
		amount, ok := parseCellAmount(raw[5])
		if !ok {
			continue
		}
		id := cols[1]
		if id == "" {
			id = fmt.Sprintf("row-%d-%d", year, i+1)
		}
		out = append(out, monthItem{Month: m, RemoteItem: finance.RemoteItem{
			ID:          id,
			ItemName:    cols[2],
			Description: cols[3],
			Category:    cols[4],
			Amount:      amount,
		}})
	}
	return out
}

// groupByMonth reports only months that have rows, in calendar order.
func groupByMonth(items []monthItem) []finance.MonthlyFinance {
	var byMonth [12][]finance.RemoteItem
	for _, it := range items {
		byMonth[it.Month] = append(byMonth[it.Month], it.RemoteItem)
	}
	var out []finance.MonthlyFinance
	for _, m := range core.AllMonths() {
		if len(byMonth[m]) == 0 {
			continue
		}
		total := decimal.Zero
		for _, it := range byMonth[m] {
			total = total.Add(it.Amount)
		}
		out = append(out, finance.MonthlyFinance{MonthName: m.String(), TotalSpent: total, Items: byMonth[m]})
	}
	return out
}

// parseCellAmount accepts unformatted numbers and user-typed strings.
func parseCellAmount(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case float64:
		if x < 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case int:
		if x < 0 {
			return decimal.Zero, false
		}
		return decimal.NewFromInt(int64(x)), true
	default:
		d, err := core.ParseAmount(fmt.Sprint(v))
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	}
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
