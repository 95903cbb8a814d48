// Package google implements the finance gateway on a Google spreadsheet.
//
// Layout: a Ledgers sheet with one row per year (Year, LedgerID, TotalBudget)
// and one "<year> Expenses" sheet per year with rows of
// (Month, ItemID, Item, Description, Category, Amount). Month is one-based.
package google

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/log"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const ledgersCacheKey = "ledgers"

var (
	ledgerHeader  = []any{"Year", "LedgerID", "TotalBudget"}
	expenseHeader = []any{"Month", "ItemID", "Item", "Description", "Category", "Amount"}
)

type Config struct {
	SpreadsheetID string
	LedgersSheet  string
	ExpensesSheet string
	// CacheTTL bounds how long the Ledgers sheet is served from memory.
	CacheTTL time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgersSheet  string
	expensesBase  string
	logger        *log.Logger

	// serializes writers so row numbers stay valid between read and update
	mu      sync.Mutex
	ledgers *cache.LRUCache[[]ledgerRow]
}

var _ finance.Gateway = (*Client)(nil)

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default(log.ComponentGateway)
	}
	if cfg.LedgersSheet == "" {
		cfg.LedgersSheet = "Ledgers"
	}
	if cfg.ExpensesSheet == "" {
		cfg.ExpensesSheet = "Expenses"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		ledgersSheet:  cfg.LedgersSheet,
		expensesBase:  cfg.ExpensesSheet,
		logger:        logger.WithComponent(log.ComponentGateway),
		ledgers:       cache.NewLRUCache[[]ledgerRow](1, cfg.CacheTTL),
	}
}

// NewFromConfig creates a client authenticated with service account credentials.
func NewFromConfig(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if logger == nil {
		logger = log.Default(log.ComponentGateway)
	}
	svc, err := newSheetsService(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, cfg, logger), nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context, logger *log.Logger) (*gsheet.Service, error) {
	credentialsJSON, source, err := serviceAccountCredentials()
	if err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "Creating Google Sheets service", "credentials", source, "scope", gsheet.SpreadsheetsScope)
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return svc, nil
}

func serviceAccountCredentials() ([]byte, string, error) {
	if js := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); js != "" {
		return []byte(js), "inline", nil
	}
	path := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, "", errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read service account file: %w", err)
	}
	return b, "file", nil
}

func (c *Client) FetchAvailableYears(ctx context.Context) ([]finance.YearEntry, error) {
	rows, err := c.ledgerRows(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]finance.YearEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, finance.YearEntry{Year: r.Year, LedgerID: r.LedgerID})
	}
	return out, nil
}

func (c *Client) FetchAnnualBudget(ctx context.Context, year core.FiscalYear) (finance.BudgetSummary, error) {
	row, err := c.findYear(ctx, year)
	if err != nil {
		return finance.BudgetSummary{}, err
	}
	items, err := c.expenseRows(ctx, year)
	if err != nil {
		return finance.BudgetSummary{}, err
	}
	spent := decimal.Zero
	for _, it := range items {
		spent = spent.Add(it.Amount)
	}
	agg := core.ComputeAggregate(year, row.Budget, spent, core.SourceRemote)
	return finance.BudgetSummary{
		Year:            year,
		LedgerID:        row.LedgerID,
		TotalBudget:     agg.TotalBudget,
		TotalSpent:      agg.TotalSpent,
		RemainingBudget: agg.RemainingBudget,
		PercentageSpent: agg.PercentageSpent,
	}, nil
}

// CreateAnnualBudget writes a fresh ledger row for year, replacing an
// existing one, and makes sure the year's expenses sheet exists.
func (c *Client) CreateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (finance.BudgetSummary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureSheet(ctx, c.expensesSheet(year), expenseHeader); err != nil {
		return finance.BudgetSummary{}, err
	}
	if err := c.ensureSheet(ctx, c.ledgersSheet, ledgerHeader); err != nil {
		return finance.BudgetSummary{}, err
	}

	id := uuid.NewString()
	values := []any{int(year), id, core.FormatAmount(amount)}
	rows, err := c.readLedgers(ctx)
	if err != nil {
		return finance.BudgetSummary{}, err
	}
	if existing, ok := findRow(rows, year); ok {
		err = c.updateRow(ctx, fmt.Sprintf("%s!A%d:C%d", quote(c.ledgersSheet), existing.Row, existing.Row), values)
	} else {
		err = c.appendRows(ctx, fmt.Sprintf("%s!A:C", quote(c.ledgersSheet)), [][]any{values})
	}
	c.ledgers.Delete(ledgersCacheKey)
	if err != nil {
		return finance.BudgetSummary{}, err
	}
	c.logger.InfoContext(ctx, "Ledger row written", log.NewFields().WithYear(int(year)).WithLedgerID(id).ToSlice()...)

	agg := core.ComputeAggregate(year, amount, decimal.Zero, core.SourceRemote)
	return finance.BudgetSummary{
		Year:            year,
		LedgerID:        id,
		TotalBudget:     agg.TotalBudget,
		TotalSpent:      agg.TotalSpent,
		RemainingBudget: agg.RemainingBudget,
		PercentageSpent: agg.PercentageSpent,
	}, nil
}

func (c *Client) UpdateAnnualBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.readLedgers(ctx)
	if err != nil {
		return err
	}
	row, ok := findRow(rows, year)
	if !ok {
		return fmt.Errorf("budget %d: %w", year, core.ErrNotFound)
	}
	rng := fmt.Sprintf("%s!C%d", quote(c.ledgersSheet), row.Row)
	err = c.updateRow(ctx, rng, []any{core.FormatAmount(amount)})
	c.ledgers.Delete(ledgersCacheKey)
	return err
}

func (c *Client) FetchMonthlyFinance(ctx context.Context, year core.FiscalYear) ([]finance.MonthlyFinance, error) {
	if _, err := c.findYear(ctx, year); err != nil {
		return nil, err
	}
	items, err := c.expenseRows(ctx, year)
	if err != nil {
		return nil, err
	}
	return groupByMonth(items), nil
}

// SaveBatch appends all items in a single append call so a failure leaves
// the sheet untouched.
func (c *Client) SaveBatch(ctx context.Context, ledgerID string, month int, items []finance.NewItem) error {
	m, err := core.MonthFromNumber(month)
	if err != nil {
		return err
	}
	rows, err := c.ledgerRows(ctx)
	if err != nil {
		return err
	}
	var year core.FiscalYear
	for _, r := range rows {
		if r.LedgerID == ledgerID {
			year = r.Year
			break
		}
	}
	if year == 0 {
		return fmt.Errorf("ledger %q: %w", ledgerID, core.ErrNotFound)
	}

	values := make([][]any, 0, len(items))
	for _, it := range items {
		values = append(values, []any{m.Number(), uuid.NewString(), it.ItemName, it.Description, it.Category, core.FormatAmount(it.Amount)})
	}
	rng := fmt.Sprintf("%s!A:F", quote(c.expensesSheet(year)))
	if err := c.appendRows(ctx, rng, values); err != nil {
		return err
	}
	c.logger.InfoContext(ctx, "Expense rows appended",
		log.NewFields().WithYear(int(year)).WithMonth(month).WithLedgerID(ledgerID).WithItemCount(len(values)).ToSlice()...)
	return nil
}

func (c *Client) expensesSheet(year core.FiscalYear) string {
	return yearPrefixedName(c.expensesBase, int(year))
}

func (c *Client) findYear(ctx context.Context, year core.FiscalYear) (ledgerRow, error) {
	rows, err := c.ledgerRows(ctx)
	if err != nil {
		return ledgerRow{}, err
	}
	row, ok := findRow(rows, year)
	if !ok {
		return ledgerRow{}, fmt.Errorf("ledger %d: %w", year, core.ErrNotFound)
	}
	return row, nil
}

// ledgerRows serves the Ledgers sheet from cache when fresh.
func (c *Client) ledgerRows(ctx context.Context) ([]ledgerRow, error) {
	if rows, ok := c.ledgers.Get(ledgersCacheKey); ok {
		return rows, nil
	}
	return c.readLedgers(ctx)
}

func (c *Client) readLedgers(ctx context.Context) ([]ledgerRow, error) {
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A:C", quote(c.ledgersSheet)))
	if err != nil {
		return nil, err
	}
	rows := parseLedgerRows(values)
	c.ledgers.Set(ledgersCacheKey, rows)
	return rows, nil
}

func (c *Client) expenseRows(ctx context.Context, year core.FiscalYear) ([]monthItem, error) {
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A:F", quote(c.expensesSheet(year))))
	if err != nil {
		return nil, err
	}
	return parseExpenseRows(year, values), nil
}

// readRange returns no rows for a sheet that does not exist.
func (c *Client) readRange(ctx context.Context, rng string) ([][]any, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").Context(ctx).Do()
	if err != nil {
		if isMissingSheet(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", rng, mapError(err))
	}
	return resp.Values, nil
}

func (c *Client) appendRows(ctx context.Context, rng string, values [][]any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	vr := &gsheet.ValueRange{Values: values}
	_, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, mapError(err))
	}
	return nil
}

func (c *Client) updateRow(ctx context.Context, rng string, values []any) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	vr := &gsheet.ValueRange{Values: [][]any{values}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, mapError(err))
	}
	return nil
}

// ensureSheet adds the sheet with its header row when it is missing.
func (c *Client) ensureSheet(ctx context.Context, name string, header []any) error {
	values, err := c.readRange(ctx, fmt.Sprintf("%s!A1:A1", quote(name)))
	if err != nil {
		return err
	}
	if values != nil {
		return nil
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("add sheet %s: %w", name, mapError(err))
	}
	c.logger.InfoContext(ctx, "Sheet added", "sheet", name)
	return c.appendRows(ctx, fmt.Sprintf("%s!A1", quote(name)), [][]any{header})
}

func quote(sheet string) string {
	return "'" + strings.ReplaceAll(sheet, "'", "''") + "'"
}

func apiError(err error) (*googleapi.Error, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr, true
	}
	return nil, false
}

func mapError(err error) error {
	if gerr, ok := apiError(err); ok && gerr.Code == 404 {
		return fmt.Errorf("%w: %v", core.ErrNotFound, err)
	}
	return err
}

// isMissingSheet matches the 400 the API returns for a range on an unknown sheet.
func isMissingSheet(err error) bool {
	gerr, ok := apiError(err)
	return ok && gerr.Code == 400 && strings.Contains(gerr.Message, "Unable to parse range")
}

func isAlreadyExists(err error) bool {
	gerr, ok := apiError(err)
	return ok && gerr.Code == 400 && strings.Contains(gerr.Message, "already exists")
}
