// Package session is the typed cache of the last known remote state and of
// unsaved draft months. It is a fallback for when the finance service is
// unreachable, never a store of record.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
)

// KV is the key-value surface a session cache is built on.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

const (
	keyYears     = "years"
	keyLedgerIDs = "ledger_ids"
)

func budgetKey(year core.FiscalYear) string { return fmt.Sprintf("budget/%d", year) }

func monthKey(year core.FiscalYear, m core.MonthIndex) string {
	return fmt.Sprintf("month/%d/%02d", year, m.Number())
}

// MonthEntry is a cached month plus whether it holds local changes not yet saved.
type MonthEntry struct {
	Record   core.MonthRecord `json:"record"`
	Modified bool             `json:"modified"`
	SavedAt  time.Time        `json:"savedAt"`
}

// Cache reads and writes session state through a KV. KV failures are logged
// and reported as misses so a broken cache never blocks the ledger.
type Cache struct {
	kv     KV
	logger *log.Logger
	now    func() time.Time
}

func New(kv KV, logger *log.Logger) *Cache {
	if logger == nil {
		logger = log.Default(log.ComponentSession)
	}
	return &Cache{kv: kv, logger: logger.WithComponent(log.ComponentSession), now: time.Now}
}

func (c *Cache) get(ctx context.Context, key string, dst any) bool {
	raw, ok, err := c.kv.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "Session cache read failed", "key", key, log.FieldError, err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WarnContext(ctx, "Session cache entry unreadable", "key", key, log.FieldError, err)
		return false
	}
	return true
}

func (c *Cache) put(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		c.logger.ErrorContext(ctx, "Session cache encode failed", "key", key, log.FieldError, err)
		return
	}
	if err := c.kv.Set(ctx, key, raw); err != nil {
		c.logger.WarnContext(ctx, "Session cache write failed", "key", key, log.FieldError, err)
	}
}

func (c *Cache) Years(ctx context.Context) ([]core.FiscalYear, bool) {
	var years []core.FiscalYear
	ok := c.get(ctx, keyYears, &years)
	return years, ok
}

func (c *Cache) PutYears(ctx context.Context, years []core.FiscalYear) {
	c.put(ctx, keyYears, years)
}

// LedgerIDs returns the cached year to ledger id mapping.
func (c *Cache) LedgerIDs(ctx context.Context) map[core.FiscalYear]string {
	ids := map[core.FiscalYear]string{}
	c.get(ctx, keyLedgerIDs, &ids)
	return ids
}

func (c *Cache) PutLedgerIDs(ctx context.Context, ids map[core.FiscalYear]string) {
	c.put(ctx, keyLedgerIDs, ids)
}

func (c *Cache) Budget(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, bool) {
	var b core.AnnualBudget
	ok := c.get(ctx, budgetKey(year), &b)
	return b, ok
}

func (c *Cache) PutBudget(ctx context.Context, b core.AnnualBudget) {
	c.put(ctx, budgetKey(b.Year), b)
}

func (c *Cache) Month(ctx context.Context, year core.FiscalYear, m core.MonthIndex) (MonthEntry, bool) {
	var e MonthEntry
	if !c.get(ctx, monthKey(year, m), &e) {
		return MonthEntry{}, false
	}
	if e.Record.Items == nil {
		e.Record.Items = []core.LineItem{}
	}
	return e, true
}

// Months returns every cached month of the year keyed by month index.
func (c *Cache) Months(ctx context.Context, year core.FiscalYear) map[core.MonthIndex]MonthEntry {
	out := map[core.MonthIndex]MonthEntry{}
	for _, m := range core.AllMonths() {
		if e, ok := c.Month(ctx, year, m); ok {
			out[m] = e
		}
	}
	return out
}

func (c *Cache) PutMonth(ctx context.Context, rec core.MonthRecord, modified bool) {
	c.put(ctx, monthKey(rec.Year, rec.Month), MonthEntry{Record: rec, Modified: modified, SavedAt: c.now().UTC()})
}
