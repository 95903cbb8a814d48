package ledger

import (
	"testing"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/finance/memory"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"

	"github.com/shopspring/decimal"
)

type harness struct {
	console *Console
	svc     *memory.Service
	kv      *cache.KV
	notes   *notify.Recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, memory.New(), cache.NewKV(0))
}

// newHarnessWith builds a console over an existing service and cache, as a
// restarted process would.
func newHarnessWith(t *testing.T, svc *memory.Service, kv *cache.KV) *harness {
	t.Helper()
	notes := notify.NewRecorder(0)
	logger := log.Discard()
	c := NewConsole(Deps{
		Gateway:       finance.Guard(svc, time.Second, logger),
		Cache:         session.New(kv, logger),
		Notifier:      notes,
		Logger:        logger,
		Bounds:        core.DefaultYearBounds(),
		DefaultBudget: decimal.NewFromInt(120000),
	})
	return &harness{console: c, svc: svc, kv: kv, notes: notes}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fields(name, amount, category string) core.ItemFields {
	return core.ItemFields{Name: name, Description: name, Amount: dec(amount), Category: category}
}

func remoteItem(name, amount string) finance.RemoteItem {
	return finance.RemoteItem{ItemName: name, Description: name, Category: "General", Amount: dec(amount)}
}

func countProvenance(rec core.MonthRecord, p core.Provenance) int {
	n := 0
	for _, it := range rec.Items {
		if it.Provenance == p {
			n++
		}
	}
	return n
}
