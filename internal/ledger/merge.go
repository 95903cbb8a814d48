package ledger

import (
	"context"
	"errors"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/log"
	"ledger/internal/notify"
	"ledger/internal/session"
)

// MonthSource tells which side of the merge a month came from.
type MonthSource string

const (
	FromLocal  MonthSource = "local"
	FromRemote MonthSource = "remote"
	FromEmpty  MonthSource = "empty"
)

// MergeResult holds one authoritative record per calendar month.
type MergeResult struct {
	Year    core.FiscalYear
	Months  [12]LocalMonth
	Sources [12]MonthSource
	// Unmatched lists remote month names that could not be placed.
	Unmatched []string
	// Stale is set when remote data came from the session cache.
	Stale bool
}

// List returns the months in calendar order.
func (r MergeResult) List() []LocalMonth {
	return append([]LocalMonth(nil), r.Months[:]...)
}

// NormalizeRemote places the service's months, which it names rather than
// numbers, at their zero-based calendar index. Every item is tagged
// persisted_remote. Items the service returned without an id get a stable one.
func NormalizeRemote(year core.FiscalYear, months []finance.MonthlyFinance) (map[core.MonthIndex]core.MonthRecord, []string) {
	out := map[core.MonthIndex]core.MonthRecord{}
	var unmatched []string
	for _, mf := range months {
		m, err := core.ParseMonthName(mf.MonthName)
		if err != nil {
			unmatched = append(unmatched, mf.MonthName)
			continue
		}
		rec, ok := out[m]
		if !ok {
			rec = core.MonthRecord{Year: year, Month: m, Status: core.StatusUploaded, Items: []core.LineItem{}}
		}
		for _, ri := range mf.Items {
			it := ri.ToLineItem()
			if it.ID == "" {
				it.ID = fmt.Sprintf("remote-%d-%02d-%d", year, m.Number(), len(rec.Items))
			}
			rec.Items = append(rec.Items, it)
		}
		out[m] = rec
	}
	return out, unmatched
}

// Merge applies the month precedence: a month with local modifications is
// taken from local in its entirety; otherwise the remote month is used;
// otherwise the month is an empty draft. Items are never unioned.
func Merge(year core.FiscalYear, remote map[core.MonthIndex]core.MonthRecord, local map[core.MonthIndex]LocalMonth) MergeResult {
	res := MergeResult{Year: year}
	for _, m := range core.AllMonths() {
		if lm, ok := local[m]; ok && lm.Modified {
			rec := lm.Record.Clone()
			rec.Year, rec.Month = year, m
			res.Months[m] = LocalMonth{Record: rec, Modified: true}
			res.Sources[m] = FromLocal
			continue
		}
		if rec, ok := remote[m]; ok {
			rec = rec.Clone()
			rec.Year, rec.Month = year, m
			res.Months[m] = LocalMonth{Record: rec}
			res.Sources[m] = FromRemote
			continue
		}
		res.Months[m] = LocalMonth{Record: core.EmptyMonth(year, m)}
		res.Sources[m] = FromEmpty
	}
	return res
}

// MergeEngine loads a year's months from the finance service and reconciles
// them with local drafts, from this session or a cached earlier one.
type MergeEngine struct {
	gw       finance.MonthlyReader
	store    *ItemStore
	cache    *session.Cache
	notifier notify.Notifier
	logger   *log.Logger
}

func NewMergeEngine(gw finance.MonthlyReader, store *ItemStore, cache *session.Cache, notifier notify.Notifier, logger *log.Logger) *MergeEngine {
	if logger == nil {
		logger = log.Default(log.ComponentMerge)
	}
	return &MergeEngine{gw: gw, store: store, cache: cache, notifier: notifier, logger: logger.WithComponent(log.ComponentMerge)}
}

// Load produces the merged view of year without touching the item store.
// An unreachable service falls back to cached months and marks the result stale.
func (e *MergeEngine) Load(ctx context.Context, year core.FiscalYear) (MergeResult, error) {
	cached := e.cache.Months(ctx, year)
	local := e.store.Snapshot(year)
	for m, entry := range cached {
		if _, ok := local[m]; !ok && entry.Modified {
			local[m] = LocalMonth{Record: entry.Record, Modified: true}
		}
	}

	var remote map[core.MonthIndex]core.MonthRecord
	stale := false
	months, err := e.gw.FetchMonthlyFinance(ctx, year)
	switch {
	case err == nil:
		var unmatched []string
		remote, unmatched = NormalizeRemote(year, months)
		if len(unmatched) > 0 {
			e.logger.WarnContext(ctx, "Ignoring unknown month names", log.FieldYear, int(year), "names", unmatched)
		}
		res := Merge(year, remote, local)
		res.Unmatched = unmatched
		e.logMerged(ctx, res)
		return res, nil
	case errors.Is(err, core.ErrNotFound):
		remote = map[core.MonthIndex]core.MonthRecord{}
	case isRemoteFailure(err):
		stale = true
		remote = map[core.MonthIndex]core.MonthRecord{}
		for m, entry := range cached {
			if !entry.Modified {
				remote[m] = entry.Record
			}
		}
		to := notify.ForYear(e.notifier, int(year))
		if len(cached) > 0 {
			notify.Warnf(ctx, to, "Could not load monthly data for %d; showing cached months", year)
		} else {
			notify.Errorf(ctx, to, "Could not load monthly data for %d: the finance service is unavailable", year)
		}
		e.logger.WarnContext(ctx, "Monthly data from cache", log.NewFields().WithYear(int(year)).WithError(err).ToSlice()...)
	default:
		return MergeResult{}, err
	}

	res := Merge(year, remote, local)
	res.Stale = stale
	e.logMerged(ctx, res)
	return res, nil
}

func (e *MergeEngine) logMerged(ctx context.Context, res MergeResult) {
	counts := map[MonthSource]int{}
	for _, src := range res.Sources {
		counts[src]++
	}
	e.logger.DebugContext(ctx, "Months merged",
		log.FieldYear, int(res.Year),
		"local", counts[FromLocal],
		"remote", counts[FromRemote],
		"empty", counts[FromEmpty],
		"stale", res.Stale)
}
