package ledger

import (
	"context"
	"testing"

	"ledger/internal/core"
	"ledger/internal/finance"
	"ledger/internal/finance/memory"
	"ledger/internal/notify"
)

func TestNormalizeRemoteMonthNames(t *testing.T) {
	remote := []finance.MonthlyFinance{
		{MonthName: "July", Items: []finance.RemoteItem{{ID: "a", ItemName: "A", Amount: dec("1")}}},
		{MonthName: "jul", Items: []finance.RemoteItem{{ItemName: "B", Amount: dec("2")}}},
		{MonthName: "3", Items: []finance.RemoteItem{{ID: "c", ItemName: "C", Amount: dec("3")}}},
		{MonthName: "Luglio"},
	}
	months, unmatched := NormalizeRemote(2025, remote)

	july, ok := months[6]
	if !ok || len(july.Items) != 2 {
		t.Fatalf("july not normalized to index 6: %+v", months)
	}
	if july.Items[1].ID == "" {
		t.Fatalf("missing id not synthesized")
	}
	for _, it := range july.Items {
		if it.Provenance != core.ProvenancePersistedRemote {
			t.Fatalf("remote item tagged %q", it.Provenance)
		}
	}
	if _, ok := months[2]; !ok {
		t.Fatalf("numeric month name not placed at index 2")
	}
	if len(unmatched) != 1 || unmatched[0] != "Luglio" {
		t.Fatalf("unexpected unmatched %v", unmatched)
	}
}

func TestMergeLocalWinsWholesale(t *testing.T) {
	// local march was seeded from two remote items and gained one draft
	local := persistedMonth(2025, 2, "r1", "r2")
	local.Items = append(local.Items, core.LineItem{ID: "d1", Amount: dec("450"), Provenance: core.ProvenanceNew})
	remote := map[core.MonthIndex]core.MonthRecord{
		2: persistedMonth(2025, 2, "x1", "x2"),
	}

	res := Merge(2025, remote, map[core.MonthIndex]LocalMonth{2: {Record: local, Modified: true}})

	march := res.Months[2].Record
	if res.Sources[2] != FromLocal || len(march.Items) != 3 {
		t.Fatalf("expected the 3 local items, got %d from %s", len(march.Items), res.Sources[2])
	}
	for _, it := range march.Items {
		if it.ID == "x1" || it.ID == "x2" {
			t.Fatalf("remote item %s unioned into a locally modified month", it.ID)
		}
	}
	if !res.Months[2].Modified {
		t.Fatalf("local month lost its modified flag")
	}
}

func TestMergeRemoteAndEmptyMonths(t *testing.T) {
	remote := map[core.MonthIndex]core.MonthRecord{
		6: persistedMonth(2025, 6, "r1"),
		// a month the service reports with no items
		8: {Year: 2025, Month: 8, Status: core.StatusUploaded, Items: []core.LineItem{}},
	}
	// an unmodified local copy never beats the remote one
	stale := persistedMonth(2025, 6, "old")
	res := Merge(2025, remote, map[core.MonthIndex]LocalMonth{6: {Record: stale}})

	if res.Sources[6] != FromRemote || res.Months[6].Record.Items[0].ID != "r1" {
		t.Fatalf("july should come from remote: %+v", res.Months[6])
	}
	if res.Sources[8] != FromRemote || res.Months[8].Record.Status != core.StatusUploaded || len(res.Months[8].Record.Items) != 0 {
		t.Fatalf("uploaded month with zero items must stay uploaded: %+v", res.Months[8])
	}
	jan := res.Months[0].Record
	if res.Sources[0] != FromEmpty || jan.Status != core.StatusDraft || jan.Items == nil || len(jan.Items) != 0 {
		t.Fatalf("untouched month should be an empty draft: %+v", jan)
	}
	if len(res.List()) != 12 {
		t.Fatalf("expected twelve months")
	}
}

func TestMergeEngineFallsBackToCache(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.Seed(2025, dec("1000"))
	h.svc.SeedItems(2025, 5, remoteItem("Cleaning", "20"))
	if _, err := h.console.SelectYear(ctx, 2025, false); err != nil {
		t.Fatalf("select: %v", err)
	}

	h.notes.Reset()
	h.svc.FailAll()
	res, err := h.console.Merger.Load(ctx, 2025)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !res.Stale {
		t.Fatalf("expected stale result")
	}
	if may := res.Months[4].Record; len(may.Items) != 1 || may.Items[0].Name != "Cleaning" {
		t.Fatalf("cached may not used: %+v", may)
	}
	if h.notes.Count(notify.LevelWarning) != 1 {
		t.Fatalf("fallback must be paired with a warning, got %+v", h.notes.All())
	}
}

func TestMergeEngineCachedDraftsWin(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.svc.Seed(2025, dec("1000"))
	h.svc.SeedItems(2025, 4, remoteItem("Rent", "800"))
	if _, err := h.console.SelectYear(ctx, 2025, false); err != nil {
		t.Fatalf("select: %v", err)
	}
	march, april := core.MonthIndex(2), core.MonthIndex(3)
	if _, err := h.console.AddItem(ctx, 2025, march, fields("Lift service", "450", "Maintenance")); err != nil {
		t.Fatalf("add: %v", err)
	}

	// a new process sharing the cache sees the draft from the earlier session
	restarted := newHarnessWith(t, h.svc, h.kv)
	res, err := restarted.console.Merger.Load(ctx, 2025)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	got := res.Months[march].Record
	if res.Sources[march] != FromLocal || len(got.Items) != 1 || got.Items[0].Name != "Lift service" || got.Items[0].Provenance != core.ProvenanceNew {
		t.Fatalf("cached draft month should win: %+v", res.Months[march])
	}
	rent := res.Months[april].Record
	if res.Sources[april] != FromRemote || len(rent.Items) != 1 || rent.Items[0].Name != "Rent" {
		t.Fatalf("april should come from remote, got %s %+v", res.Sources[april], rent)
	}
}

func TestMergeEngineNotFoundIsEmpty(t *testing.T) {
	h := newHarness(t)
	res, err := h.console.Merger.Load(context.Background(), 2027)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	for m, src := range res.Sources {
		if src != FromEmpty {
			t.Fatalf("month %d from %s", m, src)
		}
	}
	if h.svc.Calls(memory.OpFetchMonthly) != 1 {
		t.Fatalf("expected one fetch")
	}
}
