package search

import (
	"context"
	"testing"

	"panehub/server/internal/pane"

	"github.com/google/go-cmp/cmp"
)

type fakeWalker map[string][]*pane.Pane

func (w fakeWalker) Walk(_ context.Context, fn func(eid string, p *pane.Pane)) {
	for eid, panes := range w {
		for _, p := range panes {
			fn(eid, p)
		}
	}
}

func testWalker() fakeWalker {
	return fakeWalker{
		"main": {
			{ID: "w1", Type: pane.TypePlot, Title: "Training Loss"},
			{ID: "w2", Type: pane.TypeText, Title: "notes"},
		},
		"exp": {
			{ID: "w3", Type: pane.TypePlot, Title: "validation loss"},
		},
	}
}

func TestScanMatchesTitles(t *testing.T) {
	s := NewScan(testWalker())

	hits, total, err := s.Search(Query{Text: "LOSS"})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	want := []Hit{
		{Eid: "exp", Win: "w3", Title: "validation loss", Type: "plot"},
		{Eid: "main", Win: "w1", Title: "Training Loss", Type: "plot"},
	}
	if diff := cmp.Diff(want, hits); diff != "" {
		t.Fatalf("hits mismatch (-want +got):\n%s", diff)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
}

func TestScanFiltersAndLimits(t *testing.T) {
	s := NewScan(testWalker())

	hits, _, _ := s.Search(Query{Text: "loss", Eid: "main"})
	if len(hits) != 1 || hits[0].Win != "w1" {
		t.Fatalf("hits = %v", hits)
	}
	hits, total, _ := s.Search(Query{Text: "loss", Limit: 1})
	if len(hits) != 1 || total != 2 {
		t.Fatalf("len(hits) = %d, total = %d", len(hits), total)
	}
	if hits, _, _ := s.Search(Query{Text: "  "}); len(hits) != 0 {
		t.Fatalf("blank query matched %v", hits)
	}
}

func TestServiceFallsBackToScan(t *testing.T) {
	svc := NewService(nil, NewScan(testWalker()))

	resp := svc.Search(Query{Text: "notes"})
	if resp.Total != 1 || resp.Results[0].Win != "w2" || resp.Query != "notes" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp := svc.Search(Query{Text: "nothing"}); resp.Results == nil {
		t.Fatal("results must be an empty list, not null")
	}

	// With no index configured the indexer calls are no-ops.
	svc.IndexPanes("main", []*pane.Pane{{ID: "x", Type: pane.TypeText}})
	svc.RemovePanes("main", []string{"x"})
	svc.RemoveEnv("main")
}

func TestRecordIDIsIndexSafe(t *testing.T) {
	id := recordID("a/b c", "window_1")
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
			t.Fatalf("record id %q has %q", id, r)
		}
	}
	if recordID("a", "bc") == recordID("ab", "c") {
		t.Fatal("record ids collide")
	}
}
