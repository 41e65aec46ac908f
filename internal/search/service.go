package search

import (
	"context"
	"sync"

	"panehub/server/internal/pane"

	"github.com/golang/glog"
)

// Service is the facade that tries Meilisearch first and falls back to a
// scan of the live envs. It also keeps the index in step with pane
// changes; index writes are fire-and-forget.
type Service struct {
	meili *Meili
	scan  *Scan

	mu      sync.Mutex
	indexed map[string]map[string]struct{} // eid -> wins pushed to meili
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, scan *Scan) *Service {
	return &Service{meili: meili, scan: scan, indexed: map[string]map[string]struct{}{}}
}

// Search tries Meilisearch if healthy, otherwise falls back to the scan.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		hits, total, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(hits), Total: total, Query: q.Text}
		}
		glog.Warningf("search: meilisearch error, falling back to scan: %v", err)
	}
	if s.scan == nil {
		return Response{Results: []Hit{}, Query: q.Text}
	}
	hits, total, err := s.scan.Search(q)
	if err != nil {
		glog.Errorf("search: scan error: %v", err)
		return Response{Results: []Hit{}, Query: q.Text}
	}
	return Response{Results: nonNil(hits), Total: total, Query: q.Text}
}

func (s *Service) indexing() bool {
	return s.meili != nil && s.meili.Healthy()
}

// IndexPanes records the current title and type of each pane.
func (s *Service) IndexPanes(eid string, panes []*pane.Pane) {
	if !s.indexing() || len(panes) == 0 {
		return
	}
	records := make([]PaneRecord, len(panes))
	s.mu.Lock()
	wins := s.indexed[eid]
	if wins == nil {
		wins = map[string]struct{}{}
		s.indexed[eid] = wins
	}
	for i, p := range panes {
		records[i] = recordOf(eid, p)
		wins[p.ID] = struct{}{}
	}
	s.mu.Unlock()

	go func() {
		if err := s.meili.IndexPanes(records); err != nil {
			glog.Warningf("search: index %d panes of env %s: %v", len(records), eid, err)
		}
	}()
}

func (s *Service) RemovePanes(eid string, wins []string) {
	if !s.indexing() || len(wins) == 0 {
		return
	}
	s.mu.Lock()
	for _, win := range wins {
		delete(s.indexed[eid], win)
	}
	s.mu.Unlock()
	s.deleteAsync(eid, wins)
}

func (s *Service) RemoveEnv(eid string) {
	if !s.indexing() {
		return
	}
	s.mu.Lock()
	wins := make([]string, 0, len(s.indexed[eid]))
	for win := range s.indexed[eid] {
		wins = append(wins, win)
	}
	delete(s.indexed, eid)
	s.mu.Unlock()
	s.deleteAsync(eid, wins)
}

func (s *Service) deleteAsync(eid string, wins []string) {
	if len(wins) == 0 {
		return
	}
	go func() {
		for _, win := range wins {
			if err := s.meili.DeletePane(recordID(eid, win)); err != nil {
				glog.Warningf("search: delete pane %s of env %s: %v", win, eid, err)
			}
		}
	}()
}

// ReindexAll pushes every pane the walker visits to Meilisearch. Called
// at startup when the index is healthy.
func (s *Service) ReindexAll(ctx context.Context, walker Walker) {
	if !s.indexing() {
		return
	}
	byEnv := map[string][]*pane.Pane{}
	walker.Walk(ctx, func(eid string, p *pane.Pane) {
		byEnv[eid] = append(byEnv[eid], p)
	})
	for eid, panes := range byEnv {
		s.IndexPanes(eid, panes)
	}
}

func nonNil(h []Hit) []Hit {
	if h == nil {
		return []Hit{}
	}
	return h
}
