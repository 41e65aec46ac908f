package search

import (
	"context"
	"sort"
	"strings"

	"panehub/server/internal/pane"
)

// Walker visits every pane of every env.
type Walker interface {
	Walk(ctx context.Context, fn func(eid string, p *pane.Pane))
}

// Scan implements Searcher by walking the live envs on every query. It is
// the fallback when no index is configured or the index is unhealthy.
type Scan struct {
	walker Walker
}

func NewScan(walker Walker) *Scan {
	return &Scan{walker: walker}
}

// Healthy always returns true; the envs are in process.
func (s *Scan) Healthy() bool {
	return true
}

// Search matches titles case-insensitively. Hits are ordered by env then
// pane id.
func (s *Scan) Search(q Query) ([]Hit, int, error) {
	text := strings.ToLower(strings.TrimSpace(q.Text))
	if text == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var hits []Hit
	s.walker.Walk(context.Background(), func(eid string, p *pane.Pane) {
		if q.Eid != "" && eid != q.Eid {
			return
		}
		if strings.Contains(strings.ToLower(p.Title), text) {
			hits = append(hits, recordOf(eid, p).hit())
		}
	})
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Eid != hits[j].Eid {
			return hits[i].Eid < hits[j].Eid
		}
		return hits[i].Win < hits[j].Win
	})
	total := len(hits)
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, total, nil
}
