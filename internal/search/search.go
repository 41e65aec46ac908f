// Package search finds panes by title across every env.
package search

import (
	"encoding/hex"

	"panehub/server/internal/pane"
)

// Hit is a single search result.
type Hit struct {
	Eid   string `json:"eid"`
	Win   string `json:"win"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// Query describes a search request.
type Query struct {
	Text string
	// Eid restricts hits to one env when set.
	Eid   string
	Limit int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Hit  `json:"results"`
	Total   int    `json:"total"`
	Query   string `json:"query"`
}

// Searcher can execute a title search.
type Searcher interface {
	Search(q Query) ([]Hit, int, error)
	Healthy() bool
}

// PaneRecord is the data we index for a pane.
type PaneRecord struct {
	ID    string `json:"id"`
	Eid   string `json:"eid"`
	Win   string `json:"win"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// recordID derives an index key from eid and win. Index keys only allow
// alphanumerics, hyphens and underscores, so the pair is hex encoded.
func recordID(eid, win string) string {
	return hex.EncodeToString([]byte(eid + "\x00" + win))
}

func recordOf(eid string, p *pane.Pane) PaneRecord {
	return PaneRecord{
		ID:    recordID(eid, p.ID),
		Eid:   eid,
		Win:   p.ID,
		Title: p.Title,
		Type:  string(p.Type),
	}
}

func (r PaneRecord) hit() Hit {
	return Hit{Eid: r.Eid, Win: r.Win, Title: r.Title, Type: r.Type}
}

const defaultLimit = 20
