package search

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	meili "github.com/meilisearch/meilisearch-go"
)

const idxPanes = "panehub_panes"

// Meili implements Searcher via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the pane index.
// An unreachable server is not an error; the client reports unhealthy and
// recovers when the server comes back.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		glog.Warningf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPanes,
		PrimaryKey: "id",
	}); err != nil {
		glog.V(1).Infof("search: create index %s (may already exist): %v", idxPanes, err)
	}

	index := m.client.Index(idxPanes)
	filterable := []interface{}{"eid", "type"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		glog.Warningf("search: update filterable attrs for %s: %v", idxPanes, err)
	}
	searchable := []string{"title"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		glog.Warningf("search: update searchable attrs for %s: %v", idxPanes, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				glog.Info("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Hit, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = defaultLimit
	}

	sr := &meili.SearchRequest{
		IndexUID: idxPanes,
		Query:    q.Text,
		Limit:    limit,
	}
	if q.Eid != "" {
		sr.Filter = []string{fmt.Sprintf("eid = %q", q.Eid)}
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var hits []Hit
	total := 0
	for _, result := range resp.Results {
		total += int(result.EstimatedTotalHits)
		for _, hit := range result.Hits {
			hits = append(hits, Hit{
				Eid:   decodeString(hit, "eid"),
				Win:   decodeString(hit, "win"),
				Title: decodeString(hit, "title"),
				Type:  decodeString(hit, "type"),
			})
		}
	}
	return hits, total, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// IndexPanes adds or updates pane records.
func (m *Meili) IndexPanes(records []PaneRecord) error {
	if len(records) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPanes).AddDocuments(records, nil)
	return err
}

// DeletePane removes one pane record.
func (m *Meili) DeletePane(id string) error {
	_, err := m.client.Index(idxPanes).DeleteDocument(id, nil)
	return err
}
