package search

import (
	"encoding/json"
	"log"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const (
	idxLeads      = "homebase_leads"
	idxProperties = "homebase_properties"
)

// LeadRecord and PropertyRecord are the flat documents pushed to the index.
type LeadRecord struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Notes  string `json:"notes"`
	Status string `json:"status"`
}

type PropertyRecord struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
	Type    string `json:"type"`
	Status  string `json:"status"`
}

// Meili indexes leads and properties in Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the two indexes. The
// client starts unhealthy if the initial connection fails; a background loop
// keeps probing so search recovers without a restart.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		searchable []string
	}{
		{uid: idxLeads, searchable: []string{"name", "email", "phone", "notes"}},
		{uid: idxProperties, searchable: []string{"name", "address", "type"}},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			log.Printf("search: create index %s (may already exist): %v", idx.uid, err)
		}
		searchable := idx.searchable
		if _, err := m.client.Index(idx.uid).UpdateSearchableAttributes(&searchable); err != nil {
			log.Printf("search: update searchable attrs for %s: %v", idx.uid, err)
		}
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
				log.Println("search: meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) IndexLeads(records []LeadRecord) {
	if len(records) == 0 {
		return
	}
	if _, err := m.client.Index(idxLeads).AddDocuments(records, nil); err != nil {
		log.Printf("search: index leads: %v", err)
	}
}

func (m *Meili) IndexProperties(records []PropertyRecord) {
	if len(records) == 0 {
		return
	}
	if _, err := m.client.Index(idxProperties).AddDocuments(records, nil); err != nil {
		log.Printf("search: index properties: %v", err)
	}
}

func (m *Meili) DeleteLead(id string) {
	if _, err := m.client.Index(idxLeads).DeleteDocument(id, nil); err != nil {
		log.Printf("search: delete lead %s: %v", id, err)
	}
}

func (m *Meili) DeleteProperty(id string) {
	if _, err := m.client.Index(idxProperties).DeleteDocument(id, nil); err != nil {
		log.Printf("search: delete property %s: %v", id, err)
	}
}

// Search queries both indexes (or a filtered subset) in one round trip and
// merges the hits.
func (m *Meili) Search(q Query) ([]Result, error) {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	if q.FilterType == "" || q.FilterType == ResultLead {
		queries = append(queries, &meili.SearchRequest{IndexUID: idxLeads, Query: q.Text, Limit: limit})
	}
	if q.FilterType == "" || q.FilterType == ResultProperty {
		queries = append(queries, &meili.SearchRequest{IndexUID: idxProperties, Query: q.Text, Limit: limit})
	}
	if len(queries) == 0 {
		return nil, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, err
	}

	var results []Result
	for _, sr := range resp.Results {
		switch sr.IndexUID {
		case idxLeads:
			for _, hit := range sr.Hits {
				results = append(results, Result{
					Type:    ResultLead,
					ID:      decodeString(hit, "id"),
					Title:   decodeString(hit, "name"),
					Snippet: decodeString(hit, "email"),
				})
			}
		case idxProperties:
			for _, hit := range sr.Hits {
				results = append(results, Result{
					Type:    ResultProperty,
					ID:      decodeString(hit, "id"),
					Title:   decodeString(hit, "name"),
					Snippet: decodeString(hit, "address"),
				})
			}
		}
	}
	return results, nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
