package search

import (
	"log"
	"strings"

	"homebase/api/internal/store"
)

// Service is the facade that tries Meilisearch first and falls back to an
// in-memory scan of the entity store.
type Service struct {
	meili *Meili
	store *store.EntityStore
}

// NewService creates a search service. meili may be nil if Meilisearch is
// not configured.
func NewService(meili *Meili, entityStore *store.EntityStore) *Service {
	return &Service{meili: meili, store: entityStore}
}

// Search tries Meilisearch if healthy, otherwise scans the store.
func (s *Service) Search(q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, err := s.meili.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: len(results), Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to store scan: %v", err)
	}

	results := s.scan(q)
	return Response{Results: results, Total: len(results), Query: q.Text}
}

// scan is the fallback path: case-insensitive substring match over the
// collections already held in memory.
func (s *Service) scan(q Query) []Result {
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	results := []Result{}
	if needle == "" {
		return results
	}

	if q.FilterType == "" || q.FilterType == ResultLead {
		for _, lead := range s.store.Leads() {
			if len(results) >= limit {
				return results
			}
			haystack := strings.ToLower(lead.Name + " " + lead.Email + " " + lead.Phone + " " + lead.Notes)
			if strings.Contains(haystack, needle) {
				results = append(results, Result{
					Type:    ResultLead,
					ID:      lead.ID,
					Title:   lead.Name,
					Snippet: lead.Email,
				})
			}
		}
	}
	if q.FilterType == "" || q.FilterType == ResultProperty {
		for _, property := range s.store.Properties() {
			if len(results) >= limit {
				return results
			}
			haystack := strings.ToLower(property.Name + " " + property.Address + " " + property.Type)
			if strings.Contains(haystack, needle) {
				results = append(results, Result{
					Type:    ResultProperty,
					ID:      property.ID,
					Title:   property.Name,
					Snippet: property.Address,
				})
			}
		}
	}
	return results
}

// IndexAll pushes the current collections to Meilisearch (fire-and-forget).
func (s *Service) IndexAll() {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	leads := s.store.Leads()
	properties := s.store.Properties()
	go func() {
		records := make([]LeadRecord, 0, len(leads))
		for _, lead := range leads {
			records = append(records, LeadRecord{
				ID: lead.ID, Name: lead.Name, Email: lead.Email,
				Phone: lead.Phone, Notes: lead.Notes, Status: string(lead.Status),
			})
		}
		s.meili.IndexLeads(records)

		props := make([]PropertyRecord, 0, len(properties))
		for _, property := range properties {
			props = append(props, PropertyRecord{
				ID: property.ID, Name: property.Name, Address: property.Address,
				Type: property.Type, Status: property.Status,
			})
		}
		s.meili.IndexProperties(props)
	}()
}

// IndexLead upserts one lead in the index (fire-and-forget).
func (s *Service) IndexLead(lead store.Lead) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.IndexLeads([]LeadRecord{{
		ID: lead.ID, Name: lead.Name, Email: lead.Email,
		Phone: lead.Phone, Notes: lead.Notes, Status: string(lead.Status),
	}})
}

// IndexProperty upserts one property in the index (fire-and-forget).
func (s *Service) IndexProperty(property store.Property) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.IndexProperties([]PropertyRecord{{
		ID: property.ID, Name: property.Name, Address: property.Address,
		Type: property.Type, Status: property.Status,
	}})
}

// RemoveLead drops a lead from the index (fire-and-forget).
func (s *Service) RemoveLead(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.DeleteLead(id)
}

// RemoveProperty drops a property from the index (fire-and-forget).
func (s *Service) RemoveProperty(id string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go s.meili.DeleteProperty(id)
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
