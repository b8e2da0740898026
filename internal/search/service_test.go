package search

import (
	"context"
	"testing"

	"homebase/api/internal/remote"
	"homebase/api/internal/store"
)

type staticClient struct {
	tables map[string][]remote.Row
}

func (c *staticClient) Select(ctx context.Context, table string) ([]remote.Row, error) {
	return c.tables[table], nil
}

func (c *staticClient) Insert(ctx context.Context, table string, payload remote.Row) (remote.Row, error) {
	return payload, nil
}

func (c *staticClient) Update(ctx context.Context, table string, id string, patch remote.Row) (remote.Row, error) {
	return patch, nil
}

func (c *staticClient) Delete(ctx context.Context, table string, id string) error {
	return nil
}

func testStore(t *testing.T) *store.EntityStore {
	client := &staticClient{tables: map[string][]remote.Row{
		"leads": {
			{"id": "l1", "name": "Ana Costa", "email": "ana@example.com", "notes": "riverside T2"},
			{"id": "l2", "name": "Bruno Dias", "email": "bruno@example.com"},
		},
		"tasks":        {},
		"events":       {},
		"transactions": {},
		"messages":     {},
		"listings": {
			{"id": "p1", "name": "Casa do Rio", "address": "Rua das Flores 12, Porto"},
		},
	}}
	s := store.NewEntityStore(client)
	if err := s.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	return s
}

func TestScanFallbackMatchesBothKinds(t *testing.T) {
	service := NewService(nil, testStore(t))

	resp := service.Search(Query{Text: "rio"})
	if resp.Total != 1 {
		t.Fatalf("expected 1 result for %q, got %d", "rio", resp.Total)
	}
	if resp.Results[0].Type != ResultProperty || resp.Results[0].ID != "p1" {
		t.Fatalf("unexpected result %+v", resp.Results[0])
	}

	resp = service.Search(Query{Text: "ana"})
	if resp.Total != 1 || resp.Results[0].Type != ResultLead {
		t.Fatalf("expected the lead, got %+v", resp.Results)
	}
}

func TestScanFallbackFilterAndLimit(t *testing.T) {
	service := NewService(nil, testStore(t))

	resp := service.Search(Query{Text: "example.com", FilterType: ResultLead})
	if resp.Total != 2 {
		t.Fatalf("expected 2 leads, got %d", resp.Total)
	}

	resp = service.Search(Query{Text: "example.com", FilterType: ResultLead, Limit: 1})
	if resp.Total != 1 {
		t.Fatalf("limit not applied, got %d", resp.Total)
	}
}

func TestScanFallbackEmptyQuery(t *testing.T) {
	service := NewService(nil, testStore(t))
	resp := service.Search(Query{Text: "   "})
	if resp.Total != 0 {
		t.Fatalf("blank query should match nothing, got %d", resp.Total)
	}
	if resp.Results == nil {
		t.Fatal("results must be non-nil for JSON encoding")
	}
}
