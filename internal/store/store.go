package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"homebase/api/internal/remote"
)

const (
	tableLeads        = "leads"
	tableTasks        = "tasks"
	tableEvents       = "events"
	tableTransactions = "transactions"
	tableMessages     = "messages"
)

// EntityStore owns the six per-entity collections. Collections are replaced
// wholesale on load and mutated only after a remote write has been confirmed;
// a failed write leaves the collection untouched. All mutation from the
// outside goes through these methods, never directly to the remote client.
type EntityStore struct {
	client remote.Client
	writer *remote.Writer

	mu sync.RWMutex
	// generation invalidates in-flight results: confirmations carrying an
	// older generation (issued before a sign-out or reset) are discarded.
	generation    uint64
	propertyTable string

	leads        []Lead
	tasks        []Task
	events       []Event
	transactions []Transaction
	properties   []Property
	messages     []Message
}

func NewEntityStore(client remote.Client) *EntityStore {
	return &EntityStore{
		client:        client,
		writer:        remote.NewWriter(client),
		propertyTable: PropertyTableCurrent,
	}
}

func (s *EntityStore) gen() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Reset empties every collection and bumps the generation so results of
// writes still in flight are not applied to the next session's state.
func (s *EntityStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.leads = nil
	s.tasks = nil
	s.events = nil
	s.transactions = nil
	s.properties = nil
	s.messages = nil
	s.propertyTable = PropertyTableCurrent
}

// PropertyTable reports which remote table the session resolved for
// property data.
func (s *EntityStore) PropertyTable() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.propertyTable
}

// LoadAll populates all six collections concurrently. Each load settles
// independently; a failed load leaves its collection empty and the first
// failure is reported after all have finished.
func (s *EntityStore) LoadAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return s.LoadLeads(ctx) })
	g.Go(func() error { return s.LoadTasks(ctx) })
	g.Go(func() error { return s.LoadEvents(ctx) })
	g.Go(func() error { return s.LoadTransactions(ctx) })
	g.Go(func() error { return s.LoadMessages(ctx) })
	g.Go(func() error { return s.LoadProperties(ctx) })
	return g.Wait()
}

func (s *EntityStore) LoadLeads(ctx context.Context) error {
	gen := s.gen()
	rows, err := s.client.Select(ctx, tableLeads)
	if err != nil {
		return fmt.Errorf("load leads: %w", err)
	}
	leads := make([]Lead, 0, len(rows))
	for _, row := range rows {
		leads = append(leads, NormalizeLead(row))
	}
	sort.SliceStable(leads, func(i, j int) bool {
		return leads[i].CreatedAt.After(leads[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.leads = leads
	return nil
}

func (s *EntityStore) LoadTasks(ctx context.Context) error {
	gen := s.gen()
	rows, err := s.client.Select(ctx, tableTasks)
	if err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	tasks := make([]Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, NormalizeTask(row))
	}
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.tasks = tasks
	return nil
}

func (s *EntityStore) LoadEvents(ctx context.Context) error {
	gen := s.gen()
	rows, err := s.client.Select(ctx, tableEvents)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, NormalizeEvent(row))
	}
	sortEvents(events)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.events = events
	return nil
}

// Events sort by day then start time, ascending.
func sortEvents(events []Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].StartTime < events[j].StartTime
	})
}

func (s *EntityStore) LoadTransactions(ctx context.Context) error {
	gen := s.gen()
	rows, err := s.client.Select(ctx, tableTransactions)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	transactions := make([]Transaction, 0, len(rows))
	for _, row := range rows {
		transactions = append(transactions, NormalizeTransaction(row))
	}
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].CreatedAt.After(transactions[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.transactions = transactions
	return nil
}

func (s *EntityStore) LoadMessages(ctx context.Context) error {
	gen := s.gen()
	rows, err := s.client.Select(ctx, tableMessages)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, NormalizeMessage(row))
	}
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.After(messages[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.messages = messages
	return nil
}

// LoadProperties resolves the authoritative property table first, then keeps
// that choice for every later property write in the session.
func (s *EntityStore) LoadProperties(ctx context.Context) error {
	gen := s.gen()
	table, rows, err := ResolvePropertyTable(ctx, s.client)
	if err != nil {
		log.Printf("store: property load failed, collection stays empty: %v", err)
		return fmt.Errorf("load properties: %w", err)
	}
	properties := make([]Property, 0, len(rows))
	for _, row := range rows {
		properties = append(properties, NormalizeProperty(row))
	}
	sort.SliceStable(properties, func(i, j int) bool {
		return properties[i].CreatedAt.After(properties[j].CreatedAt)
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	s.propertyTable = table
	s.properties = properties
	return nil
}

func (s *EntityStore) Leads() []Lead {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Lead, len(s.leads))
	copy(out, s.leads)
	return out
}

func (s *EntityStore) Tasks() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

func (s *EntityStore) Events() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *EntityStore) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, len(s.transactions))
	copy(out, s.transactions)
	return out
}

func (s *EntityStore) Properties() []Property {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Property, len(s.properties))
	copy(out, s.properties)
	return out
}

func (s *EntityStore) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

func (s *EntityStore) AddLead(ctx context.Context, lead Lead) (Lead, error) {
	gen := s.gen()
	primary, fallback := leadPayloads(lead)
	row, err := s.writer.Insert(ctx, tableLeads, primary, fallback)
	if err != nil {
		return Lead{}, fmt.Errorf("add lead: %w", err)
	}
	created := NormalizeLead(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.leads = append([]Lead{created}, s.leads...)
	}
	return created, nil
}

func (s *EntityStore) UpdateLead(ctx context.Context, id string, patch map[string]any) error {
	gen := s.gen()
	primary, fallback := payloadPair(leadColumns, patch)
	if _, err := s.writer.Update(ctx, tableLeads, id, primary, fallback); err != nil {
		return fmt.Errorf("update lead %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.leads {
		if s.leads[i].ID == id {
			mergeLead(&s.leads[i], patch)
			break
		}
	}
	return nil
}

func (s *EntityStore) RemoveLead(ctx context.Context, id string) error {
	gen := s.gen()
	if err := s.client.Delete(ctx, tableLeads, id); err != nil {
		return fmt.Errorf("remove lead %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.leads[:0]
	for _, l := range s.leads {
		if l.ID != id {
			kept = append(kept, l)
		}
	}
	s.leads = kept
	return nil
}

func (s *EntityStore) AddTask(ctx context.Context, task Task) (Task, error) {
	gen := s.gen()
	primary, fallback := taskPayloads(task)
	row, err := s.writer.Insert(ctx, tableTasks, primary, fallback)
	if err != nil {
		return Task{}, fmt.Errorf("add task: %w", err)
	}
	created := NormalizeTask(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.tasks = append([]Task{created}, s.tasks...)
	}
	return created, nil
}

func (s *EntityStore) UpdateTask(ctx context.Context, id string, patch map[string]any) error {
	// keep completedAt in lockstep with completed
	if completed, ok := patch["completed"].(bool); ok {
		if completed {
			if _, has := patch["completedAt"]; !has {
				patch["completedAt"] = time.Now().UTC()
			}
		} else {
			patch["completedAt"] = nil
		}
	}

	gen := s.gen()
	primary, fallback := payloadPair(taskColumns, patch)
	if _, err := s.writer.Update(ctx, tableTasks, id, primary, fallback); err != nil {
		return fmt.Errorf("update task %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			mergeTask(&s.tasks[i], patch)
			break
		}
	}
	return nil
}

func (s *EntityStore) RemoveTask(ctx context.Context, id string) error {
	gen := s.gen()
	if err := s.client.Delete(ctx, tableTasks, id); err != nil {
		return fmt.Errorf("remove task %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.tasks[:0]
	for _, t := range s.tasks {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.tasks = kept
	return nil
}

func (s *EntityStore) AddEvent(ctx context.Context, event Event) (Event, error) {
	gen := s.gen()
	primary, fallback := eventPayloads(event)
	row, err := s.writer.Insert(ctx, tableEvents, primary, fallback)
	if err != nil {
		return Event{}, fmt.Errorf("add event: %w", err)
	}
	created := NormalizeEvent(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.events = append(s.events, created)
		sortEvents(s.events)
	}
	return created, nil
}

func (s *EntityStore) UpdateEvent(ctx context.Context, id string, patch map[string]any) error {
	gen := s.gen()
	primary, fallback := payloadPair(eventColumns, patch)
	if _, err := s.writer.Update(ctx, tableEvents, id, primary, fallback); err != nil {
		return fmt.Errorf("update event %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.events {
		if s.events[i].ID == id {
			mergeEvent(&s.events[i], patch)
			break
		}
	}
	sortEvents(s.events)
	return nil
}

func (s *EntityStore) RemoveEvent(ctx context.Context, id string) error {
	gen := s.gen()
	if err := s.client.Delete(ctx, tableEvents, id); err != nil {
		return fmt.Errorf("remove event %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.events[:0]
	for _, e := range s.events {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	s.events = kept
	return nil
}

func (s *EntityStore) AddTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	gen := s.gen()
	primary, fallback := transactionPayloads(tx)
	row, err := s.writer.Insert(ctx, tableTransactions, primary, fallback)
	if err != nil {
		return Transaction{}, fmt.Errorf("add transaction: %w", err)
	}
	created := NormalizeTransaction(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.transactions = append([]Transaction{created}, s.transactions...)
	}
	return created, nil
}

func (s *EntityStore) UpdateTransaction(ctx context.Context, id string, patch map[string]any) error {
	gen := s.gen()
	primary, fallback := payloadPair(transactionColumns, patch)
	if _, err := s.writer.Update(ctx, tableTransactions, id, primary, fallback); err != nil {
		return fmt.Errorf("update transaction %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			mergeTransaction(&s.transactions[i], patch)
			break
		}
	}
	return nil
}

func (s *EntityStore) RemoveTransaction(ctx context.Context, id string) error {
	gen := s.gen()
	if err := s.client.Delete(ctx, tableTransactions, id); err != nil {
		return fmt.Errorf("remove transaction %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.transactions[:0]
	for _, t := range s.transactions {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.transactions = kept
	return nil
}

func (s *EntityStore) AddProperty(ctx context.Context, property Property) (Property, error) {
	gen := s.gen()
	table := s.PropertyTable()
	primary, fallback := propertyPayloads(property)
	row, err := s.writer.Insert(ctx, table, primary, fallback)
	if err != nil {
		return Property{}, fmt.Errorf("add property: %w", err)
	}
	created := NormalizeProperty(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.properties = append([]Property{created}, s.properties...)
	}
	return created, nil
}

func (s *EntityStore) UpdateProperty(ctx context.Context, id string, patch map[string]any) error {
	gen := s.gen()
	table := s.PropertyTable()
	primary, fallback := payloadPair(propertyColumns, patch)
	if _, err := s.writer.Update(ctx, table, id, primary, fallback); err != nil {
		return fmt.Errorf("update property %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.properties {
		if s.properties[i].ID == id {
			mergeProperty(&s.properties[i], patch)
			break
		}
	}
	return nil
}

func (s *EntityStore) RemoveProperty(ctx context.Context, id string) error {
	gen := s.gen()
	table := s.PropertyTable()
	if err := s.client.Delete(ctx, table, id); err != nil {
		return fmt.Errorf("remove property %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.properties[:0]
	for _, p := range s.properties {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.properties = kept
	return nil
}

// AppendPropertyImage adds one image URI to the end of a property's ordered
// image list, remote first.
func (s *EntityStore) AppendPropertyImage(ctx context.Context, id string, uri string) error {
	s.mu.RLock()
	var images []string
	found := false
	for _, p := range s.properties {
		if p.ID == id {
			images = append(append([]string{}, p.Images...), uri)
			found = true
			break
		}
	}
	s.mu.RUnlock()
	if !found {
		return fmt.Errorf("append property image: unknown property %s", id)
	}
	return s.UpdateProperty(ctx, id, map[string]any{"images": images})
}

func (s *EntityStore) AddMessage(ctx context.Context, message Message) (Message, error) {
	gen := s.gen()
	primary, fallback := messagePayloads(message)
	row, err := s.writer.Insert(ctx, tableMessages, primary, fallback)
	if err != nil {
		return Message{}, fmt.Errorf("add message: %w", err)
	}
	created := NormalizeMessage(row)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == gen {
		s.messages = append([]Message{created}, s.messages...)
	}
	return created, nil
}

// MarkMessageRead flips the read flag, remote first.
func (s *EntityStore) MarkMessageRead(ctx context.Context, id string) error {
	gen := s.gen()
	primary, fallback := payloadPair(messageColumns, map[string]any{"read": true})
	if _, err := s.writer.Update(ctx, tableMessages, id, primary, fallback); err != nil {
		return fmt.Errorf("mark message %s read: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages[i].Read = true
			break
		}
	}
	return nil
}

func (s *EntityStore) RemoveMessage(ctx context.Context, id string) error {
	gen := s.gen()
	if err := s.client.Delete(ctx, tableMessages, id); err != nil {
		return fmt.Errorf("remove message %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ID != id {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	return nil
}

func patchString(patch map[string]any, key string) (string, bool) {
	v, ok := patch[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func patchTime(patch map[string]any, key string) (time.Time, bool) {
	v, ok := patch[key]
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		return parseTime(t)
	default:
		return time.Time{}, false
	}
}

func patchNumber(patch map[string]any, key string) (float64, bool) {
	v, ok := patch[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func mergeLead(l *Lead, patch map[string]any) {
	if v, ok := patchString(patch, "name"); ok {
		l.Name = v
	}
	if v, ok := patchString(patch, "email"); ok {
		l.Email = v
	}
	if v, ok := patchString(patch, "phone"); ok {
		l.Phone = v
	}
	if v, ok := patchString(patch, "status"); ok {
		l.Status = LeadStatus(v)
	}
	if v, ok := patchString(patch, "source"); ok {
		l.Source = v
	}
	if v, ok := patchString(patch, "notes"); ok {
		l.Notes = v
	}
	if v, ok := patchTime(patch, "lastContact"); ok {
		l.LastContact = v
	}
}

func mergeTask(t *Task, patch map[string]any) {
	if v, ok := patchString(patch, "title"); ok {
		t.Title = v
	}
	if v, ok := patchString(patch, "description"); ok {
		t.Description = v
	}
	if v, ok := patchString(patch, "dueDate"); ok {
		t.DueDate = v
	}
	if v, ok := patchString(patch, "priority"); ok {
		t.Priority = TaskPriority(v)
	}
	if v, ok := patchString(patch, "category"); ok {
		t.Category = v
	}
	if v, ok := patch["completed"].(bool); ok {
		t.Completed = v
	}
	if t.Completed {
		if v, ok := patchTime(patch, "completedAt"); ok {
			t.CompletedAt = &v
		} else if t.CompletedAt == nil {
			now := time.Now().UTC()
			t.CompletedAt = &now
		}
	} else {
		t.CompletedAt = nil
	}
}

func mergeEvent(e *Event, patch map[string]any) {
	if v, ok := patchString(patch, "title"); ok {
		e.Title = v
	}
	if v, ok := patchString(patch, "description"); ok {
		e.Description = v
	}
	if v, ok := patchString(patch, "date"); ok {
		e.Date = v
	}
	if v, ok := patchString(patch, "startTime"); ok {
		e.StartTime = v
	}
	if v, ok := patchString(patch, "endTime"); ok {
		e.EndTime = v
	}
	if v, ok := patchString(patch, "color"); ok {
		e.Color = EventColor(v)
	}
	e.Duration = eventDuration(e.StartTime, e.EndTime)
}

func mergeTransaction(t *Transaction, patch map[string]any) {
	if v, ok := patchString(patch, "date"); ok {
		t.Date = v
	}
	if v, ok := patchString(patch, "description"); ok {
		t.Description = v
	}
	if v, ok := patchString(patch, "type"); ok {
		t.Type = TransactionType(v)
	}
	if v, ok := patchString(patch, "category"); ok {
		t.Category = v
	}
	if v, ok := patchNumber(patch, "amount"); ok {
		if v < 0 {
			v = -v
		}
		t.Amount = v
	}
	if v, ok := patchString(patch, "method"); ok {
		t.Method = v
	}
	if v, ok := patchString(patch, "reference"); ok {
		t.Reference = v
	}
}

func mergeProperty(p *Property, patch map[string]any) {
	if v, ok := patchString(patch, "name"); ok {
		p.Name = v
	}
	if v, ok := patchString(patch, "address"); ok {
		p.Address = v
	}
	if v, ok := patchNumber(patch, "price"); ok {
		p.Price = v
	}
	if v, ok := patchString(patch, "type"); ok {
		p.Type = v
	}
	if v, ok := patchNumber(patch, "bedrooms"); ok {
		p.Bedrooms = int(v)
	}
	if v, ok := patchNumber(patch, "bathrooms"); ok {
		p.Bathrooms = int(v)
	}
	if v, ok := patchNumber(patch, "size"); ok {
		p.Size = v
	}
	if v, ok := patchString(patch, "status"); ok {
		p.Status = v
	}
	if v, ok := patch["images"]; ok {
		switch images := v.(type) {
		case []string:
			p.Images = images
		case []any:
			out := make([]string, 0, len(images))
			for _, item := range images {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			p.Images = out
		}
	}
	if v, ok := patchString(patch, "energyClass"); ok {
		p.EnergyClass = v
	}
	if v, ok := patch["petsAllowed"].(bool); ok {
		p.PetsAllowed = &v
	}
	if v, ok := patch["coordinates"].(map[string]any); ok {
		p.Coordinates = v
	}
}
