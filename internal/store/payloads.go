package store

import (
	"time"

	"homebase/api/internal/remote"
)

// Write payloads are built in pairs: a primary mapping using the snake_case
// column names of current deployments and a fallback mapping using the
// camelCase names older deployments still carry. The column tables below are
// keyed by canonical (camelCase) field name; the fallback payload reuses the
// canonical name verbatim.

var leadColumns = map[string]string{
	"name":        "name",
	"email":       "email",
	"phone":       "phone",
	"status":      "status",
	"source":      "source",
	"notes":       "notes",
	"lastContact": "last_contact",
	"createdAt":   "created_at",
}

var taskColumns = map[string]string{
	"title":       "title",
	"description": "description",
	"dueDate":     "due_date",
	"priority":    "priority",
	"category":    "category",
	"completed":   "completed",
	"completedAt": "completed_at",
	"createdAt":   "created_at",
}

var eventColumns = map[string]string{
	"title":       "title",
	"description": "description",
	"date":        "date",
	"startTime":   "start_time",
	"endTime":     "end_time",
	"color":       "color",
	"createdAt":   "created_at",
}

var transactionColumns = map[string]string{
	"date":        "date",
	"description": "description",
	"type":        "type",
	"category":    "category",
	"amount":      "amount",
	"method":      "method",
	"reference":   "reference",
	"createdAt":   "created_at",
}

// The current "listings" table stores photos under image_urls; the legacy
// "properties" table uses images with camelCase columns elsewhere.
var propertyColumns = map[string]string{
	"name":        "name",
	"address":     "address",
	"price":       "price",
	"type":        "type",
	"bedrooms":    "bedrooms",
	"bathrooms":   "bathrooms",
	"size":        "size",
	"status":      "status",
	"images":      "image_urls",
	"energyClass": "energy_class",
	"petsAllowed": "pets_allowed",
	"coordinates": "coordinates",
	"createdAt":   "created_at",
}

var messageColumns = map[string]string{
	"sender":    "sender",
	"subject":   "subject",
	"body":      "body",
	"read":      "read",
	"createdAt": "created_at",
}

// payloadPair translates a canonical field map into the two write shapes.
// Keys outside the column table are dropped so a stray patch field can never
// reach an arbitrary remote column.
func payloadPair(columns map[string]string, canonical map[string]any) (remote.Row, remote.Row) {
	primary := remote.Row{}
	fallback := remote.Row{}
	for key, value := range canonical {
		column, ok := columns[key]
		if !ok {
			continue
		}
		value = wireValue(value)
		primary[column] = value
		fallback[key] = value
	}
	return primary, fallback
}

func wireValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case *time.Time:
		if t == nil {
			return nil
		}
		return t.UTC().Format(time.RFC3339)
	case LeadStatus:
		return string(t)
	case TaskPriority:
		return string(t)
	case EventColor:
		return string(t)
	case TransactionType:
		return string(t)
	default:
		return v
	}
}

func putTime(m map[string]any, key string, ts time.Time) {
	if !ts.IsZero() {
		m[key] = ts
	}
}

func leadPayloads(l Lead) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"name":   l.Name,
		"email":  l.Email,
		"phone":  l.Phone,
		"status": l.Status,
		"source": l.Source,
		"notes":  l.Notes,
	}
	putTime(canonical, "lastContact", l.LastContact)
	putTime(canonical, "createdAt", l.CreatedAt)
	return payloadPair(leadColumns, canonical)
}

func taskPayloads(t Task) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"title":       t.Title,
		"description": t.Description,
		"dueDate":     t.DueDate,
		"priority":    t.Priority,
		"category":    t.Category,
		"completed":   t.Completed,
	}
	if t.CompletedAt != nil {
		canonical["completedAt"] = *t.CompletedAt
	}
	putTime(canonical, "createdAt", t.CreatedAt)
	return payloadPair(taskColumns, canonical)
}

func eventPayloads(e Event) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"title":       e.Title,
		"description": e.Description,
		"date":        e.Date,
		"startTime":   e.StartTime,
		"endTime":     e.EndTime,
		"color":       e.Color,
	}
	putTime(canonical, "createdAt", e.CreatedAt)
	return payloadPair(eventColumns, canonical)
}

func transactionPayloads(tx Transaction) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"date":        tx.Date,
		"description": tx.Description,
		"type":        tx.Type,
		"category":    tx.Category,
		"amount":      tx.Amount,
		"method":      tx.Method,
	}
	if tx.Reference != "" {
		canonical["reference"] = tx.Reference
	}
	putTime(canonical, "createdAt", tx.CreatedAt)
	return payloadPair(transactionColumns, canonical)
}

func propertyPayloads(p Property) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"name":      p.Name,
		"address":   p.Address,
		"price":     p.Price,
		"type":      p.Type,
		"bedrooms":  p.Bedrooms,
		"bathrooms": p.Bathrooms,
		"size":      p.Size,
		"status":    p.Status,
		"images":    p.Images,
	}
	if p.EnergyClass != "" {
		canonical["energyClass"] = p.EnergyClass
	}
	if p.PetsAllowed != nil {
		canonical["petsAllowed"] = *p.PetsAllowed
	}
	if p.Coordinates != nil {
		canonical["coordinates"] = p.Coordinates
	}
	putTime(canonical, "createdAt", p.CreatedAt)
	return payloadPair(propertyColumns, canonical)
}

func messagePayloads(m Message) (remote.Row, remote.Row) {
	canonical := map[string]any{
		"sender":  m.Sender,
		"subject": m.Subject,
		"body":    m.Body,
		"read":    m.Read,
	}
	putTime(canonical, "createdAt", m.CreatedAt)
	return payloadPair(messageColumns, canonical)
}
