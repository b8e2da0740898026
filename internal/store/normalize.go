package store

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"homebase/api/internal/remote"
)

// The normalizers map one remote row of unknown field-casing onto exactly one
// canonical record. Each field is resolved by checking the camelCase key,
// then the lowercase-concatenated key, then the snake_case key, in that
// order. A field absent under every spelling is never an error; it resolves
// to a documented default (empty string, false, zero, or the current time for
// creation stamps) so a partial row can never take a dashboard section down.

func pick(row remote.Row, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func str(row remote.Row, keys ...string) string {
	v, ok := pick(row, keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

func num(row remote.Row, keys ...string) float64 {
	v, ok := pick(row, keys...)
	if !ok {
		return 0
	}
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func boolean(row remote.Row, keys ...string) bool {
	v, ok := pick(row, keys...)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(t, "true") || t == "1"
	case float64:
		return t != 0
	default:
		return false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// ts resolves a timestamp field, defaulting to the current time. Used for
// creation stamps where a zero time would sort a fresh row to the bottom.
func ts(row remote.Row, keys ...string) time.Time {
	if parsed, ok := tsPtr(row, keys...); ok {
		return parsed
	}
	return time.Now().UTC()
}

func tsPtr(row remote.Row, keys ...string) (time.Time, bool) {
	v, ok := pick(row, keys...)
	if !ok {
		return time.Time{}, false
	}
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return parseTime(raw)
}

// list resolves an ordered string list that may arrive as a JSON array, an
// already-decoded []any, or a single bare string.
func list(row remote.Row, keys ...string) []string {
	v, ok := pick(row, keys...)
	if !ok {
		return []string{}
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return t
	case string:
		trimmed := strings.TrimSpace(t)
		if strings.HasPrefix(trimmed, "[") {
			var decoded []string
			if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
				return decoded
			}
		}
		if trimmed == "" {
			return []string{}
		}
		return []string{trimmed}
	default:
		return []string{}
	}
}

func object(row remote.Row, keys ...string) map[string]any {
	v, ok := pick(row, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(t), &decoded); err == nil {
			return decoded
		}
		return nil
	default:
		return nil
	}
}

func NormalizeLead(row remote.Row) Lead {
	status := LeadStatus(strings.ToLower(str(row, "status")))
	switch status {
	case LeadNew, LeadContacted, LeadQualified, LeadLost:
	default:
		status = LeadNew
	}
	return Lead{
		ID:          str(row, "id"),
		Name:        str(row, "name"),
		Email:       str(row, "email"),
		Phone:       str(row, "phone"),
		Status:      status,
		Source:      str(row, "source"),
		Notes:       str(row, "notes"),
		LastContact: ts(row, "lastContact", "lastcontact", "last_contact"),
		CreatedAt:   ts(row, "createdAt", "createdat", "created_at"),
	}
}

func NormalizeTask(row remote.Row) Task {
	priority := TaskPriority(strings.ToLower(str(row, "priority")))
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
	default:
		priority = PriorityMedium
	}

	completed := boolean(row, "completed", "is_completed", "iscompleted")
	var completedAt *time.Time
	if completed {
		// completedAt exists iff completed, whatever the row claims
		done, ok := tsPtr(row, "completedAt", "completedat", "completed_at")
		if !ok {
			done = time.Now().UTC()
		}
		completedAt = &done
	}

	return Task{
		ID:          str(row, "id"),
		Title:       str(row, "title"),
		Description: str(row, "description"),
		DueDate:     str(row, "dueDate", "duedate", "due_date"),
		Priority:    priority,
		Category:    str(row, "category"),
		Completed:   completed,
		CompletedAt: completedAt,
		CreatedAt:   ts(row, "createdAt", "createdat", "created_at"),
	}
}

func NormalizeEvent(row remote.Row) Event {
	color := EventColor(strings.ToLower(str(row, "color")))
	switch color {
	case ColorBlue, ColorGreen, ColorOrange, ColorPurple:
	default:
		color = ColorBlue
	}

	start := str(row, "startTime", "starttime", "start_time")
	end := str(row, "endTime", "endtime", "end_time")
	return Event{
		ID:          str(row, "id"),
		Title:       str(row, "title"),
		Description: str(row, "description"),
		Date:        str(row, "date"),
		StartTime:   start,
		EndTime:     end,
		Color:       color,
		Duration:    eventDuration(start, end),
		CreatedAt:   ts(row, "createdAt", "createdat", "created_at"),
	}
}

// eventDuration renders the span between two "15:04" wall-clock times as a
// display string ("1h 30m"). Unparseable times yield "".
func eventDuration(start, end string) string {
	from, err := time.Parse("15:04", start)
	if err != nil {
		return ""
	}
	to, err := time.Parse("15:04", end)
	if err != nil {
		return ""
	}
	minutes := int(to.Sub(from).Minutes())
	if minutes <= 0 {
		return ""
	}
	hours := minutes / 60
	rest := minutes % 60
	switch {
	case hours == 0:
		return fmt.Sprintf("%dm", rest)
	case rest == 0:
		return fmt.Sprintf("%dh", hours)
	default:
		return fmt.Sprintf("%dh %dm", hours, rest)
	}
}

func NormalizeTransaction(row remote.Row) Transaction {
	kind := TransactionType(strings.ToLower(str(row, "type")))
	if kind != TypeIncome && kind != TypeExpense {
		kind = TypeExpense
	}
	amount := num(row, "amount")
	if amount < 0 {
		amount = -amount
	}
	return Transaction{
		ID:          str(row, "id"),
		Date:        str(row, "date"),
		Description: str(row, "description"),
		Type:        kind,
		Category:    str(row, "category"),
		Amount:      amount,
		Method:      str(row, "method"),
		Reference:   str(row, "reference"),
		CreatedAt:   ts(row, "createdAt", "createdat", "created_at"),
	}
}

func NormalizeProperty(row remote.Row) Property {
	var pets *bool
	if _, ok := pick(row, "petsAllowed", "petsallowed", "pets_allowed"); ok {
		allowed := boolean(row, "petsAllowed", "petsallowed", "pets_allowed")
		pets = &allowed
	}
	return Property{
		ID:      str(row, "id"),
		Name:    str(row, "name", "title"),
		Address: str(row, "address", "location"),
		Price:   num(row, "price"),
		Type:    str(row, "type", "property_type", "propertytype"),
		// beds/baths arrive as numbers in either casing
		Bedrooms:  int(num(row, "bedrooms", "beds")),
		Bathrooms: int(num(row, "bathrooms", "baths")),
		Size:      num(row, "size", "area", "square_meters", "squaremeters"),
		Status:    str(row, "status"),
		// legacy rows carry "images", current rows "image_urls"; prefer "images"
		Images:      list(row, "images", "image_urls", "imageUrls", "imageurls"),
		EnergyClass: str(row, "energyClass", "energyclass", "energy_class"),
		PetsAllowed: pets,
		Coordinates: object(row, "coordinates", "coords"),
		CreatedAt:   ts(row, "createdAt", "createdat", "created_at"),
	}
}

func NormalizeMessage(row remote.Row) Message {
	return Message{
		ID:        str(row, "id"),
		Sender:    str(row, "sender", "sender_name", "sendername"),
		Subject:   str(row, "subject"),
		Body:      str(row, "body", "content"),
		Read:      boolean(row, "read", "is_read", "isread"),
		CreatedAt: ts(row, "createdAt", "createdat", "created_at"),
	}
}
