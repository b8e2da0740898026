// Package store holds the canonical in-memory model of the brokerage data
// and keeps it consistent with confirmed remote state. Remote rows of
// unknown field-casing enter through the normalizers in this package and
// nowhere else.
package store

import "time"

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadQualified LeadStatus = "qualified"
	LeadLost      LeadStatus = "lost"
)

type Lead struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Phone       string     `json:"phone"`
	Status      LeadStatus `json:"status"`
	Source      string     `json:"source"`
	Notes       string     `json:"notes"`
	LastContact time.Time  `json:"lastContact"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
	PriorityUrgent TaskPriority = "urgent"
)

type Task struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	DueDate     string       `json:"dueDate"`
	Priority    TaskPriority `json:"priority"`
	Category    string       `json:"category"`
	Completed   bool         `json:"completed"`
	CompletedAt *time.Time   `json:"completedAt,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type EventColor string

const (
	ColorBlue   EventColor = "blue"
	ColorGreen  EventColor = "green"
	ColorOrange EventColor = "orange"
	ColorPurple EventColor = "purple"
)

// Event is a calendar entry. Date is a plain "2006-01-02" day and the times
// are "15:04" wall-clock strings, matching what the remote store holds.
type Event struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Date        string     `json:"date"`
	StartTime   string     `json:"startTime"`
	EndTime     string     `json:"endTime"`
	Color       EventColor `json:"color"`
	Duration    string     `json:"duration"`
	CreatedAt   time.Time  `json:"createdAt"`
}

type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

type Transaction struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Type        TransactionType `json:"type"`
	Category    string          `json:"category"`
	Amount      float64         `json:"amount"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Property is the canonical shape behind two remote representations: the
// current "listings" table and the legacy "properties" table.
type Property struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	Price       float64        `json:"price"`
	Type        string         `json:"type"`
	Bedrooms    int            `json:"bedrooms"`
	Bathrooms   int            `json:"bathrooms"`
	Size        float64        `json:"size"`
	Status      string         `json:"status"`
	Images      []string       `json:"images"`
	EnergyClass string         `json:"energyClass,omitempty"`
	PetsAllowed *bool          `json:"petsAllowed,omitempty"`
	Coordinates map[string]any `json:"coordinates,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}
