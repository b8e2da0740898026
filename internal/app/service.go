package app

import (
	"context"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"homebase/api/internal/cache"
	"homebase/api/internal/config"
	"homebase/api/internal/media"
	"homebase/api/internal/rbac"
	"homebase/api/internal/search"
	"homebase/api/internal/session"
	"homebase/api/internal/store"
)

// Service ties the sync core together: the gated session, the entity store,
// the local cache and its version guard, search, and photo storage.
type Service struct {
	cfg    config.Config
	store  *store.EntityStore
	gate   *session.Gate
	auth   session.Auth
	cache  *cache.Store
	guard  *cache.Guard
	search *search.Service
	media  *media.Service
}

func New(cfg config.Config, entityStore *store.EntityStore, gate *session.Gate, auth session.Auth, cacheStore *cache.Store, searchService *search.Service, mediaService *media.Service) *Service {
	return &Service{
		cfg:    cfg,
		store:  entityStore,
		gate:   gate,
		auth:   auth,
		cache:  cacheStore,
		guard:  cache.NewGuard(cacheStore),
		search: searchService,
		media:  mediaService,
	}
}

// Bootstrap runs once at session start: the cache-version guard first, then
// the session gate, then the initial concurrent load of all collections.
func (s *Service) Bootstrap(ctx context.Context) error {
	invalidated, err := s.guard.Ensure(ctx)
	if err != nil {
		return err
	}
	if invalidated {
		log.Printf("app: local cache invalidated, full remote reload forced")
	}

	if err := s.gate.Start(ctx); err != nil {
		log.Printf("app: session resolution failed: %v", err)
	}

	if err := s.store.LoadAll(ctx); err != nil {
		// collections that failed stay empty; the session is still usable
		log.Printf("app: initial load incomplete: %v", err)
	}
	if s.search != nil {
		s.search.IndexAll()
	}
	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.cache.Ping(ctx)
}

type SessionInfo struct {
	Authenticated  bool        `json:"authenticated"`
	UserID         string      `json:"userId,omitempty"`
	Email          string      `json:"email,omitempty"`
	Role           rbac.Role   `json:"role,omitempty"`
	ActiveView     rbac.View   `json:"activeView,omitempty"`
	PermittedViews []rbac.View `json:"permittedViews,omitempty"`
	Token          string      `json:"token,omitempty"`
}

func (s *Service) sessionInfo(sess *session.Session) SessionInfo {
	role := s.gate.Role()
	info := SessionInfo{
		Authenticated:  true,
		Role:           role,
		ActiveView:     s.gate.ActiveView(),
		PermittedViews: rbac.PermittedViews(role),
	}
	if sess != nil {
		info.UserID = sess.UserID
		info.Email = sess.Email
		info.Token = sess.Token
	}
	return info
}

// CurrentSession reports the session state without the token.
func (s *Service) CurrentSession(ctx context.Context) SessionInfo {
	sess, err := s.auth.CurrentSession(ctx)
	if err != nil || sess == nil {
		return SessionInfo{Authenticated: false}
	}
	info := s.sessionInfo(sess)
	info.Token = ""
	return info
}

// Authorize checks a bearer token against the active session.
func (s *Service) Authorize(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	sess, err := s.auth.CurrentSession(ctx)
	if err != nil || sess == nil {
		return false
	}
	return sess.Token == token
}

func (s *Service) SignIn(ctx context.Context, email, password string) (SessionInfo, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return SessionInfo{}, domainError(http.StatusBadRequest, "INVALID_CREDENTIALS", "email and password are required", nil)
	}
	sess, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return SessionInfo{}, domainError(http.StatusUnauthorized, "SIGNIN_FAILED", "Invalid login credentials", nil)
	}

	if err := s.store.LoadAll(ctx); err != nil {
		log.Printf("app: load after sign-in incomplete: %v", err)
	}
	if s.search != nil {
		s.search.IndexAll()
	}
	return s.sessionInfo(sess), nil
}

// SignOut drops the session and empties the collections. Results of writes
// still in flight will be discarded by the store's generation check.
func (s *Service) SignOut(ctx context.Context) error {
	if err := s.auth.SignOut(ctx); err != nil {
		return err
	}
	s.store.Reset()
	return nil
}

func (s *Service) ActiveView() rbac.View {
	return s.gate.ActiveView()
}

// SetActiveView navigates; a forbidden view lands on the role's default.
func (s *Service) SetActiveView(ctx context.Context, view string) rbac.View {
	return s.gate.SetView(ctx, rbac.NormalizeView(view))
}

func (s *Service) CanView(view rbac.View) bool {
	return rbac.CanView(s.gate.Role(), view)
}

func (s *Service) Settings(ctx context.Context) (cache.Settings, error) {
	return s.cache.Settings(ctx)
}

func (s *Service) SaveSettings(ctx context.Context, settings cache.Settings) error {
	return s.cache.SaveSettings(ctx, settings)
}

func (s *Service) Search(q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(q)
}

type CreateLeadInput struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Status string `json:"status"`
	Source string `json:"source"`
	Notes  string `json:"notes"`
}

func (s *Service) Leads() []store.Lead {
	return s.store.Leads()
}

func (s *Service) CreateLead(ctx context.Context, input CreateLeadInput) (store.Lead, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Lead{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "lead name is required", nil)
	}
	status := store.LeadStatus(input.Status)
	switch status {
	case store.LeadNew, store.LeadContacted, store.LeadQualified, store.LeadLost:
	default:
		status = store.LeadNew
	}

	now := time.Now().UTC()
	lead, err := s.store.AddLead(ctx, store.Lead{
		Name:        strings.TrimSpace(input.Name),
		Email:       strings.TrimSpace(input.Email),
		Phone:       strings.TrimSpace(input.Phone),
		Status:      status,
		Source:      input.Source,
		Notes:       input.Notes,
		LastContact: now,
		CreatedAt:   now,
	})
	if err != nil {
		return store.Lead{}, err
	}
	if s.search != nil {
		s.search.IndexLead(lead)
	}
	return lead, nil
}

func (s *Service) UpdateLead(ctx context.Context, id string, patch map[string]any) error {
	if err := s.store.UpdateLead(ctx, id, patch); err != nil {
		return err
	}
	if s.search != nil {
		for _, lead := range s.store.Leads() {
			if lead.ID == id {
				s.search.IndexLead(lead)
				break
			}
		}
	}
	return nil
}

func (s *Service) DeleteLead(ctx context.Context, id string) error {
	if err := s.store.RemoveLead(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveLead(id)
	}
	return nil
}

type CreateTaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"dueDate"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

func (s *Service) Tasks() []store.Task {
	return s.store.Tasks()
}

func (s *Service) CreateTask(ctx context.Context, input CreateTaskInput) (store.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Task{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "task title is required", nil)
	}
	priority := store.TaskPriority(input.Priority)
	switch priority {
	case store.PriorityLow, store.PriorityMedium, store.PriorityHigh, store.PriorityUrgent:
	default:
		priority = store.PriorityMedium
	}

	return s.store.AddTask(ctx, store.Task{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		DueDate:     input.DueDate,
		Priority:    priority,
		Category:    input.Category,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *Service) UpdateTask(ctx context.Context, id string, patch map[string]any) error {
	return s.store.UpdateTask(ctx, id, patch)
}

// ToggleTask flips completion; the store keeps completedAt consistent.
func (s *Service) ToggleTask(ctx context.Context, id string) error {
	for _, task := range s.store.Tasks() {
		if task.ID == id {
			return s.store.UpdateTask(ctx, id, map[string]any{"completed": !task.Completed})
		}
	}
	return domainError(http.StatusNotFound, "NOT_FOUND", "task not found", nil)
}

func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.store.RemoveTask(ctx, id)
}

type CreateEventInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Color       string `json:"color"`
}

func (s *Service) Events() []store.Event {
	return s.store.Events()
}

func (s *Service) CreateEvent(ctx context.Context, input CreateEventInput) (store.Event, error) {
	if strings.TrimSpace(input.Title) == "" || strings.TrimSpace(input.Date) == "" {
		return store.Event{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "event title and date are required", nil)
	}
	color := store.EventColor(input.Color)
	switch color {
	case store.ColorBlue, store.ColorGreen, store.ColorOrange, store.ColorPurple:
	default:
		color = store.ColorBlue
	}

	return s.store.AddEvent(ctx, store.Event{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Date:        input.Date,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Color:       color,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *Service) UpdateEvent(ctx context.Context, id string, patch map[string]any) error {
	return s.store.UpdateEvent(ctx, id, patch)
}

func (s *Service) DeleteEvent(ctx context.Context, id string) error {
	return s.store.RemoveEvent(ctx, id)
}

type CreateTransactionInput struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	Amount      float64 `json:"amount"`
	Method      string  `json:"method"`
	Reference   string  `json:"reference"`
}

func (s *Service) Transactions() []store.Transaction {
	return s.store.Transactions()
}

func (s *Service) CreateTransaction(ctx context.Context, input CreateTransactionInput) (store.Transaction, error) {
	if strings.TrimSpace(input.Description) == "" {
		return store.Transaction{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "transaction description is required", nil)
	}
	if input.Amount < 0 {
		return store.Transaction{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "amount must not be negative", nil)
	}
	kind := store.TransactionType(input.Type)
	if kind != store.TypeIncome && kind != store.TypeExpense {
		kind = store.TypeExpense
	}

	return s.store.AddTransaction(ctx, store.Transaction{
		Date:        input.Date,
		Description: strings.TrimSpace(input.Description),
		Type:        kind,
		Category:    input.Category,
		Amount:      input.Amount,
		Method:      input.Method,
		Reference:   input.Reference,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *Service) UpdateTransaction(ctx context.Context, id string, patch map[string]any) error {
	return s.store.UpdateTransaction(ctx, id, patch)
}

func (s *Service) DeleteTransaction(ctx context.Context, id string) error {
	return s.store.RemoveTransaction(ctx, id)
}

type TransactionSummary struct {
	Income   float64 `json:"income"`
	Expenses float64 `json:"expenses"`
	Net      float64 `json:"net"`
}

func (s *Service) SummarizeTransactions() TransactionSummary {
	var summary TransactionSummary
	for _, tx := range s.store.Transactions() {
		if tx.Type == store.TypeIncome {
			summary.Income += tx.Amount
		} else {
			summary.Expenses += tx.Amount
		}
	}
	summary.Net = summary.Income - summary.Expenses
	return summary
}

type CreatePropertyInput struct {
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	Price       float64        `json:"price"`
	Type        string         `json:"type"`
	Bedrooms    int            `json:"bedrooms"`
	Bathrooms   int            `json:"bathrooms"`
	Size        float64        `json:"size"`
	Status      string         `json:"status"`
	Images      []string       `json:"images"`
	EnergyClass string         `json:"energyClass"`
	PetsAllowed *bool          `json:"petsAllowed"`
	Coordinates map[string]any `json:"coordinates"`
}

func (s *Service) Properties() []store.Property {
	return s.store.Properties()
}

func (s *Service) CreateProperty(ctx context.Context, input CreatePropertyInput) (store.Property, error) {
	if strings.TrimSpace(input.Name) == "" {
		return store.Property{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "property name is required", nil)
	}
	images := input.Images
	if images == nil {
		images = []string{}
	}

	property, err := s.store.AddProperty(ctx, store.Property{
		Name:        strings.TrimSpace(input.Name),
		Address:     input.Address,
		Price:       input.Price,
		Type:        input.Type,
		Bedrooms:    input.Bedrooms,
		Bathrooms:   input.Bathrooms,
		Size:        input.Size,
		Status:      input.Status,
		Images:      images,
		EnergyClass: input.EnergyClass,
		PetsAllowed: input.PetsAllowed,
		Coordinates: input.Coordinates,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return store.Property{}, err
	}
	if s.search != nil {
		s.search.IndexProperty(property)
	}
	return property, nil
}

func (s *Service) UpdateProperty(ctx context.Context, id string, patch map[string]any) error {
	if err := s.store.UpdateProperty(ctx, id, patch); err != nil {
		return err
	}
	if s.search != nil {
		for _, property := range s.store.Properties() {
			if property.ID == id {
				s.search.IndexProperty(property)
				break
			}
		}
	}
	return nil
}

func (s *Service) DeleteProperty(ctx context.Context, id string) error {
	if err := s.store.RemoveProperty(ctx, id); err != nil {
		return err
	}
	if s.search != nil {
		s.search.RemoveProperty(id)
	}
	return nil
}

// UploadPropertyImage stores a listing photo and appends its URI to the
// property's image list.
func (s *Service) UploadPropertyImage(ctx context.Context, id, filename, contentType string, r io.Reader, size int64) (string, error) {
	if s.media == nil {
		return "", domainError(http.StatusServiceUnavailable, "MEDIA_DISABLED", "photo storage is not configured", nil)
	}
	uri, err := s.media.UploadPropertyImage(ctx, id, filename, contentType, r, size)
	if err != nil {
		return "", domainError(http.StatusBadRequest, "UPLOAD_FAILED", err.Error(), nil)
	}
	if err := s.store.AppendPropertyImage(ctx, id, uri); err != nil {
		return "", err
	}
	return uri, nil
}

type SendMessageInput struct {
	Sender  string `json:"sender"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Service) Messages() []store.Message {
	return s.store.Messages()
}

func (s *Service) SendMessage(ctx context.Context, input SendMessageInput) (store.Message, error) {
	if strings.TrimSpace(input.Body) == "" {
		return store.Message{}, domainError(http.StatusBadRequest, "INVALID_INPUT", "message body is required", nil)
	}
	return s.store.AddMessage(ctx, store.Message{
		Sender:    input.Sender,
		Subject:   input.Subject,
		Body:      input.Body,
		CreatedAt: time.Now().UTC(),
	})
}

func (s *Service) MarkMessageRead(ctx context.Context, id string) error {
	return s.store.MarkMessageRead(ctx, id)
}

func (s *Service) DeleteMessage(ctx context.Context, id string) error {
	return s.store.RemoveMessage(ctx, id)
}

type DashboardSummary struct {
	LeadCount      int                `json:"leadCount"`
	NewLeadCount   int                `json:"newLeadCount"`
	PropertyCount  int                `json:"propertyCount"`
	OpenTaskCount  int                `json:"openTaskCount"`
	UnreadMessages int                `json:"unreadMessages"`
	UpcomingEvents []store.Event      `json:"upcomingEvents"`
	Finance        TransactionSummary `json:"finance"`
	PropertySource string             `json:"propertySource"`
}

// Summarize builds the dashboard landing data from the loaded collections.
func (s *Service) Summarize(today string) DashboardSummary {
	summary := DashboardSummary{
		Finance:        s.SummarizeTransactions(),
		PropertySource: s.store.PropertyTable(),
		UpcomingEvents: []store.Event{},
	}
	for _, lead := range s.store.Leads() {
		summary.LeadCount++
		if lead.Status == store.LeadNew {
			summary.NewLeadCount++
		}
	}
	summary.PropertyCount = len(s.store.Properties())
	for _, task := range s.store.Tasks() {
		if !task.Completed {
			summary.OpenTaskCount++
		}
	}
	for _, message := range s.store.Messages() {
		if !message.Read {
			summary.UnreadMessages++
		}
	}
	for _, event := range s.store.Events() {
		if event.Date >= today && len(summary.UpcomingEvents) < 5 {
			summary.UpcomingEvents = append(summary.UpcomingEvents, event)
		}
	}
	return summary
}
