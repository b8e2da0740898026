package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"homebase/api/internal/rbac"
	"homebase/api/internal/search"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

// viewFor maps an entity route segment onto the view that guards it.
var viewFor = map[string]rbac.View{
	"leads":        rbac.ViewLeads,
	"properties":   rbac.ViewProperties,
	"tasks":        rbac.ViewTasks,
	"events":       rbac.ViewCalendar,
	"transactions": rbac.ViewFinance,
	"messages":     rbac.ViewMessages,
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"cache": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(r.Context()); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{"status": "error", "error": err.Error()}
		}
		writeJSON(w, statusCode, map[string]any{"ok": status == "ready", "status": status, "checks": checks})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		info, err := s.service.SignIn(r.Context(), body.Email, body.Password)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		writeJSON(w, http.StatusOK, s.service.CurrentSession(r.Context()))
		return
	}

	// Everything below requires the active session's token
	if !s.service.Authorize(r.Context(), bearerToken(r)) {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Sign in required", nil)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signout" {
		if err := s.service.SignOut(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "SIGNOUT_FAILED", "Sign out failed", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.URL.Path == "/api/view" {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"view": s.service.ActiveView()})
			return
		case http.MethodPut:
			var body struct {
				View string `json:"view"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view := s.service.SetActiveView(r.Context(), body.View)
			redirected := string(view) != body.View
			writeJSON(w, http.StatusOK, map[string]any{"view": view, "redirected": redirected})
			return
		}
	}

	if r.URL.Path == "/api/settings" {
		switch r.Method {
		case http.MethodGet:
			settings, err := s.service.Settings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SETTINGS_LOAD_FAILED", "Could not load settings", nil)
				return
			}
			writeJSON(w, http.StatusOK, settings)
			return
		case http.MethodPut:
			settings, err := s.service.Settings(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "SETTINGS_LOAD_FAILED", "Could not load settings", nil)
				return
			}
			if err := decodeBody(r, &settings); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			if err := s.service.SaveSettings(r.Context(), settings); err != nil {
				writeError(w, http.StatusInternalServerError, "SETTINGS_SAVE_FAILED", "Could not save settings", nil)
				return
			}
			writeJSON(w, http.StatusOK, settings)
			return
		}
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := search.Query{
			Text:       r.URL.Query().Get("q"),
			FilterType: search.ResultType(r.URL.Query().Get("type")),
		}
		writeJSON(w, http.StatusOK, s.service.Search(q))
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/summary" {
		writeJSON(w, http.StatusOK, s.service.Summarize(time.Now().Format("2006-01-02")))
		return
	}

	if resource, id, rest, ok := entityRoute(r.URL.Path); ok {
		view, known := viewFor[resource]
		if !known {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		if !s.service.CanView(view) {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "View not permitted for role", nil)
			return
		}
		s.handleEntity(w, r, resource, id, rest)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// entityRoute splits /api/{resource}[/{id}[/{action}]].
func entityRoute(path string) (resource, id, action string, ok bool) {
	if !strings.HasPrefix(path, "/api/") {
		return "", "", "", false
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/"), "/"), "/")
	switch len(parts) {
	case 1:
		return parts[0], "", "", parts[0] != ""
	case 2:
		return parts[0], parts[1], "", parts[1] != ""
	case 3:
		return parts[0], parts[1], parts[2], parts[2] != ""
	default:
		return "", "", "", false
	}
}

func (s *HTTPServer) handleEntity(w http.ResponseWriter, r *http.Request, resource, id, action string) {
	ctx := r.Context()

	// collection routes
	if id == "" {
		switch {
		case r.Method == http.MethodGet && resource == "leads":
			writeJSON(w, http.StatusOK, s.service.Leads())
		case r.Method == http.MethodGet && resource == "tasks":
			writeJSON(w, http.StatusOK, s.service.Tasks())
		case r.Method == http.MethodGet && resource == "events":
			writeJSON(w, http.StatusOK, s.service.Events())
		case r.Method == http.MethodGet && resource == "transactions":
			writeJSON(w, http.StatusOK, s.service.Transactions())
		case r.Method == http.MethodGet && resource == "properties":
			writeJSON(w, http.StatusOK, s.service.Properties())
		case r.Method == http.MethodGet && resource == "messages":
			writeJSON(w, http.StatusOK, s.service.Messages())
		case r.Method == http.MethodPost:
			s.handleCreate(w, r, resource)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	// summary is a collection-level read that parses as an id
	if resource == "transactions" && id == "summary" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.service.SummarizeTransactions())
		return
	}

	// action routes
	if action != "" {
		switch {
		case r.Method == http.MethodPost && resource == "tasks" && action == "toggle":
			if err := s.service.ToggleTask(ctx, id); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case r.Method == http.MethodPost && resource == "messages" && action == "read":
			if err := s.service.MarkMessageRead(ctx, id); err != nil {
				writeServiceError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		case r.Method == http.MethodPost && resource == "properties" && action == "images":
			s.handleImageUpload(w, r, id)
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var patch map[string]any
		if err := decodeBody(r, &patch); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		var err error
		switch resource {
		case "leads":
			err = s.service.UpdateLead(ctx, id, patch)
		case "tasks":
			err = s.service.UpdateTask(ctx, id, patch)
		case "events":
			err = s.service.UpdateEvent(ctx, id, patch)
		case "transactions":
			err = s.service.UpdateTransaction(ctx, id, patch)
		case "properties":
			err = s.service.UpdateProperty(ctx, id, patch)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case http.MethodDelete:
		var err error
		switch resource {
		case "leads":
			err = s.service.DeleteLead(ctx, id)
		case "tasks":
			err = s.service.DeleteTask(ctx, id)
		case "events":
			err = s.service.DeleteEvent(ctx, id)
		case "transactions":
			err = s.service.DeleteTransaction(ctx, id)
		case "properties":
			err = s.service.DeleteProperty(ctx, id)
		case "messages":
			err = s.service.DeleteMessage(ctx, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleCreate(w http.ResponseWriter, r *http.Request, resource string) {
	ctx := r.Context()
	switch resource {
	case "leads":
		var input CreateLeadInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		lead, err := s.service.CreateLead(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, lead)
	case "tasks":
		var input CreateTaskInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		task, err := s.service.CreateTask(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, task)
	case "events":
		var input CreateEventInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		event, err := s.service.CreateEvent(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, event)
	case "transactions":
		var input CreateTransactionInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		tx, err := s.service.CreateTransaction(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	case "properties":
		var input CreatePropertyInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		property, err := s.service.CreateProperty(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, property)
	case "messages":
		var input SendMessageInput
		if err := decodeBody(r, &input); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		message, err := s.service.SendMessage(ctx, input)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, message)
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

const maxImageUpload = 10 << 20 // 10 MiB

func (s *HTTPServer) handleImageUpload(w http.ResponseWriter, r *http.Request, id string) {
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "multipart form expected", nil)
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "image file is required", nil)
		return
	}
	defer file.Close()

	uri, err := s.service.UploadPropertyImage(r.Context(), id, header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"uri": uri})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		next.ServeHTTP(w, r)
		log.Printf("%s %s (%s)", r.Method, r.URL.Path, time.Since(start).Round(time.Millisecond))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

func decodeBody(r *http.Request, into any) error {
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": code, "message": message, "details": details},
	})
}

// writeServiceError maps service errors onto HTTP responses: DomainError
// keeps its status, everything else is a failed remote operation.
func writeServiceError(w http.ResponseWriter, err error) {
	var domain *DomainError
	if errors.As(err, &domain) {
		writeError(w, domain.Status, domain.Code, domain.Message, domain.Details)
		return
	}
	writeError(w, http.StatusBadGateway, "REMOTE_FAILED", err.Error(), nil)
}
