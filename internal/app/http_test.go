package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"homebase/api/internal/cache"
	"homebase/api/internal/config"
	"homebase/api/internal/remote"
	"homebase/api/internal/search"
	"homebase/api/internal/session"
	"homebase/api/internal/store"
)

type memClient struct {
	mu     sync.Mutex
	tables map[string][]remote.Row
	seq    int
}

func newMemClient() *memClient {
	c := &memClient{tables: map[string][]remote.Row{}}
	for _, table := range []string{"leads", "tasks", "events", "transactions", "messages", "listings", "profiles"} {
		c.tables[table] = []remote.Row{}
	}
	return c
}

func (c *memClient) Select(ctx context.Context, table string) ([]remote.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rows, ok := c.tables[table]
	if !ok {
		return nil, &remote.RemoteError{Code: "42P01", Message: "relation \"" + table + "\" does not exist"}
	}
	return rows, nil
}

func (c *memClient) Insert(ctx context.Context, table string, payload remote.Row) (remote.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	row := remote.Row{"id": "rec-" + strconv.Itoa(c.seq)}
	for k, v := range payload {
		row[k] = v
	}
	c.tables[table] = append(c.tables[table], row)
	return row, nil
}

func (c *memClient) Update(ctx context.Context, table string, id string, patch remote.Row) (remote.Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return patch, nil
}

func (c *memClient) Delete(ctx context.Context, table string, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.tables[table][:0]
	for _, row := range c.tables[table] {
		if row["id"] != id {
			kept = append(kept, row)
		}
	}
	c.tables[table] = kept
	return nil
}

type fakeAuth struct {
	mu       sync.Mutex
	session  *session.Session
	listener func(*session.Session)
}

func (a *fakeAuth) CurrentSession(ctx context.Context) (*session.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session, nil
}

func (a *fakeAuth) SignIn(ctx context.Context, email, password string) (*session.Session, error) {
	if password != "secret" {
		return nil, fmt.Errorf("invalid login credentials")
	}
	sess := &session.Session{Token: "tok-" + email, UserID: "user-" + email, Email: email}
	a.mu.Lock()
	a.session = sess
	listener := a.listener
	a.mu.Unlock()
	if listener != nil {
		listener(sess)
	}
	return sess, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	a.mu.Lock()
	a.session = nil
	listener := a.listener
	a.mu.Unlock()
	if listener != nil {
		listener(nil)
	}
	return nil
}

func (a *fakeAuth) OnChange(fn func(*session.Session)) {
	a.mu.Lock()
	a.listener = fn
	a.mu.Unlock()
}

type harness struct {
	server *httptest.Server
	client *memClient
	auth   *fakeAuth
	token  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	mini := miniredis.RunT(t)
	cacheStore := cache.NewStoreWithClient(redis.NewClient(&redis.Options{Addr: mini.Addr()}))

	remoteClient := newMemClient()
	auth := &fakeAuth{}
	entityStore := store.NewEntityStore(remoteClient)
	gate := session.NewGate(auth, remoteClient, cacheStore)
	searchService := search.NewService(nil, entityStore)

	service := New(config.Config{}, entityStore, gate, auth, cacheStore, searchService, nil)
	if err := service.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	server := httptest.NewServer(NewHTTPServer(service, "*").Handler())
	t.Cleanup(server.Close)

	return &harness{server: server, client: remoteClient, auth: auth}
}

func (h *harness) signIn(t *testing.T, email string) {
	t.Helper()
	status, body := h.do(t, http.MethodPost, "/api/auth/signin", map[string]any{"email": email, "password": "secret"})
	if status != http.StatusOK {
		t.Fatalf("sign in: status %d body %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("sign in returned no token: %v", body)
	}
	h.token = token
}

func (h *harness) do(t *testing.T, method, path string, payload any) (int, map[string]any) {
	t.Helper()
	var body *bytes.Buffer
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewBuffer(raw)
	} else {
		body = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, h.server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		decoded = map[string]any{}
	}
	return resp.StatusCode, decoded
}

func (h *harness) doList(t *testing.T, path string) (int, []map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.server.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()

	var items []map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&items)
	return resp.StatusCode, items
}

func TestHealthNeedsNoSession(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/api/health", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["ok"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestEntityRoutesRequireSession(t *testing.T) {
	h := newHarness(t)
	status, body := h.do(t, http.MethodGet, "/api/leads", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 (body %v)", status, body)
	}
}

func TestWrongTokenIsRejected(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")
	h.token = "forged"
	status, _ := h.do(t, http.MethodGet, "/api/leads", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestSignInCreateAndListLeads(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, created := h.do(t, http.MethodPost, "/api/leads", map[string]any{
		"name":   "Rui Costa",
		"email":  "rui@example.com",
		"status": "bogus",
	})
	if status != http.StatusCreated {
		t.Fatalf("create: status %d body %v", status, created)
	}
	if created["status"] != "new" {
		t.Fatalf("unknown status should default to new, got %v", created["status"])
	}

	status, leads := h.doList(t, "/api/leads")
	if status != http.StatusOK {
		t.Fatalf("list: status %d", status)
	}
	if len(leads) != 1 || leads[0]["name"] != "Rui Costa" {
		t.Fatalf("leads = %v", leads)
	}
}

func TestCreateLeadValidation(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, body := h.do(t, http.MethodPost, "/api/leads", map[string]any{"name": "   "})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d body %v, want 400", status, body)
	}
}

func TestRenterCannotReadLeads(t *testing.T) {
	h := newHarness(t)
	h.client.tables["profiles"] = []remote.Row{
		{"id": "user-rita@homebase.pt", "role": "renter"},
	}
	h.signIn(t, "rita@homebase.pt")

	status, body := h.do(t, http.MethodGet, "/api/leads", nil)
	if status != http.StatusForbidden {
		t.Fatalf("status = %d body %v, want 403", status, body)
	}

	// messages stay within the renter's permitted views
	status, _ = h.doList(t, "/api/messages")
	if status != http.StatusOK {
		t.Fatalf("messages: status %d, want 200", status)
	}
}

func TestForbiddenViewRedirects(t *testing.T) {
	h := newHarness(t)
	h.client.tables["profiles"] = []remote.Row{
		{"id": "user-rita@homebase.pt", "role": "renter"},
	}
	h.signIn(t, "rita@homebase.pt")

	status, body := h.do(t, http.MethodPut, "/api/view", map[string]any{"view": "finance"})
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["view"] != "dashboard" || body["redirected"] != true {
		t.Fatalf("body = %v, want redirect to dashboard", body)
	}
}

func TestToggleMissingTask(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, _ := h.do(t, http.MethodPost, "/api/tasks/nope/toggle", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestTransactionSummaryEndpoint(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	for _, tx := range []map[string]any{
		{"description": "Rent April", "type": "income", "amount": 1200.0},
		{"description": "Plumber", "type": "expense", "amount": 150.0},
	} {
		if status, body := h.do(t, http.MethodPost, "/api/transactions", tx); status != http.StatusCreated {
			t.Fatalf("create transaction: status %d body %v", status, body)
		}
	}

	status, body := h.do(t, http.MethodGet, "/api/transactions/summary", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["income"] != 1200.0 || body["expenses"] != 150.0 || body["net"] != 1050.0 {
		t.Fatalf("summary = %v", body)
	}
}

func TestNegativeAmountRejected(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, _ := h.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"description": "Refund",
		"amount":      -10.0,
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, body := h.do(t, http.MethodGet, "/api/settings", nil)
	if status != http.StatusOK {
		t.Fatalf("get settings: status %d", status)
	}
	if body["language"] != "en" {
		t.Fatalf("default language = %v, want en", body["language"])
	}

	status, body = h.do(t, http.MethodPut, "/api/settings", map[string]any{"language": "pt", "darkMode": true})
	if status != http.StatusOK {
		t.Fatalf("put settings: status %d", status)
	}

	status, body = h.do(t, http.MethodGet, "/api/settings", nil)
	if status != http.StatusOK || body["language"] != "pt" || body["darkMode"] != true {
		t.Fatalf("settings after save = %v", body)
	}
}

func TestSearchWithoutEngineReturnsScanResults(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	if status, body := h.do(t, http.MethodPost, "/api/leads", map[string]any{"name": "Marta Silva"}); status != http.StatusCreated {
		t.Fatalf("create lead: status %d body %v", status, body)
	}

	status, body := h.do(t, http.MethodGet, "/api/search?q=marta", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	results, ok := body["results"].([]any)
	if !ok || len(results) != 1 {
		t.Fatalf("results = %v, want one lead hit", body["results"])
	}
	hit := results[0].(map[string]any)
	if hit["type"] != "lead" || hit["title"] != "Marta Silva" {
		t.Fatalf("hit = %v", hit)
	}
}

func TestSignOutClearsSession(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	if status, body := h.do(t, http.MethodPost, "/api/leads", map[string]any{"name": "Rui Costa"}); status != http.StatusCreated {
		t.Fatalf("create lead: status %d body %v", status, body)
	}

	if status, _ := h.do(t, http.MethodPost, "/api/auth/signout", nil); status != http.StatusOK {
		t.Fatalf("sign out failed")
	}
	h.token = ""

	status, body := h.do(t, http.MethodGet, "/api/session", nil)
	if status != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("session after sign-out = %v", body)
	}
}

func TestSessionOmitsToken(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, body := h.do(t, http.MethodGet, "/api/session", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["authenticated"] != true {
		t.Fatalf("body = %v", body)
	}
	if _, present := body["token"]; present {
		t.Fatalf("session response must not leak the token: %v", body)
	}
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	status, _ := h.do(t, http.MethodGet, "/api/unicorns", nil)
	if status != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", status)
	}
}

func TestDashboardSummaryEndpoint(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	if status, body := h.do(t, http.MethodPost, "/api/leads", map[string]any{"name": "Rui Costa"}); status != http.StatusCreated {
		t.Fatalf("create lead: status %d body %v", status, body)
	}
	if status, body := h.do(t, http.MethodPost, "/api/tasks", map[string]any{"title": "Call notary"}); status != http.StatusCreated {
		t.Fatalf("create task: status %d body %v", status, body)
	}

	status, body := h.do(t, http.MethodGet, "/api/summary", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if body["leadCount"] != 1.0 || body["newLeadCount"] != 1.0 {
		t.Fatalf("lead counts = %v", body)
	}
	if body["openTaskCount"] != 1.0 {
		t.Fatalf("openTaskCount = %v", body["openTaskCount"])
	}
	if body["propertySource"] != "listings" {
		t.Fatalf("propertySource = %v", body["propertySource"])
	}
}

func TestUploadWithoutMediaBackend(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ana@homebase.pt")

	var buf bytes.Buffer
	buf.WriteString("--boundary\r\nContent-Disposition: form-data; name=\"image\"; filename=\"a.jpg\"\r\nContent-Type: image/jpeg\r\n\r\nfakebytes\r\n--boundary--\r\n")

	req, err := http.NewRequest(http.MethodPost, h.server.URL+"/api/properties/p1/images", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "multipart/form-data; boundary=boundary")
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

func TestEntityRouteParsing(t *testing.T) {
	cases := []struct {
		path     string
		resource string
		id       string
		action   string
		ok       bool
	}{
		{"/api/leads", "leads", "", "", true},
		{"/api/leads/l1", "leads", "l1", "", true},
		{"/api/tasks/t1/toggle", "tasks", "t1", "toggle", true},
		{"/api/leads/l1/x/y", "", "", "", false},
		{"/other", "", "", "", false},
	}
	for _, tc := range cases {
		resource, id, action, ok := entityRoute(tc.path)
		if resource != tc.resource || id != tc.id || action != tc.action || ok != tc.ok {
			t.Errorf("entityRoute(%q) = (%q, %q, %q, %v)", tc.path, resource, id, action, ok)
		}
	}
}
