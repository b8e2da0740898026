package session

import (
	"context"
	"log"
	"sync"

	"homebase/api/internal/cache"
	"homebase/api/internal/rbac"
	"homebase/api/internal/remote"
)

type State int

const (
	StateLoading State = iota
	StateUnauthenticated
	StateAuthenticated
)

// Gate tracks the authenticated session, resolves its role, and keeps the
// active view inside the role's permitted set. The role is resolved once per
// identity, not per request: remote profile row first, then session
// metadata, then the cached role, then admin. The remote profile is treated
// as the source of truth when it disagrees with session metadata.
type Gate struct {
	auth   Auth
	client remote.Client
	cache  *cache.Store

	mu     sync.RWMutex
	state  State
	userID string
	role   rbac.Role
	view   rbac.View
}

func NewGate(auth Auth, client remote.Client, cacheStore *cache.Store) *Gate {
	g := &Gate{
		auth:   auth,
		client: client,
		cache:  cacheStore,
		state:  StateLoading,
		role:   rbac.RoleAdmin,
		view:   rbac.ViewDashboard,
	}
	auth.OnChange(g.handleChange)
	return g
}

// Start resolves the initial session state. Call once at session start.
func (g *Gate) Start(ctx context.Context) error {
	session, err := g.auth.CurrentSession(ctx)
	if err != nil {
		g.setUnauthenticated()
		return err
	}
	g.apply(ctx, session)
	return nil
}

// handleChange reacts to auth-state notifications. Results for a signed-out
// session are discarded by the store's generation check; here we only track
// identity.
func (g *Gate) handleChange(session *Session) {
	g.apply(context.Background(), session)
}

func (g *Gate) apply(ctx context.Context, session *Session) {
	if session == nil {
		g.setUnauthenticated()
		return
	}

	g.mu.RLock()
	sameIdentity := g.state == StateAuthenticated && g.userID == session.UserID
	g.mu.RUnlock()
	if sameIdentity {
		return
	}

	role := g.resolveRole(ctx, session)

	g.mu.Lock()
	g.state = StateAuthenticated
	g.userID = session.UserID
	g.role = role
	g.mu.Unlock()

	g.evaluateView(ctx)
}

func (g *Gate) setUnauthenticated() {
	g.mu.Lock()
	g.state = StateUnauthenticated
	g.userID = ""
	g.role = rbac.RoleAdmin
	g.view = rbac.ViewDashboard
	g.mu.Unlock()
}

// resolveRole applies the precedence order: remote profile row, session
// metadata, cached role, default admin. Lookup failures fall through to the
// next source rather than blocking the session.
func (g *Gate) resolveRole(ctx context.Context, session *Session) rbac.Role {
	if role, ok := g.profileRole(ctx, session.UserID); ok {
		g.rememberRole(ctx, role)
		return role
	}

	if raw, ok := session.Metadata["role"].(string); ok && raw != "" {
		role := rbac.Normalize(raw)
		g.rememberRole(ctx, role)
		return role
	}

	if cached, err := g.cache.Role(ctx); err == nil && cached != "" {
		return rbac.Normalize(cached)
	}

	return rbac.RoleAdmin
}

// profileRole looks the user up in the remote profiles table.
func (g *Gate) profileRole(ctx context.Context, userID string) (rbac.Role, bool) {
	rows, err := g.client.Select(ctx, "profiles")
	if err != nil {
		log.Printf("session: profile lookup failed, falling back: %v", err)
		return "", false
	}
	for _, row := range rows {
		id, _ := row["id"].(string)
		if id != userID {
			continue
		}
		if raw, ok := row["role"].(string); ok && raw != "" {
			return rbac.Normalize(raw), true
		}
		return "", false
	}
	return "", false
}

func (g *Gate) rememberRole(ctx context.Context, role rbac.Role) {
	if err := g.cache.SaveRole(ctx, string(role)); err != nil {
		log.Printf("session: cache role: %v", err)
	}
}

// evaluateView restores the persisted view and redirects to the role's
// landing view when the persisted one is no longer permitted.
func (g *Gate) evaluateView(ctx context.Context) {
	persisted, err := g.cache.View(ctx)
	if err != nil {
		log.Printf("session: load view: %v", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	view := g.view
	if persisted != "" {
		view = rbac.View(persisted)
	}
	if !rbac.CanView(g.role, view) {
		view = rbac.DefaultView(g.role)
	}
	g.view = view
}

func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

func (g *Gate) Role() rbac.Role {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.role
}

func (g *Gate) UserID() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.userID
}

func (g *Gate) ActiveView() rbac.View {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.view
}

// SetView switches the active view. A view outside the role's permitted set
// redirects to the role's landing view; the returned view is what actually
// became active.
func (g *Gate) SetView(ctx context.Context, view rbac.View) rbac.View {
	g.mu.Lock()
	if !rbac.CanView(g.role, view) {
		view = rbac.DefaultView(g.role)
	}
	g.view = view
	g.mu.Unlock()

	if err := g.cache.SaveView(ctx, string(view)); err != nil {
		log.Printf("session: save view: %v", err)
	}
	return view
}
