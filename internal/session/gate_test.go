package session

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"homebase/api/internal/cache"
	"homebase/api/internal/rbac"
	"homebase/api/internal/remote"
)

type fakeAuth struct {
	session   *Session
	listeners []func(*Session)
}

func (a *fakeAuth) CurrentSession(ctx context.Context) (*Session, error) {
	return a.session, nil
}

func (a *fakeAuth) SignIn(ctx context.Context, email, password string) (*Session, error) {
	return a.session, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	a.session = nil
	for _, fn := range a.listeners {
		fn(nil)
	}
	return nil
}

func (a *fakeAuth) OnChange(fn func(*Session)) {
	a.listeners = append(a.listeners, fn)
}

func (a *fakeAuth) notify(session *Session) {
	a.session = session
	for _, fn := range a.listeners {
		fn(session)
	}
}

type profileClient struct {
	rows []remote.Row
	err  error
}

func (c *profileClient) Select(ctx context.Context, table string) ([]remote.Row, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.rows, nil
}

func (c *profileClient) Insert(ctx context.Context, table string, payload remote.Row) (remote.Row, error) {
	return payload, nil
}

func (c *profileClient) Update(ctx context.Context, table string, id string, patch remote.Row) (remote.Row, error) {
	return patch, nil
}

func (c *profileClient) Delete(ctx context.Context, table string, id string) error {
	return nil
}

func testCache(t *testing.T) *cache.Store {
	s := miniredis.RunT(t)
	store, err := cache.NewStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestGateNoSession(t *testing.T) {
	gate := NewGate(&fakeAuth{}, &profileClient{}, testCache(t))
	if err := gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if gate.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", gate.State())
	}
}

func TestGateRolePrecedence(t *testing.T) {
	cases := []struct {
		name     string
		profiles []remote.Row
		lookup   error
		metadata map[string]any
		cached   string
		want     rbac.Role
	}{
		{
			name:     "remote profile wins",
			profiles: []remote.Row{{"id": "u1", "role": "owner"}},
			metadata: map[string]any{"role": "renter"},
			cached:   "maintenance",
			want:     rbac.RoleOwner,
		},
		{
			name:     "metadata when profile missing",
			profiles: []remote.Row{{"id": "someone-else", "role": "owner"}},
			metadata: map[string]any{"role": "renter"},
			cached:   "maintenance",
			want:     rbac.RoleRenter,
		},
		{
			name:     "cached role when lookup fails and no metadata",
			lookup:   errors.New("timeout"),
			metadata: map[string]any{},
			cached:   "maintenance",
			want:     rbac.RoleMaintenance,
		},
		{
			name:     "default admin when nothing known",
			lookup:   errors.New("timeout"),
			metadata: map[string]any{},
			want:     rbac.RoleAdmin,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := testCache(t)
			ctx := context.Background()
			if tc.cached != "" {
				if err := store.SaveRole(ctx, tc.cached); err != nil {
					t.Fatalf("SaveRole failed: %v", err)
				}
			}

			auth := &fakeAuth{session: &Session{UserID: "u1", Metadata: tc.metadata}}
			gate := NewGate(auth, &profileClient{rows: tc.profiles, err: tc.lookup}, store)
			if err := gate.Start(ctx); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			if gate.State() != StateAuthenticated {
				t.Fatalf("state = %v, want authenticated", gate.State())
			}
			if gate.Role() != tc.want {
				t.Fatalf("role = %q, want %q", gate.Role(), tc.want)
			}
		})
	}
}

func TestGateRedirectsForbiddenView(t *testing.T) {
	store := testCache(t)
	ctx := context.Background()
	// a maintenance user whose persisted view is no longer permitted
	if err := store.SaveView(ctx, "finance"); err != nil {
		t.Fatalf("SaveView failed: %v", err)
	}

	auth := &fakeAuth{session: &Session{UserID: "u1"}}
	client := &profileClient{rows: []remote.Row{{"id": "u1", "role": "maintenance"}}}
	gate := NewGate(auth, client, store)
	if err := gate.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if got := gate.ActiveView(); got != rbac.ViewDashboard {
		t.Fatalf("view = %q, want redirect to %q", got, rbac.ViewDashboard)
	}
}

func TestGateSetViewForbiddenRedirects(t *testing.T) {
	auth := &fakeAuth{session: &Session{UserID: "u1"}}
	client := &profileClient{rows: []remote.Row{{"id": "u1", "role": "renter"}}}
	gate := NewGate(auth, client, testCache(t))
	if err := gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	got := gate.SetView(context.Background(), rbac.ViewFinance)
	if got != rbac.ViewDashboard {
		t.Fatalf("SetView returned %q, want %q", got, rbac.ViewDashboard)
	}
	if gate.ActiveView() != rbac.ViewDashboard {
		t.Fatalf("active view = %q", gate.ActiveView())
	}

	got = gate.SetView(context.Background(), rbac.ViewMessages)
	if got != rbac.ViewMessages {
		t.Fatalf("permitted view rejected: %q", got)
	}
}

func TestGateRoleReresolvedOnIdentityChange(t *testing.T) {
	store := testCache(t)
	auth := &fakeAuth{session: &Session{UserID: "u1"}}
	client := &profileClient{rows: []remote.Row{
		{"id": "u1", "role": "owner"},
		{"id": "u2", "role": "renter"},
	}}
	gate := NewGate(auth, client, store)
	if err := gate.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if gate.Role() != rbac.RoleOwner {
		t.Fatalf("role = %q, want owner", gate.Role())
	}

	// same identity again: no re-resolution, role stays put even if the
	// profile table changed underneath
	client.rows = []remote.Row{{"id": "u1", "role": "renter"}}
	auth.notify(&Session{UserID: "u1"})
	if gate.Role() != rbac.RoleOwner {
		t.Fatalf("role re-resolved on same identity: %q", gate.Role())
	}

	// new identity: resolve again
	client.rows = []remote.Row{{"id": "u2", "role": "renter"}}
	auth.notify(&Session{UserID: "u2"})
	if gate.Role() != rbac.RoleRenter {
		t.Fatalf("role = %q, want renter", gate.Role())
	}

	// sign-out resets
	if err := auth.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut failed: %v", err)
	}
	if gate.State() != StateUnauthenticated {
		t.Fatalf("state = %v, want unauthenticated", gate.State())
	}
}
