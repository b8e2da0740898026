// Package session binds the authenticated identity to a role and keeps the
// active view inside that role's permitted set.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Session is the identity the core reads from the auth collaborator. The
// token is opaque; Metadata carries whatever the auth service attached to
// the user (possibly a role hint).
type Session struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
	Metadata  map[string]any
}

// Auth is the authentication collaborator.
type Auth interface {
	CurrentSession(ctx context.Context) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnChange registers a callback invoked with the new session, or nil on
	// sign-out.
	OnChange(fn func(*Session))
}

// GoTrueClient implements Auth against a GoTrue-compatible auth endpoint.
type GoTrueClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu        sync.Mutex
	current   *Session
	listeners []func(*Session)
}

func NewGoTrueClient(baseURL, apiKey string) *GoTrueClient {
	return &GoTrueClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *GoTrueClient) CurrentSession(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, nil
	}
	if !c.current.ExpiresAt.IsZero() && time.Now().After(c.current.ExpiresAt) {
		c.current = nil
		return nil, nil
	}
	copied := *c.current
	return &copied, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID           string         `json:"id"`
		Email        string         `json:"email"`
		UserMetadata map[string]any `json:"user_metadata"`
	} `json:"user"`
}

func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, fmt.Errorf("encode credentials: %w", err)
	}

	url := c.baseURL + "/auth/v1/token?grant_type=password"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read sign-in response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("sign in rejected: %s", authErrorMessage(data))
	}

	var parsed tokenResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode sign-in response: %w", err)
	}

	session := &Session{
		Token:     parsed.AccessToken,
		UserID:    parsed.User.ID,
		Email:     parsed.User.Email,
		ExpiresAt: time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
		Metadata:  parsed.User.UserMetadata,
	}

	c.mu.Lock()
	c.current = session
	listeners := append([]func(*Session){}, c.listeners...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(session)
	}
	return session, nil
}

func (c *GoTrueClient) SignOut(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.current = nil
	listeners := append([]func(*Session){}, c.listeners...)
	c.mu.Unlock()

	if current != nil {
		url := c.baseURL + "/auth/v1/logout"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err == nil {
			req.Header.Set("apikey", c.apiKey)
			req.Header.Set("Authorization", "Bearer "+current.Token)
			if resp, err := c.http.Do(req); err == nil {
				resp.Body.Close()
			}
		}
	}

	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

func (c *GoTrueClient) OnChange(fn func(*Session)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func authErrorMessage(data []byte) string {
	var parsed struct {
		Message     string `json:"msg"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(data, &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if parsed.Description != "" {
			return parsed.Description
		}
	}
	return strings.TrimSpace(string(data))
}
