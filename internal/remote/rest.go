package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// RestClient talks to a PostgREST-compatible endpoint (one table per path,
// filters in the query string). It is the default backend.
type RestClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewRestClient(baseURL, apiKey string) *RestClient {
	return &RestClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SetToken switches subsequent requests to the given user bearer token.
// An empty token falls back to the service key.
func (c *RestClient) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *RestClient) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		return c.token
	}
	return c.apiKey
}

func (c *RestClient) tableURL(table string) string {
	return c.baseURL + "/rest/v1/" + url.PathEscape(table)
}

func (c *RestClient) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.bearer())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost || method == http.MethodPatch {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &RemoteError{Message: err.Error()}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteError{Status: resp.StatusCode, Message: err.Error()}
	}
	if resp.StatusCode >= 400 {
		return nil, decodeError(resp.StatusCode, data)
	}
	return data, nil
}

// decodeError maps a PostgREST error body onto RemoteError. Bodies that are
// not JSON keep their raw text as the message.
func decodeError(status int, body []byte) *RemoteError {
	var parsed struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
		Hint    string `json:"hint"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Message == "" {
		return &RemoteError{Status: status, Message: strings.TrimSpace(string(body))}
	}
	return &RemoteError{
		Status:  status,
		Code:    parsed.Code,
		Message: parsed.Message,
		Details: parsed.Details,
	}
}

func (c *RestClient) Select(ctx context.Context, table string) ([]Row, error) {
	data, err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?select=*", nil)
	if err != nil {
		return nil, err
	}
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s rows: %w", table, err)
	}
	return rows, nil
}

func (c *RestClient) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	data, err := c.do(ctx, http.MethodPost, c.tableURL(table), payload)
	if err != nil {
		return nil, err
	}
	return firstRow(table, data, payload)
}

func (c *RestClient) Update(ctx context.Context, table string, id string, patch Row) (Row, error) {
	target := c.tableURL(table) + "?id=eq." + url.QueryEscape(id)
	data, err := c.do(ctx, http.MethodPatch, target, patch)
	if err != nil {
		return nil, err
	}
	return firstRow(table, data, patch)
}

func (c *RestClient) Delete(ctx context.Context, table string, id string) error {
	target := c.tableURL(table) + "?id=eq." + url.QueryEscape(id)
	_, err := c.do(ctx, http.MethodDelete, target, nil)
	return err
}

// firstRow unwraps PostgREST's single-element response array. An empty array
// (no representation returned) echoes the sent payload so callers still get
// a row to normalize.
func firstRow(table string, data []byte, sent Row) (Row, error) {
	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s write result: %w", table, err)
	}
	if len(rows) == 0 {
		return sent, nil
	}
	return rows[0], nil
}
