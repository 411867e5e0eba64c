// Package workflowy is the HTTP client for the remote outline API.
//
// Every call carries a bearer credential. Responses are decoded into typed
// records at this boundary; nothing above this package sees raw JSON.
package workflowy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://workflowy.com/api/v1"

var (
	// ErrUnauthorized indicates the bearer credential was rejected.
	// This is an authentication failure, not a sync failure.
	ErrUnauthorized = errors.New("workflowy: invalid or expired API key")

	// ErrNotFound indicates the requested node doesn't exist remotely.
	ErrNotFound = errors.New("workflowy: node not found")
)

// Node is one outline node as returned by the API.
//
// The single-node endpoint does not return parent_id; callers that need it
// must preserve their locally-known value.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Note      string `json:"note,omitempty"`
	ParentID  string `json:"parent_id,omitempty"`
	Completed bool   `json:"completed"`
	Priority  int    `json:"priority"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// CreateRequest holds the fields for creating a new node.
type CreateRequest struct {
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
	Note     string `json:"note,omitempty"`
}

// UpdateRequest holds the mutable fields of a node. Nil pointers are
// omitted so the remote only changes what the caller set.
type UpdateRequest struct {
	Name *string `json:"name,omitempty"`
	Note *string `json:"note,omitempty"`
}

// MoveRequest reparents a node and positions it among its new siblings.
type MoveRequest struct {
	ParentID string `json:"parent_id"`
	Priority int    `json:"priority"`
}

// Client is the remote outline collaborator consumed by the sync engine.
// It is an interface so engine tests can substitute a fake.
type Client interface {
	// Export fetches the complete node collection in one call.
	// This is the expensive, rate-limited bulk operation.
	Export(ctx context.Context) ([]Node, error)

	// GetNode fetches one node's current fields.
	// Returns ErrNotFound if the node was deleted remotely.
	GetNode(ctx context.Context, id string) (*Node, error)

	// ListChildren fetches the full child list of one parent.
	// An empty parentID lists the top-level nodes.
	ListChildren(ctx context.Context, parentID string) ([]Node, error)

	Create(ctx context.Context, req CreateRequest) (*Node, error)
	Update(ctx context.Context, id string, req UpdateRequest) error
	Move(ctx context.Context, id string, req MoveRequest) error
	Delete(ctx context.Context, id string) error
	SetCompleted(ctx context.Context, id string, completed bool) error

	// ValidateKey checks the bearer credential without side effects.
	ValidateKey(ctx context.Context) error
}

// HTTPClient implements Client against the real API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a client for the given API key.
// baseURL may be empty to use the production endpoint.
func NewClient(apiKey, baseURL string) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Export implements Client.Export.
func (c *HTTPClient) Export(ctx context.Context) ([]Node, error) {
	var resp struct {
		Nodes []Node `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, "/nodes/export", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// GetNode implements Client.GetNode.
func (c *HTTPClient) GetNode(ctx context.Context, id string) (*Node, error) {
	var node Node
	if err := c.do(ctx, http.MethodGet, "/nodes/"+url.PathEscape(id), nil, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// ListChildren implements Client.ListChildren.
func (c *HTTPClient) ListChildren(ctx context.Context, parentID string) ([]Node, error) {
	path := "/nodes"
	if parentID != "" {
		path += "?parent_id=" + url.QueryEscape(parentID)
	}
	var resp struct {
		Nodes []Node `json:"nodes"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Nodes, nil
}

// Create implements Client.Create.
func (c *HTTPClient) Create(ctx context.Context, req CreateRequest) (*Node, error) {
	var node Node
	if err := c.do(ctx, http.MethodPost, "/nodes", req, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// Update implements Client.Update.
func (c *HTTPClient) Update(ctx context.Context, id string, req UpdateRequest) error {
	return c.do(ctx, http.MethodPatch, "/nodes/"+url.PathEscape(id), req, nil)
}

// Move implements Client.Move.
func (c *HTTPClient) Move(ctx context.Context, id string, req MoveRequest) error {
	return c.do(ctx, http.MethodPost, "/nodes/"+url.PathEscape(id)+"/move", req, nil)
}

// Delete implements Client.Delete.
func (c *HTTPClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/nodes/"+url.PathEscape(id), nil, nil)
}

// SetCompleted implements Client.SetCompleted.
func (c *HTTPClient) SetCompleted(ctx context.Context, id string, completed bool) error {
	action := "/complete"
	if !completed {
		action = "/uncomplete"
	}
	return c.do(ctx, http.MethodPost, "/nodes/"+url.PathEscape(id)+action, nil, nil)
}

// ValidateKey implements Client.ValidateKey.
func (c *HTTPClient) ValidateKey(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/targets", nil, nil)
}

// do performs one authenticated request and decodes the response into out
// (when out is non-nil). HTTP status codes map to the package's sentinel
// errors at this single point.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("workflowy: %s %s returned %d: %s", method, path, resp.StatusCode, msg)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// ParseTime converts an API timestamp to a time pointer, nil when absent
// or malformed. The API uses RFC 3339.
func ParseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
