// Package zergapi is the HTTP client for the Jarvis API as the e2e suite
// consumes it: resource shortcuts for seeding fixtures, the admin database
// reset, and the streaming chat endpoint. Every request carries the
// worker-scoped isolation header.
package zergapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/zerg-ai/jarvis-e2e/internal/worker"
)

// Client talks to the Jarvis API on behalf of one test worker.
type Client struct {
	baseURL  string
	workerID string
	http     *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests inject
// short timeouts here).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithWorkerID overrides the worker identifier. The default is the
// process-wide identifier from the worker package.
func WithWorkerID(id string) Option {
	return func(c *Client) { c.workerID = id }
}

// New creates a client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		workerID: worker.ID(),
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WorkerID returns the identifier this client tags requests with.
func (c *Client) WorkerID() string { return c.workerID }

// BaseURL returns the API base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError is a non-2xx response from the API.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, body)
}

// do performs a JSON request/response round trip. out may be nil.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s %s: encode body: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	req.Header.Set(worker.Header, c.workerID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}

// Health probes the API health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Session is an authenticated API session.
type Session struct {
	Token string `json:"token"`
	Email string `json:"email"`
}

// Login opens a session for the given dev credentials.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	in := struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}{email, password}
	var out Session
	if err := c.do(ctx, http.MethodPost, "/api/session", in, &out); err != nil {
		return nil, fmt.Errorf("login %s: %w", email, err)
	}
	return &out, nil
}

// Logout closes the current session.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

// Fiche is a configured AI assistant.
type Fiche struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Model        string    `json:"model"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

// CreateFiche seeds a fiche directly through the API, bypassing the UI.
func (c *Client) CreateFiche(ctx context.Context, name, instructions, model string) (*Fiche, error) {
	in := Fiche{Name: name, Instructions: instructions, Model: model}
	var out Fiche
	if err := c.do(ctx, http.MethodPost, "/api/fiches", in, &out); err != nil {
		return nil, fmt.Errorf("create fiche %q: %w", name, err)
	}
	return &out, nil
}

// ListFiches returns the worker partition's fiches.
func (c *Client) ListFiches(ctx context.Context) ([]Fiche, error) {
	var out []Fiche
	if err := c.do(ctx, http.MethodGet, "/api/fiches", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetFiche fetches one fiche by id.
func (c *Client) GetFiche(ctx context.Context, id string) (*Fiche, error) {
	var out Fiche
	if err := c.do(ctx, http.MethodGet, "/api/fiches/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteFiche removes a fiche.
func (c *Client) DeleteFiche(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/fiches/"+id, nil, nil)
}

// Thread is a chat thread attached to a fiche.
type Thread struct {
	ID      string `json:"id"`
	FicheID string `json:"fiche_id"`
	Title   string `json:"title"`
}

// Message is one chat message within a thread.
type Message struct {
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`
	Role     string `json:"role"`
	Content  string `json:"content"`
}

// CreateThread opens a thread on a fiche.
func (c *Client) CreateThread(ctx context.Context, ficheID, title string) (*Thread, error) {
	in := Thread{FicheID: ficheID, Title: title}
	var out Thread
	if err := c.do(ctx, http.MethodPost, "/api/threads", in, &out); err != nil {
		return nil, fmt.Errorf("create thread on fiche %s: %w", ficheID, err)
	}
	return &out, nil
}

// ListMessages returns a thread's messages.
func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	var out []Message
	if err := c.do(ctx, http.MethodGet, "/api/threads/"+threadID+"/messages", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// KnowledgeSource is an attached knowledge document or URL.
type KnowledgeSource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	URL    string `json:"url,omitempty"`
	Status string `json:"status"` // pending, ingesting, ready, failed
}

// CreateKnowledgeSource registers a source for ingestion.
func (c *Client) CreateKnowledgeSource(ctx context.Context, name, kind, url string) (*KnowledgeSource, error) {
	in := KnowledgeSource{Name: name, Kind: kind, URL: url}
	var out KnowledgeSource
	if err := c.do(ctx, http.MethodPost, "/api/knowledge", in, &out); err != nil {
		return nil, fmt.Errorf("create knowledge source %q: %w", name, err)
	}
	return &out, nil
}

// ListKnowledgeSources returns the worker partition's sources.
func (c *Client) ListKnowledgeSources(ctx context.Context) ([]KnowledgeSource, error) {
	var out []KnowledgeSource
	if err := c.do(ctx, http.MethodGet, "/api/knowledge", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetKnowledgeSource fetches ingestion state for one source.
func (c *Client) GetKnowledgeSource(ctx context.Context, id string) (*KnowledgeSource, error) {
	var out KnowledgeSource
	if err := c.do(ctx, http.MethodGet, "/api/knowledge/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Workflow is a saved canvas graph.
type Workflow struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Nodes []WorkflowNode `json:"nodes"`
	Edges []WorkflowEdge `json:"edges"`
}

// WorkflowNode is one canvas node.
type WorkflowNode struct {
	ID   string  `json:"id"`
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// WorkflowEdge connects two canvas nodes.
type WorkflowEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GetWorkflow fetches a saved canvas graph.
func (c *Client) GetWorkflow(ctx context.Context, id string) (*Workflow, error) {
	var out Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows/"+id, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListWorkflows returns the worker partition's workflows.
func (c *Client) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	var out []Workflow
	if err := c.do(ctx, http.MethodGet, "/api/workflows", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatRequest is the body of the streaming chat endpoint.
type ChatRequest struct {
	Message             string `json:"message"`
	MessageID           string `json:"message_id"`
	Model               string `json:"model"`
	ClientCorrelationID string `json:"client_correlation_id"`
}

// chat endpoint paths; the legacy alias survives in older deployments.
const (
	chatPath       = "/api/jarvis/chat"
	chatPathLegacy = "/api/oikos/chat"
)

// Chat sends a message and returns the raw SSE response body. The caller
// owns the body and must close it; wrap it in sse.NewCapture to collect
// frames. A generated message id and correlation id are filled in when the
// request leaves them empty.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	if req.MessageID == "" {
		req.MessageID = uuid.NewString()
	}
	if req.ClientCorrelationID == "" {
		req.ClientCorrelationID = uuid.NewString()
	}

	body, err := c.openStream(ctx, chatPath, req)
	if err != nil {
		var apiErr *APIError
		// A 404 on the primary path means an older deployment; retry
		// the legacy alias once.
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return c.openStream(ctx, chatPathLegacy, req)
		}
		return nil, err
	}
	return body, nil
}

func (c *Client) openStream(ctx context.Context, path string, in any) (io.ReadCloser, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("POST %s: encode body: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	req.Header.Set(worker.Header, c.workerID)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	// Streaming responses must not be bounded by the client-wide timeout;
	// the caller's context carries the deadline.
	hc := &http.Client{Transport: c.http.Transport}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &APIError{Method: http.MethodPost, Path: path, Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}
