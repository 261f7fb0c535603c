// Package client provides an HTTP client for the chatvault server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/store"
)

// Client talks to the chatvault server's JSON API.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a new API client.
// If endpoint is empty, uses CHATVAULT_SERVER_URL env var or defaults to localhost:8486.
// Timeout can be configured via CHATVAULT_CLIENT_TIMEOUT env var (default 10m, extractions can run long).
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("CHATVAULT_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8486"
	}
	endpoint = strings.TrimRight(endpoint, "/")

	timeout := 10 * time.Minute
	if t := os.Getenv("CHATVAULT_CLIENT_TIMEOUT"); t != "" {
		if d, err := time.ParseDuration(t); err == nil {
			timeout = d
		}
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError is a non-2xx response decoded from the server's error envelope.
type APIError struct {
	Status  int      `json:"-"`
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s (fields: %s)", e.Kind, e.Message, strings.Join(e.Fields, ", "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// do sends a request and decodes the JSON response into result.
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Message == "" {
			return fmt.Errorf("server error: %s - %s", resp.Status, string(respBody))
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}
	return nil
}

// CredentialInput carries the credential fields for mutating calls.
type CredentialInput struct {
	Provider     string            `json:"provider"`
	Credentials  map[string]string `json:"credentials"`
	Organization string            `json:"organization,omitempty"`
	Workspace    string            `json:"workspace,omitempty"`
}

// toolRequest is the body for invoke, job, and session submission.
type toolRequest struct {
	CredentialInput
	Tool   string         `json:"tool"`
	Params map[string]any `json:"params,omitempty"`
}

// ListProviders returns the provider catalog.
func (c *Client) ListProviders(ctx context.Context) ([]models.ProviderDescriptor, error) {
	var providers []models.ProviderDescriptor
	if err := c.do(ctx, http.MethodGet, "/providers", nil, &providers); err != nil {
		return nil, err
	}
	return providers, nil
}

// DescribeProvider returns one provider descriptor.
func (c *Client) DescribeProvider(ctx context.Context, id string) (*models.ProviderDescriptor, error) {
	var desc models.ProviderDescriptor
	if err := c.do(ctx, http.MethodGet, "/providers/"+url.PathEscape(id), nil, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// ListTools returns tool descriptors, optionally filtered by provider.
func (c *Client) ListTools(ctx context.Context, provider string) ([]models.ToolDescriptor, error) {
	path := "/tools"
	if provider != "" {
		path += "?provider=" + url.QueryEscape(provider)
	}
	var tools []models.ToolDescriptor
	if err := c.do(ctx, http.MethodGet, path, nil, &tools); err != nil {
		return nil, err
	}
	return tools, nil
}

// ValidateCredentials validates a credential and returns its record.
func (c *Client) ValidateCredentials(ctx context.Context, cred CredentialInput) (*models.ValidationRecord, error) {
	var record models.ValidationRecord
	if err := c.do(ctx, http.MethodPost, "/credentials/validate", cred, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// InvokeTool runs a tool once and returns the raw result.
func (c *Client) InvokeTool(ctx context.Context, cred CredentialInput, tool string, params map[string]any) (json.RawMessage, error) {
	var result json.RawMessage
	req := toolRequest{CredentialInput: cred, Tool: tool, Params: params}
	if err := c.do(ctx, http.MethodPost, "/invoke", req, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// StartExtraction submits an extraction job.
func (c *Client) StartExtraction(ctx context.Context, cred CredentialInput, tool string, params map[string]any) (*models.ExtractionJob, error) {
	var job models.ExtractionJob
	req := toolRequest{CredentialInput: cred, Tool: tool, Params: params}
	if err := c.do(ctx, http.MethodPost, "/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJob fetches a job snapshot. With wait, the call blocks server-side
// until the job is terminal.
func (c *Client) GetJob(ctx context.Context, id string, wait bool) (*models.ExtractionJob, error) {
	path := "/jobs/" + url.PathEscape(id)
	if wait {
		path += "?wait=true"
	}
	var job models.ExtractionJob
	if err := c.do(ctx, http.MethodGet, path, nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all job snapshots.
func (c *Client) ListJobs(ctx context.Context) ([]models.ExtractionJob, error) {
	var jobs []models.ExtractionJob
	if err := c.do(ctx, http.MethodGet, "/jobs", nil, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CancelJob cancels a job.
func (c *Client) CancelJob(ctx context.Context, id string) (*models.ExtractionJob, error) {
	var job models.ExtractionJob
	if err := c.do(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// StartMonitoring opens a polling session.
func (c *Client) StartMonitoring(ctx context.Context, cred CredentialInput, tool string, params map[string]any) (*models.MonitoringSession, error) {
	var sess models.MonitoringSession
	req := toolRequest{CredentialInput: cred, Tool: tool, Params: params}
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// GetSession fetches a session snapshot.
func (c *Client) GetSession(ctx context.Context, id string) (*models.MonitoringSession, error) {
	var sess models.MonitoringSession
	if err := c.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(id), nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ListSessions returns all session snapshots.
func (c *Client) ListSessions(ctx context.Context) ([]models.MonitoringSession, error) {
	var sessions []models.MonitoringSession
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// PauseSession pauses an active session.
func (c *Client) PauseSession(ctx context.Context, id string) (*models.MonitoringSession, error) {
	return c.sessionControl(ctx, id, "pause")
}

// ResumeSession resumes a paused session.
func (c *Client) ResumeSession(ctx context.Context, id string) (*models.MonitoringSession, error) {
	return c.sessionControl(ctx, id, "resume")
}

// StopSession stops a session permanently.
func (c *Client) StopSession(ctx context.Context, id string) (*models.MonitoringSession, error) {
	return c.sessionControl(ctx, id, "stop")
}

func (c *Client) sessionControl(ctx context.Context, id, action string) (*models.MonitoringSession, error) {
	var sess models.MonitoringSession
	path := "/sessions/" + url.PathEscape(id) + "/" + action
	if err := c.do(ctx, http.MethodPost, path, nil, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// ConversationFilter narrows conversation listings.
type ConversationFilter struct {
	Provider      string
	TitleContains string
	Limit         int
	Offset        int
}

// ListConversations returns a page of stored conversations.
func (c *Client) ListConversations(ctx context.Context, f ConversationFilter) (*store.Page, error) {
	q := url.Values{}
	if f.Provider != "" {
		q.Set("provider", f.Provider)
	}
	if f.TitleContains != "" {
		q.Set("title", f.TitleContains)
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	path := "/conversations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page store.Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetConversation fetches one stored conversation by canonical id.
func (c *Client) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// GetStats returns server runtime statistics.
func (c *Client) GetStats(ctx context.Context) (*orchestrator.Stats, error) {
	var stats orchestrator.Stats
	if err := c.do(ctx, http.MethodGet, "/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// WatchEvents subscribes to the server's event stream over websocket.
// The onEvent callback is invoked per event. Return an error from onEvent to abort.
func (c *Client) WatchEvents(ctx context.Context, onEvent func(orchestrator.Event) error) error {
	wsEndpoint := c.endpoint + "/events/ws"
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsEndpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev orchestrator.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read event: %w", err)
		}
		if err := onEvent(ev); err != nil {
			return err
		}
	}
}
