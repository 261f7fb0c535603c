package httpapi_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/httpapi"
	"github.com/chatvault/chatvault/internal/models"
	"github.com/chatvault/chatvault/internal/orchestrator"
	"github.com/chatvault/chatvault/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		StoreBackend:        "memory",
		ValidationTTL:       time.Hour,
		ValidationRateLimit: 100,
		ValidationWindow:    time.Minute,
		ExecutorTimeout:     2 * time.Second,
		MaxRetries:          3,
		RetryBackoff:        time.Millisecond,
		MaxPollFailures:     5,
		WebhookTimeout:      time.Second,
		WebhookAttempts:     2,
	}
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch, err := orchestrator.New(testConfig(), store.NewMemory(), logger)
	require.NoError(t, err)
	srv := httptest.NewServer(httpapi.NewHandler(orch, logger))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body map[string]any) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func chatgptCredential() map[string]any {
	return map[string]any{
		"provider":    "chatgpt",
		"credentials": map[string]any{"session_token": "tok-http-1"},
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestProviderCatalog(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/providers")
	require.NoError(t, err)
	providers := decodeBody[[]models.ProviderDescriptor](t, resp)
	assert.Len(t, providers, 5)

	resp, err = http.Get(srv.URL + "/tools?provider=claude")
	require.NoError(t, err)
	tools := decodeBody[[]models.ToolDescriptor](t, resp)
	require.NotEmpty(t, tools)
	for _, tool := range tools {
		assert.Equal(t, "claude", tool.ProviderID)
	}
}

func TestDescribeUnknownProviderIs404(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/providers/copilot")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "unknown_provider", body["kind"])
}

func TestValidateCredentials(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/credentials/validate", chatgptCredential())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	record := decodeBody[models.ValidationRecord](t, resp)
	assert.True(t, record.Valid)
	assert.Equal(t, "chatgpt", record.Provider)
	assert.NotEmpty(t, record.Fingerprint)
}

func TestJobWithoutValidationIs401(t *testing.T) {
	srv := newTestServer(t)

	body := chatgptCredential()
	body["tool"] = "extract_chatgpt_conversations"
	body["params"] = map[string]any{"session_token": "tok-http-1"}

	resp := postJSON(t, srv.URL+"/jobs", body)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBadParamsIs400WithFields(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/credentials/validate", chatgptCredential())
	resp.Body.Close()

	body := chatgptCredential()
	body["tool"] = "extract_chatgpt_conversations"
	body["params"] = map[string]any{}

	resp = postJSON(t, srv.URL+"/jobs", body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	errBody := decodeBody[struct {
		Kind   string   `json:"kind"`
		Fields []string `json:"fields"`
	}](t, resp)
	assert.Equal(t, "schema_validation_error", errBody.Kind)
	assert.Contains(t, errBody.Fields, "session_token")
}

func TestMalformedBodyIs400(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/jobs", "application/json", strings.NewReader("{nope"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestExtractionFlow(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/credentials/validate", chatgptCredential())
	resp.Body.Close()

	body := chatgptCredential()
	body["tool"] = "extract_chatgpt_conversations"
	body["params"] = map[string]any{"session_token": "tok-http-1"}

	resp = postJSON(t, srv.URL+"/jobs", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := decodeBody[models.ExtractionJob](t, resp)
	require.NotEmpty(t, job.ID)

	resp, err := http.Get(srv.URL + "/jobs/" + job.ID + "?wait=true")
	require.NoError(t, err)
	done := decodeBody[models.ExtractionJob](t, resp)
	assert.Equal(t, models.JobSucceeded, done.State)
	require.NotNil(t, done.Result)
	assert.NotEmpty(t, done.Result.Conversations)

	resp, err = http.Get(srv.URL + "/conversations?provider=chatgpt")
	require.NoError(t, err)
	page := decodeBody[store.Page](t, resp)
	assert.Equal(t, len(done.Result.Conversations), page.Total)

	resp, err = http.Get(srv.URL + "/conversations/" + page.Conversations[0].ID)
	require.NoError(t, err)
	conv := decodeBody[models.Conversation](t, resp)
	assert.NotEmpty(t, conv.Messages)
}

func TestCancelUnknownJobIs404(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/jobs/missing", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEventsWebsocketStreamsJobTransitions(t *testing.T) {
	srv := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	resp := postJSON(t, srv.URL+"/credentials/validate", chatgptCredential())
	resp.Body.Close()

	body := chatgptCredential()
	body["tool"] = "extract_chatgpt_conversations"
	body["params"] = map[string]any{"session_token": "tok-http-1"}
	resp = postJSON(t, srv.URL+"/jobs", body)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp.Body.Close()

	// The job emits at least one event on its way to a terminal state.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev orchestrator.Event
	for {
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == orchestrator.EventJob && ev.Job != nil {
			break
		}
	}
	assert.Equal(t, "chatgpt", ev.Job.Provider)
}
