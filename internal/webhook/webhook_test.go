package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

func testNotification() Notification {
	msg := models.Message{
		NativeID:  "msg-1",
		Role:      models.RoleAssistant,
		Content:   "answer",
		Timestamp: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	return Notification{
		SessionID:    "session-1",
		Provider:     "chatgpt",
		Conversation: "chatgpt:conv-1",
		Title:        "Test",
		Message:      msg,
		DedupeKey:    DedupeKey("chatgpt", "chatgpt:conv-1", msg),
		ObservedAt:   time.Now().UTC(),
	}
}

func TestNotifyDeliversPayload(t *testing.T) {
	var gotKey atomic.Value
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey.Store(r.Header.Get("X-ChatVault-Dedupe-Key"))
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(2*time.Second, 3, nil)
	n := testNotification()
	if err := sink.Notify(context.Background(), srv.URL, n); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if gotKey.Load() != n.DedupeKey {
		t.Errorf("dedupe key header mismatch: got %v", gotKey.Load())
	}

	var decoded Notification
	if err := json.Unmarshal(gotBody.Load().([]byte), &decoded); err != nil {
		t.Fatalf("failed to decode delivered payload: %v", err)
	}
	if decoded.SessionID != "session-1" || decoded.Message.Content != "answer" {
		t.Errorf("payload mismatch: %+v", decoded)
	}
}

func TestNotifyRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewHTTPSink(2*time.Second, 3, nil)
	sink.backoff = time.Millisecond
	if err := sink.Notify(context.Background(), srv.URL, testNotification()); err != nil {
		t.Fatalf("Notify should succeed on third attempt: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sink := NewHTTPSink(2*time.Second, 3, nil)
	sink.backoff = time.Millisecond
	err := sink.Notify(context.Background(), srv.URL, testNotification())
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestNotifyHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sink := NewHTTPSink(2*time.Second, 5, nil)
	sink.backoff = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := sink.Notify(ctx, srv.URL, testNotification())
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDedupeKeyStable(t *testing.T) {
	msg := models.Message{NativeID: "m1", Role: models.RoleUser, Content: "hi", Timestamp: time.Now()}
	a := DedupeKey("chatgpt", "chatgpt:c1", msg)
	b := DedupeKey("chatgpt", "chatgpt:c1", msg)
	if a != b {
		t.Error("same message should produce the same dedupe key")
	}
	c := DedupeKey("chatgpt", "chatgpt:c2", msg)
	if a == c {
		t.Error("different conversations should produce different dedupe keys")
	}
}
